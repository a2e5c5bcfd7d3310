// Package graphrepo stores register workbooks in a Microsoft Graph style
// drive (OneDrive, SharePoint document libraries). Content up to 4 MiB is sent
// in one PUT; anything larger goes through a chunked upload session.
package graphrepo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/digitalkontroll/qaregister/internal/register"
)

const (
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"
	defaultTimeout = 30 * time.Second

	// DefaultSimpleUploadLimit is the largest body the drive accepts in a
	// single content PUT.
	DefaultSimpleUploadLimit = 4 << 20
	// DefaultChunkSize must stay a multiple of 320 KiB.
	DefaultChunkSize = 10 * 320 << 10
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	DriveID    string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// SimpleUploadLimit and ChunkSize override the upload session thresholds.
	SimpleUploadLimit int
	ChunkSize         int
}

// Client implements register.FileRepository against the drive REST API.
type Client struct {
	baseURL    string
	driveID    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *slog.Logger

	simpleUploadLimit int
	chunkSize         int
}

// HTTPError is a non-success response from the drive API. It unwraps to the
// register error matching its status.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusLocked || strings.EqualFold(e.Code, "resourceLocked"):
		return register.ErrResourceLocked
	case e.StatusCode == http.StatusNotFound:
		return register.ErrNotFound
	case e.StatusCode == http.StatusConflict || strings.EqualFold(e.Code, "nameAlreadyExists"):
		return register.ErrAlreadyExists
	}
	return nil
}

type driveItem struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Size                 int64  `json:"size"`
	WebURL               string `json:"webUrl"`
	LastModifiedDateTime string `json:"lastModifiedDateTime"`
	ParentReference      struct {
		Path string `json:"path"`
	} `json:"parentReference"`
}

// New creates a Client for one drive.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if strings.TrimSpace(opts.DriveID) == "" {
		return nil, fmt.Errorf("%w: graph drive id is empty", register.ErrConfiguration)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	simpleLimit := opts.SimpleUploadLimit
	if simpleLimit <= 0 {
		simpleLimit = DefaultSimpleUploadLimit
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Client{
		baseURL:           baseURL,
		driveID:           strings.TrimSpace(opts.DriveID),
		token:             strings.TrimSpace(opts.Token),
		httpClient:        httpClient,
		maxRetries:        maxRetries,
		baseDelay:         opts.BaseDelay,
		maxDelay:          opts.MaxDelay,
		logger:            logger,
		simpleUploadLimit: simpleLimit,
		chunkSize:         chunkSize,
	}, nil
}

// GetByPath returns the item at p, or nil when the drive has none.
func (c *Client) GetByPath(ctx context.Context, p string) (*register.Metadata, error) {
	var item driveItem
	err := c.do(ctx, http.MethodGet, c.itemPath(p), "", nil, &item)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", register.CleanPath(p), err)
	}
	return c.metadata(item), nil
}

// Upload replaces the content at p. Large content is sent through an upload
// session in chunks.
func (c *Client) Upload(ctx context.Context, p string, content []byte, opts register.UploadOptions) (*register.Metadata, error) {
	behavior := "fail"
	if opts.Overwrite {
		behavior = "replace"
	}
	if len(content) > c.simpleUploadLimit {
		meta, err := c.uploadSession(ctx, p, content, behavior)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", register.CleanPath(p), err)
		}
		return meta, nil
	}

	q := url.Values{}
	q.Set("@microsoft.graph.conflictBehavior", behavior)

	var item driveItem
	reqPath := c.itemPath(p) + ":/content?" + q.Encode()
	if err := c.do(ctx, http.MethodPut, reqPath, "application/octet-stream", content, &item); err != nil {
		return nil, fmt.Errorf("upload %s: %w", register.CleanPath(p), err)
	}
	return c.metadata(item), nil
}

type uploadSession struct {
	UploadURL string `json:"uploadUrl"`
}

func (c *Client) uploadSession(ctx context.Context, p string, content []byte, behavior string) (*register.Metadata, error) {
	payload, err := json.Marshal(map[string]any{
		"item": map[string]any{"@microsoft.graph.conflictBehavior": behavior},
	})
	if err != nil {
		return nil, err
	}
	var session uploadSession
	if err := c.do(ctx, http.MethodPost, c.itemPath(p)+":/createUploadSession", "application/json", payload, &session); err != nil {
		return nil, err
	}
	if session.UploadURL == "" {
		return nil, errors.New("upload session without upload url")
	}

	total := len(content)
	var item driveItem
	for start := 0; start < total; start += c.chunkSize {
		end := min(start+c.chunkSize, total)
		headers := http.Header{}
		headers.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end-1, total))
		var out any
		if end == total {
			out = &item
		}
		// The upload URL is pre-authorised and rejects a bearer token.
		if err := c.send(ctx, http.MethodPut, session.UploadURL, headers, false, "application/octet-stream", content[start:end], out); err != nil {
			if cancelErr := c.send(ctx, http.MethodDelete, session.UploadURL, nil, false, "", nil, nil); cancelErr != nil {
				c.logger.Debug("cancel upload session failed", "path", register.CleanPath(p), "error", cancelErr)
			}
			return nil, err
		}
	}
	c.logger.Debug("uploaded in session", "path", register.CleanPath(p), "bytes", total)
	return c.metadata(item), nil
}

// RenameByID renames an item, moving it when opts.ParentPath is set.
func (c *Client) RenameByID(ctx context.Context, id, newName string, opts register.RenameOptions) (*register.Metadata, error) {
	body := map[string]any{"name": newName}
	if opts.ParentPath != "" {
		body["parentReference"] = map[string]string{
			"path": "/drive/root:/" + register.CleanPath(opts.ParentPath),
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	var item driveItem
	reqPath := fmt.Sprintf("/drives/%s/items/%s", url.PathEscape(c.driveID), url.PathEscape(id))
	if err := c.do(ctx, http.MethodPatch, reqPath, "application/json", payload, &item); err != nil {
		return nil, fmt.Errorf("rename %s: %w", id, err)
	}
	return c.metadata(item), nil
}

// EnsureFolderPath creates each missing folder along p.
func (c *Client) EnsureFolderPath(ctx context.Context, p string) error {
	clean := register.CleanPath(p)
	if clean == "" {
		return nil
	}

	parent := ""
	for _, segment := range strings.Split(clean, "/") {
		current := segment
		if parent != "" {
			current = parent + "/" + segment
		}
		existing, err := c.GetByPath(ctx, current)
		if err != nil {
			return fmt.Errorf("ensure folder %s: %w", clean, err)
		}
		if existing == nil {
			if err := c.createFolder(ctx, parent, segment); err != nil {
				return fmt.Errorf("ensure folder %s: %w", clean, err)
			}
			c.logger.Debug("created drive folder", "path", current)
		}
		parent = current
	}
	return nil
}

func (c *Client) createFolder(ctx context.Context, parent, name string) error {
	payload, err := json.Marshal(map[string]any{
		"name":                              name,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": "fail",
	})
	if err != nil {
		return err
	}

	reqPath := fmt.Sprintf("/drives/%s/root/children", url.PathEscape(c.driveID))
	if parent != "" {
		reqPath = c.itemPath(parent) + ":/children"
	}
	err = c.do(ctx, http.MethodPost, reqPath, "application/json", payload, nil)
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusConflict {
		// Created concurrently by someone else.
		return nil
	}
	return err
}

func (c *Client) itemPath(p string) string {
	clean := register.CleanPath(p)
	segments := strings.Split(clean, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("/drives/%s/root:/%s", url.PathEscape(c.driveID), strings.Join(segments, "/"))
}

func (c *Client) metadata(item driveItem) *register.Metadata {
	meta := &register.Metadata{
		ID:     item.ID,
		Name:   item.Name,
		WebURL: item.WebURL,
		Size:   item.Size,
	}
	parent := item.ParentReference.Path
	if i := strings.Index(parent, "root:"); i >= 0 {
		parent = parent[i+len("root:"):]
	}
	meta.Path = register.CleanPath(parent + "/" + item.Name)
	if ts, err := time.Parse(time.RFC3339, item.LastModifiedDateTime); err == nil {
		meta.ModifiedAt = ts
	}
	return meta
}

func (c *Client) do(ctx context.Context, method, requestPath, contentType string, body []byte, out any) error {
	return c.send(ctx, method, c.baseURL+requestPath, nil, true, contentType, body, out)
}

func (c *Client) send(ctx context.Context, method, target string, headers http.Header, auth bool, contentType string, body []byte, out any) error {
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
		if err != nil {
			return err
		}
		for name, values := range headers {
			req.Header[name] = values
		}
		if auth && c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries && ctx.Err() == nil {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			return json.Unmarshal(payload, out)
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < c.maxRetries {
			delay := c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))
			c.logger.Debug("drive request throttled", "method", method, "status", resp.StatusCode, "delay", delay)
			if waitErr := waitWithContext(ctx, delay); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(payload, &errPayload)
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Code:       errPayload.Error.Code,
			Message:    errPayload.Error.Message,
		}
	}
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := http.ParseTime(value); err == nil {
		return time.Until(ts)
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ register.FileRepository = (*Client)(nil)
