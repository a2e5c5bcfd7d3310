// Package filerepo stores register workbooks in a local or mounted directory,
// such as a synced document library.
package filerepo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/digitalkontroll/qaregister/internal/register"
	"github.com/gofrs/flock"
)

const lockDirName = ".qaregister-locks"

// Repository implements register.FileRepository on a directory tree. Item
// ids are slash-separated paths relative to the root.
type Repository struct {
	root   string
	logger *slog.Logger
}

// New creates a Repository rooted at root, creating the directory if needed.
func New(root string, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("%w: repository root is empty", register.ErrConfiguration)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve repository root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create repository root: %w", err)
	}
	return &Repository{root: abs, logger: logger}, nil
}

// Root returns the absolute repository root.
func (r *Repository) Root() string {
	return r.root
}

// GetByPath returns the item at p, or nil when nothing exists there.
func (r *Repository) GetByPath(ctx context.Context, p string) (*register.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel := register.CleanPath(p)
	info, err := os.Stat(r.abs(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}
	return r.metadata(rel, info), nil
}

// Upload writes content to p through a temporary file and a rename, so
// readers see either the old or the new workbook.
func (r *Repository) Upload(ctx context.Context, p string, content []byte, opts register.UploadOptions) (*register.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel := register.CleanPath(p)
	if rel == "" {
		return nil, fmt.Errorf("upload: empty path")
	}
	target := r.abs(rel)

	if owner, ok := ownerFile(target); ok {
		r.logger.Debug("workbook open in editor", "path", rel, "owner_file", owner)
		return nil, fmt.Errorf("upload %s: %w", rel, register.ErrResourceLocked)
	}

	unlock, err := r.lock(rel)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !opts.Overwrite {
		if _, err := os.Stat(target); err == nil {
			return nil, fmt.Errorf("upload %s: %w", rel, register.ErrAlreadyExists)
		}
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create folder for %s: %w", rel, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file for %s: %w", rel, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write %s: %w", rel, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("sync %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", rel, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		// Network shares refuse to replace a file another client has open.
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("replace %s: %w: %v", rel, register.ErrResourceLocked, err)
		}
		return nil, fmt.Errorf("replace %s: %w", rel, err)
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}
	return r.metadata(rel, info), nil
}

// RenameByID renames the item id to newName, moving it to opts.ParentPath
// when set.
func (r *Repository) RenameByID(ctx context.Context, id, newName string, opts register.RenameOptions) (*register.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := register.CleanPath(id)
	if src == "" {
		return nil, fmt.Errorf("rename: %w: empty id", register.ErrNotFound)
	}
	if newName == "" || strings.ContainsAny(newName, `/\`) {
		return nil, fmt.Errorf("rename %s: invalid name %q", src, newName)
	}
	if _, err := os.Stat(r.abs(src)); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("rename %s: %w", src, register.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("stat %s: %w", src, err)
	}
	if owner, ok := ownerFile(r.abs(src)); ok {
		r.logger.Debug("workbook open in editor", "path", src, "owner_file", owner)
		return nil, fmt.Errorf("rename %s: %w", src, register.ErrResourceLocked)
	}

	parent := path.Dir(src)
	if opts.ParentPath != "" {
		parent = register.CleanPath(opts.ParentPath)
	}
	dst := register.CleanPath(path.Join(parent, newName))
	if _, err := os.Stat(r.abs(dst)); err == nil {
		return nil, fmt.Errorf("rename %s to %s: %w", src, dst, register.ErrAlreadyExists)
	}

	unlock, err := r.lock(src)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(r.abs(dst)), 0o755); err != nil {
		return nil, fmt.Errorf("create folder for %s: %w", dst, err)
	}
	if err := os.Rename(r.abs(src), r.abs(dst)); err != nil {
		return nil, fmt.Errorf("rename %s to %s: %w", src, dst, err)
	}

	info, err := os.Stat(r.abs(dst))
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dst, err)
	}
	r.logger.Info("workbook moved", "from", src, "to", dst)
	return r.metadata(dst, info), nil
}

// EnsureFolderPath creates p and its parents.
func (r *Repository) EnsureFolderPath(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel := register.CleanPath(p)
	abs := r.abs(rel)
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return fmt.Errorf("ensure folder %s: %w", rel, register.ErrAlreadyExists)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("ensure folder %s: %w", rel, err)
	}
	return nil
}

// abs maps a cleaned relative path into the root. CleanPath has already
// removed any leading "..".
func (r *Repository) abs(rel string) string {
	return filepath.Join(r.root, filepath.FromSlash(rel))
}

// lock takes the cross-process write lock for rel.
func (r *Repository) lock(rel string) (func(), error) {
	dir := filepath.Join(r.root, lockDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock folder: %w", err)
	}
	fl := flock.New(filepath.Join(dir, lockFileName(rel)))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock for %s: %w", rel, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", rel, register.ErrResourceLocked)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			r.logger.Warn("failed to release workbook lock", "path", rel, "error", err)
		}
	}, nil
}

func (r *Repository) metadata(rel string, info fs.FileInfo) *register.Metadata {
	return &register.Metadata{
		ID:         rel,
		Name:       info.Name(),
		Path:       rel,
		WebURL:     "file://" + filepath.ToSlash(r.abs(rel)),
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
	}
}

// LockPath returns the flock file guarding p. Other tools writing to the
// repository can take the same lock.
func (r *Repository) LockPath(p string) string {
	return filepath.Join(r.root, lockDirName, lockFileName(register.CleanPath(p)))
}

func lockFileName(rel string) string {
	return strings.ReplaceAll(strings.ToLower(rel), "/", "__") + ".lock"
}

// ownerFile reports the Office or LibreOffice owner file that marks target
// as open in an editor.
func ownerFile(target string) (string, bool) {
	dir, name := filepath.Split(target)
	candidates := []string{
		filepath.Join(dir, "~$"+name),
		filepath.Join(dir, ".~lock."+name+"#"),
	}
	// Excel shortens long names to keep the owner file within 8.3 limits.
	if len(name) > 2 {
		candidates = append(candidates, filepath.Join(dir, "~$"+name[2:]))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, true
		}
	}
	return "", false
}

var _ register.FileRepository = (*Repository)(nil)
