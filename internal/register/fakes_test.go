package register

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/domain/qa"
	"github.com/digitalkontroll/qaregister/internal/repository"
)

type memItem struct {
	id      string
	path    string
	content []byte
}

type memRepo struct {
	mu       sync.Mutex
	items    map[string]*memItem
	folders  map[string]bool
	locked   map[string]bool
	creates  int
	uploads  int
	nextID   int
	failWith error

	// failRename is returned by RenameByID when set.
	failRename error
}

func newMemRepo() *memRepo {
	return &memRepo{items: map[string]*memItem{}, folders: map[string]bool{}, locked: map[string]bool{}}
}

func (m *memRepo) put(p string, content []byte) *memItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	item := &memItem{id: fmt.Sprintf("item-%d", m.nextID), path: p, content: content}
	m.items[strings.ToLower(p)] = item
	return item
}

func (m *memRepo) content(p string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[strings.ToLower(p)]; ok {
		return item.content
	}
	return nil
}

func (m *memRepo) meta(item *memItem) *Metadata {
	return &Metadata{ID: item.id, Name: path.Base(item.path), Path: item.path, WebURL: "https://files.example/" + item.id, Size: int64(len(item.content))}
}

func (m *memRepo) GetByPath(_ context.Context, p string) (*Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	item, ok := m.items[strings.ToLower(p)]
	if !ok {
		return nil, nil
	}
	return m.meta(item), nil
}

func (m *memRepo) Upload(_ context.Context, p string, content []byte, opts UploadOptions) (*Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked[strings.ToLower(p)] {
		return nil, fmt.Errorf("upload %s: %w", p, ErrResourceLocked)
	}
	item, exists := m.items[strings.ToLower(p)]
	if exists && !opts.Overwrite {
		return nil, fmt.Errorf("upload %s: %w", p, ErrAlreadyExists)
	}
	m.uploads++
	if !exists {
		m.creates++
		m.nextID++
		item = &memItem{id: fmt.Sprintf("item-%d", m.nextID), path: p}
		m.items[strings.ToLower(p)] = item
	}
	item.content = append([]byte(nil), content...)
	return m.meta(item), nil
}

func (m *memRepo) RenameByID(_ context.Context, id, newName string, opts RenameOptions) (*Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRename != nil {
		return nil, m.failRename
	}
	for k, item := range m.items {
		if item.id != id {
			continue
		}
		parent := path.Dir(item.path)
		if opts.ParentPath != "" {
			parent = opts.ParentPath
		}
		target := path.Join(parent, newName)
		if _, taken := m.items[strings.ToLower(target)]; taken {
			return nil, ErrAlreadyExists
		}
		delete(m.items, k)
		item.path = target
		m.items[strings.ToLower(target)] = item
		return m.meta(item), nil
	}
	return nil, ErrNotFound
}

func (m *memRepo) EnsureFolderPath(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders[p] = true
	return nil
}

func (m *memRepo) stats() (creates, uploads, items int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates, m.uploads, len(m.items)
}

type memState struct {
	mu     sync.Mutex
	states map[project.Key]WorkbookState
}

func newMemState() *memState {
	return &memState{states: map[project.Key]WorkbookState{}}
}

func (s *memState) GetSyncState(_ context.Context, key project.Key) (*WorkbookState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	if !ok {
		return &WorkbookState{Key: key, FileState: FileAbsent}, nil
	}
	return &st, nil
}

func (s *memState) update(key project.Key, fn func(*WorkbookState)) {
	st, ok := s.states[key]
	if !ok {
		st = WorkbookState{Key: key, FileState: FileAbsent}
	}
	fn(&st)
	st.UpdatedAt = time.Now()
	s.states[key] = st
}

func (s *memState) SaveCanonicalPath(_ context.Context, key project.Key, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.update(key, func(st *WorkbookState) {
		if st.CanonicalPath != "" && st.CanonicalPath != p {
			st.FileState = FileAbsent
			st.LeaseToken = ""
		}
		st.CanonicalPath = p
	})
	return nil
}

func (s *memState) ClaimCreation(_ context.Context, key project.Key, lease Lease, ttl time.Duration) (ClaimOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	if ok {
		switch st.FileState {
		case FileReady:
			return ClaimReady, nil
		case FileCreating:
			if !st.LeaseExpired(lease.StartedAt, ttl) {
				return ClaimInProgress, nil
			}
		}
	}
	s.update(key, func(st *WorkbookState) {
		st.FileState = FileCreating
		st.LeaseToken = lease.Token
		st.LeaseStartedAt = lease.StartedAt
		st.LeaseStartedBy = lease.Owner
	})
	return ClaimAcquired, nil
}

func (s *memState) MarkReady(_ context.Context, key project.Key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[key]; ok && token != "" && st.LeaseToken != token {
		return nil
	}
	s.update(key, func(st *WorkbookState) {
		st.FileState = FileReady
		st.LeaseToken = ""
		st.LastError = ""
	})
	return nil
}

func (s *memState) MarkFailed(_ context.Context, key project.Key, token, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[key]; ok && st.LeaseToken != token {
		return nil
	}
	s.update(key, func(st *WorkbookState) {
		st.FileState = FileError
		st.LeaseToken = ""
		st.LastError = message
	})
	return nil
}

func (s *memState) SaveFileMetadata(_ context.Context, key project.Key, remoteID, remoteLink string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.update(key, func(st *WorkbookState) {
		st.RemoteID = remoteID
		st.RemoteLink = remoteLink
	})
	return nil
}

type memProjects struct {
	mu      sync.Mutex
	meta    map[project.Key]project.Metadata
	records map[project.Key][]qa.Record
}

func newMemProjects() *memProjects {
	return &memProjects{meta: map[project.Key]project.Metadata{}, records: map[project.Key][]qa.Record{}}
}

func (p *memProjects) GetProjectMetadata(_ context.Context, key project.Key) (project.Metadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	meta, ok := p.meta[key]
	if !ok {
		return project.Metadata{}, repository.ErrNotFound
	}
	return meta, nil
}

func (p *memProjects) SetLegacyWorkbookPath(_ context.Context, key project.Key, legacy string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	meta, ok := p.meta[key]
	if !ok {
		return repository.ErrNotFound
	}
	meta.LegacyWorkbookPath = legacy
	p.meta[key] = meta
	return nil
}

func (p *memProjects) ClearLegacyWorkbookPath(_ context.Context, key project.Key) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	meta := p.meta[key]
	meta.LegacyWorkbookPath = ""
	p.meta[key] = meta
	return nil
}

func (p *memProjects) ListActiveRecords(_ context.Context, key project.Key) ([]qa.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []qa.Record
	for _, rec := range p.records[key] {
		if !rec.Deleted {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (p *memProjects) setRecords(key project.Key, records ...qa.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[key] = records
}

func testRecord(seq int64, status qa.Status) qa.Record {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return qa.Record{
		ID:              fmt.Sprintf("rec-%d", seq),
		SequenceNumber:  seq,
		FormattedNumber: qa.NumberFormat{Prefix: "FS", Width: 2}.Format(seq),
		Title:           fmt.Sprintf("Question %d", seq),
		Category:        "Fire",
		Question:        "Which class applies?",
		Status:          status,
		CreatedAt:       created,
		UpdatedAt:       created.Add(time.Hour),
		UpdatedBy:       "alice",
	}
}
