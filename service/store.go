package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/franklinjsmith-create/SupplyVerify/model"
)

var (
	ErrSessionNotFound = errors.New("session not found or expired")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionTerminal = errors.New("session already finished")
	ErrSessionState    = errors.New("session is not in the required state")
)

// SessionStore holds verification sessions while clients poll them. The
// runner is the only writer of a given session; Get returns a snapshot.
type SessionStore interface {
	Create(ctx context.Context, id string, total int, owner string) error
	Get(ctx context.Context, id string) (*model.VerificationSession, error)

	MarkProcessing(ctx context.Context, id string) error
	SetCurrent(ctx context.Context, id, operationName string) error
	AppendResult(ctx context.Context, id string, result model.VerificationResult) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id, message string) error
}

// Retention controls how long a terminal session stays readable.
type Retention struct {
	Completed time.Duration
	Error     time.Duration
}

func (r Retention) withDefaults() Retention {
	if r.Completed <= 0 {
		r.Completed = 5 * time.Minute
	}
	if r.Error <= 0 {
		r.Error = time.Minute
	}
	return r
}

func (r Retention) after(status model.SessionStatus) time.Duration {
	if status == model.SessionError {
		return r.Error
	}
	return r.Completed
}

// Transitions shared by both store implementations. Each checks the
// precondition and applies the change to s in place.

func newSession(id string, total int, owner string, now time.Time) *model.VerificationSession {
	return &model.VerificationSession{
		ID:        id,
		Owner:     owner,
		Total:     total,
		Results:   []model.VerificationResult{},
		Status:    model.SessionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func markProcessing(s *model.VerificationSession) error {
	if s.Status != model.SessionPending {
		return ErrSessionState
	}
	s.Status = model.SessionProcessing
	return nil
}

func setCurrent(s *model.VerificationSession, name string) error {
	if s.Status != model.SessionProcessing {
		return ErrSessionState
	}
	s.Current = name
	return nil
}

func appendResult(s *model.VerificationSession, result model.VerificationResult) error {
	if s.Status != model.SessionProcessing || s.Completed >= s.Total {
		return ErrSessionState
	}
	s.Results = append(s.Results, result)
	s.Completed++
	return nil
}

func complete(s *model.VerificationSession) error {
	if s.Status != model.SessionProcessing {
		return ErrSessionState
	}
	s.Status = model.SessionCompleted
	s.Current = ""
	return nil
}

func fail(message string) func(*model.VerificationSession) error {
	return func(s *model.VerificationSession) error {
		s.Status = model.SessionError
		s.Error = message
		s.Current = ""
		return nil
	}
}

type memoryEntry struct {
	session   *model.VerificationSession
	expiresAt time.Time // zero while the session is running
}

// MemoryStore is the single-process SessionStore. Terminal sessions expire
// lazily on access; Sweep or Run reclaim the ones nobody polls again.
type MemoryStore struct {
	mu          sync.Mutex
	sessions    map[string]*memoryEntry
	retention   Retention
	maxSessions int // 0 = unlimited
	now         func() time.Time
}

type MemoryStoreOption func(*MemoryStore)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithMaxSessions caps the number of stored sessions. When the cap is
// exceeded the oldest finished sessions are dropped first; running sessions
// are never evicted.
func WithMaxSessions(n int) MemoryStoreOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

func NewMemoryStore(retention Retention, opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		sessions:  make(map[string]*memoryEntry),
		retention: retention.withDefaults(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Create(_ context.Context, id string, total int, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(id); ok {
		return ErrSessionExists
	}
	s.sessions[id] = &memoryEntry{session: newSession(id, total, owner, s.now())}
	s.evictIfNeeded()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.VerificationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.session.Clone(), nil
}

func (s *MemoryStore) MarkProcessing(_ context.Context, id string) error {
	return s.update(id, markProcessing)
}

func (s *MemoryStore) SetCurrent(_ context.Context, id, operationName string) error {
	return s.update(id, func(sess *model.VerificationSession) error { return setCurrent(sess, operationName) })
}

func (s *MemoryStore) AppendResult(_ context.Context, id string, result model.VerificationResult) error {
	return s.update(id, func(sess *model.VerificationSession) error { return appendResult(sess, result) })
}

func (s *MemoryStore) Complete(_ context.Context, id string) error {
	return s.update(id, complete)
}

func (s *MemoryStore) Fail(_ context.Context, id, message string) error {
	return s.update(id, fail(message))
}

// Sweep removes expired sessions and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, e := range s.sessions {
		if e.expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Debug("expired sessions removed", "count", n)
			}
		}
	}
}

// Count returns the number of stored sessions, expired ones included until
// they are swept.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// update applies fn under the lock. Must not be called with the lock held.
func (s *MemoryStore) update(id string, fn func(*model.VerificationSession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}
	if e.session.Status.IsTerminal() {
		return ErrSessionTerminal
	}
	if err := fn(e.session); err != nil {
		return err
	}
	now := s.now()
	e.session.UpdatedAt = now
	if e.session.Status.IsTerminal() {
		e.expiresAt = now.Add(s.retention.after(e.session.Status))
	}
	return nil
}

// lookup returns a live entry, deleting it if it has expired.
// Must be called with lock held.
func (s *MemoryStore) lookup(id string) (*memoryEntry, bool) {
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if e.expired(s.now()) {
		delete(s.sessions, id)
		return nil, false
	}
	return e, true
}

// evictIfNeeded drops the oldest finished sessions once maxSessions is exceeded.
// Must be called with lock held.
func (s *MemoryStore) evictIfNeeded() {
	if s.maxSessions <= 0 || len(s.sessions) <= s.maxSessions {
		return
	}

	finished := make([]*model.VerificationSession, 0, len(s.sessions))
	for _, e := range s.sessions {
		if e.session.Status.IsTerminal() {
			finished = append(finished, e.session)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].CreatedAt.Before(finished[j].CreatedAt)
	})

	excess := len(s.sessions) - s.maxSessions
	for i := 0; i < excess && i < len(finished); i++ {
		slog.Info("evicting finished session",
			"session_id", finished[i].ID,
			"created_at", finished[i].CreatedAt,
		)
		delete(s.sessions, finished[i].ID)
	}
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}
