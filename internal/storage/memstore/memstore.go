// Package memstore provides an in-process implementation of the ledger store.
// It backs tests and the local fallback backend; data lives only as long as
// the process.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/service"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memstore: closed")

// Store implements service.Storage in memory. A transaction holds the store
// lock from BeginTx until Commit or Rollback, mirroring the single-writer
// behavior of the SQLite store.
type Store struct {
	memLedger
	mu     sync.Mutex
	st     *state
	closed bool
}

// New returns an empty store.
func New() *Store {
	s := &Store{st: newState()}
	s.memLedger = memLedger{with: s.withLock}
	return s
}

func (s *Store) withLock(ctx context.Context, fn func(*state) error) error {
	if ctx == nil {
		return common.Invalid("context", "must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return common.Unavailable("memstore", ErrClosed)
	}
	// Work on a copy so a failing multi-step write leaves no partial state.
	work := s.st.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Migrate is a no-op; the in-memory schema is always current.
func (s *Store) Migrate(ctx context.Context) error {
	if ctx == nil {
		return common.Invalid("context", "must not be nil")
	}
	return nil
}

// Close releases the store. Later calls fail with ErrStoreUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// BeginTx snapshots the store and blocks other writers until the
// transaction ends.
func (s *Store) BeginTx(ctx context.Context) (service.Transaction, error) {
	if ctx == nil {
		return nil, common.Invalid("context", "must not be nil")
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, common.Unavailable("begin transaction", ErrClosed)
	}
	t := &txn{store: s, work: s.st.clone()}
	t.memLedger = memLedger{with: t.withState}
	return t, nil
}

type txn struct {
	memLedger
	store *Store
	work  *state
	once  sync.Once
	done  bool
}

func (t *txn) withState(ctx context.Context, fn func(*state) error) error {
	if ctx == nil {
		return common.Invalid("context", "must not be nil")
	}
	if t.done {
		return common.Unavailable("memstore", errors.New("transaction already finished"))
	}
	return fn(t.work)
}

func (t *txn) Commit() error {
	if t.done {
		return common.Unavailable("commit transaction", errors.New("transaction already finished"))
	}
	t.finish(true)
	return nil
}

func (t *txn) Rollback() error {
	t.finish(false)
	return nil
}

func (t *txn) finish(commit bool) {
	t.once.Do(func() {
		if commit {
			t.store.st = t.work
		}
		t.done = true
		t.store.mu.Unlock()
	})
}

// memLedger implements service.Ledger over whichever state with exposes.
type memLedger struct {
	with func(ctx context.Context, fn func(*state) error) error
}

func notFound(op string) error {
	return fmt.Errorf("%s: %w", op, common.ErrNotFound)
}

func requireString(s, field string) error {
	if strings.TrimSpace(s) == "" {
		return common.Invalid(field, "must not be empty")
	}
	return nil
}
