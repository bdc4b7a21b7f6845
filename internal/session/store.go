// Package session implements C10: per-thread_id conversational state with
// a per-thread lock serializing concurrent mutations, delegating durable
// persistence to the C16 checkpoint backend. The per-key lock map and TTL
// idiom is adapted from the donor's internal/cache/query.go (sync.RWMutex
// over a map, background eviction ticker), retargeted from caching
// retrieval results to guarding SessionState mutation.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ragbox/core-rag/internal/model"
)

// Checkpoint is the durable persistence contract C16 implements.
type Checkpoint interface {
	Load(ctx context.Context, threadID string) (*model.SessionState, error)
	Save(ctx context.Context, state *model.SessionState) error
	Delete(ctx context.Context, threadID string) error
}

// IdleTTL is how long an in-memory per-thread lock may sit unused before
// the store's background sweep evicts it (the lock, not the session
// itself — durable state lives in the checkpoint backend regardless).
const IdleTTL = 30 * time.Minute

type threadLock struct {
	mu        sync.Mutex
	lastUsed  time.Time
}

// Store serializes mutation of SessionState per thread_id and persists
// through Checkpoint.
type Store struct {
	checkpoint Checkpoint

	locksMu sync.Mutex
	locks   map[string]*threadLock

	stopCh chan struct{}
}

func New(checkpoint Checkpoint) *Store {
	s := &Store{
		checkpoint: checkpoint,
		locks:      make(map[string]*threadLock),
		stopCh:     make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Create returns the canonical thread_id: threadID if non-empty, else a
// freshly generated one. It does not itself create persisted state —
// Load returns a fresh NewSessionState without saving it, and the first
// Mutate persists it.
func (s *Store) Create(threadID string) string {
	if threadID != "" {
		return threadID
	}
	return uuid.NewString()
}

// Load returns the current SessionState for threadID, creating a fresh one
// if none is persisted yet.
func (s *Store) Load(ctx context.Context, threadID string) (*model.SessionState, error) {
	lock := s.lockFor(threadID)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	state, err := s.checkpoint.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("session.Load: %w", err)
	}
	if state == nil {
		state = model.NewSessionState(threadID)
	}
	return state, nil
}

// Mutate loads the current state under the per-thread lock, applies fn,
// and persists the result. fn must not retain state beyond the call.
func (s *Store) Mutate(ctx context.Context, threadID string, fn func(*model.SessionState)) (*model.SessionState, error) {
	lock := s.lockFor(threadID)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	state, err := s.checkpoint.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("session.Mutate: load: %w", err)
	}
	if state == nil {
		state = model.NewSessionState(threadID)
	}

	prevRevision := state.Revision
	fn(state)
	if state.Revision == prevRevision {
		state.Revision++
	}

	if err := s.checkpoint.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("session.Mutate: save: %w", err)
	}
	return state, nil
}

// Reset clears retry counters for a new top-level invocation.
func (s *Store) Reset(ctx context.Context, threadID string) (*model.SessionState, error) {
	return s.Mutate(ctx, threadID, func(state *model.SessionState) {
		state.ResetRetries()
	})
}

func (s *Store) lockFor(threadID string) *threadLock {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[threadID]
	if !ok {
		l = &threadLock{}
		s.locks[threadID] = l
	}
	l.lastUsed = time.Now()
	return l
}

// Stop halts the background idle-lock sweep.
func (s *Store) Stop() {
	close(s.stopCh)
}

func (s *Store) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.locksMu.Lock()
			for id, l := range s.locks {
				if now.Sub(l.lastUsed) > IdleTTL {
					delete(s.locks, id)
				}
			}
			s.locksMu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}
