// Package state holds per-chat dialogue state in process memory.
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"flanner/internal/domain"
)

const defaultSweepInterval = time.Minute

// MemoryStore keeps one Conversation per chat. Unseen chats read as a fresh
// conversation in domain.StateStart. With an idle TTL, conversations not
// touched for longer than the TTL are forgotten and read as fresh again.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[int64]domain.Conversation

	idleTTL       time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type Option func(*MemoryStore)

// WithIdleTTL enables eviction of conversations idle longer than ttl.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *MemoryStore) { s.idleTTL = ttl }
}

func WithSweepInterval(d time.Duration) Option {
	return func(s *MemoryStore) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates a store. When an idle TTL is set a background
// sweeper runs until Close is called.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		convs:         make(map[int64]domain.Conversation),
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.idleTTL > 0 {
		go s.sweepLoop()
	} else {
		close(s.done)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, chatID int64) (domain.Conversation, error) {
	now := s.now()
	s.mu.RLock()
	conv, ok := s.convs[chatID]
	s.mu.RUnlock()
	if !ok || s.expired(conv, now) {
		return domain.NewConversation(chatID, now), nil
	}
	return conv, nil
}

func (s *MemoryStore) Set(_ context.Context, chatID int64, st domain.State) error {
	if !st.Valid() {
		return fmt.Errorf("state: invalid state %q", st)
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[chatID]
	if !ok || s.expired(conv, now) {
		conv = domain.NewConversation(chatID, now)
	}
	conv.State = st
	conv.LastActiveAt = now
	s.convs[chatID] = conv
	return nil
}

// Len returns the number of tracked conversations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs)
}

// Close stops the sweeper. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

func (s *MemoryStore) expired(conv domain.Conversation, now time.Time) bool {
	return s.idleTTL > 0 && now.Sub(conv.LastActiveAt) > s.idleTTL
}

func (s *MemoryStore) sweepLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conv := range s.convs {
		if s.expired(conv, now) {
			delete(s.convs, id)
		}
	}
}
