package bot

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrSerializerClosed is returned by Submit after Close.
var ErrSerializerClosed = errors.New("bot: serializer closed")

// Serializer runs jobs for the same chat one at a time in submission order,
// while jobs for different chats run concurrently. A chat's worker goroutine
// exits once its queue is empty.
type Serializer struct {
	logger *slog.Logger

	mu     sync.Mutex
	queues map[int64][]func()
	closed bool
	wg     sync.WaitGroup
}

func NewSerializer(logger *slog.Logger) *Serializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Serializer{logger: logger, queues: make(map[int64][]func())}
}

// Submit queues job behind any pending jobs of chatID.
func (s *Serializer) Submit(chatID int64, job func()) error {
	if job == nil {
		return errors.New("bot: job must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSerializerClosed
	}
	q, running := s.queues[chatID]
	s.queues[chatID] = append(q, job)
	if !running {
		s.wg.Add(1)
		go s.drain(chatID)
	}
	return nil
}

func (s *Serializer) drain(chatID int64) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		q := s.queues[chatID]
		if len(q) == 0 {
			delete(s.queues, chatID)
			s.mu.Unlock()
			return
		}
		job := q[0]
		q[0] = nil
		s.queues[chatID] = q[1:]
		s.mu.Unlock()

		s.run(chatID, job)
	}
}

func (s *Serializer) run(chatID int64, job func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("chat job panicked", "chat_id", chatID, "panic", r)
		}
	}()
	job()
}

// Pending returns the number of chats with queued or running jobs.
func (s *Serializer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}

// Close stops accepting jobs and waits for queued jobs to finish.
func (s *Serializer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

// Wait blocks until every submitted job has run.
func (s *Serializer) Wait() {
	s.wg.Wait()
}
