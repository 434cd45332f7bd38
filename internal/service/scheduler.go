package service

import (
	"log/slog"
	"sync"
	"time"
)

type scheduledTask struct {
	timer *time.Timer
}

// Scheduler runs delayed one-shot tasks keyed by room or connection. A new
// task for an existing key replaces the pending one; Stop revokes everything
// in flight so shutdown never races a send against a closed connection set.
type Scheduler struct {
	log *slog.Logger

	mu      sync.Mutex
	pending map[string]*scheduledTask
	stopped bool
}

func NewScheduler(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		log:     log,
		pending: make(map[string]*scheduledTask),
	}
}

// Schedule queues fn to run after delay. Any pending task under the same key
// is revoked first.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if prev, ok := s.pending[key]; ok {
		prev.timer.Stop()
	}

	task := &scheduledTask{}
	task.timer = time.AfterFunc(delay, func() {
		if !s.claim(key, task) {
			return
		}
		fn()
	})
	s.pending[key] = task
}

// Cancel revokes the pending task for key, if any.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task, ok := s.pending[key]; ok {
		task.timer.Stop()
		delete(s.pending, key)
	}
}

// Stop revokes every pending task. Further Schedule calls are no-ops.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for key, task := range s.pending {
		task.timer.Stop()
		delete(s.pending, key)
	}
}

// claim removes the fired task from the pending set. It reports false when
// the task was revoked or superseded between firing and running.
func (s *Scheduler) claim(key string, task *scheduledTask) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	if current, ok := s.pending[key]; !ok || current != task {
		return false
	}
	delete(s.pending, key)
	return true
}
