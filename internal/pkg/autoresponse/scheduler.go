package autoresponse

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/fanflowhq/fanflow/internal/pkg/fanvue"
)

// Scheduler arranges the timing of automated replies. It only handles
// timing: duplicate triggers (e.g. redelivered webhooks) schedule duplicate
// replies by design, and dedup belongs to a downstream layer. Pending timers
// are cancellable so shutdown never leaks a goroutine.
type Scheduler struct {
	sender  fanvue.Sender
	enabled bool

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler delivering through the given sender. The
// enabled flag is the global auto-response toggle.
func NewScheduler(sender fanvue.Sender, enabled bool) *Scheduler {
	return &Scheduler{
		sender:  sender,
		enabled: enabled,
		timers:  make(map[string]*time.Timer),
	}
}

// ShouldRespond reports whether an automated reply should fire for the user.
// Pure query, no side effects.
func (s *Scheduler) ShouldRespond(userID string) bool {
	return s.enabled
}

// Schedule arranges delivery of messageText to userID after delay. A zero or
// negative delay delivers immediately; a positive delay registers a
// cancellable timer and never blocks the caller.
func (s *Scheduler) Schedule(userID, messageText string, delay time.Duration) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}

	if delay <= 0 {
		s.wg.Add(1)
		s.mu.Unlock()
		go func() {
			defer s.wg.Done()
			s.deliver(userID, messageText)
		}()
		return
	}

	log.Infof("[AutoResponse] Scheduling response to %s with delay %s", userID, delay)
	id := uuid.New().String()
	s.wg.Add(1)
	s.timers[id] = time.AfterFunc(delay, func() {
		defer s.wg.Done()

		s.mu.Lock()
		_, live := s.timers[id]
		delete(s.timers, id)
		stopped := s.stopped
		s.mu.Unlock()
		if !live || stopped {
			return
		}
		s.deliver(userID, messageText)
	})
	s.mu.Unlock()
}

// Pending returns the number of registered delayed deliveries.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels all pending timers and waits for in-flight deliveries.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for id, timer := range s.timers {
		if timer.Stop() {
			// Timer never fired; release its WaitGroup slot.
			s.wg.Done()
		}
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	log.Info("[AutoResponse] Scheduler stopped")
}

func (s *Scheduler) deliver(userID, messageText string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.sender.SendMessage(ctx, userID, messageText); err != nil {
		log.Errorf("[AutoResponse] Failed to send to %s: %v", userID, err)
		return
	}
	log.Infof("[AutoResponse] Sent to %s", userID)
}
