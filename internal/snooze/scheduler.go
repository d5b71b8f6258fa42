// Package snooze clears expired message snoozes on a fixed timer,
// grounded on the teacher's startSnoozeChecker/checkSnoozedEmails,
// generalized to the flatter SPEC_FULL model where snooze state lives
// directly on the message row rather than a separate mapping table.
package snooze

import (
	"log"
	"sync"
	"time"

	"github.com/inboxforge/core/internal/store"
)

type Scheduler struct {
	messages store.MessageRepository
	interval time.Duration
	now      func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

func New(messages store.MessageRepository, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Scheduler{
		messages: messages,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	if s.started {
		return
	}
	s.started = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.tick()
			case <-s.stopCh:
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// tick finds every message whose snooze has expired and clears it in a
// single batched update; idempotent and safe under concurrent edits
// since ClearSnoozeBatch only ever sets isSnoozed=false/snoozedUntil=nil.
func (s *Scheduler) tick() {
	ids, err := s.messages.ListSnoozeExpired(s.now())
	if err != nil {
		log.Printf("[Snooze] failed to list expired snoozes: %v", err)
		return
	}
	if len(ids) == 0 {
		return
	}
	if err := s.messages.ClearSnoozeBatch(ids); err != nil {
		log.Printf("[Snooze] failed to clear %d expired snooze(s): %v", len(ids), err)
		return
	}
	log.Printf("[Snooze] cleared %d expired snooze(s)", len(ids))
}
