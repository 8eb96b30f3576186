package offline

import (
	"context"

	"github.com/crimson-sun/ember/internal/model"
	"github.com/crimson-sun/ember/internal/transport"
)

// RetryPass attempts every cached item once, oldest first. Only one pass runs
// at a time; a call arriving mid-pass is folded into a single follow-up pass
// over the same live queue.
func (s *Store) RetryPass(ctx context.Context) {
	s.mu.Lock()
	if s.passRunning {
		s.passPending = true
		s.mu.Unlock()
		return
	}
	s.passRunning = true
	s.mu.Unlock()

	for {
		s.runPass(ctx)

		s.mu.Lock()
		if !s.passPending {
			s.passRunning = false
			s.mu.Unlock()
			return
		}
		s.passPending = false
		s.mu.Unlock()
	}
}

// runPass walks the live queue by id. Items evicted or added while a send is
// in flight are seen as they are at the moment they're reached; nothing is
// attempted twice in one pass.
func (s *Store) runPass(ctx context.Context) {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	last := s.queue[len(s.queue)-1].id
	s.mu.Unlock()

	var cursor uint64
	touched := false
	for {
		if ctx.Err() != nil {
			break
		}

		s.mu.Lock()
		if !s.online {
			s.mu.Unlock()
			break
		}
		idx := s.indexAfterLocked(cursor, last)
		if idx < 0 {
			s.mu.Unlock()
			break
		}
		e := s.queue[idx]
		s.mu.Unlock()

		cursor = e.id
		err := s.deliver(ctx, transport.Single(e.item.Report))
		s.health.IncRetried()

		s.mu.Lock()
		touched = true
		idx = s.indexOfLocked(e.id)
		if idx < 0 {
			// Evicted while the send was in flight.
			s.mu.Unlock()
			continue
		}
		if err == nil {
			s.removeLocked(idx)
			s.mu.Unlock()
			continue
		}
		s.queue[idx].item.RetryCount++
		if rc := s.queue[idx].item.RetryCount; rc > s.maxRetries {
			s.removeLocked(idx)
			s.health.IncDropped()
			s.logger.Warn("offline: dropping report",
				"event_id", e.item.Report.EventID,
				"retries", rc,
				"error", model.ErrMaxRetriesExceeded)
		} else {
			s.logger.Debug("offline: retry failed", "event_id", e.item.Report.EventID, "retries", rc, "error", err)
		}
		s.mu.Unlock()
	}

	if touched {
		s.mu.Lock()
		s.persistLocked()
		s.mu.Unlock()
	}
}

// indexAfterLocked finds the first entry with cursor < id <= last.
func (s *Store) indexAfterLocked(cursor, last uint64) int {
	for i, e := range s.queue {
		if e.id > cursor && e.id <= last {
			return i
		}
	}
	return -1
}

func (s *Store) indexOfLocked(id uint64) int {
	for i, e := range s.queue {
		if e.id == id {
			return i
		}
	}
	return -1
}

func (s *Store) removeLocked(i int) {
	s.queue = append(s.queue[:i], s.queue[i+1:]...)
}
