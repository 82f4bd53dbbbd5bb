package session

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"leadswiper/internal/logging"
	"leadswiper/internal/queue"
)

type opKind int

const (
	opDecide opKind = iota + 1
	opUndo
	opRestore
	opContact
)

// marker tracks the latest unconfirmed write for one lead. A write's outcome
// only counts while its generation is still the lead's current marker.
type marker struct {
	gen       uint64
	kind      opKind
	lead      *queue.Lead
	from      queue.Status
	to        queue.Status
	fromQueue bool
	failed    bool
}

const writeTimeout = 30 * time.Second

func (s *Session) nextGenLocked() uint64 {
	s.gen++
	return s.gen
}

// persistLocked runs write in the background with retries. Writes for the
// same lead run in issue order.
func (s *Session) persistLocked(ctx context.Context, gen uint64, id, op string, write func(context.Context) error) {
	prev := s.lastWrite[id]
	done := make(chan struct{})
	s.lastWrite[id] = done
	base := context.WithoutCancel(ctx)

	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(base, writeTimeout)
		defer cancel()

		policy := backoff.WithContext(
			backoff.WithMaxRetries(s.opts.BackOff(), uint64(s.opts.PersistAttempts-1)),
			ctx,
		)
		err := backoff.Retry(func() error {
			err := write(ctx)
			if errors.Is(err, queue.ErrNotFound) || errors.Is(err, queue.ErrInvalidStatus) {
				return backoff.Permanent(err)
			}
			return err
		}, policy)
		s.settle(gen, id, op, err)

		s.mu.Lock()
		if s.lastWrite[id] == done {
			delete(s.lastWrite, id)
		}
		s.mu.Unlock()
	}()
}

func (s *Session) settle(gen uint64, id, op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markers[id]
	if !ok || m.gen != gen {
		if err != nil {
			s.logger.Debug("superseded write failed",
				logging.String(logging.FieldLeadID, id), logging.String("op", op), logging.Error(err))
		}
		return
	}
	if err == nil {
		delete(s.markers, id)
		return
	}
	m.failed = true
	s.logger.Warn("status write failed",
		logging.String(logging.FieldLeadID, id), logging.String("op", op), logging.Error(err))
}

// Unconfirmed returns the ids whose latest write has not yet succeeded.
func (s *Session) Unconfirmed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.markers))
	for id := range s.markers {
		ids = append(ids, id)
	}
	return ids
}

// Reconcile undoes the local effect of every current write that failed:
// a failed decision or contact puts the lead back at the front of the queue,
// a failed undo re-applies the decision, and a failed restore reverts the
// counters. It returns the number of leads repaired.
func (s *Session) Reconcile() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	repaired := 0
	for id, m := range s.markers {
		if !m.failed {
			continue
		}
		switch m.kind {
		case opDecide:
			m.lead.Status = m.from
			s.pushFrontLocked(m.lead)
			s.dropHistoryLocked(m.gen)
			s.shiftCounterLocked(m.to, m.from)
		case opUndo:
			m.lead.Status = m.from
			s.removeLocked(id)
			s.history = append(s.history, historyEntry{lead: m.lead, action: m.from, gen: m.gen})
			s.shiftCounterLocked(m.to, m.from)
		case opRestore:
			s.shiftCounterLocked(m.to, m.from)
		case opContact:
			m.lead.Status = m.from
			if m.fromQueue {
				s.pushFrontLocked(m.lead)
			}
			s.shiftCounterLocked(m.to, m.from)
		}
		delete(s.markers, id)
		repaired++
		s.logger.Info("reconciled failed write", logging.String(logging.FieldLeadID, id))
	}
	if repaired > 0 && len(s.queue) > 0 {
		s.startLoopLocked()
	}
	return repaired
}

func (s *Session) dropHistoryLocked(gen uint64) {
	for i, entry := range s.history {
		if entry.gen == gen {
			s.history = append(s.history[:i], s.history[i+1:]...)
			return
		}
	}
}

// Wait blocks until every status write issued so far has finished.
func (s *Session) Wait() {
	s.writes.Wait()
}
