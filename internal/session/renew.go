package session

import (
	"context"
	"time"

	"leadswiper/internal/logging"
	"leadswiper/internal/queue"
)

// Tick runs one renewal round: it renews the claims on every pending lead in
// the queue and then reconciles failed writes. It reports whether the queue
// still holds pending leads.
func (s *Session) Tick(ctx context.Context) bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false
	}
	if ids, ok := s.renewalIDs(false); ok {
		s.renew(ctx, ids)
	}
	s.Reconcile()
	return s.hasPending()
}

// renewalIDs snapshots the pending ids. When fromLoop is set and nothing is
// pending, the loop is marked stopped in the same critical section so a
// concurrent Undo restarts it.
func (s *Session) renewalIDs(fromLoop bool) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		if fromLoop {
			s.loopRunning = false
		}
		return nil, false
	}
	ids := s.pendingIDsLocked()
	if len(ids) == 0 {
		if fromLoop {
			s.loopRunning = false
		}
		return nil, false
	}
	return ids, true
}

func (s *Session) renew(ctx context.Context, ids []string) {
	s.claims.Renew(ctx, ids, s.opts.Worker, s.opts.Now())
	s.logger.Debug("claims renewed", logging.Int(logging.FieldCount, len(ids)))
}

func (s *Session) hasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingIDsLocked()) > 0
}

func (s *Session) pendingIDsLocked() []string {
	ids := make([]string, 0, len(s.queue))
	for _, lead := range s.queue {
		if lead.Status == queue.StatusPending || lead.Status == "" {
			ids = append(ids, lead.ID)
		}
	}
	return ids
}

// LoopRunning reports whether the renewal loop is active.
func (s *Session) LoopRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loopRunning
}

func (s *Session) startLoopLocked() {
	if s.loopRunning || s.closed || s.opts.RenewInterval <= 0 {
		return
	}
	s.loopRunning = true
	go s.renewLoop(s.lifecycle, s.opts.RenewInterval)
}

func (s *Session) renewLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.loopRunning = false
			s.mu.Unlock()
			return
		case <-ticker.C:
			ids, ok := s.renewalIDs(true)
			if !ok {
				s.logger.Debug("renewal loop stopped")
				return
			}
			s.renew(ctx, ids)
			s.Reconcile()
		}
	}
}

// Teardown ends the session: the renewal loop stops and every claim held by
// the worker is released through the teardown transport without waiting for
// the outcome. Later calls are no-ops.
func (s *Session) Teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	held := len(s.queue)
	s.mu.Unlock()

	s.stop()
	if s.transport != nil {
		s.transport.ReleaseAll(s.opts.Worker)
	}
	s.logger.Info("session torn down", logging.Int(logging.FieldCount, held))
}
