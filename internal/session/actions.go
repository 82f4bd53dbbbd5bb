package session

import (
	"context"
	"fmt"

	"leadswiper/internal/logging"
	"leadswiper/internal/queue"
)

// IsAction reports whether status is a review decision.
func IsAction(status queue.Status) bool {
	switch status {
	case queue.StatusApproved, queue.StatusRejected, queue.StatusSuperliked:
		return true
	default:
		return false
	}
}

// Decide records action for the queued lead id. The lead leaves the queue
// immediately and the status write runs in the background; a write that
// finally fails is repaired by Reconcile.
func (s *Session) Decide(ctx context.Context, id string, action queue.Status) error {
	if !IsAction(action) {
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	lead := s.removeLocked(id)
	if lead == nil {
		return fmt.Errorf("decide %s: %w", id, ErrNotQueued)
	}

	gen := s.nextGenLocked()
	s.history = append(s.history, historyEntry{lead: lead, action: action, gen: gen})
	if overflow := len(s.history) - s.opts.UndoDepth; overflow > 0 {
		s.history = append(s.history[:0:0], s.history[overflow:]...)
	}
	from := lead.Status
	if from == "" {
		from = queue.StatusPending
	}
	s.shiftCounterLocked(from, action)
	lead.Status = action

	s.markers[id] = &marker{gen: gen, kind: opDecide, lead: lead, from: from, to: action, fromQueue: true}
	s.persistLocked(ctx, gen, id, "decide", func(ctx context.Context) error {
		return s.store.SetStatus(ctx, id, action, s.opts.Now())
	})
	s.logger.Debug("lead decided", logging.String(logging.FieldLeadID, id), logging.String("action", string(action)))
	return nil
}

// DecideCurrent applies action to the lead at the front of the queue.
func (s *Session) DecideCurrent(ctx context.Context, action queue.Status) (*queue.Lead, error) {
	current := s.Current()
	if current == nil {
		return nil, ErrNotQueued
	}
	if err := s.Decide(ctx, current.ID, action); err != nil {
		return nil, err
	}
	return current, nil
}

// Undo reverts the most recent decision: the lead returns to the front of the
// queue and its stored status is reset to pending. The claim is not
// re-acquired. Undo reports false when there is nothing to undo.
func (s *Session) Undo(ctx context.Context) (*queue.Lead, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	if len(s.history) == 0 {
		return nil, false, nil
	}
	entry := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]

	lead := entry.lead
	lead.Status = queue.StatusPending
	s.pushFrontLocked(lead)
	s.shiftCounterLocked(entry.action, queue.StatusPending)

	gen := s.nextGenLocked()
	s.markers[lead.ID] = &marker{gen: gen, kind: opUndo, lead: lead, from: entry.action, to: queue.StatusPending}
	s.persistLocked(ctx, gen, lead.ID, "undo", func(ctx context.Context) error {
		return s.store.SetStatus(ctx, lead.ID, queue.StatusPending, s.opts.Now())
	})
	s.startLoopLocked()
	s.logger.Debug("decision undone", logging.String(logging.FieldLeadID, lead.ID), logging.String("action", string(entry.action)))
	return lead.Clone(), true, nil
}

// Restore moves a lead seen in a terminal-status list view back to pending.
// It bypasses the undo history and does not add the lead to the queue.
func (s *Session) Restore(ctx context.Context, lead *queue.Lead) error {
	if lead == nil {
		return fmt.Errorf("restore: %w", queue.ErrNotFound)
	}
	if !lead.Status.IsTerminal() {
		return fmt.Errorf("restore %s: lead is already %s", lead.ID, lead.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	restored := lead.Clone()
	from := restored.Status
	restored.Status = queue.StatusPending
	s.shiftCounterLocked(from, queue.StatusPending)

	gen := s.nextGenLocked()
	s.markers[restored.ID] = &marker{gen: gen, kind: opRestore, lead: restored, from: from, to: queue.StatusPending}
	s.persistLocked(ctx, gen, restored.ID, "restore", func(ctx context.Context) error {
		return s.store.SetStatus(ctx, restored.ID, queue.StatusPending, s.opts.Now())
	})
	return nil
}

// Contact marks lead as contacted with notes. A queued lead leaves the queue.
// Contacts are not undoable.
func (s *Session) Contact(ctx context.Context, lead *queue.Lead, notes string) error {
	if lead == nil {
		return fmt.Errorf("contact: %w", queue.ErrNotFound)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	target := s.removeLocked(lead.ID)
	fromQueue := target != nil
	if target == nil {
		target = lead.Clone()
	}
	from := target.Status
	if from == "" {
		from = queue.StatusPending
	}
	if from == queue.StatusContacted {
		return nil
	}
	s.shiftCounterLocked(from, queue.StatusContacted)
	target.Status = queue.StatusContacted
	target.Notes = notes

	id := target.ID
	gen := s.nextGenLocked()
	s.markers[id] = &marker{gen: gen, kind: opContact, lead: target, from: from, to: queue.StatusContacted, fromQueue: fromQueue}
	s.persistLocked(ctx, gen, id, "contact", func(ctx context.Context) error {
		return s.store.MarkContacted(ctx, id, notes, s.opts.Now())
	})
	return nil
}
