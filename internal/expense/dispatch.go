package expense

import (
	"context"

	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/queue"
	"edwinliby/xpense-sync/internal/syncer"
)

// mutation is a remote effect waiting to be dispatched.
type mutation struct {
	op      queue.OpType
	payload interface{}
}

func mut(op queue.OpType, payload interface{}) mutation {
	return mutation{op: op, payload: payload}
}

// commitLocked is called with s.mu held after phase one. It releases s.mu and
// sends muts to the remote in order. Holding dispatchMu across the hand-off
// keeps remote effects in the same order as local ones.
func (s *Store) commitLocked(ctx context.Context, muts []mutation) {
	owner := s.owner
	s.dispatchMu.Lock()
	s.mu.Unlock()
	defer s.dispatchMu.Unlock()
	s.dispatch(ctx, owner, muts)
}

// dispatch calls the remote directly when online, the queue is empty and no
// drain is running. Otherwise, or after a failed direct call, operations are
// queued. Anonymous sessions are local only.
func (s *Store) dispatch(ctx context.Context, owner string, muts []mutation) {
	if owner == "" || s.syncer == nil || len(muts) == 0 {
		return
	}
	online := !s.monitor.IsOffline()
	queued := false
	for _, m := range muts {
		op, err := s.queue.Prepare(m.op, m.payload)
		if err != nil {
			s.logger.WithError(err).Error("Failed to build operation",
				logging.F(logging.FieldOpType, m.op))
			continue
		}
		if online && !queued && s.queue.Len() == 0 && !s.syncer.Draining() {
			err := s.syncer.Apply(ctx, owner, op)
			if err == nil {
				continue
			}
			s.logger.WithError(err).Warn("Remote call failed, operation queued",
				logging.Op(op.ID, op.Type, op.Entity)...)
			online = false
		}
		s.queue.Append(ctx, op)
		queued = true
	}
	// Ops queued behind a drain or a non-empty queue while online are picked
	// up by a fresh drain. After a direct failure the retry job takes over.
	if queued && online {
		s.kickDrain()
	}
}

// kickDrain starts a background drain bound to the current session.
func (s *Store) kickDrain() {
	s.lifeMu.Lock()
	closed := s.closed
	if !closed {
		s.drains.Add(1)
	}
	s.lifeMu.Unlock()
	if closed {
		return
	}
	s.mu.RLock()
	ctx := s.sessionCtx
	s.mu.RUnlock()
	go func() {
		defer s.drains.Done()
		s.Drain(ctx)
	}()
}

// Drain replays the queue for the current owner. It does nothing while
// offline or anonymous. The drain is bound to the owner's queue epoch and
// stops if the identity changes underneath it.
func (s *Store) Drain(ctx context.Context) syncer.DrainResult {
	s.mu.RLock()
	owner := s.owner
	epoch := s.queue.Epoch()
	s.mu.RUnlock()
	if owner == "" || s.syncer == nil {
		return syncer.DrainResult{}
	}
	if s.monitor.IsOffline() {
		s.logger.Debug("Offline, drain postponed", logging.F(logging.FieldCount, s.queue.Len()))
		return syncer.DrainResult{Retained: s.queue.Len()}
	}
	res := s.syncer.DrainAt(ctx, owner, s.queue, epoch)
	if res.Interrupted {
		// The new identity's drain was skipped while this one held the guard.
		s.kickDrain()
	}
	return res
}

// WaitDrains blocks until background drains started so far have finished.
func (s *Store) WaitDrains() {
	s.drains.Wait()
}
