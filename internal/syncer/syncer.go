// Package syncer replays queued operations against the remote store.
package syncer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/models"
	"edwinliby/xpense-sync/internal/queue"
	"edwinliby/xpense-sync/internal/remote"
)

// DrainResult summarizes one Drain call.
type DrainResult struct {
	Attempted int
	Succeeded int
	Failed    int
	// Retained counts operations left in the queue, including those held back
	// behind a failed operation for the same entity.
	Retained int
	// Skipped is true when another drain was already running.
	Skipped bool
	// Interrupted is true when the queue switched to another identity
	// mid-drain. Retained is zero then.
	Interrupted bool
}

// Synchronizer translates operations into remote calls.
type Synchronizer struct {
	backend remote.Backend
	logger  logging.Logger
	timeout time.Duration

	draining atomic.Bool
}

// New creates a Synchronizer. A zero timeout leaves remote calls bounded only
// by the caller's context.
func New(backend remote.Backend, logger logging.Logger, timeout time.Duration) *Synchronizer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Synchronizer{backend: backend, logger: logger, timeout: timeout}
}

// Draining reports whether a drain is in flight.
func (s *Synchronizer) Draining() bool {
	return s.draining.Load()
}

// Apply performs the single remote call that corresponds to op.
func (s *Synchronizer) Apply(ctx context.Context, owner string, op queue.Operation) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	switch op.Type {
	case queue.OpAddTransaction:
		tx, err := DecodeTransaction(op)
		if err != nil {
			return err
		}
		return s.backend.InsertTransaction(ctx, owner, tx)

	case queue.OpUpdateTransaction, queue.OpDeleteTransaction, queue.OpRestoreTransaction:
		// Soft delete and restore only move deletedAt; the row stays.
		tx, err := DecodeTransaction(op)
		if err != nil {
			return err
		}
		return s.backend.UpdateTransaction(ctx, owner, tx)

	case queue.OpPermanentlyDeleteTransaction:
		var p queue.IDPayload
		if err := op.Decode(&p); err != nil {
			return err
		}
		return s.backend.DeleteTransaction(ctx, owner, p.ID)

	case queue.OpAddCategory:
		c, err := DecodeCategory(op)
		if err != nil {
			return err
		}
		return s.backend.InsertCategory(ctx, owner, c)

	case queue.OpUpdateCategory:
		c, err := DecodeCategory(op)
		if err != nil {
			return err
		}
		return s.backend.UpdateCategory(ctx, owner, c)

	case queue.OpDeleteCategory:
		var p queue.IDPayload
		if err := op.Decode(&p); err != nil {
			return err
		}
		return s.backend.DeleteCategory(ctx, owner, p.ID)

	case queue.OpSetBudget, queue.OpSetIncome, queue.OpSetIncomeStartDate,
		queue.OpSetCurrency, queue.OpDismissWarning:
		key, _ := SettingKey(op.Type)
		return s.backend.UpsertSetting(ctx, owner, key, rawPayload(op))

	case queue.OpUpdateAchievements:
		var achievements []models.Achievement
		if err := op.Decode(&achievements); err != nil {
			return err
		}
		return s.backend.UpsertAchievements(ctx, owner, achievements)
	}
	return fmt.Errorf("unknown operation type %q", op.Type)
}

// Drain replays the queue in order. Only one drain runs at a time; a call made
// while another is in flight returns immediately with Skipped set.
//
// Within a pass, once an operation fails every later operation for the same
// entity is held back so that entity's effects stay in order. Operations for
// other entities still run. Passes repeat while they make progress, which also
// picks up operations enqueued during the drain.
func (s *Synchronizer) Drain(ctx context.Context, owner string, q *queue.Queue) DrainResult {
	return s.DrainAt(ctx, owner, q, q.Epoch())
}

// DrainAt is Drain bound to the queue epoch that belongs to owner. The drain
// stops as soon as the queue is Reset to another namespace, so operations of
// one identity are never replayed under another.
func (s *Synchronizer) DrainAt(ctx context.Context, owner string, q *queue.Queue, epoch uint64) DrainResult {
	if !s.draining.CompareAndSwap(false, true) {
		s.logger.Debug("Drain already in progress, skipping")
		return DrainResult{Skipped: true}
	}

	start := time.Now()
	var res DrainResult
	for {
		stalled := s.passes(ctx, owner, q, epoch, &res)
		s.draining.Store(false)
		// An operation appended after the last empty snapshot saw this drain
		// running and did not start its own.
		if stalled || ctx.Err() != nil || q.Epoch() != epoch || q.Len() == 0 {
			break
		}
		if !s.draining.CompareAndSwap(false, true) {
			break
		}
	}
	if ops, ok := q.SnapshotAt(epoch); ok {
		res.Retained = len(ops)
	} else {
		res.Interrupted = true
		s.logger.Info("Identity changed, drain stopped", logging.F(logging.FieldOwner, owner))
	}

	s.logger.Info("Queue drained",
		logging.F(logging.FieldOwner, owner),
		logging.F("succeeded", res.Succeeded),
		logging.F("failed", res.Failed),
		logging.F("retained", res.Retained),
		logging.F(logging.FieldDuration, time.Since(start).Milliseconds()))
	return res
}

// passes runs drain passes until the queue is empty or a pass stalls. It
// reports true when the drain stopped on a failure, a pass without progress,
// a cancelled context or a Reset.
func (s *Synchronizer) passes(ctx context.Context, owner string, q *queue.Queue, epoch uint64, res *DrainResult) bool {
	for ctx.Err() == nil {
		ops, ok := q.SnapshotAt(epoch)
		if !ok {
			return true
		}
		if len(ops) == 0 {
			return false
		}
		blocked := make(map[string]bool)
		var done []string
		failedThisPass := 0
		for _, op := range ops {
			if ctx.Err() != nil || q.Epoch() != epoch {
				break
			}
			if blocked[op.Entity] {
				continue
			}
			res.Attempted++
			if err := s.Apply(ctx, owner, op); err != nil {
				res.Failed++
				failedThisPass++
				blocked[op.Entity] = true
				s.logger.WithError(err).Warn("Remote apply failed, operation retained",
					logging.Op(op.ID, op.Type, op.Entity)...)
				continue
			}
			res.Succeeded++
			done = append(done, op.ID)
		}
		if !q.RemoveAt(ctx, epoch, done...) {
			return true
		}
		if len(done) == 0 || failedThisPass > 0 {
			return true
		}
	}
	return true
}
