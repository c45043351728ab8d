package expense

import (
	"context"

	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/queue"
	"edwinliby/xpense-sync/internal/store"
)

// Sweep permanently deletes trashed transactions older than the retention
// window and propagates the deletes to the remote. It returns how many were
// removed.
func (s *Store) Sweep(ctx context.Context) int {
	s.mu.Lock()
	cutoff := s.clock().Add(-s.retention)
	var muts []mutation
	kept := s.trash[:0:0]
	for _, tx := range s.trash {
		if tx.DeletedAt != nil && tx.DeletedAt.Before(cutoff) {
			muts = append(muts, mut(queue.OpPermanentlyDeleteTransaction, queue.IDPayload{ID: tx.ID}))
			continue
		}
		kept = append(kept, tx)
	}
	if len(muts) == 0 {
		s.mu.Unlock()
		return 0
	}
	s.trash = kept
	s.persistLocked(ctx, store.KeyTrash)

	s.logger.Info("Expired trash swept",
		logging.F(logging.FieldJob, SweepJob),
		logging.F(logging.FieldCount, len(muts)))
	s.commitLocked(ctx, muts)
	return len(muts)
}
