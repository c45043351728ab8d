package expense

import (
	"context"
	"strings"

	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/models"
	"edwinliby/xpense-sync/internal/queue"
	"edwinliby/xpense-sync/internal/store"
	"edwinliby/xpense-sync/internal/syncerror"
)

func (s *Store) categoryIndexLocked(id string) int {
	for i := range s.categories {
		if s.categories[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) nameTakenLocked(name, exceptID string) bool {
	for _, c := range s.categories {
		if c.ID != exceptID && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// AddCategory creates a user category. Names are unique ignoring case.
func (s *Store) AddCategory(ctx context.Context, in models.Category) (models.Category, error) {
	c := in
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return models.Category{}, syncerror.NewValidationError("name", "must not be empty")
	}
	if c.ID == "" {
		c.ID = s.newID()
	}
	c.IsPredefined = false

	s.mu.Lock()
	if s.nameTakenLocked(c.Name, "") {
		s.mu.Unlock()
		return models.Category{}, syncerror.ErrDuplicateCategory
	}
	if s.categoryIndexLocked(c.ID) >= 0 {
		s.mu.Unlock()
		return models.Category{}, syncerror.NewValidationError("id", "already exists")
	}
	s.categories = append(s.categories, c)
	s.persistLocked(ctx, store.KeyCategories)

	s.logger.Info("Category added", logging.F(logging.FieldCategory, c.Name))
	s.commitLocked(ctx, []mutation{mut(queue.OpAddCategory, c)})
	return c, nil
}

// UpdateCategory changes a category's name, icon or color. A rename is
// carried over to every transaction that referenced the old name.
func (s *Store) UpdateCategory(ctx context.Context, in models.Category) (models.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Category{}, syncerror.NewValidationError("name", "must not be empty")
	}

	s.mu.Lock()
	i := s.categoryIndexLocked(in.ID)
	if i < 0 {
		s.mu.Unlock()
		return models.Category{}, syncerror.ErrNotFound
	}
	if s.nameTakenLocked(name, in.ID) {
		s.mu.Unlock()
		return models.Category{}, syncerror.ErrDuplicateCategory
	}
	prev := s.categories[i]
	c := in
	c.Name = name
	c.IsPredefined = prev.IsPredefined
	s.categories[i] = c

	// Predefined categories only exist remotely once edited, so they are
	// written with an insert, which overwrites.
	opType := queue.OpUpdateCategory
	if c.IsPredefined {
		opType = queue.OpAddCategory
	}
	muts := []mutation{mut(opType, c)}

	keys := []string{store.KeyCategories}
	if prev.Name != c.Name {
		renamed := 0
		for _, list := range [][]models.Transaction{s.transactions, s.trash} {
			for j := range list {
				if list[j].Category != prev.Name {
					continue
				}
				list[j].Category = c.Name
				muts = append(muts, mut(queue.OpUpdateTransaction, list[j]))
				renamed++
			}
		}
		if renamed > 0 {
			keys = append(keys, txKeys...)
		}
		s.logger.Info("Category renamed",
			logging.F(logging.FieldCategory, c.Name),
			logging.F("previous", prev.Name),
			logging.F(logging.FieldCount, renamed))
	}
	s.persistLocked(ctx, keys...)
	s.commitLocked(ctx, muts)
	return c, nil
}

// DeleteCategory removes a user category. Transactions keep the name.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.categoryIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return syncerror.ErrNotFound
	}
	if s.categories[i].IsPredefined {
		s.mu.Unlock()
		return syncerror.ErrPredefinedCategory
	}
	name := s.categories[i].Name
	s.categories = append(s.categories[:i:i], s.categories[i+1:]...)
	s.persistLocked(ctx, store.KeyCategories)

	s.logger.Info("Category deleted", logging.F(logging.FieldCategory, name))
	s.commitLocked(ctx, []mutation{mut(queue.OpDeleteCategory, queue.IDPayload{ID: id})})
	return nil
}
