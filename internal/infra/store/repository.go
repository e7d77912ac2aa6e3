package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"ai-answering-machine/internal/domain"
	"ai-answering-machine/internal/live"
)

// Repository is the CRUD surface shared by every collection. Rows are looked
// up by their task_id key; reads skip soft-deleted rows except Scan.
type Repository[R any, P record[R]] struct {
	store      *Store
	collection live.Collection
}

func newRepository[R any, P record[R]](s *Store, c live.Collection) *Repository[R, P] {
	return &Repository[R, P]{store: s, collection: c}
}

// Create stamps row with the current time and inserts it.
func (r *Repository[R, P]) Create(ctx context.Context, row P) (uint, error) {
	row.stamp(r.store.now())
	res := r.store.db.WithContext(ctx).Create(row)
	if res.Error != nil {
		return 0, fmt.Errorf("create %s: %w", r.collection, res.Error)
	}
	r.store.hub.Notify(r.collection)
	return row.rowID(), nil
}

// UpdateByKey merges fields into the first live row with key, bumps
// updated_at and clears is_deleted. A missing key is a no-op.
func (r *Repository[R, P]) UpdateByKey(ctx context.Context, key string, fields map[string]any) error {
	existing, err := r.FindByKey(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	values := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		values[k] = v
	}
	values["updated_at"] = r.store.now()
	values["is_deleted"] = false
	if err := r.store.db.WithContext(ctx).Model(existing).Updates(values).Error; err != nil {
		return fmt.Errorf("update %s: %w", r.collection, err)
	}
	r.store.hub.Notify(r.collection)
	return nil
}

// SoftDeleteByKey flags the first live row with key as deleted. updated_at
// is left untouched. A missing key is a no-op.
func (r *Repository[R, P]) SoftDeleteByKey(ctx context.Context, key string) error {
	existing, err := r.FindByKey(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := r.store.db.WithContext(ctx).Model(existing).UpdateColumn("is_deleted", true).Error; err != nil {
		return fmt.Errorf("soft delete %s: %w", r.collection, err)
	}
	r.store.hub.Notify(r.collection)
	return nil
}

// FindByKey returns the first non-deleted row with key or domain.ErrNotFound.
func (r *Repository[R, P]) FindByKey(ctx context.Context, key string) (P, error) {
	row := P(new(R))
	err := r.store.db.WithContext(ctx).
		Where("task_id = ? AND is_deleted = ?", key, false).
		Order("id ASC").
		First(row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", r.collection, err)
	}
	return row, nil
}

// ListAll returns non-deleted rows, newest first.
func (r *Repository[R, P]) ListAll(ctx context.Context) ([]R, error) {
	var rows []R
	err := r.store.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.collection, err)
	}
	return rows, nil
}

// Scan returns every row in insertion order, deleted or not.
func (r *Repository[R, P]) Scan(ctx context.Context) ([]R, error) {
	var rows []R
	if err := r.store.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("scan %s: %w", r.collection, err)
	}
	return rows, nil
}

// Subscribe returns the invalidation signal of the collection.
func (r *Repository[R, P]) Subscribe() (<-chan struct{}, func()) {
	return r.store.hub.Subscribe(r.collection)
}
