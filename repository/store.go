// Package repository is the generic GORM backed CRUD store shared by the
// controllers, including the soft delete lifecycle.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/deptcms/models"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrAlreadyTrashed = errors.New("record is already in trash")
	ErrNotTrashed     = errors.New("record is not in trash")
)

// Trashed selects how soft deleted rows appear in a listing.
type Trashed int

const (
	WithoutTrashed Trashed = iota
	WithTrashed
	OnlyTrashed
)

// ParseTrashed maps the "trashed" query parameter ("with", "only").
func ParseTrashed(s string) Trashed {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "with":
		return WithTrashed
	case "only":
		return OnlyTrashed
	}
	return WithoutTrashed
}

// ListQuery describes one page of a listing. SearchColumns and Order come
// from code, never from the request.
type ListQuery struct {
	Page          int
	PageSize      int
	Trashed       Trashed
	Search        string
	SearchColumns []string
	Order         string
	Preload       []string
}

// Page is one page of results.
type Page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// Scope narrows a query, e.g. to published posts.
type Scope = func(*gorm.DB) *gorm.DB

// PurgeHook runs inside the purge transaction before the row is removed.
type PurgeHook func(tx *gorm.DB, id uint) error

// Store is a CRUD store for model T. Every model it serves has an "id" column.
type Store[T any] struct {
	db      *gorm.DB
	onPurge []PurgeHook
}

// New returns a store for T.
func New[T any](db *gorm.DB, onPurge ...PurgeHook) *Store[T] {
	return &Store[T]{db: db, onPurge: onPurge}
}

// DB returns the session bound to ctx.
func (s *Store[T]) DB(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *Store[T]) trashedScope(tx *gorm.DB, t Trashed) *gorm.DB {
	switch t {
	case WithTrashed:
		return tx.Unscoped()
	case OnlyTrashed:
		return tx.Unscoped().Where("deleted_at IS NOT NULL")
	}
	return tx
}

// List returns one page of T.
func (s *Store[T]) List(ctx context.Context, q ListQuery, scopes ...Scope) (Page[T], error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = 10
	}
	tx := s.trashedScope(s.DB(ctx).Model(new(T)), q.Trashed)
	if len(scopes) > 0 {
		tx = tx.Scopes(scopes...)
	}
	if term := strings.TrimSpace(q.Search); term != "" && len(q.SearchColumns) > 0 {
		like := "%" + term + "%"
		parts := make([]string, 0, len(q.SearchColumns))
		args := make([]interface{}, 0, len(q.SearchColumns))
		for _, col := range q.SearchColumns {
			parts = append(parts, col+" LIKE ?")
			args = append(args, like)
		}
		tx = tx.Where("("+strings.Join(parts, " OR ")+")", args...)
	}

	out := Page[T]{Page: q.Page, PageSize: q.PageSize, Items: []T{}}
	if err := tx.Count(&out.Total).Error; err != nil {
		return out, fmt.Errorf("count: %w", err)
	}
	order := q.Order
	if order == "" {
		order = "id DESC"
	}
	for _, p := range q.Preload {
		tx = tx.Preload(p)
	}
	if err := tx.Order(order).Offset((q.Page - 1) * q.PageSize).Limit(q.PageSize).Find(&out.Items).Error; err != nil {
		return out, fmt.Errorf("list: %w", err)
	}
	return out, nil
}

// Find loads T by id. Trashed rows are only returned when withTrashed is set.
func (s *Store[T]) Find(ctx context.Context, id uint, withTrashed bool, preload ...string) (*T, error) {
	tx := s.DB(ctx)
	if withTrashed {
		tx = tx.Unscoped()
	}
	for _, p := range preload {
		tx = tx.Preload(p)
	}
	v := new(T)
	if err := tx.First(v, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// Create inserts v.
func (s *Store[T]) Create(ctx context.Context, v *T) error {
	return s.DB(ctx).Create(v).Error
}

// Save writes every column of v, leaving associations alone.
func (s *Store[T]) Save(ctx context.Context, v *T) error {
	return s.DB(ctx).Omit("CreatedAt", clause.Associations).Save(v).Error
}

// Replace overwrites the editable columns of the row with id from v. The
// id, creator and timestamps of the stored row are kept.
func (s *Store[T]) Replace(ctx context.Context, id uint, v *T) error {
	res := s.DB(ctx).Model(new(T)).Where("id = ?", id).
		Select("*").
		Omit("id", "created_by", "created_at", "deleted_at", clause.Associations).
		Updates(v)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Lifecycle reports the soft delete state of the row with id.
func (s *Store[T]) Lifecycle(ctx context.Context, id uint) (models.Lifecycle, error) {
	var deletedAt gorm.DeletedAt
	row := s.DB(ctx).Unscoped().Model(new(T)).Select("deleted_at").Where("id = ?", id).Row()
	if err := row.Scan(&deletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.LifecyclePurged, ErrNotFound
		}
		return "", err
	}
	return models.LifecycleOf(deletedAt), nil
}

// Trash soft deletes an active row.
func (s *Store[T]) Trash(ctx context.Context, id uint) error {
	state, err := s.Lifecycle(ctx, id)
	if err != nil {
		return err
	}
	if state == models.LifecycleTrashed {
		return ErrAlreadyTrashed
	}
	return s.DB(ctx).Delete(new(T), id).Error
}

// Restore brings a trashed row back.
func (s *Store[T]) Restore(ctx context.Context, id uint) error {
	state, err := s.Lifecycle(ctx, id)
	if err != nil {
		return err
	}
	if state != models.LifecycleTrashed {
		return ErrNotTrashed
	}
	return s.DB(ctx).Unscoped().Model(new(T)).Where("id = ?", id).Update("deleted_at", nil).Error
}

// Purge permanently removes a trashed row after running the purge hooks.
func (s *Store[T]) Purge(ctx context.Context, id uint) error {
	state, err := s.Lifecycle(ctx, id)
	if err != nil {
		return err
	}
	if state != models.LifecycleTrashed {
		return ErrNotTrashed
	}
	return s.DB(ctx).Transaction(func(tx *gorm.DB) error {
		for _, hook := range s.onPurge {
			if err := hook(tx, id); err != nil {
				return err
			}
		}
		return tx.Unscoped().Delete(new(T), id).Error
	})
}

// Delete removes a row outright. Used for models without soft delete.
func (s *Store[T]) Delete(ctx context.Context, id uint) error {
	res := s.DB(ctx).Unscoped().Delete(new(T), id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
