// Package catalog implements the lookup-entity registry: categories,
// directors and streaming platforms are name-keyed rows created lazily on
// first use via a shared dedup-insert helper.
package catalog

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jkivisto/watchlog/lib/apperr"
	"github.com/jkivisto/watchlog/models"
	"gorm.io/gorm"
)

// Registry resolves and lazily creates catalog lookup entities.
type Registry struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRegistry(db *gorm.DB, logger *slog.Logger) *Registry {
	return &Registry{db: db, logger: logger}
}

// Selection mirrors the add/edit form: the user either picks an existing
// entity by id or types a new name. When both are present the new name
// wins and goes through get-or-create.
type Selection struct {
	ID      uint
	NewName string
}

// named is implemented by the lookup entity models.
type named interface {
	GetID() uint
	GetName() string
	SetName(string)
}

// getOrCreate is the dedup-insert helper: it inserts optimistically and,
// on a uniqueness violation, falls back to a case-insensitive scan of the
// existing rows. This avoids a read-before-write race under the app's
// single-writer assumption; it is NOT safe under true concurrent writers
// without a serializing transaction.
func getOrCreate[T any, P interface {
	*T
	named
}](ctx context.Context, db *gorm.DB, name string) (uint, error) {
	var entity T
	p := P(&entity)
	p.SetName(name)

	err := db.WithContext(ctx).Create(p).Error
	if err == nil {
		return p.GetID(), nil
	}
	if !apperr.IsDuplicateError(err) {
		return 0, apperr.Wrap(apperr.TypeInternal, "failed to create catalog entity", err)
	}

	var existing []T
	if err := db.WithContext(ctx).Find(&existing).Error; err != nil {
		return 0, apperr.Wrap(apperr.TypeInternal, "failed to scan catalog entities", err)
	}
	for i := range existing {
		q := P(&existing[i])
		if strings.EqualFold(q.GetName(), name) {
			return q.GetID(), nil
		}
	}

	// Insert failed on uniqueness but no row matches: only reachable when
	// a concurrent writer deleted the row between the two statements,
	// which the single-writer model rules out.
	return 0, apperr.Conflict("catalog entity exists but could not be resolved: " + name)
}

// resolve applies the selection precedence: a typed new name is resolved
// or created first; otherwise a numeric id passes through untouched; a
// blank selection means "no selection" and yields a nil id.
func resolve[T any, P interface {
	*T
	named
}](ctx context.Context, db *gorm.DB, sel Selection) (*uint, error) {
	name := strings.TrimSpace(sel.NewName)
	if name != "" {
		id, err := getOrCreate[T, P](ctx, db, name)
		if err != nil {
			return nil, err
		}
		return &id, nil
	}
	if sel.ID != 0 {
		id := sel.ID
		return &id, nil
	}
	return nil, nil
}

// ResolveCategory resolves a category selection to an id, creating the
// category when a new name was typed.
func (r *Registry) ResolveCategory(ctx context.Context, sel Selection) (*uint, error) {
	return resolve[models.Category](ctx, r.db, sel)
}

// ResolveDirector resolves a director selection to an id.
func (r *Registry) ResolveDirector(ctx context.Context, sel Selection) (*uint, error) {
	return resolve[models.Director](ctx, r.db, sel)
}

// ResolvePlatform resolves a streaming-platform selection to an id.
func (r *Registry) ResolvePlatform(ctx context.Context, sel Selection) (*uint, error) {
	return resolve[models.StreamingPlatform](ctx, r.db, sel)
}

// Categories lists all categories ordered by name, for form dropdowns.
func (r *Registry) Categories(ctx context.Context) ([]models.Category, error) {
	var items []models.Category
	if err := r.db.WithContext(ctx).Order("name").Find(&items).Error; err != nil {
		return nil, apperr.Wrap(apperr.TypeInternal, "failed to list categories", err)
	}
	return items, nil
}

// Directors lists all directors ordered by name.
func (r *Registry) Directors(ctx context.Context) ([]models.Director, error) {
	var items []models.Director
	if err := r.db.WithContext(ctx).Order("name").Find(&items).Error; err != nil {
		return nil, apperr.Wrap(apperr.TypeInternal, "failed to list directors", err)
	}
	return items, nil
}

// Platforms lists all streaming platforms ordered by name.
func (r *Registry) Platforms(ctx context.Context) ([]models.StreamingPlatform, error) {
	var items []models.StreamingPlatform
	if err := r.db.WithContext(ctx).Order("name").Find(&items).Error; err != nil {
		return nil, apperr.Wrap(apperr.TypeInternal, "failed to list streaming platforms", err)
	}
	return items, nil
}
