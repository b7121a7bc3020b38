package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"statement-reconciliation-service/internal/models"
)

// CategoryRepo reads and writes categories. Names are not unique; lookups
// by name return the first row ordered by name then id.
type CategoryRepo struct {
	db querier
}

// NewCategoryRepo binds a CategoryRepo to db or an open transaction
func NewCategoryRepo(db querier) *CategoryRepo {
	return &CategoryRepo{db: db}
}

// List returns the owner's categories ordered by name, id
func (r *CategoryRepo) List(ctx context.Context, ownerID string) ([]*models.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, owner_id, name, type, color
		FROM categories WHERE owner_id = ? ORDER BY name, id`, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "query categories")
	}
	defer rows.Close()

	var out []*models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Type, &c.Color); err != nil {
			return nil, errors.Wrap(err, "scan category")
		}
		out = append(out, &c)
	}
	return out, errors.Wrap(rows.Err(), "iterate categories")
}

// Names maps category id to name for the owner
func (r *CategoryRepo) Names(ctx context.Context, ownerID string) (map[string]string, error) {
	cats, err := r.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names, nil
}

// FindByName returns the first category with the given name
func (r *CategoryRepo) FindByName(ctx context.Context, ownerID, name string) (*models.Category, error) {
	var c models.Category
	err := r.db.QueryRowContext(ctx, `SELECT id, owner_id, name, type, color
		FROM categories WHERE owner_id = ? AND name = ?
		ORDER BY name, id LIMIT 1`, ownerID, name).Scan(&c.ID, &c.OwnerID, &c.Name, &c.Type, &c.Color)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "category %q", name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "find category")
	}
	return &c, nil
}

// Insert adds one category
func (r *CategoryRepo) Insert(ctx context.Context, c *models.Category) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO categories (id, owner_id, name, type, color, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, c.ID, c.OwnerID, c.Name, string(c.Type), c.Color, formatTime(Now()))
	return errors.Wrapf(err, "insert category %q", c.Name)
}

// Ensure returns the category called name, creating it with typ when the
// owner has none. The bool reports whether a row was created.
func (r *CategoryRepo) Ensure(ctx context.Context, ownerID, name string, typ models.CategoryType) (*models.Category, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, errors.New("category name cannot be empty")
	}

	c, err := r.FindByName(ctx, ownerID, name)
	if err == nil {
		return c, false, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return nil, false, err
	}

	c = &models.Category{OwnerID: ownerID, Name: name, Type: typ}
	if err := r.Insert(ctx, c); err != nil {
		return nil, false, err
	}
	return c, true, nil
}
