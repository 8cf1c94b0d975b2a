package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type Category struct {
	ID         int64
	Name       string
	Emoji      string
	SpecFields []string
}

// Label is the display form used in rendered posts.
func (c Category) Label() string {
	return strings.TrimSpace(c.Emoji + " " + c.Name)
}

type ShopAddress struct {
	ID      int64
	Name    string
	Address string
}

type Template struct {
	ID         int64
	CategoryID int64
	Name       string
	Body       string
	IsDefault  bool
}

func (s *Storage) AddCategory(ctx context.Context, name, emoji string) (int64, error) {
	query := `INSERT INTO categories (name, emoji, created_at) VALUES (?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, name, emoji, s.now().Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Storage) GetCategory(ctx context.Context, id int64) (*Category, error) {
	var c Category
	query := `SELECT id, name, emoji FROM categories WHERE id = ?`
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.Emoji); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	fields, err := s.categorySpecFields(ctx, id)
	if err != nil {
		return nil, err
	}
	c.SpecFields = fields
	return &c, nil
}

func (s *Storage) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, emoji FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Emoji); err != nil {
			rows.Close()
			return nil, err
		}
		categories = append(categories, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range categories {
		fields, err := s.categorySpecFields(ctx, categories[i].ID)
		if err != nil {
			return nil, err
		}
		categories[i].SpecFields = fields
	}
	return categories, nil
}

func (s *Storage) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Storage) categorySpecFields(ctx context.Context, categoryID int64) ([]string, error) {
	query := `SELECT name FROM category_specs WHERE category_id = ? ORDER BY position, id`
	rows, err := s.db.QueryContext(ctx, query, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		fields = append(fields, name)
	}
	return fields, rows.Err()
}

// AddCategorySpec appends a spec field to the end of the category's field list.
func (s *Storage) AddCategorySpec(ctx context.Context, categoryID int64, name string) (int64, error) {
	query := `INSERT INTO category_specs (category_id, name, position)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM category_specs WHERE category_id = ?))`
	res, err := s.db.ExecContext(ctx, query, categoryID, name, categoryID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Storage) DeleteCategorySpec(ctx context.Context, categoryID int64, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM category_specs WHERE category_id = ? AND name = ?`, categoryID, name)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Storage) AddShopAddress(ctx context.Context, name, address string) (int64, error) {
	query := `INSERT INTO shop_addresses (name, address, created_at) VALUES (?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, name, address, s.now().Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Storage) GetShopAddress(ctx context.Context, id int64) (*ShopAddress, error) {
	var a ShopAddress
	query := `SELECT id, name, address FROM shop_addresses WHERE id = ?`
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.Name, &a.Address); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *Storage) ListShopAddresses(ctx context.Context) ([]ShopAddress, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, address FROM shop_addresses ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addresses []ShopAddress
	for rows.Next() {
		var a ShopAddress
		if err := rows.Scan(&a.ID, &a.Name, &a.Address); err != nil {
			return nil, err
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

func (s *Storage) DeleteShopAddress(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM shop_addresses WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddTemplate stores a new template. When isDefault is set, every other
// template of the category loses its default flag in the same transaction.
func (s *Storage) AddTemplate(ctx context.Context, categoryID int64, name, body string, isDefault bool) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if isDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE post_templates SET is_default = FALSE WHERE category_id = ?`, categoryID); err != nil {
			return 0, err
		}
	}
	query := `INSERT INTO post_templates (category_id, name, body, is_default, created_at) VALUES (?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, query, categoryID, name, body, isDefault, s.now().Unix())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func scanTemplate(row rowScanner) (*Template, error) {
	var t Template
	if err := row.Scan(&t.ID, &t.CategoryID, &t.Name, &t.Body, &t.IsDefault); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Storage) GetTemplate(ctx context.Context, id int64) (*Template, error) {
	query := `SELECT id, category_id, name, body, is_default FROM post_templates WHERE id = ?`
	t, err := scanTemplate(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// GetDefaultTemplate returns the category's default template, or ErrNotFound
// when the category has none.
func (s *Storage) GetDefaultTemplate(ctx context.Context, categoryID int64) (*Template, error) {
	query := `SELECT id, category_id, name, body, is_default FROM post_templates
		WHERE category_id = ? AND is_default = TRUE ORDER BY id LIMIT 1`
	t, err := scanTemplate(s.db.QueryRowContext(ctx, query, categoryID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *Storage) ListTemplates(ctx context.Context, categoryID int64) ([]Template, error) {
	query := `SELECT id, category_id, name, body, is_default FROM post_templates
		WHERE category_id = ? ORDER BY is_default DESC, id`
	rows, err := s.db.QueryContext(ctx, query, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// SetDefaultTemplate makes the template the only default of its category.
func (s *Storage) SetDefaultTemplate(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var categoryID int64
	if err := tx.QueryRowContext(ctx, `SELECT category_id FROM post_templates WHERE id = ?`, id).Scan(&categoryID); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}
	query := `UPDATE post_templates SET is_default = (id = ?) WHERE category_id = ?`
	if _, err := tx.ExecContext(ctx, query, id, categoryID); err != nil {
		return fmt.Errorf("set default template %d: %w", id, err)
	}
	return tx.Commit()
}

func (s *Storage) DeleteTemplate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM post_templates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}
