package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound = errors.New("storage: record not found")
	// ErrStaleStatus is returned by conditional status updates when the stored
	// status no longer matches the expected one.
	ErrStaleStatus = errors.New("storage: listing status changed concurrently")
)

type Storage struct {
	db  *sql.DB
	now func() time.Time
}

func NewStorage(dbPath string) (*Storage, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// A single connection serialises writers; SQLite would otherwise answer
	// concurrent status updates with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	s := &Storage{db: db, now: time.Now}
	if err = s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize database schema: %w", err)
	}
	if err = s.seedDefaults(); err != nil {
		return nil, fmt.Errorf("could not seed default data: %w", err)
	}
	return s, nil
}

func (s *Storage) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			emoji TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS category_specs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			category_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY(category_id) REFERENCES categories(id) ON DELETE CASCADE,
			UNIQUE(category_id, name)
		);`,

		`CREATE TABLE IF NOT EXISTS shop_addresses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			address TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS post_templates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			category_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			body TEXT NOT NULL,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			created_at INTEGER NOT NULL,
			FOREIGN KEY(category_id) REFERENCES categories(id) ON DELETE CASCADE
		);`,

		`CREATE TABLE IF NOT EXISTS listings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			submitter_id INTEGER NOT NULL,
			category_id INTEGER NOT NULL,
			product_name TEXT NOT NULL,
			specs TEXT NOT NULL DEFAULT '{}',
			photos TEXT NOT NULL DEFAULT '[]',
			external_link TEXT NOT NULL,
			price TEXT NOT NULL DEFAULT '',
			external_id TEXT NOT NULL DEFAULT '',
			shop_address TEXT NOT NULL DEFAULT '',
			contact_link TEXT NOT NULL DEFAULT '',
			rendered_body TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			scheduled_at INTEGER,
			delivery_attempts INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,

		`CREATE INDEX IF NOT EXISTS idx_listings_status_scheduled ON listings(status, scheduled_at);`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			if !strings.Contains(err.Error(), "already exists") {
				return fmt.Errorf("schema execution failed for query '%s': %w", query, err)
			}
		}
	}
	return nil
}

type defaultCategory struct {
	name  string
	emoji string
	specs []string
}

var defaultCategories = []defaultCategory{
	{"Смартфон (Android)", "📱", []string{"Память", "Оперативная память", "Процессор", "Экран", "Камера", "Аккумулятор", "Цвет", "Состояние"}},
	{"Смартфон (Apple)", "🍎", []string{"Память", "Процессор", "Экран", "Камера", "Аккумулятор", "Цвет", "Состояние"}},
	{"Ноутбук", "💻", []string{"Процессор", "Оперативная память", "Накопитель", "Видеокарта", "Экран", "Состояние"}},
	{"ПК", "🖥️", []string{"Процессор", "Оперативная память", "Накопитель", "Видеокарта", "Блок питания", "Состояние"}},
	{"Другая техника", "🔧", []string{"Модель", "Состояние", "Комплектация"}},
}

var defaultShopAddresses = [][2]string{
	{"Главный магазин", "г. Москва, ул. Примерная, д. 1"},
	{"Филиал 1", "г. Санкт-Петербург, пр. Невский, д. 10"},
}

func (s *Storage) seedDefaults() error {
	ctx := context.Background()

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM categories`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		for _, c := range defaultCategories {
			id, err := s.AddCategory(ctx, c.name, c.emoji)
			if err != nil {
				return fmt.Errorf("seed category %q: %w", c.name, err)
			}
			for _, spec := range c.specs {
				if _, err := s.AddCategorySpec(ctx, id, spec); err != nil {
					return fmt.Errorf("seed spec %q: %w", spec, err)
				}
			}
		}
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM shop_addresses`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		for _, a := range defaultShopAddresses {
			if _, err := s.AddShopAddress(ctx, a[0], a[1]); err != nil {
				return fmt.Errorf("seed shop address %q: %w", a[0], err)
			}
		}
	}
	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}
