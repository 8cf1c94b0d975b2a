package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	// StatusPublishing marks a listing claimed by exactly one publisher.
	StatusPublishing Status = "publishing"
	StatusRejected   Status = "rejected"
	StatusPublished  Status = "published"
)

// MaxPhotos is the most photos a listing may carry.
const MaxPhotos = 12

type Listing struct {
	ID           int64
	SubmitterID  int64
	CategoryID   int64
	ProductName  string
	Specs        map[string]string
	Photos       []string
	ExternalLink string

	// Optional attributes; empty means not provided.
	Price       string
	ExternalID  string
	ShopAddress string
	ContactLink string

	RenderedBody     string
	Status           Status
	ScheduledAt      *time.Time
	DeliveryAttempts int
	CreatedAt        time.Time
}

const listingColumns = `id, submitter_id, category_id, product_name, specs, photos, external_link,
	price, external_id, shop_address, contact_link, rendered_body, status, scheduled_at,
	delivery_attempts, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*Listing, error) {
	var l Listing
	var specsJSON, photosJSON, status string
	var scheduledAt sql.NullInt64
	var createdAt int64
	err := row.Scan(
		&l.ID, &l.SubmitterID, &l.CategoryID, &l.ProductName, &specsJSON, &photosJSON, &l.ExternalLink,
		&l.Price, &l.ExternalID, &l.ShopAddress, &l.ContactLink, &l.RenderedBody, &status, &scheduledAt,
		&l.DeliveryAttempts, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(specsJSON), &l.Specs); err != nil {
		return nil, fmt.Errorf("decode specs of listing %d: %w", l.ID, err)
	}
	if err := json.Unmarshal([]byte(photosJSON), &l.Photos); err != nil {
		return nil, fmt.Errorf("decode photos of listing %d: %w", l.ID, err)
	}
	if l.Specs == nil {
		l.Specs = map[string]string{}
	}
	l.Status = Status(status)
	if scheduledAt.Valid {
		t := time.Unix(scheduledAt.Int64, 0)
		l.ScheduledAt = &t
	}
	l.CreatedAt = time.Unix(createdAt, 0)
	return &l, nil
}

func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func (s *Storage) CreateListing(ctx context.Context, l *Listing) (int64, error) {
	if len(l.Photos) > MaxPhotos {
		return 0, fmt.Errorf("listing has %d photos, limit is %d", len(l.Photos), MaxPhotos)
	}
	specs := l.Specs
	if specs == nil {
		specs = map[string]string{}
	}
	photos := l.Photos
	if photos == nil {
		photos = []string{}
	}
	specsJSON, err := json.Marshal(specs)
	if err != nil {
		return 0, err
	}
	photosJSON, err := json.Marshal(photos)
	if err != nil {
		return 0, err
	}
	status := l.Status
	if status == "" {
		status = StatusPending
	}
	createdAt := s.now()

	query := `INSERT INTO listings (submitter_id, category_id, product_name, specs, photos, external_link,
		price, external_id, shop_address, contact_link, rendered_body, status, scheduled_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		l.SubmitterID, l.CategoryID, l.ProductName, string(specsJSON), string(photosJSON), l.ExternalLink,
		l.Price, l.ExternalID, l.ShopAddress, l.ContactLink, l.RenderedBody, string(status),
		nullableUnix(l.ScheduledAt), createdAt.Unix(),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	l.ID = id
	l.Status = status
	l.CreatedAt = time.Unix(createdAt.Unix(), 0)
	return id, nil
}

func (s *Storage) GetListing(ctx context.Context, id int64) (*Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = ?`
	l, err := scanListing(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

func (s *Storage) queryListings(ctx context.Context, query string, args ...any) ([]*Listing, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []*Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (s *Storage) ListListingsByStatus(ctx context.Context, status Status) ([]*Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE status = ? ORDER BY id`
	return s.queryListings(ctx, query, string(status))
}

// ListScheduledDue returns approved listings whose scheduled time is at or
// before the given instant, oldest first.
func (s *Storage) ListScheduledDue(ctx context.Context, before time.Time) ([]*Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings
		WHERE status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?
		ORDER BY scheduled_at, id`
	return s.queryListings(ctx, query, string(StatusApproved), before.Unix())
}

// UpdateListingStatus moves a listing from one status to another in a single
// conditional statement. It fails with ErrStaleStatus when the stored status
// is no longer `from`, and with ErrNotFound when the listing does not exist.
func (s *Storage) UpdateListingStatus(ctx context.Context, id int64, from, to Status, scheduledAt *time.Time) error {
	query := `UPDATE listings SET status = ?, scheduled_at = ? WHERE id = ? AND status = ?`
	res, err := s.db.ExecContext(ctx, query, string(to), nullableUnix(scheduledAt), id, string(from))
	if err != nil {
		return err
	}
	return s.checkConditionalUpdate(ctx, res, id)
}

// ClaimListing moves a listing from one status to another only while its
// schedule is still scheduledAt, keeping that schedule. A listing that was
// rescheduled or changed status since it was read fails with ErrStaleStatus.
func (s *Storage) ClaimListing(ctx context.Context, id int64, from, to Status, scheduledAt *time.Time) error {
	query := `UPDATE listings SET status = ? WHERE id = ? AND status = ? AND scheduled_at IS ?`
	res, err := s.db.ExecContext(ctx, query, string(to), id, string(from), nullableUnix(scheduledAt))
	if err != nil {
		return err
	}
	return s.checkConditionalUpdate(ctx, res, id)
}

func (s *Storage) checkConditionalUpdate(ctx context.Context, res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM listings WHERE id = ?)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleStatus
}

func (s *Storage) SetRenderedBody(ctx context.Context, id int64, body string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE listings SET rendered_body = ? WHERE id = ?`, body, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDeliveryFailure increments the failed delivery counter and returns the
// new value.
func (s *Storage) RecordDeliveryFailure(ctx context.Context, id int64) (int, error) {
	var attempts int
	query := `UPDATE listings SET delivery_attempts = delivery_attempts + 1 WHERE id = ? RETURNING delivery_attempts`
	err := s.db.QueryRowContext(ctx, query, id).Scan(&attempts)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return attempts, nil
}

func (s *Storage) ResetDeliveryAttempts(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE listings SET delivery_attempts = 0 WHERE id = ?`, id)
	return err
}

// RecoverInterruptedPublications returns listings left in the publishing
// state by a process that died mid-publish to approved, keeping their
// schedule so the next scheduler tick retries them.
func (s *Storage) RecoverInterruptedPublications(ctx context.Context) (int64, error) {
	query := `UPDATE listings SET status = ? WHERE status = ?`
	res, err := s.db.ExecContext(ctx, query, string(StatusApproved), string(StatusPublishing))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Storage) ListingStats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM listings GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}
