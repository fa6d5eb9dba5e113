package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"dynamic_bot/internal/model"
	"dynamic_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Journal backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: writers are serialized and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// RecordDelivery inserts a journal entry and populates its ID.
// A zero CreatedAt is set to the current time; timestamps are stored in UTC at second precision.
func (s *SQLite) RecordDelivery(ctx context.Context, d *model.Delivery) error {
	at := d.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	created := at.UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (subject_id, item_id, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		d.SubjectID, d.ItemID, string(d.Status), d.Error, created,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	d.ID = id
	d.CreatedAt, _ = time.Parse(timeLayout, created)
	return nil
}

// ListDeliveries returns the newest entries first. A zero subjectID lists all subjects.
func (s *SQLite) ListDeliveries(ctx context.Context, subjectID int64, limit int) ([]model.Delivery, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, item_id, status, error, created_at
		 FROM deliveries
		 WHERE ? = 0 OR subject_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		subjectID, subjectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountDeliveries returns the number of entries per status.
func (s *SQLite) CountDeliveries(ctx context.Context) (map[model.DeliveryStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM deliveries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[model.DeliveryStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[model.DeliveryStatus(status)] = n
	}
	return counts, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDelivery(row scannable) (model.Delivery, error) {
	var d model.Delivery
	var status, created string
	err := row.Scan(&d.ID, &d.SubjectID, &d.ItemID, &status, &d.Error, &created)
	if err != nil {
		return d, fmt.Errorf("scan delivery: %w", err)
	}
	d.Status = model.DeliveryStatus(status)
	d.CreatedAt, _ = time.Parse(timeLayout, created)
	return d, nil
}
