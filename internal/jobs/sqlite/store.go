// Package sqlite persists job state in a SQLite database so jobs survive restarts.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/dvloznov/ledger-categorizer/internal/jobs"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a JobStore backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens the database at path, creating it if needed, and applies pending migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: opening %s: %w", path, err)
	}
	// One connection avoids SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: ping: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrateUp: reading migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migrateUp: creating driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrateUp: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrateUp: applying: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied migration version and whether the last migration failed midway.
func (s *Store) SchemaVersion(ctx context.Context) (uint, bool, error) {
	var (
		version int64
		dirty   bool
	)
	err := s.db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("SchemaVersion: %w", err)
	}
	return uint(version), dirty, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *jobs.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("SaveJob: encoding job %s: %w", job.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, client_id, book_id, status, created_at, content, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client_id = excluded.client_id,
			book_id = excluded.book_id,
			status = excluded.status,
			content = excluded.content,
			data = excluded.data`,
		job.ID, job.ClientID, job.BookID, string(job.Status), job.CreatedAt.UnixNano(), job.Content, string(data))
	if err != nil {
		return fmt.Errorf("SaveJob: writing job %s: %w", job.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*jobs.Job, error) {
	var content, data string
	if err := row.Scan(&content, &data); err != nil {
		return nil, err
	}
	job := &jobs.Job{}
	if err := json.Unmarshal([]byte(data), job); err != nil {
		return nil, fmt.Errorf("decoding job: %w", err)
	}
	job.Content = content
	return job, nil
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT content, data FROM jobs WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetJob: %w: %s", jobs.ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetJob: %w", err)
	}
	return job, nil
}

// ListJobs implements the JobStore interface.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.Job, error) {
	var (
		where []string
		args  []any
	)
	if filter.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if filter.BookID != "" {
		where = append(where, "book_id = ?")
		args = append(args, filter.BookID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT content, data FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := -1
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	return s.query(ctx, "ListJobs", query, args...)
}

// Unfinished returns jobs a worker had accepted but not finished, oldest first.
// They are republished after a restart.
func (s *Store) Unfinished(ctx context.Context) ([]*jobs.Job, error) {
	return s.query(ctx, "Unfinished",
		`SELECT content, data FROM jobs WHERE status IN (?, ?, ?) ORDER BY created_at ASC, id ASC`,
		string(jobs.JobStatusQueued), string(jobs.JobStatusValidating), string(jobs.JobStatusProcessing))
}

func (s *Store) query(ctx context.Context, op, query string, args ...any) ([]*jobs.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	result := []*jobs.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// update loads a job, applies fn and writes it back in one transaction.
func (s *Store) update(ctx context.Context, op, jobID string, fn func(*jobs.Job)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	job, err := scanJob(tx.QueryRowContext(ctx, `SELECT content, data FROM jobs WHERE id = ?`, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w: %s", op, jobs.ErrJobNotFound, jobID)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	fn(job)
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%s: encoding job: %w", op, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET status = ?, data = ? WHERE id = ?`,
		string(job.Status), string(data), jobID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return tx.Commit()
}

// UpdateJobStatus implements the JobStore interface.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	return s.update(ctx, "UpdateJobStatus", jobID, func(j *jobs.Job) {
		j.Status = status
		if errorMsg != "" {
			j.Error = errorMsg
		}
		if status == jobs.JobStatusCompleted || status == jobs.JobStatusFailed || status == jobs.JobStatusPendingReview {
			now := time.Now()
			j.CompletedAt = &now
		}
	})
}

// UpdateProgress implements the JobStore interface.
func (s *Store) UpdateProgress(ctx context.Context, jobID string, progress, processedRows int) error {
	return s.update(ctx, "UpdateProgress", jobID, func(j *jobs.Job) {
		j.Progress = progress
		j.ProcessedRows = processedRows
	})
}

var _ jobs.JobStore = (*Store)(nil)
