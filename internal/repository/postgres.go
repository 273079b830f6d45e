package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"dora/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// Schema creates the registrations table. At most one non-cancelled
// registration may exist per event title and roll number.
const Schema = `
CREATE TABLE IF NOT EXISTS event_registrations (
	registration_id  TEXT PRIMARY KEY,
	event_title      TEXT NOT NULL,
	event_date       TEXT NOT NULL,
	event_category   TEXT NOT NULL DEFAULT '',
	student_name     TEXT NOT NULL,
	roll_number      TEXT NOT NULL,
	department       TEXT NOT NULL,
	year             INTEGER NOT NULL CHECK (year BETWEEN 1 AND 4),
	email            TEXT NOT NULL,
	phone            TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'confirmed',
	chat_session_id  TEXT NOT NULL DEFAULT '',
	registered_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS event_registrations_active_idx
	ON event_registrations (event_title, roll_number) WHERE status <> 'cancelled';
CREATE INDEX IF NOT EXISTS event_registrations_session_idx
	ON event_registrations (chat_session_id);
`

const registrationColumns = `registration_id, event_title, event_date, event_category,
	student_name, roll_number, department, year, email, phone,
	status, chat_session_id, registered_at`

// PostgresRepository stores event registrations in PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(dsn string, maxConn, maxIdleConn int) (*PostgresRepository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to database: %v", model.ErrStorageUnavailable, err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	return NewPostgresRepositoryFromDB(db), nil
}

// NewPostgresRepositoryFromDB wraps an open connection pool
func NewPostgresRepositoryFromDB(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// Ping checks the connection
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return nil
}

// EnsureSchema creates the registrations table and indexes if missing
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("%w: failed to create schema: %v", model.ErrStorageUnavailable, err)
	}
	return nil
}

// FindActive returns the non-cancelled registration for the pair, or nil
func (r *PostgresRepository) FindActive(ctx context.Context, eventTitle, rollNumber string) (*model.EventRegistrationRecord, error) {
	query := `SELECT ` + registrationColumns + `
		FROM event_registrations
		WHERE event_title = $1 AND roll_number = $2 AND status <> 'cancelled'
		LIMIT 1`

	var rec model.EventRegistrationRecord
	err := r.db.GetContext(ctx, &rec, query, eventTitle, strings.ToUpper(rollNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to look up registration: %v", model.ErrStorageUnavailable, err)
	}
	return &rec, nil
}

// Save inserts a registration and returns its id. A concurrent insert for the
// same pair surfaces as *model.DuplicateRegistrationError.
func (r *PostgresRepository) Save(ctx context.Context, rec *model.EventRegistrationRecord) (string, error) {
	query := `INSERT INTO event_registrations (` + registrationColumns + `)
		VALUES (:registration_id, :event_title, :event_date, :event_category,
			:student_name, :roll_number, :department, :year, :email, :phone,
			:status, :chat_session_id, :registered_at)`

	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			existing, ferr := r.FindActive(ctx, rec.EventTitle, rec.RollNumber)
			if ferr == nil && existing != nil {
				return "", &model.DuplicateRegistrationError{Existing: *existing}
			}
			return "", &model.DuplicateRegistrationError{Existing: *rec}
		}
		return "", fmt.Errorf("%w: failed to save registration: %v", model.ErrStorageUnavailable, err)
	}
	return rec.ID, nil
}

// List returns registrations matching filter, newest first
func (r *PostgresRepository) List(ctx context.Context, filter model.RegistrationFilter) ([]model.EventRegistrationRecord, error) {
	whereClauses := []string{"1=1"}
	args := []interface{}{}
	argIndex := 1

	if filter.SessionID != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("chat_session_id = $%d", argIndex))
		args = append(args, filter.SessionID)
		argIndex++
	}
	if filter.RollNumber != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("roll_number = $%d", argIndex))
		args = append(args, strings.ToUpper(filter.RollNumber))
		argIndex++
	}
	if filter.EventTitle != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("event_title ILIKE $%d", argIndex))
		args = append(args, "%"+filter.EventTitle+"%")
	}

	query := fmt.Sprintf(`SELECT %s FROM event_registrations WHERE %s ORDER BY registered_at DESC`,
		registrationColumns, strings.Join(whereClauses, " AND "))

	records := []model.EventRegistrationRecord{}
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("%w: failed to list registrations: %v", model.ErrStorageUnavailable, err)
	}
	return records, nil
}
