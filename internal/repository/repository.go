// Package repository persists the simulation audit trail.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultListLimit caps ListSimulations when the caller passes no limit.
const DefaultListLimit = 50

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New opens the configured database and applies the schema.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite", "":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", domain.ErrInvalidInput, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}
	repo := &SQLRepository{db: db, driver: driver}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveSimulation inserts one audit record. The full engine result is kept as JSON.
func (r *SQLRepository) SaveSimulation(ctx context.Context, rec *domain.SimulationRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: record id is required", domain.ErrInvalidInput)
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}

	var result sql.NullString
	if rec.Result != nil {
		data, err := json.Marshal(rec.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal simulation result: %w", err)
		}
		result = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO simulations (id, simulation_id, sender_id, receiver_id, amount,
			verdict, verdict_reason, result, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, rec.SimulationID, rec.SenderID, rec.ReceiverID, rec.Amount,
		string(rec.Verdict), rec.VerdictReason, result, rec.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save simulation %s: %w", rec.ID, err)
	}
	return nil
}

// GetSimulation returns one record by its audit id.
func (r *SQLRepository) GetSimulation(ctx context.Context, id string) (*domain.SimulationRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, simulation_id, sender_id, receiver_id, amount,
			   verdict, verdict_reason, result, recorded_at
		FROM simulations
		WHERE id = ?
	`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("simulation record %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListSimulations returns the newest records first.
func (r *SQLRepository) ListSimulations(ctx context.Context, limit int) ([]*domain.SimulationRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, simulation_id, sender_id, receiver_id, amount,
			   verdict, verdict_reason, result, recorded_at
		FROM simulations
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list simulations: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.SimulationRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*domain.SimulationRecord, error) {
	var rec domain.SimulationRecord
	var verdict string
	var result sql.NullString

	err := s.Scan(
		&rec.ID, &rec.SimulationID, &rec.SenderID, &rec.ReceiverID, &rec.Amount,
		&verdict, &rec.VerdictReason, &result, &rec.RecordedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Verdict = domain.Verdict(verdict)

	if result.Valid && result.String != "" {
		var res domain.SimulationResult
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return nil, fmt.Errorf("failed to decode simulation result %s: %w", rec.ID, err)
		}
		rec.Result = &res
	}
	return &rec, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
