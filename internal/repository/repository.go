// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
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

// SaveClaim stores a claim submission.
func (r *SQLRepository) SaveClaim(ctx context.Context, claim *domain.Claim) error {
	if claim == nil || claim.ID == "" {
		return fmt.Errorf("%w: claim with ID is required", ErrInvalidInput)
	}

	attributes, err := json.Marshal(claim.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode claim attributes: %w", err)
	}

	query := `
		INSERT INTO claims (id, attributes, received_at)
		VALUES (?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		claim.ID, string(attributes), claim.ReceivedAt,
	)
	return err
}

// GetClaim retrieves a claim by ID.
func (r *SQLRepository) GetClaim(ctx context.Context, claimID string) (*domain.Claim, error) {
	if claimID == "" {
		return nil, fmt.Errorf("%w: claimID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, attributes, received_at
		FROM claims
		WHERE id = ?
	`

	var claim domain.Claim
	var attributes string

	err := r.db.QueryRowContext(ctx, r.rebind(query), claimID).Scan(
		&claim.ID, &attributes, &claim.ReceivedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(attributes), &claim.Attributes); err != nil {
		return nil, fmt.Errorf("failed to parse claim attributes: %w", err)
	}

	return &claim, nil
}

// SaveScore stores a scoring outcome.
func (r *SQLRepository) SaveScore(ctx context.Context, record *domain.ScoreRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("%w: score record with ID is required", ErrInvalidInput)
	}

	claim, err := json.Marshal(record.Claim)
	if err != nil {
		return fmt.Errorf("failed to encode claim: %w", err)
	}
	factors, _ := json.Marshal(record.Result.KeyRiskFactors)
	breakdown, _ := json.Marshal(record.Result.ScorecardBreakdown)

	query := `
		INSERT INTO score_records (
			id, claim_id, claim, score, risk_segment, recommended_action,
			model_mode, probability, key_risk_factors, scorecard_breakdown,
			processing_ms, model_version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		record.ID, record.ClaimID, string(claim),
		record.Result.Score, string(record.Result.RiskSegment), record.Result.RecommendedAction,
		string(record.Result.ModelMode), record.Result.Probability,
		string(factors), string(breakdown),
		record.Result.ProcessingMs, record.Result.ModelVersion,
		record.CreatedAt,
	)
	return err
}

// GetScore retrieves a score record by ID.
func (r *SQLRepository) GetScore(ctx context.Context, scoreID string) (*domain.ScoreRecord, error) {
	if scoreID == "" {
		return nil, fmt.Errorf("%w: scoreID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, claim_id, claim, score, risk_segment, recommended_action,
			   model_mode, probability, key_risk_factors, scorecard_breakdown,
			   processing_ms, model_version, created_at
		FROM score_records
		WHERE id = ?
	`

	record, err := scanScore(r.db.QueryRowContext(ctx, r.rebind(query), scoreID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return record, err
}

// ListScoresSince retrieves score records created at or after the given
// time, most recent first.
func (r *SQLRepository) ListScoresSince(ctx context.Context, since time.Time) ([]*domain.ScoreRecord, error) {
	query := `
		SELECT id, claim_id, claim, score, risk_segment, recommended_action,
			   model_mode, probability, key_risk_factors, scorecard_breakdown,
			   processing_ms, model_version, created_at
		FROM score_records
		WHERE created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.ScoreRecord
	for rows.Next() {
		record, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScore(row rowScanner) (*domain.ScoreRecord, error) {
	var record domain.ScoreRecord
	var claim, segment, mode, factors, breakdown string

	err := row.Scan(
		&record.ID, &record.ClaimID, &claim,
		&record.Result.Score, &segment, &record.Result.RecommendedAction,
		&mode, &record.Result.Probability,
		&factors, &breakdown,
		&record.Result.ProcessingMs, &record.Result.ModelVersion,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Result.RiskSegment = domain.RiskSegment(segment)
	record.Result.ModelMode = domain.ModelMode(mode)
	record.Result.Timestamp = record.CreatedAt
	if err := json.Unmarshal([]byte(claim), &record.Claim); err != nil {
		return nil, fmt.Errorf("failed to parse stored claim: %w", err)
	}
	if factors != "" {
		json.Unmarshal([]byte(factors), &record.Result.KeyRiskFactors)
	}
	if breakdown != "" {
		json.Unmarshal([]byte(breakdown), &record.Result.ScorecardBreakdown)
	}

	return &record, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
