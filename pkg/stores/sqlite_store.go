package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openfroyo/guardrails/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const memoryPath = ":memory:"

// SQLiteStore implements Store using SQLite. Evaluation results are stored
// as JSON payloads next to the columns used for filtering.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// Every connection to :memory: opens a separate database.
	if cfg.Path == memoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database connection and applies connection pragmas.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if s.cfg.Path != memoryPath {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveEvaluation stores an evaluation result.
func (s *SQLiteStore) SaveEvaluation(ctx context.Context, result *engine.EvaluationResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation: %w", err)
	}

	query := `
		INSERT INTO evaluations (id, blueprint_id, timestamp, passed, score, violation_count, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload
	`

	_, err = s.db.ExecContext(ctx, query,
		result.ID,
		result.BlueprintID,
		formatTime(result.Timestamp),
		result.Passed,
		result.Score,
		len(result.Violations),
		string(payload),
	)
	if err != nil {
		return engine.NewTransientError("failed to save evaluation", err).WithResource(result.ID)
	}

	return nil
}

// GetEvaluation retrieves an evaluation by ID
func (s *SQLiteStore) GetEvaluation(ctx context.Context, id string) (*engine.EvaluationResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM evaluations WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.NewNotFoundError("evaluation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}

	return decodeEvaluation(payload)
}

// ListEvaluations lists evaluations newest first, optionally for one blueprint.
func (s *SQLiteStore) ListEvaluations(ctx context.Context, blueprintID string, limit int) ([]*engine.EvaluationResult, error) {
	query := `
		SELECT payload
		FROM evaluations
		WHERE (? = '' OR blueprint_id = ?)
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, blueprintID, blueprintID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	results := []*engine.EvaluationResult{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		result, err := decodeEvaluation(payload)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating evaluations: %w", err)
	}

	return results, nil
}

// AppendHistory appends a compliance history point.
func (s *SQLiteStore) AppendHistory(ctx context.Context, point engine.ComplianceHistoryPoint) error {
	query := `
		INSERT INTO compliance_history (evaluation_id, blueprint_id, timestamp, score, violation_count, critical_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		point.EvaluationID,
		point.BlueprintID,
		formatTime(point.Timestamp),
		point.Score,
		point.ViolationCount,
		point.CriticalCount,
	)
	if err != nil {
		return engine.NewTransientError("failed to append history", err).WithResource(point.EvaluationID)
	}

	return nil
}

// History returns the most recent points for a blueprint, oldest first.
func (s *SQLiteStore) History(ctx context.Context, blueprintID string, limit int) ([]engine.ComplianceHistoryPoint, error) {
	query := `
		SELECT evaluation_id, blueprint_id, timestamp, score, violation_count, critical_count
		FROM (
			SELECT id, evaluation_id, blueprint_id, timestamp, score, violation_count, critical_count
			FROM compliance_history
			WHERE blueprint_id = ?
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, blueprintID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	points := []engine.ComplianceHistoryPoint{}
	for rows.Next() {
		var p engine.ComplianceHistoryPoint
		var ts string
		if err := rows.Scan(&p.EvaluationID, &p.BlueprintID, &ts, &p.Score, &p.ViolationCount, &p.CriticalCount); err != nil {
			return nil, fmt.Errorf("failed to scan history point: %w", err)
		}
		if p.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return points, nil
}

// LoadOrStoreBaseline inserts the baseline unless one exists, then reports
// which baseline is current. The insert is a single statement, so concurrent
// first observations still leave exactly one row.
func (s *SQLiteStore) LoadOrStoreBaseline(ctx context.Context, baseline engine.DriftBaseline) (engine.DriftBaseline, bool, error) {
	state, err := json.Marshal(baseline.State)
	if err != nil {
		return engine.DriftBaseline{}, false, fmt.Errorf("failed to encode baseline: %w", err)
	}

	query := `
		INSERT INTO drift_baselines (resource_id, state, captured_at)
		VALUES (?, ?, ?)
		ON CONFLICT(resource_id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query, baseline.ResourceID, string(state), formatTime(baseline.CapturedAt))
	if err != nil {
		return engine.DriftBaseline{}, false, engine.NewTransientError("failed to store baseline", err).WithResource(baseline.ResourceID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return engine.DriftBaseline{}, false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return baseline, false, nil
	}

	existing, err := s.GetBaseline(ctx, baseline.ResourceID)
	if err != nil {
		return engine.DriftBaseline{}, false, err
	}
	return *existing, true, nil
}

// PutBaseline replaces the baseline for a resource.
func (s *SQLiteStore) PutBaseline(ctx context.Context, baseline engine.DriftBaseline) error {
	state, err := json.Marshal(baseline.State)
	if err != nil {
		return fmt.Errorf("failed to encode baseline: %w", err)
	}

	query := `
		INSERT INTO drift_baselines (resource_id, state, captured_at)
		VALUES (?, ?, ?)
		ON CONFLICT(resource_id) DO UPDATE SET state = excluded.state, captured_at = excluded.captured_at
	`

	if _, err := s.db.ExecContext(ctx, query, baseline.ResourceID, string(state), formatTime(baseline.CapturedAt)); err != nil {
		return engine.NewTransientError("failed to replace baseline", err).WithResource(baseline.ResourceID)
	}

	return nil
}

// GetBaseline retrieves the baseline for a resource.
func (s *SQLiteStore) GetBaseline(ctx context.Context, resourceID string) (*engine.DriftBaseline, error) {
	var state, capturedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT state, captured_at FROM drift_baselines WHERE resource_id = ?`, resourceID,
	).Scan(&state, &capturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.NewNotFoundError("baseline", resourceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}

	baseline := &engine.DriftBaseline{ResourceID: resourceID}
	if err := json.Unmarshal([]byte(state), &baseline.State); err != nil {
		return nil, fmt.Errorf("failed to decode baseline: %w", err)
	}
	if baseline.CapturedAt, err = parseTime(capturedAt); err != nil {
		return nil, err
	}

	return baseline, nil
}

// RecordAudit creates a new audit log entry
func (s *SQLiteStore) RecordAudit(ctx context.Context, entry engine.AuditEntry) error {
	var details *string
	if len(entry.Details) > 0 {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		d := string(data)
		details = &d
	}

	query := `
		INSERT INTO audit (id, action, evaluation_id, violation_id, policy_id, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Action,
		entry.EvaluationID,
		entry.ViolationID,
		entry.PolicyID,
		details,
		formatTime(entry.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	return nil
}

// ListAudit lists audit entries oldest first.
func (s *SQLiteStore) ListAudit(ctx context.Context, evaluationID string, limit int) ([]engine.AuditEntry, error) {
	query := `
		SELECT id, action, evaluation_id, violation_id, policy_id, details, timestamp
		FROM audit
		WHERE (? = '' OR evaluation_id = ?)
		ORDER BY seq ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, evaluationID, evaluationID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []engine.AuditEntry{}
	for rows.Next() {
		var entry engine.AuditEntry
		var details sql.NullString
		var ts string
		err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&entry.EvaluationID,
			&entry.ViolationID,
			&entry.PolicyID,
			&details,
			&ts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details: %w", err)
			}
		}
		if entry.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

func decodeEvaluation(payload string) (*engine.EvaluationResult, error) {
	var result engine.EvaluationResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to decode evaluation: %w", err)
	}
	return &result, nil
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// sqlLimit maps "no limit" to SQLite's LIMIT -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
