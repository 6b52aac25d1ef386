package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/nitrite-automation/internal/model"
)

// HistoryFilter narrows history queries
type HistoryFilter struct {
	ScriptID    string
	TaskID      string
	BlockedOnly bool
}

// ExecutionHistory defines the interface for execution history storage
type ExecutionHistory interface {
	// Store appends an execution record
	Store(ctx context.Context, rec *model.ExecutionRecord) error

	// Get retrieves a record by ID, nil if absent
	Get(ctx context.Context, id string) (*model.ExecutionRecord, error)

	// List retrieves records newest first
	List(ctx context.Context, filter HistoryFilter, offset, limit int) ([]*model.ExecutionRecord, error)

	// Count returns the number of records matching the filter
	Count(ctx context.Context, filter HistoryFilter) (int, error)

	// DeleteBefore deletes records executed before the cutoff
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)

	// Close releases the underlying database
	Close() error
}

// SQLiteExecutionHistory implements ExecutionHistory using SQLite
type SQLiteExecutionHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteExecutionHistory opens (or creates) the history database
func NewSQLiteExecutionHistory(logger *zap.Logger, dbPath string) (*SQLiteExecutionHistory, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, ioError("create history directory", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	h := &SQLiteExecutionHistory{
		logger: logger.Named("execution-history"),
		db:     db,
	}

	if err := h.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return h, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteExecutionHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS script_executions (
			id TEXT PRIMARY KEY,
			script_id TEXT NOT NULL,
			task_id TEXT,
			success INTEGER NOT NULL,
			exit_code INTEGER,
			security_blocked INTEGER NOT NULL,
			timed_out INTEGER NOT NULL,
			risk_level TEXT NOT NULL,
			stdout TEXT,
			stderr TEXT,
			error TEXT,
			executed_at DATETIME NOT NULL,
			duration INTEGER,
			metadata TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_script_executions_script_id ON script_executions(script_id);
		CREATE INDEX IF NOT EXISTS idx_script_executions_task_id ON script_executions(task_id);
		CREATE INDEX IF NOT EXISTS idx_script_executions_executed_at ON script_executions(executed_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store implements ExecutionHistory.Store. Timestamps are written in UTC so
// the text comparison SQLite applies to them matches time order.
func (s *SQLiteExecutionHistory) Store(ctx context.Context, rec *model.ExecutionRecord) error {
	var metadata sql.NullString
	if rec.Host != nil {
		data, err := json.Marshal(rec.Host)
		if err != nil {
			return fmt.Errorf("failed to marshal host snapshot: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	var exitCode sql.NullInt64
	if rec.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*rec.ExitCode), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO script_executions (
			id, script_id, task_id, success, exit_code, security_blocked, timed_out,
			risk_level, stdout, stderr, error, executed_at, duration, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.ScriptID,
		sql.NullString{String: rec.TaskID, Valid: rec.TaskID != ""},
		rec.Success,
		exitCode,
		rec.SecurityBlocked,
		rec.TimedOut,
		string(rec.RiskLevel),
		rec.Stdout,
		rec.Stderr,
		sql.NullString{String: rec.Error, Valid: rec.Error != ""},
		rec.ExecutedAt.UTC(),
		int64(rec.Duration),
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to store execution record: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, script_id, task_id, success, exit_code, security_blocked, timed_out,
		risk_level, stdout, stderr, error, executed_at, duration, metadata
	FROM script_executions`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*model.ExecutionRecord, error) {
	rec := &model.ExecutionRecord{}
	var taskID, stdout, stderr, errorStr, metadata sql.NullString
	var exitCode, durationNanos sql.NullInt64
	var riskLevel string

	if err := row.Scan(
		&rec.ID,
		&rec.ScriptID,
		&taskID,
		&rec.Success,
		&exitCode,
		&rec.SecurityBlocked,
		&rec.TimedOut,
		&riskLevel,
		&stdout,
		&stderr,
		&errorStr,
		&rec.ExecutedAt,
		&durationNanos,
		&metadata,
	); err != nil {
		return nil, err
	}

	rec.RiskLevel = model.RiskLevel(riskLevel)
	rec.TaskID = taskID.String
	rec.Stdout = stdout.String
	rec.Stderr = stderr.String
	rec.Error = errorStr.String
	if exitCode.Valid {
		code := int(exitCode.Int64)
		rec.ExitCode = &code
	}
	if durationNanos.Valid {
		rec.Duration = time.Duration(durationNanos.Int64)
	}
	if metadata.Valid && metadata.String != "" {
		var host model.HostSnapshot
		if err := json.Unmarshal([]byte(metadata.String), &host); err != nil {
			return nil, fmt.Errorf("failed to decode host snapshot: %w", err)
		}
		rec.Host = &host
	}
	return rec, nil
}

// Get implements ExecutionHistory.Get
func (s *SQLiteExecutionHistory) Get(ctx context.Context, id string) (*model.ExecutionRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan execution record: %w", err)
	}
	return rec, nil
}

func (f HistoryFilter) where() (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if f.ScriptID != "" {
		clauses = append(clauses, "script_id = ?")
		args = append(args, f.ScriptID)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "task_id = ?")
		args = append(args, f.TaskID)
	}
	if f.BlockedOnly {
		clauses = append(clauses, "security_blocked = 1")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// List implements ExecutionHistory.List
func (s *SQLiteExecutionHistory) List(ctx context.Context, filter HistoryFilter, offset, limit int) ([]*model.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	where, args := filter.where()
	query := selectColumns + where + " ORDER BY executed_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution history: %w", err)
	}
	defer rows.Close()

	var records []*model.ExecutionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}

// Count implements ExecutionHistory.Count
func (s *SQLiteExecutionHistory) Count(ctx context.Context, filter HistoryFilter) (int, error) {
	where, args := filter.where()

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM script_executions"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count execution history: %w", err)
	}
	return count, nil
}

// DeleteBefore implements ExecutionHistory.DeleteBefore
func (s *SQLiteExecutionHistory) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM script_executions WHERE executed_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete execution history: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old execution records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return affected, nil
}

// Close closes the database connection
func (s *SQLiteExecutionHistory) Close() error {
	return s.db.Close()
}
