// Package store is the durable row store backing batches, training rows,
// jobs and schedules.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"scorecard-ingest-go/internal/types"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS training_batches (
		id              TEXT PRIMARY KEY,
		program_id      TEXT NOT NULL,
		manager_id      TEXT NOT NULL,
		source_filename TEXT NOT NULL,
		status          TEXT NOT NULL,
		total_records   INTEGER NOT NULL DEFAULT 0,
		matched_records INTEGER NOT NULL DEFAULT 0,
		created_at      DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_batches_program ON training_batches(program_id);
	CREATE INDEX IF NOT EXISTS idx_batches_created ON training_batches(created_at);

	CREATE TABLE IF NOT EXISTS training_dataset_rows (
		id                TEXT PRIMARY KEY,
		batch_id          TEXT NOT NULL,
		recording_id      TEXT NOT NULL,
		call_identifier   TEXT NOT NULL,
		agent_name        TEXT DEFAULT '',
		scores            TEXT NOT NULL DEFAULT '{}',
		overall_score     REAL NOT NULL DEFAULT 0,
		validation_status TEXT NOT NULL,
		training_weight   REAL NOT NULL DEFAULT 0,
		match_confidence  REAL NOT NULL DEFAULT 0,
		created_at        DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dataset_batch ON training_dataset_rows(batch_id);
	CREATE INDEX IF NOT EXISTS idx_dataset_status ON training_dataset_rows(validation_status);

	CREATE TABLE IF NOT EXISTS scorecard_evaluations (
		id                   TEXT PRIMARY KEY,
		batch_id             TEXT NOT NULL,
		call_identifier      TEXT NOT NULL,
		agent_name           TEXT DEFAULT '',
		scores               TEXT NOT NULL DEFAULT '{}',
		overall_score        REAL NOT NULL DEFAULT 0,
		match_confidence     REAL NOT NULL DEFAULT 0,
		matched_recording_id TEXT DEFAULT '',
		created_at           DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_evaluations_batch ON scorecard_evaluations(batch_id);

	CREATE TABLE IF NOT EXISTS call_classifications (
		id                TEXT PRIMARY KEY,
		batch_id          TEXT NOT NULL,
		recording_id      TEXT NOT NULL,
		call_identifier   TEXT NOT NULL,
		program_id        TEXT NOT NULL,
		validation_status TEXT NOT NULL,
		confidence        REAL NOT NULL DEFAULT 0,
		created_at        DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_classifications_batch ON call_classifications(batch_id);
	CREATE INDEX IF NOT EXISTS idx_classifications_recording ON call_classifications(recording_id);

	CREATE TABLE IF NOT EXISTS call_recordings (
		id               TEXT PRIMARY KEY,
		title            TEXT NOT NULL,
		owner_id         TEXT NOT NULL,
		has_transcript   INTEGER NOT NULL DEFAULT 0,
		duration_minutes REAL NOT NULL DEFAULT 0,
		call_date        DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_recordings_owner ON call_recordings(owner_id);

	CREATE TABLE IF NOT EXISTS batch_jobs (
		id            TEXT PRIMARY KEY,
		program_id    TEXT NOT NULL,
		manager_id    TEXT NOT NULL,
		file_path     TEXT NOT NULL,
		status        TEXT NOT NULL,
		scheduled_for DATETIME NOT NULL,
		started_at    DATETIME,
		completed_at  DATETIME,
		retry_count   INTEGER NOT NULL DEFAULT 0,
		last_error    TEXT DEFAULT '',
		config        TEXT NOT NULL DEFAULT '{}',
		results       TEXT,
		created_at    DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON batch_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_scheduled ON batch_jobs(scheduled_for);
	CREATE INDEX IF NOT EXISTS idx_jobs_created ON batch_jobs(created_at);

	CREATE TABLE IF NOT EXISTS weekly_schedules (
		id          TEXT PRIMARY KEY,
		program_id  TEXT NOT NULL,
		manager_id  TEXT NOT NULL,
		file_path   TEXT NOT NULL,
		day_of_week INTEGER NOT NULL,
		time_of_day TEXT NOT NULL,
		next_run_at DATETIME NOT NULL,
		enabled     INTEGER NOT NULL DEFAULT 1,
		created_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_schedules_next_run ON weekly_schedules(next_run_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveIngestion writes a batch header and all of its rows in one transaction.
func (s *Store) SaveIngestion(ctx context.Context, batch types.TrainingBatchRow,
	dataset []types.TrainingDatasetRow, evaluations []types.ScorecardEvaluationRow,
	classifications []types.CallClassificationRow) error {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO training_batches (id, program_id, manager_id, source_filename, status, total_records, matched_records, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		batch.ID, batch.ProgramID, batch.ManagerID, batch.SourceFilename,
		batch.Status, batch.TotalRecords, batch.MatchedRecords, batch.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO training_dataset_rows (id, batch_id, recording_id, call_identifier, agent_name, scores, overall_score, validation_status, training_weight, match_confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	for _, row := range dataset {
		scores, _ := json.Marshal(row.Scores)
		if _, err := stmt.ExecContext(ctx, row.ID, row.BatchID, row.RecordingID, row.CallIdentifier,
			row.AgentName, string(scores), row.OverallScore, row.ValidationStatus,
			row.TrainingWeight, row.MatchConfidence, row.CreatedAt); err != nil {
			stmt.Close()
			return fmt.Errorf("insert dataset row: %w", err)
		}
	}
	stmt.Close()

	stmt, err = tx.PrepareContext(ctx,
		`INSERT INTO scorecard_evaluations (id, batch_id, call_identifier, agent_name, scores, overall_score, match_confidence, matched_recording_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	for _, row := range evaluations {
		scores, _ := json.Marshal(row.Scores)
		if _, err := stmt.ExecContext(ctx, row.ID, row.BatchID, row.CallIdentifier, row.AgentName,
			string(scores), row.OverallScore, row.MatchConfidence, row.MatchedRecordingID, row.CreatedAt); err != nil {
			stmt.Close()
			return fmt.Errorf("insert evaluation row: %w", err)
		}
	}
	stmt.Close()

	stmt, err = tx.PrepareContext(ctx,
		`INSERT INTO call_classifications (id, batch_id, recording_id, call_identifier, program_id, validation_status, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	for _, row := range classifications {
		if _, err := stmt.ExecContext(ctx, row.ID, row.BatchID, row.RecordingID, row.CallIdentifier,
			row.ProgramID, row.ValidationStatus, row.Confidence, row.CreatedAt); err != nil {
			stmt.Close()
			return fmt.Errorf("insert classification row: %w", err)
		}
	}
	stmt.Close()

	return tx.Commit()
}

func (s *Store) InsertCallRecording(ctx context.Context, rec types.CallRecording) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_recordings (id, title, owner_id, has_transcript, duration_minutes, call_date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Title, rec.OwnerID, rec.HasTranscript, rec.DurationMinutes, rec.CallDate,
	)
	return err
}

// ListCallRecordings returns known recordings, optionally scoped to an owner.
func (s *Store) ListCallRecordings(ctx context.Context, ownerID string) ([]types.CallRecording, error) {
	query := `SELECT id, title, owner_id, has_transcript, duration_minutes, call_date FROM call_recordings`
	args := []any{}
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY call_date DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.CallRecording
	for rows.Next() {
		var rec types.CallRecording
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.OwnerID, &rec.HasTranscript,
			&rec.DurationMinutes, &rec.CallDate); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountDatasetRowsByStatus supports the statistics surface.
func (s *Store) CountDatasetRowsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT validation_status, COUNT(*) FROM training_dataset_rows GROUP BY validation_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[status] = count
	}
	return out, rows.Err()
}
