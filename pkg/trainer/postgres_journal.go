package trainer

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresJournal persists job snapshots and change events to Postgres.
// The in-memory tracker stays authoritative; the journal is a write-through
// record fed from the event bus.
type PostgresJournal struct {
	db *sql.DB
}

func NewPostgresJournal(dsn string) (*PostgresJournal, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Hour)

	j := &PostgresJournal{db: db}
	if err := j.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *PostgresJournal) ensureSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS training_jobs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    status TEXT NOT NULL,
    progress INT NOT NULL,
    source_duration_seconds INT NOT NULL,
    failure_reason TEXT,
    sample_reference TEXT,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS training_job_events (
    seq BIGSERIAL PRIMARY KEY,
    job_id TEXT NOT NULL,
    status TEXT NOT NULL,
    progress INT NOT NULL,
    message TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	_, err := j.db.Exec(schema)
	return err
}

func (j *PostgresJournal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Record upserts the job snapshot carried by the event and appends the event.
func (j *PostgresJournal) Record(event JobEvent) error {
	job := event.Job
	query := `INSERT INTO training_jobs (id, name, status, progress, source_duration_seconds, failure_reason, sample_reference, created_at, updated_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    status = EXCLUDED.status,
    progress = EXCLUDED.progress,
    failure_reason = EXCLUDED.failure_reason,
    sample_reference = EXCLUDED.sample_reference,
    updated_at = EXCLUDED.updated_at,
    completed_at = EXCLUDED.completed_at`
	if _, err := j.db.Exec(query,
		job.ID,
		job.Name,
		job.Status,
		job.Progress,
		job.SourceDurationSeconds,
		job.FailureReason,
		job.SampleReference,
		job.CreatedAt,
		job.UpdatedAt,
		job.CompletedAt,
	); err != nil {
		return fmt.Errorf("persist job snapshot: %w", err)
	}

	_, err := j.db.Exec(
		`INSERT INTO training_job_events (job_id, status, progress, message, created_at) VALUES ($1,$2,$3,$4,$5)`,
		event.JobID, event.Status, event.Progress, event.Message, event.CreatedAt,
	)
	return err
}

// ListJobs returns persisted snapshots ordered by creation time ascending.
func (j *PostgresJournal) ListJobs() ([]TrainingJob, error) {
	rows, err := j.db.Query(`SELECT id, name, status, progress, source_duration_seconds, failure_reason, sample_reference, created_at, updated_at, completed_at FROM training_jobs ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []TrainingJob
	for rows.Next() {
		var (
			job         TrainingJob
			reason      sql.NullString
			sampleRef   sql.NullString
			completedAt sql.NullTime
		)
		if err := rows.Scan(&job.ID, &job.Name, &job.Status, &job.Progress, &job.SourceDurationSeconds, &reason, &sampleRef, &job.CreatedAt, &job.UpdatedAt, &completedAt); err != nil {
			return nil, err
		}
		if reason.Valid {
			job.FailureReason = reason.String
		}
		if sampleRef.Valid {
			job.SampleReference = sampleRef.String
		}
		if completedAt.Valid {
			at := completedAt.Time
			job.CompletedAt = &at
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListEvents returns the persisted change history for one job.
func (j *PostgresJournal) ListEvents(jobID string, limit int) ([]JobEvent, error) {
	rows, err := j.db.Query(`SELECT seq, status, progress, message, created_at FROM training_job_events WHERE job_id=$1 ORDER BY seq ASC LIMIT $2`, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []JobEvent
	for rows.Next() {
		var ev JobEvent
		if err := rows.Scan(&ev.Seq, &ev.Status, &ev.Progress, &ev.Message, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.JobID = jobID
		events = append(events, ev)
	}
	return events, rows.Err()
}
