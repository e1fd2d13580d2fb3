// Package storage persists render job status.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JobStatus is the lifecycle state of a render job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"

	// JobDeliveryFailed means the PDF was rendered but the result callback
	// could not be delivered.
	JobDeliveryFailed JobStatus = "delivery_failed"
)

// RenderJob tracks one PDF render request.
type RenderJob struct {
	ID       string
	ExamID   int64
	StudyUID string
	Status   JobStatus
	Error    string
	PDFSize  int64
}

// JobStore is the persistence surface for render jobs.
type JobStore interface {
	UpsertJob(ctx context.Context, job RenderJob) error
	GetJob(ctx context.Context, id string) (*RenderJob, bool, error)
	Ping(ctx context.Context) error
}

// Store handles database operations.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store instance.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("database pool cannot be nil")
	}
	return &Store{pool: pool}
}

// UpsertJob inserts or updates a render job's status.
func (s *Store) UpsertJob(ctx context.Context, job RenderJob) error {
	query := `
        INSERT INTO render_jobs (id, exam_id, study_instance_uid, status, error, pdf_size, last_updated)
        VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
        ON CONFLICT (id) DO UPDATE SET
            status = EXCLUDED.status,
            error = EXCLUDED.error,
            pdf_size = EXCLUDED.pdf_size,
            last_updated = CURRENT_TIMESTAMP
    `
	slog.DebugContext(ctx, "Setting render job status in DB", "jobID", job.ID, "status", job.Status)

	commandTag, err := s.pool.Exec(ctx, query,
		job.ID, job.ExamID, job.StudyUID, string(job.Status), job.Error, job.PDFSize)
	if err != nil {
		slog.ErrorContext(ctx, "Error upserting render job in DB", "jobID", job.ID, "error", err)
		return fmt.Errorf("failed to upsert render job: %w", err)
	}

	slog.DebugContext(ctx, "Successfully set render job status",
		"jobID", job.ID, "rowsAffected", commandTag.RowsAffected())
	return nil
}

// GetJob retrieves a render job by id. Returns the job, a found flag, and
// any database error.
func (s *Store) GetJob(ctx context.Context, id string) (*RenderJob, bool, error) {
	query := `
        SELECT id, exam_id, study_instance_uid, status, error, pdf_size
        FROM render_jobs
        WHERE id = $1
    `
	job := &RenderJob{}
	var status string

	err := s.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.ExamID, &job.StudyUID, &status, &job.Error, &job.PDFSize)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		slog.ErrorContext(ctx, "Error querying render job from DB", "jobID", id, "error", err)
		return nil, false, fmt.Errorf("failed to query render job: %w", err)
	}
	job.Status = JobStatus(status)
	return job, true, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
