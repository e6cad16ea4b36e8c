package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"dnicheck/internal/models"
	"dnicheck/internal/storage"
	"dnicheck/internal/store"
	"dnicheck/internal/verifier"

	"github.com/panjf2000/ants/v2"
)

// ErrPoolOverloaded is returned when no worker can take a new job
var ErrPoolOverloaded = errors.New("too many jobs in progress")

// Publisher receives every snapshot the processor stores
type Publisher interface {
	Publish(job models.Job)
}

// Queue creates verification jobs and runs them on a worker pool
type Queue struct {
	ctx       context.Context
	store     store.Store
	verifier  verifier.Verifier
	artifacts storage.ArtifactStore
	pool      *ants.Pool
	publisher Publisher
}

// NewQueue creates a new queue. Jobs inherit ctx; cancelling it makes
// running jobs stop before their next row. publisher may be nil.
func NewQueue(ctx context.Context, st store.Store, v verifier.Verifier, artifacts storage.ArtifactStore, pool *ants.Pool, publisher Publisher) *Queue {
	return &Queue{
		ctx:       ctx,
		store:     st,
		verifier:  v,
		artifacts: artifacts,
		pool:      pool,
		publisher: publisher,
	}
}

// CreateJob registers a new job in processing state
func (q *Queue) CreateJob(ctx context.Context) (string, error) {
	id, err := q.store.Create(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	return id, nil
}

// StartJob schedules processing of the table at sourcePath and returns
// without waiting for it
func (q *Queue) StartJob(jobID, sourcePath string) error {
	err := q.pool.Submit(func() {
		q.Run(q.ctx, jobID, sourcePath)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, ants.ErrPoolOverload) {
		err = ErrPoolOverloaded
	}
	q.FailJob(jobID, err)
	if errors.Is(err, ErrPoolOverloaded) {
		return err
	}
	return fmt.Errorf("failed to schedule job: %w", err)
}

// GetJob returns the latest snapshot of a job
func (q *Queue) GetJob(ctx context.Context, jobID string) (models.Job, error) {
	return q.store.Get(ctx, jobID)
}

// OpenArtifact returns the result file of a completed job
func (q *Queue) OpenArtifact(ctx context.Context, job models.Job) (io.ReadCloser, error) {
	if job.Status != models.JobStatusCompleted {
		return nil, ErrNotCompleted
	}
	return q.artifacts.OpenArtifact(ctx, job.ResultFile)
}

// FailJob moves a job to the error state, dropping any partial results
func (q *Queue) FailJob(jobID string, cause error) {
	log.Printf("Job %s failed: %v", jobID, cause)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snapshot := models.Job{
		ID:      jobID,
		Status:  models.JobStatusError,
		Message: cause.Error(),
	}
	if err := q.publish(ctx, snapshot); err != nil {
		log.Printf("Failed to record error for job %s: %v", jobID, err)
	}
}

// publish stores a snapshot and forwards it to the publisher
func (q *Queue) publish(ctx context.Context, snapshot models.Job) error {
	var stored models.Job
	err := q.store.Update(ctx, snapshot.ID, func(j *models.Job) {
		*j = snapshot
		stored = *j
	})
	if err != nil {
		return err
	}

	if q.publisher != nil {
		q.publisher.Publish(stored.Clone())
	}
	return nil
}
