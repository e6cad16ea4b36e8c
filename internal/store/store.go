// Package store keeps job snapshots. Every implementation replaces a job's
// snapshot as a whole, so readers never observe a half-applied update.
package store

import (
	"context"
	"errors"

	"dnicheck/internal/models"
)

var (
	// ErrNotFound is returned for unknown job ids
	ErrNotFound = errors.New("job not found")
	// ErrTerminal is returned when updating a job that already finished
	ErrTerminal = errors.New("job already in terminal state")
)

// Store is the job repository used by the queue and the API
type Store interface {
	// Create registers a new job in processing state and returns its id.
	Create(ctx context.Context) (string, error)

	// Get returns a snapshot of the job.
	Get(ctx context.Context, id string) (models.Job, error)

	// Update applies mutate to a copy of the job and stores the result.
	// Jobs in a terminal state are never modified.
	Update(ctx context.Context, id string, mutate func(*models.Job)) error

	Close() error
}

// apply runs mutate on a copy of current and returns the snapshot to store
func apply(current models.Job, mutate func(*models.Job)) (models.Job, error) {
	if current.Status.IsTerminal() {
		return models.Job{}, ErrTerminal
	}

	next := current.Clone()
	mutate(&next)
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	return next.Clone(), nil
}
