package store

import (
	"context"
	"sync"
	"time"

	"dnicheck/internal/models"

	"github.com/google/uuid"
)

// MemoryStore keeps jobs in process memory. Jobs are never evicted.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]models.Job
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]models.Job)}
}

func (s *MemoryStore) Create(ctx context.Context) (string, error) {
	now := time.Now()
	job := models.Job{
		ID:        uuid.New().String(),
		Status:    models.JobStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return job.ID, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, ErrNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, mutate func(*models.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}

	next, err := apply(current, mutate)
	if err != nil {
		return err
	}
	next.UpdatedAt = time.Now()
	s.jobs[id] = next
	return nil
}

// Len returns the number of stored jobs
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *MemoryStore) Close() error {
	return nil
}
