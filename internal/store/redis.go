package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dnicheck/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const maxUpdateRetries = 5

// RedisStore keeps one JSON snapshot per job with a TTL
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, opts *redis.Options, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Create(ctx context.Context) (string, error) {
	now := time.Now()
	job := models.Job{
		ID:        uuid.New().String(),
		Status:    models.JobStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to encode job: %w", err)
	}

	ok, err := s.client.SetNX(ctx, jobKey(job.ID), data, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("job %s already exists", job.ID)
	}
	return job.ID, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (models.Job, error) {
	data, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Job{}, ErrNotFound
	} else if err != nil {
		return models.Job{}, fmt.Errorf("failed to get job: %w", err)
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return models.Job{}, fmt.Errorf("failed to decode job: %w", err)
	}
	return job, nil
}

// Update uses an optimistic WATCH/MULTI transaction on the job key
func (s *RedisStore) Update(ctx context.Context, id string, mutate func(*models.Job)) error {
	key := jobKey(id)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		} else if err != nil {
			return err
		}

		var current models.Job
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("failed to decode job: %w", err)
		}

		next, err := apply(current, mutate)
		if err != nil {
			return err
		}
		next.UpdatedAt = time.Now()

		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("failed to update job %s: too many concurrent writers", id)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func jobKey(id string) string { return fmt.Sprintf("jobs:%s", id) }
