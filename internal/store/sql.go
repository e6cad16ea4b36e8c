package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dnicheck/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStore keeps jobs in a relational database through gorm
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore runs migrations and returns a store backed by db
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := models.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Create(ctx context.Context) (string, error) {
	now := time.Now()
	rec, err := models.NewJobRecord(models.Job{
		ID:        uuid.New().String(),
		Status:    models.JobStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return "", err
	}

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	return rec.ID, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (models.Job, error) {
	var rec models.JobRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Job{}, ErrNotFound
		}
		return models.Job{}, fmt.Errorf("failed to get job: %w", err)
	}
	return rec.ToJob()
}

// Update locks the row for the duration of the transaction
func (s *SQLStore) Update(ctx context.Context, id string, mutate func(*models.Job)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.JobRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load job: %w", err)
		}

		current, err := rec.ToJob()
		if err != nil {
			return err
		}

		next, err := apply(current, mutate)
		if err != nil {
			return err
		}
		next.UpdatedAt = time.Now()

		updated, err := models.NewJobRecord(next)
		if err != nil {
			return err
		}
		if err := tx.Save(&updated).Error; err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
