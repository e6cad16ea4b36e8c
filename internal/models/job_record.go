package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobRecord is the SQL row backing a Job
type JobRecord struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Status     string    `gorm:"not null;type:varchar(20);default:'processing';index" json:"status"`
	Progress   int       `gorm:"default:0" json:"progress"`
	Processed  int       `gorm:"default:0" json:"processed"`
	Total      int       `gorm:"default:0" json:"total"`
	Results    string    `gorm:"type:jsonb" json:"results"` // JSON array of RowResult
	ResultFile string    `gorm:"type:varchar(255)" json:"result_file"`
	Message    string    `gorm:"type:text" json:"message"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (JobRecord) TableName() string {
	return "jobs"
}

// NewJobRecord converts a job snapshot into its row representation
func NewJobRecord(job Job) (JobRecord, error) {
	results, err := json.Marshal(job.Results)
	if err != nil {
		return JobRecord{}, fmt.Errorf("failed to encode results: %w", err)
	}

	return JobRecord{
		ID:         job.ID,
		Status:     string(job.Status),
		Progress:   job.Progress,
		Processed:  job.Processed,
		Total:      job.Total,
		Results:    string(results),
		ResultFile: job.ResultFile,
		Message:    job.Message,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}, nil
}

// ToJob decodes the row back into a job snapshot
func (r JobRecord) ToJob() (Job, error) {
	var results []RowResult
	if r.Results != "" {
		if err := json.Unmarshal([]byte(r.Results), &results); err != nil {
			return Job{}, fmt.Errorf("failed to decode results: %w", err)
		}
	}

	return Job{
		ID:         r.ID,
		Status:     JobStatus(r.Status),
		Progress:   r.Progress,
		Processed:  r.Processed,
		Total:      r.Total,
		Results:    results,
		ResultFile: r.ResultFile,
		Message:    r.Message,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}
