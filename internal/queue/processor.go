package queue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"dnicheck/internal/models"
	"dnicheck/internal/spreadsheet"
)

// ErrNotCompleted is returned when a job's output is requested too early
var ErrNotCompleted = errors.New("job not completed")

// Run processes one job to a terminal state. Any failure, including a
// panic, ends in the error state with no results exposed.
func (q *Queue) Run(ctx context.Context, jobID, sourcePath string) {
	defer func() {
		if r := recover(); r != nil {
			q.FailJob(jobID, fmt.Errorf("panic while processing: %v", r))
		}
	}()

	log.Printf("Job %s started: %s", jobID, sourcePath)
	if err := q.process(ctx, jobID, sourcePath); err != nil {
		q.FailJob(jobID, err)
		return
	}
	log.Printf("Job %s completed", jobID)
}

func (q *Queue) process(ctx context.Context, jobID, sourcePath string) error {
	table, err := spreadsheet.Read(sourcePath)
	if err != nil {
		return err
	}

	col, err := table.Column(spreadsheet.IdentifierColumn)
	if err != nil {
		return err
	}

	total := len(table.Rows)
	job := models.Job{
		ID:     jobID,
		Status: models.JobStatusProcessing,
		Total:  total,
	}
	if err := q.publish(ctx, job); err != nil {
		return err
	}

	results := make([]models.RowResult, 0, total)
	for i, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("job cancelled: %w", err)
		}

		dni := strings.TrimSpace(spreadsheet.Cell(row, col))
		outcome := q.verifier.Verify(ctx, dni)
		results = append(results, models.RowResult{
			DNI:       dni,
			Resultado: outcome.Resultado,
		})

		job.Processed = i + 1
		job.Progress = job.Processed * 100 / total
		job.Results = results
		if err := q.publish(ctx, job); err != nil {
			return err
		}
	}

	name := fmt.Sprintf("resultado_%s.xlsx", jobID)
	var buf bytes.Buffer
	if err := spreadsheet.WriteResults(&buf, results); err != nil {
		return err
	}
	if err := q.artifacts.SaveArtifact(ctx, name, &buf); err != nil {
		return fmt.Errorf("failed to store results: %w", err)
	}

	job.Status = models.JobStatusCompleted
	job.Progress = 100
	job.Processed = total
	job.ResultFile = name
	job.Results = results
	return q.publish(ctx, job)
}
