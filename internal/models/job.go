package models

import (
	"time"
)

// JobStatus is the lifecycle state of a verification job
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// IsTerminal reports whether no further transition may leave this status
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// Outcome codes produced locally rather than by the remote service
const (
	OutcomeError      = "ERROR"
	OutcomeNoResponse = "SIN_RESPUESTA"
)

// RowResult is the verification result of one spreadsheet row
type RowResult struct {
	DNI       string `json:"DNI"`
	Resultado string `json:"Resultado"`
}

// VerificationOutcome is the normalized answer of the remote verifier
type VerificationOutcome struct {
	Resultado string      `json:"Resultado"`
	Detalle   interface{} `json:"Detalle"`
}

// Job is one batch verification run. Values are snapshots: stores hand out
// copies and never share the results slice with callers.
type Job struct {
	ID         string      `json:"id"`
	Status     JobStatus   `json:"status"`
	Progress   int         `json:"progress"`
	Processed  int         `json:"processed"`
	Total      int         `json:"total"`
	Results    []RowResult `json:"resultados,omitempty"`
	ResultFile string      `json:"result_file,omitempty"`
	Message    string      `json:"message,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Clone returns a deep copy of the job
func (j Job) Clone() Job {
	if j.Results != nil {
		j.Results = append([]RowResult(nil), j.Results...)
	}
	return j
}

// Snapshot returns the progress view exposed to pollers. The shape depends on
// the status: errors only carry the message, completed jobs carry results.
func (j Job) Snapshot() map[string]interface{} {
	switch j.Status {
	case JobStatusError:
		return map[string]interface{}{
			"status":   j.Status,
			"message":  j.Message,
			"progress": 0,
		}
	case JobStatusCompleted:
		results := j.Results
		if results == nil {
			results = []RowResult{}
		}
		return map[string]interface{}{
			"status":      j.Status,
			"progress":    j.Progress,
			"processed":   j.Processed,
			"total":       j.Total,
			"result_file": j.ResultFile,
			"resultados":  results,
		}
	default:
		return map[string]interface{}{
			"status":    j.Status,
			"progress":  j.Progress,
			"processed": j.Processed,
			"total":     j.Total,
		}
	}
}
