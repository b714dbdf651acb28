package models

import (
	"github.com/proptour/proptour-cli/internal/constants"
)

// BatchResponse is the body returned by POST /upload-batch.
type BatchResponse struct {
	BatchID string `json:"batch_id"`
}

// BatchStatus is the body returned by GET /batch-status/{batchId}.
type BatchStatus struct {
	Status     string      `json:"status"`
	JobDetails []JobDetail `json:"job_details"`
}

// JobDetail is the per-original-file sub-status within a batch.
type JobDetail struct {
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
}

// FileDetail is one entry of the file_details metadata array sent with the
// multipart upload. Filename correlates the entry with its files[] part.
type FileDetail struct {
	Filename string  `json:"filename"`
	Prompt   string  `json:"prompt"`
	Weight   float64 `json:"weight"`
	Duration int     `json:"duration"`
}

// UploadFile pairs a source binary with its submission metadata.
type UploadFile struct {
	SourcePath string
	Detail     FileDetail
}

// IsTerminalStatus reports whether a batch status string is one of the
// closed set of terminal values. Unknown strings mean "still processing".
func IsTerminalStatus(status string) bool {
	switch status {
	case constants.StatusCompleted,
		constants.StatusFailed,
		constants.StatusError,
		constants.StatusPartiallyCompleted:
		return true
	}
	return false
}

// AggregateProgress returns the rounded arithmetic mean of the item progress
// values, and false when the detail list is empty (aggregate undefined).
func (s *BatchStatus) AggregateProgress() (int, bool) {
	if s == nil || len(s.JobDetails) == 0 {
		return 0, false
	}
	total := 0
	for _, d := range s.JobDetails {
		total += d.Progress
	}
	n := len(s.JobDetails)
	// Round half up, matching Math.round on the aggregate mean.
	return (total + n/2) / n, true
}
