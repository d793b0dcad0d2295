package recording

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// JobStatus is the terminal state an egress job reports on stop.
type JobStatus string

const (
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
	JobStatusAborted  JobStatus = "aborted"
)

// OutputSpec describes the composite recording the egress service produces.
type OutputSpec struct {
	Layout   string `json:"layout"`
	FileType string `json:"file_type"`
	Prefix   string `json:"prefix"`
}

// StopResult is the egress job's terminal report.
type StopResult struct {
	Status    JobStatus `json:"status"`
	FilePath  string    `json:"file_path,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Egress is the external recording job manager.
type Egress interface {
	StartJob(ctx context.Context, roomID string, spec OutputSpec) (jobID string, err error)
	StopJob(ctx context.Context, jobID string) (StopResult, error)
}

// HTTPEgress talks to the egress service over its HTTP API.
type HTTPEgress struct {
	baseURL string
	client  *http.Client
}

// NewHTTPEgress creates an egress client for the given base URL.
func NewHTTPEgress(baseURL string, timeout time.Duration) *HTTPEgress {
	return &HTTPEgress{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// StartJob requests a composite recording job for a room.
func (e *HTTPEgress) StartJob(ctx context.Context, roomID string, spec OutputSpec) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"room_id": roomID,
		"output":  spec,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/egress/start", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("egress start request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("egress start rejected: status %d", resp.StatusCode)
	}

	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode egress start response: %w", err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("egress start response missing job id")
	}
	return out.JobID, nil
}

// StopJob requests termination of a job and returns its terminal report.
func (e *HTTPEgress) StopJob(ctx context.Context, jobID string) (StopResult, error) {
	body, err := json.Marshal(map[string]string{"job_id": jobID})
	if err != nil {
		return StopResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/egress/stop", bytes.NewReader(body))
	if err != nil {
		return StopResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return StopResult{}, fmt.Errorf("egress stop request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return StopResult{}, fmt.Errorf("egress stop rejected: status %d", resp.StatusCode)
	}

	var out StopResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return StopResult{}, fmt.Errorf("failed to decode egress stop response: %w", err)
	}
	return out, nil
}

var _ Egress = (*HTTPEgress)(nil)
