package testruns

import "time"

type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// TestRun is the immutable record of one execution against a project.
type TestRun struct {
	ID              string       `json:"id"`
	ProjectID       string       `json:"project_uuid,omitempty"`
	Total           int          `json:"total"`
	Passed          int          `json:"passed"`
	Failed          int          `json:"failed"`
	PassRate        float64      `json:"pass_rate"`
	DurationSeconds float64      `json:"duration_seconds"`
	Results         []TestResult `json:"results"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Rate returns the pass rate as a percentage, deriving it from the counts
// when the backend omitted it.
func (r TestRun) Rate() float64 {
	if r.PassRate > 0 || r.Total == 0 {
		return r.PassRate
	}
	return float64(r.Passed) / float64(r.Total) * 100
}

// TestResult is the outcome of calling one endpoint.
type TestResult struct {
	Path           string      `json:"path"`
	Method         string      `json:"method"`
	StatusCode     int         `json:"status_code"`
	ResponseTimeMs float64     `json:"response_time_ms"`
	Status         Status      `json:"status"`
	Assertions     []Assertion `json:"assertions"`
	Error          string      `json:"error,omitempty"`
}

type Assertion struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Expected any    `json:"expected,omitempty"`
	Actual   any    `json:"actual,omitempty"`
	Message  string `json:"message,omitempty"`
}

// RunConfig selects what a run exercises. Empty EndpointIDs means every endpoint.
type RunConfig struct {
	EndpointIDs    []string          `json:"endpoint_ids,omitempty"`
	ModelID        string            `json:"ai_model,omitempty"`
	BaseURL        string            `json:"base_url,omitempty" validate:"omitempty,url"`
	Headers        map[string]string `json:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty" validate:"omitempty,min=1,max=600"`
}

// Range is the performance reporting window.
type Range string

const (
	Range24h Range = "24h"
	Range7d  Range = "7d"
	Range30d Range = "30d"
	Range90d Range = "90d"
)

func (r Range) Valid() bool {
	switch r {
	case Range24h, Range7d, Range30d, Range90d:
		return true
	}
	return false
}

// Performance aggregates a project's runs over a Range.
type Performance struct {
	Range             Range              `json:"range"`
	TotalRuns         int                `json:"total_runs"`
	AvgResponseTimeMs float64            `json:"avg_response_time_ms"`
	P95ResponseTimeMs float64            `json:"p95_response_time_ms"`
	SuccessRate       float64            `json:"success_rate"`
	Points            []PerformancePoint `json:"points"`
}

type PerformancePoint struct {
	Timestamp         time.Time `json:"timestamp"`
	Runs              int       `json:"runs"`
	PassRate          float64   `json:"pass_rate"`
	AvgResponseTimeMs float64   `json:"avg_response_time_ms"`
}
