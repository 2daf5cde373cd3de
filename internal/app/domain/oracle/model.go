package oracle

import (
	"time"

	"github.com/skysurety/service_layer/internal/app/domain/flight"
)

// IndexCount is the number of shard indexes assigned to each reporter.
const IndexCount = 3

// IndexRange is the exclusive upper bound of shard index values.
const IndexRange = 10

// Reporter is an independent flight-status observer. The fixed index set
// assigned at registration shards which requests it may answer.
type Reporter struct {
	ID        string          `json:"id"`
	Indexes   [IndexCount]int `json:"indexes"`
	CreatedAt time.Time       `json:"created_at"`
}

// HasIndex reports whether idx belongs to the reporter's assigned set.
func (r Reporter) HasIndex(idx int) bool {
	for _, i := range r.Indexes {
		if i == idx {
			return true
		}
	}
	return false
}

// Submission is one reporter's observation for a request. Submissions
// received after resolution are kept for audit with Counted=false.
type Submission struct {
	ReporterID  string            `json:"reporter_id"`
	Status      flight.StatusCode `json:"status"`
	Counted     bool              `json:"counted"`
	SubmittedAt time.Time         `json:"submitted_at"`
}

// Request is the per-flight consensus state machine. It stays open until
// enough matching submissions arrive; once resolved the status is immutable.
type Request struct {
	FlightKey   flight.Key        `json:"flight_key"`
	Index       int               `json:"index"`
	Submissions []Submission      `json:"submissions,omitempty"`
	Resolved    bool              `json:"resolved"`
	Status      flight.StatusCode `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// HasSubmission reports whether the reporter already answered this request.
func (r Request) HasSubmission(reporterID string) bool {
	for _, s := range r.Submissions {
		if s.ReporterID == reporterID {
			return true
		}
	}
	return false
}

// Agreement counts counted submissions matching the given status.
func (r Request) Agreement(status flight.StatusCode) int {
	n := 0
	for _, s := range r.Submissions {
		if s.Counted && s.Status == status {
			n++
		}
	}
	return n
}
