package analytics

import "time"

// Mode is the CLI mode a query was scored in.
type Mode string

const (
	ModeBatch       Mode = "batch"
	ModeInteractive Mode = "interactive"
)

// QueryEvent describes one scored query.
type QueryEvent struct {
	Mode      Mode      `json:"mode"`
	QueryID   string    `json:"query_id"`
	Terms     []string  `json:"terms"`
	Results   int       `json:"results"`
	TopDoc    string    `json:"top_doc,omitempty"`
	TopScore  float64   `json:"top_score,omitempty"`
	Strategy  string    `json:"strategy"`
	LatencyMs float64   `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
}

// Recorder receives query events. Implementations must not block scoring.
type Recorder interface {
	Record(event QueryEvent)
}

// Multi fans each event out to every non-nil recorder.
type Multi []Recorder

func (m Multi) Record(event QueryEvent) {
	for _, r := range m {
		if r != nil {
			r.Record(event)
		}
	}
}
