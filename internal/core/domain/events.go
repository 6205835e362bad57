package domain

import "time"

type EventOutcome string

const (
	EventStart   EventOutcome = "start"
	EventSuccess EventOutcome = "success"
	EventSkip    EventOutcome = "skip"
	EventFailure EventOutcome = "failure"
)

// Event is one timestamped start/finish/error record per stage or module,
// consumed by external telemetry collaborators. Module is empty for
// stage-level events.
type Event struct {
	Timestamp  time.Time    `json:"timestamp"`
	Stage      Stage        `json:"stage"`
	Module     string       `json:"module,omitempty"`
	Outcome    EventOutcome `json:"outcome"`
	DurationMs int64        `json:"duration_ms,omitempty"`
	Detail     string       `json:"detail,omitempty"`
}
