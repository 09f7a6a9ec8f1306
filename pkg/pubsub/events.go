package pubsub

import (
	"time"

	"github.com/dd0wney/cluso-epinet/pkg/disease"
)

// TopicProgress carries seed lifecycle and timestep events.
const TopicProgress = "progress"

// EventKind identifies a progress event.
type EventKind int

const (
	SeedStarted EventKind = iota
	TimestepDone
	SeedFinished
	RunFinished
)

func (k EventKind) String() string {
	switch k {
	case SeedStarted:
		return "seed_started"
	case TimestepDone:
		return "timestep"
	case SeedFinished:
		return "seed_finished"
	case RunFinished:
		return "run_finished"
	default:
		return "unknown"
	}
}

// Event is a progress notification. Fields not relevant to Kind are zero.
type Event struct {
	Kind     EventKind
	RunID    string
	Seed     int64
	Timestep int
	Total    int
	Counts   disease.Counts
	Status   string
	Err      string
	At       time.Time
}
