package monitor

import (
	"time"

	"foamwatch/internal/classify"
)

// StatusUpdate is a periodic view of the run for live consumers.
type StatusUpdate struct {
	Status     classify.Status
	Reason     string
	SimTime    float64
	DeltaT     float64
	MaxCourant float64
	Records    int
	Malformed  int
	Phases     int
	Elapsed    time.Duration
}

// StatusWriter receives periodic status updates from the reporting ticker.
type StatusWriter interface {
	WriteStatus(s StatusUpdate) error
}
