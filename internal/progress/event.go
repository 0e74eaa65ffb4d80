// Package progress provides the event primitives and non-blocking hub the
// crawl pipeline uses to report run milestones. Events are batched on a
// background goroutine and fanned out to pluggable sinks.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStarted  Stage = "RUN_STARTED"
	StageRunFinished Stage = "RUN_FINISHED"
	StagePageFetched Stage = "PAGE_FETCHED"
	StagePageFailed  Stage = "PAGE_FAILED"
	StagePageIndexed Stage = "PAGE_INDEXED"
)

// Event captures a single pipeline milestone.
type Event struct {
	// RunID identifies the crawl run the event belongs to.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage is the milestone that occurred.
	Stage Stage
	// URL is the page the event concerns, empty for run-level stages.
	URL string
	// Host scopes page events to a hostname label.
	Host string
	// Bytes is the response size for fetch completions.
	Bytes int64
	// Chunks is the number of chunks indexed for PAGE_INDEXED.
	Chunks int
	// Dur is the wall time of the operation, when measured.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation before an event enters the hub.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStarted, StageRunFinished:
	case StagePageFetched, StagePageFailed, StagePageIndexed:
		if e.URL == "" {
			return errors.New("page event requires a url")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
