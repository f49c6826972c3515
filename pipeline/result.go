package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/brendan-ward/rastertiler/tiles"
)

type Status int

const (
	StatusRendered Status = iota
	// output already existed; nothing was rendered
	StatusExists
	StatusFailed
	// the run was interrupted before the job was started
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusRendered:
		return "rendered"
	case StatusExists:
		return "exists"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// TileResult is reported once for every job taken off the queue
type TileResult struct {
	Region   string
	Tile     tiles.TileID
	Path     string
	Status   Status
	Empty    bool  // output matched the empty tile size and was deleted
	Size     int64 // bytes written, before any empty tile deletion
	Duration time.Duration
	Err      error
	Worker   int
}

// Summary counts tile results for a run
type Summary struct {
	Region    string
	Enqueued  int
	Rendered  int
	Existing  int
	Failed    int
	Canceled  int
	Empty     int
	Completed int64 // queue items marked done, stop sentinels included
	Elapsed   time.Duration

	mu sync.Mutex
}

func (s *Summary) add(r TileResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Status {
	case StatusRendered:
		s.Rendered++
	case StatusExists:
		s.Existing++
	case StatusFailed:
		s.Failed++
	case StatusCanceled:
		s.Canceled++
	}
	if r.Empty {
		s.Empty++
	}
}

func (s *Summary) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fmt.Sprintf("%s: %d tiles (%d rendered, %d existing, %d empty, %d failed, %d canceled) in %v",
		s.Region, s.Enqueued, s.Rendered, s.Existing, s.Empty, s.Failed, s.Canceled, s.Elapsed.Round(time.Millisecond))
}
