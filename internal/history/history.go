// Package history records playback-start events. Recording is best-effort
// everywhere: a failed write is logged by the caller and never blocks or
// fails a stream.
package history

import (
	"context"
	"time"

	"github.com/famomatic/streamgate/internal/catalog"
)

// Event is one playback start.
type Event struct {
	UserID      string
	ContentType catalog.ContentType
	ContentID   int64
	StartedAt   time.Time
}

// Recorder is the narrow contract to the external watch-history system.
type Recorder interface {
	RecordPlaybackStart(ctx context.Context, ev Event) error
}

// Nop discards every event. Used when no history backend is configured.
type Nop struct{}

func (Nop) RecordPlaybackStart(context.Context, Event) error { return nil }
