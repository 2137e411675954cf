package client

import (
	"context"
	"time"
)

// Player is the embedded media player the controller drives. Implementations
// wrap whatever playback engine the host application embeds; the controller
// only ever talks to this interface.
type Player interface {
	// Load attaches a stream URL, seeking to opts.Position and honoring
	// opts.Paused. A non-nil error means the source failed at attach time.
	Load(ctx context.Context, url string, opts LoadOptions) error

	// Snapshot reports current position and pause state, used to hand
	// playback over to another source seamlessly.
	Snapshot() PlaybackSnapshot

	// Renditions lists the quality renditions the loaded stream advertises,
	// ordered highest quality first. Empty when the stream has a single
	// rendition.
	Renditions() []Rendition

	// SetRendition switches to the rendition at the given index.
	SetRendition(index int) error

	// Events delivers playback events until Close. The channel is owned by
	// the player and closed on Close.
	Events() <-chan Event

	// Close releases the underlying player resource.
	Close() error
}

// LoadOptions carries playback state across a source switch.
type LoadOptions struct {
	Position time.Duration
	Paused   bool
}

// PlaybackSnapshot is the position and pause state of a player at one
// moment.
type PlaybackSnapshot struct {
	Position time.Duration
	Paused   bool
}

// Rendition is one advertised quality level.
type Rendition struct {
	Name      string
	Bandwidth int
}

// EventKind classifies player events.
type EventKind int

const (
	// EventFatal is an unrecoverable playback error; the controller fails
	// over to the next source.
	EventFatal EventKind = iota
	// EventStalled is a recoverable buffering stall; logged, not acted on.
	EventStalled
	// EventEnded is normal end of playback.
	EventEnded
)

// Event is one player notification.
type Event struct {
	Kind EventKind
	Err  error
}
