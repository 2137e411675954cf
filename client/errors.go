package client

import "errors"

var (
	// ErrAllSourcesExhausted indicates every known source failed fatally.
	ErrAllSourcesExhausted = errors.New("all sources exhausted")
	// ErrNotPlaying indicates an operation that requires active playback.
	ErrNotPlaying = errors.New("not playing")
	// ErrAlreadyStarted indicates Start was called twice on one controller.
	ErrAlreadyStarted = errors.New("playback already started")
	// ErrClosed indicates the controller has been torn down.
	ErrClosed = errors.New("controller closed")
)
