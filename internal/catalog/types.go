package catalog

import (
	"fmt"
	"strings"
)

// ContentType tags the kind of content a request refers to.
type ContentType string

const (
	TypeMovie   ContentType = "movie"
	TypeEpisode ContentType = "episode"
	TypeChannel ContentType = "channel"
)

// ParseContentType normalizes and validates a content type string.
func ParseContentType(raw string) (ContentType, error) {
	switch ContentType(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeMovie:
		return TypeMovie, nil
	case TypeEpisode:
		return TypeEpisode, nil
	case TypeChannel:
		return TypeChannel, nil
	}
	return "", fmt.Errorf("unknown content type %q", raw)
}

// ContentRef identifies a single playable content item.
type ContentRef struct {
	Type ContentType
	ID   int64
}

func (r ContentRef) String() string {
	return fmt.Sprintf("%s/%d", r.Type, r.ID)
}

// Format identifies the container/protocol of a stream source.
type Format string

const (
	FormatHLS  Format = "hls"
	FormatMP4  Format = "mp4"
	FormatDASH Format = "dash"
	FormatTS   Format = "ts"
	FormatWebM Format = "webm"
)

// IsPlaylist reports whether the format delivers a text playlist that must
// be rewritten before it reaches the player.
func (f Format) IsPlaylist() bool {
	return f == FormatHLS
}

// ParseFormat normalizes and validates a format string.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatHLS:
		return FormatHLS, nil
	case FormatMP4:
		return FormatMP4, nil
	case FormatDASH:
		return FormatDASH, nil
	case FormatTS:
		return FormatTS, nil
	case FormatWebM:
		return FormatWebM, nil
	}
	return "", fmt.Errorf("unknown stream format %q", raw)
}

// StreamSource is one candidate origin for a content item. Lower Priority is
// preferred; equal priorities keep their declaration order.
type StreamSource struct {
	URL      string
	Priority int
	Format   Format
	Label    string
}

// Entitlement describes what a user is currently allowed to watch.
type Entitlement struct {
	IsPremium bool
}
