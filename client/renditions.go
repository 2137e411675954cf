package client

import "time"

// QualityTier is the viewer-facing quality setting.
type QualityTier string

const (
	TierAuto   QualityTier = "auto"
	TierLow    QualityTier = "low"
	TierMedium QualityTier = "medium"
	TierHigh   QualityTier = "high"
)

// BandwidthClass is a probe measurement bucketed against fixed thresholds.
type BandwidthClass string

const (
	ClassLow    BandwidthClass = "low"
	ClassMedium BandwidthClass = "medium"
	ClassHigh   BandwidthClass = "high"
)

// Throughput thresholds in kilobits per second.
const (
	lowCeilingKbps    = 1500
	mediumCeilingKbps = 4000
)

// BandwidthSample is one timed probe result.
type BandwidthSample struct {
	Kbps  float64
	Class BandwidthClass
	At    time.Time
}

// classifyKbps buckets a measured throughput.
func classifyKbps(kbps float64) BandwidthClass {
	switch {
	case kbps < lowCeilingKbps:
		return ClassLow
	case kbps < mediumCeilingKbps:
		return ClassMedium
	default:
		return ClassHigh
	}
}

// renditionIndexFor maps a bandwidth class onto an index into a rendition
// list ordered highest quality first: high takes the first rendition, low
// the last, medium the middle.
func renditionIndexFor(class BandwidthClass, count int) (int, bool) {
	if count <= 0 {
		return 0, false
	}
	switch class {
	case ClassHigh:
		return 0, true
	case ClassLow:
		return count - 1, true
	default:
		return count / 2, true
	}
}

// classForTier translates a pinned tier into the class used for rendition
// mapping.
func classForTier(tier QualityTier) (BandwidthClass, bool) {
	switch tier {
	case TierLow:
		return ClassLow, true
	case TierMedium:
		return ClassMedium, true
	case TierHigh:
		return ClassHigh, true
	}
	return "", false
}
