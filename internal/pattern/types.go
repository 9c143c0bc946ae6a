package pattern

import (
	"fmt"
	"strings"
	"time"
)

// Type is the closed set of Wyckoff event patterns the pipeline emits.
type Type string

const (
	Spring Type = "SPRING" // low-volume shakeout below support
	SOS    Type = "SOS"    // sign of strength: high-volume breakout
	LPS    Type = "LPS"    // last point of support: moderate-volume retest
	UTAD   Type = "UTAD"   // upthrust after distribution: failed breakout
	SC     Type = "SC"     // selling climax
	AR     Type = "AR"     // automatic rally
	ST     Type = "ST"     // secondary test
)

// All lists every recognized pattern type.
func All() []Type {
	return []Type{Spring, SOS, LPS, UTAD, SC, AR, ST}
}

// Parse resolves a pattern type case-insensitively. Unknown names are
// an error, never coerced to a default.
func Parse(s string) (Type, error) {
	switch Type(strings.ToUpper(strings.TrimSpace(s))) {
	case Spring:
		return Spring, nil
	case SOS:
		return SOS, nil
	case LPS:
		return LPS, nil
	case UTAD:
		return UTAD, nil
	case SC:
		return SC, nil
	case AR:
		return AR, nil
	case ST:
		return ST, nil
	default:
		return "", fmt.Errorf("unknown pattern type %q", s)
	}
}

// PriorityRank orders tradeable patterns for execution priority.
// Lower rank is higher priority. Non-tradeable structural events
// (SC/AR/ST) rank last.
func (t Type) PriorityRank() int {
	switch t {
	case Spring:
		return 1
	case LPS:
		return 2
	case SOS:
		return 3
	case UTAD:
		return 4
	default:
		return 5
	}
}

// Phase is a Wyckoff accumulation/distribution cycle phase.
type Phase string

const (
	PhaseA Phase = "A"
	PhaseB Phase = "B"
	PhaseC Phase = "C"
	PhaseD Phase = "D"
	PhaseE Phase = "E"
)

// Candidate is a detected pattern occurrence handed to validation.
// Geometry fields are computed by the detectors and treated as opaque
// inputs here; validation never recomputes them.
type Candidate struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Type      Type      `json:"pattern_type"`
	Phase     Phase     `json:"phase"`
	BarIndex  int       `json:"bar_index"`
	BarTime   time.Time `json:"bar_time"`

	// VolumeRatio is current/average volume on the triggering bar.
	// Nil means the upstream analysis could not produce one; validation
	// treats that as a hard FAIL, never a silent pass.
	VolumeRatio *float64 `json:"volume_ratio,omitempty"`

	// Pattern-specific geometry.
	PenetrationDepth float64 `json:"penetration_depth,omitempty"` // % below support / above resistance
	RecoveryBars     int     `json:"recovery_bars,omitempty"`     // bars to reclaim the broken level
	SupportLevel     float64 `json:"support_level,omitempty"`
	ResistanceLevel  float64 `json:"resistance_level,omitempty"`
	TriggerPrice     float64 `json:"trigger_price,omitempty"`

	// Confidence is the detector's score for this occurrence, 0-100.
	Confidence float64 `json:"confidence"`

	DetectedAt time.Time `json:"detected_at"`
}
