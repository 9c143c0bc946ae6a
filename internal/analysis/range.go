package analysis

// TradingRange is a detected accumulation/distribution range. The
// geometric math that produces these (pivot clustering, level
// calculation) lives in the detectors; the pipeline only carries them.
type TradingRange struct {
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
	StartIndex int     `json:"start_index"`
	EndIndex   int     `json:"end_index"`
	// Kind distinguishes accumulation from distribution structures.
	Kind string `json:"kind"`
}

// Height returns resistance minus support.
func (r TradingRange) Height() float64 { return r.Resistance - r.Support }

// PhaseDetection is a phase detector's verdict for the current range.
type PhaseDetection struct {
	Phase      string  `json:"phase"` // Wyckoff phase A-E
	Confidence float64 `json:"confidence"`
}
