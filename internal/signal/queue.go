package signal

import (
	"container/heap"
	"fmt"
	"sync"

	"wyckoff-trading-bot/config"
)

// PriorityComponents are the normalized inputs to a priority score.
type PriorityComponents struct {
	Confidence      float64 `json:"confidence"`       // raw, 70-95 domain
	RMultiple       float64 `json:"r_multiple"`       // raw, floor 2.0
	PatternPriority int     `json:"pattern_priority"` // rank 1-4, 1 = highest

	NormConfidence float64 `json:"norm_confidence"`
	NormRMultiple  float64 `json:"norm_r_multiple"`
	NormPattern    float64 `json:"norm_pattern"`
}

// PriorityScore is the weighted composite ranking a signal. Computed on
// enqueue and discarded with the queue entry; never persisted.
type PriorityScore struct {
	SignalID   string             `json:"signal_id"`
	Score      float64            `json:"priority_score"` // 0-100
	Components PriorityComponents `json:"components"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// Recompute derives the score from the stored components and weights,
// so audit tooling can verify the queue's arithmetic.
func (ps PriorityScore) Recompute(cfg config.QueueConfig) float64 {
	c := ps.Components
	return 100 * (cfg.ConfidenceWeight*c.NormConfidence +
		cfg.RMultipleWeight*c.NormRMultiple +
		cfg.PatternWeight*c.NormPattern)
}

type queueEntry struct {
	signal *TradeSignal
	score  PriorityScore
	seq    uint64 // insertion order for FIFO tie-breaking
	index  int
}

// entryHeap orders entries score-descending, then pattern rank
// ascending, then insertion order.
type entryHeap []*queueEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].score.Score != h[j].score.Score {
		return h[i].score.Score > h[j].score.Score
	}
	if h[i].score.Components.PatternPriority != h[j].score.Components.PatternPriority {
		return h[i].score.Components.PatternPriority < h[j].score.Components.PatternPriority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*queueEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// PriorityQueue is the single shared max-priority queue over validated
// signals. All operations are linearizable behind one mutex; it is the
// only place cross-symbol ordering is imposed.
type PriorityQueue struct {
	mu      sync.Mutex
	heap    entryHeap
	byID    map[string]*queueEntry
	cfg     config.QueueConfig
	nextSeq uint64
}

// NewPriorityQueue creates an empty queue with the given score weights.
func NewPriorityQueue(cfg config.QueueConfig) *PriorityQueue {
	return &PriorityQueue{
		byID: make(map[string]*queueEntry),
		cfg:  cfg,
	}
}

// Push scores and enqueues a signal.
func (q *PriorityQueue) Push(s *TradeSignal) PriorityScore {
	q.mu.Lock()
	defer q.mu.Unlock()

	score := q.score(s)
	e := &queueEntry{signal: s, score: score, seq: q.nextSeq}
	q.nextSeq++
	heap.Push(&q.heap, e)
	q.byID[s.ID] = e
	s.Status = StatusQueued
	return score
}

// Pop removes and returns the highest-priority signal, or nil when the
// queue is empty.
func (q *PriorityQueue) Pop() *TradeSignal {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return nil
	}
	e := heap.Pop(&q.heap).(*queueEntry)
	delete(q.byID, e.signal.ID)
	return e.signal
}

// Peek returns the highest-priority signal without removing it.
func (q *PriorityQueue) Peek() *TradeSignal {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return nil
	}
	return q.heap[0].signal
}

// AllSorted returns every queued signal in stable priority-descending
// order without mutating the queue.
func (q *PriorityQueue) AllSorted() []*TradeSignal {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Copy entries by value so popping the scratch heap cannot disturb
	// the live heap's indexes.
	tmp := make(entryHeap, len(q.heap))
	for i, e := range q.heap {
		c := *e
		tmp[i] = &c
	}
	heap.Init(&tmp)

	out := make([]*TradeSignal, 0, len(tmp))
	for tmp.Len() > 0 {
		out = append(out, heap.Pop(&tmp).(*queueEntry).signal)
	}
	return out
}

// ScoreOf returns the PriorityScore computed for a queued signal.
func (q *PriorityQueue) ScoreOf(signalID string) (PriorityScore, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byID[signalID]
	if !ok {
		return PriorityScore{}, fmt.Errorf("signal %s not found in queue", signalID)
	}
	return e.score, nil
}

// Len reports the number of queued signals.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// score normalizes the signal's components against their documented
// domain ranges and applies the configured weights. Values outside the
// documented bounds are clamped rather than extrapolated, and flagged.
func (q *PriorityQueue) score(s *TradeSignal) PriorityScore {
	var warnings []string

	normConf, clamped := normalize(s.Confidence, q.cfg.ConfidenceFloor, q.cfg.ConfidenceCeil)
	if clamped {
		warnings = append(warnings, fmt.Sprintf(
			"confidence %.1f outside [%.0f, %.0f], clamped", s.Confidence, q.cfg.ConfidenceFloor, q.cfg.ConfidenceCeil))
	}

	normR, clamped := normalize(s.RMultiple, q.cfg.RMultipleFloor, q.cfg.RMultipleCeil)
	if clamped {
		warnings = append(warnings, fmt.Sprintf(
			"r-multiple %.2f outside [%.1f, %.1f], clamped", s.RMultiple, q.cfg.RMultipleFloor, q.cfg.RMultipleCeil))
	}

	rank := s.PatternType.PriorityRank()
	normPattern, clamped := normalize(float64(4-rank), 0, 3) // rank 1 -> 1.0
	if clamped {
		warnings = append(warnings, fmt.Sprintf("pattern rank %d outside [1, 4], clamped", rank))
	}

	components := PriorityComponents{
		Confidence:      s.Confidence,
		RMultiple:       s.RMultiple,
		PatternPriority: rank,
		NormConfidence:  normConf,
		NormRMultiple:   normR,
		NormPattern:     normPattern,
	}

	ps := PriorityScore{
		SignalID:   s.ID,
		Components: components,
		Warnings:   warnings,
	}
	ps.Score = ps.Recompute(q.cfg)
	return ps
}

// normalize maps v into [0,1] against [lo,hi], reporting whether it had
// to clamp.
func normalize(v, lo, hi float64) (float64, bool) {
	if hi <= lo {
		return 0, true
	}
	n := (v - lo) / (hi - lo)
	switch {
	case n < 0:
		return 0, true
	case n > 1:
		return 1, true
	default:
		return n, false
	}
}
