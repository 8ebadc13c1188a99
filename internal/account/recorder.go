package account

import (
	"fmt"
	"strings"
	"time"

	"hedged-grid-backtest/internal/models"
)

// RecordMode selects how much history the account keeps.
type RecordMode int

const (
	// RecordFull keeps one equity point per bar and every closed leg.
	RecordFull RecordMode = iota
	// RecordDaily keeps the last equity point of each UTC day and no leg log.
	RecordDaily
)

func (m RecordMode) String() string {
	switch m {
	case RecordFull:
		return "full"
	case RecordDaily:
		return "daily"
	}
	return fmt.Sprintf("RecordMode(%d)", int(m))
}

// ParseRecordMode accepts "full" or "daily" ("memory" is an alias of daily).
func ParseRecordMode(s string) (RecordMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full":
		return RecordFull, nil
	case "daily", "memory":
		return RecordDaily, nil
	}
	return 0, fmt.Errorf("unknown record mode %q", s)
}

// Recorder accumulates the equity curve and the closed-leg log.
type Recorder struct {
	mode   RecordMode
	points []models.EquityPoint
	legs   []models.ClosedLeg
}

func NewRecorder(mode RecordMode) *Recorder {
	return &Recorder{mode: mode}
}

func (r *Recorder) Mode() RecordMode { return r.mode }

// Mark appends a point. In daily mode a point on the same UTC day as the
// previous one replaces it.
func (r *Recorder) Mark(p models.EquityPoint) {
	if r.mode == RecordDaily && len(r.points) > 0 {
		last := &r.points[len(r.points)-1]
		if sameDay(last.Time, p.Time) {
			*last = p
			return
		}
	}
	r.points = append(r.points, p)
}

// RecordLeg stores a closed leg in full mode only.
func (r *Recorder) RecordLeg(leg models.ClosedLeg) {
	if r.mode != RecordFull {
		return
	}
	r.legs = append(r.legs, leg)
}

func (r *Recorder) Curve() []models.EquityPoint {
	out := make([]models.EquityPoint, len(r.points))
	copy(out, r.points)
	return out
}

func (r *Recorder) Legs() []models.ClosedLeg {
	out := make([]models.ClosedLeg, len(r.legs))
	copy(out, r.legs)
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
