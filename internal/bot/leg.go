package bot

import (
	"fmt"
	"time"

	"hedged-grid-backtest/internal/models"
)

// LegState is the lifecycle position of one grid leg.
type LegState int

const (
	LegNone LegState = iota
	LegOpenPending
	LegOpenFilled
	LegCloseFilled
	LegCancelled
)

func (s LegState) String() string {
	switch s {
	case LegNone:
		return "NONE"
	case LegOpenPending:
		return "OPEN_PENDING"
	case LegOpenFilled:
		return "OPEN_FILLED"
	case LegCloseFilled:
		return "CLOSE_FILLED"
	case LegCancelled:
		return "CANCELLED"
	}
	return fmt.Sprintf("LegState(%d)", int(s))
}

// LegRecord is an open position waiting for its take-profit order.
// It is keyed by that take-profit order's id.
type LegRecord struct {
	Direction  models.Direction
	EntryPrice float64
	Volume     float64
	TradeIDs   []string
	OpenTime   time.Time
	OpenFee    float64
	OpenMaker  bool
	State      LegState
}

// favorableDelta is the per-unit move in the leg's favour.
func (r *LegRecord) favorableDelta(exit float64) float64 {
	if r.Direction == models.DirectionLong {
		return exit - r.EntryPrice
	}
	return r.EntryPrice - exit
}
