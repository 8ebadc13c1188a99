// Package account tracks compounding order sizes, realized PnL, equity,
// drawdown and the one-way trading halt of a single grid run.
package account

import (
	"fmt"
	"math"
	"time"

	"hedged-grid-backtest/internal/fee"
	"hedged-grid-backtest/internal/models"
)

// minPriceDivisor guards the quote→unit conversion against zero prices.
const minPriceDivisor = 1e-9

// TradingState is Active until the drawdown breaker trips, then Halted for good.
type TradingState int

const (
	Active TradingState = iota
	Halted
)

func (s TradingState) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Halted:
		return "HALTED"
	}
	return fmt.Sprintf("TradingState(%d)", int(s))
}

// Limits are the sizing and risk bounds of a run.
type Limits struct {
	MinOrderSize       float64
	MaxPositionSize    float64
	MaxNetExposure     float64
	MaxDrawdownPercent float64
	InitialEquity      float64
}

// LimitsFromConfig extracts the account bounds from strategy parameters.
func LimitsFromConfig(cfg models.StrategyConfig) Limits {
	return Limits{
		MinOrderSize:       cfg.MinOrderSize,
		MaxPositionSize:    cfg.MaxIndividualPositionSize,
		MaxNetExposure:     cfg.MaxNetExposureLimit,
		MaxDrawdownPercent: cfg.MaxAccountDrawdownPercent,
		InitialEquity:      cfg.InitialEquityQuote,
	}
}

// Account is owned by exactly one strategy instance and is not safe for
// concurrent use.
type Account struct {
	limits   Limits
	fees     *fee.Ledger
	recorder *Recorder

	basePrice   float64
	longSize    float64
	shortSize   float64
	rebateLong  float64
	rebateShort float64
	realizedPnL float64
	equity      float64
	drawdown    float64
	maxDrawdown float64
	state       TradingState

	closedLegs  int
	winningLegs int
	losingLegs  int
}

// New creates an account at initial equity with sizes at the floor.
func New(limits Limits, fees fee.Model, mode RecordMode) *Account {
	return &Account{
		limits:    limits,
		fees:      fee.NewLedger(fees),
		recorder:  NewRecorder(mode),
		equity:    limits.InitialEquity,
		longSize:  limits.MinOrderSize,
		shortSize: limits.MinOrderSize,
	}
}

// InitSizes seeds the compounding sizes, never below the order floor.
func (a *Account) InitSizes(longInit, shortInit float64) {
	a.longSize = math.Max(longInit, a.limits.MinOrderSize)
	a.shortSize = math.Max(shortInit, a.limits.MinOrderSize)
}

func (a *Account) BasePrice() float64 { return a.basePrice }

func (a *Account) SetBasePrice(p float64) { a.basePrice = p }

// Size returns the raw compounding size of a side.
func (a *Account) Size(dir models.Direction) float64 {
	if dir == models.DirectionLong {
		return a.longSize
	}
	return a.shortSize
}

// OrderSize is the size a new grid order of that side is submitted with.
func (a *Account) OrderSize(dir models.Direction) float64 {
	return math.Max(a.limits.MinOrderSize, math.Min(a.Size(dir), a.limits.MaxPositionSize))
}

// ChargeFee prices a fill and updates the running fee totals.
func (a *Account) ChargeFee(price, volume float64, isMaker bool) float64 {
	return a.fees.Charge(price, volume, isMaker)
}

// Realize books a closed leg: PnL, equity, compounding of the closed side
// and the win/loss counters.
func (a *Account) Realize(leg models.ClosedLeg) {
	a.realizedPnL += leg.NetPnL
	a.equity = a.limits.InitialEquity + a.realizedPnL

	a.compound(leg.Direction, leg.NetPnL, leg.ExitPrice)

	a.closedLegs++
	if leg.NetPnL > 0 {
		a.winningLegs++
	} else {
		a.losingLegs++
	}
	a.recorder.RecordLeg(leg)
}

func (a *Account) compound(dir models.Direction, netQuote, price float64) {
	gain := netQuote / math.Max(price, minPriceDivisor)
	if dir == models.DirectionLong {
		a.longSize = a.clampSize(a.longSize + gain)
		a.rebateLong += math.Max(0, gain)
		return
	}
	a.shortSize = a.clampSize(a.shortSize + gain)
	a.rebateShort += math.Max(0, gain)
}

func (a *Account) clampSize(size float64) float64 {
	return math.Min(math.Max(size, a.limits.MinOrderSize), a.limits.MaxPositionSize)
}

// ExposureReduction returns the quantity to trade against netPos when it
// exceeds the exposure limit. ok is false when no reduction is needed.
func (a *Account) ExposureReduction(netPos float64) (qty float64, ok bool) {
	excess := math.Abs(netPos) - a.limits.MaxNetExposure
	if excess <= 0 {
		return 0, false
	}
	side := models.DirectionLong
	if netPos < 0 {
		side = models.DirectionShort
	}
	qty = math.Min(excess, a.Size(side))
	return qty, qty > 0
}

// CheckDrawdown refreshes the drawdown figures and reports whether this
// call tripped the halt.
func (a *Account) CheckDrawdown() bool {
	initial := a.limits.InitialEquity
	if initial <= 0 {
		return false
	}
	a.drawdown = math.Max(0, (initial-a.equity)/initial)
	a.maxDrawdown = math.Max(a.maxDrawdown, a.drawdown)

	if a.limits.MaxDrawdownPercent > 0 && a.drawdown >= a.limits.MaxDrawdownPercent {
		return a.Halt()
	}
	return false
}

// Halt moves the account to Halted. It reports false if it already was.
func (a *Account) Halt() bool {
	if a.state == Halted {
		return false
	}
	a.state = Halted
	return true
}

func (a *Account) State() TradingState { return a.state }

func (a *Account) Halted() bool { return a.state == Halted }

func (a *Account) Equity() float64 { return a.equity }

func (a *Account) RealizedPnL() float64 { return a.realizedPnL }

func (a *Account) MaxDrawdown() float64 { return a.maxDrawdown }

// Mark samples the equity curve at ts.
func (a *Account) Mark(ts time.Time) {
	a.recorder.Mark(models.EquityPoint{
		Time:        ts,
		Equity:      a.equity,
		Drawdown:    a.drawdown,
		MaxDrawdown: a.maxDrawdown,
	})
}

// EquityCurve returns a copy of the recorded curve.
func (a *Account) EquityCurve() []models.EquityPoint {
	return a.recorder.Curve()
}

// ClosedLegs returns the leg log; empty in daily mode.
func (a *Account) ClosedLegs() []models.ClosedLeg {
	return a.recorder.Legs()
}

func (a *Account) Mode() RecordMode { return a.recorder.Mode() }

// Snapshot copies the account state.
func (a *Account) Snapshot() models.AccountSnapshot {
	totals := a.fees.Totals()
	return models.AccountSnapshot{
		BasePrice:        a.basePrice,
		LongSize:         a.longSize,
		ShortSize:        a.shortSize,
		RebateUnitsLong:  a.rebateLong,
		RebateUnitsShort: a.rebateShort,
		RealizedPnL:      a.realizedPnL,
		FeePaidQuote:     totals.PaidQuote,
		FeeRebateQuote:   totals.RebateQuote,
		MakerFills:       totals.MakerFills,
		TakerFills:       totals.TakerFills,
		InitialEquity:    a.limits.InitialEquity,
		Equity:           a.equity,
		Drawdown:         a.drawdown,
		MaxDrawdown:      a.maxDrawdown,
		ClosedLegs:       a.closedLegs,
		WinningLegs:      a.winningLegs,
		LosingLegs:       a.losingLegs,
		Halted:           a.Halted(),
	}
}
