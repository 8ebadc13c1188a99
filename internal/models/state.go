package models

import "time"

// AccountSnapshot 账户状态的只读副本
type AccountSnapshot struct {
	BasePrice        float64 `json:"base_price"`
	LongSize         float64 `json:"long_size"`          // 多头复利下单量
	ShortSize        float64 `json:"short_size"`         // 空头复利下单量
	RebateUnitsLong  float64 `json:"rebate_units_long"`  // 多头累计复利增量 (基础货币)
	RebateUnitsShort float64 `json:"rebate_units_short"` // 空头累计复利增量 (基础货币)
	RealizedPnL      float64 `json:"realized_pnl"`
	FeePaidQuote     float64 `json:"fee_paid_quote"`
	FeeRebateQuote   float64 `json:"fee_rebate_quote"`
	MakerFills       int     `json:"maker_fills"`
	TakerFills       int     `json:"taker_fills"`
	InitialEquity    float64 `json:"initial_equity"`
	Equity           float64 `json:"equity"`
	Drawdown         float64 `json:"drawdown"`
	MaxDrawdown      float64 `json:"max_drawdown"` // 只增不减
	ClosedLegs       int     `json:"closed_legs"`
	WinningLegs      int     `json:"winning_legs"`
	LosingLegs       int     `json:"losing_legs"`
	Halted           bool    `json:"halted"`
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Time        time.Time `json:"time"`
	Equity      float64   `json:"equity"`
	Drawdown    float64   `json:"drawdown"`
	MaxDrawdown float64   `json:"max_drawdown"`
}

// ClosedLeg is one completed open/take-profit round trip.
type ClosedLeg struct {
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Volume     float64   `json:"volume"`
	OpenFee    float64   `json:"open_fee"`
	CloseFee   float64   `json:"close_fee"`
	GrossPnL   float64   `json:"gross_pnl"`
	NetPnL     float64   `json:"net_pnl"`
	OpenTime   time.Time `json:"open_time"`
	CloseTime  time.Time `json:"close_time"`
}

// StrategySnapshot 策略运行状态
type StrategySnapshot struct {
	Name          string          `json:"name"`
	Account       AccountSnapshot `json:"account"`
	Position      float64         `json:"position"` // 净持仓
	ActiveLevels  int             `json:"active_levels"`
	RestingGrid   int             `json:"resting_grid_orders"`
	OpenLegs      int             `json:"open_legs"`
	LegsOpened    int             `json:"legs_opened"`
	LegsClosed    int             `json:"legs_closed"`
	LegsCancelled int             `json:"legs_cancelled"`
	IgnoredFills  int             `json:"ignored_fills"`
	TotalFills    int             `json:"total_fills"`
}

// Statistics 回测统计结果
type Statistics struct {
	StartDate           time.Time `json:"start_date"`
	EndDate             time.Time `json:"end_date"`
	TotalDays           int       `json:"total_days"`
	ProfitDays          int       `json:"profit_days"`
	LossDays            int       `json:"loss_days"`
	InitialEquity       float64   `json:"initial_equity"`
	EndEquity           float64   `json:"end_equity"`
	TotalNetPnL         float64   `json:"total_net_pnl"`
	FeePaidQuote        float64   `json:"fee_paid_quote"`
	FeeRebateQuote      float64   `json:"fee_rebate_quote"`
	TotalReturn         float64   `json:"total_return"`  // %
	AnnualReturn        float64   `json:"annual_return"` // %
	DailyReturnMean     float64   `json:"daily_return_mean"`
	DailyReturnStd      float64   `json:"daily_return_std"`
	SharpeRatio         float64   `json:"sharpe_ratio"`
	MaxDrawdown         float64   `json:"max_drawdown"`         // 高水位回撤 (计价货币)
	MaxDrawdownPercent  float64   `json:"max_drawdown_percent"` // 高水位回撤 %
	MaxDrawdownDuration int       `json:"max_drawdown_duration"`
	StrategyMaxDrawdown float64   `json:"strategy_max_drawdown"` // 相对初始权益的最大回撤 %
	TotalTradeCount     int       `json:"total_trade_count"`
	ClosedLegs          int       `json:"closed_legs"`
	WinningLegs         int       `json:"winning_legs"`
	LosingLegs          int       `json:"losing_legs"`
	WinRate             float64   `json:"win_rate"` // %
	ReturnDrawdownRatio float64   `json:"return_drawdown_ratio"`
	Halted              bool      `json:"halted"`
}

// Checkpoint is written after each streamed window.
type Checkpoint struct {
	RunID    string           `json:"run_id"`
	Window   int              `json:"window"`
	Cursor   time.Time        `json:"cursor"`
	Progress int              `json:"progress"`
	Bars     int              `json:"bars"`
	Snapshot StrategySnapshot `json:"snapshot"`
	SavedAt  time.Time        `json:"saved_at"`
}

// RunRecord 一次完整回测的持久化记录
type RunRecord struct {
	RunID     string           `json:"run_id"`
	Strategy  string           `json:"strategy"`
	Symbol    string           `json:"symbol"`
	Interval  Interval         `json:"interval"`
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
	Params    StrategyConfig   `json:"params"`
	Stats     Statistics       `json:"stats"`
	Final     StrategySnapshot `json:"final"`
	CreatedAt time.Time        `json:"created_at"`
}
