package reporter

import (
	"errors"
	"fmt"
	"math"
	"time"

	"hedged-grid-backtest/internal/models"
)

var (
	// ErrNoEquityData is returned when a run produced no equity samples.
	ErrNoEquityData = errors.New("no equity data to evaluate")
	// ErrNonFiniteStatistic is returned when a statistic evaluates to NaN or Inf.
	ErrNonFiniteStatistic = errors.New("statistic is not finite")
)

// Input 计算统计所需的数据
type Input struct {
	Curve      []models.EquityPoint
	Account    models.AccountSnapshot
	TotalFills int
	AnnualDays int
}

type dayPoint struct {
	date   time.Time
	equity float64
}

// Calculate 根据权益曲线和账户快照计算回测统计
func Calculate(in Input) (*models.Statistics, error) {
	if len(in.Curve) == 0 {
		return nil, ErrNoEquityData
	}
	annualDays := in.AnnualDays
	if annualDays <= 0 {
		annualDays = 365
	}

	initial := in.Account.InitialEquity
	if initial <= 0 {
		initial = in.Curve[0].Equity
	}

	days := dailyCloses(in.Curve)
	s := &models.Statistics{
		StartDate:           days[0].date,
		EndDate:             days[len(days)-1].date,
		TotalDays:           len(days),
		InitialEquity:       initial,
		EndEquity:           in.Curve[len(in.Curve)-1].Equity,
		FeePaidQuote:        in.Account.FeePaidQuote,
		FeeRebateQuote:      in.Account.FeeRebateQuote,
		StrategyMaxDrawdown: in.Account.MaxDrawdown * 100,
		TotalTradeCount:     in.TotalFills,
		ClosedLegs:          in.Account.ClosedLegs,
		WinningLegs:         in.Account.WinningLegs,
		LosingLegs:          in.Account.LosingLegs,
		Halted:              in.Account.Halted,
	}
	s.TotalNetPnL = s.EndEquity - initial

	// 日收益
	returns := make([]float64, 0, len(days))
	prev := initial
	for _, d := range days {
		pnl := d.equity - prev
		switch {
		case pnl > 0:
			s.ProfitDays++
		case pnl < 0:
			s.LossDays++
		}
		if prev != 0 {
			returns = append(returns, pnl/prev)
		}
		prev = d.equity
	}
	s.DailyReturnMean, s.DailyReturnStd = meanStd(returns)
	if s.DailyReturnStd > 0 {
		s.SharpeRatio = s.DailyReturnMean / s.DailyReturnStd * math.Sqrt(float64(annualDays))
	}

	s.TotalReturn = (s.EndEquity/initial - 1) * 100
	s.AnnualReturn = s.TotalReturn / float64(s.TotalDays) * float64(annualDays)

	s.MaxDrawdown, s.MaxDrawdownPercent, s.MaxDrawdownDuration = highWaterDrawdown(days, initial)
	if s.MaxDrawdownPercent > 0 {
		s.ReturnDrawdownRatio = s.TotalReturn / s.MaxDrawdownPercent
	}

	if s.ClosedLegs > 0 {
		s.WinRate = float64(s.WinningLegs) / float64(s.ClosedLegs) * 100
	}

	if err := checkFinite(s); err != nil {
		return nil, err
	}
	return s, nil
}

// dailyCloses keeps the last equity sample of each UTC day.
func dailyCloses(curve []models.EquityPoint) []dayPoint {
	var out []dayPoint
	for _, p := range curve {
		y, m, d := p.Time.UTC().Date()
		date := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		if n := len(out); n > 0 && out[n-1].date.Equal(date) {
			out[n-1].equity = p.Equity
			continue
		}
		out = append(out, dayPoint{date: date, equity: p.Equity})
	}
	return out
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

// highWaterDrawdown 计算日收盘权益相对历史最高值的最大回撤
func highWaterDrawdown(days []dayPoint, initial float64) (maxDD, maxDDPct float64, durationDays int) {
	peak := initial
	peakDate := days[0].date
	for _, d := range days {
		if d.equity > peak {
			peak = d.equity
			peakDate = d.date
			continue
		}
		dd := peak - d.equity
		if dd > maxDD {
			maxDD = dd
			if peak > 0 {
				maxDDPct = dd / peak * 100
			}
			durationDays = int(d.date.Sub(peakDate).Hours() / 24)
		}
	}
	return maxDD, maxDDPct, durationDays
}

func checkFinite(s *models.Statistics) error {
	fields := []struct {
		name  string
		value float64
	}{
		{"initial_equity", s.InitialEquity},
		{"end_equity", s.EndEquity},
		{"total_net_pnl", s.TotalNetPnL},
		{"total_return", s.TotalReturn},
		{"annual_return", s.AnnualReturn},
		{"daily_return_mean", s.DailyReturnMean},
		{"daily_return_std", s.DailyReturnStd},
		{"sharpe_ratio", s.SharpeRatio},
		{"max_drawdown", s.MaxDrawdown},
		{"max_drawdown_percent", s.MaxDrawdownPercent},
		{"return_drawdown_ratio", s.ReturnDrawdownRatio},
		{"win_rate", s.WinRate},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s=%v", ErrNonFiniteStatistic, f.name, f.value)
		}
	}
	return nil
}
