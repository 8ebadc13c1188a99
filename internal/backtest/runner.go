// Package backtest streams bars from a store through a strategy window by
// window, so memory stays bounded by the window size.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hedged-grid-backtest/internal/checkpoint"
	"hedged-grid-backtest/internal/metrics"
	"hedged-grid-backtest/internal/models"
	"hedged-grid-backtest/internal/reporter"
	"hedged-grid-backtest/internal/storage"
)

// ErrInvalidRange is returned for an empty chunk size or an end before start.
var ErrInvalidRange = errors.New("invalid backtest range")

const day = 24 * time.Hour

// BarSource loads the bars of one window in ascending time order.
type BarSource interface {
	LoadBars(ctx context.Context, q storage.Query) ([]models.Bar, error)
}

// RunRequest describes the span to replay.
type RunRequest struct {
	Symbol    string
	Interval  models.Interval
	Start     time.Time
	End       time.Time
	ChunkDays int
}

// Window is one pull from the bar source. Closed windows include End.
type Window struct {
	Start  time.Time
	End    time.Time
	Closed bool
}

// Progress is reported after each window.
type Progress struct {
	Window  int
	Windows int
	Cursor  time.Time
	Percent int
	Bars    int
}

// Options 回测运行的可选组件, 零值即可运行
type Options struct {
	RunID       string
	AnnualDays  int
	Logger      *zap.Logger
	Metrics     *metrics.Collector
	Checkpoints *checkpoint.Manager
	OnProgress  func(Progress)
}

// Result is everything a finished run produced.
type Result struct {
	RunID      string
	Windows    int
	Bars       int
	Skipped    int
	Curve      []models.EquityPoint
	ClosedLegs []models.ClosedLeg
	Snapshot   models.StrategySnapshot
	Stats      *models.Statistics
}

// Runner drives an Engine from a BarSource.
type Runner struct {
	source BarSource
	engine *Engine
	opts   Options
	logger *zap.SugaredLogger
}

func NewRunner(source BarSource, engine *Engine, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	return &Runner{source: source, engine: engine, opts: opts, logger: opts.Logger.Sugar()}
}

// RunID identifies this run in checkpoints and stored records.
func (r *Runner) RunID() string { return r.opts.RunID }

// Windows splits [start, end] into half-open chunks of chunkDays, the last
// one closed at end.
func Windows(start, end time.Time, chunkDays int) ([]Window, error) {
	if chunkDays < 1 {
		return nil, fmt.Errorf("%w: chunk_days must be >= 1, got %d", ErrInvalidRange, chunkDays)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", ErrInvalidRange, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	chunk := time.Duration(chunkDays) * day
	var windows []Window
	for cur := start; ; {
		next := cur.Add(chunk)
		if !next.Before(end) {
			windows = append(windows, Window{Start: cur, End: end, Closed: true})
			return windows, nil
		}
		windows = append(windows, Window{Start: cur, End: next})
		cur = next
	}
}

// progressPercent is min(100, elapsed·100 / max(total, 1)) in whole days.
func progressPercent(start, cursor, end time.Time) int {
	total := max(int(end.Sub(start)/day), 1)
	elapsed := int(cursor.Sub(start) / day)
	return min(100, elapsed*100/total)
}

// Run replays req and computes statistics. Source errors and context
// cancellation between windows abort the run.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*Result, error) {
	windows, err := Windows(req.Start, req.End, req.ChunkDays)
	if err != nil {
		return nil, err
	}

	strat := r.engine.Strategy()
	strat.OnStart()
	stopped := false
	stop := func() {
		if !stopped {
			stopped = true
			strat.OnStop()
		}
	}
	defer stop()

	r.logger.Infow("backtest started",
		"run_id", r.opts.RunID,
		"strategy", strat.Name(),
		"symbol", req.Symbol,
		"interval", req.Interval,
		"start", req.Start.Format(time.RFC3339),
		"end", req.End.Format(time.RFC3339),
		"windows", len(windows))

	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest cancelled before window %d: %w", i+1, err)
		}

		bars, err := r.source.LoadBars(ctx, storage.Query{
			Symbol:     req.Symbol,
			Interval:   req.Interval,
			Start:      w.Start,
			End:        w.End,
			IncludeEnd: w.Closed,
		})
		if err != nil {
			return nil, fmt.Errorf("load window %d [%s, %s]: %w", i+1,
				w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339), err)
		}

		for _, bar := range bars {
			r.engine.NewBar(bar)
		}

		p := Progress{
			Window:  i + 1,
			Windows: len(windows),
			Cursor:  w.End,
			Percent: progressPercent(req.Start, w.End, req.End),
			Bars:    len(bars),
		}
		r.afterWindow(p)
	}

	stop()
	snap := strat.Snapshot()
	acct := strat.Account()

	res := &Result{
		RunID:      r.opts.RunID,
		Windows:    len(windows),
		Bars:       r.engine.Bars(),
		Skipped:    r.engine.Skipped(),
		Curve:      acct.EquityCurve(),
		ClosedLegs: acct.ClosedLegs(),
		Snapshot:   snap,
	}
	if res.Skipped > 0 {
		r.logger.Warnf("skipped %d bars that did not advance time", res.Skipped)
	}

	stats, err := reporter.Calculate(reporter.Input{
		Curve:      res.Curve,
		Account:    snap.Account,
		TotalFills: snap.TotalFills,
		AnnualDays: r.opts.AnnualDays,
	})
	if err != nil {
		return nil, fmt.Errorf("statistics for run %s: %w", r.opts.RunID, err)
	}
	res.Stats = stats

	r.logger.Infow("backtest finished",
		"run_id", r.opts.RunID,
		"bars", res.Bars,
		"end_equity", stats.EndEquity,
		"total_return_pct", stats.TotalReturn,
		"halted", stats.Halted)
	return res, nil
}

func (r *Runner) afterWindow(p Progress) {
	snap := r.engine.Strategy().Snapshot()

	r.logger.Infow("window done",
		"window", fmt.Sprintf("%d/%d", p.Window, p.Windows),
		"bars", p.Bars,
		"progress", p.Percent,
		"equity", snap.Account.Equity)

	if r.opts.Metrics != nil {
		r.opts.Metrics.WindowLoaded(p.Percent)
		r.opts.Metrics.ObserveAccount(snap.Account)
	}
	if r.opts.Checkpoints != nil {
		r.opts.Checkpoints.Submit(models.Checkpoint{
			RunID:    r.opts.RunID,
			Window:   p.Window,
			Cursor:   p.Cursor,
			Progress: p.Percent,
			Bars:     r.engine.Bars(),
			Snapshot: snap,
		})
	}
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(p)
	}
}
