package reporter

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"hedged-grid-backtest/internal/models"
)

// Meta 报告头信息
type Meta struct {
	RunID    string
	Strategy string
	Symbol   string
	Interval models.Interval
}

// Render 将回测结果以表格形式写入 w
func Render(w io.Writer, meta Meta, s *models.Statistics) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Backtest %s  %s %s", meta.Strategy, meta.Symbol, meta.Interval)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})

	t.AppendRows([]table.Row{
		{"Run ID", meta.RunID},
		{"Period", fmt.Sprintf("%s → %s", s.StartDate.Format(time.DateOnly), s.EndDate.Format(time.DateOnly))},
		{"Trading days", s.TotalDays},
		{"Profit / loss days", fmt.Sprintf("%d / %d", s.ProfitDays, s.LossDays)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Initial equity", fmt.Sprintf("%.2f", s.InitialEquity)},
		{"End equity", fmt.Sprintf("%.2f", s.EndEquity)},
		{"Net PnL", fmt.Sprintf("%.4f", s.TotalNetPnL)},
		{"Fees paid", fmt.Sprintf("%.4f", s.FeePaidQuote)},
		{"Rebates earned", fmt.Sprintf("%.4f", s.FeeRebateQuote)},
		{"Total return", fmt.Sprintf("%.2f%%", s.TotalReturn)},
		{"Annual return", fmt.Sprintf("%.2f%%", s.AnnualReturn)},
		{"Sharpe ratio", fmt.Sprintf("%.2f", s.SharpeRatio)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Max drawdown", fmt.Sprintf("%.2f (%.2f%%)", s.MaxDrawdown, s.MaxDrawdownPercent)},
		{"Max drawdown duration", fmt.Sprintf("%d days", s.MaxDrawdownDuration)},
		{"Drawdown vs initial", fmt.Sprintf("%.2f%%", s.StrategyMaxDrawdown)},
		{"Return / drawdown", fmt.Sprintf("%.2f", s.ReturnDrawdownRatio)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Fills", s.TotalTradeCount},
		{"Closed legs", s.ClosedLegs},
		{"Win rate", fmt.Sprintf("%.2f%%", s.WinRate)},
		{"Halted", s.Halted},
	})
	t.Render()
}

// RenderRuns 列出已保存的回测记录
func RenderRuns(w io.Writer, runs []models.RunRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run ID", "Created", "Strategy", "Symbol", "Period", "Return", "Max DD", "Win rate", "Halted"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
	})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.RunID,
			r.CreatedAt.Format(time.DateTime),
			r.Strategy,
			fmt.Sprintf("%s %s", r.Symbol, r.Interval),
			fmt.Sprintf("%s → %s", r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly)),
			fmt.Sprintf("%.2f%%", r.Stats.TotalReturn),
			fmt.Sprintf("%.2f%%", r.Stats.MaxDrawdownPercent),
			fmt.Sprintf("%.2f%%", r.Stats.WinRate),
			r.Stats.Halted,
		})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d runs", len(runs))})
	t.Render()
}
