// Package report renders backtest results as a self-contained HTML page
// (equity curve, drawdown, monthly returns) plus a plain-text summary block.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"papertrader/internal/backtest"
	"papertrader/internal/risk"
)

const (
	chartWidth  = "1200px"
	chartHeight = "420px"

	colorEquity   = "#3b82f6"
	colorDrawdown = "#f87171"
	colorGain     = "#34d399"
	colorLoss     = "#f87171"
)

// WriteHTML renders the charts page to w.
func WriteHTML(w io.Writer, res backtest.Result) error {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(
		equityChart(res),
		drawdownChart(res.EquityCurve),
		monthlyChart(res.MonthlyReturns),
	)
	return page.Render(w)
}

// SaveHTML writes the charts page to a file.
func SaveHTML(path string, res backtest.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer f.Close()
	if err := WriteHTML(f, res); err != nil {
		return fmt.Errorf("report: render %s: %w", path, err)
	}
	return nil
}

func equityChart(res backtest.Result) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  chartWidth,
			Height: chartHeight,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s - Equity Curve", res.Strategy),
			Subtitle: fmt.Sprintf("return %.2f%%, sharpe %.2f", res.TotalReturnPct, res.SharpeRatio),
			Left:     "left",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	xs, ys := equitySeries(res.EquityCurve)
	line.SetXAxis(xs)
	line.AddSeries("equity", ys,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	return line
}

func drawdownChart(curve []risk.EquityPoint) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  chartWidth,
			Height: chartHeight,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Drawdown (%)", Left: "left"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	xs := make([]string, len(curve))
	ys := make([]opts.LineData, len(curve))
	peak := 0.0
	for i, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		dd := 0.0
		if peak > 0 {
			dd = (p.Equity - peak) / peak * 100
		}
		xs[i] = p.Date.Format("2006-01-02")
		ys[i] = opts.LineData{Value: dd}
	}
	line.SetXAxis(xs)
	line.AddSeries("drawdown", ys,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorDrawdown, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.3)}),
	)
	return line
}

func monthlyChart(months []backtest.MonthlyReturn) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  chartWidth,
			Height: chartHeight,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Monthly Returns (%)", Left: "left"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	xs := make([]string, len(months))
	ys := make([]opts.BarData, len(months))
	for i, m := range months {
		color := colorGain
		if m.ReturnPct < 0 {
			color = colorLoss
		}
		xs[i] = m.Month
		ys[i] = opts.BarData{
			Value:     m.ReturnPct,
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.8)},
		}
	}
	bar.SetXAxis(xs)
	bar.AddSeries("monthly return", ys)
	return bar
}

func equitySeries(curve []risk.EquityPoint) ([]string, []opts.LineData) {
	xs := make([]string, len(curve))
	ys := make([]opts.LineData, len(curve))
	for i, p := range curve {
		xs[i] = p.Date.Format("2006-01-02")
		ys[i] = opts.LineData{Value: p.Equity}
	}
	return xs, ys
}

// TextSummary is the console-friendly result block.
func TextSummary(res backtest.Result) string {
	var b strings.Builder
	line := strings.Repeat("=", 50)
	fmt.Fprintf(&b, "%s\nBACKTEST RESULTS: %s\n%s\n", line, res.Strategy, line)
	fmt.Fprintf(&b, "Period:              %s to %s\n",
		res.StartDate.Format("2006-01-02"), res.EndDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Total Trades:        %d\n", res.TotalTrades)
	fmt.Fprintf(&b, "Win Rate:            %.1f%% (%d/%d)\n", res.WinRate, res.WinningTrades, res.TotalTrades)
	fmt.Fprintf(&b, "Total Return:        %.2f%%\n", res.TotalReturnPct)
	fmt.Fprintf(&b, "Annual Return:       %.2f%%\n", res.AnnualReturnPct)
	fmt.Fprintf(&b, "Max Drawdown:        %.2f%%\n", res.MaxDrawdownPct)
	fmt.Fprintf(&b, "Volatility:          %.2f%%\n", res.VolatilityPct)
	fmt.Fprintf(&b, "Sharpe Ratio:        %.2f\n", res.SharpeRatio)
	fmt.Fprintf(&b, "Sortino Ratio:       %.2f\n", res.SortinoRatio)
	fmt.Fprintf(&b, "Calmar Ratio:        %.2f\n", res.CalmarRatio)
	fmt.Fprintf(&b, "Profit Factor:       %.2f\n", res.ProfitFactor)
	fmt.Fprintf(&b, "Avg Win / Loss:      %.2f / %.2f\n", res.AvgWin, res.AvgLoss)
	fmt.Fprintf(&b, "Longest Win Streak:  %d\n", res.MaxWinStreak)
	fmt.Fprintf(&b, "Longest Loss Streak: %d\n", res.MaxLossStreak)
	fmt.Fprintf(&b, "95%% VaR (daily):     %.2f%%\n", res.VaR95Pct)
	b.WriteString(line)
	return b.String()
}
