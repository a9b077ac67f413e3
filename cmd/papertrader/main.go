package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"papertrader/internal/backtest"
	"papertrader/internal/config"
	"papertrader/internal/logger"
	"papertrader/internal/market"
	"papertrader/internal/notify"
	"papertrader/internal/optimizer"
	"papertrader/internal/report"
	"papertrader/internal/risk"
	"papertrader/internal/scanner"
	"papertrader/internal/server"
	"papertrader/internal/store"
)

func main() {
	mode := flag.String("mode", "scan", "scan | backtest | optimize | serve | import")
	cfgPath := flag.String("config", "configs/config.yaml", "path to config file")
	strategy := flag.String("strategy", scanner.StrategyMomentum, "momentum | mean_reversion")
	csvDir := flag.String("csv", "", "directory of SYMBOL.csv bar files (import mode)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := config.NewWatcher(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	cfg := watcher.Snapshot()

	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("init log file failed: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ config loaded (%s), %d symbols in universe", *cfgPath, len(cfg.Universe.Symbols))

	bars, err := market.NewStore(cfg.App.DataDir)
	if err != nil {
		log.Fatalf("open bar store failed: %v", err)
	}
	defer bars.Close()

	var provider market.Provider = bars
	if cfg.Universe.ProviderRPS > 0 {
		provider = market.NewRateLimitedProvider(bars, cfg.Universe.ProviderRPS, 1)
	}

	sectors := market.DefaultSectorMap()
	if cfg.Universe.SectorFile != "" {
		sectors, err = market.LoadSectorMap(cfg.Universe.SectorFile)
		if err != nil {
			log.Fatalf("load sector map failed: %v", err)
		}
	}

	st, err := store.New(cfg.App.StoreDB)
	if err != nil {
		log.Fatalf("open store failed: %v", err)
	}
	defer st.Close()

	engine := backtest.NewEngine(cfg.Risk, sectors, st)

	switch *mode {
	case "import":
		err = runImport(ctx, bars, *csvDir)
	case "scan":
		err = runScan(ctx, cfg, provider, st, *strategy)
	case "backtest":
		err = runBacktest(ctx, cfg, provider, engine, *strategy)
	case "optimize":
		err = runOptimize(ctx, cfg, provider, engine, *strategy)
	case "serve":
		err = runServe(ctx, cfg, watcher, provider, engine, st, sectors)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", *mode, err)
	}
}

func runScan(ctx context.Context, cfg config.Config, provider market.Provider, st *store.Store, strategy string) error {
	sc, err := buildScanner(strategy, provider, cfg)
	if err != nil {
		return err
	}
	batch := scanner.Batch{Parallelism: cfg.Backtest.Parallelism}
	signals, skips := batch.Run(ctx, sc, cfg.Universe.Symbols)
	for _, sig := range signals {
		if err := st.SaveSignal(sig); err != nil {
			logger.Warnf("save signal %s failed: %v", sig.Symbol, err)
		}
	}
	logger.InfoBlock(notify.BuildScanMessage(strategy, signals, len(skips)))
	return nil
}

func runBacktest(ctx context.Context, cfg config.Config, provider market.Provider, engine *backtest.Engine, strategy string) error {
	start, end, err := cfg.BacktestWindow()
	if err != nil {
		return err
	}
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("backtest requires backtest.start and backtest.end in config")
	}
	series, err := loadSeries(ctx, provider, cfg.Universe.Symbols, end)
	if err != nil {
		return err
	}
	signals, err := backtest.GenerateSignals(ctx, factoryFor(strategy, cfg), series,
		cfg.Universe.Symbols, start, end, cfg.Backtest.Parallelism)
	if err != nil {
		return err
	}
	logger.Infof("generated %d signals between %s and %s",
		len(signals), start.Format("2006-01-02"), end.Format("2006-01-02"))

	res, err := engine.Run(ctx, backtest.Request{
		Strategy: strategy,
		Signals:  signals,
		Series:   series,
		Start:    start,
		End:      end,
	})
	if err != nil {
		return err
	}
	logger.InfoBlock(report.TextSummary(res))
	if cfg.Backtest.ReportPath != "" {
		if err := report.SaveHTML(cfg.Backtest.ReportPath, res); err != nil {
			return fmt.Errorf("write HTML report: %w", err)
		}
		logger.Infof("HTML report written to %s", cfg.Backtest.ReportPath)
	}
	return nil
}

func runOptimize(ctx context.Context, cfg config.Config, provider market.Provider, engine *backtest.Engine, strategy string) error {
	grid, err := optimizer.LoadGrid(cfg.Optimizer.GridPath)
	if err != nil {
		return err
	}
	opt, err := optimizer.New(engine, grid)
	if err != nil {
		return err
	}
	start, end, err := cfg.BacktestWindow()
	if err != nil {
		return err
	}
	if end.IsZero() {
		end = time.Now()
	}
	series, err := loadSeries(ctx, provider, cfg.Universe.Symbols, end)
	if err != nil {
		return err
	}
	if !start.IsZero() {
		for sym, s := range series {
			series[sym] = trimBefore(s, start)
		}
	}

	gen := func(ctx context.Context, params map[string]float64, winStart, winEnd time.Time) ([]scanner.Signal, error) {
		tuned := cfg
		tuned.Strategies.Momentum = cfg.Strategies.Momentum.WithParams(params)
		tuned.Strategies.MeanReversion = cfg.Strategies.MeanReversion.WithParams(params)
		return backtest.GenerateSignals(ctx, factoryFor(strategy, tuned), series,
			cfg.Universe.Symbols, winStart, winEnd, cfg.Backtest.Parallelism)
	}

	rep, err := opt.WalkForward(ctx, strategy, gen, series)
	if err != nil {
		return err
	}
	logger.Infof("walk-forward done: %d periods, out-of-sample %s avg %.4f (stdev %.4f), in/out correlation %.3f",
		rep.Summary.Periods, rep.Metric, rep.Summary.AvgOutSampleScore,
		rep.Summary.OutSampleStdev, rep.Summary.CorrelationInOut)
	for _, w := range rep.Windows {
		logger.Infof("  %s..%s params=%v in=%.4f out=%.4f",
			w.InSampleStart.Format("2006-01-02"), w.OutSampleEnd.Format("2006-01-02"),
			w.BestParams, w.InSampleScore, w.OutSampleScore)
	}
	return nil
}

func runServe(ctx context.Context, cfg config.Config, watcher *config.Watcher, provider market.Provider,
	engine *backtest.Engine, st *store.Store, sectors market.SectorMap) error {

	mgr := risk.NewManager(cfg.Risk, sectors)
	srv, err := server.New(server.Deps{
		Addr:     cfg.App.HTTPAddr,
		Config:   watcher,
		Provider: provider,
		Engine:   engine,
		Store:    st,
		RiskMgr:  mgr,
	})
	if err != nil {
		return err
	}
	watcher.Subscribe(func(next config.Config) {
		logger.SetLevel(next.App.LogLevel)
	})
	return srv.Run(ctx)
}

// runImport ingests SYMBOL.csv files (date,open,high,low,close,volume with a
// header row) into the bar store.
func runImport(ctx context.Context, bars *market.Store, dir string) error {
	if dir == "" {
		return fmt.Errorf("import mode requires -csv <dir>")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	imported := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		symbol := strings.ToUpper(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		rows, err := readBarCSV(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		if err := bars.UpsertBars(ctx, symbol, rows); err != nil {
			return err
		}
		m, err := bars.Manifest(ctx, symbol)
		if err != nil {
			return err
		}
		logger.Infof("imported %s: %d rows (%d total in store)", symbol, len(rows), m.Rows)
		imported++
	}
	if imported == 0 {
		return fmt.Errorf("no .csv files found in %s", dir)
	}
	return nil
}

func readBarCSV(path string) ([]market.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []market.Bar
	for i, rec := range records {
		if i == 0 || len(rec) < 6 {
			continue // header
		}
		date, err := time.Parse("2006-01-02", strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		vals := make([]float64, 5)
		for j := 1; j <= 5; j++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[j]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d col %d: %w", i+1, j+1, err)
			}
			vals[j-1] = v
		}
		out = append(out, market.Bar{
			Date: date, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4],
		})
	}
	return out, nil
}

func buildScanner(strategy string, provider market.Provider, cfg config.Config) (scanner.Scanner, error) {
	switch strings.ToLower(strategy) {
	case scanner.StrategyMomentum:
		return scanner.NewMomentum(provider, cfg.Strategies.Momentum), nil
	case scanner.StrategyMeanReversion:
		return scanner.NewMeanReversion(provider, cfg.Strategies.MeanReversion), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
}

func factoryFor(strategy string, cfg config.Config) backtest.ScannerFactory {
	return func(provider market.Provider) scanner.Scanner {
		if strings.ToLower(strategy) == scanner.StrategyMeanReversion {
			return scanner.NewMeanReversion(provider, cfg.Strategies.MeanReversion)
		}
		return scanner.NewMomentum(provider, cfg.Strategies.Momentum)
	}
}

func loadSeries(ctx context.Context, provider market.Provider, symbols []string, end time.Time) (map[string]market.Series, error) {
	out := make(map[string]market.Series, len(symbols))
	for _, symbol := range symbols {
		series, err := provider.GetPriceSeries(ctx, symbol, 0)
		if err != nil {
			logger.Warnf("no data for %s, skipping: %v", symbol, err)
			continue
		}
		out[symbol] = series.Through(end)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no price data for any of %d symbols", len(symbols))
	}
	return out, nil
}

func trimBefore(s market.Series, start time.Time) market.Series {
	idx := 0
	for idx < len(s.Bars) && s.Bars[idx].Date.Before(start) {
		idx++
	}
	return market.Series{Symbol: s.Symbol, Bars: s.Bars[idx:]}
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
