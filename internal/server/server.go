// Package server exposes the scan, backtest, and risk surfaces over a JSON
// API. Backtest runs are asynchronous: POST returns a run job immediately and
// a bounded worker pool executes runs in the background.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"papertrader/internal/backtest"
	"papertrader/internal/config"
	"papertrader/internal/logger"
	"papertrader/internal/market"
	"papertrader/internal/risk"
	"papertrader/internal/scanner"
	"papertrader/internal/store"
)

type jobStatus string

const (
	jobQueued  jobStatus = "queued"
	jobRunning jobStatus = "running"
	jobDone    jobStatus = "done"
	jobFailed  jobStatus = "failed"
)

type runJob struct {
	ID        string    `json:"id"`
	Strategy  string    `json:"strategy"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	Status    jobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Server wires the HTTP API to the trading core.
type Server struct {
	addr     string
	cfg      *config.Watcher
	provider market.Provider
	engine   *backtest.Engine
	store    *store.Store
	riskMgr  *risk.Manager
	router   *gin.Engine

	runSem chan struct{}
	mu     sync.Mutex
	jobs   map[string]*runJob
}

// Deps carries the server's collaborators.
type Deps struct {
	Addr     string
	Config   *config.Watcher
	Provider market.Provider
	Engine   *backtest.Engine
	Store    *store.Store
	RiskMgr  *risk.Manager
}

func New(deps Deps) (*Server, error) {
	if deps.Config == nil || deps.Provider == nil || deps.Engine == nil {
		return nil, fmt.Errorf("server: config, provider, and engine are required")
	}
	addr := deps.Addr
	if addr == "" {
		addr = ":8087"
	}
	parallel := deps.Config.Snapshot().Backtest.Parallelism
	if parallel <= 0 {
		parallel = 2
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:     addr,
		cfg:      deps.Config,
		provider: deps.Provider,
		engine:   deps.Engine,
		store:    deps.Store,
		riskMgr:  deps.RiskMgr,
		router:   router,
		runSem:   make(chan struct{}, parallel),
		jobs:     make(map[string]*runJob),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.POST("/scan", s.handleScan)
	api.GET("/signals", s.handleSignals)
	api.POST("/backtest/runs", s.handleRunStart)
	api.GET("/backtest/runs", s.handleRunList)
	api.GET("/backtest/runs/:id", s.handleRunDetail)
	api.GET("/risk/report", s.handleRiskReport)
}

// Handler exposes the route tree (also used by tests).
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Infof("[server] listening on %s", s.addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleScan(c *gin.Context) {
	var req struct {
		Strategy string   `json:"strategy" binding:"required"`
		Symbols  []string `json:"symbols"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg := s.cfg.Snapshot()
	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = cfg.Universe.Symbols
	}
	sc, err := s.buildScanner(req.Strategy, cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	batch := scanner.Batch{Parallelism: cfg.Backtest.Parallelism}
	signals, skips := batch.Run(c.Request.Context(), sc, symbols)
	if s.store != nil {
		for _, sig := range signals {
			if err := s.store.SaveSignal(sig); err != nil {
				logger.Warnf("[server] save signal %s failed: %v", sig.Symbol, err)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals, "skipped": skips})
}

func (s *Server) handleSignals(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}
	recs, err := s.store.ListSignals(c.Query("symbol"), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": recs})
}

func (s *Server) handleRunStart(c *gin.Context) {
	var req struct {
		Strategy string `json:"strategy" binding:"required"`
		Start    string `json:"start" binding:"required"`
		End      string `json:"end" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, err := time.Parse("2006-01-02", req.Start)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("start: %v", err)})
		return
	}
	end, err := time.Parse("2006-01-02", req.End)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("end: %v", err)})
		return
	}
	if !start.Before(end) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be before end"})
		return
	}
	cfg := s.cfg.Snapshot()
	if _, err := s.buildScanner(req.Strategy, cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job := &runJob{
		ID:        uuid.NewString(),
		Strategy:  req.Strategy,
		Start:     req.Start,
		End:       req.End,
		Status:    jobQueued,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	go s.executeRun(job, cfg, start, end)
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (s *Server) executeRun(job *runJob, cfg config.Config, start, end time.Time) {
	s.runSem <- struct{}{}
	defer func() { <-s.runSem }()

	s.setJob(job.ID, func(j *runJob) { j.Status = jobRunning })
	ctx := context.Background()

	series, err := s.loadSeries(ctx, cfg.Universe.Symbols, end)
	if err != nil {
		s.failJob(job.ID, err)
		return
	}
	factory := s.scannerFactory(job.Strategy, cfg)
	signals, err := backtest.GenerateSignals(ctx, factory, series, cfg.Universe.Symbols,
		start, end, cfg.Backtest.Parallelism)
	if err != nil {
		s.failJob(job.ID, err)
		return
	}
	result, err := s.engine.Run(ctx, backtest.Request{
		Strategy: job.Strategy,
		Signals:  signals,
		Series:   series,
		Start:    start,
		End:      end,
	})
	if err != nil {
		s.failJob(job.ID, err)
		return
	}
	s.setJob(job.ID, func(j *runJob) {
		j.Status = jobDone
		j.RunID = result.RunID
	})
}

func (s *Server) handleRunList(c *gin.Context) {
	s.mu.Lock()
	jobs := make([]runJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, *j)
	}
	s.mu.Unlock()

	resp := gin.H{"jobs": jobs}
	if s.store != nil {
		runs, err := s.store.ListRuns(50)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp["runs"] = runs
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRunDetail(c *gin.Context) {
	id := c.Param("id")

	s.mu.Lock()
	job, isJob := s.jobs[id]
	var snapshot runJob
	if isJob {
		snapshot = *job
	}
	s.mu.Unlock()

	if isJob && snapshot.RunID == "" {
		c.JSON(http.StatusOK, gin.H{"job": snapshot})
		return
	}
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}
	runID := id
	if isJob {
		runID = snapshot.RunID
	}
	result, err := s.store.GetRun(runID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (s *Server) handleRiskReport(c *gin.Context) {
	if s.riskMgr == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "risk manager not wired"})
		return
	}
	c.JSON(http.StatusOK, s.riskMgr.Report())
}

func (s *Server) buildScanner(strategy string, cfg config.Config) (scanner.Scanner, error) {
	switch strings.ToLower(strategy) {
	case scanner.StrategyMomentum:
		return scanner.NewMomentum(s.provider, cfg.Strategies.Momentum), nil
	case scanner.StrategyMeanReversion:
		return scanner.NewMeanReversion(s.provider, cfg.Strategies.MeanReversion), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
}

func (s *Server) scannerFactory(strategy string, cfg config.Config) backtest.ScannerFactory {
	return func(provider market.Provider) scanner.Scanner {
		if strings.ToLower(strategy) == scanner.StrategyMeanReversion {
			return scanner.NewMeanReversion(provider, cfg.Strategies.MeanReversion)
		}
		return scanner.NewMomentum(provider, cfg.Strategies.Momentum)
	}
}

func (s *Server) loadSeries(ctx context.Context, symbols []string, end time.Time) (map[string]market.Series, error) {
	out := make(map[string]market.Series, len(symbols))
	for _, symbol := range symbols {
		series, err := s.provider.GetPriceSeries(ctx, symbol, 0)
		if err != nil {
			logger.Warnf("[server] no data for %s, excluded from run: %v", symbol, err)
			continue
		}
		out[symbol] = series.Through(end)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no price data for any of %d symbols", len(symbols))
	}
	return out, nil
}

func (s *Server) setJob(id string, update func(*runJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		update(j)
	}
}

func (s *Server) failJob(id string, err error) {
	logger.Errorf("[server] run %s failed: %v", id, err)
	s.setJob(id, func(j *runJob) {
		j.Status = jobFailed
		j.Error = err.Error()
	})
}
