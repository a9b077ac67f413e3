package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrader/internal/backtest"
	"papertrader/internal/config"
	"papertrader/internal/market"
	"papertrader/internal/risk"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("universe:\n  symbols: [AAPL]\n"), 0o644))
	watcher, err := config.NewWatcher(cfgPath)
	require.NoError(t, err)

	bars, err := market.NewStore(filepath.Join(dir, "bars"))
	require.NoError(t, err)
	t.Cleanup(func() { bars.Close() })

	engine := backtest.NewEngine(risk.Config{InitialBalance: 10000}, nil, nil)
	srv, err := New(Deps{
		Config:   watcher,
		Provider: bars,
		Engine:   engine,
		RiskMgr:  risk.NewManager(risk.Config{InitialBalance: 10000}, nil),
	})
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestScanValidation(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, http.MethodPost, "/api/scan", `{"symbols": ["AAPL"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code) // strategy is required

	w = do(t, srv, http.MethodPost, "/api/scan", `{"strategy": "astrology"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown strategy")
}

func TestScanEmptyUniverse(t *testing.T) {
	srv := testServer(t)

	// No bar data exists, so every symbol lands in the skip list.
	w := do(t, srv, http.MethodPost, "/api/scan", `{"strategy": "momentum"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Signals []json.RawMessage `json:"signals"`
		Skipped []struct {
			Symbol string `json:"symbol"`
		} `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Signals)
	require.Len(t, resp.Skipped, 1)
	assert.Equal(t, "AAPL", resp.Skipped[0].Symbol)
}

func TestRunStartValidation(t *testing.T) {
	srv := testServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing fields", `{"strategy": "momentum"}`},
		{"bad date", `{"strategy": "momentum", "start": "soon", "end": "2024-06-28"}`},
		{"inverted window", `{"strategy": "momentum", "start": "2024-06-28", "end": "2024-01-02"}`},
		{"unknown strategy", `{"strategy": "astrology", "start": "2024-01-02", "end": "2024-06-28"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, "/api/backtest/runs", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestRiskReport(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/risk/report", "")
	require.Equal(t, http.StatusOK, w.Code)

	var report risk.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.InDelta(t, 10000.0, report.Account.PortfolioValue, 1e-9)
	assert.False(t, report.Limits.Suspended)
}

func TestRunDetailUnknown(t *testing.T) {
	srv := testServer(t)

	// Neither a live job nor persistence to fall back to.
	w := do(t, srv, http.MethodGet, "/api/backtest/runs/nope", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
