package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/wonny/techstock/internal/backtest"
	"github.com/wonny/techstock/internal/contracts"
	"github.com/wonny/techstock/internal/exits"
	"github.com/wonny/techstock/internal/hardfilter"
	"github.com/wonny/techstock/internal/holdings"
	"github.com/wonny/techstock/internal/marketfilter"
	"github.com/wonny/techstock/internal/sector"
	"github.com/wonny/techstock/internal/signals"
	"github.com/wonny/techstock/internal/strategy"
	"github.com/wonny/techstock/pkg/logger"
)

// PipelineHandler serves the decision pipeline over HTTP: regime gate,
// sector ranking, eligibility, buy signals, and exit checks.
type PipelineHandler struct {
	market       *marketfilter.Filter
	sectors      *sector.Ranker
	hard         *hardfilter.Filter
	signals      *signals.Generator
	exits        *exits.Manager
	cfg          *strategy.Config
	holdingsFile string
	logger       *logger.Logger
}

// NewPipelineHandler creates the pipeline handler.
func NewPipelineHandler(
	market *marketfilter.Filter,
	sectors *sector.Ranker,
	hard *hardfilter.Filter,
	gen *signals.Generator,
	exitMgr *exits.Manager,
	cfg *strategy.Config,
	holdingsFile string,
	log *logger.Logger,
) *PipelineHandler {
	return &PipelineHandler{
		market:       market,
		sectors:      sectors,
		hard:         hard,
		signals:      gen,
		exits:        exitMgr,
		cfg:          cfg,
		holdingsFile: holdingsFile,
		logger:       log,
	}
}

// GetMarketStatus returns the current regime gate verdict.
// GET /api/market/status
func (h *PipelineHandler) GetMarketStatus(w http.ResponseWriter, r *http.Request) {
	status := h.market.Check(r.Context())
	respondJSON(w, http.StatusOK, status)
}

// GetSectorRanking returns the cached sector ranking.
// GET /api/sectors/ranking
func (h *PipelineHandler) GetSectorRanking(w http.ResponseWriter, r *http.Request) {
	ranks, err := h.sectors.Rankings(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "sector ranking unavailable", h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, ranks)
}

// RefreshSectorRanking recomputes the sector ranking.
// POST /api/sectors/refresh
func (h *PipelineHandler) RefreshSectorRanking(w http.ResponseWriter, r *http.Request) {
	ranks, err := h.sectors.Refresh(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "sector refresh failed", h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, ranks)
}

// GetEligibility runs the hard filter over the whole pool.
// GET /api/filter/eligibility
func (h *PipelineHandler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	results, err := h.hard.CheckAll(r.Context(), h.cfg.AllCodes())
	if err != nil {
		respondError(w, http.StatusBadGateway, "eligibility check failed", h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"summary": hardfilter.Summarize(results),
	})
}

// GetBuySignals runs the full entry pipeline.
// GET /api/signals/buy
func (h *PipelineHandler) GetBuySignals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	market := h.market.Check(ctx)
	sigs, err := h.signals.Generate(ctx, market)
	if err != nil {
		respondError(w, http.StatusBadGateway, "signal generation failed", h.logger, err)
		return
	}
	if sigs == nil {
		sigs = []contracts.TechBuySignal{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"market":  market,
		"window":  h.signals.WindowStatus(),
		"signals": sigs,
		"summary": signals.Summarize(sigs),
	})
}

// GetTradingWindow reports the EOD execution window state.
// GET /api/signals/window
func (h *PipelineHandler) GetTradingWindow(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.signals.WindowStatus())
}

// GetExitSignals evaluates the exit chain over the holdings registry.
// GET /api/signals/exit
func (h *PipelineHandler) GetExitSignals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	book, err := holdings.Load(h.holdingsFile)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "holdings registry unreadable", h.logger, err)
		return
	}

	market := h.market.Check(ctx)
	sigs := h.exits.Evaluate(ctx, book, market)
	if sigs == nil {
		sigs = []contracts.TechExitSignal{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"market":   market,
		"holdings": len(book),
		"signals":  sigs,
		"summary":  exits.Summarize(sigs),
	})
}

// BacktestHandler serves simulation runs.
type BacktestHandler struct {
	engine *backtest.Engine
	logger *logger.Logger
}

// NewBacktestHandler creates the backtest handler.
func NewBacktestHandler(engine *backtest.Engine, log *logger.Logger) *BacktestHandler {
	return &BacktestHandler{engine: engine, logger: log}
}

type backtestRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Run executes a backtest over the requested range.
// POST /api/backtest/run
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body", h.logger, err)
		return
	}

	result, err := h.engine.Run(r.Context(), backtest.Request{Start: req.Start, End: req.End})
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string, log *logger.Logger, err error) {
	log.WithError(err).Warn(message)
	respondJSON(w, status, map[string]string{"error": message})
}
