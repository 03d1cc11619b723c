package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/peter29ljf/bybitoption/internal/core"
	apperrors "github.com/peter29ljf/bybitoption/pkg/errors"
)

// StrategyEngine is the subset of strategy.Engine the HTTP layer needs.
type StrategyEngine interface {
	CreateStrategy(strategy core.TradingStrategy) (core.TradingStrategy, error)
	UpdateStrategy(strategy core.TradingStrategy) (core.TradingStrategy, error)
	GetStrategy(strategyID string) (core.TradingStrategy, error)
	ListStrategies() ([]core.TradingStrategy, error)
	Pause(strategyID string) (core.TradingStrategy, error)
	Resume(strategyID string) (core.TradingStrategy, error)
	Stop(strategyID string) (core.TradingStrategy, error)
	Delete(strategyID string) error
	HandleWebhook(ctx context.Context, payload core.WebhookPayload)
}

// TradeLister serves the read-only trade log.
type TradeLister interface {
	List(limit int) ([]core.TradeRecord, error)
}

// NewStrategyMux builds the Strategy Engine's HTTP API: strategy CRUD,
// lifecycle actions, the trade log, and the webhook receiver that the
// Price Monitor's dispatcher posts to.
func NewStrategyMux(engine StrategyEngine, trades TradeLister) *http.ServeMux {
	h := &strategyHandlers{engine: engine, trades: trades}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/strategies", h.handleCollection)
	mux.HandleFunc("/api/strategies/", h.handleItem)
	mux.HandleFunc("/api/strategies/trades", h.handleTrades)
	mux.HandleFunc("/api/strategies/webhook", h.handleWebhook)
	return mux
}

type strategyHandlers struct {
	engine StrategyEngine
	trades TradeLister
}

func (h *strategyHandlers) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		strategies, err := h.engine.ListStrategies()
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteOK(w, strategies)
	case http.MethodPost:
		var strategy core.TradingStrategy
		if err := json.NewDecoder(r.Body).Decode(&strategy); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		created, err := h.engine.CreateStrategy(strategy)
		if err != nil {
			writeStrategyError(w, err)
			return
		}
		WriteCreated(w, created)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleItem routes /api/strategies/{id} and /api/strategies/{id}/{action}.
func (h *strategyHandlers) handleItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/strategies/")
	parts := strings.SplitN(rest, "/", 2)
	strategyID := parts[0]
	if strategyID == "" {
		WriteError(w, http.StatusBadRequest, "strategy id is required")
		return
	}

	if len(parts) == 2 {
		h.handleAction(w, r, strategyID, parts[1])
		return
	}

	switch r.Method {
	case http.MethodGet:
		s, err := h.engine.GetStrategy(strategyID)
		if err != nil {
			writeStrategyError(w, err)
			return
		}
		WriteOK(w, s)
	case http.MethodPut:
		var strategy core.TradingStrategy
		if err := json.NewDecoder(r.Body).Decode(&strategy); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		strategy.StrategyID = strategyID
		updated, err := h.engine.UpdateStrategy(strategy)
		if err != nil {
			writeStrategyError(w, err)
			return
		}
		WriteOK(w, updated)
	case http.MethodDelete:
		if err := h.engine.Delete(strategyID); err != nil {
			writeStrategyError(w, err)
			return
		}
		WriteOK(w, map[string]string{"strategy_id": strategyID, "status": "deleted"})
	default:
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *strategyHandlers) handleAction(w http.ResponseWriter, r *http.Request, strategyID, action string) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var (
		s   core.TradingStrategy
		err error
	)
	switch action {
	case "pause":
		s, err = h.engine.Pause(strategyID)
	case "resume":
		s, err = h.engine.Resume(strategyID)
	case "stop":
		s, err = h.engine.Stop(strategyID)
	default:
		WriteError(w, http.StatusNotFound, "unknown action: "+action)
		return
	}
	if err != nil {
		writeStrategyError(w, err)
		return
	}
	WriteOK(w, s)
}

func (h *strategyHandlers) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := parsePositiveInt(q); err == nil {
			limit = n
		}
	}
	trades, err := h.trades.List(limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteOK(w, trades)
}

// handleWebhook is what the Price Monitor's WebhookDispatcher posts to.
// It always returns 200 once the payload decodes, HandleWebhook itself
// silently no-ops on a stale or unknown binding, matching the Price
// Monitor's at-most-once delivery guarantee (there's nothing to retry).
func (h *strategyHandlers) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload core.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid webhook payload: "+err.Error())
		return
	}
	h.engine.HandleWebhook(r.Context(), payload)
	WriteOK(w, map[string]string{"task_id": payload.TaskID, "status": "accepted"})
}

func writeStrategyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrStrategyNotFound), errors.Is(err, apperrors.ErrLevelNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperrors.ErrStrategyNotRunning), errors.Is(err, apperrors.ErrLevelTerminal):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apperrors.ErrInvalidTriggerCombo):
		WriteError(w, http.StatusBadRequest, err.Error())
	default:
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
	}
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errors.New("not a number")
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
