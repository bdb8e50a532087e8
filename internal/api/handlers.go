// Package api exposes the engine's selectors and operations over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tradedesk/internal/engine"
	"tradedesk/internal/errors"
	"tradedesk/internal/models"
)

// errorResponse is the JSON body returned for failed operations.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses: unknown positions are
// 404, business-rule rejections are 422, everything else is 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrPositionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errors.ErrNotInitialized),
		errors.Is(err, errors.ErrInsufficientMargin),
		errors.Is(err, errors.ErrInsufficientFunds),
		errors.Is(err, errors.ErrOversell),
		errors.Is(err, errors.ErrInvalidQuantity),
		errors.Is(err, errors.ErrInvalidLeverage):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

// --- selectors ---

func (s *Server) handleAccountMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Metrics())
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]float64{"balance": s.eng.Balance()})
}

func (s *Server) handleFXPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.FXPositions())
}

func (s *Server) handleStockPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.StockPositions())
}

func (s *Server) handleCryptoPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.CryptoPositions())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.RealizedPnLHistory())
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "ledger not configured"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.ledger.Recent(r.Context(), s.eng.UserID(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// --- operations ---

type openFXRequest struct {
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Side       string  `json:"side"`
	Lots       float64 `json:"lots"`
	Price      float64 `json:"price"`
	Leverage   float64 `json:"leverage"`
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
	SpreadCost float64 `json:"spreadCost"`
}

func (s *Server) handleOpenFX(w http.ResponseWriter, r *http.Request) {
	var req openFXRequest
	if !decodeBody(w, r, &req) {
		return
	}

	side := models.SideLong
	if req.Side == string(models.SideShort) {
		side = models.SideShort
	}

	pos, err := s.eng.OpenFXPosition(engine.OpenFXRequest{
		Symbol:     req.Symbol,
		Name:       req.Name,
		Side:       side,
		Lots:       req.Lots,
		Price:      req.Price,
		Leverage:   req.Leverage,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		SpreadCost: req.SpreadCost,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}

type closeFXRequest struct {
	Price float64 `json:"price"`
}

func (s *Server) handleCloseFX(w http.ResponseWriter, r *http.Request) {
	var req closeFXRequest
	if !decodeBody(w, r, &req) {
		return
	}

	pnl, err := s.eng.CloseFXPosition(chi.URLParam(r, "id"), req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"realizedPnl": pnl})
}

type setRiskRequest struct {
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
}

func (s *Server) handleSetFXRisk(w http.ResponseWriter, r *http.Request) {
	var req setRiskRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.eng.SetFXRiskLevels(chi.URLParam(r, "id"), req.StopLoss, req.TakeProfit); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type buySpotRequest struct {
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Fee      float64 `json:"fee"`
}

func (s *Server) handleBuyStock(w http.ResponseWriter, r *http.Request) {
	s.handleBuySpot(w, r, s.eng.BuyStock)
}

func (s *Server) handleBuyCrypto(w http.ResponseWriter, r *http.Request) {
	s.handleBuySpot(w, r, s.eng.BuyCrypto)
}

func (s *Server) handleBuySpot(w http.ResponseWriter, r *http.Request, buy func(engine.BuySpotRequest) (*models.SpotPosition, error)) {
	var req buySpotRequest
	if !decodeBody(w, r, &req) {
		return
	}

	pos, err := buy(engine.BuySpotRequest{
		Symbol:   req.Symbol,
		Name:     req.Name,
		Quantity: req.Quantity,
		Price:    req.Price,
		Fee:      req.Fee,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}

type sellSpotRequest struct {
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Fee      float64 `json:"fee"`
}

func (s *Server) handleSellStock(w http.ResponseWriter, r *http.Request) {
	s.handleSellSpot(w, r, s.eng.SellStock)
}

func (s *Server) handleSellCrypto(w http.ResponseWriter, r *http.Request) {
	s.handleSellSpot(w, r, s.eng.SellCrypto)
}

func (s *Server) handleSellSpot(w http.ResponseWriter, r *http.Request, sell func(string, float64, float64, float64) (float64, error)) {
	var req sellSpotRequest
	if !decodeBody(w, r, &req) {
		return
	}

	pnl, err := sell(chi.URLParam(r, "id"), req.Quantity, req.Price, req.Fee)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"realizedPnl": pnl})
}

func (s *Server) handleToggleShield(w http.ResponseWriter, r *http.Request) {
	pos, err := s.eng.ToggleCryptoShield(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

type syncBalanceRequest struct {
	Balance float64 `json:"balance"`
}

func (s *Server) handleSyncBalance(w http.ResponseWriter, r *http.Request) {
	var req syncBalanceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.eng.SyncBalance(req.Balance); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.eng.Metrics())
}
