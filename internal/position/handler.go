package position

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"tradearena/internal/httputil"
	"tradearena/internal/store"
	"tradearena/internal/types"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc   *Service
	store store.Store
}

func NewHandler(svc *Service, st store.Store) *Handler {
	return &Handler{svc: svc, store: st}
}

type openPositionRequest struct {
	AccountID    string `json:"account_id"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Quantity     string `json:"quantity"`
	Leverage     int    `json:"leverage"`
	StopLoss     string `json:"stop_loss"`
	TakeProfit   string `json:"take_profit"`
	TrailingStop string `json:"trailing_stop"`
}

func (h *Handler) Open(w http.ResponseWriter, r *http.Request, userID string) {
	var req openPositionRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "symbol is required"})
		return
	}
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid quantity"})
		return
	}
	sl, err := optDecimal(req.StopLoss)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid stop_loss"})
		return
	}
	tp, err := optDecimal(req.TakeProfit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid take_profit"})
		return
	}
	trail, err := optDecimal(req.TrailingStop)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid trailing_stop"})
		return
	}
	p, err := h.svc.OpenAtMarket(r.Context(), OpenRequest{
		AccountID:    req.AccountID,
		UserID:       userID,
		Symbol:       symbol,
		Side:         types.PositionSide(req.Side),
		Quantity:     qty,
		Leverage:     req.Leverage,
		StopLoss:     sl,
		TakeProfit:   tp,
		TrailingStop: trail,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request, userID, positionID string) {
	p, err := h.svc.Get(r.Context(), positionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if p.UserID != userID {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "position not found"})
		return
	}
	res, err := h.svc.CloseAtMarket(r.Context(), positionID, types.CloseReasonUser)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"position":       res.Position,
		"realized_pnl":   res.RealizedPnl.String(),
		"already_closed": res.AlreadyClosed,
	})
}

func (h *Handler) ListOpen(w http.ResponseWriter, r *http.Request, userID, accountID string) {
	if !h.ownsAccount(w, r, userID, accountID) {
		return
	}
	open, err := h.svc.ListOpen(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": open})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request, userID, accountID string) {
	if !h.ownsAccount(w, r, userID, accountID) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	trades, err := h.svc.TradeHistory(r.Context(), accountID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": trades})
}

func (h *Handler) Events(w http.ResponseWriter, r *http.Request, userID, accountID string) {
	if !h.ownsAccount(w, r, userID, accountID) {
		return
	}
	subscriber := strings.TrimSpace(r.URL.Query().Get("subscriber"))
	if subscriber == "" {
		subscriber = "user:" + userID
	}
	events, err := h.svc.Events(r.Context(), accountID, subscriber)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": events})
}

func (h *Handler) ownsAccount(w http.ResponseWriter, r *http.Request, userID, accountID string) bool {
	account, err := h.store.GetAccount(r.Context(), accountID)
	if err != nil || account.UserID != userID {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "account not found"})
		return false
	}
	return true
}

func optDecimal(s string) (*decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "not found"})
	case errors.Is(err, ErrInsufficientMargin):
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.ErrorResponse{Error: "insufficient margin"})
	default:
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	}
}
