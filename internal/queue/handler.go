package queue

import (
	"errors"
	"net/http"
	"strings"
	"time"

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

type createOrderRequest struct {
	AccountID  string `json:"account_id"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	Quantity   string `json:"quantity"`
	Leverage   int    `json:"leverage"`
	LimitPrice string `json:"limit_price"`
	StopLoss   string `json:"stop_loss"`
	TakeProfit string `json:"take_profit"`
	TTLSeconds int    `json:"ttl_seconds"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request, userID string) {
	var req createOrderRequest
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
	limit, err := decimal.NewFromString(req.LimitPrice)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid limit_price"})
		return
	}
	var sl, tp *decimal.Decimal
	if strings.TrimSpace(req.StopLoss) != "" {
		d, err := decimal.NewFromString(req.StopLoss)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid stop_loss"})
			return
		}
		sl = &d
	}
	if strings.TrimSpace(req.TakeProfit) != "" {
		d, err := decimal.NewFromString(req.TakeProfit)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid take_profit"})
			return
		}
		tp = &d
	}
	o, err := h.svc.Create(r.Context(), CreateRequest{
		AccountID:  req.AccountID,
		UserID:     userID,
		Symbol:     symbol,
		Side:       types.PositionSide(req.Side),
		Quantity:   qty,
		Leverage:   req.Leverage,
		LimitPrice: limit,
		StopLoss:   sl,
		TakeProfit: tp,
		TTL:        time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "account not found"})
			return
		}
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, o)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, userID, orderID string) {
	removed, err := h.svc.Cancel(r.Context(), userID, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "order not found"})
			return
		}
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"cancelled": removed})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID, accountID string) {
	account, err := h.store.GetAccount(r.Context(), accountID)
	if err != nil || account.UserID != userID {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "account not found"})
		return
	}
	orders, err := h.svc.ListByAccount(r.Context(), accountID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": orders})
}
