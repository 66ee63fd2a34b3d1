package httpserver

import (
	"net/http"
	"strings"
	"time"

	"tradearena/internal/contest"
	"tradearena/internal/health"
	"tradearena/internal/httputil"
	"tradearena/internal/metrics"
	"tradearena/internal/position"
	"tradearena/internal/pricing"
	"tradearena/internal/queue"
	"tradearena/internal/risk"
	"tradearena/internal/store"
	"tradearena/internal/wallet"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type RouterDeps struct {
	PositionHandler *position.Handler
	OrderHandler    *queue.Handler
	WalletHandler   *wallet.Handler
	ContestHandler  *contest.Handler
	RiskHandler     *risk.Handler
	HealthHandler   *health.Handler

	RiskExecutor   *risk.Executor
	QueueProcessor *queue.Processor
	Finalizer      *contest.Finalizer
	Store          store.Store

	JWTSecret     string
	InternalToken string
	EventsWS      http.Handler

	// QuoteCache, when set, is invalidated on quote ingest so readers
	// see the fresh price immediately.
	QuoteCache *pricing.CachedSource
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS middleware for development
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Use(SecurityHeaders)
	r.Use(RateLimitMiddleware)

	r.Get("/health", d.HealthHandler.Health)
	r.Get("/health/live", d.HealthHandler.Live)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/events/ws", d.EventsWS.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.JWTSecret))

			r.Get("/accounts", func(w http.ResponseWriter, r *http.Request) {
				userID, ok := UserID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				accounts, err := d.Store.ListAccountsByUser(r.Context(), userID)
				if err != nil {
					httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
					return
				}
				httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": accounts})
			})
			r.Get("/accounts/{id}/metrics", withUser(d.RiskHandler.Metrics))
			r.Get("/accounts/{id}/positions", withUser(d.PositionHandler.ListOpen))
			r.Get("/accounts/{id}/history", withUser(d.PositionHandler.History))
			r.Get("/accounts/{id}/events", withUser(d.PositionHandler.Events))
			r.Get("/accounts/{id}/orders", withUser(d.OrderHandler.List))

			r.Post("/positions", func(w http.ResponseWriter, r *http.Request) {
				userID, ok := UserID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.PositionHandler.Open(w, r, userID)
			})
			r.Post("/positions/{id}/close", withUser(d.PositionHandler.Close))

			r.Post("/orders", func(w http.ResponseWriter, r *http.Request) {
				userID, ok := UserID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.OrderHandler.Create(w, r, userID)
			})
			r.Delete("/orders/{id}", withUser(d.OrderHandler.Cancel))

			r.Get("/wallet", func(w http.ResponseWriter, r *http.Request) {
				userID, ok := UserID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.WalletHandler.Get(w, r, userID)
			})
			r.Post("/wallet/deposit", func(w http.ResponseWriter, r *http.Request) {
				userID, ok := UserID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.WalletHandler.Deposit(w, r, userID)
			})
			r.Post("/wallet/withdraw", func(w http.ResponseWriter, r *http.Request) {
				userID, ok := UserID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.WalletHandler.Withdraw(w, r, userID)
			})
			r.Get("/wallet/transactions", func(w http.ResponseWriter, r *http.Request) {
				userID, ok := UserID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.WalletHandler.Transactions(w, r, userID)
			})

			r.Get("/contests/{id}", func(w http.ResponseWriter, r *http.Request) {
				d.ContestHandler.Get(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/contests/{id}/standings", func(w http.ResponseWriter, r *http.Request) {
				d.ContestHandler.Standings(w, r, chi.URLParam(r, "id"))
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(InternalAuth(d.InternalToken))
			r.Post("/internal/quotes", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Symbol string `json:"symbol"`
					Bid    string `json:"bid"`
					Ask    string `json:"ask"`
				}
				if err := httputil.ReadJSON(r, &req); err != nil {
					httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
					return
				}
				bid, err1 := decimal.NewFromString(req.Bid)
				ask, err2 := decimal.NewFromString(req.Ask)
				symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
				if symbol == "" || err1 != nil || err2 != nil || bid.LessThanOrEqual(decimal.Zero) || ask.LessThan(bid) {
					httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid quote"})
					return
				}
				q := pricing.Quote{Symbol: symbol, Bid: bid, Ask: ask, Timestamp: time.Now().UTC()}
				if err := d.Store.UpsertQuote(r.Context(), q); err != nil {
					httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
					return
				}
				if d.QuoteCache != nil {
					d.QuoteCache.Invalidate(r.Context(), symbol)
				}
				httputil.WriteJSON(w, http.StatusOK, q)
			})
			r.Post("/internal/sweeps/margin", func(w http.ResponseWriter, r *http.Request) {
				summary, err := d.RiskExecutor.SweepAll(r.Context())
				if err != nil {
					httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
					return
				}
				httputil.WriteJSON(w, http.StatusOK, summary)
			})
			r.Post("/internal/sweeps/queue", func(w http.ResponseWriter, r *http.Request) {
				summary, err := d.QueueProcessor.Process(r.Context())
				if err != nil {
					httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
					return
				}
				httputil.WriteJSON(w, http.StatusOK, summary)
			})
			r.Post("/internal/sweeps/contests", func(w http.ResponseWriter, r *http.Request) {
				summary, err := d.Finalizer.FinalizeDue(r.Context())
				if err != nil {
					httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
					return
				}
				httputil.WriteJSON(w, http.StatusOK, summary)
			})
		})
	})

	return r
}

// withUser adapts a handler taking (userID, URL-param id) to chi.
func withUser(fn func(http.ResponseWriter, *http.Request, string, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserID(r)
		if !ok {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
			return
		}
		fn(w, r, userID, chi.URLParam(r, "id"))
	}
}
