package risk

import (
	"errors"
	"net/http"

	"tradearena/internal/httputil"
	"tradearena/internal/store"
)

type Handler struct {
	exec  *Executor
	store store.Store
}

func NewHandler(exec *Executor, st store.Store) *Handler {
	return &Handler{exec: exec, store: st}
}

// Metrics evaluates and serves an account's margin health. Evaluation is
// live: a request landing on a breached account triggers the same
// liquidation path the scheduler would. Ownership is checked before
// anything runs, so a caller can only ever trigger evaluation of their
// own accounts.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request, userID, accountID string) {
	account, err := h.store.GetAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "account not found"})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	if account.UserID != userID {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "account not found"})
		return
	}
	snap, err := h.exec.EvaluateAccount(r.Context(), accountID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snap)
}
