package contest

import (
	"errors"
	"net/http"

	"tradearena/internal/httputil"
	"tradearena/internal/store"
)

type Handler struct {
	finalizer *Finalizer
	store     store.Store
}

func NewHandler(f *Finalizer, st store.Store) *Handler {
	return &Handler{finalizer: f, store: st}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, contestID string) {
	c, err := h.store.GetContest(r.Context(), contestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "contest not found"})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// Standings serves the current leaderboard, ordered by the contest's
// ranking method with its tie-break chain applied.
func (h *Handler) Standings(w http.ResponseWriter, r *http.Request, contestID string) {
	ranked, err := h.finalizer.Standings(r.Context(), contestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "contest not found"})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": ranked})
}
