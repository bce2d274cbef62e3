package handlers

import (
	"net/http"

	"github.com/kozaktomas/pawtrail/internal/store"
)

// StatsHandler reports enrollment and search totals.
type StatsHandler struct {
	searchLog store.SearchLog
}

// NewStatsHandler creates the handler.
func NewStatsHandler(searchLog store.SearchLog) *StatsHandler {
	return &StatsHandler{searchLog: searchLog}
}

// Get returns aggregate statistics.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.searchLog.Stats(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
