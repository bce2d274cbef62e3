package handlers

import (
	"net/http"

	"github.com/kozaktomas/pawtrail/internal/recognize"
)

// SearchHandler exposes similarity search over HTTP.
type SearchHandler struct {
	engine *recognize.Engine
}

// NewSearchHandler creates the handler.
func NewSearchHandler(engine *recognize.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

// Search identifies the pet in an uploaded image.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	data, err := readUploadedImage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ReasonInvalidInput, err.Error())
		return
	}

	result, err := h.engine.SearchByImage(r.Context(), data)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
