package handlers

import (
	"net/http"
	"strings"

	"github.com/kozaktomas/pawtrail/internal/identity"
	"github.com/kozaktomas/pawtrail/internal/store"
)

// IdentitiesHandler lists enrolled identities.
type IdentitiesHandler struct {
	store store.IdentityStore
}

// NewIdentitiesHandler creates the handler.
func NewIdentitiesHandler(identities store.IdentityStore) *IdentitiesHandler {
	return &IdentitiesHandler{store: identities}
}

// List returns all enrolled identities. The optional name filter matches
// case- and diacritic-insensitively.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if filter := r.URL.Query().Get("name"); filter != "" {
		needle := identity.NormalizeName(filter)
		filtered := records[:0]
		for _, rec := range records {
			if strings.Contains(identity.NormalizeName(rec.Name), needle) {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"identities": records,
		"count":      len(records),
	})
}
