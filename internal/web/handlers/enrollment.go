package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/pawtrail/internal/enroll"
)

// EnrollmentHandler exposes enrollment sessions over HTTP.
type EnrollmentHandler struct {
	manager *enroll.Manager
	log     *logrus.Logger
}

// NewEnrollmentHandler creates the handler.
func NewEnrollmentHandler(manager *enroll.Manager, log *logrus.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{manager: manager, log: log}
}

type startEnrollmentRequest struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	Replace    bool   `json:"replace"`
}

// Start opens a new enrollment session.
func (h *EnrollmentHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startEnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, ReasonInvalidInput, "invalid request body")
		return
	}

	snap, err := h.manager.Start(r.Context(), req.ExternalID, req.Name, req.Replace)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"token":           snap.Token,
		"identity_key":    snap.IdentityKey,
		"state":           snap.State,
		"frames_required": snap.FramesRequired,
		"frames_max":      snap.FramesMax,
		"expires_at":      snap.ExpiresAt,
	})
}

// SubmitFrame accepts one multipart frame for the session. Per-frame
// rejections are data, not transport errors: the response stays 200 with
// accepted=false and a reason.
func (h *EnrollmentHandler) SubmitFrame(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	data, err := readUploadedImage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ReasonInvalidInput, err.Error())
		return
	}

	result, err := h.manager.SubmitFrame(r.Context(), token, data)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if !result.Accepted {
		h.log.WithFields(logrus.Fields{
			"token":  sanitizeForLog(token),
			"reason": result.Reason,
		}).Debug("enrollment frame rejected")
	}
	respondJSON(w, http.StatusOK, result)
}

// Complete finalizes the session and returns the enrolled identity.
func (h *EnrollmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	rec, err := h.manager.Complete(r.Context(), token)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"identity_key": rec.Key,
		"name":         rec.Name,
		"frame_count":  rec.FrameCount,
		"version":      rec.Version,
		"enrolled_at":  rec.EnrolledAt,
		"status":       enroll.StateCompleted,
	})
}

// Get reports session progress including retained frame metadata.
func (h *EnrollmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	snap, err := h.manager.Get(token)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// Abort marks the session failed.
func (h *EnrollmentHandler) Abort(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if err := h.manager.Abort(token); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"state": enroll.StateFailed})
}
