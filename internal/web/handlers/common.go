package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kozaktomas/pawtrail/internal/enroll"
	"github.com/kozaktomas/pawtrail/internal/faceapi"
	"github.com/kozaktomas/pawtrail/internal/recognize"
	"github.com/kozaktomas/pawtrail/internal/store"
)

// maxUploadBytes caps multipart frame and query uploads.
const maxUploadBytes = 20 << 20

// Machine-readable reason codes for error responses.
const (
	ReasonInvalidInput      = "invalid_input"
	ReasonInvalidIdentity   = "invalid_identity"
	ReasonSessionNotFound   = "session_not_found"
	ReasonSessionNotActive  = "session_not_active"
	ReasonInsufficientFrame = "insufficient_frames"
	ReasonDuplicateIdentity = "duplicate_identity"
	ReasonNoFaceDetected    = "no_face_detected"
	ReasonProcessingTimeout = "processing_timeout"
	ReasonInternal          = "internal_error"
)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response with a machine-readable reason.
func respondError(w http.ResponseWriter, status int, reason, message string) {
	respondJSON(w, status, map[string]string{
		"reason": reason,
		"error":  message,
	})
}

// respondDomainError maps domain sentinels onto HTTP statuses and reasons.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, enroll.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, ReasonSessionNotFound, err.Error())
	case errors.Is(err, enroll.ErrSessionNotActive):
		respondError(w, http.StatusConflict, ReasonSessionNotActive, err.Error())
	case errors.Is(err, enroll.ErrInvalidIdentity):
		respondError(w, http.StatusBadRequest, ReasonInvalidIdentity, err.Error())
	case errors.Is(err, enroll.ErrInsufficientFrames):
		respondError(w, http.StatusConflict, ReasonInsufficientFrame, err.Error())
	case errors.Is(err, store.ErrDuplicateIdentity):
		respondError(w, http.StatusConflict, ReasonDuplicateIdentity, err.Error())
	case errors.Is(err, recognize.ErrNoFaceDetected):
		respondError(w, http.StatusUnprocessableEntity, ReasonNoFaceDetected, err.Error())
	case errors.Is(err, faceapi.ErrProcessingTimeout):
		respondError(w, http.StatusGatewayTimeout, ReasonProcessingTimeout, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, ReasonInternal, err.Error())
	}
}

// readUploadedImage pulls the "file" part out of a multipart request.
func readUploadedImage(r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, fmt.Errorf("parsing multipart form: %w", err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("missing file field: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("reading uploaded file: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("uploaded file is empty")
	}
	return data, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
