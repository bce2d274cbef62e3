// Package faceapi talks to the face model server. The server is an HTTP
// collaborator exposing pet face detection and embedding endpoints; this
// package wraps it behind the narrow interfaces the rest of the service
// depends on.
package faceapi

import (
	"context"
	"errors"
	"image"
)

// ErrProcessingTimeout marks a detection or embedding call that exceeded its
// deadline. Callers surface it as a retriable per-frame outcome.
var ErrProcessingTimeout = errors.New("face processing timed out")

// Detection is one detected pet face.
type Detection struct {
	BBox       image.Rectangle `json:"bbox"`
	Confidence float64         `json:"confidence"`
}

// Detector finds pet faces in an image.
type Detector interface {
	DetectFaces(ctx context.Context, imageData []byte) ([]Detection, error)
}

// Embedder computes a fixed-dimension embedding for a face crop.
type Embedder interface {
	ComputeEmbedding(ctx context.Context, imageData []byte) ([]float32, error)
}

// BestDetection picks the detection to enroll or search with: highest
// confidence, ties broken by larger box area. Returns false when the slice
// is empty.
func BestDetection(detections []Detection) (Detection, bool) {
	if len(detections) == 0 {
		return Detection{}, false
	}
	best := detections[0]
	for _, d := range detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
			continue
		}
		if d.Confidence == best.Confidence && area(d.BBox) > area(best.BBox) {
			best = d
		}
	}
	return best, true
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}
