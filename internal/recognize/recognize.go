// Package recognize runs similarity searches: detect the query face, embed
// it, rank it against the enrolled corpus and classify the best score into a
// confidence trail. Every search is logged for analytics.
package recognize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/pawtrail/internal/faceapi"
	"github.com/kozaktomas/pawtrail/internal/imaging"
	"github.com/kozaktomas/pawtrail/internal/index"
	"github.com/kozaktomas/pawtrail/internal/store"
	"github.com/kozaktomas/pawtrail/internal/trail"
	"github.com/kozaktomas/pawtrail/internal/vector"
)

// ErrNoFaceDetected is returned when the query image contains no pet face.
var ErrNoFaceDetected = errors.New("no face detected in query image")

// Match is one ranked search result enriched with identity metadata.
type Match struct {
	IdentityKey string  `json:"identity_key"`
	Name        string  `json:"name,omitempty"`
	Score       float64 `json:"similarity_score"`
}

// Result is the outcome of one search.
type Result struct {
	Matched     bool    `json:"matched"`
	IdentityKey string  `json:"identity_key,omitempty"`
	Name        string  `json:"name,omitempty"`
	Score       float64 `json:"similarity_score"`
	Trail       string  `json:"trail"`
	TrailIcon   string  `json:"trail_icon,omitempty"`
	Message     string  `json:"message"`
	Reason      string  `json:"reason,omitempty"`
	Matches     []Match `json:"matches,omitempty"`
	ElapsedMS   int64   `json:"elapsed_ms"`
}

// Engine wires detection, embedding, the index and the classifier together.
type Engine struct {
	detector   faceapi.Detector
	embedder   faceapi.Embedder
	index      *index.Index
	identities store.IdentityStore
	classifier *trail.Classifier
	searchLog  store.SearchLog
	topK       int
	log        *logrus.Logger

	jpegQuality int
}

// NewEngine builds a search engine. searchLog may not be nil; pass the
// memory store when postgres is not configured.
func NewEngine(
	detector faceapi.Detector,
	embedder faceapi.Embedder,
	idx *index.Index,
	identities store.IdentityStore,
	classifier *trail.Classifier,
	searchLog store.SearchLog,
	topK int,
	log *logrus.Logger,
) *Engine {
	if topK <= 0 {
		topK = 5
	}
	return &Engine{
		detector:    detector,
		embedder:    embedder,
		index:       idx,
		identities:  identities,
		classifier:  classifier,
		searchLog:   searchLog,
		topK:        topK,
		log:         log,
		jpegQuality: 90,
	}
}

// SearchByImage identifies the pet in the image. An empty corpus
// short-circuits before any model call since there is nothing to match
// against.
func (e *Engine) SearchByImage(ctx context.Context, imageData []byte) (Result, error) {
	start := time.Now()

	if e.index.Len() == 0 {
		result := fromClassification(e.classifier.EmptyCorpus())
		result.ElapsedMS = time.Since(start).Milliseconds()
		e.record(ctx, result)
		return result, nil
	}

	detections, err := e.detector.DetectFaces(ctx, imageData)
	if err != nil {
		return Result{}, fmt.Errorf("face detection: %w", err)
	}
	best, ok := faceapi.BestDetection(detections)
	if !ok {
		return Result{}, ErrNoFaceDetected
	}

	img, _, err := imaging.Decode(imageData)
	if err != nil {
		return Result{}, fmt.Errorf("decoding query image: %w", err)
	}
	crop, err := imaging.Crop(img, best.BBox)
	if err != nil {
		return Result{}, fmt.Errorf("cropping face region: %w", err)
	}
	cropData, err := imaging.EncodeJPEG(crop, e.jpegQuality)
	if err != nil {
		return Result{}, fmt.Errorf("encoding face crop: %w", err)
	}

	embedding, err := e.embedder.ComputeEmbedding(ctx, cropData)
	if err != nil {
		return Result{}, fmt.Errorf("computing query embedding: %w", err)
	}
	query := vector.Normalize(embedding)

	result := e.SearchByVector(ctx, query)
	result.ElapsedMS = time.Since(start).Milliseconds()
	e.record(ctx, result)
	return result, nil
}

// SearchByVector ranks a prepared unit vector against the corpus. Used by
// SearchByImage and directly by callers that already hold an embedding.
func (e *Engine) SearchByVector(ctx context.Context, query []float32) Result {
	if e.index.Len() == 0 {
		return fromClassification(e.classifier.EmptyCorpus())
	}

	ranked := e.index.Query(query, e.topK)
	if len(ranked) == 0 {
		return fromClassification(e.classifier.EmptyCorpus())
	}

	matches := make([]Match, 0, len(ranked))
	for _, m := range ranked {
		match := Match{IdentityKey: m.Key, Score: m.Score}
		if rec, err := e.identities.Get(ctx, m.Key); err == nil {
			match.Name = rec.Name
		}
		matches = append(matches, match)
	}

	best := matches[0]
	result := fromClassification(e.classifier.Classify(best.Score))
	result.Score = best.Score
	result.Matches = matches
	if result.Matched {
		result.IdentityKey = best.IdentityKey
		result.Name = best.Name
	}
	return result
}

func fromClassification(c trail.Result) Result {
	return Result{
		Matched:   c.Matched,
		Trail:     c.Trail,
		TrailIcon: c.Icon,
		Message:   c.Message,
		Reason:    c.Reason,
	}
}

// record writes the search log entry. Best-effort: a logging failure is
// reported but never fails the search.
func (e *Engine) record(ctx context.Context, result Result) {
	rec := store.SearchRecord{
		BestKey:   result.IdentityKey,
		Score:     result.Score,
		Trail:     result.Trail,
		ElapsedMS: result.ElapsedMS,
		CreatedAt: time.Now(),
	}
	if err := e.searchLog.Record(ctx, rec); err != nil {
		e.log.WithError(err).Warn("failed to record search")
	}
}
