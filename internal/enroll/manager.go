// Package enroll runs time-boxed multi-frame enrollment sessions. Each
// session collects quality-gated face embeddings until the configured
// minimum is reached, then aggregates them into one canonical vector and
// publishes the identity to the store and the search index.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/pawtrail/internal/config"
	"github.com/kozaktomas/pawtrail/internal/faceapi"
	"github.com/kozaktomas/pawtrail/internal/identity"
	"github.com/kozaktomas/pawtrail/internal/imaging"
	"github.com/kozaktomas/pawtrail/internal/index"
	"github.com/kozaktomas/pawtrail/internal/quality"
	"github.com/kozaktomas/pawtrail/internal/store"
	"github.com/kozaktomas/pawtrail/internal/vector"
)

var (
	// ErrInvalidIdentity wraps key derivation failures at session start.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrSessionNotFound is returned for unknown tokens.
	ErrSessionNotFound = errors.New("enrollment session not found")
	// ErrSessionNotActive is returned when a session no longer accepts
	// operations (completed, expired, failed).
	ErrSessionNotActive = errors.New("enrollment session not active")
	// ErrInsufficientFrames is returned by Complete before the minimum
	// frame count is reached.
	ErrInsufficientFrames = errors.New("insufficient accepted frames")
)

// Frame rejection reasons. Rejections are recoverable per-frame outcomes,
// reported as data rather than errors.
const (
	ReasonNoFaceDetected = "no_face_detected"
	reasonQualityPrefix  = "quality_rejected:"
)

// FrameResult reports the outcome of one frame submission.
type FrameResult struct {
	Accepted       bool               `json:"accepted"`
	Reason         string             `json:"reason,omitempty"`
	Quality        quality.Assessment `json:"quality"`
	FramesAccepted int                `json:"frames_accepted"`
	FramesRequired int                `json:"frames_required"`
	State          string             `json:"state"`
	IdentityKey    string             `json:"identity_key,omitempty"`
}

// Manager owns all enrollment sessions.
type Manager struct {
	cfg      config.EnrollmentConfig
	detector faceapi.Detector
	embedder faceapi.Embedder
	assessor *quality.Assessor
	store    store.IdentityStore
	index    *index.Index
	log      *logrus.Logger

	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session

	jpegQuality int
}

// NewManager wires the enrollment pipeline together.
func NewManager(
	cfg config.EnrollmentConfig,
	detector faceapi.Detector,
	embedder faceapi.Embedder,
	assessor *quality.Assessor,
	identities store.IdentityStore,
	idx *index.Index,
	log *logrus.Logger,
) *Manager {
	return &Manager{
		cfg:         cfg,
		detector:    detector,
		embedder:    embedder,
		assessor:    assessor,
		store:       identities,
		index:       idx,
		log:         log,
		now:         time.Now,
		sessions:    make(map[string]*session),
		jpegQuality: 90,
	}
}

// SetClock overrides the manager's clock. Tests use it to drive expiry.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Start opens a new enrollment session. Without replace, a key that is
// already enrolled fails immediately with store.ErrDuplicateIdentity so the
// caller never wastes frames on a doomed session.
func (m *Manager) Start(ctx context.Context, externalID, name string, replace bool) (Snapshot, error) {
	key, err := identity.DeriveKey(externalID, name)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}

	if !replace {
		if _, err := m.store.Get(ctx, key); err == nil {
			return Snapshot{}, store.ErrDuplicateIdentity
		} else if !errors.Is(err, store.ErrNotFound) {
			return Snapshot{}, fmt.Errorf("checking existing identity: %w", err)
		}
	}

	token, err := newToken()
	if err != nil {
		return Snapshot{}, err
	}

	now := m.now()
	s := &session{
		id:         uuid.New(),
		token:      token,
		key:        key,
		externalID: externalID,
		name:       name,
		replace:    replace,
		state:      StateCreated,
		createdAt:  now,
		expiresAt:  now.Add(m.cfg.SessionTTL),
	}

	m.mu.Lock()
	m.sessions[token] = s
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"session": s.id,
		"key":     key,
		"replace": replace,
	}).Info("enrollment session started")

	return s.snapshot(m.cfg.MinFrames, m.cfg.MaxFrames), nil
}

func (m *Manager) lookup(token string) (*session, error) {
	m.mu.RLock()
	s, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// SubmitFrame runs one frame through the pipeline: detect, crop, quality
// gate, embed. Reaching the minimum accepted-frame count aggregates and
// completes the session in the same call.
func (m *Manager) SubmitFrame(ctx context.Context, token string, imageData []byte) (FrameResult, error) {
	s, err := m.lookup(token)
	if err != nil {
		return FrameResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireIfDue(m.now())
	if !s.active() {
		return FrameResult{}, fmt.Errorf("%w: session is %s", ErrSessionNotActive, s.state)
	}
	if len(s.frames) >= m.cfg.MaxFrames {
		return FrameResult{}, fmt.Errorf("%w: accepted frame limit reached", ErrSessionNotActive)
	}
	s.state = StateCapturing

	result := FrameResult{
		FramesRequired: m.cfg.MinFrames,
		State:          s.state,
	}

	detections, err := m.detector.DetectFaces(ctx, imageData)
	if err != nil {
		return FrameResult{}, fmt.Errorf("face detection: %w", err)
	}
	best, ok := faceapi.BestDetection(detections)
	if !ok {
		result.Reason = ReasonNoFaceDetected
		result.FramesAccepted = len(s.frames)
		return result, nil
	}

	img, _, err := imaging.Decode(imageData)
	if err != nil {
		return FrameResult{}, fmt.Errorf("decoding frame: %w", err)
	}
	crop, err := imaging.Crop(img, best.BBox)
	if err != nil {
		return FrameResult{}, fmt.Errorf("cropping face region: %w", err)
	}

	assessment := m.assessor.Assess(imaging.Luminance(crop))
	result.Quality = assessment
	if !assessment.Accepted {
		result.Reason = reasonQualityPrefix + assessment.FailedMetric
		result.FramesAccepted = len(s.frames)
		return result, nil
	}

	cropData, err := imaging.EncodeJPEG(crop, m.jpegQuality)
	if err != nil {
		return FrameResult{}, fmt.Errorf("encoding face crop: %w", err)
	}
	embedding, err := m.embedder.ComputeEmbedding(ctx, cropData)
	if err != nil {
		return FrameResult{}, fmt.Errorf("computing embedding: %w", err)
	}

	s.frames = append(s.frames, vector.Normalize(embedding))
	s.meta = append(s.meta, FrameMeta{
		BBox:       best.BBox,
		Confidence: best.Confidence,
		Quality:    assessment,
		AddedAt:    m.now(),
	})

	result.Accepted = true
	result.FramesAccepted = len(s.frames)

	if len(s.frames) >= m.cfg.MinFrames {
		rec, err := m.finalize(ctx, s)
		if err != nil {
			return FrameResult{}, err
		}
		result.State = s.state
		result.IdentityKey = rec.Key
		return result, nil
	}

	result.State = s.state
	return result, nil
}

// Complete is idempotent on completed sessions and fails below the minimum.
// Aggregation normally happens inside SubmitFrame the moment the minimum is
// reached, so the explicit call mostly serves clients that want the final
// record.
func (m *Manager) Complete(ctx context.Context, token string) (identity.Record, error) {
	s, err := m.lookup(token)
	if err != nil {
		return identity.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireIfDue(m.now())

	if s.state == StateCompleted && s.record != nil {
		return *s.record, nil
	}
	if !s.active() {
		return identity.Record{}, fmt.Errorf("%w: session is %s", ErrSessionNotActive, s.state)
	}
	if len(s.frames) < m.cfg.MinFrames {
		return identity.Record{}, fmt.Errorf("%w: got %d, need %d", ErrInsufficientFrames, len(s.frames), m.cfg.MinFrames)
	}
	return m.finalize(ctx, s)
}

// finalize aggregates the session frames and publishes the identity. Callers
// hold the session mutex and have verified the frame count.
func (m *Manager) finalize(ctx context.Context, s *session) (identity.Record, error) {
	s.state = StateAggregating

	agg, err := vector.Aggregate(s.frames, m.cfg.MinFrames)
	if err != nil {
		s.state = StateFailed
		s.failReason = err.Error()
		return identity.Record{}, fmt.Errorf("aggregating session frames: %w", err)
	}

	rec := identity.Record{
		Key:        s.key,
		ExternalID: s.externalID,
		Name:       s.name,
		Vector:     agg,
		FrameCount: len(s.frames),
		EnrolledAt: m.now(),
	}

	if s.replace {
		stored, err := m.store.Replace(ctx, rec)
		if err != nil {
			s.state = StateFailed
			s.failReason = err.Error()
			return identity.Record{}, fmt.Errorf("replacing identity: %w", err)
		}
		m.index.Replace(stored.Key, stored.Vector)
		rec = stored
	} else {
		stored, err := m.store.Insert(ctx, rec)
		if err != nil {
			s.state = StateFailed
			s.failReason = err.Error()
			return identity.Record{}, fmt.Errorf("storing identity: %w", err)
		}
		if err := m.index.Insert(stored.Key, stored.Vector); err != nil {
			// Keep store and index consistent.
			if delErr := m.store.Delete(ctx, stored.Key); delErr != nil {
				m.log.WithError(delErr).WithField("key", stored.Key).
					Error("failed to roll back identity after index insert failure")
			}
			s.state = StateFailed
			s.failReason = err.Error()
			return identity.Record{}, fmt.Errorf("indexing identity: %w", err)
		}
		rec = stored
	}

	s.state = StateCompleted
	s.record = &rec

	m.log.WithFields(logrus.Fields{
		"session": s.id,
		"key":     rec.Key,
		"frames":  rec.FrameCount,
		"version": rec.Version,
	}).Info("enrollment completed")

	return rec, nil
}

// Abort marks an active session failed. Idempotent errors aside, frames
// already accepted are discarded with the session.
func (m *Manager) Abort(token string) error {
	s, err := m.lookup(token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireIfDue(m.now())
	if !s.active() {
		return fmt.Errorf("%w: session is %s", ErrSessionNotActive, s.state)
	}
	s.state = StateFailed
	s.failReason = "aborted"
	return nil
}

// Get returns the current view of a session, applying lazy expiry first.
func (m *Manager) Get(token string) (Snapshot, error) {
	s, err := m.lookup(token)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireIfDue(m.now())
	return s.snapshot(m.cfg.MinFrames, m.cfg.MaxFrames), nil
}

// PruneExpired removes sessions that are past their deadline and no longer
// active. Housekeeping only: correctness never depends on the sweep because
// every operation checks expiry itself.
func (m *Manager) PruneExpired() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var pruned int
	for token, s := range m.sessions {
		s.mu.Lock()
		s.expireIfDue(now)
		remove := !s.active() && now.After(s.expiresAt)
		s.mu.Unlock()
		if remove {
			delete(m.sessions, token)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of tracked sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
