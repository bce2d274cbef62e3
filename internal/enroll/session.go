package enroll

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/pawtrail/internal/identity"
	"github.com/kozaktomas/pawtrail/internal/quality"
)

// Session states. A session accepts frames in Created and Capturing;
// Completed, Expired and Failed are terminal. Aggregating is a transient
// state visible only while the canonical vector is being computed.
const (
	StateCreated     = "created"
	StateCapturing   = "capturing"
	StateAggregating = "aggregating"
	StateCompleted   = "completed"
	StateExpired     = "expired"
	StateFailed      = "failed"
)

// FrameMeta retains what was measured about one accepted frame. Kept on the
// session until it is destroyed so operators can inspect how an enrollment
// was built.
type FrameMeta struct {
	BBox       image.Rectangle    `json:"bbox"`
	Confidence float64            `json:"confidence"`
	Quality    quality.Assessment `json:"quality"`
	AddedAt    time.Time          `json:"added_at"`
}

// Session is one time-boxed enrollment attempt. Its mutex serializes frame
// submissions so at most one mutation per token is in flight.
type session struct {
	mu sync.Mutex

	id         uuid.UUID
	token      string
	key        string
	externalID string
	name       string
	replace    bool

	state     string
	createdAt time.Time
	expiresAt time.Time

	frames [][]float32
	meta   []FrameMeta

	record     *identity.Record
	failReason string
}

// Snapshot is the externally visible view of a session.
type Snapshot struct {
	Token          string      `json:"token"`
	IdentityKey    string      `json:"identity_key"`
	ExternalID     string      `json:"external_id"`
	Name           string      `json:"name"`
	State          string      `json:"state"`
	FramesAccepted int         `json:"frames_accepted"`
	FramesRequired int         `json:"frames_required"`
	FramesMax      int         `json:"frames_max"`
	CreatedAt      time.Time   `json:"created_at"`
	ExpiresAt      time.Time   `json:"expires_at"`
	Frames         []FrameMeta `json:"frames,omitempty"`
	FailReason     string      `json:"fail_reason,omitempty"`
}

// active reports whether the session still accepts frames. Callers hold the
// session mutex.
func (s *session) active() bool {
	return s.state == StateCreated || s.state == StateCapturing
}

// expire marks an active session expired when now is past its deadline.
// Expiry is lazy: it happens on the next touch, not on a timer.
func (s *session) expireIfDue(now time.Time) {
	if s.active() && now.After(s.expiresAt) {
		s.state = StateExpired
	}
}

func (s *session) snapshot(minFrames, maxFrames int) Snapshot {
	meta := make([]FrameMeta, len(s.meta))
	copy(meta, s.meta)
	return Snapshot{
		Token:          s.token,
		IdentityKey:    s.key,
		ExternalID:     s.externalID,
		Name:           s.name,
		State:          s.state,
		FramesAccepted: len(s.frames),
		FramesRequired: minFrames,
		FramesMax:      maxFrames,
		CreatedAt:      s.createdAt,
		ExpiresAt:      s.expiresAt,
		Frames:         meta,
		FailReason:     s.failReason,
	}
}

// newToken generates an opaque URL-safe session token from 32 random bytes.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
