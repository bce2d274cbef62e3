package enroll

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/pawtrail/internal/faceapi"
	"github.com/kozaktomas/pawtrail/internal/store"
)

func TestStartDerivesIdentityKey(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())

	snap, err := env.manager.Start(context.Background(), "123456789", "Fluffy", false)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if snap.IdentityKey != "123456flu" {
		t.Errorf("IdentityKey = %q, want 123456flu", snap.IdentityKey)
	}
	if snap.State != StateCreated {
		t.Errorf("State = %q, want %q", snap.State, StateCreated)
	}
	if snap.Token == "" {
		t.Error("Start() returned an empty token")
	}
	if snap.FramesRequired != 3 {
		t.Errorf("FramesRequired = %d, want 3", snap.FramesRequired)
	}
	if !snap.ExpiresAt.Equal(snap.CreatedAt.Add(10 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want created+10m", snap.ExpiresAt)
	}
}

func TestStartInvalidIdentity(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())

	if _, err := env.manager.Start(context.Background(), "12345", "Fluffy", false); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("Start() error = %v, want ErrInvalidIdentity", err)
	}
	if _, err := env.manager.Start(context.Background(), "123456789", "Bo", false); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("Start() error = %v, want ErrInvalidIdentity", err)
	}
}

func TestStartDuplicateIdentity(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()

	enrollIdentity(t, env, "123456789", "Fluffy")

	if _, err := env.manager.Start(ctx, "123456789", "Fluffy", false); !errors.Is(err, store.ErrDuplicateIdentity) {
		t.Fatalf("Start() error = %v, want ErrDuplicateIdentity", err)
	}

	// replace=true opens a session for the same key.
	if _, err := env.manager.Start(ctx, "123456789", "Fluffy", true); err != nil {
		t.Fatalf("Start(replace) error: %v", err)
	}
}

func TestTokensAreUnique(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		snap, err := env.manager.Start(ctx, "123456789", "Fluffy", true)
		if err != nil {
			t.Fatalf("Start() error: %v", err)
		}
		if seen[snap.Token] {
			t.Fatalf("token %q issued twice", snap.Token)
		}
		seen[snap.Token] = true
	}
}

// enrollIdentity drives a full happy-path session to completion.
func enrollIdentity(t *testing.T, env *testEnv, externalID, name string) Snapshot {
	t.Helper()
	ctx := context.Background()

	snap, err := env.manager.Start(ctx, externalID, name, false)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	frame := sharpFrame(t)
	for i := 0; i < 3; i++ {
		if _, err := env.manager.SubmitFrame(ctx, snap.Token, frame); err != nil {
			t.Fatalf("SubmitFrame(%d) error: %v", i, err)
		}
	}
	final, err := env.manager.Get(snap.Token)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	return final
}

func TestHappyPathAutoCompletes(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()

	env.embedder.queue = [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0.95, 0.05, 0},
	}

	snap, err := env.manager.Start(ctx, "123456789", "Fluffy", false)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	frame := sharpFrame(t)
	var last FrameResult
	for i := 0; i < 3; i++ {
		last, err = env.manager.SubmitFrame(ctx, snap.Token, frame)
		if err != nil {
			t.Fatalf("SubmitFrame(%d) error: %v", i, err)
		}
		if !last.Accepted {
			t.Fatalf("frame %d rejected: %q", i, last.Reason)
		}
	}

	if last.State != StateCompleted {
		t.Errorf("final state = %q, want %q", last.State, StateCompleted)
	}
	if last.IdentityKey != "123456flu" {
		t.Errorf("IdentityKey = %q, want 123456flu", last.IdentityKey)
	}

	rec, err := env.store.Get(ctx, "123456flu")
	if err != nil {
		t.Fatalf("identity not stored: %v", err)
	}
	if rec.FrameCount != 3 || rec.Version != 1 {
		t.Errorf("stored record = %+v", rec)
	}

	matches := env.index.Query(rec.Vector, 1)
	if len(matches) != 1 || matches[0].Key != "123456flu" {
		t.Fatalf("identity not searchable: %v", matches)
	}
	if matches[0].Score < 0.999 {
		t.Errorf("self-similarity = %v, want ~1", matches[0].Score)
	}
}

func TestSubmitFrameNoFace(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()

	env.detector.detections = nil

	snap, _ := env.manager.Start(ctx, "123456789", "Fluffy", false)
	result, err := env.manager.SubmitFrame(ctx, snap.Token, sharpFrame(t))
	if err != nil {
		t.Fatalf("SubmitFrame() error: %v", err)
	}
	if result.Accepted {
		t.Error("frame without a face was accepted")
	}
	if result.Reason != ReasonNoFaceDetected {
		t.Errorf("Reason = %q, want %q", result.Reason, ReasonNoFaceDetected)
	}
	if result.FramesAccepted != 0 {
		t.Errorf("FramesAccepted = %d, want 0", result.FramesAccepted)
	}
}

func TestSubmitFrameQualityRejection(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()

	snap, _ := env.manager.Start(ctx, "123456789", "Fluffy", false)
	result, err := env.manager.SubmitFrame(ctx, snap.Token, blurryFrame(t))
	if err != nil {
		t.Fatalf("SubmitFrame() error: %v", err)
	}
	if result.Accepted {
		t.Error("blurry frame was accepted")
	}
	if !strings.HasPrefix(result.Reason, "quality_rejected:") {
		t.Errorf("Reason = %q, want quality_rejected prefix", result.Reason)
	}
	if !strings.HasSuffix(result.Reason, "blur") {
		t.Errorf("Reason = %q, want blur metric", result.Reason)
	}

	// Rejected frames never count toward the minimum.
	got, _ := env.manager.Get(snap.Token)
	if got.FramesAccepted != 0 {
		t.Errorf("FramesAccepted = %d, want 0", got.FramesAccepted)
	}
}

func TestSubmitFrameUnknownToken(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	if _, err := env.manager.SubmitFrame(context.Background(), "no-such-token", sharpFrame(t)); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("SubmitFrame() error = %v, want ErrSessionNotFound", err)
	}
}

func TestSubmitFrameDetectorError(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()

	env.detector.err = faceapi.ErrProcessingTimeout

	snap, _ := env.manager.Start(ctx, "123456789", "Fluffy", false)
	if _, err := env.manager.SubmitFrame(ctx, snap.Token, sharpFrame(t)); !errors.Is(err, faceapi.ErrProcessingTimeout) {
		t.Fatalf("SubmitFrame() error = %v, want ErrProcessingTimeout", err)
	}
}

func TestCompleteBelowMinimum(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()

	snap, _ := env.manager.Start(ctx, "123456789", "Fluffy", false)
	if _, err := env.manager.SubmitFrame(ctx, snap.Token, sharpFrame(t)); err != nil {
		t.Fatalf("SubmitFrame() error: %v", err)
	}

	if _, err := env.manager.Complete(ctx, snap.Token); !errors.Is(err, ErrInsufficientFrames) {
		t.Fatalf("Complete() error = %v, want ErrInsufficientFrames", err)
	}

	// The failed Complete leaves the session capturing.
	got, _ := env.manager.Get(snap.Token)
	if got.State != StateCapturing {
		t.Errorf("state after failed Complete = %q, want %q", got.State, StateCapturing)
	}
	if _, err := env.manager.SubmitFrame(ctx, snap.Token, sharpFrame(t)); err != nil {
		t.Errorf("session stopped accepting frames: %v", err)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()

	final := enrollIdentity(t, env, "123456789", "Fluffy")
	if final.State != StateCompleted {
		t.Fatalf("state = %q, want completed", final.State)
	}

	first, err := env.manager.Complete(ctx, final.Token)
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	second, err := env.manager.Complete(ctx, final.Token)
	if err != nil {
		t.Fatalf("second Complete() error: %v", err)
	}
	if first.Key != second.Key || first.Version != second.Version {
		t.Errorf("Complete() not idempotent: %+v vs %+v", first, second)
	}
}

func TestSessionExpiry(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()

	snap, _ := env.manager.Start(ctx, "123456789", "Fluffy", false)
	env.clock.Advance(11 * time.Minute)

	if _, err := env.manager.SubmitFrame(ctx, snap.Token, sharpFrame(t)); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("SubmitFrame() on expired session error = %v, want ErrSessionNotActive", err)
	}
	if _, err := env.manager.Complete(ctx, snap.Token); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("Complete() on expired session error = %v, want ErrSessionNotActive", err)
	}

	got, _ := env.manager.Get(snap.Token)
	if got.State != StateExpired {
		t.Errorf("state = %q, want %q", got.State, StateExpired)
	}
}

func TestCompletedSessionSurvivesExpiry(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()

	final := enrollIdentity(t, env, "123456789", "Fluffy")
	env.clock.Advance(time.Hour)

	rec, err := env.manager.Complete(ctx, final.Token)
	if err != nil {
		t.Fatalf("Complete() after TTL on completed session error: %v", err)
	}
	if rec.Key != "123456flu" {
		t.Errorf("Key = %q", rec.Key)
	}
}

func TestAbort(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()

	snap, _ := env.manager.Start(ctx, "123456789", "Fluffy", false)
	if err := env.manager.Abort(snap.Token); err != nil {
		t.Fatalf("Abort() error: %v", err)
	}

	got, _ := env.manager.Get(snap.Token)
	if got.State != StateFailed {
		t.Errorf("state = %q, want %q", got.State, StateFailed)
	}
	if _, err := env.manager.SubmitFrame(ctx, snap.Token, sharpFrame(t)); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("SubmitFrame() after abort error = %v, want ErrSessionNotActive", err)
	}
	if err := env.manager.Abort(snap.Token); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("second Abort() error = %v, want ErrSessionNotActive", err)
	}
}

func TestReplaceBumpsVersionAndSwapsVector(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()

	enrollIdentity(t, env, "123456789", "Fluffy")

	env.embedder.fixed = []float32{0, 1, 0}
	snap, err := env.manager.Start(ctx, "123456789", "Fluffy", true)
	if err != nil {
		t.Fatalf("Start(replace) error: %v", err)
	}
	frame := sharpFrame(t)
	for i := 0; i < 3; i++ {
		if _, err := env.manager.SubmitFrame(ctx, snap.Token, frame); err != nil {
			t.Fatalf("SubmitFrame(%d) error: %v", i, err)
		}
	}

	rec, err := env.store.Get(ctx, "123456flu")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if rec.Version != 2 {
		t.Errorf("Version = %d, want 2", rec.Version)
	}

	matches := env.index.Query([]float32{0, 1, 0}, 1)
	if len(matches) != 1 || matches[0].Score < 0.999 {
		t.Errorf("index still holds the old vector: %v", matches)
	}
	if env.index.Len() != 1 {
		t.Errorf("index Len() = %d, want 1", env.index.Len())
	}
}

func TestFrameMetadataRetained(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	final := enrollIdentity(t, env, "123456789", "Fluffy")

	if len(final.Frames) != 3 {
		t.Fatalf("retained %d frame metadata entries, want 3", len(final.Frames))
	}
	for i, f := range final.Frames {
		if f.Confidence != 0.95 {
			t.Errorf("frame %d confidence = %v, want 0.95", i, f.Confidence)
		}
		if !f.Quality.Accepted {
			t.Errorf("frame %d quality not marked accepted", i)
		}
		if f.BBox.Dx() != 64 || f.BBox.Dy() != 64 {
			t.Errorf("frame %d bbox = %v", i, f.BBox)
		}
	}
}

func TestPruneExpired(t *testing.T) {
	env := newTestEnv(t, defaultTestConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.manager.Start(ctx, "123456789", "Fluffy", true); err != nil {
			t.Fatalf("Start() error: %v", err)
		}
	}
	if pruned := env.manager.PruneExpired(); pruned != 0 {
		t.Errorf("PruneExpired() on fresh sessions = %d, want 0", pruned)
	}

	env.clock.Advance(time.Hour)
	if pruned := env.manager.PruneExpired(); pruned != 3 {
		t.Errorf("PruneExpired() = %d, want 3", pruned)
	}
	if env.manager.Len() != 0 {
		t.Errorf("Len() after prune = %d, want 0", env.manager.Len())
	}
}
