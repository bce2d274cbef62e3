package enroll

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/pawtrail/internal/config"
	"github.com/kozaktomas/pawtrail/internal/faceapi"
	"github.com/kozaktomas/pawtrail/internal/index"
	"github.com/kozaktomas/pawtrail/internal/quality"
	"github.com/kozaktomas/pawtrail/internal/store"
)

// fakeDetector returns canned detections and supports error injection.
type fakeDetector struct {
	mu         sync.Mutex
	detections []faceapi.Detection
	err        error
	calls      int
}

func (f *fakeDetector) DetectFaces(_ context.Context, _ []byte) ([]faceapi.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.detections, nil
}

// fakeEmbedder pops vectors from a queue, falling back to a fixed vector.
type fakeEmbedder struct {
	mu    sync.Mutex
	queue [][]float32
	fixed []float32
	err   error
}

func (f *fakeEmbedder) ComputeEmbedding(_ context.Context, _ []byte) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.queue) > 0 {
		v := f.queue[0]
		f.queue = f.queue[1:]
		return v, nil
	}
	return f.fixed, nil
}

// manualClock drives lazy session expiry in tests.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sharpFrame is a checkerboard PNG that passes every quality gate.
func sharpFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.Gray{Y: 255})
			} else {
				img.Set(x, y, color.Gray{Y: 0})
			}
		}
	}
	return encodePNG(t, img)
}

// blurryFrame is a flat gray PNG that fails the blur gate.
func blurryFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.Gray{Y: 128})
		}
	}
	return encodePNG(t, img)
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test frame: %v", err)
	}
	return buf.Bytes()
}

func fullFrameDetection() []faceapi.Detection {
	return []faceapi.Detection{
		{BBox: image.Rect(0, 0, 64, 64), Confidence: 0.95},
	}
}

type testEnv struct {
	manager  *Manager
	detector *fakeDetector
	embedder *fakeEmbedder
	store    *store.Memory
	index    *index.Index
	clock    *manualClock
}

func newTestEnv(t *testing.T, cfg config.EnrollmentConfig) *testEnv {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	env := &testEnv{
		detector: &fakeDetector{detections: fullFrameDetection()},
		embedder: &fakeEmbedder{fixed: []float32{1, 0, 0}},
		store:    store.NewMemory(),
		index:    index.New(0),
		clock:    newManualClock(),
	}
	env.manager = NewManager(
		cfg,
		env.detector,
		env.embedder,
		quality.NewAssessor(quality.DefaultThresholds()),
		env.store,
		env.index,
		log,
	)
	env.manager.SetClock(env.clock.Now)
	return env
}

func defaultTestConfig() config.EnrollmentConfig {
	return config.EnrollmentConfig{
		MinFrames:  3,
		MaxFrames:  10,
		SessionTTL: 10 * time.Minute,
	}
}
