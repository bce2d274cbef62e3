package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/pawtrail/internal/config"
	"github.com/kozaktomas/pawtrail/internal/enroll"
	"github.com/kozaktomas/pawtrail/internal/faceapi"
	"github.com/kozaktomas/pawtrail/internal/index"
	"github.com/kozaktomas/pawtrail/internal/quality"
	"github.com/kozaktomas/pawtrail/internal/recognize"
	"github.com/kozaktomas/pawtrail/internal/store"
	"github.com/kozaktomas/pawtrail/internal/trail"
)

type fakeDetector struct {
	mu         sync.Mutex
	detections []faceapi.Detection
	err        error
}

func (f *fakeDetector) DetectFaces(_ context.Context, _ []byte) ([]faceapi.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.detections, nil
}

type fakeEmbedder struct {
	mu     sync.Mutex
	result []float32
	err    error
}

func (f *fakeEmbedder) ComputeEmbedding(_ context.Context, _ []byte) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeEmbedder) set(v []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = v
}

type testEnv struct {
	router   chi.Router
	detector *fakeDetector
	embedder *fakeEmbedder
	store    *store.Memory
	index    *index.Index
	manager  *enroll.Manager
}

// newTestEnv builds the full handler stack on fakes, with routes mirroring
// the server's route table.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	classifier, err := trail.NewClassifier()
	if err != nil {
		t.Fatalf("NewClassifier() error: %v", err)
	}

	env := &testEnv{
		detector: &fakeDetector{detections: []faceapi.Detection{
			{BBox: image.Rect(0, 0, 64, 64), Confidence: 0.9},
		}},
		embedder: &fakeEmbedder{result: []float32{1, 0, 0}},
		store:    store.NewMemory(),
		index:    index.New(0),
	}

	env.manager = enroll.NewManager(
		config.EnrollmentConfig{MinFrames: 2, MaxFrames: 10, SessionTTL: 10 * time.Minute},
		env.detector,
		env.embedder,
		quality.NewAssessor(quality.DefaultThresholds()),
		env.store,
		env.index,
		log,
	)
	engine := recognize.NewEngine(env.detector, env.embedder, env.index, env.store, classifier, env.store, 5, log)

	r := chi.NewRouter()
	enrollmentHandler := NewEnrollmentHandler(env.manager, log)
	searchHandler := NewSearchHandler(engine)
	identitiesHandler := NewIdentitiesHandler(env.store)
	statsHandler := NewStatsHandler(env.store)

	r.Get("/api/v1/health", HealthCheck)
	r.Post("/api/v1/enrollments", enrollmentHandler.Start)
	r.Get("/api/v1/enrollments/{token}", enrollmentHandler.Get)
	r.Post("/api/v1/enrollments/{token}/frames", enrollmentHandler.SubmitFrame)
	r.Post("/api/v1/enrollments/{token}/complete", enrollmentHandler.Complete)
	r.Delete("/api/v1/enrollments/{token}", enrollmentHandler.Abort)
	r.Post("/api/v1/search", searchHandler.Search)
	r.Get("/api/v1/identities", identitiesHandler.List)
	r.Get("/api/v1/stats", statsHandler.Get)
	env.router = r

	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) postJSON(t *testing.T, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return env.do(t, http.MethodPost, path, bytes.NewReader(data), "application/json")
}

func (env *testEnv) postImage(t *testing.T, path string, imageData []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "frame.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(imageData); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return env.do(t, http.MethodPost, path, &buf, writer.FormDataContentType())
}

// sharpFrame passes every quality gate.
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
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test frame: %v", err)
	}
	return buf.Bytes()
}

// blurryFrame fails the blur gate.
func blurryFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.Gray{Y: 128})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test frame: %v", err)
	}
	return buf.Bytes()
}

func assertStatusCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, want, rec.Body.String())
	}
}

func parseJSONResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not valid JSON: %v (body: %s)", err, rec.Body.String())
	}
	return out
}

func assertJSONReason(t *testing.T, rec *httptest.ResponseRecorder, wantReason string) {
	t.Helper()
	body := parseJSONResponse(t, rec)
	if body["reason"] != wantReason {
		t.Errorf("reason = %v, want %q", body["reason"], wantReason)
	}
}

// startSession opens an enrollment session and returns its token.
func (env *testEnv) startSession(t *testing.T, externalID, name string, replace bool) string {
	t.Helper()
	rec := env.postJSON(t, "/api/v1/enrollments", startEnrollmentRequest{
		ExternalID: externalID,
		Name:       name,
		Replace:    replace,
	})
	assertStatusCode(t, rec, http.StatusCreated)
	body := parseJSONResponse(t, rec)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("no token in start response")
	}
	return token
}

// enrollPet drives a session to completion over HTTP.
func (env *testEnv) enrollPet(t *testing.T, externalID, name string, vec []float32) {
	t.Helper()
	env.embedder.set(vec)
	token := env.startSession(t, externalID, name, false)
	frame := sharpFrame(t)
	for i := 0; i < 2; i++ {
		rec := env.postImage(t, "/api/v1/enrollments/"+token+"/frames", frame)
		assertStatusCode(t, rec, http.StatusOK)
	}
}
