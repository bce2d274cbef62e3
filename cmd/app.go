package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/pawtrail/internal/config"
	"github.com/kozaktomas/pawtrail/internal/enroll"
	"github.com/kozaktomas/pawtrail/internal/faceapi"
	"github.com/kozaktomas/pawtrail/internal/index"
	"github.com/kozaktomas/pawtrail/internal/logging"
	"github.com/kozaktomas/pawtrail/internal/quality"
	"github.com/kozaktomas/pawtrail/internal/recognize"
	"github.com/kozaktomas/pawtrail/internal/store"
	"github.com/kozaktomas/pawtrail/internal/store/postgres"
	"github.com/kozaktomas/pawtrail/internal/trail"
)

// app holds the wired service components shared by all commands. Serve and
// the batch commands build the same stack so behavior matches between the
// API and the CLI.
type app struct {
	cfg        *config.Config
	log        *logrus.Logger
	manager    *enroll.Manager
	engine     *recognize.Engine
	identities store.IdentityStore
	searchLog  store.SearchLog

	pool *postgres.Pool // nil when running in memory
}

// buildApp loads configuration and wires the full stack: face service
// client, quality assessor, identity store (PostgreSQL when DATABASE_URL is
// set, in-memory otherwise), similarity index hydrated from the store,
// enrollment manager and search engine.
func buildApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	log := logging.Init(cfg.LogLevel)

	client := faceapi.NewClient(cfg.FaceService.URL, cfg.FaceService.Timeout)
	assessor := quality.NewAssessor(quality.Thresholds{
		BlurMin:       cfg.Quality.BlurMin,
		BrightnessMin: cfg.Quality.BrightnessMin,
		BrightnessMax: cfg.Quality.BrightnessMax,
		ContrastMin:   cfg.Quality.ContrastMin,
	})

	var (
		identities store.IdentityStore
		searchLog  store.SearchLog
		pool       *postgres.Pool
	)
	if cfg.Database.URL != "" {
		var err error
		pool, err = postgres.NewPool(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		if err := pool.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		repo := postgres.NewIdentityRepository(pool)
		identities = repo
		searchLog = postgres.NewSearchLogRepository(pool, repo)
		log.Info("using PostgreSQL identity store")
	} else {
		mem := store.NewMemory()
		identities = mem
		searchLog = mem
		log.Warn("DATABASE_URL not set, identities will not survive restarts")
	}

	idx := index.New(cfg.Index.HNSWThreshold)
	records, err := identities.List(ctx)
	if err != nil {
		closePool(pool)
		return nil, fmt.Errorf("loading identities: %w", err)
	}
	entries := make([]index.Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, index.Entry{Key: rec.Key, Vector: rec.Vector})
	}
	if err := idx.Build(entries); err != nil {
		closePool(pool)
		return nil, fmt.Errorf("building similarity index: %w", err)
	}
	log.WithField("identities", idx.Len()).Info("similarity index ready")

	classifier, err := trail.NewClassifier()
	if err != nil {
		closePool(pool)
		return nil, fmt.Errorf("loading trail tiers: %w", err)
	}

	manager := enroll.NewManager(cfg.Enrollment, client, client, assessor, identities, idx, log)
	engine := recognize.NewEngine(client, client, idx, identities, classifier, searchLog, cfg.Search.TopK, log)

	return &app{
		cfg:        cfg,
		log:        log,
		manager:    manager,
		engine:     engine,
		identities: identities,
		searchLog:  searchLog,
		pool:       pool,
	}, nil
}

// Close releases resources held by the app.
func (a *app) Close() {
	closePool(a.pool)
}

func closePool(pool *postgres.Pool) {
	if pool != nil {
		_ = pool.Close()
	}
}
