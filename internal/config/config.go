// Package config loads service configuration from environment variables.
// Every knob has a default that works for local development against a face
// service on localhost.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server      ServerConfig
	FaceService FaceServiceConfig
	Enrollment  EnrollmentConfig
	Quality     QualityConfig
	Search      SearchConfig
	Index       IndexConfig
	Database    DatabaseConfig
	LogLevel    string
}

type ServerConfig struct {
	Port int
}

type FaceServiceConfig struct {
	URL     string        // face model server base URL (default http://localhost:8000)
	Timeout time.Duration // per-call deadline for detection and embedding
}

type EnrollmentConfig struct {
	MinFrames  int           // accepted frames needed before aggregation
	MaxFrames  int           // hard cap on accepted frames per session
	SessionTTL time.Duration // session lifetime from creation
}

type QualityConfig struct {
	BlurMin       float64 // Laplacian variance floor, higher is sharper
	BrightnessMin float64 // mean luminance bounds in [0, 255]
	BrightnessMax float64
	ContrastMin   float64 // luminance standard deviation floor
}

type SearchConfig struct {
	TopK int // ranked matches returned per search
}

type IndexConfig struct {
	HNSWThreshold int // corpus size at which queries switch from exact scan to HNSW; 0 disables HNSW
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL; empty runs fully in memory
	MaxOpenConns int
	MaxIdleConns int
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a non-negative float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration string.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: envInt("PORT", 8080),
		},
		FaceService: FaceServiceConfig{
			URL:     os.Getenv("FACE_SERVICE_URL"),
			Timeout: envDuration("FACE_SERVICE_TIMEOUT", 10*time.Second),
		},
		Enrollment: EnrollmentConfig{
			MinFrames:  envInt("ENROLLMENT_MIN_FRAMES", 5),
			MaxFrames:  envInt("ENROLLMENT_MAX_FRAMES", 20),
			SessionTTL: envDuration("ENROLLMENT_SESSION_TTL", 10*time.Minute),
		},
		Quality: QualityConfig{
			BlurMin:       envFloat("QUALITY_BLUR_MIN", 100),
			BrightnessMin: envFloat("QUALITY_BRIGHTNESS_MIN", 40),
			BrightnessMax: envFloat("QUALITY_BRIGHTNESS_MAX", 220),
			ContrastMin:   envFloat("QUALITY_CONTRAST_MIN", 20),
		},
		Search: SearchConfig{
			TopK: envInt("SEARCH_TOP_K", 5),
		},
		Index: IndexConfig{
			HNSWThreshold: envInt("INDEX_HNSW_THRESHOLD", 10000),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		LogLevel: envString("LOG_LEVEL", "info"),
	}
}
