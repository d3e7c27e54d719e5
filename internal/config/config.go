// Package config loads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Archive drivers
const (
	ArchiveDriverLocal = "local"
	ArchiveDriverS3    = "s3"
	ArchiveDriverMinIO = "minio"
)

// Provider names
const (
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// Config holds every setting of the service
type Config struct {
	AppEnv string
	Port   string

	// Voice store
	StoreDriver    string
	DatabaseURL    string
	DatabaseFlavor string
	VoiceTable     string

	// Providers
	STTProvider           string
	TranscriptionModel    string
	TranscriptionLanguage string
	EmbeddingProvider     string
	EmbeddingModel        string
	EmbeddingDimension    int
	EmbeddingCacheItems   int64
	ProviderRPS           float64
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	GeminiAPIKey          string

	// Audio
	FFmpegPath     string
	AudioBitrate   string
	UploadDir      string
	UploadMaxBytes int64

	// Archive
	ArchiveDriver  string
	ArchiveDir     string
	ArchiveBucket  string
	ArchivePrefix  string
	S3Region       string
	S3Endpoint     string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool

	// Pipeline
	StageTimeout        time.Duration
	SearchLimit         int
	SearchMinSimilarity float64

	// Service
	APIJWTSecret      string
	ReconcileInterval time.Duration
	OrphanGrace       time.Duration
	ShutdownTimeout   time.Duration
}

// Default returns the configuration used when no variable is set
func Default() Config {
	return Config{
		AppEnv:                "production",
		Port:                  "3001",
		StoreDriver:           StoreDriverPostgres,
		DatabaseFlavor:        "postgres",
		VoiceTable:            "voice",
		STTProvider:           ProviderOpenAI,
		TranscriptionModel:    "whisper-1",
		TranscriptionLanguage: "en-US",
		EmbeddingProvider:     ProviderOpenAI,
		EmbeddingDimension:    1536,
		EmbeddingCacheItems:   10000,
		FFmpegPath:            "ffmpeg",
		AudioBitrate:          "128k",
		UploadDir:             "uploads",
		UploadMaxBytes:        25 * 1024 * 1024,
		ArchiveDriver:         ArchiveDriverLocal,
		ArchiveDir:            "stored_audio",
		StageTimeout:          60 * time.Second,
		SearchLimit:           5,
		SearchMinSimilarity:   0.3,
		ReconcileInterval:     30 * time.Minute,
		OrphanGrace:           10 * time.Minute,
		ShutdownTimeout:       10 * time.Second,
	}
}

// Load reads .env files when present, then the environment. The result is
// not validated; callers pick Validate or ValidateStorage.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables already set
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, falling back to Default
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	p.strVar("APP_ENV", &cfg.AppEnv)
	p.strVar("PORT", &cfg.Port)

	p.strVar("STORE_DRIVER", &cfg.StoreDriver)
	p.strVar("DATABASE_URL", &cfg.DatabaseURL)
	p.strVar("DATABASE_FLAVOR", &cfg.DatabaseFlavor)
	p.strVar("VOICE_TABLE", &cfg.VoiceTable)

	p.strVar("STT_PROVIDER", &cfg.STTProvider)
	p.strVar("TRANSCRIPTION_MODEL", &cfg.TranscriptionModel)
	p.strVar("TRANSCRIPTION_LANGUAGE", &cfg.TranscriptionLanguage)
	p.strVar("EMBEDDING_PROVIDER", &cfg.EmbeddingProvider)
	p.strVar("EMBEDDING_MODEL", &cfg.EmbeddingModel)
	p.intVar("EMBEDDING_DIMENSION", &cfg.EmbeddingDimension)
	p.int64Var("EMBEDDING_CACHE_ITEMS", &cfg.EmbeddingCacheItems)
	p.floatVar("PROVIDER_RPS", &cfg.ProviderRPS)
	p.strVar("OPENAI_API_KEY", &cfg.OpenAIAPIKey)
	p.strVar("OPENAI_BASE_URL", &cfg.OpenAIBaseURL)
	p.strVar("GEMINI_API_KEY", &cfg.GeminiAPIKey)

	p.strVar("FFMPEG_PATH", &cfg.FFmpegPath)
	p.strVar("AUDIO_BITRATE", &cfg.AudioBitrate)
	p.strVar("UPLOAD_DIR", &cfg.UploadDir)
	p.int64Var("UPLOAD_MAX_BYTES", &cfg.UploadMaxBytes)

	p.strVar("ARCHIVE_DRIVER", &cfg.ArchiveDriver)
	p.strVar("ARCHIVE_DIR", &cfg.ArchiveDir)
	p.strVar("ARCHIVE_BUCKET", &cfg.ArchiveBucket)
	p.strVar("ARCHIVE_PREFIX", &cfg.ArchivePrefix)
	p.strVar("S3_REGION", &cfg.S3Region)
	p.strVar("S3_ENDPOINT", &cfg.S3Endpoint)
	p.strVar("MINIO_ENDPOINT", &cfg.MinIOEndpoint)
	p.strVar("MINIO_ACCESS_KEY", &cfg.MinIOAccessKey)
	p.strVar("MINIO_SECRET_KEY", &cfg.MinIOSecretKey)
	p.boolVar("MINIO_USE_SSL", &cfg.MinIOUseSSL)

	p.durationVar("STAGE_TIMEOUT", &cfg.StageTimeout)
	p.intVar("SEARCH_LIMIT", &cfg.SearchLimit)
	p.floatVar("SEARCH_MIN_SIMILARITY", &cfg.SearchMinSimilarity)

	p.strVar("API_JWT_SECRET", &cfg.APIJWTSecret)
	p.durationVar("RECONCILE_INTERVAL", &cfg.ReconcileInterval)
	p.durationVar("ORPHAN_GRACE", &cfg.OrphanGrace)
	p.durationVar("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsDevelopment reports whether APP_ENV selects development logging
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// Validate checks everything the server needs
func (c Config) Validate() error {
	var errs []error
	check := checker(&errs)

	check(c.Port != "", "PORT is required")

	switch c.STTProvider {
	case ProviderOpenAI:
		check(c.OpenAIAPIKey != "", "OPENAI_API_KEY is required for openai transcription")
	case ProviderGoogle, ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown STT_PROVIDER %q", c.STTProvider))
	}

	switch c.EmbeddingProvider {
	case ProviderOpenAI:
		check(c.OpenAIAPIKey != "", "OPENAI_API_KEY is required for openai embeddings")
	case ProviderGemini:
		check(c.GeminiAPIKey != "", "GEMINI_API_KEY is required for gemini embeddings")
	case ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider))
	}

	check(c.EmbeddingCacheItems >= 0, "EMBEDDING_CACHE_ITEMS cannot be negative")
	check(c.ProviderRPS >= 0, "PROVIDER_RPS cannot be negative")
	check(c.UploadDir != "", "UPLOAD_DIR is required")
	check(c.UploadMaxBytes > 0, "UPLOAD_MAX_BYTES must be positive")
	check(c.StageTimeout > 0, "STAGE_TIMEOUT must be positive")
	check(c.SearchLimit > 0, "SEARCH_LIMIT must be positive")
	check(c.SearchMinSimilarity >= -1 && c.SearchMinSimilarity <= 1, "SEARCH_MIN_SIMILARITY must be within [-1, 1]")
	check(c.ReconcileInterval >= 0, "RECONCILE_INTERVAL cannot be negative")
	check(c.ShutdownTimeout > 0, "SHUTDOWN_TIMEOUT must be positive")

	return errors.Join(c.ValidateStorage(), errors.Join(errs...))
}

// ValidateStorage checks the store and archive settings only, for commands
// that never call a provider
func (c Config) ValidateStorage() error {
	var errs []error
	check := checker(&errs)

	switch c.StoreDriver {
	case StoreDriverPostgres:
		check(c.DatabaseURL != "", "DATABASE_URL is required for the postgres store")
		check(c.DatabaseFlavor == "postgres" || c.DatabaseFlavor == "cockroach",
			"DATABASE_FLAVOR must be postgres or cockroach, got %q", c.DatabaseFlavor)
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	switch c.ArchiveDriver {
	case ArchiveDriverLocal:
		check(c.ArchiveDir != "", "ARCHIVE_DIR is required for the local archive")
	case ArchiveDriverS3:
		check(c.ArchiveBucket != "", "ARCHIVE_BUCKET is required for the s3 archive")
	case ArchiveDriverMinIO:
		check(c.ArchiveBucket != "", "ARCHIVE_BUCKET is required for the minio archive")
		check(c.MinIOEndpoint != "", "MINIO_ENDPOINT is required for the minio archive")
	default:
		errs = append(errs, fmt.Errorf("unknown ARCHIVE_DRIVER %q", c.ArchiveDriver))
	}

	check(c.EmbeddingDimension > 0, "EMBEDDING_DIMENSION must be positive")
	check(c.OrphanGrace >= 0, "ORPHAN_GRACE cannot be negative")

	return errors.Join(errs...)
}

func checker(errs *[]error) func(ok bool, format string, args ...any) {
	return func(ok bool, format string, args ...any) {
		if !ok {
			*errs = append(*errs, fmt.Errorf(format, args...))
		}
	}
}

// parser collects conversion errors so all bad variables are reported at once
type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) get(key string) (string, bool) {
	v, ok := p.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (p *parser) strVar(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *parser) intVar(key string, dst *int) {
	if v, ok := p.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
			return
		}
		*dst = n
	}
}

func (p *parser) int64Var(key string, dst *int64) {
	if v, ok := p.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
			return
		}
		*dst = n
	}
}

func (p *parser) floatVar(key string, dst *float64) {
	if v, ok := p.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: invalid number %q", key, v))
			return
		}
		*dst = f
	}
}

func (p *parser) boolVar(key string, dst *bool) {
	if v, ok := p.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
			return
		}
		*dst = b
	}
}

func (p *parser) durationVar(key string, dst *time.Duration) {
	if v, ok := p.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
			return
		}
		*dst = d
	}
}
