// Package app builds the service components selected by configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/adapters/archive"
	"github.com/satriahrh/voicememo/adapters/embedding"
	"github.com/satriahrh/voicememo/adapters/ffmpeg"
	"github.com/satriahrh/voicememo/adapters/memory"
	"github.com/satriahrh/voicememo/adapters/postgres"
	"github.com/satriahrh/voicememo/adapters/stt"
	"github.com/satriahrh/voicememo/adapters/throttle"
	"github.com/satriahrh/voicememo/domain/repositories"
	"github.com/satriahrh/voicememo/internal/api"
	"github.com/satriahrh/voicememo/internal/auth"
	"github.com/satriahrh/voicememo/internal/config"
	"github.com/satriahrh/voicememo/internal/maintenance"
	"github.com/satriahrh/voicememo/internal/pipeline"
	"github.com/satriahrh/voicememo/internal/websocket"
	"github.com/satriahrh/voicememo/usecase"
)

// Events dropped past this backlog are logged by the runner
const eventBuffer = 256

// Storage holds the voice store and audio archive
type Storage struct {
	Store      repositories.VoiceRecordRepository
	Archive    repositories.AudioArchive
	Reconciler *usecase.Reconciler

	postgres *postgres.VoiceRepository
	closers  []func()
	logger   *zap.Logger
}

// OpenStorage connects the configured store and archive
func OpenStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Storage, error) {
	if err := cfg.ValidateStorage(); err != nil {
		return nil, err
	}
	s := &Storage{logger: logger}

	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		client, err := postgres.NewClient(ctx, postgres.Config{
			URL:    cfg.DatabaseURL,
			Flavor: cfg.DatabaseFlavor,
		}, logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, client.Close)

		repo, err := postgres.NewVoiceRepository(client, cfg.VoiceTable, cfg.EmbeddingDimension, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.postgres = repo
		s.Store = repo
	case config.StoreDriverMemory:
		repo, err := memory.NewVoiceRepository(cfg.EmbeddingDimension, logger)
		if err != nil {
			return nil, err
		}
		logger.Warn("Using in-process voice store; records are lost on restart")
		s.Store = repo
	}

	audioArchive, err := newArchive(ctx, cfg, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Archive = audioArchive
	s.Reconciler = usecase.NewReconciler(s.Store, s.Archive, cfg.OrphanGrace, logger)

	return s, nil
}

func newArchive(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.AudioArchive, error) {
	switch cfg.ArchiveDriver {
	case config.ArchiveDriverS3:
		s3Config := archive.S3Config{
			Bucket:   cfg.ArchiveBucket,
			Prefix:   cfg.ArchivePrefix,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		}
		client, err := archive.NewS3Client(ctx, s3Config)
		if err != nil {
			return nil, err
		}
		return archive.NewS3(client, s3Config, logger)
	case config.ArchiveDriverMinIO:
		return archive.NewMinIO(ctx, archive.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
			Bucket:    cfg.ArchiveBucket,
			Prefix:    cfg.ArchivePrefix,
		}, logger)
	default:
		return archive.NewLocal(cfg.ArchiveDir, logger)
	}
}

// Migrate creates the voice table. The in-process store needs no schema.
func (s *Storage) Migrate(ctx context.Context) error {
	if s.postgres == nil {
		s.logger.Info("Store has no schema to migrate")
		return nil
	}
	return s.postgres.Migrate(ctx)
}

// Close releases connections in reverse order of creation
func (s *Storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Server holds everything the serve command runs
type Server struct {
	*Storage
	Ingestion *usecase.IngestionService
	Retrieval *usecase.RetrievalService
	Handler   *api.Handler
	Janitor   *maintenance.Janitor
	Hub       *websocket.Hub

	events <-chan pipeline.Event
}

// RunHub streams pipeline events to observers until ctx is done
func (s *Server) RunHub(ctx context.Context) error {
	return s.Hub.Run(ctx, s.events)
}

// NewServer validates cfg and builds the providers and pipelines on top of
// storage
func NewServer(ctx context.Context, cfg config.Config, storage *Storage, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	speechToText, err := newSpeechToText(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if closer, ok := speechToText.(interface{ Close() error }); ok {
		storage.closers = append(storage.closers, func() {
			if err := closer.Close(); err != nil {
				logger.Warn("Failed to close speech-to-text client", zap.Error(err))
			}
		})
	}
	embedder, err := newEmbedder(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.ProviderRPS > 0 {
		limiter := throttle.NewLimiter(cfg.ProviderRPS)
		speechToText = throttle.NewSpeechToText(speechToText, limiter)
		embedder = throttle.NewEmbedder(embedder, limiter)
	}
	if cfg.EmbeddingCacheItems > 0 {
		cached, err := embedding.NewCached(embedder, cfg.EmbeddingCacheItems, logger)
		if err != nil {
			return nil, err
		}
		storage.closers = append(storage.closers, cached.Close)
		embedder = cached
	}
	if embedder.Dimension() != storage.Store.Dimension() {
		return nil, fmt.Errorf("embedder produces %d dimensions but the store expects %d",
			embedder.Dimension(), storage.Store.Dimension())
	}

	normalizer := ffmpeg.NewNormalizer(ffmpeg.Config{
		Binary:  cfg.FFmpegPath,
		Bitrate: cfg.AudioBitrate,
	}, logger)
	runner := pipeline.NewRunner(logger, cfg.StageTimeout)
	events := runner.EnableEvents(eventBuffer)
	hub := websocket.NewHub(logger)

	ingestion := usecase.NewIngestionService(normalizer, speechToText, embedder, storage.Store, storage.Archive, runner, logger)
	retrieval := usecase.NewRetrievalService(normalizer, speechToText, embedder, storage.Store,
		repositories.SearchOptions{Limit: cfg.SearchLimit, MinSimilarity: cfg.SearchMinSimilarity}, runner, logger)

	options := api.Options{
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.UploadMaxBytes,
		Events:         hub,
	}
	if cfg.APIJWTSecret != "" {
		authenticator, err := auth.NewAuthenticator(cfg.APIJWTSecret)
		if err != nil {
			return nil, err
		}
		options.Authenticator = authenticator
	}
	handler, err := api.NewHandler(ingestion, retrieval, options, logger)
	if err != nil {
		return nil, err
	}

	janitor := maintenance.NewJanitor(storage.Reconciler, maintenance.Config{
		Interval:  cfg.ReconcileInterval,
		UploadDir: cfg.UploadDir,
	}, logger)

	return &Server{
		Storage:   storage,
		Ingestion: ingestion,
		Retrieval: retrieval,
		Handler:   handler,
		Janitor:   janitor,
		Hub:       hub,
		events:    events,
	}, nil
}

func newSpeechToText(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.SpeechToText, error) {
	switch cfg.STTProvider {
	case config.ProviderOpenAI:
		return stt.NewOpenAISpeechToText(stt.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.TranscriptionModel,
		}, logger)
	case config.ProviderGoogle:
		return stt.NewGoogleSpeechToText(ctx, repositories.AudioConfig{
			Encoding:   "MP3",
			SampleRate: ffmpeg.CanonicalSampleRate,
			Language:   cfg.TranscriptionLanguage,
		}, logger)
	case config.ProviderMock:
		return stt.NewMockSpeechToText(logger), nil
	}
	return nil, errors.New("unknown speech-to-text provider: " + cfg.STTProvider)
}

func newEmbedder(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderOpenAI:
		return embedding.NewOpenAI(embedding.OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.EmbeddingModel,
			Dimension: cfg.EmbeddingDimension,
		}, logger)
	case config.ProviderGemini:
		return embedding.NewGemini(ctx, embedding.GeminiConfig{
			APIKey:    cfg.GeminiAPIKey,
			Model:     cfg.EmbeddingModel,
			Dimension: cfg.EmbeddingDimension,
		}, logger)
	case config.ProviderMock:
		return embedding.NewMock(cfg.EmbeddingDimension), nil
	}
	return nil, errors.New("unknown embedding provider: " + cfg.EmbeddingProvider)
}
