package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/voicememo/adapters/archive"
	"github.com/satriahrh/voicememo/adapters/embedding"
	"github.com/satriahrh/voicememo/adapters/memory"
	"github.com/satriahrh/voicememo/domain"
	"github.com/satriahrh/voicememo/domain/entities"
	"github.com/satriahrh/voicememo/domain/repositories"
	"github.com/satriahrh/voicememo/internal/pipeline"
)

var errProvider = errors.New("provider unavailable")

// fakeNormalizer copies the upload to <base>.normalized.mp3
type fakeNormalizer struct {
	err     error
	outputs []string
}

func (n *fakeNormalizer) Normalize(ctx context.Context, rawPath string) (string, error) {
	if n.err != nil {
		return "", domain.E(domain.KindConversion, "normalize", n.err)
	}
	data, err := os.ReadFile(rawPath)
	if err != nil {
		return "", domain.E(domain.KindConversion, "normalize", err)
	}
	out := strings.TrimSuffix(rawPath, filepath.Ext(rawPath)) + ".normalized.mp3"
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", err
	}
	n.outputs = append(n.outputs, out)
	return out, nil
}

// fakeSpeechToText transcribes every file as text
type fakeSpeechToText struct {
	text string
	err  error
}

func (s *fakeSpeechToText) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if s.err != nil {
		return "", domain.E(domain.KindTranscription, "transcribe", s.err)
	}
	if _, err := os.Stat(audioPath); err != nil {
		return "", fmt.Errorf("transcriber received a missing file: %w", err)
	}
	return s.text, nil
}

// fakeEmbedder fails or returns vectors of the wrong length
type fakeEmbedder struct {
	err       error
	dimension int
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return make([]float32, e.dimension), nil
}

func (e *fakeEmbedder) Dimension() int { return e.dimension }

// failingStore wraps a store and fails the configured operations
type failingStore struct {
	repositories.VoiceRecordRepository
	insertErr error
	searchErr error
}

func (s *failingStore) Insert(ctx context.Context, record *entities.VoiceRecord) (int64, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	return s.VoiceRecordRepository.Insert(ctx, record)
}

func (s *failingStore) Search(ctx context.Context, query []float32, opts repositories.SearchOptions) ([]entities.Match, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.VoiceRecordRepository.Search(ctx, query, opts)
}

// failingArchive rejects every Put
type failingArchive struct {
	repositories.AudioArchive
}

func (a *failingArchive) Put(ctx context.Context, name, srcPath string) error {
	return errors.New("disk full")
}

// fixture wires real in-process backends with replaceable fakes
type fixture struct {
	t          *testing.T
	logger     *zap.Logger
	uploadDir  string
	normalizer *fakeNormalizer
	stt        *fakeSpeechToText
	embedder   repositories.Embedder
	store      *memory.VoiceRepository
	archive    *archive.Local

	storeOverride   repositories.VoiceRecordRepository
	archiveOverride repositories.AudioArchive
}

func newFixture(t *testing.T) *fixture {
	logger := zaptest.NewLogger(t)
	store, err := memory.NewVoiceRepository(embedding.DefaultDimension, logger)
	require.NoError(t, err)
	local, err := archive.NewLocal(filepath.Join(t.TempDir(), "stored_audio"), logger)
	require.NoError(t, err)

	return &fixture{
		t:          t,
		logger:     logger,
		uploadDir:  t.TempDir(),
		normalizer: &fakeNormalizer{},
		stt:        &fakeSpeechToText{text: "Turn on the kitchen light."},
		embedder:   embedding.NewMock(embedding.DefaultDimension),
		store:      store,
		archive:    local,
	}
}

func (f *fixture) voiceStore() repositories.VoiceRecordRepository {
	if f.storeOverride != nil {
		return f.storeOverride
	}
	return f.store
}

func (f *fixture) audioArchive() repositories.AudioArchive {
	if f.archiveOverride != nil {
		return f.archiveOverride
	}
	return f.archive
}

func (f *fixture) ingestion() *IngestionService {
	return NewIngestionService(f.normalizer, f.stt, f.embedder, f.voiceStore(), f.audioArchive(),
		pipeline.NewRunner(f.logger, 0), f.logger)
}

func (f *fixture) retrieval() *RetrievalService {
	return NewRetrievalService(f.normalizer, f.stt, f.embedder, f.voiceStore(),
		repositories.DefaultSearchOptions(), pipeline.NewRunner(f.logger, 0), f.logger)
}

// upload writes a fake uploaded file and returns its path
func (f *fixture) upload(name string) string {
	f.t.Helper()
	path := filepath.Join(f.uploadDir, name)
	require.NoError(f.t, os.WriteFile(path, []byte("RIFF fake audio"), 0o644))
	return path
}

// leftovers returns every file still present in the upload directory
func (f *fixture) leftovers() []string {
	f.t.Helper()
	entries, err := os.ReadDir(f.uploadDir)
	require.NoError(f.t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func (f *fixture) archived() []string {
	f.t.Helper()
	listed, err := f.archive.List(context.Background())
	require.NoError(f.t, err)
	var names []string
	for _, a := range listed {
		names = append(names, a.Name)
	}
	return names
}

func (f *fixture) rows() []string {
	f.t.Helper()
	refs, err := f.store.ListAudioReferences(context.Background())
	require.NoError(f.t, err)
	return refs
}
