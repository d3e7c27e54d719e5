package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/domain"
	"github.com/satriahrh/voicememo/domain/entities"
	"github.com/satriahrh/voicememo/internal/auth"
	"github.com/satriahrh/voicememo/internal/pipeline"
	"github.com/satriahrh/voicememo/internal/websocket"
)

// fakeVoiceService records the uploads it receives and removes them like the
// real services do
type fakeVoiceService struct {
	calls      []string
	sawContent []string
	err        error
	run        *pipeline.Run
	matches    []entities.Match
}

func (f *fakeVoiceService) consume(path string) {
	f.calls = append(f.calls, path)
	data, _ := os.ReadFile(path)
	f.sawContent = append(f.sawContent, string(data))
	os.Remove(path)
}

func (f *fakeVoiceService) Ingest(ctx context.Context, path string) (*entities.IngestResult, *pipeline.Run, error) {
	f.consume(path)
	if f.err != nil {
		return nil, f.run, f.err
	}
	return &entities.IngestResult{ID: 42, Transcription: "Turn on the kitchen light.", EmbeddingDimension: 1536}, f.run, nil
}

func (f *fakeVoiceService) Search(ctx context.Context, path string) (*entities.SearchResult, *pipeline.Run, error) {
	f.consume(path)
	if f.err != nil {
		return nil, f.run, f.err
	}
	return &entities.SearchResult{Query: "kitchen light", Results: f.matches}, f.run, nil
}

func setupTestServer(t *testing.T, svc *fakeVoiceService, options Options) (*echo.Echo, string) {
	t.Helper()
	if options.UploadDir == "" {
		options.UploadDir = filepath.Join(t.TempDir(), "uploads")
	}
	h, err := NewHandler(svc, svc, options, zap.NewNop())
	require.NoError(t, err)

	e := NewEcho(zap.NewNop())
	InitRoutes(e, h)
	return e, options.UploadDir
}

func multipartRequest(t *testing.T, target, field, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if field != "" {
		part, err := writer.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, writer.WriteField("note", "no file here"))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHealth(t *testing.T) {
	e, _ := setupTestServer(t, &fakeVoiceService{}, Options{})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"voicememo"}`, rec.Body.String())
}

func TestStore(t *testing.T) {
	svc := &fakeVoiceService{}
	e, uploadDir := setupTestServer(t, svc, Options{})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, multipartRequest(t, "/api/store", AudioField, "memo.WEBM", []byte("webm bytes")))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"id":42,"transcription":"Turn on the kitchen light.","embedding_dimension":1536}`, rec.Body.String())

	require.Len(t, svc.calls, 1)
	assert.Equal(t, uploadDir, filepath.Dir(svc.calls[0]))
	assert.Regexp(t, `^audio-[0-9a-f-]{36}\.webm$`, filepath.Base(svc.calls[0]))
	assert.Equal(t, "webm bytes", svc.sawContent[0])
	assertDirEmpty(t, uploadDir)
}

func TestSearch(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := &fakeVoiceService{matches: []entities.Match{
		{ID: 7, Transcription: "Turn on the kitchen light.", AudioReference: "voice-a.mp3", CreatedAt: created, Similarity: 0.91},
	}}
	e, _ := setupTestServer(t, svc, Options{})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, multipartRequest(t, "/api/search", AudioField, "query.wav", []byte("wav")))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "kitchen light", resp.Query)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "voice-a.mp3", resp.Results[0].AudioReference)
	assert.Equal(t, 0.91, resp.Results[0].Similarity)
	assert.Contains(t, rec.Body.String(), `"file_name":"voice-a.mp3"`)
	assert.Contains(t, rec.Body.String(), `"created_at":"2024-05-01T12:00:00Z"`)
}

func TestSearchEmptyResults(t *testing.T) {
	svc := &fakeVoiceService{matches: []entities.Match{}}
	e, _ := setupTestServer(t, svc, Options{})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, multipartRequest(t, "/api/search", AudioField, "query.wav", []byte("wav")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"query":"kitchen light","results":[]}`, rec.Body.String())
}

func TestMissingFile(t *testing.T) {
	for _, target := range []string{"/api/store", "/api/search"} {
		t.Run(target, func(t *testing.T) {
			svc := &fakeVoiceService{}
			e, uploadDir := setupTestServer(t, svc, Options{})

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, multipartRequest(t, target, "", "", nil))

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp.Error, domain.ErrNoAudio.Error())
			assert.Empty(t, resp.Stack)

			assert.Empty(t, svc.calls, "no pipeline runs without a file")
			assertDirEmpty(t, uploadDir)
		})
	}
}

func TestNotMultipart(t *testing.T) {
	svc := &fakeVoiceService{}
	e, _ := setupTestServer(t, svc, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/store", strings.NewReader(`{"audio":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), domain.ErrNoAudio.Error())
	assert.Empty(t, svc.calls)
}

func TestOversizedUpload(t *testing.T) {
	svc := &fakeVoiceService{}
	e, uploadDir := setupTestServer(t, svc, Options{MaxUploadBytes: 1024})

	t.Run("file over the limit inside the body allowance", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, multipartRequest(t, "/api/store", AudioField, "big.wav", bytes.Repeat([]byte("a"), 2048)))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), domain.ErrAudioTooLarge.Error())
	})

	t.Run("body over the limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, multipartRequest(t, "/api/store", AudioField, "huge.wav", bytes.Repeat([]byte("a"), 200*1024)))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Error, domain.ErrAudioTooLarge.Error())
	})

	t.Run("streamed body over the limit", func(t *testing.T) {
		req := multipartRequest(t, "/api/search", AudioField, "huge.wav", bytes.Repeat([]byte("a"), 200*1024))
		req.ContentLength = -1
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), domain.ErrAudioTooLarge.Error())
	})

	assert.Empty(t, svc.calls)
	assertDirEmpty(t, uploadDir)
}

func TestPipelineFailureStatus(t *testing.T) {
	run := &pipeline.Run{
		Visited:    []pipeline.State{pipeline.StateUploaded, pipeline.StateNormalized, pipeline.StateFailed},
		FailedStep: "transcribe",
	}

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"no speech", domain.E(domain.KindValidation, "transcribe", domain.ErrNoSpeech), http.StatusInternalServerError},
		{"conversion", domain.E(domain.KindConversion, "normalize", assert.AnError), http.StatusInternalServerError},
		{"transcription service", domain.E(domain.KindTranscription, "transcribe", assert.AnError), http.StatusInternalServerError},
		{"store write", domain.E(domain.KindStoreWrite, "store", assert.AnError), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run.FailedKind = domain.KindOf(tt.err)
			svc := &fakeVoiceService{err: tt.err, run: run}
			e, uploadDir := setupTestServer(t, svc, Options{})

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, multipartRequest(t, "/api/store", AudioField, "memo.wav", []byte("wav")))

			assert.Equal(t, tt.status, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.err.Error(), resp.Error)
			assert.Equal(t, run.Trace(), resp.Stack)
			assertDirEmpty(t, uploadDir)
		})
	}
}

func TestBearerAuth(t *testing.T) {
	authenticator, err := auth.NewAuthenticator("test-secret")
	require.NoError(t, err)
	svc := &fakeVoiceService{}
	e, _ := setupTestServer(t, svc, Options{Authenticator: authenticator})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, multipartRequest(t, "/api/store", AudioField, "memo.wav", []byte("wav")))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := multipartRequest(t, "/api/store", AudioField, "memo.wav", []byte("wav"))
		req.Header.Set("Authorization", "Bearer invalid")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := authenticator.GenerateClientToken("kiosk-1", time.Hour)
		require.NoError(t, err)
		req := multipartRequest(t, "/api/store", AudioField, "memo.wav", []byte("wav"))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("health stays open", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	assert.Len(t, svc.calls, 1)
}

func TestUnknownRouteUsesErrorShape(t *testing.T) {
	e, _ := setupTestServer(t, &fakeVoiceService{}, Options{})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
}

func TestEventsRoute(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		e, _ := setupTestServer(t, &fakeVoiceService{}, Options{})
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("streams events", func(t *testing.T) {
		hub := websocket.NewHub(zap.NewNop())
		events := make(chan pipeline.Event, 1)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go hub.Run(ctx, events)

		e, _ := setupTestServer(t, &fakeVoiceService{}, Options{Events: hub})
		server := httptest.NewServer(e)
		defer server.Close()

		url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/events"
		conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer conn.Close()
		require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

		events <- pipeline.Event{RunID: "ingest_1", Definition: "ingest", Type: pipeline.EventRunStarted, State: pipeline.StateUploaded, Timestamp: time.Now()}

		var msg websocket.EventMessage
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "ingest_1", msg.RunID)
		assert.Equal(t, pipeline.StateUploaded, msg.State)
	})
}
