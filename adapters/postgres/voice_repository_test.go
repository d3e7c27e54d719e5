package postgres

import (
	"context"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/voicememo/domain"
	"github.com/satriahrh/voicememo/domain/entities"
	"github.com/satriahrh/voicememo/domain/repositories"
)

// negativeInnerProduct mirrors pgvector's <#> operator
func negativeInnerProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return -sum
}

func TestSearchSQLInvertsNegativeInnerProduct(t *testing.T) {
	repo, err := newVoiceRepository(nil, FlavorPostgres, "", 3, zaptest.NewLogger(t))
	require.NoError(t, err)

	sql := repo.searchSQL()
	assert.Contains(t, sql, "(vec <#> $1::vector) * -1 AS similarity")
	assert.Contains(t, sql, "WHERE similarity >= $2")
	assert.Contains(t, sql, "ORDER BY similarity DESC")
	assert.Contains(t, sql, "LIMIT $3")
	assert.Contains(t, sql, `FROM "voice"`)

	// identical unit vectors: <#> is -1, similarity after inversion is 1
	v := []float32{0.6, 0.8, 0}
	similarity := negativeInnerProduct(v, v) * -1
	assert.InDelta(t, 1.0, similarity, 1e-6)
	assert.GreaterOrEqual(t, similarity, repositories.DefaultMinSimilarity)

	// orthogonal vectors fall below the threshold
	w := []float32{0, 0, 1}
	assert.Less(t, negativeInnerProduct(v, w)*-1, repositories.DefaultMinSimilarity)
}

// recordingQuerier captures the arguments of each Query and replays canned rows
type recordingQuerier struct {
	sql  string
	args []any
	rows [][]any
}

func (q *recordingQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (q *recordingQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.sql = sql
	q.args = args
	return &cannedRows{rows: q.rows, index: -1}, nil
}

func (q *recordingQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return &cannedRows{index: -1}
}

type cannedRows struct {
	rows  [][]any
	index int
}

func (r *cannedRows) Close()                                       {}
func (r *cannedRows) Err() error                                   { return nil }
func (r *cannedRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *cannedRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *cannedRows) RawValues() [][]byte                          { return nil }
func (r *cannedRows) Conn() *pgx.Conn                              { return nil }

func (r *cannedRows) Next() bool {
	r.index++
	return r.index < len(r.rows)
}

func (r *cannedRows) Values() ([]any, error) {
	return r.rows[r.index], nil
}

func (r *cannedRows) Scan(dest ...any) error {
	if r.index < 0 || r.index >= len(r.rows) {
		return pgx.ErrNoRows
	}
	row := r.rows[r.index]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		switch d := d.(type) {
		case *int64:
			*d = row[i].(int64)
		case *string:
			*d = row[i].(string)
		case *time.Time:
			*d = row[i].(time.Time)
		case *float64:
			*d = row[i].(float64)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

func TestSearchBindsThresholdAndLimit(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	db := &recordingQuerier{rows: [][]any{
		{int64(7), "buy milk", "voice-7.mp3", created, 0.92},
		{int64(3), "call mom", "voice-3.mp3", created, 0.31},
	}}
	repo, err := newVoiceRepository(db, FlavorPostgres, "", 3, zaptest.NewLogger(t))
	require.NoError(t, err)

	query := []float32{0.6, 0.8, 0}
	matches, err := repo.Search(context.Background(), query, repositories.SearchOptions{Limit: 2, MinSimilarity: 0.3})
	require.NoError(t, err)

	assert.Equal(t, repo.searchSQL(), db.sql)
	require.Len(t, db.args, 3)
	vec, ok := db.args[0].(pgvector.Vector)
	require.True(t, ok, "$1 is a pgvector.Vector, got %T", db.args[0])
	assert.Equal(t, query, vec.Slice())
	assert.Equal(t, 0.3, db.args[1])
	assert.Equal(t, 2, db.args[2])

	require.Len(t, matches, 2)
	assert.Equal(t, entities.Match{
		ID:             7,
		Transcription:  "buy milk",
		AudioReference: "voice-7.mp3",
		CreatedAt:      created,
		Similarity:     0.92,
	}, matches[0])
	assert.Equal(t, 0.31, matches[1].Similarity)
}

func TestSearchBindsZeroThreshold(t *testing.T) {
	db := &recordingQuerier{}
	repo, err := newVoiceRepository(db, FlavorPostgres, "", 3, zaptest.NewLogger(t))
	require.NoError(t, err)

	matches, err := repo.Search(context.Background(), []float32{1, 0, 0}, repositories.SearchOptions{Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, matches)
	require.Len(t, db.args, 3)
	assert.Equal(t, 0.0, db.args[1])
	assert.Equal(t, 5, db.args[2])
}

func TestMigrationStatements(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("postgres enables the extension", func(t *testing.T) {
		repo, err := newVoiceRepository(nil, FlavorPostgres, "voice", 1536, logger)
		require.NoError(t, err)

		stmts := repo.MigrationStatements()
		require.Len(t, stmts, 2)
		assert.Equal(t, "CREATE EXTENSION IF NOT EXISTS vector", stmts[0])
		assert.Contains(t, stmts[1], "VECTOR(1536)")
		assert.Contains(t, stmts[1], "file_name     TEXT NOT NULL UNIQUE")
	})

	t.Run("cockroach uses the native type", func(t *testing.T) {
		repo, err := newVoiceRepository(nil, FlavorCockroach, "voice", 8, logger)
		require.NoError(t, err)

		stmts := repo.MigrationStatements()
		require.Len(t, stmts, 1)
		assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS \"voice\"")
		assert.Contains(t, stmts[0], "VECTOR(8)")
	})

	t.Run("table name is quoted", func(t *testing.T) {
		repo, err := newVoiceRepository(nil, FlavorPostgres, `voice"; DROP TABLE x; --`, 8, logger)
		require.NoError(t, err)
		assert.Contains(t, repo.insertSQL(), `INSERT INTO "voice""; DROP TABLE x; --"`)
	})
}

func TestNewVoiceRepositoryRejectsZeroDimension(t *testing.T) {
	_, err := newVoiceRepository(nil, FlavorPostgres, "", 0, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestValidationHappensBeforeTheDatabase(t *testing.T) {
	// a nil querier proves none of these reach the database
	repo, err := newVoiceRepository(nil, FlavorPostgres, "", 3, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.Insert(ctx, &entities.VoiceRecord{Transcription: "hi", AudioReference: "voice-1.mp3", Embedding: []float32{1, 0}})
	assert.True(t, domain.IsKind(err, domain.KindStoreWrite))

	_, err = repo.Insert(ctx, &entities.VoiceRecord{Transcription: " ", AudioReference: "voice-1.mp3", Embedding: []float32{1, 0, 0}})
	assert.True(t, domain.IsKind(err, domain.KindStoreWrite))

	_, err = repo.Search(ctx, []float32{1, 0}, repositories.DefaultSearchOptions())
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.True(t, domain.IsKind(err, domain.KindStoreRead))

	_, err = repo.Search(ctx, []float32{1, 0, 0}, repositories.SearchOptions{Limit: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidLimit)
}

func unit(dimension, hot int) []float32 {
	v := make([]float32, dimension)
	v[hot] = 1
	return v
}

func TestVoiceRepositoryIntegration(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	logger := zaptest.NewLogger(t)

	flavor := os.Getenv("DATABASE_FLAVOR")
	client, err := NewClient(ctx, Config{URL: url, Flavor: flavor}, logger)
	require.NoError(t, err)
	defer client.Close()

	table := fmt.Sprintf("voice_test_%d", time.Now().UnixNano())
	const dimension = 4
	repo, err := NewVoiceRepository(client, table, dimension, logger)
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(ctx))
	require.NoError(t, repo.Migrate(ctx), "migration must be idempotent")
	defer func() {
		_, _ = client.Exec(context.Background(), "DROP TABLE IF EXISTS "+repo.table)
	}()

	// a vector tilted towards axis 0 by cosine angle theta
	tilted := func(cos float64) []float32 {
		return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos)), 0, 0}
	}

	records := []*entities.VoiceRecord{
		{Transcription: "exact", Embedding: unit(dimension, 0), AudioReference: "voice-a.mp3"},
		{Transcription: "close", Embedding: tilted(0.8), AudioReference: "voice-b.mp3"},
		{Transcription: "far", Embedding: unit(dimension, 2), AudioReference: "voice-c.mp3"},
	}
	for _, r := range records {
		id, err := repo.Insert(ctx, r)
		require.NoError(t, err)
		assert.Positive(t, id)
		assert.False(t, r.CreatedAt.IsZero())
	}

	matches, err := repo.Search(ctx, unit(dimension, 0), repositories.DefaultSearchOptions())
	require.NoError(t, err)
	require.Len(t, matches, 2, "orthogonal record is below the threshold")
	assert.Equal(t, "exact", matches[0].Transcription)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-5)
	assert.Equal(t, "close", matches[1].Transcription)
	assert.InDelta(t, 0.8, matches[1].Similarity, 1e-5)

	_, err = repo.Insert(ctx, &entities.VoiceRecord{Transcription: "dup", Embedding: unit(dimension, 1), AudioReference: "voice-a.mp3"})
	assert.True(t, domain.IsKind(err, domain.KindStoreWrite), "duplicate audio reference must be rejected")

	refs, err := repo.ListAudioReferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"voice-a.mp3", "voice-b.mp3", "voice-c.mp3"}, refs)
}
