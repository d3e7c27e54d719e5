package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/domain"
	"github.com/satriahrh/voicememo/domain/entities"
	"github.com/satriahrh/voicememo/domain/repositories"
)

// DefaultTable holds voice records
const DefaultTable = "voice"

// querier is the subset of pgxpool.Pool the repository needs
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// VoiceRepository stores voice records in a pgvector-enabled table.
//
// Similarity is the inner product. pgvector's <#> operator returns the
// negative inner product, so the query multiplies it by -1 before applying
// the threshold and ordering.
type VoiceRepository struct {
	db        querier
	table     string
	flavor    string
	dimension int
	logger    *zap.Logger
}

var _ repositories.VoiceRecordRepository = (*VoiceRepository)(nil)

// NewVoiceRepository creates a repository over client
func NewVoiceRepository(client *Client, table string, dimension int, logger *zap.Logger) (*VoiceRepository, error) {
	return newVoiceRepository(client.Pool, client.Flavor(), table, dimension, logger)
}

func newVoiceRepository(db querier, flavor, table string, dimension int, logger *zap.Logger) (*VoiceRepository, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	if table == "" {
		table = DefaultTable
	}
	return &VoiceRepository{
		db:        db,
		table:     pgx.Identifier{table}.Sanitize(),
		flavor:    flavor,
		dimension: dimension,
		logger:    logger,
	}, nil
}

// MigrationStatements returns the idempotent DDL for the table
func (r *VoiceRepository) MigrationStatements() []string {
	var stmts []string
	if r.flavor != FlavorCockroach {
		// CockroachDB has a native VECTOR type
		stmts = append(stmts, `CREATE EXTENSION IF NOT EXISTS vector`)
	}
	stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id            BIGSERIAL PRIMARY KEY,
	transcription TEXT NOT NULL CHECK (transcription <> ''),
	vec           VECTOR(%d) NOT NULL,
	file_name     TEXT NOT NULL UNIQUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`, r.table, r.dimension))
	return stmts
}

// Migrate creates the table if needed
func (r *VoiceRepository) Migrate(ctx context.Context) error {
	for _, stmt := range r.MigrationStatements() {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	r.logger.Info("Voice table ready", zap.String("table", r.table), zap.Int("dimension", r.dimension))
	return nil
}

func (r *VoiceRepository) insertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (transcription, vec, file_name)
VALUES ($1, $2::vector, $3)
RETURNING id, created_at`, r.table)
}

func (r *VoiceRepository) searchSQL() string {
	return fmt.Sprintf(`WITH similarity_calc AS (
	SELECT
		id,
		transcription,
		file_name,
		created_at,
		(vec <#> $1::vector) * -1 AS similarity
	FROM %s
)
SELECT id, transcription, file_name, created_at, similarity
FROM similarity_calc
WHERE similarity >= $2
ORDER BY similarity DESC
LIMIT $3`, r.table)
}

// Insert implements repositories.VoiceRecordRepository
func (r *VoiceRepository) Insert(ctx context.Context, record *entities.VoiceRecord) (int64, error) {
	if record == nil {
		return 0, domain.E(domain.KindStoreWrite, "insert", fmt.Errorf("record cannot be nil"))
	}
	if err := record.Validate(r.dimension); err != nil {
		return 0, domain.E(domain.KindStoreWrite, "insert", err)
	}

	err := r.db.QueryRow(ctx, r.insertSQL(),
		record.Transcription,
		pgvector.NewVector(record.Embedding),
		record.AudioReference,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return 0, domain.E(domain.KindStoreWrite, "insert", fmt.Errorf("failed to insert voice record: %w", err))
	}

	r.logger.Info("Voice record inserted",
		zap.Int64("id", record.ID),
		zap.String("fileName", record.AudioReference))

	return record.ID, nil
}

// Search implements repositories.VoiceRecordRepository
func (r *VoiceRepository) Search(ctx context.Context, query []float32, opts repositories.SearchOptions) ([]entities.Match, error) {
	if opts.Limit <= 0 {
		return nil, domain.E(domain.KindValidation, "search", domain.ErrInvalidLimit)
	}
	if len(query) != r.dimension {
		return nil, domain.E(domain.KindStoreRead, "search",
			fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, r.dimension, len(query)))
	}

	rows, err := r.db.Query(ctx, r.searchSQL(), pgvector.NewVector(query), opts.MinSimilarity, opts.Limit)
	if err != nil {
		return nil, domain.E(domain.KindStoreRead, "search", fmt.Errorf("failed to search voice records: %w", err))
	}
	defer rows.Close()

	matches := make([]entities.Match, 0, opts.Limit)
	for rows.Next() {
		var m entities.Match
		if err := rows.Scan(&m.ID, &m.Transcription, &m.AudioReference, &m.CreatedAt, &m.Similarity); err != nil {
			return nil, domain.E(domain.KindStoreRead, "search", fmt.Errorf("failed to scan match: %w", err))
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.E(domain.KindStoreRead, "search", err)
	}
	return matches, nil
}

// ListAudioReferences implements repositories.VoiceRecordRepository
func (r *VoiceRepository) ListAudioReferences(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT file_name FROM %s ORDER BY id`, r.table))
	if err != nil {
		return nil, domain.E(domain.KindStoreRead, "list", fmt.Errorf("failed to list audio references: %w", err))
	}
	refs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, domain.E(domain.KindStoreRead, "list", err)
	}
	return refs, nil
}

// Dimension implements repositories.VoiceRecordRepository
func (r *VoiceRepository) Dimension() int {
	return r.dimension
}
