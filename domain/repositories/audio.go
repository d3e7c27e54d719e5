package repositories

import (
	"context"
	"time"
)

// AudioNormalizer converts an uploaded file of any codec into the canonical
// format used for both transcription and archival
type AudioNormalizer interface {
	// Normalize writes a new file and returns its path. The input is left untouched.
	Normalize(ctx context.Context, rawPath string) (string, error)
}

// AudioArchive durably keeps canonical audio under generated names
type AudioArchive interface {
	// Put copies the file at srcPath into the archive as name
	Put(ctx context.Context, name, srcPath string) error
	// Exists reports whether name is archived
	Exists(ctx context.Context, name string) (bool, error)
	// List returns archived names with their modification time
	List(ctx context.Context) ([]ArchivedAudio, error)
	// Delete removes name; deleting a missing name is not an error
	Delete(ctx context.Context, name string) error
}

// ArchivedAudio describes one archived object
type ArchivedAudio struct {
	Name       string
	ModifiedAt time.Time
}
