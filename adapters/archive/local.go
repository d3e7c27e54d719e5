package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/domain/repositories"
)

const tempSuffix = ".partial"

// Local archives audio in a directory on the local filesystem
type Local struct {
	dir    string
	logger *zap.Logger
}

var _ repositories.AudioArchive = (*Local)(nil)

// NewLocal creates the directory if needed
func NewLocal(dir string, logger *zap.Logger) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &Local{dir: dir, logger: logger}, nil
}

// Dir returns the archive directory
func (l *Local) Dir() string {
	return l.dir
}

// Put copies srcPath into the archive. The file appears under name only once
// fully written.
func (l *Local) Put(ctx context.Context, name, srcPath string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source audio: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(l.dir, "."+name+"-*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	tmpPath := tmp.Name()

	_, copyErr := io.Copy(tmp, src)
	syncErr := tmp.Sync()
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, syncErr, closeErr); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write archive file: %w", err)
	}

	if err := os.Rename(tmpPath, filepath.Join(l.dir, name)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize archive file: %w", err)
	}

	l.logger.Debug("Audio archived", zap.String("name", name), zap.String("dir", l.dir))
	return nil
}

// Exists implements repositories.AudioArchive
func (l *Local) Exists(ctx context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	info, err := os.Stat(filepath.Join(l.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// List implements repositories.AudioArchive. In-progress writes are skipped.
func (l *Local) List(ctx context.Context) ([]repositories.ArchivedAudio, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var out []repositories.ArchivedAudio
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasSuffix(entry.Name(), tempSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed since ReadDir
			continue
		}
		out = append(out, repositories.ArchivedAudio{Name: entry.Name(), ModifiedAt: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete implements repositories.AudioArchive
func (l *Local) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(l.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete archived audio: %w", err)
	}
	return nil
}
