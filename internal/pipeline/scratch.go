package pipeline

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Scratch holds the transient files of one run and deletes them exactly once
type Scratch struct {
	mu       sync.Mutex
	paths    []string
	once     sync.Once
	released bool
	logger   *zap.Logger
}

// NewScratch creates an empty scratch set
func NewScratch(logger *zap.Logger) *Scratch {
	return &Scratch{logger: logger}
}

// Track registers path for deletion on Release. Paths tracked after Release
// are removed immediately.
func (s *Scratch) Track(path string) {
	if path == "" {
		return
	}
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		if err := removeFile(path); err != nil {
			s.logger.Warn("Failed to remove late scratch file", zap.String("path", path), zap.Error(err))
		}
		return
	}
	for _, p := range s.paths {
		if p == path {
			s.mu.Unlock()
			return
		}
	}
	s.paths = append(s.paths, path)
	s.mu.Unlock()
}

// Paths returns the tracked paths
func (s *Scratch) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Release removes every tracked file. Only the first call does any work;
// files that are already gone are ignored.
func (s *Scratch) Release() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		paths := s.paths
		s.paths = nil
		s.released = true
		s.mu.Unlock()

		var errs []error
		for _, p := range paths {
			if rmErr := removeFile(p); rmErr != nil {
				errs = append(errs, rmErr)
				continue
			}
			s.logger.Debug("Removed scratch file", zap.String("path", p))
		}
		err = errors.Join(errs...)
		if err != nil {
			s.logger.Error("Failed to release scratch files", zap.Error(err))
		}
	})
	return err
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
