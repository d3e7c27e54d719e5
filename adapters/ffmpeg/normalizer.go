package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/domain"
	"github.com/satriahrh/voicememo/domain/repositories"
)

const (
	defaultBinary  = "ffmpeg"
	defaultBitrate = "128k"

	// CanonicalExtension is the extension of every normalized file
	CanonicalExtension = ".mp3"
	canonicalSuffix    = ".normalized" + CanonicalExtension

	// CanonicalSampleRate and CanonicalChannels fix the decoded stream so
	// recognizers configured for them accept every normalized file
	CanonicalSampleRate = 44100
	CanonicalChannels   = 1
)

// Config holds configuration for the ffmpeg normalizer
type Config struct {
	Binary  string // Optional: ffmpeg executable (default: "ffmpeg")
	Bitrate string // Optional: MP3 bitrate (default: "128k")
}

// Normalizer converts uploads to MP3/libmp3lame by running ffmpeg
type Normalizer struct {
	binary  string
	bitrate string
	logger  *zap.Logger
}

var _ repositories.AudioNormalizer = (*Normalizer)(nil)

// NewNormalizer creates a normalizer, applying defaults for empty fields
func NewNormalizer(config Config, logger *zap.Logger) *Normalizer {
	binary := config.Binary
	if binary == "" {
		binary = defaultBinary
	}
	bitrate := config.Bitrate
	if bitrate == "" {
		bitrate = defaultBitrate
	}
	return &Normalizer{
		binary:  binary,
		bitrate: bitrate,
		logger:  logger,
	}
}

// OutputPath returns where the canonical copy of rawPath is written
func OutputPath(rawPath string) string {
	base := strings.TrimSuffix(rawPath, filepath.Ext(rawPath))
	return base + canonicalSuffix
}

// Args returns the ffmpeg arguments used to convert in to out
func (n *Normalizer) Args(in, out string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-i", in,
		"-vn",
		"-ar", strconv.Itoa(CanonicalSampleRate),
		"-ac", strconv.Itoa(CanonicalChannels),
		"-acodec", "libmp3lame",
		"-b:a", n.bitrate,
		"-f", "mp3",
		out,
	}
}

// Normalize implements repositories.AudioNormalizer
func (n *Normalizer) Normalize(ctx context.Context, rawPath string) (string, error) {
	info, err := os.Stat(rawPath)
	if err != nil {
		return "", domain.E(domain.KindConversion, "normalize", fmt.Errorf("input unreadable: %w", err))
	}
	if info.Size() == 0 {
		return "", domain.E(domain.KindConversion, "normalize", errors.New("input is empty"))
	}

	out := OutputPath(rawPath)
	cmd := exec.CommandContext(ctx, n.binary, n.Args(rawPath, out)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	n.logger.Debug("Running ffmpeg", zap.String("binary", n.binary), zap.Strings("args", cmd.Args[1:]))

	if err := cmd.Run(); err != nil {
		os.Remove(out)
		return "", domain.E(domain.KindConversion, "normalize",
			fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String())))
	}

	converted, err := os.Stat(out)
	if err != nil || converted.Size() == 0 {
		os.Remove(out)
		return "", domain.E(domain.KindConversion, "normalize", errors.New("ffmpeg produced no output"))
	}

	n.logger.Info("Audio normalized",
		zap.String("input", filepath.Base(rawPath)),
		zap.Int64("inputBytes", info.Size()),
		zap.Int64("outputBytes", converted.Size()))

	return out, nil
}
