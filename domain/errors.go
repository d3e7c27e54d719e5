package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure
type ErrorKind string

const (
	KindConversion    ErrorKind = "ConversionError"
	KindTranscription ErrorKind = "TranscriptionServiceError"
	KindEmbedding     ErrorKind = "EmbeddingServiceError"
	KindStoreWrite    ErrorKind = "StoreWriteError"
	KindStoreRead     ErrorKind = "StoreReadError"
	KindValidation    ErrorKind = "ValidationError"
	KindArchive       ErrorKind = "ArchiveError"
	KindInternal      ErrorKind = "InternalError"
)

var (
	ErrNoAudio           = errors.New("no audio file uploaded")
	ErrAudioTooLarge     = errors.New("audio file exceeds the upload limit")
	ErrNoSpeech          = errors.New("no speech detected in audio")
	ErrEmptyText         = errors.New("text to embed is empty")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidLimit      = errors.New("search limit must be positive")
)

// Error is a classified failure. Op names the stage or operation that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind. An error that is already classified keeps its kind.
func E(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in the chain
func KindOf(err error) ErrorKind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
