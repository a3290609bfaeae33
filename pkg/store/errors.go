package store

import (
	"errors"
	"fmt"

	"github.com/rxevidence/rxevidence/pkg/models"
)

type StorageError struct {
	Message       string
	OriginalError error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s (original error: %v)", e.Message, e.OriginalError)
}

// Unwrap exposes both ErrStorage and the original error, so a wrapped
// models.ErrNotFound is still detectable with errors.Is.
func (e *StorageError) Unwrap() []error {
	return []error{models.ErrStorage, e.OriginalError}
}

func NewStorageError(message string, originalError error) *StorageError {
	return &StorageError{Message: message, OriginalError: originalError}
}

var ErrEmbeddingMismatch = errors.New("embedding width mismatch")

type EmbeddingMismatchError struct {
	OriginalError error
}

func (e *EmbeddingMismatchError) Error() string {
	return fmt.Sprintf(
		"embedding width mismatch. please ensure that embeddings.dimensions "+
			"matches the width of the configured embedding model. (original error: %v)",
		e.OriginalError,
	)
}

func (e *EmbeddingMismatchError) Unwrap() error {
	return ErrEmbeddingMismatch
}

func NewEmbeddingMismatchError(
	originalError error,
) *EmbeddingMismatchError {
	return &EmbeddingMismatchError{
		OriginalError: originalError,
	}
}
