package badger

import "errors"

var (
	// ErrBackendRequired is returned when a repository is created without a backend.
	ErrBackendRequired = errors.New("badger backend is required")

	// ErrEmbedderRequired is returned when a VectorIndex is created without an embedder.
	ErrEmbedderRequired = errors.New("embedder is required")
)
