package embedding

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmbeddingUnavailable means the embedding model could not be set up.
// Ingest and query cannot work on this process until it is resolved, so
// callers should treat it as a service-level failure, not a per-request one.
var ErrEmbeddingUnavailable = errors.New("embedding model unavailable")

// Embedder maps text to a fixed-dimension dense vector. Implementations
// are pure functions of their input plus a fixed model version and hold
// no per-session state, so a single instance is shared across sessions.
type Embedder interface {
	// Name identifies the model and version producing the vectors.
	// Scores are only comparable between vectors from the same Name.
	Name() string
	Dimension() int
	Embed(text string) ([]float32, error)
	// EmbedBatch embeds many texts at once, preserving order. The result
	// for each text is identical to embedding it alone.
	EmbedBatch(texts []string) ([][]float32, error)
}

// New selects an embedder by model identifier. Only the offline hashing
// model ships with the service; an unrecognized identifier surfaces as
// ErrEmbeddingUnavailable so the caller fails at startup rather than on
// the first request.
func New(model string, dimension int) (Embedder, error) {
	switch {
	case model == "" || strings.HasPrefix(model, "hashing"):
		return NewHashingEmbedder(dimension)
	default:
		return nil, fmt.Errorf("%w: unknown model %q", ErrEmbeddingUnavailable, model)
	}
}
