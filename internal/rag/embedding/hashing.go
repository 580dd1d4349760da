package embedding

import (
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

const DefaultDimension = 384

// HashingEmbedder is a deterministic bag-of-words embedder using the
// feature-hashing trick: each token is hashed into one of Dimension
// buckets with a hash-derived sign, and the resulting vector is
// L2-normalized. It needs no model weights and no network access, and
// two calls with the same text always produce the identical vector.
type HashingEmbedder struct {
	dim          int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewHashingEmbedder builds the embedder for the given dimensionality.
func NewHashingEmbedder(dimension int) (*HashingEmbedder, error) {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	pattern, err := regexp.Compile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	return &HashingEmbedder{
		dim:          dimension,
		tokenPattern: pattern,
		stopwords:    defaultStopwords(),
	}, nil
}

func (e *HashingEmbedder) Name() string {
	return fmt.Sprintf("hashing-v1/%d", e.dim)
}

func (e *HashingEmbedder) Dimension() int { return e.dim }

// Embed computes the hashed term-frequency embedding for text. Text with
// no usable tokens embeds to the zero vector, which scores 0 against
// everything.
func (e *HashingEmbedder) Embed(text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	tokens := e.tokenize(text)
	if len(tokens) == 0 {
		return vec, nil
	}

	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dim))
		// one hash bit decides the sign, which keeps colliding tokens
		// from always reinforcing each other
		if sum&(1<<63) == 0 {
			vec[idx]++
		} else {
			vec[idx]--
		}
	}

	l2normalize(vec)
	return vec, nil
}

// EmbedBatch embeds texts in order. It is equivalent to calling Embed on
// each text; batching exists so ingestion can hand over a whole document
// in one call.
func (e *HashingEmbedder) EmbedBatch(texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		vecs[i] = v
	}
	return vecs, nil
}

func (e *HashingEmbedder) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if _, isStop := e.stopwords[tok]; isStop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for",
		"to", "of", "in", "on", "at", "by", "with", "as", "is", "are",
		"was", "were", "be", "been", "being", "it", "this", "that",
		"these", "those", "from", "up", "down", "over", "under", "than",
		"so", "such", "into", "about", "between", "through", "during",
		"before", "after", "above", "below", "out", "off", "own", "same",
		"too", "very", "can", "will", "just", "what", "which", "who",
		"whom", "how", "when", "where", "why", "do", "does", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
