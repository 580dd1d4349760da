package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/docchat/config"
	"github.com/mohammad-safakhou/docchat/internal/rag/chunker"
	"github.com/mohammad-safakhou/docchat/internal/rag/embedding"
	"github.com/mohammad-safakhou/docchat/internal/rag/generate"
	"github.com/mohammad-safakhou/docchat/internal/rag/index"
	"github.com/mohammad-safakhou/docchat/internal/rag/keyword"
	"github.com/mohammad-safakhou/docchat/internal/telemetry"
)

// ErrKeywordSearchDisabled is returned by KeywordSearch when the
// supplementary keyword index was switched off in config.
var ErrKeywordSearchDisabled = errors.New("keyword search is disabled")

// IngestResult reports what a document ingestion produced.
type IngestResult struct {
	ChunkCount int
}

// QueryResult is one answered question: the answer text, the distinct
// source documents that grounded it in first-retrieved order, and the
// generation tier that produced it.
type QueryResult struct {
	Answer  string
	Sources []string
	Tier    generate.Tier
}

// Service is the RAG pipeline: chunk, embed, index on ingest; embed,
// retrieve, assemble context, generate on query. All index state is
// in-memory and keyed by session, so two sessions never see each
// other's documents.
type Service struct {
	chunker  *chunker.Chunker
	embedder embedding.Embedder
	vectors  *index.Store
	keywords *keyword.Index // nil when keyword search is disabled
	answerer *generate.Answerer
	metrics  *telemetry.Metrics
	logger   *log.Logger

	topK   int
	budget int
}

// New builds the pipeline from config. It fails only when the embedding
// model cannot be set up; missing LLM credentials just disable their
// tiers and leave the extractive fallback in place.
func New(cfg config.Config, metrics *telemetry.Metrics, logger *log.Logger) (*Service, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	emb, err := embedding.New(cfg.RAG.EmbeddingModel, cfg.RAG.EmbeddingDimension)
	if err != nil {
		return nil, fmt.Errorf("setting up embedder: %w", err)
	}

	// The concrete constructors return nil pointers when unconfigured;
	// assign through a nil check so the interface fields stay truly nil.
	var remote, local generate.Generator
	if g := generate.NewRemoteGenerator(cfg.LLM.Remote); g != nil {
		remote = g
	}
	if g := generate.NewLocalGenerator(cfg.LLM.Local); g != nil {
		local = g
	}

	s := &Service{
		chunker:  chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		embedder: emb,
		vectors:  index.NewStore(),
		answerer: generate.NewAnswerer(remote, local, logger),
		metrics:  metrics,
		logger:   logger,
		topK:     cfg.RAG.TopK,
		budget:   cfg.RAG.ContextBudget,
	}
	if s.topK <= 0 {
		s.topK = 3
	}
	if s.budget <= 0 {
		s.budget = 4000
	}
	if cfg.RAG.KeywordSearch {
		s.keywords = keyword.NewIndex()
	}

	logger.Printf("pipeline ready: embedder=%s dim=%d top_k=%d budget=%d remote=%v local=%v",
		emb.Name(), emb.Dimension(), s.topK, s.budget, remote != nil, local != nil)
	return s, nil
}

// Ingest chunks, embeds and indexes one document for the session. A
// document with no extractable text yields zero chunks and is not an
// error. The index append is all-or-nothing, so a failed ingest leaves
// the session exactly as it was.
func (s *Service) Ingest(ctx context.Context, sessionID, sourceName, rawText string) (IngestResult, error) {
	chunks := s.chunker.Split(rawText)
	if len(chunks) == 0 {
		return IngestResult{ChunkCount: 0}, nil
	}

	vectors, err := s.embedder.EmbedBatch(chunks)
	if err != nil {
		return IngestResult{}, fmt.Errorf("embedding %q: %w", sourceName, err)
	}

	passages := make([]index.Passage, len(chunks))
	for i, text := range chunks {
		passages[i] = index.Passage{Text: text, SourceName: sourceName, SequenceIndex: i}
	}
	if err := s.vectors.Upsert(sessionID, passages, vectors); err != nil {
		return IngestResult{}, fmt.Errorf("indexing %q: %w", sourceName, err)
	}

	if s.keywords != nil {
		for _, text := range chunks {
			if err := s.keywords.Add(sessionID, uuid.NewString(), text, sourceName); err != nil {
				// Keyword search is supplementary; vector retrieval already
				// succeeded, so log and keep going.
				s.logger.Printf("keyword indexing failed for %q: %v", sourceName, err)
				break
			}
		}
	}

	s.metrics.RecordIngest(len(chunks))
	s.logger.Printf("ingested %q into session %s: %d chunks", sourceName, sessionID, len(chunks))
	return IngestResult{ChunkCount: len(chunks)}, nil
}

// Query answers a question against the session's documents. It always
// produces a non-empty answer: when nothing relevant was ever ingested
// the extractive tier returns the fixed no-information response.
func (s *Service) Query(ctx context.Context, sessionID, question string) (QueryResult, error) {
	start := time.Now()

	qvec, err := s.embedder.Embed(question)
	if err != nil {
		return QueryResult{}, fmt.Errorf("embedding question: %w", err)
	}

	hits := s.vectors.Search(sessionID, qvec, s.topK)
	contextText, sources := buildContext(hits, s.budget)
	answer, tier := s.answerer.Answer(ctx, question, contextText)

	s.metrics.RecordQuery(string(tier), time.Since(start).Seconds())
	return QueryResult{Answer: answer, Sources: sources, Tier: tier}, nil
}

// KeywordSearch runs a plain BM25 search over the session's passages.
func (s *Service) KeywordSearch(sessionID, query string, max int) ([]keyword.Hit, error) {
	if s.keywords == nil {
		return nil, ErrKeywordSearchDisabled
	}
	return s.keywords.Search(sessionID, query, max)
}

// PassageCount reports how many passages the session has indexed.
func (s *Service) PassageCount(sessionID string) int {
	return s.vectors.Count(sessionID)
}

// DropSession discards every index entry for the session. Dropping an
// unknown session is a no-op.
func (s *Service) DropSession(sessionID string) {
	s.vectors.DropSession(sessionID)
	if s.keywords != nil {
		s.keywords.DropSession(sessionID)
	}
}

// buildContext concatenates retrieved passages in rank order under a
// character budget, and collects the distinct source names of the
// passages that made it in, in first-seen order. The best passage is
// always included even when it alone exceeds the budget, so retrieval
// hits are never silently discarded wholesale.
func buildContext(hits []index.ScoredPassage, budget int) (string, []string) {
	var b strings.Builder
	var sources []string
	seen := make(map[string]bool)
	used := 0

	for i, h := range hits {
		cost := len([]rune(h.Passage.Text))
		if i > 0 {
			cost += 2 // "\n\n" separator
		}
		if i > 0 && used+cost > budget {
			break
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(h.Passage.Text)
		used += cost

		if !seen[h.Passage.SourceName] {
			seen[h.Passage.SourceName] = true
			sources = append(sources, h.Passage.SourceName)
		}
	}
	return b.String(), sources
}
