package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/docchat/config"
	"github.com/mohammad-safakhou/docchat/internal/rag/generate"
	"github.com/mohammad-safakhou/docchat/internal/rag/index"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	var cfg config.Config
	cfg.RAG = config.RAGConfig{
		ChunkSize:          1000,
		ChunkOverlap:       200,
		TopK:               3,
		ContextBudget:      4000,
		EmbeddingModel:     "hashing",
		EmbeddingDimension: 64,
		KeywordSearch:      true,
	}
	// No LLM credentials, so every answer lands on the extractive tier.
	s, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestIngestThenQuery(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	res, err := s.Ingest(ctx, "sess", "policy.txt", "The refund window is 30 days. Shipping is free over $50.")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.ChunkCount != 1 {
		t.Fatalf("ChunkCount = %d, want 1", res.ChunkCount)
	}

	out, err := s.Query(ctx, "sess", "What is the refund window?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if out.Tier != generate.TierExtractive {
		t.Fatalf("tier = %s, want extractive with no LLM configured", out.Tier)
	}
	if !strings.Contains(out.Answer, "30 days") {
		t.Fatalf("answer does not surface the passage: %q", out.Answer)
	}
	if len(out.Sources) != 1 || out.Sources[0] != "policy.txt" {
		t.Fatalf("sources = %v, want [policy.txt]", out.Sources)
	}
}

func TestIngestEmptyDocument(t *testing.T) {
	s := newTestService(t)
	for _, raw := range []string{"", "   \n\t  "} {
		res, err := s.Ingest(context.Background(), "sess", "empty.txt", raw)
		if err != nil {
			t.Fatalf("Ingest(%q): %v", raw, err)
		}
		if res.ChunkCount != 0 {
			t.Fatalf("Ingest(%q) ChunkCount = %d, want 0", raw, res.ChunkCount)
		}
	}
	if n := s.PassageCount("sess"); n != 0 {
		t.Fatalf("empty ingests left %d passages behind", n)
	}
}

func TestQueryWithoutDocuments(t *testing.T) {
	s := newTestService(t)
	out, err := s.Query(context.Background(), "fresh", "anything?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if out.Answer != generate.NoInformationAnswer {
		t.Fatalf("answer = %q, want the fixed no-information response", out.Answer)
	}
	if len(out.Sources) != 0 {
		t.Fatalf("sources = %v, want none", out.Sources)
	}
}

func TestSessionIsolation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.Ingest(ctx, "alice", "policy.txt", "The refund window is 30 days."); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	out, err := s.Query(ctx, "bob", "What is the refund window?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if out.Answer != generate.NoInformationAnswer {
		t.Fatalf("bob saw alice's documents: %q", out.Answer)
	}
}

func TestDropSession(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, _ = s.Ingest(ctx, "sess", "policy.txt", "The refund window is 30 days.")
	s.DropSession("sess")
	s.DropSession("sess")

	out, err := s.Query(ctx, "sess", "What is the refund window?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if out.Answer != generate.NoInformationAnswer {
		t.Fatalf("dropped session still answers from its documents: %q", out.Answer)
	}
	if n := s.PassageCount("sess"); n != 0 {
		t.Fatalf("dropped session still holds %d passages", n)
	}
}

func TestAnswerNeverEmpty(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, _ = s.Ingest(ctx, "sess", "doc.txt", "Some content about widgets and gadgets.")

	for _, q := range []string{"widgets?", "completely unrelated quantum topology", ""} {
		out, err := s.Query(ctx, "sess", q)
		if err != nil {
			t.Fatalf("Query(%q): %v", q, err)
		}
		if strings.TrimSpace(out.Answer) == "" {
			t.Fatalf("Query(%q) produced an empty answer", q)
		}
	}
}

func TestKeywordSearch(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, _ = s.Ingest(ctx, "sess", "policy.txt", "The refund window is 30 days.")
	hits, err := s.KeywordSearch("sess", "refund", 5)
	if err != nil {
		t.Fatalf("KeywordSearch: %v", err)
	}
	if len(hits) == 0 || hits[0].SourceName != "policy.txt" {
		t.Fatalf("hits = %+v, want a policy.txt match", hits)
	}
}

func TestKeywordSearchDisabled(t *testing.T) {
	var cfg config.Config
	cfg.RAG = config.RAGConfig{EmbeddingModel: "hashing", EmbeddingDimension: 64}
	s, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.KeywordSearch("sess", "refund", 5); err != ErrKeywordSearchDisabled {
		t.Fatalf("err = %v, want ErrKeywordSearchDisabled", err)
	}
}

func TestBuildContextBudget(t *testing.T) {
	hits := []index.ScoredPassage{
		{Passage: index.Passage{Text: strings.Repeat("a", 50), SourceName: "one.txt"}, Score: 0.9},
		{Passage: index.Passage{Text: strings.Repeat("b", 50), SourceName: "two.txt"}, Score: 0.8},
		{Passage: index.Passage{Text: strings.Repeat("c", 50), SourceName: "three.txt"}, Score: 0.7},
	}

	ctxText, sources := buildContext(hits, 110)
	if strings.Contains(ctxText, "c") {
		t.Fatalf("third passage should have been dropped by the budget")
	}
	if !strings.Contains(ctxText, "a") || !strings.Contains(ctxText, "b") {
		t.Fatalf("first two passages should fit the budget: %q", ctxText)
	}
	if len(sources) != 2 || sources[0] != "one.txt" || sources[1] != "two.txt" {
		t.Fatalf("sources = %v", sources)
	}
}

func TestBuildContextAlwaysKeepsBestHit(t *testing.T) {
	hits := []index.ScoredPassage{
		{Passage: index.Passage{Text: strings.Repeat("x", 500), SourceName: "big.txt"}, Score: 0.9},
	}
	ctxText, sources := buildContext(hits, 10)
	if ctxText == "" {
		t.Fatalf("best hit must survive even when it exceeds the budget")
	}
	if len(sources) != 1 || sources[0] != "big.txt" {
		t.Fatalf("sources = %v", sources)
	}
}

func TestBuildContextDeduplicatesSources(t *testing.T) {
	hits := []index.ScoredPassage{
		{Passage: index.Passage{Text: "first", SourceName: "doc.txt"}, Score: 0.9},
		{Passage: index.Passage{Text: "second", SourceName: "doc.txt"}, Score: 0.8},
		{Passage: index.Passage{Text: "third", SourceName: "other.txt"}, Score: 0.7},
	}
	ctxText, sources := buildContext(hits, 4000)
	if ctxText != "first\n\nsecond\n\nthird" {
		t.Fatalf("context = %q", ctxText)
	}
	if len(sources) != 2 || sources[0] != "doc.txt" || sources[1] != "other.txt" {
		t.Fatalf("sources = %v", sources)
	}
}
