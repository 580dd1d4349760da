package index

import (
	"errors"
	"math"
	"sort"
	"sync"
)

// ErrDimensionMismatch means an upsert arrived with passages and
// embeddings that do not line up, either in count or in vector
// dimensionality. It indicates a bug in the calling pipeline rather than
// bad user input, so it is surfaced loudly instead of being absorbed.
var ErrDimensionMismatch = errors.New("passages and embeddings do not match")

// Passage is a unit of indexed text. Passages are immutable once stored
// and belong to exactly one session and one source document.
type Passage struct {
	Text          string
	SourceName    string
	SequenceIndex int
}

// ScoredPassage is one retrieval hit with its cosine similarity score.
// Scores are comparable within a single query's result set only.
type ScoredPassage struct {
	Passage Passage
	Score   float64
}

type entry struct {
	passage Passage
	vector  []float32
}

// sessionIndex holds one session's passages and vectors. Appends and
// searches on the same session serialize on its lock; distinct sessions
// never contend with each other.
type sessionIndex struct {
	mu      sync.RWMutex
	entries []entry
}

// Store is the per-session in-memory vector index. Sessions are created
// lazily on first upsert; querying a session that was never written
// returns no results rather than an error.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionIndex
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*sessionIndex)}
}

func (s *Store) session(id string, create bool) *sessionIndex {
	s.mu.RLock()
	si := s.sessions[id]
	s.mu.RUnlock()
	if si != nil || !create {
		return si
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if si = s.sessions[id]; si == nil {
		si = &sessionIndex{}
		s.sessions[id] = si
	}
	return si
}

// Upsert appends passages with their embeddings to the session's index.
// The append is all-or-nothing: every pair is validated before anything
// becomes visible, so a failed ingest never leaves a partially indexed
// document behind.
func (s *Store) Upsert(sessionID string, passages []Passage, vectors [][]float32) error {
	if len(passages) != len(vectors) {
		return ErrDimensionMismatch
	}
	if len(passages) == 0 {
		return nil
	}

	si := s.session(sessionID, true)
	si.mu.Lock()
	defer si.mu.Unlock()

	dim := len(vectors[0])
	if len(si.entries) > 0 {
		dim = len(si.entries[0].vector)
	}
	for _, v := range vectors {
		if len(v) != dim {
			return ErrDimensionMismatch
		}
	}

	for i := range passages {
		si.entries = append(si.entries, entry{passage: passages[i], vector: vectors[i]})
	}
	return nil
}

// Search returns up to k entries nearest to the query vector by cosine
// similarity, best first. Exactly equal scores rank in insertion order so
// search stays deterministic. An empty or unknown session returns an
// empty result.
func (s *Store) Search(sessionID string, query []float32, k int) []ScoredPassage {
	if k <= 0 {
		return nil
	}
	si := s.session(sessionID, false)
	if si == nil {
		return nil
	}

	si.mu.RLock()
	defer si.mu.RUnlock()

	type scored struct {
		pos   int
		score float64
	}
	scores := make([]scored, len(si.entries))
	for i, e := range si.entries {
		scores[i] = scored{pos: i, score: cosine(query, e.vector)}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].pos < scores[j].pos
	})

	if k > len(scores) {
		k = len(scores)
	}
	out := make([]ScoredPassage, 0, k)
	for _, sc := range scores[:k] {
		out = append(out, ScoredPassage{Passage: si.entries[sc.pos].passage, Score: sc.score})
	}
	return out
}

// Count reports how many passages a session holds.
func (s *Store) Count(sessionID string) int {
	si := s.session(sessionID, false)
	if si == nil {
		return 0
	}
	si.mu.RLock()
	defer si.mu.RUnlock()
	return len(si.entries)
}

// DropSession removes every entry for the session. Dropping a session
// that does not exist is a no-op, and dropping twice equals dropping once.
func (s *Store) DropSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
