package keyword

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve"
)

// Hit is one keyword-search match over a session's ingested passages.
type Hit struct {
	SourceName string  `json:"source_name"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
}

type passageDoc struct {
	Text       string `json:"text"`
	SourceName string `json:"source_name"`
}

type sessionKeyword struct {
	index bleve.Index
	docs  map[string]passageDoc
}

// Index maintains a memory-only BM25 index per session so users can run
// plain keyword searches over everything they uploaded, independent of
// the vector retriever. It follows the same session-keyed,
// create-on-first-write shape as the vector index.
type Index struct {
	mu       sync.RWMutex
	sessions map[string]*sessionKeyword
}

func NewIndex() *Index {
	return &Index{sessions: make(map[string]*sessionKeyword)}
}

func (k *Index) session(id string, create bool) (*sessionKeyword, error) {
	k.mu.RLock()
	sk := k.sessions[id]
	k.mu.RUnlock()
	if sk != nil || !create {
		return sk, nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if sk = k.sessions[id]; sk == nil {
		idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating keyword index: %w", err)
		}
		sk = &sessionKeyword{index: idx, docs: make(map[string]passageDoc)}
		k.sessions[id] = sk
	}
	return sk, nil
}

// Add indexes one passage for the session under the given document id.
func (k *Index) Add(sessionID, docID, text, sourceName string) error {
	sk, err := k.session(sessionID, true)
	if err != nil {
		return err
	}
	doc := passageDoc{Text: text, SourceName: sourceName}
	k.mu.Lock()
	sk.docs[docID] = doc
	k.mu.Unlock()
	return sk.index.Index(docID, doc)
}

// Search runs a query-string search over the session's passages and
// returns at most max hits, best first. Unknown sessions yield no hits.
func (k *Index) Search(sessionID, query string, max int) ([]Hit, error) {
	sk, err := k.session(sessionID, false)
	if err != nil || sk == nil {
		return nil, err
	}
	if max <= 0 {
		max = 5
	}

	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequestOptions(q, max, 0, false)
	res, err := sk.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	var out []Hit
	for i, hit := range res.Hits {
		doc := sk.docs[hit.ID]
		out = append(out, Hit{
			SourceName: doc.SourceName,
			Snippet:    snippet(doc.Text),
			Score:      hit.Score,
			Rank:       i + 1,
		})
	}
	return out, nil
}

// DropSession discards the session's keyword index; dropping an unknown
// session is a no-op.
func (k *Index) DropSession(sessionID string) {
	k.mu.Lock()
	sk := k.sessions[sessionID]
	delete(k.sessions, sessionID)
	k.mu.Unlock()
	if sk != nil {
		_ = sk.index.Close()
	}
}

func snippet(s string) string {
	const limit = 300
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
