package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/docchat/config"
	"github.com/mohammad-safakhou/docchat/internal/extract"
	"github.com/mohammad-safakhou/docchat/internal/rag"
	"github.com/mohammad-safakhou/docchat/internal/store"
)

// fakeStore is an in-memory SessionStore for handler tests.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int
	sessions map[string]store.Session
	messages map[string][]store.Message
	files    map[string][]store.UploadedFile
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]store.Session),
		messages: make(map[string][]store.Message),
		files:    make(map[string][]store.UploadedFile),
	}
}

func (f *fakeStore) id() string {
	f.nextID++
	return fmt.Sprintf("id-%d", f.nextID)
}

func (f *fakeStore) CreateSession(ctx context.Context, title string) (store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := store.Session{ID: f.id(), Title: title, CreatedAt: time.Now()}
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeStore) GetSession(ctx context.Context, id string) (store.Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	return s, ok, nil
}

func (f *fakeStore) ListSessions(ctx context.Context) ([]store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Session
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return false, nil
	}
	delete(f.sessions, id)
	delete(f.messages, id)
	delete(f.files, id)
	return true, nil
}

func (f *fakeStore) AddMessage(ctx context.Context, m store.Message) (store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = f.id()
	m.CreatedAt = time.Now()
	f.messages[m.SessionID] = append(f.messages[m.SessionID], m)
	return m, nil
}

func (f *fakeStore) ListMessages(ctx context.Context, sessionID string) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[sessionID], nil
}

func (f *fakeStore) AddFile(ctx context.Context, u store.UploadedFile) (store.UploadedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.ID = f.id()
	u.CreatedAt = time.Now()
	f.files[u.SessionID] = append(f.files[u.SessionID], u)
	return u, nil
}

func (f *fakeStore) ListFiles(ctx context.Context, sessionID string) ([]store.UploadedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[sessionID], nil
}

func newTestRouter(t *testing.T) (*echo.Echo, *fakeStore) {
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
	ragSvc, err := rag.New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("rag.New: %v", err)
	}
	fs := newFakeStore()
	return newRouter(fs, ragSvc, extract.New(config.ExtractConfig{}), nil), fs
}

func doJSON(e *echo.Echo, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func uploadFile(t *testing.T, e *echo.Echo, path, sessionID, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("session_id", sessionID)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = fw.Write([]byte(content))
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, e *echo.Echo) string {
	t.Helper()
	rec := doJSON(e, http.MethodPost, "/api/sessions", map[string]string{"title": "test"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return resp.ID
}

func TestHealthz(t *testing.T) {
	e, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

func TestCreateAndListSessions(t *testing.T) {
	e, _ := newTestRouter(t)
	id := createSession(t, e)

	rec := doJSON(e, http.MethodGet, "/api/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list sessions: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), id) {
		t.Fatalf("listing does not contain created session %s: %s", id, rec.Body.String())
	}
}

func TestUploadThenChat(t *testing.T) {
	e, fs := newTestRouter(t)
	id := createSession(t, e)

	rec := uploadFile(t, e, "/api/upload/document", id, "policy.txt",
		"The refund window is 30 days. Shipping is free over $50.")
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	var up struct {
		Chunks int `json:"chunks"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &up)
	if up.Chunks != 1 {
		t.Fatalf("chunks = %d, want 1", up.Chunks)
	}

	rec = doJSON(e, http.MethodPost, "/api/chat", map[string]string{
		"session_id": id,
		"message":    "What is the refund window?",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Message string   `json:"message"`
		Sources []string `json:"sources"`
		Tier    string   `json:"tier"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if !strings.Contains(resp.Message, "30 days") {
		t.Fatalf("answer does not surface the document: %q", resp.Message)
	}
	if len(resp.Sources) != 1 || resp.Sources[0] != "policy.txt" {
		t.Fatalf("sources = %v", resp.Sources)
	}
	if resp.Tier != "extractive" {
		t.Fatalf("tier = %q, want extractive with no LLM configured", resp.Tier)
	}

	msgs, _ := fs.ListMessages(context.Background(), id)
	if len(msgs) != 2 || msgs[0].Role != store.RoleUser || msgs[1].Role != store.RoleAssistant {
		t.Fatalf("persisted turns = %+v", msgs)
	}
}

func TestChatUnknownSession(t *testing.T) {
	e, _ := newTestRouter(t)
	rec := doJSON(e, http.MethodPost, "/api/chat", map[string]string{
		"session_id": "nope",
		"message":    "hi",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("chat against unknown session: %d", rec.Code)
	}
}

func TestChatWithoutDocuments(t *testing.T) {
	e, _ := newTestRouter(t)
	id := createSession(t, e)

	rec := doJSON(e, http.MethodPost, "/api/chat", map[string]string{
		"session_id": id,
		"message":    "What is the refund window?",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Message string   `json:"message"`
		Sources []string `json:"sources"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Message == "" {
		t.Fatalf("answer must never be empty")
	}
	if len(resp.Sources) != 0 {
		t.Fatalf("sources = %v, want empty", resp.Sources)
	}
}

func TestUploadUnsupportedFormat(t *testing.T) {
	e, _ := newTestRouter(t)
	id := createSession(t, e)

	rec := uploadFile(t, e, "/api/upload/document", id, "report.pdf", "%PDF-1.4")
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("upload pdf without extraction service: %d", rec.Code)
	}
}

func TestUploadEmptyDocument(t *testing.T) {
	e, _ := newTestRouter(t)
	id := createSession(t, e)

	rec := uploadFile(t, e, "/api/upload/document", id, "empty.txt", "   \n ")
	if rec.Code != http.StatusCreated {
		t.Fatalf("empty upload should succeed with zero chunks: %d %s", rec.Code, rec.Body.String())
	}
	var up struct {
		Chunks int `json:"chunks"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &up)
	if up.Chunks != 0 {
		t.Fatalf("chunks = %d, want 0", up.Chunks)
	}
}

func TestDeleteSessionDropsIndex(t *testing.T) {
	e, _ := newTestRouter(t)
	id := createSession(t, e)
	_ = uploadFile(t, e, "/api/upload/document", id, "policy.txt", "The refund window is 30 days.")

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}

	// Deleting again is a 404, not an error.
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", rec.Code)
	}
}

func TestSessionSearch(t *testing.T) {
	e, _ := newTestRouter(t)
	id := createSession(t, e)
	_ = uploadFile(t, e, "/api/upload/document", id, "policy.txt", "The refund window is 30 days.")

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/search?q=refund", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "policy.txt") {
		t.Fatalf("search results missing source: %s", rec.Body.String())
	}
}

func TestSessionMessagesUnknownSession(t *testing.T) {
	e, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/nope/messages", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("messages for unknown session: %d", rec.Code)
	}
}
