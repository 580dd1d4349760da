package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/docchat/internal/rag"
	"github.com/mohammad-safakhou/docchat/internal/rag/keyword"
	"github.com/mohammad-safakhou/docchat/internal/store"
)

type SessionsHandler struct {
	Store SessionStore
	RAG   *rag.Service
}

func (h *SessionsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.DELETE("/:id", h.delete)
	g.GET("/:id/messages", h.messages)
	g.GET("/:id/files", h.files)
	g.GET("/:id/search", h.search)
}

type sessionResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

func toSessionResponse(s store.Session) sessionResponse {
	return sessionResponse{ID: s.ID, Title: s.Title, CreatedAt: s.CreatedAt}
}

func (h *SessionsHandler) create(c echo.Context) error {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Title == "" {
		req.Title = "New chat"
	}
	sess, err := h.Store.CreateSession(c.Request().Context(), req.Title)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, toSessionResponse(sess))
}

func (h *SessionsHandler) list(c echo.Context) error {
	items, err := h.Store.ListSessions(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]sessionResponse, 0, len(items))
	for _, s := range items {
		out = append(out, toSessionResponse(s))
	}
	return c.JSON(http.StatusOK, out)
}

// delete removes the session row and every in-memory index entry for it,
// so a reused session id starts from a clean slate.
func (h *SessionsHandler) delete(c echo.Context) error {
	id := c.Param("id")
	deleted, err := h.Store.DeleteSession(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !deleted {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	h.RAG.DropSession(id)
	return c.NoContent(http.StatusNoContent)
}

func (h *SessionsHandler) messages(c echo.Context) error {
	id := c.Param("id")
	if err := h.requireSession(c, id); err != nil {
		return err
	}
	msgs, err := h.Store.ListMessages(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	type messageResponse struct {
		ID        string    `json:"id"`
		Role      string    `json:"role"`
		Content   string    `json:"content"`
		Sources   []string  `json:"sources,omitempty"`
		Tier      string    `json:"tier,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageResponse{
			ID: m.ID, Role: m.Role, Content: m.Content,
			Sources: m.Sources, Tier: m.Tier, CreatedAt: m.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *SessionsHandler) files(c echo.Context) error {
	id := c.Param("id")
	if err := h.requireSession(c, id); err != nil {
		return err
	}
	files, err := h.Store.ListFiles(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	type fileResponse struct {
		ID         string    `json:"id"`
		Filename   string    `json:"filename"`
		SizeBytes  int64     `json:"size_bytes"`
		ChunkCount int       `json:"chunk_count"`
		CreatedAt  time.Time `json:"created_at"`
	}
	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, fileResponse{
			ID: f.ID, Filename: f.Filename, SizeBytes: f.SizeBytes,
			ChunkCount: f.ChunkCount, CreatedAt: f.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// search runs a keyword search over the session's ingested passages.
func (h *SessionsHandler) search(c echo.Context) error {
	id := c.Param("id")
	if err := h.requireSession(c, id); err != nil {
		return err
	}
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	hits, err := h.RAG.KeywordSearch(id, query, limit)
	if err != nil {
		if errors.Is(err, rag.ErrKeywordSearchDisabled) {
			return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if hits == nil {
		hits = []keyword.Hit{} // keep a JSON array, never null
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"hits": hits})
}

func (h *SessionsHandler) requireSession(c echo.Context, id string) error {
	_, ok, err := h.Store.GetSession(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return nil
}
