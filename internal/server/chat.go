package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/docchat/internal/cache"
	"github.com/mohammad-safakhou/docchat/internal/rag"
	"github.com/mohammad-safakhou/docchat/internal/store"
)

type ChatHandler struct {
	Store SessionStore
	RAG   *rag.Service
	Cache *cache.AnswerCache // nil when redis is not configured
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("", h.chat)
}

type chatResponse struct {
	Message string   `json:"message"`
	Sources []string `json:"sources"`
	Tier    string   `json:"tier"`
	Cached  bool     `json:"cached,omitempty"`
}

// chat answers one question against the session's uploaded documents.
// The user turn and the assistant turn are both persisted so the
// conversation survives restarts even though the index does not.
func (h *ChatHandler) chat(c echo.Context) error {
	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SessionID == "" || req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id and message required")
	}

	ctx := c.Request().Context()
	_, ok, err := h.Store.GetSession(ctx, req.SessionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	if _, err := h.Store.AddMessage(ctx, store.Message{
		SessionID: req.SessionID,
		Role:      store.RoleUser,
		Content:   req.Message,
	}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var resp chatResponse
	if cached, hit := h.Cache.Get(ctx, req.SessionID, req.Message); hit {
		resp = chatResponse{Message: cached.Answer, Sources: cached.Sources, Tier: cached.Tier, Cached: true}
	} else {
		out, err := h.RAG.Query(ctx, req.SessionID, req.Message)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		resp = chatResponse{Message: out.Answer, Sources: out.Sources, Tier: string(out.Tier)}
		h.Cache.Set(ctx, req.SessionID, req.Message, cache.CachedAnswer{
			Answer: out.Answer, Sources: out.Sources, Tier: string(out.Tier),
		})
	}
	if resp.Sources == nil {
		resp.Sources = []string{}
	}

	if _, err := h.Store.AddMessage(ctx, store.Message{
		SessionID: req.SessionID,
		Role:      store.RoleAssistant,
		Content:   resp.Message,
		Sources:   resp.Sources,
		Tier:      resp.Tier,
	}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, resp)
}
