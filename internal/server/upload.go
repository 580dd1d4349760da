package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/docchat/internal/cache"
	"github.com/mohammad-safakhou/docchat/internal/extract"
	"github.com/mohammad-safakhou/docchat/internal/rag"
	"github.com/mohammad-safakhou/docchat/internal/store"
)

// maxUploadBytes caps a single uploaded file.
const maxUploadBytes = 32 << 20

type UploadHandler struct {
	Store     SessionStore
	RAG       *rag.Service
	Extractor *extract.Extractor
	Cache     *cache.AnswerCache
}

func (h *UploadHandler) Register(g *echo.Group) {
	g.POST("/document", h.upload)
	g.POST("/screenshot", h.upload)
}

// upload ingests one file into the session's index: extract text, chunk,
// embed, index, and record the upload. A file that yields no text still
// succeeds with zero chunks.
func (h *UploadHandler) upload(c echo.Context) error {
	sessionID := c.FormValue("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id required")
	}

	ctx := c.Request().Context()
	_, ok, err := h.Store.GetSession(ctx, sessionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file required")
	}
	if fh.Size > maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if int64(len(data)) > maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
	}

	text, err := h.Extractor.Extract(ctx, fh.Filename, data)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFormat) {
			return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	res, err := h.RAG.Ingest(ctx, sessionID, fh.Filename, text)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	rec, err := h.Store.AddFile(ctx, store.UploadedFile{
		SessionID:  sessionID,
		Filename:   fh.Filename,
		SizeBytes:  fh.Size,
		ChunkCount: res.ChunkCount,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// New content invalidates any cached answers for this session.
	h.Cache.Bump(ctx, sessionID)

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"file_id":  rec.ID,
		"filename": rec.Filename,
		"chunks":   rec.ChunkCount,
	})
}
