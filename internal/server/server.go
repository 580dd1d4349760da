package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/docchat/config"
	"github.com/mohammad-safakhou/docchat/internal/cache"
	"github.com/mohammad-safakhou/docchat/internal/extract"
	"github.com/mohammad-safakhou/docchat/internal/rag"
	"github.com/mohammad-safakhou/docchat/internal/store"
	"github.com/mohammad-safakhou/docchat/internal/telemetry"
)

// SessionStore is the persistence surface the handlers need. *store.Store
// satisfies it; tests substitute an in-memory fake.
type SessionStore interface {
	CreateSession(ctx context.Context, title string) (store.Session, error)
	GetSession(ctx context.Context, id string) (store.Session, bool, error)
	ListSessions(ctx context.Context) ([]store.Session, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
	AddMessage(ctx context.Context, m store.Message) (store.Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]store.Message, error)
	AddFile(ctx context.Context, f store.UploadedFile) (store.UploadedFile, error)
	ListFiles(ctx context.Context, sessionID string) ([]store.UploadedFile, error)
}

// Run wires the whole service together and serves HTTP until the server
// stops. Postgres is required; redis and the LLM tiers are optional and
// simply disable their features when unconfigured.
func Run(cfg config.Config) error {
	ctx := context.Background()

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer st.Close()

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.New()
	}

	ragLogger := log.New(log.Writer(), "[RAG] ", log.LstdFlags)
	ragSvc, err := rag.New(cfg, metrics, ragLogger)
	if err != nil {
		return err
	}

	answers := cache.New(cfg.Storage.Redis)
	if answers != nil {
		if err := answers.Ping(ctx); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer answers.Close()
	}

	e := newRouter(st, ragSvc, extract.New(cfg.Extract), answers)
	return e.Start(cfg.Server.Address)
}

// newRouter builds the echo instance with all routes registered. Split
// out from Run so handler tests can exercise the real routing without a
// database server.
func newRouter(st SessionStore, ragSvc *rag.Service, extractor *extract.Extractor, answers *cache.AnswerCache) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	httpLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		httpLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")

	sh := &SessionsHandler{Store: st, RAG: ragSvc}
	sh.Register(api.Group("/sessions"))

	ch := &ChatHandler{Store: st, RAG: ragSvc, Cache: answers}
	ch.Register(api.Group("/chat"))

	uh := &UploadHandler{Store: st, RAG: ragSvc, Extractor: extractor, Cache: answers}
	uh.Register(api.Group("/upload"))

	return e
}
