package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/planscribe/planscribe/config"
	"github.com/planscribe/planscribe/internal/research"
	"github.com/planscribe/planscribe/internal/store"
	"github.com/planscribe/planscribe/provider"
	"github.com/planscribe/planscribe/tools/ragindex"
	"github.com/planscribe/planscribe/tools/webfetch"
	"github.com/planscribe/planscribe/tools/websearch"
)

// Run wires dependencies and serves the HTTP API until the listener fails.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var body map[string]interface{}
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if m, ok := he.Message.(map[string]interface{}); ok {
				body = m
			} else if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		if body == nil {
			body = map[string]interface{}{"error": msg}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, body)
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	if cfg.Telemetry.Enabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	// Shared dependencies (top-level DI)
	ctx := context.Background()

	st, err := store.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	prov, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}

	idx, err := ragindex.Open(cfg.RAG.IndexPath)
	if err != nil {
		return err
	}

	var web research.WebSearcher
	if cfg.Search.APIKey != "" {
		searcher, err := websearch.NewSearcher(websearch.Provider(cfg.Search.Provider), cfg.Search.APIKey)
		if err != nil {
			return err
		}
		web = searcher
	} else {
		baseLogger.Printf("search.api_key not set, running internal-only")
	}

	fuseLogger := log.New(log.Writer(), "[FUSE] ", log.LstdFlags)
	fuser := research.NewFuser(idx, web, webfetch.NewFetcher(cfg.Search.Timeout), cfg.Research, cfg.Search, cfg.RAG, fuseLogger)
	tracker := research.NewTracker(cfg.Research.TopicMatchThreshold, cfg.Research.MaxDeepDiveAttempts)

	engineLogger := log.New(log.Writer(), "[ENGINE] ", log.LstdFlags)
	engine := research.NewEngine(st, prov, fuser, tracker, cfg.Research.HistoryWindow, engineLogger)

	api := e.Group("/api")
	h := &PlansHandler{Engine: engine, Store: st}
	h.Register(api)

	return e.Start(cfg.General.Listen)
}
