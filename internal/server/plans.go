package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/planscribe/planscribe/internal/research"
	"github.com/planscribe/planscribe/internal/store"
	"github.com/planscribe/planscribe/models"
)

// PlansHandler exposes research rounds, plan reads, chat, edits, deep
// dives and chart payloads.
type PlansHandler struct {
	Engine *research.Engine
	Store  store.Store
}

func (h *PlansHandler) Register(g *echo.Group) {
	g.POST("/research/start", h.startResearch)
	g.POST("/research/stream", h.streamResearch)
	g.GET("/plans/:id", h.getPlan)
	g.DELETE("/plans/:id", h.deletePlan)
	g.POST("/plans/:id/chat", h.chat)
	g.GET("/plans/:id/turns", h.listTurns)
	g.PUT("/plans/:id/sections/:key", h.editSection)
	g.POST("/plans/:id/conflicts/:cid/deep-dive", h.deepDive)
	g.GET("/plans/:id/charts", h.charts)
	g.POST("/plans/:id/feedback", h.feedback)
}

type startResearchRequest struct {
	Company string `json:"company"`
	Depth   string `json:"depth"`
}

func (h *PlansHandler) startResearch(c echo.Context) error {
	var req startResearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.Company) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "company required")
	}
	plan, err := h.Engine.StartResearch(c.Request().Context(), req.Company, models.ParseDepth(req.Depth))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, plan)
}

// streamResearch runs a research round while streaming progress via
// Server-Sent Events: step events per pipeline stage, chunk events for
// raw model output, one final plan event.
func (h *PlansHandler) streamResearch(c echo.Context) error {
	var req startResearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.Company) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "company required")
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	emit := func(ev research.StreamEvent) {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			return
		}
		fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", ev.Type, data)
		flusher.Flush()
	}

	if _, err := h.Engine.StreamResearch(c.Request().Context(), req.Company, models.ParseDepth(req.Depth), emit); err != nil {
		emit(research.StreamEvent{Type: "error", Data: err.Error()})
	}
	return nil
}

func (h *PlansHandler) getPlan(c echo.Context) error {
	plan, err := h.Engine.GetPlan(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, plan)
}

func (h *PlansHandler) deletePlan(c echo.Context) error {
	if err := h.Store.DeletePlan(c.Request().Context(), c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply       models.ConversationTurn `json:"reply"`
	PlanVersion int                     `json:"plan_version"`
}

func (h *PlansHandler) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message required")
	}
	turn, plan, err := h.Engine.HandleTurn(c.Request().Context(), c.Param("id"), req.Message)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, chatResponse{Reply: turn, PlanVersion: plan.Version})
}

func (h *PlansHandler) listTurns(c echo.Context) error {
	if _, err := h.Engine.GetPlan(c.Request().Context(), c.Param("id")); err != nil {
		return mapError(err)
	}
	turns, err := h.Store.ListTurns(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"turns": turns})
}

type editSectionRequest struct {
	Content     string `json:"content"`
	BaseVersion int    `json:"base_version"`
}

func (h *PlansHandler) editSection(c echo.Context) error {
	var req editSectionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	key := models.SectionKey(c.Param("key"))
	if !models.KnownSection(key) {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown section %q", key))
	}
	plan, err := h.Engine.EditSection(c.Request().Context(), c.Param("id"), key, req.Content, req.BaseVersion)
	if err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			return h.versionConflict(c, err)
		}
		if strings.Contains(err.Error(), "not text-editable") {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return mapError(err)
	}
	return c.JSON(http.StatusOK, plan)
}

type deepDiveResponse struct {
	Outcome models.ConflictOutcome `json:"outcome"`
	Plan    *models.AccountPlan    `json:"plan"`
}

func (h *PlansHandler) deepDive(c echo.Context) error {
	plan, outcome, err := h.Engine.RequestDeepDive(c.Request().Context(), c.Param("id"), c.Param("cid"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, deepDiveResponse{Outcome: outcome, Plan: plan})
}

func (h *PlansHandler) charts(c echo.Context) error {
	charts, err := h.Engine.GetCharts(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, charts)
}

type feedbackRequest struct {
	Notes string `json:"notes"`
}

func (h *PlansHandler) feedback(c echo.Context) error {
	var req feedbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.Notes) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "notes is required")
	}
	summary, err := h.Engine.Feedback(c.Request().Context(), c.Param("id"), req.Notes)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"summary": summary})
}

// versionConflict answers a stale edit with 409 plus the current plan
// version so the client can re-read and retry.
func (h *PlansHandler) versionConflict(c echo.Context, cause error) error {
	body := map[string]interface{}{"error": cause.Error()}
	if plan, err := h.Engine.GetPlan(c.Request().Context(), c.Param("id")); err == nil {
		body["current_version"] = plan.Version
	}
	return echo.NewHTTPError(http.StatusConflict, body)
}

// mapError translates domain sentinels to HTTP status codes.
func mapError(err error) error {
	switch {
	case errors.Is(err, models.ErrPlanNotFound), errors.Is(err, models.ErrConflictNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrConflictClosed), errors.Is(err, models.ErrVersionConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case strings.Contains(err.Error(), "completion"):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return err
	}
}
