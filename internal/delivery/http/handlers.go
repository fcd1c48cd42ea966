package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/weatherapp/backend/internal/domain"
	"github.com/weatherapp/backend/internal/presenter"
	"github.com/weatherapp/backend/internal/service"
	"github.com/weatherapp/backend/internal/session"
	"github.com/weatherapp/backend/internal/viewstate"
	"github.com/weatherapp/backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// Handler contains all HTTP handlers
type Handler struct {
	sessions  *session.Manager
	lookups   *service.LookupRecorder
	presenter *presenter.Presenter
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler creates a new handler
func NewHandler(sessions *session.Manager, lookups *service.LookupRecorder, p *presenter.Presenter, logger *slog.Logger) *Handler {
	if p == nil {
		p = &presenter.Presenter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions:  sessions,
		lookups:   lookups,
		presenter: p,
		logger:    logger,
		now:       time.Now,
	}
}

type queryRequest struct {
	Query string `json:"query"`
}

type keyRequest struct {
	Key string `json:"key"`
}

type unitRequest struct {
	Unit string `json:"unit"`
}

// geolocationReport is what the page sends after navigator.geolocation answers.
// Either both coordinates or neither are set; without coordinates it is a failure.
// Request echoes the view's geolocation_request and may be omitted.
type geolocationReport struct {
	Request   uint64   `json:"request"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Message   string   `json:"message"`
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	storage := "ok"
	if err := h.lookups.Health(c.UserContext()); err != nil {
		h.logger.Warn("lookup storage unhealthy", "error", err)
		storage = "degraded"
	}
	return c.JSON(fiber.Map{
		"status":   "ok",
		"service":  "weather-backend",
		"version":  "1.0.0",
		"sessions": h.sessions.Len(),
		"storage":  storage,
	})
}

// CreateSession mounts a new view
func (h *Handler) CreateSession(c *fiber.Ctx) error {
	s, err := h.sessions.Create(c.UserContext(), c.IP())
	if err != nil {
		return h.sessionError(err)
	}
	state, err := s.Controller.Snapshot(c.UserContext())
	if err != nil {
		return h.sessionError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":   s.ID,
			"view": h.presenter.Build(state, h.now()),
		},
	})
}

// GetSession returns the current view
func (h *Handler) GetSession(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	state, err := s.Controller.Snapshot(c.UserContext())
	if err != nil {
		return h.sessionError(err)
	}
	return h.view(c, state)
}

// DeleteSession unmounts a view and cancels its pending work
func (h *Handler) DeleteSession(c *fiber.Ctx) error {
	if err := h.sessions.Close(c.Params("id")); err != nil {
		return h.sessionError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SetQuery mirrors the search input
func (h *Handler) SetQuery(c *fiber.Ctx) error {
	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return h.dispatch(c, viewstate.QueryChanged{Query: req.Query})
}

// Search starts a lookup for the current query
func (h *Handler) Search(c *fiber.Ctx) error {
	return h.dispatch(c, viewstate.SearchRequested{})
}

// KeyPress forwards a key from the search input; only Enter searches
func (h *Handler) KeyPress(c *fiber.Ctx) error {
	var req keyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return h.dispatch(c, viewstate.KeyPressed{Key: req.Key})
}

// SetUnit changes the unit system and clears the shown weather
func (h *Handler) SetUnit(c *fiber.Ctx) error {
	var req unitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	unit, err := domain.ParseUnitSystem(req.Unit)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Unknown unit %q", req.Unit))
	}
	return h.dispatch(c, viewstate.UnitSelected{Unit: unit})
}

// DismissError closes the error banner
func (h *Handler) DismissError(c *fiber.Ctx) error {
	return h.dispatch(c, viewstate.ErrorDismissed{})
}

// ToggleMap opens or closes the map
func (h *Handler) ToggleMap(c *fiber.Ctx) error {
	return h.dispatch(c, viewstate.MapToggled{})
}

// ReportGeolocation settles the pending geolocation request with the browser's answer
func (h *Handler) ReportGeolocation(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	if !s.BrowserReports {
		return fiber.NewError(fiber.StatusConflict, "Browser geolocation is not enabled")
	}

	var req geolocationReport
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	report := viewstate.GeolocationReport{Request: req.Request, Message: req.Message}
	switch {
	case req.Latitude != nil && req.Longitude != nil:
		coords := domain.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
		if err := coords.Validate(); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Coordinates out of range")
		}
		report.Coordinates = &coords
	case req.Latitude != nil || req.Longitude != nil:
		return fiber.NewError(fiber.StatusBadRequest, "Both latitude and longitude are required")
	}

	state, err := s.Controller.ReportGeolocation(c.UserContext(), report)
	switch {
	case errors.Is(err, viewstate.ErrNoGeolocationPending):
		return fiber.NewError(fiber.StatusConflict, "No geolocation request is pending")
	case errors.Is(err, viewstate.ErrGeolocationSuperseded):
		return fiber.NewError(fiber.StatusConflict, "Geolocation request was superseded")
	case err != nil:
		return h.sessionError(err)
	}
	return h.view(c, state)
}

// StreamEvents pushes every new view to the client as server-sent events
func (h *Handler) StreamEvents(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	updates, unsubscribe := s.Controller.Subscribe()
	detach := s.Attach()
	done := s.Controller.Done()
	logger := h.logger.With("session_id", s.ID)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()
		defer detach()

		// Subscribe always holds the current state, so the first frame is immediate.
		if err := h.writeView(w, <-updates); err != nil {
			return
		}

		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case state := <-updates:
				if err := h.writeView(w, state); err != nil {
					logger.Debug("event stream closed by client", "error", err)
					return
				}
			case <-ticker.C:
				if err := writeFrame(w, ": ping\n\n"); err != nil {
					return
				}
			case <-done:
				_ = writeEvent(w, "closed", "{}")
				return
			}
		}
	})
	return nil
}

// RecentLookups returns the newest entries of the lookup log
func (h *Handler) RecentLookups(c *fiber.Ctx) error {
	limit := utils.ClampInt(c.QueryInt("limit", 20), 1, 100)

	data, err := h.lookups.Recent(c.UserContext(), limit)
	if err != nil {
		h.logger.Error("failed to read lookups", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch lookups")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
		"count":   len(data),
	})
}

func (h *Handler) session(c *fiber.Ctx) (*session.Session, error) {
	s, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return nil, h.sessionError(err)
	}
	return s, nil
}

func (h *Handler) dispatch(c *fiber.Ctx, ev viewstate.Event) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	state, err := s.Controller.Dispatch(c.UserContext(), ev)
	if err != nil {
		return h.sessionError(err)
	}
	return h.view(c, state)
}

func (h *Handler) view(c *fiber.Ctx, state viewstate.State) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.presenter.Build(state, h.now()),
	})
}

func (h *Handler) sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, viewstate.ErrClosed):
		return fiber.NewError(fiber.StatusNotFound, "Session not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusServiceUnavailable, "Request cancelled")
	default:
		h.logger.Error("session operation failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Internal Server Error")
	}
}

func (h *Handler) writeView(w *bufio.Writer, state viewstate.State) error {
	b, err := json.Marshal(h.presenter.Build(state, h.now()))
	if err != nil {
		return err
	}
	return writeEvent(w, "view", string(b))
}

func writeEvent(w *bufio.Writer, event, data string) error {
	return writeFrame(w, "event: "+event+"\ndata: "+data+"\n\n")
}

func writeFrame(w *bufio.Writer, frame string) error {
	if _, err := w.WriteString(frame); err != nil {
		return err
	}
	return w.Flush()
}

// ErrorHandler renders errors as {"error": true, "message": ...}
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
