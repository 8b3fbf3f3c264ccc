// Package api exposes the dispatch service over HTTP.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/WesleyKishore-2054/Resilient-Email-Service/dispatch"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/breaker"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/metrics"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/ratelimit"
	"github.com/WesleyKishore-2054/Resilient-Email-Service/queue"
)

const queuedMessage = "Email has been queued for sending."

// StatusSource is the read side of the dispatcher.
type StatusSource interface {
	Status(fingerprint string) (dispatch.Status, bool)
	BreakerSnapshot() []breaker.Snapshot
	Limiter() *ratelimit.Limiter
}

// Submitter accepts messages for asynchronous delivery.
type Submitter interface {
	Submit(msg dispatch.Message) queue.Entry
	Depth() int
}

type messageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

type statusResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Detail dispatch.Status `json:"detail"`
}

type rateLimitResponse struct {
	Limit    int    `json:"limit"`
	Window   string `json:"window"`
	InWindow int    `json:"in_window"`
}

type healthResponse struct {
	Status     string             `json:"status"`
	QueueDepth int                `json:"queue_depth"`
	Breakers   []breaker.Snapshot `json:"breakers"`
	RateLimit  rateLimitResponse  `json:"rate_limit"`
}

// New builds the fiber app. rec may be nil, in which case /metrics is not
// mounted.
func New(statuses StatusSource, q Submitter, rec *metrics.Recorder, log zerolog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "dispatch",
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		ErrorHandler:          errorHandler(log),
	})
	app.Use(requestLogger(log))

	h := &handlers{statuses: statuses, queue: q}
	app.Post("/send", h.send)
	app.Get("/status/:id", h.status)
	app.Get("/healthz", h.health)
	if rec != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(rec.Registry, promhttp.HandlerOpts{})))
	}
	return app
}

type handlers struct {
	statuses StatusSource
	queue    Submitter
}

func (h *handlers) send(c *fiber.Ctx) error {
	var msg dispatch.Message
	if err := c.BodyParser(&msg); err != nil {
		return c.Status(http.StatusBadRequest).JSON(messageResponse{Message: "invalid request body"})
	}
	if err := msg.Validate(); err != nil {
		return c.Status(http.StatusBadRequest).JSON(messageResponse{Message: err.Error()})
	}
	e := h.queue.Submit(msg)
	return c.Status(http.StatusAccepted).JSON(messageResponse{Message: queuedMessage, ID: e.Fingerprint})
}

func (h *handlers) status(c *fiber.Ctx) error {
	id := c.Params("id")
	st, ok := h.statuses.Status(id)
	if !ok {
		return c.Status(http.StatusNotFound).JSON(messageResponse{Message: "Email status not found"})
	}
	return c.JSON(statusResponse{ID: id, Status: st.String(), Detail: st})
}

func (h *handlers) health(c *fiber.Ctx) error {
	l := h.statuses.Limiter()
	return c.JSON(healthResponse{
		Status:     "ok",
		QueueDepth: h.queue.Depth(),
		Breakers:   h.statuses.BreakerSnapshot(),
		RateLimit: rateLimitResponse{
			Limit:    l.Limit(),
			Window:   l.Window().String(),
			InWindow: l.InWindow(),
		},
	})
}

func errorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := http.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= http.StatusInternalServerError {
			log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		}
		return c.Status(code).JSON(messageResponse{Message: http.StatusText(code)})
	}
}

func requestLogger(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = http.StatusInternalServerError
			}
		}
		log.Debug().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
		return err
	}
}
