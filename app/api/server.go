package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"time"

	"barberbot/app/config"
	"barberbot/app/service/buffer"
	"barberbot/app/service/ingress"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/do"
	"github.com/samber/oops"
)

const (
	tokenHeader     = "X-Webhook-Token"
	bodyLimit       = 32 * 1024 * 1024
	shutdownTimeout = 10 * time.Second
)

type WebhookHandler interface {
	Handle(ctx context.Context, body []byte, instance string) ([]string, error)
}

type BufferCounter interface {
	Len() int
}

// Server receives gateway webhooks.
type Server struct {
	app      *fiber.App
	listen   string
	token    string
	webhooks WebhookHandler
	buffers  BufferCounter
}

func New(di *do.Injector) (*Server, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewServer(
		cfg.Server.Listen,
		cfg.Server.WebhookToken,
		do.MustInvoke[*ingress.Service](di),
		do.MustInvoke[*buffer.Store](di),
	), nil
}

func NewServer(listen, token string, webhooks WebhookHandler, buffers BufferCounter) *Server {
	s := &Server{
		listen:   listen,
		token:    token,
		webhooks: webhooks,
		buffers:  buffers,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "barberbot",
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit,
		ErrorHandler:          errorHandler,
	})

	s.app.Use(logRequests)
	s.app.Get("/healthz", s.handleHealth)

	webhook := s.app.Group("/webhook", s.checkToken)
	webhook.Post("/", s.handleWebhook)
	webhook.Post("/:instance", s.handleWebhook)
	// Evolution appends the event name when webhook_by_events is on
	webhook.Post("/:instance/:event", s.handleWebhook)

	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if s.token == "" && !isLoopback(s.listen) {
		slog.Warn("Webhook server has no token and is bound to a non-loopback address", "listen", s.listen)
	}

	go func() {
		<-ctx.Done()
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			slog.Error("Webhook server shutdown failed", "error", err)
		}
	}()

	slog.Info("Webhook server started", "listen", s.listen)

	if err := s.app.Listen(s.listen); err != nil {
		return oops.In("api").With("listen", s.listen).Wrapf(err, "listen")
	}

	return nil
}

func (s *Server) checkToken(c *fiber.Ctx) error {
	if s.token == "" {
		return c.Next()
	}

	provided := c.Get(tokenHeader)
	if provided == "" {
		provided = c.Query("token")
	}

	if !compareTokens(provided, s.token) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid webhook token")
	}

	return c.Next()
}

func (s *Server) handleWebhook(c *fiber.Ctx) error {
	// fiber reuses the request buffer after the handler returns
	body := bytes.Clone(c.Body())

	results, err := s.webhooks.Handle(c.UserContext(), body, c.Params("instance"))
	if err != nil {
		slog.Warn("Rejected webhook", "error", err)
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}

	return c.JSON(fiber.Map{
		"status":  "ok",
		"results": results,
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"buffers": s.buffers.Len(),
	})
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	} else {
		slog.Error("Webhook handler failed", "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	slog.Debug("HTTP request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start),
	)

	return err
}

// compareTokens hashes both sides so the comparison does not leak length.
func compareTokens(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

func isLoopback(listen string) bool {
	host, _, err := net.SplitHostPort(listen)
	if err != nil || host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
