package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/apperr"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/config"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/session"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/ws"
)

// Server is the HTTP surface of the gateway: a websocket endpoint for live
// sessions plus a small REST slice for history backfill and health probes.
type Server struct {
	app  *fiber.App
	log  *zap.SugaredLogger
	cfg  *config.Config
	hub  *ws.Hub
	deps session.Deps
}

func NewServer(log *zap.SugaredLogger, cfg *config.Config, hub *ws.Hub, deps session.Deps) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			ErrorHandler: errorHandler,
		}),
		log:  log,
		cfg:  cfg,
		hub:  hub,
		deps: deps,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Use(recover.New())
	s.app.Use(fiberlog.New())

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "connections": s.hub.Len()})
	})

	v1 := s.app.Group("/v1", BearerAuth(s.cfg.JWT.Secret))
	v1.Get("/surfaces", s.listSurfaces)
	v1.Get("/surfaces/:id/messages", s.listMessages)

	v1.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals("ws_user", c.Locals("user_id"))
		return c.Next()
	})
	v1.Get("/ws", websocket.New(s.handleWS))
}

func (s *Server) handleWS(conn *websocket.Conn) {
	user, _ := conn.Locals("ws_user").(string)
	if user == "" {
		conn.Close()
		return
	}
	client := ws.NewClient(s.log, conn, s.hub, user, s.deps)
	client.Run()
}

// listSurfaces returns the channel and conversation directory for the caller.
// The websocket session sends the same payload on connect; this endpoint
// exists for prefetching and debugging.
func (s *Server) listSurfaces(c *fiber.Ctx) error {
	user := c.Locals("user_id").(string)
	channels, err := s.deps.Store.Channels(c.Context())
	if err != nil {
		return err
	}
	convs, err := s.deps.Store.ConversationsFor(c.Context(), user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"channels": channels, "conversations": convs})
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	surfaceID := c.Params("id")
	limit := int64(c.QueryInt("limit", int(s.deps.PageSize)))
	if limit <= 0 || limit > 200 {
		limit = s.deps.PageSize
	}
	var before time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return apperr.ErrBadRequest
		}
		before = t
	}
	msgs, err := s.deps.Store.Messages(c.Context(), surfaceID, limit, before)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	rows, err := s.deps.Store.ReactionsFor(c.Context(), ids)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"messages": msgs, "reactions": rows})
}

func (s *Server) Listen() error {
	return s.app.Listen(":" + s.cfg.Server.Port)
}

func (s *Server) ShutdownWithContext(ctx context.Context) error {
	s.hub.CloseAll()
	return s.app.ShutdownWithContext(ctx)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrBadRequest):
		code = fiber.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		code = fiber.StatusUnauthorized
	case errors.Is(err, apperr.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, apperr.ErrServiceUnavailable):
		code = fiber.StatusServiceUnavailable
	default:
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
