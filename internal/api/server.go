package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-chat/internal/auth"
	"github.com/fathima-sithara/realtime-chat/internal/engine"
	"github.com/fathima-sithara/realtime-chat/internal/metrics"
	"github.com/fathima-sithara/realtime-chat/internal/presence"
	"github.com/fathima-sithara/realtime-chat/internal/ws"
)

type Server struct {
	eng      *engine.Engine
	registry *presence.Registry
	log      *zap.SugaredLogger
}

type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewServer builds the fiber app with the websocket route and the
// synchronous CRUD surface wrapping the same engine operations.
func NewServer(eng *engine.Engine, registry *presence.Registry, verifier *auth.Verifier, wsHandler *ws.Handler, log *zap.SugaredLogger, opts Options) *fiber.App {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	app := fiber.New(fiber.Config{
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})
	app.Use(fiberlogger.New())

	s := &Server{eng: eng, registry: registry, log: log}

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	v1 := app.Group("/v1")
	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1.Get("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	v1.Get("/ws", websocket.New(wsHandler.Serve))

	chats := v1.Group("/chats", jwtAuth(verifier))
	chats.Get("/", s.listChats)
	chats.Post("/", s.createChat)
	chats.Get("/:chatID/messages", s.listMessages)
	chats.Post("/:chatID/messages", s.sendMessage)
	chats.Post("/:chatID/messages/:messageID/read", s.markRead)

	v1.Get("/users/:userID/presence", jwtAuth(verifier), s.getPresence)

	return app
}
