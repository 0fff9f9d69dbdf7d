package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-chat/internal/auth"
	"github.com/fathima-sithara/realtime-chat/internal/engine"
	"github.com/fathima-sithara/realtime-chat/internal/hub"
	"github.com/fathima-sithara/realtime-chat/internal/metrics"
	"github.com/fathima-sithara/realtime-chat/internal/models"
	"github.com/fathima-sithara/realtime-chat/internal/presence"
	"github.com/fathima-sithara/realtime-chat/internal/store"
)

type Config struct {
	PingInterval   time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// Handler owns the websocket session lifecycle: authenticate, register
// presence, join the user's rooms, then dispatch inbound events to the
// engine until the socket drops.
type Handler struct {
	verifier *auth.Verifier
	eng      *engine.Engine
	registry *presence.Registry
	rooms    *hub.Hub
	cfg      Config
	log      *zap.SugaredLogger
}

func NewHandler(verifier *auth.Verifier, eng *engine.Engine, registry *presence.Registry, rooms *hub.Hub, cfg Config, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteDeadline <= 0 {
		cfg.WriteDeadline = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	return &Handler{verifier: verifier, eng: eng, registry: registry, rooms: rooms, cfg: cfg, log: log}
}

// Serve handles one upgraded connection: /v1/ws?token=<jwt>.
func (h *Handler) Serve(conn *websocket.Conn) {
	ctx := context.Background()

	userID, err := h.verifier.Verify(conn.Query("token"))
	if err != nil {
		// connection refusal, not a retryable error
		_ = conn.WriteMessage(websocket.TextMessage,
			models.Encode(models.EventError, models.ErrorPayload{Message: "invalid credential"}))
		_ = conn.Close()
		return
	}

	client := NewClient(conn, userID, h.cfg.SendBuffer)
	metrics.ActiveConnections.Inc()
	h.log.Infow("connected", "user_id", userID, "conn_id", client.ID())

	h.registry.Register(ctx, userID, client)
	if chatIDs, err := h.eng.ChatIDsFor(ctx, userID); err != nil {
		h.log.Warnw("joining rooms failed", "user_id", userID, "err", err)
	} else {
		h.rooms.JoinAll(client, chatIDs)
	}

	go client.writePump(h.cfg.PingInterval, h.cfg.WriteDeadline)

	h.readLoop(ctx, client)

	h.rooms.Remove(client)
	h.registry.Unregister(ctx, userID, client)
	client.Close()
	metrics.ActiveConnections.Dec()
	h.log.Infow("disconnected", "user_id", userID, "conn_id", client.ID())
}

func (h *Handler) readLoop(ctx context.Context, client *Client) {
	conn := client.conn
	conn.SetReadLimit(h.cfg.MaxMessageSize)
	readWait := h.cfg.PingInterval * 2
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			client.Send(models.Encode(models.EventError, models.ErrorPayload{Message: "malformed event"}))
			continue
		}
		h.dispatch(ctx, client, &env)
	}
}

func (h *Handler) dispatch(ctx context.Context, client *Client, env *models.Envelope) {
	switch env.Type {
	case models.EventSendMessage:
		var p models.SendMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			client.Send(models.Encode(models.EventError, models.ErrorPayload{Message: "malformed payload"}))
			return
		}
		if _, _, err := h.eng.SendMessage(ctx, p.ChatID, client.UserID(), p.Content, client); err != nil {
			h.reportError(client, err)
		}
	case models.EventMarkRead:
		var p models.MarkReadPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			client.Send(models.Encode(models.EventError, models.ErrorPayload{Message: "malformed payload"}))
			return
		}
		if _, err := h.eng.MarkRead(ctx, p.ChatID, p.MessageID, client.UserID(), client); err != nil {
			h.reportError(client, err)
		}
	default:
		// unknown event types are ignored
	}
}

// reportError sends validation and authorization failures back to the
// originating connection only; they never touch other connections.
func (h *Handler) reportError(client *Client, err error) {
	msg := "internal error"
	switch {
	case errors.Is(err, store.ErrChatNotFound):
		msg = "chat not found"
	case errors.Is(err, engine.ErrNotParticipant):
		msg = "not a participant"
	case errors.Is(err, engine.ErrEmptyContent):
		msg = "empty message"
	default:
		h.log.Errorw("operation failed", "user_id", client.UserID(), "err", err)
	}
	client.Send(models.Encode(models.EventError, models.ErrorPayload{Message: msg}))
}
