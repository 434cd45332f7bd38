package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/auth"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/domain"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/realtime"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/service"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/lib/logger/sl"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	readLimit    = 4096
	readDeadline = 90 * time.Second
)

// SocketController authenticates the websocket handshake and drives one read
// loop per connection, dispatching inbound events to the services.
type SocketController struct {
	tokens   *auth.Manager
	presence service.PresenceInteractor
	chat     service.ChatInteractor
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewSocketController(tokens *auth.Manager, presence service.PresenceInteractor, chat service.ChatInteractor, log *slog.Logger) *SocketController {
	if log == nil {
		log = slog.Default()
	}
	return &SocketController{
		tokens:   tokens,
		presence: presence,
		chat:     chat,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handshake upgrades an authenticated request. Missing and invalid tokens
// are refused with distinct errors before the upgrade; neither ever reaches
// the registry.
func (c *SocketController) Handshake(ctx *gin.Context) {
	identity, err := c.tokens.Verify(bearerToken(ctx))
	if err != nil {
		status := http.StatusUnauthorized
		message := "invalid authentication token"
		if errors.Is(err, auth.ErrMissingToken) {
			message = "authentication token missing"
		}
		c.log.Warn("handshake refused", slog.String("reason", message))
		ctx.JSON(status, gin.H{"error": message})
		return
	}

	ws, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Warn("websocket upgrade failed", sl.Err(err))
		return
	}

	user := &domain.User{
		ID:        identity.UserID,
		Username:  identity.Username,
		CreatedAt: time.Now().UTC(),
	}
	conn := realtime.NewConnection(user, ws)

	c.presence.Connected(ctx.Request.Context(), conn)

	_ = conn.SendEvent(domain.EventConnectionSuccess, service.ConnectionSuccessPayload{
		UserID:    user.ID.String(),
		Message:   "connected to wraithnet",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})

	go c.readLoop(ws, conn)
}

func (c *SocketController) readLoop(ws *websocket.Conn, conn *realtime.Connection) {
	log := c.log.With(
		slog.String("user_id", conn.User.ID.String()),
		slog.String("conn_id", conn.ID),
	)

	joined := false
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if joined {
			c.chat.Leave(ctx, conn)
		}
		c.presence.Disconnected(ctx, conn)
		conn.Close(websocket.CloseNormalClosure, "")
	}()

	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(readDeadline))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", sl.Err(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readDeadline))

		var envelope domain.Envelope
		if err := json.Unmarshal(frame, &envelope); err != nil {
			log.Warn("invalid frame dropped", sl.Err(err))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		joined = c.dispatch(ctx, conn, envelope, joined)
		cancel()
	}
}

func (c *SocketController) dispatch(ctx context.Context, conn *realtime.Connection, envelope domain.Envelope, joined bool) bool {
	switch envelope.Event {
	case domain.EventHeartbeat:
		if err := c.presence.Heartbeat(ctx, conn.User.ID); err != nil {
			return joined
		}
		_ = conn.SendEvent(domain.EventHeartbeatAck, service.HeartbeatAckPayload{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})

	case domain.EventChatJoin:
		if err := c.chat.Join(ctx, conn); err != nil {
			c.log.Warn("chat join failed", sl.Err(err))
			return joined
		}
		return true

	case domain.EventChatLeave:
		if joined {
			c.chat.Leave(ctx, conn)
		}
		return false

	case domain.EventChatSend:
		var payload struct {
			Content *string `json:"content"`
		}
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.Content == nil {
			_ = conn.SendEvent(domain.EventChatError, service.ChatErrorPayload{
				Message: "message content must be a string",
			})
			return joined
		}
		if err := c.chat.Send(ctx, conn, *payload.Content); err != nil {
			c.log.Warn("chat send failed", sl.Err(err))
		}

	default:
		c.log.Warn("unknown event dropped", slog.String("event", envelope.Event))
	}
	return joined
}

// bearerToken pulls the handshake token from the Authorization header or,
// for browser websocket clients that cannot set headers, the token query
// parameter.
func bearerToken(ctx *gin.Context) string {
	header := ctx.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ctx.Query("token")
}
