package ws

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-backbone/internal/middleware"
	"chat-backbone/internal/models"
	"chat-backbone/internal/observability"
	"chat-backbone/internal/realtime"
	"chat-backbone/internal/repositories"
)

// MessageStreamHandler upgrades websocket clients and feeds each one a
// merged, deduplicated event stream for its conversation.
type MessageStreamHandler struct {
	hub           *Hub
	subscriber    *realtime.Subscriber
	conversations repositories.ConversationRepository
	secret        []byte
}

// NewMessageStreamHandler constructs a MessageStreamHandler.
func NewMessageStreamHandler(hub *Hub, subscriber *realtime.Subscriber, conversations repositories.ConversationRepository, secret []byte) *MessageStreamHandler {
	return &MessageStreamHandler{hub: hub, subscriber: subscriber, conversations: conversations, secret: secret}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades the connection and opens one
// dual-channel session whose callback writes to the socket. The
// session ends when the socket does.
func (h *MessageStreamHandler) Handle(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	ctx, span := otel.Tracer("chat-backbone/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := middleware.ParseBearer(h.secret, bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conv, err := h.conversations.Get(ctx, conversationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return
	}
	if !conv.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation participant"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	// The session serializes deliveries, so the connection has a single
	// writer.
	session, err := h.subscriber.Subscribe(conversationID, userID, func(ev models.MessageEvent) {
		if err := conn.WriteJSON(ev); err != nil {
			log.Printf("websocket write error conn=%s: %v", info.ConnID, err)
			_ = conn.Close()
		}
	})
	if err != nil {
		log.Printf("subscription open failed conversation=%s: %v", conversationID, err)
		_ = conn.Close()
		return
	}

	h.hub.Add(conversationID, conn, info, session)
	observability.IncWSEvent("ws_connect")
	log.Printf("realtime session open conversation=%s conn=%s user=%s", conversationID, info.ConnID, userID)

	// Drain the read side until the client goes away, then tear down.
	go func() {
		defer func() {
			h.hub.Remove(conversationID, conn)
			observability.IncWSEvent("ws_disconnect")
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("ws_error")
				}
				return
			}
		}
	}()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		return header
	}
	if token := c.Query("token"); token != "" {
		return "Bearer " + token
	}
	return ""
}
