package ws

import (
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
)

// NotificationStreamHandler streams a user's new notification rows
// over a single change-feed channel. No broadcast redundancy here:
// notifications are a lower-priority path.
type NotificationStreamHandler struct {
	feed   *realtime.NotificationFeed
	secret []byte
}

// NewNotificationStreamHandler constructs a NotificationStreamHandler.
func NewNotificationStreamHandler(feed *realtime.NotificationFeed, secret []byte) *NotificationStreamHandler {
	return &NotificationStreamHandler{feed: feed, secret: secret}
}

// Handle authenticates, upgrades and pipes the user's notification feed
// into the socket until the client disconnects.
func (h *NotificationStreamHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-backbone/ws").Start(c.Request.Context(), "ws.notifications")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := middleware.ParseBearer(h.secret, bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	connID := newConnID()
	handle, err := h.feed.Subscribe(ctx, userID, func(n models.Notification) {
		if err := conn.WriteJSON(n); err != nil {
			log.Printf("notification write error conn=%s: %v", connID, err)
			_ = conn.Close()
		}
	}, func(st realtime.Status) {
		observability.IncChannelEvent("notification_feed", string(st))
	})
	if err != nil {
		log.Printf("notification feed open failed user=%s: %v", userID, err)
		_ = conn.Close()
		return
	}

	observability.IncWSEvent("ws_connect")
	start := time.Now()

	go func() {
		defer func() {
			if err := handle.Close(); err != nil {
				log.Printf("notification feed release failed user=%s: %v", userID, err)
			}
			observability.IncWSEvent("ws_disconnect")
			_ = conn.Close()
			log.Printf("notification stream closed user=%s after %s", userID, time.Since(start).Round(time.Second))
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
