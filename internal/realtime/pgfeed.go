package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/lib/pq"

	"chat-backbone/internal/db"
	"chat-backbone/internal/models"
)

const (
	feedMinReconnect = 1500 * time.Millisecond
	feedMaxReconnect = 30 * time.Second
	feedPingInterval = 90 * time.Second
)

// MessageFeed is the database change-feed half of the realtime layer:
// a LISTEN connection on the messages NOTIFY channel, filtered by
// conversation id client-side.
type MessageFeed struct {
	dsn     string
	channel string
}

// NewMessageFeed constructs a MessageFeed over the given DSN.
func NewMessageFeed(dsn string) *MessageFeed {
	return &MessageFeed{dsn: dsn, channel: db.MessagesFeedChannel}
}

// Name implements Transport.
func (f *MessageFeed) Name() string { return "pgfeed" }

// Subscribe opens a listener and starts pumping matching inserts to
// onEvent. The listener reconnects on its own; status callbacks keep
// the session's view of the channel honest.
func (f *MessageFeed) Subscribe(ctx context.Context, conversationID string, onEvent func(models.MessageEvent), onStatus func(Status)) (Handle, error) {
	h := &listenerHandle{done: make(chan struct{})}

	listener := pq.NewListener(f.dsn, feedMinReconnect, feedMaxReconnect, func(ev pq.ListenerEventType, err error) {
		if h.isClosed() {
			return
		}
		switch ev {
		case pq.ListenerEventConnected, pq.ListenerEventReconnected:
			onStatus(StatusSubscribed)
		case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
			if err != nil {
				log.Printf("pgfeed listener event %d: %v", ev, err)
			}
			onStatus(StatusChannelError)
		}
	})

	if err := listener.Listen(f.channel); err != nil {
		_ = listener.Close()
		return nil, err
	}
	h.listener = listener
	onStatus(StatusSubscribed)

	go func() {
		for {
			select {
			case <-h.done:
				return
			case n, ok := <-listener.Notify:
				if !ok {
					if !h.isClosed() {
						onStatus(StatusChannelError)
					}
					return
				}
				if n == nil {
					// Reconnect marker; events in the gap are the
					// broadcast channel's problem.
					continue
				}
				var msg models.Message
				if err := json.Unmarshal([]byte(n.Extra), &msg); err != nil {
					log.Printf("pgfeed payload decode failed: %v", err)
					continue
				}
				if msg.ConversationID != conversationID || h.isClosed() {
					continue
				}
				onEvent(models.MessageEvent{Kind: models.EventInsert, Message: msg})
			case <-time.After(feedPingInterval):
				go func() {
					if err := listener.Ping(); err != nil && !h.isClosed() {
						onStatus(StatusChannelError)
					}
				}()
			}
		}
	}()

	return h, nil
}

// NotificationFeed watches the notifications table for one user. It is
// a single-channel subscription: notifications are a lower-priority
// path and need no broadcast redundancy.
type NotificationFeed struct {
	dsn     string
	channel string
}

// NewNotificationFeed constructs a NotificationFeed over the given DSN.
func NewNotificationFeed(dsn string) *NotificationFeed {
	return &NotificationFeed{dsn: dsn, channel: db.NotificationsFeedChannel}
}

// Subscribe opens a listener delivering the user's new notifications.
func (f *NotificationFeed) Subscribe(ctx context.Context, userID string, onNotification func(models.Notification), onStatus func(Status)) (Handle, error) {
	h := &listenerHandle{done: make(chan struct{})}

	listener := pq.NewListener(f.dsn, feedMinReconnect, feedMaxReconnect, func(ev pq.ListenerEventType, err error) {
		if h.isClosed() {
			return
		}
		switch ev {
		case pq.ListenerEventConnected, pq.ListenerEventReconnected:
			onStatus(StatusSubscribed)
		case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
			onStatus(StatusChannelError)
		}
	})

	if err := listener.Listen(f.channel); err != nil {
		_ = listener.Close()
		return nil, err
	}
	h.listener = listener
	onStatus(StatusSubscribed)

	go func() {
		for {
			select {
			case <-h.done:
				return
			case n, ok := <-listener.Notify:
				if !ok {
					if !h.isClosed() {
						onStatus(StatusChannelError)
					}
					return
				}
				if n == nil {
					continue
				}
				var notif models.Notification
				if err := json.Unmarshal([]byte(n.Extra), &notif); err != nil {
					log.Printf("notification feed payload decode failed: %v", err)
					continue
				}
				if notif.UserID != userID || h.isClosed() {
					continue
				}
				onNotification(notif)
			case <-time.After(feedPingInterval):
				go func() {
					if err := listener.Ping(); err != nil && !h.isClosed() {
						onStatus(StatusChannelError)
					}
				}()
			}
		}
	}()

	return h, nil
}

type listenerHandle struct {
	listener *pq.Listener
	done     chan struct{}
	once     sync.Once
}

func (h *listenerHandle) Close() error {
	var err error
	h.once.Do(func() {
		close(h.done)
		if h.listener != nil {
			err = h.listener.Close()
		}
	})
	return err
}

func (h *listenerHandle) isClosed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
