package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"chat-backbone/internal/models"
)

const broadcastDialTimeout = 20 * time.Second

// Broadcast is the manual delivery half of the realtime layer: every
// stored message is also published to a topic exchange, and each
// session consumes it through its own uniquely-named, auto-deleted
// queue. The redundancy covers change-feed events lost in transit.
type Broadcast struct {
	url      string
	exchange string
}

// NewBroadcast constructs a Broadcast transport.
func NewBroadcast(url, exchange string) *Broadcast {
	return &Broadcast{url: url, exchange: exchange}
}

// Name implements Transport.
func (b *Broadcast) Name() string { return "broadcast" }

// RoutingKey returns the topic key carrying one conversation's
// messages. The publish side uses the same key.
func RoutingKey(conversationID string) string {
	return "conversation." + conversationID
}

// Subscribe binds a fresh ephemeral queue to the conversation's topic
// and starts consuming. Connection loss is reported through onStatus
// so the session can run its resubscribe sequence.
func (b *Broadcast) Subscribe(ctx context.Context, conversationID string, onEvent func(models.MessageEvent), onStatus func(Status)) (Handle, error) {
	conn, err := amqp.DialConfig(b.url, amqp.Config{Dial: amqp.DefaultDial(broadcastDialTimeout)})
	if err != nil {
		onStatus(StatusTimedOut)
		return nil, fmt.Errorf("broadcast dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("broadcast channel: %w", err)
	}

	if err := ch.ExchangeDeclare(b.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("broadcast exchange: %w", err)
	}

	// One throwaway queue per session so sessions never steal each
	// other's deliveries.
	queueName := fmt.Sprintf("msgs-bc-%s-%s", conversationID, uuid.NewString()[:8])
	queue, err := ch.QueueDeclare(queueName, false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("broadcast queue: %w", err)
	}

	if err := ch.QueueBind(queue.Name, RoutingKey(conversationID), b.exchange, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("broadcast bind: %w", err)
	}

	deliveries, err := ch.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("broadcast consume: %w", err)
	}

	h := &amqpHandle{conn: conn, ch: ch, closed: make(chan struct{})}
	onStatus(StatusSubscribed)

	closeNotify := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		for {
			select {
			case amqpErr := <-closeNotify:
				if amqpErr != nil && !h.isClosed() {
					log.Printf("broadcast connection lost conversation=%s: %v", conversationID, amqpErr)
					onStatus(StatusChannelError)
				}
				return
			case d, ok := <-deliveries:
				if !ok {
					if !h.isClosed() {
						onStatus(StatusChannelError)
					}
					return
				}
				var msg models.Message
				if err := json.Unmarshal(d.Body, &msg); err != nil {
					log.Printf("broadcast payload decode failed: %v", err)
					continue
				}
				if msg.ConversationID != conversationID || h.isClosed() {
					continue
				}
				onEvent(models.MessageEvent{Kind: models.EventInsert, Message: msg})
			}
		}
	}()

	return h, nil
}

type amqpHandle struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	once   sync.Once
	closed chan struct{}
}

func (h *amqpHandle) Close() error {
	var err error
	h.once.Do(func() {
		close(h.closed)
		_ = h.ch.Close()
		err = h.conn.Close()
	})
	return err
}

func (h *amqpHandle) isClosed() bool {
	select {
	case <-h.closed:
		return true
	default:
		return false
	}
}
