package realtime

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"chat-backbone/internal/models"
	"chat-backbone/internal/observability"
)

// SessionState describes the combined health of a session's channels.
type SessionState string

const (
	// StateConnecting means neither channel has confirmed yet.
	StateConnecting SessionState = "connecting"
	// StatePartial means exactly one channel has confirmed so far.
	StatePartial SessionState = "partial"
	// StateActive means both channels are confirmed.
	StateActive SessionState = "active"
	// StateDegraded means a previously-confirmed channel has failed and
	// is being recovered.
	StateDegraded SessionState = "degraded"
	// StateClosed is terminal, entered only by Unsubscribe.
	StateClosed SessionState = "closed"
)

// Config tunes the subscriber's recovery behavior.
type Config struct {
	// ResubscribeWait is the pause between releasing a failed channel
	// and re-subscribing it.
	ResubscribeWait time.Duration
	// HealthInterval is the period of the belt-and-suspenders check
	// that re-subscribes any channel flagged inactive.
	HealthInterval time.Duration
	// DedupSize bounds the recently-seen message id set.
	DedupSize int
}

// DefaultConfig matches the delivery layer's production tuning.
func DefaultConfig() Config {
	return Config{
		ResubscribeWait: 1200 * time.Millisecond,
		HealthInterval:  10 * time.Second,
		DedupSize:       512,
	}
}

// Subscriber opens dual-channel sessions: every conversation is watched
// through both the database change feed and the broadcast channel, and
// the two streams are merged and deduplicated before reaching the
// caller. Either channel alone is enough for delivery; running both
// covers the feed silently dropping events under bad network
// conditions.
type Subscriber struct {
	feed      Transport
	broadcast Transport
	cfg       Config
}

// NewSubscriber constructs a Subscriber over the two transports.
func NewSubscriber(feed, broadcast Transport, cfg Config) *Subscriber {
	def := DefaultConfig()
	if cfg.ResubscribeWait <= 0 {
		cfg.ResubscribeWait = def.ResubscribeWait
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = def.HealthInterval
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = def.DedupSize
	}
	return &Subscriber{feed: feed, broadcast: broadcast, cfg: cfg}
}

// Subscribe opens a session for one conversation. onMessage receives
// peer-originated inserts exactly once per message id. Channels that
// fail to open are retried by the health check rather than failing the
// subscribe.
func (s *Subscriber) Subscribe(conversationID, localUserID string, onMessage func(models.MessageEvent)) (*Session, error) {
	if conversationID == "" || onMessage == nil {
		return nil, errors.New("conversation id and callback required")
	}

	seen, err := lru.New[string, struct{}](s.cfg.DedupSize)
	if err != nil {
		return nil, err
	}

	session := &Session{
		conversationID: conversationID,
		localUserID:    localUserID,
		onMessage:      onMessage,
		cfg:            s.cfg,
		seen:           seen,
		done:           make(chan struct{}),
		channels: []*channelState{
			{transport: s.feed},
			{transport: s.broadcast},
		},
	}

	for _, cs := range session.channels {
		cs := cs
		session.markRetrying(cs)
		go func() {
			defer session.clearRetrying(cs)
			session.open(cs)
		}()
	}
	go session.healthLoop()

	observability.IncSessionActive()
	return session, nil
}

// channelState tracks one delivery path inside a session.
type channelState struct {
	transport Transport
	handle    Handle
	active    bool // currently confirmed
	confirmed bool // has confirmed at least once
	retrying  bool // a recovery attempt is in flight
}

// Session is the process-local binding of a conversation to its two
// live channels plus dedup state. It is created when a chat view opens
// and torn down by Unsubscribe.
type Session struct {
	conversationID string
	localUserID    string
	onMessage      func(models.MessageEvent)
	cfg            Config

	mu       sync.Mutex
	seen     *lru.Cache[string, struct{}]
	channels []*channelState
	closed   bool
	done     chan struct{}
}

// ConversationID returns the conversation this session watches.
func (s *Session) ConversationID() string {
	return s.conversationID
}

// State reports the session's combined channel health.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return StateClosed
	}
	active := 0
	confirmedLost := false
	for _, cs := range s.channels {
		if cs.active {
			active++
		} else if cs.confirmed {
			confirmedLost = true
		}
	}
	switch {
	case active == len(s.channels):
		return StateActive
	case confirmedLost:
		return StateDegraded
	case active > 0:
		return StatePartial
	default:
		return StateConnecting
	}
}

// Unsubscribe tears the session down: the closed flag is set first so
// in-flight retry loops stop, then both channel handles are released,
// tolerating errors from either. Idempotent.
func (s *Session) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	var handles []Handle
	for _, cs := range s.channels {
		if cs.handle != nil {
			handles = append(handles, cs.handle)
			cs.handle = nil
		}
		cs.active = false
	}
	s.mu.Unlock()

	for _, h := range handles {
		if err := h.Close(); err != nil {
			log.Printf("channel release failed for conversation %s: %v", s.conversationID, err)
		}
	}
	observability.DecSessionActive()
	log.Printf("realtime session closed conversation=%s", s.conversationID)
}

// deliver merges events from both channels. The callback runs under
// the session lock: a delivery in flight completes before Unsubscribe
// returns, and nothing is delivered after it.
func (s *Session) deliver(ev models.MessageEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if ev.Message.ID == "" || ev.Message.ConversationID != s.conversationID {
		return
	}
	// The sender already holds an optimistic local copy.
	if ev.Message.SenderID == s.localUserID {
		return
	}
	if dup, _ := s.seen.ContainsOrAdd(ev.Message.ID, struct{}{}); dup {
		observability.IncChannelEvent("session", "duplicate_dropped")
		return
	}
	s.onMessage(ev)
}

// open (re-)establishes one channel. Any stale handle is released
// before subscribing.
func (s *Session) open(cs *channelState) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	stale := cs.handle
	cs.handle = nil
	s.mu.Unlock()
	if stale != nil {
		_ = stale.Close()
	}

	handle, err := cs.transport.Subscribe(context.Background(), s.conversationID, s.deliver, func(st Status) {
		s.onStatus(cs, st)
	})
	if err != nil {
		log.Printf("%s subscribe failed conversation=%s: %v", cs.transport.Name(), s.conversationID, err)
		observability.IncChannelEvent(cs.transport.Name(), "subscribe_error")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = handle.Close()
		return
	}
	cs.handle = handle
	s.mu.Unlock()
}

// onStatus reacts to a channel's health reports. Errors trigger that
// channel's own release-wait-resubscribe sequence without touching the
// other channel.
func (s *Session) onStatus(cs *channelState, st Status) {
	observability.IncChannelEvent(cs.transport.Name(), string(st))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	switch st {
	case StatusSubscribed:
		cs.active = true
		cs.confirmed = true
		s.mu.Unlock()
		log.Printf("%s channel confirmed conversation=%s", cs.transport.Name(), s.conversationID)
	case StatusChannelError, StatusTimedOut:
		cs.active = false
		if cs.retrying {
			s.mu.Unlock()
			return
		}
		cs.retrying = true
		s.mu.Unlock()
		log.Printf("%s channel reported %s conversation=%s, resubscribing", cs.transport.Name(), st, s.conversationID)
		go func() {
			defer s.clearRetrying(cs)
			select {
			case <-s.done:
				return
			case <-time.After(s.cfg.ResubscribeWait):
			}
			s.open(cs)
		}()
	default:
		s.mu.Unlock()
	}
}

// healthLoop periodically re-subscribes any channel flagged inactive,
// independent of the error-triggered retries.
func (s *Session) healthLoop() {
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.checkHealth()
		}
	}
}

func (s *Session) checkHealth() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var stalled []*channelState
	for _, cs := range s.channels {
		if !cs.active && !cs.retrying {
			cs.retrying = true
			stalled = append(stalled, cs)
		}
	}
	s.mu.Unlock()

	for _, cs := range stalled {
		cs := cs
		log.Printf("%s channel inactive conversation=%s, health check resubscribing", cs.transport.Name(), s.conversationID)
		go func() {
			defer s.clearRetrying(cs)
			s.open(cs)
		}()
	}
}

func (s *Session) markRetrying(cs *channelState) {
	s.mu.Lock()
	cs.retrying = true
	s.mu.Unlock()
}

func (s *Session) clearRetrying(cs *channelState) {
	s.mu.Lock()
	cs.retrying = false
	s.mu.Unlock()
}
