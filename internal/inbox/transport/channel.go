// Package transport owns the persistent push connection: one websocket per
// session, delivering inbound message events with silent background
// reconnection.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wanderdesk/wanderdesk/internal/inbox"
	"github.com/wanderdesk/wanderdesk/internal/logging"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxFrameSize      = 64 * 1024
	defaultBufferSize = 256
	defaultReconnect  = 2 * time.Second
)

// ErrChannelClosed is returned by Connect on a channel already released by
// Close. Channels are single-use; dial a new one to reconnect.
var ErrChannelClosed = errors.New("push channel closed")

type Config struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL   string
	Token string
	// ReconnectInterval is the pause between reconnect attempts.
	ReconnectInterval time.Duration
	// Buffer sizes the event channel.
	Buffer int
	// Dialer overrides the default websocket dialer (tests).
	Dialer *websocket.Dialer
}

// Channel is the push event stream for one session. Connect opens the
// socket and starts the read loop; Events yields inbound records until
// Close. Transient connection loss triggers background reconnection; events
// missed during a gap are not recovered — the reconciliation engine absorbs
// any re-deliveries instead.
type Channel struct {
	url       string
	token     string
	reconnect time.Duration
	dialer    *websocket.Dialer
	log       zerolog.Logger

	events chan inbox.Event

	mu        sync.Mutex
	cancel    context.CancelFunc
	connected bool
	closed    bool
	done      chan struct{}
}

func Dial(cfg Config) *Channel {
	reconnect := cfg.ReconnectInterval
	if reconnect <= 0 {
		reconnect = defaultReconnect
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Channel{
		url:       cfg.URL,
		token:     cfg.Token,
		reconnect: reconnect,
		dialer:    dialer,
		log:       logging.Component("transport"),
		events:    make(chan inbox.Event, buffer),
	}
}

// Connect establishes the socket and starts pumping events. The first dial
// is synchronous so a bad endpoint surfaces immediately; later drops are
// retried in the background. Calling Connect on a live channel is a no-op;
// after Close the channel is spent and Connect returns ErrChannelClosed.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.connected = true
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		defer close(c.events)
		c.run(runCtx, conn)
	}()
	return nil
}

// Events returns the inbound event stream. The channel is closed by Close.
func (c *Channel) Events() <-chan inbox.Event {
	return c.events
}

// Close releases the socket and ends the event stream.
func (c *Channel) Close() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.connected = false
	c.closed = true
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// run owns the connection lifecycle: read until failure, then silently
// redial on a fixed interval until the context ends.
func (c *Channel) run(ctx context.Context, conn *websocket.Conn) {
	for {
		c.readLoop(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		c.log.Debug().Str("url", c.url).Msg("push channel dropped, reconnecting")

		next, err := c.redial(ctx)
		if err != nil {
			return
		}
		conn = next
	}
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go pingLoop(ctx, conn, stopPing)

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var ev inbox.Event
		if err := json.Unmarshal(frame, &ev); err != nil {
			c.log.Debug().Err(err).Msg("skipping malformed push frame")
			continue
		}
		if ev.ID == "" || ev.ConversationID == "" {
			c.log.Debug().Msg("skipping push frame without ids")
			continue
		}

		select {
		case c.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func pingLoop(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-stop:
			return
		case <-ctx.Done():
			// Unblock the read loop promptly on shutdown.
			_ = conn.Close()
			return
		}
	}
}

func (c *Channel) redial(ctx context.Context) (*websocket.Conn, error) {
	ticker := time.NewTicker(c.reconnect)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			conn, err := c.dial(ctx)
			if err == nil {
				c.log.Debug().Str("url", c.url).Msg("push channel reconnected")
				return conn, nil
			}
		}
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	return conn, err
}
