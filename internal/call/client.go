package call

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Mayank7805/QuickChat/internal/domain"
	"github.com/Mayank7805/QuickChat/internal/protocol"
)

const (
	clientWriteWait    = 5 * time.Second
	clientPingInterval = 30 * time.Second
	reconnectMin       = time.Second
	reconnectMax       = 30 * time.Second
)

var ErrClientClosed = errors.New("signaling client closed")

// Client maintains the websocket to the relay. It re-announces the
// user's identity after every (re)connect, so presence survives
// signaling blips. Implements Signaler.
type Client struct {
	url    string
	userID domain.UserID

	onEvent func(protocol.Event)
	onDown  func(error)

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(url string, userID domain.UserID, onEvent func(protocol.Event)) *Client {
	return &Client{
		url:     url,
		userID:  userID,
		onEvent: onEvent,
		send:    make(chan []byte, 64),
		done:    make(chan struct{}),
	}
}

// OnDown registers a callback fired each time the connection drops. Live
// calls should be torn down there: the relay forgets this client's
// presence on disconnect, so in-flight signaling is gone.
func (c *Client) OnDown(fn func(error)) { c.onDown = fn }

// Send queues one event for delivery. It never blocks: a full queue
// means the link is stalled and the frame is dropped with an error.
func (c *Client) Send(ev protocol.Event) error {
	frame, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	if c.closed() {
		return ErrClientClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errors.New("signaling send queue full")
	}
}

// Run dials and serves the connection until ctx is cancelled or Close is
// called, reconnecting with capped exponential backoff in between.
func (c *Client) Run(ctx context.Context) {
	backoff := reconnectMin
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		err := c.runConn(ctx)
		if ctx.Err() != nil || c.closed() {
			return
		}
		if c.onDown != nil {
			c.onDown(err)
		}
		log.Warn().Err(err).Str("module", "signaling").
			Dur("retry_in", backoff).Msg("connection lost")

		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

func (c *Client) runConn(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	join, err := protocol.Encode(protocol.UserJoin{UserID: c.userID})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		return err
	}
	log.Info().Str("module", "signaling").
		Str("user_id", string(c.userID)).Msg("joined")

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.writeLoop(connCtx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, err := protocol.Decode(data)
		if err != nil {
			log.Debug().Err(err).Str("module", "signaling").Msg("bad frame")
			continue
		}
		if c.onEvent != nil {
			c.onEvent(ev)
		}
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) {
	ping := time.NewTicker(clientPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(clientWriteWait))
			return
		case frame := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				// Read loop observes the broken connection and returns.
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close stops Run permanently.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
