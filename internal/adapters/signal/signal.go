package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Mayank7805/QuickChat/internal/app"
	"github.com/Mayank7805/QuickChat/internal/config"
	"github.com/Mayank7805/QuickChat/internal/core"
	"github.com/Mayank7805/QuickChat/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// SignalWSController owns the websocket endpoint: it upgrades incoming
// connections, binds them to user identities on user_join, and feeds
// call signaling into the router.
type SignalWSController struct {
	Cfg      *config.Config
	Presence *app.Registry
	Router   *app.Router
	Limiter  *app.CallRateLimiter
	Table    *ConnTable
}

func NewSignalWSController(cfg *config.Config, presence *app.Registry, router *app.Router, limiter *app.CallRateLimiter, table *ConnTable) *SignalWSController {
	return &SignalWSController{
		Cfg:      cfg,
		Presence: presence,
		Router:   router,
		Limiter:  limiter,
		Table:    table,
	}
}

// WsSignalConn is one live client connection. Outbound frames go through
// a bounded queue; a client that cannot keep up gets frames dropped
// rather than stalling the relay.
type WsSignalConn struct {
	id   core.ConnID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
	userID domain.UserID
}

func (c *WsSignalConn) ID() core.ConnID { return c.id }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *WsSignalConn) bind(userID domain.UserID) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// BoundUser implements core.SignalConnection.
func (c *WsSignalConn) BoundUser() domain.UserID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// ConnTable indexes live connections by ConnID. It holds them as
// core.SignalConnection and implements the router's Sender and the
// status notifier's Fanout on top of that.
type ConnTable struct {
	mu    sync.RWMutex
	conns map[core.ConnID]core.SignalConnection
}

func NewConnTable() *ConnTable {
	return &ConnTable{conns: make(map[core.ConnID]core.SignalConnection)}
}

func (t *ConnTable) Add(c core.SignalConnection) {
	t.mu.Lock()
	t.conns[c.ID()] = c
	t.mu.Unlock()
}

func (t *ConnTable) Remove(id core.ConnID) {
	t.mu.Lock()
	delete(t.conns, id)
	t.mu.Unlock()
}

func (t *ConnTable) Get(id core.ConnID) (core.SignalConnection, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conns[id]
	return c, ok
}

// Send implements app.Sender.
func (t *ConnTable) Send(id core.ConnID, frame core.Frame) error {
	c, ok := t.Get(id)
	if !ok {
		return errors.New("no such connection")
	}
	return c.TrySend(frame)
}

// Fanout implements app.Fanout: best-effort delivery to every live
// connection not bound to the excluded user.
func (t *ConnTable) Fanout(exclude domain.UserID, frame core.Frame) {
	t.mu.RLock()
	conns := make([]core.SignalConnection, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.RUnlock()

	for _, c := range conns {
		if exclude != "" && c.BoundUser() == exclude {
			continue
		}
		if err := c.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "signal").
				Str("conn_id", string(c.ID())).Msg("fanout drop")
		}
	}
}

// CloseAll tears down every live connection. Used on server shutdown.
func (t *ConnTable) CloseAll() {
	t.mu.Lock()
	conns := make([]core.SignalConnection, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.conns = make(map[core.ConnID]core.SignalConnection)
	t.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and starts the connection's pumps.
// The connection stays anonymous until the client announces itself with
// user_join; disconnecting before that is a presence no-op.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	connID := core.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn_id", string(connID)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		id:   connID,
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	ctl.Table.Add(conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, conn)
}
