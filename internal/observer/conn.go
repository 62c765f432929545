package observer

import (
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/stereoloc/locator/internal/rendezvous"
)

const (
	sendChSize     = 16
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// conn is one observer connection. Reads happen on the serving goroutine,
// writes go through a single write goroutine.
type conn struct {
	role   rendezvous.Role
	ws     *ws.Conn
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once

	connectedAt time.Time
	logger      *slog.Logger
}

func newConn(c *ws.Conn, role rendezvous.Role, logger *slog.Logger) *conn {
	return &conn{
		role:        role,
		ws:          c,
		sendCh:      make(chan []byte, sendChSize),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
		logger:      logger.With("role", role.String(), "remote", c.RemoteAddr().String()),
	}
}

// send pushes data to the write loop. Non-blocking; drops if channel full.
func (c *conn) send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.sendCh <- data:
		return true
	default:
		c.logger.Warn("Observer send channel full, dropping message")
		return false
	}
}

// writeLoop drains sendCh and keeps the connection alive with pings.
func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("Observer SetWriteDeadline error", "error", err)
				c.shutdown()
				return
			}
			if err := c.ws.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("Observer write error", "error", err)
				c.shutdown()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("Observer ping failed", "error", err)
				c.shutdown()
				return
			}
		}
	}
}

// readLoop hands every text frame to fn until the connection fails.
func (c *conn) readLoop(fn func(rendezvous.Role, []byte)) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, message, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
					c.logger.Warn("Observer read error", "error", err)
				}
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if msgType != ws.TextMessage {
			continue
		}
		fn(c.role, message)
	}
}

// shutdown stops the write loop and closes the socket once.
func (c *conn) shutdown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// close sends a close frame before shutting down.
func (c *conn) close() {
	_ = c.ws.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseGoingAway, "server shutdown"),
		time.Now().Add(writeWait),
	)
	c.shutdown()
}
