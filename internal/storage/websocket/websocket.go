package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/stereoloc/locator/pkg/core"
	"github.com/stereoloc/locator/pkg/streaming"
)

const (
	sendChSize   = 10_000
	ackChSize    = 16
	maxUnacked   = 1_000
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams fixes over WebSocket to an upstream collector.
// The collector acknowledges each fix by attempt ID. Fixes still
// unacknowledged when the connection drops are sent again after the
// reconnect, right behind the replayed hello, so delivery is at least once.
// It implements storage.Backend but neither storage.Reader nor storage.Uploadable.
type Backend struct {
	cfg     Config
	site    core.Site
	logger  *slog.Logger
	backoff time.Duration

	sendCh chan []byte
	acks   chan streaming.AckMessage
	done   chan struct{}

	mu      sync.Mutex
	sess    *session
	closed  bool
	hello   []byte
	unacked []pendingFix
}

type pendingFix struct {
	attemptID string
	frame     []byte
}

// session is one dialled connection. Its read and write loops stop together
// once either of them fails.
type session struct {
	conn *ws.Conn
	lost chan struct{}
	once sync.Once
}

func newSession(conn *ws.Conn) *session {
	return &session{conn: conn, lost: make(chan struct{})}
}

// drop closes the connection and reports whether this call did so.
func (s *session) drop() bool {
	dropped := false
	s.once.Do(func() {
		close(s.lost)
		_ = s.conn.Close()
		dropped = true
	})
	return dropped
}

// New creates a new WebSocket storage backend.
func New(cfg Config, site core.Site, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		cfg:     cfg,
		site:    site,
		logger:  logger,
		backoff: time.Second,
		sendCh:  make(chan []byte, sendChSize),
		acks:    make(chan streaming.AckMessage, ackChSize),
		done:    make(chan struct{}),
	}
}

// Init connects to the WebSocket server and announces the site.
func (b *Backend) Init() error {
	hello, err := marshalEnvelope(streaming.TypeHello, streaming.HelloPayload{
		SiteName: b.site.Name,
		Baseline: b.site.Baseline,
	})
	if err != nil {
		return err
	}

	conn, err := b.dial()
	if err != nil {
		return err
	}
	s := newSession(conn)

	b.mu.Lock()
	b.sess = s
	b.hello = hello
	b.mu.Unlock()

	go b.writeLoop(s)
	go b.readLoop(s)

	return b.sendAndWait(hello, streaming.TypeHello)
}

// Close says goodbye and disconnects from the WebSocket server.
func (b *Backend) Close() error {
	b.mu.Lock()
	connected := b.sess != nil && !b.closed
	b.mu.Unlock()

	var byeErr error
	if connected {
		bye, err := marshalEnvelope(streaming.TypeBye, nil)
		if err != nil {
			return err
		}
		if byeErr = b.sendAndWait(bye, streaming.TypeBye); byeErr != nil {
			b.logger.Warn("Upstream did not acknowledge bye", "error", byeErr)
		}
	}
	b.shutdown()
	return byeErr
}

// RecordFix queues f for the upstream and keeps it until the collector
// acknowledges it. Only the newest maxUnacked fixes are kept for replay.
func (b *Backend) RecordFix(f *core.Fix) error {
	if f == nil {
		return errors.New("record fix: nil fix")
	}
	frame, err := marshalEnvelope(streaming.TypeFix, streaming.NewFixPayload(*f))
	if err != nil {
		return err
	}

	var evicted string
	b.mu.Lock()
	if len(b.unacked) == maxUnacked {
		evicted = b.unacked[0].attemptID
		b.unacked = b.unacked[1:]
	}
	b.unacked = append(b.unacked, pendingFix{attemptID: f.AttemptID, frame: frame})
	b.mu.Unlock()

	if evicted != "" {
		b.logger.Warn("Unacknowledged fix dropped from replay queue", "attemptID", evicted)
	}
	b.send(frame)
	return nil
}

// unackedCount returns how many fixes wait for an upstream ack.
func (b *Backend) unackedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.unacked)
}

func (b *Backend) acknowledge(attemptID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, p := range b.unacked {
		if p.attemptID == attemptID {
			b.unacked = append(b.unacked[:i], b.unacked[i+1:]...)
			return
		}
	}
}

// dial connects with the secret as query parameter.
func (b *Backend) dial() (*ws.Conn, error) {
	u, err := url.Parse(b.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", b.cfg.Secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// writeLoop is the only writer of s.conn apart from the close frame.
func (b *Backend) writeLoop(s *session) {
	for {
		select {
		case <-b.done:
			return
		case <-s.lost:
			return
		case data := <-b.sendCh:
			err := s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err == nil {
				err = s.conn.WriteMessage(ws.TextMessage, data)
			}
			if err != nil {
				b.logger.Warn("WebSocket write error", "error", err)
				if s.drop() {
					go b.reconnect()
				}
				return
			}
		}
	}
}

// readLoop settles fix acks itself and hands every other ack to sendAndWait.
func (b *Backend) readLoop(s *session) {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-b.done:
				return
			default:
			}
			if s.drop() {
				b.logger.Warn("WebSocket read error", "error", err)
				go b.reconnect()
			}
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != streaming.TypeAck {
			b.logger.Debug("Non-ack message received", "raw", string(message))
			continue
		}
		if ack.For == streaming.TypeFix {
			b.acknowledge(ack.ID)
			continue
		}
		select {
		case b.acks <- ack:
		default:
			b.logger.Debug("Ack channel full, dropping", "for", ack.For)
		}
	}
}

// reconnect dials again with exponential backoff. The new connection first
// carries the hello and every unacknowledged fix, then the queued frames.
func (b *Backend) reconnect() {
	b.mu.Lock()
	b.sess = nil
	b.mu.Unlock()

	backoff := b.backoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-b.done:
			return
		case <-time.After(backoff):
		}

		b.logger.Info("Reconnecting to upstream", "attempt", attempt, "backoff", backoff)
		conn, err := b.dial()
		if err != nil {
			b.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		b.mu.Lock()
		replay := make([][]byte, 0, len(b.unacked)+1)
		if b.hello != nil {
			replay = append(replay, b.hello)
		}
		for _, p := range b.unacked {
			replay = append(replay, p.frame)
		}
		b.mu.Unlock()

		if err := writeAll(conn, replay); err != nil {
			b.logger.Warn("Replay after reconnect failed", "attempt", attempt, "error", err)
			_ = conn.Close()
			continue
		}

		s := newSession(conn)
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			_ = conn.Close()
			return
		}
		b.sess = s
		b.mu.Unlock()

		b.logger.Info("Upstream reconnected", "attempt", attempt, "replayed", len(replay))
		go b.writeLoop(s)
		go b.readLoop(s)
		return
	}

	b.logger.Error("Upstream reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

func writeAll(conn *ws.Conn, frames [][]byte) error {
	for _, data := range frames {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}

// send pushes data to the write loop. Non-blocking; drops if channel full.
func (b *Backend) send(data []byte) {
	select {
	case b.sendCh <- data:
	default:
		b.logger.Warn("WebSocket send channel full, dropping message")
	}
}

// sendAndWait sends data and blocks until the server acknowledges ackFor
// or ackTimeout expires.
func (b *Backend) sendAndWait(data []byte, ackFor string) error {
	b.send(data)

	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-b.acks:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-b.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

// shutdown sends a close frame and stops all goroutines.
func (b *Backend) shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.done)
	s := b.sess
	b.sess = nil
	pending := len(b.unacked)
	b.mu.Unlock()

	if pending > 0 {
		b.logger.Warn("Fixes not acknowledged by upstream", "count", pending)
	}
	if s != nil {
		_ = s.conn.WriteControl(ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(writeWait))
		s.drop()
	}
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
