package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stereoloc/locator/internal/storage"
	"github.com/stereoloc/locator/pkg/core"
	"github.com/stereoloc/locator/pkg/streaming"
)

// Compile-time interface check.
var _ storage.Backend = (*Backend)(nil)

type serverOpts struct {
	ackFixes bool
	// dropFirst closes the first connection right after its first fix.
	dropFirst bool
}

// testServer creates an httptest server that upgrades to WebSocket,
// records received messages, and acks hello and bye.
func testServer(t *testing.T, opts serverOpts) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ml.setSecret(r.URL.Query().Get("secret"))
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()
		first := ml.connect() == 1

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			ack := streaming.AckMessage{Type: streaming.TypeAck, For: env.Type}
			switch env.Type {
			case streaming.TypeHello, streaming.TypeBye:
			case streaming.TypeFix:
				if opts.dropFirst && first {
					return
				}
				if !opts.ackFixes {
					continue
				}
				var fix streaming.FixPayload
				if err := json.Unmarshal(env.Payload, &fix); err != nil {
					continue
				}
				ack.ID = fix.AttemptID
			default:
				continue
			}
			data, _ := json.Marshal(ack)
			if err := c.WriteMessage(ws.TextMessage, data); err != nil {
				return
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu       sync.Mutex
	secret   string
	conns    int
	messages []streaming.Envelope
}

func (m *messageLog) setSecret(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = s
}

func (m *messageLog) connect() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns++
	return m.conns
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) all() []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]streaming.Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func (m *messageLog) count(msgType string) int {
	n := 0
	for _, env := range m.all() {
		if env.Type == msgType {
			n++
		}
	}
	return n
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHelloAndBye(t *testing.T) {
	srv, ml := testServer(t, serverOpts{})
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "test"}, core.Site{Name: "roof", Baseline: 0.5}, nil)
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())

	msgs := ml.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, streaming.TypeHello, msgs[0].Type)
	assert.Equal(t, streaming.TypeBye, msgs[1].Type)

	var hello streaming.HelloPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &hello))
	assert.Equal(t, "roof", hello.SiteName)
	assert.Equal(t, 0.5, hello.Baseline)

	ml.mu.Lock()
	assert.Equal(t, "test", ml.secret)
	ml.mu.Unlock()
}

func TestRecordFix(t *testing.T) {
	srv, ml := testServer(t, serverOpts{})
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "s"}, core.Site{Name: "roof"}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.RecordFix(&core.Fix{
		AttemptID: "a1",
		Time:      time.UnixMilli(1000),
		Position:  core.Coordinate3D{X: 0, Y: 2, Z: 0},
	}))
	assert.Error(t, b.RecordFix(nil))

	var fix streaming.FixPayload
	require.Eventually(t, func() bool {
		for _, m := range ml.all() {
			if m.Type == streaming.TypeFix {
				return json.Unmarshal(m.Payload, &fix) == nil
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, "a1", fix.AttemptID)
	assert.Equal(t, int64(1000), fix.Time)
	assert.Equal(t, 2.0, fix.Y)
}

func TestInit_DialFailure(t *testing.T) {
	b := New(Config{URL: "ws://127.0.0.1:1/stream"}, core.Site{}, nil)
	assert.Error(t, b.Init())
	assert.NoError(t, b.Close())
}

func TestInit_InvalidURL(t *testing.T) {
	b := New(Config{URL: "://bad"}, core.Site{}, nil)
	assert.Error(t, b.Init())
}

func TestEnvelopeSerialization(t *testing.T) {
	data, err := marshalEnvelope(streaming.TypeHello, streaming.HelloPayload{SiteName: "x", Baseline: 2})
	require.NoError(t, err)

	var decoded streaming.Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, streaming.TypeHello, decoded.Type)

	var hp streaming.HelloPayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &hp))
	assert.Equal(t, "x", hp.SiteName)
	assert.Equal(t, 2.0, hp.Baseline)
}

func TestRecordFix_AckSettlesFix(t *testing.T) {
	srv, _ := testServer(t, serverOpts{ackFixes: true})
	defer srv.Close()

	b := New(Config{URL: wsURL(srv)}, core.Site{Name: "roof"}, discardLogger())
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.RecordFix(&core.Fix{AttemptID: "a1", Time: time.UnixMilli(1)}))
	require.NoError(t, b.RecordFix(&core.Fix{AttemptID: "a2", Time: time.UnixMilli(2)}))

	assert.Eventually(t, func() bool { return b.unackedCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestRecordFix_ReplayedAfterReconnect(t *testing.T) {
	srv, ml := testServer(t, serverOpts{dropFirst: true})
	defer srv.Close()

	b := New(Config{URL: wsURL(srv)}, core.Site{Name: "roof"}, discardLogger())
	b.backoff = 10 * time.Millisecond
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordFix(&core.Fix{AttemptID: "a1", Time: time.UnixMilli(1)}))

	// the first connection drops on the fix, the second gets hello and the fix again
	require.Eventually(t, func() bool {
		return ml.count(streaming.TypeHello) == 2 && ml.count(streaming.TypeFix) == 2
	}, 5*time.Second, 10*time.Millisecond)

	msgs := ml.all()
	assert.Equal(t, streaming.TypeHello, msgs[2].Type, "hello must precede the replayed fix")
	var fix streaming.FixPayload
	require.NoError(t, json.Unmarshal(msgs[3].Payload, &fix))
	assert.Equal(t, "a1", fix.AttemptID)

	// never acknowledged
	assert.Equal(t, 1, b.unackedCount())
	assert.NoError(t, b.Close())
}

func TestRecordFix_ReplayQueueBounded(t *testing.T) {
	b := New(Config{}, core.Site{}, discardLogger())
	for i := range maxUnacked + 1 {
		require.NoError(t, b.RecordFix(&core.Fix{AttemptID: strconv.Itoa(i)}))
	}

	assert.Equal(t, maxUnacked, b.unackedCount())
	b.mu.Lock()
	assert.Equal(t, "1", b.unacked[0].attemptID, "oldest fix must be evicted")
	b.mu.Unlock()

	b.acknowledge("unknown")
	assert.Equal(t, maxUnacked, b.unackedCount())
	b.acknowledge("500")
	assert.Equal(t, maxUnacked-1, b.unackedCount())
}

func TestSendChannelFullDrops(t *testing.T) {
	b := New(Config{}, core.Site{}, discardLogger())
	for range sendChSize + 5 {
		b.send([]byte("x"))
	}
	assert.Len(t, b.sendCh, sendChSize)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
