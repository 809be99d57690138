package live

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeConn 按顺序返回预置帧，读完后阻塞到 Close
type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn(frames ...string) *fakeConn {
	c := &fakeConn{
		frames: make(chan []byte, len(frames)),
		closed: make(chan struct{}),
	}
	for _, f := range frames {
		c.frames <- []byte(f)
	}
	return c
}

func (c *fakeConn) ReadFrame() ([]byte, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeTransport struct {
	conn  *fakeConn
	err   error
	dials atomic.Int32
}

func (t *fakeTransport) Dial(ctx context.Context) (Conn, error) {
	t.dials.Add(1)
	if t.err != nil {
		return nil, t.err
	}
	return t.conn, nil
}

func TestChannel_PublishesDecodedFrames(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn := newFakeConn(
		`{"type":"notification","payload":{"id":"n1"}}`,
		`{"type":"unknown","payload":{}}`,
		`not json`,
		`{"type":"private_message","payload":{"id":"m1"}}`,
	)
	bus := NewBus(nil)
	ch := NewChannel(&fakeTransport{conn: conn}, bus, nil)

	var mu sync.Mutex
	var got []Category
	record := func(ev Event) {
		mu.Lock()
		got = append(got, ev.Category)
		mu.Unlock()
	}
	bus.Subscribe(CategoryNotification, record)
	bus.Subscribe(CategoryPrivateMessage, record)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, StateConnected, ch.State())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, StateDisconnected, ch.State())
	assert.Equal(t, []Category{CategoryNotification, CategoryPrivateMessage}, got)
}

func TestChannel_StateTransitions(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn := newFakeConn()
	ch := NewChannel(&fakeTransport{conn: conn}, NewBus(nil), nil)

	var mu sync.Mutex
	var states []State
	ch.OnStateChange(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	done := make(chan error, 1)
	go func() { done <- ch.Run(context.Background()) }()

	assert.Eventually(t, func() bool { return ch.State() == StateConnected }, time.Second, 5*time.Millisecond)

	// 服务端断开
	conn.Close()
	err := <-done
	assert.ErrorIs(t, err, io.EOF)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateConnected, StateDisconnected}, states)
}

func TestChannel_DialFailure(t *testing.T) {
	dialErr := errors.New("refused")
	ch := NewChannel(&fakeTransport{err: dialErr}, NewBus(nil), nil)

	err := ch.Run(context.Background())
	assert.ErrorIs(t, err, dialErr)
	assert.Equal(t, StateDisconnected, ch.State())
}

func TestChannel_CloseStopsRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := &fakeTransport{conn: newFakeConn()}
	ch := NewChannel(tr, NewBus(nil), nil)

	done := make(chan error, 1)
	go func() { done <- ch.Run(context.Background()) }()
	assert.Eventually(t, func() bool { return ch.State() == StateConnected }, time.Second, 5*time.Millisecond)

	ch.Close()
	require.NoError(t, <-done)
	assert.True(t, ch.Closed())

	assert.ErrorIs(t, ch.Run(context.Background()), ErrChannelClosed)
	assert.Equal(t, int32(1), tr.dials.Load())
}

func TestChannel_UnsubscribeAllKeepsConnection(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn := newFakeConn()
	bus := NewBus(nil)
	ch := NewChannel(&fakeTransport{conn: conn}, bus, nil)
	sub := bus.Subscribe(CategoryNotification, func(Event) {})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()
	assert.Eventually(t, func() bool { return ch.State() == StateConnected }, time.Second, 5*time.Millisecond)

	sub.Unsubscribe()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateConnected, ch.State())

	cancel()
	require.NoError(t, <-done)
}

func TestWebSocketTransport(t *testing.T) {
	defer goleak.VerifyNone(t)

	upgrader := websocket.Upgrader{}
	var gotCookie atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil {
			gotCookie.Store(c.Value)
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		frame, _ := EncodeFrame(CategoryNotification, map[string]string{"id": "n1"})
		ws.WriteMessage(websocket.TextMessage, frame)
		// 保持连接直到客户端关闭
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	tr := &WebSocketTransport{
		URL:          "ws" + strings.TrimPrefix(server.URL, "http"),
		CookieName:   "session",
		Token:        "tok-1",
		PingInterval: 20 * time.Millisecond,
		PongTimeout:  200 * time.Millisecond,
	}

	bus := NewBus(nil)
	received := make(chan Event, 1)
	bus.Subscribe(CategoryNotification, func(ev Event) { received <- ev })

	ch := NewChannel(tr, bus, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()

	select {
	case ev := <-received:
		assert.Equal(t, CategoryNotification, ev.Category)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
	assert.Equal(t, "tok-1", gotCookie.Load())

	// 多个 ping 周期后连接仍然存活
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateConnected, ch.State())

	cancel()
	require.NoError(t, <-done)
}

func TestBuildUserEventsSubject(t *testing.T) {
	assert.Equal(t, "social.user.u42.events", BuildUserEventsSubject("u42"))
}
