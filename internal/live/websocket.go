package live

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const maxFrameSize = 1 << 20

// WebSocketTransport 通过 websocket 连接后端事件端点
type WebSocketTransport struct {
	URL          string
	CookieName   string
	Token        string
	PingInterval time.Duration
	PongTimeout  time.Duration
	Dialer       *websocket.Dialer
}

// Dial 建立 websocket 连接，会话凭证放在 Cookie 头里
func (t *WebSocketTransport) Dial(ctx context.Context) (Conn, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := http.Header{}
	if t.Token != "" {
		name := t.CookieName
		if name == "" {
			name = "session"
		}
		header.Set("Cookie", (&http.Cookie{Name: name, Value: t.Token}).String())
	}

	ws, resp, err := dialer.DialContext(ctx, t.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", t.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", t.URL, err)
	}

	pingInterval := t.PingInterval
	if pingInterval <= 0 {
		pingInterval = 10 * time.Second
	}
	pongTimeout := t.PongTimeout
	if pongTimeout <= pingInterval {
		pongTimeout = pingInterval + pingInterval/2
	}

	c := &wsConn{
		ws:          ws,
		pongTimeout: pongTimeout,
		done:        make(chan struct{}),
	}
	ws.SetReadLimit(maxFrameSize)
	ws.SetReadDeadline(time.Now().Add(pongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	c.wg.Add(1)
	go c.pingLoop(pingInterval)

	return c, nil
}

type wsConn struct {
	ws          *websocket.Conn
	pongTimeout time.Duration
	done        chan struct{}
	once        sync.Once
	wg          sync.WaitGroup
}

func (c *wsConn) pingLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(interval)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.ws.Close()
				return
			}
		}
	}
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		// 任何数据帧都说明连接存活
		c.ws.SetReadDeadline(time.Now().Add(c.pongTimeout))
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
		c.wg.Wait()
	})
	return err
}
