package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sudooom.social.client/internal/client"
	"sudooom.social.client/internal/middleware"
	"sudooom.social.client/internal/model"
	"sudooom.social.client/internal/store"
	"sudooom.social.client/internal/toast"
)

// 推送给浏览器的帧类型
const (
	FrameState         = "state"
	FrameConversations = "conversations"
	FrameToasts        = "toasts"
)

const (
	pushWriteWait  = 10 * time.Second
	pushPongWait   = 60 * time.Second
	pushPingPeriod = pushPongWait * 9 / 10
)

// PushFrame 推送帧
type PushFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// LiveHandler 浏览器推送通道
type LiveHandler struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewLiveHandler 创建推送处理器，allowedOrigins 为空或含 * 时不校验 Origin
func NewLiveHandler(allowedOrigins []string, logger *slog.Logger) *LiveHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Stream 升级为 websocket，推送 state / conversations / toasts 的最新快照
// GET /api/live
func (h *LiveHandler) Stream(c *gin.Context) {
	s := middleware.GetSession(c)

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Live upgrade failed", "user_id", s.UserID(), "error", err)
		return
	}

	p := newPusher(ws, s, h.logger)
	p.run()
}

// pusher 合并同类型的更新，只发送每种帧的最新快照
type pusher struct {
	ws      *websocket.Conn
	session *client.Session
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]any
	order   []string
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newPusher(ws *websocket.Conn, s *client.Session, logger *slog.Logger) *pusher {
	return &pusher{
		ws:      ws,
		session: s,
		logger:  logger.With("user_id", s.UserID(), "session_id", s.ID()),
		pending: make(map[string]any),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (p *pusher) run() {
	view := p.session.View()
	p.enqueue(FrameState, view.State)
	p.enqueue(FrameConversations, view.Conversations)
	p.enqueue(FrameToasts, view.Toasts)

	cancels := []func(){
		p.session.State().Watch(func(v store.View) { p.enqueue(FrameState, v) }),
		p.session.Conversations().Watch(func(items []model.ConversationPreview) { p.enqueue(FrameConversations, items) }),
		p.session.Toasts().Watch(func(entries []toast.Entry) { p.enqueue(FrameToasts, entries) }),
	}
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.writeLoop()
	}()

	p.readLoop()
	p.close()
	wg.Wait()
}

func (p *pusher) enqueue(typ string, payload any) {
	p.mu.Lock()
	if _, ok := p.pending[typ]; !ok {
		p.order = append(p.order, typ)
	}
	p.pending[typ] = payload
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *pusher) drain() []PushFrame {
	p.mu.Lock()
	defer p.mu.Unlock()

	frames := make([]PushFrame, 0, len(p.order))
	for _, typ := range p.order {
		raw, err := json.Marshal(p.pending[typ])
		if err != nil {
			p.logger.Error("Failed to encode push frame", "type", typ, "error", err)
			continue
		}
		frames = append(frames, PushFrame{Type: typ, Payload: raw})
	}
	p.pending = make(map[string]any)
	p.order = p.order[:0]
	return frames
}

// readLoop 读取浏览器消息（只用于保活和检测断开）
func (p *pusher) readLoop() {
	p.ws.SetReadLimit(4096)
	p.ws.SetReadDeadline(time.Now().Add(pushPongWait))
	p.ws.SetPongHandler(func(string) error {
		p.session.Touch()
		return p.ws.SetReadDeadline(time.Now().Add(pushPongWait))
	})

	for {
		if _, _, err := p.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.logger.Debug("Live push read error", "error", err)
			}
			return
		}
		p.session.Touch()
		p.ws.SetReadDeadline(time.Now().Add(pushPongWait))
	}
}

func (p *pusher) writeLoop() {
	ticker := time.NewTicker(pushPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
			for _, f := range p.drain() {
				p.ws.SetWriteDeadline(time.Now().Add(pushWriteWait))
				if err := p.ws.WriteJSON(f); err != nil {
					p.logger.Debug("Live push write failed", "error", err)
					p.ws.Close()
					return
				}
			}
		case <-ticker.C:
			p.ws.SetWriteDeadline(time.Now().Add(pushWriteWait))
			if err := p.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.ws.Close()
				return
			}
		}
	}
}

func (p *pusher) close() {
	p.once.Do(func() {
		close(p.done)
		p.ws.Close()
	})
}
