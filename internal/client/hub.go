package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Factory 为一个用户创建会话（尚未 Start）
type Factory func(ctx context.Context, userID, token string) (*Session, error)

// Hub 用户 id -> 会话
type Hub struct {
	factory Factory
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	group    singleflight.Group

	idleTimeout   time.Duration
	checkInterval time.Duration
	startTimeout  time.Duration
}

// DefaultStartTimeout 创建并启动一个会话的最长时间
const DefaultStartTimeout = 15 * time.Second

// NewHub 创建会话注册表
func NewHub(factory Factory, idleTimeout, checkInterval time.Duration, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	if checkInterval <= 0 {
		checkInterval = time.Minute
	}
	return &Hub{
		factory:       factory,
		logger:        logger,
		sessions:      make(map[string]*Session),
		idleTimeout:   idleTimeout,
		startTimeout:  DefaultStartTimeout,
		checkInterval: checkInterval,
	}
}

// Acquire 返回用户的会话，不存在或凭证已更换时创建新会话。
// 同一用户的并发调用只会创建一个会话。
func (h *Hub) Acquire(ctx context.Context, userID, token string) (*Session, error) {
	if s := h.lookup(userID, token); s != nil {
		s.Touch()
		return s, nil
	}

	v, err, _ := h.group.Do(userID, func() (interface{}, error) {
		if s := h.lookup(userID, token); s != nil {
			return s, nil
		}

		// 创建过程由所有等待者共享，不跟随发起请求取消
		startCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.startTimeout)
		defer cancel()

		s, err := h.factory(startCtx, userID, token)
		if err != nil {
			return nil, err
		}
		if err := s.Start(startCtx); err != nil {
			s.Close()
			return nil, err
		}

		h.mu.Lock()
		old := h.sessions[userID]
		h.sessions[userID] = s
		h.mu.Unlock()

		if old != nil {
			h.logger.Info("Replacing session with new credential", "user_id", userID, "old_session_id", old.ID())
			old.Close()
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	s := v.(*Session)
	s.Touch()
	return s, nil
}

func (h *Hub) lookup(userID, token string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[userID]
	if !ok || s.Token() != token {
		return nil
	}
	return s
}

// Get 按用户 id 获取会话
func (h *Hub) Get(userID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[userID]
}

// Remove 关闭并移除会话
func (h *Hub) Remove(userID string) {
	h.mu.Lock()
	s, ok := h.sessions[userID]
	delete(h.sessions, userID)
	h.mu.Unlock()

	if ok {
		s.Close()
	}
}

// Count 在线会话数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Sessions 所有会话（用于空闲检测）
func (h *Hub) Sessions() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// RunReaper 定期关闭空闲会话（阻塞，应在 goroutine 中调用）
func (h *Hub) RunReaper(ctx context.Context) error {
	ticker := time.NewTicker(h.checkInterval)
	defer ticker.Stop()

	h.logger.Info("Session reaper started",
		"idle_timeout", h.idleTimeout,
		"check_interval", h.checkInterval)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Session reaper stopped")
			return nil
		case <-ticker.C:
			h.reap(time.Now())
		}
	}
}

func (h *Hub) reap(now time.Time) int {
	reaped := 0
	for _, s := range h.Sessions() {
		if now.Sub(s.LastActive()) <= h.idleTimeout {
			continue
		}

		h.mu.Lock()
		// 检查期间可能已被替换
		if h.sessions[s.UserID()] == s {
			delete(h.sessions, s.UserID())
		}
		h.mu.Unlock()

		h.logger.Debug("Session idle timeout",
			"session_id", s.ID(),
			"user_id", s.UserID(),
			"last_active", s.LastActive())
		s.Close()
		reaped++
	}

	if reaped > 0 {
		h.logger.Info("Idle sessions reaped", "count", reaped, "remaining", h.Count())
	}
	return reaped
}

// CloseAll 关闭所有会话
func (h *Hub) CloseAll() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	h.logger.Info("All sessions closed", "count", len(sessions))
}
