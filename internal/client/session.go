package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"sudooom.social.client/internal/conversation"
	"sudooom.social.client/internal/live"
	"sudooom.social.client/internal/model"
	"sudooom.social.client/internal/store"
	"sudooom.social.client/internal/toast"
)

// Backend 会话用到的后端操作
type Backend interface {
	conversation.Fetcher
	CurrentUser(ctx context.Context) (*model.User, error)
	MarkConversationRead(ctx context.Context, interlocutorID string) error
}

// Options 会话参数
type Options struct {
	PageSize      int
	ToastDuration time.Duration
	ToastMax      int
	ReconnectWait time.Duration
	Logger        *slog.Logger
}

// View 推送给浏览器的会话全貌
type View struct {
	State         store.View                  `json:"state"`
	Conversations []model.ConversationPreview `json:"conversations"`
	HasMore       bool                        `json:"has_more"`
	Toasts        []toast.Entry               `json:"toasts"`
	Live          string                      `json:"live"`
}

// Session 一个已登录用户在本服务里的全部客户端状态
type Session struct {
	id        string
	userID    string
	token     string
	backend   Backend
	persister store.Persister
	logger    *slog.Logger
	reconnect time.Duration

	state   *store.State
	list    *conversation.List
	toasts  *toast.Queue
	bus     *live.Bus
	channel *live.Channel

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	subs       []*live.Subscription
	lastActive atomic.Int64
	startOnce  sync.Once
	closeOnce  sync.Once
}

// NewSession 创建会话，parent 结束时会话的后台任务随之结束
func NewSession(parent context.Context, userID, token string, backend Backend, transport live.Transport, persister store.Persister, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	logger = logger.With("session_id", id, "user_id", userID)

	reconnect := opts.ReconnectWait
	if reconnect <= 0 {
		reconnect = 3 * time.Second
	}

	state := store.New()
	bus := live.NewBus(logger)
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		id:        id,
		userID:    userID,
		token:     token,
		backend:   backend,
		persister: persister,
		logger:    logger,
		reconnect: reconnect,
		state:     state,
		bus:       bus,
		list: conversation.New(backend, state, userID,
			conversation.WithPageSize(opts.PageSize),
			conversation.WithLogger(logger)),
		toasts: toast.New(
			toast.WithDuration(opts.ToastDuration),
			toast.WithMaxEntries(opts.ToastMax),
			toast.WithLogger(logger)),
		channel: live.NewChannel(transport, bus, logger),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.Touch()
	return s
}

func (s *Session) ID() string                        { return s.id }
func (s *Session) UserID() string                    { return s.userID }
func (s *Session) Token() string                     { return s.token }
func (s *Session) State() *store.State               { return s.state }
func (s *Session) Conversations() *conversation.List { return s.list }
func (s *Session) Toasts() *toast.Queue              { return s.toasts }
func (s *Session) Bus() *live.Bus                    { return s.bus }
func (s *Session) Channel() *live.Channel            { return s.channel }

// Touch 刷新最后活跃时间
func (s *Session) Touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive 最后活跃时间
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Start 恢复持久化状态，加载当前用户和第一页会话，然后启动事件通道。
// 只有获取当前用户失败会返回错误。
func (s *Session) Start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() { err = s.start(ctx) })
	return err
}

func (s *Session) start(ctx context.Context) error {
	if s.persister != nil {
		if err := store.LoadInto(ctx, s.persister, s.state); err != nil {
			s.logger.Warn("Failed to restore client state", "error", err)
		}
	}

	user, err := s.backend.CurrentUser(ctx)
	if err != nil {
		return err
	}
	s.state.SetUser(*user)

	if err := s.list.Refresh(ctx); err != nil {
		s.logger.Warn("Failed to load conversations", "error", err)
	}
	s.state.SetUnreadMessages(s.list.TotalUnread())

	s.subs = append(s.subs,
		s.list.Attach(s.ctx, s.bus),
		s.toasts.Attach(s.bus),
		s.bus.Subscribe(live.CategoryNotification, func(live.Event) {
			s.state.AddUnreadNotifications(1)
		}),
	)

	s.wg.Add(1)
	go s.runChannel()

	s.logger.Info("Session started")
	return nil
}

// runChannel 保持事件通道在线，断开后固定间隔重连
func (s *Session) runChannel() {
	defer s.wg.Done()

	for {
		err := s.channel.Run(s.ctx)
		if s.ctx.Err() != nil || errors.Is(err, live.ErrChannelClosed) || s.channel.Closed() {
			return
		}
		if err != nil {
			s.logger.Warn("Live channel failed, reconnecting",
				"error", err,
				"wait", s.reconnect)
		}

		timer := time.NewTimer(s.reconnect)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// MarkRead 通知后端已读，清零会话未读数并同步全局计数
func (s *Session) MarkRead(ctx context.Context, interlocutorID string) (int, error) {
	if err := s.backend.MarkConversationRead(ctx, interlocutorID); err != nil {
		return 0, err
	}
	cleared := s.list.MarkRead(interlocutorID)
	if cleared > 0 {
		s.state.AddUnreadMessages(-cleared)
	}
	return cleared, nil
}

// LoadMore 加载下一页会话
func (s *Session) LoadMore(ctx context.Context) {
	s.list.LoadMore(ctx)
}

// SetRecipient 选中聊天对象并持久化
func (s *Session) SetRecipient(ctx context.Context, u model.User) {
	s.state.SetRecipient(u)
	s.persist(ctx)
}

// ClearRecipient 取消选中并持久化
func (s *Session) ClearRecipient(ctx context.Context) {
	s.state.ClearRecipient()
	s.persist(ctx)
}

// View 当前全貌
func (s *Session) View() View {
	return View{
		State:         s.state.View(),
		Conversations: s.list.Items(),
		HasMore:       s.list.HasMore(),
		Toasts:        s.toasts.Entries(),
		Live:          s.channel.State().String(),
	}
}

func (s *Session) persist(ctx context.Context) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(ctx, s.state.Snapshot()); err != nil {
		s.logger.Warn("Failed to persist client state", "error", err)
	}
}

// Close 停止事件通道和计时器，并保存快照
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.channel.Close()
		s.cancel()
		s.wg.Wait()

		for _, sub := range s.subs {
			sub.Unsubscribe()
		}
		s.toasts.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.persist(ctx)

		s.logger.Info("Session closed")
	})
}
