package conversation

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"sudooom.social.client/internal/live"
	"sudooom.social.client/internal/model"
)

// DefaultPageSize 每页会话数
const DefaultPageSize = 15

// Fetcher 后端会话查询
type Fetcher interface {
	ListConversations(ctx context.Context, before time.Time, limit int) ([]model.ConversationPreview, error)
	GetConversation(ctx context.Context, interlocutorID string) (*model.ConversationPreview, error)
}

// Counter 全局未读计数
type Counter interface {
	IncrementUnreadMessages(n int)
}

// Patch 局部更新，nil 字段不修改
type Patch struct {
	Interlocutor *model.User
	LastMessage  *model.Message
	UpdatedAt    *time.Time
	UnreadCount  *int
}

func (p Patch) apply(c *model.ConversationPreview) {
	if p.Interlocutor != nil {
		c.Interlocutor = *p.Interlocutor
	}
	if p.LastMessage != nil {
		c.LastMessage = *p.LastMessage
	}
	if p.UpdatedAt != nil {
		c.UpdatedAt = *p.UpdatedAt
	}
	if p.UnreadCount != nil {
		c.UnreadCount = *p.UnreadCount
	}
}

// Option 列表选项
type Option func(*List)

// WithPageSize 设置分页大小
func WithPageSize(n int) Option {
	return func(l *List) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *slog.Logger) Option {
	return func(l *List) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// List 会话预览列表，按 UpdatedAt 降序
type List struct {
	fetcher  Fetcher
	counter  Counter
	selfID   string
	pageSize int
	logger   *slog.Logger

	mu       sync.Mutex
	items    []model.ConversationPreview
	loading  bool
	noMore   bool
	gen      uint64
	watchers map[uint64]func([]model.ConversationPreview)
	nextW    uint64
}

// New 创建会话列表，selfID 为当前登录用户
func New(fetcher Fetcher, counter Counter, selfID string, opts ...Option) *List {
	l := &List{
		fetcher:  fetcher,
		counter:  counter,
		selfID:   selfID,
		pageSize: DefaultPageSize,
		logger:   slog.Default(),
		watchers: make(map[uint64]func([]model.ConversationPreview)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Items 返回列表副本
func (l *List) Items() []model.ConversationPreview {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.items)
}

// Find 按对方 id 查找
func (l *List) Find(interlocutorID string) (model.ConversationPreview, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.indexLocked(interlocutorID); i >= 0 {
		return l.items[i], true
	}
	return model.ConversationPreview{}, false
}

// Len 会话数
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// HasMore 是否还有更早的会话
func (l *List) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.noMore
}

// Loading 是否有分页请求在进行
func (l *List) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// TotalUnread 所有会话未读数之和
func (l *List) TotalUnread() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, c := range l.items {
		total += c.UnreadCount
	}
	return total
}

// Watch 注册列表变化回调，返回取消函数
func (l *List) Watch(fn func([]model.ConversationPreview)) (cancel func()) {
	l.mu.Lock()
	l.nextW++
	id := l.nextW
	l.watchers[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.watchers, id)
		l.mu.Unlock()
	}
}

// AddConversation 插入到头部；已存在同一对方的会话时不做任何修改
func (l *List) AddConversation(c model.ConversationPreview) bool {
	l.mu.Lock()
	if l.indexLocked(c.Interlocutor.ID) >= 0 {
		l.mu.Unlock()
		return false
	}
	l.items = slices.Insert(l.items, 0, c)
	l.mu.Unlock()

	l.notify()
	return true
}

// UpdateConversation 合并 patch 后整体重排；无匹配时不做任何事
func (l *List) UpdateConversation(interlocutorID string, patch Patch) bool {
	l.mu.Lock()
	i := l.indexLocked(interlocutorID)
	if i < 0 {
		l.mu.Unlock()
		return false
	}
	patch.apply(&l.items[i])
	l.sortLocked()
	l.mu.Unlock()

	l.notify()
	return true
}

// MarkRead 清零未读数，不改变顺序；返回被清掉的未读数
func (l *List) MarkRead(interlocutorID string) int {
	l.mu.Lock()
	i := l.indexLocked(interlocutorID)
	if i < 0 {
		l.mu.Unlock()
		return 0
	}
	cleared := l.items[i].UnreadCount
	l.items[i].UnreadCount = 0
	l.mu.Unlock()

	if cleared > 0 {
		l.notify()
	}
	return cleared
}

// Refresh 加载第一页并替换列表，同时作废进行中的分页请求
func (l *List) Refresh(ctx context.Context) error {
	l.mu.Lock()
	l.gen++
	gen := l.gen
	l.loading = false
	l.mu.Unlock()

	page, err := l.fetcher.ListConversations(ctx, time.Time{}, l.pageSize)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return nil
	}
	l.items = dedup(page)
	l.noMore = len(page) < l.pageSize
	l.sortLocked()
	l.mu.Unlock()

	l.notify()
	return nil
}

// oldestLocked 返回最早的 UpdatedAt，AddConversation 头部插入后列表不一定有序
func (l *List) oldestLocked() time.Time {
	oldest := l.items[0].UpdatedAt
	for _, c := range l.items[1:] {
		if c.UpdatedAt.Before(oldest) {
			oldest = c.UpdatedAt
		}
	}
	return oldest
}

// LoadMore 以最旧的 UpdatedAt 为游标加载下一页。
// 请求进行中、已无更多数据或列表为空时直接返回；请求失败只记录日志。
func (l *List) LoadMore(ctx context.Context) {
	l.mu.Lock()
	if l.loading || l.noMore || len(l.items) == 0 {
		l.mu.Unlock()
		return
	}
	l.loading = true
	gen := l.gen
	cursor := l.oldestLocked()
	l.mu.Unlock()

	page, err := l.fetcher.ListConversations(ctx, cursor, l.pageSize)

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		l.logger.Debug("Discarding stale conversation page", "cursor", cursor)
		return
	}
	l.loading = false
	if err != nil {
		l.mu.Unlock()
		l.logger.Warn("Failed to load more conversations", "cursor", cursor, "error", err)
		return
	}

	if len(page) < l.pageSize {
		l.noMore = true
	}
	added := 0
	for _, c := range page {
		if l.indexLocked(c.Interlocutor.ID) >= 0 {
			continue
		}
		l.items = append(l.items, c)
		added++
	}
	l.sortLocked()
	l.mu.Unlock()

	l.logger.Debug("Loaded conversations", "fetched", len(page), "added", added)
	if added > 0 {
		l.notify()
	}
}

// HandlePrivateMessage 合并一条收到的私信。自己发出的消息忽略。
// 未知对方时从后端拉取会话记录后插入。每次成功合并都会让全局未读数加一。
func (l *List) HandlePrivateMessage(ctx context.Context, msg live.PrivateMessage) error {
	senderID := msg.Sender.ID
	if senderID == "" || senderID == l.selfID {
		return nil
	}

	if l.bump(senderID, msg) {
		l.counter.IncrementUnreadMessages(1)
		l.notify()
		return nil
	}

	fetched, err := l.fetcher.GetConversation(ctx, senderID)
	if err != nil {
		l.logger.Warn("Failed to fetch conversation",
			"interlocutor_id", senderID,
			"message_id", msg.ID,
			"error", err)
		return err
	}

	l.mu.Lock()
	if i := l.indexLocked(senderID); i >= 0 {
		// 拉取期间已被其他路径加入
		l.bumpLocked(i, msg)
	} else {
		c := model.ConversationPreview{Interlocutor: msg.Sender}
		if fetched != nil {
			c = *fetched
			c.Interlocutor.ID = senderID
		}
		c.LastMessage = msg.Message()
		c.UpdatedAt = msg.CreatedAt
		c.UnreadCount = 1
		l.items = slices.Insert(l.items, 0, c)
	}
	l.sortLocked()
	l.mu.Unlock()

	l.counter.IncrementUnreadMessages(1)
	l.notify()
	return nil
}

// Attach 订阅私信事件；返回的订阅用于解绑
func (l *List) Attach(ctx context.Context, bus *live.Bus) *live.Subscription {
	return bus.Subscribe(live.CategoryPrivateMessage, func(ev live.Event) {
		msg, err := ev.PrivateMessage()
		if err != nil {
			l.logger.Warn("Invalid private message payload", "error", err)
			return
		}
		l.HandlePrivateMessage(ctx, msg)
	})
}

func (l *List) bump(interlocutorID string, msg live.PrivateMessage) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(interlocutorID)
	if i < 0 {
		return false
	}
	l.bumpLocked(i, msg)
	l.sortLocked()
	return true
}

func (l *List) bumpLocked(i int, msg live.PrivateMessage) {
	l.items[i].LastMessage = msg.Message()
	l.items[i].UpdatedAt = msg.CreatedAt
	l.items[i].UnreadCount++
}

func (l *List) indexLocked(interlocutorID string) int {
	return slices.IndexFunc(l.items, func(c model.ConversationPreview) bool {
		return c.Interlocutor.ID == interlocutorID
	})
}

func (l *List) sortLocked() {
	slices.SortStableFunc(l.items, func(a, b model.ConversationPreview) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
}

func (l *List) notify() {
	l.mu.Lock()
	if len(l.watchers) == 0 {
		l.mu.Unlock()
		return
	}
	items := slices.Clone(l.items)
	fns := make([]func([]model.ConversationPreview), 0, len(l.watchers))
	for _, fn := range l.watchers {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(items)
	}
}

func dedup(page []model.ConversationPreview) []model.ConversationPreview {
	out := make([]model.ConversationPreview, 0, len(page))
	seen := make(map[string]struct{}, len(page))
	for _, c := range page {
		if _, ok := seen[c.Interlocutor.ID]; ok {
			continue
		}
		seen[c.Interlocutor.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
