package toast

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"sudooom.social.client/internal/live"
)

const (
	DefaultDuration   = 5 * time.Second
	DefaultMaxEntries = 5
)

var (
	ErrClosed   = errors.New("toast queue closed")
	ErrNotFound = errors.New("toast not found")
)

// Entry 一条通知浮层
type Entry struct {
	ID           string          `json:"id"`
	Notification json.RawMessage `json:"notification"`
	CreatedAt    time.Time       `json:"created_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Paused       bool            `json:"paused"`
}

type entry struct {
	id        string
	payload   json.RawMessage
	createdAt time.Time
	deadline  time.Time
	remaining time.Duration
	paused    bool
	timer     *time.Timer
	seq       uint64 // 每次暂停/恢复递增，旧定时器回调据此失效
}

func (e *entry) view(now time.Time) Entry {
	expires := e.deadline
	if e.paused {
		expires = now.Add(e.remaining)
	}
	return Entry{
		ID:           e.id,
		Notification: e.payload,
		CreatedAt:    e.createdAt,
		ExpiresAt:    expires,
		Paused:       e.paused,
	}
}

// Option 队列选项
type Option func(*Queue)

// WithDuration 设置显示时长
func WithDuration(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.duration = d
		}
	}
}

// WithMaxEntries 设置容量上限，0 使用 DefaultMaxEntries，负数表示不限
func WithMaxEntries(n int) Option {
	return func(q *Queue) {
		if n == 0 {
			n = DefaultMaxEntries
		}
		q.max = n
	}
}

// WithLogger 设置日志
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// Queue 通知浮层队列，按创建顺序排列，到期自动移除
type Queue struct {
	duration time.Duration
	max      int
	logger   *slog.Logger

	mu       sync.Mutex
	entries  []*entry
	closed   bool
	watchers map[uint64]func([]Entry)
	nextW    uint64
}

// New 创建队列
func New(opts ...Option) *Queue {
	q := &Queue{
		duration: DefaultDuration,
		max:      DefaultMaxEntries,
		logger:   slog.Default(),
		watchers: make(map[uint64]func([]Entry)),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Duration 显示时长
func (q *Queue) Duration() time.Duration {
	return q.duration
}

// Push 加入一条通知；超过上限时丢弃最旧的一条
func (q *Queue) Push(payload json.RawMessage) (Entry, error) {
	now := time.Now()
	e := &entry{
		id:        uuid.NewString(),
		payload:   payload,
		createdAt: now,
		deadline:  now.Add(q.duration),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Entry{}, ErrClosed
	}
	if q.max > 0 {
		for len(q.entries) >= q.max {
			oldest := q.entries[0]
			oldest.timer.Stop()
			q.entries = q.entries[1:]
			q.logger.Debug("Toast dropped on overflow", "toast_id", oldest.id, "max", q.max)
		}
	}
	e.timer = q.schedule(e.id, 0, q.duration)
	q.entries = append(q.entries, e)
	view := e.view(now)
	q.mu.Unlock()

	q.notify()
	return view, nil
}

// Dismiss 立即移除，无论是否暂停
func (q *Queue) Dismiss(id string) error {
	q.mu.Lock()
	i := q.indexLocked(id)
	if i < 0 {
		q.mu.Unlock()
		return ErrNotFound
	}
	q.entries[i].timer.Stop()
	q.entries = slices.Delete(q.entries, i, i+1)
	q.mu.Unlock()

	q.notify()
	return nil
}

// Pause 暂停到期计时，保留剩余时长
func (q *Queue) Pause(id string) error {
	q.mu.Lock()
	i := q.indexLocked(id)
	if i < 0 {
		q.mu.Unlock()
		return ErrNotFound
	}
	e := q.entries[i]
	if e.paused {
		q.mu.Unlock()
		return nil
	}
	e.timer.Stop()
	e.seq++
	e.paused = true
	e.remaining = max(time.Until(e.deadline), 0)
	q.mu.Unlock()

	q.notify()
	return nil
}

// Resume 以剩余时长恢复计时
func (q *Queue) Resume(id string) error {
	q.mu.Lock()
	i := q.indexLocked(id)
	if i < 0 {
		q.mu.Unlock()
		return ErrNotFound
	}
	e := q.entries[i]
	if !e.paused {
		q.mu.Unlock()
		return nil
	}
	e.seq++
	e.paused = false
	e.deadline = time.Now().Add(e.remaining)
	e.timer = q.schedule(e.id, e.seq, e.remaining)
	q.mu.Unlock()

	q.notify()
	return nil
}

// Entries 当前条目，按创建顺序
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.viewLocked(time.Now())
}

// Len 条目数
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Watch 注册变化回调，返回取消函数
func (q *Queue) Watch(fn func([]Entry)) (cancel func()) {
	q.mu.Lock()
	q.nextW++
	id := q.nextW
	q.watchers[id] = fn
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		delete(q.watchers, id)
		q.mu.Unlock()
	}
}

// Attach 订阅通知事件，每个事件生成一条浮层
func (q *Queue) Attach(bus *live.Bus) *live.Subscription {
	return bus.Subscribe(live.CategoryNotification, func(ev live.Event) {
		if _, err := q.Push(ev.Payload); err != nil {
			q.logger.Debug("Toast push skipped", "error", err)
		}
	})
}

// Close 停止所有计时并清空队列
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for _, e := range q.entries {
		e.timer.Stop()
	}
	q.entries = nil
	q.watchers = make(map[uint64]func([]Entry))
	q.mu.Unlock()
}

func (q *Queue) schedule(id string, seq uint64, d time.Duration) *time.Timer {
	return time.AfterFunc(d, func() { q.expire(id, seq) })
}

func (q *Queue) expire(id string, seq uint64) {
	q.mu.Lock()
	i := q.indexLocked(id)
	if i < 0 || q.entries[i].paused || q.entries[i].seq != seq {
		q.mu.Unlock()
		return
	}
	q.entries = slices.Delete(q.entries, i, i+1)
	q.mu.Unlock()

	q.notify()
}

func (q *Queue) indexLocked(id string) int {
	return slices.IndexFunc(q.entries, func(e *entry) bool { return e.id == id })
}

func (q *Queue) viewLocked(now time.Time) []Entry {
	out := make([]Entry, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.view(now)
	}
	return out
}

func (q *Queue) notify() {
	q.mu.Lock()
	if len(q.watchers) == 0 {
		q.mu.Unlock()
		return
	}
	entries := q.viewLocked(time.Now())
	fns := make([]func([]Entry), 0, len(q.watchers))
	for _, fn := range q.watchers {
		fns = append(fns, fn)
	}
	q.mu.Unlock()

	for _, fn := range fns {
		fn(entries)
	}
}
