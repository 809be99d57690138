package live

import (
	"log/slog"
	"sync"
)

// Handler 事件回调
type Handler func(Event)

// Subscription 订阅句柄
type Subscription struct {
	bus      *Bus
	category Category
	id       uint64
	once     sync.Once
}

// Unsubscribe 取消订阅，可重复调用；对正在进行的分发不生效
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.bus.remove(s.category, s.id) })
}

type listener struct {
	id      uint64
	handler Handler
}

// Bus 按类别的发布/订阅
type Bus struct {
	mu        sync.RWMutex
	listeners map[Category][]listener
	nextID    uint64
	logger    *slog.Logger
}

// NewBus 创建事件总线
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		listeners: make(map[Category][]listener),
		logger:    logger,
	}
}

// Subscribe 注册回调，从下一个发布的事件开始生效
func (b *Bus) Subscribe(category Category, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners[category] = append(b.listeners[category], listener{id: id, handler: h})

	return &Subscription{bus: b, category: category, id: id}
}

func (b *Bus) remove(category Category, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ls := b.listeners[category]
	for i, l := range ls {
		if l.id == id {
			// 复制而非原地修改，正在分发的快照不受影响
			next := make([]listener, 0, len(ls)-1)
			next = append(next, ls[:i]...)
			next = append(next, ls[i+1:]...)
			if len(next) == 0 {
				delete(b.listeners, category)
			} else {
				b.listeners[category] = next
			}
			return
		}
	}
}

// Count 某类别当前的订阅数
func (b *Bus) Count(category Category) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[category])
}

// Publish 按注册顺序同步分发；单个回调 panic 不影响其他回调
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	snapshot := b.listeners[ev.Category]
	b.mu.RUnlock()

	for _, l := range snapshot {
		b.dispatch(l, ev)
	}
}

func (b *Bus) dispatch(l listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event listener panic recovered",
				"category", ev.Category,
				"listener_id", l.id,
				"panic", r)
		}
	}()
	l.handler(ev)
}
