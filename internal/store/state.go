package store

import (
	"sync"

	"sudooom.social.client/internal/model"
)

// Snapshot 持久化切片：只包含身份与选中的收件人，计数器不持久化
type Snapshot struct {
	User      *model.User `json:"user,omitempty" yaml:"user,omitempty"`
	Recipient *model.User `json:"recipient,omitempty" yaml:"recipient,omitempty"`
}

// Counters 未读计数
type Counters struct {
	UnreadMessages      int `json:"unread_messages"`
	UnreadNotifications int `json:"unread_notifications"`
}

// View 对外展示的完整状态
type View struct {
	User      *model.User `json:"user"`
	Recipient *model.User `json:"recipient"`
	Counters  `json:"counters"`
}

// State 单个登录会话的客户端状态，setter 是唯一的修改入口
type State struct {
	mu        sync.Mutex
	user      *model.User
	recipient *model.User
	counters  Counters

	watchers map[int]func(View)
	nextID   int
}

// New 创建空状态
func New() *State {
	return &State{watchers: make(map[int]func(View))}
}

// User 当前用户，未登录时为 nil
func (s *State) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.user)
}

// SetUser 设置当前用户
func (s *State) SetUser(u model.User) {
	s.update(func() { s.user = &u })
}

// ClearUser 移除当前用户，不影响计数器
func (s *State) ClearUser() {
	s.update(func() { s.user = nil })
}

// UnreadMessages 未读消息数
func (s *State) UnreadMessages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters.UnreadMessages
}

// SetUnreadMessages 设置未读消息数，负数按 0 处理
func (s *State) SetUnreadMessages(n int) {
	s.update(func() { s.counters.UnreadMessages = clamp(n) })
}

// AddUnreadMessages 增减未读消息数，下限为 0
func (s *State) AddUnreadMessages(delta int) {
	s.update(func() { s.counters.UnreadMessages = clamp(s.counters.UnreadMessages + delta) })
}

// IncrementUnreadMessages 未读消息数 +n（会话列表回调）
func (s *State) IncrementUnreadMessages(n int) {
	s.AddUnreadMessages(n)
}

// UnreadNotifications 未读通知数
func (s *State) UnreadNotifications() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters.UnreadNotifications
}

// SetUnreadNotifications 设置未读通知数，负数按 0 处理
func (s *State) SetUnreadNotifications(n int) {
	s.update(func() { s.counters.UnreadNotifications = clamp(n) })
}

// AddUnreadNotifications 增减未读通知数，下限为 0
func (s *State) AddUnreadNotifications(delta int) {
	s.update(func() { s.counters.UnreadNotifications = clamp(s.counters.UnreadNotifications + delta) })
}

// Recipient 选中的私信收件人
func (s *State) Recipient() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.recipient)
}

// SetRecipient 选中私信收件人
func (s *State) SetRecipient(u model.User) {
	s.update(func() { s.recipient = &u })
}

// ClearRecipient 清除选中的收件人
func (s *State) ClearRecipient() {
	s.update(func() { s.recipient = nil })
}

// Counters 当前计数
func (s *State) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// View 当前完整状态
func (s *State) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Snapshot 导出持久化切片
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{User: clone(s.user), Recipient: clone(s.recipient)}
}

// Restore 应用持久化切片，计数器保持不变
func (s *State) Restore(snap Snapshot) {
	s.update(func() {
		s.user = clone(snap.User)
		s.recipient = clone(snap.Recipient)
	})
}

// Watch 注册变更回调，返回取消函数。回调在锁外同步执行
func (s *State) Watch(fn func(View)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *State) update(fn func()) {
	s.mu.Lock()
	fn()
	view := s.viewLocked()
	watchers := make([]func(View), 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	for _, w := range watchers {
		w(view)
	}
}

func (s *State) viewLocked() View {
	return View{User: clone(s.user), Recipient: clone(s.recipient), Counters: s.counters}
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func clone(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
