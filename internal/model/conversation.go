package model

import "time"

// Message 消息摘要
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	SenderID  string    `json:"sender_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationPreview 会话预览
type ConversationPreview struct {
	Interlocutor User      `json:"interlocutor"` // 对方
	LastMessage  Message   `json:"last_message"` // 最后一条消息
	UpdatedAt    time.Time `json:"updated_at"`   // 排序键兼分页游标
	UnreadCount  int       `json:"unread_count"` // 未读数
}
