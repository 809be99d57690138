package live

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sudooom.social.client/internal/model"
)

// Category 事件类别
type Category string

const (
	CategoryPrivateMessage Category = "private_message"
	CategoryNotification   Category = "notification"
)

var ErrUnknownCategory = errors.New("unknown event category")

// Event 解码后的事件
type Event struct {
	Category Category
	Payload  json.RawMessage
}

// frame 线上帧: {"type": "...", "payload": {...}}
type frame struct {
	Type    Category        `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PrivateMessage 私信事件载荷
type PrivateMessage struct {
	ID          string     `json:"id"`
	Sender      model.User `json:"sender"`
	RecipientID string     `json:"recipient_id"`
	Text        string     `json:"text"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Message 转为会话里的消息摘要
func (m PrivateMessage) Message() model.Message {
	return model.Message{
		ID:        m.ID,
		Text:      m.Text,
		SenderID:  m.Sender.ID,
		CreatedAt: m.CreatedAt,
	}
}

// DecodeFrame 解码一帧，类别不在已知集合中时返回 ErrUnknownCategory
func DecodeFrame(data []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, fmt.Errorf("invalid frame: %w", err)
	}
	switch f.Type {
	case CategoryPrivateMessage, CategoryNotification:
		return Event{Category: f.Type, Payload: f.Payload}, nil
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownCategory, f.Type)
	}
}

// EncodeFrame 编码一帧
func EncodeFrame(category Category, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame{Type: category, Payload: raw})
}

// PrivateMessage 解析私信载荷
func (e Event) PrivateMessage() (PrivateMessage, error) {
	var m PrivateMessage
	if e.Category != CategoryPrivateMessage {
		return m, fmt.Errorf("event is %q, not %q", e.Category, CategoryPrivateMessage)
	}
	err := json.Unmarshal(e.Payload, &m)
	return m, err
}

// Notification 解析通知载荷
func (e Event) Notification() (model.Notification, error) {
	var n model.Notification
	if e.Category != CategoryNotification {
		return n, fmt.Errorf("event is %q, not %q", e.Category, CategoryNotification)
	}
	err := json.Unmarshal(e.Payload, &n)
	return n, err
}
