package live

import (
	"context"
	"errors"
	"sync"

	"github.com/nats-io/nats.go"
)

const (
	subjectUserEventsPrefix = "social.user."
	subjectUserEventsSuffix = ".events"
)

var ErrNATSClosed = errors.New("nats connection closed")

// BuildUserEventsSubject 构建用户事件 Subject: social.user.{user_id}.events
func BuildUserEventsSubject(userID string) string {
	return subjectUserEventsPrefix + userID + subjectUserEventsSuffix
}

// NATSTransport 从 NATS 订阅用户事件，帧格式与 websocket 相同
type NATSTransport struct {
	Conn   *nats.Conn
	UserID string
	// PendingLimit 订阅未读消息上限，<= 0 使用 nats 默认值
	PendingLimit int
}

// Dial 同步订阅用户事件 Subject，消息在订阅内排队直到被读取
func (t *NATSTransport) Dial(ctx context.Context) (Conn, error) {
	if t.Conn == nil || t.Conn.IsClosed() {
		return nil, ErrNATSClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub, err := t.Conn.SubscribeSync(BuildUserEventsSubject(t.UserID))
	if err != nil {
		return nil, err
	}
	if t.PendingLimit > 0 {
		if err := sub.SetPendingLimits(t.PendingLimit, -1); err != nil {
			_ = sub.Unsubscribe()
			return nil, err
		}
	}

	readCtx, cancel := context.WithCancel(context.Background())
	return &natsConn{
		nc:     t.Conn,
		sub:    sub,
		ctx:    readCtx,
		cancel: cancel,
	}, nil
}

type natsConn struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (c *natsConn) ReadFrame() ([]byte, error) {
	msg, err := c.sub.NextMsgWithContext(c.ctx)
	if err == nil {
		return msg.Data, nil
	}
	if c.ctx.Err() != nil {
		return nil, ErrChannelClosed
	}
	if errors.Is(err, nats.ErrConnectionClosed) || c.nc.IsClosed() {
		return nil, ErrNATSClosed
	}
	return nil, err
}

func (c *natsConn) Close() error {
	var err error
	c.once.Do(func() {
		c.cancel()
		if !c.nc.IsClosed() {
			err = c.sub.Unsubscribe()
		}
	})
	return err
}
