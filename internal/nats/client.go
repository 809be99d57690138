package nats

import (
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go"

	"sudooom.social.client/internal/config"
)

// Client NATS 连接，供事件通道订阅用户事件
type Client struct {
	conn *nats.Conn
}

// NewClient 连接 NATS，断线后按配置自动重连
func NewClient(cfg config.NATSConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []nats.Option{
		nats.Name("social-client"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
		nats.ErrorHandler(asyncErrorHandler(logger)),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	return &Client{conn: conn}, nil
}

// asyncErrorHandler 记录异步错误，慢消费者意味着用户事件已被丢弃
func asyncErrorHandler(logger *slog.Logger) nats.ErrHandler {
	return func(nc *nats.Conn, sub *nats.Subscription, err error) {
		subject := ""
		if sub != nil {
			subject = sub.Subject
		}
		if errors.Is(err, nats.ErrSlowConsumer) {
			dropped := 0
			if sub != nil {
				dropped, _ = sub.Dropped()
			}
			logger.Error("NATS slow consumer, events dropped", "subject", subject, "dropped", dropped)
			return
		}
		logger.Error("NATS async error", "subject", subject, "error", err)
	}
}

// Conn 底层连接
func (c *Client) Conn() *nats.Conn {
	return c.conn
}

// Close 排空订阅后关闭
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}
