package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"sudooom.social.client/internal/config"
	"sudooom.social.client/internal/forwarder"
	"sudooom.social.client/internal/gateway"
	"sudooom.social.client/internal/live"
	"sudooom.social.client/internal/store"
)

// Infra 会话共享的基础设施，rdb 和 nc 可为 nil
type Infra struct {
	Forwarder *forwarder.Forwarder
	Redis     *redis.Client
	NATS      *nats.Conn
	Dialer    *websocket.Dialer
	Logger    *slog.Logger
}

// NewFactory 按配置组装会话：网关客户端、事件传输、状态持久化
func NewFactory(parent context.Context, cfg *config.Config, infra Infra) Factory {
	opts := Options{
		PageSize:      cfg.Conversation.PageSize,
		ToastDuration: cfg.Toast.Duration,
		ToastMax:      cfg.Toast.MaxEntries,
		ReconnectWait: cfg.Live.ReconnectWait,
		Logger:        infra.Logger,
	}

	return func(ctx context.Context, userID, token string) (*Session, error) {
		transport, err := newTransport(cfg, infra, userID, token)
		if err != nil {
			return nil, err
		}
		persister, err := newPersister(cfg, infra, userID)
		if err != nil {
			return nil, err
		}

		backend := gateway.New(infra.Forwarder, token)
		return NewSession(parent, userID, token, backend, transport, persister, opts), nil
	}
}

func newTransport(cfg *config.Config, infra Infra, userID, token string) (live.Transport, error) {
	switch cfg.Live.Transport {
	case "websocket":
		return &live.WebSocketTransport{
			URL:          cfg.Live.URL,
			CookieName:   cfg.Session.CookieName,
			Token:        token,
			PingInterval: cfg.Live.PingInterval,
			PongTimeout:  cfg.Live.PongTimeout,
			Dialer:       infra.Dialer,
		}, nil
	case "nats":
		if infra.NATS == nil {
			return nil, fmt.Errorf("live transport nats requires a nats connection")
		}
		return &live.NATSTransport{Conn: infra.NATS, UserID: userID}, nil
	default:
		return nil, fmt.Errorf("unknown live transport %q", cfg.Live.Transport)
	}
}

func newPersister(cfg *config.Config, infra Infra, userID string) (store.Persister, error) {
	switch cfg.Store.Backend {
	case "redis":
		if infra.Redis == nil {
			return nil, fmt.Errorf("store backend redis requires a redis client")
		}
		return store.NewRedisPersister(infra.Redis, userID, cfg.Store.TTL), nil
	case "file":
		return store.NewFilePersister(cfg.Store.Dir, userID), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
