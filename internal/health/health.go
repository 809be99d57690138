package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const (
	StatusConnected     = "connected"
	StatusDisconnected  = "disconnected"
	StatusNotConfigured = "not configured"
)

// Status 健康状态
type Status struct {
	Service  string `json:"service"`
	Healthy  bool   `json:"healthy"`
	NATS     string `json:"nats"`
	Redis    string `json:"redis"`
	Sessions int    `json:"sessions"`
}

// SessionCounter 会话计数
type SessionCounter interface {
	Count() int
}

// Checker 健康检查器。nc/rdb 为 nil 表示未启用该依赖，不影响健康判断
type Checker struct {
	service  string
	nc       *nats.Conn
	rdb      *redis.Client
	sessions SessionCounter
}

// NewChecker 创建健康检查器
func NewChecker(service string, nc *nats.Conn, rdb *redis.Client, sessions SessionCounter) *Checker {
	return &Checker{
		service:  service,
		nc:       nc,
		rdb:      rdb,
		sessions: sessions,
	}
}

// Check 执行健康检查
func (h *Checker) Check(ctx context.Context) *Status {
	status := &Status{
		Service: h.service,
		Healthy: true,
	}

	// 检查 NATS
	switch {
	case h.nc == nil:
		status.NATS = StatusNotConfigured
	case h.nc.IsConnected():
		status.NATS = StatusConnected
	default:
		status.NATS = StatusDisconnected
		status.Healthy = false
	}

	// 检查 Redis
	if h.rdb != nil {
		redisCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := h.rdb.Ping(redisCtx).Err(); err == nil {
			status.Redis = StatusConnected
		} else {
			status.Redis = StatusDisconnected
			status.Healthy = false
		}
	} else {
		status.Redis = StatusNotConfigured
	}

	if h.sessions != nil {
		status.Sessions = h.sessions.Count()
	}

	return status
}

// ServeHTTP HTTP 健康检查端点
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}
