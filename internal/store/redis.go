package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// stateKeyPrefix 客户端状态 Key 前缀: social:client:state:{user_id}
const stateKeyPrefix = "social:client:state:"

// BuildStateKey 构建状态 Key
func BuildStateKey(userID string) string {
	return stateKeyPrefix + userID
}

// RedisPersister 基于 Redis 的持久化
type RedisPersister struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisPersister 创建 Redis 持久化，ttl<=0 表示不过期
func NewRedisPersister(rdb *redis.Client, userID string, ttl time.Duration) *RedisPersister {
	return &RedisPersister{rdb: rdb, key: BuildStateKey(userID), ttl: ttl}
}

func (p *RedisPersister) Load(ctx context.Context) (Snapshot, error) {
	data, err := p.rdb.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load state: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return snap, nil
}

func (p *RedisPersister) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := p.rdb.Set(ctx, p.key, data, p.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (p *RedisPersister) Clear(ctx context.Context) error {
	return p.rdb.Del(ctx, p.key).Err()
}
