package store

import (
	"context"
	"errors"
)

// ErrNoSnapshot 尚未持久化过
var ErrNoSnapshot = errors.New("no persisted snapshot")

// Persister 显式的序列化/反序列化边界
type Persister interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Clear(ctx context.Context) error
}

// LoadInto 读取快照并恢复到 state；没有快照时不是错误
func LoadInto(ctx context.Context, p Persister, s *State) error {
	snap, err := p.Load(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return err
	}
	s.Restore(snap)
	return nil
}
