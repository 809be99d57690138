package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FilePersister 基于本地 YAML 文件的持久化
type FilePersister struct {
	path string
}

// NewFilePersister 每个用户一个文件: {dir}/{user_id}.yaml
func NewFilePersister(dir, userID string) *FilePersister {
	return &FilePersister{path: filepath.Join(dir, userID+".yaml")}
}

func (p *FilePersister) Load(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read state file: %w", err)
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse state file: %w", err)
	}
	return snap, nil
}

func (p *FilePersister) Save(_ context.Context, snap Snapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return err
	}

	// 先写临时文件再改名，避免半截文件
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return os.Rename(tmp, p.path)
}

func (p *FilePersister) Clear(_ context.Context) error {
	err := os.Remove(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
