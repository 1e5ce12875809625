package callsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/CyberTechArmor/NEON-sub002/pkg/constant"
)

// ErrCorruptSnapshot is a stored snapshot that cannot be decoded
var ErrCorruptSnapshot = errors.New("corrupt call session snapshot")

// SnapshotStore persists the single session snapshot. Load returns nil
// without error when nothing is stored.
type SnapshotStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Clear(ctx context.Context) error
}

// MemorySnapshotStore keeps the snapshot in process
type MemorySnapshotStore struct {
	mu   sync.Mutex
	data []byte
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{}
}

func (m *MemorySnapshotStore) Load(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	data := m.data
	m.mu.Unlock()
	return decodeSnapshot(data)
}

func (m *MemorySnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

func (m *MemorySnapshotStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}

// FileSnapshotStore keeps the snapshot in one JSON file. Writes go through
// a temp file and a rename so a crash never leaves half a snapshot.
type FileSnapshotStore struct {
	Path string
}

func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{Path: path}
}

func (f *FileSnapshotStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

func (f *FileSnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".callsession-*")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (f *FileSnapshotStore) Clear(ctx context.Context) error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

// RedisSnapshotStore keeps the snapshot of one device under
// call:session:{device_key}, for clients that share a Redis with other
// processes on the same device
type RedisSnapshotStore struct {
	rdb redis.Cmdable
	key string
}

func NewRedisSnapshotStore(rdb redis.Cmdable, deviceKey string) *RedisSnapshotStore {
	return &RedisSnapshotStore{rdb: rdb, key: fmt.Sprintf(constant.RedisKeyCallSession(), deviceKey)}
}

func (r *RedisSnapshotStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

func (r *RedisSnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key, data, 0).Err()
}

func (r *RedisSnapshotStore) Clear(ctx context.Context) error {
	return r.rdb.Del(ctx, r.key).Err()
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	if snap.RoomName == "" {
		return nil, fmt.Errorf("%w: missing room name", ErrCorruptSnapshot)
	}
	return &snap, nil
}
