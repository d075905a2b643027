package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"omnipost-server/modules/common/model"
)

// SnapshotStore - 보드 스냅샷 저장소
type SnapshotStore interface {
	Save(ctx context.Context, snapshot model.Snapshot) error
	Load(ctx context.Context, sessionID string) (*model.Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

const snapshotKeyPrefix = "omnipost:session:"

// SnapshotKey - Redis 키
func SnapshotKey(sessionID string) string {
	return snapshotKeyPrefix + sessionID
}

// RedisStore - Redis JSON 스냅샷 (TTL)
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore - Redis 스냅샷 저장소 생성
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Save - 스냅샷 저장
func (s *RedisStore) Save(ctx context.Context, snapshot model.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, SnapshotKey(snapshot.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load - 스냅샷 조회
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*model.Snapshot, error) {
	data, err := s.client.Get(ctx, SnapshotKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snapshot model.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snapshot, nil
}

// Delete - 스냅샷 삭제
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, SnapshotKey(sessionID)).Err()
}

// MemoryStore - Redis 미설정 시 사용
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]model.Snapshot
}

// NewMemoryStore - 메모리 스냅샷 저장소 생성
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]model.Snapshot)}
}

func (s *MemoryStore) Save(ctx context.Context, snapshot model.Snapshot) error {
	snapshot.Results = snapshot.Results.Clone()
	s.mu.Lock()
	s.snapshots[snapshot.SessionID] = snapshot
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*model.Snapshot, error) {
	s.mu.RLock()
	snapshot, ok := s.snapshots[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	snapshot.Results = snapshot.Results.Clone()
	return &snapshot, nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.snapshots, sessionID)
	s.mu.Unlock()
	return nil
}
