package game

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKey = "game:current:snapshot"

type RedisSnapshotStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSnapshotStore(rdb *redis.Client, ttl time.Duration) *RedisSnapshotStore {
	return &RedisSnapshotStore{rdb: rdb, ttl: ttl}
}

func (s *RedisSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	b, err := Encode(snap)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, snapshotKey, b, s.ttl).Err()
}

func (s *RedisSnapshotStore) Load(ctx context.Context) (Snapshot, bool, error) {
	val, err := s.rdb.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}

	snap, err := DecodeSnapshot(val)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}
