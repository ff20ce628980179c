package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	mirrorPrefix = "device:state:"
	mirrorTTL    = 24 * time.Hour
)

// StateMirror copies published HDP state into redis where the hub reads it.
// A nil client disables the mirror.
type StateMirror struct{ rdb redis.Cmdable }

func NewStateMirror(rdb redis.Cmdable) *StateMirror { return &StateMirror{rdb: rdb} }

// ConnectMirror dials redis at addr. An empty addr or a failed ping yields a disabled mirror and a nil client.
func ConnectMirror(ctx context.Context, addr, password string) (*StateMirror, *redis.Client) {
	if strings.TrimSpace(addr) == "" {
		slog.Info("redis state mirror disabled")
		return NewStateMirror(nil), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unreachable, state mirror disabled", "addr", addr, "error", err)
		_ = rdb.Close()
		return NewStateMirror(nil), nil
	}
	return NewStateMirror(rdb), rdb
}

func mirrorKey(id string) string { return mirrorPrefix + id }

func (m *StateMirror) enabled() bool { return m != nil && m.rdb != nil }

func (m *StateMirror) Set(ctx context.Context, id string, stateJSON []byte) error {
	if !m.enabled() {
		return nil
	}
	return m.rdb.Set(ctx, mirrorKey(id), stateJSON, mirrorTTL).Err()
}

func (m *StateMirror) Get(ctx context.Context, id string) ([]byte, error) {
	if !m.enabled() {
		return nil, nil
	}
	b, err := m.rdb.Get(ctx, mirrorKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func (m *StateMirror) Delete(ctx context.Context, id string) error {
	if !m.enabled() {
		return nil
	}
	return m.rdb.Del(ctx, mirrorKey(id)).Err()
}

// RemoveAllExcept deletes mirrored govee states whose device is no longer listed.
func (m *StateMirror) RemoveAllExcept(ctx context.Context, keepIDs []string) ([]string, error) {
	if !m.enabled() {
		return nil, nil
	}
	keep := make(map[string]struct{}, len(keepIDs))
	for _, id := range keepIDs {
		if id != "" {
			keep[id] = struct{}{}
		}
	}
	iter := m.rdb.Scan(ctx, 0, mirrorKey("govee/*"), 100).Iterator()
	var removed []string
	for iter.Next(ctx) {
		full := iter.Val()
		id := strings.TrimPrefix(full, mirrorPrefix)
		if _, ok := keep[id]; ok {
			continue
		}
		if err := m.rdb.Del(ctx, full).Err(); err != nil {
			return removed, err
		}
		removed = append(removed, id)
	}
	return removed, iter.Err()
}
