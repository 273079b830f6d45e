package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dora/internal/model"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "dora:session:"
	sessionIndexKey  = "dora:sessions"
)

// RedisSessionStore keeps each chat session as a JSON value with an idle
// TTL, plus a sorted set of ids scored by last activity for listing.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore creates a session store. ttl <= 0 keeps sessions
// until they are pruned or deleted.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", model.ErrStorageUnavailable, op, err)
}

// Get returns the session or model.ErrNotFound
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*model.ChatSession, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: session %s", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, storageErr("get session", err)
	}
	return decodeSession(data)
}

// Put stores session and refreshes its TTL
func (s *RedisSessionStore) Put(ctx context.Context, session *model.ChatSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), data, s.ttl)
	pipe.ZAdd(ctx, sessionIndexKey, redis.Z{
		Score:  float64(session.UpdatedAt.UnixMilli()),
		Member: session.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return storageErr("put session", err)
	}
	return nil
}

// Delete removes a session; unknown ids are not an error
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.ZRem(ctx, sessionIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return storageErr("delete session", err)
	}
	return nil
}

// List returns session summaries, most recently active first. Index entries
// whose value has expired are dropped.
func (s *RedisSessionStore) List(ctx context.Context, limit int) ([]model.SessionSummary, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, sessionIndexKey, 0, stop).Result()
	if err != nil {
		return nil, storageErr("list sessions", err)
	}
	if len(ids) == 0 {
		return []model.SessionSummary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storageErr("list sessions", err)
	}

	out := make([]model.SessionSummary, 0, len(ids))
	var stale []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		sess, err := decodeSession([]byte(raw))
		if err != nil {
			continue
		}
		out = append(out, sess.Summary())
	}
	if len(stale) > 0 {
		s.client.ZRem(ctx, sessionIndexKey, stale...)
	}
	return out, nil
}

// Prune removes sessions last active before cutoff
func (s *RedisSessionStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	maxScore := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	ids, err := s.client.ZRangeByScore(ctx, sessionIndexKey, &redis.ZRangeBy{Min: "-inf", Max: maxScore}).Result()
	if err != nil {
		return 0, storageErr("prune sessions", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
		members[i] = id
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, sessionIndexKey, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, storageErr("prune sessions", err)
	}
	return len(ids), nil
}

// Count reports how many sessions are indexed
func (s *RedisSessionStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, sessionIndexKey).Result()
	if err != nil {
		return 0, storageErr("count sessions", err)
	}
	return n, nil
}
