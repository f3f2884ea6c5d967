package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"companion-go/internal/companion/session"

	"github.com/go-redis/redis/v8"
)

const sessionKeyPrefix = "companion:session:"

// redisSessionRepository 把会话上下文以 JSON 存在 Redis 中，过期时间即会话最长存活时间。
type redisSessionRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewSessionRepository 创建一个基于 Redis 的 session.Store。
func NewSessionRepository(redisClient *redis.Client, ttl time.Duration) session.Store {
	return &redisSessionRepository{redisClient: redisClient, ttl: ttl}
}

// Load 从 Redis 获取会话上下文。
func (r *redisSessionRepository) Load(ctx context.Context, key string) (*session.Session, error) {
	jsonData, err := r.redisClient.Get(ctx, sessionKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var s session.Session
	if err := json.Unmarshal([]byte(jsonData), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

// Save 在 Redis 中写入会话上下文并刷新过期时间。
func (r *redisSessionRepository) Save(ctx context.Context, s *session.Session) error {
	jsonData, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.redisClient.Set(ctx, sessionKeyPrefix+s.Key, jsonData, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}

func (r *redisSessionRepository) Delete(ctx context.Context, key string) error {
	return r.redisClient.Del(ctx, sessionKeyPrefix+key).Err()
}

// DeletePrefix 用 SCAN 找出前缀匹配的会话并删除。
func (r *redisSessionRepository) DeletePrefix(ctx context.Context, prefix string) error {
	iter := r.redisClient.Scan(ctx, 0, sessionKeyPrefix+prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan session keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.redisClient.Del(ctx, keys...).Err()
}
