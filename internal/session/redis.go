package session

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/vincentagber/real-estate-crm/internal/domain"
)

type redisStore struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
	ttl    time.Duration
}

// NewRedisStore constructs a Redis backed session store with rolling expiry.
func NewRedisStore(addr, password string, db int, ttl time.Duration, logger *slog.Logger) (Store, error) {
	opts := &redis.Options{Addr: addr, Password: password, DB: db}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &redisStore{
		client: client,
		logger: logger,
		prefix: "recrm:session:",
		ttl:    ttl,
	}, nil
}

func (s *redisStore) Start(ctx context.Context, id string, payload domain.SessionPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+id, raw, s.ttl).Err()
}

func (s *redisStore) Read(ctx context.Context, id string) (domain.SessionPayload, error) {
	key := s.prefix + id
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.SessionPayload{}, ErrNoSession
		}
		return domain.SessionPayload{}, err
	}
	var payload domain.SessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.SessionPayload{}, err
	}
	// rolling expiry: activity keeps the session alive
	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil && s.logger != nil {
		s.logger.Warn("session expire refresh failed", "error", err)
	}
	return payload, nil
}

func (s *redisStore) Destroy(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.prefix+id).Err()
}

func (s *redisStore) Close() {
	if s.client != nil {
		_ = s.client.Close()
	}
}
