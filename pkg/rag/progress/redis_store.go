package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	listKeyPrefix   = "chat:messages:"
	ownerKeyPrefix  = "chat:owner:"
	channelPrefix   = "chat:progress:"
	defaultRedisTTL = 24 * time.Hour
)

// RedisStore appends messages to a per-session list and publishes each one
// on a per-session channel for live listeners on other instances.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

var (
	_ Store      = &RedisStore{}
	_ Subscriber = &RedisStore{}
)

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Add(ctx context.Context, sessionID string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	key := listKeyPrefix + sessionID
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, s.ttl)
	pipe.Publish(ctx, channelPrefix+sessionID, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis add message: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, sessionID string) ([]Message, error) {
	raw, err := s.rdb.LRange(ctx, listKeyPrefix+sessionID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list messages: %w", err)
	}

	messages := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) (int, error) {
	key := listKeyPrefix + sessionID
	pipe := s.rdb.TxPipeline()
	count := pipe.LLen(ctx, key)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis clear messages: %w", err)
	}
	return int(count.Val()), nil
}

func (s *RedisStore) Claim(ctx context.Context, sessionID, owner string) (string, error) {
	key := ownerKeyPrefix + sessionID
	if _, err := s.rdb.SetNX(ctx, key, owner, s.ttl).Result(); err != nil {
		return "", fmt.Errorf("redis claim session: %w", err)
	}
	current, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("redis read session owner: %w", err)
	}
	if current == owner {
		s.rdb.Expire(ctx, key, s.ttl)
	}
	return current, nil
}

func (s *RedisStore) Owner(ctx context.Context, sessionID string) (string, error) {
	owner, err := s.rdb.Get(ctx, ownerKeyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis read session owner: %w", err)
	}
	return owner, nil
}

// Subscribe streams messages published for sessionID until ctx is done.
func (s *RedisStore) Subscribe(ctx context.Context, sessionID string) <-chan Message {
	out := make(chan Message)
	pubsub := s.rdb.Subscribe(ctx, channelPrefix+sessionID)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
