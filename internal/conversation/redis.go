package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/digkill/NabiBot/internal/models"
)

const keyPrefix = "nabi:ctx:"

// RedisStore keeps context in Redis; every key carries the idle TTL so
// inactive users expire on their own.
type RedisStore struct {
	client   *redis.Client
	maxTurns int
	ttl      time.Duration
}

func NewRedisStore(client *redis.Client, maxTurns int, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, maxTurns: maxTurns, ttl: ttl}
}

func turnsKey(phone string) string { return keyPrefix + phone + ":turns" }
func imageKey(phone string) string { return keyPrefix + phone + ":image" }

func (s *RedisStore) History(ctx context.Context, phone string) ([]models.Turn, error) {
	raw, err := s.client.LRange(ctx, turnsKey(phone), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	turns := make([]models.Turn, 0, len(raw))
	for _, item := range raw {
		var turn models.Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *RedisStore) Append(ctx context.Context, phone string, turns ...models.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(turns))
	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("marshal turn: %w", err)
		}
		values = append(values, data)
	}

	key := turnsKey(phone)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *RedisStore) LastImage(ctx context.Context, phone string) (string, error) {
	url, err := s.client.Get(ctx, imageKey(phone)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load last image: %w", err)
	}
	return url, nil
}

func (s *RedisStore) SetLastImage(ctx context.Context, phone, url string) error {
	if err := s.client.Set(ctx, imageKey(phone), url, s.ttl).Err(); err != nil {
		return fmt.Errorf("save last image: %w", err)
	}
	return nil
}
