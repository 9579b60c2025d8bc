package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect создаёт клиент Redis по URL (redis://) или адресу host:port и проверяет соединение.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("cache: разбор redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis недоступен: %w", err)
	}

	return client, nil
}

const eventKeyPrefix = "webhook:event:"

// RedisEventStore запоминает обработанные webhook-события с TTL.
// Подходит для нескольких экземпляров сервиса за одним балансировщиком.
// Seen и Remember не образуют атомарной пары: два одновременных повтора
// одного события оба пройдут проверку, и их разводят условные переходы платежа.
type RedisEventStore struct {
	client *redis.Client
}

func NewRedisEventStore(client *redis.Client) *RedisEventStore {
	return &RedisEventStore{client: client}
}

func (s *RedisEventStore) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, eventKeyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("cache: проверка события %s: %w", eventID, err)
	}
	return n > 0, nil
}

// Remember записывает событие через SETNX: повтор не продлевает TTL первой записи.
func (s *RedisEventStore) Remember(ctx context.Context, eventID string, ttl time.Duration) error {
	if err := s.client.SetNX(ctx, eventKeyPrefix+eventID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("cache: сохранение события %s: %w", eventID, err)
	}
	return nil
}
