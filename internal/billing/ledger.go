package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Ledger registra ids de eventos já reconciliados, com retenção limitada.
// É só uma camada extra: a garantia de correção continua sendo a mesclagem idempotente.
type Ledger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

const ledgerKeyPrefix = "billing:webhook:event:"

// RedisLedger compartilha o registro entre réplicas; o TTL limita a retenção.
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient abre o cliente a partir de uma URL redis:// e confere a conexão.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URL inválida: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("falha ao conectar no redis: %w", err)
	}
	return client, nil
}

func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, ttl: ttl}
}

func (l *RedisLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := l.client.Exists(ctx, ledgerKeyPrefix+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *RedisLedger) Mark(ctx context.Context, eventID string) error {
	return l.client.SetNX(ctx, ledgerKeyPrefix+eventID, time.Now().Unix(), l.ttl).Err()
}

// MemoryLedger é o fallback de processo único quando não há REDIS_URL.
type MemoryLedger struct {
	cache *expirable.LRU[string, struct{}]
}

func NewMemoryLedger(size int, ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{
		cache: expirable.NewLRU[string, struct{}](size, nil, ttl),
	}
}

func (l *MemoryLedger) Seen(_ context.Context, eventID string) (bool, error) {
	_, ok := l.cache.Get(eventID)
	return ok, nil
}

func (l *MemoryLedger) Mark(_ context.Context, eventID string) error {
	l.cache.Add(eventID, struct{}{})
	return nil
}
