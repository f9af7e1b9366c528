package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/primebank/agent_banking_core/internal/core/domain"
	portssvc "github.com/primebank/agent_banking_core/internal/core/ports/services"
	"github.com/primebank/agent_banking_core/internal/middleware"
)

const (
	txnKeyPrefix     = "txn:"
	accountKeyPrefix = "acct:"
)

// RedisSnapshotCache caches entity snapshots in Redis. It is strictly
// non-authoritative: every miss or Redis error reads through to the database,
// and every mutator invalidates.
type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotCache creates a snapshot cache over the given Redis client.
func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration) *RedisSnapshotCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisSnapshotCache{client: client, ttl: ttl}
}

var _ portssvc.SnapshotCache = (*RedisSnapshotCache)(nil)

// GetTransaction retrieves a cached transaction snapshot.
func (c *RedisSnapshotCache) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, bool) {
	var txn domain.Transaction
	if !c.get(ctx, txnKeyPrefix+transactionID, &txn) {
		return nil, false
	}
	return &txn, true
}

// SetTransaction caches a transaction snapshot.
func (c *RedisSnapshotCache) SetTransaction(ctx context.Context, txn *domain.Transaction) {
	c.set(ctx, txnKeyPrefix+txn.TransactionID, txn)
}

// GetAccount retrieves a cached account snapshot.
func (c *RedisSnapshotCache) GetAccount(ctx context.Context, accountID string) (*domain.Account, bool) {
	var account domain.Account
	if !c.get(ctx, accountKeyPrefix+accountID, &account) {
		return nil, false
	}
	return &account, true
}

// SetAccount caches an account snapshot.
func (c *RedisSnapshotCache) SetAccount(ctx context.Context, account *domain.Account) {
	c.set(ctx, accountKeyPrefix+account.AccountID, account)
}

// InvalidateTransaction drops a transaction snapshot.
func (c *RedisSnapshotCache) InvalidateTransaction(ctx context.Context, transactionID string) {
	c.del(ctx, txnKeyPrefix+transactionID)
}

// InvalidateAccount drops an account snapshot.
func (c *RedisSnapshotCache) InvalidateAccount(ctx context.Context, accountID string) {
	c.del(ctx, accountKeyPrefix+accountID)
}

func (c *RedisSnapshotCache) get(ctx context.Context, key string, dest any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			middleware.GetLoggerFromCtx(ctx).Warn("Cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.del(ctx, key)
		return false
	}
	return true
}

func (c *RedisSnapshotCache) set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		middleware.GetLoggerFromCtx(ctx).Warn("Cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (c *RedisSnapshotCache) del(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		middleware.GetLoggerFromCtx(ctx).Warn("Cache invalidation failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}
