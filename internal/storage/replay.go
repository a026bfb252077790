package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard отсекает повторные доставки колбэков провайдера до похода в БД.
// Источником истины остаётся условный UPDATE статуса позиции.
type ReplayGuard interface {
	// FirstSeen возвращает true, если ключ встречается впервые.
	FirstSeen(ctx context.Context, key string) (bool, error)
	// Forget снимает отметку, чтобы провайдер мог повторить неудачную обработку.
	Forget(ctx context.Context, key string) error
}

type redisReplayGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisReplayGuard(rdb *redis.Client, ttl time.Duration) ReplayGuard {
	return &redisReplayGuard{rdb: rdb, ttl: ttl}
}

func (g *redisReplayGuard) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, key, "1", g.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (g *redisReplayGuard) Forget(ctx context.Context, key string) error {
	return g.rdb.Del(ctx, key).Err()
}

// NopReplayGuard используется, когда Redis не настроен
type NopReplayGuard struct{}

func (NopReplayGuard) FirstSeen(context.Context, string) (bool, error) { return true, nil }
func (NopReplayGuard) Forget(context.Context, string) error            { return nil }

// ECPayCallbackKey: ключ доставки оплаченного колбэка ECPay
func ECPayCallbackKey(merchantTradeNo, tradeNo string) string {
	return fmt.Sprintf("rcon_shop:ecpay:callback:%s:%s", merchantTradeNo, tradeNo)
}
