// Package cache mirrors period standings into Redis sorted sets so the
// gateway can answer ranking queries without walking ledger accounts.
// The ledger stays authoritative; the mirror is rebuilt on every publish.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/voblegame/voble/models"
	"github.com/voblegame/voble/period"
)

const standingsPrefix = "standings:"

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
		}),
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func standingsKey(t period.Type, id string) string {
	return fmt.Sprintf("%s%s:%s", standingsPrefix, t, id)
}

// zscore orders members the way the ledger ranks entries: score
// descending, then elapsed time ascending. Negating the score and
// appending the time in the fractional range keeps ZRange ascending
// order aligned with leaderboard rank.
func zscore(e models.LeaderEntry) float64 {
	return -float64(e.Score) + float64(e.TimeMs)/1e12
}

// PublishStandings replaces the mirrored standings for one period.
func (c *RedisCache) PublishStandings(ctx context.Context, t period.Type, id string, entries []models.LeaderEntry) error {
	key := standingsKey(t, id)

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	for _, e := range entries {
		pipe.ZAdd(ctx, key, &redis.Z{
			Score:  zscore(e),
			Member: e.Player.String(),
		})
	}
	pipe.Expire(ctx, key, 45*24*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

// TopN returns the mirrored top players for one period, best rank first.
func (c *RedisCache) TopN(ctx context.Context, t period.Type, id string, n int64) ([]string, error) {
	return c.client.ZRange(ctx, standingsKey(t, id), 0, n-1).Result()
}

// Rank returns a player's zero-based mirrored rank.
func (c *RedisCache) Rank(ctx context.Context, t period.Type, id string, player string) (int64, error) {
	return c.client.ZRank(ctx, standingsKey(t, id), player).Result()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
