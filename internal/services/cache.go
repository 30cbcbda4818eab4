package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contest-vote-backend/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// StandingsCacheTTL bounds how long a preview lives without being invalidated
const StandingsCacheTTL = 30 * time.Second

// standingsGenTTL keeps the generation counter well past any in-flight read
const standingsGenTTL = 24 * time.Hour

var errStaleStandings = errors.New("standings generation moved")

// StandingsCache is a Redis cache-aside layer for live standings previews.
// Each contest has a generation counter bumped by every invalidation. A
// preview is stored only if the generation it was computed under is still
// current, so a read racing a vote never caches pre-vote standings.
// With no client every operation is a no-op.
type StandingsCache struct {
	rdb     *redis.Client
	metrics *metrics.Metrics
}

// NewStandingsCache connects to Redis. An empty address or a failed ping
// yields a disabled cache.
func NewStandingsCache(addr, password string, db int) *StandingsCache {
	if addr == "" {
		log.Info().Msg("Redis not configured, standings cache disabled")
		return &StandingsCache{}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("Redis connection failed, standings cache disabled")
		rdb.Close()
		return &StandingsCache{}
	}

	log.Info().Str("addr", addr).Msg("Redis connected, standings cache enabled")
	return &StandingsCache{rdb: rdb}
}

// NewStandingsCacheWithClient wraps an existing client
func NewStandingsCacheWithClient(rdb *redis.Client) *StandingsCache {
	return &StandingsCache{rdb: rdb}
}

// Instrument records hits and misses on m
func (c *StandingsCache) Instrument(m *metrics.Metrics) {
	c.metrics = m
}

// Get returns the cached preview, or nil when absent or disabled, together
// with the generation a freshly computed preview must be stored under.
func (c *StandingsCache) Get(ctx context.Context, contestID string) (*StandingsResult, int64, error) {
	if c.rdb == nil {
		return nil, 0, nil
	}

	var dataCmd, genCmd *redis.StringCmd
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		dataCmd = p.Get(ctx, standingsKey(contestID))
		genCmd = p.Get(ctx, generationKey(contestID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, err
	}

	gen, err := genCmd.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, err
	}

	data, err := dataCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.CacheMiss()
		return nil, gen, nil
	}
	if err != nil {
		return nil, 0, err
	}

	var result StandingsResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, 0, fmt.Errorf("failed to decode cached standings: %w", err)
	}
	c.metrics.CacheHit()
	return &result, gen, nil
}

// Set stores a preview computed under generation gen. It reports false when
// an invalidation happened in between and the preview was discarded.
func (c *StandingsCache) Set(ctx context.Context, result *StandingsResult, gen int64) (bool, error) {
	if c.rdb == nil {
		return false, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return false, err
	}

	genKey := generationKey(result.ContestID)
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleStandings
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, standingsKey(result.ContestID), data, StandingsCacheTTL)
			return nil
		})
		return err
	}, genKey)

	if errors.Is(err, errStaleStandings) || errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Invalidate drops the preview after ratings change and moves the generation
// so in-flight reads do not store what they computed.
func (c *StandingsCache) Invalidate(ctx context.Context, contestID string) error {
	if c.rdb == nil {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, generationKey(contestID))
		p.Expire(ctx, generationKey(contestID), standingsGenTTL)
		p.Del(ctx, standingsKey(contestID))
		return nil
	})
	return err
}

// Close shuts down the Redis connection
func (c *StandingsCache) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func standingsKey(contestID string) string {
	return fmt.Sprintf("standings:%s", contestID)
}

func generationKey(contestID string) string {
	return fmt.Sprintf("standings:%s:gen", contestID)
}
