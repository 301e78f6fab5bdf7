// Package store publishes the merged symbol catalog to Redis so downstream
// consumers can look up symbol groups without parsing CSV. Each
// (exchange, securityType) group is stored as a JSON array under
// symbols:<exchange>:<securityType>.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/logging"
)

// Prometheus metrics for publish operations.
var (
	publishedSymbols = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dtn_published_symbols_total",
		Help: "Symbols published to Redis",
	})

	publishedGroups = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dtn_published_groups_total",
		Help: "Symbol groups published to Redis",
	})
)

// KeyPrefix namespaces all published keys.
const KeyPrefix = "symbols"

// Publisher writes symbol groups to Redis.
type Publisher struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewPublisher creates a publisher. The Redis client is required.
func NewPublisher(redisClient *redis.Client) (*Publisher, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Publisher{
		redis:  redisClient,
		logger: logging.NewLogger("symbol-store"),
	}, nil
}

// Ping verifies the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	if err := p.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Key returns the Redis key for an (exchange, securityType) group.
func Key(exchange, securityType string) string {
	return fmt.Sprintf("%s:%s:%s", KeyPrefix, exchange, securityType)
}

// Publish groups the catalog rows by (exchange, securityType) and stores
// each group as a JSON array of records. Nothing is written when the
// catalog lacks the grouping columns.
func (p *Publisher) Publish(ctx context.Context, header []string, rows [][]string) error {
	exchangeIdx := slices.Index(header, "exchange")
	secTypeIdx := slices.Index(header, "securityType")
	if exchangeIdx < 0 || secTypeIdx < 0 {
		return fmt.Errorf("catalog is missing exchange or securityType columns, cannot publish")
	}

	type group struct {
		exchange string
		secType  string
	}
	groups := make(map[group][]map[string]string)
	for _, row := range rows {
		rec := make(map[string]string, len(header))
		for i, col := range header {
			rec[col] = row[i]
		}
		g := group{exchange: row[exchangeIdx], secType: row[secTypeIdx]}
		groups[g] = append(groups[g], rec)
	}

	published := 0
	for g, records := range groups {
		data, err := json.Marshal(records)
		if err != nil {
			return fmt.Errorf("marshal symbol group %s/%s: %w", g.exchange, g.secType, err)
		}

		key := Key(g.exchange, g.secType)
		if err := p.redis.Set(ctx, key, data, 0).Err(); err != nil {
			return fmt.Errorf("redis set %s: %w", key, err)
		}

		publishedGroups.Inc()
		publishedSymbols.Add(float64(len(records)))
		published += len(records)

		p.logger.Debug().
			Str("key", key).
			Int("records", len(records)).
			Msg("Published symbol group")
	}

	p.logger.Info().
		Int("groups", len(groups)).
		Int("symbols", published).
		Msg("Publish complete")

	return nil
}
