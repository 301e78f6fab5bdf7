package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/batch"
	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/merge"
	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/store"
)

var redisAddr string

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the merged catalog to Redis",
	Long: `Publish reads all_symbols_latest.csv and stores the records in Redis,
grouped by exchange and security type under symbols:<exchange>:<secType>
keys, one JSON array per group.`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&redisAddr, "redis-addr", "", "redis address (overrides config)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := cfg.Redis.Addr
	if cmd.Flags().Changed("redis-addr") {
		addr = redisAddr
	}
	if addr == "" {
		return fmt.Errorf("no redis address configured (set redis.addr or --redis-addr)")
	}

	latest := filepath.Join(cfg.Output.Dir, merge.LatestFileName)
	header, rows, err := batch.ReadBatch(latest)
	if err != nil {
		return fmt.Errorf("read merged catalog: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   cfg.Redis.DB,
	})
	defer redisClient.Close()

	publisher, err := store.NewPublisher(redisClient)
	if err != nil {
		return err
	}
	if err := publisher.Ping(ctx); err != nil {
		return err
	}

	return publisher.Publish(ctx, header, rows)
}
