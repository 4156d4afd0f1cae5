package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Togather-Foundation/eventproxy/internal/upstream/ratelimit"
)

func newRateLimitCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Manage the shared rate limit windows",
	}

	var timeout time.Duration
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Clear the read and write windows kept in Redis",
		Long: `Deletes the sliding window keys every proxy replica shares through
RATE_LIMIT_REDIS_URL. In-memory windows live only inside a running server
and are cleared by restarting it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if cfg.RateLimit.RedisURL == "" {
				return errors.New("RATE_LIMIT_REDIS_URL is not set; windows are kept in memory")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := resetWindows(ctx, cfg.RateLimit.RedisURL, cfg.RateLimit.RedisPrefix); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rate limit windows cleared")
			return nil
		},
	}
	reset.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "redis timeout")
	cmd.AddCommand(reset)
	return cmd
}

func resetWindows(ctx context.Context, redisURL, prefix string) error {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("parse RATE_LIMIT_REDIS_URL: %w", err)
	}
	store := ratelimit.NewRedisStore(redis.NewClient(opts), prefix)
	defer func() { _ = store.Close() }()
	if err := store.Reset(ctx); err != nil {
		return fmt.Errorf("reset windows: %w", err)
	}
	return nil
}
