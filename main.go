package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/franklinjsmith-create/SupplyVerify/config"
	"github.com/franklinjsmith-create/SupplyVerify/metrics"
	"github.com/franklinjsmith-create/SupplyVerify/registry"
	"github.com/franklinjsmith-create/SupplyVerify/service"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "supplyverify",
	Short:         "Verify supplier organic certifications against the USDA Organic Integrity registry",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads --config. The default path may be absent, in which case
// the built-in defaults apply.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newDocumentSource returns the configured renderer and a function releasing
// its resources.
func newDocumentSource(cfg *config.RegistryConfig) (registry.DocumentSource, func() error) {
	if cfg.Renderer == "http" {
		return registry.NewHTTPSource(cfg.UserAgent, cfg.NavigationTimeout), func() error { return nil }
	}
	browser := registry.NewBrowserSource(registry.BrowserConfig{
		Bin:               cfg.BrowserBin,
		DebuggerURL:       cfg.DebuggerURL,
		Headless:          cfg.IsHeadless(),
		NavigationTimeout: cfg.NavigationTimeout,
		ElementTimeout:    cfg.ElementTimeout,
		ScopeTimeout:      cfg.ScopeTimeout,
	})
	return browser, browser.Close
}

func newVerifier(cfg *config.Config, m *metrics.Metrics) (*service.Verifier, func() error) {
	source, closeSource := newDocumentSource(&cfg.Registry)
	fetcher := registry.NewFetcher(source, cfg.Registry.BaseURL, cfg.Registry.IDParam)
	return service.NewVerifier(fetcher, m), closeSource
}

func retention(cfg *config.StoreConfig) service.Retention {
	return service.Retention{
		Completed: cfg.CompletedRetention,
		Error:     cfg.ErrorRetention,
	}
}

// newStore builds the configured session store. The memory store's reaper
// runs until ctx is done.
func newStore(ctx context.Context, cfg *config.StoreConfig) (service.SessionStore, func() error, error) {
	if cfg.Backend == "redis" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		return service.NewRedisStore(client, cfg.KeyPrefix, retention(cfg), cfg.MaxLifetime), client.Close, nil
	}

	store := service.NewMemoryStore(retention(cfg), service.WithMaxSessions(cfg.MaxSessions))
	go store.Run(ctx, cfg.SweepInterval)
	return store, func() error { return nil }, nil
}
