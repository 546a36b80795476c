package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aspect-build/cairos/internal/logx"
	"github.com/aspect-build/cairos/internal/server"
	"github.com/aspect-build/cairos/internal/server/auth"
	"github.com/aspect-build/cairos/internal/server/db"
	"github.com/aspect-build/cairos/internal/server/metrics"
	"github.com/aspect-build/cairos/internal/version"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const redisLedgerPrefix = "cairos:oauth:"

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "cairos-server",
		Short:   "Cairos backend: GitHub sign-in and editor activity capture",
		Version: version.Version,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate(version.String("cairos-server") + "\n")

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	server.ApplyDefaults(viper.GetViper())
	defaults := server.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose debug logs (same as --log-level debug)")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("github-client-id", "", "GitHub OAuth app client ID")
	cmd.PersistentFlags().String("github-callback-url", "", "Public URL of /auth/github/callback")
	cmd.PersistentFlags().String("redis-addr", "", "Redis address for the OAuth state ledger (in-memory when empty)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "github.client_id", "github-client-id")
	bindFlag(cmd, "github.callback_url", "github-callback-url")
	bindFlag(cmd, "redis.addr", "redis-addr")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}
	return nil
}

func runServer(ctx context.Context) error {
	cfg, err := server.LoadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if err := logx.Configure(cfg.LogLevel, verbose); err != nil {
		return err
	}
	defer logx.Sync()
	logger := logx.Logger()

	store, err := db.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	ledger, closeLedger, err := newLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	provider := auth.NewGitHubProvider(auth.GitHubConfig{
		ClientID:     cfg.GitHub.ClientID,
		ClientSecret: cfg.GitHub.ClientSecret,
		RedirectURL:  cfg.GitHub.CallbackURL,
		AuthURL:      cfg.GitHub.AuthURL,
		TokenURL:     cfg.GitHub.TokenURL,
		APIURL:       cfg.GitHub.APIURL,
		HTTPClient:   &http.Client{Timeout: cfg.UpstreamTimeout},
	})
	broker := auth.NewBroker(provider, ledger, store)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	httpServer := &http.Server{
		Addr: cfg.HTTPAddress,
		Handler: server.NewRouter(cfg, server.Dependencies{
			Store:  store,
			Broker: broker,
			Logger: logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", cfg.HTTPAddress),
			zap.String("database", cfg.DBPath),
			zap.String("version", version.Version))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newLedger returns the Redis-backed ledger when redis.addr is set, so that
// several server replicas can share pending logins, and the in-process one
// otherwise.
func newLedger(ctx context.Context, cfg *server.Config) (auth.Ledger, func(), error) {
	if cfg.RedisAddr == "" {
		logx.Infof("oauth ledger: in-memory (ttl=%s)", cfg.LedgerTTL)
		return auth.NewMemoryLedger(cfg.LedgerTTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	logx.Infof("oauth ledger: redis %s (ttl=%s)", cfg.RedisAddr, cfg.LedgerTTL)
	return auth.NewRedisLedger(client, redisLedgerPrefix, cfg.LedgerTTL), func() { client.Close() }, nil
}
