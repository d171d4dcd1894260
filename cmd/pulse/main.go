package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opswatch/pulse/internal/api"
	"github.com/opswatch/pulse/internal/config"
	"github.com/opswatch/pulse/internal/dedup"
	"github.com/opswatch/pulse/internal/embed"
	"github.com/opswatch/pulse/internal/metrics"
	"github.com/opswatch/pulse/internal/service"
	"github.com/opswatch/pulse/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Ingests IT-ops news and incident events and serves hybrid relevancy+recency retrieval.",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return run(cfg)
	},
}

func init() {
	config.SetDefaults()

	rootCmd.PersistentFlags().String("addr", "", "address to bind")
	rootCmd.PersistentFlags().Int("port", 8080, "port to listen on")
	rootCmd.PersistentFlags().String("store-driver", "memory", `event store backend ("postgres" or "memory")`)
	rootCmd.PersistentFlags().String("store-dsn", "", "postgres DSN")

	for flagName, key := range map[string]string{
		"addr":         "addr",
		"port":         "port",
		"store-driver": "store.driver",
		"store-dsn":    "store.dsn",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flagName)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("pulse")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func run(cfg *config.Config) error {
	var embedder embed.Embedder
	switch cfg.EmbeddingProvider {
	case "openai":
		embedder = embed.NewOpenAI(cfg.Embedding)
	default:
		embedder = embed.NewStatic(cfg.Embedding.Dimensions)
	}

	eventStore, err := buildStore(cfg, embedder)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis ping failed, retrieval cache degraded", "error", err)
		}
		cancel()
	}

	m := metrics.New()
	detector := dedup.NewDetector(eventStore, slog.Default())
	ingestion := service.NewIngestionService(eventStore, detector, m, cfg.FutureTolerance, slog.Default())
	retrieval := service.NewRetrievalService(eventStore, rdb, cfg.CacheTTL, cfg.ClampRelevancy, m, slog.Default())

	router := gin.Default()
	api.RegisterRoutes(router, api.NewHandler(ingestion, retrieval, slog.Default()), m)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Addr, cfg.Port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// backend is the store surface the services need.
type backend interface {
	store.EventStore
	store.SimilaritySearcher
}

// buildStore constructs the backend the config selects. The store is built
// once here and handed to the services; nothing else creates stores.
func buildStore(cfg *config.Config, embedder embed.Embedder) (backend, error) {
	if cfg.StoreDriver == "memory" {
		return store.NewMemStore(embedder), nil
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// The database may still be starting (docker compose); retry briefly.
	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		slog.Info("waiting for db", "attempt", i+1, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("could not connect to db: %w", err)
	}

	if err := store.RunMigrations(db, cfg.Embedding.Dimensions); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return store.NewPgStore(db, embedder), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("pulse exited", "error", err)
		os.Exit(1)
	}
}
