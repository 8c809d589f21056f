package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"examprep-attempt-service/internal/config"
	"examprep-attempt-service/internal/engine"
	"examprep-attempt-service/internal/infra/memory"
	pgarchive "examprep-attempt-service/internal/infra/postgres"
	redisinfra "examprep-attempt-service/internal/infra/redis"
	transport "examprep-attempt-service/internal/transport/http"
	"examprep-attempt-service/internal/upstream"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the attempt engine server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base url not configured")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 6*time.Hour)
	resultTTL := config.Duration(cfg.Results.TTL, time.Hour)

	client := upstream.New(cfg.Upstream.BaseURL, config.Duration(cfg.Upstream.Timeout, 15*time.Second))

	var registry engine.AttemptRegistry
	var results engine.ResultStore
	if redisClient != nil {
		registry = redisinfra.NewAttemptRegistry(redisClient, redisTTL)
		results = redisinfra.NewResultStore(redisClient, resultTTL)
	} else {
		registry = memory.NewAttemptRegistry()
		results = memory.NewResultStore(resultTTL)
	}

	var archive engine.ResultStore
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		archive = pgarchive.NewResultArchive(pool)
	}

	eng := engine.New(registry, client, results, archive)
	wsHandler := transport.NewWSHandler(eng)
	resultHandler := transport.NewResultHandler(eng)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("GET /attempts/{attemptId}/result", resultHandler.ServeResult)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting attempt engine on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
