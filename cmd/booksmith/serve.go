package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/booksmith/internal/artifact"
	"github.com/jonathan/booksmith/internal/config"
	"github.com/jonathan/booksmith/internal/db"
	"github.com/jonathan/booksmith/internal/notify"
	"github.com/jonathan/booksmith/internal/pipeline"
	"github.com/jonathan/booksmith/internal/server"
)

var (
	servePort         int
	serveSessionLimit int
	serveDatabaseURL  string
	serveRedisAddr    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that exposes the book sessions over REST and Server-Sent Events.

PostgreSQL (DATABASE_URL), Redis (REDIS_ADDR) and S3/MinIO (ARTIFACT_S3_*) are optional;
each one is enabled when configured. Set JWT_SECRET to require bearer tokens.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default 8080)")
	serveCmd.Flags().IntVar(&serveSessionLimit, "session-limit", 0, "Maximum sessions kept in memory (default 256)")
	serveCmd.Flags().StringVar(&serveDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	serveCmd.Flags().StringVar(&serveRedisAddr, "redis-addr", "", "Redis address for event fan-out (optional, defaults to REDIS_ADDR env var)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd, func(c *config.Config) {
		flags := cmd.Flags()
		if flags.Changed("port") {
			c.Port = servePort
		}
		if flags.Changed("session-limit") {
			c.SessionLimit = serveSessionLimit
		}
		if flags.Changed("db-url") {
			c.DatabaseURL = serveDatabaseURL
		}
		if flags.Changed("redis-addr") {
			c.RedisAddr = serveRedisAddr
		}
	})
	if err != nil {
		return err
	}
	ctx := context.Background()
	logger := log.Default()

	client, err := newClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}
	defer func() { _ = client.Close() }()

	jwtCfg, err := config.OptionalJWTConfig()
	if err != nil {
		return err
	}

	srvCfg := server.Config{
		Port: cfg.Port,
		NewSession: func() *pipeline.Session {
			return newSession(client, nil, cfg, logger)
		},
		Packager:     newPackager(cfg),
		JWT:          jwtCfg,
		SessionLimit: cfg.SessionLimit,
		Logger:       logger,
	}
	if err := attachBackends(ctx, cfg, &srvCfg, logger); err != nil {
		return err
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start()
}

// attachBackends connects the optional persistence and fan-out services.
func attachBackends(ctx context.Context, cfg config.Config, srvCfg *server.Config, logger *log.Logger) error {
	if cfg.DatabaseURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		database, err := db.Connect(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.EnsureSchema(connectCtx); err != nil {
			database.Close()
			return err
		}
		srvCfg.Store = database
		logger.Println("Persistence: PostgreSQL enabled")
	}

	if s3cfg := s3Config(cfg); s3cfg.Enabled() {
		store, err := artifact.NewS3Store(s3cfg)
		if err != nil {
			return fmt.Errorf("failed to create artifact store: %w", err)
		}
		srvCfg.Artifacts = store
		logger.Printf("Artifacts: object storage at %s, bucket %s", s3cfg.Endpoint, s3cfg.Bucket)
	}

	if cfg.RedisAddr != "" {
		publisher, err := notify.NewRedisPublisher(ctx, notify.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		srvCfg.Events = publisher
		logger.Printf("Events: Redis stream %s", notify.DefaultStream)
	}
	return nil
}
