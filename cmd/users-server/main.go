// Command users-server serves the user CRUD API over HTTP, backed by
// Postgres with a Redis or in-process cache in front of reads.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/userservice/userservice/internal/cache"
	"github.com/userservice/userservice/internal/cacheaside"
	"github.com/userservice/userservice/internal/config"
	"github.com/userservice/userservice/internal/database"
	"github.com/userservice/userservice/internal/health"
	"github.com/userservice/userservice/internal/users"
)

// AppState holds all application services
type AppState struct {
	UserService users.UserService
	Health      *health.Manager
	Logger      *zap.Logger
	Config      *config.Config

	db           *bun.DB
	cacheBackend cache.Backend
}

func main() {
	if err := fang.Execute(context.Background(), rootCmd()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configFile string
	var skipSchema bool

	serve := func(cmd *cobra.Command, args []string) error {
		config.LoadWithFile(configFile)
		return runServer(cmd.Context(), skipSchema)
	}

	cmd := &cobra.Command{
		Use:   "users-server",
		Short: "User CRUD service with a cache-aside read path",
		Long: `users-server exposes create, fetch, update, delete and search
operations over user records stored in Postgres.

Reads are served through a Redis cache; writes invalidate every cached
entry that contained the changed record.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         serve,
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "path to the YAML config file (default users.yaml)")
	cmd.Flags().BoolVar(&skipSchema, "skip-schema", false, "do not create the users table on startup")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}
	serveCmd.Flags().BoolVar(&skipSchema, "skip-schema", false, "do not create the users table on startup")

	schemaCmd := &cobra.Command{
		Use:   "create-schema",
		Short: "Create the users table and its indexes, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadWithFile(configFile)
			return runCreateSchema(cmd.Context())
		},
	}

	cmd.AddCommand(serveCmd, schemaCmd)
	return cmd
}

func runServer(ctx context.Context, skipSchema bool) error {
	logger := initLogger()
	defer logger.Sync() //nolint:errcheck

	as, err := newAppState(ctx, logger)
	if err != nil {
		logger.Error("Failed to initialize application state", zap.Error(err))
		return err
	}

	if as.db != nil && !skipSchema {
		if err := users.CreateSchema(ctx, as.db); err != nil {
			as.Close()
			return fmt.Errorf("failed to create schema: %w", err)
		}
		logger.Info("Database schema ready")
	}

	if err := as.Health.StartupHealthCheck(ctx); err != nil {
		as.Close()
		return err
	}

	router := setupRouter(as)

	addr := fmt.Sprintf("%s:%d", config.Http().Host, config.Http().Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := setupSignalHandler(as, server, logger)

	logger.Info("Starting users server", zap.String("address", addr))

	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		as.Close()
		return fmt.Errorf("failed to start server: %w", err)
	}

	<-done
	logger.Info("Server shutdown complete")
	return nil
}

func runCreateSchema(ctx context.Context) error {
	logger := initLogger()
	defer logger.Sync() //nolint:errcheck

	if config.Store().Type != config.StoreTypePostgres {
		return fmt.Errorf("create-schema needs store type %q, got %q", config.StoreTypePostgres, config.Store().Type)
	}

	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := users.CreateSchema(ctx, db); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	logger.Info("Database schema created",
		zap.String("host", config.Postgres().Host),
		zap.String("database", config.Postgres().Database))
	return nil
}

// newAppState creates and initializes the application state
func newAppState(ctx context.Context, logger *zap.Logger) (*AppState, error) {
	as := &AppState{
		Health: health.NewManager(logger.Named("health")),
		Logger: logger,
		Config: config.Get(),
	}

	var store users.UserStore
	switch config.Store().Type {
	case config.StoreTypeMemory:
		logger.Warn("Using in-memory user store; data is lost on restart")
		store = users.NewInMemoryStore()
	case config.StoreTypePostgres:
		pgConfig := config.Postgres()
		logger.Info("Database configuration",
			zap.String("host", pgConfig.Host),
			zap.Int("port", pgConfig.Port),
			zap.String("database", pgConfig.Database),
			zap.String("user", pgConfig.User),
			zap.String("driver", pgConfig.Driver))

		db, err := openDatabase(ctx)
		if err != nil {
			return nil, err
		}
		as.db = db
		as.Health.AddChecker(health.NewDatabaseHealthChecker(db))
		store = users.NewPostgresStore(db)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Store().Type)
	}

	cacheConfig := config.Cache()
	coordinator := cacheaside.Disabled()
	switch cacheConfig.Backend {
	case config.CacheBackendRedis:
		backend, err := cache.NewRedisBackend(config.Redis().DSN(), logger.Named("redis"))
		if err != nil {
			as.Close()
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		as.cacheBackend = backend
		logger.Info("Cache enabled",
			zap.String("backend", cacheConfig.Backend),
			zap.String("redis", fmt.Sprintf("%s:%d", config.Redis().Host, config.Redis().Port)),
			zap.Duration("ttl", cacheConfig.TTL()))
	case config.CacheBackendMemory:
		as.cacheBackend = cache.NewMemoryBackend(cacheConfig.TTL())
		logger.Info("Cache enabled",
			zap.String("backend", cacheConfig.Backend),
			zap.Duration("ttl", cacheConfig.TTL()))
	case config.CacheBackendNone, "":
		logger.Info("Cache disabled; every read goes to the store")
	default:
		as.Close()
		return nil, fmt.Errorf("unsupported cache backend: %s", cacheConfig.Backend)
	}

	if as.cacheBackend != nil {
		as.Health.AddChecker(health.NewCacheHealthChecker(as.cacheBackend))
		coordinator = cacheaside.New(as.cacheBackend, cacheaside.Options{
			Prefix:            cacheConfig.Prefix,
			TTL:               cacheConfig.TTL(),
			InvalidateTimeout: cacheConfig.InvalidateTimeout(),
		}, logger.Named("cache"))
	}

	as.UserService = users.NewUserService(store, coordinator)
	return as, nil
}

func openDatabase(ctx context.Context) (*bun.DB, error) {
	pgConfig := config.Postgres()
	return database.Open(ctx, database.Options{
		DSN:            pgConfig.DSN(),
		Driver:         pgConfig.Driver,
		MaxConnections: pgConfig.MaxOpenConnections,
		ReadTimeout:    time.Duration(pgConfig.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(pgConfig.WriteTimeout) * time.Second,
	})
}

// Close releases the database and cache clients
func (as *AppState) Close() {
	if as.cacheBackend != nil {
		if err := as.cacheBackend.Close(); err != nil {
			as.Logger.Error("Error closing cache client", zap.Error(err))
		}
	}
	if as.db != nil {
		if err := as.db.Close(); err != nil {
			as.Logger.Error("Error closing database", zap.Error(err))
		}
	}
}

func initLogger() *zap.Logger {
	logConfig := config.Logger()

	var config zap.Config
	if logConfig.Format == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	switch logConfig.Level {
	case "debug":
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	return logger
}

func setupSignalHandler(as *AppState, server *http.Server, logger *zap.Logger) chan struct{} {
	done := make(chan struct{}, 1)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signalCh

		logger.Info("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Error during server shutdown", zap.Error(err))
		}

		as.Close()

		done <- struct{}{}
	}()

	return done
}
