package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"comer/internal/api"
	"comer/internal/auth"
	"comer/internal/config"
	"comer/internal/database"
	"comer/internal/database/postgres"
	"comer/internal/domain"
	"comer/internal/events"
	"comer/internal/export"
	"comer/internal/google"
	"comer/internal/logging"
	"comer/internal/metrics"
	"comer/internal/notify"
	"comer/internal/repository"
	"comer/internal/service"
	"comer/internal/storage"
	"comer/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	repo, sqliteDB, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}

	var cache domain.LedgerCache = repository.NewMemoryLedgerCache()
	if redisClient != nil {
		cache = repository.NewFailoverLedgerCache(
			repository.NewRedisLedgerCache(redisClient),
			cache,
			logging.Component(logger, "ledger-cache"),
		)
	}

	eventBus := events.NewEventBus(logging.Component(logger, "events"))
	initTelegram(cfg, eventBus, logger)

	syncWorker := initSheetsWorker(ctx, cfg, repo, redisClient, logger)

	tokenKey, err := cfg.Session.Key()
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(tokenKey, cfg.Session.AccessTTL, cfg.Session.RefreshTTL)
	if err != nil {
		return fmt.Errorf("init token service: %w", err)
	}

	store, err := storage.NewLocalStore(cfg.Uploads)
	if err != nil {
		return fmt.Errorf("init upload store: %w", err)
	}

	serviceLogger := logging.Component(logger, "service")
	var sheetsSync domain.SyncWorker
	if syncWorker != nil {
		sheetsSync = syncWorker
	}
	bookings := service.NewBookingService(repo, cache, eventBus, sheetsSync, cfg.Booking, cfg.Redis.LedgerCacheTTL, serviceLogger)
	experiences := service.NewExperienceService(repo, bookings, store, eventBus, nil, cfg.Booking, cfg.Uploads.MaxFiles, serviceLogger)
	comments := service.NewCommentService(repo, serviceLogger)
	users := service.NewUserService(repo, tokens, store, eventBus, serviceLogger)

	deps := api.Deps{
		Experiences: experiences,
		Bookings:    bookings,
		Comments:    comments,
		Users:       users,
		Tokens:      tokens,
		Exporter:    export.NewGuestListExporter(repo, cfg.Exports.Path, logging.Component(logger, "export")),
		Store:       repo,
		UploadsDir:  store.Dir(),
	}
	if syncWorker != nil {
		deps.SyncTasks = syncWorker
	}
	httpServer := api.NewHTTPServer(*cfg, deps, logging.Component(logger, "http"))

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, bookings, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	if sqliteDB != nil {
		backup := database.NewBackupService(sqliteDB, cfg.Backup, logging.Component(logger, "backup"))
		go backup.Start(ctx)
	}

	return serve(ctx, httpServer, grpcServer, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

// initDatabase opens the configured store. The sqlite handle is returned
// separately because only it can be backed up by file copy.
func initDatabase(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.Repository, *database.DB, error) {
	dbLogger := logging.Component(logger, "database")

	if cfg.Database.Driver == config.DriverPostgres {
		store, err := postgres.Open(ctx, cfg.Database.Postgres.DSN(), dbLogger)
		if err != nil {
			logger.Error().Err(err).Str("host", cfg.Database.Postgres.Host).Msg("init postgres")
			return nil, nil, err
		}
		return store, nil, nil
	}

	db, err := database.NewDB(cfg.Database.Path, dbLogger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, nil, err
	}
	return db, db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing with the in-memory cache")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func initTelegram(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) {
	if !cfg.Telegram.Enabled {
		return
	}
	bot, err := notify.NewBotAPI(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		return
	}
	notify.NewTelegramNotifier(bot, cfg.Telegram.ChatID, logging.Component(logger, "telegram")).Register(bus)
	logger.Info().Int64("chat_id", cfg.Telegram.ChatID).Msg("telegram notifications enabled")
}

// initSheetsWorker starts the spreadsheet mirror when google credentials are configured.
func initSheetsWorker(
	ctx context.Context,
	cfg *config.Config,
	repo domain.SyncQueueRepository,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) *worker.SheetsWorker {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		return nil
	}

	sheetsLogger := logging.Component(logger, "sheets")
	sheets, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.BookingSpreadSheetID, sheetsLogger)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheets.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}
	if err := sheets.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to write sheet header")
	}
	go sheets.StartCacheRefresh(ctx, 0)

	w := worker.NewSheetsWorker(repo, sheets, redisClient, worker.DefaultRetryPolicy(), logging.Component(logger, "sheets-worker"))
	go w.Start(ctx)

	logger.Info().Msg("google sheets connected")
	return w
}

func serve(ctx context.Context, httpServer *api.HTTPServer, grpcServer *api.GRPCServer, logger *zerolog.Logger) error {
	errCh := make(chan error, 2)

	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
		logger.Info().Str("grpc_addr", grpcServer.Addr()).Msg("gRPC API started")
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return runErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
