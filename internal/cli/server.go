package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"studyquiz/internal/app"
	"studyquiz/internal/config"
	"studyquiz/internal/generation"
	"studyquiz/internal/infra/memory"
	"studyquiz/internal/infra/postgres"
	infraredis "studyquiz/internal/infra/redis"
	"studyquiz/internal/infra/sqlite"
	"studyquiz/internal/infra/storage"
	"studyquiz/internal/observability"
	transport "studyquiz/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return observability.NewLogger(observability.LogOptions{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Tracing.Endpoint != "" {
		serviceName := cfg.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "studyquiz"
		}
		shutdown, err := observability.InitTracer(serviceName, cfg.Tracing.Endpoint)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(flushCtx)
		}()
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	persist := persistOptions(cfg)
	staleAfter := config.TTLDuration(cfg.Progress.StaleAfter, app.DefaultStaleAfter)
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)

	// Documents default to the in-process store; each configured backend
	// takes over the concerns it serves.
	docs := memory.NewDocumentStore()
	var (
		quizStore     app.QuizStore     = docs
		progressStore app.ProgressStore = docs
		resultStore   app.ResultStore   = docs
		feed          app.QuizFeed      = docs
	)

	if cfg.SQLite.Path != "" {
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		quizStore, progressStore, resultStore = db, db, db
		feed = nil
		logger.Info("using sqlite document store", zap.String("path", cfg.SQLite.Path))
	}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		quizStore = postgres.NewQuizStore(pool)
		resultStore = postgres.NewResultStore(pool)
		feed = nil
	}

	var (
		quizRepo app.QuizRepository
		sessions app.SessionRepository
	)
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		redisFeed := infraredis.NewQuizFeed(redisClient)
		quizStore = infraredis.NewPublishingStore(quizStore, redisFeed)
		feed = redisFeed
		progressStore = infraredis.NewProgressStore(redisClient, staleAfter)
		quizRepo = infraredis.NewQuizRepository(redisClient, quizStore, quizTTL)
		sessions = infraredis.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
	} else {
		quizRepo = memory.NewQuizRepository(quizStore, quizTTL)
		sessions = memory.NewSessionStore()
	}

	source, closeSource, err := newQuestionSource(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer closeSource()

	var archive app.MaterialArchive
	if cfg.Storage.Endpoint != "" {
		materials, err := storage.NewMaterialArchive(storage.Options{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			Secure:    cfg.Storage.Secure,
		})
		if err != nil {
			return err
		}
		if err := materials.EnsureBucket(ctx); err != nil {
			logger.Warn("material bucket unavailable", zap.Error(err))
		}
		archive = materials
	}

	service := app.NewQuizService(app.Deps{
		Sessions: sessions,
		Quizzes:  quizRepo,
		Store:    quizStore,
		Results:  resultStore,
		Progress: app.NewProgressTracker(progressStore, staleAfter, persist, logger, metrics),
		Source:   source,
		Archive:  archive,
		Feed:     feed,
		Persist:  persist,
		Logger:   logger,
		Metrics:  metrics,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", transport.NewWSHandler(service, logger).ServeWS)
	transport.NewAPIHandler(service, logger).Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		logger.Info("starting quiz service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// persistOptions fills unset progress settings from the defaults.
func persistOptions(cfg config.Config) app.PersistOptions {
	defaults := app.DefaultPersistOptions()
	return app.PersistOptions{
		Timeout: config.TTLDuration(cfg.Progress.Timeout, defaults.Timeout),
		Retries: config.IntOr(cfg.Progress.Retries, defaults.Retries),
		Backoff: config.TTLDuration(cfg.Progress.Backoff, defaults.Backoff),
	}
}

func newQuestionSource(ctx context.Context, cfg config.Config, logger *zap.Logger, metrics *observability.Metrics) (app.QuestionSource, func(), error) {
	gen := cfg.Generation
	if gen.APIKey == "" && gen.BaseURL == "" {
		logger.Warn("no generation api key configured; quiz generation disabled")
		return nil, func() {}, nil
	}
	switch gen.Provider {
	case "gemini":
		completer, err := generation.NewGeminiCompleter(ctx, gen.APIKey, gen.Model)
		if err != nil {
			return nil, nil, err
		}
		return generation.NewGenerator(completer, gen.RatePerMinute, logger, metrics), func() { completer.Close() }, nil
	default:
		completer := generation.NewOpenAICompleter(gen.APIKey, gen.BaseURL, gen.Model)
		return generation.NewGenerator(completer, gen.RatePerMinute, logger, metrics), func() {}, nil
	}
}
