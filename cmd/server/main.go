package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dora/internal/config"
	"dora/internal/handler"
	"dora/internal/logger"
	"dora/internal/metrics"
	"dora/internal/middleware"
	"dora/internal/repository"
	"dora/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

type sessionBackend interface {
	service.SessionStore
	Count(ctx context.Context) (int64, error)
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer log.Sync() //nolint:errcheck

	log.Info("DORA campus assistant",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	gin.SetMode(cfg.Server.GinMode)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Static datasets
	dataset, err := repository.NewDatasetRepository(cfg.Data.LocationsPath, cfg.Data.EventsPath)
	if err != nil {
		log.Fatal("invalid dataset configuration", zap.Error(err))
	}
	store := service.NewLocationStore(dataset, log)
	go func() {
		// Warm the store; a failure is logged by the store and search degrades to empty
		_ = store.Load(ctx)
	}()
	catalog := service.LoadEventCatalog(ctx, dataset, log)

	// Registration storage
	var registrations service.RegistrationStore
	if cfg.PostgreSQL.Enabled {
		repo, err := repository.NewPostgresRepository(
			cfg.GetPostgreSQLDSN(),
			cfg.PostgreSQL.MaxConnections,
			cfg.PostgreSQL.MaxIdleConnections,
		)
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		defer repo.Close()
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatal("failed to prepare database schema", zap.Error(err))
		}
		registrations = repo
		log.Info("✅ Connected to PostgreSQL database")
	} else {
		registrations = repository.NewMemoryRegistrationRepository()
		log.Warn("PostgreSQL is disabled - registrations are kept in memory")
	}

	// Session storage
	var sessions sessionBackend
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal("failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		sessions = repository.NewRedisSessionStore(redisClient, cfg.Session.TTL)
		log.Info("✅ Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		sessions = repository.NewMemorySessionStore()
		log.Warn("Redis is disabled - chat sessions are kept in memory")
	}

	completer := newCompleter(ctx, &cfg.LLM, log)

	// Initialize services
	search := service.NewLocationSearch(store, cfg.Search.CacheSize)
	routes := service.NewRouteFinder(store, search)
	dialogue := service.NewRegistrationDialogue(catalog, registrations, log)
	chat := service.NewChatService(
		service.NewIntentClassifier(),
		search,
		service.NewResponseComposer(store, catalog),
		dialogue,
		service.NewFallbackTable(catalog),
		completer,
		sessions,
		log,
	)
	log.Info("✅ Services initialized")

	// Idle session pruning
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Session.PruneSchedule, func() {
		if _, err := chat.PruneIdle(ctx, cfg.Session.TTL); err != nil {
			log.Warn("session pruning failed", zap.Error(err))
		}
		if n, err := sessions.Count(ctx); err == nil {
			metrics.ActiveSessions.Set(float64(n))
		}
	}); err != nil {
		log.Fatal("invalid session prune schedule", zap.String("schedule", cfg.Session.PruneSchedule), zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize handlers
	chatHandler := handler.NewChatHandler(chat, 20, cfg.Session.ListLimit)
	campusHandler := handler.NewCampusHandler(store, search, routes)
	eventHandler := handler.NewEventHandler(catalog, registrations)

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Logger(log), middleware.Metrics())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.Server.AllowedOrigins, ",")
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "healthy",
			"service":        "dora",
			"version":        Version,
			"locationsReady": store.Ready(),
			"llmProvider":    completer.Provider(),
		})
	})

	// Version endpoint
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var chatLimits []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window, log)
		chatLimits = append(chatLimits, limiter.Middleware())
	}
	handler.RegisterRoutes(router.Group("/api/v1"), chatHandler, campusHandler, eventHandler, chatLimits...)

	// Serve static files (frontend)
	// This function is implemented in embed.go (production) or static_dev.go (development)
	setupStaticFiles(router, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("🚀 Starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	log.Info("✅ Server stopped")
}

// newCompleter picks the text completion provider. Without a key every
// delegated reply uses the canned fallback table.
func newCompleter(ctx context.Context, cfg *config.LLMConfig, log *zap.Logger) service.TextCompleter {
	if !cfg.Enabled {
		log.Warn("⚠️  LLM is disabled - delegated replies will use fallback messages",
			zap.String("provider", cfg.Provider))
		return service.DisabledCompleter{}
	}

	switch cfg.Provider {
	case "gemini":
		client, err := service.NewGeminiClient(ctx, cfg, log)
		if err != nil {
			log.Error("failed to create gemini client, using fallback messages", zap.Error(err))
			return service.DisabledCompleter{}
		}
		return client
	default:
		client := service.NewOpenAIClient(cfg, log)
		log.Info("✅ OpenAI-compatible client initialized",
			zap.String("api_base", cfg.APIBase),
			zap.String("model", cfg.Model),
			zap.Float64("temperature", cfg.Temperature),
			zap.Int("max_tokens", cfg.MaxTokens),
		)
		return client
	}
}
