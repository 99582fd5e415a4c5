package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/chatcluster/chat/internal/auth"
	"github.com/chatcluster/chat/internal/bus"
	"github.com/chatcluster/chat/internal/cache"
	"github.com/chatcluster/chat/internal/chat"
	"github.com/chatcluster/chat/internal/chatdb"
	"github.com/chatcluster/chat/internal/config"
	"github.com/chatcluster/chat/internal/health"
	"github.com/chatcluster/chat/internal/httpapi"
	"github.com/chatcluster/chat/internal/logging"
	"github.com/chatcluster/chat/internal/ratelimit"
)

func main() {
	for _, path := range []string{".env", "../../.env", "../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		panic(err)
	}

	logging.SetServiceName(cfg.ServiceName)
	if err := logging.Initialize(cfg.Development); err != nil {
		panic(err)
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logging.Fatal(ctx, "failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := chatdb.RunMigrations(cfg.DatabaseURL); err != nil {
		logging.Fatal(ctx, "failed to run chat schema migrations", zap.Error(err))
	}

	busService, err := bus.NewService(redisAddr(cfg.RedisURL), "")
	if err != nil {
		logging.Fatal(ctx, "failed to connect to redis", zap.Error(err))
	}
	defer busService.Close()

	validator, err := auth.NewValidator(cfg.JWTSecret)
	if err != nil {
		logging.Fatal(ctx, "failed to build jwt validator", zap.Error(err))
	}

	cacheStore := cache.NewStore(busService.Client())
	store := chatdb.NewStore(pool, nil)
	httpLimiter := ratelimit.NewHTTPLimiter(busService.Client())

	hub := chat.NewHub(busService, cacheStore, cfg.ServiceName)

	var wg sync.WaitGroup
	hubCtx, cancelHub := context.WithCancel(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(hubCtx)
	}()

	bridge := chat.NewBridge(busService, hub)
	bridge.Run(hubCtx, &wg)

	healthHandler := health.NewHandler(busService, hub, cfg.ServiceName)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Store:          store,
		Hub:            hub,
		Validator:      validator,
		HTTPLimiter:    httpLimiter,
		Health:         healthHandler,
		AllowedOrigins: cfg.AllowedOrigins,
		APIKeys:        cfg.AuthAPIKeys,
	})

	srv := &http.Server{
		Addr:    cfg.ServerHost + ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "chat service starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down chat service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(err))
	}

	cancelHub()
	wg.Wait()
	logging.Info(ctx, "chat service exited")
}

// redisAddr strips a redis:// scheme if present; bus.NewService wants a
// bare host:port, while REDIS_URL is conventionally a full URL.
func redisAddr(url string) string {
	const scheme = "redis://"
	if len(url) > len(scheme) && url[:len(scheme)] == scheme {
		return url[len(scheme):]
	}
	return url
}
