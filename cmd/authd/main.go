// Command authd is a thin demo of the auth service's edge: it exercises
// the shared API-key gate and HTTP rate limiter in front of a login
// endpoint whose actual JWT-issuance logic is out of scope here (chat
// only verifies tokens minted elsewhere).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chatcluster/chat/internal/bus"
	"github.com/chatcluster/chat/internal/config"
	"github.com/chatcluster/chat/internal/logging"
	"github.com/chatcluster/chat/internal/middleware"
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

	busService, err := bus.NewService(redisAddr(cfg.RedisURL), "")
	if err != nil {
		logging.Fatal(ctx, "failed to connect to redis", zap.Error(err))
	}
	defer busService.Close()

	limiter := ratelimit.NewHTTPLimiter(busService.Client())

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{AllowOrigins: cfg.AllowedOrigins, AllowMethods: []string{"POST"}, AllowHeaders: []string{"Content-Type", middleware.APIKeyHeader}}))
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "alive"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	login := r.Group("/auth")
	login.Use(middleware.APIKey(cfg.AuthAPIKeys))
	login.Use(limiter.Middleware(ratelimit.RuleAuthLogin))
	login.POST("/login", loginStub)

	srv := &http.Server{Addr: cfg.ServerHost + ":" + cfg.ServerPort, Handler: r}
	runWithGracefulShutdown(ctx, srv)
}

// loginStub stands in for the credential-check and JWT-issuance flow,
// which is out of scope: it demonstrates only that a request past the
// rate limiter and API-key gate reaches a handler.
func loginStub(c *gin.Context) {
	logging.Info(c.Request.Context(), "login attempt received")
	c.JSON(http.StatusNotImplemented, gin.H{"error": "login issuance not implemented in this demo"})
}

func redisAddr(url string) string {
	const scheme = "redis://"
	if len(url) > len(scheme) && url[:len(scheme)] == scheme {
		return url[len(scheme):]
	}
	return url
}

func runWithGracefulShutdown(ctx context.Context, srv *http.Server) {
	go func() {
		logging.Info(ctx, "authd starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(err))
	}
}
