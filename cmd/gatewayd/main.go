// Command gatewayd is a thin demo of the payment gateway's edge: it
// exercises the shared API-key gate, HTTP rate limiter, and the
// Kafka event-bus-producer contract spec.md calls out for payment
// intents. Actual payment orchestration (charging a provider,
// reconciling webhooks) is out of scope.
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
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/chatcluster/chat/internal/bus"
	"github.com/chatcluster/chat/internal/config"
	"github.com/chatcluster/chat/internal/logging"
	"github.com/chatcluster/chat/internal/middleware"
	"github.com/chatcluster/chat/internal/ratelimit"
)

const paymentIntentsTopic = "payment.intents"

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

	producer, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.KafkaBrokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		logging.Fatal(ctx, "failed to create kafka producer", zap.Error(err))
	}
	defer producer.Close()

	limiter := ratelimit.NewHTTPLimiter(busService.Client())

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{AllowOrigins: cfg.AllowedOrigins, AllowMethods: []string{"POST"}, AllowHeaders: []string{"Content-Type", middleware.APIKeyHeader}}))
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "alive"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	payments := r.Group("/payments")
	payments.Use(middleware.APIKey(cfg.AuthAPIKeys))
	payments.Use(limiter.Middleware(ratelimit.RulePayment))
	payments.POST("/intents", createIntentStub(producer))

	srv := &http.Server{Addr: cfg.ServerHost + ":" + cfg.ServerPort, Handler: r}
	runWithGracefulShutdown(ctx, srv)
}

// createIntentStub publishes a placeholder event to the payment-intents
// topic so the event-bus-producer contract is demonstrably wired. It
// does not charge anything; that orchestration is out of scope.
func createIntentStub(producer *kgo.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		intentID := uuid.NewString()

		record := &kgo.Record{
			Topic: paymentIntentsTopic,
			Key:   []byte(intentID),
			Value: []byte(`{"intent_id":"` + intentID + `","status":"created"}`),
		}

		producer.Produce(ctx, record, func(_ *kgo.Record, err error) {
			if err != nil {
				logging.Error(ctx, "failed to publish payment intent event", zap.Error(err), zap.String("intent_id", intentID))
			}
		})

		c.JSON(http.StatusAccepted, gin.H{"intent_id": intentID, "status": "created"})
	}
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
		logging.Info(ctx, "gatewayd starting", zap.String("addr", srv.Addr))
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
