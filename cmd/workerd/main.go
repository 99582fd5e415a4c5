// Command workerd is a thin demo worker consumer: it logs every payment
// intent event it receives. Real reconciliation/fulfillment logic is out
// of scope; this exists to demonstrate the consumer side of the Kafka
// contract gatewayd produces onto.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/chatcluster/chat/internal/config"
	"github.com/chatcluster/chat/internal/logging"
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.KafkaBrokers...),
		kgo.ConsumeTopics(paymentIntentsTopic),
		kgo.ConsumerGroup("workerd"),
	)
	if err != nil {
		logging.Fatal(ctx, "failed to create kafka consumer", zap.Error(err))
	}
	defer client.Close()

	logging.Info(ctx, "workerd consuming", zap.String("topic", paymentIntentsTopic))

	for {
		fetches := client.PollFetches(ctx)
		if ctx.Err() != nil {
			break
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			logging.Error(ctx, "fetch error", zap.String("topic", topic), zap.Int32("partition", partition), zap.Error(err))
		})
		fetches.EachRecord(func(record *kgo.Record) {
			logging.Info(ctx, "received payment intent event",
				zap.String("key", string(record.Key)),
				zap.String("value", string(record.Value)),
			)
		})
	}

	logging.Info(ctx, "workerd exiting")
}
