// Command subscriber tails deposit attempt events from Redis Pub/Sub.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/gbsoe/FiLotV2-sub001/internal/cache"
	"github.com/gbsoe/FiLotV2-sub001/internal/config"
)

func main() {
	user := flag.String("user", "", "only this user's attempts (default: everyone)")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down subscriber")
		cancel()
	}()

	cfg := config.Load()
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer client.Close()

	feed := cache.NewRedisCache(client, logger)
	events, err := feed.SubscribeAttempts(ctx, *user)
	if err != nil {
		logger.WithError(err).Fatal("Failed to subscribe")
	}

	logger.Info("Subscriber running. Press Ctrl+C to stop.")
	for ev := range events {
		entry := logger.WithFields(logrus.Fields{
			"attempt_id": ev.AttemptID,
			"user_id":    ev.UserID,
			"pool_id":    ev.PoolID,
			"status":     ev.Status,
		})
		if ev.TxSignature != "" {
			entry = entry.WithField("signature", ev.TxSignature)
		}
		if ev.FailureCode != "" {
			entry = entry.WithField("failure", ev.FailureCode)
		}
		entry.Info("Attempt event")
	}
}
