// Package main provides the expiring-prescription notifier entry point. Cron
// runs it daily; it walks the flags the fill batch recorded and sends the
// renewal reminder sequence.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/meridianrx/fillengine/internal/config"
	"github.com/meridianrx/fillengine/internal/crm/konnektive"
	"github.com/meridianrx/fillengine/internal/infrastructure/kafka"
	"github.com/meridianrx/fillengine/internal/notify"
	"github.com/meridianrx/fillengine/internal/store"
	"github.com/meridianrx/fillengine/pkg/circuitbreaker"
	"github.com/meridianrx/fillengine/pkg/runlock"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var logger *zap.Logger
	if cfg.App.Env == "development" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("notifier failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	lock, held, err := runlock.New(rdb, logger).Acquire(ctx, "expiring-rx", cfg.Redis.LockTTL)
	if err != nil {
		return err
	}
	if !held {
		logger.Info("another notifier is running, exiting")
		return nil
	}
	defer lock.Release(ctx)

	db, err := store.Open(cfg.MySQL.DSN)
	if err != nil {
		return err
	}
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	flags := store.NewExpiringRxStore(db, logger)

	breakers := circuitbreaker.NewManager(logger)

	knkCfg := konnektive.DefaultConfig()
	if cfg.Konnektive.BaseURL != "" {
		knkCfg.BaseURL = cfg.Konnektive.BaseURL
	}
	knkCfg.LoginID = cfg.Konnektive.LoginID
	knkCfg.Password = cfg.Konnektive.Password
	crm := konnektive.NewClient(knkCfg, breakers.GetOrCreate("konnektive"), logger)

	smsCfg := notify.DefaultSMSConfig()
	smsCfg.URL = cfg.SMS.URL
	smsCfg.Token = cfg.SMS.Token
	smsCfg.From = cfg.SMS.From
	messenger := notify.NewSMSClient(smsCfg, logger)

	var events notify.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		pcfg := kafka.DefaultProducerConfig()
		pcfg.Brokers = cfg.Kafka.Brokers
		producer, err := kafka.NewProducer(pcfg, logger)
		if err != nil {
			logger.Warn("producer creation failed, events disabled", zap.Error(err))
		} else {
			defer producer.Close()
			events = producer
		}
	}

	notifier := notify.New(flags, crm, messenger, events, logger)

	logger.Info("starting expiring-rx notifier")
	return notifier.Run(ctx)
}
