// Package main provides the fill batch entry point. Cron runs it twice a day;
// a Redis lock guarantees the overlapping runs of a slow batch never double
// process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/meridianrx/fillengine/internal/catalog"
	"github.com/meridianrx/fillengine/internal/config"
	"github.com/meridianrx/fillengine/internal/crm/konnektive"
	"github.com/meridianrx/fillengine/internal/infrastructure/kafka"
	"github.com/meridianrx/fillengine/internal/observability/metrics"
	"github.com/meridianrx/fillengine/internal/observability/tracing"
	"github.com/meridianrx/fillengine/internal/prescriptions"
	"github.com/meridianrx/fillengine/internal/reports"
	"github.com/meridianrx/fillengine/internal/resolver"
	"github.com/meridianrx/fillengine/internal/router"
	"github.com/meridianrx/fillengine/internal/store"
	"github.com/meridianrx/fillengine/internal/welldyne"
	"github.com/meridianrx/fillengine/pkg/circuitbreaker"
	"github.com/meridianrx/fillengine/pkg/runlock"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	backfillDate := flag.String("backfill-date", "", "reprocess a historical date (YYYY-MM-DD), no files ship")
	timeslot := flag.String("timeslot", "", "trigger timeslot token, defaults by hour")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.App.Env)
	defer logger.Sync()

	if err := run(cfg, logger, *backfillDate, *timeslot); err != nil {
		logger.Error("batch failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger, backfillDate, timeslot string) error {
	ctx := context.Background()

	opts := router.Options{Date: time.Now().UTC(), Timeslot: timeslot}
	if backfillDate != "" {
		date, err := time.Parse("2006-01-02", backfillDate)
		if err != nil {
			return fmt.Errorf("parse backfill date: %w", err)
		}
		opts.Date = date
		opts.Backfill = true
	}
	if opts.Timeslot == "" {
		opts.Timeslot = welldyne.TimeslotMorning
		if time.Now().UTC().Hour() >= 12 {
			opts.Timeslot = welldyne.TimeslotNoon
		}
	}

	if cfg.App.OTLPEndpoint != "" {
		tcfg := tracing.DefaultConfig("fill-router")
		tcfg.Environment = cfg.App.Env
		tcfg.OTLPEndpoint = cfg.App.OTLPEndpoint
		provider, err := tracing.Init(ctx, tcfg)
		if err != nil {
			logger.Warn("tracing init failed", zap.Error(err))
		} else {
			defer provider.Shutdown(ctx)
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	lock, held, err := runlock.New(rdb, logger).Acquire(ctx, "fill-router", cfg.Redis.LockTTL)
	if err != nil {
		return err
	}
	if !held {
		logger.Info("another batch is running, exiting")
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

	errStore := store.NewFillErrorStore(db, logger)
	flagStore := store.NewExpiringRxStore(db, logger)

	breakers := circuitbreaker.NewManager(logger)

	knkCfg := konnektive.DefaultConfig()
	if cfg.Konnektive.BaseURL != "" {
		knkCfg.BaseURL = cfg.Konnektive.BaseURL
	}
	knkCfg.LoginID = cfg.Konnektive.LoginID
	knkCfg.Password = cfg.Konnektive.Password
	crm := konnektive.NewClient(knkCfg, breakers.GetOrCreate("konnektive"), logger)

	rxCfg := prescriptions.DefaultClientConfig()
	rxCfg.BaseURL = cfg.DoseSpot.BaseURL
	rxCfg.InternalKey = cfg.DoseSpot.InternalKey
	rxs := prescriptions.NewClient(rxCfg, breakers.GetOrCreate("dosespot"), logger)

	mailer := reports.NewMailer(reports.SMTPConfig{
		Host:              cfg.SMTP.Host,
		Port:              cfg.SMTP.Port,
		User:              cfg.SMTP.User,
		Password:          cfg.SMTP.Password,
		From:              cfg.SMTP.From,
		DevAddress:        cfg.SMTP.DevAddress,
		PharmacyAddresses: cfg.SMTP.PharmacyAddresses,
	}, nil, logger)

	sftpCfg := welldyne.DefaultSFTPConfig()
	sftpCfg.Host = cfg.WellDyne.Host
	sftpCfg.Port = cfg.WellDyne.Port
	sftpCfg.User = cfg.WellDyne.User
	sftpCfg.Password = cfg.WellDyne.Password
	sftpCfg.RemoteDir = cfg.WellDyne.RemoteDir
	uploader := welldyne.NewUploader(sftpCfg, logger)

	var events router.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		if err := kafka.EnsureTopics(ctx, cfg.Kafka.Brokers, logger); err != nil {
			logger.Warn("ensure topics failed, events disabled", zap.Error(err))
		} else {
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
	}

	m := metrics.New()
	flags := store.CountingFlagStore{Store: flagStore, Counter: m.ExpiringFlags}
	res := resolver.New(resolver.ClockAt(opts.Date), catalog.Default(), crm, rxs, flags, mailer, logger)
	batch := router.New(res, crm, errStore, uploader, mailer, events, m, logger)

	defer func() {
		if p := recover(); p != nil {
			stack := debug.Stack()
			logger.Error("batch panicked", zap.Any("panic", p), zap.ByteString("stack", stack))
			mailer.Crash(fmt.Sprint(p), stack)
			lock.Release(ctx)
			os.Exit(1)
		}
	}()

	logger.Info("starting fill batch",
		zap.Time("date", opts.Date),
		zap.String("timeslot", opts.Timeslot),
		zap.Bool("backfill", opts.Backfill))

	_, err = batch.Run(ctx, opts)
	return err
}

func newLogger(env string) *zap.Logger {
	var logger *zap.Logger
	if env == "development" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	return logger
}
