package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/birzha-dev/birzha/params"
	"github.com/birzha-dev/birzha/pkg/api"
	"github.com/birzha-dev/birzha/pkg/broadcast"
	"github.com/birzha-dev/birzha/pkg/exchange"
	"github.com/birzha-dev/birzha/pkg/exchange/engine"
	"github.com/birzha-dev/birzha/pkg/storage"
	"github.com/birzha-dev/birzha/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLogger(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	var store *storage.PebbleStore
	if cfg.Storage.Dir != "" {
		store, err = storage.Open(cfg.Storage.Dir)
		if err != nil {
			sugar.Fatalw("storage_open_failed", "dir", cfg.Storage.Dir, "err", err)
		}
		defer store.Close()
		sugar.Infow("storage_opened", "dir", cfg.Storage.Dir)
	} else {
		sugar.Warn("persistence disabled, running in-memory only")
	}

	// ---- Trading core ----
	ex, err := exchange.New(sugar, util.RealClock{}, store)
	if err != nil {
		sugar.Fatalw("exchange_init_failed", "err", err)
	}
	ex.EnsureAdmin(cfg.Admin.Name, cfg.Admin.APIKey)

	// ---- Trade broadcaster (optional) ----
	if len(cfg.Kafka.Brokers) > 0 {
		bc, err := broadcast.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, sugar)
		if err != nil {
			sugar.Fatalw("broadcaster_init_failed", "brokers", cfg.Kafka.Brokers, "err", err)
		}
		defer bc.Close()
		ex.OnTrade(func(t engine.Trade) { bc.Publish(t) })
		go bc.Run(ctx)
	} else {
		sugar.Info("kafka disabled - no brokers configured")
	}

	// ---- API Server ----
	apiServer := api.NewServer(ex, sugar, cfg.HTTP.AllowedOrigins)
	go func() {
		if err := apiServer.Start(cfg.HTTP.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("birzhad_started",
		"addr", cfg.HTTP.Addr,
		"instruments", len(ex.Instruments()),
		"kafka", len(cfg.Kafka.Brokers) > 0,
		"persistent", store != nil)

	<-ctx.Done()
	sugar.Info("shutting down")
}
