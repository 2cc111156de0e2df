// Command devapi serves the league auth API and publishes admin events to
// the AMQP topic exchange.  It is the backend leaguectl talks to locally.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/league-client/internal/config"
	"github.com/iliyamo/league-client/internal/devapi"
	"github.com/iliyamo/league-client/internal/logger"
	"github.com/iliyamo/league-client/internal/service"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		logger.New(logger.Config{}).Error("load config", "err", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub := service.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger.Component(log, "publisher"))
	defer pub.Close()

	opts := devapi.Options{Publisher: pub, Logger: log}
	if cfg.ThrottleLogin {
		var rdb *redis.Client
		rdb, err = config.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Error("redis", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		opts.Redis = rdb
	}

	srv, err := devapi.New(ctx, cfg, opts)
	if err != nil {
		log.Error("start", "err", err)
		os.Exit(1)
	}
	defer srv.Close()

	if err := srv.Run(ctx); err != nil {
		log.Error("serve", "err", err)
		os.Exit(1)
	}
}
