// Command chatserver runs the TCP chat server. Configuration comes from the
// environment (see the config package); an optional .env file is honored.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/go-chat/config"
	"github.com/cyberinferno/go-chat/history"
	"github.com/cyberinferno/go-chat/logger"
	"github.com/cyberinferno/go-chat/registry"
	"github.com/cyberinferno/go-chat/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Close()
	}()

	store, err := buildHistoryStore(cfg)
	if err != nil {
		log.Error("history backend unavailable", logger.Field{Key: "error", Value: err})
		os.Exit(1)
	}

	srv := server.NewChatServer(cfg.ServiceName, cfg.ListenAddr, registry.NewRegistry(), store, log)
	if err := srv.Start(); err != nil {
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		srv.Stop(cfg.ShutdownTimeout)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", logger.Field{Key: "error", Value: err})
		os.Exit(1)
	}
}

// buildLogger wires the zerolog-backed logger, writing to a log file as well
// when CHAT_LOG_DIR is set.
func buildLogger(cfg config.Config) (logger.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	if cfg.LogDir != "" {
		return logger.NewZerologFileLogger(cfg.ServiceName, cfg.LogDir, level)
	}

	return logger.NewZerologLogger(zerolog.New(os.Stdout), cfg.ServiceName, level), nil
}

// buildHistoryStore selects the group history backend: Redis when
// CHAT_REDIS_ADDR is set, in-memory otherwise.
func buildHistoryStore(cfg config.Config) (history.Store, error) {
	if cfg.RedisAddr == "" {
		return history.NewMemoryStore(cfg.HistoryDepth, cfg.HistoryTTL), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed for %s: %w", cfg.RedisAddr, err)
	}

	return history.NewRedisStore(client, cfg.HistoryDepth, cfg.HistoryTTL), nil
}
