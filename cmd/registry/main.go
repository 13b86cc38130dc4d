package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"p2p-chat/config"
	"p2p-chat/registry"
	"p2p-chat/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load()
	addr := flag.String("addr", cfg.RegistryAddr, "HTTP listen address")
	redisAddr := flag.String("redis", cfg.RedisAddr, "Redis address (empty for in-memory storage)")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	srv := registry.NewServer(newRegistry(*redisAddr, cfg, sugar), sugar)

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	go srv.Registry().Run(sweepCtx)

	go func() {
		if err := srv.Listen(*addr); err != nil {
			sugar.Fatalw("registry server failed", "error", err)
		}
	}()
	sugar.Infow("rendezvous registry started", "addr", *addr)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return srv.Shutdown()
			},
			"expiry-sweep": func(ctx context.Context) error {
				cancelSweep()
				return nil
			},
		},
	)
	exitCode := <-wait
	sugar.Infow("registry stopped", "code", exitCode)
	os.Exit(exitCode)
}

// newRegistry picks the store: Redis when reachable, otherwise in-memory.
func newRegistry(redisAddr string, cfg *config.Config, sugar *zap.SugaredLogger) *registry.Registry {
	regCfg := registry.Config{TTL: cfg.PeerTTL, SweepInterval: cfg.SweepEvery}

	if redisAddr != "" {
		rdb := store.NewRedis(redis.NewClient(&redis.Options{Addr: redisAddr}))
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx); err == nil {
			sugar.Infow("connected to Redis", "addr", redisAddr)
			return registry.New(rdb, regCfg, sugar)
		}
		sugar.Warnw("Redis not available, using in-memory storage", "addr", redisAddr)
	}
	return registry.New(store.NewMemory(), regCfg, sugar)
}
