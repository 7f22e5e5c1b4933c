package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"auctionhouse/internal/clock"
	"auctionhouse/internal/config"
	"auctionhouse/internal/database/db_client"
	"auctionhouse/internal/http/http_server"
	"auctionhouse/internal/ledger/redisledger"
	"auctionhouse/internal/notify"
	"auctionhouse/internal/redis/redis_client"
	"auctionhouse/internal/redis/redis_functions"
	"auctionhouse/internal/redis/watcher/auctionwatcher"
	"auctionhouse/internal/services/auction"
	"auctionhouse/internal/services/closer"
	"auctionhouse/internal/syncbid"
	"auctionhouse/internal/syncdb"
	"auctionhouse/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis: hot-path ledger
	redisClient, err := redis_client.NewRedisClient(cfg.RedisAuctionsHost, int(cfg.RedisAuctionsPort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()

	if err := redis_functions.LoadAll(ctx, redisClient); err != nil {
		Log.Fatal("load-redis-funcs", zap.Error(err))
	}

	// 4. Postgres: durable mirror
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()

	if err := db_client.Migrate(ctx, pgDb); err != nil {
		Log.Fatal("pg-migrate", zap.Error(err))
	}

	// 5. Engine: ledger, closer, arbitration service
	led := redisledger.New(redisClient, cfg.BidMinIncrement)
	emitter := notify.NewRedisEmitter(redisClient)
	auctionCloser := closer.New(led, pgDb, emitter)
	auctionService := auction.NewAuctionService(led, pgDb, auctionCloser)

	// 6. Background: deadline poll + key-expiry fast path
	clock.Run(ctx, pgDb, auctionCloser, cfg.ClockPollInterval)
	go auctionwatcher.Run(ctx, redisClient, auctionCloser)

	// 7. Background: bid-stream persister + high-bid mirror
	syncbid.Run(ctx, redisClient, pgDb)
	syncdb.Run(ctx, redisClient, pgDb, cfg.SyncInterval)

	// 8. WebSockets hub + Redis fan-out
	hub := ws.NewHub()
	wsSrv := ws.NewWsServer(hub, redisClient, auctionService)

	// 9. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, auctionService)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
