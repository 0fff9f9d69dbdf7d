package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/realtime-chat/internal/api"
	"github.com/fathima-sithara/realtime-chat/internal/auth"
	"github.com/fathima-sithara/realtime-chat/internal/config"
	"github.com/fathima-sithara/realtime-chat/internal/engine"
	"github.com/fathima-sithara/realtime-chat/internal/events"
	"github.com/fathima-sithara/realtime-chat/internal/hub"
	"github.com/fathima-sithara/realtime-chat/internal/logger"
	"github.com/fathima-sithara/realtime-chat/internal/presence"
	"github.com/fathima-sithara/realtime-chat/internal/store"
	"github.com/fathima-sithara/realtime-chat/internal/unread"
	"github.com/fathima-sithara/realtime-chat/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("APP_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	if cfg.JWT.Secret == "" {
		log.Fatal("APP_JWT_SECRET is required")
	}

	zlog, err := logger.New(logger.Config{Development: cfg.Development})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	var chatStore store.ChatStore
	if cfg.Mongo.URI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		cancel()
		if err != nil {
			zlog.Fatalw("mongo connect", "err", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		chatStore = store.NewMongoStore(client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection))
		zlog.Infow("using mongo store", "database", cfg.Mongo.Database)
	} else {
		chatStore = store.NewMemoryStore()
		zlog.Warn("APP_MONGO_URI not set, using in-memory store")
	}

	var mirror presence.Mirror
	if cfg.Redis.Addr != "" {
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rc.Ping(ctx).Err()
		cancel()
		if err != nil {
			zlog.Fatalw("redis ping", "err", err)
		}
		defer func() { _ = rc.Close() }()
		mirror = presence.NewRedisMirror(rc, cfg.Redis.Prefix)
		zlog.Infow("presence mirror enabled", "addr", cfg.Redis.Addr)
	}

	var pub events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = producer.Close() }()
		pub = producer
		zlog.Infow("event producer enabled", "topic", cfg.Kafka.Topic)
	}

	verifier := auth.NewVerifier(cfg.JWT.Secret)
	rooms := hub.New(zlog)
	registry := presence.NewRegistry(mirror, zlog)
	ledger := unread.NewLedger()
	eng := engine.New(chatStore, registry, rooms, ledger, pub, zlog)

	wsHandler := ws.NewHandler(verifier, eng, registry, rooms, ws.Config{
		PingInterval:   cfg.PingInterval,
		WriteDeadline:  cfg.WriteDeadline,
		MaxMessageSize: cfg.WS.MaxMessageSize,
		SendBuffer:     cfg.WS.SendBuffer,
	}, zlog)

	app := api.NewServer(eng, registry, verifier, wsHandler, zlog, api.Options{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	errs := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Server.Port
		zlog.Infow("starting realtime chat service", "addr", addr)
		errs <- app.Listen(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errs:
		zlog.Fatalw("server error", "err", err)
	case s := <-sig:
		zlog.Infow("signal received", "signal", s.String())
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zlog.Warnw("shutdown", "err", err)
	}
	zlog.Info("stopped")
}
