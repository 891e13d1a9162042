package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/api"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/assist"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/backend"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/backend/kafkabus"
	mongorepo "github.com/upsidedowncan/bank-mannru-sub002/internal/backend/mongo"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/backend/redisfeed"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/backend/s3store"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/config"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/discovery"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/logger"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/session"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/ws"
)

func main() {
	_ = godotenv.Load() // load .env if present

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zlog, err := logger.New(logger.Config{Development: cfg.Server.Development})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Mongo
	mc, err := mongorepo.NewClient(ctx, cfg.Mongo.URI)
	if err != nil {
		zlog.Fatalw("mongo init", "err", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()
	repo := mongorepo.NewRepository(mc.Database(cfg.Mongo.Database))

	// Redis feed
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	feed := redisfeed.New(rdb, cfg.Redis.Prefix, zlog)

	// Kafka pipeline: producer for outbound events, relay bridging the event
	// topic back into the redis feed.
	producer := kafkabus.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventTopic, cfg.Kafka.AuditTopic)
	defer func() { _ = producer.Close() }()
	relay := kafkabus.NewRelay(cfg.Kafka.Brokers, cfg.Kafka.EventTopic, cfg.Kafka.GroupID, feed, zlog)
	go relay.Run(ctx)
	defer func() { _ = relay.Close() }()

	// Blob storage (optional; attachments fail with a notice when absent).
	var blobs backend.BlobStore
	if cfg.S3.Bucket != "" {
		s3s, err := s3store.New(ctx, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.Endpoint)
		if err != nil {
			zlog.Fatalw("s3 init", "err", err)
		}
		blobs = s3s
	}

	// Assist completer (optional).
	var completer assist.Completer
	if cfg.Assist.Endpoint != "" {
		completer = assist.WithBreaker(assist.NewHTTPCompleter(
			cfg.Assist.Endpoint,
			cfg.Assist.APIKey,
			cfg.Assist.Model,
			time.Duration(cfg.Assist.RequestTimeoutSecs)*time.Second,
			time.Duration(cfg.Assist.RetryMaxElapsedSecs)*time.Second,
		))
	}

	deps := session.Deps{
		Log:                zlog,
		Store:              repo,
		Feed:               feed,
		Blobs:              blobs,
		Bus:                producer,
		Broadcast:          feed,
		Completer:          completer,
		PageSize:           int64(cfg.Chat.PageSize),
		RetentionCap:       cfg.Chat.RetentionCap,
		SweepEvery:         cfg.SweepEvery,
		TypingWindow:       cfg.TypingWindow,
		MaxAttachmentBytes: cfg.Chat.MaxAttachmentBytes,
		AssistOpts: assist.Options{
			SuggestDebounce:  time.Duration(cfg.Assist.SuggestDebounceMS) * time.Millisecond,
			ModerateDebounce: time.Duration(cfg.Assist.ModerateDebounceMS) * time.Millisecond,
			CallSpacing:      time.Duration(cfg.Assist.ThrottleSpacingMS) * time.Millisecond,
		},
	}

	hub := ws.NewHub()
	server := api.NewServer(zlog, cfg, hub, deps)

	// Consul registration (optional).
	if cfg.Consul.Addr != "" {
		reg, err := discovery.Register(cfg.Consul.Addr, cfg.Consul.ServiceName, cfg.Consul.ServiceID, "127.0.0.1", cfg.Server.Port)
		if err != nil {
			zlog.Fatalw("consul register", "err", err)
		}
		defer func() { _ = reg.Deregister() }()
	}

	go func() {
		zlog.Infow("gateway listening", "port", cfg.Server.Port)
		if err := server.Listen(); err != nil {
			zlog.Fatalw("server listen", "err", err)
		}
	}()

	<-ctx.Done()
	zlog.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		zlog.Warnw("server shutdown", "err", err)
	}
	zlog.Infow("gateway stopped")
}
