package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/yelerty/stickermaker/internal/domain/port"
	"github.com/yelerty/stickermaker/internal/gifmaker"
	"github.com/yelerty/stickermaker/internal/infra/api"
	"github.com/yelerty/stickermaker/internal/infra/archive"
	"github.com/yelerty/stickermaker/internal/infra/config"
	"github.com/yelerty/stickermaker/internal/infra/email"
	"github.com/yelerty/stickermaker/internal/infra/ffmpeg"
	"github.com/yelerty/stickermaker/internal/infra/kafka"
	"github.com/yelerty/stickermaker/internal/infra/metrics"
	miniostorage "github.com/yelerty/stickermaker/internal/infra/minio"
	"github.com/yelerty/stickermaker/internal/infra/postgres"
	"github.com/yelerty/stickermaker/internal/infra/rabbitmq"
	"github.com/yelerty/stickermaker/internal/infra/redis"
	"github.com/yelerty/stickermaker/internal/infra/segmentation"
	"github.com/yelerty/stickermaker/internal/infra/tracing"
	"github.com/yelerty/stickermaker/internal/usecase"
	"github.com/yelerty/stickermaker/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	var logOpts []logger.Option
	if cfg.LogFile != "" {
		logOpts = append(logOpts, logger.WithFile(cfg.LogFile, 100, 5, 14))
	}
	log, err := logger.New(cfg.LogLevel, logOpts...)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting stickermaker worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.JaegerEndpoint,
		ServiceName: cfg.ServiceName,
		SampleRatio: cfg.TraceSampling,
	})
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(5 * time.Second)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	fatalOnErr(postgres.RunMigrations(ctx, cfg.DatabaseURL), "run migrations")

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		Region:       cfg.MinIORegion,
		InputBucket:  cfg.MinIOInputBucket,
		OutputBucket: cfg.MinIOOutputBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// Redis: progress cache, cancel flags, segmentation cache
	rdb, err := redis.Connect(ctx, redis.ClientConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	fatalOnErr(err, "connect to redis")
	defer rdb.Close()

	progressCache := redis.NewProgressCache(rdb)
	cancels := redis.NewCancelStore(rdb)

	segmenter, err := buildSegmenter(cfg, rdb, log)
	fatalOnErr(err, "create segmenter")

	hub := api.NewHub(log)
	sinks := []port.ProgressSink{progressCache, hub}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProgressProducer(cfg.KafkaBrokers, cfg.KafkaProgressTopic, log)
		if err != nil {
			log.Warn("kafka unavailable, progress events stay local", zap.Error(err))
		} else {
			defer producer.Close()
			sinks = append(sinks, producer)
		}
	}

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// GIF pipeline
	pipeline := gifmaker.NewPipeline(
		ffmpeg.NewDecoder(cfg.FFmpegPath, log),
		segmenter,
		log,
		gifmaker.PipelineConfig{
			MaxFrames:               cfg.MaxFrames,
			SegmentationConcurrency: cfg.SegmentationConcurrency,
		},
	)

	repo := postgres.NewJobRepository(pool)

	uc := usecase.NewGifJobUseCase(usecase.GifJobDeps{
		Repo:      repo,
		Storage:   storage,
		Maker:     pipeline,
		Prober:    ffmpeg.NewProber(cfg.FFprobePath),
		Packs:     archive.NewPackWriter(),
		Publisher: statusPub,
		DLQ:       dlqPub,
		Notifier:  email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log),
		Cancels:   cancels,
		Sinks:     sinks,
	}, log, usecase.GifJobConfig{
		TempDir:            cfg.TempDir,
		MaxRetries:         cfg.MaxRetries,
		CancelPollInterval: cfg.CancelPollInterval,
	})

	// HTTP: health, metrics, job status and live progress
	router := api.NewRouter(api.ServerConfig{
		Jobs:     repo,
		Progress: progressCache,
		Cancels:  cancels,
		Hub:      hub,
		Logger:   log,
	})
	httpSrv := metrics.StartServer(ctx, cfg.HTTPPort, router, log)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQRequestQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("stickermaker worker started, consuming messages",
		zap.String("segmenter", cfg.SegmenterKind),
		zap.Int("http_port", cfg.HTTPPort),
	)

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("stickermaker worker stopped")
}

// buildSegmenter returns nil for "none"; background removal requests then fail
// validation.
func buildSegmenter(cfg *config.Config, rdb *goredis.Client, log *zap.Logger) (gifmaker.Segmenter, error) {
	var seg gifmaker.Segmenter
	switch cfg.SegmenterKind {
	case "none":
		return nil, nil
	case "remote":
		seg = segmentation.NewRemoteSegmenter(segmentation.RemoteConfig{
			URL:     cfg.SegmenterURL,
			Timeout: cfg.SegmenterTimeout,
			Rate:    cfg.SegmenterRate,
			Burst:   cfg.SegmenterBurst,
		}, log)
	case "face":
		face, err := segmentation.NewFaceSegmenter(cfg.SegmenterCascade, log)
		if err != nil {
			return nil, err
		}
		seg = face
	default:
		return nil, fmt.Errorf("unknown segmenter kind %q", cfg.SegmenterKind)
	}

	if cfg.SegmenterCacheTTL <= 0 {
		return seg, nil
	}
	return segmentation.NewCachedSegmenter(seg, rdb, cfg.SegmenterCacheTTL, log), nil
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
