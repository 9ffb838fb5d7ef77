package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chirality-ai/valley/internal/queue"
	"github.com/chirality-ai/valley/internal/storage"
	"github.com/chirality-ai/valley/internal/util"
	"github.com/chirality-ai/valley/pkg/graph"
	"github.com/chirality-ai/valley/pkg/leaselock"
	s3loader "github.com/chirality-ai/valley/pkg/loader/s3"
	"github.com/chirality-ai/valley/pkg/logger"
	"github.com/chirality-ai/valley/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		Format: util.GetEnv("LOG_FORMAT"),
	})
	logger.Init(consoleLogger)

	if !queue.Enabled() {
		logger.Fatal("RABBITMQ_HOST is required for the worker")
	}

	// Graph store
	gateway, pool, err := storage.OpenGraphStore(ctx)
	if err != nil {
		logger.Fatal("Unable to open graph store", "err", err)
	}
	graphClient, err := graph.NewGraphClient(graph.NewGraphClientParams{Gateway: gateway})
	if err != nil {
		logger.Fatal("Could not create graph client", "err", err)
	}
	defer graphClient.Close()

	if err := graphClient.EnsurePipeline(ctx, graphClient.Stations()); err != nil {
		logger.Fatal("Failed to bootstrap station pipeline", "err", err)
	}

	var locker leaselock.Locker = leaselock.NewLocal()
	if pool != nil {
		locker = leaselock.New(pool)
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	// A single consumer channel with prefetch=1 delivers one message at a
	// time across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	processor := &queue.Processor{
		Graph:  graphClient,
		Locker: locker,
		Events: ch,
	}
	if s3 := storage.NewS3Client(ctx); s3 != nil {
		processor.Loader = s3loader.NewS3DocumentLoaderWithClient(storage.Bucket(), s3)
	}

	logger.Info("Listening for messages", "queues", queue.Queues)
	if err := queue.Consume(ctx, consumerCh, processor, queue.Queues); err != nil {
		logger.Error("Consumer stopped", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}
