// main package for the narration-service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/book-expert/narration-service/internal/assetstore"
	"github.com/book-expert/narration-service/internal/config"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/elevenlabs"
	"github.com/book-expert/narration-service/internal/pronounce"
	"github.com/book-expert/narration-service/internal/queue"
	"github.com/book-expert/narration-service/internal/server"
	"github.com/book-expert/narration-service/internal/statusstore"
	"github.com/book-expert/narration-service/internal/submission"
	"github.com/book-expert/narration-service/internal/worker"
)

const (
	dependencyPingTimeout = 5 * time.Second
	shutdownTimeout       = 10 * time.Second
)

var errNATSDisconnected = errors.New("nats connection is not active")

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "narration-service.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// Environment files are optional outside development.
	_ = godotenv.Load()

	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runService(ctx, cfg, finalLog)
}

func runService(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})

	defer func() {
		closeErr := redisClient.Close()
		if closeErr != nil {
			log.Error("Failed to close Redis client: %v", closeErr)
		}
	}()

	pingCtx, cancelPing := context.WithTimeout(ctx, dependencyPingTimeout)
	defer cancelPing()

	err = redisClient.Ping(pingCtx).Err()
	if err != nil {
		return fmt.Errorf("failed to reach Redis at %s: %w", cfg.Redis.Addr, err)
	}

	jobTimeout := cfg.ElevenLabs.Timeout() + time.Minute

	// The ack deadline must outlive the longest job, or JetStream
	// redelivers it while the first worker is still on it.
	jobQueue, err := queue.New(
		natsConnection, jetstreamContext,
		cfg.NATS.JobStreamName, cfg.NATS.JobSubject, cfg.NATS.JobConsumerName,
		jobTimeout+time.Minute,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create job queue: %w", err)
	}

	assets, err := assetstore.New(jetstreamContext, cfg.Assets.BucketsByHandle())
	if err != nil {
		return fmt.Errorf("failed to create asset store: %w", err)
	}

	statuses := statusstore.New(redisClient)

	synthesizer := elevenlabs.NewClient(
		cfg.ElevenLabs.BaseURL,
		cfg.ElevenLabs.APIKey,
		elevenlabs.VoiceSettings{
			Stability:       cfg.ElevenLabs.Stability,
			SimilarityBoost: cfg.ElevenLabs.SimilarityBoost,
			Style:           cfg.ElevenLabs.Style,
			UseSpeakerBoost: cfg.ElevenLabs.UseSpeakerBoost,
		},
		cfg.ElevenLabs.Timeout(),
	)

	substituter := pronounce.NewSubstituter(cfg.Rules())
	submitter := submission.New(jobQueue, substituter, cfg.ElevenLabs.APIKey != "", log)

	generator := worker.New(
		statuses, assets, synthesizer,
		cfg.Assets.VolumeHandle, cfg.Paths.TempDir,
		cfg.Redis.StatusTTL(),
		log,
	)

	apiServer := server.New(submitter, statuses, map[string]server.HealthCheck{
		"redis": func(checkCtx context.Context) error {
			pingErr := redisClient.Ping(checkCtx).Err()
			if pingErr != nil {
				return fmt.Errorf("redis ping failed: %w", pingErr)
			}

			return nil
		},
		"nats": func(_ context.Context) error {
			if !natsConnection.IsConnected() {
				return errNATSDisconnected
			}

			return nil
		},
	}, cfg.HTTP.AuthToken, log)

	return serve(ctx, cfg, log, jobQueue, generator, apiServer, jobTimeout)
}

func serve(
	ctx context.Context,
	cfg *config.Config,
	log *logger.Logger,
	jobQueue *queue.JobQueue,
	generator *worker.Generator,
	apiServer *server.Server,
	jobTimeout time.Duration,
) error {
	queueDone := make(chan error, 1)

	go func() {
		queueDone <- jobQueue.Run(ctx, func(job core.AudioJob) {
			// Jobs survive an HTTP shutdown but must not run unbounded.
			jobCtx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()

			generator.Process(jobCtx, job)
		})
	}()

	httpServer := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: dependencyPingTimeout,
	}

	httpDone := make(chan error, 1)

	go func() {
		log.System("Narration service listening on %s", cfg.HTTP.ListenAddr)

		serveErr := httpServer.ListenAndServe()
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			httpDone <- serveErr

			return
		}

		httpDone <- nil
	}()

	select {
	case <-ctx.Done():
		log.System("Shutdown signal received")
	case serveErr := <-httpDone:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := httpServer.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		log.Error("Failed to shut down HTTP server cleanly: %v", shutdownErr)
	}

	queueErr := <-queueDone
	if queueErr != nil {
		return fmt.Errorf("job queue failed: %w", queueErr)
	}

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
