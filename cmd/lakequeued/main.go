// Command lakequeued runs a lakequeue worker host, the admin HTTP API and
// an optional cron trigger in one process. It is configured entirely from
// LAKEQUEUE_* environment variables.
//
// Usage:
//
//	LAKEQUEUE_RECORD_STORE=redis LAKEQUEUE_DISPATCH_QUEUE=redis lakequeued
//
// Then, from another terminal:
//
//	curl -X POST localhost:8080/v1/queues/0/jobs \
//	  -d '{"definitions":["{\"jobType\":\"sleep\",\"seconds\":5}"],"groupId":1}'
//	curl localhost:8080/v1/queues/0/groups/1/jobs
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/lakequeue"
	"github.com/xraph/lakequeue/api"
	audithook "github.com/xraph/lakequeue/audit_hook"
	"github.com/xraph/lakequeue/backoff"
	"github.com/xraph/lakequeue/cron"
	"github.com/xraph/lakequeue/engine"
	"github.com/xraph/lakequeue/ext"
	"github.com/xraph/lakequeue/job"
	"github.com/xraph/lakequeue/middleware"
	"github.com/xraph/lakequeue/observability"
	"github.com/xraph/lakequeue/queue"
	"github.com/xraph/lakequeue/worker"
)

func main() {
	cfg, err := lakequeue.LoadConfig()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("lakequeued stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg lakequeue.Config, logger *slog.Logger) error {
	b := &backends{cfg: cfg, logger: logger}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("closing backends", slog.String("error", err.Error()))
		}
	}()

	records, err := b.openStore(ctx)
	if err != nil {
		return fmt.Errorf("record store: %w", err)
	}
	messages, err := b.openQueue(ctx)
	if err != nil {
		return fmt.Errorf("dispatch queue: %w", err)
	}
	codec, err := engine.CodecByName(cfg.Codec)
	if err != nil {
		return err
	}

	totals := observability.NewCounterExtension()
	defer totals.LogTotals(context.Background(), logger)

	extensions := ext.NewRegistry(logger)
	extensions.Register(observability.NewMetricsExtension())
	extensions.Register(totals)
	if cfg.Audit {
		extensions.Register(audithook.New(audithook.NewLogRecorder(logger.With(slog.String("component", "audit"))),
			audithook.WithLogger(logger)))
	}

	eng := engine.New(records, messages,
		engine.WithLogger(logger),
		engine.WithCodec(codec),
		engine.WithExtensions(extensions),
		engine.WithQueuePrefix(cfg.QueuePrefix),
		engine.WithDefaultVisibility(cfg.HeartbeatTimeout),
	)
	if err := eng.Ping(ctx); err != nil {
		return fmt.Errorf("ping record store: %w", err)
	}

	qt := job.QueueType(cfg.QueueType)
	host := worker.NewHost(eng, builtinJobs(),
		worker.WithQueueType(qt),
		worker.WithConcurrency(cfg.Concurrency),
		worker.WithHeartbeatTimeout(cfg.HeartbeatTimeout),
		worker.WithKeepAliveInterval(cfg.KeepAlive()),
		worker.WithPollInterval(cfg.PollInterval),
		worker.WithShutdownTimeout(cfg.ShutdownTimeout),
		worker.WithBackoff(backoff.NewExponentialWithJitter(cfg.PollInterval, cfg.MaxPollInterval)),
		worker.WithQueueManager(queue.NewManager(queue.Config{QueueType: qt, MaxConcurrency: cfg.Concurrency})),
		worker.WithExtensions(extensions),
		worker.WithLogger(logger),
		worker.WithCancelGroupOnFailure(cfg.CancelGroupOnFailure),
		worker.WithMiddleware(
			middleware.Recover(logger),
			middleware.Logging(logger),
			middleware.Tracing(),
			middleware.Metrics(),
			middleware.Timeout(cfg.JobTimeout, logger),
		),
	)

	scheduler, err := newScheduler(cfg, eng, extensions, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return host.Run(gctx) })

	if scheduler != nil {
		if err := scheduler.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			return scheduler.Stop(context.Background())
		})
	}

	if cfg.APIAddr != "" {
		opts := []api.Option{api.WithLogger(logger)}
		if scheduler != nil {
			opts = append(opts, api.WithScheduler(scheduler))
		}
		srv := &http.Server{
			Addr:              cfg.APIAddr,
			Handler:           api.New(eng, opts...).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("api listening", slog.String("addr", cfg.APIAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("lakequeued started",
		slog.String("worker_id", host.WorkerID()),
		slog.Int("queue_type", int(qt)),
		slog.String("record_store", cfg.RecordStore),
		slog.String("dispatch_queue", cfg.DispatchQueue),
	)
	return g.Wait()
}

// newScheduler returns nil when no schedule is configured.
func newScheduler(cfg lakequeue.Config, eng *engine.Engine, extensions *ext.Registry, logger *slog.Logger) (*cron.Scheduler, error) {
	if cfg.Schedule == "" {
		return nil, nil //nolint:nilnil // cron disabled
	}
	build, err := cron.Template(cfg.ScheduleDefinition, cron.DefaultSlotField)
	if err != nil {
		return nil, fmt.Errorf("schedule definition: %w", err)
	}

	enqueue := func(ctx context.Context, qt job.QueueType, groupID int64, defs []string) ([]*job.Job, error) {
		return eng.Enqueue(ctx, qt, defs, engine.WithGroupID(groupID))
	}
	s := cron.NewScheduler(enqueue, extensions, logger)
	err = s.Add(&cron.Entry{
		Name:      "default",
		Schedule:  cfg.Schedule,
		QueueType: job.QueueType(cfg.QueueType),
		GroupID:   cfg.ScheduleGroupID,
		Build:     build,
		Enabled:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}
	return s, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
