package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/esheo1787/qc-management-system/api/internal/models"
	"github.com/esheo1787/qc-management-system/api/internal/repos"
	"github.com/esheo1787/qc-management-system/shared/cachex"
	"github.com/esheo1787/qc-management-system/shared/config"
	"github.com/esheo1787/qc-management-system/shared/dbx"
	"github.com/esheo1787/qc-management-system/shared/lockx"
	"github.com/esheo1787/qc-management-system/shared/logx"
	"github.com/esheo1787/qc-management-system/shared/metricsx"
	"github.com/esheo1787/qc-management-system/shared/mqx"
	"github.com/esheo1787/qc-management-system/shared/observability"
)

const (
	taskOutboxScan     = "outbox.scan"
	taskOutboxDispatch = "outbox.dispatch"

	scanLockKey = "outbox:scan"
)

type dispatchPayload struct {
	EventID string `json:"event_id"`
}

// relay drains outbox_events: scan claims due rows and fans them out as
// dispatch tasks, dispatch publishes a single row to Kafka.
type relay struct {
	cfg      config.Config
	logger   logx.Logger
	outbox   *repos.OutboxRepo
	producer *mqx.Producer
	cache    *cachex.Client
	redisOpt asynq.RedisClientOpt
	lockTTL  time.Duration
}

func main() {
	cfg, problems := config.Load("outbox-worker", 8083)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	problems = requireField(problems, cfg.DatabaseURL != "", "DATABASE_URL")
	problems = requireField(problems, cfg.AsynqRedisAddr != "", "ASYNQ_REDIS_ADDR")
	problems = requireField(problems, len(cfg.KafkaBrokers) > 0, "KAFKA_BROKERS")
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	if cfg.OtelEnabled {
		shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Version:     version,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		})
		if err == nil {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	if err := run(cfg, logger); err != nil {
		os.Exit(1)
	}
}

func requireField(problems []config.Problem, ok bool, field string) []config.Problem {
	if ok {
		return problems
	}
	return append(problems, config.Problem{Field: field, Message: field + " is required"})
}

func run(cfg config.Config, logger logx.Logger) error {
	dbPool, err := dbx.NewPool(cfg)
	if err != nil {
		logger.Error(context.Background(), "db_init_failed", "db init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer dbPool.Close()

	producer, err := mqx.NewProducer(cfg)
	if err != nil {
		logger.Error(context.Background(), "kafka_init_failed", "kafka producer init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer producer.Close()

	// Redis only guards scan single-flight. Claims stay safe without it
	// through FOR UPDATE SKIP LOCKED.
	var cache *cachex.Client
	if cfg.RedisAddr != "" {
		cache, err = cachex.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "redis_init_failed", "redis init failed, scan lock disabled",
				slog.String("error", err.Error()),
			)
			cache = nil
		} else {
			defer func() { _ = cache.Close() }()
		}
	}

	rl := &relay{
		cfg:      cfg,
		logger:   logger,
		outbox:   repos.NewOutboxRepo(dbPool, cfg.CaseEventsTopic),
		producer: producer,
		cache:    cache,
		redisOpt: asynq.RedisClientOpt{
			Addr:     cfg.AsynqRedisAddr,
			Password: cfg.AsynqRedisPass,
			DB:       cfg.AsynqRedisDB,
		},
		lockTTL: time.Duration(cfg.OutboxLockTTLSec) * time.Second,
	}

	server := asynq.NewServer(rl.redisOpt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
		Queues:      map[string]int{cfg.AsynqQueue: 1},
	})
	defer server.Shutdown()

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskOutboxScan, rl.handleScan)
	mux.HandleFunc(taskOutboxDispatch, rl.handleDispatch)

	scheduler := asynq.NewScheduler(rl.redisOpt, &asynq.SchedulerOpts{Location: time.UTC})
	defer scheduler.Shutdown()
	spec := "@every " + strconv.Itoa(cfg.OutboxScanSec) + "s"
	if _, err := scheduler.Register(spec, asynq.NewTask(taskOutboxScan, nil, asynq.Queue(cfg.AsynqQueue))); err != nil {
		logger.Error(context.Background(), "scheduler_init_failed", "scheduler init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		return err
	}
	if err := scheduler.Start(); err != nil {
		logger.Error(context.Background(), "scheduler_start_failed", "scheduler start failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
		return err
	}

	inspector := asynq.NewInspector(rl.redisOpt)
	defer inspector.Close()
	go rl.watchDepth(inspector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run(mux) }()

	logger.Info(ctx, "worker_start", "outbox worker started",
		slog.String("queue", cfg.AsynqQueue),
		slog.Int("concurrency", cfg.AsynqConcurrency),
		slog.Int("scan_interval_sec", cfg.OutboxScanSec),
	)

	select {
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown_signal", "received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			logger.Error(context.Background(), "worker_failed", "worker failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			return err
		}
	}

	logger.Info(context.Background(), "worker_stop", "outbox worker stopped")
	return nil
}

// handleScan wraps scan in the redis single-flight lock when one is
// configured.
func (rl *relay) handleScan(ctx context.Context, _ *asynq.Task) error {
	if rl.cache == nil {
		return rl.scan(ctx)
	}
	held, err := lockx.WithLock(ctx, rl.cache.Client(), scanLockKey, rl.lockTTL, rl.scan)
	if err != nil {
		return err
	}
	if !held {
		rl.logger.Debug(ctx, "scan_skipped", "another replica holds the scan lock")
	}
	return nil
}

func (rl *relay) scan(ctx context.Context) error {
	released, err := rl.outbox.ReleaseStuck(ctx, rl.lockTTL)
	if err != nil {
		return err
	}
	if released > 0 {
		rl.logger.Warn(ctx, "outbox_stuck_released", "released stuck outbox claims",
			slog.Int("count", released),
		)
	}

	events, err := rl.outbox.ClaimPending(ctx, rl.cfg.ServiceName, rl.cfg.OutboxBatchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	client := asynq.NewClient(rl.redisOpt)
	defer client.Close()
	for _, event := range events {
		payload, _ := json.Marshal(dispatchPayload{EventID: event.EventID.String()})
		task := asynq.NewTask(taskOutboxDispatch, payload, asynq.Queue(rl.cfg.AsynqQueue))
		if _, err := client.Enqueue(task); err != nil {
			rl.logger.Error(ctx, "enqueue_failed", "failed to enqueue outbox dispatch",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			rl.requeue(ctx, event, err)
		}
	}
	return nil
}

func (rl *relay) handleDispatch(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("asynq").Start(ctx, "outbox.dispatch")
	span.SetAttributes(attribute.String("queue", rl.cfg.AsynqQueue))
	defer span.End()

	var payload dispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	eventID, err := uuid.Parse(strings.TrimSpace(payload.EventID))
	if err != nil {
		return err
	}
	event, err := rl.outbox.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if event.Status == repos.OutboxStatusDelivered || event.Status == repos.OutboxStatusDead {
		return nil
	}

	headers := map[string]string{
		"event_id":       event.EventID.String(),
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"published_at":   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := rl.producer.Publish(ctx, event.Topic, []byte(event.AggregateID.String()), event.Payload, headers); err != nil {
		if rl.requeue(ctx, event, err) {
			return nil
		}
		return err
	}
	return rl.outbox.MarkDelivered(ctx, event.EventID)
}

// requeue schedules the next attempt and reports whether the row went to
// the dead-letter state instead.
func (rl *relay) requeue(ctx context.Context, event models.OutboxEvent, cause error) bool {
	attempts := event.Attempts + 1
	nextRetry := time.Now().UTC().Add(backoff(attempts))
	dead := attempts >= rl.cfg.OutboxMaxAttempts
	_ = rl.outbox.MarkFailed(ctx, event.EventID, attempts, &nextRetry, cause.Error(), dead)
	if dead {
		rl.logger.Warn(ctx, "outbox_dead", "outbox event moved to dead-letter",
			slog.String("event_id", event.EventID.String()),
			slog.Int("attempts", attempts),
		)
	}
	return dead
}

func (rl *relay) watchDepth(inspector *asynq.Inspector) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		counts, err := rl.outbox.CountByStatus(ctx)
		cancel()
		if err == nil {
			metricsx.SetOutboxPending(counts[repos.OutboxStatusPending])
			metricsx.SetOutboxDead(counts[repos.OutboxStatusDead])
		}
		if info, err := inspector.GetQueueInfo(rl.cfg.AsynqQueue); err == nil {
			metricsx.SetAsynqQueueDepth(rl.cfg.AsynqQueue, info.Size)
		}
	}
}

// backoff grows quadratically from five seconds and tops out at five minutes.
func backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 5 * time.Second
	}
	delay := time.Duration(attempt*attempt) * 5 * time.Second
	if delay > 5*time.Minute {
		delay = 5 * time.Minute
	}
	return delay
}
