package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/esheo1787/qc-management-system/shared/config"
	"github.com/esheo1787/qc-management-system/shared/events"
	"github.com/esheo1787/qc-management-system/shared/influxx"
	"github.com/esheo1787/qc-management-system/shared/logx"
	"github.com/esheo1787/qc-management-system/shared/metricsx"
	"github.com/esheo1787/qc-management-system/shared/mqx"
	"github.com/esheo1787/qc-management-system/shared/observability"
)

const caseEventsMeasurement = "case_events"

func main() {
	cfg, problems := config.Load("case-events-consumer", 8082)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	problems = requireField(problems, len(cfg.KafkaBrokers) > 0, "KAFKA_BROKERS")
	problems = requireField(problems, cfg.KafkaGroupID != "", "KAFKA_CONSUMER_GROUP")
	problems = requireField(problems, cfg.InfluxURL != "", "INFLUX_URL")
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
	sink, err := influxx.New(cfg)
	if err != nil {
		logger.Error(context.Background(), "influx_init_failed", "influx init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer sink.Close()

	reader, err := mqx.NewConsumer(cfg, cfg.CaseEventsTopic, cfg.KafkaGroupID)
	if err != nil {
		logger.Error(context.Background(), "kafka_init_failed", "kafka reader init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "consumer_start", "case events consumer started",
		slog.String("topic", cfg.CaseEventsTopic),
		slog.String("group", cfg.KafkaGroupID),
	)
	consume(ctx, cfg, logger, reader, sink)
	logger.Info(context.Background(), "consumer_stop", "case events consumer stopped")
	return nil
}

// consume fetches until the context is cancelled. Offsets are committed only
// after the point is written, so a crash replays rather than drops events.
func consume(ctx context.Context, cfg config.Config, logger logx.Logger, reader *kafka.Reader, sink *influxx.Client) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error(ctx, "kafka_fetch_failed", "failed to fetch message",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		spanCtx, span := otel.Tracer("mqx").Start(ctx, "kafka.consume")
		span.SetAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", cfg.CaseEventsTopic),
		)
		err = record(spanCtx, sink, msg.Value)
		span.End()
		if err != nil {
			metricsx.IncInfluxWriteFailure()
			logger.Error(ctx, "event_handle_failed", "failed to handle event",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Error(ctx, "kafka_commit_failed", "failed to commit message",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
		}
		stats := reader.Stats()
		metricsx.SetKafkaLag(stats.Topic, cfg.KafkaGroupID, stats.Lag)
	}
}

// record flattens one envelope into an influx point. The payload stays
// opaque; only routing fields become tags.
func record(ctx context.Context, sink *influxx.Client, payload []byte) error {
	envelope, err := events.Unmarshal(payload)
	if err != nil {
		return err
	}
	if envelope.EventID == uuid.Nil || envelope.AggregateID == uuid.Nil {
		return errors.New("missing event_id/aggregate_id")
	}
	tags := map[string]string{
		"aggregate_type": envelope.AggregateType,
		"event_type":     envelope.EventType,
		"case_status":    envelope.CaseStatus,
	}
	fields := map[string]any{
		"event_id": envelope.EventID.String(),
		"case_id":  envelope.AggregateID.String(),
		"actor_id": envelope.ActorID.String(),
		"revision": envelope.Revision,
	}
	return sink.WritePoint(ctx, caseEventsMeasurement, tags, fields, envelope.OccurredAt)
}
