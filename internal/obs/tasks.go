package obs

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TaskObs instruments asynq handlers with spans, logs and metrics.
type TaskObs struct {
	Logger  zerolog.Logger
	Metrics *TaskMetrics
}

// Middleware wraps an asynq handler.
func (o TaskObs) Middleware(next asynq.Handler) asynq.Handler {
	tracer := otel.Tracer("asynq.worker")
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		ctx, span := tracer.Start(ctx, "task "+t.Type())
		defer span.End()
		span.SetAttributes(attribute.String("task.type", t.Type()))
		if id, ok := asynq.GetTaskID(ctx); ok {
			span.SetAttributes(attribute.String("task.id", id))
		}
		retry, _ := asynq.GetRetryCount(ctx)

		start := time.Now()
		err := next.ProcessTask(ctx, t)
		elapsed := time.Since(start)

		result := "ok"
		evt := o.Logger.Info()
		switch {
		case err == nil:
		case errors.Is(err, asynq.SkipRetry):
			result = "skipped"
			evt = o.Logger.Warn().Err(err)
		default:
			result = "error"
			evt = o.Logger.Error().Err(err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if o.Metrics != nil {
			o.Metrics.Processed.WithLabelValues(t.Type(), result).Inc()
			o.Metrics.Duration.WithLabelValues(t.Type()).Observe(DurationMillis(elapsed))
		}
		evt.Str("task_type", t.Type()).
			Int("retry", retry).
			Int64("duration_ms", elapsed.Milliseconds()).
			Str("result", result).
			Msg("task_processed")
		return err
	})
}
