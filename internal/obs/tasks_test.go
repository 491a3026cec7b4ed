package obs_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-rolepricing/internal/obs"
)

func TestTaskObsCountsResults(t *testing.T) {
	var buf bytes.Buffer
	metrics := obs.NewTaskMetrics("toko", prometheus.NewRegistry())
	mw := obs.TaskObs{Logger: zerolog.New(&buf), Metrics: metrics}

	results := map[string]error{
		"ok":      nil,
		"skipped": fmt.Errorf("order gone: %w", asynq.SkipRetry),
		"error":   errors.New("database down"),
	}
	for want, ret := range results {
		h := mw.Middleware(asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return ret }))
		err := h.ProcessTask(context.Background(), asynq.NewTask("pricing:reconcile", nil))
		require.Equal(t, ret, err)
		require.Equal(t, float64(1), testutil.ToFloat64(metrics.Processed.WithLabelValues("pricing:reconcile", want)))
	}
	require.Contains(t, buf.String(), `"result":"skipped"`)
	require.Contains(t, buf.String(), `"level":"error"`)
}
