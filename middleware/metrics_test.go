package middleware_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	mw "github.com/xraph/lakequeue/middleware"
)

// runMetered runs one body through the metrics middleware and returns
// what the meter collected.
func runMetered(t *testing.T, ctx context.Context, body mw.Handler) metricdata.ResourceMetrics {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	_ = mw.MetricsWithMeter(mp.Meter("test"))(ctx, newTestJob(), body)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestMetrics_OutcomeAttribute(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want string
	}{
		{"ok", context.Background(), nil, mw.OutcomeOK},
		{"error", context.Background(), errors.New("boom"), mw.OutcomeError},
		{"timeout", context.Background(), fmt.Errorf("slow: %w", context.DeadlineExceeded), mw.OutcomeTimeout},
		{"lease lost mid run", cancelled, context.Canceled, mw.OutcomeInterrupted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := runMetered(t, tt.ctx, func(context.Context) error { return tt.err })

			m := findMetric(rm, "lakequeue.job.executions")
			if m == nil {
				t.Fatal("lakequeue.job.executions not recorded")
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) != 1 {
				t.Fatalf("executions data = %#v", m.Data)
			}
			dp := sum.DataPoints[0]
			if dp.Value != 1 {
				t.Errorf("executions = %d, want 1", dp.Value)
			}
			if v, _ := dp.Attributes.Value("lakequeue.outcome"); v.AsString() != tt.want {
				t.Errorf("lakequeue.outcome = %q, want %q", v.AsString(), tt.want)
			}
		})
	}
}

func TestMetrics_DurationPerQueueType(t *testing.T) {
	rm := runMetered(t, context.Background(), func(context.Context) error { return nil })

	m := findMetric(rm, "lakequeue.job.duration")
	if m == nil {
		t.Fatal("lakequeue.job.duration not recorded")
	}
	hist, ok := m.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("duration data = %#v", m.Data)
	}
	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("count = %d, want 1", dp.Count)
	}
	if v, _ := dp.Attributes.Value("lakequeue.queue_type"); v.AsString() != "3" {
		t.Errorf("lakequeue.queue_type = %q, want 3", v.AsString())
	}
}

// Group ids are unbounded, so they must never become metric attributes.
func TestMetrics_NoPerGroupSeries(t *testing.T) {
	rm := runMetered(t, context.Background(), func(context.Context) error { return nil })

	for _, name := range []string{"lakequeue.job.duration", "lakequeue.job.executions"} {
		m := findMetric(rm, name)
		if m == nil {
			t.Fatalf("%s not recorded", name)
		}
		var set attribute.Set
		switch data := m.Data.(type) {
		case metricdata.Histogram[float64]:
			set = data.DataPoints[0].Attributes
		case metricdata.Sum[int64]:
			set = data.DataPoints[0].Attributes
		}
		for _, key := range []attribute.Key{"lakequeue.group_id", "group_id", "lakequeue.job.id"} {
			if set.HasValue(key) {
				t.Errorf("%s carries %s", name, key)
			}
		}
	}
}

func TestMetrics_DefaultNoopSafe(t *testing.T) {
	called := false
	err := mw.Metrics()(context.Background(), newTestJob(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("err = %v, called = %v", err, called)
	}
}
