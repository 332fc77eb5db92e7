package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRankingRequestMetricsLogsAndEndsSpan(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newRankingRequestMetrics(context.Background(), logger)
	metrics.start = metrics.start.Add(-20 * time.Millisecond)
	metrics.ObserveFetch(5 * time.Millisecond)
	metrics.ObserveEncode(time.Millisecond)
	metrics.SetCursorProvided(true)
	metrics.SetEntriesReturned(3)
	metrics.SetHasNextPage(true)
	metrics.Log(http.StatusOK, nil)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Message != "rankings.request.metrics" {
		t.Fatalf("unexpected log entry: %+v", entry)
	}
	if entry.Level != log.InfoLevel {
		t.Fatalf("unexpected level: %v", entry.Level)
	}
	if entry.Data["entries_returned"] != 3 || entry.Data["cursor_provided"] != true {
		t.Fatalf("unexpected fields: %v", entry.Data)
	}
	if id, ok := entry.Data["trace_id"].(string); !ok || id == "" {
		t.Fatalf("expected trace_id, got %#v", entry.Data["trace_id"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != rankingsSpanName {
		t.Fatalf("unexpected span name: %s", span.Name)
	}
	attrs := attributesToMap(span.Attributes)
	if attrs["http.route"] != rankingsRoute {
		t.Fatalf("unexpected route attribute: %#v", attrs["http.route"])
	}
	if code, ok := attrs["http.status_code"].(int64); !ok || code != http.StatusOK {
		t.Fatalf("unexpected status attribute: %#v", attrs["http.status_code"])
	}
	if span.Status.Code != codes.Ok {
		t.Fatalf("expected Ok status, got %v", span.Status.Code)
	}

	var event sdktrace.Event
	for _, ev := range span.Events {
		if ev.Name == "observability.event" {
			event = ev
		}
	}
	if event.Name == "" {
		t.Fatalf("expected observability.event, got %#v", span.Events)
	}
	if ea := attributesToMap(event.Attributes); ea["severity_text"] != "INFO" || ea["event.name"] != rankingsEventName {
		t.Fatalf("unexpected event attributes: %#v", ea)
	}
}

func TestRankingRequestMetricsErrorSetsSpanStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newRankingRequestMetrics(context.Background(), logger)
	metrics.SetErrorStage("storage")
	boom := errors.New("db down")
	metrics.Log(http.StatusInternalServerError, boom)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}
	span := exporter.GetSpans()[0]
	if span.Status.Code != codes.Error || span.Status.Description != "storage" {
		t.Fatalf("unexpected status: %+v", span.Status)
	}
	if entry := hook.LastEntry(); entry.Level != log.ErrorLevel || entry.Data["error"] != boom.Error() {
		t.Fatalf("unexpected log entry: %+v", entry)
	}
}

func TestRankingsHandlerRecordsSpan(t *testing.T) {
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	s := newServer(t)
	if rec := s.do(http.MethodGet, "/api/rankings?cursor=garbage!", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}
	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	attrs := attributesToMap(spans[0].Attributes)
	if attrs["toky.rankings.error_stage"] != "invalid_cursor" {
		t.Fatalf("unexpected error stage: %#v", attrs["toky.rankings.error_stage"])
	}
	if spans[0].Status.Code == codes.Error {
		t.Fatalf("client errors must not mark the span as failed")
	}
}

func TestSeverityForStatus(t *testing.T) {
	tests := []struct {
		status     int
		err        error
		wantText   string
		wantNumber int
	}{
		{status: http.StatusOK, wantText: "INFO", wantNumber: 9},
		{status: http.StatusBadRequest, wantText: "WARN", wantNumber: 13},
		{status: http.StatusServiceUnavailable, wantText: "ERROR", wantNumber: 17},
		{status: 0, err: errors.New("x"), wantText: "ERROR", wantNumber: 17},
	}
	for _, tc := range tests {
		text, n := severityForStatus(tc.status, tc.err)
		if text != tc.wantText || n != tc.wantNumber {
			t.Fatalf("status %d: got %s/%d", tc.status, text, n)
		}
	}
}

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter, func()) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	}
	return tp, exporter, cleanup
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}
