package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	rankingsRoute     = "/api/rankings"
	rankingsSpanName  = "api.rankings"
	rankingsEventName = "rankings.request"
	tracerName        = "github.com/toky-team/toky-back-sub001/api"
)

type rankingRequestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	fetchDuration  time.Duration
	encodeDuration time.Duration
	cursorProvided bool
	entriesReturn  int
	hasNextPage    bool
	errorStage     string
}

func newRankingRequestMetrics(ctx context.Context, logger *log.Logger) (*rankingRequestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, rankingsSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &rankingRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, ctx
}

func (m *rankingRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.fetchDuration = duration
}

func (m *rankingRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *rankingRequestMetrics) SetCursorProvided(provided bool) {
	m.cursorProvided = provided
}

func (m *rankingRequestMetrics) SetEntriesReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.entriesReturn = count
}

func (m *rankingRequestMetrics) SetHasNextPage(hasNext bool) {
	m.hasNextPage = hasNext
}

func (m *rankingRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log ends the request span and writes one structured record whose level
// follows the response status.
func (m *rankingRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	total := durationToMillis(time.Since(m.start))
	severity, severityNumber := severityForStatus(status, err)

	if m.span != nil {
		attrs := []attribute.KeyValue{
			attribute.String("http.route", rankingsRoute),
			attribute.Int("http.status_code", status),
			attribute.Bool("toky.rankings.cursor_provided", m.cursorProvided),
			attribute.Int("toky.rankings.entries_returned", m.entriesReturn),
			attribute.Bool("toky.rankings.has_next_page", m.hasNextPage),
			attribute.Float64("toky.rankings.total_ms", total),
		}
		if m.errorStage != "" {
			attrs = append(attrs, attribute.String("toky.rankings.error_stage", m.errorStage))
		}
		m.span.SetAttributes(attrs...)

		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", rankingsEventName),
			attribute.String("severity_text", severity),
			attribute.Int("severity_number", severityNumber),
		}, attrs...)
		if err != nil {
			eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
			m.span.RecordError(err)
		}
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))

		if severity == "ERROR" {
			desc := m.errorStage
			if desc == "" {
				desc = "request failed"
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"route":            rankingsRoute,
		"status":           status,
		"total_ms":         total,
		"cursor_provided":  m.cursorProvided,
		"entries_returned": m.entriesReturn,
		"has_next_page":    m.hasNextPage,
		"severity_text":    severity,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}
	if m.fetchDuration > 0 {
		fields["fetch_ms"] = durationToMillis(m.fetchDuration)
	}
	if m.encodeDuration > 0 {
		fields["encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	entry := m.logger.WithFields(fields)
	switch severity {
	case "ERROR":
		entry.Error("rankings.request.metrics")
	case "WARN":
		entry.Warn("rankings.request.metrics")
	default:
		entry.Info("rankings.request.metrics")
	}
}

// severityForStatus maps a response to OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= 500, status == 0 && err != nil:
		return "ERROR", 17
	case status >= 400:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
