package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
)

func TestWithHTTPRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /events/{id}", WithHTTPRoute(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/events/42", nil)
	ctx, span := tp.Tracer("test").Start(req.Context(), "request")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req.WithContext(ctx))
	span.End()

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	want := attribute.String("http.route", "GET /events/{id}")
	for _, kv := range spans[0].Attributes() {
		if kv == want {
			return
		}
	}
	t.Errorf("expected %v in %v", want, spans[0].Attributes())
}

func TestWithHTTPRoute_NoSpan(t *testing.T) {
	called := false
	h := WithHTTPRoute(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	if oteltrace.SpanFromContext(req.Context()).IsRecording() {
		t.Fatal("expected no recording span")
	}
	h(httptest.NewRecorder(), req)

	if !called {
		t.Error("expected wrapped handler to run")
	}
}
