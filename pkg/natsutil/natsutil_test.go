package natsutil

import (
	"context"
	"testing"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderCarrier(t *testing.T) {
	msg := nats.NewMsg("civica.test")
	c := (*natsHeaderCarrier)(msg)

	if got := c.Get("traceparent"); got != "" {
		t.Errorf("Get on empty headers = %q", got)
	}

	c.Set("traceparent", "00-abc-def-01")
	if got := c.Get("traceparent"); got != "00-abc-def-01" {
		t.Errorf("Get = %q", got)
	}

	keys := c.Keys()
	if len(keys) != 1 || keys[0] != "traceparent" {
		t.Errorf("Keys = %v", keys)
	}
}

func TestHeaderCarrier_NilHeader(t *testing.T) {
	c := &natsHeaderCarrier{}
	if c.Get("x") != "" {
		t.Error("Get on nil header should be empty")
	}
	if c.Keys() != nil {
		t.Error("Keys on nil header should be nil")
	}
	c.Set("x", "y")
	if c.Get("x") != "y" {
		t.Error("Set should allocate headers")
	}
}

func TestExtractContext_RoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10},
		SpanID:     trace.SpanID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	msg := nats.NewMsg("civica.test")
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))

	got := trace.SpanContextFromContext(ExtractContext(msg))
	if got.TraceID() != sc.TraceID() {
		t.Errorf("trace id = %s, want %s", got.TraceID(), sc.TraceID())
	}
	if !got.IsRemote() {
		t.Error("extracted span context should be remote")
	}
}

func TestExtractContext_NoHeaders(t *testing.T) {
	ctx := ExtractContext(nats.NewMsg("civica.test"))
	if trace.SpanContextFromContext(ctx).IsValid() {
		t.Error("expected no span context on a bare message")
	}
}
