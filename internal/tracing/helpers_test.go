package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { tp.Shutdown(context.Background()) })
	return recorder
}

func attrMap(kvs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}

func TestStartDBSpan(t *testing.T) {
	tests := []struct {
		name      string
		table     string
		operation DBOperation
		wantName  string
	}{
		{"query", "campaigns", DBOperationQuery, "query campaigns"},
		{"insert", "flow_nodes", DBOperationInsert, "insert flow_nodes"},
		{"update", "encounters", DBOperationUpdate, "update encounters"},
		{"delete", "drawings", DBOperationDelete, "delete drawings"},
		{"no table", "", DBOperationQuery, "query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := newRecorder(t)

			_, endSpan := StartDBSpan(context.Background(), tt.table, tt.operation)
			endSpan(nil)

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			span := spans[0]
			if span.Name() != tt.wantName {
				t.Errorf("expected span name %q, got %q", tt.wantName, span.Name())
			}
			if span.SpanKind() != trace.SpanKindClient {
				t.Errorf("expected client span, got %v", span.SpanKind())
			}

			attrs := attrMap(span.Attributes())
			if attrs["db.system"] != "postgresql" {
				t.Errorf("expected db.system=postgresql, got %q", attrs["db.system"])
			}
			if attrs["db.operation"] != string(tt.operation) {
				t.Errorf("expected db.operation=%s, got %q", tt.operation, attrs["db.operation"])
			}
			table, hasTable := attrs["db.sql.table"]
			if tt.table == "" && hasTable {
				t.Error("unexpected db.sql.table attribute")
			}
			if tt.table != "" && table != tt.table {
				t.Errorf("expected db.sql.table=%s, got %q", tt.table, table)
			}
		})
	}
}

func TestSpanEnd_RecordsError(t *testing.T) {
	recorder := newRecorder(t)
	testErr := errors.New("connection reset")

	_, endDB := StartDBSpan(context.Background(), "campaigns", DBOperationQuery)
	endDB(testErr)
	_, endClient := StartClientSpan(context.Background(), "spotify", "search")
	endClient(testErr)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	for _, span := range spans {
		if span.Status().Code != codes.Error {
			t.Errorf("%s: expected error status, got %v", span.Name(), span.Status().Code)
		}
		if span.Status().Description != testErr.Error() {
			t.Errorf("%s: expected description %q, got %q", span.Name(), testErr.Error(), span.Status().Description)
		}
		if len(span.Events()) == 0 {
			t.Errorf("%s: expected recorded error event", span.Name())
		}
	}
}

func TestStartClientSpan(t *testing.T) {
	recorder := newRecorder(t)

	_, endSpan := StartClientSpan(context.Background(), "spotify", "playback")
	endSpan(nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "spotify playback" {
		t.Errorf("unexpected span name %q", spans[0].Name())
	}
	attrs := attrMap(spans[0].Attributes())
	if attrs["peer.service"] != "spotify" || attrs["rpc.method"] != "playback" {
		t.Errorf("unexpected attributes %v", attrs)
	}
}

func TestStartSpan_Nested(t *testing.T) {
	recorder := newRecorder(t)

	ctx, endParent := StartSpan(context.Background(), "export_campaign")
	_, endChild := StartDBSpan(ctx, "campaigns", DBOperationQuery)
	endChild(nil)
	endParent(nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	child, parent := spans[0], spans[1]
	if child.Parent().SpanID() != parent.SpanContext().SpanID() {
		t.Error("expected db span to be a child of the internal span")
	}
}

func TestAddEventAndSetAttributes(t *testing.T) {
	recorder := newRecorder(t)

	ctx, endSpan := StartSpan(context.Background(), "spotify_refresh")
	AddEvent(ctx, "token_refreshed", attribute.Int("expires_in", 3600))
	SetAttributes(ctx, attribute.String("user_id", "default"))
	endSpan(nil)

	span := recorder.Ended()[0]
	if len(span.Events()) != 1 || span.Events()[0].Name != "token_refreshed" {
		t.Errorf("expected token_refreshed event, got %v", span.Events())
	}
	if attrMap(span.Attributes())["user_id"] != "default" {
		t.Error("expected user_id attribute")
	}
}
