package tracing

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func readRecords(t *testing.T, path string) []SpanRecord {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var out []SpanRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r SpanRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		out = append(out, r)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestFileExporter_WritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.jsonl")
	exporter, err := NewFileExporter(path)
	require.NoError(t, err)

	start := time.Now()
	stubs := []tracetest.SpanStub{
		{
			Name:      "registry.reload",
			SpanKind:  trace.SpanKindInternal,
			StartTime: start,
			EndTime:   start.Add(5 * time.Millisecond),
			Status:    sdktrace.Status{Code: codes.Ok},
			Attributes: []attribute.KeyValue{
				attribute.Int64(AttrGeneration, 7),
				attribute.String(AttrSender, "abc"),
			},
			Events: []sdktrace.Event{{
				Name:       EventNoticeReceived,
				Time:       start,
				Attributes: []attribute.KeyValue{attribute.Int64(AttrSeq, 3)},
			}},
		},
		{
			Name:      "registry.remove_category",
			StartTime: start,
			EndTime:   start.Add(time.Millisecond),
			Status:    sdktrace.Status{Code: codes.Error, Description: "protected"},
		},
	}
	spans := make([]sdktrace.ReadOnlySpan, len(stubs))
	for i := range stubs {
		spans[i] = stubs[i].Snapshot()
	}

	require.NoError(t, exporter.ExportSpans(context.Background(), spans))
	require.NoError(t, exporter.ExportSpans(context.Background(), nil))
	require.NoError(t, exporter.Shutdown(context.Background()))

	records := readRecords(t, path)
	require.Len(t, records, 2)

	require.Equal(t, "INTERNAL", records[0].Kind)
	require.Equal(t, "OK", records[0].Status)
	require.InDelta(t, 5.0, records[0].DurationMs, 0.001)
	require.EqualValues(t, 7, records[0].Attributes[AttrGeneration])
	require.Len(t, records[0].Events, 1)
	require.EqualValues(t, 3, records[0].Events[0].Attributes[AttrSeq])

	require.Equal(t, "ERROR", records[1].Status)
	require.Equal(t, "protected", records[1].StatusMsg)
	require.Nil(t, records[1].Attributes)
}

func TestFileExporter_AppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.jsonl")
	stub := tracetest.SpanStub{Name: "registry.add_host", StartTime: time.Now(), EndTime: time.Now()}

	for range 2 {
		exporter, err := NewFileExporter(path)
		require.NoError(t, err)
		require.NoError(t, exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()}))
		require.NoError(t, exporter.Shutdown(context.Background()))
	}

	require.Len(t, readRecords(t, path), 2)
}

func TestFileExporter_ExportAfterShutdown(t *testing.T) {
	exporter, err := NewFileExporter(filepath.Join(t.TempDir(), "t.jsonl"))
	require.NoError(t, err)
	require.NoError(t, exporter.Shutdown(context.Background()))
	require.NoError(t, exporter.Shutdown(context.Background()))

	stub := tracetest.SpanStub{Name: "late"}
	err = exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()})
	require.ErrorIs(t, err, errExporterClosed)
}

func TestSpanKindToString(t *testing.T) {
	tests := map[trace.SpanKind]string{
		trace.SpanKindInternal:    "INTERNAL",
		trace.SpanKindServer:      "SERVER",
		trace.SpanKindClient:      "CLIENT",
		trace.SpanKindProducer:    "PRODUCER",
		trace.SpanKindConsumer:    "CONSUMER",
		trace.SpanKindUnspecified: "UNSPECIFIED",
	}
	for kind, want := range tests {
		require.Equal(t, want, spanKindToString(kind))
	}
}
