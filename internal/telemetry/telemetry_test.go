package telemetry

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func TestRecordBootstrap(t *testing.T) {
	before := testutil.ToFloat64(bootstrapTotal.WithLabelValues(ResultFailure))
	RecordBootstrap(ResultFailure, 20*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(bootstrapTotal.WithLabelValues(ResultFailure)))
}

func TestRecordMigration(t *testing.T) {
	builtins := testutil.ToFloat64(builtinsMigrated)
	items := testutil.ToFloat64(itemsMigrated)
	RecordMigration(2, 5)
	assert.Equal(t, builtins+2, testutil.ToFloat64(builtinsMigrated))
	assert.Equal(t, items+5, testutil.ToFloat64(itemsMigrated))
}

func TestRecordEntries(t *testing.T) {
	RecordEntries(40, 3)
	assert.Equal(t, float64(40), testutil.ToFloat64(entriesLoaded.WithLabelValues("system")))
	assert.Equal(t, float64(3), testutil.ToFloat64(entriesLoaded.WithLabelValues("user")))
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{TraceExporter: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInitNoneIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{TraceExporter: ExporterNone})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestStdoutExporterWritesSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), Config{
		ServiceName:   "catalogd",
		TraceExporter: ExporterStdout,
		Output:        &buf,
	})
	require.NoError(t, err)

	_, span := StartPhase(context.Background(), "load-items", attribute.Int("items", 3))
	EndPhase(span, errors.New("boom"))
	require.NoError(t, shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "load-items")
	assert.Contains(t, out, "boom")
}

func TestWriteTextfile(t *testing.T) {
	RecordEntries(3, 1)
	path := filepath.Join(t.TempDir(), "catalogd.prom")

	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `catalogd_entries{namespace="system"} 3`)
}
