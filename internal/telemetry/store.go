package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/surreal-wow/sdbeditor/internal/editstore"
	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

const storeScopeName = "github.com/surreal-wow/sdbeditor/internal/editstore"

// InstrumentedStore wraps editstore.Tables with OTel tracing and metrics.
// Every table operation gets a span and is counted in sdb.store.* metrics.
// Use WrapStore to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStore struct {
	inner       editstore.Tables
	tracer      trace.Tracer
	ops         metric.Int64Counter
	dur         metric.Float64Histogram
	errs        metric.Int64Counter
	recordGauge metric.Int64Gauge
}

var _ editstore.Tables = (*InstrumentedStore)(nil)

// WrapStore returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStore(s editstore.Tables) editstore.Tables {
	if !Enabled() {
		return s
	}
	m := Meter(storeScopeName)
	ops, _ := m.Int64Counter("sdb.store.operations",
		metric.WithDescription("Total table operations executed"),
	)
	dur, _ := m.Float64Histogram("sdb.store.operation.duration",
		metric.WithDescription("Table operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("sdb.store.errors",
		metric.WithDescription("Total table operation errors"),
	)
	recordGauge, _ := m.Int64Gauge("sdb.table.records",
		metric.WithDescription("Record count of the last written table (snapshot per save)"),
	)
	return &InstrumentedStore{
		inner:       s,
		tracer:      Tracer(storeScopeName),
		ops:         ops,
		dur:         dur,
		errs:        errs,
		recordGauge: recordGauge,
	}
}

// op starts a span and counts the named table operation. The edit store is
// file-backed and context-free, so spans root at Background.
func (s *InstrumentedStore) op(name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("sdb.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(context.Background(), "store."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// saved records a write result as span attributes and a gauge snapshot.
func (s *InstrumentedStore) saved(ctx context.Context, span trace.Span, name string, res *editstore.SaveResult) {
	if res == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("sdb.record.count", int(res.RecordCount)),
		attribute.Int("sdb.field.count", int(res.FieldCount)),
	)
	s.recordGauge.Record(ctx, int64(res.RecordCount),
		metric.WithAttributes(attribute.String("sdb.file", name)),
	)
}

// ── Reads ────────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) List() ([]editstore.FileInfo, error) {
	ctx, span, t := s.op("List")
	v, err := s.inner.List()
	if err == nil {
		span.SetAttributes(attribute.Int("sdb.file.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) Read(name string, layer editstore.Layer) (*editstore.TableView, error) {
	attrs := []attribute.KeyValue{
		attribute.String("sdb.file", name),
		attribute.String("sdb.layer", string(layer)),
	}
	ctx, span, t := s.op("Read", attrs...)
	v, err := s.inner.Read(name, layer)
	if err == nil {
		span.SetAttributes(attribute.Int("sdb.record.count", len(v.Records)))
	}
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ReadTable(name string) (*wdbc.File, error) {
	attrs := []attribute.KeyValue{attribute.String("sdb.file", name)}
	ctx, span, t := s.op("ReadTable", attrs...)
	v, err := s.inner.ReadTable(name)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ResolvePath is a stat probe the index builder fires on every staleness
// check; a span per probe would drown the trace, so it passes through.
func (s *InstrumentedStore) ResolvePath(name string) (string, bool) {
	return s.inner.ResolvePath(name)
}

func (s *InstrumentedStore) ExportCSV(name string, layer editstore.Layer) ([]byte, error) {
	attrs := []attribute.KeyValue{
		attribute.String("sdb.file", name),
		attribute.String("sdb.layer", string(layer)),
	}
	ctx, span, t := s.op("ExportCSV", attrs...)
	v, err := s.inner.ExportCSV(name, layer)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) Diff(name string) (*wdbc.DiffResult, error) {
	attrs := []attribute.KeyValue{attribute.String("sdb.file", name)}
	ctx, span, t := s.op("Diff", attrs...)
	v, err := s.inner.Diff(name)
	if err == nil {
		span.SetAttributes(
			attribute.Int("sdb.diff.modified", len(v.Modified)),
			attribute.Int("sdb.diff.added", len(v.Added)),
			attribute.Int("sdb.diff.removed", len(v.Removed)),
		)
	}
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Writes ───────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) Save(name string, fields []wdbc.Field, records []wdbc.Row) (*editstore.SaveResult, error) {
	attrs := []attribute.KeyValue{attribute.String("sdb.file", name)}
	ctx, span, t := s.op("Save", attrs...)
	v, err := s.inner.Save(name, fields, records)
	if err == nil {
		s.saved(ctx, span, name, v)
	}
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ImportCSV(name string, data []byte) (*editstore.SaveResult, error) {
	attrs := []attribute.KeyValue{
		attribute.String("sdb.file", name),
		attribute.Int("sdb.payload.bytes", len(data)),
	}
	ctx, span, t := s.op("ImportCSV", attrs...)
	v, err := s.inner.ImportCSV(name, data)
	if err == nil {
		s.saved(ctx, span, name, v)
	}
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) AddRecord(name string, row wdbc.Row) (*editstore.AddResult, error) {
	attrs := []attribute.KeyValue{attribute.String("sdb.file", name)}
	ctx, span, t := s.op("AddRecord", attrs...)
	v, err := s.inner.AddRecord(name, row)
	if err == nil {
		span.SetAttributes(attribute.Int("sdb.record.id", int(v.ID)))
	}
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) UpdateRecord(name string, id uint32, row wdbc.Row) error {
	attrs := []attribute.KeyValue{
		attribute.String("sdb.file", name),
		attribute.Int("sdb.record.id", int(id)),
	}
	ctx, span, t := s.op("UpdateRecord", attrs...)
	err := s.inner.UpdateRecord(name, id, row)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) DeleteRecord(name string, id uint32) (int, error) {
	attrs := []attribute.KeyValue{
		attribute.String("sdb.file", name),
		attribute.Int("sdb.record.id", int(id)),
	}
	ctx, span, t := s.op("DeleteRecord", attrs...)
	remaining, err := s.inner.DeleteRecord(name, id)
	if err == nil {
		span.SetAttributes(attribute.Int("sdb.record.count", remaining))
	}
	s.done(ctx, span, t, err, attrs...)
	return remaining, err
}

func (s *InstrumentedStore) CopyToCustom(name string) error {
	attrs := []attribute.KeyValue{attribute.String("sdb.file", name)}
	ctx, span, t := s.op("CopyToCustom", attrs...)
	err := s.inner.CopyToCustom(name)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Hooks ────────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) OnSave(fn func(name string)) {
	s.inner.OnSave(fn)
}
