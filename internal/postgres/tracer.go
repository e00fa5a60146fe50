package postgres

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

const ownPkg = "github.com/linnemanlabs/medassist/internal/postgres."

type (
	queryInfoKey  struct{}
	dbStatsKey    struct{}
	httpMethodKey struct{}
)

// queryInfo is carried from TraceQueryStart to TraceQueryEnd.
type queryInfo struct {
	sql     string
	nargs   int
	start   time.Time
	caller  string
	handler string
}

// ReqDBStats accumulates per-request database query statistics.
type ReqDBStats struct {
	mu            sync.Mutex
	QueryCount    int
	TotalDuration time.Duration
	ErrorCount    int
}

// AddQuery records a single query execution.
func (s *ReqDBStats) AddQuery(dur time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QueryCount++
	s.TotalDuration += dur
	if err != nil {
		s.ErrorCount++
	}
}

// Snapshot returns the current totals.
func (s *ReqDBStats) Snapshot() (count int, total time.Duration, errs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.QueryCount, s.TotalDuration, s.ErrorCount
}

// NewReqDBStatsContext returns a new context with an empty ReqDBStats attached.
func NewReqDBStatsContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, dbStatsKey{}, &ReqDBStats{})
}

// ReqDBStatsFromContext extracts the ReqDBStats from the context, if present.
func ReqDBStatsFromContext(ctx context.Context) (*ReqDBStats, bool) {
	s, ok := ctx.Value(dbStatsKey{}).(*ReqDBStats)
	return s, ok
}

// WithHTTPMethod stores the HTTP method in the context for query metrics labelling.
func WithHTTPMethod(ctx context.Context, method string) context.Context {
	if method == "" {
		return ctx
	}
	return context.WithValue(ctx, httpMethodKey{}, method)
}

func httpMethodFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(httpMethodKey{}).(string); ok {
		return v
	}
	return ""
}

func routePatternFromContext(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// QueryObserver receives per-query timings, labelled by the HTTP route that
// issued them.
type QueryObserver interface {
	ObserveQuery(ctx context.Context, method, route, outcome string, dur time.Duration)
}

// QueryObserverFunc adapts a plain function to QueryObserver.
type QueryObserverFunc func(ctx context.Context, method, route, outcome string, dur time.Duration)

// ObserveQuery implements QueryObserver.
func (f QueryObserverFunc) ObserveQuery(ctx context.Context, method, route, outcome string, dur time.Duration) {
	f(ctx, method, route, outcome, dur)
}

// queryTracer wraps another pgx.QueryTracer (otelpgx) with a structured
// log line, per-request stats and an optional observer. Bind parameters are
// never logged; they carry free-text symptom reports.
type queryTracer struct {
	inner    pgx.QueryTracer
	observer QueryObserver
}

func newQueryTracer(inner pgx.QueryTracer, obs QueryObserver) *queryTracer {
	return &queryTracer{inner: inner, observer: obs}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	qi := &queryInfo{
		sql:   data.SQL,
		nargs: len(data.Args),
		start: time.Now(),
	}
	qi.caller, qi.handler = findDBCallerAndHandler()

	// inner tracer creates the span we annotate below
	if t.inner != nil {
		ctx = t.inner.TraceQueryStart(ctx, conn, data)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		if qi.caller != "" {
			span.SetAttributes(attribute.String("db.caller", qi.caller))
		}
		if qi.handler != "" {
			span.SetAttributes(attribute.String("db.handler", qi.handler))
		}
	}

	return context.WithValue(ctx, queryInfoKey{}, qi)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if t.inner != nil {
		t.inner.TraceQueryEnd(ctx, conn, data)
	}

	qi, _ := ctx.Value(queryInfoKey{}).(*queryInfo)
	if qi == nil {
		qi = &queryInfo{}
	}

	var dur time.Duration
	if !qi.start.IsZero() {
		dur = time.Since(qi.start)
	}

	if s, ok := ReqDBStatsFromContext(ctx); ok {
		s.AddQuery(dur, data.Err)
	}

	if t.observer != nil {
		t.observer.ObserveQuery(ctx, labelOr(httpMethodFromContext(ctx), "UNKNOWN"),
			labelOr(routePatternFromContext(ctx), "unknown"), outcome(data.Err), dur)
	}

	fields := queryLogFields(qi, dur, data)
	L := log.FromContext(ctx)
	if data.Err != nil {
		L.Error(ctx, data.Err, "db query failed", fields...)
		return
	}
	L.Info(ctx, "db query", fields...)
}

func queryLogFields(qi *queryInfo, dur time.Duration, data pgx.TraceQueryEndData) []any {
	fields := []any{
		"db.statement", compactSQL(qi.sql),
		"db.arg_count", qi.nargs,
		"db.duration", dur.Seconds(),
	}

	if tag := strings.TrimSpace(data.CommandTag.String()); tag != "" {
		if op, _, _ := strings.Cut(tag, " "); op != "" {
			fields = append(fields, "db.operation.name", strings.ToUpper(op))
		}
		fields = append(fields, "pg.command_tag", tag, "db.rows", data.CommandTag.RowsAffected())
	}
	if qi.caller != "" {
		fields = append(fields, "db.caller", qi.caller)
	}
	if qi.handler != "" {
		fields = append(fields, "db.handler", qi.handler)
	}

	var pgErr *pgconn.PgError
	if errors.As(data.Err, &pgErr) {
		fields = append(fields,
			"db.error_code", pgErr.Code,
			"db.error_constraint", pgErr.ConstraintName,
		)
	}
	return fields
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func labelOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// compactSQL collapses runs of whitespace so multi-line statements log on
// one line.
func compactSQL(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}

// findDBCallerAndHandler walks the stack to find:
//   - caller: the store method actually issuing the query
//   - handler: the next meaningful frame above it (service or HTTP handler)
func findDBCallerAndHandler() (caller, handler string) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	for {
		fr, more := frames.Next()
		fn := fr.Function

		skip := fn == "" ||
			strings.HasPrefix(fn, "runtime.") ||
			strings.Contains(fn, "github.com/jackc/pgx/v5") ||
			strings.Contains(fn, "github.com/jackc/puddle") ||
			strings.Contains(fn, "github.com/exaring/otelpgx") ||
			strings.HasPrefix(fn, ownPkg)

		if !skip {
			if caller == "" {
				caller = shortenFuncName(fn)
			} else {
				handler = shortenFuncName(fn)
				return caller, handler
			}
		}
		if !more {
			return caller, handler
		}
	}
}

// shortenFuncName trims the import path and package name, keeping the
// receiver and method.
func shortenFuncName(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 && i+1 < len(fn) {
		fn = fn[i+1:]
	}
	if dot := strings.Index(fn, "."); dot >= 0 && dot+1 < len(fn) {
		fn = fn[dot+1:]
	}
	return fn
}
