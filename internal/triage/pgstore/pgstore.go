// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/medassist/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/medassist/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists triage results in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const resultColumns = `request_id, created_at, rule, primary_diagnosis, urgency_score,
	urgency_level, triage_advice, potential_conditions, formatted_report, disclaimer`

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
		attribute.String("db.collection.name", "triage_results"),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Get retrieves a triage result by request ID.
func (s *Store) Get(ctx context.Context, id string) (*triage.Result, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	query := `SELECT ` + resultColumns + ` FROM triage_results WHERE request_id = $1`
	r, err := scanResult(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fail(span, err)
	}
	return r, true, nil
}

// Put inserts or replaces a triage result.
func (s *Store) Put(ctx context.Context, r *triage.Result) error {
	ctx, span := startSpan(ctx, "pgstore.Put", "UPSERT")
	defer span.End()
	span.SetAttributes(
		attribute.String("triage.request_id", r.RequestID),
		attribute.String("triage.rule", r.Rule),
	)

	conditions, err := json.Marshal(nonNil(r.PotentialConditions))
	if err != nil {
		return fail(span, fmt.Errorf("marshal conditions: %w", err))
	}
	report, err := json.Marshal(r.Report)
	if err != nil {
		return fail(span, fmt.Errorf("marshal report: %w", err))
	}

	query := `INSERT INTO triage_results (` + resultColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	ON CONFLICT (request_id) DO UPDATE SET
		created_at           = EXCLUDED.created_at,
		rule                 = EXCLUDED.rule,
		primary_diagnosis    = EXCLUDED.primary_diagnosis,
		urgency_score        = EXCLUDED.urgency_score,
		urgency_level        = EXCLUDED.urgency_level,
		triage_advice        = EXCLUDED.triage_advice,
		potential_conditions = EXCLUDED.potential_conditions,
		formatted_report     = EXCLUDED.formatted_report,
		disclaimer           = EXCLUDED.disclaimer`

	_, err = s.pool.Exec(ctx, query,
		r.RequestID, r.Timestamp, r.Rule, r.PrimaryDiagnosis, r.UrgencyScore,
		string(r.UrgencyLevel), r.TriageAdvice, conditions, report, r.Disclaimer,
	)
	if err != nil {
		return fail(span, fmt.Errorf("upsert triage result: %w", err))
	}
	return nil
}

// Recent returns up to limit results, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*triage.Result, error) {
	ctx, span := startSpan(ctx, "pgstore.Recent", "SELECT")
	defer span.End()
	span.SetAttributes(attribute.Int("db.query.limit", limit))

	query := `SELECT ` + resultColumns + ` FROM triage_results
	ORDER BY created_at DESC, request_id DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query recent: %w", err))
	}
	defer rows.Close()

	out := make([]*triage.Result, 0, limit)
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fail(span, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate recent: %w", err))
	}
	return out, nil
}

// scanResult scans a single row. pgx.ErrNoRows is returned unwrapped.
func scanResult(row pgx.Row) (*triage.Result, error) {
	var (
		r          triage.Result
		level      string
		conditions []byte
		report     []byte
	)
	err := row.Scan(
		&r.RequestID, &r.Timestamp, &r.Rule, &r.PrimaryDiagnosis, &r.UrgencyScore,
		&level, &r.TriageAdvice, &conditions, &report, &r.Disclaimer,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	r.UrgencyLevel = triage.UrgencyLevel(level)
	r.Timestamp = r.Timestamp.UTC()

	if err := json.Unmarshal(conditions, &r.PotentialConditions); err != nil {
		return nil, fmt.Errorf("unmarshal conditions: %w", err)
	}
	if err := json.Unmarshal(report, &r.Report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &r, nil
}

func nonNil(c []triage.ConditionMatch) []triage.ConditionMatch {
	if c == nil {
		return []triage.ConditionMatch{}
	}
	return c
}
