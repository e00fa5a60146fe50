package pgstore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/linnemanlabs/medassist/internal/postgres"
	"github.com/linnemanlabs/medassist/internal/triage"
	"github.com/linnemanlabs/medassist/internal/triage/pgstore"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("MEDASSIST_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("MEDASSIST_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	return s
}

func analyze(t *testing.T, symptoms string, at time.Time, id string) *triage.Result {
	t.Helper()
	e, err := triage.NewEngine(
		triage.WithClock(func() time.Time { return at }),
		triage.WithIDGenerator(func() string { return id }),
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	r, err := e.Analyze(triage.Query{Symptoms: symptoms})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	return r
}

func uniqueID(t *testing.T, suffix string) string {
	return fmt.Sprintf("test-%s-%d-%s", t.Name(), time.Now().UnixNano(), suffix)
}

func TestPutAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Microsecond).UTC()
	r := analyze(t, "chest pain and shortness of breath", now, uniqueID(t, "a"))

	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := s.Get(ctx, r.RequestID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get returned ok=false, want true")
	}

	assertEqual(t, "RequestID", r.RequestID, got.RequestID)
	assertEqual(t, "Rule", r.Rule, got.Rule)
	assertEqual(t, "PrimaryDiagnosis", r.PrimaryDiagnosis, got.PrimaryDiagnosis)
	assertEqual(t, "UrgencyScore", r.UrgencyScore, got.UrgencyScore)
	assertEqual(t, "UrgencyLevel", string(r.UrgencyLevel), string(got.UrgencyLevel))
	assertEqual(t, "TriageAdvice", r.TriageAdvice, got.TriageAdvice)
	assertEqual(t, "Disclaimer", r.Disclaimer, got.Disclaimer)
	assertEqual(t, "Report.Title", r.Report.Title, got.Report.Title)
	assertEqual(t, "Report.Summary", r.Report.Summary, got.Report.Summary)

	if !got.Timestamp.Equal(r.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, r.Timestamp)
	}
	if len(got.PotentialConditions) != len(r.PotentialConditions) {
		t.Fatalf("conditions = %d, want %d", len(got.PotentialConditions), len(r.PotentialConditions))
	}
	for i := range r.PotentialConditions {
		assertEqual(t, "Condition", r.PotentialConditions[i].Condition, got.PotentialConditions[i].Condition)
		assertEqual(t, "Probability", r.PotentialConditions[i].Probability, got.PotentialConditions[i].Probability)
	}
	if len(got.Report.Sections) != len(r.Report.Sections) {
		t.Errorf("sections = %d, want %d", len(got.Report.Sections), len(r.Report.Sections))
	}
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.Get(context.Background(), uniqueID(t, "missing"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing request id")
	}
}

func TestPutUpserts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	id := uniqueID(t, "u")
	now := time.Now().Truncate(time.Microsecond).UTC()

	if err := s.Put(ctx, analyze(t, "tired", now, id)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, analyze(t, "headache fever", now, id)); err != nil {
		t.Fatalf("Put (upsert): %v", err)
	}

	got, _, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	assertEqual(t, "Rule", triage.RuleViralInfection, got.Rule)
}

func TestRecent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	// far future so these rows sort ahead of anything else in the table
	base := time.Now().AddDate(900, 0, 0).Truncate(time.Microsecond).UTC()
	var ids []string
	for i := range 3 {
		id := uniqueID(t, fmt.Sprint(i))
		ids = append(ids, id)
		if err := s.Put(ctx, analyze(t, "tired", base.Add(time.Duration(i)*time.Second), id)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent(2) returned %d results", len(got))
	}
	assertEqual(t, "Recent[0]", ids[2], got[0].RequestID)
	assertEqual(t, "Recent[1]", ids[1], got[1].RequestID)
}

func assertEqual[T comparable](t *testing.T, field string, want, got T) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %v, got %v", field, want, got)
	}
}
