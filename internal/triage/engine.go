// internal/triage/engine.go
package triage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Engine classifies symptom text against an ordered rule table. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	rules    []Rule
	fallback Rule
	newID    func() string
	now      func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRules replaces the built-in rule table. Order is priority order.
func WithRules(rules ...Rule) EngineOption {
	return func(e *Engine) {
		e.rules = append([]Rule(nil), rules...)
	}
}

// WithFallback replaces the rule applied when nothing else matches.
func WithFallback(r Rule) EngineOption {
	return func(e *Engine) {
		e.fallback = r
	}
}

// WithClock sets the time source for result timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator sets the request ID source.
func WithIDGenerator(newID func() string) EngineOption {
	return func(e *Engine) {
		e.newID = newID
	}
}

// NewEngine creates a triage engine. Without options it uses the built-in
// rules, ULID request IDs and the wall clock in UTC.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		rules:    DefaultRules(),
		fallback: DefaultFallback(),
		newID:    func() string { return ulid.Make().String() },
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}

	var errs []error
	for i := range e.rules {
		if err := e.rules[i].validate(true); err != nil {
			errs = append(errs, err)
		}
		e.rules[i] = e.rules[i].normalized()
	}
	if err := e.fallback.validate(false); err != nil {
		errs = append(errs, fmt.Errorf("fallback: %w", err))
	}
	if e.newID == nil || e.now == nil {
		errs = append(errs, errors.New("id generator and clock are required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("triage engine: %w", err)
	}
	return e, nil
}

// Rules returns a copy of the rule table in evaluation order, fallback last.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, 0, len(e.rules)+1)
	out = append(out, e.rules...)
	return append(out, e.fallback)
}

// Match returns the first rule whose keywords all occur in symptoms, or the
// fallback. Later rules are never evaluated once one matches.
func (e *Engine) Match(symptoms string) *Rule {
	normalized := strings.ToLower(symptoms)
	for i := range e.rules {
		if e.rules[i].Matches(normalized) {
			return &e.rules[i]
		}
	}
	return &e.fallback
}

// Analyze validates q and returns a fully populated result. It fails only on
// invalid input; unrecognized symptoms fall through to the fallback rule.
func (e *Engine) Analyze(q Query) (res *Result, err error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &InternalError{Op: "build result", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	rule := e.Match(q.Symptoms)
	level := rule.Level()
	conditions := cloneConditions(rule.Conditions)

	return &Result{
		RequestID:           e.newID(),
		Timestamp:           e.now(),
		PrimaryDiagnosis:    rule.PrimaryDiagnosis,
		UrgencyScore:        rule.UrgencyScore,
		UrgencyLevel:        level,
		TriageAdvice:        rule.TriageAdvice,
		PotentialConditions: conditions,
		Report:              buildReport(q.Symptoms, level, rule.PrimaryDiagnosis, rule.TriageAdvice, conditions),
		Disclaimer:          Disclaimer,
		Rule:                rule.Name,
	}, nil
}

func validateQuery(q Query) error {
	if strings.TrimSpace(q.Symptoms) == "" {
		return &InvalidInputError{Field: "symptoms", Reason: "symptom description is required"}
	}
	if p := q.UserProfile; p != nil {
		if p.Age != nil && *p.Age < 0 {
			return &InvalidInputError{Field: "userProfile.age", Reason: "must be zero or greater"}
		}
		switch p.Sex {
		case "", SexMale, SexFemale, SexOther:
		default:
			return &InvalidInputError{Field: "userProfile.sex", Reason: "must be one of male, female, other"}
		}
	}
	return nil
}

// cloneConditions copies the payload so callers cannot mutate the rule table.
func cloneConditions(in []ConditionMatch) []ConditionMatch {
	out := make([]ConditionMatch, len(in))
	for i, c := range in {
		c.CommonSymptoms = append([]string(nil), c.CommonSymptoms...)
		out[i] = c
	}
	return out
}
