package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/linnemanlabs/medassist/internal/triage"
)

// Analyzer classifies a symptom query. *triage.Engine satisfies it.
type Analyzer interface {
	Analyze(q triage.Query) (*triage.Result, error)
	Rules() []triage.Rule
}

// ResultGetter loads a stored analysis. *triage.Service satisfies it.
type ResultGetter interface {
	Get(ctx context.Context, id string) (*triage.Result, bool, error)
}

// TriageSymptoms runs the rule engine over a symptom description. It does
// not persist or notify; the assistant only uses it to ground a reply.
type TriageSymptoms struct {
	analyzer Analyzer
}

// NewTriageSymptoms returns the triage_symptoms tool backed by a.
func NewTriageSymptoms(a Analyzer) *TriageSymptoms {
	return &TriageSymptoms{analyzer: a}
}

func (t *TriageSymptoms) Name() string { return "triage_symptoms" }

func (t *TriageSymptoms) Description() string {
	return `Classify a free-text description of symptoms with the service's rule-based triage engine.
Returns the primary assessment, an urgency score from 0 to 10, the urgency level (Low, Medium, High, Emergency),
triage advice and a list of candidate conditions with independent probabilities. Always use this before giving
urgency guidance, and repeat its advice verbatim for High or Emergency results.`
}

func (t *TriageSymptoms) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "symptoms": {
                "type": "string",
                "description": "The user's symptoms in their own words"
            }
        },
        "required": ["symptoms"]
    }`)
}

// triageOutput is the subset of a Result shown to the model.
type triageOutput struct {
	PrimaryDiagnosis    string                  `json:"primary_diagnosis"`
	UrgencyScore        int                     `json:"urgency_score"`
	UrgencyLevel        triage.UrgencyLevel     `json:"urgency_level"`
	TriageAdvice        string                  `json:"triage_advice"`
	PotentialConditions []triage.ConditionMatch `json:"potential_conditions"`
	Rule                string                  `json:"rule"`
}

func (t *TriageSymptoms) Execute(_ context.Context, params json.RawMessage) (json.RawMessage, error) {
	var input struct {
		Symptoms string `json:"symptoms"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	r, err := t.analyzer.Analyze(triage.Query{Symptoms: input.Symptoms})
	if err != nil {
		return nil, err
	}

	return json.Marshal(triageOutput{
		PrimaryDiagnosis:    r.PrimaryDiagnosis,
		UrgencyScore:        r.UrgencyScore,
		UrgencyLevel:        r.UrgencyLevel,
		TriageAdvice:        r.TriageAdvice,
		PotentialConditions: r.PotentialConditions,
		Rule:                r.Rule,
	})
}

// ListRules describes the active rule table.
type ListRules struct {
	analyzer Analyzer
}

// NewListRules returns the list_triage_rules tool backed by a.
func NewListRules(a Analyzer) *ListRules {
	return &ListRules{analyzer: a}
}

func (l *ListRules) Name() string { return "list_triage_rules" }

func (l *ListRules) Description() string {
	return `List the triage rules in priority order. Each rule fires when every one of its keywords appears
in the symptom text; the first matching rule wins and the last rule is the fallback. Use this to explain
why a description was classified the way it was.`
}

func (l *ListRules) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

type ruleOutput struct {
	Name             string              `json:"name"`
	Keywords         []string            `json:"keywords"`
	PrimaryDiagnosis string              `json:"primary_diagnosis"`
	UrgencyScore     int                 `json:"urgency_score"`
	UrgencyLevel     triage.UrgencyLevel `json:"urgency_level"`
}

func (l *ListRules) Execute(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
	rules := l.analyzer.Rules()
	out := make([]ruleOutput, 0, len(rules))
	for _, r := range rules {
		kw := r.Keywords
		if kw == nil {
			kw = []string{}
		}
		out = append(out, ruleOutput{
			Name:             r.Name,
			Keywords:         kw,
			PrimaryDiagnosis: r.PrimaryDiagnosis,
			UrgencyScore:     r.UrgencyScore,
			UrgencyLevel:     r.Level(),
		})
	}
	return json.Marshal(map[string]any{"rules": out})
}

// GetAnalysis loads a previously stored analysis by request ID.
type GetAnalysis struct {
	getter ResultGetter
}

// NewGetAnalysis returns the get_analysis tool backed by g.
func NewGetAnalysis(g ResultGetter) *GetAnalysis {
	return &GetAnalysis{getter: g}
}

func (g *GetAnalysis) Name() string { return "get_analysis" }

func (g *GetAnalysis) Description() string {
	return `Fetch a previous symptom analysis by its request_id. Use this when the user refers to an earlier
analysis. Returns the stored result, or an error if no analysis has that ID.`
}

func (g *GetAnalysis) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "request_id": {
                "type": "string",
                "description": "The request_id returned by an earlier analysis"
            }
        },
        "required": ["request_id"]
    }`)
}

// ErrAnalysisNotFound is returned when get_analysis is given an unknown ID.
var ErrAnalysisNotFound = errors.New("analysis not found")

func (g *GetAnalysis) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var input struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if input.RequestID == "" {
		return nil, fmt.Errorf("request_id is required")
	}

	r, ok, err := g.getter.Get(ctx, input.RequestID)
	if err != nil {
		return nil, fmt.Errorf("load analysis: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAnalysisNotFound, input.RequestID)
	}
	return json.Marshal(r)
}
