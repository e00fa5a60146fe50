package triage

import (
	"errors"
	"fmt"
	"strings"
)

// Rule is a single (predicate, payload) entry of the triage table. The
// predicate is a conjunction: every keyword must occur as a substring of the
// lowercased input.
type Rule struct {
	Name             string
	Keywords         []string
	PrimaryDiagnosis string
	UrgencyScore     int
	TriageAdvice     string
	Conditions       []ConditionMatch
}

// Matches reports whether all keywords occur in normalized, which must
// already be lowercase.
func (r *Rule) Matches(normalized string) bool {
	if len(r.Keywords) == 0 {
		return false
	}
	for _, kw := range r.Keywords {
		if !strings.Contains(normalized, kw) {
			return false
		}
	}
	return true
}

// Level is the urgency tier implied by the rule's score.
func (r *Rule) Level() UrgencyLevel {
	return LevelForScore(r.UrgencyScore)
}

func (r *Rule) validate(requireKeywords bool) error {
	var errs []error
	if r.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if requireKeywords && len(r.Keywords) == 0 {
		errs = append(errs, fmt.Errorf("rule %q: at least one keyword is required", r.Name))
	}
	for _, kw := range r.Keywords {
		if strings.TrimSpace(kw) == "" {
			errs = append(errs, fmt.Errorf("rule %q: empty keyword", r.Name))
		}
	}
	if r.UrgencyScore < MinUrgencyScore || r.UrgencyScore > MaxUrgencyScore {
		errs = append(errs, fmt.Errorf("rule %q: urgency score %d out of range %d..%d", r.Name, r.UrgencyScore, MinUrgencyScore, MaxUrgencyScore))
	}
	if r.PrimaryDiagnosis == "" {
		errs = append(errs, fmt.Errorf("rule %q: primary diagnosis is required", r.Name))
	}
	for _, c := range r.Conditions {
		if c.Probability < 0 || c.Probability > 1 {
			errs = append(errs, fmt.Errorf("rule %q: condition %q probability %v out of range 0..1", r.Name, c.Condition, c.Probability))
		}
	}
	return errors.Join(errs...)
}

// normalized returns a copy with keywords lowercased.
func (r Rule) normalized() Rule {
	kws := make([]string, len(r.Keywords))
	for i, kw := range r.Keywords {
		kws[i] = strings.ToLower(kw)
	}
	r.Keywords = kws
	return r
}

// Rule names of the built-in table.
const (
	RuleCardiacEmergency = "cardiac-emergency"
	RuleViralInfection   = "viral-infection"
	RuleGeneralMalaise   = "general-malaise"
)

// DefaultRules returns the built-in rule table in priority order. The
// fallback rule is not part of it; see DefaultFallback.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:             RuleCardiacEmergency,
			Keywords:         []string{"chest pain", "shortness of breath"},
			PrimaryDiagnosis: "Potential Cardiac Event",
			UrgencyScore:     10,
			TriageAdvice:     "This could be a medical emergency. Please call emergency services (e.g., 911) immediately. Do not attempt to drive yourself to the hospital.",
			Conditions: []ConditionMatch{
				{
					Condition:      "Myocardial Infarction (Heart Attack)",
					Probability:    0.8,
					Description:    "A blockage of blood flow to the heart muscle.",
					CommonSymptoms: []string{"chest pain or pressure", "shortness of breath", "pain in left arm", "sweating"},
				},
				{
					Condition:      "Pulmonary Embolism",
					Probability:    0.15,
					Description:    "A blood clot that travels to the lungs.",
					CommonSymptoms: []string{"sharp chest pain", "shortness of breath", "rapid heart rate", "coughing up blood"},
				},
				{
					Condition:      "Panic Attack",
					Probability:    0.05,
					Description:    "A sudden episode of intense fear that triggers severe physical reactions when there is no real danger.",
					CommonSymptoms: []string{"racing heart", "sweating", "trembling", "feeling of impending doom"},
				},
			},
		},
		{
			Name:             RuleViralInfection,
			Keywords:         []string{"headache", "fever"},
			PrimaryDiagnosis: "Possible Influenza or Viral Infection",
			UrgencyScore:     5,
			TriageAdvice:     "Rest, hydrate, and monitor symptoms. Consider consulting a doctor if symptoms worsen or persist for more than 3 days.",
			Conditions: []ConditionMatch{
				{
					Condition:      "Influenza",
					Probability:    0.7,
					Description:    "A common viral infection that can be deadly, especially in high-risk groups.",
					CommonSymptoms: []string{"fever", "chills", "muscle aches", "cough", "sore throat"},
				},
				{
					Condition:      "Common Cold",
					Probability:    0.2,
					Description:    "A mild viral infection of the nose and throat.",
					CommonSymptoms: []string{"runny nose", "sneezing", "sore throat"},
				},
				{
					Condition:      "Meningitis",
					Probability:    0.05,
					Description:    "A serious infection of the membranes covering the brain and spinal cord. Requires immediate medical attention.",
					CommonSymptoms: []string{"stiff neck", "severe headache", "sensitivity to light", "confusion"},
				},
			},
		},
	}
}

// DefaultFallback is applied when no rule in the table matches.
func DefaultFallback() Rule {
	return Rule{
		Name:             RuleGeneralMalaise,
		PrimaryDiagnosis: "General Malaise",
		UrgencyScore:     2,
		TriageAdvice:     "Your symptoms are non-specific. Monitor your condition and consult a healthcare professional if you feel worse.",
		Conditions: []ConditionMatch{
			{
				Condition:      "General Fatigue",
				Probability:    0.6,
				Description:    "A feeling of tiredness or lack of energy.",
				CommonSymptoms: []string{"weariness", "sleepiness", "low energy"},
			},
			{
				Condition:      "Dehydration",
				Probability:    0.3,
				Description:    "Occurs when you use or lose more fluid than you take in.",
				CommonSymptoms: []string{"thirst", "dark urine", "dizziness"},
			},
		},
	}
}
