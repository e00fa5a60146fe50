package triage

import (
	"strings"
	"time"
)

// Sex is the self-reported sex on a user profile.
type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
	SexOther  Sex = "other"
)

// UserProfile is optional context supplied with a query. It is validated
// but not consulted by any rule.
type UserProfile struct {
	Age *int `json:"age,omitempty"`
	Sex Sex  `json:"sex,omitempty"`
}

// Query is a single free-text symptom description submitted for triage.
type Query struct {
	Symptoms    string       `json:"symptoms"`
	UserProfile *UserProfile `json:"userProfile,omitempty"`
}

// UrgencyLevel is the tier derived from an urgency score.
type UrgencyLevel string

const (
	UrgencyLow       UrgencyLevel = "Low"
	UrgencyMedium    UrgencyLevel = "Medium"
	UrgencyHigh      UrgencyLevel = "High"
	UrgencyEmergency UrgencyLevel = "Emergency"
)

const (
	MinUrgencyScore = 0
	MaxUrgencyScore = 10
)

// LevelForScore maps a 0..10 urgency score onto its tier. Scores below the
// range count as Low and scores above it as Emergency.
func LevelForScore(score int) UrgencyLevel {
	switch {
	case score <= 3:
		return UrgencyLow
	case score <= 6:
		return UrgencyMedium
	case score <= 9:
		return UrgencyHigh
	default:
		return UrgencyEmergency
	}
}

// rank orders levels for threshold comparisons.
func (l UrgencyLevel) rank() int {
	switch l {
	case UrgencyLow:
		return 1
	case UrgencyMedium:
		return 2
	case UrgencyHigh:
		return 3
	case UrgencyEmergency:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether l is the same tier as other or more urgent.
func (l UrgencyLevel) AtLeast(other UrgencyLevel) bool {
	return l.rank() >= other.rank() && l.rank() > 0
}

// ParseUrgencyLevel parses a tier name case-insensitively.
func ParseUrgencyLevel(s string) (UrgencyLevel, bool) {
	for _, l := range []UrgencyLevel{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyEmergency} {
		if strings.EqualFold(string(l), s) {
			return l, true
		}
	}
	return "", false
}

// ConditionMatch is one candidate condition with an independent likelihood.
// Probabilities across a result are not normalized.
type ConditionMatch struct {
	Condition      string   `json:"condition"`
	Probability    float64  `json:"probability"`
	Description    string   `json:"description"`
	CommonSymptoms []string `json:"common_symptoms"`
}

// ReportSection is a headed block of report text.
type ReportSection struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// Report is the human-readable rendering of a result.
type Report struct {
	Title    string          `json:"title"`
	Summary  string          `json:"summary"`
	Sections []ReportSection `json:"sections"`
}

// Result is the outcome of a triage run.
type Result struct {
	RequestID           string           `json:"request_id"`
	Timestamp           time.Time        `json:"timestamp"`
	PrimaryDiagnosis    string           `json:"primary_diagnosis"`
	UrgencyScore        int              `json:"urgency_score"`
	UrgencyLevel        UrgencyLevel     `json:"urgency_level"`
	TriageAdvice        string           `json:"triage_advice"`
	PotentialConditions []ConditionMatch `json:"potential_conditions"`
	Report              Report           `json:"formatted_report"`
	Disclaimer          string           `json:"disclaimer"`
	Rule                string           `json:"rule"`
}

// Clone returns a deep copy of r.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	cp := *r
	cp.PotentialConditions = make([]ConditionMatch, len(r.PotentialConditions))
	for i, c := range r.PotentialConditions {
		c.CommonSymptoms = append([]string(nil), c.CommonSymptoms...)
		cp.PotentialConditions[i] = c
	}
	cp.Report.Sections = append([]ReportSection(nil), r.Report.Sections...)
	return &cp
}
