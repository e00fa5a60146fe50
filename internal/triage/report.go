package triage

import (
	"fmt"
	"math"
	"strings"
)

// Disclaimer is attached to every result.
const Disclaimer = "This is an AI-generated analysis and not a substitute for professional medical advice. Please consult a doctor for any health concerns."

const (
	HeadingConditions     = "Potential Conditions"
	HeadingSymptomReview  = "Detailed Symptom Review"
	symptomReviewPreamble = "The AI analyzed the following key symptoms: "
)

// buildReport renders the report for a classified query. symptoms is the
// caller's original, non-normalized text.
func buildReport(symptoms string, level UrgencyLevel, diagnosis, advice string, conditions []ConditionMatch) Report {
	return Report{
		Title: `AI Health Analysis for: "` + symptoms + `"`,
		Summary: fmt.Sprintf(
			"Based on the reported symptoms, the primary assessment is a **%s** urgency for **%s**. %s",
			level, diagnosis, advice,
		),
		Sections: []ReportSection{
			{Heading: HeadingConditions, Content: conditionLines(conditions)},
			{Heading: HeadingSymptomReview, Content: symptomReviewPreamble + strings.Join(strings.Fields(symptoms), ", ")},
		},
	}
}

func conditionLines(conditions []ConditionMatch) string {
	lines := make([]string, 0, len(conditions))
	for _, c := range conditions {
		lines = append(lines, fmt.Sprintf("- %s (%d%% probability)", c.Condition, Percent(c.Probability)))
	}
	return strings.Join(lines, "\n")
}

// Percent renders a probability as a whole percentage, rounding half away from zero.
func Percent(p float64) int {
	return int(math.Round(p * 100))
}
