package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/linnemanlabs/medassist/internal/triage"
)

// Greeting is the assistant's opening line for a new chat.
const Greeting = "Hello! I'm MedAssist, your AI medical companion. I'm here to help with health questions, " +
	"symptom analysis, and medical guidance. What can I assist you with today?"

var cannedReplies = [...]string{
	"Based on your symptoms, I'd recommend monitoring them closely. Can you tell me more about when they started and their severity?",
	"That's a great question about your health. Let me provide some evidence-based information to help you understand your situation better.",
	"I understand your concern. Here are some recommendations that might help, but remember to consult with a healthcare provider for personalized advice.",
	"Your health data suggests some interesting patterns. Let me analyze this further and provide personalized insights.",
}

// cannedReply picks a reply by a stable hash of the normalized message, so
// the same question always gets the same answer.
func cannedReply(message string) string {
	key := strings.Join(strings.Fields(strings.ToLower(message)), " ")
	return cannedReplies[xxhash.Sum64String(key)%uint64(len(cannedReplies))]
}

// triageReply phrases a non-fallback engine result as a chat answer.
func triageReply(r *triage.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "What you describe matches **%s** with **%s** urgency. %s",
		r.PrimaryDiagnosis, r.UrgencyLevel, r.TriageAdvice)
	if len(r.PotentialConditions) > 0 {
		b.WriteString("\n\nConditions worth discussing with a clinician:\n")
		for i, c := range r.PotentialConditions {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "- %s (%d%% probability)", c.Condition, triage.Percent(c.Probability))
		}
	}
	b.WriteString("\n\n")
	b.WriteString(triage.Disclaimer)
	return b.String()
}

func triageQuery(message string) triage.Query {
	return triage.Query{Symptoms: message}
}

// ruleFromOutput extracts the rule name from a triage_symptoms result.
func ruleFromOutput(out string) string {
	var v struct {
		Rule string `json:"rule"`
	}
	if json.Unmarshal([]byte(out), &v) != nil {
		return ""
	}
	return v.Rule
}
