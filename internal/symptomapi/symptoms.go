package symptomapi

import (
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/medassist/internal/triage"
)

// analyzeRequest accepts the profile under either key; the camelCase form
// wins when both are present.
type analyzeRequest struct {
	Symptoms         string              `json:"symptoms"`
	UserProfile      *triage.UserProfile `json:"userProfile"`
	UserProfileSnake *triage.UserProfile `json:"user_profile"`
}

func (req *analyzeRequest) query() triage.Query {
	q := triage.Query{Symptoms: req.Symptoms, UserProfile: req.UserProfile}
	if q.UserProfile == nil {
		q.UserProfile = req.UserProfileSnake
	}
	return q
}

func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := a.svc.Analyze(r.Context(), req.query())
	if err != nil {
		if errors.Is(err, triage.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.logger.Error(r.Context(), err, "symptom analysis failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("medassist.analysis.id", result.RequestID),
		attribute.String("medassist.analysis.rule", result.Rule),
		attribute.String("medassist.analysis.urgency_level", string(result.UrgencyLevel)),
		attribute.Int("medassist.analysis.urgency_score", result.UrgencyScore),
	)

	writeJSON(w, http.StatusOK, result)
}
