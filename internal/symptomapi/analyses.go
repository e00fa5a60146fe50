package symptomapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/medassist/internal/triage"
)

type listResponse struct {
	Analyses []*triage.Result `json:"analyses"`
}

func (a *API) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	results, err := a.svc.Recent(r.Context(), limit)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list analyses", "limit", limit)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if results == nil {
		results = []*triage.Result{}
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.Int("medassist.analyses.count", len(results)),
	)

	writeJSON(w, http.StatusOK, listResponse{Analyses: results})
}

func (a *API) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("medassist.analysis.id", id))

	result, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get analysis", "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	span.SetAttributes(attribute.String("medassist.analysis.urgency_level", string(result.UrgencyLevel)))

	writeJSON(w, http.StatusOK, result)
}
