package symptomapi

import (
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/medassist/internal/assistant"
)

type chatRequest struct {
	Message string `json:"message"`
}

func (a *API) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reply, err := a.chat.Reply(r.Context(), req.Message)
	switch {
	case errors.Is(err, assistant.ErrEmptyMessage), errors.Is(err, assistant.ErrMessageTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		a.logger.Error(r.Context(), err, "assistant reply failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("medassist.chat.mode", reply.Mode),
		attribute.String("medassist.chat.rule", reply.Rule),
	)

	writeJSON(w, http.StatusOK, reply)
}
