package symptomapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/medassist/internal/assistant"
	"github.com/linnemanlabs/medassist/internal/triage"
)

// DefaultPingMessage is served by /api/ping when no message is configured.
const DefaultPingMessage = "ping"

// maxBodyBytes caps request bodies read by the JSON decoders.
const maxBodyBytes = 64 << 10

// TriageService defines the business operations symptomapi needs.
type TriageService interface {
	Analyze(ctx context.Context, q triage.Query) (*triage.Result, error)
	Get(ctx context.Context, id string) (*triage.Result, bool, error)
	Recent(ctx context.Context, limit int) ([]*triage.Result, error)
}

// Assistant answers chat messages.
type Assistant interface {
	Reply(ctx context.Context, message string) (*assistant.Reply, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger      log.Logger
	svc         TriageService
	chat        Assistant
	auth        func(http.Handler) http.Handler
	pingMessage string
}

// Option configures an API.
type Option func(*API)

// WithAssistant enables the chat endpoint.
func WithAssistant(a Assistant) Option {
	return func(api *API) { api.chat = a }
}

// WithAuth guards every /api/v1 route with mw.
func WithAuth(mw func(http.Handler) http.Handler) Option {
	return func(api *API) { api.auth = mw }
}

// WithPingMessage overrides the /api/ping message.
func WithPingMessage(msg string) Option {
	return func(api *API) {
		if msg != "" {
			api.pingMessage = msg
		}
	}
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService, opts ...Option) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	a := &API{
		logger:      logger,
		svc:         svc,
		pingMessage: DefaultPingMessage,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/api/ping", a.handlePing)

	r.Route("/api/v1", func(r chi.Router) {
		if a.auth != nil {
			r.Use(a.auth)
		}
		r.Post("/symptoms/analyze", a.handleAnalyze)
		r.Get("/analyses", a.handleListAnalyses)
		r.Get("/analyses/{id}", a.handleGetAnalysis)
		if a.chat != nil {
			r.Post("/assistant/chat", a.handleChat)
		}
	})
}

func (a *API) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": a.pingMessage})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads a single JSON value from the request body. It writes the
// error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
