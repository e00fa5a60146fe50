// Package cfg holds the application flags for the medassist server.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"

	"github.com/linnemanlabs/medassist/internal/triage"
)

const (
	DefaultClaudeModel = "claude-sonnet-4-20250514"
	DefaultPingMessage = "ping"
	minAPITokenLen     = 16
	maxMemstoreSize    = 1_000_000
)

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	DatabaseMaxConns      int
	APIToken              string
	InsecureNoAuth        bool
	SlackWebhookURL       string
	ClaudeAPIKey          string
	ClaudeModel           string
	PingMessage           string
	MemstoreSize          int
	NotifyMinLevel        string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 20, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 30, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.IntVar(&c.DatabaseMaxConns, "database-max-conns", 0, "maximum PostgreSQL pool connections (0 = pgx default)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on /api/v1 routes")
	fs.BoolVar(&c.InsecureNoAuth, "insecure-no-auth", false, "serve /api/v1 without authentication (development only)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for urgent triage notifications")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude assistant (empty = templated replies)")
	fs.StringVar(&c.ClaudeModel, "claude-model", DefaultClaudeModel, "Claude model used by the assistant")
	fs.StringVar(&c.PingMessage, "ping-message", DefaultPingMessage, "message returned by GET /api/ping")
	fs.IntVar(&c.MemstoreSize, "memstore-size", 1024, "results kept by the in-memory store (1..1000000)")
	fs.StringVar(&c.NotifyMinLevel, "notify-min-level", string(triage.UrgencyHigh), "lowest urgency level that triggers a notification (Low, Medium, High, Emergency)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Auth: a token, or an explicit opt-out
	switch {
	case c.APIToken == "" && !c.InsecureNoAuth:
		errs = append(errs, errors.New("API_TOKEN is required (or set INSECURE_NO_AUTH for development)"))
	case c.APIToken != "" && c.InsecureNoAuth:
		errs = append(errs, errors.New("API_TOKEN and INSECURE_NO_AUTH are mutually exclusive"))
	case c.APIToken != "" && len(c.APIToken) < minAPITokenLen:
		errs = append(errs, fmt.Errorf("API_TOKEN must be at least %d characters", minAPITokenLen))
	}

	if c.DatabaseMaxConns < 0 || c.DatabaseMaxConns > 1000 {
		errs = append(errs, fmt.Errorf("invalid DATABASE_MAX_CONNS %d (must be 0-1000)", c.DatabaseMaxConns))
	}

	if c.DatabaseURL == "" && (c.MemstoreSize <= 0 || c.MemstoreSize > maxMemstoreSize) {
		errs = append(errs, fmt.Errorf("invalid MEMSTORE_SIZE %d (must be 1..%d)", c.MemstoreSize, maxMemstoreSize))
	}

	if c.SlackWebhookURL != "" {
		if u, err := url.Parse(c.SlackWebhookURL); err != nil || u.Scheme != "https" || u.Host == "" {
			errs = append(errs, errors.New("SLACK_WEBHOOK_URL must be an https URL"))
		}
	}

	if c.ClaudeAPIKey != "" && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when CLAUDE_API_KEY is set"))
	}

	if c.PingMessage == "" {
		errs = append(errs, errors.New("PING_MESSAGE must not be empty"))
	}

	if _, ok := triage.ParseUrgencyLevel(c.NotifyMinLevel); !ok {
		errs = append(errs, fmt.Errorf("invalid NOTIFY_MIN_LEVEL %q (must be Low, Medium, High or Emergency)", c.NotifyMinLevel))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// NotifyLevel returns the parsed notification threshold, defaulting to High.
func (c *Config) NotifyLevel() triage.UrgencyLevel {
	if l, ok := triage.ParseUrgencyLevel(c.NotifyMinLevel); ok {
		return l
	}
	return triage.UrgencyHigh
}
