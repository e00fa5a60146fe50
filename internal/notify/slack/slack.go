// Package slack posts urgent triage results to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/medassist/internal/triage"
)

const (
	maxTextLen  = 2900 // Slack caps section text at 3000 chars
	httpTimeout = 10 * time.Second
)

// Notifier sends triage results to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n.webhookURL != ""
}

// Send posts a triage result to the configured webhook.
func (n *Notifier) Send(ctx context.Context, result *triage.Result) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(result))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "slack notification posted",
		"request_id", result.RequestID,
		"bytes", len(body),
	)
	return nil
}

type message struct {
	Text   string  `json:"text"` // notification fallback
	Blocks []block `json:"blocks"`
}

type block struct {
	Type     string `json:"type"`
	Text     *text  `json:"text,omitempty"`
	Fields   []text `json:"fields,omitempty"`
	Elements []text `json:"elements,omitempty"`
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(s string) text { return text{Type: "mrkdwn", Text: s} }

func buildMessage(r *triage.Result) message {
	title := fmt.Sprintf("%s %s urgency: %s", urgencyEmoji(r.UrgencyLevel), r.UrgencyLevel, r.PrimaryDiagnosis)
	return message{
		Text: title,
		Blocks: []block{
			{Type: "header", Text: &text{Type: "plain_text", Text: title}},
			{Type: "divider"},
			fieldsBlock(r),
			{Type: "divider"},
			adviceBlock(r),
			conditionsBlock(r),
			{Type: "divider"},
			contextBlock(r),
		},
	}
}

func fieldsBlock(r *triage.Result) block {
	return block{
		Type: "section",
		Fields: []text{
			mrkdwn(fmt.Sprintf("*Urgency score:* %d/%d", r.UrgencyScore, triage.MaxUrgencyScore)),
			mrkdwn(fmt.Sprintf("*Level:* %s", r.UrgencyLevel)),
			mrkdwn(fmt.Sprintf("*Rule:* %s", r.Rule)),
			mrkdwn(fmt.Sprintf("*Request:* `%s`", r.RequestID)),
		},
	}
}

func adviceBlock(r *triage.Result) block {
	advice := truncate(r.TriageAdvice, maxTextLen)
	if advice == "" {
		advice = "_No advice available._"
	}
	t := mrkdwn("*Advice*\n\n" + advice)
	return block{Type: "section", Text: &t}
}

func conditionsBlock(r *triage.Result) block {
	lines := make([]string, 0, len(r.PotentialConditions))
	for _, c := range r.PotentialConditions {
		lines = append(lines, fmt.Sprintf("• %s (%d%%)", c.Condition, triage.Percent(c.Probability)))
	}
	body := strings.Join(lines, "\n")
	if body == "" {
		body = "_None listed._"
	}
	t := mrkdwn("*Potential conditions*\n" + truncate(body, maxTextLen))
	return block{Type: "section", Text: &t}
}

func contextBlock(r *triage.Result) block {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return block{
		Type: "context",
		Elements: []text{
			mrkdwn(fmt.Sprintf("medassist • %s", ts.UTC().Format("2006-01-02 15:04 UTC"))),
		},
	}
}

func urgencyEmoji(l triage.UrgencyLevel) string {
	switch l {
	case triage.UrgencyEmergency:
		return "\U0001f6a8" // rotating light
	case triage.UrgencyHigh:
		return "\U0001f534" // red circle
	case triage.UrgencyMedium:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
