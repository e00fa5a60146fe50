package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/medassist/internal/tools"
	"github.com/linnemanlabs/medassist/internal/triage"
)

const claudeTestModel = "claude-sonnet-4-20250514"

// mockProvider returns preconfigured responses in sequence.
type mockProvider struct {
	mu        sync.Mutex
	responses []*LLMResponse
	errs      []error
	requests  []*LLMRequest
	callIdx   int
}

func (m *mockProvider) Send(_ context.Context, req *LLMRequest) (*LLMResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.callIdx
	m.callIdx++
	m.requests = append(m.requests, req)

	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return &LLMResponse{
		Content:    []ContentBlock{{Type: "text", Text: "fallback"}},
		StopReason: StopEnd,
		Usage:      Usage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

// mockTool returns preconfigured Execute results.
type mockTool struct {
	name   string
	output json.RawMessage
	err    error
}

func (m *mockTool) Name() string                { return m.name }
func (m *mockTool) Description() string         { return "mock tool" }
func (m *mockTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (m *mockTool) Execute(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
	return m.output, m.err
}

func newEngine(t *testing.T) *triage.Engine {
	t.Helper()
	e, err := triage.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func toolUse(id, name, input string) ContentBlock {
	return ContentBlock{Type: "tool_use", ID: id, Name: name, Input: json.RawMessage(input)}
}

func TestReply_EmptyMessage(t *testing.T) {
	t.Parallel()

	a := New(nil, nil, newEngine(t), log.Nop(), Hooks{})
	for _, msg := range []string{"", "   ", "\n\t"} {
		if _, err := a.Reply(context.Background(), msg); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Reply(%q) err = %v, want ErrEmptyMessage", msg, err)
		}
	}
}

func TestReply_MessageTooLong(t *testing.T) {
	t.Parallel()

	a := New(nil, nil, newEngine(t), log.Nop(), Hooks{})
	if _, err := a.Reply(context.Background(), strings.Repeat("a", MaxMessageLen+1)); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("err = %v, want ErrMessageTooLong", err)
	}
}

func TestReply_TemplateUsesTriageRule(t *testing.T) {
	t.Parallel()

	a := New(nil, nil, newEngine(t), log.Nop(), Hooks{})
	r, err := a.Reply(context.Background(), "I have chest pain and shortness of breath")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}

	if r.Mode != ModeTemplate {
		t.Errorf("Mode = %q, want %q", r.Mode, ModeTemplate)
	}
	if r.Rule != triage.RuleCardiacEmergency {
		t.Errorf("Rule = %q, want %q", r.Rule, triage.RuleCardiacEmergency)
	}
	for _, want := range []string{"Potential Cardiac Event", "Emergency", "call emergency services", "- Myocardial Infarction (Heart Attack) (80% probability)", triage.Disclaimer} {
		if !strings.Contains(r.Text, want) {
			t.Errorf("reply missing %q:\n%s", want, r.Text)
		}
	}
}

func TestReply_TemplateCannedIsDeterministic(t *testing.T) {
	t.Parallel()

	a := New(nil, nil, newEngine(t), log.Nop(), Hooks{})
	ctx := context.Background()

	first, err := a.Reply(ctx, "How much water should I drink?")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if first.Rule != "" {
		t.Errorf("fallback rule should not be reported, got %q", first.Rule)
	}

	known := false
	for _, c := range cannedReplies {
		if first.Text == c {
			known = true
		}
	}
	if !known {
		t.Fatalf("reply %q is not one of the canned replies", first.Text)
	}

	// case and spacing do not change the choice
	second, _ := a.Reply(ctx, "  how much WATER   should i drink? ")
	if second.Text != first.Text {
		t.Errorf("reply changed for an equivalent message: %q vs %q", second.Text, first.Text)
	}
}

func TestCannedReply_CoversAllReplies(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := range 200 {
		seen[cannedReply(strings.Repeat("x", i+1))] = true
	}
	if len(seen) != len(cannedReplies) {
		t.Errorf("hash reached %d of %d replies", len(seen), len(cannedReplies))
	}
}

func TestReply_NoAnalyzer(t *testing.T) {
	t.Parallel()

	a := New(nil, nil, nil, nil, Hooks{})
	r, err := a.Reply(context.Background(), "chest pain and shortness of breath")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if r.Rule != "" || r.Mode != ModeTemplate {
		t.Errorf("got mode=%q rule=%q, want canned template", r.Mode, r.Rule)
	}
}

func TestReply_LLMSingleTurn(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		responses: []*LLMResponse{{
			Content:    []ContentBlock{{Type: "text", Text: "Rest and drink fluids."}},
			StopReason: StopEnd,
			Usage:      Usage{InputTokens: 100, OutputTokens: 50},
			Model:      claudeTestModel,
		}},
	}
	a := New(provider, tools.NewRegistry(), newEngine(t), log.Nop(), Hooks{})

	r, err := a.Reply(context.Background(), "I feel tired")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if r.Mode != ModeLLM || r.Text != "Rest and drink fluids." {
		t.Errorf("reply = %+v", r)
	}
	if r.InputTokens != 100 || r.OutputTokens != 50 {
		t.Errorf("tokens = %d/%d, want 100/50", r.InputTokens, r.OutputTokens)
	}
	if r.Model != claudeTestModel {
		t.Errorf("Model = %q", r.Model)
	}
	if provider.requests[0].System == "" {
		t.Error("expected a system prompt")
	}
}

func TestReply_LLMToolLoopWithTriageTool(t *testing.T) {
	t.Parallel()

	engine := newEngine(t)
	registry := tools.NewRegistry(tools.NewTriageSymptoms(engine))

	provider := &mockProvider{
		responses: []*LLMResponse{
			{
				Content: []ContentBlock{
					{Type: "text", Text: "Let me check."},
					toolUse("c-1", "triage_symptoms", `{"symptoms":"headache and fever"}`),
				},
				StopReason: StopToolUse,
				Usage:      Usage{InputTokens: 100, OutputTokens: 20},
			},
			{
				Content:    []ContentBlock{{Type: "text", Text: "Likely a viral infection."}},
				StopReason: StopEnd,
				Usage:      Usage{InputTokens: 200, OutputTokens: 30},
			},
		},
	}
	a := New(provider, registry, engine, log.Nop(), Hooks{})

	r, err := a.Reply(context.Background(), "headache and fever since yesterday")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}

	if r.Text != "Likely a viral infection." {
		t.Errorf("Text = %q", r.Text)
	}
	if len(r.ToolCalls) != 1 || r.ToolCalls[0].Name != "triage_symptoms" || r.ToolCalls[0].IsError {
		t.Errorf("ToolCalls = %+v", r.ToolCalls)
	}
	if r.Rule != triage.RuleViralInfection {
		t.Errorf("Rule = %q, want %q", r.Rule, triage.RuleViralInfection)
	}
	if r.InputTokens != 300 || r.OutputTokens != 50 {
		t.Errorf("tokens = %d/%d, want 300/50", r.InputTokens, r.OutputTokens)
	}

	// second request carries the tool result back to the model
	second := provider.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != "user" || len(last.Content) != 1 || last.Content[0].Type != "tool_result" {
		t.Fatalf("last message = %+v, want a single tool_result", last)
	}
	if last.Content[0].ToolUseID != "c-1" || !strings.Contains(last.Content[0].Content, "Influenza") {
		t.Errorf("tool_result = %+v", last.Content[0])
	}
	if len(second.Tools) != 1 || second.Tools[0].Name != "triage_symptoms" {
		t.Errorf("tools offered = %+v", second.Tools)
	}
}

func TestReply_UnknownAndFailingTools(t *testing.T) {
	t.Parallel()

	registry := tools.NewRegistry(&mockTool{name: "broken", err: errors.New("boom")})
	provider := &mockProvider{
		responses: []*LLMResponse{
			{
				Content: []ContentBlock{
					toolUse("c-1", "nope", `{}`),
					toolUse("c-2", "broken", `{}`),
				},
				StopReason: StopToolUse,
			},
			{
				Content:    []ContentBlock{{Type: "text", Text: "done"}},
				StopReason: StopEnd,
			},
		},
	}
	a := New(provider, registry, newEngine(t), log.Nop(), Hooks{})

	r, err := a.Reply(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if len(r.ToolCalls) != 2 || !r.ToolCalls[0].IsError || !r.ToolCalls[1].IsError {
		t.Errorf("ToolCalls = %+v, want two errors", r.ToolCalls)
	}

	results := provider.requests[1].Messages[2].Content
	if !strings.HasPrefix(results[0].Content, "unknown tool: nope") {
		t.Errorf("unknown tool result = %q", results[0].Content)
	}
	if !strings.HasPrefix(results[1].Content, "tool error: boom") {
		t.Errorf("failing tool result = %q", results[1].Content)
	}
}

func TestReply_ToolBudgetExhausted(t *testing.T) {
	t.Parallel()

	loop := &LLMResponse{
		Content:    []ContentBlock{toolUse("c", "echo", `{}`)},
		StopReason: StopToolUse,
		Usage:      Usage{InputTokens: 1, OutputTokens: 1},
	}
	responses := make([]*LLMResponse, MaxToolRounds+5)
	for i := range responses {
		responses[i] = loop
	}
	provider := &mockProvider{responses: responses}
	registry := tools.NewRegistry(&mockTool{name: "echo", output: json.RawMessage(`{}`)})
	a := New(provider, registry, newEngine(t), log.Nop(), Hooks{})

	r, err := a.Reply(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if r.StopReason != StopBudget {
		t.Errorf("StopReason = %q, want %q", r.StopReason, StopBudget)
	}
	if len(r.ToolCalls) != MaxToolRounds {
		t.Errorf("ToolCalls = %d, want %d", len(r.ToolCalls), MaxToolRounds)
	}
	if r.Text != budgetExhaustedReply {
		t.Errorf("Text = %q", r.Text)
	}
}

// countingTool counts Execute calls.
type countingTool struct {
	name  string
	calls atomic.Int32
}

func (c *countingTool) Name() string                { return c.name }
func (c *countingTool) Description() string         { return "counting tool" }
func (c *countingTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (c *countingTool) Execute(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
	c.calls.Add(1)
	return json.RawMessage(`{}`), nil
}

func TestReply_ParallelToolCallsCappedAtLimit(t *testing.T) {
	t.Parallel()

	blocks := make([]ContentBlock, 0, MaxToolRounds+3)
	for i := range MaxToolRounds + 3 {
		blocks = append(blocks, toolUse(fmt.Sprintf("c-%d", i), "count", `{}`))
	}
	provider := &mockProvider{responses: []*LLMResponse{{
		Content:    blocks,
		StopReason: StopToolUse,
		Usage:      Usage{InputTokens: 1, OutputTokens: 1},
	}}}
	tool := &countingTool{name: "count"}
	a := New(provider, tools.NewRegistry(tool), newEngine(t), log.Nop(), Hooks{})

	r, err := a.Reply(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got := tool.calls.Load(); got != MaxToolRounds {
		t.Errorf("tool executed %d times, want %d", got, MaxToolRounds)
	}
	if len(r.ToolCalls) != MaxToolRounds {
		t.Errorf("ToolCalls = %d, want %d", len(r.ToolCalls), MaxToolRounds)
	}
	if r.StopReason != StopBudget {
		t.Errorf("StopReason = %q, want %q", r.StopReason, StopBudget)
	}
	if provider.callIdx != 1 {
		t.Errorf("provider called %d times, want 1", provider.callIdx)
	}
}

func TestReply_ToolUseStopWithoutToolCalls(t *testing.T) {
	t.Parallel()

	stuck := &LLMResponse{
		Content:    []ContentBlock{{Type: "text", Text: "let me check"}},
		StopReason: StopToolUse,
	}
	responses := make([]*LLMResponse, 50)
	for i := range responses {
		responses[i] = stuck
	}
	provider := &mockProvider{responses: responses}
	a := New(provider, tools.NewRegistry(), newEngine(t), log.Nop(), Hooks{})

	r, err := a.Reply(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if provider.callIdx != 1 {
		t.Errorf("provider called %d times, want 1", provider.callIdx)
	}
	if r.Mode != ModeLLM || r.StopReason != StopBudget {
		t.Errorf("got mode=%q stop=%q, want llm/%q", r.Mode, r.StopReason, StopBudget)
	}
}

func TestReply_CanceledContextSkipsLLM(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &mockProvider{}
	a := New(provider, tools.NewRegistry(), newEngine(t), log.Nop(), Hooks{})

	r, err := a.Reply(ctx, "headache and fever")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if provider.callIdx != 0 {
		t.Errorf("provider called %d times, want 0", provider.callIdx)
	}
	if r.Mode != ModeTemplate {
		t.Errorf("Mode = %q, want %q", r.Mode, ModeTemplate)
	}
}

func TestReply_TokenBudgetExhausted(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		responses: []*LLMResponse{{
			Content:    []ContentBlock{toolUse("c", "echo", `{}`)},
			StopReason: StopToolUse,
			Usage:      Usage{InputTokens: MaxTokens, OutputTokens: 1},
		}},
	}
	registry := tools.NewRegistry(&mockTool{name: "echo", output: json.RawMessage(`{}`)})
	a := New(provider, registry, newEngine(t), log.Nop(), Hooks{})

	r, err := a.Reply(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if r.StopReason != StopBudget || provider.callIdx != 1 {
		t.Errorf("StopReason = %q after %d calls, want budget stop after 1", r.StopReason, provider.callIdx)
	}
}

func TestReply_LLMErrorFallsBackToTemplate(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{errs: []error{errors.New("rate limited")}}
	a := New(provider, tools.NewRegistry(), newEngine(t), log.Nop(), Hooks{})

	r, err := a.Reply(context.Background(), "headache and fever")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if r.Mode != ModeTemplate || r.Rule != triage.RuleViralInfection {
		t.Errorf("got mode=%q rule=%q, want template/viral-infection", r.Mode, r.Rule)
	}
}

func TestReply_HooksAndMetrics(t *testing.T) {
	t.Parallel()

	registry := tools.NewRegistry(&mockTool{name: "hook_tool", output: json.RawMessage(`{"result":"ok"}`)})
	provider := &mockProvider{
		responses: []*LLMResponse{
			{
				Content:    []ContentBlock{toolUse("c-1", "hook_tool", `{"q":"x"}`)},
				StopReason: StopToolUse,
				Usage:      Usage{InputTokens: 100, OutputTokens: 50},
			},
			{
				Content:    []ContentBlock{{Type: "text", Text: "done"}},
				StopReason: StopEnd,
				Usage:      Usage{InputTokens: 200, OutputTokens: 80},
			},
		},
	}

	m := NewMetrics(prometheus.NewRegistry())
	a := New(provider, registry, newEngine(t), log.Nop(), m.Hooks())

	if _, err := a.Reply(context.Background(), "hello"); err != nil {
		t.Fatalf("Reply: %v", err)
	}

	if v := testutil.ToFloat64(m.LLMCallsTotal); v != 2 {
		t.Errorf("llm_calls_total = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.LLMTokensIn); v != 300 {
		t.Errorf("llm_tokens_input_total = %v, want 300", v)
	}
	if v := testutil.ToFloat64(m.LLMTokensOut); v != 130 {
		t.Errorf("llm_tokens_output_total = %v, want 130", v)
	}
	if v := testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("hook_tool", "success")); v != 1 {
		t.Errorf("tool_calls_total = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.RepliesTotal.WithLabelValues(ModeLLM, string(StopEnd))); v != 1 {
		t.Errorf("replies_total = %v, want 1", v)
	}
}

func TestReply_CreatesSpans(t *testing.T) {
	// Not parallel: swaps the global OTel tracer provider.

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	registry := tools.NewRegistry(&mockTool{name: "span_tool", output: json.RawMessage(`{"ok":true}`)})
	provider := &mockProvider{
		responses: []*LLMResponse{
			{
				Content:    []ContentBlock{toolUse("c-1", "span_tool", `{"q":"x"}`)},
				StopReason: StopToolUse,
				Model:      claudeTestModel,
			},
			{
				Content:    []ContentBlock{{Type: "text", Text: "done"}},
				StopReason: StopEnd,
				Model:      claudeTestModel,
			},
		},
	}

	a := New(provider, registry, newEngine(t), log.Nop(), Hooks{})
	if _, err := a.Reply(context.Background(), "hello"); err != nil {
		t.Fatalf("Reply: %v", err)
	}

	counts := make(map[string]int)
	for _, s := range exporter.GetSpans() {
		counts[s.Name]++
	}
	if counts["assistant.reply"] != 1 {
		t.Errorf("assistant.reply spans = %d, want 1", counts["assistant.reply"])
	}
	if counts["llm.call"] != 2 {
		t.Errorf("llm.call spans = %d, want 2", counts["llm.call"])
	}
	if counts["tool.execute"] != 1 {
		t.Errorf("tool.execute spans = %d, want 1", counts["tool.execute"])
	}
}
