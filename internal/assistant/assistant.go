// Package assistant answers chat messages. With an LLM provider it runs a
// bounded tool-use loop in which the model can call the triage engine;
// without one it replies from templates grounded in the same engine.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/medassist/internal/tools"
)

const (
	MaxToolRounds  = 8
	MaxTokens      = 30000
	ResponseTokens = 1024
	// MaxMessageLen bounds a single chat message in bytes.
	MaxMessageLen = 4000
)

const (
	ModeLLM      = "llm"
	ModeTemplate = "template"
)

var tracer = otel.Tracer("github.com/linnemanlabs/medassist/internal/assistant")

var (
	// ErrEmptyMessage is returned for a blank chat message.
	ErrEmptyMessage = errors.New("message is required")
	// ErrMessageTooLong is returned when a message exceeds MaxMessageLen.
	ErrMessageTooLong = fmt.Errorf("message exceeds %d bytes", MaxMessageLen)
)

const budgetExhaustedReply = "I wasn't able to finish looking into that. " +
	"If your symptoms are severe or getting worse, please contact a healthcare provider or emergency services."

// Hooks receive per-call telemetry. Any field may be nil.
type Hooks struct {
	OnLLMCall  func(inputTokens, outputTokens int, seconds float64)
	OnToolCall func(name string, seconds float64, inputBytes, outputBytes int, isErr bool)
	OnComplete func(e *CompleteEvent)
}

// CompleteEvent summarizes one Reply call.
type CompleteEvent struct {
	Mode         string
	StopReason   StopReason
	Duration     float64
	InputTokens  int
	OutputTokens int
	ToolCalls    int
	Model        string
}

// ToolCall records one tool execution during a reply.
type ToolCall struct {
	Name     string  `json:"name"`
	IsError  bool    `json:"is_error,omitempty"`
	Duration float64 `json:"duration_s"`
}

// Reply is the assistant's answer to one message.
type Reply struct {
	Text         string     `json:"reply"`
	Mode         string     `json:"mode"`
	Rule         string     `json:"rule,omitempty"`
	StopReason   StopReason `json:"stop_reason,omitempty"`
	Model        string     `json:"model,omitempty"`
	InputTokens  int        `json:"input_tokens,omitempty"`
	OutputTokens int        `json:"output_tokens,omitempty"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
}

// Assistant produces chat replies.
type Assistant struct {
	provider Provider
	registry *tools.Registry
	analyzer tools.Analyzer
	logger   log.Logger
	hooks    Hooks
}

// New creates an Assistant. provider may be nil, in which case every reply
// is templated. registry may be nil when provider is nil.
func New(provider Provider, registry *tools.Registry, analyzer tools.Analyzer, logger log.Logger, hooks Hooks) *Assistant {
	if logger == nil {
		logger = log.Nop()
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return &Assistant{
		provider: provider,
		registry: registry,
		analyzer: analyzer,
		logger:   logger,
		hooks:    hooks,
	}
}

// Reply answers message. An LLM failure degrades to a templated reply.
func (a *Assistant) Reply(ctx context.Context, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if len(message) > MaxMessageLen {
		return nil, ErrMessageTooLong
	}

	ctx, span := tracer.Start(ctx, "assistant.reply")
	defer span.End()

	start := time.Now()
	var (
		reply *Reply
		err   error
	)
	if a.provider != nil {
		reply, err = a.runLoop(ctx, message)
		if err != nil {
			span.RecordError(err)
			a.logger.Error(ctx, err, "llm reply failed, falling back to template")
		}
	}
	if reply == nil {
		reply = a.templateReply(message)
	}

	span.SetAttributes(
		attribute.String("assistant.mode", reply.Mode),
		attribute.String("assistant.stop_reason", string(reply.StopReason)),
		attribute.Int("assistant.tool_calls", len(reply.ToolCalls)),
	)

	if a.hooks.OnComplete != nil {
		a.hooks.OnComplete(&CompleteEvent{
			Mode:         reply.Mode,
			StopReason:   reply.StopReason,
			Duration:     time.Since(start).Seconds(),
			InputTokens:  reply.InputTokens,
			OutputTokens: reply.OutputTokens,
			ToolCalls:    len(reply.ToolCalls),
			Model:        reply.Model,
		})
	}
	return reply, nil
}

func (a *Assistant) templateReply(message string) *Reply {
	r := &Reply{Mode: ModeTemplate, StopReason: StopEnd}
	if a.analyzer != nil {
		res, err := a.analyzer.Analyze(triageQuery(message))
		if err == nil && !a.isFallback(res.Rule) {
			r.Text = triageReply(res)
			r.Rule = res.Rule
			return r
		}
	}
	r.Text = cannedReply(message)
	return r
}

func (a *Assistant) isFallback(rule string) bool {
	rules := a.analyzer.Rules()
	return len(rules) > 0 && rules[len(rules)-1].Name == rule
}

func (a *Assistant) runLoop(ctx context.Context, message string) (*Reply, error) {
	L := a.logger.With("message_len", len(message))

	messages := []Message{{
		Role:    "user",
		Content: []ContentBlock{{Type: "text", Text: message}},
	}}
	reply := &Reply{Mode: ModeLLM}
	defs := a.registry.ToToolDefs()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(reply.ToolCalls) >= MaxToolRounds {
			L.Warn(ctx, "assistant hit tool call limit", "limit", MaxToolRounds)
			return budgetExhausted(reply), nil
		}
		if reply.InputTokens+reply.OutputTokens >= MaxTokens {
			L.Warn(ctx, "assistant hit token limit", "limit", MaxTokens)
			return budgetExhausted(reply), nil
		}

		resp, err := a.callLLM(ctx, &LLMRequest{
			MaxTokens: ResponseTokens,
			System:    systemPrompt,
			Messages:  messages,
			Tools:     defs,
		})
		if err != nil {
			return nil, fmt.Errorf("llm call: %w", err)
		}

		reply.InputTokens += resp.Usage.InputTokens
		reply.OutputTokens += resp.Usage.OutputTokens
		reply.StopReason = resp.StopReason
		if resp.Model != "" {
			reply.Model = resp.Model
		}

		L.Info(ctx, "llm response",
			"stop_reason", resp.StopReason,
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
		)

		messages = append(messages, Message{Role: "assistant", Content: resp.Content})

		if resp.StopReason != StopToolUse {
			reply.Text = lastText(resp.Content)
			if reply.Text == "" {
				return budgetExhausted(reply), nil
			}
			return reply, nil
		}

		results := make([]ContentBlock, 0, len(resp.Content))
		for _, block := range resp.Content {
			if block.Type != "tool_use" {
				continue
			}
			if len(reply.ToolCalls) >= MaxToolRounds {
				// every tool_use still needs a matching tool_result
				results = append(results, ContentBlock{
					Type:      "tool_result",
					ToolUseID: block.ID,
					Content:   "tool call limit reached",
					IsError:   true,
				})
				continue
			}
			result, call := a.executeTool(ctx, block)
			results = append(results, result)
			reply.ToolCalls = append(reply.ToolCalls, call)
			if call.Name == "triage_symptoms" && !call.IsError && reply.Rule == "" {
				reply.Rule = ruleFromOutput(result.Content)
			}
		}
		if len(results) == 0 {
			L.Warn(ctx, "llm requested tool use without tool calls")
			return budgetExhausted(reply), nil
		}
		messages = append(messages, Message{Role: "user", Content: results})
	}
}

func (a *Assistant) callLLM(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	ctx, span := tracer.Start(ctx, "llm.call", trace.WithAttributes(
		attribute.Int("gen_ai.request.max_tokens", req.MaxTokens),
		attribute.Int("llm.messages", len(req.Messages)),
	))
	defer span.End()

	start := time.Now()
	resp, err := a.provider.Send(ctx, req)
	seconds := time.Since(start).Seconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("gen_ai.response.model", resp.Model),
		attribute.String("gen_ai.response.finish_reason", string(resp.StopReason)),
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
	)
	if a.hooks.OnLLMCall != nil {
		a.hooks.OnLLMCall(resp.Usage.InputTokens, resp.Usage.OutputTokens, seconds)
	}
	return resp, nil
}

func (a *Assistant) executeTool(ctx context.Context, block ContentBlock) (ContentBlock, ToolCall) {
	ctx, span := tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool.name", block.Name),
		attribute.Int("tool.input_bytes", len(block.Input)),
	))
	defer span.End()

	start := time.Now()
	result := ContentBlock{Type: "tool_result", ToolUseID: block.ID}

	tool, ok := a.registry.Get(block.Name)
	if !ok {
		result.Content = "unknown tool: " + block.Name
		result.IsError = true
	} else if out, err := tool.Execute(ctx, block.Input); err != nil {
		a.logger.Error(ctx, err, "tool execution failed", "tool", block.Name)
		result.Content = fmt.Sprintf("tool error: %v", err)
		result.IsError = true
	} else {
		result.Content = string(out)
	}

	seconds := time.Since(start).Seconds()
	if result.IsError {
		span.SetStatus(codes.Error, result.Content)
	}
	span.SetAttributes(attribute.Int("tool.output_bytes", len(result.Content)))

	if a.hooks.OnToolCall != nil {
		a.hooks.OnToolCall(block.Name, seconds, len(block.Input), len(result.Content), result.IsError)
	}
	return result, ToolCall{Name: block.Name, IsError: result.IsError, Duration: seconds}
}

func budgetExhausted(r *Reply) *Reply {
	r.StopReason = StopBudget
	r.Text = budgetExhaustedReply
	return r
}

func lastText(blocks []ContentBlock) string {
	var text string
	for _, b := range blocks {
		if b.Type == "text" && strings.TrimSpace(b.Text) != "" {
			text = b.Text
		}
	}
	return text
}

const systemPrompt = `You are MedAssist, an AI medical companion. You help people understand their symptoms
and decide how urgently they should seek care.

Rules:
1. When the user describes symptoms, call triage_symptoms with their words before answering.
2. If the result is High or Emergency urgency, lead with its triage advice verbatim.
3. Never claim to diagnose. Describe conditions as possibilities to discuss with a clinician.
4. Keep answers short and plain. End with a reminder to consult a healthcare provider.`
