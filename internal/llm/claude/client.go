// Package claude implements assistant.Provider on the Anthropic Messages API.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/medassist/internal/assistant"
	"github.com/linnemanlabs/medassist/internal/tools"
)

// DefaultModel is used when New is given an empty model name.
const DefaultModel = "claude-sonnet-4-20250514"

const requestTimeout = 120 * time.Second

// Client implements assistant.Provider for the Claude API.
type Client struct {
	client anthropic.Client
	model  string
}

// New creates a Claude client with the given API key and model name. Extra
// request options are passed to the SDK, e.g. option.WithBaseURL in tests.
func New(apiKey, model string, opts ...option.RequestOption) *Client {
	if model == "" {
		model = DefaultModel
	}
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(requestTimeout),
	}, opts...)
	return &Client{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Send sends one conversation turn to Claude.
func (c *Client) Send(ctx context.Context, req *assistant.LLMRequest) (*assistant.LLMResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  toSDKMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toSDKTools(req.Tools)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude messages.new: %w", err)
	}

	resp := fromSDKResponse(msg)
	if resp.Model == "" {
		resp.Model = c.model
	}
	return resp, nil
}

func toSDKMessages(msgs []assistant.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case "text":
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case "tool_use":
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, b.Input, b.Name))
			case "tool_result":
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			}
		}
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func toSDKTools(defs []tools.ToolDef) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		var schema struct {
			Properties any      `json:"properties"`
			Required   []string `json:"required"`
		}
		// schemas are static literals; a bad one yields an empty object
		_ = json.Unmarshal(d.InputSchema, &schema)

		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema.Properties,
					Required:   schema.Required,
				},
			},
		})
	}
	return out
}

func fromSDKResponse(msg *anthropic.Message) *assistant.LLMResponse {
	blocks := make([]assistant.ContentBlock, 0, len(msg.Content))
	for _, b := range msg.Content {
		switch b.Type {
		case "text":
			blocks = append(blocks, assistant.ContentBlock{Type: "text", Text: b.Text})
		case "tool_use":
			blocks = append(blocks, assistant.ContentBlock{
				Type:  "tool_use",
				ID:    b.ID,
				Name:  b.Name,
				Input: b.Input,
			})
		}
	}

	return &assistant.LLMResponse{
		Content:    blocks,
		StopReason: assistant.StopReason(msg.StopReason),
		Usage: assistant.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
		Model: string(msg.Model),
	}
}
