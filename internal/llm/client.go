package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medassistd/internal/config"
	"github.com/fyrsmithlabs/medassistd/internal/logging"
)

// Client is a Collaborator backed by an OpenAI-compatible chat
// completion endpoint.
type Client struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	logger      *logging.Logger
}

var _ Collaborator = (*Client)(nil)

// NewClient builds a Client from configuration.
func NewClient(cfg config.LLMConfig, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	apiKey := cfg.APIKey.Value()
	if apiKey == "" {
		// Local OpenAI-compatible servers ignore the token, but the
		// client constructor requires one.
		apiKey = "placeholder"
	}
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(apiKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	logger = logger.Named("llm")
	logger.Info(context.Background(), "llm client ready",
		zap.String("model", cfg.Model),
		zap.String("base_url", cfg.BaseURL),
	)
	return &Client{
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}, nil
}

// Complete sends the conversation to the model and maps the first choice
// into a Result. Transport and API failures wrap
// ErrCollaboratorUnavailable.
func (c *Client) Complete(ctx context.Context, conversation []Message, tools []ToolDef) (Result, error) {
	messages, err := toMessageContent(conversation)
	if err != nil {
		return Result{}, err
	}

	opts := []llms.CallOption{
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	}
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(toLangchainTools(tools)))
	}

	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("%w: empty response", ErrCollaboratorUnavailable)
	}

	result := resultFromChoice(resp.Choices[0])
	c.logger.Debug(ctx, "completion received",
		zap.Int("messages", len(messages)),
		zap.Int("tool_calls", len(result.ToolCalls)),
	)
	return result, nil
}

func resultFromChoice(choice *llms.ContentChoice) Result {
	if len(choice.ToolCalls) == 0 {
		return Result{Kind: KindFinalAnswer, Text: choice.Content}
	}
	calls := make([]ToolCall, 0, len(choice.ToolCalls))
	for _, tc := range choice.ToolCalls {
		call := ToolCall{ID: tc.ID}
		if tc.FunctionCall != nil {
			call.Name = tc.FunctionCall.Name
			call.Args = json.RawMessage(tc.FunctionCall.Arguments)
		}
		if call.ID == "" {
			call.ID = call.Name
		}
		calls = append(calls, call)
	}
	return Result{Kind: KindToolRequest, ToolCalls: calls}
}

func toMessageContent(conversation []Message) ([]llms.MessageContent, error) {
	out := make([]llms.MessageContent, 0, len(conversation))
	for _, m := range conversation {
		switch m.Role {
		case RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Text))
		case RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Text))
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, llms.TextParts(llms.ChatMessageTypeAI, m.Text))
				continue
			}
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if m.Text != "" {
				mc.Parts = append(mc.Parts, llms.TextContent{Text: m.Text})
			}
			for _, call := range m.ToolCalls {
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:   call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.Args),
					},
				})
			}
			out = append(out, mc)
		case RoleTool:
			if m.ToolResponse == nil {
				return nil, fmt.Errorf("tool message missing response")
			}
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolResponse.CallID,
					Name:       m.ToolResponse.Name,
					Content:    m.ToolResponse.Content,
				}},
			})
		default:
			return nil, fmt.Errorf("unknown message role %q", m.Role)
		}
	}
	return out, nil
}

func toLangchainTools(defs []ToolDef) []llms.Tool {
	out := make([]llms.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}
