package gateway

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAIConfig configures an OpenAIAdapter.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIAdapter talks to the Chat Completions API with native tool calling.
// BaseURL lets it reach any OpenAI-compatible server.
type OpenAIAdapter struct {
	api   *openai.Client
	model string
}

var _ ProviderAdapter = (*OpenAIAdapter)(nil)

// NewOpenAIAdapter creates an adapter. The API key is required.
func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "missing OpenAI API key (set OPENAI_API_KEY)"}}
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are owned by RetryMiddleware.
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}
	client := openai.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = DefaultModel("openai")
	}
	return &OpenAIAdapter{api: &client, model: model}, nil
}

// Name returns the provider identifier.
func (a *OpenAIAdapter) Name() string { return "openai" }

// Complete sends a blocking Chat Completions request.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	params := a.buildParams(req)
	resp, err := a.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, translateOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{
			SDKError:  SDKError{Message: "no completion choices returned"},
			Provider:  a.Name(),
			Retryable: true,
		}
	}

	choice := resp.Choices[0]
	out := &Response{
		ID:       resp.ID,
		Model:    resp.Model,
		Provider: a.Name(),
		Content:  choice.Message.Content,
		FinishReason: FinishReason{
			Reason: normalizeFinishReason(string(choice.FinishReason)),
			Raw:    string(choice.FinishReason),
		},
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		call := ToolCall{ID: tc.ID, Name: tc.Function.Name}
		args, err := ParseArguments(tc.Function.Arguments)
		if err != nil {
			call.RawArguments = tc.Function.Arguments
		} else {
			call.Arguments = args
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}
	return out, nil
}

// Stream sends a streaming Chat Completions request and forwards text deltas.
func (a *OpenAIAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	params := a.buildParams(req)
	stream := a.api.Chat.Completions.NewStreaming(ctx, params)

	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)
		defer stream.Close()

		var finish string
		for stream.Next() {
			chunk := stream.Current()
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					if !sendEvent(ctx, ch, StreamEvent{Type: StreamTextDelta, Delta: choice.Delta.Content}) {
						return
					}
				}
				if choice.FinishReason != "" {
					finish = string(choice.FinishReason)
				}
			}
		}
		if err := stream.Err(); err != nil {
			sendEvent(ctx, ch, StreamEvent{Type: StreamError, Err: translateOpenAIError(err)})
			return
		}
		fr := FinishReason{Reason: normalizeFinishReason(finish), Raw: finish}
		sendEvent(ctx, ch, StreamEvent{Type: StreamFinish, FinishReason: &fr})
	}()
	return ch, nil
}

func (a *OpenAIAdapter) buildParams(req Request) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = a.model
	}
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: toOpenAIMessages(req.Messages),
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
		params.ParallelToolCalls = openai.Bool(false)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxTokens))
	}
	return params
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.ArgumentsJSON(),
						},
					},
				})
			}
			assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if msg.Content != "" {
				assistant.Content.OfString = openai.String(msg.Content)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func toOpenAITools(defs []ToolDefinition) []openai.ChatCompletionToolUnionParam {
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			continue
		}
		fn := shared.FunctionDefinitionParam{
			Name:       name,
			Parameters: def.Parameters,
		}
		if desc := strings.TrimSpace(def.Description); desc != "" {
			fn.Description = openai.String(desc)
		}
		tools = append(tools, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{Function: fn},
		})
	}
	return tools
}

func normalizeFinishReason(raw string) string {
	switch raw {
	case "stop", "length", "tool_calls", "content_filter":
		return raw
	case "function_call":
		return "tool_calls"
	case "":
		return "stop"
	default:
		return "other"
	}
}

func translateOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	if ce := contextError(err); ce != nil {
		return ce
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		var retryAfter *float64
		if apiErr.Response != nil {
			if v, perr := strconv.ParseFloat(apiErr.Response.Header.Get("Retry-After"), 64); perr == nil {
				retryAfter = &v
			}
		}
		msg := apiErr.Message
		if msg == "" {
			msg = err.Error()
		}
		return ErrorFromStatusCode(apiErr.StatusCode, msg, "openai", apiErr.Code, retryAfter)
	}
	return &NetworkError{SDKError: SDKError{Message: "openai request failed", Cause: err}}
}
