package llm

import (
	"context"
	"errors"
	"time"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// CompatibleClient talks to any OpenAI-compatible endpoint (vLLM, Ollama,
// LM Studio, hosted gateways) through langchaingo.
type CompatibleClient struct {
	llm   *lcopenai.LLM
	model string
}

// NewCompatibleClient creates a client for baseURL. Local servers usually
// ignore the token, so an empty one is replaced with a placeholder.
func NewCompatibleClient(baseURL, token, model string) (*CompatibleClient, error) {
	if baseURL == "" {
		return nil, errors.New("base URL is required for an OpenAI-compatible endpoint")
	}
	if token == "" {
		token = "unused"
	}

	opts := []lcopenai.Option{
		lcopenai.WithToken(token),
		lcopenai.WithBaseURL(baseURL),
	}
	if model != "" {
		opts = append(opts, lcopenai.WithModel(model))
	}

	client, err := lcopenai.New(opts...)
	if err != nil {
		return nil, err
	}

	return &CompatibleClient{llm: client, model: model}, nil
}

// Name returns the provider name.
func (c *CompatibleClient) Name() string {
	return string(ProviderCompatible)
}

// Models returns the configured model, if any.
func (c *CompatibleClient) Models() []string {
	if c.model == "" {
		return nil
	}
	return []string{c.model}
}

// Complete sends a completion request.
func (c *CompatibleClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	content := make([]llms.MessageContent, len(req.Messages))
	for i, msg := range req.Messages {
		content[i] = llms.TextParts(chatMessageType(msg.Role), msg.Content)
	}

	opts := []llms.CallOption{llms.WithMaxTokens(maxTokensOrDefault(req.MaxTokens))}
	model := withDefault(req.Model, c.model)
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Temperature))
	}

	resp, err := c.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty completion")
	}

	choice := resp.Choices[0]
	return &CompletionResponse{
		Content:    choice.Content,
		Model:      model,
		TokensIn:   intInfo(choice.GenerationInfo, "PromptTokens"),
		TokensOut:  intInfo(choice.GenerationInfo, "CompletionTokens"),
		StopReason: choice.StopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

func chatMessageType(role string) schema.ChatMessageType {
	switch role {
	case "assistant":
		return schema.ChatMessageTypeAI
	case "system":
		return schema.ChatMessageTypeSystem
	default:
		return schema.ChatMessageTypeHuman
	}
}

func intInfo(info map[string]any, key string) int {
	if v, ok := info[key].(int); ok {
		return v
	}
	return 0
}
