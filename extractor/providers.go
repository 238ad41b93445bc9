package extractor

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/TwooSix/Alist-MikananiRss-sub000/config"
)

// openaiProvider 任何 OpenAI 兼容的 chat-completion 服务
type openaiProvider struct {
	client *openai.Client
	model  string
	// json_schema 或 json_object
	responseFormat string
}

func newOpenAIProvider(cfg config.LLMConfig) *openaiProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &openaiProvider{
		client:         openai.NewClientWithConfig(clientCfg),
		model:          cfg.Model,
		responseFormat: cfg.ResponseFormat,
	}
}

func (p *openaiProvider) Complete(ctx context.Context, system, user string, schema map[string]any) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if schema != nil {
		switch p.responseFormat {
		case "json_schema":
			req.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:   "extraction",
					Schema: rawSchema(schema),
					Strict: true,
				},
			}
		case "json_object":
			req.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			}
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", &MalformedResponseError{Raw: "", Reason: "no choices returned"}
	}
	return resp.Choices[0].Message.Content, nil
}
