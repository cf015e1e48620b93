package platform

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zj591227045/wxauto-mgt/internal/errs"
)

// OpenAIPlatform talks to any OpenAI-compatible chat/completions endpoint
// (spec §6 downstream), using sashabaranov/go-openai so custom base URLs
// (self-hosted/compatible gateways) work the same as api.openai.com.
type OpenAIPlatform struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

func (o *OpenAIPlatform) Initialize(config map[string]any) error {
	apiKey, _ := config["api_key"].(string)
	if apiKey == "" {
		return fmt.Errorf("openai: api_key is required")
	}
	model, _ := config["model"].(string)
	if model == "" {
		model = openai.GPT4oMini
	}
	o.model = model
	o.systemPrompt, _ = config["system_prompt"].(string)

	cfg := openai.DefaultConfig(apiKey)
	if baseURL, ok := config["base_url"].(string); ok && baseURL != "" {
		cfg.BaseURL = baseURL
	}
	o.client = openai.NewClientWithConfig(cfg)
	return nil
}

func (o *OpenAIPlatform) ProcessMessage(ctx context.Context, env Envelope) (Reply, error) {
	messages := []openai.ChatCompletionMessage{}
	if o.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: o.systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: env.Content,
	})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	})
	if err != nil {
		return Reply{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return Reply{NoReply: true}, nil
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return Reply{NoReply: true}, nil
	}
	return Reply{Content: content}, nil
}

func (o *OpenAIPlatform) TestConnection(ctx context.Context) error {
	_, err := o.client.ListModels(ctx)
	if err != nil {
		return classifyOpenAIError(err)
	}
	return nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode >= 500 {
			return errs.ClassifyPlatformError("openai", err, true)
		}
		return errs.Classify(errs.KindInvalidRequest, "openai", err)
	}
	return errs.Classify(errs.KindUnavailable, "openai", err)
}
