package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"evidence-rag-go/pkg/log"
	"evidence-rag-go/pkg/retry"
)

type openAIProvider struct {
	spec   ProviderSpec
	client *openai.Client
}

// NewOpenAIProvider 创建一个 OpenAI 兼容协议的提供方。
func NewOpenAIProvider(spec ProviderSpec, apiKey, baseURL string) Provider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openAIProvider{spec: spec, client: openai.NewClientWithConfig(cfg)}
}

func (p *openAIProvider) Spec() ProviderSpec { return p.spec }

func (p *openAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	chatReq := p.buildRequest(req)
	log.Infof("[LLM] 调用 %s, model: %s, prompt_len: %d, json: %v", p.spec.Name, p.spec.Model, len(req.Prompt), req.JSON)

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", p.spec.Name)
	}
	return resp.Choices[0].Message.Content, nil
}

// buildRequest 按提供方能力组装请求：不支持的参数直接省略。
func (p *openAIProvider) buildRequest(req CompletionRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	chatReq := openai.ChatCompletionRequest{
		Model:    p.spec.Model,
		Messages: messages,
	}
	if req.JSON && p.spec.SupportsJSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	if params := req.Params; params != nil {
		if p.spec.SupportsTemperature {
			if params.Temperature != nil {
				chatReq.Temperature = float32(*params.Temperature)
			}
			if params.TopP != nil {
				chatReq.TopP = float32(*params.TopP)
			}
		}
		if params.MaxTokens != nil {
			if p.spec.TokenLimitStyle == TokenLimitMaxCompletionTokens {
				chatReq.MaxCompletionTokens = *params.MaxTokens
			} else {
				chatReq.MaxTokens = *params.MaxTokens
			}
		}
	}
	return chatReq
}

// classifyError 把认证、配置类错误标记为不可重试。
func classifyError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		err = fmt.Errorf("llm api error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
		err = fmt.Errorf("llm request error %d: %w", reqErr.HTTPStatusCode, reqErr)
	}
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return retry.Permanent(err)
	}
	return err
}
