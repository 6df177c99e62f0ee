// Package llm 提供了与大语言模型交互的客户端。
// 多个提供方按顺序组成降级链，由同一个弹性包装逐个尝试。
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"evidence-rag-go/internal/config"
	"evidence-rag-go/pkg/log"
	"evidence-rag-go/pkg/retry"
)

// ErrNoProviders 表示降级链为空。
var ErrNoProviders = errors.New("llm: no providers configured")

// GenerationParams 控制生成行为，nil 字段表示使用提供方默认值。
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// CompletionRequest 是一次补全请求。JSON 为 true 时要求模型输出 JSON 对象。
type CompletionRequest struct {
	System string
	Prompt string
	JSON   bool
	Params *GenerationParams
}

// Client 是流水线依赖的 AI 文本服务。
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Provider 是降级链中的单个提供方，Complete 只做一次尝试。
type Provider interface {
	Spec() ProviderSpec
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type chainClient struct {
	providers   []Provider
	maxAttempts int
	backoff     time.Duration
	defaults    *GenerationParams
}

// NewChain 用给定提供方构建降级链。每个提供方最多重试 maxAttempts 次，
// 认证/配置类错误不重试，直接切换到下一个提供方。
func NewChain(providers []Provider, maxAttempts int, backoff time.Duration, defaults *GenerationParams) Client {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &chainClient{
		providers:   providers,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		defaults:    defaults,
	}
}

// NewClient 根据配置构建 OpenAI 兼容的提供方降级链。
func NewClient(cfg config.LLMConfig) (Client, error) {
	if len(cfg.Providers) == 0 {
		return nil, ErrNoProviders
	}
	providers := make([]Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		spec, err := SpecFromConfig(pc)
		if err != nil {
			return nil, err
		}
		providers = append(providers, NewOpenAIProvider(spec, pc.APIKey, pc.BaseURL))
	}
	return NewChain(providers, cfg.MaxAttempts, config.Millis(cfg.BackoffMS), defaultParams(cfg.Generation)), nil
}

func defaultParams(g config.LLMGenerationConfig) *GenerationParams {
	p := &GenerationParams{}
	if g.Temperature != 0 {
		t := g.Temperature
		p.Temperature = &t
	}
	if g.TopP != 0 {
		tp := g.TopP
		p.TopP = &tp
	}
	if g.MaxTokens != 0 {
		m := g.MaxTokens
		p.MaxTokens = &m
	}
	return p
}

func (c *chainClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if len(c.providers) == 0 {
		return "", ErrNoProviders
	}
	if req.Params == nil {
		req.Params = c.defaults
	}

	var errs *multierror.Error
	for i, p := range c.providers {
		spec := p.Spec()
		var out string
		err := retry.Do(ctx, c.maxAttempts, c.backoff, func(ctx context.Context) error {
			var callErr error
			out, callErr = p.Complete(ctx, req)
			return callErr
		})
		if err == nil {
			if i > 0 {
				log.Infof("[LLM] 降级到第 %d 个提供方 %s 后调用成功", i+1, spec.Name)
			}
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		log.Warnf("[LLM] 提供方 %s (model=%s) 调用失败, 尝试下一个: %v", spec.Name, spec.Model, err)
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", spec.Name, err))
	}
	return "", fmt.Errorf("all %d llm providers failed: %w", len(c.providers), errs.ErrorOrNil())
}
