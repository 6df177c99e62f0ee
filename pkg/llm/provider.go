package llm

import (
	"fmt"

	"evidence-rag-go/internal/config"
)

// TokenLimitStyle 表示提供方接受哪个字段作为输出 token 上限。
type TokenLimitStyle string

const (
	TokenLimitMaxTokens           TokenLimitStyle = "max_tokens"
	TokenLimitMaxCompletionTokens TokenLimitStyle = "max_completion_tokens"
)

// ProviderSpec 描述一个提供方的能力，决定请求参数如何组装。
type ProviderSpec struct {
	Name                string
	Model               string
	TokenLimitStyle     TokenLimitStyle
	SupportsTemperature bool
	SupportsJSONMode    bool
	CostTier            int
	SpeedTier           int
	ReliabilityTier     int
}

// SpecFromConfig 把配置项转换为 ProviderSpec。
func SpecFromConfig(pc config.LLMProviderConfig) (ProviderSpec, error) {
	if pc.Model == "" {
		return ProviderSpec{}, fmt.Errorf("llm provider %q: model is required", pc.Name)
	}
	style := TokenLimitStyle(pc.TokenLimitStyle)
	switch style {
	case "":
		style = TokenLimitMaxTokens
	case TokenLimitMaxTokens, TokenLimitMaxCompletionTokens:
	default:
		return ProviderSpec{}, fmt.Errorf("llm provider %q: unknown token_limit_style %q", pc.Name, pc.TokenLimitStyle)
	}
	name := pc.Name
	if name == "" {
		name = pc.Model
	}
	return ProviderSpec{
		Name:                name,
		Model:               pc.Model,
		TokenLimitStyle:     style,
		SupportsTemperature: pc.SupportsTemperature,
		SupportsJSONMode:    pc.SupportsJSONMode,
		CostTier:            pc.CostTier,
		SpeedTier:           pc.SpeedTier,
		ReliabilityTier:     pc.ReliabilityTier,
	}, nil
}
