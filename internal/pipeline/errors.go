// Package pipeline 实现证据与法律知识的检索流水线：
// 概念扩展、三路并发检索、融合去重、摘录高亮、有据回答生成与质量记录。
package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery 表示查询为空或格式错误，调用方可修正。
	ErrInvalidQuery = errors.New("invalid query")
	// ErrStrategyUnavailable 表示某一路检索策略失败，已在本地降级为零命中。
	ErrStrategyUnavailable = errors.New("retrieval strategy unavailable")
	// ErrExpansionDegraded 表示 AI 扩展失败，已回退到规则扩展。
	ErrExpansionDegraded = errors.New("concept expansion degraded")
	// ErrGenerationFailed 表示无法生成有据回答。
	ErrGenerationFailed = errors.New("generation failed")
	// ErrUpstreamUnavailable 表示 embedding 或 AI 服务不可用。
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// GenerationError 记录回答组装在哪一步失败。
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed at %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, ErrGenerationFailed) 对所有 GenerationError 成立。
func (e *GenerationError) Is(target error) bool {
	return target == ErrGenerationFailed
}

func generationFailed(stage string, err error) error {
	return &GenerationError{Stage: stage, Err: err}
}
