package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"evidence-rag-go/internal/model"
	"evidence-rag-go/pkg/log"
)

// TokenCounter 返回文本的 token 数。
type TokenCounter func(string) int

// NewTokenCounter 使用 tiktoken 为指定模型计数；编码表不可用时退化为按字符估算。
func NewTokenCounter(modelName string) TokenCounter {
	tkm, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		log.Warnf("[Prompt] 加载 tiktoken 编码失败 (model=%s), 使用字符估算: %v", modelName, err)
		return EstimateTokens
	}
	return func(s string) int {
		return len(tkm.Encode(s, nil, nil))
	}
}

// EstimateTokens 按约 4 个字符一个 token 粗略估算。
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

const userStylePrompt = `You are a legal information assistant helping a person understand their situation.
Write in plain, warm language. Do not use legal citations unless you explain them in everyday words.
Base every statement only on the legal context and evidence provided. If the context does not cover
something, say so. End with: "This is general legal information, not legal advice."`

const lawyerStylePrompt = `You are a legal research assistant writing for a practising lawyer.
Use a precise, technical register. Every substantive claim must carry a pinpoint citation taken
verbatim from the legal context provided. Do not cite anything that is not in the context.
Where the evidence supports an element of an offence or order, say which element and which item.`

// stylePrompt 返回回答风格对应的系统提示词。
func stylePrompt(style model.AnswerStyle) string {
	if style == model.StyleLawyer {
		return lawyerStylePrompt
	}
	return userStylePrompt
}

// admitLegal 按排序依次放入法律上下文，直到超出 token 预算；至少放入一条。
// budget <= 0 表示不限制。
func admitLegal(items []model.LegalContext, budget int, count TokenCounter) []model.LegalContext {
	if budget <= 0 || len(items) == 0 {
		return items
	}
	used := 0
	for i, item := range items {
		used += count(formatLegalItem(i+1, item))
		if used > budget && i > 0 {
			return items[:i]
		}
	}
	return items
}

func formatLegalItem(n int, item model.LegalContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[L%d] %s", n, item.Title)
	if item.Jurisdiction != "" {
		fmt.Fprintf(&sb, " (%s)", item.Jurisdiction)
	}
	sb.WriteString("\n")
	sb.WriteString(strings.TrimSpace(item.Text))
	sb.WriteString("\n")
	for _, c := range item.Citations {
		fmt.Fprintf(&sb, "Citation: %s | %s\n", c.Short, c.Full)
	}
	return sb.String()
}

// buildAnswerPrompt 拼装唯一一次生成调用的用户消息。
func buildAnswerPrompt(query string, intent model.Intent, legal []model.LegalContext, evidence []model.RenderedResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\n", query)
	fmt.Fprintf(&sb, "Intent: category=%s", intent.Category)
	if len(intent.Concepts) > 0 {
		fmt.Fprintf(&sb, "; concepts=%s", strings.Join(intent.Concepts, ", "))
	}
	if len(intent.CitationTypes) > 0 {
		fmt.Fprintf(&sb, "; expected citations=%s", strings.Join(intent.CitationTypes, ", "))
	}
	sb.WriteString("\n\nLegal context:\n")
	for i, item := range legal {
		sb.WriteString(formatLegalItem(i+1, item))
		sb.WriteString("\n")
	}
	if len(evidence) > 0 {
		sb.WriteString("User evidence:\n")
		for i, e := range evidence {
			fmt.Fprintf(&sb, "[E%d] %s: %s\n", i+1, e.Unit.FileName, e.Excerpt)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Answer the question using only the material above.")
	return sb.String()
}
