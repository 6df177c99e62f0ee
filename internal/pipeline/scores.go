package pipeline

import (
	"regexp"
	"strings"
	"time"

	"evidence-rag-go/internal/model"
)

// 法律主张触发词，按词边界、大小写不敏感计数。
var legalClaimTriggers = regexp.MustCompile(`(?i)\b(?:must|shall|requires|under|pursuant to|according to)\b`)

// CitationHitRate = 在回答中原文出现的引用数 ÷ 触发词出现次数，截断到 [0,1]。
// 没有触发词时为 1.0。
func CitationHitRate(answer string, citations []model.Citation) float64 {
	triggers := len(legalClaimTriggers.FindAllStringIndex(answer, -1))
	if triggers == 0 {
		return 1.0
	}
	hits := 0
	for _, c := range citations {
		if (c.Short != "" && strings.Contains(answer, c.Short)) || (c.Full != "" && strings.Contains(answer, c.Full)) {
			hits++
		}
	}
	return clamp01(float64(hits) / float64(triggers))
}

// SourceFreshness 返回法律上下文核验时间（缺失时用创建时间）的平均天数。
// 没有任何时间戳时返回 defaultDays。
func SourceFreshness(items []model.LegalContext, now time.Time, defaultDays float64) float64 {
	var total float64
	n := 0
	for _, item := range items {
		ts := item.VerifiedAt
		if ts == nil {
			ts = item.CreatedAt
		}
		if ts == nil {
			continue
		}
		age := now.Sub(*ts).Hours() / 24
		if age < 0 {
			age = 0
		}
		total += age
		n++
	}
	if n == 0 {
		return defaultDays
	}
	return total / float64(n)
}

// ConfidenceScore = 法律上下文分数均值，使用了证据时加 bonus，上限 1.0。
func ConfidenceScore(items []model.LegalContext, evidenceUsed bool, bonus float64) float64 {
	if len(items) == 0 {
		return 0
	}
	var sum float64
	for _, item := range items {
		sum += clamp01(item.Score)
	}
	score := sum / float64(len(items))
	if evidenceUsed {
		score += bonus
	}
	return clamp01(score)
}

// extractCitations 只取实际送入生成的法律上下文所携带的引用，按简写去重。
func extractCitations(items []model.LegalContext) []model.Citation {
	seen := make(map[string]struct{})
	out := make([]model.Citation, 0)
	for _, item := range items {
		for _, c := range item.Citations {
			key := c.Short
			if key == "" {
				key = c.Full
			}
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			if c.Jurisdiction == "" {
				c.Jurisdiction = item.Jurisdiction
			}
			if c.Confidence == 0 {
				c.Confidence = clamp01(item.Score)
			}
			out = append(out, c)
		}
	}
	return out
}
