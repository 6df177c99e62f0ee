package pipeline

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"evidence-rag-go/internal/config"
	"evidence-rag-go/internal/model"
)

// ExcerptBuilder 截取命中附近的上下文窗口，并为检索词加高亮标记。
// 窗口长度按字符（rune）计算，省略号计入窗口。
type ExcerptBuilder struct {
	window   int
	lead     int
	ellipsis []rune
	open     string
	close    string
}

// NewExcerptBuilder 创建摘录构建器，配置需先通过 config.Validate。
func NewExcerptBuilder(cfg config.ExcerptConfig) *ExcerptBuilder {
	return &ExcerptBuilder{
		window:   cfg.Window,
		lead:     cfg.Lead,
		ellipsis: []rune(cfg.Ellipsis),
		open:     cfg.HighlightStart,
		close:    cfg.HighlightEnd,
	}
}

// Render 为每个融合结果生成摘录和高亮版本，不修改原始证据文本。
func (b *ExcerptBuilder) Render(results []model.FusedResult, terms []string) []model.RenderedResult {
	patterns := termPatterns(terms)
	out := make([]model.RenderedResult, 0, len(results))
	for _, r := range results {
		excerpt := b.Excerpt(r.Unit.Text, terms)
		out = append(out, model.RenderedResult{
			FusedResult: r,
			Excerpt:     excerpt,
			Highlighted: b.highlight(excerpt, patterns),
		})
	}
	return out
}

// Excerpt 返回以最早命中为锚点的窗口；没有命中时返回文本开头。
func (b *ExcerptBuilder) Excerpt(text string, terms []string) string {
	runes := []rune(text)
	n := len(runes)
	if n <= b.window {
		return text
	}
	e := len(b.ellipsis)
	ell := string(b.ellipsis)

	pos := earliestMatch(runes, terms)
	if pos < 0 {
		return string(runes[:b.window-e]) + ell
	}

	start := pos - b.lead
	if start < 0 {
		start = 0
	}
	if start+b.window >= n {
		// 窗口已经触到文本末尾，整体靠右对齐以填满窗口
		start = n - (b.window - e)
		return ell + string(runes[start:])
	}

	end := start + b.window - e
	prefix := ""
	if start > 0 {
		end -= e
		prefix = ell
	}
	return prefix + string(runes[start:end]) + ell
}

// Highlight 用标记包裹所有按词边界、大小写不敏感命中的检索词。
// 去掉标记后与输入完全一致。
func (b *ExcerptBuilder) Highlight(excerpt string, terms []string) string {
	return b.highlight(excerpt, termPatterns(terms))
}

// StripHighlights 去掉高亮标记。
func (b *ExcerptBuilder) StripHighlights(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, b.open, ""), b.close, "")
}

func (b *ExcerptBuilder) highlight(excerpt string, patterns []*regexp.Regexp) string {
	var spans [][2]int
	for _, p := range patterns {
		spans = append(spans, wordMatches(excerpt, p)...)
	}
	if len(spans) == 0 {
		return excerpt
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i][0] != spans[j][0] {
			return spans[i][0] < spans[j][0]
		}
		return spans[i][1] > spans[j][1]
	})
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s[0] <= last[1] {
			if s[1] > last[1] {
				last[1] = s[1]
			}
			continue
		}
		merged = append(merged, s)
	}

	var sb strings.Builder
	sb.Grow(len(excerpt) + len(merged)*(len(b.open)+len(b.close)))
	prev := 0
	for _, s := range merged {
		sb.WriteString(excerpt[prev:s[0]])
		sb.WriteString(b.open)
		sb.WriteString(excerpt[s[0]:s[1]])
		sb.WriteString(b.close)
		prev = s[1]
	}
	sb.WriteString(excerpt[prev:])
	return sb.String()
}

func termPatterns(terms []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		patterns = append(patterns, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(t)))
	}
	return patterns
}

// wordMatches 返回 p 在 s 中所有两侧都是词边界的命中（字节区间）。
// regexp 的 \b 只认 ASCII，这里按 Unicode 字母、数字判断边界。
func wordMatches(s string, p *regexp.Regexp) [][2]int {
	var spans [][2]int
	for off := 0; off < len(s); {
		loc := p.FindStringIndex(s[off:])
		if loc == nil || loc[0] == loc[1] {
			break
		}
		start, end := off+loc[0], off+loc[1]
		if atWordBoundary(s, start, end) {
			spans = append(spans, [2]int{start, end})
			off = end
			continue
		}
		// 不在词边界上，从下一个字符继续找，避免漏掉重叠位置的合法命中
		_, size := utf8.DecodeRuneInString(s[start:])
		off = start + size
	}
	return spans
}

func atWordBoundary(s string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(s[:start]); isWordRune(r) {
			return false
		}
	}
	if end < len(s) {
		if r, _ := utf8.DecodeRuneInString(s[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// earliestMatch 返回任一检索词最早出现的字符偏移，逐字符小写以保持偏移对齐。
func earliestMatch(text []rune, terms []string) int {
	lower := lowerRunes(text)
	best := -1
	for _, t := range terms {
		needle := lowerRunes([]rune(strings.TrimSpace(t)))
		if len(needle) == 0 {
			continue
		}
		if i := indexRunes(lower, needle); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func indexRunes(hay, needle []rune) int {
	for i := 0; i+len(needle) <= len(hay); i++ {
		match := true
		for j, r := range needle {
			if hay[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
