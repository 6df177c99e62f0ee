package model

import "strings"

// ExpandedQuery 持有原始 Query 以及扩展出的检索词与命中的领域概念。
// 由概念扩展器构建一次，之后只读。
type ExpandedQuery struct {
	Query    Query
	Terms    []string
	Concepts []string
	// conceptTerms 记录每个命中概念对应的词表，用于给检索结果标注概念
	conceptTerms map[string][]string
}

// NewExpandedQuery 构建 ExpandedQuery，terms 需已去重。
func NewExpandedQuery(q Query, terms, concepts []string, conceptTerms map[string][]string) ExpandedQuery {
	ct := make(map[string][]string, len(conceptTerms))
	for k, v := range conceptTerms {
		ct[k] = append([]string(nil), v...)
	}
	return ExpandedQuery{
		Query:        q,
		Terms:        append([]string(nil), terms...),
		Concepts:     append([]string(nil), concepts...),
		conceptTerms: ct,
	}
}

// ConceptsIn 返回在 text 中出现过（概念名或任一同义词）的概念，顺序与 Concepts 一致。
func (e ExpandedQuery) ConceptsIn(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, c := range e.Concepts {
		if strings.Contains(lower, c) {
			out = append(out, c)
			continue
		}
		for _, t := range e.conceptTerms[c] {
			if strings.Contains(lower, strings.ToLower(t)) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
