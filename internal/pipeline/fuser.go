package pipeline

import (
	"sort"

	"evidence-rag-go/internal/model"
)

// dedupPrefixRunes 是判定重复命中时比较的摘录前缀长度。
const dedupPrefixRunes = 100

type fuseKey struct {
	unitID string
	prefix string
}

// Fuse 合并三路命中：同一证据且文本前 100 个字符相同的命中视为同一结果，
// 保留分数更高者（同分取优先级更高的来源）并合并概念。
// 返回截断后的结果和截断前的去重总数。
func Fuse(hits []model.SearchHit, limit int) ([]model.FusedResult, int) {
	index := make(map[fuseKey]int, len(hits))
	fused := make([]model.FusedResult, 0, len(hits))
	concepts := make([]map[string]struct{}, 0, len(hits))

	for _, h := range hits {
		h.Score = clamp01(h.Score)
		key := fuseKey{unitID: h.Unit.ID, prefix: runePrefix(h.Unit.Text, dedupPrefixRunes)}
		i, seen := index[key]
		if !seen {
			index[key] = len(fused)
			fused = append(fused, model.FusedResult{Unit: h.Unit, Source: h.Source, Score: h.Score})
			set := make(map[string]struct{}, len(h.Concepts))
			for _, c := range h.Concepts {
				set[c] = struct{}{}
			}
			concepts = append(concepts, set)
			continue
		}
		if outranks(h, fused[i]) {
			fused[i].Unit = h.Unit
			fused[i].Source = h.Source
			fused[i].Score = h.Score
		}
		for _, c := range h.Concepts {
			concepts[i][c] = struct{}{}
		}
	}

	for i := range fused {
		list := make([]string, 0, len(concepts[i]))
		for c := range concepts[i] {
			list = append(list, c)
		}
		sort.Strings(list)
		fused[i].Concepts = list
	}

	sort.SliceStable(fused, func(a, b int) bool {
		return less(fused[a], fused[b])
	})

	total := len(fused)
	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, total
}

// outranks 决定重复命中时保留哪一个，与输入顺序无关。
func outranks(h model.SearchHit, cur model.FusedResult) bool {
	if h.Score != cur.Score {
		return h.Score > cur.Score
	}
	if h.Source.Priority() != cur.Source.Priority() {
		return h.Source.Priority() < cur.Source.Priority()
	}
	return h.Unit.Text < cur.Unit.Text
}

// less 定义融合结果的全序：分数降序，同分按 vector > analysis > lexical，再按证据 ID。
func less(a, b model.FusedResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if pa, pb := a.Source.Priority(), b.Source.Priority(); pa != pb {
		return pa < pb
	}
	if a.Unit.ID != b.Unit.ID {
		return a.Unit.ID < b.Unit.ID
	}
	return a.Unit.Text < b.Unit.Text
}

func runePrefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
