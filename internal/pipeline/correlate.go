package pipeline

import (
	"strings"
	"unicode"

	"evidence-rag-go/internal/model"
)

var correlationStopwords = map[string]struct{}{
	"that": {}, "this": {}, "with": {}, "from": {}, "have": {}, "they": {}, "their": {},
	"there": {}, "were": {}, "been": {}, "which": {}, "what": {}, "when": {}, "where": {},
	"would": {}, "could": {}, "should": {}, "about": {}, "into": {}, "your": {}, "will": {},
	"does": {}, "person": {}, "other": {}, "also": {}, "than": {}, "then": {},
}

// correlateEvidence 把每条证据关联到与之词汇重叠最多的法律上下文。
// 概念重叠权重为 2，没有任何重叠的证据不产生关联。
func correlateEvidence(evidence []model.RenderedResult, legal []model.LegalContext, eq model.ExpandedQuery) []model.EvidenceConnection {
	connections := make([]model.EvidenceConnection, 0, len(evidence))
	if len(legal) == 0 {
		return connections
	}

	legalWords := make([]map[string]struct{}, len(legal))
	legalConcepts := make([]map[string]struct{}, len(legal))
	for i, item := range legal {
		legalWords[i] = significantWords(item.Title + " " + item.Text)
		legalConcepts[i] = toSet(eq.ConceptsIn(item.Text))
	}

	for _, ev := range evidence {
		words := significantWords(ev.Unit.Text)
		best, bestScore := -1, 0
		for i := range legal {
			score := 0
			for w := range words {
				if _, ok := legalWords[i][w]; ok {
					score++
				}
			}
			for _, c := range ev.Concepts {
				if _, ok := legalConcepts[i][c]; ok {
					score += 2
				}
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			continue
		}
		item := legal[best]
		conn := model.EvidenceConnection{
			EvidenceID: ev.Unit.ID,
			FileName:   ev.Unit.FileName,
			Excerpt:    ev.Excerpt,
			Principle:  item.Title,
			Concepts:   ev.Concepts,
			Relevance:  ev.Score,
		}
		if conn.Concepts == nil {
			conn.Concepts = []string{}
		}
		if len(item.Citations) > 0 {
			conn.Citation = item.Citations[0].Short
		}
		connections = append(connections, conn)
	}
	return connections
}

func significantWords(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len([]rune(w)) < 4 {
			continue
		}
		if _, stop := correlationStopwords[w]; stop {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		set[s] = struct{}{}
	}
	return set
}
