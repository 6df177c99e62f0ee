package pipeline

import (
	"regexp"
	"strings"

	"evidence-rag-go/internal/model"
)

// 人物/日期标注是检索结果之上的可选提示，不属于检索契约。

const (
	AnnotationDate   = "date"
	AnnotationPerson = "person"
)

// Annotation 是在检索结果摘录中发现的人物或日期线索。
type Annotation struct {
	ResultID string `json:"result_id"`
	Kind     string `json:"kind"`
	Value    string `json:"value"`
	Hint     string `json:"hint"`
}

const monthNames = `(?:January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)`

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
		regexp.MustCompile(`\b\d{1,2}[/.]\d{1,2}[/.]\d{2,4}\b`),
		regexp.MustCompile(`\b\d{1,2}(?:st|nd|rd|th)? ` + monthNames + `,? \d{4}\b`),
		regexp.MustCompile(`\b` + monthNames + ` \d{1,2}(?:st|nd|rd|th)?,? \d{4}\b`),
	}
	personPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Miss|Dr)\.? [A-Z][a-z]+(?: [A-Z][a-z]+)?`),
		regexp.MustCompile(`(?i)\bmy (?:husband|wife|partner|ex-partner|ex|boyfriend|girlfriend|father|mother|brother|sister|son|daughter)\b`),
	}
)

// Annotate 扫描每条结果的摘录，返回去重后的人物与日期线索。
func Annotate(results []model.RenderedResult) []Annotation {
	out := make([]Annotation, 0)
	for _, r := range results {
		seen := make(map[string]struct{})
		add := func(kind, value, hint string) {
			key := kind + "|" + strings.ToLower(value)
			if _, ok := seen[key]; ok {
				return
			}
			seen[key] = struct{}{}
			out = append(out, Annotation{ResultID: r.Unit.ID, Kind: kind, Value: value, Hint: hint})
		}
		for _, p := range datePatterns {
			for _, m := range p.FindAllString(r.Excerpt, -1) {
				add(AnnotationDate, m, "Consider adding this date to the case timeline")
			}
		}
		for _, p := range personPatterns {
			for _, m := range p.FindAllString(r.Excerpt, -1) {
				add(AnnotationPerson, m, "Consider recording who this person is and their role")
			}
		}
	}
	return out
}
