package model

import "time"

// Citation 指向法律知识库中的一个出处。
type Citation struct {
	Short        string  `json:"short"`
	Full         string  `json:"full"`
	Jurisdiction string  `json:"jurisdiction"`
	Confidence   float64 `json:"confidence"`
}

// Intent 是问答模式下对问题的意图分类。
type Intent struct {
	Category      string   `json:"category"`
	Concepts      []string `json:"concepts"`
	CitationTypes []string `json:"citation_types"`
}

// GenericIntent 是意图分类失败时的兜底结果。
func GenericIntent() Intent {
	return Intent{Category: "general", Concepts: []string{}, CitationTypes: []string{}}
}

// LegalContext 是从法律知识库检索到的一条上下文。
type LegalContext struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Text         string     `json:"text"`
	Jurisdiction string     `json:"jurisdiction"`
	Citations    []Citation `json:"citations"`
	Score        float64    `json:"score"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}

// EvidenceConnection 把用户的一条证据关联到它最能支撑的法律原则。
type EvidenceConnection struct {
	EvidenceID string   `json:"evidence_id"`
	FileName   string   `json:"file_name,omitempty"`
	Excerpt    string   `json:"excerpt"`
	Principle  string   `json:"principle"`
	Citation   string   `json:"citation,omitempty"`
	Concepts   []string `json:"concepts"`
	Relevance  float64  `json:"relevance"`
}

// GroundedAnswer 是问答模式的最终产物，生成后不可变。
type GroundedAnswer struct {
	Answer              string               `json:"answer"`
	Citations           []Citation           `json:"citations"`
	EvidenceConnections []EvidenceConnection `json:"evidence_connections"`
	ConfidenceScore     float64              `json:"confidence_score"`
	SourceFreshness     float64              `json:"source_freshness"`
	CitationHitRate     float64              `json:"citation_hit_rate"`
	Mode                AnswerStyle          `json:"mode"`
}
