package model

import "time"

// EvidenceMetadata 是上游分析阶段附加在证据片段上的结构化元数据。
type EvidenceMetadata struct {
	Category          string     `json:"category,omitempty"`
	CreatedAt         *time.Time `json:"created_at,omitempty"`
	LegalSignificance string     `json:"legal_significance,omitempty"`
}

// EvidenceUnit 是一个可检索的证据片段，由上游摄取流程创建，本流水线只读。
type EvidenceUnit struct {
	ID        string            `json:"id"`
	FileMD5   string            `json:"file_md5"`
	FileName  string            `json:"file_name"`
	Text      string            `json:"text"`
	Embedding []float32         `json:"-"`
	Metadata  *EvidenceMetadata `json:"metadata,omitempty"`
}

// HitSource 标记命中来自哪一路检索策略。
type HitSource string

const (
	SourceVector   HitSource = "vector"
	SourceLexical  HitSource = "lexical"
	SourceAnalysis HitSource = "analysis"
)

// Priority 返回同分时的排序优先级，数值越小越靠前：vector > analysis > lexical。
func (s HitSource) Priority() int {
	switch s {
	case SourceVector:
		return 0
	case SourceAnalysis:
		return 1
	case SourceLexical:
		return 2
	default:
		return 3
	}
}

// SearchHit 是单路策略对某个 EvidenceUnit 的一次打分引用。
type SearchHit struct {
	Unit     EvidenceUnit
	Source   HitSource
	Score    float64
	Concepts []string
}

// FusedResult 是融合去重后的命中，每个 (证据, 摘录前缀) 只保留一条。
type FusedResult struct {
	Unit     EvidenceUnit `json:"unit"`
	Source   HitSource    `json:"source"`
	Score    float64      `json:"score"`
	Concepts []string     `json:"concepts"`
}

// RenderedResult 是对外可见的检索结果。
type RenderedResult struct {
	FusedResult
	Excerpt     string `json:"excerpt"`
	Highlighted string `json:"highlighted"`
	FileURL     string `json:"file_url,omitempty"`
}

// ScoredUnit 是存储层返回的带相似度的证据片段。
type ScoredUnit struct {
	Unit  EvidenceUnit
	Score float64
}
