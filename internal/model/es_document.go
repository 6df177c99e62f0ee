package model

import "time"

// EvidenceDocument 定义了存储在 Elasticsearch 证据索引中的分块文档结构。
type EvidenceDocument struct {
	UnitID            string     `json:"unit_id"` // 唯一标识，例如 fileMd5 + chunkId
	FileMD5           string     `json:"file_md5"`
	FileName          string     `json:"file_name"`
	ChunkID           int        `json:"chunk_id"`
	TextContent       string     `json:"text_content"`
	Vector            []float32  `json:"vector,omitempty"`
	UserID            uint       `json:"user_id"`
	Category          string     `json:"category,omitempty"`
	LegalSignificance string     `json:"legal_significance,omitempty"`
	CreatedAt         *time.Time `json:"created_at,omitempty"`
}

// Unit 把索引文档转换为领域层的 EvidenceUnit。
func (d EvidenceDocument) Unit() EvidenceUnit {
	u := EvidenceUnit{
		ID:        d.UnitID,
		FileMD5:   d.FileMD5,
		FileName:  d.FileName,
		Text:      d.TextContent,
		Embedding: d.Vector,
	}
	if d.Category != "" || d.LegalSignificance != "" || d.CreatedAt != nil {
		u.Metadata = &EvidenceMetadata{
			Category:          d.Category,
			CreatedAt:         d.CreatedAt,
			LegalSignificance: d.LegalSignificance,
		}
	}
	return u
}

// LegalDocument 定义了法律知识索引中的文档结构。
type LegalDocument struct {
	DocID        string     `json:"doc_id"`
	Title        string     `json:"title"`
	TextContent  string     `json:"text_content"`
	Vector       []float32  `json:"vector,omitempty"`
	Jurisdiction string     `json:"jurisdiction"`
	Citations    []Citation `json:"citations"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}

// Context 把索引文档转换为带分数的法律上下文。
func (d LegalDocument) Context(score float64) LegalContext {
	return LegalContext{
		ID:           d.DocID,
		Title:        d.Title,
		Text:         d.TextContent,
		Jurisdiction: d.Jurisdiction,
		Citations:    d.Citations,
		Score:        score,
		VerifiedAt:   d.VerifiedAt,
		CreatedAt:    d.CreatedAt,
	}
}
