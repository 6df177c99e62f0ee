package model

import "time"

// QualityRecord 对应 quality_records 表，是问答结果的离线监控快照。
type QualityRecord struct {
	ID              string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID          uint        `gorm:"index" json:"user_id"`
	Query           string      `gorm:"type:text;not null" json:"query"`
	Answer          string      `gorm:"type:mediumtext" json:"answer"`
	Citations       string      `gorm:"type:text" json:"citations"` // JSON 编码的 []Citation
	ConfidenceScore float64     `json:"confidence_score"`
	SourceFreshness float64     `json:"source_freshness"`
	CitationHitRate float64     `json:"citation_hit_rate"`
	Mode            AnswerStyle `gorm:"type:varchar(16)" json:"mode"`
	EvidenceCount   int         `json:"evidence_count"`
	CreatedAt       time.Time   `gorm:"index" json:"created_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (QualityRecord) TableName() string {
	return "quality_records"
}
