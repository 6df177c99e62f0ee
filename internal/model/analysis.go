package model

import "time"

// AnalysisRecord 对应 analysis_records 表，保存对证据预先计算的结构化分析。
// 由上游分析任务写入，本服务只读。
type AnalysisRecord struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID            uint      `gorm:"not null;index" json:"user_id"`
	EvidenceID        string    `gorm:"type:varchar(64);not null;index" json:"evidence_id"`
	FileMD5           string    `gorm:"type:varchar(32);index" json:"file_md5"`
	FileName          string    `gorm:"type:varchar(255)" json:"file_name"`
	Category          string    `gorm:"type:varchar(64)" json:"category"`
	Summary           string    `gorm:"type:text" json:"summary"`
	Findings          string    `gorm:"type:text" json:"findings"`
	LegalSignificance string    `gorm:"type:text" json:"legal_significance"`
	// LegalStrength 是上游写入的强度指标，可能是 "0.8"、"7"、"7/10" 或 "strong" 之类的取值
	LegalStrength string    `gorm:"type:varchar(32)" json:"legal_strength"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (AnalysisRecord) TableName() string {
	return "analysis_records"
}

// SearchText 返回用于检索和摘录的分析文本。
func (a AnalysisRecord) SearchText() string {
	text := a.Summary
	for _, part := range []string{a.Findings, a.LegalSignificance} {
		if part == "" {
			continue
		}
		if text != "" {
			text += "\n"
		}
		text += part
	}
	return text
}
