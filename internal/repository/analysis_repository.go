package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"evidence-rag-go/internal/model"
)

// AnalysisRepository 定义了对 analysis_records 表的只读检索。
type AnalysisRepository interface {
	SearchAnalyses(ctx context.Context, userID uint, terms []string, limit int) ([]model.AnalysisRecord, error)
}

type analysisRepository struct {
	db *gorm.DB
}

// NewAnalysisRepository 创建一个新的 AnalysisRepository 实例。
func NewAnalysisRepository(db *gorm.DB) AnalysisRepository {
	return &analysisRepository{db: db}
}

// analysisSearchColumns 是参与包含匹配的分析文本字段。
var analysisSearchColumns = []string{"summary", "findings", "legal_significance", "category"}

// SearchAnalyses 在分析文本字段中查找包含任一检索词的记录，最新的在前。
func (r *analysisRepository) SearchAnalyses(ctx context.Context, userID uint, terms []string, limit int) ([]model.AnalysisRecord, error) {
	if len(terms) == 0 {
		return []model.AnalysisRecord{}, nil
	}
	var records []model.AnalysisRecord
	err := searchAnalysesScope(r.db.WithContext(ctx), userID, terms, limit).Find(&records).Error
	return records, err
}

func searchAnalysesScope(db *gorm.DB, userID uint, terms []string, limit int) *gorm.DB {
	var clauses []string
	var args []interface{}
	for _, t := range terms {
		pattern := "%" + escapeLike(strings.ToLower(t)) + "%"
		for _, col := range analysisSearchColumns {
			clauses = append(clauses, "LOWER("+col+") LIKE ?")
			args = append(args, pattern)
		}
	}
	return db.Model(&model.AnalysisRecord{}).
		Where("user_id = ?", userID).
		Where(strings.Join(clauses, " OR "), args...).
		Order("created_at DESC").
		Limit(limit)
}

// escapeLike 转义 LIKE 通配符。
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
