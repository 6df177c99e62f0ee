package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"evidence-rag-go/internal/model"
	"evidence-rag-go/pkg/es"
	"evidence-rag-go/pkg/log"
)

// EvidenceRepository 定义了对用户证据分块索引的检索操作，所有查询都按 user_id 过滤。
type EvidenceRepository interface {
	SearchByVector(ctx context.Context, userID uint, vector []float32, k int) ([]model.ScoredUnit, error)
	SearchByTerms(ctx context.Context, userID uint, terms []string, limit int) ([]model.EvidenceUnit, error)
}

type esEvidenceRepository struct {
	client *elasticsearch.Client
	index  string
}

// NewEvidenceRepository 创建一个新的 EvidenceRepository 实例。
func NewEvidenceRepository(client *elasticsearch.Client, index string) EvidenceRepository {
	return &esEvidenceRepository{client: client, index: index}
}

// SearchByVector 在用户自己的证据中做 kNN 检索，返回的 Score 为余弦相似度。
func (r *esEvidenceRepository) SearchByVector(ctx context.Context, userID uint, vector []float32, k int) ([]model.ScoredUnit, error) {
	body := es.KNNQuery("vector", vector, k, es.TermFilter("user_id", userID))
	hits, err := es.Search(ctx, r.client, r.index, body)
	if err != nil {
		return nil, err
	}
	out := make([]model.ScoredUnit, 0, len(hits))
	for _, h := range hits {
		doc, err := decodeEvidence(h)
		if err != nil {
			return nil, err
		}
		out = append(out, model.ScoredUnit{Unit: doc.Unit(), Score: es.CosineFromScore(h.Score)})
	}
	log.Infof("[EvidenceRepository] kNN 检索完成, user: %d, hits: %d", userID, len(out))
	return out, nil
}

// SearchByTerms 对任一检索词做全文匹配。
func (r *esEvidenceRepository) SearchByTerms(ctx context.Context, userID uint, terms []string, limit int) ([]model.EvidenceUnit, error) {
	if len(terms) == 0 {
		return []model.EvidenceUnit{}, nil
	}
	body := es.AnyTermQuery(
		[]string{"text_content", "legal_significance"},
		terms,
		[]map[string]interface{}{es.TermFilter("user_id", userID)},
		limit,
	)
	hits, err := es.Search(ctx, r.client, r.index, body)
	if err != nil {
		return nil, err
	}
	out := make([]model.EvidenceUnit, 0, len(hits))
	for _, h := range hits {
		doc, err := decodeEvidence(h)
		if err != nil {
			return nil, err
		}
		out = append(out, doc.Unit())
	}
	log.Infof("[EvidenceRepository] 全文检索完成, user: %d, terms: %d, hits: %d", userID, len(terms), len(out))
	return out, nil
}

func decodeEvidence(h es.Hit) (model.EvidenceDocument, error) {
	var doc model.EvidenceDocument
	if err := json.Unmarshal(h.Source, &doc); err != nil {
		return doc, fmt.Errorf("failed to decode evidence document %s: %w", h.ID, err)
	}
	if doc.UnitID == "" {
		doc.UnitID = h.ID
	}
	return doc, nil
}
