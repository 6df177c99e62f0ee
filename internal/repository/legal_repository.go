package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"evidence-rag-go/internal/model"
	"evidence-rag-go/pkg/es"
)

// LegalRepository 定义了对法律知识索引的检索操作。jurisdiction 为空时不过滤。
type LegalRepository interface {
	SemanticSearch(ctx context.Context, vector []float32, jurisdiction string, k int) ([]model.LegalContext, error)
	TextSearch(ctx context.Context, terms []string, jurisdiction string, limit int) ([]model.LegalContext, error)
}

type esLegalRepository struct {
	client *elasticsearch.Client
	index  string
}

// NewLegalRepository 创建一个新的 LegalRepository 实例。
func NewLegalRepository(client *elasticsearch.Client, index string) LegalRepository {
	return &esLegalRepository{client: client, index: index}
}

// SemanticSearch 返回的 Score 为余弦相似度。
func (r *esLegalRepository) SemanticSearch(ctx context.Context, vector []float32, jurisdiction string, k int) ([]model.LegalContext, error) {
	var filter map[string]interface{}
	if jurisdiction != "" {
		filter = es.TermFilter("jurisdiction", jurisdiction)
	}
	hits, err := es.Search(ctx, r.client, r.index, es.KNNQuery("vector", vector, k, filter))
	if err != nil {
		return nil, err
	}
	return decodeLegal(hits, es.CosineFromScore)
}

// TextSearch 返回的 Score 为原始 BM25 分数。
func (r *esLegalRepository) TextSearch(ctx context.Context, terms []string, jurisdiction string, limit int) ([]model.LegalContext, error) {
	if len(terms) == 0 {
		return []model.LegalContext{}, nil
	}
	var filters []map[string]interface{}
	if jurisdiction != "" {
		filters = append(filters, es.TermFilter("jurisdiction", jurisdiction))
	}
	body := es.AnyTermQuery([]string{"title^2", "text_content"}, terms, filters, limit)
	hits, err := es.Search(ctx, r.client, r.index, body)
	if err != nil {
		return nil, err
	}
	return decodeLegal(hits, func(s float64) float64 { return s })
}

func decodeLegal(hits []es.Hit, score func(float64) float64) ([]model.LegalContext, error) {
	out := make([]model.LegalContext, 0, len(hits))
	for _, h := range hits {
		var doc model.LegalDocument
		if err := json.Unmarshal(h.Source, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode legal document %s: %w", h.ID, err)
		}
		if doc.DocID == "" {
			doc.DocID = h.ID
		}
		out = append(out, doc.Context(score(h.Score)))
	}
	return out, nil
}
