// Package service 提供了检索与问答的业务编排。
package service

import (
	"context"
	"fmt"
	"time"

	"evidence-rag-go/internal/config"
	"evidence-rag-go/internal/model"
	"evidence-rag-go/internal/pipeline"
	"evidence-rag-go/internal/repository"
	"evidence-rag-go/pkg/log"
	"evidence-rag-go/pkg/metrics"
	"evidence-rag-go/pkg/storage"
)

// SearchRequest 是检索模式的请求体。可选字段为 nil 时使用配置默认值。
type SearchRequest struct {
	Query           string   `json:"query"`
	MaxResults      *int     `json:"max_results,omitempty"`
	MinRelevance    *float64 `json:"min_relevance,omitempty"`
	IncludeAnalysis *bool    `json:"include_analysis,omitempty"`
	Annotate        bool     `json:"annotate,omitempty"`
}

// SearchResponse 是检索模式的返回体。
type SearchResponse struct {
	Query        string                 `json:"query"`
	Steps        []string               `json:"steps"`
	Results      []model.RenderedResult `json:"results"`
	TotalFound   int                    `json:"total_found"`
	SearchTimeMS int64                  `json:"search_time_ms"`
	Annotations  []pipeline.Annotation  `json:"annotations,omitempty"`
}

// SearchService 接口定义了检索操作。
type SearchService interface {
	Search(ctx context.Context, userID uint, req SearchRequest) (*SearchResponse, error)
}

type searchService struct {
	expander  *pipeline.Expander
	retriever *pipeline.Retriever
	excerpts  *pipeline.ExcerptBuilder
	presigner storage.Presigner
	metrics   metrics.Collector
	cfg       config.RetrievalConfig
}

// NewSearchService 创建一个新的 SearchService 实例。presigner 为 nil 时结果不带文件链接。
func NewSearchService(
	expander *pipeline.Expander,
	retriever *pipeline.Retriever,
	excerpts *pipeline.ExcerptBuilder,
	presigner storage.Presigner,
	collector metrics.Collector,
	cfg config.RetrievalConfig,
) SearchService {
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &searchService{
		expander:  expander,
		retriever: retriever,
		excerpts:  excerpts,
		presigner: presigner,
		metrics:   collector,
		cfg:       cfg,
	}
}

// Search 执行 扩展 → 三路检索 → 融合 → 摘录。除 InvalidQuery 和调用方取消外总是成功。
func (s *searchService) Search(ctx context.Context, userID uint, req SearchRequest) (resp *SearchResponse, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveRequest(string(model.ModeSearch), time.Since(start), err) }()

	q, err := buildSearchQuery(req, userID, s.cfg)
	if err != nil {
		return nil, err
	}
	log.Infof("[SearchService] 开始检索, user: %d, max_results: %d, min_relevance: %.2f", userID, q.MaxResults, q.MinRelevance)
	trace := pipeline.NewTrace(nil)

	// 1. 概念扩展
	eq, err := s.expander.Expand(ctx, q, trace)
	if err != nil {
		return nil, err
	}

	// 2. 三路并发检索
	hits, err := s.retriever.Retrieve(ctx, eq, trace)
	if err != nil {
		return nil, err
	}

	// 3. 融合去重与排序
	fused, total := pipeline.Fuse(hits, q.MaxResults)
	trace.Addf("Fused %d hit(s) into %d distinct result(s)", len(hits), total)

	// 4. 摘录与高亮
	results := s.excerpts.Render(fused, eq.Terms)
	s.attachFileURLs(ctx, results)

	resp = &SearchResponse{
		Query:      q.Text,
		Results:    results,
		TotalFound: total,
	}
	if req.Annotate {
		resp.Annotations = pipeline.Annotate(results)
		trace.Addf("Annotated %d date/person mention(s)", len(resp.Annotations))
	}
	trace.Addf("Returned %d result(s)", len(results))
	resp.Steps = trace.Steps()
	resp.SearchTimeMS = time.Since(start).Milliseconds()
	log.Infof("[SearchService] 检索完成, user: %d, total_found: %d, returned: %d, 耗时: %dms", userID, total, len(results), resp.SearchTimeMS)
	return resp, nil
}

// attachFileURLs 为结果附上原文件的预签名链接，同一文件只签一次，失败只记录日志。
func (s *searchService) attachFileURLs(ctx context.Context, results []model.RenderedResult) {
	if s.presigner == nil {
		return
	}
	signed := make(map[string]string)
	for i := range results {
		u := results[i].Unit
		if u.FileMD5 == "" || u.FileName == "" {
			continue
		}
		url, ok := signed[u.FileMD5]
		if !ok {
			var err error
			url, err = s.presigner.PresignedURL(ctx, u.FileMD5, u.FileName)
			if err != nil {
				log.Warnf("[SearchService] 生成文件链接失败, file: %s, err: %v", u.FileName, err)
			}
			signed[u.FileMD5] = url
		}
		results[i].FileURL = url
	}
}

// buildSearchQuery 校验请求并补全默认值，max_results 超过上限时截断。
func buildSearchQuery(req SearchRequest, userID uint, cfg config.RetrievalConfig) (model.Query, error) {
	if _, err := pipeline.NormalizeQuery(req.Query); err != nil {
		return model.Query{}, err
	}
	maxResults, err := resolveMaxResults(req.MaxResults, cfg)
	if err != nil {
		return model.Query{}, err
	}
	minRelevance := cfg.DefaultMinRelevance
	if req.MinRelevance != nil {
		minRelevance = *req.MinRelevance
		if minRelevance < 0 || minRelevance > 1 {
			return model.Query{}, fmt.Errorf("%w: min_relevance must be within [0,1]", pipeline.ErrInvalidQuery)
		}
	}
	includeAnalysis := true
	if req.IncludeAnalysis != nil {
		includeAnalysis = *req.IncludeAnalysis
	}
	return model.Query{
		Text:            req.Query,
		UserID:          userID,
		Mode:            model.ModeSearch,
		MaxResults:      maxResults,
		MinRelevance:    minRelevance,
		IncludeAnalysis: includeAnalysis,
	}, nil
}

func resolveMaxResults(requested *int, cfg config.RetrievalConfig) (int, error) {
	if requested == nil {
		return cfg.DefaultMaxResults, nil
	}
	n := *requested
	if n <= 0 {
		return 0, fmt.Errorf("%w: max_results must be positive", pipeline.ErrInvalidQuery)
	}
	if n > cfg.MaxResultsCap {
		n = cfg.MaxResultsCap
	}
	return n, nil
}

// corpusStore 把证据索引和分析记录两个仓库组合成检索器需要的 CorpusStore。
type corpusStore struct {
	repository.EvidenceRepository
	repository.AnalysisRepository
}

// NewCorpusStore 组合用户证据语料的读取入口。
func NewCorpusStore(evidence repository.EvidenceRepository, analyses repository.AnalysisRepository) pipeline.CorpusStore {
	return corpusStore{EvidenceRepository: evidence, AnalysisRepository: analyses}
}
