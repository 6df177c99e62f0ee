package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"

	"evidence-rag-go/internal/config"
	"evidence-rag-go/internal/model"
	"evidence-rag-go/pkg/embedding"
	"evidence-rag-go/pkg/log"
	"evidence-rag-go/pkg/metrics"
)

// CorpusStore 是用户证据语料的检索入口，所有方法都按用户隔离。
type CorpusStore interface {
	// SearchByVector 返回与向量最相似的片段，Score 为 [0,1] 的相似度。
	SearchByVector(ctx context.Context, userID uint, vector []float32, k int) ([]model.ScoredUnit, error)
	// SearchByTerms 对任一检索词做全文匹配。
	SearchByTerms(ctx context.Context, userID uint, terms []string, limit int) ([]model.EvidenceUnit, error)
	// SearchAnalyses 在预先计算的分析记录文本中做包含匹配。
	SearchAnalyses(ctx context.Context, userID uint, terms []string, limit int) ([]model.AnalysisRecord, error)
}

type strategyFunc func(ctx context.Context, eq model.ExpandedQuery) ([]model.SearchHit, error)

// Retriever 并发执行向量、全文、分析三路检索，每一路独立降级。
type Retriever struct {
	embedder   embedding.Client
	corpus     CorpusStore
	metrics    metrics.Collector
	timeout    time.Duration
	baseline   float64
	minTermLen int
}

// NewRetriever 创建检索器。
func NewRetriever(embedder embedding.Client, corpus CorpusStore, collector metrics.Collector, cfg config.RetrievalConfig) *Retriever {
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &Retriever{
		embedder:   embedder,
		corpus:     corpus,
		metrics:    collector,
		timeout:    config.Millis(cfg.StrategyTimeoutMS),
		baseline:   cfg.LexicalBaselineScore,
		minTermLen: cfg.MinTermLength,
	}
}

// Retrieve 返回三路检索的命中拼接结果。单路失败只会让该路贡献零命中；
// 只有调用方 context 结束时才返回错误，此时已得到的部分结果被丢弃。
func (r *Retriever) Retrieve(ctx context.Context, eq model.ExpandedQuery, trace *Trace) ([]model.SearchHit, error) {
	if eq.Query.Anonymous() {
		trace.Addf("Anonymous request: user evidence corpus not searched")
		return nil, nil
	}

	type strategy struct {
		source model.HitSource
		run    strategyFunc
	}
	strategies := []strategy{
		{model.SourceVector, r.vectorSearch},
		{model.SourceLexical, r.lexicalSearch},
	}
	if eq.Query.IncludeAnalysis {
		strategies = append(strategies, strategy{model.SourceAnalysis, r.analysisSearch})
	} else {
		trace.Addf("Analysis search skipped (include_analysis=false)")
	}

	results := make([][]model.SearchHit, len(strategies))
	failures := make([]error, len(strategies))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range strategies {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, r.timeout)
			defer cancel()

			start := time.Now()
			hits, err := runStrategy(sctx, s.run, eq)
			r.metrics.ObserveStrategy(string(s.source), len(hits), time.Since(start), err)
			if err != nil {
				failures[i] = fmt.Errorf("%s: %w: %v", s.source, ErrStrategyUnavailable, err)
				trace.Addf("%s search unavailable, contributing 0 hits", strategyLabel(s.source))
				return nil
			}
			results[i] = hits
			trace.Addf("%s search found %d hit(s)", strategyLabel(s.source), len(hits))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		log.Warnf("[Retriever] 请求已取消, 丢弃部分结果: %v", err)
		return nil, err
	}

	var merr *multierror.Error
	for _, f := range failures {
		if f != nil {
			merr = multierror.Append(merr, f)
		}
	}
	if merr != nil {
		log.Warnf("[Retriever] %d 路检索策略降级: %v", merr.Len(), merr)
	}

	var all []model.SearchHit
	for _, hits := range results {
		all = append(all, hits...)
	}
	return all, nil
}

// runStrategy 把 panic 也当作该路策略的失败处理。
func runStrategy(ctx context.Context, run strategyFunc, eq model.ExpandedQuery) (hits []model.SearchHit, err error) {
	defer func() {
		if p := recover(); p != nil {
			hits, err = nil, fmt.Errorf("strategy panicked: %v", p)
		}
	}()
	return run(ctx, eq)
}

func (r *Retriever) vectorSearch(ctx context.Context, eq model.ExpandedQuery) ([]model.SearchHit, error) {
	vector, err := r.embedder.CreateEmbedding(ctx, eq.Query.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrUpstreamUnavailable, err)
	}
	scored, err := r.corpus.SearchByVector(ctx, eq.Query.UserID, vector, eq.Query.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("vector lookup: %w", err)
	}

	hits := make([]model.SearchHit, 0, len(scored))
	for _, s := range scored {
		if s.Score < eq.Query.MinRelevance {
			continue
		}
		hits = append(hits, model.SearchHit{
			Unit:     s.Unit,
			Source:   model.SourceVector,
			Score:    clamp01(s.Score),
			Concepts: eq.ConceptsIn(s.Unit.Text),
		})
		if len(hits) == eq.Query.MaxResults {
			break
		}
	}
	return hits, nil
}

func (r *Retriever) lexicalSearch(ctx context.Context, eq model.ExpandedQuery) ([]model.SearchHit, error) {
	terms := r.searchableTerms(eq.Terms)
	if len(terms) == 0 {
		return nil, nil
	}
	units, err := r.corpus.SearchByTerms(ctx, eq.Query.UserID, terms, eq.Query.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("full-text lookup: %w", err)
	}
	if len(units) > eq.Query.MaxResults {
		units = units[:eq.Query.MaxResults]
	}

	hits := make([]model.SearchHit, 0, len(units))
	for _, u := range units {
		hits = append(hits, model.SearchHit{
			Unit:     u,
			Source:   model.SourceLexical,
			Score:    r.baseline,
			Concepts: eq.ConceptsIn(u.Text),
		})
	}
	return hits, nil
}

func (r *Retriever) analysisSearch(ctx context.Context, eq model.ExpandedQuery) ([]model.SearchHit, error) {
	terms := r.searchableTerms(eq.Terms)
	if len(terms) == 0 {
		return nil, nil
	}
	records, err := r.corpus.SearchAnalyses(ctx, eq.Query.UserID, terms, eq.Query.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("analysis lookup: %w", err)
	}
	if len(records) > eq.Query.MaxResults {
		records = records[:eq.Query.MaxResults]
	}

	hits := make([]model.SearchHit, 0, len(records))
	for _, rec := range records {
		unit := analysisUnit(rec)
		hits = append(hits, model.SearchHit{
			Unit:     unit,
			Source:   model.SourceAnalysis,
			Score:    NormalizeLegalStrength(rec.LegalStrength),
			Concepts: eq.ConceptsIn(unit.Text),
		})
	}
	return hits, nil
}

// searchableTerms 丢弃过短的噪声词。
func (r *Retriever) searchableTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if utf8.RuneCountInString(t) >= r.minTermLen {
			out = append(out, t)
		}
	}
	return out
}

func analysisUnit(rec model.AnalysisRecord) model.EvidenceUnit {
	createdAt := rec.CreatedAt
	return model.EvidenceUnit{
		ID:       rec.EvidenceID,
		FileMD5:  rec.FileMD5,
		FileName: rec.FileName,
		Text:     rec.SearchText(),
		Metadata: &model.EvidenceMetadata{
			Category:          rec.Category,
			CreatedAt:         &createdAt,
			LegalSignificance: rec.LegalSignificance,
		},
	}
}

const neutralLegalStrength = 0.5

// NormalizeLegalStrength 把上游写入的强度指标统一到 [0,1]。
// 支持 strong/moderate/weak 标签、"7/10"、"80%"，以及 0-1、0-10、0-100 三种量纲的数字。
// 无法识别时返回中性值 0.5。
func NormalizeLegalStrength(raw string) float64 {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "":
		return neutralLegalStrength
	case "very strong", "critical":
		return 1.0
	case "strong", "high":
		return 0.9
	case "moderate", "medium":
		return 0.6
	case "weak", "low":
		return 0.3
	case "none":
		return 0
	}

	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := cast.ToFloat64E(strings.TrimSpace(num))
		d, err2 := cast.ToFloat64E(strings.TrimSpace(den))
		if err1 != nil || err2 != nil || d <= 0 {
			return neutralLegalStrength
		}
		return clamp01(n / d)
	}
	if pct, ok := strings.CutSuffix(s, "%"); ok {
		v, err := cast.ToFloat64E(strings.TrimSpace(pct))
		if err != nil {
			return neutralLegalStrength
		}
		return clamp01(v / 100)
	}

	v, err := cast.ToFloat64E(s)
	if err != nil {
		return neutralLegalStrength
	}
	switch {
	case v > 10:
		v /= 100
	case v > 1:
		v /= 10
	}
	return clamp01(v)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func strategyLabel(s model.HitSource) string {
	switch s {
	case model.SourceVector:
		return "Vector"
	case model.SourceLexical:
		return "Lexical"
	case model.SourceAnalysis:
		return "Analysis"
	}
	return string(s)
}
