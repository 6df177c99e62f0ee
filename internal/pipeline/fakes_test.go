package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"evidence-rag-go/internal/config"
	"evidence-rag-go/internal/model"
	"evidence-rag-go/pkg/llm"
)

// fakeLLM 按系统提示词路由到不同的响应函数。
type fakeLLM struct {
	mu       sync.Mutex
	calls    []llm.CompletionRequest
	expand   func(llm.CompletionRequest) (string, error)
	intent   func(llm.CompletionRequest) (string, error)
	generate func(llm.CompletionRequest) (string, error)
	// hangIntent 让意图分类一直阻塞到 ctx 结束
	hangIntent bool
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	var fn func(llm.CompletionRequest) (string, error)
	switch req.System {
	case expansionSystemPrompt:
		fn = f.expand
	case intentSystemPrompt:
		if f.hangIntent {
			<-ctx.Done()
			return "", ctx.Err()
		}
		fn = f.intent
	default:
		fn = f.generate
	}
	if fn == nil {
		return "", errors.New("not configured")
	}
	return fn(req)
}

func (f *fakeLLM) callsWith(system string) []llm.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []llm.CompletionRequest
	for _, c := range f.calls {
		if c.System == system {
			out = append(out, c)
		}
	}
	return out
}

type fakeEmbedder struct {
	vector []float32
	err    error
	delay  time.Duration
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, _ string) ([]float32, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

// fakeCorpus 是内存版 CorpusStore，全文检索按大小写不敏感的子串匹配。
type fakeCorpus struct {
	units     []model.EvidenceUnit
	scores    map[string]float64
	analyses  []model.AnalysisRecord
	vectorErr error
	textErr   error
	delay     time.Duration

	mu        sync.Mutex
	textTerms []string
}

func (f *fakeCorpus) wait(ctx context.Context) error {
	if f.delay == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.delay):
		return nil
	}
}

func (f *fakeCorpus) SearchByVector(ctx context.Context, _ uint, _ []float32, k int) ([]model.ScoredUnit, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	var out []model.ScoredUnit
	for _, u := range f.units {
		if s, ok := f.scores[u.ID]; ok {
			out = append(out, model.ScoredUnit{Unit: u, Score: s})
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (f *fakeCorpus) SearchByTerms(ctx context.Context, _ uint, terms []string, limit int) ([]model.EvidenceUnit, error) {
	f.mu.Lock()
	f.textTerms = append([]string(nil), terms...)
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.textErr != nil {
		return nil, f.textErr
	}
	var out []model.EvidenceUnit
	for _, u := range f.units {
		if containsAny(u.Text, terms) {
			out = append(out, u)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeCorpus) SearchAnalyses(ctx context.Context, _ uint, terms []string, limit int) ([]model.AnalysisRecord, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	var out []model.AnalysisRecord
	for _, a := range f.analyses {
		if containsAny(a.SearchText(), terms) {
			out = append(out, a)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func containsAny(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, t := range terms {
		if strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

type fakeLegal struct {
	semantic    []model.LegalContext
	semanticErr error
	text        []model.LegalContext
	textErr     error
	textCalls   int
}

func (f *fakeLegal) SemanticSearch(context.Context, []float32, string, int) ([]model.LegalContext, error) {
	return f.semantic, f.semanticErr
}

func (f *fakeLegal) TextSearch(context.Context, []string, string, int) ([]model.LegalContext, error) {
	f.textCalls++
	return f.text, f.textErr
}

type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memoryCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[key] = value
	return nil
}

func testExpansionConfig() config.ExpansionConfig {
	return config.ExpansionConfig{ShortQueryThreshold: 15, TimeoutMS: 1000, CacheTTLMinutes: 60}
}

func testRetrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		DefaultMaxResults:    10,
		MaxResultsCap:        50,
		DefaultMinRelevance:  0.5,
		StrategyTimeoutMS:    1000,
		LexicalBaselineScore: 0.5,
		MinTermLength:        3,
	}
}

func testExcerptConfig() config.ExcerptConfig {
	return config.ExcerptConfig{Window: 300, Lead: 100, Ellipsis: "...", HighlightStart: "<mark>", HighlightEnd: "</mark>"}
}

func testAnswerConfig() config.AnswerConfig {
	return config.AnswerConfig{
		ContextLimit:         6,
		EvidenceLimit:        5,
		MinLegalSimilarity:   0.5,
		TokenBudget:          0,
		DefaultFreshnessDays: 30,
		EvidenceBonus:        0.1,
		IntentTimeoutMS:      1000,
		ContextTimeoutMS:     1000,
		GenerationTimeoutMS:  1000,
	}
}

func searchQuery(text string) model.Query {
	return model.Query{Text: text, UserID: 7, Mode: model.ModeSearch, MaxResults: 10, MinRelevance: 0.5, IncludeAnalysis: true}
}
