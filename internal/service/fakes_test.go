package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"evidence-rag-go/internal/config"
	"evidence-rag-go/internal/model"
	"evidence-rag-go/internal/pipeline"
	"evidence-rag-go/pkg/llm"
)

// stubLLM 按系统提示词区分扩展、意图分类和生成三类调用。
type stubLLM struct {
	expansion string
	intent    string
	answer    string
	answerErr error
}

func (s *stubLLM) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	switch {
	case strings.HasPrefix(req.System, "You expand"):
		return s.expansion, nil
	case strings.HasPrefix(req.System, "Classify"):
		return s.intent, nil
	default:
		return s.answer, s.answerErr
	}
}

type stubEmbedder struct {
	err error
}

func (s stubEmbedder) CreateEmbedding(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// memoryEvidence 是内存版证据仓库：向量检索返回预置分数，全文检索按子串匹配。
type memoryEvidence struct {
	units  []model.EvidenceUnit
	scores map[string]float64
}

func (m *memoryEvidence) SearchByVector(_ context.Context, _ uint, _ []float32, k int) ([]model.ScoredUnit, error) {
	var out []model.ScoredUnit
	for _, u := range m.units {
		if s, ok := m.scores[u.ID]; ok {
			out = append(out, model.ScoredUnit{Unit: u, Score: s})
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *memoryEvidence) SearchByTerms(_ context.Context, _ uint, terms []string, limit int) ([]model.EvidenceUnit, error) {
	var out []model.EvidenceUnit
	for _, u := range m.units {
		if matchesAny(u.Text, terms) {
			out = append(out, u)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryAnalyses struct {
	records []model.AnalysisRecord
}

func (m *memoryAnalyses) SearchAnalyses(_ context.Context, _ uint, terms []string, limit int) ([]model.AnalysisRecord, error) {
	var out []model.AnalysisRecord
	for _, r := range m.records {
		if matchesAny(r.SearchText(), terms) {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesAny(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, t := range terms {
		if strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

type memoryLegal struct {
	items []model.LegalContext
}

func (m *memoryLegal) SemanticSearch(context.Context, []float32, string, int) ([]model.LegalContext, error) {
	return m.items, nil
}

func (m *memoryLegal) TextSearch(context.Context, []string, string, int) ([]model.LegalContext, error) {
	return nil, errors.New("text index offline")
}

type memorySink struct {
	mu      sync.Mutex
	records []model.QualityRecord
}

func (m *memorySink) Append(_ context.Context, rec model.QualityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memorySink) all() []model.QualityRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.QualityRecord(nil), m.records...)
}

type fakePresigner struct {
	calls int
	err   error
}

func (f *fakePresigner) PresignedURL(_ context.Context, fileMD5, fileName string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "https://files.local/" + fileMD5 + "/" + fileName, nil
}

var (
	testRetrieval = config.RetrievalConfig{
		DefaultMaxResults:    10,
		MaxResultsCap:        20,
		DefaultMinRelevance:  0.5,
		StrategyTimeoutMS:    1000,
		LexicalBaselineScore: 0.5,
		MinTermLength:        3,
	}
	testExpansion = config.ExpansionConfig{ShortQueryThreshold: 15, TimeoutMS: 1000, CacheTTLMinutes: 10}
	testExcerpt   = config.ExcerptConfig{Window: 300, Lead: 100, Ellipsis: "...", HighlightStart: "<mark>", HighlightEnd: "</mark>"}
	testAnswer    = config.AnswerConfig{
		ContextLimit:         6,
		EvidenceLimit:        5,
		MinLegalSimilarity:   0.5,
		DefaultFreshnessDays: 30,
		EvidenceBonus:        0.1,
		IntentTimeoutMS:      1000,
		ContextTimeoutMS:     1000,
		GenerationTimeoutMS:  1000,
	}
)

func fixtureEvidence() *memoryEvidence {
	return &memoryEvidence{
		units: []model.EvidenceUnit{
			{ID: "u1", FileMD5: "md5a", FileName: "messages.pdf", Text: "On 12 March 2024 my partner said he controls my bank account and checks my phone every day."},
			{ID: "u2", FileMD5: "md5a", FileName: "messages.pdf", Text: "He tracks my location with GPS and reads my messages."},
			{ID: "u3", FileMD5: "md5b", FileName: "diary.txt", Text: "We went to the park on Sunday."},
		},
		scores: map[string]float64{"u1": 0.82, "u2": 0.5, "u3": 0.2},
	}
}

func fixtureAnalyses() *memoryAnalyses {
	return &memoryAnalyses{records: []model.AnalysisRecord{{
		ID:                1,
		UserID:            7,
		EvidenceID:        "a1",
		FileName:          "bank.csv",
		Summary:           "Pattern of financial control: all income redirected.",
		LegalSignificance: "Supports economic abuse finding.",
		LegalStrength:     "moderate",
	}}}
}

type searchFixture struct {
	llm       *stubLLM
	embedder  stubEmbedder
	evidence  *memoryEvidence
	analyses  *memoryAnalyses
	presigner *fakePresigner
}

func newSearchFixture() *searchFixture {
	return &searchFixture{
		llm:       &stubLLM{expansion: `{"concepts":["economic abuse"],"synonyms":["money"],"behavioral_indicators":["gps"]}`},
		evidence:  fixtureEvidence(),
		analyses:  fixtureAnalyses(),
		presigner: &fakePresigner{},
	}
}

func (f *searchFixture) pipelineParts() (*pipeline.Expander, *pipeline.Retriever, *pipeline.ExcerptBuilder) {
	corpus := NewCorpusStore(f.evidence, f.analyses)
	return pipeline.NewExpander(f.llm, nil, nil, testExpansion),
		pipeline.NewRetriever(f.embedder, corpus, nil, testRetrieval),
		pipeline.NewExcerptBuilder(testExcerpt)
}

func (f *searchFixture) service() SearchService {
	expander, retriever, excerpts := f.pipelineParts()
	return NewSearchService(expander, retriever, excerpts, f.presigner, nil, testRetrieval)
}

func legalSource(score float64) model.LegalContext {
	verified := time.Now().AddDate(0, 0, -10)
	return model.LegalContext{
		ID:           "l1",
		Title:        "Abusive behaviour towards intimate partners",
		Text:         "Financial control and monitoring of an intimate partner can form a course of abusive behaviour.",
		Jurisdiction: "NSW",
		Citations:    []model.Citation{{Short: "s 54D Crimes Act 1900 (NSW)"}},
		Score:        score,
		VerifiedAt:   &verified,
	}
}

func intPtr(n int) *int           { return &n }
func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }
