package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evidence-rag-go/internal/model"
	"evidence-rag-go/pkg/metrics"
)

func scenarioCorpus() *fakeCorpus {
	return &fakeCorpus{
		units: []model.EvidenceUnit{
			{ID: "u1", FileName: "diary.txt", Text: "He controls my bank account and checks my phone every day."},
			{ID: "u2", FileName: "notes.txt", Text: "We had dinner with friends on Saturday."},
		},
		scores: map[string]float64{"u1": 0.5, "u2": 0.3},
		analyses: []model.AnalysisRecord{
			{EvidenceID: "u1", Summary: "Pattern of financial control and monitoring", LegalStrength: "8"},
		},
	}
}

func expand(t *testing.T, q model.Query) model.ExpandedQuery {
	t.Helper()
	eq, err := NewExpander(nil, nil, nil, testExpansionConfig()).Expand(context.Background(), q, nil)
	require.NoError(t, err)
	return eq
}

func sources(hits []model.SearchHit) map[model.HitSource]int {
	out := map[model.HitSource]int{}
	for _, h := range hits {
		out[h.Source]++
	}
	return out
}

func TestRetrieve_AllStrategies(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{vector: []float32{1}}, scenarioCorpus(), nil, testRetrievalConfig())
	q := searchQuery("financial control and monitoring")
	q.MinRelevance = 0.4

	hits, err := r.Retrieve(context.Background(), expand(t, q), NewTrace(nil))
	require.NoError(t, err)

	got := sources(hits)
	assert.Equal(t, 1, got[model.SourceVector])
	assert.Equal(t, 1, got[model.SourceLexical])
	assert.Equal(t, 1, got[model.SourceAnalysis])
	for _, h := range hits {
		switch h.Source {
		case model.SourceLexical:
			assert.Equal(t, "u1", h.Unit.ID)
			assert.InDelta(t, 0.5, h.Score, 1e-9)
			assert.Contains(t, h.Concepts, "financial control")
			assert.Contains(t, h.Concepts, "monitoring")
		case model.SourceAnalysis:
			assert.InDelta(t, 0.8, h.Score, 1e-9)
		}
	}
}

func TestRetrieve_MinRelevanceFiltersVectorHits(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{vector: []float32{1}}, scenarioCorpus(), nil, testRetrievalConfig())
	q := searchQuery("financial control and monitoring")
	q.MinRelevance = 0.9

	hits, err := r.Retrieve(context.Background(), expand(t, q), NewTrace(nil))
	require.NoError(t, err)
	got := sources(hits)
	assert.Zero(t, got[model.SourceVector])
	assert.NotZero(t, got[model.SourceLexical])
}

func TestRetrieve_EmbeddingFailureDegrades(t *testing.T) {
	collector := metrics.NewPrometheus("evidence_test")
	r := NewRetriever(&fakeEmbedder{err: errors.New("503")}, scenarioCorpus(), collector, testRetrievalConfig())
	trace := NewTrace(nil)

	hits, err := r.Retrieve(context.Background(), expand(t, searchQuery("financial control and monitoring")), trace)
	require.NoError(t, err)
	got := sources(hits)
	assert.Zero(t, got[model.SourceVector])
	assert.Equal(t, 1, got[model.SourceLexical])
	assert.Equal(t, 1, got[model.SourceAnalysis])
	assert.Contains(t, strings.Join(trace.Steps(), "\n"), "Vector search unavailable")
}

func TestRetrieve_AllStrategiesFailingStillSucceeds(t *testing.T) {
	corpus := &fakeCorpus{vectorErr: errors.New("es down"), textErr: errors.New("es down")}
	r := NewRetriever(&fakeEmbedder{vector: []float32{1}}, corpus, nil, testRetrievalConfig())
	hits, err := r.Retrieve(context.Background(), expand(t, searchQuery("monitoring")), NewTrace(nil))
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRetrieve_DropsShortTerms(t *testing.T) {
	corpus := scenarioCorpus()
	r := NewRetriever(&fakeEmbedder{vector: []float32{1}}, corpus, nil, testRetrievalConfig())
	eq := model.NewExpandedQuery(searchQuery("ab"), []string{"ab", "gps", "x"}, nil, nil)

	_, err := r.Retrieve(context.Background(), eq, NewTrace(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"gps"}, corpus.textTerms)
}

func TestRetrieve_SkipsAnalysisWhenNotRequested(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{vector: []float32{1}}, scenarioCorpus(), nil, testRetrievalConfig())
	q := searchQuery("financial control and monitoring")
	q.IncludeAnalysis = false
	trace := NewTrace(nil)

	hits, err := r.Retrieve(context.Background(), expand(t, q), trace)
	require.NoError(t, err)
	assert.Zero(t, sources(hits)[model.SourceAnalysis])
	assert.Contains(t, strings.Join(trace.Steps(), "\n"), "Analysis search skipped")
}

func TestRetrieve_StrategyTimeout(t *testing.T) {
	cfg := testRetrievalConfig()
	cfg.StrategyTimeoutMS = 20
	r := NewRetriever(&fakeEmbedder{vector: []float32{1}, delay: time.Second}, scenarioCorpus(), nil, cfg)

	start := time.Now()
	hits, err := r.Retrieve(context.Background(), expand(t, searchQuery("financial control and monitoring")), NewTrace(nil))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Zero(t, sources(hits)[model.SourceVector])
	assert.NotZero(t, sources(hits)[model.SourceLexical])
}

func TestRetrieve_CancellationDiscardsPartialResults(t *testing.T) {
	corpus := scenarioCorpus()
	corpus.delay = time.Second
	r := NewRetriever(&fakeEmbedder{vector: []float32{1}, delay: time.Second}, corpus, nil, testRetrievalConfig())
	eq := expand(t, searchQuery("financial control and monitoring"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	hits, err := r.Retrieve(ctx, eq, NewTrace(nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, hits)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRetrieve_AnonymousSkipsUserCorpus(t *testing.T) {
	corpus := scenarioCorpus()
	r := NewRetriever(&fakeEmbedder{vector: []float32{1}}, corpus, nil, testRetrievalConfig())
	q := searchQuery("financial control")
	q.UserID = model.AnonymousUserID

	hits, err := r.Retrieve(context.Background(), expand(t, q), NewTrace(nil))
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Nil(t, corpus.textTerms)
}

type panickingCorpus struct{ *fakeCorpus }

func (panickingCorpus) SearchAnalyses(context.Context, uint, []string, int) ([]model.AnalysisRecord, error) {
	panic("boom")
}

func TestRetrieve_PanicIsContained(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{vector: []float32{1}}, panickingCorpus{scenarioCorpus()}, nil, testRetrievalConfig())
	hits, err := r.Retrieve(context.Background(), expand(t, searchQuery("financial control and monitoring")), NewTrace(nil))
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
	assert.Zero(t, sources(hits)[model.SourceAnalysis])
}

func TestNormalizeLegalStrength(t *testing.T) {
	tests := map[string]float64{
		"0.8":      0.8,
		"8":        0.8,
		"85":       0.85,
		"7/10":     0.7,
		"80%":      0.8,
		"Strong":   0.9,
		"moderate": 0.6,
		"weak":     0.3,
		"":         0.5,
		"unclear":  0.5,
		"250":      1.0,
		"-3":       0.0,
	}
	for raw, want := range tests {
		assert.InDelta(t, want, NormalizeLegalStrength(raw), 1e-9, raw)
	}
}
