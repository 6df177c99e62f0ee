package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evidence-rag-go/internal/model"
	"evidence-rag-go/pkg/metrics"
)

type memorySink struct {
	mu      sync.Mutex
	records []model.QualityRecord
	err     error
	block   chan struct{}
}

func (s *memorySink) Append(ctx context.Context, rec model.QualityRecord) error {
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func TestRecorder_PersistsAsynchronously(t *testing.T) {
	sink := &memorySink{}
	r, err := NewRecorder(sink, nil, 2)
	require.NoError(t, err)

	answer := model.GroundedAnswer{
		Answer:          "text",
		Citations:       []model.Citation{{Short: "s 61EA"}},
		ConfidenceScore: 0.8,
		CitationHitRate: 0.5,
		SourceFreshness: 12,
		Mode:            model.StyleLawyer,
	}
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	r.Record(NewQualityRecord(model.Query{Text: "q", UserID: 3}, answer, 2, now))
	r.Close()

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "q", rec.Query)
	assert.Equal(t, uint(3), rec.UserID)
	assert.Equal(t, `[{"short":"s 61EA","full":"","jurisdiction":"","confidence":0}]`, rec.Citations)
	assert.Equal(t, 2, rec.EvidenceCount)
	assert.Equal(t, model.StyleLawyer, rec.Mode)
	assert.Equal(t, now, rec.CreatedAt)
}

func TestRecorder_SinkFailureIsSwallowed(t *testing.T) {
	collector := metrics.NewPrometheus("evidence_test")
	r, err := NewRecorder(&memorySink{err: errors.New("kafka down")}, collector, 1)
	require.NoError(t, err)

	assert.NotPanics(t, func() { r.Record(model.QualityRecord{ID: "x"}) })
	r.Close()
}

func TestRecorder_DropsWhenPoolFull(t *testing.T) {
	sink := &memorySink{block: make(chan struct{})}
	r, err := NewRecorder(sink, nil, 1)
	require.NoError(t, err)

	r.Record(model.QualityRecord{ID: "first"})
	// 唯一的 worker 被阻塞，第二条必须立即返回而不是等待
	done := make(chan struct{})
	go func() {
		r.Record(model.QualityRecord{ID: "second"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full pool")
	}
	close(sink.block)
	r.Close()
	assert.LessOrEqual(t, len(sink.records), 2)
}

func TestRecorder_Metrics(t *testing.T) {
	collector := metrics.NewPrometheus("evidence_test")
	r, err := NewRecorder(&memorySink{}, collector, 1)
	require.NoError(t, err)
	r.Record(model.QualityRecord{ID: "a"})
	r.Close()

	n, err := testutil.GatherAndCount(collector.Registry(), "evidence_test_quality_records_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
