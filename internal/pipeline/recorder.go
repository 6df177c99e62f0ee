package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"evidence-rag-go/internal/model"
	"evidence-rag-go/pkg/log"
	"evidence-rag-go/pkg/metrics"
)

// QualitySink 接收只追加的质量记录。
type QualitySink interface {
	Append(ctx context.Context, rec model.QualityRecord) error
}

const sinkTimeout = 10 * time.Second

// Recorder 异步持久化质量记录。Record 永不阻塞调用方，池满时直接丢弃。
type Recorder struct {
	pool    *ants.Pool
	sink    QualitySink
	metrics metrics.Collector
	wg      sync.WaitGroup
}

// NewRecorder 创建带固定 worker 数的非阻塞记录器。
func NewRecorder(sink QualitySink, collector metrics.Collector, workers int) (*Recorder, error) {
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create recorder pool: %w", err)
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &Recorder{pool: pool, sink: sink, metrics: collector}, nil
}

// Record 提交一条记录。任何失败都只记录日志。
func (r *Recorder) Record(rec model.QualityRecord) {
	r.wg.Add(1)
	err := r.pool.Submit(func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()
		if err := r.sink.Append(ctx, rec); err != nil {
			r.metrics.ObserveQualityRecord(metrics.QualityFailed)
			log.Warnf("[Recorder] 写入质量记录失败, id: %s, err: %v", rec.ID, err)
			return
		}
		r.metrics.ObserveQualityRecord(metrics.QualityStored)
	})
	if err != nil {
		r.wg.Done()
		r.metrics.ObserveQualityRecord(metrics.QualityDropped)
		if errors.Is(err, ants.ErrPoolOverload) {
			log.Warnf("[Recorder] 记录池已满, 丢弃质量记录 id: %s", rec.ID)
			return
		}
		log.Warnf("[Recorder] 提交质量记录失败, id: %s, err: %v", rec.ID, err)
	}
}

// Close 等待已提交的记录写完后释放 worker 池。
func (r *Recorder) Close() {
	r.wg.Wait()
	r.pool.Release()
}

// NewQualityRecord 根据回答构建质量记录快照。
func NewQualityRecord(q model.Query, answer model.GroundedAnswer, evidenceCount int, now time.Time) model.QualityRecord {
	citations, err := json.Marshal(answer.Citations)
	if err != nil {
		citations = []byte("[]")
	}
	return model.QualityRecord{
		ID:              uuid.NewString(),
		UserID:          q.UserID,
		Query:           q.Text,
		Answer:          answer.Answer,
		Citations:       string(citations),
		ConfidenceScore: answer.ConfidenceScore,
		SourceFreshness: answer.SourceFreshness,
		CitationHitRate: answer.CitationHitRate,
		Mode:            answer.Mode,
		EvidenceCount:   evidenceCount,
		CreatedAt:       now,
	}
}
