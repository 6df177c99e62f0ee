package service

import (
	"context"
	"strings"
	"time"

	"evidence-rag-go/internal/config"
	"evidence-rag-go/internal/model"
	"evidence-rag-go/internal/pipeline"
	"evidence-rag-go/pkg/log"
	"evidence-rag-go/pkg/metrics"
)

// AnswerRequest 是问答模式的请求体。mode 为空时按 user 处理。
type AnswerRequest struct {
	Query           string `json:"query"`
	IncludeEvidence bool   `json:"include_evidence,omitempty"`
	Mode            string `json:"mode"`
	Jurisdiction    string `json:"jurisdiction,omitempty"`
	MaxResults      *int   `json:"max_results,omitempty"`
}

// AnswerService 接口定义了问答操作。
type AnswerService interface {
	// Answer 返回有据回答。onStep 可为 nil，非 nil 时在单独的 goroutine 中按顺序收到流水线进度，
	// Answer 返回前已排队的进度全部送达；积压过多时部分进度不推送。
	Answer(ctx context.Context, userID uint, req AnswerRequest, onStep func(string)) (*model.GroundedAnswer, error)
}

type answerService struct {
	assembler *pipeline.Assembler
	recorder  *pipeline.Recorder
	metrics   metrics.Collector
	cfg       config.RetrievalConfig
	now       func() time.Time
}

// NewAnswerService 创建一个新的 AnswerService 实例。recorder 为 nil 时不记录质量数据。
func NewAnswerService(assembler *pipeline.Assembler, recorder *pipeline.Recorder, collector metrics.Collector, cfg config.RetrievalConfig) AnswerService {
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &answerService{
		assembler: assembler,
		recorder:  recorder,
		metrics:   collector,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *answerService) Answer(ctx context.Context, userID uint, req AnswerRequest, onStep func(string)) (answer *model.GroundedAnswer, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveRequest(string(model.ModeQuestionAnswer), time.Since(start), err) }()

	maxResults, err := resolveMaxResults(req.MaxResults, s.cfg)
	if err != nil {
		return nil, err
	}
	style := model.AnswerStyle(strings.ToLower(strings.TrimSpace(req.Mode)))
	if style == "" {
		style = model.StyleUser
	}
	q := model.Query{
		Text:            req.Query,
		UserID:          userID,
		Mode:            model.ModeQuestionAnswer,
		MaxResults:      maxResults,
		MinRelevance:    s.cfg.DefaultMinRelevance,
		IncludeAnalysis: true,
	}
	log.Infof("[AnswerService] 开始问答, user: %d, mode: %s, include_evidence: %t", userID, style, req.IncludeEvidence)

	trace := pipeline.NewTrace(onStep)
	// 返回前推送完已排队的进度，answer 帧总在 step 帧之后
	defer trace.Close()
	result, err := s.assembler.Answer(ctx, pipeline.AnswerRequest{
		Query:           q,
		Style:           style,
		IncludeEvidence: req.IncludeEvidence,
		Jurisdiction:    strings.TrimSpace(req.Jurisdiction),
	}, trace)
	if err != nil {
		log.Warnf("[AnswerService] 问答失败, user: %d, err: %v", userID, err)
		return nil, err
	}

	// 质量记录异步写入，不等待
	if s.recorder != nil {
		s.recorder.Record(pipeline.NewQualityRecord(q, result.Answer, result.EvidenceCount, s.now()))
	}
	log.Infof("[AnswerService] 问答完成, user: %d, 耗时: %s", userID, time.Since(start))
	return &result.Answer, nil
}
