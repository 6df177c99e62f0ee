package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evidence-rag-go/internal/model"
	"evidence-rag-go/internal/pipeline"
)

type answerFixture struct {
	*searchFixture
	legal *memoryLegal
	sink  *memorySink
}

func newAnswerFixture() *answerFixture {
	f := &answerFixture{
		searchFixture: newSearchFixture(),
		legal:         &memoryLegal{items: []model.LegalContext{legalSource(0.8)}},
		sink:          &memorySink{},
	}
	f.llm.intent = `{"category":"criminal offence","concepts":["coercive control"],"citation_types":["statute"]}`
	f.llm.answer = "Financial control can be an offence under s 54D Crimes Act 1900 (NSW). This is general legal information, not legal advice."
	return f
}

// service 返回问答服务以及等待记录落地的关闭函数。
func (f *answerFixture) service(t *testing.T) (AnswerService, func()) {
	t.Helper()
	expander, retriever, excerpts := f.pipelineParts()
	assembler := pipeline.NewAssembler(pipeline.AssemblerDeps{
		AI:        f.llm,
		Embedder:  f.embedder,
		Legal:     f.legal,
		Expander:  expander,
		Retriever: retriever,
		Excerpts:  excerpts,
	}, testAnswer)
	recorder, err := pipeline.NewRecorder(f.sink, nil, 2)
	require.NoError(t, err)
	return NewAnswerService(assembler, recorder, nil, testRetrieval), recorder.Close
}

func TestAnswer_RecordsQualitySnapshot(t *testing.T) {
	f := newAnswerFixture()
	svc, closeRecorder := f.service(t)

	var steps []string
	answer, err := svc.Answer(context.Background(), 7, AnswerRequest{
		Query:           "is financial control a crime?",
		IncludeEvidence: true,
		Mode:            "user",
	}, func(s string) { steps = append(steps, s) })
	require.NoError(t, err)
	closeRecorder()

	assert.Equal(t, model.StyleUser, answer.Mode)
	require.Len(t, answer.Citations, 1)
	assert.InDelta(t, 1.0, answer.CitationHitRate, 1e-9)
	assert.InDelta(t, 0.9, answer.ConfidenceScore, 1e-9)
	assert.NotEmpty(t, answer.EvidenceConnections)
	assert.NotEmpty(t, steps)

	records := f.sink.all()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, uint(7), rec.UserID)
	assert.Equal(t, "is financial control a crime?", rec.Query)
	assert.Equal(t, answer.Answer, rec.Answer)
	assert.Equal(t, model.StyleUser, rec.Mode)
	assert.Positive(t, rec.EvidenceCount)
	assert.Contains(t, rec.Citations, "s 54D Crimes Act 1900 (NSW)")
}

func TestAnswer_DefaultsToUserMode(t *testing.T) {
	f := newAnswerFixture()
	svc, closeRecorder := f.service(t)
	defer closeRecorder()

	answer, err := svc.Answer(context.Background(), model.AnonymousUserID, AnswerRequest{Query: "what is an AVO?"}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StyleUser, answer.Mode)
	assert.Empty(t, answer.EvidenceConnections)
	// 无证据时不加分
	assert.InDelta(t, 0.8, answer.ConfidenceScore, 1e-9)
}

func TestAnswer_LawyerModeCaseInsensitive(t *testing.T) {
	f := newAnswerFixture()
	svc, closeRecorder := f.service(t)
	defer closeRecorder()

	answer, err := svc.Answer(context.Background(), 7, AnswerRequest{Query: "elements of s 54D", Mode: " Lawyer "}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StyleLawyer, answer.Mode)
}

func TestAnswer_InvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		req  AnswerRequest
	}{
		{"empty query", AnswerRequest{Query: " ", Mode: "user"}},
		{"unknown mode", AnswerRequest{Query: "avo", Mode: "judge"}},
		{"bad max_results", AnswerRequest{Query: "avo", Mode: "user", MaxResults: intPtr(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAnswerFixture()
			svc, closeRecorder := f.service(t)
			_, err := svc.Answer(context.Background(), 7, tt.req, nil)
			closeRecorder()
			assert.ErrorIs(t, err, pipeline.ErrInvalidQuery)
			assert.Empty(t, f.sink.all())
		})
	}
}

func TestAnswer_GenerationFailureIsNotRecorded(t *testing.T) {
	f := newAnswerFixture()
	f.llm.answerErr = errors.New("all providers failed")
	svc, closeRecorder := f.service(t)

	_, err := svc.Answer(context.Background(), 7, AnswerRequest{Query: "is financial control a crime?", Mode: "user"}, nil)
	closeRecorder()

	require.ErrorIs(t, err, pipeline.ErrGenerationFailed)
	var genErr *pipeline.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, "generation", genErr.Stage)
	assert.Empty(t, f.sink.all())
}

func TestAnswer_NoLegalContextFails(t *testing.T) {
	f := newAnswerFixture()
	f.legal.items = nil
	svc, closeRecorder := f.service(t)
	defer closeRecorder()

	_, err := svc.Answer(context.Background(), 7, AnswerRequest{Query: "is financial control a crime?"}, nil)
	assert.ErrorIs(t, err, pipeline.ErrGenerationFailed)
}
