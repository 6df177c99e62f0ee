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

type memoryQuality struct {
	records  []model.QualityRecord
	err      error
	gotUser  uint
	gotLimit int
}

func (m *memoryQuality) Append(_ context.Context, rec model.QualityRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryQuality) ListRecent(_ context.Context, userID uint, limit int) ([]model.QualityRecord, error) {
	m.gotUser, m.gotLimit = userID, limit
	if m.err != nil {
		return nil, m.err
	}
	return m.records, nil
}

func TestQualityService_Recent(t *testing.T) {
	repo := &memoryQuality{records: []model.QualityRecord{{ID: "q1", UserID: 7}}}
	svc := NewQualityService(repo)

	records, err := svc.Recent(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, uint(7), repo.gotUser)
	assert.Equal(t, defaultQualityLimit, repo.gotLimit)

	_, err = svc.Recent(context.Background(), 7, intPtr(1000))
	require.NoError(t, err)
	assert.Equal(t, maxQualityLimit, repo.gotLimit)
}

func TestQualityService_EmptyIsNotNil(t *testing.T) {
	records, err := NewQualityService(&memoryQuality{}).Recent(context.Background(), 7, intPtr(5))
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestQualityService_InvalidLimit(t *testing.T) {
	_, err := NewQualityService(&memoryQuality{}).Recent(context.Background(), 7, intPtr(0))
	assert.ErrorIs(t, err, pipeline.ErrInvalidQuery)
}

func TestQualityService_StoreFailure(t *testing.T) {
	down := errors.New("mysql down")
	_, err := NewQualityService(&memoryQuality{err: down}).Recent(context.Background(), 7, nil)
	assert.ErrorIs(t, err, down)
	assert.NotErrorIs(t, err, pipeline.ErrInvalidQuery)
}
