package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"evidence-rag-go/internal/model"
)

func TestCitationHitRate_NoTriggersDefaultsToOne(t *testing.T) {
	assert.Equal(t, 1.0, CitationHitRate("You may want to speak with a support service.", nil))
	assert.Equal(t, 1.0, CitationHitRate("", []model.Citation{{Short: "s 1"}}))
}

func TestCitationHitRate_LawyerScenario(t *testing.T) {
	citations := []model.Citation{{Short: "s 61EA Crimes Act 1900 (NSW)", Full: "Crimes Act 1900 (NSW) s 61EA"}}
	answer := "Abusive behaviour towards an intimate partner is an offence under s 61EA Crimes Act 1900 (NSW). " +
		"The prosecution must prove a course of conduct."
	assert.InDelta(t, 0.5, CitationHitRate(answer, citations), 1e-9)
}

func TestCitationHitRate_WordBoundariesAndClamp(t *testing.T) {
	// "understand" 与 "required" 不计为触发词
	assert.Equal(t, 1.0, CitationHitRate("I understand this is required.", nil))

	citations := []model.Citation{{Short: "A"}, {Short: "B"}, {Short: "C"}}
	assert.Equal(t, 1.0, CitationHitRate("Under A, B and C.", citations))
	assert.InDelta(t, 0.0, CitationHitRate("You must act pursuant to the law.", citations), 1e-9)
}

func TestSourceFreshness(t *testing.T) {
	now := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	tenDaysAgo := now.AddDate(0, 0, -10)
	thirtyDaysAgo := now.AddDate(0, 0, -30)

	items := []model.LegalContext{
		{VerifiedAt: &tenDaysAgo, CreatedAt: &thirtyDaysAgo},
		{CreatedAt: &thirtyDaysAgo},
		{},
	}
	assert.InDelta(t, 20.0, SourceFreshness(items, now, 30), 1e-9)
	assert.InDelta(t, 30.0, SourceFreshness([]model.LegalContext{{}}, now, 30), 1e-9)
	assert.InDelta(t, 30.0, SourceFreshness(nil, now, 30), 1e-9)
}

func TestConfidenceScore(t *testing.T) {
	items := []model.LegalContext{{Score: 0.8}, {Score: 0.6}}
	assert.InDelta(t, 0.7, ConfidenceScore(items, false, 0.1), 1e-9)
	assert.InDelta(t, 0.8, ConfidenceScore(items, true, 0.1), 1e-9)
	assert.InDelta(t, 1.0, ConfidenceScore([]model.LegalContext{{Score: 0.95}}, true, 0.1), 1e-9)
	assert.Equal(t, 0.0, ConfidenceScore(nil, true, 0.1))
}

func TestExtractCitations_DedupsByShortForm(t *testing.T) {
	items := []model.LegalContext{
		{Jurisdiction: "NSW", Score: 0.9, Citations: []model.Citation{{Short: "s 61EA", Full: "Crimes Act s 61EA"}}},
		{Jurisdiction: "NSW", Score: 0.7, Citations: []model.Citation{{Short: "s 61EA"}, {Short: "s 13"}}},
	}
	got := extractCitations(items)
	assert.Len(t, got, 2)
	assert.Equal(t, "NSW", got[0].Jurisdiction)
	assert.InDelta(t, 0.9, got[0].Confidence, 1e-9)
	assert.Equal(t, "s 13", got[1].Short)
}
