package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evidence-rag-go/pkg/llm"
)

func TestExpand_RejectsEmptyQuery(t *testing.T) {
	e := NewExpander(nil, nil, nil, testExpansionConfig())
	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := e.Expand(context.Background(), searchQuery(text), nil)
		assert.ErrorIs(t, err, ErrInvalidQuery)
	}
}

func TestExpand_FinancialControlAndMonitoring(t *testing.T) {
	e := NewExpander(nil, nil, nil, testExpansionConfig())
	eq, err := e.Expand(context.Background(), searchQuery("Financial control and monitoring"), NewTrace(nil))
	require.NoError(t, err)

	assert.Contains(t, eq.Concepts, "financial control")
	assert.Contains(t, eq.Concepts, "monitoring")
	assert.Equal(t, "financial control and monitoring", eq.Terms[0])
	assert.Contains(t, eq.Terms, "controls")
	assert.Contains(t, eq.Terms, "checks")
	assert.Contains(t, eq.Terms, "bank account")
}

func TestExpand_DedupsCaseInsensitively(t *testing.T) {
	ai := &fakeLLM{expand: func(llm.CompletionRequest) (string, error) {
		return `{"concepts":["Coercive Control"],"synonyms":["THREATS","Threats","new term"],"behavioral_indicators":["checks"]}`, nil
	}}
	e := NewExpander(ai, nil, nil, testExpansionConfig())
	eq, err := e.Expand(context.Background(), searchQuery("he keeps making threats about money"), NewTrace(nil))
	require.NoError(t, err)

	seen := map[string]int{}
	for _, term := range eq.Terms {
		seen[strings.ToLower(term)]++
	}
	for term, n := range seen {
		assert.Equal(t, 1, n, "term %q duplicated", term)
	}
	assert.Contains(t, eq.Terms, "new term")
	assert.Contains(t, eq.Terms, "Coercive Control")
	// AI 概念只进入检索词，不进入概念集合
	assert.NotContains(t, eq.Concepts, "Coercive Control")
}

func TestExpand_ShortQuerySkipsAI(t *testing.T) {
	ai := &fakeLLM{expand: func(llm.CompletionRequest) (string, error) { return `{}`, nil }}
	e := NewExpander(ai, nil, nil, testExpansionConfig())
	_, err := e.Expand(context.Background(), searchQuery("stalking"), NewTrace(nil))
	require.NoError(t, err)
	assert.Empty(t, ai.callsWith(expansionSystemPrompt))
}

func TestExpand_AIFailureFallsBackToRules(t *testing.T) {
	cases := map[string]func(llm.CompletionRequest) (string, error){
		"transport error": func(llm.CompletionRequest) (string, error) { return "", errors.New("connection refused") },
		"wrong shape":     func(llm.CompletionRequest) (string, error) { return `{"concepts":"not a list"}`, nil },
		"prose":           func(llm.CompletionRequest) (string, error) { return "Sure! Here are some ideas.", nil },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			e := NewExpander(&fakeLLM{expand: fn}, nil, nil, testExpansionConfig())
			trace := NewTrace(nil)
			eq, err := e.Expand(context.Background(), searchQuery("he checks my phone every night"), trace)
			require.NoError(t, err)
			assert.Equal(t, []string{"monitoring"}, eq.Concepts)
			assert.Contains(t, strings.Join(trace.Steps(), "\n"), "AI expansion unavailable")
		})
	}
}

func TestExpand_UsesCache(t *testing.T) {
	calls := 0
	ai := &fakeLLM{expand: func(llm.CompletionRequest) (string, error) {
		calls++
		return `{"concepts":[],"synonyms":["phone tracking"],"behavioral_indicators":[]}`, nil
	}}
	cache := &memoryCache{}
	e := NewExpander(ai, cache, nil, testExpansionConfig())

	q := searchQuery("he checks my phone every night")
	first, err := e.Expand(context.Background(), q, NewTrace(nil))
	require.NoError(t, err)
	second, err := e.Expand(context.Background(), q, NewTrace(nil))
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first.Terms, second.Terms)
	assert.Contains(t, second.Terms, "phone tracking")
}

func TestExpandedQuery_ConceptsIn(t *testing.T) {
	e := NewExpander(nil, nil, nil, testExpansionConfig())
	eq, err := e.Expand(context.Background(), searchQuery("financial control and monitoring"), nil)
	require.NoError(t, err)

	got := eq.ConceptsIn("He controls my bank account and checks my phone")
	assert.Contains(t, got, "financial control")
	assert.Contains(t, got, "monitoring")
	assert.Empty(t, eq.ConceptsIn("we went to the beach"))
}
