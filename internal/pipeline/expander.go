package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"evidence-rag-go/internal/config"
	"evidence-rag-go/internal/model"
	"evidence-rag-go/pkg/llm"
	"evidence-rag-go/pkg/log"
	"evidence-rag-go/pkg/metrics"
)

const expansionSystemPrompt = `You expand search queries for a domestic and family violence evidence system.
Return ONLY a JSON object of the form {"concepts": [], "synonyms": [], "behavioral_indicators": []}.
Each array holds short lowercase phrases. No commentary.`

// ExpansionCache 缓存 AI 扩展的原始 JSON。未命中时返回 "" 和 nil。
type ExpansionCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Expander 把原始查询扩展为检索词集合与命中的领域概念。
type Expander struct {
	concepts  []Concept
	ai        llm.Client
	cache     ExpansionCache
	metrics   metrics.Collector
	threshold int
	timeout   time.Duration
	cacheTTL  time.Duration
}

// NewExpander 创建概念扩展器。ai 和 cache 都可以为 nil，此时只做规则扩展。
func NewExpander(ai llm.Client, cache ExpansionCache, collector metrics.Collector, cfg config.ExpansionConfig) *Expander {
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &Expander{
		concepts:  DefaultConcepts(),
		ai:        ai,
		cache:     cache,
		metrics:   collector,
		threshold: cfg.ShortQueryThreshold,
		timeout:   config.Millis(cfg.TimeoutMS),
		cacheTTL:  time.Duration(cfg.CacheTTLMinutes) * time.Minute,
	}
}

// NormalizeQuery 小写并去掉首尾空白，空查询返回 ErrInvalidQuery。
func NormalizeQuery(text string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return "", fmt.Errorf("%w: query must not be empty", ErrInvalidQuery)
	}
	return normalized, nil
}

// Expand 执行规则扩展，长查询再尝试一次 AI 扩展；AI 失败永远不会让请求失败。
func (e *Expander) Expand(ctx context.Context, q model.Query, trace *Trace) (model.ExpandedQuery, error) {
	normalized, err := NormalizeQuery(q.Text)
	if err != nil {
		return model.ExpandedQuery{}, err
	}

	terms := newTermSet()
	terms.add(normalized)

	var matched []string
	conceptTerms := make(map[string][]string)
	for _, c := range e.concepts {
		if !conceptMatches(normalized, c) {
			continue
		}
		matched = append(matched, c.Name)
		conceptTerms[c.Name] = c.Synonyms
		terms.add(c.Name)
		terms.add(c.Synonyms...)
	}
	trace.Addf("Matched %d concept(s) from rule table: %s", len(matched), strings.Join(matched, ", "))

	if len([]rune(normalized)) > e.threshold {
		if exp, ok := e.aiExpand(ctx, normalized, trace); ok {
			added := terms.add(exp.terms()...)
			trace.Addf("AI expansion added %d term(s)", added)
		}
	} else {
		e.metrics.ObserveExpansion(metrics.ExpansionRuleOnly)
	}

	expanded := model.NewExpandedQuery(q, terms.list(), matched, conceptTerms)
	log.Infof("[Expander] 查询扩展完成, concepts: %v, terms: %d", matched, len(expanded.Terms))
	return expanded, nil
}

// aiExpand 只做一次尽力而为的调用，不重试。
func (e *Expander) aiExpand(ctx context.Context, normalized string, trace *Trace) (aiExpansion, bool) {
	if e.ai == nil {
		e.metrics.ObserveExpansion(metrics.ExpansionRuleOnly)
		return aiExpansion{}, false
	}

	key := expansionCacheKey(normalized)
	if e.cache != nil {
		raw, err := e.cache.Get(ctx, key)
		if err != nil {
			log.Warnf("[Expander] 读取扩展缓存失败, 忽略: %v", err)
		} else if raw != "" {
			if exp, err := parseExpansion(raw); err == nil {
				e.metrics.ObserveExpansion(metrics.ExpansionCached)
				trace.Addf("Used cached AI expansion")
				return exp, true
			}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	raw, err := e.ai.Complete(callCtx, llm.CompletionRequest{
		System: expansionSystemPrompt,
		Prompt: fmt.Sprintf("Query: %s", normalized),
		JSON:   true,
	})
	var exp aiExpansion
	if err == nil {
		exp, err = parseExpansion(raw)
	}
	if err != nil {
		e.metrics.ObserveExpansion(metrics.ExpansionDegraded)
		log.Warnf("[Expander] %v, 回退到规则扩展: %v", ErrExpansionDegraded, err)
		trace.Addf("AI expansion unavailable, using rule-based terms only")
		return aiExpansion{}, false
	}

	e.metrics.ObserveExpansion(metrics.ExpansionAI)
	if e.cache != nil {
		if err := e.cache.Set(ctx, key, raw, e.cacheTTL); err != nil {
			log.Warnf("[Expander] 写入扩展缓存失败, 忽略: %v", err)
		}
	}
	return exp, true
}

func conceptMatches(normalized string, c Concept) bool {
	if strings.Contains(normalized, c.Name) {
		return true
	}
	for _, s := range c.Synonyms {
		if strings.Contains(normalized, s) {
			return true
		}
	}
	return false
}

func expansionCacheKey(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return "expansion:" + hex.EncodeToString(sum[:])
}

// termSet 是保持插入顺序、大小写不敏感去重的词集合。
type termSet struct {
	seen  map[string]struct{}
	terms []string
}

func newTermSet() *termSet {
	return &termSet{seen: make(map[string]struct{})}
}

// add 返回实际新增的数量。
func (s *termSet) add(terms ...string) int {
	added := 0
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		s.terms = append(s.terms, t)
		added++
	}
	return added
}

func (s *termSet) list() []string {
	return s.terms
}
