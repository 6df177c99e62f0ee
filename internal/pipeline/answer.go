package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"evidence-rag-go/internal/config"
	"evidence-rag-go/internal/model"
	"evidence-rag-go/pkg/embedding"
	"evidence-rag-go/pkg/llm"
	"evidence-rag-go/pkg/log"
	"evidence-rag-go/pkg/metrics"
)

const intentSystemPrompt = `Classify a legal question from a person experiencing domestic or family violence.
Return ONLY a JSON object: {"category": "", "concepts": [], "citation_types": []}.
category is a short label such as "protection orders", "criminal offence", "family law", "tenancy".
citation_types lists the kinds of sources expected, e.g. "statute", "case law", "practice direction".`

var errNoLegalContext = errors.New("no legal context found")

// LegalCorpus 是法律知识库的检索入口，不按用户隔离。
type LegalCorpus interface {
	// SemanticSearch 返回向量最相似的条目，Score 为 [0,1] 相似度。
	SemanticSearch(ctx context.Context, vector []float32, jurisdiction string, k int) ([]model.LegalContext, error)
	// TextSearch 全文检索，Score 为未归一化的相关度。
	TextSearch(ctx context.Context, terms []string, jurisdiction string, limit int) ([]model.LegalContext, error)
}

// AnswerRequest 是问答模式的输入。
type AnswerRequest struct {
	Query           model.Query
	Style           model.AnswerStyle
	IncludeEvidence bool
	Jurisdiction    string
}

// AssemblerDeps 汇集回答组装器依赖的协作方。
type AssemblerDeps struct {
	AI        llm.Client
	Embedder  embedding.Client
	Legal     LegalCorpus
	Expander  *Expander
	Retriever *Retriever
	Excerpts  *ExcerptBuilder
	Metrics   metrics.Collector
	Tokens    TokenCounter
	Now       func() time.Time
}

// Assembler 组装有据回答：意图分类、法律与证据上下文、一次生成、引用与三个质量分数。
type Assembler struct {
	deps AssemblerDeps
	cfg  config.AnswerConfig
}

// NewAssembler 创建回答组装器。
func NewAssembler(deps AssemblerDeps, cfg config.AnswerConfig) *Assembler {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop{}
	}
	if deps.Tokens == nil {
		deps.Tokens = EstimateTokens
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Assembler{deps: deps, cfg: cfg}
}

// AnswerResult 是回答以及记录质量所需的附加信息。
type AnswerResult struct {
	Answer        model.GroundedAnswer
	EvidenceCount int
}

// Answer 生成有据回答。意图分类失败会回退到通用意图；此后任何一步失败都返回 GenerationError。
func (a *Assembler) Answer(ctx context.Context, req AnswerRequest, trace *Trace) (AnswerResult, error) {
	if !req.Style.Valid() {
		return AnswerResult{}, fmt.Errorf("%w: unknown answer mode %q", ErrInvalidQuery, req.Style)
	}
	if _, err := NormalizeQuery(req.Query.Text); err != nil {
		return AnswerResult{}, err
	}

	// 步骤1: 意图分类与概念扩展互不依赖，并发执行
	log.Infof("[Assembler] 步骤1: 意图分类与概念扩展, style: %s", req.Style)
	var (
		intent model.Intent
		eq     model.ExpandedQuery
	)
	g1, g1ctx := errgroup.WithContext(ctx)
	g1.Go(func() error {
		intent = a.classifyIntent(g1ctx, req.Query.Text, trace)
		return nil
	})
	g1.Go(func() error {
		var err error
		eq, err = a.deps.Expander.Expand(g1ctx, req.Query, trace)
		return err
	})
	if err := g1.Wait(); err != nil {
		return AnswerResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return AnswerResult{}, err
	}

	// 步骤2/3: 法律上下文与证据上下文并发获取，各自有超时
	log.Infof("[Assembler] 步骤2: 获取法律上下文与证据上下文")
	var (
		legal    []model.LegalContext
		evidence []model.RenderedResult
	)
	g2, g2ctx := errgroup.WithContext(ctx)
	g2.Go(func() error {
		cctx, cancel := context.WithTimeout(g2ctx, config.Millis(a.cfg.ContextTimeoutMS))
		defer cancel()
		var err error
		legal, err = a.legalContext(cctx, req, eq, intent, trace)
		if err != nil {
			return generationFailed("legal_context", err)
		}
		return nil
	})
	g2.Go(func() error {
		if !req.IncludeEvidence {
			return nil
		}
		if req.Query.Anonymous() {
			trace.Addf("Evidence context skipped: no authenticated user")
			return nil
		}
		cctx, cancel := context.WithTimeout(g2ctx, config.Millis(a.cfg.ContextTimeoutMS))
		defer cancel()
		var err error
		evidence, err = a.evidenceContext(cctx, eq, trace)
		if err != nil {
			return generationFailed("evidence_context", err)
		}
		return nil
	})
	if err := g2.Wait(); err != nil {
		log.Errorf("[Assembler] 获取上下文失败: %v", err)
		return AnswerResult{}, err
	}

	// 步骤4: 在 token 预算内组装唯一一次生成请求
	used := admitLegal(legal, a.cfg.TokenBudget, a.deps.Tokens)
	if len(used) < len(legal) {
		trace.Addf("Token budget admitted %d of %d legal source(s)", len(used), len(legal))
	}
	log.Infof("[Assembler] 步骤3: 调用生成, legal: %d, evidence: %d", len(used), len(evidence))
	gctx, cancel := context.WithTimeout(ctx, config.Millis(a.cfg.GenerationTimeoutMS))
	defer cancel()
	text, err := a.deps.AI.Complete(gctx, llm.CompletionRequest{
		System: stylePrompt(req.Style),
		Prompt: buildAnswerPrompt(req.Query.Text, intent, used, evidence),
	})
	if err != nil {
		return AnswerResult{}, generationFailed("generation", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return AnswerResult{}, generationFailed("generation", errors.New("empty answer"))
	}
	trace.Addf("Generated %s-style answer", req.Style)

	// 步骤5/6: 引用只取自送入生成的上下文，然后计算三个分数
	citations := extractCitations(used)
	answer := model.GroundedAnswer{
		Answer:              text,
		Citations:           citations,
		EvidenceConnections: correlateEvidence(evidence, used, eq),
		ConfidenceScore:     ConfidenceScore(used, len(evidence) > 0, a.cfg.EvidenceBonus),
		SourceFreshness:     SourceFreshness(used, a.deps.Now(), a.cfg.DefaultFreshnessDays),
		CitationHitRate:     CitationHitRate(text, citations),
		Mode:                req.Style,
	}
	a.deps.Metrics.ObserveAnswer(string(req.Style), answer.ConfidenceScore, answer.SourceFreshness, answer.CitationHitRate)
	log.Infof("[Assembler] 回答完成, citations: %d, confidence: %.2f, hit_rate: %.2f", len(citations), answer.ConfidenceScore, answer.CitationHitRate)
	return AnswerResult{Answer: answer, EvidenceCount: len(evidence)}, nil
}

// classifyIntent 失败时回退到通用意图，不中断流程。
func (a *Assembler) classifyIntent(ctx context.Context, query string, trace *Trace) model.Intent {
	ictx, cancel := context.WithTimeout(ctx, config.Millis(a.cfg.IntentTimeoutMS))
	defer cancel()
	raw, err := a.deps.AI.Complete(ictx, llm.CompletionRequest{
		System: intentSystemPrompt,
		Prompt: fmt.Sprintf("Question: %s", query),
		JSON:   true,
	})
	var intent model.Intent
	if err == nil {
		intent, err = parseIntent(raw)
	}
	if err != nil {
		log.Warnf("[Assembler] 意图分类失败, 使用通用意图: %v", err)
		trace.Addf("Intent classification unavailable, using generic intent")
		return model.GenericIntent()
	}
	trace.Addf("Classified question as %q", intent.Category)
	return intent
}

func parseIntent(raw string) (model.Intent, error) {
	var intent model.Intent
	if err := decodeAIJSON(raw, intentSchema, &intent); err != nil {
		return model.Intent{}, err
	}
	if intent.Concepts == nil {
		intent.Concepts = []string{}
	}
	if intent.CitationTypes == nil {
		intent.CitationTypes = []string{}
	}
	return intent, nil
}

// legalContext 先做语义检索，没有结果再退到全文检索；两级回退，不并发。
func (a *Assembler) legalContext(ctx context.Context, req AnswerRequest, eq model.ExpandedQuery, intent model.Intent, trace *Trace) ([]model.LegalContext, error) {
	limit := a.cfg.ContextLimit

	vector, err := a.deps.Embedder.CreateEmbedding(ctx, req.Query.Text)
	if err == nil {
		items, serr := a.deps.Legal.SemanticSearch(ctx, vector, req.Jurisdiction, limit)
		if serr == nil {
			items = filterBySimilarity(items, a.cfg.MinLegalSimilarity)
			if len(items) > 0 {
				trace.Addf("Semantic legal search found %d source(s)", len(items))
				return items, nil
			}
			trace.Addf("Semantic legal search found nothing, falling back to text search")
		} else {
			log.Warnf("[Assembler] 法律语义检索失败, 回退到全文检索: %v", serr)
			trace.Addf("Semantic legal search unavailable, falling back to text search")
		}
	} else {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Warnf("[Assembler] %v: 生成查询向量失败, 回退到全文检索: %v", ErrUpstreamUnavailable, err)
		trace.Addf("Embedding unavailable, falling back to legal text search")
	}

	terms := append(append([]string(nil), eq.Terms...), intent.Concepts...)
	items, err := a.deps.Legal.TextSearch(ctx, terms, req.Jurisdiction, limit)
	if err != nil {
		return nil, fmt.Errorf("legal text search: %w", err)
	}
	if len(items) == 0 {
		return nil, errNoLegalContext
	}
	normalizeByMax(items)
	trace.Addf("Legal text search found %d source(s)", len(items))
	return items, nil
}

// evidenceContext 复用用户语料的检索与融合。
func (a *Assembler) evidenceContext(ctx context.Context, eq model.ExpandedQuery, trace *Trace) ([]model.RenderedResult, error) {
	hits, err := a.deps.Retriever.Retrieve(ctx, eq, trace)
	if err != nil {
		return nil, err
	}
	fused, _ := Fuse(hits, a.cfg.EvidenceLimit)
	trace.Addf("Using %d evidence item(s) as context", len(fused))
	return a.deps.Excerpts.Render(fused, eq.Terms), nil
}

func filterBySimilarity(items []model.LegalContext, threshold float64) []model.LegalContext {
	out := items[:0:0]
	for _, item := range items {
		if item.Score >= threshold {
			out = append(out, item)
		}
	}
	return out
}

// normalizeByMax 把全文检索分数按最大值归一化到 [0,1]。
func normalizeByMax(items []model.LegalContext) {
	var top float64
	for _, item := range items {
		if item.Score > top {
			top = item.Score
		}
	}
	for i := range items {
		if top > 0 {
			items[i].Score = clamp01(items[i].Score / top)
		} else {
			items[i].Score = 0
		}
	}
}
