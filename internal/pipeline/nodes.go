package pipeline

import (
	"context"
	"time"

	"github.com/ragbox/core-rag/internal/events"
	"github.com/ragbox/core-rag/internal/generator"
	"github.com/ragbox/core-rag/internal/grader"
	"github.com/ragbox/core-rag/internal/guardrails"
	"github.com/ragbox/core-rag/internal/langdetect"
	"github.com/ragbox/core-rag/internal/model"
	"github.com/ragbox/core-rag/internal/retrieval"
	"github.com/ragbox/core-rag/internal/telemetry"
)

// nodeValidateInput applies C3's input guardrail. A rejection here is
// terminal and never retried, per spec.md §7's guardrail_input row. No
// node_start/node_end pair is emitted on rejection, per spec.md §8
// scenario S3: a prompt-injection rejection produces only the terminal
// error event.
func (r *Runtime) nodeValidateInput(ctx context.Context, st *runState, sink events.Sink) (guardrails.InputResult, model.ErrorCategory, bool) {
	started := time.Now()

	res := guardrails.ValidateInput(st.req.QueryText, 0)
	r.metrics.NodeObserved(string(model.NodeValidateInput), time.Since(started))

	if res.Rejected {
		_ = sink.Send(model.NewErrorEvent(model.ErrGuardrailInput, "input rejected", res.Reason))
		r.telemetry.NodeComplete(ctx, model.NodeValidateInput, st.threadID, len(st.req.QueryText), time.Since(started), telemetry.NodeFields{"rejected": true, "reason": res.Reason})
		r.metrics.NodeFailed(string(model.NodeValidateInput), string(model.ErrGuardrailInput))
		return res, model.ErrGuardrailInput, false
	}

	_ = sink.Send(model.NewNodeStartEvent(model.NodeValidateInput))
	_ = sink.Send(model.NewNodeEndEvent(model.NodeValidateInput, map[string]any{"warnings": res.Warnings}))
	r.telemetry.NodeComplete(ctx, model.NodeValidateInput, st.threadID, len(res.MaskedText), time.Since(started), nil)
	return res, "", true
}

// nodeDetectLanguage runs C2's heuristic classifier. Detection failure is a
// strictly auxiliary step per spec.md §7: it degrades to English rather
// than aborting the request.
func (r *Runtime) nodeDetectLanguage(ctx context.Context, st *runState) model.Language {
	if st.req.RuntimeContext.LanguagePreference != model.LangAuto && st.req.RuntimeContext.LanguagePreference != "" {
		return st.req.RuntimeContext.LanguagePreference
	}

	result := langdetect.Detect(st.maskedQuery)
	if result.Language == model.LangUnknown {
		r.telemetry.Degraded(ctx, st.threadID, "detect_language", "unresolved, falling back to english; candidate="+string(result.Candidate))
		return model.LangEnglish
	}
	return result.Language
}

// nodeRetrieve runs C4. Transient Qdrant failures are retried by the
// adapter's own error handling; exhaustion here becomes
// retrieval_unavailable per spec.md §7, leaving session state unmodified.
func (r *Runtime) nodeRetrieve(ctx context.Context, st *runState, sink events.Sink) ([]model.Document, model.ErrorCategory, bool) {
	started := time.Now()
	_ = sink.Send(model.NewNodeStartEvent(model.NodeRetrieve))

	queryText := st.maskedQuery
	vectors, err := r.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return r.failNode(ctx, st, sink, model.NodeRetrieve, model.ErrRetrievalUnavailable, "embedding failed", err, started)
	}

	topK := r.topK
	if st.req.TopK != nil && *st.req.TopK > 0 {
		topK = *st.req.TopK
	}

	docs, lexicalUnavailable, err := r.retriever.Retrieve(ctx, retrieval.Request{
		QueryText:     queryText,
		QueryVector:   vectors[0],
		QueryLanguage: st.language,
		Filters:       st.req.Filters,
		PrefetchLimit: maxInt(r.prefetchLimit, topK*2),
	})
	if err != nil {
		return r.failNode(ctx, st, sink, model.NodeRetrieve, model.ErrRetrievalUnavailable, "retrieval failed", err, started)
	}
	if lexicalUnavailable {
		r.warn(ctx, st, sink, "lexical_index_missing")
	}

	if len(docs) > topK {
		docs = docs[:topK]
	}

	r.metrics.NodeObserved(string(model.NodeRetrieve), time.Since(started))
	_ = sink.Send(model.NewNodeEndEvent(model.NodeRetrieve, map[string]any{"count": len(docs)}))
	r.telemetry.NodeComplete(ctx, model.NodeRetrieve, st.threadID, len(queryText), time.Since(started), telemetry.NodeFields{"documents": len(docs)})
	return docs, "", true
}

// nodeRerank runs C5. The reranker adapter itself never returns a hard
// error; on cross-encoder failure it falls back to retrieval-score order
// and the runtime only emits the warning spec.md §7 calls for
// (reranker_unavailable is explicitly "fallback + warning, not an error").
func (r *Runtime) nodeRerank(ctx context.Context, st *runState, sink events.Sink, docs []model.Document) ([]model.Document, model.ErrorCategory, bool) {
	started := time.Now()
	_ = sink.Send(model.NewNodeStartEvent(model.NodeRerank))

	result := r.reranker.Rerank(ctx, st.maskedQuery, docs)
	if result.FallbackOrder {
		r.warn(ctx, st, sink, "reranker_unavailable:"+result.FallbackReason)
	}

	r.metrics.NodeObserved(string(model.NodeRerank), time.Since(started))
	_ = sink.Send(model.NewNodeEndEvent(model.NodeRerank, map[string]any{"count": len(result.Documents), "fallback": result.FallbackOrder}))
	r.telemetry.NodeComplete(ctx, model.NodeRerank, st.threadID, 0, time.Since(started), telemetry.NodeFields{"fallback": result.FallbackOrder})
	return result.Documents, "", true
}

// nodeGrade runs C6. A parser failure degrades to the grader's own
// recall-preserving fallback (handled inside grader.Grade) rather than
// failing the node; only a hard LLM-call failure after retries reaches
// llm_unavailable here.
func (r *Runtime) nodeGrade(ctx context.Context, st *runState, sink events.Sink, docs []model.Document) ([]model.Document, model.ErrorCategory, bool) {
	started := time.Now()
	_ = sink.Send(model.NewNodeStartEvent(model.NodeGrade))

	result, err := r.grader.Grade(ctx, st.maskedQuery, docs)
	if err != nil {
		return r.failNode(ctx, st, sink, model.NodeGrade, model.ErrLLMUnavailable, "grading failed", err, started)
	}
	if result.Warning != "" {
		r.warn(ctx, st, sink, result.Warning)
	}

	relevant := len(grader.Relevant(result.Documents))
	r.metrics.NodeObserved(string(model.NodeGrade), time.Since(started))
	_ = sink.Send(model.NewNodeEndEvent(model.NodeGrade, map[string]any{"relevant": relevant, "total": len(result.Documents)}))
	r.telemetry.NodeComplete(ctx, model.NodeGrade, st.threadID, 0, time.Since(started), telemetry.NodeFields{"relevant": relevant})
	return result.Documents, "", true
}

// nodeRewriteQuery runs C8 and, when the rewrite passes validation, makes it
// the run's working query so the next retrieve/grade cycle uses it; session
// history is not touched. Per spec.md §4.7, a
// rewrite that fails validation keeps the original query but the caller
// still increments retry_count.
func (r *Runtime) nodeRewriteQuery(ctx context.Context, st *runState, sink events.Sink, failedDocs []model.Document) (model.ErrorCategory, bool) {
	started := time.Now()
	_ = sink.Send(model.NewNodeStartEvent(model.NodeRewriteQuery))

	rewritten, ok, err := r.rewriter.Rewrite(ctx, st.maskedQuery, failedDocs)
	if err != nil {
		return r.failNodeNoDocs(ctx, st, sink, model.NodeRewriteQuery, model.ErrLLMUnavailable, "rewrite failed", err, started)
	}

	if ok {
		st.maskedQuery = rewritten
	}

	r.metrics.NodeObserved(string(model.NodeRewriteQuery), time.Since(started))
	_ = sink.Send(model.NewNodeEndEvent(model.NodeRewriteQuery, map[string]any{"rewritten": ok}))
	r.telemetry.NodeComplete(ctx, model.NodeRewriteQuery, st.threadID, len(st.maskedQuery), time.Since(started), telemetry.NodeFields{"applied": ok})
	return "", true
}

// nodeGenerate runs C7 against the packed conversation history loaded from
// the session store.
func (r *Runtime) nodeGenerate(ctx context.Context, st *runState, sink events.Sink, docs []model.Document) (generator.Result, model.ErrorCategory, bool) {
	started := time.Now()
	_ = sink.Send(model.NewNodeStartEvent(model.NodeGenerate))

	sessState, err := r.sessions.Load(ctx, st.threadID)
	if err != nil {
		return r.failNodeGenerate(ctx, st, sink, model.ErrInternal, "session load failed", err, started)
	}

	result, err := r.generator.Generate(ctx, st.maskedQuery, st.language, docs, sessState.History, st.req.RuntimeContext)
	if err != nil {
		return r.failNodeGenerate(ctx, st, sink, model.ErrLLMUnavailable, "generation failed", err, started)
	}
	if result.Truncated {
		r.warn(ctx, st, sink, "truncated")
	}

	r.metrics.NodeObserved(string(model.NodeGenerate), time.Since(started))
	_ = sink.Send(model.NewNodeEndEvent(model.NodeGenerate, map[string]any{"answerLength": len(result.Answer)}))
	r.telemetry.NodeComplete(ctx, model.NodeGenerate, st.threadID, 0, time.Since(started), telemetry.NodeFields{"tokensOutput": result.ContextMetadata.TokensOutput})
	return result, "", true
}

// nodeValidateOutput runs C3's output guardrail, persists the turn to the
// session, and emits the terminal generation event.
func (r *Runtime) nodeValidateOutput(ctx context.Context, st *runState, sink events.Sink, gen generator.Result) (model.ErrorCategory, bool) {
	started := time.Now()
	_ = sink.Send(model.NewNodeStartEvent(model.NodeValidateOutput))

	docTexts := make([]string, len(st.docs))
	for i, d := range st.docs {
		docTexts[i] = d.Text
	}

	out := guardrails.ValidateOutput(gen.Answer, docTexts, st.req.RuntimeContext.EnableCitations, false)
	for _, w := range out.Warnings {
		r.warn(ctx, st, sink, w)
	}

	if !out.ValidationPassed {
		_ = sink.Send(model.NewErrorEvent(model.ErrGuardrailOutput, "output failed validation", "leakage_detected"))
		r.metrics.NodeFailed(string(model.NodeValidateOutput), string(model.ErrGuardrailOutput))
		r.telemetry.NodeComplete(ctx, model.NodeValidateOutput, st.threadID, 0, time.Since(started), telemetry.NodeFields{"rejected": true})
		return model.ErrGuardrailOutput, false
	}

	cm := gen.ContextMetadata
	cm.ConfidenceScore = out.GroundingConfidence
	cm.IsGeneric = out.IsGeneric
	cm.ValidationPassed = out.ValidationPassed
	cm.HasCitations = out.HasCitations || cm.HasCitations
	cm.Warnings = st.warnings

	now := time.Now()
	_, err := r.sessions.Mutate(ctx, st.threadID, func(s *model.SessionState) {
		s.AppendMessage(model.RoleUser, st.req.QueryText, now)
		s.AppendMessage(model.RoleAssistant, out.MaskedText, now)
		s.RetryCount = st.retryCount
		s.QueryLanguage = st.language
		s.ContextMetadata = cm
	})
	if err != nil {
		return r.failNodeNoDocs(ctx, st, sink, model.NodeValidateOutput, model.ErrInternal, "session persist failed", err, started)
	}

	r.metrics.NodeObserved(string(model.NodeValidateOutput), time.Since(started))
	_ = sink.Send(model.NewNodeEndEvent(model.NodeValidateOutput, map[string]any{"validationPassed": out.ValidationPassed}))
	r.telemetry.NodeComplete(ctx, model.NodeValidateOutput, st.threadID, 0, time.Since(started), nil)

	_ = sink.Send(model.NewGenerationEvent(model.GenerationData{
		Answer:          out.MaskedText,
		Sources:         gen.Citations,
		ContextMetadata: cm,
		ThreadID:        st.threadID,
		Retries:         st.retryCount,
	}))
	return "", true
}

func (r *Runtime) failNode(ctx context.Context, st *runState, sink events.Sink, node model.Node, category model.ErrorCategory, message string, err error, started time.Time) ([]model.Document, model.ErrorCategory, bool) {
	r.emitNodeFailure(ctx, st, sink, node, category, message, err, started)
	return nil, category, false
}

func (r *Runtime) failNodeGenerate(ctx context.Context, st *runState, sink events.Sink, category model.ErrorCategory, message string, err error, started time.Time) (generator.Result, model.ErrorCategory, bool) {
	r.emitNodeFailure(ctx, st, sink, model.NodeGenerate, category, message, err, started)
	return generator.Result{}, category, false
}

func (r *Runtime) failNodeNoDocs(ctx context.Context, st *runState, sink events.Sink, node model.Node, category model.ErrorCategory, message string, err error, started time.Time) (model.ErrorCategory, bool) {
	r.emitNodeFailure(ctx, st, sink, node, category, message, err, started)
	return category, false
}

func (r *Runtime) emitNodeFailure(ctx context.Context, st *runState, sink events.Sink, node model.Node, category model.ErrorCategory, message string, err error, started time.Time) {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	_ = sink.Send(model.NewErrorEvent(category, message, reason))
	r.metrics.NodeFailed(string(node), string(category))
	r.telemetry.NodeComplete(ctx, node, st.threadID, 0, time.Since(started), telemetry.NodeFields{"error": message})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
