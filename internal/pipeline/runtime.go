// Package pipeline implements C9: the state machine driving
// VALIDATE_INPUT -> RETRIEVE -> RERANK -> GRADE -> {GENERATE|REWRITE_QUERY}
// -> VALIDATE_OUTPUT -> DONE, the GRADE routing decision, cancellation
// checks, per-node retry, and event/telemetry emission. Grounded on the
// donor's internal/handler/chat.go request-handling sequence (guard ->
// retrieve -> generate -> validate, logging and SSE events at each step),
// generalized into an explicit node graph with a bounded retry loop the
// donor's single-pass handler never had.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ragbox/core-rag/internal/events"
	"github.com/ragbox/core-rag/internal/generator"
	"github.com/ragbox/core-rag/internal/grader"
	"github.com/ragbox/core-rag/internal/metrics"
	"github.com/ragbox/core-rag/internal/model"
	"github.com/ragbox/core-rag/internal/rerank"
	"github.com/ragbox/core-rag/internal/retrieval"
	"github.com/ragbox/core-rag/internal/rewriter"
	"github.com/ragbox/core-rag/internal/session"
	"github.com/ragbox/core-rag/internal/telemetry"
)

// MaxRetries bounds the grade->rewrite_query->retrieve loop, per spec.md
// §3/§4.1. Used as Deps.MaxRetries's fallback when left zero.
const MaxRetries = 3

// DefaultTopK / DefaultPrefetchLimit are spec.md §4.2's retrieval defaults,
// used as Deps.TopK/Deps.PrefetchLimit's fallback when left zero.
const (
	DefaultTopK          = 10
	DefaultPrefetchLimit = 20
)

// These narrow, locally-owned interfaces are exactly the surface the state
// machine calls on each stage component. *retrieval.Adapter, *rerank.Adapter,
// *grader.Grader, *generator.Generator, *rewriter.Rewriter, and
// *session.Store each already satisfy the matching interface with no
// changes, so production wiring (cmd/server/main.go) is unaffected; tests
// substitute fakes instead of standing up Qdrant/Redis/an LLM provider.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) ([]model.Document, bool, error)
}

type Reranker interface {
	Rerank(ctx context.Context, query string, docs []model.Document) rerank.Result
}

type Grader interface {
	Grade(ctx context.Context, query string, docs []model.Document) (grader.Result, error)
}

type Generator interface {
	Generate(ctx context.Context, query string, lang model.Language, docs []model.Document, history []model.Message, rc model.RuntimeContext) (generator.Result, error)
}

type Rewriter interface {
	Rewrite(ctx context.Context, originalQuery string, failedDocs []model.Document) (string, bool, error)
}

type SessionStore interface {
	Create(threadID string) string
	Load(ctx context.Context, threadID string) (*model.SessionState, error)
	Mutate(ctx context.Context, threadID string, fn func(*model.SessionState)) (*model.SessionState, error)
	Reset(ctx context.Context, threadID string) (*model.SessionState, error)
}

// Runtime wires every stage component together and drives the state
// machine for one invocation at a time (concurrency comes from running
// many Runtime.Run calls concurrently, not from internal parallelism
// within one run, per spec.md §5).
type Runtime struct {
	embedder  Embedder
	retriever Retriever
	reranker  Reranker
	grader    Grader
	generator Generator
	rewriter  Rewriter
	sessions  SessionStore
	telemetry *telemetry.Logger
	metrics   *metrics.Metrics
	modelName string

	maxRetries    int
	topK          int
	prefetchLimit int
}

type Deps struct {
	Embedder  Embedder
	Retriever Retriever
	Reranker  Reranker
	Grader    Grader
	Generator Generator
	Rewriter  Rewriter
	Sessions  SessionStore
	Telemetry *telemetry.Logger
	Metrics   *metrics.Metrics
	ModelName string

	// MaxRetries/TopK/PrefetchLimit override the package defaults; a zero
	// value falls back to MaxRetries/DefaultTopK/DefaultPrefetchLimit, so
	// config.Config's matching env vars reach the state machine instead of
	// only setting unused defaults.
	MaxRetries    int
	TopK          int
	PrefetchLimit int
}

func New(d Deps) *Runtime {
	r := &Runtime{
		embedder:  d.Embedder,
		retriever: d.Retriever,
		reranker:  d.Reranker,
		grader:    d.Grader,
		generator: d.Generator,
		rewriter:  d.Rewriter,
		sessions:  d.Sessions,
		telemetry: d.Telemetry,
		metrics:   d.Metrics,
		modelName: d.ModelName,

		maxRetries:    d.MaxRetries,
		topK:          d.TopK,
		prefetchLimit: d.PrefetchLimit,
	}
	if r.maxRetries <= 0 {
		r.maxRetries = MaxRetries
	}
	if r.topK <= 0 {
		r.topK = DefaultTopK
	}
	if r.prefetchLimit <= 0 {
		r.prefetchLimit = DefaultPrefetchLimit
	}
	return r
}

// runState is the mutable working state threaded through one invocation.
type runState struct {
	req         model.QueryRequest
	threadID    string
	maskedQuery string
	language    model.Language
	retryCount  int
	docs        []model.Document
	warnings    []string
	startedAt   time.Time
}

// Run drives the full state machine for one request, emitting events to
// sink and returning once a terminal event has been sent. It never returns
// an error for pipeline-internal failures — those become a terminal error
// event per spec.md §7; Run only returns an error for a failure to even
// start (e.g. nil sink).
func (r *Runtime) Run(ctx context.Context, req model.QueryRequest, sink events.Sink) error {
	if sink == nil {
		return fmt.Errorf("pipeline.Run: nil sink")
	}

	st := &runState{req: req, startedAt: time.Now()}

	threadID := r.sessions.Create(req.ThreadID)
	st.threadID = threadID
	isNew := req.ThreadID == ""
	if isNew {
		_ = sink.Send(model.NewThreadCreatedEvent(threadID))
	}

	// Checked before the first session mutation (Reset persists via
	// Mutate/Save) so a request cancelled before it ever starts leaves
	// session state untouched, per spec.md §5/§7.
	if cat, cancelled := r.checkCancelled(ctx, sink); cancelled {
		r.telemetry.RequestComplete(ctx, threadID, time.Since(st.startedAt), string(cat), st.retryCount)
		return nil
	}

	sessState, err := r.sessions.Reset(ctx, threadID)
	if err != nil {
		category := r.terminalErrorCategory(ctx, st, sink, model.ErrInternal, "failed to load session", err)
		r.telemetry.RequestComplete(ctx, threadID, time.Since(st.startedAt), string(category), st.retryCount)
		return nil
	}
	st.retryCount = sessState.RetryCount

	category := r.runStateMachine(ctx, st, sink)
	r.telemetry.RequestComplete(ctx, threadID, time.Since(st.startedAt), string(category), st.retryCount)
	return nil
}

// runStateMachine walks VALIDATE_INPUT through VALIDATE_OUTPUT, returning
// the terminal error category (empty string on success). The cancellation
// signal is checked before entering every node, per spec.md §5.
func (r *Runtime) runStateMachine(ctx context.Context, st *runState, sink events.Sink) model.ErrorCategory {
	if cat, cancelled := r.checkCancelled(ctx, sink); cancelled {
		return cat
	}

	validated, cat, ok := r.nodeValidateInput(ctx, st, sink)
	if !ok {
		return cat
	}
	st.maskedQuery = validated.MaskedText
	for _, w := range validated.Warnings {
		r.warn(ctx, st, sink, w)
	}

	st.language = r.nodeDetectLanguage(ctx, st)

	for {
		if cat, cancelled := r.checkCancelled(ctx, sink); cancelled {
			return cat
		}

		docs, cat, ok := r.nodeRetrieve(ctx, st, sink)
		if !ok {
			return cat
		}

		if cat, cancelled := r.checkCancelled(ctx, sink); cancelled {
			return cat
		}

		reranked, cat, ok := r.nodeRerank(ctx, st, sink, docs)
		if !ok {
			return cat
		}

		if cat, cancelled := r.checkCancelled(ctx, sink); cancelled {
			return cat
		}

		graded, cat, ok := r.nodeGrade(ctx, st, sink, reranked)
		if !ok {
			return cat
		}
		st.docs = graded

		relevant := grader.Relevant(graded)
		if len(relevant) >= 1 {
			return r.finishGenerate(ctx, st, sink, relevant)
		}

		if st.retryCount < r.maxRetries {
			if cat, cancelled := r.checkCancelled(ctx, sink); cancelled {
				return cat
			}
			if cat, ok := r.nodeRewriteQuery(ctx, st, sink, graded); !ok {
				return cat
			}
			st.retryCount++
			r.metrics.RetriesTotal.Inc()
			continue
		}

		r.warn(ctx, st, sink, "low_relevance_fallback")
		return r.finishGenerate(ctx, st, sink, graded)
	}
}

func (r *Runtime) finishGenerate(ctx context.Context, st *runState, sink events.Sink, docs []model.Document) model.ErrorCategory {
	if cat, cancelled := r.checkCancelled(ctx, sink); cancelled {
		return cat
	}
	result, cat, ok := r.nodeGenerate(ctx, st, sink, docs)
	if !ok {
		return cat
	}

	if cat, cancelled := r.checkCancelled(ctx, sink); cancelled {
		return cat
	}
	cat2, ok2 := r.nodeValidateOutput(ctx, st, sink, result)
	if !ok2 {
		return cat2
	}
	return ""
}

// checkCancelled reports whether ctx has already been cancelled or its
// deadline exceeded, emitting the terminal cancelled error event if so.
// Session state is never mutated on this path, per spec.md §7.
func (r *Runtime) checkCancelled(ctx context.Context, sink events.Sink) (model.ErrorCategory, bool) {
	select {
	case <-ctx.Done():
		_ = sink.Send(model.NewErrorEvent(model.ErrCancelled, "request cancelled", ctx.Err().Error()))
		return model.ErrCancelled, true
	default:
		return "", false
	}
}

func (r *Runtime) warn(ctx context.Context, st *runState, sink events.Sink, message string) {
	st.warnings = append(st.warnings, message)
	_ = sink.Send(model.NewWarningEvent(message))
	r.telemetry.Warning(ctx, st.threadID, message)
	r.metrics.Warned(message)
}

func (r *Runtime) terminalErrorCategory(ctx context.Context, st *runState, sink events.Sink, category model.ErrorCategory, message string, err error) model.ErrorCategory {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	_ = sink.Send(model.NewErrorEvent(category, message, reason))
	r.metrics.NodeFailed("runtime", string(category))
	return category
}
