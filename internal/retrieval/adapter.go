// Package retrieval implements C4: the retrieval adapter that fans out
// dense-ANN and lexical candidate fetches against Qdrant concurrently,
// fuses them with Reciprocal Rank Fusion, and applies the same-language
// boost spec.md §4.2 requires. The fan-out and RRF algorithm are adapted
// from the donor's internal/service/retriever.go (reciprocalRankFusion,
// errgroup-based concurrent search); the Qdrant calls themselves are
// grounded on the pack's only verified qdrant-go-client usage,
// _examples/Tangerg-lynx/ai/providers/vectorstores/qdrant/store.go.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/qdrant/go-client/qdrant"

	"github.com/ragbox/core-rag/internal/model"
	"github.com/ragbox/core-rag/internal/retry"
)

// RRFConstant is the standard Reciprocal Rank Fusion smoothing constant,
// mirroring the donor's reciprocalRankFusion k=60.
const RRFConstant = 60

// SameLanguageBoost multiplies a candidate's fused score when its detected
// Language metadata matches the query's detected language (spec.md §4.2).
const SameLanguageBoost = 1.10

// Adapter queries a Qdrant collection for dense and lexical candidates and
// fuses them.
type Adapter struct {
	client         *qdrant.Client
	collectionName string
}

func New(client *qdrant.Client, collectionName string) *Adapter {
	return &Adapter{client: client, collectionName: collectionName}
}

// Ping validates the Qdrant connection and collection existence (satisfies
// healthcheck.Pinger).
func (a *Adapter) Ping(ctx context.Context) error {
	_, err := a.client.CollectionExists(ctx, a.collectionName)
	if err != nil {
		return fmt.Errorf("retrieval: ping: %w", err)
	}
	return nil
}

// Request is one retrieval call's parameters.
type Request struct {
	QueryText      string
	QueryVector    []float32
	QueryLanguage  model.Language
	Filters        map[string]model.FilterValue
	PrefetchLimit  int
}

// candidate is an internal working representation before RRF fusion.
type candidate struct {
	doc  model.Document
	rank int // 0-indexed rank within its source list
}

// Retrieve runs the dense and lexical searches concurrently (when the
// lexical index is available), fuses them with RRF, and applies the
// same-language boost. It returns the fused, boosted, re-sorted documents
// plus a flag noting whether the lexical index was unavailable, so the
// caller (the pipeline runtime) can emit spec.md §7's "lexical-index
// missing" warning.
func (a *Adapter) Retrieve(ctx context.Context, req Request) ([]model.Document, bool, error) {
	if len(req.QueryVector) == 0 {
		return nil, false, fmt.Errorf("retrieval.Retrieve: empty query vector")
	}

	filter, err := buildFilter(req.Filters)
	if err != nil {
		return nil, false, fmt.Errorf("retrieval.Retrieve: filter: %w", err)
	}

	var denseResults []model.Document
	var lexicalResults []model.Document
	var lexicalUnavailable bool

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		denseResults, err = retry.Do(gCtx, retry.Default, "retrieval.denseSearch", nil, func() ([]model.Document, error) {
			return a.denseSearch(gCtx, req.QueryVector, filter, req.PrefetchLimit)
		})
		return err
	})

	g.Go(func() error {
		docs, unavailable, err := a.lexicalSearch(gCtx, req.QueryText, filter, req.PrefetchLimit)
		lexicalResults = docs
		lexicalUnavailable = unavailable
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, false, fmt.Errorf("retrieval.Retrieve: search: %w", err)
	}

	var fused []model.Document
	if len(lexicalResults) > 0 {
		fused = reciprocalRankFusion(denseResults, lexicalResults)
	} else {
		fused = denseResults
		lexicalUnavailable = true
	}

	applyLanguageBoost(fused, req.QueryLanguage)

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].RetrievalScore > fused[j].RetrievalScore
	})

	return fused, lexicalUnavailable, nil
}

func (a *Adapter) denseSearch(ctx context.Context, vector []float32, filter *qdrant.Filter, limit int) ([]model.Document, error) {
	queryPoints := &qdrant.QueryPoints{
		CollectionName: a.collectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          u64Ptr(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         filter,
	}

	scored, err := a.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, fmt.Errorf("retrieval: dense query: %w", err)
	}
	return scoredPointsToDocuments(scored), nil
}

// lexicalSearch scores candidates matching a payload full-text filter
// (qdrant.NewMatchText, the pack's only verified text-match condition) by
// local term-overlap count, since the examples pack never exercises a
// server-side BM25 score field. If the collection has no indexed text
// field the query returns an error; that is treated as "lexical index
// absent" per spec.md §4.2 rather than a hard failure.
func (a *Adapter) lexicalSearch(ctx context.Context, queryText string, baseFilter *qdrant.Filter, limit int) ([]model.Document, bool, error) {
	terms := tokenizeForMatch(queryText)
	if len(terms) == 0 {
		return nil, true, nil
	}

	textFilter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchText(model.MetaSource, strings.Join(terms, " "))},
	}
	if baseFilter != nil {
		textFilter.Must = append(textFilter.Must, baseFilter.Must...)
		textFilter.MustNot = baseFilter.MustNot
	}

	scrolled, err := a.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: a.collectionName,
		Limit:          u64Ptr(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         textFilter,
	})
	if err != nil {
		return nil, true, nil
	}

	docs := scoredPointsToDocuments(scrolled)
	sort.SliceStable(docs, func(i, j int) bool {
		return termOverlapCount(docs[i].Text, terms) > termOverlapCount(docs[j].Text, terms)
	})
	return docs, false, nil
}

func scoredPointsToDocuments(points []*qdrant.ScoredPoint) []model.Document {
	docs := make([]model.Document, 0, len(points))
	for _, p := range points {
		doc := model.Document{
			ID:             pointID(p),
			RetrievalScore: float64(p.GetScore()),
			Metadata:       make(map[string]any),
		}
		payload := p.GetPayload()
		for key, v := range payload {
			if v == nil {
				continue
			}
			if key == "text" {
				doc.Text = v.GetStringValue()
				continue
			}
			doc.Metadata[key] = qdrantValueToAny(v)
		}
		docs = append(docs, doc)
	}
	return docs
}

func pointID(p *qdrant.ScoredPoint) string {
	if id := p.GetId(); id != nil {
		if uuid := id.GetUuid(); uuid != "" {
			return uuid
		}
		return fmt.Sprintf("%d", id.GetNum())
	}
	return ""
}

func qdrantValueToAny(v *qdrant.Value) any {
	switch k := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	default:
		return nil
	}
}

// reciprocalRankFusion combines dense and lexical candidate lists, summing
// 1/(k+rank+1) per list a document appears in. Directly adapted from the
// donor's internal/service/retriever.go reciprocalRankFusion.
func reciprocalRankFusion(dense, lexical []model.Document) []model.Document {
	scores := make(map[string]float64)
	docs := make(map[string]model.Document)

	for rank, d := range dense {
		scores[d.ID] += 1.0 / float64(RRFConstant+rank+1)
		if _, ok := docs[d.ID]; !ok {
			docs[d.ID] = d
		}
	}
	for rank, d := range lexical {
		scores[d.ID] += 1.0 / float64(RRFConstant+rank+1)
		if existing, ok := docs[d.ID]; !ok {
			docs[d.ID] = d
		} else if existing.Text == "" {
			existing.Text = d.Text
			docs[d.ID] = existing
		}
	}

	fused := make([]model.Document, 0, len(docs))
	for id, d := range docs {
		d.RetrievalScore = scores[id]
		fused = append(fused, d)
	}
	return fused
}

func applyLanguageBoost(docs []model.Document, queryLang model.Language) {
	if queryLang == model.LangUnknown || queryLang == model.LangAuto {
		return
	}
	for i := range docs {
		if docs[i].Language() == string(queryLang) {
			docs[i].RetrievalScore *= SameLanguageBoost
		}
	}
}

func tokenizeForMatch(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()")
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

func termOverlapCount(text string, terms []string) int {
	lower := strings.ToLower(text)
	count := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			count++
		}
	}
	return count
}

// buildFilter translates model.FilterValue into Qdrant's condition schema:
// equality (keyword/int/bool match), "in" lists, and {gte,lte} ranges,
// conjoined with Must, mirroring the donor's converter.go approach but
// reading from the spec's flat filter map instead of parsing a query AST.
func buildFilter(filters map[string]model.FilterValue) (*qdrant.Filter, error) {
	if len(filters) == 0 {
		return nil, nil
	}

	f := &qdrant.Filter{}
	for key, fv := range filters {
		switch {
		case fv.Eq != nil:
			cond, err := matchCondition(key, fv.Eq)
			if err != nil {
				return nil, err
			}
			f.Must = append(f.Must, cond)

		case len(fv.In) > 0:
			keywords := make([]string, 0, len(fv.In))
			for _, v := range fv.In {
				s, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("retrieval: filter %q: \"in\" requires string values", key)
				}
				keywords = append(keywords, s)
			}
			f.Must = append(f.Must, qdrant.NewMatchKeywords(key, keywords...))

		case fv.Gte != nil || fv.Lte != nil:
			r := &qdrant.Range{}
			if fv.Gte != nil {
				r.Gte = float64Ptr(*fv.Gte)
			}
			if fv.Lte != nil {
				r.Lte = float64Ptr(*fv.Lte)
			}
			f.Must = append(f.Must, qdrant.NewRange(key, r))
		}
	}
	if len(f.Must) == 0 {
		return nil, nil
	}
	return f, nil
}

func matchCondition(key string, value any) (*qdrant.Condition, error) {
	switch v := value.(type) {
	case string:
		return qdrant.NewMatchKeyword(key, v), nil
	case int:
		return qdrant.NewMatchInt(key, int64(v)), nil
	case int64:
		return qdrant.NewMatchInt(key, v), nil
	case float64:
		return qdrant.NewMatchInt(key, int64(v)), nil
	case bool:
		return qdrant.NewMatchBool(key, v), nil
	default:
		return nil, fmt.Errorf("retrieval: unsupported filter value type %T for %q", value, key)
	}
}

func u64Ptr(v uint64) *uint64        { return &v }
func float64Ptr(v float64) *float64 { return &v }
