// Package rag implements the retrieval routing core. It accepts a caregiver
// question, embeds it, runs a first-pass confidence search against the vector
// index, and routes per query: answer from the tiered results directly,
// diversify them through MMR re-ranking first, or refuse outright.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CareWellAI/carewell-mvp/engine/confidence"
	"github.com/CareWellAI/carewell-mvp/engine/metadata"
	"github.com/CareWellAI/carewell-mvp/engine/mmr"
	"github.com/CareWellAI/carewell-mvp/engine/semantic"
)

// ErrUnavailable marks encoder or index failures. Callers must surface it and
// stop serving queries until resolved; it never degrades to an empty decision.
var ErrUnavailable = errors.New("retrieval unavailable")

// Encoder turns query text into an L2-normalized embedding.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// Index abstracts the vector index. Satisfied by *semantic.Index.
type Index interface {
	Search(query []float32, k int) ([]semantic.Hit, error)
	Reconstruct(id int64) ([]float32, error)
	Len() int
}

// MetadataStore resolves vector identifiers to chunk records. Satisfied by
// *metadata.Store.
type MetadataStore interface {
	Get(id int64) (metadata.Record, bool)
}

// Recommendation steers the downstream answering layer.
type Recommendation string

const (
	SafeToAnswer          Recommendation = "SAFE_TO_ANSWER"
	ReviewBeforeAnswering Recommendation = "REVIEW_BEFORE_ANSWERING"
	DoNotAnswer           Recommendation = "DO_NOT_ANSWER"
)

// Method names recorded on decisions.
const (
	MethodSafeSearch = "safe_search"
	MethodMMR        = "mmr_retrieval"
)

// DefaultOffTopicFloor is the top-1 distance at which a query is judged
// off-topic regardless of the rest of the distribution. Observed behavior of
// the tuned system wavered between 0.5 and 0.55 here; this implementation
// standardizes on the tier ladder's boundary (confidence.NearDuplicateFloor).
// Override via Options.OffTopicFloor to restore the looser floor.
const DefaultOffTopicFloor = confidence.NearDuplicateFloor

// Options configures the router.
type Options struct {
	// OffTopicFloor: top-1 distance at or above this refuses immediately.
	OffTopicFloor float32
	// MMRLambda balances relevance against diversity on the diversify path.
	// Zero takes the default; pure diversity is not a supported setting.
	MMRLambda float32
	// DefaultK is the neighbor count used when the caller passes k < 1.
	DefaultK int
}

// DefaultOptions returns the tuned defaults.
func DefaultOptions() Options {
	return Options{
		OffTopicFloor: DefaultOffTopicFloor,
		MMRLambda:     0.5,
		DefaultK:      5,
	}
}

// Result is a single retrieved chunk with its trust tier. Distance is nil for
// diversity-ranked results, which carry no comparable score.
type Result struct {
	Content    string          `json:"content"`
	Distance   *float32        `json:"distance,omitempty"`
	Confidence confidence.Tier `json:"confidence"`
	Source     string          `json:"source"`
	Title      string          `json:"title"`
}

// Decision is the routing outcome for one query, immutable once constructed.
// It is the only value crossing the core/caller boundary.
type Decision struct {
	Method         string          `json:"method"`
	Confidence     confidence.Tier `json:"confidence"`
	Recommendation Recommendation  `json:"recommendation"`
	Results        []Result        `json:"results"`
}

// Router orchestrates the confidence search and routing state machine.
type Router struct {
	encode Encoder
	index  Index
	meta   MetadataStore
	opts   Options
	logger *slog.Logger
}

// New creates a Router. A nil logger falls back to slog.Default().
func New(enc Encoder, index Index, meta MetadataStore, opts Options, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.OffTopicFloor <= 0 {
		opts.OffTopicFloor = DefaultOffTopicFloor
	}
	if opts.MMRLambda <= 0 {
		opts.MMRLambda = DefaultOptions().MMRLambda
	}
	if opts.DefaultK < 1 {
		opts.DefaultK = DefaultOptions().DefaultK
	}
	return &Router{encode: enc, index: index, meta: meta, opts: opts, logger: logger}
}

// Search is the sole entry point: one query in, one Decision out.
// k < 1 falls back to Options.DefaultK. Encoder or index failure returns an
// error wrapping ErrUnavailable; everything else resolves to a Decision.
func (r *Router) Search(ctx context.Context, query string, k int) (*Decision, error) {
	if k < 1 {
		k = r.opts.DefaultK
	}

	vec, err := r.encode.Encode(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: encode query: %w", errors.Join(ErrUnavailable, err))
	}

	hits, err := r.index.Search(vec, k)
	if err != nil {
		return nil, fmt.Errorf("rag: first-pass search: %w", errors.Join(ErrUnavailable, err))
	}

	if len(hits) == 0 {
		r.logger.Warn("no neighbors retrieved, refusing", "index_size", r.index.Len(), "k", k)
		return &Decision{
			Method:         MethodSafeSearch,
			Confidence:     confidence.TierLow,
			Recommendation: DoNotAnswer,
			Results:        []Result{},
		}, nil
	}

	tiers := make([]confidence.Tier, len(hits))
	for i, h := range hits {
		tiers[i] = confidence.Classify(h.Distance)
	}

	// Off-topic override: a nearest neighbor at or beyond the floor refuses
	// no matter how the rest of the distribution looks.
	if hits[0].Distance >= r.opts.OffTopicFloor {
		for i := range tiers {
			tiers[i] = confidence.TierLow
		}
		r.logger.Info("routing decision", "method", MethodSafeSearch, "recommendation", DoNotAnswer,
			"reason", "off_topic", "top_distance", hits[0].Distance)
		return &Decision{
			Method:         MethodSafeSearch,
			Confidence:     confidence.TierLow,
			Recommendation: DoNotAnswer,
			Results:        r.assemble(hits, tiers),
		}, nil
	}

	// Thresholds run against the actual returned count: fewer than k matches
	// is not an error.
	var high, low int
	for _, t := range tiers {
		switch t {
		case confidence.TierHigh:
			high++
		case confidence.TierLow:
			low++
		}
	}
	half := len(hits) / 2

	switch {
	case high >= half:
		r.logger.Info("routing decision", "method", MethodSafeSearch, "recommendation", SafeToAnswer,
			"high", high, "low", low, "n", len(hits))
		return &Decision{
			Method:         MethodSafeSearch,
			Confidence:     confidence.TierHigh,
			Recommendation: SafeToAnswer,
			Results:        r.assemble(hits, tiers),
		}, nil
	case low >= half:
		r.logger.Info("routing decision", "method", MethodSafeSearch, "recommendation", DoNotAnswer,
			"high", high, "low", low, "n", len(hits))
		return &Decision{
			Method:         MethodSafeSearch,
			Confidence:     confidence.TierLow,
			Recommendation: DoNotAnswer,
			Results:        r.assemble(hits, tiers),
		}, nil
	}

	return r.diversify(vec, k)
}

// diversify re-queries at 2k and MMR-selects a diverse top-k. Diversity
// results all carry tier Medium and no distance.
func (r *Router) diversify(vec []float32, k int) (*Decision, error) {
	pool, err := r.index.Search(vec, 2*k)
	if err != nil {
		return nil, fmt.Errorf("rag: diversity search: %w", errors.Join(ErrUnavailable, err))
	}

	ids := make([]int64, len(pool))
	for i, h := range pool {
		ids[i] = h.ID
	}
	selected := mmr.Select(r.index, vec, ids, k, r.opts.MMRLambda)

	results := make([]Result, 0, len(selected))
	for _, id := range selected {
		rec, ok := r.meta.Get(id)
		if !ok {
			r.logger.Warn("skipping result without metadata", "id", id)
			continue
		}
		results = append(results, Result{
			Content:    rec.Content,
			Confidence: confidence.TierMedium,
			Source:     rec.Source,
			Title:      rec.Title,
		})
	}

	r.logger.Info("routing decision", "method", MethodMMR, "recommendation", ReviewBeforeAnswering,
		"pool", len(pool), "selected", len(results))
	return &Decision{
		Method:         MethodMMR,
		Confidence:     confidence.TierMedium,
		Recommendation: ReviewBeforeAnswering,
		Results:        results,
	}, nil
}

// assemble joins hits with metadata, skipping identifiers the metadata table
// does not know (generation drift produces a shorter list, never a failure).
func (r *Router) assemble(hits []semantic.Hit, tiers []confidence.Tier) []Result {
	results := make([]Result, 0, len(hits))
	for i, h := range hits {
		rec, ok := r.meta.Get(h.ID)
		if !ok {
			r.logger.Warn("skipping result without metadata", "id", h.ID)
			continue
		}
		d := h.Distance
		results = append(results, Result{
			Content:    rec.Content,
			Distance:   &d,
			Confidence: tiers[i],
			Source:     rec.Source,
			Title:      rec.Title,
		})
	}
	return results
}
