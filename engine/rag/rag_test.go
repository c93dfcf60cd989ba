package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"testing"

	"github.com/CareWellAI/carewell-mvp/engine/confidence"
	"github.com/CareWellAI/carewell-mvp/engine/metadata"
	"github.com/CareWellAI/carewell-mvp/engine/semantic"
)

// --- fakes ---

type fakeEncoder struct {
	vec []float32
	err error
}

func (f *fakeEncoder) Encode(_ context.Context, _ string) ([]float32, error) {
	return f.vec, f.err
}

// fakeIndex serves a fixed ranking regardless of query vector; Search clamps
// k the way the real index does.
type fakeIndex struct {
	hits           []semantic.Hit
	vecs           map[int64][]float32
	searchErr      error
	reconstructErr error
}

func (f *fakeIndex) Search(_ []float32, k int) ([]semantic.Hit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if k > len(f.hits) {
		k = len(f.hits)
	}
	return f.hits[:k], nil
}

func (f *fakeIndex) Reconstruct(id int64) ([]float32, error) {
	if f.reconstructErr != nil {
		return nil, f.reconstructErr
	}
	v, ok := f.vecs[id]
	if !ok {
		return nil, fmt.Errorf("no vector for %d", id)
	}
	return v, nil
}

func (f *fakeIndex) Len() int { return len(f.hits) }

func metaFor(n int) *metadata.Store {
	records := make([]metadata.Record, n)
	for i := range records {
		records[i] = metadata.Record{
			ID:      int64(i),
			Content: fmt.Sprintf("chunk %d", i),
			Title:   fmt.Sprintf("Title %d", i),
			Source:  fmt.Sprintf("https://example.org/%d", i),
		}
	}
	return metadata.NewStore(records)
}

func newRouter(ix Index, meta MetadataStore) *Router {
	return New(&fakeEncoder{vec: []float32{1, 0}}, ix, meta, DefaultOptions(), slog.Default())
}

func hitsFromDistances(ds ...float32) []semantic.Hit {
	hits := make([]semantic.Hit, len(ds))
	for i, d := range ds {
		hits[i] = semantic.Hit{ID: int64(i), Distance: d}
	}
	return hits
}

// --- tests ---

func TestSearch_HighMajorityAnswersSafely(t *testing.T) {
	// Top-1 is a near-duplicate (Low), the next three classify High: 3 of 4
	// High clears the half threshold.
	ix := &fakeIndex{hits: hitsFromDistances(0.45, 0.6, 0.7, 0.75)}
	dec, err := newRouter(ix, metaFor(4)).Search(context.Background(), "symptoms of alzheimers", 4)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if dec.Recommendation != SafeToAnswer {
		t.Errorf("recommendation = %s, want SAFE_TO_ANSWER", dec.Recommendation)
	}
	if dec.Method != MethodSafeSearch {
		t.Errorf("method = %s, want %s", dec.Method, MethodSafeSearch)
	}
	if dec.Confidence != confidence.TierHigh {
		t.Errorf("confidence = %s, want high", dec.Confidence)
	}
	if len(dec.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(dec.Results))
	}
	for i := 1; i < len(dec.Results); i++ {
		if *dec.Results[i].Distance < *dec.Results[i-1].Distance {
			t.Errorf("results not in distance order at %d", i)
		}
	}
	if dec.Results[1].Confidence != confidence.TierHigh {
		t.Errorf("second result tier = %s, want high", dec.Results[1].Confidence)
	}
}

func TestSearch_OffTopicOverrideRefuses(t *testing.T) {
	// Nearest distance 0.52 sits at/above the floor: refuse regardless of the
	// other neighbors' tiers, which would otherwise vote High.
	ix := &fakeIndex{hits: hitsFromDistances(0.52, 0.6, 0.65, 0.7)}
	dec, err := newRouter(ix, metaFor(4)).Search(context.Background(), "capital of France", 4)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if dec.Recommendation != DoNotAnswer {
		t.Errorf("recommendation = %s, want DO_NOT_ANSWER", dec.Recommendation)
	}
	if dec.Method != MethodSafeSearch {
		t.Errorf("method = %s, want %s", dec.Method, MethodSafeSearch)
	}
	for i, res := range dec.Results {
		if res.Confidence != confidence.TierLow {
			t.Errorf("result %d tier = %s, want low (override)", i, res.Confidence)
		}
	}
}

func TestSearch_OffTopicFloorConfigurable(t *testing.T) {
	opts := DefaultOptions()
	opts.OffTopicFloor = 0.55
	ix := &fakeIndex{hits: hitsFromDistances(0.52, 0.6, 0.65, 0.7)}
	router := New(&fakeEncoder{vec: []float32{1, 0}}, ix, metaFor(4), opts, nil)

	dec, err := router.Search(context.Background(), "borderline query", 4)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	// With the looser floor the distribution votes: 4 of 4 High.
	if dec.Recommendation != SafeToAnswer {
		t.Errorf("recommendation = %s, want SAFE_TO_ANSWER under 0.55 floor", dec.Recommendation)
	}
}

func TestSearch_LowMajorityRefuses(t *testing.T) {
	// Top-1 passes the floor; tiers are Low, High, Medium, Low → low=2 >= 2.
	ix := &fakeIndex{hits: hitsFromDistances(0.3, 0.7, 1.0, 1.3)}
	dec, err := newRouter(ix, metaFor(4)).Search(context.Background(), "something fringe", 4)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if dec.Recommendation != DoNotAnswer {
		t.Errorf("recommendation = %s, want DO_NOT_ANSWER", dec.Recommendation)
	}
	if dec.Method != MethodSafeSearch {
		t.Errorf("method = %s, want %s", dec.Method, MethodSafeSearch)
	}
	if len(dec.Results) != 4 {
		t.Errorf("refusal still carries the tiered results, got %d", len(dec.Results))
	}
}

func TestSearch_MixedDistributionDiversifies(t *testing.T) {
	// Tiers Low, High, Medium, Medium → high=1, low=1, both under half=2.
	ix := &fakeIndex{
		hits: hitsFromDistances(0.45, 0.6, 0.9, 1.0),
		vecs: map[int64][]float32{
			0: {1, 0}, 1: {0.9, 0.1}, 2: {0, 1}, 3: {0.5, 0.5},
		},
	}
	dec, err := newRouter(ix, metaFor(4)).Search(context.Background(), "broad question", 4)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if dec.Recommendation != ReviewBeforeAnswering {
		t.Fatalf("recommendation = %s, want REVIEW_BEFORE_ANSWERING", dec.Recommendation)
	}
	if dec.Method != MethodMMR {
		t.Errorf("method = %s, want %s", dec.Method, MethodMMR)
	}
	if dec.Confidence != confidence.TierMedium {
		t.Errorf("confidence = %s, want medium", dec.Confidence)
	}
	if len(dec.Results) == 0 {
		t.Fatalf("expected diversified results")
	}
	seen := map[string]bool{}
	for i, res := range dec.Results {
		if res.Confidence != confidence.TierMedium {
			t.Errorf("result %d tier = %s, want medium", i, res.Confidence)
		}
		if res.Distance != nil {
			t.Errorf("result %d carries a distance, want nil", i)
		}
		if seen[res.Content] {
			t.Errorf("duplicate result %q", res.Content)
		}
		seen[res.Content] = true
	}
}

func TestSearch_PartialOptionsKeepDefaultLambda(t *testing.T) {
	// A caller setting only the floor must still get the balanced lambda.
	// The fixture separates the two: with the default lambda the second pick
	// is the near-duplicate of the first (id 1, highest balanced score);
	// pure diversity (lambda 0) would pick the orthogonal id 2 instead.
	ix := &fakeIndex{
		hits: hitsFromDistances(0.9, 1.0, 1.05, 1.1),
		vecs: map[int64][]float32{
			0: {0.99, 0.14}, 1: {0.95, 0.31}, 2: {0.1, 0.995}, 3: {0.7, 0.714},
		},
	}
	router := New(&fakeEncoder{vec: []float32{1, 0}}, ix, metaFor(4),
		Options{OffTopicFloor: 0.95}, nil)

	dec, err := router.Search(context.Background(), "broad question", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if dec.Recommendation != ReviewBeforeAnswering {
		t.Fatalf("recommendation = %s, want REVIEW_BEFORE_ANSWERING", dec.Recommendation)
	}
	if len(dec.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(dec.Results))
	}
	if dec.Results[0].Content != "chunk 0" || dec.Results[1].Content != "chunk 1" {
		t.Errorf("results = [%s, %s], want [chunk 0, chunk 1]",
			dec.Results[0].Content, dec.Results[1].Content)
	}
}

func TestSearch_DiversifySurvivesReconstructFailure(t *testing.T) {
	ix := &fakeIndex{
		hits:           hitsFromDistances(0.45, 0.6, 0.9, 1.0),
		reconstructErr: semantic.ErrNotReconstructable,
	}
	dec, err := newRouter(ix, metaFor(4)).Search(context.Background(), "broad question", 4)
	if err != nil {
		t.Fatalf("expected decision despite reconstruction failure, got %v", err)
	}
	if dec.Recommendation != ReviewBeforeAnswering {
		t.Errorf("recommendation = %s, want REVIEW_BEFORE_ANSWERING", dec.Recommendation)
	}
	// Fallback keeps plain top-k order.
	if len(dec.Results) != 4 || dec.Results[0].Content != "chunk 0" {
		t.Errorf("expected top-k fallback results, got %+v", dec.Results)
	}
}

func TestSearch_EmptyIndexRefusesWithEmptyResults(t *testing.T) {
	ix := &fakeIndex{}
	dec, err := newRouter(ix, metaFor(0)).Search(context.Background(), "anything", 4)
	if err != nil {
		t.Fatalf("empty index must not error: %v", err)
	}
	if dec.Recommendation != DoNotAnswer {
		t.Errorf("recommendation = %s, want DO_NOT_ANSWER", dec.Recommendation)
	}
	if len(dec.Results) != 0 {
		t.Errorf("expected empty results, got %d", len(dec.Results))
	}
}

func TestSearch_EncoderFailureIsUnavailable(t *testing.T) {
	router := New(&fakeEncoder{err: errors.New("model down")},
		&fakeIndex{hits: hitsFromDistances(0.6)}, metaFor(1), DefaultOptions(), nil)
	_, err := router.Search(context.Background(), "anything", 4)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestSearch_IndexFailureIsUnavailable(t *testing.T) {
	ix := &fakeIndex{searchErr: errors.New("index corrupt")}
	_, err := newRouter(ix, metaFor(0)).Search(context.Background(), "anything", 4)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestSearch_SkipsResultsWithoutMetadata(t *testing.T) {
	// Metadata only knows ids 0 and 2; ids 1 and 3 drop out of the result
	// list while the tier arithmetic still ran over all four neighbors.
	ix := &fakeIndex{hits: hitsFromDistances(0.45, 0.6, 0.7, 0.75)}
	meta := metadata.NewStore([]metadata.Record{
		{ID: 0, Content: "chunk 0"},
		{ID: 2, Content: "chunk 2"},
	})
	dec, err := newRouter(ix, meta).Search(context.Background(), "symptoms", 4)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if dec.Recommendation != SafeToAnswer {
		t.Errorf("recommendation = %s, want SAFE_TO_ANSWER", dec.Recommendation)
	}
	if len(dec.Results) != 2 {
		t.Errorf("expected unmatched ids skipped, got %d results", len(dec.Results))
	}
}

func TestSearch_FewerNeighborsThanK(t *testing.T) {
	// Index holds two entries; k=5 clamps and thresholds run on n=2.
	ix := &fakeIndex{hits: hitsFromDistances(0.45, 0.6)}
	dec, err := newRouter(ix, metaFor(2)).Search(context.Background(), "symptoms", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	// half = 1, one High neighbor suffices.
	if dec.Recommendation != SafeToAnswer {
		t.Errorf("recommendation = %s, want SAFE_TO_ANSWER", dec.Recommendation)
	}
	if len(dec.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(dec.Results))
	}
}

func TestSearch_DefaultKWhenUnset(t *testing.T) {
	ix := &fakeIndex{hits: hitsFromDistances(0.45, 0.6, 0.7, 0.75, 0.78, 0.79)}
	dec, err := newRouter(ix, metaFor(6)).Search(context.Background(), "symptoms", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(dec.Results) != DefaultOptions().DefaultK {
		t.Errorf("expected %d results via DefaultK, got %d", DefaultOptions().DefaultK, len(dec.Results))
	}
}

func TestSearch_Deterministic(t *testing.T) {
	ix := &fakeIndex{
		hits: hitsFromDistances(0.45, 0.6, 0.9, 1.0),
		vecs: map[int64][]float32{
			0: {1, 0}, 1: {0.9, 0.1}, 2: {0, 1}, 3: {0.5, 0.5},
		},
	}
	router := newRouter(ix, metaFor(4))
	first, err := router.Search(context.Background(), "broad question", 4)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := router.Search(context.Background(), "broad question", 4)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("decision changed between identical calls")
		}
	}
}
