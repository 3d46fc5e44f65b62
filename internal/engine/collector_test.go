package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptRetriever struct {
	topKs []int
	docs  [][]Document
	err   error
}

func (r *scriptRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Document, error) {
	call := len(r.topKs)
	r.topKs = append(r.topKs, topK)
	if r.err != nil {
		return nil, r.err
	}
	if call < len(r.docs) {
		return r.docs[call], nil
	}
	return nil, nil
}

type scriptReranker struct {
	scores [][]float64
	calls  int
	err    error
}

func (r *scriptReranker) Rerank(ctx context.Context, query string, docs []Document, attempt int) ([]ScoredDocument, error) {
	call := r.calls
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	scores := r.scores[call%len(r.scores)]
	out := make([]ScoredDocument, 0, len(docs))
	for i, d := range docs {
		out = append(out, ScoredDocument{Document: d, Score: scores[i%len(scores)]})
	}
	return out, nil
}

type stubWeb struct {
	facts   []WebFact
	err     error
	queries []string
}

func (w *stubWeb) Search(ctx context.Context, query string, maxResults int) ([]WebFact, error) {
	w.queries = append(w.queries, query)
	return w.facts, w.err
}

type stubGeo struct {
	places     []PlaceRecord
	err        error
	location   string
	resource   string
	radiusKM   int
	maxResults int
}

func (g *stubGeo) Search(ctx context.Context, location, resourceType string, radiusKM, maxResults int) ([]PlaceRecord, error) {
	g.location = location
	g.resource = resourceType
	g.radiusKM = radiusKM
	g.maxResults = maxResults
	return g.places, g.err
}

func makeDocs(n int) []Document {
	docs := make([]Document, n)
	for i := range docs {
		docs[i] = Document{ID: fmt.Sprintf("d%d", i), Content: fmt.Sprintf("doc %d", i), Source: "kb"}
	}
	return docs
}

func allToolsGate() GateOutcome {
	return GateOutcome{
		Mode:      ModeNormal,
		Tools:     ToolAdmission{KB: true, Web: true, Map: true},
		MapParams: MapParams{Location: "Shanghai", RadiusKM: 10, ResourceType: "hospital"},
	}
}

func TestCollector_RecallLoop(t *testing.T) {
	t.Parallel()

	t.Run("Should widen top_k on each retry", func(t *testing.T) {
		t.Parallel()
		retriever := &scriptRetriever{docs: [][]Document{makeDocs(10), makeDocs(10)}}
		reranker := &scriptReranker{scores: [][]float64{{0.1}}} // everything filtered, retained at top-2
		c := NewCollector(retriever, reranker, nil, nil, testEngineConfig(), nil)

		bundle := c.Collect(context.Background(), GateOutcome{Tools: ToolAdmission{KB: true}}, testQueryContext("q"), TriageSignal{})

		assert.Equal(t, []int{15, 20}, retriever.topKs)
		require.Len(t, bundle.Attempts, 2)
		assert.Equal(t, 1, bundle.Attempts[0].Attempt)
		assert.Equal(t, 15, bundle.Attempts[0].TopK)
		assert.Equal(t, 2, bundle.Attempts[1].Attempt)
		assert.Equal(t, 20, bundle.Attempts[1].TopK)
		assert.False(t, bundle.Attempts[1].Enough)
	})

	t.Run("Should stop once enough documents survive", func(t *testing.T) {
		t.Parallel()
		retriever := &scriptRetriever{docs: [][]Document{makeDocs(10)}}
		reranker := &scriptReranker{scores: [][]float64{{0.9, 0.8, 0.7, 0.65, 0.6, 0.1, 0.1, 0.1, 0.1, 0.1}}}
		c := NewCollector(retriever, reranker, nil, nil, testEngineConfig(), nil)

		bundle := c.Collect(context.Background(), GateOutcome{Tools: ToolAdmission{KB: true}}, testQueryContext("q"), TriageSignal{})

		require.Len(t, bundle.Attempts, 1)
		assert.True(t, bundle.Attempts[0].Enough)
		assert.Len(t, bundle.KBDocs, 5)
	})

	t.Run("Should lower the rerank threshold on retry", func(t *testing.T) {
		t.Parallel()
		// Scores of 0.5 fail the first-attempt threshold (0.55) but pass the
		// decayed second-attempt threshold (0.45).
		retriever := &scriptRetriever{docs: [][]Document{makeDocs(10), makeDocs(10)}}
		reranker := &scriptReranker{scores: [][]float64{{0.5}}}
		c := NewCollector(retriever, reranker, nil, nil, testEngineConfig(), nil)

		bundle := c.Collect(context.Background(), GateOutcome{Tools: ToolAdmission{KB: true}}, testQueryContext("q"), TriageSignal{})

		require.Len(t, bundle.Attempts, 2)
		assert.Equal(t, 2, bundle.Attempts[0].Kept, "first attempt keeps only the retain-top-2 fallback")
		assert.Equal(t, 10, bundle.Attempts[1].Kept)
		assert.True(t, bundle.Attempts[1].Enough)
	})

	t.Run("Should retain the top two documents when filtering empties the set", func(t *testing.T) {
		t.Parallel()
		cfg := testEngineConfig()
		cfg.MaxRetry = 1
		retriever := &scriptRetriever{docs: [][]Document{makeDocs(6)}}
		reranker := &scriptReranker{scores: [][]float64{{0.3, 0.2, 0.25, 0.1, 0.05, 0.15}}}
		c := NewCollector(retriever, reranker, nil, nil, cfg, nil)

		bundle := c.Collect(context.Background(), GateOutcome{Tools: ToolAdmission{KB: true}}, testQueryContext("q"), TriageSignal{})

		require.Len(t, bundle.KBDocs, 2)
		for _, item := range bundle.KBDocs {
			require.NotNil(t, item.Confidence)
			assert.Equal(t, retainFallbackConfidence, *item.Confidence)
		}
		// Best scores first.
		assert.Equal(t, "doc 0", bundle.KBDocs[0].Content)
		assert.Equal(t, "doc 2", bundle.KBDocs[1].Content)
	})

	t.Run("Should skip reranking tiny candidate sets", func(t *testing.T) {
		t.Parallel()
		cfg := testEngineConfig()
		cfg.MaxRetry = 1
		retriever := &scriptRetriever{docs: [][]Document{makeDocs(3)}}
		reranker := &scriptReranker{scores: [][]float64{{0.9}}}
		c := NewCollector(retriever, reranker, nil, nil, cfg, nil)

		bundle := c.Collect(context.Background(), GateOutcome{Tools: ToolAdmission{KB: true}}, testQueryContext("q"), TriageSignal{})

		assert.Zero(t, reranker.calls)
		require.Len(t, bundle.KBDocs, 3)
		for _, item := range bundle.KBDocs {
			assert.Nil(t, item.Confidence)
		}
	})

	t.Run("Should record failed attempts and keep going", func(t *testing.T) {
		t.Parallel()
		retriever := &scriptRetriever{err: errors.New("vector store down")}
		c := NewCollector(retriever, &scriptReranker{scores: [][]float64{{0.9}}}, nil, nil, testEngineConfig(), nil)

		bundle := c.Collect(context.Background(), GateOutcome{Tools: ToolAdmission{KB: true}}, testQueryContext("q"), TriageSignal{})

		require.Len(t, bundle.Attempts, 2)
		for _, a := range bundle.Attempts {
			assert.Contains(t, a.Err, "vector store down")
			assert.False(t, a.Enough)
		}
		assert.Empty(t, bundle.KBDocs)
	})
}

func TestCollector_ToolIsolation(t *testing.T) {
	t.Parallel()

	t.Run("Should record web and map failures without dropping KB evidence", func(t *testing.T) {
		t.Parallel()
		retriever := &scriptRetriever{docs: [][]Document{makeDocs(10)}}
		reranker := &scriptReranker{scores: [][]float64{{0.9, 0.8, 0.7, 0.65, 0.6, 0.1, 0.1, 0.1, 0.1, 0.1}}}
		web := &stubWeb{err: errors.New("search api 500")}
		geo := &stubGeo{err: errors.New("geocode failed")}
		c := NewCollector(retriever, reranker, web, geo, testEngineConfig(), nil)

		bundle := c.Collect(context.Background(), allToolsGate(), testQueryContext("q"), TriageSignal{})

		assert.Len(t, bundle.KBDocs, 5)
		require.Len(t, bundle.Failures, 2)
		tools := []string{bundle.Failures[0].Tool, bundle.Failures[1].Tool}
		assert.ElementsMatch(t, []string{"web", "map"}, tools)
	})

	t.Run("Should produce an empty bundle with full attempt history when every tool fails", func(t *testing.T) {
		t.Parallel()
		retriever := &scriptRetriever{err: errors.New("down")}
		web := &stubWeb{err: errors.New("down")}
		geo := &stubGeo{err: errors.New("down")}
		c := NewCollector(retriever, &scriptReranker{scores: [][]float64{{0.9}}}, web, geo, testEngineConfig(), nil)

		bundle := c.Collect(context.Background(), allToolsGate(), testQueryContext("q"), TriageSignal{})

		assert.True(t, bundle.Empty())
		assert.Len(t, bundle.Attempts, 2)
		assert.Len(t, bundle.Failures, 2)
	})

	t.Run("Should pass the base query to web search, not the enriched one", func(t *testing.T) {
		t.Parallel()
		retriever := &scriptRetriever{}
		web := &stubWeb{}
		c := NewCollector(retriever, &scriptReranker{scores: [][]float64{{0.9}}}, web, nil, testEngineConfig(), nil)

		signal := TriageSignal{AnimalType: "cat", Urgency: UrgencyHigh}
		c.Collect(context.Background(), allToolsGate(), testQueryContext("injured cat"), signal)

		require.Len(t, web.queries, 1)
		assert.Equal(t, "injured cat", web.queries[0])
	})

	t.Run("Should clamp the map radius into the configured band", func(t *testing.T) {
		t.Parallel()
		geo := &stubGeo{}
		c := NewCollector(&scriptRetriever{}, &scriptReranker{scores: [][]float64{{0.9}}}, nil, geo, testEngineConfig(), nil)

		gate := allToolsGate()
		gate.MapParams.RadiusKM = 50
		c.Collect(context.Background(), gate, testQueryContext("q"), TriageSignal{})

		assert.Equal(t, 20, geo.radiusKM)
		assert.Equal(t, "Shanghai", geo.location)
		assert.Equal(t, "hospital", geo.resource)
	})

	t.Run("Should cap map results at the configured count", func(t *testing.T) {
		t.Parallel()
		cfg := testEngineConfig()
		cfg.MapMaxResults = 5
		geo := &stubGeo{}
		c := NewCollector(&scriptRetriever{}, &scriptReranker{scores: [][]float64{{0.9}}}, nil, geo, cfg, nil)

		c.Collect(context.Background(), allToolsGate(), testQueryContext("q"), TriageSignal{})

		assert.Equal(t, 5, geo.maxResults)
	})

	t.Run("Should sort web facts by confidence descending", func(t *testing.T) {
		t.Parallel()
		web := &stubWeb{facts: []WebFact{
			{Content: "low", Confidence: 0.3},
			{Content: "high", Confidence: 0.9},
			{Content: "mid", Confidence: 0.6},
		}}
		c := NewCollector(&scriptRetriever{}, &scriptReranker{scores: [][]float64{{0.9}}}, web, nil, testEngineConfig(), nil)

		bundle := c.Collect(context.Background(), allToolsGate(), testQueryContext("q"), TriageSignal{})

		require.Len(t, bundle.WebFacts, 3)
		assert.Equal(t, "high", bundle.WebFacts[0].Content)
		assert.Equal(t, "mid", bundle.WebFacts[1].Content)
		assert.Equal(t, "low", bundle.WebFacts[2].Content)
	})
}

func TestEnrichQuery(t *testing.T) {
	t.Parallel()

	t.Run("Should append a structured hint line", func(t *testing.T) {
		t.Parallel()
		signal := TriageSignal{
			AnimalType: "cat",
			Urgency:    UrgencyHigh,
			RedFlags:   []string{"heavy_bleeding"},
			Injuries:   []InjuryObservation{{Part: "leg", Type: "fracture"}},
		}

		got := enrichQuery("injured cat", signal, 0.6)

		assert.Equal(t, "injured cat\nanimal=cat | urgency=HIGH | red_flags=heavy_bleeding | injury=leg fracture", got)
	})

	t.Run("Should skip enrichment when signal confidence is low", func(t *testing.T) {
		t.Parallel()
		conf := 0.4
		signal := TriageSignal{AnimalType: "cat", Confidence: &conf}

		assert.Equal(t, "injured cat", enrichQuery("injured cat", signal, 0.6))
	})

	t.Run("Should enrich when confidence is missing", func(t *testing.T) {
		t.Parallel()
		signal := TriageSignal{AnimalType: "dog"}

		got := enrichQuery("limping dog", signal, 0.6)

		assert.Contains(t, got, "animal=dog")
	})

	t.Run("Should leave an empty base query alone", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "", enrichQuery("", TriageSignal{AnimalType: "cat"}, 0.6))
	})
}
