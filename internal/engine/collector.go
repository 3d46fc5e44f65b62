package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rescue-agent/backend/pkg/config"
)

// retainFallbackConfidence is assigned to documents rescued by the
// retain-top-2 fallback when threshold filtering empties an attempt.
const retainFallbackConfidence = 0.3

// rerankMinCandidates is the candidate count below which reranking is skipped.
const rerankMinCandidates = 4

// Collector executes the tools admitted by the gate. Each tool call is guarded
// independently: a failure degrades that evidence source to empty and never
// aborts the others. Web and geo lookups fan out concurrently with the KB
// recall loop.
type Collector struct {
	retriever Retriever
	reranker  Reranker
	web       WebSearcher
	geo       GeoSearcher
	cfg       config.EngineConfig
	log       *zap.Logger
}

func NewCollector(retriever Retriever, reranker Reranker, web WebSearcher, geo GeoSearcher, cfg config.EngineConfig, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{
		retriever: retriever,
		reranker:  reranker,
		web:       web,
		geo:       geo,
		cfg:       cfg,
		log:       log,
	}
}

func (c *Collector) Collect(ctx context.Context, gate GateOutcome, qc QueryContext, signal TriageSignal) EvidenceBundle {
	start := time.Now()

	baseQuery := qc.SearchQuery()
	kbQuery := enrichQuery(baseQuery, signal, c.cfg.VisionConfEnrich)

	var bundle EvidenceBundle
	var mu sync.Mutex
	var wg sync.WaitGroup

	if gate.Tools.Web && c.web != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			facts, err := c.web.Search(ctx, baseQuery, c.cfg.WebSearchMaxResult)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				bundle.Failures = append(bundle.Failures, ToolFailure{Tool: "web", Err: err.Error()})
				c.log.Warn("Web search failed", zap.Error(err))
				return
			}
			bundle.WebFacts = webFactsToEvidence(facts)
		}()
	}

	if gate.Tools.Map && c.geo != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			radius := clampRadius(gate.MapParams.RadiusKM, c.cfg.MinRadiusKM, c.cfg.MaxRadiusKM)
			resource := gate.MapParams.ResourceType
			if resource == "" {
				resource = c.cfg.DefaultResource
			}
			places, err := c.geo.Search(ctx, gate.MapParams.Location, resource, radius, c.cfg.MapMaxResults)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				bundle.Failures = append(bundle.Failures, ToolFailure{Tool: "map", Err: err.Error()})
				c.log.Warn("Geo search failed", zap.Error(err))
				return
			}
			bundle.MapResults = places
		}()
	}

	if gate.Tools.KB {
		docs, attempts := c.recallLoop(ctx, kbQuery)
		mu.Lock()
		bundle.KBDocs = docs
		bundle.Attempts = attempts
		mu.Unlock()
	}

	wg.Wait()

	c.log.Info("Evidence collected",
		zap.Int("kb_docs", len(bundle.KBDocs)),
		zap.Int("web_facts", len(bundle.WebFacts)),
		zap.Int("map_results", len(bundle.MapResults)),
		zap.Int("kb_attempts", len(bundle.Attempts)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return bundle
}

// recallLoop widens top_k per attempt until enough documents survive
// filtering or the retry budget runs out. Retry exhaustion is a normal
// terminal state, not an error.
func (c *Collector) recallLoop(ctx context.Context, query string) ([]EvidenceItem, []RetryAttempt) {
	var attempts []RetryAttempt
	var lastKept []EvidenceItem

	for attempt := 0; attempt < c.cfg.MaxRetry; attempt++ {
		topK := c.cfg.RetrievalTopK + attempt*c.cfg.RetrievalStep

		kept, err := c.runAttempt(ctx, query, topK, attempt)
		if err != nil {
			attempts = append(attempts, RetryAttempt{
				Attempt: attempt + 1,
				TopK:    topK,
				Enough:  false,
				Err:     err.Error(),
			})
			c.log.Warn("KB recall attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Int("top_k", topK),
				zap.Error(err),
			)
			continue
		}

		lastKept = kept
		enough := len(kept) >= c.cfg.MinDocsRequired
		attempts = append(attempts, RetryAttempt{
			Attempt: attempt + 1,
			TopK:    topK,
			Kept:    len(kept),
			Enough:  enough,
		})

		if enough {
			break
		}
	}

	return lastKept, attempts
}

func (c *Collector) runAttempt(ctx context.Context, query string, topK, attempt int) ([]EvidenceItem, error) {
	docs, err := c.retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	// Tiny candidate sets skip reranking: filtering a handful of documents
	// adds latency without improving recall.
	if len(docs) < rerankMinCandidates {
		items := make([]EvidenceItem, 0, len(docs))
		for _, d := range docs {
			items = append(items, EvidenceItem{Type: EvidenceKB, Content: d.Content, Source: d.Source})
		}
		return items, nil
	}

	scored, err := c.reranker.Rerank(ctx, query, docs, attempt)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	threshold := c.rerankThreshold(attempt)
	filtered := make([]ScoredDocument, 0, len(scored))
	for _, sd := range scored {
		if sd.Score >= threshold {
			filtered = append(filtered, sd)
		}
	}

	// Retain-top-2 fallback: when filtering removed everything despite
	// candidates existing, keep the two best at a fixed low confidence so the
	// sufficiency stage always has something to work with.
	if len(filtered) == 0 && len(scored) > 0 {
		n := len(scored)
		if n > 2 {
			n = 2
		}
		items := make([]EvidenceItem, 0, n)
		for _, sd := range scored[:n] {
			items = append(items, EvidenceItem{
				Type:       EvidenceKB,
				Content:    sd.Content,
				Source:     sd.Source,
				Confidence: floatPtr(retainFallbackConfidence),
			})
		}
		c.log.Info("Retain-top-2 fallback fired",
			zap.Int("attempt", attempt+1),
			zap.Float64("threshold", threshold),
		)
		return items, nil
	}

	items := make([]EvidenceItem, 0, len(filtered))
	for _, sd := range filtered {
		items = append(items, EvidenceItem{
			Type:       EvidenceKB,
			Content:    sd.Content,
			Source:     sd.Source,
			Confidence: floatPtr(round3(clamp01(sd.Score))),
		})
	}
	return items, nil
}

// rerankThreshold decays with each retry so later attempts are not futile
// repeats of the same filter, and never falls below the configured floor.
func (c *Collector) rerankThreshold(attempt int) float64 {
	t := c.cfg.MinRerankScore - float64(attempt)*0.1
	if t < c.cfg.RerankScoreFloor {
		return c.cfg.RerankScoreFloor
	}
	return t
}

// enrichQuery appends a short structured hint line built from the triage
// signal. Appended as a second line, never replacing the base query, to avoid
// diluting the semantic signal. Skipped when the signal confidence is low.
func enrichQuery(base string, signal TriageSignal, confThreshold float64) string {
	if base == "" {
		return base
	}
	if signal.Confidence != nil && *signal.Confidence < confThreshold {
		return base
	}

	var parts []string
	if signal.AnimalType != "" {
		parts = append(parts, "animal="+signal.AnimalType)
	}
	parts = append(parts, "urgency="+signal.Urgency.String())
	if flags := dedupeFlags(signal.RedFlags); len(flags) > 0 {
		parts = append(parts, "red_flags="+strings.Join(flags, ", "))
	}
	var injuries []string
	for _, inj := range signal.Injuries {
		hint := strings.TrimSpace(strings.TrimSpace(inj.Part) + " " + strings.TrimSpace(inj.Type))
		if hint != "" {
			injuries = append(injuries, hint)
		}
	}
	if len(injuries) > 0 {
		parts = append(parts, "injury="+strings.Join(injuries, ", "))
	}

	if len(parts) == 0 {
		return base
	}
	return base + "\n" + strings.Join(parts, " | ")
}

func webFactsToEvidence(facts []WebFact) []EvidenceItem {
	items := make([]EvidenceItem, 0, len(facts))
	for _, f := range facts {
		items = append(items, EvidenceItem{
			Type:       EvidenceWeb,
			Content:    f.Content,
			Source:     f.Source,
			URL:        f.URL,
			Confidence: floatPtr(f.Confidence),
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return derefConf(items[i].Confidence) > derefConf(items[j].Confidence)
	})
	return items
}

func derefConf(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func clampRadius(radius, min, max int) int {
	if radius < min {
		return min
	}
	if radius > max {
		return max
	}
	return radius
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
