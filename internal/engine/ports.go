package engine

import "context"

// The engine consumes every external system through one of these interfaces.
// All of them may fail; the engine degrades instead of aborting (the only
// fatal condition is missing configuration, handled at wiring time).

// Classifier turns raw input into a triage signal and an intent label.
type Classifier interface {
	Classify(ctx context.Context, query string, history []Turn, imageRefs []string) (TriageSignal, Intent, error)
}

// MapNeedJudge answers whether the user is asking for a nearby physical
// resource. Implementations may be rule-based, model-based, or hybrid.
type MapNeedJudge interface {
	NeedMap(ctx context.Context, query string, history []Turn) (need bool, reason string, err error)
}

// Rewriter produces the search-optimized form of the user query.
type Rewriter interface {
	Rewrite(ctx context.Context, query string, history []Turn) (string, error)
}

// Retriever recalls candidate documents from the knowledge base.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Document, error)
}

// Reranker scores candidates against the query. The attempt index lets
// implementations widen their kept window on retries.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []Document, attempt int) ([]ScoredDocument, error)
}

// WebSearcher performs a single best-effort web search returning
// confidence-scored facts.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]WebFact, error)
}

// GeoSearcher looks up nearby physical resources around a location.
type GeoSearcher interface {
	Search(ctx context.Context, location, resourceType string, radiusKM, maxResults int) ([]PlaceRecord, error)
}

// GenerationContext is the evidence package handed to the generator.
type GenerationContext struct {
	Query    string
	Signal   TriageSignal
	Bundle   EvidenceBundle
	Verdict  SufficiencyVerdict
	Mode     Mode
}

// Generator produces the final natural-language answer.
type Generator interface {
	Generate(ctx context.Context, genCtx GenerationContext, instructions InstructionSet) (string, error)
}

// RequestStore persists completed requests for audit. Persistence failures
// are logged, never surfaced to the caller.
type RequestStore interface {
	RecordRequest(ctx context.Context, rec RequestRecord) error
}
