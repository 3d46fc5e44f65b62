package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rescue-agent/backend/pkg/config"
)

// Request is one inbound question with its caller-supplied capabilities.
type Request struct {
	Query     string
	SessionID string
	UserID    string
	History   []Turn
	ImageRefs []string

	Location   string
	RadiusKM   int
	WebEnabled bool
	MapEnabled bool
}

// Result is everything the engine produced for one request.
type Result struct {
	ID           string
	ResponseText string
	Gate         GateOutcome
	Verdict      SufficiencyVerdict
	Bundle       EvidenceBundle
	Trace        []TraceEntry
	LatencyMS    int
}

// RequestRecord is the persisted shape of a completed request.
type RequestRecord struct {
	ID        string
	SessionID string
	UserID    string
	Query     string
	Response  string
	Mode      string
	Level     string
	KBDocs    int
	WebFacts  int
	MapHits   int
	Attempts  int
	LatencyMS int
	Trace     []TraceEntry
	CreatedAt time.Time
}

// Engine is the adaptive evidence-orchestration pipeline: classify risk and
// intent, gate tools, collect evidence, judge sufficiency, pick a response
// strategy, generate. Safe for concurrent use; all per-request state is local
// to Handle.
type Engine struct {
	classifier Classifier
	rewriter   Rewriter
	gate       *Gate
	collector  *Collector
	suff       *Sufficiency
	generator  Generator
	store      RequestStore
	cfg        config.EngineConfig
	log        *zap.Logger
}

func NewEngine(
	classifier Classifier,
	rewriter Rewriter,
	gate *Gate,
	collector *Collector,
	suff *Sufficiency,
	generator Generator,
	store RequestStore,
	cfg config.EngineConfig,
	log *zap.Logger,
) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		classifier: classifier,
		rewriter:   rewriter,
		gate:       gate,
		collector:  collector,
		suff:       suff,
		generator:  generator,
		store:      store,
		cfg:        cfg,
		log:        log,
	}
}

// Handle runs the full pipeline for one request. It always returns a result:
// every stage degrades on failure rather than aborting.
func (e *Engine) Handle(ctx context.Context, req Request) Result {
	start := time.Now()
	requestID := uuid.New().String()
	trace := NewDecisionTrace()

	e.log.Info("Handling rescue request",
		zap.String("request_id", requestID),
		zap.String("session_id", req.SessionID),
	)

	qc := e.buildQueryContext(ctx, req, trace)
	signal, intent := e.classify(ctx, qc, trace)

	caps := Capabilities{
		WebEnabled: req.WebEnabled,
		MapEnabled: req.MapEnabled,
		Location:   strings.TrimSpace(req.Location),
		RadiusKM:   req.RadiusKM,
	}
	gate := e.gate.Decide(ctx, signal, intent, caps, qc)
	trace.Append("gate",
		map[string]any{"urgency": signal.Urgency.String(), "intent": string(intent.Label)},
		map[string]any{"mode": string(gate.Mode), "tools": gate.Tools, "reasons": gate.Reasons},
	)

	bundle := e.collector.Collect(ctx, gate, qc, signal)
	trace.Append("collect_evidence",
		map[string]any{"query": qc.SearchQuery()},
		map[string]any{
			"kb_docs":   len(bundle.KBDocs),
			"web_facts": len(bundle.WebFacts),
			"map_hits":  len(bundle.MapResults),
			"attempts":  bundle.Attempts,
			"failures":  bundle.Failures,
		},
	)

	verdict := e.suff.Evaluate(gate.Mode, bundle, signal, caps.Location)
	trace.Append("sufficiency",
		map[string]any{"mode": string(gate.Mode)},
		map[string]any{"level": string(verdict.Level), "strong_warning": verdict.StrongWarning},
	)

	instructions := SelectStrategy(gate.Mode, verdict)
	trace.Append("strategy", nil, map[string]any{"directives": len(instructions.Directives)})

	response := e.generate(ctx, qc, signal, gate, bundle, verdict, instructions, trace)

	latency := int(time.Since(start).Milliseconds())
	result := Result{
		ID:           requestID,
		ResponseText: response,
		Gate:         gate,
		Verdict:      verdict,
		Bundle:       bundle,
		Trace:        trace.Entries(),
		LatencyMS:    latency,
	}

	e.persist(ctx, req, result)

	e.log.Info("Rescue request handled",
		zap.String("request_id", requestID),
		zap.String("mode", string(gate.Mode)),
		zap.String("level", string(verdict.Level)),
		zap.Int("latency_ms", latency),
	)

	return result
}

func (e *Engine) buildQueryContext(ctx context.Context, req Request, trace *DecisionTrace) QueryContext {
	qc := QueryContext{
		RawQuery:        req.Query,
		NormalizedQuery: normalizeQuery(req.Query),
		History:         req.History,
		ImageRefs:       req.ImageRefs,
	}

	if e.rewriter != nil && qc.NormalizedQuery != "" {
		rewritten, err := e.rewriter.Rewrite(ctx, qc.NormalizedQuery, qc.History)
		if err != nil {
			e.log.Warn("Query rewrite failed, using normalized query", zap.Error(err))
		} else {
			qc.RewrittenQuery = strings.TrimSpace(rewritten)
		}
	}

	trace.Append("normalize_input",
		map[string]any{"raw": qc.RawQuery},
		map[string]any{"normalized": qc.NormalizedQuery, "rewritten": qc.RewrittenQuery},
	)

	return qc
}

// classify degrades to documented defaults on failure: unclear intent and a
// low-confidence neutral signal.
func (e *Engine) classify(ctx context.Context, qc QueryContext, trace *DecisionTrace) (TriageSignal, Intent) {
	signal, intent, err := e.classifier.Classify(ctx, qc.SearchQuery(), qc.History, qc.ImageRefs)
	if err != nil {
		e.log.Warn("Classifier failed, using neutral defaults", zap.Error(err))
		signal = TriageSignal{
			Urgency:    UrgencyMedium,
			Confidence: floatPtr(0.2),
			Summary:    "",
		}
		intent = Intent{Label: IntentUnclear, Reason: "classifier_failure"}
		trace.Append("classify", nil, map[string]any{"status": "fallback", "error": err.Error()})
		return signal, intent
	}

	signal.RedFlags = dedupeFlags(signal.RedFlags)
	if signal.Confidence != nil {
		c := clamp01(*signal.Confidence)
		signal.Confidence = &c
	}

	trace.Append("classify", nil, map[string]any{
		"urgency":   signal.Urgency.String(),
		"red_flags": signal.RedFlags,
		"intent":    string(intent.Label),
		"reason":    intent.Reason,
	})
	return signal, intent
}

func (e *Engine) generate(
	ctx context.Context,
	qc QueryContext,
	signal TriageSignal,
	gate GateOutcome,
	bundle EvidenceBundle,
	verdict SufficiencyVerdict,
	instructions InstructionSet,
	trace *DecisionTrace,
) string {
	genCtx := GenerationContext{
		Query:   qc.SearchQuery(),
		Signal:  signal,
		Bundle:  bundle,
		Verdict: verdict,
		Mode:    gate.Mode,
	}

	response, err := e.generator.Generate(ctx, genCtx, instructions)
	response = strings.TrimSpace(response)
	if err != nil || response == "" {
		if err != nil {
			e.log.Warn("Generation failed, using static fallback", zap.Error(err))
		}
		response = FallbackText(gate.Mode)
		trace.Append("respond", nil, map[string]any{"status": "fallback", "mode": string(gate.Mode)})
		return response
	}

	trace.Append("respond", nil, map[string]any{"status": "ok", "length": len(response)})
	return response
}

func (e *Engine) persist(ctx context.Context, req Request, res Result) {
	if e.store == nil {
		return
	}
	rec := RequestRecord{
		ID:        res.ID,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Query:     req.Query,
		Response:  res.ResponseText,
		Mode:      string(res.Gate.Mode),
		Level:     string(res.Verdict.Level),
		KBDocs:    len(res.Bundle.KBDocs),
		WebFacts:  len(res.Bundle.WebFacts),
		MapHits:   len(res.Bundle.MapResults),
		Attempts:  len(res.Bundle.Attempts),
		LatencyMS: res.LatencyMS,
		Trace:     res.Trace,
		CreatedAt: time.Now(),
	}
	if err := e.store.RecordRequest(ctx, rec); err != nil {
		e.log.Warn("Failed to persist request record", zap.Error(err))
	}
}

// normalizeQuery collapses whitespace. Immutable after this point.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}
