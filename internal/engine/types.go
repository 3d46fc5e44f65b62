package engine

import (
	"strings"
)

// Urgency is the 4-level severity scale used across the pipeline. Classifier
// backends that emit the legacy 3-level vocabulary (info/common/critical) are
// normalized through ParseUrgency.
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyMedium
	UrgencyHigh
	UrgencyCritical
)

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "LOW"
	case UrgencyMedium:
		return "MEDIUM"
	case UrgencyHigh:
		return "HIGH"
	case UrgencyCritical:
		return "CRITICAL"
	default:
		return "MEDIUM"
	}
}

// ParseUrgency accepts both severity vocabularies and defaults to MEDIUM on
// anything unrecognized.
func ParseUrgency(s string) Urgency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "info":
		return UrgencyLow
	case "medium", "common":
		return UrgencyMedium
	case "high":
		return UrgencyHigh
	case "critical":
		return UrgencyCritical
	default:
		return UrgencyMedium
	}
}

type IntentLabel string

const (
	IntentRealHelp  IntentLabel = "real_help"
	IntentLearnOnly IntentLabel = "learn_only"
	IntentUnclear   IntentLabel = "unclear"
)

// Intent is the classified purpose of the user's request, with the
// classifier's stated reason kept for the audit trail.
type Intent struct {
	Label  IntentLabel
	Reason string
}

// Turn is one entry of the conversation history.
type Turn struct {
	Role    string
	Content string
}

// InjuryObservation is a structured injury descriptor extracted by triage.
type InjuryObservation struct {
	Part string
	Type string
}

// TriageSignal is the situational assessment produced once per request.
// Confidence is nil when the classifier did not commit to one.
type TriageSignal struct {
	Urgency    Urgency
	RedFlags   []string
	Confidence *float64
	AnimalType string
	Injuries   []InjuryObservation
	Summary    string
}

// QueryContext carries the request text in its three forms. RewrittenQuery is
// the preferred search key; SearchQuery falls back through the chain.
type QueryContext struct {
	RawQuery        string
	NormalizedQuery string
	RewrittenQuery  string
	History         []Turn
	ImageRefs       []string
}

func (q QueryContext) SearchQuery() string {
	if s := strings.TrimSpace(q.RewrittenQuery); s != "" {
		return s
	}
	if s := strings.TrimSpace(q.NormalizedQuery); s != "" {
		return s
	}
	return strings.TrimSpace(q.RawQuery)
}

type Mode string

const (
	ModeEmergency Mode = "emergency"
	ModeHybrid    Mode = "hybrid"
	ModeNormal    Mode = "normal"
)

// ToolAdmission is the per-tool on/off matrix decided by the gate.
type ToolAdmission struct {
	KB  bool
	Web bool
	Map bool
}

type MapParams struct {
	Location     string
	RadiusKM     int
	ResourceType string
}

// GateOutcome is the operating decision for one request.
type GateOutcome struct {
	Mode      Mode
	Tools     ToolAdmission
	MapParams MapParams
	Reasons   []string
}

// Capabilities are the caller-supplied switches and context the gate works with.
type Capabilities struct {
	WebEnabled bool
	MapEnabled bool
	Location   string
	RadiusKM   int
}

const (
	EvidenceKB  = "kb"
	EvidenceWeb = "web"
)

// EvidenceItem is one piece of gathered evidence. Confidence is nil for KB
// documents that skipped reranking.
type EvidenceItem struct {
	Type       string
	Content    string
	Source     string
	Confidence *float64
	URL        string
}

// Document is a raw knowledge-base hit before reranking.
type Document struct {
	ID      string
	Content string
	Source  string
}

// ScoredDocument is a reranked document. Score is the reranker's relevance
// estimate for the query.
type ScoredDocument struct {
	Document
	Score float64
}

// WebFact is a normalized, confidence-scored web search result.
type WebFact struct {
	Content    string
	Source     string
	URL        string
	Confidence float64
}

// PlaceRecord is a nearby physical resource returned by geo search.
type PlaceRecord struct {
	Name      string
	Address   string
	Location  string
	DistanceM int
	Category  string
	Tel       string
}

// RetryAttempt records one pass of the KB recall loop.
type RetryAttempt struct {
	Attempt int
	TopK    int
	Kept    int
	Enough  bool
	Err     string
}

// ToolFailure records a failed best-effort tool call.
type ToolFailure struct {
	Tool string
	Err  string
}

// EvidenceBundle is everything the collector gathered. It is mutated only by
// the collector and read-only afterward.
type EvidenceBundle struct {
	KBDocs     []EvidenceItem
	WebFacts   []EvidenceItem
	MapResults []PlaceRecord
	Attempts   []RetryAttempt
	Failures   []ToolFailure
}

// Empty reports total evidence exhaustion: nothing from any source.
func (b EvidenceBundle) Empty() bool {
	return len(b.KBDocs) == 0 && len(b.WebFacts) == 0 && len(b.MapResults) == 0
}

type SufficiencyLevel string

const (
	LevelEnough       SufficiencyLevel = "ENOUGH"
	LevelPartial      SufficiencyLevel = "PARTIAL"
	LevelInsufficient SufficiencyLevel = "INSUFFICIENT"
	LevelEmergency    SufficiencyLevel = "EMERGENCY"
)

// SufficiencyVerdict is the coarse judgement on whether gathered evidence
// supports a confident answer.
type SufficiencyVerdict struct {
	Mode              Mode
	Level             SufficiencyLevel
	Missing           []string
	FollowupQuestions []string
	StrongWarning     bool
}

// dedupeFlags removes duplicates while preserving first-seen order.
func dedupeFlags(flags []string) []string {
	seen := make(map[string]struct{}, len(flags))
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func floatPtr(v float64) *float64 { return &v }
