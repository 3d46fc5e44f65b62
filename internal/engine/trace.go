package engine

import "time"

// TraceEntry is one stage's snapshot in the decision trace.
type TraceEntry struct {
	Node      string         `json:"node"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	Outputs   map[string]any `json:"outputs,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// DecisionTrace is the append-only audit log for a single request. It is
// request-scoped and never shared across requests.
type DecisionTrace struct {
	entries []TraceEntry
}

func NewDecisionTrace() *DecisionTrace {
	return &DecisionTrace{}
}

func (t *DecisionTrace) Append(node string, inputs, outputs map[string]any) {
	if t == nil {
		return
	}
	t.entries = append(t.entries, TraceEntry{
		Node:      node,
		Inputs:    inputs,
		Outputs:   outputs,
		Timestamp: time.Now(),
	})
}

// Entries returns a copy so callers cannot mutate the log.
func (t *DecisionTrace) Entries() []TraceEntry {
	if t == nil {
		return nil
	}
	out := make([]TraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *DecisionTrace) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
