package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rescue-agent/backend/internal/engine"
	"github.com/rescue-agent/backend/internal/llm"
)

const triageSystemPrompt = `You are a veterinary triage classifier for an animal rescue platform.
Assess the situation and the user's intent from their message and conversation history.

Urgency levels: LOW (general knowledge), MEDIUM (mild symptoms, no danger), HIGH (significant injury or illness), CRITICAL (life-threatening).
Red flag tags (use only these): heavy_bleeding, open_fracture, respiratory_distress, seizure_or_unconscious.
Intent labels:
- real_help: the user faces a real animal in trouble right now and needs actionable steps.
- learn_only: educational, hypothetical, or shared-content questions ("saw online", "what if", "why does").
- unclear: too short or ambiguous to tell.

Return ONLY a JSON object:
{"urgency": "...", "red_flags": [...], "confidence": 0.0-1.0, "animal_type": "...", "injuries": [{"part": "...", "type": "..."}], "summary": "...", "intent": "...", "intent_reason": "..."}`

// Classifier is the hybrid SignalExtractor: a deterministic keyword rule
// layer runs first, then the model refines urgency, intent, and the summary.
// When the model call fails the rule assessment is returned instead, so the
// pipeline always gets a signal. Implements engine.Classifier.
type Classifier struct {
	client *llm.Client
	log    *zap.Logger
}

func NewClassifier(client *llm.Client, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{client: client, log: log}
}

type triageResponse struct {
	Urgency    string   `json:"urgency"`
	RedFlags   []string `json:"red_flags"`
	Confidence *float64 `json:"confidence"`
	AnimalType string   `json:"animal_type"`
	Injuries   []struct {
		Part string `json:"part"`
		Type string `json:"type"`
	} `json:"injuries"`
	Summary      string `json:"summary"`
	Intent       string `json:"intent"`
	IntentReason string `json:"intent_reason"`
}

func (c *Classifier) Classify(ctx context.Context, query string, history []engine.Turn, imageRefs []string) (engine.TriageSignal, engine.Intent, error) {
	ruleSignal := RuleSignal(query)
	ruleIntent := RuleIntent(query)

	prompt := fmt.Sprintf("Conversation history:\n%s\n\nAttached images: %d\n\nCurrent message: %s",
		llm.FormatHistory(history, 5), len(imageRefs), query)

	raw, err := c.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: triageSystemPrompt,
		UserPrompt:   prompt,
		Temperature:  0.1,
		MaxTokens:    600,
	})
	if err != nil {
		c.log.Warn("Triage model call failed, using rule assessment", zap.Error(err))
		return ruleSignal, ruleIntent, nil
	}

	var parsed triageResponse
	jsonStr := ExtractFirstJSONObject(raw)
	if jsonStr == "" || json.Unmarshal([]byte(jsonStr), &parsed) != nil {
		c.log.Warn("Triage model returned unparseable output, using rule assessment",
			zap.String("raw", truncate(raw, 200)))
		return ruleSignal, ruleIntent, nil
	}

	signal := engine.TriageSignal{
		Urgency:    engine.ParseUrgency(parsed.Urgency),
		RedFlags:   mergeFlags(ruleSignal.RedFlags, parsed.RedFlags),
		Confidence: parsed.Confidence,
		AnimalType: strings.TrimSpace(parsed.AnimalType),
		Summary:    strings.TrimSpace(parsed.Summary),
	}
	for _, inj := range parsed.Injuries {
		signal.Injuries = append(signal.Injuries, engine.InjuryObservation{Part: inj.Part, Type: inj.Type})
	}
	if signal.AnimalType == "" {
		signal.AnimalType = ruleSignal.AnimalType
	}
	// Rules outrank the model on severity: a keyword red flag keeps its
	// critical rating even if the model graded lower.
	if ruleSignal.Urgency > signal.Urgency {
		signal.Urgency = ruleSignal.Urgency
	}

	intent := engine.Intent{Label: parseIntent(parsed.Intent), Reason: strings.TrimSpace(parsed.IntentReason)}
	if ruleIntent.Label == engine.IntentLearnOnly && intent.Label == engine.IntentUnclear {
		intent = ruleIntent
	}

	return signal, intent, nil
}

func parseIntent(s string) engine.IntentLabel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "real_help":
		return engine.IntentRealHelp
	case "learn_only":
		return engine.IntentLearnOnly
	default:
		return engine.IntentUnclear
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
