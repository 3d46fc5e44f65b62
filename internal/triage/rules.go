package triage

import (
	"strings"

	"github.com/rescue-agent/backend/internal/engine"
)

// redFlagKeywords maps surface phrases to canonical red-flag tags. The rule
// layer runs before any model call so that obvious danger signs are never
// missed because of a model outage.
var redFlagKeywords = map[string][]string{
	"heavy_bleeding":         {"heavy bleeding", "bleeding a lot", "bleeding heavily", "blood everywhere", "won't stop bleeding", "pool of blood"},
	"open_fracture":          {"open fracture", "bone sticking", "bone is visible", "bone showing", "compound fracture"},
	"respiratory_distress":   {"can't breathe", "cannot breathe", "gasping", "struggling to breathe", "difficulty breathing", "choking"},
	"seizure_or_unconscious": {"seizure", "convulsing", "unconscious", "not responding", "passed out", "unresponsive"},
}

var urgentKeywords = []string{
	"dying", "hit by a car", "hit by car", "poisoned", "collapsed", "emergency",
}

var learnOnlyKeywords = []string{
	"hypothetically", "what if i ever", "just curious", "saw online", "read online", "someone shared",
}

// speciesKeywords is a small lookup for the common cases; the model refines it.
var speciesKeywords = map[string]string{
	"cat": "cat", "kitten": "cat", "dog": "dog", "puppy": "dog",
	"bird": "bird", "pigeon": "bird", "rabbit": "rabbit", "hedgehog": "hedgehog",
}

// RuleSignal is the deterministic assessment from keyword rules alone.
func RuleSignal(query string) engine.TriageSignal {
	lower := strings.ToLower(query)

	var flags []string
	for tag, phrases := range redFlagKeywords {
		for _, p := range phrases {
			if strings.Contains(lower, p) {
				flags = append(flags, tag)
				break
			}
		}
	}

	urgency := engine.UrgencyMedium
	if len(flags) > 0 {
		urgency = engine.UrgencyCritical
	} else {
		for _, kw := range urgentKeywords {
			if strings.Contains(lower, kw) {
				urgency = engine.UrgencyHigh
				break
			}
		}
	}

	animal := ""
	for kw, species := range speciesKeywords {
		if strings.Contains(lower, kw) {
			animal = species
			break
		}
	}

	conf := 0.3
	if len(flags) > 0 {
		conf = 0.7
	}

	return engine.TriageSignal{
		Urgency:    urgency,
		RedFlags:   flags,
		Confidence: &conf,
		AnimalType: animal,
	}
}

// RuleIntent guesses intent from explicit hypothetical/share markers. Returns
// unclear when no marker is present, leaving the call to the model.
func RuleIntent(query string) engine.Intent {
	lower := strings.ToLower(query)
	for _, kw := range learnOnlyKeywords {
		if strings.Contains(lower, kw) {
			return engine.Intent{Label: engine.IntentLearnOnly, Reason: "matched hypothetical/shared-content marker: " + kw}
		}
	}
	return engine.Intent{Label: engine.IntentUnclear, Reason: "no rule marker"}
}

// mergeFlags unions the model's flags with the rule hits, rules first so a
// keyword match survives a model that missed it.
func mergeFlags(ruleFlags, modelFlags []string) []string {
	return append(append([]string{}, ruleFlags...), modelFlags...)
}
