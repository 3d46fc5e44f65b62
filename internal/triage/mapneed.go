package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rescue-agent/backend/internal/engine"
	"github.com/rescue-agent/backend/internal/llm"
)

const mapNeedSystemPrompt = `You are a tool-routing judge. Decide whether the user is asking for a nearby physical resource: an animal hospital, rescue station, shelter, contact, address, or directions.
Return ONLY JSON: {"need_map": true/false, "reason": "..."}`

// nearbyKeywords short-circuit the model for obvious cases.
var nearbyKeywords = []string{
	"nearby", "nearest", "closest", "around here", "near me", "animal hospital", "vet clinic", "shelter", "rescue station",
}

// MapNeedJudge decides whether geo search should run for a non-emergency
// request. Rule first, model fallback. Implements engine.MapNeedJudge.
type MapNeedJudge struct {
	client *llm.Client
}

func NewMapNeedJudge(client *llm.Client) *MapNeedJudge {
	return &MapNeedJudge{client: client}
}

func (j *MapNeedJudge) NeedMap(ctx context.Context, query string, history []engine.Turn) (bool, string, error) {
	lower := strings.ToLower(query)
	for _, kw := range nearbyKeywords {
		if strings.Contains(lower, kw) {
			return true, "keyword:" + kw, nil
		}
	}

	prompt := fmt.Sprintf("Current question: %s\nRecent conversation:\n%s",
		query, llm.FormatHistory(history, 3))

	raw, err := j.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: mapNeedSystemPrompt,
		UserPrompt:   prompt,
		Temperature:  0.1,
		MaxTokens:    150,
	})
	if err != nil {
		return false, "", fmt.Errorf("map-need call failed: %w", err)
	}

	jsonStr := ExtractFirstJSONObject(raw)
	if jsonStr == "" {
		return false, "", fmt.Errorf("map-need answer has no JSON object")
	}

	var parsed struct {
		NeedMap bool   `json:"need_map"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return false, "", fmt.Errorf("map-need answer malformed: %w", err)
	}

	return parsed.NeedMap, strings.TrimSpace(parsed.Reason), nil
}
