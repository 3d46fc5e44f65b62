package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rescue-agent/backend/internal/engine"
)

const generatorSystemPrompt = `You are a veterinary first-response assistant for an animal rescue platform.
You help people who find injured, sick, or stray animals.
Follow the numbered instructions exactly. Answer only from the provided evidence.`

const rewriterSystemPrompt = `You rewrite user questions about animal rescue into self-contained search queries.
Resolve pronouns and references using the conversation history.
Keep the animal species, symptoms, and urgency words. Return ONLY the rewritten query.`

// Generator produces the final answer from the evidence package and the
// strategy directives. Implements engine.Generator.
type Generator struct {
	client *Client
	log    *zap.Logger
}

func NewGenerator(client *Client, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{client: client, log: log}
}

func (g *Generator) Generate(ctx context.Context, genCtx engine.GenerationContext, instructions engine.InstructionSet) (string, error) {
	evidence := buildEvidenceContext(genCtx)

	var sb strings.Builder
	sb.WriteString("## Evidence\n")
	sb.WriteString(evidence)
	sb.WriteString("\n\n## Question\n")
	sb.WriteString(genCtx.Query)
	sb.WriteString("\n\n## Instructions\n")
	for i, d := range instructions.Directives {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, d)
	}

	response, err := g.client.Complete(ctx, CompletionRequest{
		SystemPrompt: generatorSystemPrompt,
		UserPrompt:   sb.String(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	g.log.Info("Response generated",
		zap.String("mode", string(genCtx.Mode)),
		zap.Int("response_length", len(response)),
	)

	return response, nil
}

// buildEvidenceContext packs every evidence source into one block the model
// can cite from.
func buildEvidenceContext(genCtx engine.GenerationContext) string {
	var parts []string

	if summary := strings.TrimSpace(genCtx.Signal.Summary); summary != "" {
		parts = append(parts, "### Situation assessment\n- "+summary)
	}

	if len(genCtx.Bundle.KBDocs) > 0 {
		var sb strings.Builder
		sb.WriteString("### Knowledge base\n")
		for i, doc := range genCtx.Bundle.KBDocs {
			source := doc.Source
			if source == "" {
				source = "unknown"
			}
			fmt.Fprintf(&sb, "[%d] (source: %s)\n%s\n", i+1, source, doc.Content)
		}
		parts = append(parts, sb.String())
	}

	if len(genCtx.Bundle.WebFacts) > 0 {
		var sb strings.Builder
		sb.WriteString("### Web search\n")
		for i, fact := range genCtx.Bundle.WebFacts {
			fmt.Fprintf(&sb, "[%d] (source: %s, url: %s)\n%s\n", i+1, fact.Source, fact.URL, fact.Content)
		}
		parts = append(parts, sb.String())
	}

	if len(genCtx.Bundle.MapResults) > 0 {
		var sb strings.Builder
		sb.WriteString("### Nearby rescue resources\n")
		for _, place := range genCtx.Bundle.MapResults {
			addr := place.Address
			if addr == "" {
				addr = "address unknown"
			}
			tel := place.Tel
			if tel == "" {
				tel = "no phone"
			}
			fmt.Fprintf(&sb, "- %s (%s, %s)\n", place.Name, addr, tel)
		}
		parts = append(parts, sb.String())
	}

	if len(parts) == 0 {
		return "No reference material available."
	}
	return strings.Join(parts, "\n")
}

// Rewriter rewrites the user query for retrieval. Implements engine.Rewriter;
// the engine falls back to the normalized query when it fails.
type Rewriter struct {
	client *Client
}

func NewRewriter(client *Client) *Rewriter {
	return &Rewriter{client: client}
}

func (r *Rewriter) Rewrite(ctx context.Context, query string, history []engine.Turn) (string, error) {
	prompt := fmt.Sprintf("Conversation history:\n%s\n\nCurrent question: %s\n\nRewritten query:",
		FormatHistory(history, 5), query)

	rewritten, err := r.client.Complete(ctx, CompletionRequest{
		SystemPrompt: rewriterSystemPrompt,
		UserPrompt:   prompt,
		Temperature:  0.1,
		MaxTokens:    150,
	})
	if err != nil {
		return "", err
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return query, nil
	}
	return rewritten, nil
}

// FormatHistory renders the most recent turns for a prompt.
func FormatHistory(history []engine.Turn, limit int) string {
	if len(history) == 0 {
		return "(none)"
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	lines := make([]string, 0, len(history))
	for i, turn := range history {
		lines = append(lines, fmt.Sprintf("[%d] %s: %s", i+1, turn.Role, turn.Content))
	}
	return strings.Join(lines, "\n")
}
