package web

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/rescue-agent/backend/internal/engine"
)

// domainTrust is the source-prior table. Domains are matched by suffix;
// anything unknown gets the ordinary-site default.
var domainTrust = map[string]float64{
	".gov":          0.95,
	".edu":          0.90,
	"avma.org":      0.90,
	"aspca.org":     0.90,
	"wikipedia.org": 0.85,
	"reddit.com":    0.75,
	"medium.com":    0.70,
	"facebook.com":  0.60,
	"twitter.com":   0.60,
}

const defaultDomainTrust = 0.6

// Embedder produces dense vectors for semantic scoring.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Normalizer converts raw search hits into confidence-scored facts.
//
// confidence = 0.6 * semantic similarity + 0.4 * rule score,
// where the rule score blends source trust with content structure quality.
// Rules correct the semantic signal, they never dominate it.
type Normalizer struct {
	embedder Embedder
	log      *zap.Logger
}

func NewNormalizer(embedder Embedder, log *zap.Logger) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{embedder: embedder, log: log}
}

func (n *Normalizer) Normalize(ctx context.Context, query string, raws []rawResult) ([]engine.WebFact, error) {
	if len(raws) == 0 {
		return nil, nil
	}

	queryEmbedding, err := n.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	facts := make([]engine.WebFact, 0, len(raws))
	for _, r := range raws {
		content := r.Content
		if content == "" {
			content = r.Snippet
		}
		if content == "" || r.URL == "" {
			continue
		}

		semantic := 0.0
		docEmbedding, err := n.embedder.GenerateEmbedding(ctx, content)
		if err != nil {
			n.log.Warn("Failed to embed result, scoring on rules only",
				zap.String("url", r.URL), zap.Error(err))
		} else {
			semantic = remapCosine(cosine(queryEmbedding, docEmbedding))
		}

		rule := ruleScore(r.URL, content)
		confidence := round3(0.6*semantic + 0.4*rule)

		facts = append(facts, engine.WebFact{
			Content:    strings.TrimSpace(content),
			Source:     hostOf(r.URL),
			URL:        r.URL,
			Confidence: confidence,
		})
	}

	sort.SliceStable(facts, func(i, j int) bool {
		return facts[i].Confidence > facts[j].Confidence
	})

	return facts, nil
}

// ruleScore blends source trust with structural content quality.
func ruleScore(rawURL, content string) float64 {
	score := 0.6*sourcePrior(rawURL) + 0.4*contentQuality(content)
	if score > 1.0 {
		score = 1.0
	}
	return round3(score)
}

func sourcePrior(rawURL string) float64 {
	host := hostOf(rawURL)
	for suffix, trust := range domainTrust {
		if strings.HasSuffix(host, suffix) {
			return trust
		}
	}
	return defaultDomainTrust
}

// contentQuality scores structural quality from length alone, no semantics.
func contentQuality(content string) float64 {
	length := len(content)
	switch {
	case length < 50:
		return 0.2
	case length < 150:
		return 0.5
	case length < 400:
		return 0.8
	default:
		return 1.0
	}
}

// remapCosine stretches the useful cosine band [0.2, 0.8] onto [0, 1].
func remapCosine(cos float64) float64 {
	s := (cos - 0.2) / 0.6
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
