package web

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns fixed vectors by substring so cosine scores are
// deterministic: identical text embeds identically.
type fakeEmbedder struct {
	vectors map[string][]float32
	failOn  string
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("embedding backend down")
	}
	for key, vec := range f.vectors {
		if strings.Contains(text, key) {
			return vec, nil
		}
	}
	return []float32{1, 0, 0}, nil
}

func TestSourcePrior(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		url  string
		want float64
	}{
		{"government site", "https://wildlife.state.ny.gov/help", 0.95},
		{"university site", "https://vet.cornell.edu/guide", 0.90},
		{"veterinary association", "https://www.avma.org/first-aid", 0.90},
		{"wikipedia", "https://en.wikipedia.org/wiki/Cat", 0.85},
		{"reddit thread", "https://www.reddit.com/r/cats", 0.75},
		{"social network", "https://facebook.com/groups/rescue", 0.60},
		{"unknown blog", "https://random-pet-blog.example.com/post", 0.6},
	}

	for _, tc := range cases {
		tc := tc
		t.Run("Should score "+tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, sourcePrior(tc.url))
		})
	}
}

func TestContentQuality(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.2, contentQuality(strings.Repeat("a", 10)))
	assert.Equal(t, 0.5, contentQuality(strings.Repeat("a", 100)))
	assert.Equal(t, 0.8, contentQuality(strings.Repeat("a", 200)))
	assert.Equal(t, 1.0, contentQuality(strings.Repeat("a", 500)))
}

func TestRemapCosine(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, remapCosine(0.1))
	assert.Equal(t, 0.0, remapCosine(0.2))
	assert.InDelta(t, 0.5, remapCosine(0.5), 1e-9)
	assert.Equal(t, 1.0, remapCosine(0.8))
	assert.Equal(t, 1.0, remapCosine(0.95))
}

func TestCosine(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, cosine([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1, 2}, []float32{1, 2, 3}), "mismatched lengths")
	assert.Equal(t, 0.0, cosine(nil, nil))
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 1}), "zero vector")
}

func TestRuleScore(t *testing.T) {
	t.Parallel()

	// 0.6*0.95 + 0.4*1.0 = 0.97 for a long government page.
	assert.Equal(t, 0.97, ruleScore("https://cdc.gov/pets", strings.Repeat("a", 500)))
	// 0.6*0.6 + 0.4*0.2 = 0.44 for a thin unknown page.
	assert.Equal(t, 0.44, ruleScore("https://example.com", "short"))
}

func TestNormalizer_Normalize(t *testing.T) {
	t.Parallel()

	t.Run("Should blend semantic and rule scores and sort descending", func(t *testing.T) {
		t.Parallel()
		embedder := &fakeEmbedder{vectors: map[string][]float32{
			"injured cat": {1, 0, 0},
			"wound care":  {1, 0, 0}, // identical to query, semantic 1.0
			"tax advice":  {0, 1, 0}, // orthogonal, semantic 0.0
		}}
		n := NewNormalizer(embedder, nil)

		raws := []rawResult{
			{URL: "https://example.com/tax", Content: "tax advice " + strings.Repeat("x", 500)},
			{URL: "https://vet.cornell.edu/cats", Content: "wound care " + strings.Repeat("x", 500)},
		}

		facts, err := n.Normalize(context.Background(), "injured cat", raws)
		require.NoError(t, err)
		require.Len(t, facts, 2)

		// 0.6*1.0 + 0.4*round3(0.6*0.9+0.4*1.0) = 0.6 + 0.4*0.94
		assert.Equal(t, "vet.cornell.edu", facts[0].Source)
		assert.Equal(t, 0.976, facts[0].Confidence)
		// 0.6*0.0 + 0.4*round3(0.6*0.6+0.4*1.0) = 0.4*0.76
		assert.Equal(t, "example.com", facts[1].Source)
		assert.Equal(t, 0.304, facts[1].Confidence)
	})

	t.Run("Should fall back to the snippet when content is empty", func(t *testing.T) {
		t.Parallel()
		n := NewNormalizer(&fakeEmbedder{}, nil)

		facts, err := n.Normalize(context.Background(), "q", []rawResult{
			{URL: "https://example.com", Snippet: "snippet text about cats"},
		})
		require.NoError(t, err)
		require.Len(t, facts, 1)
		assert.Equal(t, "snippet text about cats", facts[0].Content)
	})

	t.Run("Should skip results without content or URL", func(t *testing.T) {
		t.Parallel()
		n := NewNormalizer(&fakeEmbedder{}, nil)

		facts, err := n.Normalize(context.Background(), "q", []rawResult{
			{URL: "https://example.com"},
			{Content: "orphan content with no url"},
			{URL: "https://kept.example.com", Content: "real content"},
		})
		require.NoError(t, err)
		require.Len(t, facts, 1)
		assert.Equal(t, "https://kept.example.com", facts[0].URL)
	})

	t.Run("Should score on rules alone when a result fails to embed", func(t *testing.T) {
		t.Parallel()
		embedder := &fakeEmbedder{failOn: "unembeddable"}
		n := NewNormalizer(embedder, nil)

		facts, err := n.Normalize(context.Background(), "q", []rawResult{
			{URL: "https://cdc.gov/pets", Content: "unembeddable " + strings.Repeat("x", 500)},
		})
		require.NoError(t, err)
		require.Len(t, facts, 1)
		// semantic 0, so confidence = 0.4 * ruleScore = 0.4 * 0.97
		assert.Equal(t, 0.388, facts[0].Confidence)
	})

	t.Run("Should fail when the query cannot be embedded", func(t *testing.T) {
		t.Parallel()
		embedder := &fakeEmbedder{failOn: "bad query"}
		n := NewNormalizer(embedder, nil)

		_, err := n.Normalize(context.Background(), "bad query", []rawResult{
			{URL: "https://example.com", Content: "content"},
		})
		assert.Error(t, err)
	})

	t.Run("Should return nothing for an empty batch", func(t *testing.T) {
		t.Parallel()
		n := NewNormalizer(&fakeEmbedder{}, nil)
		facts, err := n.Normalize(context.Background(), "q", nil)
		assert.NoError(t, err)
		assert.Nil(t, facts)
	})
}
