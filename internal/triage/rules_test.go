package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescue-agent/backend/internal/engine"
)

func TestRuleSignal(t *testing.T) {
	t.Parallel()

	t.Run("Should flag critical urgency on a red-flag phrase", func(t *testing.T) {
		t.Parallel()
		signal := RuleSignal("My dog was hit and now there is blood everywhere")

		assert.Equal(t, engine.UrgencyCritical, signal.Urgency)
		assert.Contains(t, signal.RedFlags, "heavy_bleeding")
		require.NotNil(t, signal.Confidence)
		assert.Equal(t, 0.7, *signal.Confidence)
		assert.Equal(t, "dog", signal.AnimalType)
	})

	t.Run("Should raise urgency to high on urgent keywords without red flags", func(t *testing.T) {
		t.Parallel()
		signal := RuleSignal("A cat was hit by a car near my house")

		assert.Equal(t, engine.UrgencyHigh, signal.Urgency)
		assert.Empty(t, signal.RedFlags)
		require.NotNil(t, signal.Confidence)
		assert.Equal(t, 0.3, *signal.Confidence)
	})

	t.Run("Should default to medium urgency and low confidence", func(t *testing.T) {
		t.Parallel()
		signal := RuleSignal("My rabbit is sneezing sometimes")

		assert.Equal(t, engine.UrgencyMedium, signal.Urgency)
		assert.Empty(t, signal.RedFlags)
		require.NotNil(t, signal.Confidence)
		assert.Equal(t, 0.3, *signal.Confidence)
		assert.Equal(t, "rabbit", signal.AnimalType)
	})

	t.Run("Should collect multiple red flags", func(t *testing.T) {
		t.Parallel()
		signal := RuleSignal("It is gasping and there is heavy bleeding from the leg")

		assert.ElementsMatch(t, []string{"respiratory_distress", "heavy_bleeding"}, signal.RedFlags)
		assert.Equal(t, engine.UrgencyCritical, signal.Urgency)
	})

	t.Run("Should map kitten and puppy to their species", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "cat", RuleSignal("found a kitten").AnimalType)
		assert.Equal(t, "dog", RuleSignal("found a puppy").AnimalType)
		assert.Equal(t, "", RuleSignal("found an animal").AnimalType)
	})
}

func TestRuleIntent(t *testing.T) {
	t.Parallel()

	t.Run("Should detect learn-only markers", func(t *testing.T) {
		t.Parallel()
		intent := RuleIntent("Hypothetically, what should I do if a bird breaks a wing?")

		assert.Equal(t, engine.IntentLearnOnly, intent.Label)
		assert.Contains(t, intent.Reason, "hypothetically")
	})

	t.Run("Should detect shared-content markers", func(t *testing.T) {
		t.Parallel()
		intent := RuleIntent("I saw online that a hedgehog was injured, is that treatable?")

		assert.Equal(t, engine.IntentLearnOnly, intent.Label)
	})

	t.Run("Should stay unclear without markers", func(t *testing.T) {
		t.Parallel()
		intent := RuleIntent("My cat is limping, what do I do?")

		assert.Equal(t, engine.IntentUnclear, intent.Label)
		assert.Equal(t, "no rule marker", intent.Reason)
	})
}

func TestMergeFlags(t *testing.T) {
	t.Parallel()

	t.Run("Should keep rule hits ahead of model flags", func(t *testing.T) {
		t.Parallel()
		merged := mergeFlags([]string{"heavy_bleeding"}, []string{"open_fracture"})
		assert.Equal(t, []string{"heavy_bleeding", "open_fracture"}, merged)
	})

	t.Run("Should not alias the input slices", func(t *testing.T) {
		t.Parallel()
		rules := []string{"heavy_bleeding"}
		merged := mergeFlags(rules, nil)
		merged[0] = "mutated"
		assert.Equal(t, "heavy_bleeding", rules[0])
	})
}
