package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kbItems(n int) []EvidenceItem {
	items := make([]EvidenceItem, n)
	for i := range items {
		items[i] = EvidenceItem{Type: EvidenceKB, Content: "doc"}
	}
	return items
}

func TestSufficiency_Emergency(t *testing.T) {
	t.Parallel()

	s := NewSufficiency(testEngineConfig(), nil)

	t.Run("Should always grade emergency mode as EMERGENCY", func(t *testing.T) {
		t.Parallel()
		verdict := s.Evaluate(ModeEmergency, EvidenceBundle{}, TriageSignal{}, "")

		assert.Equal(t, LevelEmergency, verdict.Level)
	})

	t.Run("Should attach the fixed triage follow-up questions", func(t *testing.T) {
		t.Parallel()
		verdict := s.Evaluate(ModeEmergency, EvidenceBundle{}, TriageSignal{}, "")

		require.Len(t, verdict.FollowupQuestions, 3)
		assert.Contains(t, verdict.FollowupQuestions[0], "life-threatening")
	})

	t.Run("Should raise a strong warning on thin evidence and weak assessment", func(t *testing.T) {
		t.Parallel()
		conf := 0.3
		verdict := s.Evaluate(ModeEmergency,
			EvidenceBundle{KBDocs: kbItems(1)},
			TriageSignal{Confidence: &conf}, "")

		assert.True(t, verdict.StrongWarning)
	})

	t.Run("Should raise a strong warning when confidence was never assessed", func(t *testing.T) {
		t.Parallel()
		verdict := s.Evaluate(ModeEmergency, EvidenceBundle{}, TriageSignal{}, "")

		assert.True(t, verdict.StrongWarning)
	})

	t.Run("Should not warn when evidence is adequate", func(t *testing.T) {
		t.Parallel()
		conf := 0.9
		verdict := s.Evaluate(ModeEmergency,
			EvidenceBundle{KBDocs: kbItems(3)},
			TriageSignal{Confidence: &conf}, "")

		assert.False(t, verdict.StrongWarning)
	})

	t.Run("Should not warn on thin evidence when the assessment is confident", func(t *testing.T) {
		t.Parallel()
		conf := 0.8
		verdict := s.Evaluate(ModeEmergency,
			EvidenceBundle{KBDocs: kbItems(1)},
			TriageSignal{Confidence: &conf}, "")

		assert.False(t, verdict.StrongWarning)
	})
}

func TestSufficiency_Grading(t *testing.T) {
	t.Parallel()

	s := NewSufficiency(testEngineConfig(), nil)
	conf := func(v float64) *float64 { return &v }

	t.Run("Should grade ENOUGH when the knowledge base met the minimum", func(t *testing.T) {
		t.Parallel()
		verdict := s.Evaluate(ModeNormal,
			EvidenceBundle{KBDocs: kbItems(5)},
			TriageSignal{Confidence: conf(0.2)}, "")

		assert.Equal(t, LevelEnough, verdict.Level)
		assert.Empty(t, verdict.FollowupQuestions)
	})

	t.Run("Should grade PARTIAL on thin KB with a confident signal", func(t *testing.T) {
		t.Parallel()
		verdict := s.Evaluate(ModeNormal,
			EvidenceBundle{KBDocs: kbItems(2)},
			TriageSignal{Confidence: conf(0.8)}, "")

		assert.Equal(t, LevelPartial, verdict.Level)
		assert.Len(t, verdict.FollowupQuestions, 3)
	})

	t.Run("Should grade PARTIAL when web facts compensate", func(t *testing.T) {
		t.Parallel()
		verdict := s.Evaluate(ModeHybrid,
			EvidenceBundle{WebFacts: []EvidenceItem{{Type: EvidenceWeb}}},
			TriageSignal{Confidence: conf(0.1)}, "")

		assert.Equal(t, LevelPartial, verdict.Level)
	})

	t.Run("Should grade INSUFFICIENT when nothing supports an answer", func(t *testing.T) {
		t.Parallel()
		verdict := s.Evaluate(ModeNormal,
			EvidenceBundle{},
			TriageSignal{Confidence: conf(0.1)}, "")

		assert.Equal(t, LevelInsufficient, verdict.Level)
		assert.Len(t, verdict.FollowupQuestions, 3)
	})

	t.Run("Should track missing context fields", func(t *testing.T) {
		t.Parallel()
		verdict := s.Evaluate(ModeNormal, EvidenceBundle{}, TriageSignal{}, "")

		assert.ElementsMatch(t, []string{"triage_summary", "location"}, verdict.Missing)

		verdict = s.Evaluate(ModeNormal, EvidenceBundle{}, TriageSignal{Summary: "injured cat"}, "Shanghai")
		assert.Empty(t, verdict.Missing)
	})

	t.Run("Should treat missing confidence as acceptable for grading", func(t *testing.T) {
		t.Parallel()
		verdict := s.Evaluate(ModeNormal, EvidenceBundle{}, TriageSignal{}, "")

		assert.Equal(t, LevelPartial, verdict.Level)
	})
}
