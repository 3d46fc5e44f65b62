package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescue-agent/backend/pkg/config"
)

type stubMapJudge struct {
	need   bool
	reason string
	err    error
	calls  int
}

func (s *stubMapJudge) NeedMap(ctx context.Context, query string, history []Turn) (bool, string, error) {
	s.calls++
	return s.need, s.reason, s.err
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		RetrievalTopK:      15,
		RetrievalStep:      5,
		MaxRetry:           2,
		MinDocsRequired:    5,
		MinRerankScore:     0.55,
		RerankScoreFloor:   0.35,
		VisionConfEnrich:   0.6,
		DefaultRadiusKM:    10,
		MinRadiusKM:        1,
		MaxRadiusKM:        20,
		DefaultResource:    "hospital",
		WebSearchMaxResult: 8,
		MapMaxResults:      3,
	}
}

func testQueryContext(query string) QueryContext {
	return QueryContext{RawQuery: query, NormalizedQuery: query}
}

func TestGate_ModeSelection(t *testing.T) {
	t.Parallel()

	caps := Capabilities{WebEnabled: true}

	t.Run("Should force emergency on critical urgency even for learn-only intent", func(t *testing.T) {
		t.Parallel()
		g := NewGate(&stubMapJudge{}, testEngineConfig(), nil)
		out := g.Decide(context.Background(),
			TriageSignal{Urgency: UrgencyCritical},
			Intent{Label: IntentLearnOnly},
			caps, testQueryContext("my dog is dying"))

		assert.Equal(t, ModeEmergency, out.Mode)
		assert.Contains(t, out.Reasons, "mode=emergency_due_to_critical_condition")
	})

	t.Run("Should force emergency on a hard red flag regardless of urgency", func(t *testing.T) {
		t.Parallel()
		g := NewGate(&stubMapJudge{}, testEngineConfig(), nil)
		out := g.Decide(context.Background(),
			TriageSignal{Urgency: UrgencyLow, RedFlags: []string{"heavy_bleeding"}},
			Intent{Label: IntentLearnOnly},
			caps, testQueryContext("what does bleeding mean"))

		assert.Equal(t, ModeEmergency, out.Mode)
		assert.Contains(t, out.Reasons, "hit_hard_red_flag")
	})

	t.Run("Should pick hybrid for high risk with learn-only intent", func(t *testing.T) {
		t.Parallel()
		g := NewGate(&stubMapJudge{}, testEngineConfig(), nil)
		out := g.Decide(context.Background(),
			TriageSignal{Urgency: UrgencyHigh},
			Intent{Label: IntentLearnOnly},
			caps, testQueryContext("why do broken legs swell"))

		assert.Equal(t, ModeHybrid, out.Mode)
		assert.Contains(t, out.Reasons, "mode=hybrid_high_risk_but_learn_intent")
	})

	t.Run("Should pick emergency for high risk with help intent", func(t *testing.T) {
		t.Parallel()
		g := NewGate(&stubMapJudge{}, testEngineConfig(), nil)
		out := g.Decide(context.Background(),
			TriageSignal{Urgency: UrgencyHigh},
			Intent{Label: IntentRealHelp},
			caps, testQueryContext("found a cat with a broken leg"))

		assert.Equal(t, ModeEmergency, out.Mode)
	})

	t.Run("Should treat any red flag as high risk", func(t *testing.T) {
		t.Parallel()
		g := NewGate(&stubMapJudge{}, testEngineConfig(), nil)
		out := g.Decide(context.Background(),
			TriageSignal{Urgency: UrgencyMedium, RedFlags: []string{"not_eating"}},
			Intent{Label: IntentRealHelp},
			caps, testQueryContext("cat refuses food for days"))

		assert.Equal(t, ModeEmergency, out.Mode)
	})

	t.Run("Should pick normal for a stable condition", func(t *testing.T) {
		t.Parallel()
		g := NewGate(&stubMapJudge{}, testEngineConfig(), nil)
		out := g.Decide(context.Background(),
			TriageSignal{Urgency: UrgencyMedium},
			Intent{Label: IntentRealHelp},
			caps, testQueryContext("what should I feed a stray kitten"))

		assert.Equal(t, ModeNormal, out.Mode)
		assert.Contains(t, out.Reasons, "mode=normal_stable_condition")
	})
}

func TestGate_ToolAdmission(t *testing.T) {
	t.Parallel()

	t.Run("Should always admit the knowledge base", func(t *testing.T) {
		t.Parallel()
		g := NewGate(&stubMapJudge{}, testEngineConfig(), nil)
		out := g.Decide(context.Background(),
			TriageSignal{Urgency: UrgencyLow},
			Intent{Label: IntentLearnOnly},
			Capabilities{}, testQueryContext("q"))

		assert.True(t, out.Tools.KB)
	})

	t.Run("Should suppress web search in emergency mode even when enabled", func(t *testing.T) {
		t.Parallel()
		g := NewGate(&stubMapJudge{}, testEngineConfig(), nil)
		out := g.Decide(context.Background(),
			TriageSignal{Urgency: UrgencyCritical},
			Intent{Label: IntentRealHelp},
			Capabilities{WebEnabled: true}, testQueryContext("q"))

		assert.Equal(t, ModeEmergency, out.Mode)
		assert.False(t, out.Tools.Web)
	})

	t.Run("Should admit web search outside emergency when enabled", func(t *testing.T) {
		t.Parallel()
		g := NewGate(&stubMapJudge{}, testEngineConfig(), nil)
		out := g.Decide(context.Background(),
			TriageSignal{Urgency: UrgencyMedium},
			Intent{Label: IntentRealHelp},
			Capabilities{WebEnabled: true}, testQueryContext("q"))

		assert.True(t, out.Tools.Web)
	})

	t.Run("Should grant map unconditionally in emergency with a location", func(t *testing.T) {
		t.Parallel()
		judge := &stubMapJudge{need: false}
		g := NewGate(judge, testEngineConfig(), nil)
		out := g.Decide(context.Background(),
			TriageSignal{Urgency: UrgencyCritical},
			Intent{Label: IntentRealHelp},
			Capabilities{MapEnabled: true, Location: "Shanghai"}, testQueryContext("q"))

		assert.True(t, out.Tools.Map)
		assert.Contains(t, out.Reasons, "map=granted_emergency")
		assert.Zero(t, judge.calls, "emergency admission must not consult the judge")
	})

	t.Run("Should never admit map without a location", func(t *testing.T) {
		t.Parallel()
		g := NewGate(&stubMapJudge{need: true}, testEngineConfig(), nil)
		out := g.Decide(context.Background(),
			TriageSignal{Urgency: UrgencyCritical},
			Intent{Label: IntentRealHelp},
			Capabilities{MapEnabled: true}, testQueryContext("q"))

		assert.False(t, out.Tools.Map)
	})

	t.Run("Should consult the map judge outside emergency", func(t *testing.T) {
		t.Parallel()
		judge := &stubMapJudge{need: true, reason: "keyword:nearby"}
		g := NewGate(judge, testEngineConfig(), nil)
		out := g.Decide(context.Background(),
			TriageSignal{Urgency: UrgencyMedium},
			Intent{Label: IntentRealHelp},
			Capabilities{MapEnabled: true, Location: "Beijing"}, testQueryContext("nearby animal hospital"))

		assert.True(t, out.Tools.Map)
		assert.Equal(t, 1, judge.calls)
		assert.Contains(t, out.Reasons, "map_check:keyword:nearby")
	})

	t.Run("Should degrade to no map when the judge fails", func(t *testing.T) {
		t.Parallel()
		judge := &stubMapJudge{err: errors.New("model timeout")}
		g := NewGate(judge, testEngineConfig(), nil)
		out := g.Decide(context.Background(),
			TriageSignal{Urgency: UrgencyMedium},
			Intent{Label: IntentRealHelp},
			Capabilities{MapEnabled: true, Location: "Beijing"}, testQueryContext("q"))

		assert.False(t, out.Tools.Map)
		require.NotEmpty(t, out.Reasons)
		assert.Contains(t, out.Reasons[len(out.Reasons)-1], "map_check_failed:")
	})
}

func TestGate_MapParams(t *testing.T) {
	t.Parallel()

	t.Run("Should carry the caller radius and location", func(t *testing.T) {
		t.Parallel()
		g := NewGate(&stubMapJudge{}, testEngineConfig(), nil)
		out := g.Decide(context.Background(),
			TriageSignal{Urgency: UrgencyCritical},
			Intent{Label: IntentRealHelp},
			Capabilities{MapEnabled: true, Location: "Hangzhou", RadiusKM: 5}, testQueryContext("q"))

		assert.Equal(t, "Hangzhou", out.MapParams.Location)
		assert.Equal(t, 5, out.MapParams.RadiusKM)
		assert.Equal(t, "hospital", out.MapParams.ResourceType)
	})

	t.Run("Should default the radius when unset", func(t *testing.T) {
		t.Parallel()
		g := NewGate(&stubMapJudge{}, testEngineConfig(), nil)
		out := g.Decide(context.Background(),
			TriageSignal{Urgency: UrgencyMedium},
			Intent{Label: IntentRealHelp},
			Capabilities{}, testQueryContext("q"))

		assert.Equal(t, 10, out.MapParams.RadiusKM)
	})
}

func TestGate_Deterministic(t *testing.T) {
	t.Parallel()

	g := NewGate(&stubMapJudge{need: true, reason: "r"}, testEngineConfig(), nil)
	signal := TriageSignal{Urgency: UrgencyHigh, RedFlags: []string{"heavy_bleeding", "heavy_bleeding"}}
	intent := Intent{Label: IntentRealHelp}
	caps := Capabilities{WebEnabled: true, MapEnabled: true, Location: "X"}

	first := g.Decide(context.Background(), signal, intent, caps, testQueryContext("q"))
	second := g.Decide(context.Background(), signal, intent, caps, testQueryContext("q"))

	assert.Equal(t, first, second)
}
