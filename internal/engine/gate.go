package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rescue-agent/backend/pkg/config"
)

// hardRedFlags are the biological signs that force emergency mode on their
// own, regardless of intent or stated urgency. Fixed set, not configurable.
var hardRedFlags = map[string]struct{}{
	"heavy_bleeding":         {},
	"open_fracture":          {},
	"respiratory_distress":   {},
	"seizure_or_unconscious": {},
}

// Gate maps the triage signal, intent and caller capabilities to an operating
// mode and a tool-admission matrix. It never returns an error: a failed
// map-need determination degrades to need_map=false.
type Gate struct {
	mapJudge MapNeedJudge
	cfg      config.EngineConfig
	log      *zap.Logger
}

func NewGate(mapJudge MapNeedJudge, cfg config.EngineConfig, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{mapJudge: mapJudge, cfg: cfg, log: log}
}

func (g *Gate) Decide(ctx context.Context, signal TriageSignal, intent Intent, caps Capabilities, qc QueryContext) GateOutcome {
	redFlags := dedupeFlags(signal.RedFlags)
	reasons := make([]string, 0, 4)

	hardFlagHit := false
	for _, f := range redFlags {
		if _, ok := hardRedFlags[f]; ok {
			hardFlagHit = true
			break
		}
	}
	if hardFlagHit {
		reasons = append(reasons, "hit_hard_red_flag")
	}

	highRisk := signal.Urgency >= UrgencyHigh || len(redFlags) > 0

	// Mode selection, first match wins. The critical/hard-flag override fires
	// even for learn_only intent.
	var mode Mode
	switch {
	case signal.Urgency == UrgencyCritical || hardFlagHit:
		mode = ModeEmergency
		reasons = append(reasons, "mode=emergency_due_to_critical_condition")
	case highRisk && intent.Label == IntentLearnOnly:
		mode = ModeHybrid
		reasons = append(reasons, "mode=hybrid_high_risk_but_learn_intent")
	case highRisk:
		mode = ModeEmergency
		reasons = append(reasons, "mode=emergency_high_risk_rescue_intent")
	default:
		mode = ModeNormal
		reasons = append(reasons, "mode=normal_stable_condition")
	}

	hasLocation := caps.Location != ""

	// Map admission: unconditional under emergency (speed matters), otherwise
	// an explicit map-need determination. Skipped when no location is known.
	needMap := false
	if caps.MapEnabled && hasLocation {
		if mode == ModeEmergency {
			needMap = true
			reasons = append(reasons, "map=granted_emergency")
		} else if query := qc.SearchQuery(); query != "" && g.mapJudge != nil {
			need, why, err := g.mapJudge.NeedMap(ctx, query, qc.History)
			if err != nil {
				reasons = append(reasons, fmt.Sprintf("map_check_failed:%v", err))
				g.log.Warn("Map-need determination failed", zap.Error(err))
			} else {
				needMap = need
				reasons = append(reasons, fmt.Sprintf("map_check:%s", why))
			}
		}
	}

	radius := caps.RadiusKM
	if radius == 0 {
		radius = g.cfg.DefaultRadiusKM
	}

	outcome := GateOutcome{
		Mode: mode,
		Tools: ToolAdmission{
			KB:  true,
			Web: caps.WebEnabled && mode != ModeEmergency,
			Map: caps.MapEnabled && hasLocation && needMap,
		},
		MapParams: MapParams{
			Location:     caps.Location,
			RadiusKM:     radius,
			ResourceType: g.cfg.DefaultResource,
		},
		Reasons: reasons,
	}

	g.log.Info("Gate decision",
		zap.String("mode", string(mode)),
		zap.Bool("web", outcome.Tools.Web),
		zap.Bool("map", outcome.Tools.Map),
		zap.Strings("reasons", reasons),
	)

	return outcome
}
