package engine

import (
	"go.uber.org/zap"

	"github.com/rescue-agent/backend/pkg/config"
)

// emergencyFollowups is the fixed minimal triage question set: presence of
// life-threatening signs, symptom onset, current responsiveness.
var emergencyFollowups = []string{
	"Is there any life-threatening sign right now: heavy continuous bleeding, difficulty breathing, seizures, or unconsciousness?",
	"When did the symptoms start, and did they appear suddenly or worsen gradually?",
	"Is the animal currently responsive: alert, able to move, reacting to you?",
}

// generalFollowups is the minimal diagnostic set for non-emergency answers.
var generalFollowups = []string{
	"What is the main symptom you are worried about (bleeding, limping, abnormal breathing, vomiting, lethargy)?",
	"When did the symptoms start, and did they appear suddenly or worsen gradually?",
	"How are the animal's energy, appetite, and drinking right now?",
}

// Sufficiency scores the merged evidence bundle into a verdict. Deterministic
// and side-effect-free given its inputs; emergency mode never gates on
// sufficiency and never blocks a response.
type Sufficiency struct {
	cfg config.EngineConfig
	log *zap.Logger
}

func NewSufficiency(cfg config.EngineConfig, log *zap.Logger) *Sufficiency {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sufficiency{cfg: cfg, log: log}
}

func (s *Sufficiency) Evaluate(mode Mode, bundle EvidenceBundle, signal TriageSignal, location string) SufficiencyVerdict {
	var missing []string
	if signal.Summary == "" {
		missing = append(missing, "triage_summary")
	}
	if location == "" {
		missing = append(missing, "location")
	}

	// A nil confidence counts as acceptable for sufficiency grading but as
	// weak for the emergency warning: an unassessed situation deserves the
	// stronger disclaimer.
	confOK := signal.Confidence == nil || *signal.Confidence >= s.cfg.VisionConfEnrich
	weakVision := signal.Confidence == nil || *signal.Confidence < s.cfg.VisionConfEnrich

	if mode == ModeEmergency {
		minDocs := s.cfg.MinDocsRequired / 2
		if minDocs < 1 {
			minDocs = 1
		}
		verdict := SufficiencyVerdict{
			Mode:              mode,
			Level:             LevelEmergency,
			Missing:           missing,
			FollowupQuestions: capQuestions(emergencyFollowups),
			StrongWarning:     len(bundle.KBDocs) < minDocs && weakVision,
		}
		s.log.Info("Sufficiency verdict",
			zap.String("mode", string(mode)),
			zap.String("level", string(verdict.Level)),
			zap.Bool("strong_warning", verdict.StrongWarning),
		)
		return verdict
	}

	kbOK := len(bundle.KBDocs) >= s.cfg.MinDocsRequired
	webOK := len(bundle.WebFacts) > 0

	var level SufficiencyLevel
	switch {
	case kbOK:
		level = LevelEnough
	case confOK || webOK:
		level = LevelPartial
	default:
		level = LevelInsufficient
	}

	var followups []string
	if level != LevelEnough {
		followups = capQuestions(generalFollowups)
	}

	verdict := SufficiencyVerdict{
		Mode:              mode,
		Level:             level,
		Missing:           missing,
		FollowupQuestions: followups,
	}

	s.log.Info("Sufficiency verdict",
		zap.String("mode", string(mode)),
		zap.String("level", string(level)),
		zap.Int("kb_docs", len(bundle.KBDocs)),
		zap.Int("web_facts", len(bundle.WebFacts)),
	)

	return verdict
}

func capQuestions(qs []string) []string {
	if len(qs) > 3 {
		qs = qs[:3]
	}
	out := make([]string, len(qs))
	copy(out, qs)
	return out
}
