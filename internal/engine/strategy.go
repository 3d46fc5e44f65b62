package engine

// InstructionSet is an ordered list of generation directives. It tells the
// generator how to shape the answer; the actual prompt assembly lives with the
// generator implementation.
type InstructionSet struct {
	Directives []string
}

// baseDirectives apply to every response regardless of posture.
var baseDirectives = []string{
	"Answer strictly from the provided evidence; never invent or assume facts.",
	"Be accurate, clear, and structured; prefer short bullet points.",
	"Keep a professional, calm, and compassionate tone.",
}

// SelectStrategy maps (mode, verdict) to the generation directives. Pure
// lookup, independent of the text-generation call itself.
func SelectStrategy(mode Mode, verdict SufficiencyVerdict) InstructionSet {
	directives := make([]string, 0, 8)
	directives = append(directives, baseDirectives...)

	switch mode {
	case ModeEmergency:
		directives = append(directives,
			"Highest priority: open with a numbered list of immediately actionable first-aid steps.",
			"If nearby rescue resources are present in the evidence, list them at the end with address and phone.",
			"Close with a strong safety reminder urging professional veterinary care as soon as possible.",
		)
		if verdict.StrongWarning {
			directives = append(directives,
				"Start by stating that information is limited but the risk may be high; urge the user not to wait.",
			)
		}

	case ModeHybrid:
		directives = append(directives,
			"Lead with a short safety disclaimer describing when immediate veterinary care is required.",
			"Then give an educational explanation of the question, exploring the plausible scenarios.",
			"State explicitly that this is a remote, non-verified scenario and conclusions carry uncertainty.",
		)
		if verdict.Level == LevelPartial || verdict.Level == LevelInsufficient {
			directives = append(directives, followupDirective(verdict.FollowupQuestions))
		}

	default: // ModeNormal
		switch verdict.Level {
		case LevelInsufficient:
			directives = append(directives,
				"Do not guess. State clearly that the available information is not enough for a reliable answer.",
				followupDirective(verdict.FollowupQuestions),
			)
		case LevelPartial:
			directives = append(directives,
				"Give a conservative, tentative answer based on the limited evidence.",
				"State explicitly that the answer carries uncertainty.",
				followupDirective(verdict.FollowupQuestions),
			)
		default:
			directives = append(directives, "Provide a complete, confident answer.")
		}
	}

	return InstructionSet{Directives: directives}
}

func followupDirective(questions []string) string {
	d := "End by politely asking for the key missing details:"
	for _, q := range questions {
		d += "\n- " + q
	}
	return d
}

// FallbackText is the fixed safe response used when generation fails or
// returns empty. Keyed only by mode, never by the verdict.
func FallbackText(mode Mode) string {
	if mode == ModeEmergency {
		return "EMERGENCY: high-risk signs detected. Act now.\n" +
			"1. Make sure you are safe before approaching the animal.\n" +
			"2. Apply essential first aid only: stop visible bleeding with firm pressure, keep the animal warm and still.\n" +
			"3. Contact or transport to the nearest veterinary clinic immediately."
	}
	return "Sorry, something went wrong while preparing your answer. " +
		"Please check your input and try again. If the situation is urgent, contact a veterinarian directly."
}
