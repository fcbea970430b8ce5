package quiz

// Confidence-calibration scoring. All functions are pure and tolerate
// empty attempts, missing ratings, and quizzes whose concept set drifted
// after attempts were recorded: they return 0 / a neutral class instead
// of dividing by zero.

type Analysis string

const (
	Accurate       Analysis = "ACCURATE"
	Mixed          Analysis = "MIXED"
	Overconfident  Analysis = "OVERCONFIDENT"
	Underconfident Analysis = "UNDERCONFIDENT"
)

// accurateThreshold is the wadayano score above which calibration is
// classified ACCURATE regardless of which way the few errors skew.
const accurateThreshold = 0.90

// Score is the fraction of answered questions that were correct.
// Unanswered trailing questions do not count against the student.
func Score(qz Quiz, a Attempt) float64 {
	answered := a.AnsweredFor(qz, "")
	if len(answered) == 0 {
		return 0
	}
	correct := 0
	for _, qa := range answered {
		if qa.IsCorrect {
			correct++
		}
	}
	return float64(correct) / float64(len(answered))
}

// PredictedScore is the pre-quiz self-estimate: the summed concept
// confidences divided by the number of answered questions. Pass
// concept "" for the whole attempt.
func PredictedScore(qz Quiz, a Attempt, concept string) float64 {
	answered := a.AnsweredFor(qz, concept)
	if len(answered) == 0 || len(a.ConceptConfidences) == 0 {
		return 0
	}
	predicted := 0
	rated := false
	for _, cc := range a.ConceptConfidences {
		if concept != "" && cc.Concept != concept {
			continue
		}
		predicted += cc.Confidence
		rated = true
	}
	if !rated {
		return 0
	}
	return float64(predicted) / float64(len(answered))
}

// WadayanoScore is the fraction of answered questions where the stated
// confidence matched actual correctness.
func WadayanoScore(qz Quiz, a Attempt, concept string) float64 {
	answered := a.AnsweredFor(qz, concept)
	if len(answered) == 0 {
		return 0
	}
	matched := 0
	for _, qa := range answered {
		if qa.IsConfident == qa.IsCorrect {
			matched++
		}
	}
	return float64(matched) / float64(len(answered))
}

// ConfidenceAnalysis classifies calibration. The accuracy check runs
// before the over/under comparison: a high-calibration student is
// ACCURATE even if the few errors all skew one direction. Equal
// over/under counts (including the zero-questions case) are MIXED.
func ConfidenceAnalysis(qz Quiz, a Attempt, concept string) Analysis {
	if WadayanoScore(qz, a, concept) > accurateThreshold {
		return Accurate
	}
	over, under := 0, 0
	for _, qa := range a.AnsweredFor(qz, concept) {
		switch {
		case qa.IsConfident && !qa.IsCorrect:
			over++
		case !qa.IsConfident && qa.IsCorrect:
			under++
		}
	}
	switch {
	case over == under:
		return Mixed
	case over > under:
		return Overconfident
	default:
		return Underconfident
	}
}
