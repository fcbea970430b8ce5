package quiz

import "unicode"

// Grade reports whether a response answers the question correctly.
// Multiple-choice compares option ids; short answers are normalized
// (casefolded, punctuation stripped) before comparison against the key.
func Grade(q Question, optionID, shortAnswer string) bool {
	switch q.Type {
	case MultipleChoice:
		return optionID != "" && optionID == q.CorrectOption
	case ShortAnswer:
		norm := normalize(shortAnswer)
		if norm == "" {
			return false
		}
		for _, k := range q.CorrectShort {
			if normalize(k) == norm {
				return true
			}
		}
	}
	return false
}

// normalize does simple casefolding and trims punctuation/extra spaces.
func normalize(s string) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r):
			// skip
		default:
			if space && len(out) > 0 {
				out = append(out, ' ')
			}
			space = false
			out = append(out, unicode.ToLower(r))
		}
	}
	return string(out)
}
