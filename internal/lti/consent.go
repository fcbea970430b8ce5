package lti

import (
	"fmt"

	"github.com/wadayano/wadayano-server/internal/quiz"
)

type ConsentState int

const (
	ConsentNotRequired ConsentState = iota
	ConsentRequiredUnanswered
	ConsentRequiredAnswered
)

// ConsentStateFor gates on the research-consent interstitial. Courses
// without a consent form never gate; for the rest, any recorded
// decision satisfies the gate — "no" unlocks content just like "yes",
// only the absence of a decision blocks.
func ConsentStateFor(course quiz.Course, hasConsent bool) ConsentState {
	if course.ConsentFormURL == "" {
		return ConsentNotRequired
	}
	if hasConsent {
		return ConsentRequiredAnswered
	}
	return ConsentRequiredUnanswered
}

// RedirectTarget picks the client route for a launch. The consent route
// carries the original action/objectId so the student is forwarded to
// the requested content after deciding.
func RedirectTarget(state ConsentState, courseID, token, action, objectID string) string {
	if state == ConsentRequiredUnanswered {
		return fmt.Sprintf("/student/consent/%s/%s/%s/%s", courseID, token, action, objectID)
	}
	return fmt.Sprintf("/student/launch/%s/%s/%s", token, action, objectID)
}
