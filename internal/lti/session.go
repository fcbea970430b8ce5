package lti

import (
	"net/url"
	"strings"
)

// SessionInfo strips the OAuth protocol fields from a validated launch
// payload. What remains is stored on the attempt so the outcomes
// service can be called long after the launch request is gone.
func SessionInfo(form url.Values) map[string]string {
	out := make(map[string]string, len(form))
	for k := range form {
		if strings.HasPrefix(k, "oauth_") {
			continue
		}
		out[k] = form.Get(k)
	}
	return out
}

// OutcomeTarget extracts the outcomes-service callback captured at
// launch. ok is false for launches from placements without grade
// passback.
func OutcomeTarget(session map[string]string) (serviceURL, sourcedID string, ok bool) {
	serviceURL = session[ParamOutcomeURL]
	sourcedID = session[ParamSourcedID]
	return serviceURL, sourcedID, serviceURL != "" && sourcedID != ""
}
