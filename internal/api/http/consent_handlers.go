package http

import (
	"encoding/json"
	"net/http"

	"github.com/wadayano/wadayano-server/internal/auth"
	"github.com/wadayano/wadayano-server/internal/authz"
	"github.com/wadayano/wadayano-server/internal/quiz"
)

// POST /consent  { "course_id": "...", "consent": "yes"|"no" }
// Either value satisfies the gate; a repeat submission overwrites.
func SubmitConsentHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req struct {
			CourseID string `json:"course_id"`
			Consent  string `json:"consent"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CourseID == "" {
			http.Error(w, "course_id required", http.StatusBadRequest)
			return
		}
		if req.Consent != "yes" && req.Consent != "no" {
			http.Error(w, `consent must be "yes" or "no"`, http.StatusBadRequest)
			return
		}
		if d := authz.Authorize("consent:submit", p, authz.Resource{Type: "student", OwnerID: p.Sub}); !d.Allowed {
			http.Error(w, d.Reason, http.StatusForbidden)
			return
		}
		if _, err := store.GetCourse(r.Context(), req.CourseID); err != nil {
			writeStoreErr(w, err)
			return
		}
		if err := store.SaveConsent(r.Context(), p.Sub, req.CourseID, req.Consent); err != nil {
			writeStoreErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
