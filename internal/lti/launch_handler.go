package lti

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/wadayano/wadayano-server/internal/attempt"
	"github.com/wadayano/wadayano-server/internal/audit"
	"github.com/wadayano/wadayano-server/internal/auth"
	"github.com/wadayano/wadayano-server/internal/quiz"
)

type LaunchDeps struct {
	Store    quiz.Store
	Attempts *attempt.Service
	Auth     *auth.AuthService
	Audit    audit.Sink
	Log      zerolog.Logger
}

// Launches are rendered inside an LMS iframe, where a Location header
// redirect gets eaten by frame restrictions; the response is instead an
// HTML page whose script performs the redirect client-side.
var redirectPage = template.Must(template.New("redirect").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>wadayano</title></head>
<body>
<script>window.location.replace({{.Target}});</script>
<noscript><a href="{{.Target}}">Continue</a></noscript>
</body>
</html>
`))

func validAction(a string) bool {
	return a == "quiz" || a == "dashboard" || a == "survey"
}

// LaunchHandler is the top of the launch pipeline: signature validation,
// identity and enrollment upserts, the consent gate, attempt
// start-or-resume for graded quizzes, then the redirect page. Rejected
// launches get a plain-text error and mutate nothing.
func LaunchHandler(d LaunchDeps) http.HandlerFunc {
	log := d.Log.With().Str("component", "lti_launch").Logger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		action := chi.URLParam(r, "action")
		objectID := chi.URLParam(r, "objectID")
		if !validAction(action) {
			http.Error(w, "unknown action", http.StatusBadRequest)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}

		// An unknown consumer key and a bad signature produce the same
		// outward message so a probe cannot tell whether a key exists.
		course, err := d.Store.GetCourse(ctx, r.Form.Get(ParamConsumerKey))
		if err != nil {
			log.Warn().Err(err).Str("consumer_key", r.Form.Get(ParamConsumerKey)).
				Msg("launch for unknown consumer key")
			http.Error(w, "launch verification failed", http.StatusUnauthorized)
			return
		}
		if err := ValidateSignature(r, course.LTISecret); err != nil {
			log.Warn().Err(err).Str("course", course.ID).Msg("launch signature rejected")
			http.Error(w, "launch verification failed", http.StatusUnauthorized)
			return
		}
		if err := CheckRequiredParams(r.Form); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		// Past validation, failures are unexpected: plain error page,
		// no partial-success redirect.
		st, err := d.Store.UpsertStudent(ctx,
			r.Form.Get(ParamUserID), r.Form.Get(ParamName), r.Form.Get(ParamEmail))
		if err != nil {
			log.Error().Err(err).Msg("student upsert failed")
			http.Error(w, "launch failed", http.StatusInternalServerError)
			return
		}
		if err := d.Store.EnsureEnrolled(ctx, st.ID, course.ID); err != nil {
			log.Error().Err(err).Msg("enrollment failed")
			http.Error(w, "launch failed", http.StatusInternalServerError)
			return
		}

		hasConsent, err := d.Store.HasConsent(ctx, st.ID, course.ID)
		if err != nil {
			log.Error().Err(err).Msg("consent lookup failed")
			http.Error(w, "launch failed", http.StatusInternalServerError)
			return
		}
		state := ConsentStateFor(course, hasConsent)

		if action == "quiz" {
			qz, err := d.Store.GetQuiz(ctx, objectID)
			if err != nil {
				log.Error().Err(err).Str("quiz", objectID).Msg("launch quiz lookup failed")
				http.Error(w, "launch failed", http.StatusInternalServerError)
				return
			}
			// Graded quizzes capture the launch session now, even when
			// the consent interstitial comes first: this launch is the
			// only chance to record the outcome-service callback.
			if qz.Type == quiz.TypeGraded {
				if _, err := d.Attempts.StartOrResume(ctx, st.ID, qz.ID, SessionInfo(r.Form)); err != nil {
					if errors.Is(err, quiz.ErrAttemptConflict) {
						http.Error(w, "attempt state conflict", http.StatusInternalServerError)
						return
					}
					log.Error().Err(err).Msg("attempt start failed")
					http.Error(w, "launch failed", http.StatusInternalServerError)
					return
				}
			}
		}

		token, err := d.Auth.IssueJWT(st.ID, "student")
		if err != nil {
			log.Error().Err(err).Msg("token issue failed")
			http.Error(w, "launch failed", http.StatusInternalServerError)
			return
		}

		data, _ := json.Marshal(map[string]string{
			"course_id": course.ID, "action": action, "object_id": objectID,
		})
		if err := d.Audit.Append(ctx, audit.Event{
			Type: audit.TypeLaunch, Key: st.ID, DataJSON: string(data),
		}); err != nil {
			log.Warn().Err(err).Msg("audit append failed")
		}

		target := RedirectTarget(state, course.ID, token, action, objectID)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := redirectPage.Execute(w, map[string]string{"Target": target}); err != nil {
			log.Error().Err(err).Msg("render redirect page")
		}
	}
}
