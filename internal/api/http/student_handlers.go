package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wadayano/wadayano-server/internal/attempt"
	"github.com/wadayano/wadayano-server/internal/auth"
	"github.com/wadayano/wadayano-server/internal/authz"
	"github.com/wadayano/wadayano-server/internal/quiz"
)

// attemptView is what the client needs to resume at the right question:
// the attempt plus the quiz's questions in this attempt's order, answer
// keys stripped.
type attemptView struct {
	Attempt   quiz.Attempt    `json:"attempt"`
	Questions []quiz.Question `json:"questions"`
	Concepts  []string        `json:"concepts"`
}

func viewFor(qz quiz.Quiz, a quiz.Attempt) attemptView {
	return attemptView{
		Attempt:   a,
		Questions: quiz.StripAnswers(quiz.Shuffle(a.ID, qz.Questions)),
		Concepts:  quiz.Concepts(qz),
	}
}

// POST /attempts/start  { "quiz_id": "..." }
func StartAttemptHandler(svc *attempt.Service, store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req struct {
			QuizID string `json:"quiz_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
			http.Error(w, "quiz_id required", http.StatusBadRequest)
			return
		}
		a, err := svc.StartOrResume(r.Context(), p.Sub, req.QuizID, nil)
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		qz, err := store.GetQuiz(r.Context(), req.QuizID)
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(viewFor(qz, a))
	}
}

// POST /attempts/{attemptID}/answer
// { "question_id": "...", "option_id": "...", "short_answer": "...", "is_confident": true }
func AnswerHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, a, ok := principalAndAttempt(w, r, store)
		if !ok {
			return
		}
		if d := authz.Authorize("attempt:answer", p, attemptResource(a)); !d.Allowed {
			http.Error(w, d.Reason, http.StatusForbidden)
			return
		}
		var req struct {
			QuestionID  string `json:"question_id"`
			OptionID    string `json:"option_id"`
			ShortAnswer string `json:"short_answer"`
			IsConfident bool   `json:"is_confident"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuestionID == "" {
			http.Error(w, "question_id required", http.StatusBadRequest)
			return
		}
		qz, err := store.GetQuiz(r.Context(), a.QuizID)
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		var question *quiz.Question
		for i := range qz.Questions {
			if qz.Questions[i].ID == req.QuestionID {
				question = &qz.Questions[i]
				break
			}
		}
		if question == nil {
			http.Error(w, "question not in quiz", http.StatusBadRequest)
			return
		}
		qa, err := store.SaveQuestionAttempt(r.Context(), a.ID, quiz.QuestionAttempt{
			QuestionID:  req.QuestionID,
			OptionID:    req.OptionID,
			ShortAnswer: req.ShortAnswer,
			IsCorrect:   quiz.Grade(*question, req.OptionID, req.ShortAnswer),
			IsConfident: req.IsConfident,
		})
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(qa)
	}
}

// POST /attempts/{attemptID}/confidences  [ { "concept": "...", "confidence": 3 }, ... ]
func ConfidencesHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, a, ok := principalAndAttempt(w, r, store)
		if !ok {
			return
		}
		if d := authz.Authorize("attempt:confidences", p, attemptResource(a)); !d.Allowed {
			http.Error(w, d.Reason, http.StatusForbidden)
			return
		}
		var cc []quiz.ConceptConfidence
		if err := json.NewDecoder(r.Body).Decode(&cc); err != nil || len(cc) == 0 {
			http.Error(w, "confidences required", http.StatusBadRequest)
			return
		}
		if err := store.SaveConceptConfidences(r.Context(), a.ID, cc); err != nil {
			writeStoreErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /attempts/{attemptID}/complete
func CompleteAttemptHandler(svc *attempt.Service, store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, a, ok := principalAndAttempt(w, r, store)
		if !ok {
			return
		}
		if d := authz.Authorize("attempt:complete", p, attemptResource(a)); !d.Allowed {
			http.Error(w, d.Reason, http.StatusForbidden)
			return
		}
		res, err := svc.Complete(r.Context(), a.ID)
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(res)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(store quiz.Store) http.HandlerFunc {
	type conceptReport struct {
		Concept        string        `json:"concept"`
		PredictedScore float64       `json:"predicted_score"`
		WadayanoScore  float64       `json:"wadayano_score"`
		Analysis       quiz.Analysis `json:"analysis"`
	}
	type report struct {
		attemptView
		Score          float64         `json:"score"`
		PredictedScore float64         `json:"predicted_score"`
		WadayanoScore  float64         `json:"wadayano_score"`
		Analysis       quiz.Analysis   `json:"analysis"`
		Concepts       []conceptReport `json:"concept_reports"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		p, a, ok := principalAndAttempt(w, r, store)
		if !ok {
			return
		}
		if d := authz.Authorize("attempt:view", p, attemptResource(a)); !d.Allowed {
			http.Error(w, d.Reason, http.StatusForbidden)
			return
		}
		qz, err := store.GetQuiz(r.Context(), a.QuizID)
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		out := report{
			attemptView:    viewFor(qz, a),
			Score:          quiz.Score(qz, a),
			PredictedScore: quiz.PredictedScore(qz, a, ""),
			WadayanoScore:  quiz.WadayanoScore(qz, a, ""),
			Analysis:       quiz.ConfidenceAnalysis(qz, a, ""),
		}
		for _, c := range quiz.Concepts(qz) {
			out.Concepts = append(out.Concepts, conceptReport{
				Concept:        c,
				PredictedScore: quiz.PredictedScore(qz, a, c),
				WadayanoScore:  quiz.WadayanoScore(qz, a, c),
				Analysis:       quiz.ConfidenceAnalysis(qz, a, c),
			})
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}

func principalAndAttempt(w http.ResponseWriter, r *http.Request, store quiz.Store) (auth.Principal, quiz.Attempt, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return auth.Principal{}, quiz.Attempt{}, false
	}
	a, err := store.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeStoreErr(w, err)
		return auth.Principal{}, quiz.Attempt{}, false
	}
	return p, a, true
}

func attemptResource(a quiz.Attempt) authz.Resource {
	return authz.Resource{Type: "attempt", OwnerID: a.StudentID}
}

func writeStoreErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quiz.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, quiz.ErrAlreadyCompleted):
		http.Error(w, "attempt already completed", http.StatusConflict)
	case errors.Is(err, quiz.ErrAttemptConflict):
		http.Error(w, "attempt state conflict", http.StatusInternalServerError)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
