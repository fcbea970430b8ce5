package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/wadayano/wadayano-server/internal/attempt"
	"github.com/wadayano/wadayano-server/internal/audit"
	"github.com/wadayano/wadayano-server/internal/auth"
	"github.com/wadayano/wadayano-server/internal/quiz"
)

type nopReporter struct{}

func (nopReporter) PostGrade(context.Context, map[string]string, string, string, float64) error {
	return nil
}

type apiFixture struct {
	store *quiz.MemoryStore
	svc   *attempt.Service
}

func newAPIFixture() *apiFixture {
	store := quiz.NewInMemoryStore()
	store.PutCourse(quiz.Course{ID: "c1", Title: "Discrete Math", LTISecret: "sekret"})
	store.PutQuiz(quiz.Quiz{
		ID: "quiz1", CourseID: "c1", Type: quiz.TypeGraded,
		Questions: []quiz.Question{
			{ID: "q1", Type: quiz.MultipleChoice, Concept: "sets",
				Options:       []quiz.Option{{ID: "o1", Text: "a"}, {ID: "o2", Text: "b"}},
				CorrectOption: "o1"},
			{ID: "q2", Type: quiz.ShortAnswer, Concept: "sets",
				CorrectShort: []string{"union"}},
		},
	})
	svc := attempt.NewService(store, nopReporter{}, audit.Discard{}, zerolog.Nop())
	return &apiFixture{store: store, svc: svc}
}

// routerAs mounts the student API with a fixed principal, standing in
// for the JWT middleware.
func (f *apiFixture) routerAs(p auth.Principal) *chi.Mux {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithPrincipal(req.Context(), p)))
		})
	})
	r.Post("/consent", SubmitConsentHandler(f.store))
	r.Post("/attempts/start", StartAttemptHandler(f.svc, f.store))
	r.Post("/attempts/{attemptID}/answer", AnswerHandler(f.store))
	r.Post("/attempts/{attemptID}/confidences", ConfidencesHandler(f.store))
	r.Post("/attempts/{attemptID}/complete", CompleteAttemptHandler(f.svc, f.store))
	r.Get("/attempts/{attemptID}", GetAttemptHandler(f.store))
	return r
}

func doJSON(t *testing.T, r *chi.Mux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAttemptFlow(t *testing.T) {
	f := newAPIFixture()
	r := f.routerAs(auth.Principal{Sub: "stu1", Role: "student"})

	// Start.
	w := doJSON(t, r, "POST", "/attempts/start", `{"quiz_id":"quiz1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("start: status %d body %q", w.Code, w.Body.String())
	}
	var view struct {
		Attempt   quiz.Attempt    `json:"attempt"`
		Questions []quiz.Question `json:"questions"`
		Concepts  []string        `json:"concepts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Attempt.ID == "" || len(view.Questions) != 2 {
		t.Fatalf("view = %+v", view)
	}
	for _, q := range view.Questions {
		if q.CorrectOption != "" || len(q.CorrectShort) != 0 {
			t.Fatalf("answer key leaked to student: %+v", q)
		}
	}
	if len(view.Concepts) != 1 || view.Concepts[0] != "sets" {
		t.Fatalf("concepts = %v", view.Concepts)
	}
	aid := view.Attempt.ID

	// Restart resumes the same attempt.
	w = doJSON(t, r, "POST", "/attempts/start", `{"quiz_id":"quiz1"}`)
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Attempt.ID != aid {
		t.Fatalf("restart created a second attempt: %s vs %s", view.Attempt.ID, aid)
	}

	// Answer both questions; the short answer is normalized before grading.
	w = doJSON(t, r, "POST", "/attempts/"+aid+"/answer",
		`{"question_id":"q1","option_id":"o2","is_confident":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("answer q1: status %d body %q", w.Code, w.Body.String())
	}
	var qa quiz.QuestionAttempt
	if err := json.Unmarshal(w.Body.Bytes(), &qa); err != nil {
		t.Fatal(err)
	}
	if qa.IsCorrect {
		t.Fatal("wrong option graded correct")
	}
	w = doJSON(t, r, "POST", "/attempts/"+aid+"/answer",
		`{"question_id":"q2","short_answer":" Union! ","is_confident":true}`)
	_ = json.Unmarshal(w.Body.Bytes(), &qa)
	if !qa.IsCorrect {
		t.Fatal("normalized short answer graded wrong")
	}

	// Confidences.
	w = doJSON(t, r, "POST", "/attempts/"+aid+"/confidences",
		`[{"concept":"sets","confidence":2}]`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("confidences: status %d body %q", w.Code, w.Body.String())
	}

	// Complete.
	w = doJSON(t, r, "POST", "/attempts/"+aid+"/complete", ``)
	if w.Code != http.StatusOK {
		t.Fatalf("complete: status %d body %q", w.Code, w.Body.String())
	}
	var res struct {
		Attempt quiz.Attempt `json:"attempt"`
		Graded  bool         `json:"graded"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Graded || !res.Attempt.Completed() {
		t.Fatalf("completion result = %+v", res)
	}
	if res.Attempt.Score != 0.5 {
		t.Fatalf("score = %v, want 0.5", res.Attempt.Score)
	}

	// Report.
	w = doJSON(t, r, "GET", "/attempts/"+aid, ``)
	if w.Code != http.StatusOK {
		t.Fatalf("report: status %d", w.Code)
	}
	var report struct {
		Score          float64 `json:"score"`
		PredictedScore float64 `json:"predicted_score"`
		WadayanoScore  float64 `json:"wadayano_score"`
		Analysis       string  `json:"analysis"`
		ConceptReports []struct {
			Concept  string `json:"concept"`
			Analysis string `json:"analysis"`
		} `json:"concept_reports"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Score != 0.5 || report.PredictedScore != 1 {
		t.Fatalf("report = %+v", report)
	}
	// Confident on both, right on one: calibration 0.5, skew overconfident.
	if report.WadayanoScore != 0.5 || report.Analysis != "OVERCONFIDENT" {
		t.Fatalf("report = %+v", report)
	}
	if len(report.ConceptReports) != 1 || report.ConceptReports[0].Concept != "sets" {
		t.Fatalf("concept reports = %+v", report.ConceptReports)
	}

	// Answers after completion are refused.
	w = doJSON(t, r, "POST", "/attempts/"+aid+"/answer",
		`{"question_id":"q1","option_id":"o1"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("answer after completion: status %d, want 409", w.Code)
	}
}

func TestAttemptOwnership(t *testing.T) {
	f := newAPIFixture()
	owner := f.routerAs(auth.Principal{Sub: "stu1", Role: "student"})

	w := doJSON(t, owner, "POST", "/attempts/start", `{"quiz_id":"quiz1"}`)
	var view struct {
		Attempt quiz.Attempt `json:"attempt"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	aid := view.Attempt.ID

	other := f.routerAs(auth.Principal{Sub: "stu2", Role: "student"})
	for _, req := range []struct{ method, path, body string }{
		{"POST", "/attempts/" + aid + "/answer", `{"question_id":"q1","option_id":"o1"}`},
		{"POST", "/attempts/" + aid + "/confidences", `[{"concept":"sets","confidence":1}]`},
		{"POST", "/attempts/" + aid + "/complete", ``},
		{"GET", "/attempts/" + aid, ``},
	} {
		if w := doJSON(t, other, req.method, req.path, req.body); w.Code != http.StatusForbidden {
			t.Errorf("%s %s as non-owner: status %d, want 403", req.method, req.path, w.Code)
		}
	}

	// Instructors may read but not write.
	instructor := f.routerAs(auth.Principal{Sub: "inst1", Role: "instructor"})
	if w := doJSON(t, instructor, "GET", "/attempts/"+aid, ``); w.Code != http.StatusOK {
		t.Fatalf("instructor view: status %d, want 200", w.Code)
	}
	if w := doJSON(t, instructor, "POST", "/attempts/"+aid+"/complete", ``); w.Code != http.StatusForbidden {
		t.Fatalf("instructor complete: status %d, want 403", w.Code)
	}
}

func TestStartAttemptValidation(t *testing.T) {
	f := newAPIFixture()
	r := f.routerAs(auth.Principal{Sub: "stu1", Role: "student"})

	if w := doJSON(t, r, "POST", "/attempts/start", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty body: status %d, want 400", w.Code)
	}
	if w := doJSON(t, r, "POST", "/attempts/start", `{"quiz_id":"ghost"}`); w.Code != http.StatusNotFound {
		t.Fatalf("unknown quiz: status %d, want 404", w.Code)
	}
}

func TestAnswerValidation(t *testing.T) {
	f := newAPIFixture()
	r := f.routerAs(auth.Principal{Sub: "stu1", Role: "student"})
	w := doJSON(t, r, "POST", "/attempts/start", `{"quiz_id":"quiz1"}`)
	var view struct {
		Attempt quiz.Attempt `json:"attempt"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}

	w = doJSON(t, r, "POST", "/attempts/"+view.Attempt.ID+"/answer", `{"question_id":"ghost"}`)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "question not in quiz") {
		t.Fatalf("unknown question: status %d body %q", w.Code, w.Body.String())
	}
	w = doJSON(t, r, "POST", "/attempts/unknown-attempt/answer", `{"question_id":"q1"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown attempt: status %d, want 404", w.Code)
	}
}

func TestSubmitConsent(t *testing.T) {
	f := newAPIFixture()
	r := f.routerAs(auth.Principal{Sub: "stu1", Role: "student"})

	w := doJSON(t, r, "POST", "/consent", `{"course_id":"c1","consent":"no"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("consent: status %d body %q", w.Code, w.Body.String())
	}
	has, err := f.store.HasConsent(context.Background(), "stu1", "c1")
	if err != nil || !has {
		t.Fatalf("consent not recorded: %v %v", has, err)
	}

	if w := doJSON(t, r, "POST", "/consent", `{"course_id":"c1","consent":"maybe"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad consent value: status %d, want 400", w.Code)
	}
	if w := doJSON(t, r, "POST", "/consent", `{"consent":"yes"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing course: status %d, want 400", w.Code)
	}
	if w := doJSON(t, r, "POST", "/consent", `{"course_id":"ghost","consent":"yes"}`); w.Code != http.StatusNotFound {
		t.Fatalf("unknown course: status %d, want 404", w.Code)
	}
}
