// Package attempt owns the quiz-attempt lifecycle: start-or-resume on
// launch, finalization, and handing the computed score to the grade
// reporter.
package attempt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wadayano/wadayano-server/internal/audit"
	"github.com/wadayano/wadayano-server/internal/quiz"
)

// Reporter posts a grade back to the LMS using the session captured at
// launch. Implemented by lti.OutcomesClient.
type Reporter interface {
	PostGrade(ctx context.Context, session map[string]string, consumerKey, secret string, score float64) error
}

type CompletionResult struct {
	Attempt quiz.Attempt `json:"attempt"`
	// Graded reports whether the quiz carries a grade at all; practice
	// quizzes complete without any passback.
	Graded        bool   `json:"graded"`
	PostSucceeded *bool  `json:"post_succeeded,omitempty"`
	PostError     string `json:"post_error,omitempty"`
}

type Service struct {
	store    quiz.Store
	reporter Reporter
	audit    audit.Sink
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(store quiz.Store, reporter Reporter, sink audit.Sink, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		reporter: reporter,
		audit:    sink,
		log:      log.With().Str("component", "attempt").Logger(),
		now:      time.Now,
	}
}

// StartOrResume returns the single open attempt for (student, quiz),
// creating it if absent. A resume refreshes the stored launch session:
// LMS outcome URLs can rotate between launches and the newest wins.
func (s *Service) StartOrResume(ctx context.Context, studentID, quizID string, session map[string]string) (quiz.Attempt, error) {
	if _, err := s.store.GetQuiz(ctx, quizID); err != nil {
		return quiz.Attempt{}, fmt.Errorf("quiz %s: %w", quizID, err)
	}
	// The storage upsert guarantees at most one open attempt going
	// forward; legacy rows that already violate the invariant are
	// surfaced, never silently collapsed into one.
	n, err := s.store.CountOpenAttempts(ctx, studentID, quizID)
	if err != nil {
		return quiz.Attempt{}, err
	}
	if n > 1 {
		s.log.Error().Str("student", studentID).Str("quiz", quizID).Int("open", n).
			Msg("open-attempt invariant violated")
		return quiz.Attempt{}, quiz.ErrAttemptConflict
	}

	a, created, err := s.store.OpenOrCreateAttempt(ctx, studentID, quizID, session)
	if err != nil {
		return quiz.Attempt{}, err
	}
	s.log.Debug().Str("attempt", a.ID).Bool("created", created).Msg("attempt start-or-resume")
	return a, nil
}

// Complete finalizes an attempt: score over answered questions only
// (recovery path for a student who answered everything but never hit
// the final continue), then grade passback for graded quizzes.
// Completion always succeeds locally; a passback failure is recorded on
// the attempt for instructor follow-up, never returned to the student.
// Completing a finished attempt returns its recorded state without
// posting again.
func (s *Service) Complete(ctx context.Context, attemptID string) (CompletionResult, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return CompletionResult{}, err
	}
	qz, err := s.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return CompletionResult{}, err
	}
	if a.Completed() {
		return s.recordedResult(qz, a), nil
	}

	score := quiz.Score(qz, a)
	completed, err := s.store.CompleteAttempt(ctx, attemptID, s.now().Unix(), score)
	if err != nil {
		return CompletionResult{}, err
	}
	s.appendAudit(ctx, audit.TypeAttemptCompleted, completed.ID, map[string]any{
		"quiz_id": qz.ID, "score": score,
	})

	res := CompletionResult{Attempt: completed}
	if qz.Type != quiz.TypeGraded {
		return res, nil
	}
	res.Graded = true

	ok, postErr := s.postGrade(ctx, qz, completed, score)
	res.PostSucceeded = &ok
	res.PostError = postErr
	res.Attempt.PostSucceeded = &ok
	res.Attempt.PostError = postErr
	return res, nil
}

func (s *Service) postGrade(ctx context.Context, qz quiz.Quiz, a quiz.Attempt, score float64) (bool, string) {
	course, err := s.store.GetCourse(ctx, qz.CourseID)
	if err != nil {
		err = fmt.Errorf("course %s: %w", qz.CourseID, err)
	} else {
		err = s.reporter.PostGrade(ctx, a.LTISession, course.ID, course.LTISecret, score)
	}

	ok := err == nil
	postErr := ""
	if err != nil {
		postErr = err.Error()
		s.log.Warn().Err(err).Str("attempt", a.ID).Msg("grade passback failed")
	}
	if rerr := s.store.RecordGradePost(ctx, a.ID, ok, postErr); rerr != nil {
		s.log.Error().Err(rerr).Str("attempt", a.ID).Msg("recording grade-post outcome failed")
	}
	s.appendAudit(ctx, audit.TypeGradePosted, a.ID, map[string]any{
		"ok": ok, "error": postErr,
	})
	return ok, postErr
}

func (s *Service) recordedResult(qz quiz.Quiz, a quiz.Attempt) CompletionResult {
	res := CompletionResult{Attempt: a, Graded: qz.Type == quiz.TypeGraded}
	if res.Graded {
		res.PostSucceeded = a.PostSucceeded
		res.PostError = a.PostError
	}
	return res
}

func (s *Service) appendAudit(ctx context.Context, typ, key string, data map[string]any) {
	buf, _ := json.Marshal(data)
	if err := s.audit.Append(ctx, audit.Event{Type: typ, Key: key, DataJSON: string(buf)}); err != nil {
		s.log.Warn().Err(err).Str("event", typ).Msg("audit append failed")
	}
}
