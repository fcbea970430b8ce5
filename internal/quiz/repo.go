package quiz

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrAttemptConflict reports more than one open attempt for a
	// (student, quiz) pair. The schema makes this unreachable for new
	// data; legacy rows can still trip it and must not be silently
	// repaired.
	ErrAttemptConflict = errors.New("multiple open attempts for student/quiz")
)

type Store interface {
	GetCourse(ctx context.Context, id string) (Course, error)
	GetQuiz(ctx context.Context, id string) (Quiz, error)

	// UpsertStudent creates a student keyed by LTI user id, or refreshes
	// name/email on an existing one. Idempotent.
	UpsertStudent(ctx context.Context, ltiUserID, name, email string) (Student, error)

	// EnsureEnrolled links the student to the course roster; no-op when
	// already enrolled.
	EnsureEnrolled(ctx context.Context, studentID, courseID string) error

	HasConsent(ctx context.Context, studentID, courseID string) (bool, error)
	SaveConsent(ctx context.Context, studentID, courseID, consent string) error

	// OpenOrCreateAttempt atomically finds the open attempt for
	// (student, quiz) or creates one. On resume only the session blob is
	// refreshed. created reports whether a new row was inserted.
	OpenOrCreateAttempt(ctx context.Context, studentID, quizID string, session map[string]string) (a Attempt, created bool, err error)

	CountOpenAttempts(ctx context.Context, studentID, quizID string) (int, error)

	GetAttempt(ctx context.Context, id string) (Attempt, error)
	SaveQuestionAttempt(ctx context.Context, attemptID string, qa QuestionAttempt) (QuestionAttempt, error)
	SaveConceptConfidences(ctx context.Context, attemptID string, cc []ConceptConfidence) error

	// CompleteAttempt marks the attempt completed with its final score.
	// Completing an already-completed attempt is an error.
	CompleteAttempt(ctx context.Context, attemptID string, completedAt int64, score float64) (Attempt, error)

	// RecordGradePost stores the outcome of a grade passback attempt.
	RecordGradePost(ctx context.Context, attemptID string, ok bool, postErr string) error
}
