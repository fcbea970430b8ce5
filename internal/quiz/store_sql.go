package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyCompleted reports a completion call on a finished attempt.
// Completion is a one-way transition.
var ErrAlreadyCompleted = errors.New("attempt already completed")

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) GetCourse(ctx context.Context, id string) (Course, error) {
	var c Course
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, lms_url, consent_form_url, lti_secret FROM courses WHERE id=$1`, id).
		Scan(&c.ID, &c.Title, &c.LMSURL, &c.ConsentFormURL, &c.LTISecret)
	if errors.Is(err, sql.ErrNoRows) {
		return Course{}, ErrNotFound
	}
	return c, err
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	var q Quiz
	var qjson string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, course_id, title, type, questions_json FROM quizzes WHERE id=$1`, id).
		Scan(&q.ID, &q.CourseID, &q.Title, &q.Type, &qjson)
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, ErrNotFound
	}
	if err != nil {
		return Quiz{}, err
	}
	if err := json.Unmarshal([]byte(qjson), &q.Questions); err != nil {
		return Quiz{}, err
	}
	return q, nil
}

func (s *SQLStore) UpsertStudent(ctx context.Context, ltiUserID, name, email string) (Student, error) {
	var st Student
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO students (id, lti_user_id, name, email, created_at)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (lti_user_id)
		 DO UPDATE SET name=EXCLUDED.name, email=EXCLUDED.email
		 RETURNING id, lti_user_id, name, email, created_at`,
		uuid.NewString(), ltiUserID, name, email, time.Now().Unix()).
		Scan(&st.ID, &st.LTIUserID, &st.Name, &st.Email, &st.CreatedAt)
	return st, err
}

func (s *SQLStore) EnsureEnrolled(ctx context.Context, studentID, courseID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO course_students (course_id, student_id) VALUES ($1,$2)
		 ON CONFLICT (course_id, student_id) DO NOTHING`,
		courseID, studentID)
	return err
}

func (s *SQLStore) HasConsent(ctx context.Context, studentID, courseID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM consents WHERE student_id=$1 AND course_id=$2`, studentID, courseID).
		Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLStore) SaveConsent(ctx context.Context, studentID, courseID, consent string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consents (student_id, course_id, consent, updated_at)
		 VALUES ($1,$2,$3,$4)
		 ON CONFLICT (student_id, course_id)
		 DO UPDATE SET consent=EXCLUDED.consent, updated_at=EXCLUDED.updated_at`,
		studentID, courseID, consent, time.Now().Unix())
	return err
}

func (s *SQLStore) OpenOrCreateAttempt(ctx context.Context, studentID, quizID string, session map[string]string) (Attempt, bool, error) {
	sj := []byte("{}")
	if len(session) > 0 {
		var err error
		if sj, err = json.Marshal(session); err != nil {
			return Attempt{}, false, err
		}
	}
	newID := uuid.NewString()
	var id string
	// The partial unique index ux_open_attempt makes this a single
	// atomic find-open-or-create. A launch resume refreshes the session
	// blob (the newest launch's outcome URL supersedes the previous);
	// an API resume carries no session and leaves the stored one intact.
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO quiz_attempts (id, quiz_id, student_id, started_at, lti_session_json)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (student_id, quiz_id) WHERE completed_at IS NULL
		 DO UPDATE SET lti_session_json = CASE
		   WHEN EXCLUDED.lti_session_json = '{}' THEN quiz_attempts.lti_session_json
		   ELSE EXCLUDED.lti_session_json END
		 RETURNING id`,
		newID, quizID, studentID, time.Now().Unix(), string(sj)).
		Scan(&id)
	if err != nil {
		return Attempt{}, false, err
	}
	a, err := s.GetAttempt(ctx, id)
	return a, id == newID, err
}

func (s *SQLStore) CountOpenAttempts(ctx context.Context, studentID, quizID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM quiz_attempts WHERE student_id=$1 AND quiz_id=$2 AND completed_at IS NULL`,
		studentID, quizID).Scan(&n)
	return n, err
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	var a Attempt
	var completedAt sql.NullInt64
	var sessionJSON string
	var posted sql.NullBool
	err := s.db.QueryRowContext(ctx,
		`SELECT id, quiz_id, student_id, started_at, completed_at, score, lti_session_json, post_succeeded, post_error
		 FROM quiz_attempts WHERE id=$1`, id).
		Scan(&a.ID, &a.QuizID, &a.StudentID, &a.StartedAt, &completedAt, &a.Score, &sessionJSON, &posted, &a.PostError)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrNotFound
	}
	if err != nil {
		return Attempt{}, err
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Int64
	}
	if posted.Valid {
		a.PostSucceeded = &posted.Bool
	}
	if err := json.Unmarshal([]byte(sessionJSON), &a.LTISession); err != nil {
		a.LTISession = map[string]string{}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question_id, option_id, short_answer, is_correct, is_confident, created_at
		 FROM question_attempts WHERE attempt_id=$1 ORDER BY created_at, id`, id)
	if err != nil {
		return Attempt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var qa QuestionAttempt
		if err := rows.Scan(&qa.ID, &qa.QuestionID, &qa.OptionID, &qa.ShortAnswer, &qa.IsCorrect, &qa.IsConfident, &qa.CreatedAt); err != nil {
			return Attempt{}, err
		}
		a.QuestionAttempts = append(a.QuestionAttempts, qa)
	}
	if err := rows.Err(); err != nil {
		return Attempt{}, err
	}

	crows, err := s.db.QueryContext(ctx,
		`SELECT concept, confidence FROM concept_confidences WHERE attempt_id=$1 ORDER BY concept`, id)
	if err != nil {
		return Attempt{}, err
	}
	defer crows.Close()
	for crows.Next() {
		var cc ConceptConfidence
		if err := crows.Scan(&cc.Concept, &cc.Confidence); err != nil {
			return Attempt{}, err
		}
		a.ConceptConfidences = append(a.ConceptConfidences, cc)
	}
	return a, crows.Err()
}

func (s *SQLStore) SaveQuestionAttempt(ctx context.Context, attemptID string, qa QuestionAttempt) (QuestionAttempt, error) {
	var completedAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT completed_at FROM quiz_attempts WHERE id=$1`, attemptID).Scan(&completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return QuestionAttempt{}, ErrNotFound
	}
	if err != nil {
		return QuestionAttempt{}, err
	}
	if completedAt.Valid {
		return QuestionAttempt{}, ErrAlreadyCompleted
	}

	if qa.CreatedAt == 0 {
		qa.CreatedAt = time.Now().Unix()
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO question_attempts (id, attempt_id, question_id, option_id, short_answer, is_correct, is_confident, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (attempt_id, question_id)
		 DO UPDATE SET option_id=EXCLUDED.option_id, short_answer=EXCLUDED.short_answer,
		               is_correct=EXCLUDED.is_correct, is_confident=EXCLUDED.is_confident
		 RETURNING id`,
		uuid.NewString(), attemptID, qa.QuestionID, qa.OptionID, qa.ShortAnswer, qa.IsCorrect, qa.IsConfident, qa.CreatedAt).
		Scan(&qa.ID)
	return qa, err
}

func (s *SQLStore) SaveConceptConfidences(ctx context.Context, attemptID string, cc []ConceptConfidence) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, c := range cc {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO concept_confidences (attempt_id, concept, confidence)
			 VALUES ($1,$2,$3)
			 ON CONFLICT (attempt_id, concept) DO UPDATE SET confidence=EXCLUDED.confidence`,
			attemptID, c.Concept, c.Confidence); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) CompleteAttempt(ctx context.Context, attemptID string, completedAt int64, score float64) (Attempt, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quiz_attempts SET completed_at=$1, score=$2 WHERE id=$3 AND completed_at IS NULL`,
		completedAt, score, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Attempt{}, err
	}
	if n == 0 {
		if _, err := s.GetAttempt(ctx, attemptID); err != nil {
			return Attempt{}, err
		}
		return Attempt{}, ErrAlreadyCompleted
	}
	return s.GetAttempt(ctx, attemptID)
}

func (s *SQLStore) RecordGradePost(ctx context.Context, attemptID string, ok bool, postErr string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE quiz_attempts SET post_succeeded=$1, post_error=$2 WHERE id=$3`,
		ok, postErr, attemptID)
	return err
}
