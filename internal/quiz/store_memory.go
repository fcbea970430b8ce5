package quiz

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore backs dev mode and tests. Same semantics as SQLStore,
// including the at-most-one-open-attempt guarantee.
type MemoryStore struct {
	mu        sync.RWMutex
	courses   map[string]Course
	quizzes   map[string]Quiz
	students  map[string]Student // by LTI user id
	enrolled  map[string]bool    // courseID|studentID
	consents  map[string]string  // studentID|courseID -> "yes"|"no"
	attempts  map[string]Attempt
}

func NewInMemoryStore() *MemoryStore {
	return &MemoryStore{
		courses:   map[string]Course{},
		quizzes:   map[string]Quiz{},
		students:  map[string]Student{},
		enrolled:  map[string]bool{},
		consents:  map[string]string{},
		attempts:  map[string]Attempt{},
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) PutCourse(c Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[c.ID] = c
}

func (m *MemoryStore) PutQuiz(q Quiz) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = q
}

// PutAttempt seeds an attempt directly, bypassing the open-attempt
// guard. Test hook for invariant-violation scenarios.
func (m *MemoryStore) PutAttempt(a Attempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.ID] = a
}

func (m *MemoryStore) GetCourse(_ context.Context, id string) (Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return Course{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, ErrNotFound
	}
	return q, nil
}

func (m *MemoryStore) UpsertStudent(_ context.Context, ltiUserID, name, email string) (Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[ltiUserID]
	if !ok {
		st = Student{ID: uuid.NewString(), LTIUserID: ltiUserID, CreatedAt: time.Now().Unix()}
	}
	st.Name, st.Email = name, email
	m.students[ltiUserID] = st
	return st, nil
}

func (m *MemoryStore) EnsureEnrolled(_ context.Context, studentID, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrolled[courseID+"|"+studentID] = true
	return nil
}

func (m *MemoryStore) Enrolled(studentID, courseID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enrolled[courseID+"|"+studentID]
}

// StudentByLTIUserID is a test hook for asserting on launch side effects.
func (m *MemoryStore) StudentByLTIUserID(ltiUserID string) (Student, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.students[ltiUserID]
	return st, ok
}

// AttemptsFor is a test hook: all attempts for (student, quiz), any state.
func (m *MemoryStore) AttemptsFor(studentID, quizID string) []Attempt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Attempt
	for _, a := range m.attempts {
		if a.StudentID == studentID && a.QuizID == quizID {
			out = append(out, a)
		}
	}
	return out
}

func (m *MemoryStore) HasConsent(_ context.Context, studentID, courseID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.consents[studentID+"|"+courseID]
	return ok, nil
}

func (m *MemoryStore) SaveConsent(_ context.Context, studentID, courseID, consent string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consents[studentID+"|"+courseID] = consent
	return nil
}

func (m *MemoryStore) OpenOrCreateAttempt(_ context.Context, studentID, quizID string, session map[string]string) (Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.attempts {
		if a.StudentID == studentID && a.QuizID == quizID && !a.Completed() {
			if len(session) > 0 {
				a.LTISession = cloneSession(session)
			}
			m.attempts[id] = a
			return a, false, nil
		}
	}
	a := Attempt{
		ID:         uuid.NewString(),
		QuizID:     quizID,
		StudentID:  studentID,
		StartedAt:  time.Now().Unix(),
		LTISession: cloneSession(session),
	}
	m.attempts[a.ID] = a
	return a, true, nil
}

func (m *MemoryStore) CountOpenAttempts(_ context.Context, studentID, quizID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.attempts {
		if a.StudentID == studentID && a.QuizID == quizID && !a.Completed() {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	return a, nil
}

func (m *MemoryStore) SaveQuestionAttempt(_ context.Context, attemptID string, qa QuestionAttempt) (QuestionAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return QuestionAttempt{}, ErrNotFound
	}
	if a.Completed() {
		return QuestionAttempt{}, ErrAlreadyCompleted
	}
	if qa.CreatedAt == 0 {
		qa.CreatedAt = time.Now().Unix()
	}
	for i, prev := range a.QuestionAttempts {
		if prev.QuestionID == qa.QuestionID {
			qa.ID = prev.ID
			qa.CreatedAt = prev.CreatedAt
			a.QuestionAttempts[i] = qa
			m.attempts[attemptID] = a
			return qa, nil
		}
	}
	qa.ID = uuid.NewString()
	a.QuestionAttempts = append(a.QuestionAttempts, qa)
	m.attempts[attemptID] = a
	return qa, nil
}

func (m *MemoryStore) SaveConceptConfidences(_ context.Context, attemptID string, cc []ConceptConfidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return ErrNotFound
	}
	byConcept := map[string]int{}
	for i, prev := range a.ConceptConfidences {
		byConcept[prev.Concept] = i
	}
	for _, c := range cc {
		if i, ok := byConcept[c.Concept]; ok {
			a.ConceptConfidences[i] = c
			continue
		}
		a.ConceptConfidences = append(a.ConceptConfidences, c)
	}
	m.attempts[attemptID] = a
	return nil
}

func (m *MemoryStore) CompleteAttempt(_ context.Context, attemptID string, completedAt int64, score float64) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	if a.Completed() {
		return Attempt{}, ErrAlreadyCompleted
	}
	a.CompletedAt = &completedAt
	a.Score = score
	m.attempts[attemptID] = a
	return a, nil
}

func (m *MemoryStore) RecordGradePost(_ context.Context, attemptID string, ok bool, postErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, found := m.attempts[attemptID]
	if !found {
		return ErrNotFound
	}
	a.PostSucceeded = &ok
	a.PostError = postErr
	m.attempts[attemptID] = a
	return nil
}

func cloneSession(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
