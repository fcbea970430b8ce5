package quiz

type QuizType string

const (
	TypeGraded   QuizType = "GRADED"
	TypePractice QuizType = "PRACTICE"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	ShortAnswer    QuestionType = "short_answer"
)

type Course struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	LMSURL         string `json:"lms_url,omitempty"`
	ConsentFormURL string `json:"consent_form_url,omitempty"`
	LTISecret      string `json:"-"`
}

// Student identity attributes mirror the LMS and are refreshed on every
// launch; the LTI user id is the stable key.
type Student struct {
	ID        string `json:"id"`
	LTIUserID string `json:"lti_user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type Question struct {
	ID      string       `json:"id"`
	Type    QuestionType `json:"type"`
	Prompt  string       `json:"prompt"`
	Concept string       `json:"concept,omitempty"`
	Options []Option     `json:"options,omitempty"`

	// Answer key; stripped before serving to students.
	CorrectOption string   `json:"correct_option,omitempty"`
	CorrectShort  []string `json:"correct_short,omitempty"`
}

type Quiz struct {
	ID        string     `json:"id"`
	CourseID  string     `json:"course_id"`
	Title     string     `json:"title"`
	Type      QuizType   `json:"type"`
	Questions []Question `json:"questions"`
}

type QuestionAttempt struct {
	ID          string `json:"id"`
	QuestionID  string `json:"question_id"`
	OptionID    string `json:"option_id,omitempty"`
	ShortAnswer string `json:"short_answer,omitempty"`
	IsCorrect   bool   `json:"is_correct"`
	IsConfident bool   `json:"is_confident"`
	CreatedAt   int64  `json:"created_at"`
}

// ConceptConfidence is the number of questions in a concept the student
// predicted, before starting, they would answer correctly.
type ConceptConfidence struct {
	Concept    string `json:"concept"`
	Confidence int    `json:"confidence"`
}

type Attempt struct {
	ID          string  `json:"id"`
	QuizID      string  `json:"quiz_id"`
	StudentID   string  `json:"student_id"`
	StartedAt   int64   `json:"started_at"`
	CompletedAt *int64  `json:"completed_at,omitempty"`
	Score       float64 `json:"score"`

	// Launch payload minus OAuth fields, kept for grade passback.
	LTISession map[string]string `json:"lti_session,omitempty"`

	QuestionAttempts   []QuestionAttempt   `json:"question_attempts"`
	ConceptConfidences []ConceptConfidence `json:"concept_confidences"`

	PostSucceeded *bool  `json:"post_succeeded,omitempty"`
	PostError     string `json:"post_error,omitempty"`
}

func (a Attempt) Completed() bool { return a.CompletedAt != nil }

// AnsweredFor returns the attempt's question attempts, optionally filtered
// to questions tagged with one concept. Attempts on questions that no
// longer exist in the quiz are dropped (quizzes can drift after attempts
// are recorded).
func (a Attempt) AnsweredFor(qz Quiz, concept string) []QuestionAttempt {
	byID := make(map[string]Question, len(qz.Questions))
	for _, q := range qz.Questions {
		byID[q.ID] = q
	}
	out := make([]QuestionAttempt, 0, len(a.QuestionAttempts))
	for _, qa := range a.QuestionAttempts {
		q, ok := byID[qa.QuestionID]
		if !ok {
			continue
		}
		if concept != "" && q.Concept != concept {
			continue
		}
		out = append(out, qa)
	}
	return out
}

// StripAnswers removes answer keys before a quiz is served to a student.
func StripAnswers(qs []Question) []Question {
	out := make([]Question, len(qs))
	copy(out, qs)
	for i := range out {
		out[i].CorrectOption = ""
		out[i].CorrectShort = nil
	}
	return out
}

// Concepts returns the distinct concept labels of a quiz in question order.
func Concepts(qz Quiz) []string {
	seen := map[string]bool{}
	var out []string
	for _, q := range qz.Questions {
		if q.Concept == "" || seen[q.Concept] {
			continue
		}
		seen[q.Concept] = true
		out = append(out, q.Concept)
	}
	return out
}
