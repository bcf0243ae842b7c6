package quiz

import "time"

// AttemptStatus is the lifecycle state of an attempt. Submission is one-way.
type AttemptStatus string

const (
	StatusActive    AttemptStatus = "active"
	StatusSubmitted AttemptStatus = "submitted"
)

// Attempt is a student's sitting of a test. The question sample is drawn when
// the attempt starts; score and answers are recorded once on submission.
type Attempt struct {
	ID          int64         `json:"id"`
	TestID      int64         `json:"test_id"`
	StudentID   string        `json:"student_id"`
	Status      AttemptStatus `json:"status"`
	Score       int           `json:"score"`
	Total       int           `json:"total"`
	TimeLimit   int           `json:"time_limit"` // seconds
	StartedAt   time.Time     `json:"started_at"` // UTC
	SubmittedAt *time.Time    `json:"submitted_at"`
}

// AttemptAnswer records the choice a student picked for one question of a
// submitted attempt. A nil ChoiceID means the question was skipped.
type AttemptAnswer struct {
	AttemptID  int64  `json:"attempt_id"`
	QuestionID int64  `json:"question_id"`
	ChoiceID   *int64 `json:"choice_id"`
	IsCorrect  bool   `json:"is_correct"`
}

// CustomAttempt is a student-assembled test drawn from several lessons. Unlike
// a regular attempt its shuffled question and choice orders are persisted, so
// the student sees the same paper on every load until submission.
type CustomAttempt struct {
	ID            int64             `json:"id"`
	StudentID     string            `json:"student_id"`
	Title         string            `json:"title"`
	Status        AttemptStatus     `json:"status"`
	QuestionOrder []int64           `json:"question_order"`
	ChoiceOrders  map[int64][]int64 `json:"choice_orders"` // questionID -> choiceIDs
	Score         int               `json:"score"`
	Total         int               `json:"total"`
	TimeLimit     int               `json:"time_limit"` // seconds
	CreatedAt     time.Time         `json:"created_at"` // UTC
	SubmittedAt   *time.Time        `json:"submitted_at"`
}

// NewCustomAttempt is the student input for assembling a custom test:
// how many questions to draw from each of their unlocked lessons.
type NewCustomAttempt struct {
	Title        string        `json:"title" validate:"required,max=255"`
	LessonCounts map[int64]int `json:"lesson_counts" validate:"required,min=1"`
}

// SubmitAnswers is the submission payload, question to picked choice.
// Questions absent from the map count as unanswered.
type SubmitAnswers struct {
	Answers map[int64]int64 `json:"answers"`
}
