package quiz

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"time"

	"github.com/durusapp/durus/core"
	"github.com/durusapp/durus/core/access"
	"github.com/durusapp/durus/core/content"
)

const (
	minQuestions = 10
	maxQuestions = 50

	// per-question allowance plus a flat grace period
	secondsPerQuestion = 75
	graceSeconds       = 15
)

var (
	ErrNotFound         = errors.New("attempt not found")
	ErrTestLocked       = errors.New("this test is not accessible")
	ErrLessonLocked     = errors.New("one of the requested lessons is not accessible")
	ErrAlreadySubmitted = errors.New("this attempt has already been submitted")
	ErrNoQuestions      = errors.New("no questions available")
	ErrQuestionCount    = errors.New("question count out of range")
)

type (
	Repository interface {
		CreateAttempt(ctx context.Context, att Attempt) (Attempt, error)
		GetAttemptByID(ctx context.Context, id int64) (Attempt, error)
		AttemptsByStudent(ctx context.Context, studentID string) ([]Attempt, error)
		// SubmitAttempt persists the final state and answers in one write.
		SubmitAttempt(ctx context.Context, att Attempt, answers []AttemptAnswer) (Attempt, error)
		AnswersByAttempt(ctx context.Context, attemptID int64) ([]AttemptAnswer, error)

		CreateCustomAttempt(ctx context.Context, att CustomAttempt) (CustomAttempt, error)
		GetCustomAttemptByID(ctx context.Context, id int64) (CustomAttempt, error)
		CustomAttemptsByStudent(ctx context.Context, studentID string) ([]CustomAttempt, error)
		SubmitCustomAttempt(ctx context.Context, att CustomAttempt, answers []AttemptAnswer) (CustomAttempt, error)
		AnswersByCustomAttempt(ctx context.Context, attemptID int64) ([]AttemptAnswer, error)
	}

	// QuestionView is one question as presented to the student: choices
	// shuffled, correctness withheld by the API layer.
	QuestionView struct {
		Question content.Question `json:"question"`
		Choices  []content.Choice `json:"choices"`
	}

	Service struct {
		repo        Repository
		contentRepo content.Repository
		accessSvc   *access.Service
	}
)

// the package-level source is internally locked, so shuffles are safe from
// concurrent request handlers
func init() {
	rand.Seed(time.Now().UnixNano())
}

func NewService(repo Repository, contentRepo content.Repository, accessSvc *access.Service) *Service {
	return &Service{
		repo:        repo,
		contentRepo: contentRepo,
		accessSvc:   accessSvc,
	}
}

// StartAttempt opens a sitting of a test for the student. The access engine
// gates entry; the question sample is clamped to [10, 50] (all questions when
// the pool holds fewer than 10) and both questions and choices come shuffled.
func (svc *Service) StartAttempt(ctx context.Context, testID int64, studentID string, requested int) (Attempt, []QuestionView, error) {
	test, err := svc.contentRepo.GetTestByID(ctx, testID)
	if err != nil {
		return Attempt{}, nil, err
	}
	accessCtx, err := svc.accessSvc.ComputeForSection(ctx, test.SectionID, studentID)
	if err != nil {
		return Attempt{}, nil, err
	}
	if !accessCtx.TestOpen(test) {
		return Attempt{}, nil, ErrTestLocked
	}

	pool, err := svc.contentRepo.QuestionsByTest(ctx, testID)
	if err != nil {
		return Attempt{}, nil, err
	}
	if len(pool) == 0 {
		return Attempt{}, nil, ErrNoQuestions
	}

	questions := svc.sample(pool, clampCount(requested, len(pool)))
	views, err := svc.buildViews(ctx, questions)
	if err != nil {
		return Attempt{}, nil, err
	}

	att, err := svc.repo.CreateAttempt(ctx, Attempt{
		TestID:    testID,
		StudentID: studentID,
		Status:    StatusActive,
		Total:     len(questions),
		TimeLimit: timeLimit(len(questions)),
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		return Attempt{}, nil, err
	}
	return att, views, nil
}

// SubmitAttempt scores the sitting and closes it. A second submission of the
// same attempt fails with ErrAlreadySubmitted.
func (svc *Service) SubmitAttempt(ctx context.Context, attemptID int64, studentID string, sub SubmitAnswers) (Attempt, error) {
	att, err := svc.repo.GetAttemptByID(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if att.StudentID != studentID {
		return Attempt{}, ErrNotFound
	}
	if att.Status == StatusSubmitted {
		return Attempt{}, ErrAlreadySubmitted
	}

	// the served sample is not persisted, so grade the submitted answers
	// against the test's question pool
	pool, err := svc.contentRepo.QuestionsByTest(ctx, att.TestID)
	if err != nil {
		return Attempt{}, err
	}
	inPool := make(map[int64]struct{}, len(pool))
	for _, q := range pool {
		inPool[q.ID] = struct{}{}
	}

	score := 0
	answers := make([]AttemptAnswer, 0, len(sub.Answers))
	qids := make([]int64, 0, len(sub.Answers))
	for qid := range sub.Answers {
		if _, ok := inPool[qid]; ok {
			qids = append(qids, qid)
		}
	}
	sort.Slice(qids, func(i, j int) bool { return qids[i] < qids[j] })
	for _, qid := range qids {
		ans := AttemptAnswer{AttemptID: att.ID, QuestionID: qid}
		choice, err := svc.contentRepo.GetChoiceByID(ctx, sub.Answers[qid])
		if err != nil && err != content.ErrNotFound {
			return Attempt{}, err
		}
		if err == nil && choice.QuestionID == qid {
			ans.ChoiceID = &choice.ID
			ans.IsCorrect = choice.IsCorrect
		}
		if ans.IsCorrect {
			score++
		}
		answers = append(answers, ans)
	}

	now := time.Now().UTC()
	att.Status = StatusSubmitted
	att.Score = score
	att.SubmittedAt = &now
	return svc.repo.SubmitAttempt(ctx, att, answers)
}

// GetAttempt returns a student's attempt with its recorded answers.
func (svc *Service) GetAttempt(ctx context.Context, attemptID int64, studentID string) (Attempt, []AttemptAnswer, error) {
	att, err := svc.repo.GetAttemptByID(ctx, attemptID)
	if err != nil {
		return Attempt{}, nil, err
	}
	if att.StudentID != studentID {
		return Attempt{}, nil, ErrNotFound
	}
	answers, err := svc.repo.AnswersByAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, nil, err
	}
	return att, answers, nil
}

func (svc *Service) AttemptsByStudent(ctx context.Context, studentID string) ([]Attempt, error) {
	return svc.repo.AttemptsByStudent(ctx, studentID)
}

// StartCustomAttempt assembles a student-built test from their unlocked
// lessons. The per-lesson counts are capped by each lesson's pool and the
// total must land within [10, 50]. The shuffled orders are persisted so
// reloading the attempt shows the same paper.
func (svc *Service) StartCustomAttempt(ctx context.Context, studentID string, nca NewCustomAttempt) (CustomAttempt, error) {
	nca.Title = core.CleanString(nca.Title)
	if err := core.Validate.Struct(nca); err != nil {
		return CustomAttempt{}, err
	}

	unlocked, err := svc.accessSvc.UnlockedLessons(ctx, studentID)
	if err != nil {
		return CustomAttempt{}, err
	}
	unlockedIDs := make(map[int64]struct{}, len(unlocked))
	for _, les := range unlocked {
		unlockedIDs[les.ID] = struct{}{}
	}

	var questions []content.Question
	seen := make(map[int64]struct{})
	for lessonID, count := range nca.LessonCounts {
		if count <= 0 {
			continue
		}
		if _, ok := unlockedIDs[lessonID]; !ok {
			return CustomAttempt{}, ErrLessonLocked
		}
		pool, err := svc.contentRepo.QuestionsByLesson(ctx, lessonID)
		if err != nil {
			return CustomAttempt{}, err
		}
		if count > len(pool) {
			count = len(pool)
		}
		for _, q := range svc.sample(pool, count) {
			if _, dup := seen[q.ID]; dup {
				continue
			}
			seen[q.ID] = struct{}{}
			questions = append(questions, q)
		}
	}
	if len(questions) < minQuestions || len(questions) > maxQuestions {
		return CustomAttempt{}, ErrQuestionCount
	}

	rand.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
	questionOrder := make([]int64, 0, len(questions))
	choiceOrders := make(map[int64][]int64, len(questions))
	for _, q := range questions {
		questionOrder = append(questionOrder, q.ID)
		choices, err := svc.contentRepo.ChoicesByQuestion(ctx, q.ID)
		if err != nil {
			return CustomAttempt{}, err
		}
		rand.Shuffle(len(choices), func(i, j int) {
			choices[i], choices[j] = choices[j], choices[i]
		})
		ids := make([]int64, 0, len(choices))
		for _, c := range choices {
			ids = append(ids, c.ID)
		}
		choiceOrders[q.ID] = ids
	}

	return svc.repo.CreateCustomAttempt(ctx, CustomAttempt{
		StudentID:     studentID,
		Title:         nca.Title,
		Status:        StatusActive,
		QuestionOrder: questionOrder,
		ChoiceOrders:  choiceOrders,
		Total:         len(questions),
		TimeLimit:     timeLimit(len(questions)),
		CreatedAt:     time.Now().UTC(),
	})
}

// SubmitCustomAttempt scores and closes a custom attempt.
func (svc *Service) SubmitCustomAttempt(ctx context.Context, attemptID int64, studentID string, sub SubmitAnswers) (CustomAttempt, error) {
	att, err := svc.repo.GetCustomAttemptByID(ctx, attemptID)
	if err != nil {
		return CustomAttempt{}, err
	}
	if att.StudentID != studentID {
		return CustomAttempt{}, ErrNotFound
	}
	if att.Status == StatusSubmitted {
		return CustomAttempt{}, ErrAlreadySubmitted
	}

	questions := make([]content.Question, 0, len(att.QuestionOrder))
	for _, qid := range att.QuestionOrder {
		questions = append(questions, content.Question{ID: qid})
	}
	score, answers, err := svc.score(ctx, att.ID, questions, sub.Answers)
	if err != nil {
		return CustomAttempt{}, err
	}

	now := time.Now().UTC()
	att.Status = StatusSubmitted
	att.Score = score
	att.SubmittedAt = &now
	return svc.repo.SubmitCustomAttempt(ctx, att, answers)
}

// GetCustomAttempt returns a student's custom attempt, its paper in persisted
// order, and any recorded answers.
func (svc *Service) GetCustomAttempt(ctx context.Context, attemptID int64, studentID string) (CustomAttempt, []QuestionView, []AttemptAnswer, error) {
	att, err := svc.repo.GetCustomAttemptByID(ctx, attemptID)
	if err != nil {
		return CustomAttempt{}, nil, nil, err
	}
	if att.StudentID != studentID {
		return CustomAttempt{}, nil, nil, ErrNotFound
	}

	views := make([]QuestionView, 0, len(att.QuestionOrder))
	for _, qid := range att.QuestionOrder {
		q, err := svc.contentRepo.GetQuestionByID(ctx, qid)
		if err != nil {
			return CustomAttempt{}, nil, nil, err
		}
		choices, err := svc.contentRepo.ChoicesByQuestion(ctx, qid)
		if err != nil {
			return CustomAttempt{}, nil, nil, err
		}
		byID := make(map[int64]content.Choice, len(choices))
		for _, c := range choices {
			byID[c.ID] = c
		}
		ordered := make([]content.Choice, 0, len(choices))
		for _, cid := range att.ChoiceOrders[qid] {
			if c, ok := byID[cid]; ok {
				ordered = append(ordered, c)
			}
		}
		views = append(views, QuestionView{Question: q, Choices: ordered})
	}

	answers, err := svc.repo.AnswersByCustomAttempt(ctx, attemptID)
	if err != nil {
		return CustomAttempt{}, nil, nil, err
	}
	return att, views, answers, nil
}

func (svc *Service) CustomAttemptsByStudent(ctx context.Context, studentID string) ([]CustomAttempt, error) {
	return svc.repo.CustomAttemptsByStudent(ctx, studentID)
}

// score grades each question against its correct choice. Unanswered or
// unknown choices count as wrong.
func (svc *Service) score(ctx context.Context, attemptID int64, questions []content.Question, picked map[int64]int64) (int, []AttemptAnswer, error) {
	score := 0
	answers := make([]AttemptAnswer, 0, len(questions))
	for _, q := range questions {
		ans := AttemptAnswer{AttemptID: attemptID, QuestionID: q.ID}
		if choiceID, ok := picked[q.ID]; ok {
			choice, err := svc.contentRepo.GetChoiceByID(ctx, choiceID)
			if err == nil && choice.QuestionID == q.ID {
				ans.ChoiceID = &choice.ID
				ans.IsCorrect = choice.IsCorrect
			} else if err != nil && err != content.ErrNotFound {
				return 0, nil, err
			}
		}
		if ans.IsCorrect {
			score++
		}
		answers = append(answers, ans)
	}
	return score, answers, nil
}

func (svc *Service) sample(pool []content.Question, count int) []content.Question {
	shuffled := make([]content.Question, len(pool))
	copy(shuffled, pool)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:count]
}

func (svc *Service) buildViews(ctx context.Context, questions []content.Question) ([]QuestionView, error) {
	views := make([]QuestionView, 0, len(questions))
	for _, q := range questions {
		choices, err := svc.contentRepo.ChoicesByQuestion(ctx, q.ID)
		if err != nil {
			return nil, err
		}
		rand.Shuffle(len(choices), func(i, j int) {
			choices[i], choices[j] = choices[j], choices[i]
		})
		views = append(views, QuestionView{Question: q, Choices: choices})
	}
	return views, nil
}

// clampCount bounds the requested sample size to [10, 50], falling back to the
// whole pool when it holds fewer than 10 questions.
func clampCount(requested, poolSize int) int {
	count := requested
	if count < minQuestions {
		count = minQuestions
	}
	if count > maxQuestions {
		count = maxQuestions
	}
	if count > poolSize {
		count = poolSize
	}
	return count
}

func timeLimit(questionCount int) int {
	return questionCount*secondsPerQuestion + graceSeconds
}
