package quiz_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/durusapp/durus/core/access"
	"github.com/durusapp/durus/core/content"
	"github.com/durusapp/durus/core/quiz"
	dummydb "github.com/durusapp/durus/storage/database/dummy"
)

type fixture struct {
	svc         *quiz.Service
	accessSvc   *access.Service
	contentRepo content.Repository

	subject content.Subject
	section content.Section
	lesson  content.Lesson
	test    content.Test // section-wide
	lesTest content.Test // linked to lesson
}

func newFixture(t *testing.T, subjectGated bool) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	contentRepo := dummydb.NewContentRepository(db)
	accessSvc := access.NewService(dummydb.NewAccessRepository(db), contentRepo)
	svc := quiz.NewService(dummydb.NewQuizRepository(db), contentRepo, accessSvc)

	sub, err := contentRepo.CreateSubject(ctx, content.Subject{Name: "Algebra", RequiresCode: subjectGated})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	sec, err := contentRepo.CreateSection(ctx, content.Section{SubjectID: sub.ID, Title: "Basics"})
	if err != nil {
		t.Fatalf("CreateSection() failed: %v", err)
	}
	les, err := contentRepo.CreateLesson(ctx, content.Lesson{SectionID: sec.ID, Title: "L1"})
	if err != nil {
		t.Fatalf("CreateLesson() failed: %v", err)
	}
	tst, err := contentRepo.CreateTest(ctx, content.Test{SectionID: sec.ID, Title: "Final"})
	if err != nil {
		t.Fatalf("CreateTest() failed: %v", err)
	}
	lesTst, err := contentRepo.CreateTest(ctx, content.Test{SectionID: sec.ID, LessonID: &les.ID, Title: "L1 Quiz"})
	if err != nil {
		t.Fatalf("CreateTest() failed: %v", err)
	}
	return &fixture{
		svc:         svc,
		accessSvc:   accessSvc,
		contentRepo: contentRepo,
		subject:     sub,
		section:     sec,
		lesson:      les,
		test:        tst,
		lesTest:     lesTst,
	}
}

// seedQuestions adds count questions to the test, each with three choices of
// which the first is correct. Returns the created questions with choices.
func (f *fixture) seedQuestions(t *testing.T, testID int64, count int) ([]content.Question, map[int64][]content.Choice) {
	t.Helper()
	ctx := context.Background()

	questions := make([]content.Question, 0, count)
	choicesByQ := make(map[int64][]content.Choice, count)
	for i := 0; i < count; i++ {
		q, choices, err := f.contentRepo.CreateQuestion(ctx,
			content.Question{TestID: testID, Text: fmt.Sprintf("Q%d", i+1)},
			[]content.Choice{
				{Text: "right", IsCorrect: true},
				{Text: "wrong"},
				{Text: "also wrong"},
			},
		)
		if err != nil {
			t.Fatalf("CreateQuestion() failed: %v", err)
		}
		questions = append(questions, q)
		choicesByQ[q.ID] = choices
	}
	return questions, choicesByQ
}

func correctChoice(t *testing.T, choices []content.Choice) content.Choice {
	t.Helper()
	for _, c := range choices {
		if c.IsCorrect {
			return c
		}
	}
	t.Fatal("no correct choice in fixture")
	return content.Choice{}
}

func TestStartAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.seedQuestions(t, f.test.ID, 12)

	att, views, err := f.svc.StartAttempt(ctx, f.test.ID, "std1", 0)
	if err != nil {
		t.Fatalf("StartAttempt() failed: %v", err)
	}
	// requested count below the floor clamps up to 10
	if att.Total != 10 {
		t.Errorf("Total = %d; expected 10", att.Total)
	}
	if len(views) != 10 {
		t.Errorf("len(views) = %d; expected 10", len(views))
	}
	if att.TimeLimit != 10*75+15 {
		t.Errorf("TimeLimit = %d; expected %d", att.TimeLimit, 10*75+15)
	}
	if att.Status != quiz.StatusActive {
		t.Errorf("Status = %s; expected %s", att.Status, quiz.StatusActive)
	}
	seen := make(map[int64]struct{})
	for _, v := range views {
		if _, dup := seen[v.Question.ID]; dup {
			t.Errorf("question %d served twice", v.Question.ID)
		}
		seen[v.Question.ID] = struct{}{}
		if len(v.Choices) != 3 {
			t.Errorf("question %d served with %d choices; expected 3", v.Question.ID, len(v.Choices))
		}
	}
}

func TestStartAttemptSmallPool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.seedQuestions(t, f.test.ID, 3)

	att, views, err := f.svc.StartAttempt(ctx, f.test.ID, "std1", 20)
	if err != nil {
		t.Fatalf("StartAttempt() failed: %v", err)
	}
	if att.Total != 3 || len(views) != 3 {
		t.Errorf("Total = %d, len(views) = %d; expected 3 and 3", att.Total, len(views))
	}
}

// exercises the shared shuffle source from parallel request goroutines; run
// with -race
func TestStartAttemptConcurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.seedQuestions(t, f.test.ID, 30)

	const goroutines = 16
	const iterations = 50

	var wg sync.WaitGroup
	errs := make(chan error, goroutines)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			studentID := fmt.Sprintf("std%d", g)
			for i := 0; i < iterations; i++ {
				att, views, err := f.svc.StartAttempt(ctx, f.test.ID, studentID, 10)
				if err != nil {
					errs <- err
					return
				}
				if att.Total != 10 || len(views) != 10 {
					errs <- fmt.Errorf("Total = %d, len(views) = %d; expected 10 and 10", att.Total, len(views))
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent StartAttempt() failed: %v", err)
	}
}

func TestStartAttemptLocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.seedQuestions(t, f.test.ID, 12)
	// "Final" is the first section-wide test: free despite the gate... but only
	// while the subject itself is open, which it is not here.
	if _, _, err := f.svc.StartAttempt(ctx, f.test.ID, "std1", 10); err != quiz.ErrTestLocked {
		t.Errorf("StartAttempt() error = %v; expected ErrTestLocked", err)
	}

	// a subject activation opens it
	if err := f.accessSvc.ActivateSubject(ctx, f.subject.ID, "std1"); err != nil {
		t.Fatalf("ActivateSubject() failed: %v", err)
	}
	if _, _, err := f.svc.StartAttempt(ctx, f.test.ID, "std1", 10); err != nil {
		t.Errorf("StartAttempt() after activation failed: %v", err)
	}
}

func TestSubmitAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	questions, choicesByQ := f.seedQuestions(t, f.test.ID, 10)

	att, _, err := f.svc.StartAttempt(ctx, f.test.ID, "std1", 10)
	if err != nil {
		t.Fatalf("StartAttempt() failed: %v", err)
	}

	// seven right, one wrong, two skipped
	answers := make(map[int64]int64)
	for i, q := range questions {
		switch {
		case i < 7:
			answers[q.ID] = correctChoice(t, choicesByQ[q.ID]).ID
		case i == 7:
			for _, c := range choicesByQ[q.ID] {
				if !c.IsCorrect {
					answers[q.ID] = c.ID
					break
				}
			}
		}
	}

	att, err = f.svc.SubmitAttempt(ctx, att.ID, "std1", quiz.SubmitAnswers{Answers: answers})
	if err != nil {
		t.Fatalf("SubmitAttempt() failed: %v", err)
	}
	if att.Score != 7 {
		t.Errorf("Score = %d; expected 7", att.Score)
	}
	if att.Status != quiz.StatusSubmitted || att.SubmittedAt == nil {
		t.Errorf("attempt not closed: status=%s submittedAt=%v", att.Status, att.SubmittedAt)
	}

	// submit-once
	if _, err = f.svc.SubmitAttempt(ctx, att.ID, "std1", quiz.SubmitAnswers{}); err != quiz.ErrAlreadySubmitted {
		t.Errorf("second SubmitAttempt() error = %v; expected ErrAlreadySubmitted", err)
	}

	// another student cannot read it
	if _, _, err = f.svc.GetAttempt(ctx, att.ID, "std2"); err != quiz.ErrNotFound {
		t.Errorf("GetAttempt(other student) error = %v; expected ErrNotFound", err)
	}
	_, recorded, err := f.svc.GetAttempt(ctx, att.ID, "std1")
	if err != nil {
		t.Fatalf("GetAttempt() failed: %v", err)
	}
	if len(recorded) != 8 {
		t.Errorf("recorded answers = %d; expected 8", len(recorded))
	}
}

func TestCustomAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	questions, choicesByQ := f.seedQuestions(t, f.lesTest.ID, 12)

	att, err := f.svc.StartCustomAttempt(ctx, "std1", quiz.NewCustomAttempt{
		Title:        "Revision",
		LessonCounts: map[int64]int{f.lesson.ID: 12},
	})
	if err != nil {
		t.Fatalf("StartCustomAttempt() failed: %v", err)
	}
	if att.Total != 12 {
		t.Errorf("Total = %d; expected 12", att.Total)
	}
	if len(att.QuestionOrder) != 12 {
		t.Errorf("len(QuestionOrder) = %d; expected 12", len(att.QuestionOrder))
	}
	for _, qid := range att.QuestionOrder {
		if len(att.ChoiceOrders[qid]) != 3 {
			t.Errorf("question %d has %d persisted choices; expected 3", qid, len(att.ChoiceOrders[qid]))
		}
	}

	// the persisted paper is served back in order
	_, views, _, err := f.svc.GetCustomAttempt(ctx, att.ID, "std1")
	if err != nil {
		t.Fatalf("GetCustomAttempt() failed: %v", err)
	}
	for i, v := range views {
		if v.Question.ID != att.QuestionOrder[i] {
			t.Errorf("views[%d] = question %d; expected %d", i, v.Question.ID, att.QuestionOrder[i])
		}
	}

	// all correct
	answers := make(map[int64]int64)
	for _, q := range questions {
		answers[q.ID] = correctChoice(t, choicesByQ[q.ID]).ID
	}
	att, err = f.svc.SubmitCustomAttempt(ctx, att.ID, "std1", quiz.SubmitAnswers{Answers: answers})
	if err != nil {
		t.Fatalf("SubmitCustomAttempt() failed: %v", err)
	}
	if att.Score != 12 {
		t.Errorf("Score = %d; expected 12", att.Score)
	}
	if _, err = f.svc.SubmitCustomAttempt(ctx, att.ID, "std1", quiz.SubmitAnswers{}); err != quiz.ErrAlreadySubmitted {
		t.Errorf("second SubmitCustomAttempt() error = %v; expected ErrAlreadySubmitted", err)
	}
}

func TestCustomAttemptBounds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.seedQuestions(t, f.lesTest.ID, 5)

	// pool too small for the floor
	_, err := f.svc.StartCustomAttempt(ctx, "std1", quiz.NewCustomAttempt{
		Title:        "Too small",
		LessonCounts: map[int64]int{f.lesson.ID: 5},
	})
	if err != quiz.ErrQuestionCount {
		t.Errorf("StartCustomAttempt() error = %v; expected ErrQuestionCount", err)
	}
}

func TestCustomAttemptLockedLesson(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true) // gated subject, nothing unlocked
	f.seedQuestions(t, f.lesTest.ID, 12)

	_, err := f.svc.StartCustomAttempt(ctx, "std1", quiz.NewCustomAttempt{
		Title:        "Nope",
		LessonCounts: map[int64]int{f.lesson.ID: 12},
	})
	if err != quiz.ErrLessonLocked {
		t.Errorf("StartCustomAttempt() error = %v; expected ErrLessonLocked", err)
	}
}
