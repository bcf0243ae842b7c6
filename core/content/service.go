package content

import (
	"context"
	"errors"
	"time"
)

var (
	// errors
	ErrNotFound = errors.New("content not found")
)

type (
	Repository interface {
		// subjects
		CreateSubject(ctx context.Context, sub Subject) (Subject, error)
		GetSubjectByID(ctx context.Context, id int64) (Subject, error)
		QueryAllSubjects(ctx context.Context) ([]Subject, error)
		UpdateSubject(ctx context.Context, sub Subject, requiresCode *bool) (Subject, error)
		DeleteSubjectsByID(ctx context.Context, ids ...int64) error

		// sections
		CreateSection(ctx context.Context, sec Section) (Section, error)
		GetSectionByID(ctx context.Context, id int64) (Section, error)
		SectionsBySubject(ctx context.Context, subjectID int64) ([]Section, error)
		UpdateSection(ctx context.Context, sec Section, requiresCode *bool) (Section, error)
		DeleteSectionsByID(ctx context.Context, ids ...int64) error

		// lessons
		CreateLesson(ctx context.Context, les Lesson) (Lesson, error)
		GetLessonByID(ctx context.Context, id int64) (Lesson, error)
		LessonsBySection(ctx context.Context, sectionID int64) ([]Lesson, error)
		LessonsBySubject(ctx context.Context, subjectID int64) ([]Lesson, error)
		UpdateLesson(ctx context.Context, les Lesson, requiresCode *bool) (Lesson, error)
		DeleteLessonsByID(ctx context.Context, ids ...int64) error

		// lesson resources
		CreateLessonResource(ctx context.Context, res LessonResource) (LessonResource, error)
		ResourcesByLesson(ctx context.Context, lessonID int64) ([]LessonResource, error)
		DeleteLessonResourcesByID(ctx context.Context, ids ...int64) error

		// tests
		CreateTest(ctx context.Context, tst Test) (Test, error)
		GetTestByID(ctx context.Context, id int64) (Test, error)
		TestsBySection(ctx context.Context, sectionID int64) ([]Test, error)
		TestsByLesson(ctx context.Context, lessonID int64) ([]Test, error)
		UpdateTest(ctx context.Context, tst Test, requiresCode *bool) (Test, error)
		DeleteTestsByID(ctx context.Context, ids ...int64) error

		// questions & choices
		CreateQuestion(ctx context.Context, q Question, choices []Choice) (Question, []Choice, error)
		GetQuestionByID(ctx context.Context, id int64) (Question, error)
		QuestionsByTest(ctx context.Context, testID int64) ([]Question, error)
		QuestionsByLesson(ctx context.Context, lessonID int64) ([]Question, error)
		ChoicesByQuestion(ctx context.Context, questionID int64) ([]Choice, error)
		GetChoiceByID(ctx context.Context, id int64) (Choice, error)
		DeleteQuestionsByID(ctx context.Context, ids ...int64) error

		// GetSectionTree loads a Section with its parent Subject and all child
		// Lessons and Tests, children ordered by ID ascending.
		GetSectionTree(ctx context.Context, sectionID int64) (SectionTree, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Subjects

func (svc *Service) CreateSubject(ctx context.Context, ns NewSubject, createdBy string) (Subject, error) {
	sub := Subject{
		Name:         ns.Name,
		Description:  ns.Description,
		RequiresCode: ns.RequiresCode,
		CreatedBy:    createdBy,
		CreatedAt:    time.Now().UTC(),
	}
	return svc.repo.CreateSubject(ctx, sub)
}

func (svc *Service) GetSubject(ctx context.Context, id int64) (Subject, error) {
	return svc.repo.GetSubjectByID(ctx, id)
}

func (svc *Service) QueryAllSubjects(ctx context.Context) ([]Subject, error) {
	return svc.repo.QueryAllSubjects(ctx)
}

func (svc *Service) UpdateSubject(ctx context.Context, id int64, us UpdateSubject) (Subject, error) {
	sub := Subject{ID: id, Name: us.Name, Description: us.Description}
	return svc.repo.UpdateSubject(ctx, sub, us.RequiresCode)
}

// DeleteSubjects removes subjects and, transitively, everything they own.
func (svc *Service) DeleteSubjects(ctx context.Context, ids ...int64) error {
	return svc.repo.DeleteSubjectsByID(ctx, ids...)
}

// Sections

func (svc *Service) CreateSection(ctx context.Context, ns NewSection) (Section, error) {
	if _, err := svc.repo.GetSubjectByID(ctx, ns.SubjectID); err != nil {
		return Section{}, err
	}
	sec := Section{
		SubjectID:    ns.SubjectID,
		Title:        ns.Title,
		Description:  ns.Description,
		RequiresCode: ns.RequiresCode,
	}
	return svc.repo.CreateSection(ctx, sec)
}

func (svc *Service) GetSection(ctx context.Context, id int64) (Section, error) {
	return svc.repo.GetSectionByID(ctx, id)
}

func (svc *Service) SectionsBySubject(ctx context.Context, subjectID int64) ([]Section, error) {
	return svc.repo.SectionsBySubject(ctx, subjectID)
}

func (svc *Service) UpdateSection(ctx context.Context, id int64, us UpdateSection) (Section, error) {
	sec := Section{ID: id, Title: us.Title, Description: us.Description}
	return svc.repo.UpdateSection(ctx, sec, us.RequiresCode)
}

func (svc *Service) DeleteSections(ctx context.Context, ids ...int64) error {
	return svc.repo.DeleteSectionsByID(ctx, ids...)
}

// Lessons

func (svc *Service) CreateLesson(ctx context.Context, nl NewLesson) (Lesson, error) {
	if _, err := svc.repo.GetSectionByID(ctx, nl.SectionID); err != nil {
		return Lesson{}, err
	}
	les := Lesson{
		SectionID:    nl.SectionID,
		Title:        nl.Title,
		Content:      nl.Content,
		RequiresCode: true,
	}
	if nl.RequiresCode != nil {
		les.RequiresCode = *nl.RequiresCode
	}
	les, err := svc.repo.CreateLesson(ctx, les)
	if err != nil {
		return Lesson{}, err
	}
	for i, nr := range nl.Resources {
		res := LessonResource{
			LessonID:     les.ID,
			Label:        nr.Label,
			URL:          nr.URL,
			ResourceType: nr.ResourceType,
			Position:     i,
		}
		if _, err = svc.repo.CreateLessonResource(ctx, res); err != nil {
			return Lesson{}, err
		}
	}
	return les, nil
}

func (svc *Service) GetLesson(ctx context.Context, id int64) (Lesson, error) {
	return svc.repo.GetLessonByID(ctx, id)
}

func (svc *Service) LessonsBySection(ctx context.Context, sectionID int64) ([]Lesson, error) {
	return svc.repo.LessonsBySection(ctx, sectionID)
}

func (svc *Service) LessonResources(ctx context.Context, lessonID int64) ([]LessonResource, error) {
	return svc.repo.ResourcesByLesson(ctx, lessonID)
}

func (svc *Service) UpdateLesson(ctx context.Context, id int64, ul UpdateLesson) (Lesson, error) {
	les := Lesson{ID: id, Title: ul.Title, Content: ul.Content}
	return svc.repo.UpdateLesson(ctx, les, ul.RequiresCode)
}

func (svc *Service) DeleteLessons(ctx context.Context, ids ...int64) error {
	return svc.repo.DeleteLessonsByID(ctx, ids...)
}

// Tests

func (svc *Service) CreateTest(ctx context.Context, nt NewTest, createdBy string) (Test, error) {
	if _, err := svc.repo.GetSectionByID(ctx, nt.SectionID); err != nil {
		return Test{}, err
	}
	if nt.LessonID != nil {
		les, err := svc.repo.GetLessonByID(ctx, *nt.LessonID)
		if err != nil {
			return Test{}, err
		}
		if les.SectionID != nt.SectionID {
			return Test{}, ErrNotFound
		}
	}
	tst := Test{
		SectionID:    nt.SectionID,
		LessonID:     nt.LessonID,
		Title:        nt.Title,
		Description:  nt.Description,
		RequiresCode: true,
		CreatedBy:    createdBy,
	}
	if nt.RequiresCode != nil {
		tst.RequiresCode = *nt.RequiresCode
	}
	return svc.repo.CreateTest(ctx, tst)
}

func (svc *Service) GetTest(ctx context.Context, id int64) (Test, error) {
	return svc.repo.GetTestByID(ctx, id)
}

func (svc *Service) TestsBySection(ctx context.Context, sectionID int64) ([]Test, error) {
	return svc.repo.TestsBySection(ctx, sectionID)
}

func (svc *Service) TestsByLesson(ctx context.Context, lessonID int64) ([]Test, error) {
	return svc.repo.TestsByLesson(ctx, lessonID)
}

func (svc *Service) UpdateTest(ctx context.Context, id int64, ut UpdateTest) (Test, error) {
	tst := Test{ID: id, Title: ut.Title, Description: ut.Description}
	return svc.repo.UpdateTest(ctx, tst, ut.RequiresCode)
}

func (svc *Service) DeleteTests(ctx context.Context, ids ...int64) error {
	return svc.repo.DeleteTestsByID(ctx, ids...)
}

// Questions

func (svc *Service) CreateQuestion(ctx context.Context, nq NewQuestion) (Question, []Choice, error) {
	if _, err := svc.repo.GetTestByID(ctx, nq.TestID); err != nil {
		return Question{}, nil, err
	}
	q := Question{TestID: nq.TestID, Text: nq.Text, Hint: nq.Hint}
	choices := make([]Choice, 0, len(nq.Choices))
	for _, nc := range nq.Choices {
		choices = append(choices, Choice{Text: nc.Text, IsCorrect: nc.IsCorrect})
	}
	return svc.repo.CreateQuestion(ctx, q, choices)
}

func (svc *Service) GetQuestionByID(ctx context.Context, id int64) (Question, error) {
	return svc.repo.GetQuestionByID(ctx, id)
}

func (svc *Service) QuestionsByTest(ctx context.Context, testID int64) ([]Question, error) {
	return svc.repo.QuestionsByTest(ctx, testID)
}

func (svc *Service) ChoicesByQuestion(ctx context.Context, questionID int64) ([]Choice, error) {
	return svc.repo.ChoicesByQuestion(ctx, questionID)
}

func (svc *Service) DeleteQuestions(ctx context.Context, ids ...int64) error {
	return svc.repo.DeleteQuestionsByID(ctx, ids...)
}

// SectionTree loads the section with its subject and children for access computation.
func (svc *Service) SectionTree(ctx context.Context, sectionID int64) (SectionTree, error) {
	return svc.repo.GetSectionTree(ctx, sectionID)
}
