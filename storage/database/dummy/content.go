package dummydb

import (
	"context"
	"sort"

	"github.com/durusapp/durus/core/content"
)

type contentRepository struct {
	db *DB
}

var _ content.Repository = (*contentRepository)(nil) // interface compliance check

func NewContentRepository(db *DB) content.Repository {
	return &contentRepository{db: db}
}

// subjects

func (repo *contentRepository) CreateSubject(_ context.Context, sub content.Subject) (content.Subject, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub.ID = repo.db.nextPK()
	repo.db.subjects[sub.ID] = &sub
	return sub, nil
}

func (repo *contentRepository) GetSubjectByID(_ context.Context, id int64) (content.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sub, ok := repo.db.subjects[id]; ok {
		return *sub, nil
	}
	return content.Subject{}, content.ErrNotFound
}

func (repo *contentRepository) QueryAllSubjects(_ context.Context) ([]content.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subs := make([]content.Subject, 0, len(repo.db.subjects))
	for _, sub := range repo.db.subjects {
		subs = append(subs, *sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs, nil
}

func (repo *contentRepository) UpdateSubject(_ context.Context, sub content.Subject, requiresCode *bool) (content.Subject, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.subjects[sub.ID]
	if !ok {
		return content.Subject{}, content.ErrNotFound
	}
	orig.Name = sub.Name
	orig.Description = sub.Description
	if requiresCode != nil {
		orig.RequiresCode = *requiresCode
	}
	return *orig, nil
}

func (repo *contentRepository) DeleteSubjectsByID(_ context.Context, ids ...int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.subjects, id)
	}
	return nil
}

// sections

func (repo *contentRepository) CreateSection(_ context.Context, sec content.Section) (content.Section, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sec.ID = repo.db.nextPK()
	repo.db.sections[sec.ID] = &sec
	return sec, nil
}

func (repo *contentRepository) GetSectionByID(_ context.Context, id int64) (content.Section, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sec, ok := repo.db.sections[id]; ok {
		return *sec, nil
	}
	return content.Section{}, content.ErrNotFound
}

func (repo *contentRepository) SectionsBySubject(_ context.Context, subjectID int64) ([]content.Section, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.sectionsBySubject(subjectID), nil
}

func (repo *contentRepository) sectionsBySubject(subjectID int64) []content.Section {
	secs := make([]content.Section, 0)
	for _, sec := range repo.db.sections {
		if sec.SubjectID == subjectID {
			secs = append(secs, *sec)
		}
	}
	sort.Slice(secs, func(i, j int) bool { return secs[i].ID < secs[j].ID })
	return secs
}

func (repo *contentRepository) UpdateSection(_ context.Context, sec content.Section, requiresCode *bool) (content.Section, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.sections[sec.ID]
	if !ok {
		return content.Section{}, content.ErrNotFound
	}
	orig.Title = sec.Title
	orig.Description = sec.Description
	if requiresCode != nil {
		orig.RequiresCode = *requiresCode
	}
	return *orig, nil
}

func (repo *contentRepository) DeleteSectionsByID(_ context.Context, ids ...int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.sections, id)
	}
	return nil
}

// lessons

func (repo *contentRepository) CreateLesson(_ context.Context, les content.Lesson) (content.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	les.ID = repo.db.nextPK()
	repo.db.lessons[les.ID] = &les
	return les, nil
}

func (repo *contentRepository) GetLessonByID(_ context.Context, id int64) (content.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if les, ok := repo.db.lessons[id]; ok {
		return *les, nil
	}
	return content.Lesson{}, content.ErrNotFound
}

func (repo *contentRepository) LessonsBySection(_ context.Context, sectionID int64) ([]content.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.lessonsBySection(sectionID), nil
}

func (repo *contentRepository) lessonsBySection(sectionID int64) []content.Lesson {
	lessons := make([]content.Lesson, 0)
	for _, les := range repo.db.lessons {
		if les.SectionID == sectionID {
			lessons = append(lessons, *les)
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].ID < lessons[j].ID })
	return lessons
}

func (repo *contentRepository) LessonsBySubject(_ context.Context, subjectID int64) ([]content.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var lessons []content.Lesson
	for _, sec := range repo.sectionsBySubject(subjectID) {
		lessons = append(lessons, repo.lessonsBySection(sec.ID)...)
	}
	return lessons, nil
}

func (repo *contentRepository) UpdateLesson(_ context.Context, les content.Lesson, requiresCode *bool) (content.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.lessons[les.ID]
	if !ok {
		return content.Lesson{}, content.ErrNotFound
	}
	orig.Title = les.Title
	orig.Content = les.Content
	if requiresCode != nil {
		orig.RequiresCode = *requiresCode
	}
	return *orig, nil
}

func (repo *contentRepository) DeleteLessonsByID(_ context.Context, ids ...int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.lessons, id)
	}
	return nil
}

// lesson resources

func (repo *contentRepository) CreateLessonResource(_ context.Context, res content.LessonResource) (content.LessonResource, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	res.ID = repo.db.nextPK()
	repo.db.resources[res.ID] = &res
	return res, nil
}

func (repo *contentRepository) ResourcesByLesson(_ context.Context, lessonID int64) ([]content.LessonResource, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	resources := make([]content.LessonResource, 0)
	for _, res := range repo.db.resources {
		if res.LessonID == lessonID {
			resources = append(resources, *res)
		}
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].Position < resources[j].Position })
	return resources, nil
}

func (repo *contentRepository) DeleteLessonResourcesByID(_ context.Context, ids ...int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.resources, id)
	}
	return nil
}

// tests

func (repo *contentRepository) CreateTest(_ context.Context, tst content.Test) (content.Test, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	tst.ID = repo.db.nextPK()
	repo.db.tests[tst.ID] = &tst
	return tst, nil
}

func (repo *contentRepository) GetTestByID(_ context.Context, id int64) (content.Test, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if tst, ok := repo.db.tests[id]; ok {
		return *tst, nil
	}
	return content.Test{}, content.ErrNotFound
}

func (repo *contentRepository) TestsBySection(_ context.Context, sectionID int64) ([]content.Test, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.testsBySection(sectionID), nil
}

func (repo *contentRepository) testsBySection(sectionID int64) []content.Test {
	tests := make([]content.Test, 0)
	for _, tst := range repo.db.tests {
		if tst.SectionID == sectionID {
			tests = append(tests, *tst)
		}
	}
	sort.Slice(tests, func(i, j int) bool { return tests[i].ID < tests[j].ID })
	return tests
}

func (repo *contentRepository) TestsByLesson(_ context.Context, lessonID int64) ([]content.Test, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	tests := make([]content.Test, 0)
	for _, tst := range repo.db.tests {
		if tst.LessonID != nil && *tst.LessonID == lessonID {
			tests = append(tests, *tst)
		}
	}
	sort.Slice(tests, func(i, j int) bool { return tests[i].ID < tests[j].ID })
	return tests, nil
}

func (repo *contentRepository) UpdateTest(_ context.Context, tst content.Test, requiresCode *bool) (content.Test, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.tests[tst.ID]
	if !ok {
		return content.Test{}, content.ErrNotFound
	}
	orig.Title = tst.Title
	orig.Description = tst.Description
	if requiresCode != nil {
		orig.RequiresCode = *requiresCode
	}
	return *orig, nil
}

func (repo *contentRepository) DeleteTestsByID(_ context.Context, ids ...int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.tests, id)
	}
	return nil
}

// questions & choices

func (repo *contentRepository) CreateQuestion(_ context.Context, q content.Question, choices []content.Choice) (content.Question, []content.Choice, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	q.ID = repo.db.nextPK()
	repo.db.questions[q.ID] = &q

	created := make([]content.Choice, 0, len(choices))
	for _, c := range choices {
		c.ID = repo.db.nextPK()
		c.QuestionID = q.ID
		repo.db.choices[c.ID] = &c
		created = append(created, c)
	}
	return q, created, nil
}

func (repo *contentRepository) GetQuestionByID(_ context.Context, id int64) (content.Question, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if q, ok := repo.db.questions[id]; ok {
		return *q, nil
	}
	return content.Question{}, content.ErrNotFound
}

func (repo *contentRepository) QuestionsByTest(_ context.Context, testID int64) ([]content.Question, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.questionsByTest(testID), nil
}

func (repo *contentRepository) questionsByTest(testID int64) []content.Question {
	questions := make([]content.Question, 0)
	for _, q := range repo.db.questions {
		if q.TestID == testID {
			questions = append(questions, *q)
		}
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].ID < questions[j].ID })
	return questions
}

func (repo *contentRepository) QuestionsByLesson(_ context.Context, lessonID int64) ([]content.Question, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var questions []content.Question
	for _, tst := range repo.db.tests {
		if tst.LessonID != nil && *tst.LessonID == lessonID {
			questions = append(questions, repo.questionsByTest(tst.ID)...)
		}
	}
	return questions, nil
}

func (repo *contentRepository) ChoicesByQuestion(_ context.Context, questionID int64) ([]content.Choice, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	choices := make([]content.Choice, 0)
	for _, c := range repo.db.choices {
		if c.QuestionID == questionID {
			choices = append(choices, *c)
		}
	}
	sort.Slice(choices, func(i, j int) bool { return choices[i].ID < choices[j].ID })
	return choices, nil
}

func (repo *contentRepository) GetChoiceByID(_ context.Context, id int64) (content.Choice, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.choices[id]; ok {
		return *c, nil
	}
	return content.Choice{}, content.ErrNotFound
}

func (repo *contentRepository) DeleteQuestionsByID(_ context.Context, ids ...int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.questions, id)
		for cid, c := range repo.db.choices {
			if c.QuestionID == id {
				delete(repo.db.choices, cid)
			}
		}
	}
	return nil
}

func (repo *contentRepository) GetSectionTree(_ context.Context, sectionID int64) (content.SectionTree, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	sec, ok := repo.db.sections[sectionID]
	if !ok {
		return content.SectionTree{}, content.ErrNotFound
	}
	sub, ok := repo.db.subjects[sec.SubjectID]
	if !ok {
		return content.SectionTree{}, content.ErrNotFound
	}
	return content.SectionTree{
		Section: *sec,
		Subject: *sub,
		Lessons: repo.lessonsBySection(sectionID),
		Tests:   repo.testsBySection(sectionID),
	}, nil
}
