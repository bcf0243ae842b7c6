package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/durusapp/durus/core/content"
)

type (
	subjectRow struct {
		ID           int64          `db:"id"`
		Name         string         `db:"name"`
		Description  string         `db:"description"`
		RequiresCode bool           `db:"requires_code"`
		CreatedBy    sql.NullString `db:"created_by"`
		CreatedAt    time.Time      `db:"created_at"`
	}

	sectionRow struct {
		ID           int64  `db:"id"`
		SubjectID    int64  `db:"subject_id"`
		Title        string `db:"title"`
		Description  string `db:"description"`
		RequiresCode bool   `db:"requires_code"`
	}

	lessonRow struct {
		ID           int64  `db:"id"`
		SectionID    int64  `db:"section_id"`
		Title        string `db:"title"`
		Content      string `db:"content"`
		RequiresCode bool   `db:"requires_code"`
	}

	resourceRow struct {
		ID           int64  `db:"id"`
		LessonID     int64  `db:"lesson_id"`
		Label        string `db:"label"`
		URL          string `db:"url"`
		ResourceType string `db:"resource_type"`
		Position     int    `db:"position"`
	}

	testRow struct {
		ID           int64          `db:"id"`
		SectionID    int64          `db:"section_id"`
		LessonID     sql.NullInt64  `db:"lesson_id"`
		Title        string         `db:"title"`
		Description  string         `db:"description"`
		RequiresCode bool           `db:"requires_code"`
		CreatedBy    sql.NullString `db:"created_by"`
	}

	questionRow struct {
		ID     int64  `db:"id"`
		TestID int64  `db:"test_id"`
		Text   string `db:"text"`
		Hint   string `db:"hint"`
	}

	choiceRow struct {
		ID         int64  `db:"id"`
		QuestionID int64  `db:"question_id"`
		Text       string `db:"text"`
		IsCorrect  bool   `db:"is_correct"`
	}
)

func (r subjectRow) toSubject() content.Subject {
	return content.Subject{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		RequiresCode: r.RequiresCode,
		CreatedBy:    r.CreatedBy.String,
		CreatedAt:    r.CreatedAt,
	}
}

func (r testRow) toTest() content.Test {
	tst := content.Test{
		ID:           r.ID,
		SectionID:    r.SectionID,
		Title:        r.Title,
		Description:  r.Description,
		RequiresCode: r.RequiresCode,
		CreatedBy:    r.CreatedBy.String,
	}
	if r.LessonID.Valid {
		lessonID := r.LessonID.Int64
		tst.LessonID = &lessonID
	}
	return tst
}

func (r sectionRow) toSection() content.Section {
	return content.Section(r)
}

func (r lessonRow) toLesson() content.Lesson {
	return content.Lesson(r)
}

func (r resourceRow) toResource() content.LessonResource {
	return content.LessonResource(r)
}

func (r questionRow) toQuestion() content.Question {
	return content.Question(r)
}

func (r choiceRow) toChoice() content.Choice {
	return content.Choice(r)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type contentRepository struct {
	db *sqlx.DB
}

var _ content.Repository = (*contentRepository)(nil) // interface compliance check

func NewContentRepository(db *sqlx.DB) content.Repository {
	return &contentRepository{db: db}
}

// subjects

func (repo *contentRepository) CreateSubject(ctx context.Context, sub content.Subject) (content.Subject, error) {
	query := `
		INSERT INTO subject (name, description, requires_code, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := repo.db.GetContext(ctx, &sub.ID, query,
		sub.Name, sub.Description, sub.RequiresCode, nullString(sub.CreatedBy), sub.CreatedAt)
	if err != nil {
		return content.Subject{}, errors.Wrap(err, "creating subject")
	}
	return sub, nil
}

func (repo *contentRepository) GetSubjectByID(ctx context.Context, id int64) (content.Subject, error) {
	var row subjectRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM subject WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return content.Subject{}, content.ErrNotFound
		}
		return content.Subject{}, errors.Wrap(err, "getting subject")
	}
	return row.toSubject(), nil
}

func (repo *contentRepository) QueryAllSubjects(ctx context.Context) ([]content.Subject, error) {
	var rows []subjectRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM subject ORDER BY id`); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	subs := make([]content.Subject, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.toSubject())
	}
	return subs, nil
}

func (repo *contentRepository) UpdateSubject(ctx context.Context, sub content.Subject, requiresCode *bool) (content.Subject, error) {
	query := `UPDATE subject SET name = $1, description = $2 WHERE id = $3`
	args := []interface{}{sub.Name, sub.Description, sub.ID}
	if requiresCode != nil {
		query = `UPDATE subject SET name = $1, description = $2, requires_code = $3 WHERE id = $4`
		args = []interface{}{sub.Name, sub.Description, *requiresCode, sub.ID}
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return content.Subject{}, errors.Wrap(err, "updating subject")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return content.Subject{}, content.ErrNotFound
	}
	return repo.GetSubjectByID(ctx, sub.ID)
}

func (repo *contentRepository) DeleteSubjectsByID(ctx context.Context, ids ...int64) error {
	return repo.deleteByID(ctx, "subject", ids)
}

// sections

func (repo *contentRepository) CreateSection(ctx context.Context, sec content.Section) (content.Section, error) {
	query := `
		INSERT INTO section (subject_id, title, description, requires_code)
		VALUES ($1, $2, $3, $4) RETURNING id`
	err := repo.db.GetContext(ctx, &sec.ID, query, sec.SubjectID, sec.Title, sec.Description, sec.RequiresCode)
	if err != nil {
		return content.Section{}, errors.Wrap(err, "creating section")
	}
	return sec, nil
}

func (repo *contentRepository) GetSectionByID(ctx context.Context, id int64) (content.Section, error) {
	var row sectionRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM section WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return content.Section{}, content.ErrNotFound
		}
		return content.Section{}, errors.Wrap(err, "getting section")
	}
	return row.toSection(), nil
}

func (repo *contentRepository) SectionsBySubject(ctx context.Context, subjectID int64) ([]content.Section, error) {
	var rows []sectionRow
	err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM section WHERE subject_id = $1 ORDER BY id`, subjectID)
	if err != nil {
		return nil, errors.Wrap(err, "querying sections")
	}
	secs := make([]content.Section, 0, len(rows))
	for _, r := range rows {
		secs = append(secs, r.toSection())
	}
	return secs, nil
}

func (repo *contentRepository) UpdateSection(ctx context.Context, sec content.Section, requiresCode *bool) (content.Section, error) {
	query := `UPDATE section SET title = $1, description = $2 WHERE id = $3`
	args := []interface{}{sec.Title, sec.Description, sec.ID}
	if requiresCode != nil {
		query = `UPDATE section SET title = $1, description = $2, requires_code = $3 WHERE id = $4`
		args = []interface{}{sec.Title, sec.Description, *requiresCode, sec.ID}
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return content.Section{}, errors.Wrap(err, "updating section")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return content.Section{}, content.ErrNotFound
	}
	return repo.GetSectionByID(ctx, sec.ID)
}

func (repo *contentRepository) DeleteSectionsByID(ctx context.Context, ids ...int64) error {
	return repo.deleteByID(ctx, "section", ids)
}

// lessons

func (repo *contentRepository) CreateLesson(ctx context.Context, les content.Lesson) (content.Lesson, error) {
	query := `
		INSERT INTO lesson (section_id, title, content, requires_code)
		VALUES ($1, $2, $3, $4) RETURNING id`
	err := repo.db.GetContext(ctx, &les.ID, query, les.SectionID, les.Title, les.Content, les.RequiresCode)
	if err != nil {
		return content.Lesson{}, errors.Wrap(err, "creating lesson")
	}
	return les, nil
}

func (repo *contentRepository) GetLessonByID(ctx context.Context, id int64) (content.Lesson, error) {
	var row lessonRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM lesson WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return content.Lesson{}, content.ErrNotFound
		}
		return content.Lesson{}, errors.Wrap(err, "getting lesson")
	}
	return row.toLesson(), nil
}

func (repo *contentRepository) LessonsBySection(ctx context.Context, sectionID int64) ([]content.Lesson, error) {
	return repo.queryLessons(ctx, `SELECT * FROM lesson WHERE section_id = $1 ORDER BY id`, sectionID)
}

func (repo *contentRepository) LessonsBySubject(ctx context.Context, subjectID int64) ([]content.Lesson, error) {
	query := `
		SELECT l.* FROM lesson l
		JOIN section s ON s.id = l.section_id
		WHERE s.subject_id = $1 ORDER BY l.id`
	return repo.queryLessons(ctx, query, subjectID)
}

func (repo *contentRepository) queryLessons(ctx context.Context, query string, args ...interface{}) ([]content.Lesson, error) {
	var rows []lessonRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	lessons := make([]content.Lesson, 0, len(rows))
	for _, r := range rows {
		lessons = append(lessons, r.toLesson())
	}
	return lessons, nil
}

func (repo *contentRepository) UpdateLesson(ctx context.Context, les content.Lesson, requiresCode *bool) (content.Lesson, error) {
	query := `UPDATE lesson SET title = $1, content = $2 WHERE id = $3`
	args := []interface{}{les.Title, les.Content, les.ID}
	if requiresCode != nil {
		query = `UPDATE lesson SET title = $1, content = $2, requires_code = $3 WHERE id = $4`
		args = []interface{}{les.Title, les.Content, *requiresCode, les.ID}
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return content.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return content.Lesson{}, content.ErrNotFound
	}
	return repo.GetLessonByID(ctx, les.ID)
}

func (repo *contentRepository) DeleteLessonsByID(ctx context.Context, ids ...int64) error {
	return repo.deleteByID(ctx, "lesson", ids)
}

// lesson resources

func (repo *contentRepository) CreateLessonResource(ctx context.Context, res content.LessonResource) (content.LessonResource, error) {
	query := `
		INSERT INTO lesson_resource (lesson_id, label, url, resource_type, position)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := repo.db.GetContext(ctx, &res.ID, query, res.LessonID, res.Label, res.URL, res.ResourceType, res.Position)
	if err != nil {
		return content.LessonResource{}, errors.Wrap(err, "creating lesson resource")
	}
	return res, nil
}

func (repo *contentRepository) ResourcesByLesson(ctx context.Context, lessonID int64) ([]content.LessonResource, error) {
	var rows []resourceRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT * FROM lesson_resource WHERE lesson_id = $1 ORDER BY position, id`, lessonID)
	if err != nil {
		return nil, errors.Wrap(err, "querying lesson resources")
	}
	resources := make([]content.LessonResource, 0, len(rows))
	for _, r := range rows {
		resources = append(resources, r.toResource())
	}
	return resources, nil
}

func (repo *contentRepository) DeleteLessonResourcesByID(ctx context.Context, ids ...int64) error {
	return repo.deleteByID(ctx, "lesson_resource", ids)
}

// tests

func (repo *contentRepository) CreateTest(ctx context.Context, tst content.Test) (content.Test, error) {
	var lessonID sql.NullInt64
	if tst.LessonID != nil {
		lessonID = sql.NullInt64{Int64: *tst.LessonID, Valid: true}
	}
	query := `
		INSERT INTO test (section_id, lesson_id, title, description, requires_code, created_by)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := repo.db.GetContext(ctx, &tst.ID, query,
		tst.SectionID, lessonID, tst.Title, tst.Description, tst.RequiresCode, nullString(tst.CreatedBy))
	if err != nil {
		return content.Test{}, errors.Wrap(err, "creating test")
	}
	return tst, nil
}

func (repo *contentRepository) GetTestByID(ctx context.Context, id int64) (content.Test, error) {
	var row testRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM test WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return content.Test{}, content.ErrNotFound
		}
		return content.Test{}, errors.Wrap(err, "getting test")
	}
	return row.toTest(), nil
}

func (repo *contentRepository) TestsBySection(ctx context.Context, sectionID int64) ([]content.Test, error) {
	return repo.queryTests(ctx, `SELECT * FROM test WHERE section_id = $1 ORDER BY id`, sectionID)
}

func (repo *contentRepository) TestsByLesson(ctx context.Context, lessonID int64) ([]content.Test, error) {
	return repo.queryTests(ctx, `SELECT * FROM test WHERE lesson_id = $1 ORDER BY id`, lessonID)
}

func (repo *contentRepository) queryTests(ctx context.Context, query string, args ...interface{}) ([]content.Test, error) {
	var rows []testRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying tests")
	}
	tests := make([]content.Test, 0, len(rows))
	for _, r := range rows {
		tests = append(tests, r.toTest())
	}
	return tests, nil
}

func (repo *contentRepository) UpdateTest(ctx context.Context, tst content.Test, requiresCode *bool) (content.Test, error) {
	query := `UPDATE test SET title = $1, description = $2 WHERE id = $3`
	args := []interface{}{tst.Title, tst.Description, tst.ID}
	if requiresCode != nil {
		query = `UPDATE test SET title = $1, description = $2, requires_code = $3 WHERE id = $4`
		args = []interface{}{tst.Title, tst.Description, *requiresCode, tst.ID}
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return content.Test{}, errors.Wrap(err, "updating test")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return content.Test{}, content.ErrNotFound
	}
	return repo.GetTestByID(ctx, tst.ID)
}

func (repo *contentRepository) DeleteTestsByID(ctx context.Context, ids ...int64) error {
	return repo.deleteByID(ctx, "test", ids)
}

// questions & choices

func (repo *contentRepository) CreateQuestion(ctx context.Context, q content.Question, choices []content.Choice) (content.Question, []content.Choice, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return content.Question{}, nil, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.GetContext(ctx, &q.ID,
		`INSERT INTO question (test_id, text, hint) VALUES ($1, $2, $3) RETURNING id`,
		q.TestID, q.Text, q.Hint)
	if err != nil {
		return content.Question{}, nil, errors.Wrap(err, "creating question")
	}

	created := make([]content.Choice, 0, len(choices))
	for _, c := range choices {
		c.QuestionID = q.ID
		err = tx.GetContext(ctx, &c.ID,
			`INSERT INTO choice (question_id, text, is_correct) VALUES ($1, $2, $3) RETURNING id`,
			c.QuestionID, c.Text, c.IsCorrect)
		if err != nil {
			return content.Question{}, nil, errors.Wrap(err, "creating choice")
		}
		created = append(created, c)
	}

	if err = tx.Commit(); err != nil {
		return content.Question{}, nil, errors.Wrap(err, "committing transaction")
	}
	return q, created, nil
}

func (repo *contentRepository) GetQuestionByID(ctx context.Context, id int64) (content.Question, error) {
	var row questionRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM question WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return content.Question{}, content.ErrNotFound
		}
		return content.Question{}, errors.Wrap(err, "getting question")
	}
	return row.toQuestion(), nil
}

func (repo *contentRepository) QuestionsByTest(ctx context.Context, testID int64) ([]content.Question, error) {
	return repo.queryQuestions(ctx, `SELECT * FROM question WHERE test_id = $1 ORDER BY id`, testID)
}

func (repo *contentRepository) QuestionsByLesson(ctx context.Context, lessonID int64) ([]content.Question, error) {
	query := `
		SELECT q.* FROM question q
		JOIN test t ON t.id = q.test_id
		WHERE t.lesson_id = $1 ORDER BY q.id`
	return repo.queryQuestions(ctx, query, lessonID)
}

func (repo *contentRepository) queryQuestions(ctx context.Context, query string, args ...interface{}) ([]content.Question, error) {
	var rows []questionRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}
	questions := make([]content.Question, 0, len(rows))
	for _, r := range rows {
		questions = append(questions, r.toQuestion())
	}
	return questions, nil
}

func (repo *contentRepository) ChoicesByQuestion(ctx context.Context, questionID int64) ([]content.Choice, error) {
	var rows []choiceRow
	err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM choice WHERE question_id = $1 ORDER BY id`, questionID)
	if err != nil {
		return nil, errors.Wrap(err, "querying choices")
	}
	choices := make([]content.Choice, 0, len(rows))
	for _, r := range rows {
		choices = append(choices, r.toChoice())
	}
	return choices, nil
}

func (repo *contentRepository) GetChoiceByID(ctx context.Context, id int64) (content.Choice, error) {
	var row choiceRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM choice WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return content.Choice{}, content.ErrNotFound
		}
		return content.Choice{}, errors.Wrap(err, "getting choice")
	}
	return row.toChoice(), nil
}

func (repo *contentRepository) DeleteQuestionsByID(ctx context.Context, ids ...int64) error {
	return repo.deleteByID(ctx, "question", ids)
}

func (repo *contentRepository) GetSectionTree(ctx context.Context, sectionID int64) (content.SectionTree, error) {
	sec, err := repo.GetSectionByID(ctx, sectionID)
	if err != nil {
		return content.SectionTree{}, err
	}
	sub, err := repo.GetSubjectByID(ctx, sec.SubjectID)
	if err != nil {
		return content.SectionTree{}, err
	}
	lessons, err := repo.LessonsBySection(ctx, sectionID)
	if err != nil {
		return content.SectionTree{}, err
	}
	tests, err := repo.TestsBySection(ctx, sectionID)
	if err != nil {
		return content.SectionTree{}, err
	}
	return content.SectionTree{Section: sec, Subject: sub, Lessons: lessons, Tests: tests}, nil
}

func (repo *contentRepository) deleteByID(ctx context.Context, table string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM `+table+` WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrapf(err, "deleting from %s", table)
	}
	return nil
}
