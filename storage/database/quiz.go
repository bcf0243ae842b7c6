package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/durusapp/durus/core/quiz"
)

type (
	attemptRow struct {
		ID          int64        `db:"id"`
		TestID      int64        `db:"test_id"`
		StudentID   string       `db:"student_id"`
		Status      string       `db:"status"`
		Score       int          `db:"score"`
		Total       int          `db:"total"`
		TimeLimit   int          `db:"time_limit"`
		StartedAt   time.Time    `db:"started_at"`
		SubmittedAt sql.NullTime `db:"submitted_at"`
	}

	customAttemptRow struct {
		ID            int64           `db:"id"`
		StudentID     string          `db:"student_id"`
		Title         string          `db:"title"`
		Status        string          `db:"status"`
		QuestionOrder json.RawMessage `db:"question_order"`
		ChoiceOrders  json.RawMessage `db:"choice_orders"`
		Score         int             `db:"score"`
		Total         int             `db:"total"`
		TimeLimit     int             `db:"time_limit"`
		CreatedAt     time.Time       `db:"created_at"`
		SubmittedAt   sql.NullTime    `db:"submitted_at"`
	}

	answerRow struct {
		AttemptID  int64         `db:"attempt_id"`
		QuestionID int64         `db:"question_id"`
		ChoiceID   sql.NullInt64 `db:"choice_id"`
		IsCorrect  bool          `db:"is_correct"`
	}
)

func (r attemptRow) toAttempt() quiz.Attempt {
	att := quiz.Attempt{
		ID:        r.ID,
		TestID:    r.TestID,
		StudentID: r.StudentID,
		Status:    quiz.AttemptStatus(r.Status),
		Score:     r.Score,
		Total:     r.Total,
		TimeLimit: r.TimeLimit,
		StartedAt: r.StartedAt,
	}
	if r.SubmittedAt.Valid {
		submittedAt := r.SubmittedAt.Time
		att.SubmittedAt = &submittedAt
	}
	return att
}

func (r customAttemptRow) toCustomAttempt() (quiz.CustomAttempt, error) {
	att := quiz.CustomAttempt{
		ID:        r.ID,
		StudentID: r.StudentID,
		Title:     r.Title,
		Status:    quiz.AttemptStatus(r.Status),
		Score:     r.Score,
		Total:     r.Total,
		TimeLimit: r.TimeLimit,
		CreatedAt: r.CreatedAt,
	}
	if err := json.Unmarshal(r.QuestionOrder, &att.QuestionOrder); err != nil {
		return quiz.CustomAttempt{}, errors.Wrap(err, "decoding question order")
	}
	if err := json.Unmarshal(r.ChoiceOrders, &att.ChoiceOrders); err != nil {
		return quiz.CustomAttempt{}, errors.Wrap(err, "decoding choice orders")
	}
	if r.SubmittedAt.Valid {
		submittedAt := r.SubmittedAt.Time
		att.SubmittedAt = &submittedAt
	}
	return att, nil
}

func (r answerRow) toAnswer() quiz.AttemptAnswer {
	ans := quiz.AttemptAnswer{
		AttemptID:  r.AttemptID,
		QuestionID: r.QuestionID,
		IsCorrect:  r.IsCorrect,
	}
	if r.ChoiceID.Valid {
		choiceID := r.ChoiceID.Int64
		ans.ChoiceID = &choiceID
	}
	return ans
}

type quizRepository struct {
	db *sqlx.DB
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(db *sqlx.DB) quiz.Repository {
	return &quizRepository{db: db}
}

func (repo *quizRepository) CreateAttempt(ctx context.Context, att quiz.Attempt) (quiz.Attempt, error) {
	query := `
		INSERT INTO attempt (test_id, student_id, status, score, total, time_limit, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := repo.db.GetContext(ctx, &att.ID, query,
		att.TestID, att.StudentID, att.Status, att.Score, att.Total, att.TimeLimit, att.StartedAt)
	if err != nil {
		return quiz.Attempt{}, errors.Wrap(err, "creating attempt")
	}
	return att, nil
}

func (repo *quizRepository) GetAttemptByID(ctx context.Context, id int64) (quiz.Attempt, error) {
	var row attemptRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM attempt WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return quiz.Attempt{}, quiz.ErrNotFound
		}
		return quiz.Attempt{}, errors.Wrap(err, "getting attempt")
	}
	return row.toAttempt(), nil
}

func (repo *quizRepository) AttemptsByStudent(ctx context.Context, studentID string) ([]quiz.Attempt, error) {
	var rows []attemptRow
	err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM attempt WHERE student_id = $1 ORDER BY id`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	attempts := make([]quiz.Attempt, 0, len(rows))
	for _, r := range rows {
		attempts = append(attempts, r.toAttempt())
	}
	return attempts, nil
}

func (repo *quizRepository) SubmitAttempt(ctx context.Context, att quiz.Attempt, answers []quiz.AttemptAnswer) (quiz.Attempt, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return quiz.Attempt{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE attempt SET status = $1, score = $2, submitted_at = $3 WHERE id = $4`,
		att.Status, att.Score, att.SubmittedAt, att.ID)
	if err != nil {
		return quiz.Attempt{}, errors.Wrap(err, "submitting attempt")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return quiz.Attempt{}, quiz.ErrNotFound
	}

	if err = insertAnswers(ctx, tx, "attempt_answer", "attempt_id", att.ID, answers); err != nil {
		return quiz.Attempt{}, err
	}

	if err = tx.Commit(); err != nil {
		return quiz.Attempt{}, errors.Wrap(err, "committing transaction")
	}
	return att, nil
}

func (repo *quizRepository) AnswersByAttempt(ctx context.Context, attemptID int64) ([]quiz.AttemptAnswer, error) {
	return repo.queryAnswers(ctx,
		`SELECT attempt_id, question_id, choice_id, is_correct FROM attempt_answer WHERE attempt_id = $1 ORDER BY question_id`,
		attemptID)
}

func (repo *quizRepository) CreateCustomAttempt(ctx context.Context, att quiz.CustomAttempt) (quiz.CustomAttempt, error) {
	questionOrder, err := json.Marshal(att.QuestionOrder)
	if err != nil {
		return quiz.CustomAttempt{}, errors.Wrap(err, "encoding question order")
	}
	choiceOrders, err := json.Marshal(att.ChoiceOrders)
	if err != nil {
		return quiz.CustomAttempt{}, errors.Wrap(err, "encoding choice orders")
	}

	query := `
		INSERT INTO custom_attempt (student_id, title, status, question_order, choice_orders, score, total, time_limit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	err = repo.db.GetContext(ctx, &att.ID, query,
		att.StudentID, att.Title, att.Status, questionOrder, choiceOrders,
		att.Score, att.Total, att.TimeLimit, att.CreatedAt)
	if err != nil {
		return quiz.CustomAttempt{}, errors.Wrap(err, "creating custom attempt")
	}
	return att, nil
}

func (repo *quizRepository) GetCustomAttemptByID(ctx context.Context, id int64) (quiz.CustomAttempt, error) {
	var row customAttemptRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM custom_attempt WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return quiz.CustomAttempt{}, quiz.ErrNotFound
		}
		return quiz.CustomAttempt{}, errors.Wrap(err, "getting custom attempt")
	}
	return row.toCustomAttempt()
}

func (repo *quizRepository) CustomAttemptsByStudent(ctx context.Context, studentID string) ([]quiz.CustomAttempt, error) {
	var rows []customAttemptRow
	err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM custom_attempt WHERE student_id = $1 ORDER BY id`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying custom attempts")
	}
	attempts := make([]quiz.CustomAttempt, 0, len(rows))
	for _, r := range rows {
		att, err := r.toCustomAttempt()
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, att)
	}
	return attempts, nil
}

func (repo *quizRepository) SubmitCustomAttempt(ctx context.Context, att quiz.CustomAttempt, answers []quiz.AttemptAnswer) (quiz.CustomAttempt, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return quiz.CustomAttempt{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE custom_attempt SET status = $1, score = $2, submitted_at = $3 WHERE id = $4`,
		att.Status, att.Score, att.SubmittedAt, att.ID)
	if err != nil {
		return quiz.CustomAttempt{}, errors.Wrap(err, "submitting custom attempt")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return quiz.CustomAttempt{}, quiz.ErrNotFound
	}

	if err = insertAnswers(ctx, tx, "custom_attempt_answer", "custom_attempt_id", att.ID, answers); err != nil {
		return quiz.CustomAttempt{}, err
	}

	if err = tx.Commit(); err != nil {
		return quiz.CustomAttempt{}, errors.Wrap(err, "committing transaction")
	}
	return att, nil
}

func (repo *quizRepository) AnswersByCustomAttempt(ctx context.Context, attemptID int64) ([]quiz.AttemptAnswer, error) {
	return repo.queryAnswers(ctx,
		`SELECT custom_attempt_id AS attempt_id, question_id, choice_id, is_correct FROM custom_attempt_answer WHERE custom_attempt_id = $1 ORDER BY question_id`,
		attemptID)
}

func (repo *quizRepository) queryAnswers(ctx context.Context, query string, args ...interface{}) ([]quiz.AttemptAnswer, error) {
	var rows []answerRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying answers")
	}
	answers := make([]quiz.AttemptAnswer, 0, len(rows))
	for _, r := range rows {
		answers = append(answers, r.toAnswer())
	}
	return answers, nil
}

func insertAnswers(ctx context.Context, tx *sqlx.Tx, table, fkColumn string, attemptID int64, answers []quiz.AttemptAnswer) error {
	for _, ans := range answers {
		var choiceID sql.NullInt64
		if ans.ChoiceID != nil {
			choiceID = sql.NullInt64{Int64: *ans.ChoiceID, Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO `+table+` (`+fkColumn+`, question_id, choice_id, is_correct) VALUES ($1, $2, $3, $4)`,
			attemptID, ans.QuestionID, choiceID, ans.IsCorrect)
		if err != nil {
			return errors.Wrap(err, "inserting answer")
		}
	}
	return nil
}
