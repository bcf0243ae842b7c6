package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/durusapp/durus/core/access"
)

// Each hierarchy level has its own activation and code tables; fkColumn names
// the content foreign key in both.
func activationTable(level access.Level) (table, fkColumn string) {
	return string(level) + "_activation", string(level) + "_id"
}

func codeTable(level access.Level) (table, fkColumn string) {
	return string(level) + "_code", string(level) + "_id"
}

type (
	activationRow struct {
		ContentID   int64     `db:"content_id"`
		StudentID   string    `db:"student_id"`
		Active      bool      `db:"active"`
		ActivatedAt time.Time `db:"activated_at"`
	}

	codeRow struct {
		ID        int64        `db:"id"`
		ContentID int64        `db:"content_id"`
		StudentID string       `db:"student_id"`
		Code      string       `db:"code"`
		IsUsed    bool         `db:"is_used"`
		CreatedAt time.Time    `db:"created_at"`
		UsedAt    sql.NullTime `db:"used_at"`
	}
)

func (r activationRow) toActivation() access.Activation {
	return access.Activation(r)
}

func (r codeRow) toCode() access.Code {
	code := access.Code{
		ID:        r.ID,
		ContentID: r.ContentID,
		StudentID: r.StudentID,
		Code:      r.Code,
		IsUsed:    r.IsUsed,
		CreatedAt: r.CreatedAt,
	}
	if r.UsedAt.Valid {
		usedAt := r.UsedAt.Time
		code.UsedAt = &usedAt
	}
	return code
}

type accessRepository struct {
	db *sqlx.DB
}

var _ access.Repository = (*accessRepository)(nil) // interface compliance check

func NewAccessRepository(db *sqlx.DB) access.Repository {
	return &accessRepository{db: db}
}

// activations

func (repo *accessRepository) GetActivation(ctx context.Context, level access.Level, contentID int64, studentID string) (access.Activation, error) {
	table, fk := activationTable(level)
	query := fmt.Sprintf(
		`SELECT %s AS content_id, student_id, active, activated_at FROM %s WHERE %s = $1 AND student_id = $2`,
		fk, table, fk)

	var row activationRow
	if err := repo.db.GetContext(ctx, &row, query, contentID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return access.Activation{}, access.ErrNotFound
		}
		return access.Activation{}, errors.Wrap(err, "getting activation")
	}
	return row.toActivation(), nil
}

func (repo *accessRepository) ActiveLessonIDs(ctx context.Context, lessonIDs []int64, studentID string) ([]int64, error) {
	if len(lessonIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT lesson_id FROM lesson_activation WHERE student_id = ? AND active AND lesson_id IN (?)`,
		studentID, lessonIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building lesson activation query")
	}

	active := make([]int64, 0, len(lessonIDs))
	if err = repo.db.SelectContext(ctx, &active, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying lesson activations")
	}
	return active, nil
}

func (repo *accessRepository) UpsertActivation(ctx context.Context, level access.Level, contentID int64, studentID string) (access.Activation, error) {
	table, fk := activationTable(level)
	// one conditional write; an already-active row keeps its timestamp
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, student_id, active, activated_at)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (%[2]s, student_id) DO UPDATE
		SET active = TRUE,
		    activated_at = CASE WHEN %[1]s.active THEN %[1]s.activated_at ELSE EXCLUDED.activated_at END
		RETURNING %[2]s AS content_id, student_id, active, activated_at`,
		table, fk)

	var row activationRow
	if err := repo.db.GetContext(ctx, &row, query, contentID, studentID, time.Now().UTC()); err != nil {
		return access.Activation{}, errors.Wrap(err, "upserting activation")
	}
	return row.toActivation(), nil
}

func (repo *accessRepository) DeactivateForStudent(ctx context.Context, level access.Level, contentIDs []int64, studentID string) error {
	if len(contentIDs) == 0 {
		return nil
	}
	table, fk := activationTable(level)
	query, args, err := sqlx.In(
		fmt.Sprintf(`UPDATE %s SET active = FALSE WHERE student_id = ? AND %s IN (?)`, table, fk),
		studentID, contentIDs)
	if err != nil {
		return errors.Wrap(err, "building deactivation query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deactivating activations")
	}
	return nil
}

func (repo *accessRepository) DeactivateForAll(ctx context.Context, level access.Level, contentIDs []int64) error {
	if len(contentIDs) == 0 {
		return nil
	}
	table, fk := activationTable(level)
	query, args, err := sqlx.In(
		fmt.Sprintf(`UPDATE %s SET active = FALSE WHERE %s IN (?)`, table, fk),
		contentIDs)
	if err != nil {
		return errors.Wrap(err, "building deactivation query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deactivating activations")
	}
	return nil
}

// codes

func (repo *accessRepository) CreateCode(ctx context.Context, level access.Level, code access.Code) (access.Code, error) {
	table, fk := codeTable(level)
	query := fmt.Sprintf(
		`INSERT INTO %s (%s, student_id, code, created_at) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		table, fk)

	code.CreatedAt = time.Now().UTC()
	row := repo.db.QueryRowxContext(ctx, query, code.ContentID, code.StudentID, code.Code, code.CreatedAt)
	if err := row.Scan(&code.ID, &code.CreatedAt); err != nil {
		return access.Code{}, errors.Wrap(err, "creating code")
	}
	return code, nil
}

func (repo *accessRepository) GetCodeByID(ctx context.Context, level access.Level, id int64) (access.Code, error) {
	table, fk := codeTable(level)
	query := fmt.Sprintf(
		`SELECT id, %s AS content_id, student_id, code, is_used, created_at, used_at FROM %s WHERE id = $1`,
		fk, table)

	var row codeRow
	if err := repo.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return access.Code{}, access.ErrNotFound
		}
		return access.Code{}, errors.Wrap(err, "getting code")
	}
	return row.toCode(), nil
}

func (repo *accessRepository) QueryCodes(ctx context.Context, level access.Level, contentID int64) ([]access.Code, error) {
	table, fk := codeTable(level)
	query := fmt.Sprintf(
		`SELECT id, %s AS content_id, student_id, code, is_used, created_at, used_at FROM %s WHERE %s = $1 ORDER BY created_at`,
		fk, table, fk)

	var rows []codeRow
	if err := repo.db.SelectContext(ctx, &rows, query, contentID); err != nil {
		return nil, errors.Wrap(err, "querying codes")
	}
	codes := make([]access.Code, 0, len(rows))
	for _, r := range rows {
		codes = append(codes, r.toCode())
	}
	return codes, nil
}

func (repo *accessRepository) UnusedCodeExists(ctx context.Context, level access.Level, contentID int64, studentID string) (bool, error) {
	table, fk := codeTable(level)
	query := fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND student_id = $2 AND NOT is_used)`, table, fk)

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, query, contentID, studentID); err != nil {
		return false, errors.Wrap(err, "checking unused code")
	}
	return exists, nil
}

func (repo *accessRepository) UnusedCodeMatches(ctx context.Context, level access.Level, contentID int64, studentID, value string) (bool, error) {
	table, fk := codeTable(level)
	query := fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND student_id = $2 AND code = $3 AND NOT is_used)`, table, fk)

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, query, contentID, studentID, value); err != nil {
		return false, errors.Wrap(err, "checking unused code match")
	}
	return exists, nil
}

func (repo *accessRepository) CodeValueExists(ctx context.Context, level access.Level, value string) (bool, error) {
	table, _ := codeTable(level)
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE code = $1)`, table)

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, query, value); err != nil {
		return false, errors.Wrap(err, "checking code value")
	}
	return exists, nil
}

func (repo *accessRepository) RedeemCode(ctx context.Context, level access.Level, contentID int64, studentID, value string) (bool, error) {
	table, fk := codeTable(level)
	// the NOT is_used guard makes concurrent redemptions race-safe: exactly one
	// update matches
	query := fmt.Sprintf(
		`UPDATE %s SET is_used = TRUE, used_at = $1 WHERE %s = $2 AND student_id = $3 AND code = $4 AND NOT is_used`,
		table, fk)

	res, err := repo.db.ExecContext(ctx, query, time.Now().UTC(), contentID, studentID, value)
	if err != nil {
		return false, errors.Wrap(err, "redeeming code")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "redeeming code")
	}
	return n == 1, nil
}

func (repo *accessRepository) UsedCodeExists(ctx context.Context, level access.Level, contentID int64, studentID, value string) (bool, error) {
	table, fk := codeTable(level)
	query := fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND student_id = $2 AND code = $3 AND is_used)`, table, fk)

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, query, contentID, studentID, value); err != nil {
		return false, errors.Wrap(err, "checking used code")
	}
	return exists, nil
}

func (repo *accessRepository) DeleteCode(ctx context.Context, level access.Level, id int64) error {
	table, _ := codeTable(level)
	if _, err := repo.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id); err != nil {
		return errors.Wrap(err, "deleting code")
	}
	return nil
}
