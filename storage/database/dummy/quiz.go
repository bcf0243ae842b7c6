package dummydb

import (
	"context"
	"sort"

	"github.com/durusapp/durus/core/quiz"
)

type quizRepository struct {
	db *DB
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(db *DB) quiz.Repository {
	return &quizRepository{db: db}
}

func (repo *quizRepository) CreateAttempt(_ context.Context, att quiz.Attempt) (quiz.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	att.ID = repo.db.nextPK()
	repo.db.attempts[att.ID] = &att
	return att, nil
}

func (repo *quizRepository) GetAttemptByID(_ context.Context, id int64) (quiz.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if att, ok := repo.db.attempts[id]; ok {
		return *att, nil
	}
	return quiz.Attempt{}, quiz.ErrNotFound
}

func (repo *quizRepository) AttemptsByStudent(_ context.Context, studentID string) ([]quiz.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	attempts := make([]quiz.Attempt, 0)
	for _, att := range repo.db.attempts {
		if att.StudentID == studentID {
			attempts = append(attempts, *att)
		}
	}
	sort.Slice(attempts, func(i, j int) bool { return attempts[i].ID < attempts[j].ID })
	return attempts, nil
}

func (repo *quizRepository) SubmitAttempt(_ context.Context, att quiz.Attempt, answers []quiz.AttemptAnswer) (quiz.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.attempts[att.ID]; !ok {
		return quiz.Attempt{}, quiz.ErrNotFound
	}
	repo.db.attempts[att.ID] = &att
	repo.db.attemptAnswers[att.ID] = answers
	return att, nil
}

func (repo *quizRepository) AnswersByAttempt(_ context.Context, attemptID int64) ([]quiz.AttemptAnswer, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.attemptAnswers[attemptID], nil
}

func (repo *quizRepository) CreateCustomAttempt(_ context.Context, att quiz.CustomAttempt) (quiz.CustomAttempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	att.ID = repo.db.nextPK()
	repo.db.customAttempts[att.ID] = &att
	return att, nil
}

func (repo *quizRepository) GetCustomAttemptByID(_ context.Context, id int64) (quiz.CustomAttempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if att, ok := repo.db.customAttempts[id]; ok {
		return *att, nil
	}
	return quiz.CustomAttempt{}, quiz.ErrNotFound
}

func (repo *quizRepository) CustomAttemptsByStudent(_ context.Context, studentID string) ([]quiz.CustomAttempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	attempts := make([]quiz.CustomAttempt, 0)
	for _, att := range repo.db.customAttempts {
		if att.StudentID == studentID {
			attempts = append(attempts, *att)
		}
	}
	sort.Slice(attempts, func(i, j int) bool { return attempts[i].ID < attempts[j].ID })
	return attempts, nil
}

func (repo *quizRepository) SubmitCustomAttempt(_ context.Context, att quiz.CustomAttempt, answers []quiz.AttemptAnswer) (quiz.CustomAttempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.customAttempts[att.ID]; !ok {
		return quiz.CustomAttempt{}, quiz.ErrNotFound
	}
	repo.db.customAttempts[att.ID] = &att
	repo.db.customAnswers[att.ID] = answers
	return att, nil
}

func (repo *quizRepository) AnswersByCustomAttempt(_ context.Context, attemptID int64) ([]quiz.AttemptAnswer, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.customAnswers[attemptID], nil
}
