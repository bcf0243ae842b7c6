package dummydb

import (
	"context"
	"time"

	"github.com/durusapp/durus/core/access"
)

type accessRepository struct {
	db *DB
}

var _ access.Repository = (*accessRepository)(nil) // interface compliance check

func NewAccessRepository(db *DB) access.Repository {
	return &accessRepository{db: db}
}

// activations

func (repo *accessRepository) GetActivation(_ context.Context, level access.Level, contentID int64, studentID string) (access.Activation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if act, ok := repo.db.activations[activationKey{level, contentID, studentID}]; ok {
		return *act, nil
	}
	return access.Activation{}, access.ErrNotFound
}

func (repo *accessRepository) ActiveLessonIDs(_ context.Context, lessonIDs []int64, studentID string) ([]int64, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	active := make([]int64, 0, len(lessonIDs))
	for _, id := range lessonIDs {
		if act, ok := repo.db.activations[activationKey{access.LevelLesson, id, studentID}]; ok && act.Active {
			active = append(active, id)
		}
	}
	return active, nil
}

func (repo *accessRepository) UpsertActivation(_ context.Context, level access.Level, contentID int64, studentID string) (access.Activation, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := activationKey{level, contentID, studentID}
	if act, ok := repo.db.activations[key]; ok {
		if !act.Active {
			act.Active = true
			act.ActivatedAt = time.Now().UTC()
		}
		return *act, nil
	}
	act := access.Activation{
		ContentID:   contentID,
		StudentID:   studentID,
		Active:      true,
		ActivatedAt: time.Now().UTC(),
	}
	repo.db.activations[key] = &act
	return act, nil
}

func (repo *accessRepository) DeactivateForStudent(_ context.Context, level access.Level, contentIDs []int64, studentID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range contentIDs {
		if act, ok := repo.db.activations[activationKey{level, id, studentID}]; ok {
			act.Active = false
		}
	}
	return nil
}

func (repo *accessRepository) DeactivateForAll(_ context.Context, level access.Level, contentIDs []int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	ids := make(map[int64]struct{}, len(contentIDs))
	for _, id := range contentIDs {
		ids[id] = struct{}{}
	}
	for key, act := range repo.db.activations {
		if key.level != level {
			continue
		}
		if _, ok := ids[key.contentID]; ok {
			act.Active = false
		}
	}
	return nil
}

// codes

func (repo *accessRepository) CreateCode(_ context.Context, level access.Level, code access.Code) (access.Code, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	code.ID = repo.db.nextPK()
	code.CreatedAt = time.Now().UTC()
	repo.db.codes[level][code.ID] = &code
	return code, nil
}

func (repo *accessRepository) GetCodeByID(_ context.Context, level access.Level, id int64) (access.Code, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if code, ok := repo.db.codes[level][id]; ok {
		return *code, nil
	}
	return access.Code{}, access.ErrNotFound
}

func (repo *accessRepository) QueryCodes(_ context.Context, level access.Level, contentID int64) ([]access.Code, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	codes := make([]access.Code, 0)
	for _, code := range repo.db.codes[level] {
		if code.ContentID == contentID {
			codes = append(codes, *code)
		}
	}
	return codes, nil
}

func (repo *accessRepository) UnusedCodeExists(_ context.Context, level access.Level, contentID int64, studentID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, code := range repo.db.codes[level] {
		if code.ContentID == contentID && code.StudentID == studentID && !code.IsUsed {
			return true, nil
		}
	}
	return false, nil
}

func (repo *accessRepository) UnusedCodeMatches(_ context.Context, level access.Level, contentID int64, studentID, value string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, code := range repo.db.codes[level] {
		if code.ContentID == contentID && code.StudentID == studentID && code.Code == value && !code.IsUsed {
			return true, nil
		}
	}
	return false, nil
}

func (repo *accessRepository) CodeValueExists(_ context.Context, level access.Level, value string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, code := range repo.db.codes[level] {
		if code.Code == value {
			return true, nil
		}
	}
	return false, nil
}

func (repo *accessRepository) RedeemCode(_ context.Context, level access.Level, contentID int64, studentID, value string) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, code := range repo.db.codes[level] {
		if code.ContentID == contentID && code.StudentID == studentID && code.Code == value && !code.IsUsed {
			now := time.Now().UTC()
			code.IsUsed = true
			code.UsedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (repo *accessRepository) UsedCodeExists(_ context.Context, level access.Level, contentID int64, studentID, value string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, code := range repo.db.codes[level] {
		if code.ContentID == contentID && code.StudentID == studentID && code.Code == value && code.IsUsed {
			return true, nil
		}
	}
	return false, nil
}

func (repo *accessRepository) DeleteCode(_ context.Context, level access.Level, id int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.codes[level], id)
	return nil
}
