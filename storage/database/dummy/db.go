// Package dummydb provides in-memory repository implementations used by tests
// and local development. All tables live behind a single lock; consistency,
// not speed, is the point.
package dummydb

import (
	"sync"

	"github.com/durusapp/durus/core/access"
	"github.com/durusapp/durus/core/content"
	"github.com/durusapp/durus/core/quiz"
	"github.com/durusapp/durus/core/user"
)

type (
	activationKey struct {
		level     access.Level
		contentID int64
		studentID string
	}

	DB struct {
		sync.RWMutex

		users map[string]*user.User

		subjects  map[int64]*content.Subject
		sections  map[int64]*content.Section
		lessons   map[int64]*content.Lesson
		resources map[int64]*content.LessonResource
		tests     map[int64]*content.Test
		questions map[int64]*content.Question
		choices   map[int64]*content.Choice

		activations map[activationKey]*access.Activation
		codes       map[access.Level]map[int64]*access.Code

		attempts       map[int64]*quiz.Attempt
		attemptAnswers map[int64][]quiz.AttemptAnswer
		customAttempts map[int64]*quiz.CustomAttempt
		customAnswers  map[int64][]quiz.AttemptAnswer

		pkCount int64
	}
)

func Open() (*DB, error) {
	db := &DB{
		users:          make(map[string]*user.User),
		subjects:       make(map[int64]*content.Subject),
		sections:       make(map[int64]*content.Section),
		lessons:        make(map[int64]*content.Lesson),
		resources:      make(map[int64]*content.LessonResource),
		tests:          make(map[int64]*content.Test),
		questions:      make(map[int64]*content.Question),
		choices:        make(map[int64]*content.Choice),
		activations:    make(map[activationKey]*access.Activation),
		codes:          make(map[access.Level]map[int64]*access.Code),
		attempts:       make(map[int64]*quiz.Attempt),
		attemptAnswers: make(map[int64][]quiz.AttemptAnswer),
		customAttempts: make(map[int64]*quiz.CustomAttempt),
		customAnswers:  make(map[int64][]quiz.AttemptAnswer),
	}
	for _, lvl := range []access.Level{access.LevelSubject, access.LevelSection, access.LevelLesson} {
		db.codes[lvl] = make(map[int64]*access.Code)
	}
	return db, nil
}

// nextPK must be called with the write lock held.
func (db *DB) nextPK() int64 {
	db.pkCount++
	return db.pkCount
}
