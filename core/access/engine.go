package access

import (
	"github.com/durusapp/durus/core/content"
)

// Context is the per-(section, student) access computation over the three-level
// hierarchy Subject → Section → Lesson. All activation state is loaded eagerly
// at construction; the query methods are pure.
//
// Openness policy (the subject gate strictly dominates):
//   - subject open:  activated, or the subject carries no gate.
//   - section open:  subject activated; otherwise, when the subject is gated,
//     only a section activation opens it (the section's own default-open state
//     is overridden); otherwise section activation or no section gate.
//   - freebies (first lesson, first section-wide test by lowest ID) apply only
//     while the subject is open; a lesson-level freebie never overrides a
//     subject-level lock.
type Context struct {
	StudentID string
	Subject   content.Subject
	Section   content.Section

	subjectActive bool
	sectionActive bool
	subjectOpen   bool
	sectionOpen   bool

	lessonActivationIDs    map[int64]struct{}
	firstLessonID          int64 // 0 when the section has no lessons
	firstSectionWideTestID int64 // 0 when the section has no section-wide tests
}

func newContext(tree content.SectionTree, studentID string, subjectActive, sectionActive bool, activeLessonIDs []int64) *Context {
	c := &Context{
		StudentID:     studentID,
		Subject:       tree.Subject,
		Section:       tree.Section,
		subjectActive: subjectActive,
		sectionActive: sectionActive,
	}

	c.subjectOpen = subjectActive || !tree.Subject.RequiresCode

	switch {
	case subjectActive:
		c.sectionOpen = true
	case tree.Subject.RequiresCode:
		c.sectionOpen = sectionActive
	default:
		c.sectionOpen = sectionActive || !tree.Section.RequiresCode
	}

	c.lessonActivationIDs = make(map[int64]struct{}, len(activeLessonIDs))
	for _, id := range activeLessonIDs {
		c.lessonActivationIDs[id] = struct{}{}
	}

	for _, les := range tree.Lessons {
		if c.firstLessonID == 0 || les.ID < c.firstLessonID {
			c.firstLessonID = les.ID
		}
	}
	for _, tst := range tree.Tests {
		if tst.SectionWide() && (c.firstSectionWideTestID == 0 || tst.ID < c.firstSectionWideTestID) {
			c.firstSectionWideTestID = tst.ID
		}
	}
	return c
}

// SubjectActive reports whether the student holds an active subject activation.
func (c *Context) SubjectActive() bool { return c.subjectActive }

// SectionActive reports whether the student holds an active section activation.
func (c *Context) SectionActive() bool { return c.sectionActive }

// SubjectOpen reports whether the subject is accessible to the student.
func (c *Context) SubjectOpen() bool { return c.subjectOpen }

// SectionOpen reports whether the section is accessible to the student.
func (c *Context) SectionOpen() bool { return c.sectionOpen }

// LessonOpen reports whether the student can access the given lesson.
func (c *Context) LessonOpen(lesson content.Lesson) bool {
	if c.sectionOpen {
		return true
	}
	// first lesson is free, unless an ancestor gate is closed
	if c.subjectOpen && c.firstLessonID != 0 && lesson.ID == c.firstLessonID {
		return true
	}
	_, activated := c.lessonActivationIDs[lesson.ID]
	return activated
}

// TestOpen reports whether the student can access the given test.
//
// A section-wide test is gated by its section alone: it can never be opened by
// a lesson activation, only by the section/subject or the freebie.
func (c *Context) TestOpen(test content.Test) bool {
	if c.subjectActive {
		return true
	}
	if c.sectionOpen {
		return true
	}

	if test.LessonID != nil {
		// lesson-linked tests follow their lesson
		if c.subjectOpen && c.firstLessonID != 0 && *test.LessonID == c.firstLessonID {
			return true
		}
		_, activated := c.lessonActivationIDs[*test.LessonID]
		return activated
	}

	// section-wide: first one is free while the subject is open
	return c.subjectOpen && c.firstSectionWideTestID != 0 && test.ID == c.firstSectionWideTestID
}
