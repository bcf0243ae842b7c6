package content

import (
	"strings"
	"time"
)

// Subject is the top level of the content hierarchy. It owns Sections.
type Subject struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	RequiresCode bool      `json:"requires_code"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

// Section belongs to a Subject and owns Lessons and section-wide Tests.
type Section struct {
	ID           int64  `json:"id"`
	SubjectID    int64  `json:"subject_id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	RequiresCode bool   `json:"requires_code"`
}

// Lesson belongs to a Section and owns lesson-linked Tests and LessonResources.
type Lesson struct {
	ID           int64  `json:"id"`
	SectionID    int64  `json:"section_id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	RequiresCode bool   `json:"requires_code"`
}

// Resource types inferred from LessonResource URLs.
const (
	ResourceVideo      = "video"
	ResourceFlashcards = "flashcards"
	ResourceMindmap    = "mindmap"
	ResourceAudio      = "audio"
	ResourcePDF        = "pdf"
	ResourceLink       = "link"
)

type LessonResource struct {
	ID           int64  `json:"id"`
	LessonID     int64  `json:"lesson_id"`
	Label        string `json:"label"`
	URL          string `json:"url"`
	ResourceType string `json:"resource_type"`
	Position     int    `json:"position"`
}

// Type returns the explicit resource type, or infers one from the URL.
func (r LessonResource) Type() string {
	if r.ResourceType != "" {
		return strings.ToLower(r.ResourceType)
	}
	url := strings.ToLower(r.URL)
	switch {
	case strings.Contains(url, "youtube.com"), strings.Contains(url, "youtu.be"):
		return ResourceVideo
	case strings.HasSuffix(url, ".json"):
		return ResourceFlashcards
	case strings.HasSuffix(url, ".html"), strings.HasSuffix(url, ".htm"):
		return ResourceMindmap
	case strings.HasSuffix(url, ".mp3"), strings.HasSuffix(url, ".wav"), strings.Contains(url, "audio"):
		return ResourceAudio
	case strings.Contains(url, "drive.google.com"), strings.HasSuffix(url, ".pdf"):
		return ResourcePDF
	}
	return ResourceLink
}

// Test belongs to a Section; a nil LessonID makes it a section-wide test,
// otherwise it is linked to that Lesson.
type Test struct {
	ID           int64  `json:"id"`
	SectionID    int64  `json:"section_id"`
	LessonID     *int64 `json:"lesson_id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	RequiresCode bool   `json:"requires_code"`
	CreatedBy    string `json:"created_by"`
}

// SectionWide reports whether the test is gated by its Section rather than a Lesson.
func (t Test) SectionWide() bool { return t.LessonID == nil }

type Question struct {
	ID     int64  `json:"id"`
	TestID int64  `json:"test_id"`
	Text   string `json:"text"`
	Hint   string `json:"hint"`
}

type Choice struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
}

// SectionTree is a Section loaded with its parent Subject and child collections,
// the shape the access engine computes over.
type SectionTree struct {
	Section Section
	Subject Subject
	Lessons []Lesson // ordered by ID ascending
	Tests   []Test   // lesson-linked and section-wide, ordered by ID ascending
}

// SectionWideTests returns the tests of the tree that have no lesson link.
func (t SectionTree) SectionWideTests() []Test {
	tests := make([]Test, 0, len(t.Tests))
	for _, tst := range t.Tests {
		if tst.SectionWide() {
			tests = append(tests, tst)
		}
	}
	return tests
}

// LessonTests returns the tests linked to the given lesson.
func (t SectionTree) LessonTests(lessonID int64) []Test {
	tests := make([]Test, 0, len(t.Tests))
	for _, tst := range t.Tests {
		if tst.LessonID != nil && *tst.LessonID == lessonID {
			tests = append(tests, tst)
		}
	}
	return tests
}
