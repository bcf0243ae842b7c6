package content

import (
	"github.com/go-playground/validator/v10"

	"github.com/durusapp/durus/core"
)

var (
	oneCorrectChoiceTag  = "onecorrect"
	oneCorrectChoiceText = "exactly one choice must be marked correct"
)

func init() {
	core.Validate.RegisterStructValidation(questionStructValidation, NewQuestion{})
	core.RegisterCustomTranslation(core.Validate, core.Translator, oneCorrectChoiceTag, oneCorrectChoiceText)
}

// NewSubject contains information needed to create a new Subject.
type NewSubject struct {
	Name         string `json:"name" validate:"required"`
	Description  string `json:"description"`
	RequiresCode bool   `json:"requires_code"`
}

func (ns *NewSubject) Validate() error {
	ns.Name = core.CleanString(ns.Name)
	ns.Description = core.CleanString(ns.Description)
	return core.Validate.Struct(ns)
}

type UpdateSubject struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	RequiresCode *bool  `json:"requires_code"`
}

func (us *UpdateSubject) Validate(orig Subject) error {
	if name := core.CleanString(us.Name); name != "" {
		us.Name = name
	} else {
		us.Name = orig.Name
	}
	us.Description = core.CleanString(us.Description)
	if us.Description == "" {
		us.Description = orig.Description
	}
	return core.Validate.Struct(us)
}

type NewSection struct {
	SubjectID    int64  `json:"subject_id" validate:"required"`
	Title        string `json:"title" validate:"required"`
	Description  string `json:"description"`
	RequiresCode bool   `json:"requires_code"`
}

func (ns *NewSection) Validate() error {
	ns.Title = core.CleanString(ns.Title)
	ns.Description = core.CleanString(ns.Description)
	return core.Validate.Struct(ns)
}

type UpdateSection struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	RequiresCode *bool  `json:"requires_code"`
}

func (us *UpdateSection) Validate(orig Section) error {
	if title := core.CleanString(us.Title); title != "" {
		us.Title = title
	} else {
		us.Title = orig.Title
	}
	us.Description = core.CleanString(us.Description)
	if us.Description == "" {
		us.Description = orig.Description
	}
	return core.Validate.Struct(us)
}

type NewLessonResource struct {
	Label        string `json:"label" validate:"required"`
	URL          string `json:"url" validate:"required,url"`
	ResourceType string `json:"resource_type"`
}

type NewLesson struct {
	SectionID    int64               `json:"section_id" validate:"required"`
	Title        string              `json:"title" validate:"required"`
	Content      string              `json:"content" validate:"required"`
	RequiresCode *bool               `json:"requires_code"`
	Resources    []NewLessonResource `json:"resources" validate:"omitempty,dive"`
}

func (nl *NewLesson) Validate() error {
	nl.Title = core.CleanString(nl.Title)
	return core.Validate.Struct(nl)
}

type UpdateLesson struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	RequiresCode *bool  `json:"requires_code"`
}

func (ul *UpdateLesson) Validate(orig Lesson) error {
	if title := core.CleanString(ul.Title); title != "" {
		ul.Title = title
	} else {
		ul.Title = orig.Title
	}
	if ul.Content == "" {
		ul.Content = orig.Content
	}
	return core.Validate.Struct(ul)
}

type NewTest struct {
	SectionID    int64  `json:"section_id" validate:"required"`
	LessonID     *int64 `json:"lesson_id"`
	Title        string `json:"title" validate:"required"`
	Description  string `json:"description"`
	RequiresCode *bool  `json:"requires_code"`
}

func (nt *NewTest) Validate() error {
	nt.Title = core.CleanString(nt.Title)
	nt.Description = core.CleanString(nt.Description)
	return core.Validate.Struct(nt)
}

type UpdateTest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	RequiresCode *bool  `json:"requires_code"`
}

func (ut *UpdateTest) Validate(orig Test) error {
	if title := core.CleanString(ut.Title); title != "" {
		ut.Title = title
	} else {
		ut.Title = orig.Title
	}
	if ut.Description == "" {
		ut.Description = orig.Description
	}
	return core.Validate.Struct(ut)
}

type NewChoice struct {
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"is_correct"`
}

type NewQuestion struct {
	TestID  int64       `json:"test_id" validate:"required"`
	Text    string      `json:"text" validate:"required"`
	Hint    string      `json:"hint"`
	Choices []NewChoice `json:"choices" validate:"required,min=2,dive"`
}

func (nq *NewQuestion) Validate() error {
	nq.Text = core.CleanString(nq.Text)
	return core.Validate.Struct(nq)
}

// questionStructValidation enforces the single-correct-choice rule of the
// teacher editing workflow.
func questionStructValidation(sl validator.StructLevel) {
	nq, ok := sl.Current().Interface().(NewQuestion)
	if !ok {
		return
	}
	var correct int
	for _, c := range nq.Choices {
		if c.IsCorrect {
			correct++
		}
	}
	if correct != 1 {
		sl.ReportError(nq.Choices, "choices", "Choices", oneCorrectChoiceTag, "")
	}
}
