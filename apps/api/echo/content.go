package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/durusapp/durus/core/access"
	"github.com/durusapp/durus/core/content"
	"github.com/durusapp/durus/core/user"
)

type contentApi struct {
	svc       *content.Service
	accessSvc *access.Service
	userSvc   user.Service
}

func registerContentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *content.Service,
	accessSvc *access.Service,
	userSvc user.Service,
) {
	api := contentApi{svc: svc, accessSvc: accessSvc, userSvc: userSvc}

	sg := g.Group("/subjects", jwt)
	sg.GET("", api.querySubjects)
	sg.POST("", api.createSubject, teacherMiddleware())
	sg.GET("/:id", api.retrieveSubject)
	sg.PUT("/:id", api.updateSubject, teacherMiddleware())
	sg.DELETE("/:id", api.destroySubject, teacherMiddleware())

	secg := g.Group("/sections", jwt)
	secg.POST("", api.createSection, teacherMiddleware())
	secg.GET("/:id", api.retrieveSection)
	secg.PUT("/:id", api.updateSection, teacherMiddleware())
	secg.DELETE("/:id", api.destroySection, teacherMiddleware())

	lg := g.Group("/lessons", jwt)
	lg.POST("", api.createLesson, teacherMiddleware())
	lg.GET("/:id", api.retrieveLesson)
	lg.PUT("/:id", api.updateLesson, teacherMiddleware())
	lg.DELETE("/:id", api.destroyLesson, teacherMiddleware())

	tg := g.Group("/tests", jwt)
	tg.POST("", api.createTest, teacherMiddleware())
	tg.GET("/:id", api.retrieveTest)
	tg.PUT("/:id", api.updateTest, teacherMiddleware())
	tg.DELETE("/:id", api.destroyTest, teacherMiddleware())
	tg.GET("/:id/questions", api.queryQuestions, teacherMiddleware())

	qg := g.Group("/questions", jwt, teacherMiddleware())
	qg.POST("", api.createQuestion)
	qg.DELETE("/:id", api.destroyQuestion)
}

// Response shapes; openness is computed per caller.

type (
	testNode struct {
		content.Test
		Open bool `json:"open"`
	}

	lessonNode struct {
		content.Lesson
		Open  bool       `json:"open"`
		Tests []testNode `json:"tests"`
	}

	sectionDetailResponse struct {
		Section     content.Section `json:"section"`
		Subject     content.Subject `json:"subject"`
		SubjectOpen bool            `json:"subject_open"`
		Open        bool            `json:"open"`
		Lessons     []lessonNode    `json:"lessons"`
		Tests       []testNode      `json:"tests"` // section-wide
	}

	subjectDetailResponse struct {
		content.Subject
		Sections []content.Section `json:"sections"`
	}

	lessonDetailResponse struct {
		content.Lesson
		Resources []content.LessonResource `json:"resources"`
		Tests     []content.Test           `json:"tests"`
	}
)

// Subject handlers

func (api *contentApi) querySubjects(ctx echo.Context) error {
	subjects, err := api.svc.QueryAllSubjects(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	if subjects == nil {
		subjects = []content.Subject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *contentApi) createSubject(ctx echo.Context) error {
	var data content.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sub, err := api.svc.CreateSubject(ctx.Request().Context(), data, ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *contentApi) retrieveSubject(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	sub, err := api.svc.GetSubject(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	sections, err := api.svc.SectionsBySubject(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying sections")
	}
	if sections == nil {
		sections = []content.Section{}
	}
	return ctx.JSON(http.StatusOK, subjectDetailResponse{Subject: sub, Sections: sections})
}

func (api *contentApi) updateSubject(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	orig, err := api.svc.GetSubject(ctx.Request().Context(), id)
	if err != nil {
		return err
	}

	var data content.UpdateSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSubject")
	}
	if err := data.Validate(orig); err != nil {
		return err
	}

	sub, err := api.svc.UpdateSubject(ctx.Request().Context(), id, data)
	if err != nil {
		return err
	}

	// switching the gate on invalidates every student's standing access
	if data.RequiresCode != nil && *data.RequiresCode && !orig.RequiresCode {
		if err = api.accessSvc.LockSubjectAccessForAll(ctx.Request().Context(), id); err != nil {
			return errors.Wrap(err, "locking subject access")
		}
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *contentApi) destroySubject(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	if err := api.svc.DeleteSubjects(ctx.Request().Context(), id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Section handlers

func (api *contentApi) createSection(ctx echo.Context) error {
	var data content.NewSection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSection")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	sec, err := api.svc.CreateSection(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sec)
}

func (api *contentApi) retrieveSection(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	tree, err := api.svc.SectionTree(ctx.Request().Context(), id)
	if err != nil {
		return err
	}

	acc, err := api.computeAccess(ctx, tree)
	if err != nil {
		return err
	}

	resp := sectionDetailResponse{
		Section:     tree.Section,
		Subject:     tree.Subject,
		SubjectOpen: acc == nil || acc.SubjectOpen(),
		Open:        acc == nil || acc.SectionOpen(),
		Lessons:     make([]lessonNode, 0, len(tree.Lessons)),
		Tests:       make([]testNode, 0, len(tree.Tests)),
	}
	for _, les := range tree.Lessons {
		node := lessonNode{
			Lesson: les,
			Open:   acc == nil || acc.LessonOpen(les),
			Tests:  make([]testNode, 0, 1),
		}
		for _, tst := range tree.LessonTests(les.ID) {
			node.Tests = append(node.Tests, testNode{Test: tst, Open: acc == nil || acc.TestOpen(tst)})
		}
		resp.Lessons = append(resp.Lessons, node)
	}
	for _, tst := range tree.SectionWideTests() {
		resp.Tests = append(resp.Tests, testNode{Test: tst, Open: acc == nil || acc.TestOpen(tst)})
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *contentApi) updateSection(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	orig, err := api.svc.GetSection(ctx.Request().Context(), id)
	if err != nil {
		return err
	}

	var data content.UpdateSection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSection")
	}
	if err := data.Validate(orig); err != nil {
		return err
	}

	sec, err := api.svc.UpdateSection(ctx.Request().Context(), id, data)
	if err != nil {
		return err
	}

	if data.RequiresCode != nil && *data.RequiresCode && !orig.RequiresCode {
		if err = api.accessSvc.LockSectionAccessForAll(ctx.Request().Context(), id); err != nil {
			return errors.Wrap(err, "locking section access")
		}
	}
	return ctx.JSON(http.StatusOK, sec)
}

func (api *contentApi) destroySection(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	if err := api.svc.DeleteSections(ctx.Request().Context(), id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Lesson handlers

func (api *contentApi) createLesson(ctx echo.Context) error {
	var data content.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	les, err := api.svc.CreateLesson(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, les)
}

func (api *contentApi) retrieveLesson(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	les, err := api.svc.GetLesson(ctx.Request().Context(), id)
	if err != nil {
		return err
	}

	tree, err := api.svc.SectionTree(ctx.Request().Context(), les.SectionID)
	if err != nil {
		return err
	}
	acc, err := api.computeAccess(ctx, tree)
	if err != nil {
		return err
	}
	if acc != nil && !acc.LessonOpen(les) {
		return errHttpForbidden
	}

	resources, err := api.svc.LessonResources(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying lesson resources")
	}
	if resources == nil {
		resources = []content.LessonResource{}
	}
	tests, err := api.svc.TestsByLesson(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying lesson tests")
	}
	if tests == nil {
		tests = []content.Test{}
	}
	return ctx.JSON(http.StatusOK, lessonDetailResponse{Lesson: les, Resources: resources, Tests: tests})
}

func (api *contentApi) updateLesson(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	orig, err := api.svc.GetLesson(ctx.Request().Context(), id)
	if err != nil {
		return err
	}

	var data content.UpdateLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLesson")
	}
	if err := data.Validate(orig); err != nil {
		return err
	}

	les, err := api.svc.UpdateLesson(ctx.Request().Context(), id, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, les)
}

func (api *contentApi) destroyLesson(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	if err := api.svc.DeleteLessons(ctx.Request().Context(), id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Test handlers

func (api *contentApi) createTest(ctx echo.Context) error {
	var data content.NewTest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	tst, err := api.svc.CreateTest(ctx.Request().Context(), data, ctxUsr.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, tst)
}

func (api *contentApi) retrieveTest(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	tst, err := api.svc.GetTest(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tst)
}

func (api *contentApi) updateTest(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	orig, err := api.svc.GetTest(ctx.Request().Context(), id)
	if err != nil {
		return err
	}

	var data content.UpdateTest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTest")
	}
	if err := data.Validate(orig); err != nil {
		return err
	}

	tst, err := api.svc.UpdateTest(ctx.Request().Context(), id, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tst)
}

func (api *contentApi) destroyTest(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	if err := api.svc.DeleteTests(ctx.Request().Context(), id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Question handlers

func (api *contentApi) createQuestion(ctx echo.Context) error {
	var data content.NewQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	q, choices, err := api.svc.CreateQuestion(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"question": q, "choices": choices})
}

func (api *contentApi) queryQuestions(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	questions, err := api.svc.QuestionsByTest(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	if questions == nil {
		questions = []content.Question{}
	}
	return ctx.JSON(http.StatusOK, questions)
}

func (api *contentApi) destroyQuestion(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	if err := api.svc.DeleteQuestions(ctx.Request().Context(), id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// computeAccess returns the caller's access context for the tree, or nil when
// the caller is staff and gating does not apply.
func (api *contentApi) computeAccess(ctx echo.Context, tree content.SectionTree) (*access.Context, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting context claims")
	}
	if claims.IsTeacher || claims.IsAdmin {
		return nil, nil
	}
	acc, err := api.accessSvc.Compute(ctx.Request().Context(), tree, claims.Subject)
	if err != nil {
		return nil, errors.Wrap(err, "computing access")
	}
	return acc, nil
}
