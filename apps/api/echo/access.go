package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/durusapp/durus/core"
	"github.com/durusapp/durus/core/access"
	"github.com/durusapp/durus/core/content"
	"github.com/durusapp/durus/core/user"
)

type accessApi struct {
	svc     *access.Service
	userSvc user.Service
}

func registerAccessAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *access.Service, userSvc user.Service) {
	api := accessApi{svc: svc, userSvc: userSvc}

	ag := g.Group("/access/:level/:id", jwt)

	// student endpoints
	ag.POST("/redeem", api.redeem, studentMiddleware())

	// teacher endpoints
	ag.POST("/codes", api.issueCode, teacherMiddleware())
	ag.GET("/codes", api.queryCodes, teacherMiddleware())
	ag.DELETE("/codes/:codeID", api.destroyCode, teacherMiddleware())
	ag.POST("/activations", api.activate, teacherMiddleware())
	ag.DELETE("/activations/:studentID", api.revoke, teacherMiddleware())

	g.GET("/access/lessons", api.unlockedLessons, jwt, studentMiddleware())
}

// pathLevel parses the ":level" path parameter.
func pathLevel(ctx echo.Context) (access.Level, error) {
	switch lvl := access.Level(ctx.Param("level")); lvl {
	case access.LevelSubject, access.LevelSection, access.LevelLesson:
		return lvl, nil
	}
	return "", errHttpNotFound
}

// Handlers

func (api *accessApi) redeem(ctx echo.Context) error {
	level, err := pathLevel(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	var data access.RedeemCode
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RedeemCode")
	}
	data.Code = core.CleanString(data.Code)
	if err := core.Validate.Struct(&data); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if err := api.svc.Redeem(ctx.Request().Context(), level, id, claims.Subject, data.Code); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Code redeemed; access granted."})
}

func (api *accessApi) issueCode(ctx echo.Context) error {
	level, err := pathLevel(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	var data access.NewCode
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCode")
	}
	if err := core.Validate.Struct(&data); err != nil {
		return err
	}

	// the target student must exist
	if _, err := api.userSvc.GetByID(ctx.Request().Context(), data.StudentID); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: "student not found"})
		}
		return errors.Wrap(err, "finding student")
	}

	code, err := api.svc.IssueCode(ctx.Request().Context(), level, id, data.StudentID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, code)
}

func (api *accessApi) queryCodes(ctx echo.Context) error {
	level, err := pathLevel(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	codes, err := api.svc.QueryCodes(ctx.Request().Context(), level, id)
	if err != nil {
		return err
	}
	if codes == nil {
		codes = []access.Code{}
	}
	return ctx.JSON(http.StatusOK, codes)
}

func (api *accessApi) destroyCode(ctx echo.Context) error {
	level, err := pathLevel(ctx)
	if err != nil {
		return err
	}
	codeID, err := pathID(ctx, "codeID")
	if err != nil {
		return err
	}

	if err := api.svc.DeleteCode(ctx.Request().Context(), level, codeID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *accessApi) activate(ctx echo.Context) error {
	level, err := pathLevel(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	var data access.NewCode // same shape: a target student
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding activation request")
	}
	if err := core.Validate.Struct(&data); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	switch level {
	case access.LevelSubject:
		err = api.svc.ActivateSubject(reqCtx, id, data.StudentID)
	case access.LevelSection:
		err = api.svc.ActivateSection(reqCtx, id, data.StudentID)
	case access.LevelLesson:
		err = api.svc.ActivateLesson(reqCtx, id, data.StudentID)
	}
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Access granted."})
}

func (api *accessApi) revoke(ctx echo.Context) error {
	level, err := pathLevel(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	studentID := ctx.Param("studentID")

	reqCtx := ctx.Request().Context()
	switch level {
	case access.LevelSubject:
		err = api.svc.RevokeSubjectActivation(reqCtx, id, studentID)
	case access.LevelSection:
		err = api.svc.RevokeSectionActivation(reqCtx, id, studentID)
	case access.LevelLesson:
		err = api.svc.RevokeLessonActivation(reqCtx, id, studentID)
	}
	if err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *accessApi) unlockedLessons(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	lessons, err := api.svc.UnlockedLessons(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying unlocked lessons")
	}
	if lessons == nil {
		lessons = []content.Lesson{}
	}
	return ctx.JSON(http.StatusOK, lessons)
}
