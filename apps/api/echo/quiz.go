package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/durusapp/durus/core/quiz"
)

type quizApi struct {
	svc *quiz.Service
}

func registerQuizAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *quiz.Service) {
	api := quizApi{svc: svc}

	g.POST("/tests/:id/attempts", api.startAttempt, jwt, studentMiddleware())

	ag := g.Group("/attempts", jwt, studentMiddleware())
	ag.GET("", api.queryAttempts)
	ag.GET("/:id", api.retrieveAttempt)
	ag.POST("/:id/submit", api.submitAttempt)

	cg := g.Group("/custom-tests", jwt, studentMiddleware())
	cg.POST("", api.startCustomAttempt)
	cg.GET("", api.queryCustomAttempts)
	cg.GET("/:id", api.retrieveCustomAttempt)
	cg.POST("/:id/submit", api.submitCustomAttempt)
}

// Response shapes. Choice correctness is only revealed once the attempt has
// been submitted.

type (
	choiceView struct {
		ID        int64  `json:"id"`
		Text      string `json:"text"`
		IsCorrect *bool  `json:"is_correct,omitempty"`
	}

	questionView struct {
		ID      int64        `json:"id"`
		Text    string       `json:"text"`
		Hint    string       `json:"hint,omitempty"`
		Choices []choiceView `json:"choices"`
	}

	startAttemptRequest struct {
		Count int `json:"count"`
	}

	attemptResponse struct {
		Attempt   quiz.Attempt   `json:"attempt"`
		Questions []questionView `json:"questions,omitempty"`
	}

	attemptDetailResponse struct {
		Attempt quiz.Attempt         `json:"attempt"`
		Answers []quiz.AttemptAnswer `json:"answers"`
	}

	customAttemptResponse struct {
		Attempt   quiz.CustomAttempt   `json:"attempt"`
		Questions []questionView       `json:"questions"`
		Answers   []quiz.AttemptAnswer `json:"answers,omitempty"`
	}
)

func renderViews(views []quiz.QuestionView, reveal bool) []questionView {
	out := make([]questionView, 0, len(views))
	for _, v := range views {
		qv := questionView{
			ID:      v.Question.ID,
			Text:    v.Question.Text,
			Hint:    v.Question.Hint,
			Choices: make([]choiceView, 0, len(v.Choices)),
		}
		for _, c := range v.Choices {
			cv := choiceView{ID: c.ID, Text: c.Text}
			if reveal {
				correct := c.IsCorrect
				cv.IsCorrect = &correct
			}
			qv.Choices = append(qv.Choices, cv)
		}
		out = append(out, qv)
	}
	return out
}

// Handlers

func (api *quizApi) startAttempt(ctx echo.Context) error {
	testID, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	var data startAttemptRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to startAttemptRequest")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	att, views, err := api.svc.StartAttempt(ctx.Request().Context(), testID, claims.Subject, data.Count)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, attemptResponse{
		Attempt:   att,
		Questions: renderViews(views, false),
	})
}

func (api *quizApi) queryAttempts(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	attempts, err := api.svc.AttemptsByStudent(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying attempts")
	}
	if attempts == nil {
		attempts = []quiz.Attempt{}
	}
	return ctx.JSON(http.StatusOK, attempts)
}

func (api *quizApi) retrieveAttempt(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	att, answers, err := api.svc.GetAttempt(ctx.Request().Context(), id, claims.Subject)
	if err != nil {
		return err
	}
	if answers == nil {
		answers = []quiz.AttemptAnswer{}
	}
	return ctx.JSON(http.StatusOK, attemptDetailResponse{Attempt: att, Answers: answers})
}

func (api *quizApi) submitAttempt(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	var data quiz.SubmitAnswers
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitAnswers")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	att, err := api.svc.SubmitAttempt(ctx.Request().Context(), id, claims.Subject, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, attemptResponse{Attempt: att})
}

func (api *quizApi) startCustomAttempt(ctx echo.Context) error {
	var data quiz.NewCustomAttempt
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCustomAttempt")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	att, err := api.svc.StartCustomAttempt(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, att)
}

func (api *quizApi) queryCustomAttempts(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	attempts, err := api.svc.CustomAttemptsByStudent(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying custom attempts")
	}
	if attempts == nil {
		attempts = []quiz.CustomAttempt{}
	}
	return ctx.JSON(http.StatusOK, attempts)
}

func (api *quizApi) retrieveCustomAttempt(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	att, views, answers, err := api.svc.GetCustomAttempt(ctx.Request().Context(), id, claims.Subject)
	if err != nil {
		return err
	}

	submitted := att.Status == quiz.StatusSubmitted
	resp := customAttemptResponse{
		Attempt:   att,
		Questions: renderViews(views, submitted),
	}
	if submitted {
		resp.Answers = answers
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *quizApi) submitCustomAttempt(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	var data quiz.SubmitAnswers
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitAnswers")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	att, err := api.svc.SubmitCustomAttempt(ctx.Request().Context(), id, claims.Subject, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, att)
}
