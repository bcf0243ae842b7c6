package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"log"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/durusapp/durus/core"
	"github.com/durusapp/durus/core/access"
	"github.com/durusapp/durus/core/content"
	"github.com/durusapp/durus/core/quiz"
	"github.com/durusapp/durus/core/user"
	emailsvc "github.com/durusapp/durus/services/email"
	logsvc "github.com/durusapp/durus/services/logger"
	dummydb "github.com/durusapp/durus/storage/database/dummy"
)

type testApp struct {
	server Server

	userRepo    user.Repository
	contentRepo content.Repository

	userSvc    user.Service
	contentSvc *content.Service
	accessSvc  *access.Service
	quizSvc    *quiz.Service
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}

	userRepo := dummydb.NewUserRepository(db)
	contentRepo := dummydb.NewContentRepository(db)

	userSvc := user.NewService(userRepo, emailsvc.NewConsoleServiceMock())
	contentSvc := content.NewService(contentRepo)
	accessSvc := access.NewService(dummydb.NewAccessRepository(db), contentRepo)
	quizSvc := quiz.NewService(dummydb.NewQuizRepository(db), contentRepo, accessSvc)

	logger := logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), core.Conf)
	logger.Enable(false)

	app := &testApp{
		userRepo:    userRepo,
		contentRepo: contentRepo,
		userSvc:     userSvc,
		contentSvc:  contentSvc,
		accessSvc:   accessSvc,
		quizSvc:     quizSvc,
	}
	app.server = NewServer(&Options{
		DisableReqLogs: true,
		Logger:         logger,
		UserSvc:        userSvc,
		ContentSvc:     contentSvc,
		AccessSvc:      accessSvc,
		QuizSvc:        quizSvc,
	})
	return app
}

func (app *testApp) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body failed: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) createUser(t *testing.T, name, uname, email, pwd string, roles []string, isActive bool) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("SetPassword() failed: %v", err)
		}
	}
	usr, err := app.userRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func (app *testApp) getToken(t *testing.T, usr user.User) string {
	t.Helper()

	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}
	return token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()

	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decoding response %q failed: %v", rec.Body.String(), err)
	}
}

func checkCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()

	if rec.Code != want {
		t.Fatalf("code = %v; want %v (body: %s)", rec.Code, want, rec.Body.String())
	}
}

// content fixture: a subject with one section, three lessons, one section-wide
// test and one test linked to the first lesson.
type contentFixture struct {
	subject     content.Subject
	section     content.Section
	lessons     []content.Lesson
	sectionTest content.Test
	lessonTest  content.Test
}

func (app *testApp) seedContent(t *testing.T, gated bool) *contentFixture {
	t.Helper()
	ctx := context.Background()

	sub, err := app.contentRepo.CreateSubject(ctx, content.Subject{Name: "Algebra", RequiresCode: gated})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	sec, err := app.contentRepo.CreateSection(ctx, content.Section{SubjectID: sub.ID, Title: "Basics", RequiresCode: gated})
	if err != nil {
		t.Fatalf("CreateSection() failed: %v", err)
	}

	f := &contentFixture{subject: sub, section: sec}
	for _, title := range []string{"L1", "L2", "L3"} {
		les, err := app.contentRepo.CreateLesson(ctx, content.Lesson{SectionID: sec.ID, Title: title, RequiresCode: gated})
		if err != nil {
			t.Fatalf("CreateLesson(%s) failed: %v", title, err)
		}
		f.lessons = append(f.lessons, les)
	}

	f.sectionTest, err = app.contentRepo.CreateTest(ctx, content.Test{SectionID: sec.ID, Title: "Final"})
	if err != nil {
		t.Fatalf("CreateTest(Final) failed: %v", err)
	}
	lesID := f.lessons[0].ID
	f.lessonTest, err = app.contentRepo.CreateTest(ctx, content.Test{SectionID: sec.ID, LessonID: &lesID, Title: "L1 Quiz"})
	if err != nil {
		t.Fatalf("CreateTest(L1 Quiz) failed: %v", err)
	}
	return f
}

// seedQuestions adds n questions with three choices each (first one correct)
// to the given test.
func (app *testApp) seedQuestions(t *testing.T, testID int64, n int) []content.Question {
	t.Helper()
	ctx := context.Background()

	questions := make([]content.Question, 0, n)
	for i := 0; i < n; i++ {
		q, _, err := app.contentRepo.CreateQuestion(ctx,
			content.Question{TestID: testID, Text: "Q"},
			[]content.Choice{
				{Text: "right", IsCorrect: true},
				{Text: "wrong"},
				{Text: "also wrong"},
			},
		)
		if err != nil {
			t.Fatalf("CreateQuestion() failed: %v", err)
		}
		questions = append(questions, q)
	}
	return questions
}
