package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/durusapp/durus/core/content"
	"github.com/durusapp/durus/core/user"
)

func Test_contentApi_sectionDetail_freebies(t *testing.T) {
	app := newTestApp(t)
	f := app.seedContent(t, false /* open subject, gated lessons still default open here */)

	// gate the lessons but leave subject and section open
	ctx := context.Background()
	gated := true
	for _, les := range f.lessons {
		if _, err := app.contentRepo.UpdateLesson(ctx, les, &gated); err != nil {
			t.Fatalf("UpdateLesson() failed: %v", err)
		}
	}
	if _, err := app.contentRepo.UpdateSection(ctx, f.section, &gated); err != nil {
		t.Fatalf("UpdateSection() failed: %v", err)
	}

	student := app.createUser(t, "Student", "student1", "student@test.cd", "", []string{user.RoleStudent}, true)
	teacher := app.createUser(t, "Teacher", "teacher1", "teacher@test.cd", "", []string{user.RoleTeacher}, true)

	rec := app.request(t, http.MethodGet, fmt.Sprintf("/v1/sections/%d", f.section.ID), app.getToken(t, student), nil)
	checkCode(t, rec, http.StatusOK)
	var detail sectionDetailResponse
	decodeBody(t, rec, &detail)

	if !detail.SubjectOpen {
		t.Error("ungated subject reported closed")
	}
	if detail.Open {
		t.Error("gated section reported open")
	}
	for i, les := range detail.Lessons {
		wantOpen := i == 0 // first lesson is free
		if les.Open != wantOpen {
			t.Errorf("lesson %d open = %v; want %v", les.ID, les.Open, wantOpen)
		}
	}
	for _, tst := range detail.Tests {
		if tst.ID == f.sectionTest.ID && !tst.Open {
			t.Errorf("first section-wide test %d closed; want freebie open", tst.ID)
		}
	}

	// staff see everything open
	rec = app.request(t, http.MethodGet, fmt.Sprintf("/v1/sections/%d", f.section.ID), app.getToken(t, teacher), nil)
	checkCode(t, rec, http.StatusOK)
	decodeBody(t, rec, &detail)
	if !detail.Open {
		t.Error("section closed for staff")
	}
	for _, les := range detail.Lessons {
		if !les.Open {
			t.Errorf("lesson %d closed for staff", les.ID)
		}
	}
}

func Test_contentApi_lessonDetail_gated(t *testing.T) {
	app := newTestApp(t)
	f := app.seedContent(t, true)

	student := app.createUser(t, "Student", "student1", "student@test.cd", "", []string{user.RoleStudent}, true)
	studentTok := app.getToken(t, student)

	// everything locked under the gated subject
	rec := app.request(t, http.MethodGet, fmt.Sprintf("/v1/lessons/%d", f.lessons[0].ID), studentTok, nil)
	checkCode(t, rec, http.StatusForbidden)

	if err := app.accessSvc.ActivateSubject(context.Background(), f.subject.ID, student.ID); err != nil {
		t.Fatalf("ActivateSubject() failed: %v", err)
	}

	rec = app.request(t, http.MethodGet, fmt.Sprintf("/v1/lessons/%d", f.lessons[0].ID), studentTok, nil)
	checkCode(t, rec, http.StatusOK)
	var detail lessonDetailResponse
	decodeBody(t, rec, &detail)
	if detail.ID != f.lessons[0].ID {
		t.Errorf("lesson ID = %v; want %v", detail.ID, f.lessons[0].ID)
	}
	if len(detail.Tests) != 1 {
		t.Errorf("len(tests) = %v; want 1", len(detail.Tests))
	}
}

func Test_contentApi_crud_requiresTeacher(t *testing.T) {
	app := newTestApp(t)

	student := app.createUser(t, "Student", "student1", "student@test.cd", "", []string{user.RoleStudent}, true)
	teacher := app.createUser(t, "Teacher", "teacher1", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	teacherTok := app.getToken(t, teacher)

	body := content.NewSubject{Name: "Chemistry", RequiresCode: true}

	rec := app.request(t, http.MethodPost, "/v1/subjects", app.getToken(t, student), body)
	checkCode(t, rec, http.StatusForbidden)

	rec = app.request(t, http.MethodPost, "/v1/subjects", teacherTok, body)
	checkCode(t, rec, http.StatusCreated)
	var sub content.Subject
	decodeBody(t, rec, &sub)
	if sub.CreatedBy != teacher.ID {
		t.Errorf("CreatedBy = %q; want %q", sub.CreatedBy, teacher.ID)
	}

	// invalid payloads are field errors
	rec = app.request(t, http.MethodPost, "/v1/subjects", teacherTok, content.NewSubject{})
	checkCode(t, rec, http.StatusBadRequest)

	// sections need an existing subject
	rec = app.request(t, http.MethodPost, "/v1/sections", teacherTok, content.NewSection{SubjectID: 999, Title: "Orphan"})
	checkCode(t, rec, http.StatusNotFound)
}

func Test_contentApi_gateToggle_locksAccessForAll(t *testing.T) {
	app := newTestApp(t)
	f := app.seedContent(t, false)

	teacher := app.createUser(t, "Teacher", "teacher1", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	student := app.createUser(t, "Student", "student1", "student@test.cd", "", []string{user.RoleStudent}, true)

	// the student holds a subject activation
	if err := app.accessSvc.ActivateSubject(context.Background(), f.subject.ID, student.ID); err != nil {
		t.Fatalf("ActivateSubject() failed: %v", err)
	}

	// teacher switches the gate on
	gated := true
	rec := app.request(
		t, http.MethodPut,
		fmt.Sprintf("/v1/subjects/%d", f.subject.ID),
		app.getToken(t, teacher),
		content.UpdateSubject{RequiresCode: &gated},
	)
	checkCode(t, rec, http.StatusOK)

	// every standing activation is wiped
	active, err := app.accessSvc.SubjectActive(context.Background(), f.subject.ID, student.ID)
	if err != nil {
		t.Fatalf("SubjectActive() failed: %v", err)
	}
	if active {
		t.Error("subject activation survived the gate toggle")
	}

	rec = app.request(t, http.MethodGet, fmt.Sprintf("/v1/sections/%d", f.section.ID), app.getToken(t, student), nil)
	checkCode(t, rec, http.StatusOK)
	var detail sectionDetailResponse
	decodeBody(t, rec, &detail)
	if detail.SubjectOpen {
		t.Error("subject still open after the gate toggle")
	}
}
