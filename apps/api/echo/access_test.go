package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/durusapp/durus/core/access"
	"github.com/durusapp/durus/core/user"
)

func Test_accessApi_issueAndRedeem(t *testing.T) {
	app := newTestApp(t)
	f := app.seedContent(t, true /* gated */)

	teacher := app.createUser(t, "Teacher", "teacher1", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	student := app.createUser(t, "Student", "student1", "student@test.cd", "", []string{user.RoleStudent}, true)
	teacherTok := app.getToken(t, teacher)
	studentTok := app.getToken(t, student)

	codesPath := fmt.Sprintf("/v1/access/subject/%d/codes", f.subject.ID)
	redeemPath := fmt.Sprintf("/v1/access/subject/%d/redeem", f.subject.ID)

	// students cannot issue codes
	rec := app.request(t, http.MethodPost, codesPath, studentTok, access.NewCode{StudentID: student.ID})
	checkCode(t, rec, http.StatusForbidden)

	// issue
	rec = app.request(t, http.MethodPost, codesPath, teacherTok, access.NewCode{StudentID: student.ID})
	checkCode(t, rec, http.StatusCreated)
	var code access.Code
	decodeBody(t, rec, &code)
	if len(code.Code) != 6 {
		t.Fatalf("len(code) = %v; want 6", len(code.Code))
	}

	// a second unused code for the same pair is rejected
	rec = app.request(t, http.MethodPost, codesPath, teacherTok, access.NewCode{StudentID: student.ID})
	checkCode(t, rec, http.StatusBadRequest)

	// wrong code value
	rec = app.request(t, http.MethodPost, redeemPath, studentTok, access.RedeemCode{Code: "AAAAAA"})
	checkCode(t, rec, http.StatusBadRequest)

	// redeem
	rec = app.request(t, http.MethodPost, redeemPath, studentTok, access.RedeemCode{Code: code.Code})
	checkCode(t, rec, http.StatusOK)

	// redeem-once
	rec = app.request(t, http.MethodPost, redeemPath, studentTok, access.RedeemCode{Code: code.Code})
	checkCode(t, rec, http.StatusBadRequest)

	// the cascade opened the whole section for the student
	rec = app.request(t, http.MethodGet, fmt.Sprintf("/v1/sections/%d", f.section.ID), studentTok, nil)
	checkCode(t, rec, http.StatusOK)
	var detail sectionDetailResponse
	decodeBody(t, rec, &detail)
	if !detail.Open || !detail.SubjectOpen {
		t.Errorf("section detail open = (%v, %v); want both true", detail.SubjectOpen, detail.Open)
	}
	for _, les := range detail.Lessons {
		if !les.Open {
			t.Errorf("lesson %d closed after subject redemption", les.ID)
		}
	}
	for _, tst := range detail.Tests {
		if !tst.Open {
			t.Errorf("test %d closed after subject redemption", tst.ID)
		}
	}
}

func Test_accessApi_teachersOnly(t *testing.T) {
	app := newTestApp(t)
	f := app.seedContent(t, true)

	teacher := app.createUser(t, "Teacher", "teacher1", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	student := app.createUser(t, "Student", "student1", "student@test.cd", "", []string{user.RoleStudent}, true)

	// redeem is a student endpoint
	rec := app.request(
		t, http.MethodPost,
		fmt.Sprintf("/v1/access/subject/%d/redeem", f.subject.ID),
		app.getToken(t, teacher),
		access.RedeemCode{Code: "AAAAAA"},
	)
	checkCode(t, rec, http.StatusForbidden)

	// unknown levels 404
	rec = app.request(
		t, http.MethodPost,
		fmt.Sprintf("/v1/access/course/%d/codes", f.subject.ID),
		app.getToken(t, teacher),
		access.NewCode{StudentID: student.ID},
	)
	checkCode(t, rec, http.StatusNotFound)
}

func Test_accessApi_activateAndRevoke(t *testing.T) {
	app := newTestApp(t)
	f := app.seedContent(t, true)

	teacher := app.createUser(t, "Teacher", "teacher1", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	student := app.createUser(t, "Student", "student1", "student@test.cd", "", []string{user.RoleStudent}, true)
	teacherTok := app.getToken(t, teacher)
	studentTok := app.getToken(t, student)

	base := fmt.Sprintf("/v1/access/section/%d", f.section.ID)

	rec := app.request(t, http.MethodPost, base+"/activations", teacherTok, access.NewCode{StudentID: student.ID})
	checkCode(t, rec, http.StatusOK)

	rec = app.request(t, http.MethodGet, fmt.Sprintf("/v1/sections/%d", f.section.ID), studentTok, nil)
	checkCode(t, rec, http.StatusOK)
	var detail sectionDetailResponse
	decodeBody(t, rec, &detail)
	if !detail.Open {
		t.Fatal("section closed after direct activation")
	}

	rec = app.request(t, http.MethodDelete, base+"/activations/"+student.ID, teacherTok, nil)
	checkCode(t, rec, http.StatusNoContent)

	rec = app.request(t, http.MethodGet, fmt.Sprintf("/v1/sections/%d", f.section.ID), studentTok, nil)
	checkCode(t, rec, http.StatusOK)
	decodeBody(t, rec, &detail)
	if detail.Open {
		t.Error("section still open after revocation")
	}
}

func Test_accessApi_unlockedLessons(t *testing.T) {
	app := newTestApp(t)
	f := app.seedContent(t, true)

	teacher := app.createUser(t, "Teacher", "teacher1", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	student := app.createUser(t, "Student", "student1", "student@test.cd", "", []string{user.RoleStudent}, true)
	studentTok := app.getToken(t, student)

	rec := app.request(t, http.MethodGet, "/v1/access/lessons", studentTok, nil)
	checkCode(t, rec, http.StatusOK)
	var lessons []struct {
		ID int64 `json:"id"`
	}
	decodeBody(t, rec, &lessons)
	if len(lessons) != 0 {
		t.Fatalf("len(lessons) = %v; want 0 while everything is locked", len(lessons))
	}

	// activate one lesson directly
	if err := app.accessSvc.ActivateLesson(context.Background(), f.lessons[1].ID, student.ID); err != nil {
		t.Fatalf("ActivateLesson() failed: %v", err)
	}
	rec = app.request(t, http.MethodGet, "/v1/access/lessons", studentTok, nil)
	checkCode(t, rec, http.StatusOK)
	decodeBody(t, rec, &lessons)
	if len(lessons) != 1 || lessons[0].ID != f.lessons[1].ID {
		t.Errorf("unlocked lessons = %+v; want just lesson %d", lessons, f.lessons[1].ID)
	}

	// teachers have no student access state
	rec = app.request(t, http.MethodGet, "/v1/access/lessons", app.getToken(t, teacher), nil)
	checkCode(t, rec, http.StatusForbidden)
}
