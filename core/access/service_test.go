package access_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/durusapp/durus/core/access"
	"github.com/durusapp/durus/core/content"
	dummydb "github.com/durusapp/durus/storage/database/dummy"
)

type fixture struct {
	svc         *access.Service
	contentRepo content.Repository

	subject content.Subject
	section content.Section
	lessons []content.Lesson
	tests   []content.Test
}

// newFixture seeds a gated subject with one section, three lessons, two
// section-wide tests and one test per lesson.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	contentRepo := dummydb.NewContentRepository(db)
	svc := access.NewService(dummydb.NewAccessRepository(db), contentRepo)

	sub, err := contentRepo.CreateSubject(ctx, content.Subject{Name: "Algebra", RequiresCode: true})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	sec, err := contentRepo.CreateSection(ctx, content.Section{SubjectID: sub.ID, Title: "Basics"})
	if err != nil {
		t.Fatalf("CreateSection() failed: %v", err)
	}

	f := &fixture{svc: svc, contentRepo: contentRepo, subject: sub, section: sec}
	for _, title := range []string{"L1", "L2", "L3"} {
		les, err := contentRepo.CreateLesson(ctx, content.Lesson{SectionID: sec.ID, Title: title})
		if err != nil {
			t.Fatalf("CreateLesson(%s) failed: %v", title, err)
		}
		f.lessons = append(f.lessons, les)
	}
	for _, title := range []string{"Final", "Retake"} {
		tst, err := contentRepo.CreateTest(ctx, content.Test{SectionID: sec.ID, Title: title})
		if err != nil {
			t.Fatalf("CreateTest(%s) failed: %v", title, err)
		}
		f.tests = append(f.tests, tst)
	}
	for _, les := range f.lessons {
		lesID := les.ID
		tst, err := contentRepo.CreateTest(ctx, content.Test{SectionID: sec.ID, LessonID: &lesID, Title: les.Title + " Quiz"})
		if err != nil {
			t.Fatalf("CreateTest(%s quiz) failed: %v", les.Title, err)
		}
		f.tests = append(f.tests, tst)
	}
	return f
}

func (f *fixture) compute(t *testing.T, studentID string) *access.Context {
	t.Helper()
	accessCtx, err := f.svc.ComputeForSection(context.Background(), f.section.ID, studentID)
	if err != nil {
		t.Fatalf("ComputeForSection() failed: %v", err)
	}
	return accessCtx
}

func TestServiceIssueAndRedeem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	std := "std1"

	code, err := f.svc.IssueCode(ctx, access.LevelSubject, f.subject.ID, std)
	if err != nil {
		t.Fatalf("IssueCode() failed: %v", err)
	}
	if len(code.Code) != 6 {
		t.Errorf("code length = %d; expected 6", len(code.Code))
	}
	if code.IsUsed {
		t.Error("freshly issued code is marked used")
	}

	// a second unused code for the same pair is refused
	if _, err = f.svc.IssueCode(ctx, access.LevelSubject, f.subject.ID, std); err != access.ErrDuplicateIssuance {
		t.Errorf("IssueCode() error = %v; expected ErrDuplicateIssuance", err)
	}

	// wrong code value
	if err = f.svc.Redeem(ctx, access.LevelSubject, f.subject.ID, std, "NOPE00"); err != access.ErrInvalidCode {
		t.Errorf("Redeem(wrong value) error = %v; expected ErrInvalidCode", err)
	}
	// right code, wrong student: indistinguishable from a wrong value
	if err = f.svc.Redeem(ctx, access.LevelSubject, f.subject.ID, "std2", code.Code); err != access.ErrInvalidCode {
		t.Errorf("Redeem(wrong student) error = %v; expected ErrInvalidCode", err)
	}
	// right code, wrong content item
	sub2, err := f.contentRepo.CreateSubject(ctx, content.Subject{Name: "Geometry", RequiresCode: true})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	if err = f.svc.Redeem(ctx, access.LevelSubject, sub2.ID, std, code.Code); err != access.ErrInvalidCode {
		t.Errorf("Redeem(wrong subject) error = %v; expected ErrInvalidCode", err)
	}

	// case and surrounding space are forgiven
	if err = f.svc.Redeem(ctx, access.LevelSubject, f.subject.ID, std, "  "+strings.ToLower(code.Code)+" "); err != nil {
		t.Fatalf("Redeem() failed: %v", err)
	}

	accessCtx := f.compute(t, std)
	if !accessCtx.SubjectActive() {
		t.Error("subject not active after redemption")
	}
	if !accessCtx.SectionOpen() {
		t.Error("section not open after subject redemption")
	}
	for _, les := range f.lessons {
		if !accessCtx.LessonOpen(les) {
			t.Errorf("lesson %q not open after subject redemption", les.Title)
		}
	}
	for _, tst := range f.tests {
		if !accessCtx.TestOpen(tst) {
			t.Errorf("test %q not open after subject redemption", tst.Title)
		}
	}

	// a code only works once
	if err = f.svc.Redeem(ctx, access.LevelSubject, f.subject.ID, std, code.Code); err != access.ErrAlreadyUsedCode {
		t.Errorf("second Redeem() error = %v; expected ErrAlreadyUsedCode", err)
	}

	// once used, the pair may receive a fresh code
	if _, err = f.svc.IssueCode(ctx, access.LevelSubject, f.subject.ID, std); err != nil {
		t.Errorf("IssueCode() after use failed: %v", err)
	}
}

func TestServiceRedeemLessonCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	std := "std1"
	l2 := f.lessons[1]

	code, err := f.svc.IssueCode(ctx, access.LevelLesson, l2.ID, std)
	if err != nil {
		t.Fatalf("IssueCode() failed: %v", err)
	}
	if err = f.svc.Redeem(ctx, access.LevelLesson, l2.ID, std, code.Code); err != nil {
		t.Fatalf("Redeem() failed: %v", err)
	}

	accessCtx := f.compute(t, std)
	if accessCtx.SubjectActive() || accessCtx.SectionOpen() {
		t.Error("lesson redemption must not open the subject or section")
	}
	if !accessCtx.LessonOpen(l2) {
		t.Error("redeemed lesson not open")
	}
	// subject stays locked: no first-lesson freebie
	if accessCtx.LessonOpen(f.lessons[0]) {
		t.Error("first lesson open under a locked subject")
	}
	for _, tst := range f.tests {
		wantOpen := tst.LessonID != nil && *tst.LessonID == l2.ID
		if got := accessCtx.TestOpen(tst); got != wantOpen {
			t.Errorf("TestOpen(%q) = %v; expected %v", tst.Title, got, wantOpen)
		}
	}
}

func TestServiceActivateIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	std := "std1"

	if err := f.svc.ActivateSection(ctx, f.section.ID, std); err != nil {
		t.Fatalf("ActivateSection() failed: %v", err)
	}
	if err := f.svc.ActivateSection(ctx, f.section.ID, std); err != nil {
		t.Fatalf("repeated ActivateSection() failed: %v", err)
	}

	accessCtx := f.compute(t, std)
	if !accessCtx.SectionActive() {
		t.Error("section not active after activation")
	}
	if accessCtx.SubjectActive() {
		t.Error("section activation leaked to the subject")
	}
	for _, les := range f.lessons {
		if !accessCtx.LessonOpen(les) {
			t.Errorf("lesson %q not open after section activation", les.Title)
		}
	}
}

func TestServiceRevoke(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	std := "std1"

	if err := f.svc.ActivateSubject(ctx, f.subject.ID, std); err != nil {
		t.Fatalf("ActivateSubject() failed: %v", err)
	}
	if err := f.svc.RevokeSubjectActivation(ctx, f.subject.ID, std); err != nil {
		t.Fatalf("RevokeSubjectActivation() failed: %v", err)
	}

	accessCtx := f.compute(t, std)
	if accessCtx.SubjectActive() || accessCtx.SectionActive() {
		t.Error("activations survive revocation")
	}
	// cascaded lesson activations are withdrawn too
	for _, les := range f.lessons {
		if accessCtx.LessonOpen(les) {
			t.Errorf("lesson %q still open after revocation", les.Title)
		}
	}
}

func TestServiceLockForAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, std := range []string{"std1", "std2"} {
		if err := f.svc.ActivateSubject(ctx, f.subject.ID, std); err != nil {
			t.Fatalf("ActivateSubject(%s) failed: %v", std, err)
		}
	}
	if err := f.svc.LockSubjectAccessForAll(ctx, f.subject.ID); err != nil {
		t.Fatalf("LockSubjectAccessForAll() failed: %v", err)
	}
	for _, std := range []string{"std1", "std2"} {
		accessCtx := f.compute(t, std)
		if accessCtx.SubjectActive() || accessCtx.SectionActive() {
			t.Errorf("student %s still holds activations after lock", std)
		}
	}
}

func TestServiceDeleteCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	std := "std1"

	code, err := f.svc.IssueCode(ctx, access.LevelSubject, f.subject.ID, std)
	if err != nil {
		t.Fatalf("IssueCode() failed: %v", err)
	}
	if err = f.svc.DeleteCode(ctx, access.LevelSubject, code.ID); err != nil {
		t.Fatalf("DeleteCode() failed: %v", err)
	}

	// a used code is history and sticks around
	code, err = f.svc.IssueCode(ctx, access.LevelSubject, f.subject.ID, std)
	if err != nil {
		t.Fatalf("IssueCode() failed: %v", err)
	}
	if err = f.svc.Redeem(ctx, access.LevelSubject, f.subject.ID, std, code.Code); err != nil {
		t.Fatalf("Redeem() failed: %v", err)
	}
	if err = f.svc.DeleteCode(ctx, access.LevelSubject, code.ID); err != access.ErrAlreadyUsedCode {
		t.Errorf("DeleteCode(used) error = %v; expected ErrAlreadyUsedCode", err)
	}
}

func TestServiceUnlockedLessons(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	std := "std1"

	// gated subject, nothing unlocked
	unlocked, err := f.svc.UnlockedLessons(ctx, std)
	if err != nil {
		t.Fatalf("UnlockedLessons() failed: %v", err)
	}
	if len(unlocked) != 0 {
		t.Errorf("unlocked lessons = %d; expected 0", len(unlocked))
	}

	if err = f.svc.ActivateLesson(ctx, f.lessons[2].ID, std); err != nil {
		t.Fatalf("ActivateLesson() failed: %v", err)
	}
	unlocked, err = f.svc.UnlockedLessons(ctx, std)
	if err != nil {
		t.Fatalf("UnlockedLessons() failed: %v", err)
	}
	if len(unlocked) != 1 || unlocked[0].ID != f.lessons[2].ID {
		t.Errorf("unlocked lessons = %+v; expected only %q", unlocked, f.lessons[2].Title)
	}
}

// flakyAccessRepo fails the first mark-used writes to simulate a crash between
// the activation grant and the code consumption.
type flakyAccessRepo struct {
	access.Repository
	failures int
}

func (r *flakyAccessRepo) RedeemCode(ctx context.Context, level access.Level, contentID int64, studentID, code string) (bool, error) {
	if r.failures > 0 {
		r.failures--
		return false, errors.New("connection reset")
	}
	return r.Repository.RedeemCode(ctx, level, contentID, studentID, code)
}

func TestServiceRedeemRetryAfterPartialFailure(t *testing.T) {
	ctx := context.Background()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	contentRepo := dummydb.NewContentRepository(db)
	repo := &flakyAccessRepo{Repository: dummydb.NewAccessRepository(db), failures: 1}
	svc := access.NewService(repo, contentRepo)

	sub, err := contentRepo.CreateSubject(ctx, content.Subject{Name: "Algebra", RequiresCode: true})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	std := "std1"

	code, err := svc.IssueCode(ctx, access.LevelSubject, sub.ID, std)
	if err != nil {
		t.Fatalf("IssueCode() failed: %v", err)
	}

	// first attempt grants the activation but fails to consume the code
	if err = svc.Redeem(ctx, access.LevelSubject, sub.ID, std, code.Code); err == nil {
		t.Fatal("Redeem() succeeded; expected the mark-used write to fail")
	}
	act, err := repo.GetActivation(ctx, access.LevelSubject, sub.ID, std)
	if err != nil || !act.Active {
		t.Fatalf("activation after failed redemption = %+v, %v; expected an active row", act, err)
	}

	// the code is still unused, so a retry goes through
	if err = svc.Redeem(ctx, access.LevelSubject, sub.ID, std, code.Code); err != nil {
		t.Fatalf("retried Redeem() failed: %v", err)
	}

	// and burns the code
	if err = svc.Redeem(ctx, access.LevelSubject, sub.ID, std, code.Code); err != access.ErrAlreadyUsedCode {
		t.Errorf("third Redeem() error = %v; expected ErrAlreadyUsedCode", err)
	}
}
