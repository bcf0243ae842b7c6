package access

import (
	"context"
	"errors"
	"strings"

	"github.com/durusapp/durus/core"
	"github.com/durusapp/durus/core/content"
)

var (
	// errors
	ErrNotFound          = errors.New("activation not found")
	ErrInvalidCode       = errors.New("invalid code")
	ErrAlreadyUsedCode   = errors.New("this code has already been used")
	ErrDuplicateIssuance = errors.New("an unused code already exists for this student; remove or use it first")
)

type (
	// Repository persists activations and activation codes. Upserts must be
	// atomic per (content, student) pair: concurrent writers may never produce
	// two active rows. RedeemCode must be a single conditional write.
	Repository interface {
		// activations
		GetActivation(ctx context.Context, level Level, contentID int64, studentID string) (Activation, error)
		// ActiveLessonIDs returns the subset of lessonIDs holding an active
		// activation for the student, in one bulk query.
		ActiveLessonIDs(ctx context.Context, lessonIDs []int64, studentID string) ([]int64, error)
		// UpsertActivation ensures a single active row for the pair: it creates
		// the row or re-flags an inactive one, refreshing ActivatedAt.
		// Re-upserting an active row is a no-op.
		UpsertActivation(ctx context.Context, level Level, contentID int64, studentID string) (Activation, error)
		DeactivateForStudent(ctx context.Context, level Level, contentIDs []int64, studentID string) error
		DeactivateForAll(ctx context.Context, level Level, contentIDs []int64) error

		// codes
		CreateCode(ctx context.Context, level Level, code Code) (Code, error)
		GetCodeByID(ctx context.Context, level Level, id int64) (Code, error)
		QueryCodes(ctx context.Context, level Level, contentID int64) ([]Code, error)
		UnusedCodeExists(ctx context.Context, level Level, contentID int64, studentID string) (bool, error)
		// UnusedCodeMatches reports whether the exact (content, student, code)
		// tuple exists in unredeemed state.
		UnusedCodeMatches(ctx context.Context, level Level, contentID int64, studentID, code string) (bool, error)
		CodeValueExists(ctx context.Context, level Level, code string) (bool, error)
		// RedeemCode marks the matching unused code used and returns whether a
		// row was affected. The (content, student, code) scoping means a code
		// belonging to another student or content item never matches.
		RedeemCode(ctx context.Context, level Level, contentID int64, studentID, code string) (bool, error)
		// UsedCodeExists reports whether the exact (content, student, code)
		// tuple exists in redeemed state.
		UsedCodeExists(ctx context.Context, level Level, contentID int64, studentID, code string) (bool, error)
		DeleteCode(ctx context.Context, level Level, id int64) error
	}

	Service struct {
		repo        Repository
		contentRepo content.Repository
	}
)

func NewService(repo Repository, contentRepo content.Repository) *Service {
	return &Service{repo: repo, contentRepo: contentRepo}
}

// Compute builds the access Context for a loaded section tree and student.
// This is the only read entry point; callers then query the Context.
func (svc *Service) Compute(ctx context.Context, tree content.SectionTree, studentID string) (*Context, error) {
	subjectActive, err := svc.isActive(ctx, LevelSubject, tree.Subject.ID, studentID)
	if err != nil {
		return nil, err
	}
	sectionActive, err := svc.isActive(ctx, LevelSection, tree.Section.ID, studentID)
	if err != nil {
		return nil, err
	}

	var activeLessonIDs []int64
	if len(tree.Lessons) > 0 {
		lessonIDs := make([]int64, 0, len(tree.Lessons))
		for _, les := range tree.Lessons {
			lessonIDs = append(lessonIDs, les.ID)
		}
		if activeLessonIDs, err = svc.repo.ActiveLessonIDs(ctx, lessonIDs, studentID); err != nil {
			return nil, err
		}
	}

	return newContext(tree, studentID, subjectActive, sectionActive, activeLessonIDs), nil
}

// ComputeForSection loads the section tree and builds the access Context.
func (svc *Service) ComputeForSection(ctx context.Context, sectionID int64, studentID string) (*Context, error) {
	tree, err := svc.contentRepo.GetSectionTree(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	return svc.Compute(ctx, tree, studentID)
}

func (svc *Service) isActive(ctx context.Context, level Level, contentID int64, studentID string) (bool, error) {
	act, err := svc.repo.GetActivation(ctx, level, contentID, studentID)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return act.Active, nil
}

// SubjectActive reports whether the student holds an active subject activation;
// used by subject listings that need no full section context.
func (svc *Service) SubjectActive(ctx context.Context, subjectID int64, studentID string) (bool, error) {
	return svc.isActive(ctx, LevelSubject, subjectID, studentID)
}

// Activations

// ActivateSubject grants the subject to the student and cascades the grant to
// every section and lesson beneath it.
func (svc *Service) ActivateSubject(ctx context.Context, subjectID int64, studentID string) error {
	if _, err := svc.contentRepo.GetSubjectByID(ctx, subjectID); err != nil {
		return err
	}
	if _, err := svc.repo.UpsertActivation(ctx, LevelSubject, subjectID, studentID); err != nil {
		return err
	}
	return svc.CascadeSubjectActivation(ctx, subjectID, studentID)
}

// ActivateSection grants the section to the student and cascades to its lessons.
func (svc *Service) ActivateSection(ctx context.Context, sectionID int64, studentID string) error {
	if _, err := svc.contentRepo.GetSectionByID(ctx, sectionID); err != nil {
		return err
	}
	if _, err := svc.repo.UpsertActivation(ctx, LevelSection, sectionID, studentID); err != nil {
		return err
	}
	return svc.CascadeSectionActivation(ctx, sectionID, studentID)
}

// ActivateLesson grants a single lesson; a leaf action. Tests linked to the
// lesson derive their openness from this record, no rows of their own.
func (svc *Service) ActivateLesson(ctx context.Context, lessonID int64, studentID string) error {
	if _, err := svc.contentRepo.GetLessonByID(ctx, lessonID); err != nil {
		return err
	}
	_, err := svc.repo.UpsertActivation(ctx, LevelLesson, lessonID, studentID)
	return err
}

// Cascades. Each is idempotent and runs synchronously within the caller's
// transaction boundary, after the triggering top-level grant.

// CascadeSubjectActivation ensures an active section activation for every
// section under the subject and an active lesson activation for every lesson
// under those sections.
func (svc *Service) CascadeSubjectActivation(ctx context.Context, subjectID int64, studentID string) error {
	sections, err := svc.contentRepo.SectionsBySubject(ctx, subjectID)
	if err != nil {
		return err
	}
	for _, sec := range sections {
		if _, err = svc.repo.UpsertActivation(ctx, LevelSection, sec.ID, studentID); err != nil {
			return err
		}
		if err = svc.CascadeSectionActivation(ctx, sec.ID, studentID); err != nil {
			return err
		}
	}
	return nil
}

// CascadeSectionActivation ensures an active lesson activation for every lesson
// in the section. Section-wide tests need no rows: their openness is derived.
func (svc *Service) CascadeSectionActivation(ctx context.Context, sectionID int64, studentID string) error {
	lessons, err := svc.contentRepo.LessonsBySection(ctx, sectionID)
	if err != nil {
		return err
	}
	for _, les := range lessons {
		if _, err = svc.repo.UpsertActivation(ctx, LevelLesson, les.ID, studentID); err != nil {
			return err
		}
	}
	return nil
}

// Revocation

// RevokeSubjectActivation withdraws the student's subject activation and every
// section/lesson activation beneath it, for that student only.
func (svc *Service) RevokeSubjectActivation(ctx context.Context, subjectID int64, studentID string) error {
	sectionIDs, lessonIDs, err := svc.descendantIDs(ctx, subjectID)
	if err != nil {
		return err
	}
	if err = svc.repo.DeactivateForStudent(ctx, LevelSubject, []int64{subjectID}, studentID); err != nil {
		return err
	}
	if err = svc.repo.DeactivateForStudent(ctx, LevelSection, sectionIDs, studentID); err != nil {
		return err
	}
	return svc.repo.DeactivateForStudent(ctx, LevelLesson, lessonIDs, studentID)
}

// RevokeSectionActivation withdraws the student's section activation and all
// lesson activations under that section.
func (svc *Service) RevokeSectionActivation(ctx context.Context, sectionID int64, studentID string) error {
	lessonIDs, err := svc.sectionLessonIDs(ctx, sectionID)
	if err != nil {
		return err
	}
	if err = svc.repo.DeactivateForStudent(ctx, LevelSection, []int64{sectionID}, studentID); err != nil {
		return err
	}
	return svc.repo.DeactivateForStudent(ctx, LevelLesson, lessonIDs, studentID)
}

// RevokeLessonActivation withdraws a single lesson activation.
func (svc *Service) RevokeLessonActivation(ctx context.Context, lessonID int64, studentID string) error {
	return svc.repo.DeactivateForStudent(ctx, LevelLesson, []int64{lessonID}, studentID)
}

// LockSubjectAccessForAll wipes subject, section and lesson activations under
// the subject for every student; invoked when a subject's requires_code flag is
// switched on. Freebie exceptions are recomputed dynamically, never stored.
func (svc *Service) LockSubjectAccessForAll(ctx context.Context, subjectID int64) error {
	sectionIDs, lessonIDs, err := svc.descendantIDs(ctx, subjectID)
	if err != nil {
		return err
	}
	if err = svc.repo.DeactivateForAll(ctx, LevelSubject, []int64{subjectID}); err != nil {
		return err
	}
	if err = svc.repo.DeactivateForAll(ctx, LevelSection, sectionIDs); err != nil {
		return err
	}
	return svc.repo.DeactivateForAll(ctx, LevelLesson, lessonIDs)
}

// LockSectionAccessForAll wipes section and lesson activations under the
// section for every student.
func (svc *Service) LockSectionAccessForAll(ctx context.Context, sectionID int64) error {
	lessonIDs, err := svc.sectionLessonIDs(ctx, sectionID)
	if err != nil {
		return err
	}
	if err = svc.repo.DeactivateForAll(ctx, LevelSection, []int64{sectionID}); err != nil {
		return err
	}
	return svc.repo.DeactivateForAll(ctx, LevelLesson, lessonIDs)
}

func (svc *Service) descendantIDs(ctx context.Context, subjectID int64) (sectionIDs, lessonIDs []int64, err error) {
	sections, err := svc.contentRepo.SectionsBySubject(ctx, subjectID)
	if err != nil {
		return nil, nil, err
	}
	sectionIDs = make([]int64, 0, len(sections))
	for _, sec := range sections {
		sectionIDs = append(sectionIDs, sec.ID)
	}
	lessons, err := svc.contentRepo.LessonsBySubject(ctx, subjectID)
	if err != nil {
		return nil, nil, err
	}
	lessonIDs = make([]int64, 0, len(lessons))
	for _, les := range lessons {
		lessonIDs = append(lessonIDs, les.ID)
	}
	return sectionIDs, lessonIDs, nil
}

func (svc *Service) sectionLessonIDs(ctx context.Context, sectionID int64) ([]int64, error) {
	lessons, err := svc.contentRepo.LessonsBySection(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	lessonIDs := make([]int64, 0, len(lessons))
	for _, les := range lessons {
		lessonIDs = append(lessonIDs, les.ID)
	}
	return lessonIDs, nil
}

// Codes

// IssueCode mints a one-time code for the (content, student) pair. At most one
// unused code may exist per pair.
func (svc *Service) IssueCode(ctx context.Context, level Level, contentID int64, studentID string) (Code, error) {
	if err := svc.checkContentExists(ctx, level, contentID); err != nil {
		return Code{}, err
	}

	exists, err := svc.repo.UnusedCodeExists(ctx, level, contentID, studentID)
	if err != nil {
		return Code{}, err
	}
	if exists {
		return Code{}, ErrDuplicateIssuance
	}

	value, err := svc.generateCodeValue(ctx, level)
	if err != nil {
		return Code{}, err
	}
	return svc.repo.CreateCode(ctx, level, Code{
		ContentID: contentID,
		StudentID: studentID,
		Code:      value,
	})
}

func (svc *Service) generateCodeValue(ctx context.Context, level Level) (string, error) {
	for {
		value, err := generateCode()
		if err != nil {
			return "", err
		}
		exists, err := svc.repo.CodeValueExists(ctx, level, value)
		if err != nil {
			return "", err
		}
		if !exists {
			return value, nil
		}
	}
}

// Redeem consumes a code for the given content item and student. On success
// the matching activation is granted and cascaded before returning.
//
// The activation is granted before the code is consumed: a failure between the
// two writes leaves an unused code beside an existing activation, which a
// retried redemption repairs. The mark-used write itself is a single
// conditional update, so two concurrent redemptions of the same code consume
// it exactly once; the loser gets ErrAlreadyUsedCode. An unmatched code yields
// ErrInvalidCode without revealing whether it exists for another student or
// content item.
func (svc *Service) Redeem(ctx context.Context, level Level, contentID int64, studentID, code string) error {
	if err := svc.checkContentExists(ctx, level, contentID); err != nil {
		return err
	}

	code = strings.ToUpper(core.CleanString(code))

	matches, err := svc.repo.UnusedCodeMatches(ctx, level, contentID, studentID, code)
	if err != nil {
		return err
	}
	if !matches {
		used, err := svc.repo.UsedCodeExists(ctx, level, contentID, studentID, code)
		if err != nil {
			return err
		}
		if used {
			return ErrAlreadyUsedCode
		}
		return ErrInvalidCode
	}

	switch level {
	case LevelSubject:
		err = svc.ActivateSubject(ctx, contentID, studentID)
	case LevelSection:
		err = svc.ActivateSection(ctx, contentID, studentID)
	default:
		err = svc.ActivateLesson(ctx, contentID, studentID)
	}
	if err != nil {
		return err
	}

	redeemed, err := svc.repo.RedeemCode(ctx, level, contentID, studentID, code)
	if err != nil {
		return err
	}
	if !redeemed {
		return ErrAlreadyUsedCode
	}
	return nil
}

// QueryCodes lists all codes issued for a content item, used and unused.
func (svc *Service) QueryCodes(ctx context.Context, level Level, contentID int64) ([]Code, error) {
	return svc.repo.QueryCodes(ctx, level, contentID)
}

// DeleteCode removes an issued-but-unused code. Used codes are part of the
// redemption history and cannot be removed.
func (svc *Service) DeleteCode(ctx context.Context, level Level, id int64) error {
	code, err := svc.repo.GetCodeByID(ctx, level, id)
	if err != nil {
		return err
	}
	if code.IsUsed {
		return ErrAlreadyUsedCode
	}
	return svc.repo.DeleteCode(ctx, level, id)
}

func (svc *Service) checkContentExists(ctx context.Context, level Level, contentID int64) error {
	var err error
	switch level {
	case LevelSubject:
		_, err = svc.contentRepo.GetSubjectByID(ctx, contentID)
	case LevelSection:
		_, err = svc.contentRepo.GetSectionByID(ctx, contentID)
	default:
		_, err = svc.contentRepo.GetLessonByID(ctx, contentID)
	}
	return err
}

// UnlockedLessons returns every lesson the student can currently access, across
// all subjects; consumed by the custom-test builder.
func (svc *Service) UnlockedLessons(ctx context.Context, studentID string) ([]content.Lesson, error) {
	subjects, err := svc.contentRepo.QueryAllSubjects(ctx)
	if err != nil {
		return nil, err
	}
	var unlocked []content.Lesson
	for _, sub := range subjects {
		sections, err := svc.contentRepo.SectionsBySubject(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		for _, sec := range sections {
			tree, err := svc.contentRepo.GetSectionTree(ctx, sec.ID)
			if err != nil {
				return nil, err
			}
			accessCtx, err := svc.Compute(ctx, tree, studentID)
			if err != nil {
				return nil, err
			}
			for _, les := range tree.Lessons {
				if accessCtx.LessonOpen(les) {
					unlocked = append(unlocked, les)
				}
			}
		}
	}
	return unlocked, nil
}
