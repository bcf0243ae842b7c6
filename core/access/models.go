package access

import "time"

// Level identifies which tier of the content hierarchy an activation or
// activation code applies to.
type Level string

const (
	LevelSubject Level = "subject"
	LevelSection Level = "section"
	LevelLesson  Level = "lesson"
)

// Activation is a per-student grant on a content item. A single mutable row
// exists per (content, student) pair; revocation flips Active off, keeping the
// row (and its timestamp) around instead of appending history rows.
type Activation struct {
	ContentID   int64     `json:"content_id"`
	StudentID   string    `json:"student_id"`
	Active      bool      `json:"active"`
	ActivatedAt time.Time `json:"activated_at"` // UTC
}

// Code is a one-time redemption token scoped to a (content item, student) pair.
// Code values are unique across all codes of the same Level.
type Code struct {
	ID        int64      `json:"id"`
	ContentID int64      `json:"content_id"`
	StudentID string     `json:"student_id"`
	Code      string     `json:"code"`
	IsUsed    bool       `json:"is_used"`
	CreatedAt time.Time  `json:"created_at"` // UTC
	UsedAt    *time.Time `json:"used_at"`    // UTC
}

// RedeemCode is the student input for code redemption.
type RedeemCode struct {
	Code string `json:"code" validate:"required,len=6"`
}

// NewCode is the teacher input for code issuance.
type NewCode struct {
	StudentID string `json:"student_id" validate:"required"`
}
