package types

import (
	"fmt"
	"strings"
	"time"
)

type EvidenceType string

const (
	EvidenceTypeWebcam EvidenceType = "webcam"
	EvidenceTypeScreen EvidenceType = "screen"
)

var AllEvidenceTypes = []EvidenceType{EvidenceTypeWebcam, EvidenceTypeScreen}

func (t EvidenceType) Valid() bool {
	return t == EvidenceTypeWebcam || t == EvidenceTypeScreen
}

func ParseEvidenceType(s string) (EvidenceType, error) {
	t := EvidenceType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", NewError(ErrValidation, "unknown evidence type %q", s)
	}
	return t, nil
}

// StorageMethod is snapshotted onto every record at creation so that later
// reads and deletes go to the backend that actually holds the blob.
type StorageMethod string

const (
	StorageMethodLocal StorageMethod = "local"
	StorageMethodS3    StorageMethod = "s3"
)

func ParseStorageMethod(s string) (StorageMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return StorageMethodLocal, nil
	case "s3", "aws(s3)", "aws":
		return StorageMethodS3, nil
	}
	return "", fmt.Errorf("unknown storage method %q", s)
}

// Locator points at a stored blob. URL is the non-expiring local URL for
// local storage and the plain object URL for S3.
type Locator struct {
	Container string `json:"container"`
	Key       string `json:"key"`
	URL       string `json:"url,omitempty"`
}

// AttemptKey identifies one exam session.
type AttemptKey struct {
	CourseID  int64 `json:"courseid" form:"courseid"`
	QuizID    int64 `json:"quizid" form:"quizid"`
	UserID    int64 `json:"userid" form:"userid"`
	AttemptID int64 `json:"attemptid" form:"attemptid"`
}

func (k AttemptKey) Validate() error {
	switch {
	case k.CourseID <= 0:
		return NewError(ErrValidation, "courseid is required")
	case k.QuizID <= 0:
		return NewError(ErrValidation, "quizid is required")
	case k.UserID <= 0:
		return NewError(ErrValidation, "userid is required")
	case k.AttemptID <= 0:
		return NewError(ErrValidation, "attemptid is required")
	}
	return nil
}

func (k AttemptKey) String() string {
	return fmt.Sprintf("%d:%d:%d:%d", k.CourseID, k.QuizID, k.UserID, k.AttemptID)
}

// EvidenceKey is the idempotency key: at most one finished record exists per key.
type EvidenceKey struct {
	AttemptKey
	EvidenceType EvidenceType
}

type Evidence struct {
	ID            int64         `db:"id" json:"id"`
	CourseID      int64         `db:"course_id" json:"courseId"`
	QuizID        int64         `db:"quiz_id" json:"quizId"`
	UserID        int64         `db:"user_id" json:"userId"`
	AttemptID     int64         `db:"attempt_id" json:"attemptId"`
	EvidenceType  EvidenceType  `db:"evidence_type" json:"evidenceType"`
	StorageMethod StorageMethod `db:"storage_method" json:"storageMethod"`
	Container     string        `db:"container" json:"container"`
	ObjectKey     string        `db:"object_key" json:"objectKey"`
	URL           string        `db:"url" json:"url"`
	QuizFinished  bool          `db:"quiz_finished" json:"quizFinished"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
	ModifiedAt    time.Time     `db:"modified_at" json:"modifiedAt"`
}

func (e *Evidence) Key() EvidenceKey {
	return EvidenceKey{
		AttemptKey: AttemptKey{
			CourseID:  e.CourseID,
			QuizID:    e.QuizID,
			UserID:    e.UserID,
			AttemptID: e.AttemptID,
		},
		EvidenceType: e.EvidenceType,
	}
}

func (e *Evidence) Locator() Locator {
	return Locator{Container: e.Container, Key: e.ObjectKey, URL: e.URL}
}

// Validate checks a record before it is inserted.
func (e *Evidence) Validate() error {
	if err := e.Key().AttemptKey.Validate(); err != nil {
		return err
	}
	if !e.EvidenceType.Valid() {
		return NewError(ErrValidation, "unknown evidence type %q", e.EvidenceType)
	}
	if e.StorageMethod != StorageMethodLocal && e.StorageMethod != StorageMethodS3 {
		return NewError(ErrValidation, "unknown storage method %q", e.StorageMethod)
	}
	if e.Container == "" || e.ObjectKey == "" {
		return NewError(ErrValidation, "evidence locator is incomplete")
	}
	return nil
}

// EvidenceSummary is one row of the per-quiz report: a user and what was captured.
type EvidenceSummary struct {
	UserID        int64          `db:"user_id" json:"userId"`
	EvidenceTypes []EvidenceType `db:"evidence_types" json:"evidenceTypes"`
	EvidenceCount int64          `db:"evidence_count" json:"evidenceCount"`
	LastCreatedAt time.Time      `db:"last_created_at" json:"lastCreatedAt"`
}

// SubmitRequest is what the capture client sends for each frame.
type SubmitRequest struct {
	AttemptKey
	EvidenceType  EvidenceType `json:"-" form:"-"`
	Payload       string       `json:"payload" form:"payload"`
	ContainerHint string       `json:"bucketname,omitempty" form:"bucketname"`
}

// SubmitResult mirrors the RPC response: a nil ID with warnings is a
// successful no-op, not a failure.
type SubmitResult struct {
	ID       *int64   `json:"id"`
	Warnings []string `json:"warnings"`
}

const (
	WarningQuizFinished      = "Quiz already finished"
	WarningModerationSkipped = "Moderation unavailable, frame skipped"
)

// EvidenceView is a record plus a URL the report UI can display right now.
// For S3 records DisplayURL is presigned and expires.
type EvidenceView struct {
	*Evidence
	DisplayURL string `json:"displayUrl"`
}
