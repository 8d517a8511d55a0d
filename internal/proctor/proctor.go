// Package proctor implements evidence intake, retention and the report read
// paths on top of a ledger and the storage backends.
package proctor

import (
	"context"
	"errors"

	"exproctor/pkg/types"
)

// Ledger is the durable record of evidence. Both store.EvidenceRepository and
// store.MemoryEvidenceRepository satisfy it.
type Ledger interface {
	CountFinishedEvidence(ctx context.Context, key types.EvidenceKey) (int, error)
	CreateEvidence(ctx context.Context, evidence *types.Evidence) (int64, error)
	MarkFinished(ctx context.Context, attempt types.AttemptKey) (bool, error)

	Evidence(ctx context.Context, id int64) (*types.Evidence, error)
	EvidenceByAttempt(ctx context.Context, attempt types.AttemptKey) ([]*types.Evidence, error)
	EvidenceByUser(ctx context.Context, courseID, quizID, userID int64) ([]*types.Evidence, error)
	EvidenceByKey(ctx context.Context, courseID, quizID, userID int64, evidenceType types.EvidenceType) ([]*types.Evidence, error)
	DistinctByUser(ctx context.Context, courseID, quizID int64) ([]*types.EvidenceSummary, error)
	LatestContainer(ctx context.Context, attempt types.AttemptKey, method types.StorageMethod) (string, error)

	DeleteEvidence(ctx context.Context, id int64) (*types.Evidence, error)
	DeleteEvidenceByKey(ctx context.Context, courseID, quizID, userID int64, evidenceType types.EvidenceType) ([]*types.Evidence, error)
	CountByContainer(ctx context.Context, method types.StorageMethod, container string) (int, error)
	Containers(ctx context.Context, method types.StorageMethod) ([]string, error)
	DeleteByContainer(ctx context.Context, method types.StorageMethod, container string) (int64, error)
}

type QuizSettingsReader interface {
	QuizSettings(ctx context.Context, quizID int64) (*types.QuizSettings, error)
}

// ContainerCache is told about containers that no longer exist.
type ContainerCache interface {
	ForgetContainer(method types.StorageMethod, container string)
}

// ledgerErr keeps classified errors as they are and reports anything else
// from the ledger as a storage failure.
func ledgerErr(op string, err error) error {
	var typed *types.Error
	switch {
	case errors.As(err, &typed),
		errors.Is(err, types.ErrEvidenceNotFound),
		errors.Is(err, types.ErrQuizSettingsNotFound):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewError(types.ErrTimeout, "%s: deadline exceeded", op)
	}
	return types.NewError(types.ErrStorage, "%s: %s", op, err.Error())
}
