package proctor

import (
	"context"
	"time"

	"exproctor/internal/storage"
	"exproctor/pkg/types"

	"github.com/sirupsen/logrus"
)

// ReportService serves the report UI. Display URLs come from the backend the
// record was stored with, whatever the current storage method is.
type ReportService struct {
	logger         *logrus.Logger
	ledger         Ledger
	backends       *storage.Backends
	presignTTL     time.Duration
	storageTimeout time.Duration
}

func NewReportService(logger *logrus.Logger, ledger Ledger, backends *storage.Backends, presignTTL, storageTimeout time.Duration) *ReportService {
	if presignTTL <= 0 {
		presignTTL = storage.DefaultURLTTL
	}
	if storageTimeout <= 0 {
		storageTimeout = 15 * time.Second
	}

	return &ReportService{
		logger:         logger,
		ledger:         ledger,
		backends:       backends,
		presignTTL:     presignTTL,
		storageTimeout: storageTimeout,
	}
}

func (r *ReportService) displayURL(ctx context.Context, evidence *types.Evidence) (string, error) {
	store, err := r.backends.For(evidence.StorageMethod)
	if err != nil {
		return "", err
	}

	uctx, cancel := context.WithTimeout(ctx, r.storageTimeout)
	defer cancel()

	return store.URL(uctx, evidence.Locator(), r.presignTTL)
}

// views attaches display URLs. A record whose URL cannot be produced is still
// listed, with an empty DisplayURL.
func (r *ReportService) views(ctx context.Context, records []*types.Evidence) []types.EvidenceView {
	out := make([]types.EvidenceView, 0, len(records))
	for _, evidence := range records {
		url, err := r.displayURL(ctx, evidence)
		if err != nil {
			r.logger.WithError(err).WithField("evidence_id", evidence.ID).Warn("failed to build display url")
		}
		out = append(out, types.EvidenceView{Evidence: evidence, DisplayURL: url})
	}
	return out
}

func (r *ReportService) EvidenceByAttempt(ctx context.Context, attempt types.AttemptKey) ([]types.EvidenceView, error) {
	if err := attempt.Validate(); err != nil {
		return nil, err
	}

	records, err := r.ledger.EvidenceByAttempt(ctx, attempt)
	if err != nil {
		return nil, ledgerErr("load attempt evidence", err)
	}

	return r.views(ctx, records), nil
}

func (r *ReportService) EvidenceByUser(ctx context.Context, courseID, quizID, userID int64) ([]types.EvidenceView, error) {
	records, err := r.ledger.EvidenceByUser(ctx, courseID, quizID, userID)
	if err != nil {
		return nil, ledgerErr("load user evidence", err)
	}

	return r.views(ctx, records), nil
}

func (r *ReportService) DistinctByUser(ctx context.Context, courseID, quizID int64) ([]*types.EvidenceSummary, error) {
	summaries, err := r.ledger.DistinctByUser(ctx, courseID, quizID)
	if err != nil {
		return nil, ledgerErr("load evidence summaries", err)
	}
	return summaries, nil
}

// EvidenceURL returns the record and a URL to display it.
func (r *ReportService) EvidenceURL(ctx context.Context, id int64) (*types.EvidenceView, error) {
	evidence, err := r.ledger.Evidence(ctx, id)
	if err != nil {
		return nil, ledgerErr("load evidence", err)
	}

	url, err := r.displayURL(ctx, evidence)
	if err != nil {
		return nil, err
	}

	return &types.EvidenceView{Evidence: evidence, DisplayURL: url}, nil
}
