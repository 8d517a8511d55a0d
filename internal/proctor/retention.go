package proctor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"exproctor/internal/storage"
	"exproctor/pkg/types"

	"github.com/sirupsen/logrus"
)

// RetentionManager deletes evidence. A ledger row is only removed after the
// delete of its blob succeeded.
type RetentionManager struct {
	logger           *logrus.Logger
	ledger           Ledger
	backends         *storage.Backends
	cache            ContainerCache
	storageTimeout   time.Duration
	containerTimeout time.Duration
}

func NewRetentionManager(
	logger *logrus.Logger,
	ledger Ledger,
	backends *storage.Backends,
	cache ContainerCache,
	storageTimeout, containerTimeout time.Duration,
) *RetentionManager {
	if storageTimeout <= 0 {
		storageTimeout = 15 * time.Second
	}
	if containerTimeout <= 0 {
		containerTimeout = storageTimeout + 2*time.Minute
	}

	return &RetentionManager{
		logger:           logger,
		ledger:           ledger,
		backends:         backends,
		cache:            cache,
		storageTimeout:   storageTimeout,
		containerTimeout: containerTimeout,
	}
}

func (m *RetentionManager) deleteBlob(ctx context.Context, evidence *types.Evidence) error {
	store, err := m.backends.For(evidence.StorageMethod)
	if err != nil {
		return err
	}

	dctx, cancel := context.WithTimeout(ctx, m.storageTimeout)
	defer cancel()

	return store.Delete(dctx, evidence.Locator())
}

// DeleteEvidence removes one record and its blob.
func (m *RetentionManager) DeleteEvidence(ctx context.Context, id int64) error {
	evidence, err := m.ledger.Evidence(ctx, id)
	if err != nil {
		return ledgerErr("load evidence", err)
	}

	if err := m.deleteBlob(ctx, evidence); err != nil {
		m.logger.WithError(err).WithField("evidence_id", id).Error("failed to delete evidence object")
		return err
	}

	if _, err := m.ledger.DeleteEvidence(ctx, id); err != nil && !errors.Is(err, types.ErrEvidenceNotFound) {
		return ledgerErr("delete evidence", err)
	}

	m.logger.WithField("evidence_id", id).Info("evidence deleted")
	return nil
}

// DeleteAllForUser removes every record of one evidence type for a user in a
// quiz and returns how many were deleted. Records whose blob could not be
// deleted are kept and reported in the returned error. Containers left
// without records are removed on a best-effort basis.
func (m *RetentionManager) DeleteAllForUser(ctx context.Context, courseID, quizID, userID int64, evidenceType types.EvidenceType) (int, error) {
	if !evidenceType.Valid() {
		return 0, types.NewError(types.ErrValidation, "unknown evidence type %q", evidenceType)
	}

	records, err := m.ledger.EvidenceByKey(ctx, courseID, quizID, userID, evidenceType)
	if err != nil {
		return 0, ledgerErr("load evidence", err)
	}

	type containerRef struct {
		method types.StorageMethod
		name   string
	}

	var (
		deleted  int
		errs     []error
		touched  = make(map[containerRef]struct{})
		ordering []containerRef
	)

	for _, evidence := range records {
		if err := m.deleteBlob(ctx, evidence); err != nil {
			errs = append(errs, fmt.Errorf("evidence %d: %w", evidence.ID, err))
			continue
		}

		if _, err := m.ledger.DeleteEvidence(ctx, evidence.ID); err != nil && !errors.Is(err, types.ErrEvidenceNotFound) {
			errs = append(errs, fmt.Errorf("evidence %d: %w", evidence.ID, ledgerErr("delete evidence", err)))
			continue
		}
		deleted++

		ref := containerRef{method: evidence.StorageMethod, name: evidence.Container}
		if _, ok := touched[ref]; !ok {
			touched[ref] = struct{}{}
			ordering = append(ordering, ref)
		}
	}

	for _, ref := range ordering {
		m.deleteIfEmpty(ctx, ref.method, ref.name)
	}

	m.logger.WithFields(logrus.Fields{
		"course_id":     courseID,
		"quiz_id":       quizID,
		"user_id":       userID,
		"evidence_type": evidenceType,
		"deleted":       deleted,
		"failed":        len(errs),
	}).Info("user evidence deleted")

	return deleted, errors.Join(errs...)
}

func (m *RetentionManager) deleteIfEmpty(ctx context.Context, method types.StorageMethod, container string) {
	entry := m.logger.WithField("container", container).WithField("storage_method", method)

	remaining, err := m.ledger.CountByContainer(ctx, method, container)
	if err != nil {
		entry.WithError(err).Warn("failed to count container records")
		return
	}
	if remaining > 0 {
		return
	}

	store, err := m.backends.For(method)
	if err != nil {
		entry.WithError(err).Warn("no backend for empty container")
		return
	}

	m.forget(method, container)

	cctx, cancel := context.WithTimeout(ctx, m.containerTimeout)
	defer cancel()

	if err := store.DeleteContainer(cctx, container); err != nil {
		entry.WithError(err).Warn("failed to delete empty container")
	}
}

func (m *RetentionManager) forget(method types.StorageMethod, container string) {
	if m.cache != nil {
		m.cache.ForgetContainer(method, container)
	}
}

// TeardownPlugin deletes every container the ledger knows about and every
// prefixed container the backends report, along with their records. Each
// container is handled independently; failures are joined.
func (m *RetentionManager) TeardownPlugin(ctx context.Context) error {
	var errs []error

	for _, method := range []types.StorageMethod{types.StorageMethodLocal, types.StorageMethodS3} {
		names := make(map[string]struct{})

		known, err := m.ledger.Containers(ctx, method)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", method, ledgerErr("list ledger containers", err)))
		}
		for _, name := range known {
			names[name] = struct{}{}
		}

		store, err := m.backends.For(method)
		if err != nil {
			if len(names) > 0 {
				errs = append(errs, fmt.Errorf("%s: %d containers without a configured backend: %w", method, len(names), err))
			}
			continue
		}

		lctx, cancel := context.WithTimeout(ctx, m.storageTimeout)
		listed, err := store.ListContainers(lctx)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", method, err))
		}
		for _, name := range listed {
			names[name] = struct{}{}
		}

		sorted := make([]string, 0, len(names))
		for name := range names {
			sorted = append(sorted, name)
		}
		sort.Strings(sorted)

		for _, name := range sorted {
			if err := m.teardownContainer(ctx, store, name); err != nil {
				errs = append(errs, fmt.Errorf("%s container %s: %w", method, name, err))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		m.logger.WithError(err).Error("teardown finished with failures")
		return err
	}

	m.logger.Info("teardown finished")
	return nil
}

func (m *RetentionManager) teardownContainer(ctx context.Context, store storage.ObjectStore, name string) error {
	method := store.Method()
	m.forget(method, name)

	cctx, cancel := context.WithTimeout(ctx, m.containerTimeout)
	err := store.DeleteContainer(cctx, name)
	cancel()
	if err != nil {
		return err
	}

	removed, err := m.ledger.DeleteByContainer(ctx, method, name)
	if err != nil {
		return ledgerErr("delete container records", err)
	}

	m.logger.WithFields(logrus.Fields{
		"storage_method": method,
		"container":      name,
		"records":        removed,
	}).Info("container torn down")

	return nil
}
