package proctor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"exproctor/internal/moderation"
	"exproctor/internal/storage"
	"exproctor/internal/utils"
	"exproctor/pkg/types"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const containerIDSize = 20

type IntakeConfig struct {
	StorageMethod     types.StorageMethod
	BucketPrefix      string
	StorageTimeout    time.Duration
	ContainerTimeout  time.Duration
	ModerationTimeout time.Duration
}

func (c *IntakeConfig) setDefaults() {
	if c.StorageTimeout <= 0 {
		c.StorageTimeout = 15 * time.Second
	}
	if c.ContainerTimeout <= 0 {
		c.ContainerTimeout = c.StorageTimeout + 2*time.Minute
	}
	if c.ModerationTimeout <= 0 {
		c.ModerationTimeout = 10 * time.Second
	}
}

// IntakeService accepts frames from the capture client and turns them into
// stored blobs plus ledger records.
type IntakeService struct {
	config   IntakeConfig
	logger   *logrus.Logger
	ledger   Ledger
	backends *storage.Backends
	gate     *moderation.Gate
	settings QuizSettingsReader

	// containers maps method/attempt to a container created by this process
	// that the ledger may not know about yet.
	containers sync.Map
	creating   singleflight.Group

	now func() time.Time
}

func NewIntakeService(
	config IntakeConfig,
	logger *logrus.Logger,
	ledger Ledger,
	backends *storage.Backends,
	gate *moderation.Gate,
	settings QuizSettingsReader,
) *IntakeService {
	config.setDefaults()

	return &IntakeService{
		config:   config,
		logger:   logger,
		ledger:   ledger,
		backends: backends,
		gate:     gate,
		settings: settings,
		now:      time.Now,
	}
}

func skipped(warnings ...string) *types.SubmitResult {
	if warnings == nil {
		warnings = []string{}
	}
	return &types.SubmitResult{ID: nil, Warnings: warnings}
}

// Submit stores one frame. A nil ID with warnings is a successful no-op.
func (s *IntakeService) Submit(ctx context.Context, req *types.SubmitRequest) (*types.SubmitResult, error) {
	if err := s.validate(ctx, req); err != nil {
		return nil, err
	}

	entry := s.logger.WithFields(logrus.Fields{
		"attempt":       req.AttemptKey.String(),
		"evidence_type": req.EvidenceType,
	})

	key := types.EvidenceKey{AttemptKey: req.AttemptKey, EvidenceType: req.EvidenceType}
	finished, err := s.ledger.CountFinishedEvidence(ctx, key)
	if err != nil {
		return nil, ledgerErr("count finished evidence", err)
	}
	if finished > 0 {
		entry.Debug("attempt already finished, frame ignored")
		return skipped(types.WarningQuizFinished), nil
	}

	image, contentType, err := DecodePayload(req.Payload)
	if err != nil {
		return nil, err
	}

	if s.gate.Applies(req.EvidenceType) {
		mctx, cancel := context.WithTimeout(ctx, s.config.ModerationTimeout)
		keep, err := s.gate.Filter.ShouldPersist(mctx, image)
		cancel()
		if errors.Is(err, types.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			entry.WithError(err).Warn("moderation timed out")
			return nil, types.NewError(types.ErrTimeout, "moderation: deadline exceeded")
		}
		if err != nil {
			entry.WithError(err).Warn("moderation unavailable, frame skipped")
			return skipped(types.WarningModerationSkipped), nil
		}
		if !keep {
			entry.Debug("frame passed moderation, not stored")
			return skipped(), nil
		}
	}

	store, err := s.backends.For(s.config.StorageMethod)
	if err != nil {
		return nil, err
	}

	container, err := s.resolveContainer(ctx, store, req)
	if err != nil {
		entry.WithError(err).Error("failed to resolve evidence container")
		return nil, err
	}
	cacheKey := containerCacheKey(store.Method(), req.AttemptKey)

	now := s.now()
	objectKey := ObjectKey(req.EvidenceType, req.AttemptKey, now, contentType)

	pctx, cancel := context.WithTimeout(ctx, s.config.StorageTimeout)
	loc, err := store.Put(pctx, container, objectKey, image, contentType)
	cancel()
	if err != nil {
		// the container may have been removed by another process; the next
		// frame resolves it again
		s.containers.CompareAndDelete(cacheKey, container)
		entry.WithError(err).WithField("container", container).Error("failed to store frame")
		return nil, err
	}

	evidence := &types.Evidence{
		CourseID:      req.CourseID,
		QuizID:        req.QuizID,
		UserID:        req.UserID,
		AttemptID:     req.AttemptID,
		EvidenceType:  req.EvidenceType,
		StorageMethod: store.Method(),
		Container:     loc.Container,
		ObjectKey:     loc.Key,
		URL:           loc.URL,
		CreatedAt:     now,
	}

	id, err := s.ledger.CreateEvidence(ctx, evidence)
	if err != nil {
		s.discard(store, loc)
		if errors.Is(err, types.ErrConflict) {
			entry.Debug("attempt finished during upload, frame discarded")
			return skipped(types.WarningQuizFinished), nil
		}
		entry.WithError(err).Error("failed to record evidence")
		return nil, ledgerErr("create evidence", err)
	}

	// the ledger names the container from now on
	s.containers.CompareAndDelete(cacheKey, container)

	entry.WithField("evidence_id", id).Debug("evidence stored")

	return &types.SubmitResult{ID: &id, Warnings: []string{}}, nil
}

func (s *IntakeService) validate(ctx context.Context, req *types.SubmitRequest) error {
	if req == nil {
		return types.NewError(types.ErrValidation, "request is required")
	}
	if err := req.AttemptKey.Validate(); err != nil {
		return err
	}
	if !req.EvidenceType.Valid() {
		return types.NewError(types.ErrValidation, "unknown evidence type %q", req.EvidenceType)
	}
	if strings.TrimSpace(req.Payload) == "" {
		return types.NewError(types.ErrValidation, "payload is required")
	}
	if req.ContainerHint != "" && !storage.ValidContainerName(req.ContainerHint) {
		return types.NewError(types.ErrValidation, "invalid bucket name %q", req.ContainerHint)
	}

	if s.settings == nil {
		return nil
	}

	settings, err := s.settings.QuizSettings(ctx, req.QuizID)
	if err != nil {
		if errors.Is(err, types.ErrQuizSettingsNotFound) {
			return nil
		}
		return ledgerErr("load quiz settings", err)
	}
	if !settings.Enabled(req.EvidenceType) {
		return types.NewError(types.ErrValidation, "%s evidence is not enabled for quiz %d", req.EvidenceType, req.QuizID)
	}

	return nil
}

func containerCacheKey(method types.StorageMethod, attempt types.AttemptKey) string {
	return string(method) + "/" + attempt.String()
}

// resolveContainer returns the attempt's container, creating one if this is
// the attempt's first stored frame. Concurrent first frames share a single
// creation. The process cache only bridges the gap between creating a
// container and recording the first evidence in it.
func (s *IntakeService) resolveContainer(ctx context.Context, store storage.ObjectStore, req *types.SubmitRequest) (string, error) {
	method := store.Method()
	cacheKey := containerCacheKey(method, req.AttemptKey)

	container, err := s.ledger.LatestContainer(ctx, req.AttemptKey, method)
	if err != nil {
		return "", ledgerErr("find attempt container", err)
	}
	if container != "" {
		return container, nil
	}

	if v, ok := s.containers.Load(cacheKey); ok {
		return v.(string), nil
	}

	v, err, _ := s.creating.Do(cacheKey, func() (any, error) {
		if v, ok := s.containers.Load(cacheKey); ok {
			return v, nil
		}

		// shared by every waiting frame, so it must outlive the first caller
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ContainerTimeout)
		defer cancel()

		// a concurrent frame may have been recorded since the first lookup
		container, err := s.ledger.LatestContainer(cctx, req.AttemptKey, method)
		if err != nil {
			return nil, ledgerErr("find attempt container", err)
		}
		if container != "" {
			return container, nil
		}

		name := s.containerName(req.ContainerHint)
		if err := store.CreateContainer(cctx, name); err != nil {
			return nil, err
		}

		s.containers.Store(cacheKey, name)
		return name, nil
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

func (s *IntakeService) containerName(hint string) string {
	if hint != "" && strings.HasPrefix(hint, s.config.BucketPrefix) && storage.ValidContainerName(hint) {
		return hint
	}
	return s.config.BucketPrefix + utils.LowerNanoID(containerIDSize)
}

// ForgetContainer drops cached references to a deleted container.
func (s *IntakeService) ForgetContainer(method types.StorageMethod, container string) {
	prefix := string(method) + "/"
	s.containers.Range(func(k, v any) bool {
		if strings.HasPrefix(k.(string), prefix) && v.(string) == container {
			s.containers.Delete(k)
		}
		return true
	})
}

// discard removes a blob that has no ledger record. It runs detached from the
// request context so a cancelled request still cleans up.
func (s *IntakeService) discard(store storage.ObjectStore, loc types.Locator) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.StorageTimeout)
	defer cancel()

	if err := store.Delete(ctx, loc); err != nil {
		s.logger.WithError(err).
			WithField("container", loc.Container).
			WithField("key", loc.Key).
			Warn("failed to discard unrecorded evidence object")
	}
}

// MarkQuizFinished flips the latest open record of each evidence type of the
// attempt. It reports false when there was nothing to flip.
func (s *IntakeService) MarkQuizFinished(ctx context.Context, attempt types.AttemptKey) (bool, error) {
	if err := attempt.Validate(); err != nil {
		return false, err
	}

	ok, err := s.ledger.MarkFinished(ctx, attempt)
	if err != nil {
		return false, ledgerErr("mark attempt finished", err)
	}

	s.logger.WithField("attempt", attempt.String()).WithField("marked", ok).Info("attempt finished")
	return ok, nil
}
