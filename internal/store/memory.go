package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"exproctor/pkg/types"
)

// MemoryEvidenceRepository is an in-process ledger with the same semantics as
// EvidenceRepository. One mutex covers the finished check and the insert.
type MemoryEvidenceRepository struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]types.Evidence
	now    func() time.Time
}

func NewMemoryEvidenceRepository() *MemoryEvidenceRepository {
	return &MemoryEvidenceRepository{
		rows: make(map[int64]types.Evidence),
		now:  time.Now,
	}
}

func (r *MemoryEvidenceRepository) CountFinishedEvidence(ctx context.Context, key types.EvidenceKey) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.countFinishedLocked(key), nil
}

func (r *MemoryEvidenceRepository) countFinishedLocked(key types.EvidenceKey) int {
	count := 0
	for _, row := range r.rows {
		if row.QuizFinished && row.Key() == key {
			count++
		}
	}
	return count
}

func (r *MemoryEvidenceRepository) CreateEvidence(ctx context.Context, evidence *types.Evidence) (int64, error) {
	if err := evidence.Validate(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.countFinishedLocked(evidence.Key()) > 0 {
		return 0, types.NewError(types.ErrConflict, "attempt %d already finished", evidence.AttemptID)
	}

	r.nextID++
	evidence.ID = r.nextID
	if evidence.CreatedAt.IsZero() {
		evidence.CreatedAt = r.now()
	}
	evidence.ModifiedAt = evidence.CreatedAt
	evidence.QuizFinished = false

	r.rows[evidence.ID] = *evidence

	return evidence.ID, nil
}

func (r *MemoryEvidenceRepository) MarkFinished(ctx context.Context, attempt types.AttemptKey) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	latest := make(map[types.EvidenceType]int64)
	for id, row := range r.rows {
		if row.Key().AttemptKey != attempt || row.QuizFinished {
			continue
		}
		if r.countFinishedLocked(row.Key()) > 0 {
			continue
		}
		if id > latest[row.EvidenceType] {
			latest[row.EvidenceType] = id
		}
	}

	now := r.now()
	for _, id := range latest {
		row := r.rows[id]
		row.QuizFinished = true
		row.ModifiedAt = now
		r.rows[id] = row
	}

	return len(latest) > 0, nil
}

func (r *MemoryEvidenceRepository) Evidence(ctx context.Context, id int64) (*types.Evidence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return nil, types.ErrEvidenceNotFound
	}
	return &row, nil
}

func (r *MemoryEvidenceRepository) EvidenceByAttempt(ctx context.Context, attempt types.AttemptKey) ([]*types.Evidence, error) {
	return r.filter(func(e *types.Evidence) bool {
		return e.Key().AttemptKey == attempt
	}), nil
}

func (r *MemoryEvidenceRepository) EvidenceByUser(ctx context.Context, courseID, quizID, userID int64) ([]*types.Evidence, error) {
	return r.filter(func(e *types.Evidence) bool {
		return e.CourseID == courseID && e.QuizID == quizID && e.UserID == userID
	}), nil
}

func (r *MemoryEvidenceRepository) EvidenceByKey(ctx context.Context, courseID, quizID, userID int64, evidenceType types.EvidenceType) ([]*types.Evidence, error) {
	return r.filter(func(e *types.Evidence) bool {
		return e.CourseID == courseID && e.QuizID == quizID && e.UserID == userID && e.EvidenceType == evidenceType
	}), nil
}

// filter returns copies ordered by id.
func (r *MemoryEvidenceRepository) filter(match func(e *types.Evidence) bool) []*types.Evidence {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*types.Evidence, 0)
	for _, row := range r.rows {
		row := row
		if match(&row) {
			out = append(out, &row)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *MemoryEvidenceRepository) DistinctByUser(ctx context.Context, courseID, quizID int64) ([]*types.EvidenceSummary, error) {
	rows := r.filter(func(e *types.Evidence) bool {
		return e.CourseID == courseID && e.QuizID == quizID
	})

	byUser := make(map[int64]*types.EvidenceSummary)
	seen := make(map[int64]map[types.EvidenceType]bool)
	for _, row := range rows {
		summary, ok := byUser[row.UserID]
		if !ok {
			summary = &types.EvidenceSummary{UserID: row.UserID}
			byUser[row.UserID] = summary
			seen[row.UserID] = make(map[types.EvidenceType]bool)
		}
		summary.EvidenceCount++
		if row.CreatedAt.After(summary.LastCreatedAt) {
			summary.LastCreatedAt = row.CreatedAt
		}
		if !seen[row.UserID][row.EvidenceType] {
			seen[row.UserID][row.EvidenceType] = true
			summary.EvidenceTypes = append(summary.EvidenceTypes, row.EvidenceType)
		}
	}

	out := make([]*types.EvidenceSummary, 0, len(byUser))
	for _, summary := range byUser {
		sort.Slice(summary.EvidenceTypes, func(i, j int) bool {
			return summary.EvidenceTypes[i] < summary.EvidenceTypes[j]
		})
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })

	return out, nil
}

func (r *MemoryEvidenceRepository) LatestContainer(ctx context.Context, attempt types.AttemptKey, method types.StorageMethod) (string, error) {
	rows := r.filter(func(e *types.Evidence) bool {
		return e.Key().AttemptKey == attempt && e.StorageMethod == method
	})
	if len(rows) == 0 {
		return "", nil
	}
	return rows[len(rows)-1].Container, nil
}

func (r *MemoryEvidenceRepository) DeleteEvidence(ctx context.Context, id int64) (*types.Evidence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return nil, types.ErrEvidenceNotFound
	}
	delete(r.rows, id)

	return &row, nil
}

func (r *MemoryEvidenceRepository) DeleteEvidenceByKey(ctx context.Context, courseID, quizID, userID int64, evidenceType types.EvidenceType) ([]*types.Evidence, error) {
	return r.deleteWhere(func(e *types.Evidence) bool {
		return e.CourseID == courseID && e.QuizID == quizID && e.UserID == userID && e.EvidenceType == evidenceType
	}), nil
}

func (r *MemoryEvidenceRepository) deleteWhere(match func(e *types.Evidence) bool) []*types.Evidence {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*types.Evidence, 0)
	for id, row := range r.rows {
		row := row
		if match(&row) {
			delete(r.rows, id)
			out = append(out, &row)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *MemoryEvidenceRepository) CountByContainer(ctx context.Context, method types.StorageMethod, container string) (int, error) {
	return len(r.filter(func(e *types.Evidence) bool {
		return e.StorageMethod == method && e.Container == container
	})), nil
}

func (r *MemoryEvidenceRepository) Containers(ctx context.Context, method types.StorageMethod) ([]string, error) {
	rows := r.filter(func(e *types.Evidence) bool { return e.StorageMethod == method })

	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, row := range rows {
		if !seen[row.Container] {
			seen[row.Container] = true
			out = append(out, row.Container)
		}
	}
	sort.Strings(out)

	return out, nil
}

func (r *MemoryEvidenceRepository) DeleteByContainer(ctx context.Context, method types.StorageMethod, container string) (int64, error) {
	deleted := r.deleteWhere(func(e *types.Evidence) bool {
		return e.StorageMethod == method && e.Container == container
	})
	return int64(len(deleted)), nil
}
