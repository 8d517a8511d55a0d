package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"exproctor/internal/utils"
	"exproctor/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const evidenceTableName = "exproctor.evidence"

var evidenceColumns = utils.StructTagValues(types.Evidence{})

// Flips the latest open row of every evidence type of the attempt, skipping
// types that already have a finished row.
const markFinishedQuery = `
	UPDATE exproctor.evidence
	SET quiz_finished = TRUE, modified_at = $5
	WHERE id IN (
		SELECT DISTINCT ON (o.evidence_type) o.id
		FROM exproctor.evidence o
		WHERE o.course_id = $1 AND o.quiz_id = $2 AND o.user_id = $3 AND o.attempt_id = $4
			AND NOT o.quiz_finished
			AND NOT EXISTS (
				SELECT 1 FROM exproctor.evidence f
				WHERE f.course_id = o.course_id AND f.quiz_id = o.quiz_id AND f.user_id = o.user_id
					AND f.attempt_id = o.attempt_id AND f.evidence_type = o.evidence_type
					AND f.quiz_finished
			)
		ORDER BY o.evidence_type, o.id DESC
	)`

const attemptLockQuery = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

type EvidenceRepository struct {
	pool *pgxpool.Pool
}

func NewEvidenceRepository(pool *pgxpool.Pool) *EvidenceRepository {
	return &EvidenceRepository{pool: pool}
}

func keyWhere(key types.EvidenceKey) sq.Eq {
	return sq.Eq{
		"course_id":     key.CourseID,
		"quiz_id":       key.QuizID,
		"user_id":       key.UserID,
		"attempt_id":    key.AttemptID,
		"evidence_type": key.EvidenceType,
	}
}

func (r *EvidenceRepository) CountFinishedEvidence(ctx context.Context, key types.EvidenceKey) (int, error) {
	return countFinished(ctx, r.pool, key)
}

func countFinished(ctx context.Context, q pgxscan.Querier, key types.EvidenceKey) (int, error) {
	where := keyWhere(key)
	where["quiz_finished"] = true

	query, args, err := psql().Select("count(*)").From(evidenceTableName).Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to generate finished evidence count query: %w", err)
	}

	var count int
	err = pgxscan.Get(ctx, q, &count, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count finished evidence: %w", err)
	}

	return count, nil
}

// CreateEvidence inserts the record while holding the attempt lock, so a
// concurrent MarkFinished cannot slip in between the finished check and the
// insert. Returns ErrConflict when the attempt is already finished.
func (r *EvidenceRepository) CreateEvidence(ctx context.Context, evidence *types.Evidence) (int64, error) {
	if err := evidence.Validate(); err != nil {
		return 0, err
	}

	now := time.Now()
	if evidence.CreatedAt.IsZero() {
		evidence.CreatedAt = now
	}
	evidence.ModifiedAt = evidence.CreatedAt
	evidence.QuizFinished = false

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin evidence transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, attemptLockQuery, evidence.Key().AttemptKey.String()); err != nil {
		return 0, fmt.Errorf("failed to lock attempt: %w", err)
	}

	finished, err := countFinished(ctx, tx, evidence.Key())
	if err != nil {
		return 0, err
	}
	if finished > 0 {
		return 0, types.NewError(types.ErrConflict, "attempt %d already finished", evidence.AttemptID)
	}

	query, args, err := psql().
		Insert(evidenceTableName).
		SetMap(utils.StructToMap(evidence, "id")).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to generate insert evidence query: %w", err)
	}

	var id int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert evidence: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit evidence: %w", err)
	}

	evidence.ID = id
	return id, nil
}

func (r *EvidenceRepository) MarkFinished(ctx context.Context, attempt types.AttemptKey) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin finish transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, attemptLockQuery, attempt.String()); err != nil {
		return false, fmt.Errorf("failed to lock attempt: %w", err)
	}

	tag, err := tx.Exec(ctx, markFinishedQuery,
		attempt.CourseID, attempt.QuizID, attempt.UserID, attempt.AttemptID, time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			return false, types.NewError(types.ErrConflict, "attempt %d already finished", attempt.AttemptID)
		}
		return false, fmt.Errorf("failed to mark attempt finished: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit finish: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *EvidenceRepository) Evidence(ctx context.Context, id int64) (*types.Evidence, error) {
	query, args, err := psql().
		Select(evidenceColumns...).
		From(evidenceTableName).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate evidence query: %w", err)
	}

	var evidence = new(types.Evidence)
	err = pgxscan.Get(ctx, r.pool, evidence, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrEvidenceNotFound
		}
		return nil, fmt.Errorf("failed to fetch evidence: %w", err)
	}

	return evidence, nil
}

func (r *EvidenceRepository) EvidenceByAttempt(ctx context.Context, attempt types.AttemptKey) ([]*types.Evidence, error) {
	return r.selectEvidence(ctx, sq.Eq{
		"course_id":  attempt.CourseID,
		"quiz_id":    attempt.QuizID,
		"user_id":    attempt.UserID,
		"attempt_id": attempt.AttemptID,
	})
}

func (r *EvidenceRepository) EvidenceByUser(ctx context.Context, courseID, quizID, userID int64) ([]*types.Evidence, error) {
	return r.selectEvidence(ctx, sq.Eq{
		"course_id": courseID,
		"quiz_id":   quizID,
		"user_id":   userID,
	})
}

func (r *EvidenceRepository) EvidenceByKey(ctx context.Context, courseID, quizID, userID int64, evidenceType types.EvidenceType) ([]*types.Evidence, error) {
	return r.selectEvidence(ctx, sq.Eq{
		"course_id":     courseID,
		"quiz_id":       quizID,
		"user_id":       userID,
		"evidence_type": evidenceType,
	})
}

func (r *EvidenceRepository) selectEvidence(ctx context.Context, where sq.Eq) ([]*types.Evidence, error) {
	query, args, err := psql().
		Select(evidenceColumns...).
		From(evidenceTableName).
		Where(where).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate evidence list query: %w", err)
	}

	out := make([]*types.Evidence, 0)
	if err := pgxscan.Select(ctx, r.pool, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch evidence: %w", err)
	}

	return out, nil
}

type evidenceSummaryRow struct {
	UserID        int64     `db:"user_id"`
	EvidenceTypes []string  `db:"evidence_types"`
	EvidenceCount int64     `db:"evidence_count"`
	LastCreatedAt time.Time `db:"last_created_at"`
}

func (r *EvidenceRepository) DistinctByUser(ctx context.Context, courseID, quizID int64) ([]*types.EvidenceSummary, error) {
	query, args, err := psql().
		Select(
			"user_id",
			"array_agg(DISTINCT evidence_type ORDER BY evidence_type) AS evidence_types",
			"count(*) AS evidence_count",
			"max(created_at) AS last_created_at",
		).
		From(evidenceTableName).
		Where(sq.Eq{"quiz_id": quizID, "course_id": courseID}).
		GroupBy("user_id").
		OrderBy("user_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate evidence summary query: %w", err)
	}

	var rows []*evidenceSummaryRow
	if err := pgxscan.Select(ctx, r.pool, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch evidence summary: %w", err)
	}

	out := make([]*types.EvidenceSummary, 0, len(rows))
	for _, row := range rows {
		summary := &types.EvidenceSummary{
			UserID:        row.UserID,
			EvidenceCount: row.EvidenceCount,
			LastCreatedAt: row.LastCreatedAt,
		}
		for _, t := range row.EvidenceTypes {
			summary.EvidenceTypes = append(summary.EvidenceTypes, types.EvidenceType(t))
		}
		out = append(out, summary)
	}

	return out, nil
}

// LatestContainer returns the container of the newest record of the attempt
// stored with method, or "" when the attempt has none yet.
func (r *EvidenceRepository) LatestContainer(ctx context.Context, attempt types.AttemptKey, method types.StorageMethod) (string, error) {
	query, args, err := psql().
		Select("container").
		From(evidenceTableName).
		Where(sq.Eq{
			"course_id":      attempt.CourseID,
			"quiz_id":        attempt.QuizID,
			"user_id":        attempt.UserID,
			"attempt_id":     attempt.AttemptID,
			"storage_method": method,
		}).
		OrderBy("id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to generate latest container query: %w", err)
	}

	var container string
	err = pgxscan.Get(ctx, r.pool, &container, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to fetch latest container: %w", err)
	}

	return container, nil
}

// DeleteEvidence removes the row and returns it so the caller still has the locator.
func (r *EvidenceRepository) DeleteEvidence(ctx context.Context, id int64) (*types.Evidence, error) {
	deleted, err := r.deleteReturning(ctx, sq.Eq{"id": id})
	if err != nil {
		return nil, err
	}

	if len(deleted) == 0 {
		return nil, types.ErrEvidenceNotFound
	}

	return deleted[0], nil
}

func (r *EvidenceRepository) DeleteEvidenceByKey(ctx context.Context, courseID, quizID, userID int64, evidenceType types.EvidenceType) ([]*types.Evidence, error) {
	return r.deleteReturning(ctx, sq.Eq{
		"course_id":     courseID,
		"quiz_id":       quizID,
		"user_id":       userID,
		"evidence_type": evidenceType,
	})
}

func (r *EvidenceRepository) deleteReturning(ctx context.Context, where sq.Eq) ([]*types.Evidence, error) {
	query, args, err := psql().
		Delete(evidenceTableName).
		Where(where).
		Suffix("RETURNING " + strings.Join(evidenceColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate delete evidence query: %w", err)
	}

	out := make([]*types.Evidence, 0)
	if err := pgxscan.Select(ctx, r.pool, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to delete evidence: %w", err)
	}

	return out, nil
}

func (r *EvidenceRepository) CountByContainer(ctx context.Context, method types.StorageMethod, container string) (int, error) {
	query, args, err := psql().
		Select("count(*)").
		From(evidenceTableName).
		Where(sq.Eq{"storage_method": method, "container": container}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to generate container count query: %w", err)
	}

	var count int
	if err := pgxscan.Get(ctx, r.pool, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count container evidence: %w", err)
	}

	return count, nil
}

func (r *EvidenceRepository) Containers(ctx context.Context, method types.StorageMethod) ([]string, error) {
	query, args, err := psql().
		Select("DISTINCT container").
		From(evidenceTableName).
		Where(sq.Eq{"storage_method": method}).
		OrderBy("container ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate containers query: %w", err)
	}

	out := make([]string, 0)
	if err := pgxscan.Select(ctx, r.pool, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch containers: %w", err)
	}

	return out, nil
}

func (r *EvidenceRepository) DeleteByContainer(ctx context.Context, method types.StorageMethod, container string) (int64, error) {
	query, args, err := psql().
		Delete(evidenceTableName).
		Where(sq.Eq{"storage_method": method, "container": container}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to generate delete container evidence query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete container evidence: %w", err)
	}

	return tag.RowsAffected(), nil
}
