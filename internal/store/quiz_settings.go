package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"exproctor/internal/utils"
	"exproctor/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const quizSettingsTableName = "exproctor.quiz_settings"

var quizSettingsColumns = utils.StructTagValues(types.QuizSettings{})

type QuizSettingsRepository struct {
	pool *pgxpool.Pool
}

func NewQuizSettingsRepository(pool *pgxpool.Pool) *QuizSettingsRepository {
	return &QuizSettingsRepository{pool: pool}
}

func (r *QuizSettingsRepository) QuizSettings(ctx context.Context, quizID int64) (*types.QuizSettings, error) {
	query, args, err := psql().
		Select(quizSettingsColumns...).
		From(quizSettingsTableName).
		Where(sq.Eq{"quiz_id": quizID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate quiz settings query: %w", err)
	}

	var settings = new(types.QuizSettings)
	err = pgxscan.Get(ctx, r.pool, settings, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrQuizSettingsNotFound
		}
		return nil, fmt.Errorf("failed to fetch quiz settings: %w", err)
	}

	return settings, nil
}

func (r *QuizSettingsRepository) UpsertQuizSettings(ctx context.Context, settings *types.QuizSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	now := time.Now()
	settings.CreatedAt = now
	settings.UpdatedAt = now

	query, args, err := psql().
		Insert(quizSettingsTableName).
		SetMap(utils.StructToMap(settings)).
		Suffix("ON CONFLICT (quiz_id) DO UPDATE SET webcam_required = EXCLUDED.webcam_required, screen_required = EXCLUDED.screen_required, screenshot_delay_sec = EXCLUDED.screenshot_delay_sec, screenshot_width = EXCLUDED.screenshot_width, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate upsert quiz settings query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to upsert quiz settings")
}

func (r *QuizSettingsRepository) DeleteQuizSettings(ctx context.Context, quizID int64) error {
	query, args, err := psql().
		Delete(quizSettingsTableName).
		Where(sq.Eq{"quiz_id": quizID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate delete quiz settings query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to delete quiz settings")
}

type MemoryQuizSettingsRepository struct {
	mu       sync.RWMutex
	settings map[int64]types.QuizSettings
}

func NewMemoryQuizSettingsRepository() *MemoryQuizSettingsRepository {
	return &MemoryQuizSettingsRepository{settings: make(map[int64]types.QuizSettings)}
}

func (r *MemoryQuizSettingsRepository) QuizSettings(ctx context.Context, quizID int64) (*types.QuizSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.settings[quizID]
	if !ok {
		return nil, types.ErrQuizSettingsNotFound
	}
	return &s, nil
}

func (r *MemoryQuizSettingsRepository) UpsertQuizSettings(ctx context.Context, settings *types.QuizSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if existing, ok := r.settings[settings.QuizID]; ok {
		settings.CreatedAt = existing.CreatedAt
	} else {
		settings.CreatedAt = now
	}
	settings.UpdatedAt = now
	r.settings[settings.QuizID] = *settings

	return nil
}

func (r *MemoryQuizSettingsRepository) DeleteQuizSettings(ctx context.Context, quizID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.settings, quizID)
	return nil
}
