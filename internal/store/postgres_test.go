package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"testing"

	"exproctor/internal/db"
	"exproctor/pkg/types"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPool connects to TEST_DATABASE_URL and applies the schema. Each test
// works under its own random course id so runs do not interfere.
func newTestPool(t *testing.T) (*pgxpool.Pool, int64) {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, &types.Config{DatabaseURL: url})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx, pool))

	courseID := rand.Int64N(1<<40) + 1
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DELETE FROM exproctor.evidence WHERE course_id = $1", courseID)
		pool.Close()
	})

	return pool, courseID
}

func pgEvidence(attempt types.AttemptKey, evidenceType types.EvidenceType, container, key string) *types.Evidence {
	return &types.Evidence{
		CourseID:      attempt.CourseID,
		QuizID:        attempt.QuizID,
		UserID:        attempt.UserID,
		AttemptID:     attempt.AttemptID,
		EvidenceType:  evidenceType,
		StorageMethod: types.StorageMethodS3,
		Container:     container,
		ObjectKey:     key,
		URL:           "https://" + container + ".s3.amazonaws.com/" + key,
	}
}

func TestEvidenceRepository_FinishLifecycle(t *testing.T) {
	ctx := context.Background()
	pool, courseID := newTestPool(t)
	repo := NewEvidenceRepository(pool)

	attempt := types.AttemptKey{CourseID: courseID, QuizID: 5, UserID: 9, AttemptID: 42}
	container := fmt.Sprintf("exproctor-c%d", courseID)

	firstWebcam, err := repo.CreateEvidence(ctx, pgEvidence(attempt, types.EvidenceTypeWebcam, container, "w1.png"))
	require.NoError(t, err)
	lastWebcam, err := repo.CreateEvidence(ctx, pgEvidence(attempt, types.EvidenceTypeWebcam, container, "w2.png"))
	require.NoError(t, err)
	screen, err := repo.CreateEvidence(ctx, pgEvidence(attempt, types.EvidenceTypeScreen, container, "s1.png"))
	require.NoError(t, err)

	latest, err := repo.LatestContainer(ctx, attempt, types.StorageMethodS3)
	require.NoError(t, err)
	assert.Equal(t, container, latest)

	none, err := repo.LatestContainer(ctx, attempt, types.StorageMethodLocal)
	require.NoError(t, err)
	assert.Empty(t, none)

	marked, err := repo.MarkFinished(ctx, attempt)
	require.NoError(t, err)
	assert.True(t, marked)

	records, err := repo.EvidenceByAttempt(ctx, attempt)
	require.NoError(t, err)
	require.Len(t, records, 3)

	finished := map[int64]bool{}
	for _, r := range records {
		finished[r.ID] = r.QuizFinished
	}
	assert.Equal(t, map[int64]bool{firstWebcam: false, lastWebcam: true, screen: true}, finished)

	for _, evidenceType := range types.AllEvidenceTypes {
		count, err := repo.CountFinishedEvidence(ctx, types.EvidenceKey{AttemptKey: attempt, EvidenceType: evidenceType})
		require.NoError(t, err)
		assert.Equal(t, 1, count, evidenceType)
	}

	// every type already has its finished row
	marked, err = repo.MarkFinished(ctx, attempt)
	require.NoError(t, err)
	assert.False(t, marked)

	_, err = repo.CreateEvidence(ctx, pgEvidence(attempt, types.EvidenceTypeWebcam, container, "w3.png"))
	assert.ErrorIs(t, err, types.ErrConflict)

	nextAttempt := attempt
	nextAttempt.AttemptID = 43
	_, err = repo.CreateEvidence(ctx, pgEvidence(nextAttempt, types.EvidenceTypeWebcam, container, "w4.png"))
	require.NoError(t, err)
}

func TestEvidenceRepository_FinishedIndexAllowsOneRow(t *testing.T) {
	ctx := context.Background()
	pool, courseID := newTestPool(t)
	repo := NewEvidenceRepository(pool)

	attempt := types.AttemptKey{CourseID: courseID, QuizID: 5, UserID: 9, AttemptID: 42}
	container := fmt.Sprintf("exproctor-c%d", courseID)

	for _, key := range []string{"a.png", "b.png"} {
		_, err := repo.CreateEvidence(ctx, pgEvidence(attempt, types.EvidenceTypeWebcam, container, key))
		require.NoError(t, err)
	}

	_, err := pool.Exec(ctx, "UPDATE exproctor.evidence SET quiz_finished = TRUE WHERE course_id = $1", courseID)
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))
}

func TestEvidenceRepository_ConcurrentCreateAndFinish(t *testing.T) {
	ctx := context.Background()
	pool, courseID := newTestPool(t)
	repo := NewEvidenceRepository(pool)

	attempt := types.AttemptKey{CourseID: courseID, QuizID: 5, UserID: 9, AttemptID: 42}
	container := fmt.Sprintf("exproctor-c%d", courseID)

	_, err := repo.CreateEvidence(ctx, pgEvidence(attempt, types.EvidenceTypeWebcam, container, "first.png"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 21)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.CreateEvidence(ctx, pgEvidence(attempt, types.EvidenceTypeWebcam, container, fmt.Sprintf("f%d.png", i)))
			errs <- err
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := repo.MarkFinished(ctx, attempt)
		errs <- err
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, types.ErrConflict)
		}
	}

	count, err := repo.CountFinishedEvidence(ctx, types.EvidenceKey{AttemptKey: attempt, EvidenceType: types.EvidenceTypeWebcam})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// nothing recorded after the finish
	records, err := repo.EvidenceByAttempt(ctx, attempt)
	require.NoError(t, err)
	var finishedID int64
	for _, r := range records {
		if r.QuizFinished {
			finishedID = r.ID
		}
	}
	for _, r := range records {
		assert.LessOrEqual(t, r.ID, finishedID)
	}
}

func TestEvidenceRepository_DistinctByUser(t *testing.T) {
	ctx := context.Background()
	pool, courseID := newTestPool(t)
	repo := NewEvidenceRepository(pool)

	container := fmt.Sprintf("exproctor-c%d", courseID)
	alice := types.AttemptKey{CourseID: courseID, QuizID: 5, UserID: 9, AttemptID: 1}
	bob := types.AttemptKey{CourseID: courseID, QuizID: 5, UserID: 10, AttemptID: 2}

	for _, e := range []*types.Evidence{
		pgEvidence(alice, types.EvidenceTypeWebcam, container, "a1.png"),
		pgEvidence(alice, types.EvidenceTypeScreen, container, "a2.png"),
		pgEvidence(alice, types.EvidenceTypeWebcam, container, "a3.png"),
		pgEvidence(bob, types.EvidenceTypeScreen, container, "b1.png"),
	} {
		_, err := repo.CreateEvidence(ctx, e)
		require.NoError(t, err)
	}

	summaries, err := repo.DistinctByUser(ctx, courseID, 5)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, int64(9), summaries[0].UserID)
	assert.Equal(t, []types.EvidenceType{types.EvidenceTypeScreen, types.EvidenceTypeWebcam}, summaries[0].EvidenceTypes)
	assert.Equal(t, int64(3), summaries[0].EvidenceCount)

	assert.Equal(t, int64(10), summaries[1].UserID)
	assert.Equal(t, []types.EvidenceType{types.EvidenceTypeScreen}, summaries[1].EvidenceTypes)
	assert.Equal(t, int64(1), summaries[1].EvidenceCount)
	assert.False(t, summaries[1].LastCreatedAt.IsZero())

	empty, err := repo.DistinctByUser(ctx, courseID, 6)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEvidenceRepository_Deletes(t *testing.T) {
	ctx := context.Background()
	pool, courseID := newTestPool(t)
	repo := NewEvidenceRepository(pool)

	attempt := types.AttemptKey{CourseID: courseID, QuizID: 5, UserID: 9, AttemptID: 42}
	one := fmt.Sprintf("exproctor-one%d", courseID)
	two := fmt.Sprintf("exproctor-two%d", courseID)

	id, err := repo.CreateEvidence(ctx, pgEvidence(attempt, types.EvidenceTypeWebcam, one, "w1.png"))
	require.NoError(t, err)
	_, err = repo.CreateEvidence(ctx, pgEvidence(attempt, types.EvidenceTypeWebcam, one, "w2.png"))
	require.NoError(t, err)
	_, err = repo.CreateEvidence(ctx, pgEvidence(attempt, types.EvidenceTypeScreen, two, "s1.png"))
	require.NoError(t, err)
	_, err = repo.CreateEvidence(ctx, pgEvidence(attempt, types.EvidenceTypeScreen, two, "s2.png"))
	require.NoError(t, err)

	got, err := repo.Evidence(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "w1.png", got.ObjectKey)

	containers, err := repo.Containers(ctx, types.StorageMethodS3)
	require.NoError(t, err)
	assert.Contains(t, containers, one)
	assert.Contains(t, containers, two)

	deleted, err := repo.DeleteEvidence(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.Locator{Container: one, Key: "w1.png", URL: got.URL}, deleted.Locator())

	_, err = repo.DeleteEvidence(ctx, id)
	assert.True(t, errors.Is(err, types.ErrEvidenceNotFound))
	_, err = repo.Evidence(ctx, id)
	assert.ErrorIs(t, err, types.ErrEvidenceNotFound)

	count, err := repo.CountByContainer(ctx, types.StorageMethodS3, one)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	byKey, err := repo.DeleteEvidenceByKey(ctx, courseID, 5, 9, types.EvidenceTypeWebcam)
	require.NoError(t, err)
	require.Len(t, byKey, 1)
	assert.Equal(t, "w2.png", byKey[0].ObjectKey)

	removed, err := repo.DeleteByContainer(ctx, types.StorageMethodS3, two)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	left, err := repo.EvidenceByUser(ctx, courseID, 5, 9)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestQuizSettingsRepository(t *testing.T) {
	ctx := context.Background()
	pool, courseID := newTestPool(t)
	repo := NewQuizSettingsRepository(pool)

	quizID := courseID
	t.Cleanup(func() { _ = repo.DeleteQuizSettings(context.Background(), quizID) })

	_, err := repo.QuizSettings(ctx, quizID)
	require.ErrorIs(t, err, types.ErrQuizSettingsNotFound)

	require.NoError(t, repo.UpsertQuizSettings(ctx, &types.QuizSettings{QuizID: quizID, WebcamRequired: true}))
	require.NoError(t, repo.UpsertQuizSettings(ctx, &types.QuizSettings{QuizID: quizID, ScreenRequired: true, ScreenshotDelaySec: 15}))

	got, err := repo.QuizSettings(ctx, quizID)
	require.NoError(t, err)
	assert.False(t, got.WebcamRequired)
	assert.True(t, got.ScreenRequired)
	assert.Equal(t, 15, got.ScreenshotDelaySec)
	assert.Equal(t, types.DefaultScreenshotWidth, got.ScreenshotWidth)

	require.NoError(t, repo.DeleteQuizSettings(ctx, quizID))
	_, err = repo.QuizSettings(ctx, quizID)
	assert.ErrorIs(t, err, types.ErrQuizSettingsNotFound)
}
