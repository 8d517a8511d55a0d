package proctor

import (
	"context"
	"testing"

	"exproctor/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportService(t *testing.T) {
	ctx := context.Background()
	local := newFakeStore(types.StorageMethodLocal)
	s3 := newFakeStore(types.StorageMethodS3)
	h := newHarness(types.StorageMethodLocal, local, s3)

	localIDs := submitN(t, h, testAttempt, types.EvidenceTypeWebcam, 1)

	h.intake.config.StorageMethod = types.StorageMethodS3
	s3IDs := submitN(t, h, testAttempt, types.EvidenceTypeScreen, 1)

	view, err := h.report.EvidenceURL(ctx, localIDs[0])
	require.NoError(t, err)
	assert.Contains(t, view.DisplayURL, "local://")

	view, err = h.report.EvidenceURL(ctx, s3IDs[0])
	require.NoError(t, err)
	assert.Contains(t, view.DisplayURL, "s3://")
	assert.Contains(t, view.DisplayURL, "ttl=20m0s")

	_, err = h.report.EvidenceURL(ctx, 999)
	assert.ErrorIs(t, err, types.ErrEvidenceNotFound)

	views, err := h.report.EvidenceByAttempt(ctx, testAttempt)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, localIDs[0], views[0].ID)
	assert.NotEmpty(t, views[1].DisplayURL)

	views, err = h.report.EvidenceByUser(ctx, 1, 5, 9)
	require.NoError(t, err)
	assert.Len(t, views, 2)

	summaries, err := h.report.DistinctByUser(ctx, 1, 5)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(2), summaries[0].EvidenceCount)
}

func TestDecodePayload(t *testing.T) {
	data, contentType, err := DecodePayload("data:image/jpeg;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "image/jpeg", contentType)

	data, contentType, err = DecodePayload("aGVsbG8")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "image/png", contentType)

	for _, bad := range []string{"data:image/png,aGVsbG8=", "data:text/plain;base64,aGVsbG8=", "data:image/png;base64", "!!!"} {
		_, _, err := DecodePayload(bad)
		assert.ErrorIs(t, err, types.ErrDecode, bad)
	}
}
