package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/exproctor")

	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig()
		require.NoError(t, err)
		assert.Equal(t, "exproctor-", cfg.BucketPrefix)
		assert.Equal(t, "local", cfg.StorageMethod)
		assert.Equal(t, []string{"webcam"}, cfg.ModerationEvidenceTypes)
	})

	t.Run("empty bucket prefix is rejected", func(t *testing.T) {
		t.Setenv("BUCKET_PREFIX", "")

		_, err := loadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "BUCKET_PREFIX")
	})

	t.Run("bucket prefix must be bucket safe", func(t *testing.T) {
		t.Setenv("BUCKET_PREFIX", "Proctor_")

		_, err := loadConfig()
		require.Error(t, err)
	})

	t.Run("unknown storage method", func(t *testing.T) {
		t.Setenv("STORAGE_METHOD", "ftp")

		_, err := loadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "STORAGE_METHOD")
	})
}
