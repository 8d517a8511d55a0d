package main

import (
	"context"
	"fmt"
	"time"

	"exproctor/internal/db"
	"exproctor/internal/moderation"
	"exproctor/internal/proctor"
	"exproctor/internal/storage"
	"exproctor/internal/store"
	"exproctor/pkg/types"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// deps is everything the commands share, built once from the environment.
type deps struct {
	config *types.Config
	logger *logrus.Logger
	pool   *pgxpool.Pool

	local    *storage.Local
	backends *storage.Backends

	evidenceRepo *store.EvidenceRepository
	settingsRepo *store.QuizSettingsRepository

	intake    *proctor.IntakeService
	retention *proctor.RetentionManager
	report    *proctor.ReportService
}

func seconds(v uint) time.Duration {
	return time.Duration(v) * time.Second
}

func buildDeps(ctx context.Context, logger *logrus.Logger) (*deps, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}

	method, _ := types.ParseStorageMethod(config.StorageMethod)

	pool, err := db.Connect(ctx, config)
	if err != nil {
		return nil, err
	}

	d := &deps{
		config:       config,
		logger:       logger,
		pool:         pool,
		evidenceRepo: store.NewEvidenceRepository(pool),
		settingsRepo: store.NewQuizSettingsRepository(pool),
	}

	hashKey, blockKey, err := localURLKeys(config)
	if err != nil {
		d.Close()
		return nil, err
	}

	// local is always available so records written before a switch to s3
	// can still be served and deleted
	d.local, err = storage.NewLocal(config.LocalStoragePath, config.PublicURL, config.BucketPrefix, hashKey, blockKey, logger)
	if err != nil {
		d.Close()
		return nil, err
	}
	stores := []storage.ObjectStore{d.local}

	gate := moderation.NewGate(nil)

	needsAWS := method == types.StorageMethodS3 || config.AWSRegion != "" || config.ModerationEnabled
	if needsAWS {
		awsConfig, err := loadAWSConfig(ctx, config)
		if err != nil {
			d.Close()
			return nil, err
		}

		s3Client := s3.NewFromConfig(awsConfig)
		stores = append(stores, storage.NewS3(s3Client, awsConfig.Region, config.BucketPrefix, seconds(config.ContainerWaitSec), logger))

		if config.ModerationEnabled {
			evidenceTypes := make([]types.EvidenceType, 0, len(config.ModerationEvidenceTypes))
			for _, t := range config.ModerationEvidenceTypes {
				et, _ := types.ParseEvidenceType(t)
				evidenceTypes = append(evidenceTypes, et)
			}

			filter := moderation.NewFaceAndObject(rekognition.NewFromConfig(awsConfig), logger)
			gate = moderation.NewGate(filter, evidenceTypes...)
		}
	}

	d.backends = storage.NewBackends(stores...)
	if _, err := d.backends.For(method); err != nil {
		d.Close()
		return nil, fmt.Errorf("storage method %s: %w", method, err)
	}

	storageTimeout := seconds(config.StorageTimeoutSec)
	containerTimeout := storageTimeout + seconds(config.ContainerWaitSec)

	d.intake = proctor.NewIntakeService(proctor.IntakeConfig{
		StorageMethod:     method,
		BucketPrefix:      config.BucketPrefix,
		StorageTimeout:    storageTimeout,
		ContainerTimeout:  containerTimeout,
		ModerationTimeout: seconds(config.ModerationTimeoutSec),
	}, logger, d.evidenceRepo, d.backends, gate, d.settingsRepo)

	d.retention = proctor.NewRetentionManager(logger, d.evidenceRepo, d.backends, d.intake, storageTimeout, containerTimeout)
	d.report = proctor.NewReportService(logger, d.evidenceRepo, d.backends, seconds(config.PresignTTLSec), storageTimeout)

	logger.WithFields(logrus.Fields{
		"storage_method": method,
		"backends":       d.backends.String(),
		"moderation":     config.ModerationEnabled,
	}).Info("dependencies ready")

	return d, nil
}

func (d *deps) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
}
