package main

import (
	"context"
	"encoding/base64"
	"fmt"

	"exproctor/internal/storage"
	"exproctor/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/kelseyhightower/envconfig"
)

func loadConfig() (*types.Config, error) {
	c := new(types.Config)
	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}

	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("set DATABASE_URL")
	}

	if _, err := types.ParseStorageMethod(c.StorageMethod); err != nil {
		return nil, fmt.Errorf("set STORAGE_METHOD: %w", err)
	}

	if !storage.ValidContainerPrefix(c.BucketPrefix) {
		return nil, fmt.Errorf("set BUCKET_PREFIX to a non-empty bucket name prefix of lowercase letters, digits and hyphens, got %q", c.BucketPrefix)
	}

	for _, t := range c.ModerationEvidenceTypes {
		if _, err := types.ParseEvidenceType(t); err != nil {
			return nil, fmt.Errorf("set MODERATION_EVIDENCE_TYPES: %w", err)
		}
	}

	if c.ServerPort == 0 {
		c.ServerPort = 8080
	}

	if c.ReadTimeoutSec == 0 {
		c.ReadTimeoutSec = 10
	}

	if c.WriteTimeoutSec == 0 {
		c.WriteTimeoutSec = 30
	}

	return c, nil
}

// localURLKeys decodes the base64 keys used to sign local file URLs.
func localURLKeys(c *types.Config) (hashKey, blockKey []byte, err error) {
	if c.LocalURLHashKey != "" {
		hashKey, err = base64.StdEncoding.DecodeString(c.LocalURLHashKey)
		if err != nil {
			return nil, nil, fmt.Errorf("decode LOCAL_URL_HASH_KEY: %w", err)
		}
	}

	if c.LocalURLBlockKey != "" {
		blockKey, err = base64.StdEncoding.DecodeString(c.LocalURLBlockKey)
		if err != nil {
			return nil, nil, fmt.Errorf("decode LOCAL_URL_BLOCK_KEY: %w", err)
		}
	}

	return hashKey, blockKey, nil
}

func loadAWSConfig(ctx context.Context, c *types.Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	if c.AWSRegion != "" {
		opts = append(opts, config.WithRegion(c.AWSRegion))
	}

	if c.AWSAccessKeyID != "" && c.AWSSecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AWSAccessKeyID, c.AWSSecretAccessKey, ""),
		))
	}

	config, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}

	return config, nil
}
