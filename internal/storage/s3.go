package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"exproctor/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

// S3 keeps each attempt's evidence in its own bucket.
type S3 struct {
	client      *s3.Client
	presigner   *s3.PresignClient
	region      string
	prefix      string
	waitTimeout time.Duration
	pageSize    int32
	logger      *logrus.Logger
}

func NewS3(client *s3.Client, region, bucketPrefix string, waitTimeout time.Duration, logger *logrus.Logger) *S3 {
	if waitTimeout <= 0 {
		waitTimeout = 2 * time.Minute
	}

	return &S3{
		client:      client,
		presigner:   s3.NewPresignClient(client),
		region:      region,
		prefix:      bucketPrefix,
		waitTimeout: waitTimeout,
		pageSize:    1000,
		logger:      logger,
	}
}

func (s *S3) Method() types.StorageMethod {
	return types.StorageMethodS3
}

func (s *S3) objectURL(bucket, key string) string {
	if s.region == "" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, s.region, key)
}

func (s *S3) Put(ctx context.Context, container, key string, data []byte, contentType string) (types.Locator, error) {
	if err := checkLocation(container, key); err != nil {
		return types.Locator{}, err
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(container),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		s.logger.WithError(err).
			WithField("bucket", container).
			WithField("key", key).
			Error("failed to put evidence object")
		return types.Locator{}, wrapErr(opf("put object %s/%s", container, key), err)
	}

	return types.Locator{
		Container: container,
		Key:       key,
		URL:       s.objectURL(container, key),
	}, nil
}

func (s *S3) URL(ctx context.Context, loc types.Locator, ttl time.Duration) (string, error) {
	if err := checkLocation(loc.Container, loc.Key); err != nil {
		return "", err
	}

	if ttl <= 0 {
		ttl = DefaultURLTTL
	}

	presigned, err := s.presigner.PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(loc.Container),
			Key:    aws.String(loc.Key),
		},
		s3.WithPresignExpires(ttl),
	)
	if err != nil {
		return "", wrapErr(opf("presign object %s/%s", loc.Container, loc.Key), err)
	}

	return presigned.URL, nil
}

func (s *S3) Delete(ctx context.Context, loc types.Locator) error {
	if err := checkLocation(loc.Container, loc.Key); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(loc.Container),
		Key:    aws.String(loc.Key),
	})
	if err != nil && !isNotFound(err) {
		s.logger.WithError(err).
			WithField("bucket", loc.Container).
			WithField("key", loc.Key).
			Error("failed to delete evidence object")
		return wrapErr(opf("delete object %s/%s", loc.Container, loc.Key), err)
	}

	return nil
}

func (s *S3) CreateContainer(ctx context.Context, name string) error {
	if err := checkLocation(name, ""); err != nil {
		return err
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(name)}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(s.region),
		}
	}

	_, err := s.client.CreateBucket(ctx, input)
	if err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		if !errors.As(err, &owned) {
			s.logger.WithError(err).WithField("bucket", name).Error("failed to create bucket")
			return wrapErr(opf("create bucket %s", name), err)
		}
	}

	waiter := s3.NewBucketExistsWaiter(s.client)
	err = waiter.Wait(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)}, s.waitTimeout)
	if err != nil {
		return wrapErr(opf("wait for bucket %s", name), err)
	}

	s.logger.WithField("bucket", name).Info("created evidence bucket")
	return nil
}

func (s *S3) DeleteContainer(ctx context.Context, name string) error {
	if err := checkLocation(name, ""); err != nil {
		return err
	}

	if err := s.emptyBucket(ctx, name); err != nil {
		if isNotFound(err) {
			return nil
		}
		return wrapErr(opf("empty bucket %s", name), err)
	}

	_, err := s.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)})
	if err != nil && !isNotFound(err) {
		s.logger.WithError(err).WithField("bucket", name).Error("failed to delete bucket")
		return wrapErr(opf("delete bucket %s", name), err)
	}

	waiter := s3.NewBucketNotExistsWaiter(s.client)
	err = waiter.Wait(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)}, s.waitTimeout)
	if err != nil {
		return wrapErr(opf("wait for bucket %s removal", name), err)
	}

	s.logger.WithField("bucket", name).Info("deleted evidence bucket")
	return nil
}

// emptyBucket deletes every object page by page. Errors are returned raw so
// the caller can still recognise NoSuchBucket.
func (s *S3) emptyBucket(ctx context.Context, name string) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:  aws.String(name),
		MaxKeys: aws.Int32(s.pageSize),
	})

	totalDeleted := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}

		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, s3types.ObjectIdentifier{Key: obj.Key})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(name),
			Delete: &s3types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return err
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("%d objects not deleted, first %s: %s",
				len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}

		totalDeleted += len(objects)
	}

	s.logger.WithField("bucket", name).WithField("total_deleted", totalDeleted).Debug("emptied evidence bucket")
	return nil
}

// ListContainers only returns buckets carrying the configured prefix, so a
// teardown never touches buckets this service did not create.
func (s *S3) ListContainers(ctx context.Context) ([]string, error) {
	if err := checkPrefix(s.prefix); err != nil {
		return nil, err
	}

	out, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, wrapErr("list buckets", err)
	}

	names := make([]string, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		name := aws.ToString(b.Name)
		if !strings.HasPrefix(name, s.prefix) {
			continue
		}
		names = append(names, name)
	}

	return names, nil
}

func (s *S3) ListObjects(ctx context.Context, container string) ([]string, error) {
	if err := checkLocation(container, ""); err != nil {
		return nil, err
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:  aws.String(container),
		MaxKeys: aws.Int32(s.pageSize),
	})

	keys := make([]string, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapErr(opf("list objects %s", container), err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	return keys, nil
}
