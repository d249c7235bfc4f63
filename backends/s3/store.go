package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-provisioning/core"
)

const (
	handlePrefix    = "s3/"
	ownerTag        = "go-provisioning-project"
	maxBucketLength = 63
	defaultRegion   = "us-east-1"
)

// API is the subset of *s3.Client the store uses.
type API interface {
	CreateBucket(ctx context.Context, params *awss3.CreateBucketInput, optFns ...func(*awss3.Options)) (*awss3.CreateBucketOutput, error)
	PutBucketTagging(ctx context.Context, params *awss3.PutBucketTaggingInput, optFns ...func(*awss3.Options)) (*awss3.PutBucketTaggingOutput, error)
	GetBucketTagging(ctx context.Context, params *awss3.GetBucketTaggingInput, optFns ...func(*awss3.Options)) (*awss3.GetBucketTaggingOutput, error)
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *awss3.DeleteObjectsInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error)
	DeleteBucket(ctx context.Context, params *awss3.DeleteBucketInput, optFns ...func(*awss3.Options)) (*awss3.DeleteBucketOutput, error)
	ListBuckets(ctx context.Context, params *awss3.ListBucketsInput, optFns ...func(*awss3.Options)) (*awss3.ListBucketsOutput, error)
}

type Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	BucketPrefix    string
}

// Store provisions one bucket per project, tagged with the owning project
// ID.
type Store struct {
	api      API
	region   string
	endpoint string
	prefix   string
	logger   glog.Logger
}

type Option func(*Store)

func WithLogger(logger glog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Connect loads AWS configuration and builds an S3 client. Static
// credentials are used when both keys are set.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return New(client, cfg, opts...), nil
}

func New(api API, cfg Config, opts ...Option) *Store {
	store := &Store{
		api:      api,
		region:   cfg.Region,
		endpoint: cfg.Endpoint,
		prefix:   strings.ToLower(cfg.BucketPrefix),
		logger:   glog.Nop(),
	}
	if store.region == "" {
		store.region = defaultRegion
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.api.ListBuckets(ctx, &awss3.ListBucketsInput{})
	return err
}

func (s *Store) HandleFor(req core.AllocateRequest) string {
	return handlePrefix + s.bucketName(req.ResourceName)
}

func (s *Store) Allocate(ctx context.Context, req core.AllocateRequest) (core.Allocation, error) {
	if req.ResourceName == "" || req.ProjectID == "" {
		return core.Allocation{}, fmt.Errorf("s3: resource name and project id are required")
	}
	bucket := s.bucketName(req.ResourceName)

	input := &awss3.CreateBucketInput{Bucket: aws.String(bucket)}
	if s.region != defaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	adopted := false
	_, err := s.api.CreateBucket(ctx, input)
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var taken *types.BucketAlreadyExists
		switch {
		case errors.As(err, &owned):
			owner, tagErr := s.bucketOwner(ctx, bucket)
			if tagErr != nil {
				return core.Allocation{}, tagErr
			}
			if owner != "" && owner != req.ProjectID {
				return core.Allocation{}, fmt.Errorf("%w: bucket %s belongs to another project", core.ErrStoreConflict, bucket)
			}
			adopted = true
		case errors.As(err, &taken):
			return core.Allocation{}, fmt.Errorf("%w: bucket name %s is taken", core.ErrStoreConflict, bucket)
		default:
			return core.Allocation{}, fmt.Errorf("s3: create bucket %s: %w", bucket, err)
		}
	}

	_, err = s.api.PutBucketTagging(ctx, &awss3.PutBucketTaggingInput{
		Bucket: aws.String(bucket),
		Tagging: &types.Tagging{TagSet: []types.Tag{
			{Key: aws.String(ownerTag), Value: aws.String(req.ProjectID)},
		}},
	})
	if err != nil {
		return core.Allocation{}, fmt.Errorf("s3: tag bucket %s: %w", bucket, err)
	}

	s.logger.Info("s3 bucket allocated", "bucket", bucket, "adopted", adopted)
	creds := map[string]string{
		core.CredentialEngine: "s3",
		core.CredentialBucket: bucket,
		core.CredentialRegion: s.region,
	}
	if s.endpoint != "" {
		creds[core.CredentialEndpoint] = s.endpoint
	}
	return core.Allocation{
		Handle:      handlePrefix + bucket,
		Credentials: creds,
		Adopted:     adopted,
	}, nil
}

// bucketOwner returns the project tag, or "" for an untagged bucket.
func (s *Store) bucketOwner(ctx context.Context, bucket string) (string, error) {
	out, err := s.api.GetBucketTagging(ctx, &awss3.GetBucketTaggingInput{Bucket: aws.String(bucket)})
	if err != nil {
		if apiErrorCode(err) == "NoSuchTagSet" {
			return "", nil
		}
		return "", fmt.Errorf("s3: read bucket tags %s: %w", bucket, err)
	}
	for _, tag := range out.TagSet {
		if aws.ToString(tag.Key) == ownerTag {
			return aws.ToString(tag.Value), nil
		}
	}
	return "", nil
}

// Release empties and deletes the bucket.
func (s *Store) Release(ctx context.Context, handle string) error {
	bucket := strings.TrimPrefix(handle, handlePrefix)
	if bucket == "" || bucket == handle {
		return fmt.Errorf("s3: invalid handle %q", handle)
	}

	var token *string
	for {
		page, err := s.api.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			ContinuationToken: token,
		})
		if err != nil {
			return s.releaseError(bucket, "list objects", err)
		}
		if len(page.Contents) > 0 {
			objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
			for _, object := range page.Contents {
				objects = append(objects, types.ObjectIdentifier{Key: object.Key})
			}
			if _, err := s.api.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
				Bucket: aws.String(bucket),
				Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
			}); err != nil {
				return s.releaseError(bucket, "delete objects", err)
			}
		}
		if !aws.ToBool(page.IsTruncated) {
			break
		}
		token = page.NextContinuationToken
	}

	if _, err := s.api.DeleteBucket(ctx, &awss3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return s.releaseError(bucket, "delete bucket", err)
	}
	s.logger.Info("s3 bucket released", "bucket", bucket)
	return nil
}

func (s *Store) releaseError(bucket, action string, err error) error {
	var missing *types.NoSuchBucket
	if errors.As(err, &missing) || apiErrorCode(err) == "NoSuchBucket" {
		return fmt.Errorf("%w: bucket %s", core.ErrStoreNotFound, bucket)
	}
	return fmt.Errorf("s3: %s %s: %w", action, bucket, err)
}

// bucketName maps a resource name onto S3 bucket naming rules.
func (s *Store) bucketName(resourceName string) string {
	name := s.prefix + strings.ReplaceAll(strings.ToLower(resourceName), "_", "-")
	return core.CompactName(name, maxBucketLength, "-")
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
