package s3

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/goliatone/go-provisioning/core"
)

type fakeBucket struct {
	foreign bool
	tags    map[string]string
	objects map[string]bool
}

// fakeAPI keeps buckets in memory and answers with the error types S3
// returns.
type fakeAPI struct {
	mu       sync.Mutex
	buckets  map[string]*fakeBucket
	pageSize int
	created  int
	listErr  error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{buckets: map[string]*fakeBucket{}, pageSize: 2}
}

func (f *fakeAPI) CreateBucket(_ context.Context, in *awss3.CreateBucketInput, _ ...func(*awss3.Options)) (*awss3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.Bucket)
	if bucket, ok := f.buckets[name]; ok {
		if bucket.foreign {
			return nil, &types.BucketAlreadyExists{}
		}
		return nil, &types.BucketAlreadyOwnedByYou{}
	}
	f.buckets[name] = &fakeBucket{objects: map[string]bool{}}
	f.created++
	return &awss3.CreateBucketOutput{}, nil
}

func (f *fakeAPI) PutBucketTagging(_ context.Context, in *awss3.PutBucketTaggingInput, _ ...func(*awss3.Options)) (*awss3.PutBucketTaggingOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, &types.NoSuchBucket{}
	}
	bucket.tags = map[string]string{}
	for _, tag := range in.Tagging.TagSet {
		bucket.tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return &awss3.PutBucketTaggingOutput{}, nil
}

func (f *fakeAPI) GetBucketTagging(_ context.Context, in *awss3.GetBucketTaggingInput, _ ...func(*awss3.Options)) (*awss3.GetBucketTaggingOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, &types.NoSuchBucket{}
	}
	if len(bucket.tags) == 0 {
		return nil, &smithy.GenericAPIError{Code: "NoSuchTagSet", Message: "no tags"}
	}
	out := &awss3.GetBucketTaggingOutput{}
	for key, value := range bucket.tags {
		out.TagSet = append(out.TagSet, types.Tag{Key: aws.String(key), Value: aws.String(value)})
	}
	return out, nil
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	bucket, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "missing"}
	}
	keys := make([]string, 0, len(bucket.objects))
	for key := range bucket.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := &awss3.ListObjectsV2Output{IsTruncated: aws.Bool(len(keys) > f.pageSize)}
	if len(keys) > f.pageSize {
		keys = keys[:f.pageSize]
		out.NextContinuationToken = aws.String("next")
	}
	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	return out, nil
}

func (f *fakeAPI) DeleteObjects(_ context.Context, in *awss3.DeleteObjectsInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := f.buckets[aws.ToString(in.Bucket)]
	for _, object := range in.Delete.Objects {
		delete(bucket.objects, aws.ToString(object.Key))
	}
	return &awss3.DeleteObjectsOutput{}, nil
}

func (f *fakeAPI) DeleteBucket(_ context.Context, in *awss3.DeleteBucketInput, _ ...func(*awss3.Options)) (*awss3.DeleteBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.Bucket)
	bucket, ok := f.buckets[name]
	if !ok {
		return nil, &types.NoSuchBucket{}
	}
	if len(bucket.objects) > 0 {
		return nil, &smithy.GenericAPIError{Code: "BucketNotEmpty", Message: "not empty"}
	}
	delete(f.buckets, name)
	return &awss3.DeleteBucketOutput{}, nil
}

func (f *fakeAPI) ListBuckets(context.Context, *awss3.ListBucketsInput, ...func(*awss3.Options)) (*awss3.ListBucketsOutput, error) {
	return &awss3.ListBucketsOutput{}, nil
}

func TestStore_AllocateCreatesTaggedBucket(t *testing.T) {
	api := newFakeAPI()
	store := New(api, Config{Region: "eu-west-1", BucketPrefix: "acme-"})
	req := core.AllocateRequest{ProjectID: "prj_1", ResourceName: "proj_a_12345678"}

	alloc, err := store.Allocate(context.Background(), req)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if alloc.Handle != "s3/acme-proj-a-12345678" || alloc.Handle != store.HandleFor(req) {
		t.Fatalf("unexpected handle %q", alloc.Handle)
	}
	bucket := api.buckets["acme-proj-a-12345678"]
	if bucket == nil || bucket.tags[ownerTag] != "prj_1" {
		t.Fatalf("expected tagged bucket, got %#v", bucket)
	}
	if alloc.Credentials[core.CredentialRegion] != "eu-west-1" {
		t.Fatalf("expected region credential")
	}

	again, err := store.Allocate(context.Background(), req)
	if err != nil {
		t.Fatalf("re-allocate: %v", err)
	}
	if !again.Adopted || api.created != 1 {
		t.Fatalf("expected adoption without a second bucket, adopted=%v created=%d", again.Adopted, api.created)
	}
}

func TestStore_AllocateAdoptsUntaggedBucket(t *testing.T) {
	api := newFakeAPI()
	api.buckets["proj-a-12345678"] = &fakeBucket{objects: map[string]bool{}}
	store := New(api, Config{})

	alloc, err := store.Allocate(context.Background(), core.AllocateRequest{ProjectID: "prj_1", ResourceName: "proj_a_12345678"})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !alloc.Adopted || api.buckets["proj-a-12345678"].tags[ownerTag] != "prj_1" {
		t.Fatalf("expected untagged bucket adopted and tagged")
	}
}

func TestStore_AllocateConflicts(t *testing.T) {
	api := newFakeAPI()
	api.buckets["proj-a-12345678"] = &fakeBucket{tags: map[string]string{ownerTag: "prj_other"}, objects: map[string]bool{}}
	api.buckets["proj-b-12345678"] = &fakeBucket{foreign: true, objects: map[string]bool{}}
	store := New(api, Config{})

	for _, name := range []string{"proj_a_12345678", "proj_b_12345678"} {
		_, err := store.Allocate(context.Background(), core.AllocateRequest{ProjectID: "prj_1", ResourceName: name})
		if !errors.Is(err, core.ErrStoreConflict) {
			t.Fatalf("%s: expected conflict, got %v", name, err)
		}
	}
	if api.buckets["proj-a-12345678"].tags[ownerTag] != "prj_other" {
		t.Fatalf("expected foreign tag untouched")
	}
}

func TestStore_ReleaseEmptiesAndDeletesBucket(t *testing.T) {
	api := newFakeAPI()
	store := New(api, Config{})
	alloc, err := store.Allocate(context.Background(), core.AllocateRequest{ProjectID: "prj_1", ResourceName: "proj_a_12345678"})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		api.buckets["proj-a-12345678"].objects[key] = true
	}

	if err := store.Release(context.Background(), alloc.Handle); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok := api.buckets["proj-a-12345678"]; ok {
		t.Fatalf("expected bucket deleted")
	}
	if err := store.Release(context.Background(), alloc.Handle); !errors.Is(err, core.ErrStoreNotFound) {
		t.Fatalf("expected not found on second release, got %v", err)
	}
}

func TestStore_ReleaseFailureIsNotNotFound(t *testing.T) {
	api := newFakeAPI()
	api.listErr = errors.New("throttled")
	store := New(api, Config{})
	err := store.Release(context.Background(), "s3/proj-a-12345678")
	if err == nil || errors.Is(err, core.ErrStoreNotFound) {
		t.Fatalf("expected transient failure, got %v", err)
	}
}

func TestStore_BucketNameDistinguishesLongNamesWithSharedPrefix(t *testing.T) {
	store := New(newFakeAPI(), Config{BucketPrefix: "tenant-"})
	shared := strings.Repeat("a", 60)
	first := store.bucketName(shared + "_first_1234abcd_5678ef01")
	second := store.bucketName(shared + "_second_1234abcd_5678ef01")
	if len(first) > maxBucketLength || len(second) > maxBucketLength {
		t.Fatalf("expected names within %d bytes, got %d and %d", maxBucketLength, len(first), len(second))
	}
	if first == second {
		t.Fatalf("expected distinct buckets, both were %q", first)
	}
	if !strings.HasPrefix(first, "tenant-aaa") {
		t.Fatalf("expected prefix kept, got %q", first)
	}
}
