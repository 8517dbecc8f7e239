package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jaysatani-27/buster-ai-sub003/internal/storage"
)

func TestPutUsesPrefixAndNormalizedKey(t *testing.T) {
	fake := &fakeAPI{}
	store, err := NewWithAPI("exports", "buster/prod/", fake)
	if err != nil {
		t.Fatalf("NewWithAPI() error = %v", err)
	}

	_, err = store.Put(context.Background(), "//org-1/ds-1/exports/q1.parquet", bytes.NewBufferString("abc"), 3, storage.PutOptions{})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastBucket != "exports" {
		t.Fatalf("bucket = %q", fake.lastBucket)
	}
	if fake.lastKey != "buster/prod/org-1/ds-1/exports/q1.parquet" {
		t.Fatalf("key = %q", fake.lastKey)
	}
	if fake.lastContentType != "application/octet-stream" {
		t.Fatalf("content type = %q", fake.lastContentType)
	}
}

func TestPutRejectsPathTraversal(t *testing.T) {
	store, err := NewWithAPI("exports", "buster", &fakeAPI{})
	if err != nil {
		t.Fatalf("NewWithAPI() error = %v", err)
	}
	for _, key := range []string{"../secrets.txt", "org/../../secrets.txt", "..", " "} {
		if _, err := store.Put(context.Background(), key, bytes.NewBufferString("x"), 1, storage.PutOptions{}); err == nil {
			t.Fatalf("Put(%q) expected key validation error", key)
		}
	}
}

func TestGetAndStatMapMissingObjects(t *testing.T) {
	store, err := NewWithAPI("exports", "", &fakeAPI{missing: true})
	if err != nil {
		t.Fatalf("NewWithAPI() error = %v", err)
	}
	if _, err := store.Get(context.Background(), "a.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v, want ErrObjectNotFound", err)
	}
	if _, err := store.Stat(context.Background(), "a.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() error = %v, want ErrObjectNotFound", err)
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeAPI{bucketExists: false}
	store, err := NewWithAPI("exports", "", fake)
	if err != nil {
		t.Fatalf("NewWithAPI() error = %v", err)
	}
	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if !fake.createBucketCalled {
		t.Fatal("expected CreateBucket to be called")
	}
}

func TestDeleteIgnoresMissingObject(t *testing.T) {
	store, err := NewWithAPI("exports", "", &fakeAPI{deleteErr: storage.ErrObjectNotFound})
	if err != nil {
		t.Fatalf("NewWithAPI() error = %v", err)
	}
	if err := store.Delete(context.Background(), "missing/file.parquet"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestListStripsStorePrefix(t *testing.T) {
	modified := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	fake := &fakeAPI{objects: []storage.ObjectInfo{
		{Key: "buster/prod/org-1/ds-1/exports/date=2024-03-01/q1.parquet", Size: 42, LastModified: modified},
	}}
	store, err := NewWithAPI("exports", "buster/prod", fake)
	if err != nil {
		t.Fatalf("NewWithAPI() error = %v", err)
	}

	objects, err := store.List(context.Background(), "org-1/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if fake.listPrefix != "buster/prod/org-1/" {
		t.Fatalf("list prefix = %q", fake.listPrefix)
	}
	if len(objects) != 1 || objects[0].Key != "org-1/ds-1/exports/date=2024-03-01/q1.parquet" || !objects[0].LastModified.Equal(modified) {
		t.Fatalf("objects = %#v", objects)
	}

	if _, err := store.List(context.Background(), ""); err != nil {
		t.Fatalf("List(\"\") error = %v", err)
	}
	if fake.listPrefix != "buster/prod/" {
		t.Fatalf("root list prefix = %q", fake.listPrefix)
	}
}

func TestPresignGetClampsExpiry(t *testing.T) {
	fake := &fakeAPI{}
	store, err := NewWithAPI("exports", "p", fake)
	if err != nil {
		t.Fatalf("NewWithAPI() error = %v", err)
	}
	link, err := store.PresignGet(context.Background(), "org/q.parquet", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("PresignGet() error = %v", err)
	}
	if fake.lastExpiry != MaxPresignExpiry {
		t.Fatalf("expiry = %s, want %s", fake.lastExpiry, MaxPresignExpiry)
	}
	if link != "https://objects.example.com/exports/p/org/q.parquet?X-Amz-Signature=sig" {
		t.Fatalf("PresignGet() = %q", link)
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		raw     string
		useSSL  bool
		host    string
		secure  bool
		wantErr bool
	}{
		{raw: "https://minio.example.com", host: "minio.example.com", secure: true},
		{raw: "http://localhost:9000", useSSL: true, host: "localhost:9000", secure: true},
		{raw: "localhost:9000", host: "localhost:9000"},
		{raw: "ftp://x", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tc := range cases {
		host, secure, err := parseEndpoint(tc.raw, tc.useSSL)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseEndpoint(%q) expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseEndpoint(%q) error = %v", tc.raw, err)
		}
		if host != tc.host || secure != tc.secure {
			t.Fatalf("parseEndpoint(%q) = %q/%v", tc.raw, host, secure)
		}
	}
}

type fakeAPI struct {
	lastBucket         string
	lastKey            string
	lastContentType    string
	lastExpiry         time.Duration
	bucketExists       bool
	createBucketCalled bool
	missing            bool
	deleteErr          error
	listPrefix         string
	objects            []storage.ObjectInfo
}

func (f *fakeAPI) Put(_ context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	f.lastBucket = bucket
	f.lastKey = key
	f.lastContentType = contentType
	_, _ = io.Copy(io.Discard, reader)
	return storage.ObjectInfo{Key: key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeAPI) Get(_ context.Context, _, key string) (io.ReadCloser, error) {
	if f.missing {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(key)), nil
}

func (f *fakeAPI) Stat(_ context.Context, _, key string) (storage.ObjectInfo, error) {
	if f.missing {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: 10, LastModified: time.Now().UTC()}, nil
}

func (f *fakeAPI) Delete(_ context.Context, _, _ string) error {
	return f.deleteErr
}

func (f *fakeAPI) List(_ context.Context, _, prefix string) ([]storage.ObjectInfo, error) {
	f.listPrefix = prefix
	return f.objects, nil
}

func (f *fakeAPI) PresignGet(_ context.Context, bucket, key string, expiry time.Duration) (*url.URL, error) {
	f.lastExpiry = expiry
	return url.Parse("https://objects.example.com/" + bucket + "/" + key + "?X-Amz-Signature=sig")
}

func (f *fakeAPI) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeAPI) CreateBucket(_ context.Context, _, _ string) error {
	f.createBucketCalled = true
	return nil
}
