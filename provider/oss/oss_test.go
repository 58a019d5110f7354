package oss

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sort"
	"strings"
	"testing"

	alioss "github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// fakeBucket keeps objects in a map and pages listings two at a time.
type fakeBucket struct {
	objects map[string][]byte
	lists   int
}

func newFakeBucket() *fakeBucket { return &fakeBucket{objects: map[string][]byte{}} }

func notFound() error {
	return alioss.ServiceError{StatusCode: http.StatusNotFound, Code: "NoSuchKey"}
}

func (b *fakeBucket) GetObject(k string, _ ...alioss.Option) (io.ReadCloser, error) {
	v, ok := b.objects[k]
	if !ok {
		return nil, notFound()
	}
	return io.NopCloser(bytes.NewReader(v)), nil
}

func (b *fakeBucket) PutObject(k string, r io.Reader, _ ...alioss.Option) error {
	v, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[k] = v
	return nil
}

func (b *fakeBucket) DeleteObject(k string, _ ...alioss.Option) error {
	if _, ok := b.objects[k]; !ok {
		return notFound()
	}
	delete(b.objects, k)
	return nil
}

// ListObjectsV2 ignores options and reports every object; pagination is
// simulated by returning at most two keys and a truncation flag.
func (b *fakeBucket) ListObjectsV2(_ ...alioss.Option) (alioss.ListObjectsResultV2, error) {
	b.lists++
	var keys []string
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var res alioss.ListObjectsResultV2
	for _, k := range keys {
		if !strings.HasPrefix(k, "tiles/tile:db:a:") {
			continue
		}
		if len(res.Objects) == 2 {
			res.IsTruncated = true
			res.NextContinuationToken = "next"
			break
		}
		res.Objects = append(res.Objects, alioss.ObjectProperties{Key: k})
	}
	return res, nil
}

func (b *fakeBucket) DeleteObjects(keys []string, _ ...alioss.Option) (alioss.DeleteObjectsResult, error) {
	for _, k := range keys {
		delete(b.objects, k)
	}
	return alioss.DeleteObjectsResult{}, nil
}

func TestOSSProvider(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBucket()
	p, err := NewWithBucket(fb, "tiles/")
	if err != nil {
		t.Fatalf("NewWithBucket: %v", err)
	}

	if _, ok, err := p.Get(ctx, "tile:db:a:1"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	for _, k := range []string{"tile:db:a:1", "tile:db:a:2", "tile:db:a:3", "tile:db:b:1"} {
		if err := p.Set(ctx, k, []byte(k)); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if _, ok := fb.objects["tiles/tile:db:a:1"]; !ok {
		t.Fatalf("key prefix not applied: %v", fb.objects)
	}
	got, ok, err := p.Get(ctx, "tile:db:a:1")
	if err != nil || !ok || string(got) != "tile:db:a:1" {
		t.Fatalf("Get: ok=%v err=%v got=%q", ok, err, got)
	}

	if err := p.DelPrefix(ctx, "tile:db:a:"); err != nil {
		t.Fatalf("DelPrefix: %v", err)
	}
	if fb.lists < 2 {
		t.Fatalf("expected paginated listing, lists=%d", fb.lists)
	}
	if len(fb.objects) != 1 {
		t.Fatalf("expected only foreign key to remain, got %v", fb.objects)
	}
	if err := p.Del(ctx, "tile:db:a:1"); err != nil {
		t.Fatalf("Del of missing object should be nil, got %v", err)
	}
}

func TestNewWithNilBucket(t *testing.T) {
	if _, err := NewWithBucket(nil, ""); err != ErrNilBucket {
		t.Fatalf("expected ErrNilBucket, got %v", err)
	}
}
