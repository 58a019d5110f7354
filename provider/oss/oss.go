// Package oss stores tiles as objects in an Aliyun OSS bucket, one object per
// storage key. Suited to large seeded areas shared by many hosts; every Get is
// a network round trip.
package oss

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	alioss "github.com/aliyun/aliyun-oss-go-sdk/oss"

	pr "github.com/unkn0wn-root/tilecache/provider"
)

var ErrNilBucket = errors.New("oss provider: nil bucket")

// maxDeleteBatch is the OSS limit for one DeleteObjects call.
const maxDeleteBatch = 1000

// Bucket is the subset of *alioss.Bucket the provider uses.
type Bucket interface {
	GetObject(objectKey string, options ...alioss.Option) (io.ReadCloser, error)
	PutObject(objectKey string, reader io.Reader, options ...alioss.Option) error
	DeleteObject(objectKey string, options ...alioss.Option) error
	ListObjectsV2(options ...alioss.Option) (alioss.ListObjectsResultV2, error)
	DeleteObjects(objectKeys []string, options ...alioss.Option) (alioss.DeleteObjectsResult, error)
}

type OSS struct {
	b      Bucket
	prefix string
}

var _ pr.Provider = (*OSS)(nil)

type Config struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	// KeyPrefix is prepended to every object key, e.g. "tiles/".
	KeyPrefix string
}

// New dials OSS and binds the configured bucket.
func New(cfg Config) (*OSS, error) {
	client, err := alioss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, err
	}
	b, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, err
	}
	return NewWithBucket(b, cfg.KeyPrefix)
}

func NewWithBucket(b Bucket, keyPrefix string) (*OSS, error) {
	if b == nil {
		return nil, ErrNilBucket
	}
	return &OSS{b: b, prefix: keyPrefix}, nil
}

func (p *OSS) Get(ctx context.Context, key string) ([]byte, bool, error) {
	rc, err := p.b.GetObject(p.prefix+key, alioss.WithContext(ctx))
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *OSS) Set(ctx context.Context, key string, value []byte) error {
	return p.b.PutObject(p.prefix+key, bytes.NewReader(value), alioss.WithContext(ctx))
}

func (p *OSS) Del(ctx context.Context, key string) error {
	err := p.b.DeleteObject(p.prefix+key, alioss.WithContext(ctx))
	if isNotFound(err) {
		return nil
	}
	return err
}

func (p *OSS) DelPrefix(ctx context.Context, prefix string) error {
	token := ""
	for {
		opts := []alioss.Option{
			alioss.Prefix(p.prefix + prefix),
			alioss.MaxKeys(maxDeleteBatch),
			alioss.WithContext(ctx),
		}
		if token != "" {
			opts = append(opts, alioss.ContinuationToken(token))
		}
		res, err := p.b.ListObjectsV2(opts...)
		if err != nil {
			return err
		}
		if len(res.Objects) > 0 {
			keys := make([]string, 0, len(res.Objects))
			for _, o := range res.Objects {
				keys = append(keys, o.Key)
			}
			if _, err := p.b.DeleteObjects(keys, alioss.DeleteObjectsQuiet(true), alioss.WithContext(ctx)); err != nil {
				return err
			}
		}
		if !res.IsTruncated {
			return nil
		}
		token = res.NextContinuationToken
	}
}

func (p *OSS) Close(context.Context) error { return nil }

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var se alioss.ServiceError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusNotFound || strings.EqualFold(se.Code, "NoSuchKey")
	}
	return false
}
