package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3API is the subset of the S3 client used by S3Store. *s3.S3 satisfies it.
type S3API interface {
	PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
	GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
	HeadObjectWithContext(ctx aws.Context, in *s3.HeadObjectInput, opts ...request.Option) (*s3.HeadObjectOutput, error)
	DeleteObjectWithContext(ctx aws.Context, in *s3.DeleteObjectInput, opts ...request.Option) (*s3.DeleteObjectOutput, error)
	ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, opts ...request.Option) error
	GetObjectRequest(in *s3.GetObjectInput) (*request.Request, *s3.GetObjectOutput)
}

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	Prefix    string `yaml:"prefix"`
}

// S3Store stores uploads as objects at <prefix>/<owner key>/<log type>.
// Upload metadata travels as object metadata and is checked on every read,
// so a key collision never hands one owner another owner's file.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// NewS3 creates a store using credentials from the default AWS chain.
func NewS3(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	awsCfg := aws.Config{}
	if cfg.Region != "" {
		awsCfg.Region = aws.String(cfg.Region)
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(cfg.PathStyle)
	}
	sess, err := session.NewSession(&awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return NewS3WithClient(s3.New(sess), cfg.Bucket, cfg.Prefix), nil
}

// NewS3WithClient creates a store around an existing client.
func NewS3WithClient(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Close implements Store.
func (s *S3Store) Close() error { return nil }

func (s *S3Store) ownerPrefix(owner string) string {
	return path.Join(s.prefix, "user-files", OwnerKey(owner)) + "/"
}

func (s *S3Store) key(owner, logType string) string {
	return s.ownerPrefix(owner) + logType
}

// object metadata keys; the SDK canonicalises them on the way back
const (
	mdOwner    = "Owner"
	mdID       = "Upload-Id"
	mdLogType  = "Log-Type"
	mdFilename = "Filename"
	mdLines    = "Lines"
	mdHash     = "Hash"
	mdUploaded = "Uploaded"
)

// Put implements Store.
func (s *S3Store) Put(ctx context.Context, meta Meta, data []byte) (Meta, error) {
	meta.Size = int64(len(data))
	meta.Hash = ContentHash(data)
	if meta.Uploaded.IsZero() {
		meta.Uploaded = time.Now().UTC()
	}
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "text/plain"
	}
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(meta.Owner, meta.LogType)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: aws.StringMap(map[string]string{
			mdOwner:    meta.Owner,
			mdID:       meta.ID,
			mdLogType:  meta.LogType,
			mdFilename: meta.Filename,
			mdLines:    strconv.Itoa(meta.Lines),
			mdHash:     meta.Hash,
			mdUploaded: meta.Uploaded.Format(time.RFC3339),
		}),
	})
	if err != nil {
		return Meta{}, fmt.Errorf("put object: %w", err)
	}
	return meta, nil
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, owner, logType string) ([]byte, Meta, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(owner, logType)),
	})
	if err != nil {
		return nil, Meta{}, translateS3Error(err)
	}
	defer out.Body.Close()

	meta := metaFromS3(out.Metadata, aws.Int64Value(out.ContentLength), aws.StringValue(out.ContentType))
	if meta.Owner != owner {
		return nil, Meta{}, ErrNotFound
	}
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("read object: %w", err)
	}
	meta.Size = int64(len(data))
	return data, meta, nil
}

// Stat implements Store.
func (s *S3Store) Stat(ctx context.Context, owner, logType string) (Meta, error) {
	out, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(owner, logType)),
	})
	if err != nil {
		return Meta{}, translateS3Error(err)
	}
	meta := metaFromS3(out.Metadata, aws.Int64Value(out.ContentLength), aws.StringValue(out.ContentType))
	if meta.Owner != owner {
		return Meta{}, ErrNotFound
	}
	return meta, nil
}

// List implements Store. Objects whose metadata names another owner are
// skipped.
func (s *S3Store) List(ctx context.Context, owner string) ([]Meta, error) {
	var keys []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.ownerPrefix(owner)),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	out := make([]Meta, 0, len(keys))
	prefix := s.ownerPrefix(owner)
	for _, k := range keys {
		meta, err := s.Stat(ctx, owner, strings.TrimPrefix(k, prefix))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LogType < out[j].LogType })
	return out, nil
}

// Delete implements Store.
func (s *S3Store) Delete(ctx context.Context, owner, logType string) error {
	if _, err := s.Stat(ctx, owner, logType); err != nil {
		return err
	}
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(owner, logType)),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// SignedURL implements URLSigner.
func (s *S3Store) SignedURL(ctx context.Context, owner, logType string, ttl time.Duration) (string, error) {
	if _, err := s.Stat(ctx, owner, logType); err != nil {
		return "", err
	}
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(owner, logType)),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("presign: %w", err)
	}
	return url, nil
}

func metaFromS3(md map[string]*string, size int64, contentType string) Meta {
	get := func(k string) string {
		for mk, v := range md {
			if strings.EqualFold(mk, k) {
				return aws.StringValue(v)
			}
		}
		return ""
	}
	lines, _ := strconv.Atoi(get(mdLines))
	uploaded, _ := time.Parse(time.RFC3339, get(mdUploaded))
	return Meta{
		ID:          get(mdID),
		Owner:       get(mdOwner),
		LogType:     get(mdLogType),
		Filename:    get(mdFilename),
		ContentType: contentType,
		Size:        size,
		Lines:       lines,
		Hash:        get(mdHash),
		Uploaded:    uploaded,
	}
}

func translateS3Error(err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return ErrNotFound
		}
	}
	return fmt.Errorf("s3: %w", err)
}
