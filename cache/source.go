package cache

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pithecene-io/bundleforge/bferr"
)

// Source resolves a payload's acquire step to a local file, either by
// finding it under a known search root or by downloading it. This models
// the specification's "acquire_* resolves to either a local-copy path or
// a download URL" rule as a single interface so acquire_payload and
// acquire_container don't need to branch on backend kind.
type Source interface {
	// Fetch retrieves key into destPath, truncating and overwriting any
	// existing content there.
	Fetch(ctx context.Context, key, destPath string) error
}

// LocalSource resolves payloads already present under one of a set of
// known search roots (the "local-copy path" branch of acquire_*), copying
// them into the working cache location.
type LocalSource struct {
	Roots []string
}

// Fetch searches Roots in order for a file named key and copies the first
// match to destPath.
func (s *LocalSource) Fetch(_ context.Context, key, destPath string) error {
	for _, root := range s.Roots {
		candidate := filepath.Join(root, key)
		if _, err := os.Stat(candidate); err == nil {
			if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
				return bferr.Wrap(bferr.IO, "cache.LocalSource.Fetch", err)
			}
			return copyFile(candidate, destPath)
		}
	}
	return bferr.New(bferr.NotFound, "cache.LocalSource.Fetch").WithBundle(key)
}

// S3Config configures an S3Source, grounded on quarry/lode/client_s3.go's
// S3Config shape (bucket, prefix, region, custom endpoint, path-style
// addressing for S3-compatible providers like R2 or MinIO).
type S3Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// S3Source downloads payloads from an S3-compatible bucket. It wires
// aws-sdk-go-v2 directly rather than through quarry's lode.Dataset
// abstraction: lode's Hive-partitioned, codec-driven dataset layout has
// no use here (a payload cache key is a flat content hash, not a
// partitioned event record), but the underlying S3 client construction
// quarry/lode/client_s3.go performs — default credential chain, optional
// region/endpoint/path-style overrides — applies unchanged.
type S3Source struct {
	cfg    S3Config
	client *s3.Client
}

// NewS3Source builds an S3Source using the AWS SDK's default credential
// chain (environment, shared config, IAM role).
func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, bferr.New(bferr.InvalidArgument, "cache.NewS3Source")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, bferr.Wrap(bferr.IO, "cache.NewS3Source", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(endpoint) })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return &S3Source{
		cfg:    cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
	}, nil
}

// Fetch downloads cfg.Prefix+key from the bucket to destPath.
func (s *S3Source) Fetch(ctx context.Context, key, destPath string) error {
	objectKey := key
	if s.cfg.Prefix != "" {
		objectKey = s.cfg.Prefix + "/" + key
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return bferr.Wrap(bferr.IO, "cache.S3Source.Fetch", err).WithBundle(key)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return bferr.Wrap(bferr.IO, "cache.S3Source.Fetch", err)
	}
	f, err := os.Create(destPath)
	if err != nil {
		return bferr.Wrap(bferr.IO, "cache.S3Source.Fetch", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		return bferr.Wrap(bferr.IO, "cache.S3Source.Fetch", err)
	}
	return nil
}

// ChainSource tries each Source in order, returning the first success.
// This is the acquire-retry fan-in the specification's "retry acquire
// from start" UI response needs: a failed local lookup falls through to a
// remote source without the caller distinguishing which one ultimately
// succeeded.
type ChainSource struct {
	Sources []Source
}

func (c *ChainSource) Fetch(ctx context.Context, key, destPath string) error {
	var lastErr error
	for _, src := range c.Sources {
		if err := src.Fetch(ctx, key, destPath); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		return bferr.New(bferr.NotFound, "cache.ChainSource.Fetch").WithBundle(key)
	}
	return lastErr
}
