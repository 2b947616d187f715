// Package artifact implements the Artifact Store (AS) against an
// S3-compatible object storage endpoint.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	runtimeconfig "github.com/nikitavbv/sandbox/internal/shared/config"
)

// keyPrefix is the Artifact Store layout prefix ("Key prefix
// output/images/, one object per asset id, body = raw bytes").
const keyPrefix = "output/images/"

// ErrNotFound is returned when an asset id has no corresponding object.
var ErrNotFound = errors.New("artifact: not found")

// Store is the Artifact Store client: a content-addressed blob store keyed
// by opaque asset id.
type Store struct {
	client *s3.Client
	bucket string
}

// New builds a Store against the S3-compatible endpoint named in cfg,
// matching the original source's path-style bucket client
// (state/database.rs: `Bucket::new(...).with_path_style()`).
func New(ctx context.Context, cfg runtimeconfig.ObjectStorage) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("artifact: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Put writes bytes under the given asset id.
func (s *Store) Put(ctx context.Context, assetID string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(keyPrefix + assetID),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("artifact: put %s: %w", assetID, err)
	}
	return nil
}

// Get reads bytes for the given asset id, returning ErrNotFound on a 404.
func (s *Store) Get(ctx context.Context, assetID string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(keyPrefix + assetID),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("artifact: get %s: %w", assetID, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("artifact: read %s: %w", assetID, err)
	}
	return data, nil
}

func isNotFound(err error) bool {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}
