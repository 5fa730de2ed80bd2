package objectstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Object is the current state of a stored document
type Object struct {
	Body      []byte
	VersionID string
	// Metadata holds user metadata with lower-cased keys
	Metadata map[string]string
}

// S3Fetcher reads objects from S3 or an S3 compatible store
type S3Fetcher struct {
	client *s3.Client
	logger *slog.Logger
}

// NewS3Fetcher builds a client from the default credential chain. An empty endpoint keeps
// the regional AWS endpoint.
func NewS3Fetcher(ctx context.Context, region, endpoint string, usePathStyle bool, logger *slog.Logger) (*S3Fetcher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = usePathStyle
	})

	return &S3Fetcher{client: client, logger: logger}, nil
}

// Get fetches the latest version of container/key
func (f *S3Fetcher) Get(ctx context.Context, container, key string) (*Object, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", container, key, err)
	}
	defer func() {
		if err := out.Body.Close(); err != nil {
			f.logger.Warn("Unable to close object stream", "container", container, "key", key, "error", err)
		}
	}()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s/%s: %w", container, key, err)
	}

	metadata := make(map[string]string, len(out.Metadata))
	for k, v := range out.Metadata {
		metadata[strings.ToLower(k)] = v
	}

	return &Object{
		Body:      body,
		VersionID: aws.ToString(out.VersionId),
		Metadata:  metadata,
	}, nil
}
