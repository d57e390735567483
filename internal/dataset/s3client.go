package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// AWSObjectClient implements ObjectClient using the AWS SDK v2 S3 client.
type AWSObjectClient struct {
	client *s3.Client
}

// NewAWSObjectClient builds an S3-backed ObjectClient for the given region.
// endpointURL is optional and supports LocalStack-style endpoints; when set,
// path-style addressing is enabled.
func NewAWSObjectClient(ctx context.Context, region, endpointURL string) (*AWSObjectClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpointURL != "" {
			o.BaseEndpoint = aws.String(endpointURL)
			o.UsePathStyle = true
		}
	})

	return &AWSObjectClient{client: client}, nil
}

// GetObject fetches an object body. Missing keys are reported by wrapping
// fs.ErrNotExist so callers can use errors.Is.
func (c *AWSObjectClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapS3Error(bucket, key, err)
	}
	return out.Body, nil
}

// StatObject returns the object's ETag via HeadObject.
func (c *AWSObjectClient) StatObject(ctx context.Context, bucket, key string) (string, error) {
	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", mapS3Error(bucket, key, err)
	}
	return aws.ToString(out.ETag), nil
}

// mapS3Error normalizes SDK errors: NoSuchKey/NotFound become fs.ErrNotExist
// wrappers, everything else passes through for the source layer to classify
// as an availability failure.
func mapS3Error(bucket, key string, err error) error {
	var noKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("s3://%s/%s: %w", bucket, key, fs.ErrNotExist)
	}
	return err
}
