package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/chirality-ai/valley/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DocumentPrefix is the key prefix of archived ingestion payloads.
const DocumentPrefix = "documents"

// Enabled reports whether a document archive bucket is configured.
func Enabled() bool {
	return util.GetEnv("AWS_BUCKET") != ""
}

// Bucket returns the configured archive bucket.
func Bucket() string {
	return util.GetEnv("AWS_BUCKET")
}

// NewS3Client builds a path-style client from the AWS_* environment. It
// returns nil when no bucket is configured.
func NewS3Client(ctx context.Context) *s3.Client {
	if !Enabled() {
		return nil
	}
	region := util.GetEnv("AWS_REGION")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client
}

// DocumentKey is the object key a document payload is archived under.
func DocumentKey(documentID string) string {
	return path.Join(DocumentPrefix, documentID+".json")
}

// PutDocument archives a raw document payload and returns its key.
func PutDocument(ctx context.Context, client *s3.Client, documentID string, payload []byte) (string, error) {
	key := DocumentKey(documentID)
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(Bucket()),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload document to S3: %w", err)
	}

	return key, nil
}

// ListFilesWithPrefix returns every key under prefix, following pagination.
func ListFilesWithPrefix(ctx context.Context, client *s3.Client, prefix string) ([]string, error) {
	var keys []string
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(Bucket()),
		Prefix: aws.String(prefix),
	}

	for {
		listOutput, err := client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}

		for _, obj := range listOutput.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}

		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}

	return keys, nil
}
