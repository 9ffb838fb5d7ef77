package s3

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/singleflight"

	"github.com/chirality-ai/valley/pkg/loader"
)

// objectGetter is the part of *s3.Client the loader needs.
type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3DocumentLoader is a DocumentLoader implementation that loads documents
// from an S3 bucket (or an S3 compatible store such as MinIO). The source
// path is used as the object key.
type S3DocumentLoader struct {
	bucket string
	client objectGetter

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewS3DocumentLoaderWithClient creates a new S3DocumentLoader using an
// existing client.
func NewS3DocumentLoaderWithClient(bucket string, client objectGetter) *S3DocumentLoader {
	return &S3DocumentLoader{
		bucket: bucket,
		client: client,
		cache:  make(map[string][]byte),
	}
}

// NewS3DocumentLoaderParams defines the configuration parameters for
// creating a new S3DocumentLoader.
//
// Endpoint allows overriding the S3 endpoint (useful for S3-compatible
// storage like MinIO).
type NewS3DocumentLoaderParams struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3DocumentLoader creates a new S3DocumentLoader with static
// credentials and the given endpoint and region.
//
// Example:
//
//	l, err := s3.NewS3DocumentLoader(ctx, s3.NewS3DocumentLoaderParams{
//		Bucket:    "valley-documents",
//		Endpoint:  "http://localhost:9000",
//		Region:    "us-east-1",
//		AccessKey: os.Getenv("AWS_ACCESS_KEY"),
//		SecretKey: os.Getenv("AWS_SECRET_KEY"),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	docs, err := loader.NewDocumentSource("documents/doc_1.json", l).Load(ctx, false)
func NewS3DocumentLoader(ctx context.Context, params NewS3DocumentLoaderParams) (*S3DocumentLoader, error) {
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(params.Region),
		config.WithBaseEndpoint(params.Endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return NewS3DocumentLoaderWithClient(params.Bucket, client), nil
}

// GetDocumentBytes retrieves the object at src.Path from the configured
// bucket. Results are cached.
func (l *S3DocumentLoader) GetDocumentBytes(ctx context.Context, src loader.DocumentSource) ([]byte, error) {
	cacheKey := loader.CacheKey(src)

	l.cacheMu.RLock()
	if cached, ok := l.cache[cacheKey]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(cacheKey, func() (any, error) {
		out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(src.Path),
		})
		if err != nil {
			return nil, err
		}
		defer out.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, out.Body); err != nil {
			return nil, err
		}

		b := buf.Bytes()

		l.cacheMu.Lock()
		l.cache[cacheKey] = b
		l.cacheMu.Unlock()

		return b, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}
