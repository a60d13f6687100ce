package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Uploader is the subset of the S3 upload manager the archiver needs
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Config locates the archive bucket
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Uploader builds an upload manager from the default AWS credential
// chain, or from static credentials when both keys are set
func NewS3Uploader(ctx context.Context, cfg S3Config) (*manager.Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return manager.NewUploader(client), nil
}

// S3Archiver ships unarchived ledger records to S3 as JSON-lines objects
type S3Archiver struct {
	store     Store
	uploader  Uploader
	bucket    string
	prefix    string
	batchSize int
	now       func() time.Time
	log       zerolog.Logger
}

// NewS3Archiver creates an archiver draining store into bucket/prefix
func NewS3Archiver(store Store, uploader Uploader, bucket, prefix string, batchSize int, log zerolog.Logger) *S3Archiver {
	if batchSize < 1 {
		batchSize = 500
	}
	return &S3Archiver{
		store:     store,
		uploader:  uploader,
		bucket:    bucket,
		prefix:    prefix,
		batchSize: batchSize,
		now:       time.Now,
		log:       log.With().Str("component", "audit_archiver").Logger(),
	}
}

// Archive uploads every unarchived record in batches and marks each batch
// archived once its object is written. It returns the number archived.
func (a *S3Archiver) Archive(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		records, err := a.store.Unarchived(ctx, a.batchSize)
		if err != nil {
			return total, err
		}
		if len(records) == 0 {
			break
		}

		key, err := a.upload(ctx, records)
		if err != nil {
			return total, err
		}

		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		if err := a.store.MarkArchived(ctx, ids); err != nil {
			return total, err
		}
		total += len(records)

		a.log.Info().Str("key", key).Int("records", len(records)).Msg("Audit batch archived")

		if len(records) < a.batchSize {
			break
		}
	}
	return total, nil
}

func (a *S3Archiver) upload(ctx context.Context, records []Record) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return "", fmt.Errorf("failed to encode audit record %s: %w", r.ID, err)
		}
	}

	now := a.now().UTC()
	key := path.Join(a.prefix, now.Format("2006/01/02"),
		fmt.Sprintf("%s-%s.jsonl", now.Format("150405.000000000"), records[0].ID))

	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload audit batch %s: %w", key, err)
	}
	return key, nil
}
