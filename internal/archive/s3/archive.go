// Package s3archive keeps raw order payloads and raw logs in an
// S3-compatible bucket for replay and audit.
package s3archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"orderScope/internal/model"
)

// ClientConfig configures the bucket connection. Endpoint is empty for AWS S3
// and set for compatible providers such as MinIO or R2.
type ClientConfig struct {
	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive writes JSONL objects under date-partitioned keys.
type Archive struct {
	client putObjectAPI
	bucket string
	prefix string
	now    func() time.Time
}

func New(ctx context.Context, cfg ClientConfig) (*Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3archive: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3archive: region is required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3archive: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if u, err := url.Parse(endpoint); err != nil || u.Scheme == "" {
			endpoint = "https://" + endpoint
		}
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(endpoint) })
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return newArchive(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix), nil
}

func newArchive(client putObjectAPI, bucket, prefix string) *Archive {
	return &Archive{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// ArchiveRawOrders stores one ingestion batch as a JSONL object.
func (a *Archive) ArchiveRawOrders(ctx context.Context, raws []model.RawOrder) error {
	if len(raws) == 0 {
		return nil
	}
	items := make([]any, len(raws))
	for i := range raws {
		items[i] = raws[i]
	}
	return a.put(ctx, "raw-orders", items)
}

// PutLogBatch stores a batch of raw logs as a JSONL object.
func (a *Archive) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	items := make([]any, len(logs))
	for i := range logs {
		items[i] = logs[i]
	}
	return a.put(ctx, "logs", items)
}

func (a *Archive) key(kind string) string {
	now := a.now().UTC()
	return path.Join(a.prefix, kind, now.Format("2006-01-02"), fmt.Sprintf("%d-%s.jsonl", now.Unix(), uuid.NewString()))
}

func (a *Archive) put(ctx context.Context, kind string, items []any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("s3archive: encode %s: %w", kind, err)
		}
	}
	key := a.key(kind)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("s3archive: put object %s: %w", key, err)
	}
	return nil
}
