// Package archive stores the raw webhook bodies in an S3 compatible bucket,
// one object per delivery, for later inspection and replay.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.vocdoni.io/dvote/log"
)

// recentSize is the number of body digests remembered to skip storing an
// identical redelivery twice.
const recentSize = 512

// Config holds the bucket settings. Endpoint is only needed for non AWS
// providers (MinIO, Backblaze B2...), which are then addressed path style.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// objectPutter is the part of the S3 client used by the archive.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive writes webhook bodies to the bucket.
type Archive struct {
	client objectPutter
	bucket string
	recent *lru.Cache[string, string]
	now    func() time.Time
}

// New creates an S3 client for the configured bucket. Static credentials are
// used when given, otherwise the default AWS credential chain applies.
func New(ctx context.Context, conf *Config) (*Archive, error) {
	if conf == nil || conf.Bucket == "" {
		return nil, fmt.Errorf("missing archive bucket")
	}
	opts := []func(*config.LoadOptions) error{}
	if conf.Region != "" {
		opts = append(opts, config.WithRegion(conf.Region))
	}
	if conf.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.AccessKey, conf.SecretKey, "")))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
			o.UsePathStyle = true
		}
	})
	log.Infow("webhook archive enabled", "bucket", conf.Bucket, "endpoint", conf.Endpoint)
	return newArchive(client, conf.Bucket)
}

func newArchive(client objectPutter, bucket string) (*Archive, error) {
	recent, err := lru.New[string, string](recentSize)
	if err != nil {
		return nil, fmt.Errorf("cannot create cache: %w", err)
	}
	return &Archive{
		client: client,
		bucket: bucket,
		recent: recent,
		now:    time.Now,
	}, nil
}

// Key returns the object key of a delivery:
// provider/yyyy/mm/dd/<id>-<unix millis>.json.
func Key(provider, id string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s-%d.json",
		strings.ToLower(provider), t.Year(), t.Month(), t.Day(), sanitize(id), t.UnixMilli())
}

// Store writes body and returns its object key. A body identical to a
// recently stored one is not written again and the earlier key is returned.
func (a *Archive) Store(ctx context.Context, provider, id string, body []byte) (string, error) {
	sum := sha256.Sum256(body)
	digest := hex.EncodeToString(sum[:])
	if key, ok := a.recent.Get(digest); ok {
		log.Debugw("webhook body already archived", "key", key)
		return key, nil
	}
	key := Key(provider, id, a.now())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"provider": strings.ToLower(provider),
			"sha256":   digest,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", key, err)
	}
	a.recent.Add(digest, key)
	return key, nil
}

// sanitize keeps ids from introducing extra path segments.
func sanitize(id string) string {
	if id == "" {
		return "unknown"
	}
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(id)
}
