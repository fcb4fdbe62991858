// Package publisher uploads finished archives to S3-compatible storage under
// their content digest.
package publisher

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
	"github.com/dmitrijs2005/zipbuilder/internal/cryptox"
	sc "github.com/dmitrijs2005/zipbuilder/internal/server/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// ObjectPutter is the part of *s3.Client the publisher needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client from the server config. Static credentials
// are used when an access key is configured, otherwise the default AWS chain.
// A custom endpoint switches to path-style addressing, which MinIO requires.
func NewS3Client(ctx context.Context, c *sc.Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(c.S3Region)}
	if c.S3AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.S3AccessKeyID,
			c.S3SecretAccessKey,
			"",
		)))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Publication describes an uploaded archive.
type Publication struct {
	Key    string
	URL    string
	Digest string
	Size   int64
}

type Publisher struct {
	client ObjectPutter
	config *sc.Config
}

func New(client ObjectPutter, config *sc.Config) *Publisher {
	return &Publisher{client: client, config: config}
}

// Publish hashes the archive at path and stores it as "<digest>.zip". The
// upload is unconditional: identical content maps to the same key, so a
// repeated upload overwrites the object with the same bytes.
func (p *Publisher) Publish(ctx context.Context, path string) (*Publication, error) {
	digest, size, err := cryptox.DigestFile(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	bucket := p.config.S3Bucket
	key := digest + common.ArchiveExtension

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(common.ArchiveContentType),
		ACL:           types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return nil, fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}

	return &Publication{
		Key:    key,
		URL:    p.PublicURL(key),
		Digest: digest,
		Size:   size,
	}, nil
}

// PublicURL returns the address clients download key from.
func (p *Publisher) PublicURL(key string) string {
	bucket := p.config.S3Bucket

	if base := strings.TrimRight(p.config.PublicBaseURL, "/"); base != "" {
		return fmt.Sprintf("%s/%s/%s", base, bucket, key)
	}
	if p.config.S3URLStyle == sc.URLStylePath {
		return fmt.Sprintf("https://s3.amazonaws.com/%s/%s", bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
}
