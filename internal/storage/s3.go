package storage

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Options configures the S3 audio uploader.
type Options struct {
	Bucket    string
	Region    string
	Endpoint  string // non-empty for S3-compatible stores (OSS, MinIO)
	AccessKey string
	SecretKey string
	PublicURL string // base URL the provider will fetch objects from
}

// S3Uploader puts meeting audio into an S3-compatible bucket and hands
// back the URL the ASR provider downloads it from. Implements
// pipeline.Uploader.
type S3Uploader struct {
	client    *s3.Client
	bucket    string
	publicURL string
	log       zerolog.Logger
}

// NewS3Uploader creates an S3 uploader from options.
func NewS3Uploader(ctx context.Context, opts Options, log zerolog.Logger) (*S3Uploader, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket not configured")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		),
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}

	publicURL := strings.TrimSuffix(opts.PublicURL, "/")
	if publicURL == "" {
		if opts.Endpoint != "" {
			publicURL = strings.TrimSuffix(opts.Endpoint, "/") + "/" + opts.Bucket
		} else {
			publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
		}
	}

	return &S3Uploader{
		client:    s3.NewFromConfig(awsCfg, s3Opts...),
		bucket:    opts.Bucket,
		publicURL: publicURL,
		log:       log.With().Str("component", "s3-uploader").Logger(),
	}, nil
}

// HeadBucket checks that the bucket exists and credentials are valid.
func (u *S3Uploader) HeadBucket(ctx context.Context) error {
	_, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &u.bucket})
	return err
}

// Upload puts a local file under key and returns its public URL.
func (u *S3Uploader) Upload(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	contentType := "audio/mp4"
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &u.bucket,
		Key:         &key,
		Body:        f,
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	url := u.publicURL + "/" + key
	u.log.Debug().Str("key", key).Str("url", url).Msg("audio uploaded")
	return url, nil
}
