package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const DefaultPresignedURLExpiry = 15 * time.Minute

// StorageService hands out short-lived URLs for chat media so that uploads
// and downloads go straight to the bucket.
type StorageService interface {
	PresignUpload(ctx context.Context, objectKey, contentType string) (string, error)
	PresignDownload(ctx context.Context, objectKey string) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

type S3Options struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

type S3StorageService struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	expiry        time.Duration
	logger        *zap.Logger
}

func NewS3StorageService(ctx context.Context, opts S3Options, logger *zap.Logger) (*S3StorageService, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if opts.Endpoint != "" {
			// S3-compatible stores such as MinIO need path-style addressing.
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("s3 storage ready", zap.String("endpoint", opts.Endpoint), zap.String("bucket", opts.Bucket))

	return &S3StorageService{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        opts.Bucket,
		expiry:        DefaultPresignedURLExpiry,
		logger:        logger,
	}, nil
}

func (s *S3StorageService) PresignUpload(ctx context.Context, objectKey, contentType string) (string, error) {
	req, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", objectKey, err)
	}
	return req.URL, nil
}

func (s *S3StorageService) PresignDownload(ctx context.Context, objectKey string) (string, error) {
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", objectKey, err)
	}
	return req.URL, nil
}

func (s *S3StorageService) DeleteObject(ctx context.Context, objectKey string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", objectKey, err)
	}
	s.logger.Debug("deleted chat media", zap.String("key", objectKey))
	return nil
}
