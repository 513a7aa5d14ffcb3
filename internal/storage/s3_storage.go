package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dennismathu/moomarket/internal/config"
)

// IS3Storage defines the interface for S3 operations.
type IS3Storage interface {
	PresignListingPhotoUpload(ctx context.Context, sellerID, listingID, filename, contentType string) (string, string, error)
	PresignVerificationDocUpload(ctx context.Context, sellerID, filename, contentType string) (string, string, error)
	GetObject(ctx context.Context, key string) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, key, contentType string, body []byte) error
	DeleteObject(ctx context.Context, key string) error
}

// s3Storage implements IS3Storage.
type s3Storage struct {
	cfg           *config.Config
	s3Client      *s3.Client
	presignClient *s3.PresignClient
}

// NewS3Storage creates a new S3 storage service.
func NewS3Storage(cfg *config.Config) (IS3Storage, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(context.TODO(),
		aws_config.WithRegion(cfg.AwsRegion),
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"", // session token
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	return &s3Storage{
		cfg:           cfg,
		s3Client:      s3Client,
		presignClient: s3.NewPresignClient(s3Client),
	}, nil
}

const presignExpiration = 15 * time.Minute

// PresignListingPhotoUpload creates a pre-signed PUT URL for a raw listing
// photo. The key lands under uploads/ and the image worker moves the
// processed result under photos/. Returns the URL and the object key.
func (s *s3Storage) PresignListingPhotoUpload(ctx context.Context, sellerID, listingID, filename, contentType string) (string, string, error) {
	objectKey := fmt.Sprintf("uploads/%s/%s/%s_%s", sellerID, listingID, uuid.NewString(), sanitizeFilename(filename))
	return s.presignPut(ctx, objectKey, contentType)
}

// PresignVerificationDocUpload creates a pre-signed PUT URL for a seller
// verification document. These keys are never publicly served.
func (s *s3Storage) PresignVerificationDocUpload(ctx context.Context, sellerID, filename, contentType string) (string, string, error) {
	objectKey := fmt.Sprintf("verification/%s/%s_%s", sellerID, uuid.NewString(), sanitizeFilename(filename))
	return s.presignPut(ctx, objectKey, contentType)
}

func (s *s3Storage) presignPut(ctx context.Context, objectKey, contentType string) (string, string, error) {
	presignParams := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AwsS3Bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}
	presignedReq, err := s.presignClient.PresignPutObject(ctx, presignParams, s3.WithPresignExpires(presignExpiration))
	if err != nil {
		return "", "", fmt.Errorf("failed to generate presigned PUT URL for key %s: %w", objectKey, err)
	}
	return presignedReq.URL, objectKey, nil
}

// GetObject fetches an object. The caller must close the returned body.
func (s *s3Storage) GetObject(ctx context.Context, key string) (*s3.GetObjectOutput, error) {
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.AwsS3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	return out, nil
}

// PutObject uploads an object directly. Used by the image worker for
// processed photos.
func (s *s3Storage) PutObject(ctx context.Context, key, contentType string, body []byte) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AwsS3Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Body:        bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// DeleteObject removes an object, typically a raw upload after processing.
func (s *s3Storage) DeleteObject(ctx context.Context, key string) error {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.AwsS3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func sanitizeFilename(filename string) string {
	base := path.Base(filename)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, base)
}
