// Package upload provides presigned URLs for uploading drawing thumbnails
// directly from the browser to R2.
package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/onnwee/dmflow/internal/validate"
)

// ErrInvalidNodeID is returned when a node id has no usable characters.
var ErrInvalidNodeID = errors.New("invalid node ID")

// extensions maps accepted thumbnail MIME types to object key extensions.
var extensions = map[string]string{
	validate.MIMEImagePNG:  ".png",
	validate.MIMEImageJPEG: ".jpg",
	validate.MIMEImageWebP: ".webp",
}

// DefaultURLExpiry is how long a presigned PUT stays valid.
const DefaultURLExpiry = 5 * time.Minute

// ThumbnailRequest describes the file the browser is about to upload.
type ThumbnailRequest struct {
	NodeID      string
	ContentType string
	SizeBytes   int64
}

// ThumbnailUpload tells the browser where to PUT the file and which URL to
// send back with the next drawing save.
type ThumbnailUpload struct {
	UploadURL    string    `json:"uploadUrl"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	Key          string    `json:"key"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Service generates presigned thumbnail uploads.
type Service struct {
	presignClient *s3.PresignClient
	bucketName    string
	publicURL     string
	urlExpiry     time.Duration
	timeNow       func() time.Time
}

// ServiceConfig holds configuration for the upload service.
type ServiceConfig struct {
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	PublicURL       string
	URLExpiry       time.Duration
}

// NewService creates a new upload service with the given configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.PublicURL == "" {
		return nil, errors.New("public URL is required")
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = DefaultURLExpiry
	}

	// R2 speaks the S3 API with region "auto" and path-style addressing.
	s3Client := s3.New(s3.Options{
		Region: "auto",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
	})

	return &Service{
		presignClient: s3.NewPresignClient(s3Client),
		bucketName:    cfg.BucketName,
		publicURL:     strings.TrimRight(cfg.PublicURL, "/"),
		urlExpiry:     cfg.URLExpiry,
		timeNow:       time.Now,
	}, nil
}

// ObjectKey creates a unique key for a node's thumbnail.
// Pattern: drawings/{nodeId}/{uuid}.{ext}
func ObjectKey(nodeID, contentType string) (string, error) {
	ext, ok := extensions[contentType]
	if !ok {
		return "", validate.ErrInvalidMIMEType
	}
	prefix := sanitizePathComponent(nodeID)
	if prefix == "" {
		return "", ErrInvalidNodeID
	}
	return fmt.Sprintf("drawings/%s/%s%s", prefix, uuid.NewString(), ext), nil
}

// sanitizePathComponent keeps only alphanumerics, hyphens and underscores.
func sanitizePathComponent(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// PresignThumbnail validates the request and returns a presigned PUT URL.
// Validation failures wrap the validate package's file errors.
func (s *Service) PresignThumbnail(ctx context.Context, req ThumbnailRequest) (*ThumbnailUpload, error) {
	contentType, err := validate.Thumbnail(req.ContentType, req.SizeBytes)
	if err != nil {
		return nil, err
	}

	key, err := ObjectKey(req.NodeID, contentType)
	if err != nil {
		return nil, err
	}

	presigned, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(req.SizeBytes),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.urlExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to presign request: %w", err)
	}

	return &ThumbnailUpload{
		UploadURL:    presigned.URL,
		ThumbnailURL: s.publicURL + "/" + key,
		Key:          key,
		ExpiresAt:    s.timeNow().Add(s.urlExpiry),
	}, nil
}

// PublicURL returns the base URL thumbnails are served from. The readiness
// check reads it.
func (s *Service) PublicURL() string {
	return s.publicURL
}
