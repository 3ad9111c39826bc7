// Package blobstore implements the blob store surface over S3/MinIO.
package blobstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/welldanyogia/mail-attachment-sync/internal/config"
	"github.com/welldanyogia/mail-attachment-sync/internal/uploader"
)

// S3Store uploads attachment objects to an S3-compatible bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates an S3Store from storage configuration.
func NewS3Store(cfg *config.StorageConfig) *S3Store {
	// Build endpoint URL - handle case where endpoint already includes protocol
	var endpointURL string
	if strings.HasPrefix(cfg.Endpoint, "http://") || strings.HasPrefix(cfg.Endpoint, "https://") {
		endpointURL = cfg.Endpoint
	} else {
		protocol := "http"
		if cfg.UseSSL {
			protocol = "https"
		}
		endpointURL = protocol + "://" + cfg.Endpoint
	}

	client := s3.New(s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
		BaseEndpoint: aws.String(endpointURL),
		UsePathStyle: true, // Required for MinIO
	})

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
	}
}

// CreateObject decodes the base64 payload and writes it under the
// configured parent folder, returning the object's reference URL. Each
// call creates a fresh object: re-uploading the same content after a
// partial failure produces a duplicate with a new key.
func (s *S3Store) CreateObject(ctx context.Context, in uploader.CreateObjectInput) (*uploader.CreateObjectOutput, error) {
	data, err := base64.StdEncoding.DecodeString(in.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := objectKey(in.ParentFolderID, in.Name)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload object: %w", err)
	}

	return &uploader.CreateObjectOutput{
		ReferenceURL: fmt.Sprintf("s3://%s/%s", s.bucket, key),
	}, nil
}

// objectKey builds a unique storage key for an object.
// Format: {parentFolderID}/{uuid}_{sanitized_filename}
func objectKey(parentFolderID, filename string) string {
	sanitized := sanitizeFilename(filename)
	if sanitized == "" {
		sanitized = "attachment"
	}
	return fmt.Sprintf("%s/%s_%s", parentFolderID, uuid.New().String(), sanitized)
}

// pathTraversalChars are stripped from filenames before key building.
var pathTraversalChars = []string{
	"..",
	"/",
	"\\",
	"\x00",
}

// sanitizeFilename removes path traversal characters and caps the
// filename length so it stays a valid object key segment.
func sanitizeFilename(filename string) string {
	if filename == "" {
		return ""
	}

	for _, char := range pathTraversalChars {
		filename = strings.ReplaceAll(filename, char, "")
	}

	filename = filepath.Base(filename)

	if len(filename) > 255 {
		ext := filepath.Ext(filename)
		name := filename[:len(filename)-len(ext)]
		if len(name) > 255-len(ext) {
			name = name[:255-len(ext)]
		}
		filename = name + ext
	}

	return filename
}
