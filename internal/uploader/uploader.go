// Package uploader pushes parsed attachments to the blob store and
// annotates each attachment with its storage reference URL.
package uploader

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/welldanyogia/mail-attachment-sync/internal/metrics"
	"github.com/welldanyogia/mail-attachment-sync/internal/parser"
)

// BlobStore is the consumed blob store surface. Implemented by
// blobstore.S3Store in production.
type BlobStore interface {
	CreateObject(ctx context.Context, in CreateObjectInput) (*CreateObjectOutput, error)
}

// CreateObjectInput carries one attachment to the blob store. Payload
// is the base64-encoded attachment content.
type CreateObjectInput struct {
	Name           string
	ParentFolderID string
	ContentType    string
	Payload        string
}

// CreateObjectOutput is the blob store response for a created object.
type CreateObjectOutput struct {
	ReferenceURL string
}

// Uploader uploads message attachments sequentially. One attachment's
// failure never aborts the others; there are no retries at this layer.
type Uploader struct {
	store    BlobStore
	folderID string
	enabled  bool
	logger   *slog.Logger
}

// New creates an Uploader. When enabled is false the store may be nil;
// Upload becomes a no-op.
func New(store BlobStore, folderID string, enabled bool, logger *slog.Logger) *Uploader {
	return &Uploader{
		store:    store,
		folderID: folderID,
		enabled:  enabled,
		logger:   logger,
	}
}

// Upload submits every attachment of msg to the blob store and sets the
// storage reference URL on success. Failed attachments keep an empty
// URL; a later re-run may upload them again as new objects.
func (u *Uploader) Upload(ctx context.Context, msg *parser.ParsedMessage) {
	if !u.enabled {
		return
	}

	uid := msg.UID()
	for _, att := range msg.Attachments {
		out, err := u.store.CreateObject(ctx, CreateObjectInput{
			Name:           att.Filename,
			ParentFolderID: u.folderID,
			ContentType:    att.ContentType,
			Payload:        base64.StdEncoding.EncodeToString(att.Content),
		})
		if err != nil {
			u.logger.Error("failed to upload attachment",
				"message_uid", uid,
				"attachment_uid", att.UID(),
				"filename", att.Filename,
				"error", err,
			)
			metrics.AttachmentUploadsTotal.WithLabelValues("failed").Inc()
			continue
		}

		att.StorageURL = out.ReferenceURL
		metrics.AttachmentUploadsTotal.WithLabelValues("uploaded").Inc()
		u.logger.Info("uploaded attachment",
			"message_uid", uid,
			"filename", att.Filename,
			"storage_url", att.StorageURL,
		)
	}
}
