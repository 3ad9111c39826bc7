package recordstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/welldanyogia/mail-attachment-sync/internal/parser"
)

// AttachmentRecord is the persisted shape of one attachment. Raw
// content bytes are never persisted; only the digest, size, and
// storage reference survive.
type AttachmentRecord struct {
	UID         string `json:"uid"`
	Filename    string `json:"filename"`
	ContentHash string `json:"content_hash"`
	ContentSize int64  `json:"content_size"`
	ContentType string `json:"content_type"`
	StorageURL  string `json:"storage_url"`
}

// AttachmentRecords is stored as a JSONB column.
type AttachmentRecords []AttachmentRecord

// Value implements driver.Valuer for JSONB storage.
func (a AttachmentRecords) Value() (driver.Value, error) {
	if a == nil {
		a = AttachmentRecords{}
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner for JSONB retrieval.
func (a *AttachmentRecords) Scan(src interface{}) error {
	if src == nil {
		*a = AttachmentRecords{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported attachments column type %T", src)
	}
	return json.Unmarshal(data, a)
}

// MessageRecord is the persisted shape of a parsed message, keyed by
// the message's stable identifier.
type MessageRecord struct {
	UID          string            `db:"uid"`
	SourceID     string            `db:"source_id"`
	MessageID    string            `db:"message_id"`
	SentFrom     string            `db:"sent_from"`
	SentTo       string            `db:"sent_to"`
	Subject      string            `db:"subject"`
	SubjectHash  string            `db:"subject_hash"`
	SentAt       *time.Time        `db:"sent_at"`
	LastParsedAt time.Time         `db:"last_parsed_at"`
	Attachments  AttachmentRecords `db:"attachments"`
	CreatedAt    time.Time         `db:"created_at"`
}

// FromParsedMessage builds the persisted record for msg, carrying
// whatever storage references the uploader managed to set.
func FromParsedMessage(msg *parser.ParsedMessage) *MessageRecord {
	rec := &MessageRecord{
		UID:          msg.UID(),
		SourceID:     msg.SourceID,
		MessageID:    msg.MessageID,
		SentFrom:     msg.SentFrom,
		SentTo:       msg.SentTo,
		Subject:      msg.Subject,
		SubjectHash:  msg.SubjectHash(),
		LastParsedAt: msg.LastParsedAt,
		Attachments:  make(AttachmentRecords, 0, len(msg.Attachments)),
	}
	if !msg.SentAt.IsZero() {
		sentAt := msg.SentAt
		rec.SentAt = &sentAt
	}
	for _, att := range msg.Attachments {
		rec.Attachments = append(rec.Attachments, AttachmentRecord{
			UID:         att.UID(),
			Filename:    att.Filename,
			ContentHash: att.ContentHash(),
			ContentSize: att.ContentSize(),
			ContentType: att.ContentType,
			StorageURL:  att.StorageURL,
		})
	}
	return rec
}
