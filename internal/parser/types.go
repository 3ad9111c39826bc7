package parser

import (
	"time"

	"github.com/welldanyogia/mail-attachment-sync/internal/identity"
)

// Attachment is one qualifying MIME part extracted from a message. The
// storage URL starts empty and is set exactly once by the uploader; it
// is not part of the attachment's identity.
type Attachment struct {
	Filename    string
	Content     []byte
	ContentType string
	StorageURL  string
}

// ContentHash returns the SHA-256 digest of the attachment content.
func (a *Attachment) ContentHash() string {
	return identity.ContentHash(a.Content)
}

// ContentSize returns the byte length of the attachment content.
func (a *Attachment) ContentSize() int64 {
	return int64(len(a.Content))
}

// UID returns the stable identifier of the attachment.
func (a *Attachment) UID() string {
	return identity.AttachmentUID(a.Filename, a.Content, a.ContentType)
}

// ParsedMessage is the canonical record produced from one raw message
// fetched from a mailbox. It lives for a single sync pass: the record
// store is the only durable state.
type ParsedMessage struct {
	Attachments  []*Attachment
	SourceID     string    // provider-native message identifier
	LastParsedAt time.Time // refreshed every run
	MessageID    string    // Message-Id header value, may be empty
	SentAt       time.Time // zero when the Date header is absent or unparsable
	SentFrom     string    // sender filter that matched the message
	SentTo       string    // recipient mailbox address
	Subject      string
}

// SubjectHash returns the SHA-256 digest of the subject line.
func (m *ParsedMessage) SubjectHash() string {
	return identity.SubjectHash(m.Subject)
}

// UID returns the stable identifier of the message, used as the record
// store key. Stable across repeated parses of the same message.
func (m *ParsedMessage) UID() string {
	return identity.MessageUID(m.SentFrom, m.SentTo, m.Subject, m.MessageID, m.SourceID, m.SentAt)
}

// HasAttachments reports whether the message carries at least one
// qualifying attachment. Messages without any are discarded.
func (m *ParsedMessage) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// ParseError describes a per-message parse failure. Parse failures are
// recoverable at the sync pass level: the message is skipped and the
// pass continues.
type ParseError struct {
	Stage   string // which parsing stage failed
	Message string
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return e.Message
}

// Content type and header constants
const (
	ContentTypeHTML        = "text/html"
	ContentTypeOctetStream = "application/octet-stream"

	HeaderSubject     = "Subject"
	HeaderMessageID   = "Message-Id"
	HeaderDate        = "Date"
	HeaderContentType = "Content-Type"
	HeaderEncoding    = "Content-Transfer-Encoding"
	HeaderDisposition = "Content-Disposition"

	DispositionAttachment = "attachment"
)
