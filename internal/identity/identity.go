// Package identity derives stable content-addressed identifiers for
// parsed messages and their attachments. Identifiers are pure functions
// of their inputs: the same message parsed on two different sync passes
// resolves to the same record store key.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// ContentHash returns the lowercase hex SHA-256 digest of content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// SubjectHash returns the lowercase hex SHA-256 digest of a subject line.
func SubjectHash(subject string) string {
	return ContentHash([]byte(subject))
}

// AttachmentUID derives the stable identifier of an attachment from its
// filename, content bytes, and content type. The storage URL is not part
// of the identity: uploading an attachment does not change its UID.
func AttachmentUID(filename string, content []byte, contentType string) string {
	payload := strings.Join([]string{
		filename,
		ContentHash(content),
		contentType,
	}, ":")
	return ContentHash([]byte(payload))
}

// MessageUID derives the stable identifier of a parsed message. All
// fields that distinguish one delivered message from another are
// encoded: sender, recipient mailbox, subject (hashed), Message-Id
// header, provider-native message id, and sent timestamp.
func MessageUID(sentFrom, sentTo, subject, messageID, sourceID string, sentAt time.Time) string {
	payload := strings.Join([]string{
		sentFrom,
		sentTo,
		SubjectHash(subject),
		messageID,
		sourceID,
		formatSentAt(sentAt),
	}, ":")
	return ContentHash([]byte(payload))
}

// formatSentAt renders a sent timestamp for identity derivation. A zero
// time (Date header absent or unparsable) renders as "0" so that the
// identifier stays stable across passes.
func formatSentAt(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.Unix(), 10)
}
