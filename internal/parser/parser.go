package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"
)

// MessageParser converts raw RFC 5322 message blobs into ParsedMessage
// records, extracting qualifying attachments along the way.
type MessageParser struct {
	logger *slog.Logger
}

// NewMessageParser creates a new MessageParser with the given logger.
func NewMessageParser(logger *slog.Logger) *MessageParser {
	return &MessageParser{logger: logger}
}

// Parse parses a raw message blob fetched from the mailbox identified
// by mailboxAddr. senderFilter is the filter string that matched the
// message and sourceID is the provider-native message identifier.
//
// Headers are populated opportunistically: a missing Subject, Message-Id
// or Date header leaves the corresponding field at its zero value. Only
// an undecodable message is an error.
func (p *MessageParser) Parse(raw []byte, senderFilter, mailboxAddr, sourceID string) (*ParsedMessage, error) {
	if len(raw) == 0 {
		return nil, &ParseError{Stage: "read", Message: "empty message data"}
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, &ParseError{
			Stage:   "read",
			Message: fmt.Sprintf("failed to read message: %v", err),
		}
	}

	parsed := &ParsedMessage{
		SourceID:     sourceID,
		LastParsedAt: time.Now().UTC(),
		SentFrom:     senderFilter,
		SentTo:       mailboxAddr,
		Subject:      decodeHeader(msg.Header.Get(HeaderSubject)),
		MessageID:    msg.Header.Get(HeaderMessageID),
		SentAt:       parseDate(msg.Header.Get(HeaderDate)),
	}

	attachments, err := p.extractAttachments(msg)
	if err != nil {
		return nil, &ParseError{
			Stage:   "mime",
			Message: fmt.Sprintf("failed to walk MIME parts: %v", err),
		}
	}
	parsed.Attachments = attachments

	for _, att := range parsed.Attachments {
		p.logger.Info("parsed attachment",
			"filename", att.Filename,
			"content_size", att.ContentSize(),
			"content_type", att.ContentType,
			"message_uid", parsed.UID(),
		)
	}

	return parsed, nil
}

// extractAttachments walks every MIME part of the message and collects
// the qualifying ones. A part qualifies when its content disposition is
// "attachment" and its content type is not text/html. The HTML
// exclusion guards against inline quoted-reply HTML that some senders
// mislabel as an attachment.
func (p *MessageParser) extractAttachments(msg *mail.Message) ([]*Attachment, error) {
	contentType := msg.Header.Get(HeaderContentType)
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// No usable content type means a single opaque part; fall
		// through to the single-part check below.
		mediaType = ""
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart message without boundary")
		}
		var attachments []*Attachment
		if err := p.walkMultipart(msg.Body, boundary, &attachments); err != nil {
			return nil, err
		}
		return attachments, nil
	}

	// A non-multipart message can itself be flagged as an attachment.
	disposition, dispParams, _ := mime.ParseMediaType(msg.Header.Get(HeaderDisposition))
	if disposition != DispositionAttachment || mediaType == ContentTypeHTML {
		return nil, nil
	}

	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("reading message body: %w", err)
	}

	att := buildAttachment(
		dispParams["filename"],
		decodeContent(body, msg.Header.Get(HeaderEncoding)),
		mediaType,
		params,
	)
	return []*Attachment{att}, nil
}

// walkMultipart recursively descends the MIME part tree, appending
// qualifying attachments to out in part order.
func (p *MessageParser) walkMultipart(body io.Reader, boundary string, out *[]*Attachment) error {
	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading multipart: %w", err)
		}

		contentType := part.Header.Get(HeaderContentType)
		mediaType, params, _ := mime.ParseMediaType(contentType)

		// Descend into nested multipart containers.
		if strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "" {
			if err := p.walkMultipart(part, params["boundary"], out); err != nil {
				return err
			}
			continue
		}

		disposition, dispParams, _ := mime.ParseMediaType(part.Header.Get(HeaderDisposition))
		if disposition != DispositionAttachment {
			continue
		}
		if mediaType == ContentTypeHTML {
			continue
		}

		data, err := io.ReadAll(part)
		if err != nil {
			// One unreadable part does not fail the message.
			p.logger.Warn("skipping unreadable MIME part", "error", err)
			continue
		}

		decoded := decodeContent(data, part.Header.Get(HeaderEncoding))
		*out = append(*out, buildAttachment(dispParams["filename"], decoded, mediaType, params))
	}

	return nil
}

// buildAttachment assembles an Attachment, falling back to the
// Content-Type name parameter when the disposition carries no filename.
func buildAttachment(filename string, content []byte, mediaType string, typeParams map[string]string) *Attachment {
	if filename == "" && typeParams != nil {
		filename = typeParams["name"]
	}
	filename = decodeHeader(filename)

	if mediaType == "" {
		mediaType = ContentTypeOctetStream
	}

	return &Attachment{
		Filename:    filename,
		Content:     content,
		ContentType: mediaType,
	}
}

// decodeContent decodes a MIME part body based on its transfer
// encoding. Quoted-printable parts are usually already decoded by the
// multipart reader, which strips the header; this handles base64 and
// any quoted-printable parts that slipped through. Decoding failures
// degrade to the raw bytes.
func decodeContent(data []byte, encoding string) []byte {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		cleaned := bytes.Map(func(r rune) rune {
			if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
				return -1
			}
			return r
		}, data)
		if decoded, err := base64.StdEncoding.DecodeString(string(cleaned)); err == nil {
			return decoded
		}
		if decoded, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(string(cleaned), "=")); err == nil {
			return decoded
		}
		return data
	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(data)))
		if err != nil {
			return data
		}
		return decoded
	default:
		return data
	}
}

// decodeHeader decodes MIME encoded words in a header value, returning
// the original value when decoding fails.
func decodeHeader(value string) string {
	if value == "" {
		return ""
	}
	decoder := new(mime.WordDecoder)
	decoded, err := decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// dateLayouts are fallbacks for Date headers that net/mail rejects.
// Real-world senders produce a wide range of formats.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"2006-01-02 15:04:05 -0700",
	time.RFC3339,
}

// parseDate parses an email Date header leniently. An unparsable date
// degrades to the zero time rather than failing the message.
func parseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if t, err := mail.ParseDate(value); err == nil {
		return t
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
