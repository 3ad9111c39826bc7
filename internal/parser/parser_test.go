package parser

import (
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildMessage assembles a multipart/mixed raw message with the given
// headers and parts.
func buildMessage(headers map[string]string, parts ...string) []byte {
	var b strings.Builder
	b.WriteString("MIME-Version: 1.0\r\n")
	for k, v := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("Content-Type: multipart/mixed; boundary=\"BOUNDARY\"\r\n\r\n")
	for _, part := range parts {
		b.WriteString("--BOUNDARY\r\n")
		b.WriteString(part)
		b.WriteString("\r\n")
	}
	b.WriteString("--BOUNDARY--\r\n")
	return []byte(b.String())
}

func textPart(body string) string {
	return "Content-Type: text/plain; charset=utf-8\r\n\r\n" + body
}

func attachmentPart(filename, contentType string, content []byte) string {
	return fmt.Sprintf(
		"Content-Type: %s\r\nContent-Disposition: attachment; filename=%q\r\nContent-Transfer-Encoding: base64\r\n\r\n%s",
		contentType, filename, base64.StdEncoding.EncodeToString(content),
	)
}

func TestParseInvoiceScenario(t *testing.T) {
	p := NewMessageParser(testLogger())

	pdf := []byte("0123456789") // 10 bytes
	raw := buildMessage(map[string]string{
		"Subject":    "Invoice",
		"From":       "a@x.com",
		"To":         "b@y.com",
		"Message-Id": "<1@x.com>",
		"Date":       "Mon, 02 Jan 2006 15:04:05 -0700",
	},
		textPart("see attached"),
		attachmentPart("inv.pdf", "application/pdf", pdf),
	)

	msg, err := p.Parse(raw, "a@x.com", "b@y.com", "17")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(msg.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(msg.Attachments))
	}
	att := msg.Attachments[0]
	if att.ContentSize() != 10 {
		t.Errorf("content size = %d, want 10", att.ContentSize())
	}
	if att.Filename != "inv.pdf" {
		t.Errorf("filename = %q, want inv.pdf", att.Filename)
	}
	if att.ContentType != "application/pdf" {
		t.Errorf("content type = %q, want application/pdf", att.ContentType)
	}
	if att.StorageURL != "" {
		t.Errorf("storage URL should be empty before upload, got %q", att.StorageURL)
	}
	if msg.Subject != "Invoice" {
		t.Errorf("subject = %q, want Invoice", msg.Subject)
	}
	if msg.MessageID != "<1@x.com>" {
		t.Errorf("message id = %q, want <1@x.com>", msg.MessageID)
	}
	if msg.SourceID != "17" {
		t.Errorf("source id = %q, want 17", msg.SourceID)
	}
	if msg.SentAt.IsZero() {
		t.Error("sent timestamp should be parsed")
	}
	if msg.LastParsedAt.IsZero() {
		t.Error("last parsed timestamp should be set")
	}
}

func TestDispositionFilter(t *testing.T) {
	p := NewMessageParser(testLogger())

	tests := []struct {
		name        string
		contentType string
		want        int
	}{
		{"pdf attachment included", "application/pdf", 1},
		{"html attachment excluded", "text/html", 0},
		{"octet-stream included", "application/octet-stream", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := buildMessage(map[string]string{"Subject": "x"},
				attachmentPart("file.bin", tt.contentType, []byte("payload")),
			)
			msg, err := p.Parse(raw, "a@x.com", "b@y.com", "1")
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if len(msg.Attachments) != tt.want {
				t.Errorf("got %d attachments, want %d", len(msg.Attachments), tt.want)
			}
		})
	}
}

func TestInlinePartsNotExtracted(t *testing.T) {
	p := NewMessageParser(testLogger())

	raw := buildMessage(map[string]string{"Subject": "plain"},
		textPart("just a body, no attachments"),
	)
	msg, err := p.Parse(raw, "a@x.com", "b@y.com", "2")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if msg.HasAttachments() {
		t.Errorf("expected no attachments, got %d", len(msg.Attachments))
	}
}

func TestMissingHeadersTolerated(t *testing.T) {
	p := NewMessageParser(testLogger())

	raw := buildMessage(nil,
		attachmentPart("a.pdf", "application/pdf", []byte("x")),
	)
	msg, err := p.Parse(raw, "a@x.com", "b@y.com", "3")
	if err != nil {
		t.Fatalf("Parse should tolerate missing headers: %v", err)
	}
	if msg.Subject != "" {
		t.Errorf("subject should be empty, got %q", msg.Subject)
	}
	if msg.MessageID != "" {
		t.Errorf("message id should be empty, got %q", msg.MessageID)
	}
	if !msg.SentAt.IsZero() {
		t.Errorf("sent timestamp should be zero, got %v", msg.SentAt)
	}
}

func TestLenientDateParsing(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		isZero bool
	}{
		{"rfc1123z", "Mon, 02 Jan 2006 15:04:05 -0700", false},
		{"no weekday", "2 Jan 2006 15:04:05 -0700", false},
		{"trailing zone name", "Mon, 2 Jan 2006 15:04:05 -0700 (MST)", false},
		{"garbage degrades to zero", "not a date", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseDate(tt.value)
			if got.IsZero() != tt.isZero {
				t.Errorf("parseDate(%q) = %v, isZero want %v", tt.value, got, tt.isZero)
			}
		})
	}
}

func TestMalformedMessageIsParseError(t *testing.T) {
	p := NewMessageParser(testLogger())

	for _, raw := range [][]byte{nil, []byte("no header separator")} {
		_, err := p.Parse(raw, "a@x.com", "b@y.com", "4")
		if err == nil {
			t.Fatalf("expected error for malformed input %q", raw)
		}
		if _, ok := err.(*ParseError); !ok {
			t.Errorf("expected *ParseError, got %T", err)
		}
	}
}

func TestEncodedSubjectDecoded(t *testing.T) {
	p := NewMessageParser(testLogger())

	raw := buildMessage(map[string]string{
		"Subject": "=?utf-8?q?Facture_n=C2=B04?=",
	},
		attachmentPart("f.pdf", "application/pdf", []byte("x")),
	)
	msg, err := p.Parse(raw, "a@x.com", "b@y.com", "5")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if msg.Subject != "Facture n°4" {
		t.Errorf("subject = %q, want decoded MIME words", msg.Subject)
	}
}

func TestNestedMultipartWalk(t *testing.T) {
	p := NewMessageParser(testLogger())

	inner := "Content-Type: multipart/alternative; boundary=\"INNER\"\r\n\r\n" +
		"--INNER\r\n" + textPart("hello") + "\r\n" +
		"--INNER\r\n" +
		attachmentPart("nested.csv", "text/csv", []byte("a,b\n")) + "\r\n" +
		"--INNER--\r\n"

	raw := buildMessage(map[string]string{"Subject": "nested"},
		inner,
		attachmentPart("top.pdf", "application/pdf", []byte("pdf")),
	)

	msg, err := p.Parse(raw, "a@x.com", "b@y.com", "6")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(msg.Attachments) != 2 {
		t.Fatalf("expected 2 attachments across nesting levels, got %d", len(msg.Attachments))
	}
	if msg.Attachments[0].Filename != "nested.csv" || msg.Attachments[1].Filename != "top.pdf" {
		t.Errorf("attachment order not preserved: %q, %q",
			msg.Attachments[0].Filename, msg.Attachments[1].Filename)
	}
}

// *For any* attachment content, base64 transfer encoding round-trips
// through the parser byte for byte, and the message UID is stable
// across repeated parses of the same raw message.
func TestAttachmentContentRoundTrip(t *testing.T) {
	p := NewMessageParser(testLogger())

	rapid.Check(t, func(t *rapid.T) {
		content := rapid.SliceOfN(rapid.Byte(), 1, 512).Draw(t, "content")

		raw := buildMessage(map[string]string{
			"Subject": "round trip",
			"Date":    "Mon, 02 Jan 2006 15:04:05 -0700",
		},
			attachmentPart("blob.bin", "application/octet-stream", content),
		)

		first, err := p.Parse(raw, "a@x.com", "b@y.com", "7")
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if len(first.Attachments) != 1 {
			t.Fatalf("expected 1 attachment, got %d", len(first.Attachments))
		}
		if string(first.Attachments[0].Content) != string(content) {
			t.Fatalf("content mismatch after transfer decoding")
		}

		second, err := p.Parse(raw, "a@x.com", "b@y.com", "7")
		if err != nil {
			t.Fatalf("second Parse failed: %v", err)
		}
		if first.UID() != second.UID() {
			t.Errorf("message UID unstable across parses: %q != %q", first.UID(), second.UID())
		}
		if first.Attachments[0].UID() != second.Attachments[0].UID() {
			t.Errorf("attachment UID unstable across parses")
		}
	})
}

func TestLastParsedAtRefreshedPerParse(t *testing.T) {
	p := NewMessageParser(testLogger())

	raw := buildMessage(map[string]string{"Subject": "ts"},
		attachmentPart("a.pdf", "application/pdf", []byte("x")),
	)

	first, err := p.Parse(raw, "a@x.com", "b@y.com", "8")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := p.Parse(raw, "a@x.com", "b@y.com", "8")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !second.LastParsedAt.After(first.LastParsedAt) {
		t.Error("LastParsedAt should be refreshed on every parse")
	}
	if first.UID() != second.UID() {
		t.Error("LastParsedAt must not influence the message UID")
	}
}
