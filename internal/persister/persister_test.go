package persister

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/welldanyogia/mail-attachment-sync/internal/parser"
	"github.com/welldanyogia/mail-attachment-sync/internal/recordstore"
)

type fakeRecordStore struct {
	records map[string]*recordstore.MessageRecord

	getErr    error
	setErr    error
	updateErr error

	gets    int
	sets    int
	updates int
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{records: make(map[string]*recordstore.MessageRecord)}
}

func (f *fakeRecordStore) Get(_ context.Context, uid string) (*recordstore.MessageRecord, error) {
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.records[uid], nil
}

func (f *fakeRecordStore) Set(_ context.Context, uid string, record *recordstore.MessageRecord) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.records[uid] = record
	return nil
}

func (f *fakeRecordStore) UpdateLastParsed(_ context.Context, uid string, lastParsedAt time.Time) error {
	f.updates++
	if f.updateErr != nil {
		return f.updateErr
	}
	rec, ok := f.records[uid]
	if !ok {
		return recordstore.ErrRecordNotFound
	}
	rec.LastParsedAt = lastParsedAt
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func invoiceMessage(lastParsedAt time.Time) *parser.ParsedMessage {
	return &parser.ParsedMessage{
		Attachments: []*parser.Attachment{
			{Filename: "inv.pdf", Content: []byte("0123456789"), ContentType: "application/pdf"},
		},
		SourceID:     "17",
		LastParsedAt: lastParsedAt,
		MessageID:    "<1@x.com>",
		SentAt:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		SentFrom:     "a@x.com",
		SentTo:       "b@y.com",
		Subject:      "Invoice",
	}
}

func TestPersistInsertsNewRecord(t *testing.T) {
	store := newFakeRecordStore()
	p := New(store, true, testLogger())

	now := time.Now().UTC()
	msg := invoiceMessage(now)
	p.Persist(context.Background(), msg)

	if store.sets != 1 {
		t.Fatalf("expected 1 insert, got %d", store.sets)
	}
	rec := store.records[msg.UID()]
	if rec == nil {
		t.Fatal("record not stored under message UID")
	}
	if !rec.LastParsedAt.Equal(now) {
		t.Errorf("last_parsed_at = %v, want %v", rec.LastParsedAt, now)
	}
	if len(rec.Attachments) != 1 || rec.Attachments[0].ContentSize != 10 {
		t.Errorf("attachment metadata not persisted: %+v", rec.Attachments)
	}
}

func TestPersistTwiceUpdatesOnlyLastParsed(t *testing.T) {
	store := newFakeRecordStore()
	p := New(store, true, testLogger())

	first := invoiceMessage(time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC))
	p.Persist(context.Background(), first)

	firstRec := store.records[first.UID()]
	firstAttachments := append(recordstore.AttachmentRecords{}, firstRec.Attachments...)

	// Same underlying message parsed again on a later pass; the only
	// difference is the refreshed last-parsed timestamp. Simulate an
	// upload on the second pass as well: the stored attachment data
	// must still not be rewritten.
	later := time.Date(2024, 3, 3, 8, 0, 0, 0, time.UTC)
	second := invoiceMessage(later)
	second.Attachments[0].StorageURL = "s3://bucket/folder/other_inv.pdf"
	p.Persist(context.Background(), second)

	if store.sets != 1 {
		t.Fatalf("second persist should not insert, sets = %d", store.sets)
	}
	if store.updates != 1 {
		t.Fatalf("expected 1 partial update, got %d", store.updates)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected exactly 1 record, got %d", len(store.records))
	}

	rec := store.records[first.UID()]
	if !rec.LastParsedAt.Equal(later) {
		t.Errorf("last_parsed_at = %v, want %v", rec.LastParsedAt, later)
	}
	for i := range firstAttachments {
		if rec.Attachments[i] != firstAttachments[i] {
			t.Errorf("attachment %d rewritten by partial update", i)
		}
	}
}

func TestPersistDisabledIsNoOp(t *testing.T) {
	p := New(nil, false, testLogger())
	p.Persist(context.Background(), invoiceMessage(time.Now().UTC()))
}

func TestPersistStoreFailuresDoNotPropagate(t *testing.T) {
	t.Run("get failure", func(t *testing.T) {
		store := newFakeRecordStore()
		store.getErr = errors.New("connection refused")
		p := New(store, true, testLogger())

		p.Persist(context.Background(), invoiceMessage(time.Now().UTC()))
		if store.sets != 0 || store.updates != 0 {
			t.Error("no write should follow a failed lookup")
		}
	})

	t.Run("set failure", func(t *testing.T) {
		store := newFakeRecordStore()
		store.setErr = errors.New("quota exceeded")
		p := New(store, true, testLogger())

		p.Persist(context.Background(), invoiceMessage(time.Now().UTC()))
		if len(store.records) != 0 {
			t.Error("failed insert should leave no record")
		}
	})

	t.Run("update failure", func(t *testing.T) {
		store := newFakeRecordStore()
		p := New(store, true, testLogger())
		msg := invoiceMessage(time.Now().UTC())
		p.Persist(context.Background(), msg)

		store.updateErr = errors.New("deadline exceeded")
		p.Persist(context.Background(), msg)
		// Failure is swallowed; the original record remains.
		if len(store.records) != 1 {
			t.Errorf("expected record to survive failed update")
		}
	})
}
