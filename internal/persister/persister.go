// Package persister records per-message processing state in the record
// store so repeated sync passes do not re-process seen messages.
package persister

import (
	"context"
	"log/slog"
	"time"

	"github.com/welldanyogia/mail-attachment-sync/internal/metrics"
	"github.com/welldanyogia/mail-attachment-sync/internal/parser"
	"github.com/welldanyogia/mail-attachment-sync/internal/recordstore"
)

// RecordStore is the consumed record store surface. Implemented by
// recordstore.PostgresStore in production.
type RecordStore interface {
	// Get returns (nil, nil) when no record exists for uid.
	Get(ctx context.Context, uid string) (*recordstore.MessageRecord, error)
	Set(ctx context.Context, uid string, record *recordstore.MessageRecord) error
	UpdateLastParsed(ctx context.Context, uid string, lastParsedAt time.Time) error
}

// Persister performs the idempotent upsert of parsed messages. A record
// that already exists only gets its last-parsed timestamp refreshed;
// everything else stays untouched. Store failures are logged and never
// propagated: the sync pass continues with the next message.
type Persister struct {
	store   RecordStore
	enabled bool
	logger  *slog.Logger
}

// New creates a Persister. When enabled is false the store may be nil;
// Persist becomes a no-op.
func New(store RecordStore, enabled bool, logger *slog.Logger) *Persister {
	return &Persister{
		store:   store,
		enabled: enabled,
		logger:  logger,
	}
}

// Persist upserts msg into the record store under its stable identifier.
func (p *Persister) Persist(ctx context.Context, msg *parser.ParsedMessage) {
	if !p.enabled {
		return
	}

	uid := msg.UID()

	existing, err := p.store.Get(ctx, uid)
	if err != nil {
		p.logger.Error("failed to look up message record",
			"message_uid", uid,
			"error", err,
		)
		metrics.RecordWritesTotal.WithLabelValues("failed").Inc()
		return
	}

	if existing != nil {
		if err := p.store.UpdateLastParsed(ctx, uid, msg.LastParsedAt); err != nil {
			p.logger.Error("failed to refresh last_parsed_at",
				"message_uid", uid,
				"error", err,
			)
			metrics.RecordWritesTotal.WithLabelValues("failed").Inc()
			return
		}
		metrics.RecordWritesTotal.WithLabelValues("update").Inc()
		p.logger.Info("refreshed last_parsed_at for message record",
			"message_uid", uid,
			"last_parsed_at", msg.LastParsedAt,
		)
		return
	}

	if err := p.store.Set(ctx, uid, recordstore.FromParsedMessage(msg)); err != nil {
		p.logger.Error("failed to persist message record",
			"message_uid", uid,
			"error", err,
		)
		metrics.RecordWritesTotal.WithLabelValues("failed").Inc()
		return
	}
	metrics.RecordWritesTotal.WithLabelValues("insert").Inc()
	p.logger.Info("persisted message record", "message_uid", uid)
}
