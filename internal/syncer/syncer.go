// Package syncer drives one full sync pass: for every configured
// mailbox credential and sender filter, it enumerates matching
// messages and runs fetch, parse, upload, and persist for each one,
// isolating failures per message.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/welldanyogia/mail-attachment-sync/internal/config"
	"github.com/welldanyogia/mail-attachment-sync/internal/metrics"
	"github.com/welldanyogia/mail-attachment-sync/internal/parser"
)

// ErrPassInFlight is returned when a sync pass is triggered while
// another pass is still running. Passes are never overlapped.
var ErrPassInFlight = errors.New("sync pass already in flight")

// Connection is the consumed mailbox surface. Implemented by
// mailbox.Session in production.
type Connection interface {
	SearchFrom(ctx context.Context, sender string) ([]string, error)
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// Parser converts raw message blobs into ParsedMessage records.
type Parser interface {
	Parse(raw []byte, senderFilter, mailboxAddr, sourceID string) (*parser.ParsedMessage, error)
}

// Uploader pushes message attachments to the blob store.
type Uploader interface {
	Upload(ctx context.Context, msg *parser.ParsedMessage)
}

// Persister records per-message processing state.
type Persister interface {
	Persist(ctx context.Context, msg *parser.ParsedMessage)
}

// Connections maps mailbox addresses to live connections. It is
// populated once at startup; looking up an unknown address is an
// explicit error, never a silently created entry.
type Connections struct {
	byAddress map[string]Connection
}

// NewConnections creates an empty connection registry.
func NewConnections() *Connections {
	return &Connections{byAddress: make(map[string]Connection)}
}

// Add registers a connection under its mailbox address.
func (c *Connections) Add(address string, conn Connection) {
	c.byAddress[address] = conn
}

// Get returns the connection for address.
func (c *Connections) Get(address string) (Connection, error) {
	conn, ok := c.byAddress[address]
	if !ok {
		return nil, fmt.Errorf("no mailbox connection for %s", address)
	}
	return conn, nil
}

// Syncer runs sync passes. All processing within a pass is strictly
// sequential: mailbox and blob store APIs are rate-limited and
// stateful per connection, so there is no parallel fetch or upload.
type Syncer struct {
	cfg       config.SyncConfig
	conns     *Connections
	parser    Parser
	uploader  Uploader
	persister Persister
	logger    *slog.Logger
	running   atomic.Bool
}

// New creates a Syncer over an already populated connection registry.
func New(cfg config.SyncConfig, conns *Connections, p Parser, u Uploader, ps Persister, logger *slog.Logger) *Syncer {
	return &Syncer{
		cfg:       cfg,
		conns:     conns,
		parser:    p,
		uploader:  u,
		persister: ps,
		logger:    logger,
	}
}

// Run executes one full sync pass. At most one pass runs at a time;
// a second concurrent call returns ErrPassInFlight.
func (s *Syncer) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		metrics.SyncPassesTotal.WithLabelValues("rejected").Inc()
		return ErrPassInFlight
	}
	defer s.running.Store(false)

	start := time.Now()
	err := s.runPass(ctx)
	metrics.SyncPassDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SyncPassesTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.SyncPassesTotal.WithLabelValues("ok").Inc()
	return nil
}

func (s *Syncer) runPass(ctx context.Context) error {
	processed := 0

	for _, cred := range s.cfg.Mailboxes {
		conn, err := s.conns.Get(cred.Email)
		if err != nil {
			return err
		}

		s.logger.Info("processing messages sent to", "mailbox", cred.Email)

		for _, sender := range s.cfg.MailsFrom {
			s.logger.Info("processing messages sent from", "sender", sender)

			ids, err := conn.SearchFrom(ctx, sender)
			if err != nil {
				s.logger.Error("mailbox search failed",
					"mailbox", cred.Email,
					"sender", sender,
					"error", err,
				)
				continue
			}

			for _, id := range ids {
				if s.cfg.MessagesPerPassLimit > 0 && processed >= s.cfg.MessagesPerPassLimit {
					s.logger.Info("message limit reached, ending pass",
						"limit", s.cfg.MessagesPerPassLimit,
					)
					return nil
				}
				s.processMessage(ctx, conn, cred.Email, sender, id)
				processed++
			}
		}
	}

	return nil
}

// processMessage handles one message end to end. Every failure here is
// recoverable: it is logged and the pass continues with the next
// message. One poisoned message never aborts the remaining work.
func (s *Syncer) processMessage(ctx context.Context, conn Connection, mailboxAddr, sender, id string) {
	s.logger.Info("processing message", "source_id", id)

	raw, err := conn.Fetch(ctx, id)
	if err != nil {
		s.logger.Error("failed to fetch message",
			"source_id", id,
			"mailbox", mailboxAddr,
			"error", err,
		)
		metrics.MessagesTotal.WithLabelValues("fetch_failed").Inc()
		return
	}

	msg, err := s.parser.Parse(raw, sender, mailboxAddr, id)
	if err != nil {
		s.logger.Error("failed to parse message",
			"source_id", id,
			"mailbox", mailboxAddr,
			"error", err,
		)
		metrics.MessagesTotal.WithLabelValues("parse_failed").Inc()
		return
	}

	if !msg.HasAttachments() {
		s.logger.Info("skipping message without attachments", "message_uid", msg.UID())
		metrics.MessagesTotal.WithLabelValues("skipped").Inc()
		return
	}

	s.logger.Info("parsed message",
		"message_uid", msg.UID(),
		"attachments", len(msg.Attachments),
	)

	s.uploader.Upload(ctx, msg)
	s.persister.Persist(ctx, msg)
	metrics.MessagesTotal.WithLabelValues("processed").Inc()
}
