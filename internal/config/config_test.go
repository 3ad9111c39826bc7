package config

import (
	"testing"
)

func validConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			Mailboxes: []MailboxCredential{
				{
					Email:      "inbox@example.com",
					Password:   "secret",
					IMAPServer: "imap.example.com",
					IMAPPort:   993,
				},
			},
			MailsFrom:      []string{"billing@vendor.com"},
			UploadFolderID: "attachments",
		},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no mailboxes", func(c *Config) { c.Sync.Mailboxes = nil }},
		{"no sender filters", func(c *Config) { c.Sync.MailsFrom = nil }},
		{"bad mailbox email", func(c *Config) { c.Sync.Mailboxes[0].Email = "not-an-address" }},
		{"missing password", func(c *Config) { c.Sync.Mailboxes[0].Password = "" }},
		{"missing server", func(c *Config) { c.Sync.Mailboxes[0].IMAPServer = "" }},
		{"port out of range", func(c *Config) { c.Sync.Mailboxes[0].IMAPPort = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadParsesMailboxesJSON(t *testing.T) {
	t.Setenv("MAILBOXES", `[{"email":"a@x.com","password":"pw","imap_server":"imap.x.com","imap_port":993}]`)
	t.Setenv("MAILS_FROM", "billing@vendor.com, receipts@shop.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Sync.Mailboxes) != 1 {
		t.Fatalf("expected 1 mailbox, got %d", len(cfg.Sync.Mailboxes))
	}
	if cfg.Sync.Mailboxes[0].IMAPPort != 993 {
		t.Errorf("imap port = %d, want 993", cfg.Sync.Mailboxes[0].IMAPPort)
	}
	if len(cfg.Sync.MailsFrom) != 2 {
		t.Fatalf("expected 2 sender filters, got %d", len(cfg.Sync.MailsFrom))
	}
	if cfg.Sync.MailsFrom[1] != "receipts@shop.com" {
		t.Errorf("filter order not preserved: %v", cfg.Sync.MailsFrom)
	}
}

func TestLoadRejectsMalformedMailboxes(t *testing.T) {
	t.Setenv("MAILBOXES", `{"not":"an array"`)
	if _, err := Load(); err == nil {
		t.Error("expected error for malformed MAILBOXES")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Sync.UploadEnabled || !cfg.Sync.PersistEnabled {
		t.Error("upload and persist should default to enabled")
	}
	if cfg.Server.Enabled {
		t.Error("HTTP server should default to disabled")
	}
	if cfg.Sync.MessagesPerPassLimit != 0 {
		t.Errorf("message limit should default to 0, got %d", cfg.Sync.MessagesPerPassLimit)
	}
}
