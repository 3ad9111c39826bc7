// Package config loads service configuration from environment
// variables and validates it before the first sync pass starts.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Sync     SyncConfig
}

// ServerConfig holds the optional HTTP trigger server configuration
type ServerConfig struct {
	Enabled bool
	Host    string
	Port    string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// StorageConfig holds S3/MinIO blob store configuration
type StorageConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// MailboxCredential identifies one IMAP mailbox to scan
type MailboxCredential struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	IMAPServer string `json:"imap_server" validate:"required"`
	IMAPPort   int    `json:"imap_port" validate:"required,min=1,max=65535"`
}

// SyncConfig holds the sync pipeline configuration
type SyncConfig struct {
	// Mailboxes are scanned in configuration order.
	Mailboxes []MailboxCredential `validate:"required,min=1,dive"`
	// MailsFrom are the sender filters applied to every mailbox,
	// in configuration order.
	MailsFrom []string `validate:"required,min=1"`
	// UploadFolderID is the parent folder for uploaded attachments.
	UploadFolderID string
	// UploadEnabled toggles attachment upload to the blob store.
	UploadEnabled bool
	// PersistEnabled toggles record store persistence.
	PersistEnabled bool
	// MessagesPerPassLimit caps how many messages one pass handles.
	// Zero means no limit.
	MessagesPerPassLimit int `validate:"min=0"`
}

// Load reads configuration from environment variables. MAILBOXES is a
// JSON array of credentials; MAILS_FROM is a comma-separated list.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Enabled: getBoolEnv("ENABLE_HTTP_SERVER", false),
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "mail_attachment_sync"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Storage: StorageConfig{
			Endpoint:        getEnv("STORAGE_ENDPOINT", "localhost:9000"),
			Region:          getEnv("STORAGE_REGION", "us-east-1"),
			Bucket:          getEnv("STORAGE_BUCKET", "mail-attachments"),
			AccessKeyID:     getEnv("STORAGE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("STORAGE_SECRET_ACCESS_KEY", ""),
			UseSSL:          getBoolEnv("STORAGE_USE_SSL", false),
		},
		Sync: SyncConfig{
			MailsFrom:            splitList(getEnv("MAILS_FROM", "")),
			UploadFolderID:       getEnv("UPLOAD_FOLDER_ID", "attachments"),
			UploadEnabled:        getBoolEnv("UPLOAD_ENABLED", true),
			PersistEnabled:       getBoolEnv("PERSIST_ENABLED", true),
			MessagesPerPassLimit: getIntEnv("MESSAGES_PER_PASS_LIMIT", 0),
		},
	}

	if raw := os.Getenv("MAILBOXES"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Sync.Mailboxes); err != nil {
			return nil, fmt.Errorf("failed to parse MAILBOXES: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks the sync configuration for completeness.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(&c.Sync); err != nil {
		return fmt.Errorf("invalid sync configuration: %w", err)
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv returns a boolean from environment variable or default
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

// getIntEnv returns an integer from environment variable or default
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
