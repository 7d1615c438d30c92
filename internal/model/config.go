package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// MailboxConfig holds the configuration for a single synchronized mailbox.
type MailboxConfig struct {
	// ID is the unique identifier for this mailbox. It keys the cursor in
	// the database and the password in the keyring.
	ID string `mapstructure:"id" yaml:"id"`

	// Name is the remote folder to synchronize (e.g., "INBOX").
	Name string `mapstructure:"name" yaml:"name"`

	// Group is the local destination the mailbox feeds.
	Group string `mapstructure:"group" yaml:"group"`

	// Provider selects the vendor implementation ("generic" or "gmail").
	Provider string `mapstructure:"provider" yaml:"provider"`

	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
	Username string `mapstructure:"username" yaml:"username"`

	// ReadOnly disables pushing local changes back to this mailbox.
	ReadOnly bool `mapstructure:"read_only" yaml:"read_only"`

	// PollIntervalSec overrides the global poll interval when non-zero.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// Gmail holds the OAuth client used for label access on Gmail.
	Gmail GmailConfig `mapstructure:"gmail" yaml:"gmail"`
}

// GmailConfig holds the OAuth client credentials for the Gmail API.
// The refresh token itself lives in the keyring.
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
}

// BlobConfig selects where raw messages are retained.
type BlobConfig struct {
	// Type is "fs", "s3" or "none".
	Type     string `mapstructure:"type" yaml:"type"`
	Dir      string `mapstructure:"dir" yaml:"dir"`
	Bucket   string `mapstructure:"bucket" yaml:"bucket"`
	Region   string `mapstructure:"region" yaml:"region"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`

	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
}

// NATSConfig configures publication of pass events. An empty URL
// disables publishing.
type NATSConfig struct {
	URL           string `mapstructure:"url" yaml:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix" yaml:"subject_prefix"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database        string          `mapstructure:"database" yaml:"database"`
	LogLevel        string          `mapstructure:"log_level" yaml:"log_level"`
	ReadOnly        bool            `mapstructure:"read_only" yaml:"read_only"`
	TaggingEnabled  bool            `mapstructure:"tagging_enabled" yaml:"tagging_enabled"`
	PollIntervalSec int             `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	Concurrency     int             `mapstructure:"concurrency" yaml:"concurrency"`
	Listen          string          `mapstructure:"listen" yaml:"listen"`
	Blob            BlobConfig      `mapstructure:"blob" yaml:"blob"`
	NATS            NATSConfig      `mapstructure:"nats" yaml:"nats"`
	Mailboxes       []MailboxConfig `mapstructure:"mailboxes" yaml:"mailboxes"`
}

// Mailbox converts the configuration entry into a Mailbox with an empty
// cursor.
func (c MailboxConfig) Mailbox() Mailbox {
	return Mailbox{
		ID:       c.ID,
		Name:     c.Name,
		Group:    c.Group,
		Provider: ProviderKind(c.Provider),
		Host:     c.Host,
		Port:     c.Port,
		TLS:      c.TLS,
		Username: c.Username,
		ReadOnly: c.ReadOnly,
	}
}

// FindMailbox returns the configuration entry with the given id.
func (c *AppConfig) FindMailbox(id string) (MailboxConfig, bool) {
	for _, mb := range c.Mailboxes {
		if mb.ID == id {
			return mb, true
		}
	}
	return MailboxConfig{}, false
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailsync/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailsync", "config.yaml")
}

// DefaultDatabasePath returns the default location of the SQLite database.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "mailsync.db")
	}
	return filepath.Join(home, ".local", "share", "mailsync", "mailsync.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Database:        DefaultDatabasePath(),
		LogLevel:        "info",
		TaggingEnabled:  true,
		PollIntervalSec: 300,
		Concurrency:     4,
		Listen:          "127.0.0.1:8089",
		Blob:            BlobConfig{Type: "none", Prefix: "raw"},
		NATS:            NATSConfig{SubjectPrefix: "mailsync"},
		Mailboxes:       []MailboxConfig{},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
// Environment variables prefixed with MAILSYNC_ override file values.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("mailsync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	def := defaultAppConfig()
	v.SetDefault("database", def.Database)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("read_only", def.ReadOnly)
	v.SetDefault("tagging_enabled", def.TaggingEnabled)
	v.SetDefault("poll_interval_sec", def.PollIntervalSec)
	v.SetDefault("concurrency", def.Concurrency)
	v.SetDefault("listen", def.Listen)
	v.SetDefault("blob.type", def.Blob.Type)
	v.SetDefault("blob.prefix", def.Blob.Prefix)
	v.SetDefault("nats.subject_prefix", def.NATS.SubjectPrefix)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return def, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return def, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Apply defaults for each mailbox entry.
	for i := range cfg.Mailboxes {
		mb := &cfg.Mailboxes[i]
		if mb.Name == "" {
			mb.Name = "INBOX"
		}
		if mb.Provider == "" {
			mb.Provider = string(ProviderGeneric)
		}
		if mb.Port == 0 {
			mb.Port = 993
		}
		if !mb.TLS {
			// Viper unmarshals missing bools as false; treat unset as true.
			key := fmt.Sprintf("mailboxes.%d.tls", i)
			if !v.IsSet(key) {
				mb.TLS = true
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// validate checks the mailbox entries for missing or duplicate ids and
// unknown providers.
func (c *AppConfig) validate() error {
	seen := make(map[string]bool, len(c.Mailboxes))
	for i, mb := range c.Mailboxes {
		if strings.TrimSpace(mb.ID) == "" {
			return fmt.Errorf("mailbox %d: id must not be empty", i)
		}
		if seen[mb.ID] {
			return fmt.Errorf("mailbox %q: duplicate id", mb.ID)
		}
		seen[mb.ID] = true

		switch ProviderKind(mb.Provider) {
		case ProviderGeneric, ProviderGmail:
		default:
			return fmt.Errorf("mailbox %q: unknown provider %q", mb.ID, mb.Provider)
		}
		if mb.Host == "" {
			return fmt.Errorf("mailbox %q: host must not be empty", mb.ID)
		}
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	return nil
}
