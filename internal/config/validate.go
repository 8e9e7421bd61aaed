package config

import "fmt"

// Validate checks the settings that the import pipeline cannot run without.
// Returns an error describing the first validation failure, or nil if valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}

	switch c.Lock.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("lock: redis backend requires redis.url")
		}
	default:
		return fmt.Errorf("lock: unknown backend %q", c.Lock.Backend)
	}
	if c.Lock.PollInterval <= 0 {
		return fmt.Errorf("lock: poll_interval must be positive")
	}
	if c.Lock.TTL > 0 && c.Lock.TTL < 3*c.Lock.PollInterval {
		return fmt.Errorf("lock: ttl %s is too short for poll_interval %s", c.Lock.TTL, c.Lock.PollInterval)
	}

	if c.Queue.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("queue: requires redis.url")
	}

	switch c.Storage.Type {
	case "local":
		if c.Storage.DocsRoot == "" {
			return fmt.Errorf("storage: docs_root is required for local storage")
		}
	case "s3", "r2", "s3compatible":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage: bucket is required for %s storage", c.Storage.Type)
		}
	default:
		return fmt.Errorf("storage: unknown type %q", c.Storage.Type)
	}

	if c.Archive.SuccessfulDir == "" || c.Archive.FailedDir == "" {
		return fmt.Errorf("archive: successful_dir and failed_dir are required")
	}
	if c.Archive.SuccessfulDir == c.Archive.FailedDir {
		return fmt.Errorf("archive: successful_dir and failed_dir must differ")
	}

	if c.Mail.Enabled && c.Mail.Host == "" {
		return fmt.Errorf("mail: host is required when mail is enabled")
	}

	switch c.Accounts.Backend {
	case "db":
	case "http":
		if c.Accounts.BaseURL == "" {
			return fmt.Errorf("accounts: http backend requires base_url")
		}
	default:
		return fmt.Errorf("accounts: unknown backend %q", c.Accounts.Backend)
	}

	return nil
}

// RecipientList returns who receives import summaries, falling back to the sender address.
func (c *MailConfig) RecipientList() []string {
	if len(c.Recipients) > 0 {
		return c.Recipients
	}
	if c.From != "" {
		return []string{c.From}
	}
	return nil
}
