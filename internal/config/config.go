// Package config handles application configuration from environment variables
// and an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// FirstSeenPolicy decides what happens on the first poll of a subject.
type FirstSeenPolicy string

// Supported first-seen policies.
const (
	// FirstSeenNotify notifies the newest item found on the first poll.
	FirstSeenNotify FirstSeenPolicy = "notify"
	// FirstSeenBaseline records the newest item found on the first poll without notifying.
	FirstSeenBaseline FirstSeenPolicy = "baseline"
)

// FailurePolicy decides what happens to novelty state when a delivery ultimately fails.
type FailurePolicy string

// Supported failure policies.
const (
	// FailureKeep leaves the item marked as seen.
	FailureKeep FailurePolicy = "keep"
	// FailureRollback restores the previous item so the next cycle notifies again.
	FailureRollback FailurePolicy = "rollback"
)

// Feed sources.
const (
	SourceBilibili = "bilibili"
	SourceRSS      = "rss"
)

// DefaultSubjects is the subject list used when none is configured.
var DefaultSubjects = []int64{1217754423, 1660392980, 1878154667, 1900141897, 1203217682, 434334701}

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	ChatID           string
	Subjects         []int64

	PollInterval  time.Duration
	PollVariation time.Duration
	StaleAfter    time.Duration
	SubjectDelay  time.Duration
	PageSize      int

	RetryBackoff    time.Duration
	SendTimeout     time.Duration
	SendRate        float64
	DispatchWorkers int
	DispatchQueue   int

	FirstSeen FirstSeenPolicy
	OnFailure FailurePolicy
	Timezone  string
	Location  *time.Location

	FeedSource     string
	RSSURLTemplate string

	DatabasePath string
	LogLevel     string
	AllowedUsers []int64
}

// fileConfig mirrors Config in the YAML file. Durations are Go duration strings.
type fileConfig struct {
	TelegramBotToken  string  `yaml:"telegram_bot_token"`
	ChatID            string  `yaml:"chat_id"`
	Subjects          []int64 `yaml:"subjects"`
	PollInterval      string  `yaml:"poll_interval"`
	PollVariation     string  `yaml:"poll_variation"`
	StaleAfter        string  `yaml:"stale_after"`
	SubjectDelay      string  `yaml:"subject_delay"`
	PageSize          int     `yaml:"page_size"`
	RetryBackoff      string  `yaml:"retry_backoff"`
	SendTimeout       string  `yaml:"send_timeout"`
	SendRate          float64 `yaml:"send_rate"`
	DispatchWorkers   int     `yaml:"dispatch_workers"`
	DispatchQueue     int     `yaml:"dispatch_queue"`
	FirstSeen         string  `yaml:"first_seen"`
	OnDeliveryFailure string  `yaml:"on_delivery_failure"`
	Timezone          string  `yaml:"timezone"`
	FeedSource        string  `yaml:"feed_source"`
	RSSURLTemplate    string  `yaml:"rss_url_template"`
	DatabasePath      string  `yaml:"database_path"`
	LogLevel          string  `yaml:"log_level"`
	AllowedUsers      []int64 `yaml:"allowed_users"`
}

func defaults() *Config {
	return &Config{
		Subjects:        append([]int64(nil), DefaultSubjects...),
		PollInterval:    5 * time.Minute,
		PollVariation:   time.Minute,
		StaleAfter:      10 * time.Minute,
		SubjectDelay:    3 * time.Second,
		PageSize:        10,
		RetryBackoff:    5 * time.Second,
		SendTimeout:     30 * time.Second,
		SendRate:        1,
		DispatchWorkers: 4,
		DispatchQueue:   64,
		FirstSeen:       FirstSeenNotify,
		OnFailure:       FailureKeep,
		Timezone:        "Local",
		FeedSource:      SourceBilibili,
		DatabasePath:    "./data/bot.db",
		LogLevel:        "info",
	}
}

// Load reads configuration from the YAML file named by CONFIG_FILE, if any,
// then from environment variables, which take precedence.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-provided path
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.TelegramBotToken, fc.TelegramBotToken)
	setString(&c.ChatID, fc.ChatID)
	if len(fc.Subjects) > 0 {
		c.Subjects = fc.Subjects
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"poll_interval", fc.PollInterval, &c.PollInterval},
		{"poll_variation", fc.PollVariation, &c.PollVariation},
		{"stale_after", fc.StaleAfter, &c.StaleAfter},
		{"subject_delay", fc.SubjectDelay, &c.SubjectDelay},
		{"retry_backoff", fc.RetryBackoff, &c.RetryBackoff},
		{"send_timeout", fc.SendTimeout, &c.SendTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q in config file: %w", d.key, d.raw, err)
		}
		*d.dst = v
	}
	if fc.PageSize > 0 {
		c.PageSize = fc.PageSize
	}
	if fc.SendRate > 0 {
		c.SendRate = fc.SendRate
	}
	if fc.DispatchWorkers > 0 {
		c.DispatchWorkers = fc.DispatchWorkers
	}
	if fc.DispatchQueue > 0 {
		c.DispatchQueue = fc.DispatchQueue
	}
	if fc.FirstSeen != "" {
		c.FirstSeen = FirstSeenPolicy(strings.ToLower(fc.FirstSeen))
	}
	if fc.OnDeliveryFailure != "" {
		c.OnFailure = FailurePolicy(strings.ToLower(fc.OnDeliveryFailure))
	}
	setString(&c.Timezone, fc.Timezone)
	setString(&c.FeedSource, strings.ToLower(fc.FeedSource))
	setString(&c.RSSURLTemplate, fc.RSSURLTemplate)
	setString(&c.DatabasePath, fc.DatabasePath)
	setString(&c.LogLevel, fc.LogLevel)
	if len(fc.AllowedUsers) > 0 {
		c.AllowedUsers = fc.AllowedUsers
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.TelegramBotToken, os.Getenv("TELEGRAM_BOT_TOKEN"))
	setString(&c.ChatID, strings.TrimSpace(os.Getenv("CHAT_ID")))

	if raw := os.Getenv("SUBJECTS"); raw != "" {
		subjects, err := parseIDList("SUBJECTS", raw)
		if err != nil {
			return err
		}
		c.Subjects = subjects
	}
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		users, err := parseIDList("ALLOWED_USERS", raw)
		if err != nil {
			return err
		}
		c.AllowedUsers = users
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"POLL_INTERVAL", &c.PollInterval},
		{"POLL_VARIATION", &c.PollVariation},
		{"STALE_AFTER", &c.StaleAfter},
		{"SUBJECT_DELAY", &c.SubjectDelay},
		{"RETRY_BACKOFF", &c.RetryBackoff},
		{"SEND_TIMEOUT", &c.SendTimeout},
	}
	for _, d := range durations {
		raw := os.Getenv(d.key)
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.key, raw, err)
		}
		*d.dst = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"PAGE_SIZE", &c.PageSize},
		{"DISPATCH_WORKERS", &c.DispatchWorkers},
		{"DISPATCH_QUEUE", &c.DispatchQueue},
	}
	for _, i := range ints {
		raw := os.Getenv(i.key)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return fmt.Errorf("%s must be a positive integer, got %q", i.key, raw)
		}
		*i.dst = v
	}

	if raw := os.Getenv("SEND_RATE"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return fmt.Errorf("SEND_RATE must be a positive number, got %q", raw)
		}
		c.SendRate = v
	}

	if raw := os.Getenv("FIRST_SEEN"); raw != "" {
		c.FirstSeen = FirstSeenPolicy(strings.ToLower(raw))
	}
	if raw := os.Getenv("ON_DELIVERY_FAILURE"); raw != "" {
		c.OnFailure = FailurePolicy(strings.ToLower(raw))
	}
	setString(&c.Timezone, os.Getenv("TIMEZONE"))
	setString(&c.FeedSource, strings.ToLower(os.Getenv("FEED_SOURCE")))
	setString(&c.RSSURLTemplate, os.Getenv("RSS_URL_TEMPLATE"))
	setString(&c.DatabasePath, os.Getenv("DATABASE_PATH"))
	setString(&c.LogLevel, os.Getenv("LOG_LEVEL"))
	return nil
}

func (c *Config) validate() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.ChatID == "" {
		return fmt.Errorf("CHAT_ID is required")
	}
	if len(c.Subjects) == 0 {
		return fmt.Errorf("at least one subject is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.PollVariation < 0 || c.PollVariation >= c.PollInterval {
		return fmt.Errorf("poll variation must be in [0, %s)", c.PollInterval)
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("stale threshold must be positive")
	}

	switch c.FirstSeen {
	case FirstSeenNotify, FirstSeenBaseline:
	default:
		return fmt.Errorf("invalid first-seen policy %q, use: notify, baseline", c.FirstSeen)
	}
	switch c.OnFailure {
	case FailureKeep, FailureRollback:
	default:
		return fmt.Errorf("invalid delivery failure policy %q, use: keep, rollback", c.OnFailure)
	}
	switch c.FeedSource {
	case SourceBilibili:
	case SourceRSS:
		if !strings.Contains(c.RSSURLTemplate, "%d") {
			return fmt.Errorf("RSS_URL_TEMPLATE must contain %%d for the subject ID")
		}
	default:
		return fmt.Errorf("invalid feed source %q, use: bilibili, rss", c.FeedSource)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	c.Location = loc
	return nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func parseIDList(key, raw string) ([]int64, error) {
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ID %q in %s: %w", s, key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
