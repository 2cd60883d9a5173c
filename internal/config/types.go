package config

import (
	"fmt"

	"pacewatch/internal/pace"
)

// Config is the whole on-disk document. One file drives everything; partial
// sections fall back to defaults in the consuming packages.
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Streamers are the paceman nicknames to watch (case-insensitive).
	Streamers []string `json:"streamers"`

	// Defaults maps milestone -> rule applied to every streamer.
	Defaults map[pace.Milestone]pace.RawRule `json:"defaults,omitempty"`

	// Profiles maps streamer -> milestone -> partial override. Fields left
	// unset inherit from Defaults.
	Profiles map[string]map[pace.Milestone]pace.RawRule `json:"profiles,omitempty"`

	// QuietHours lists up to 3 "HH:MM-HH:MM" local-time spans during which
	// deliveries are suppressed (the dedupe record is still written).
	QuietHours []string `json:"quiet_hours,omitempty"`

	Watch    WatchConfig    `json:"watch,omitempty"`
	Upstream UpstreamConfig `json:"upstream,omitempty"`
	Notify   NotifyConfig   `json:"notify,omitempty"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Pprof    PprofConfig    `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"` // trace|debug|info|warn|error
	Console *bool             `json:"console,omitempty"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// WatchConfig tunes the polling loops. All durations are Go duration strings.
//
// Defaults: discovery_interval 20s, run_interval 5s, resync_interval 5s,
// grace_period 2m. Maintenance accepts the schedule spec syntax
// ("cron:0 4 * * *", "every:6h", "@daily", "04:00"); empty disables it.
type WatchConfig struct {
	DiscoveryInterval string `json:"discovery_interval,omitempty"`
	RunInterval       string `json:"run_interval,omitempty"`
	ResyncInterval    string `json:"resync_interval,omitempty"`
	GracePeriod       string `json:"grace_period,omitempty"`
	Maintenance       string `json:"maintenance,omitempty"`
}

type UpstreamConfig struct {
	BaseURL      string `json:"base_url,omitempty"`
	LiveURL      string `json:"live_url,omitempty"`
	Timeout      string `json:"timeout,omitempty"`
	RatePerSec   int    `json:"rate_per_sec,omitempty"`
	LiveCacheTTL string `json:"live_cache_ttl,omitempty"`
}

type NotifyConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`

	// Command is an argv exec'd per notification; "{title}" and "{body}"
	// are substituted in any argument.
	Command []string `json:"command,omitempty"`

	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

// StorageConfig controls the dedupe/journal persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./pacewatch_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// PprofConfig controls the optional pprof HTTP server.
//
// Prefer binding to localhost. Off-loopback binds require a token or an
// explicit allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default "127.0.0.1:6060"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// Validate rejects documents no component could run with. Advisory
// inconsistencies (unknown profile streamers, profile-only milestones) are
// surfaced as pace warnings at runtime instead.
func (c *Config) Validate() error {
	if len(c.Streamers) == 0 {
		return fmt.Errorf("streamers: at least one streamer is required")
	}
	seen := map[string]bool{}
	for i, s := range c.Streamers {
		if s == "" {
			return fmt.Errorf("streamers[%d]: empty name", i)
		}
		if seen[s] {
			return fmt.Errorf("streamers[%d]: duplicate %q", i, s)
		}
		seen[s] = true
	}

	if len(c.QuietHours) > pace.MaxQuietSpans {
		return fmt.Errorf("quiet_hours: at most %d spans, got %d", pace.MaxQuietSpans, len(c.QuietHours))
	}
	for i, raw := range c.QuietHours {
		if _, err := pace.ParseSpan(raw); err != nil {
			return fmt.Errorf("quiet_hours[%d]: %w", i, err)
		}
	}

	for _, f := range []struct{ path, raw string }{
		{"watch.discovery_interval", c.Watch.DiscoveryInterval},
		{"watch.run_interval", c.Watch.RunInterval},
		{"watch.resync_interval", c.Watch.ResyncInterval},
		{"watch.grace_period", c.Watch.GracePeriod},
		{"upstream.timeout", c.Upstream.Timeout},
		{"upstream.live_cache_ttl", c.Upstream.LiveCacheTTL},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
