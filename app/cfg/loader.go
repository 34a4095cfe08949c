package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

const (
	DedupeBackendFile   = "file"
	DedupeBackendSQLite = "sqlite"
)

type rawCfg struct {
	// HTTP control surface
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for the control endpoints (optional)"`

	// Scheduling
	CronSchedule string        `long:"cron-schedule" env:"CRON_SCHEDULE" default:"0 * * * *" description:"Cron expression (5 or 6 fields) for crawler runs"`
	Timezone     string        `long:"timezone" env:"TIMEZONE" default:"UTC" description:"IANA timezone the cron expression is evaluated in"`
	TaskTimeout  time.Duration `long:"task-timeout" env:"TASK_TIMEOUT" default:"30m" description:"Upper bound for a single crawler run (0 disables)"`

	// Sources and persisted state
	SourcesDir         string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source definition files"`
	DataDir            string `long:"data-dir" env:"DATA_DIR" default:"./data" description:"Directory for seen-identifier files"`
	DedupeBackend      string `long:"dedupe-backend" env:"DEDUPE_BACKEND" default:"file" choice:"file" choice:"sqlite" description:"Where seen identifiers are persisted"`
	DBPath             string `long:"db-path" env:"DB_PATH" default:"./data/feed-relay.db" description:"SQLite database path (sqlite backend)"`
	DedupeMaxEntries   int    `long:"dedupe-max-entries" env:"DEDUPE_MAX_ENTRIES" default:"1000" description:"Compact the seen set once it holds more than this many identifiers"`
	DedupeKeepTrailing int    `long:"dedupe-keep-trailing" env:"DEDUPE_KEEP_TRAILING" default:"500" description:"Number of most recent identifiers kept by compaction"`

	// Transform backend
	AssistantURL         string        `long:"assistant-url" env:"ASSISTANT_URL" default:"https://api.openai.com/v1" description:"Base URL of the rewriting assistant API"`
	AssistantAPIKey      string        `long:"assistant-api-key" env:"OPENAI_API_KEY" description:"Assistant API key" required:"true"`
	AssistantID          string        `long:"assistant-id" env:"ASSISTANT_ID" description:"Assistant identifier" required:"true"`
	PollInterval         time.Duration `long:"poll-interval" env:"POLL_INTERVAL" default:"1200ms" description:"Interval between run status polls"`
	TransformTimeout     time.Duration `long:"transform-timeout" env:"TRANSFORM_TIMEOUT" default:"120s" description:"Hard ceiling for one rewrite run"`
	TransformConcurrency int           `long:"transform-concurrency" env:"TRANSFORM_CONCURRENCY" default:"4" description:"Rewrites issued in parallel within one crawler run"`
	Languages            string        `long:"languages" env:"LANGUAGES" default:"en,uk" description:"Comma separated output languages"`

	// Publish backend
	PublishURL        string        `long:"publish-url" env:"PUBLISH_URL" description:"Base URL of the publishing site" required:"true"`
	PublishUser       string        `long:"publish-user" env:"PUBLISH_USER" description:"Publishing user name"`
	PublishPassword   string        `long:"publish-password" env:"PUBLISH_PASSWORD" description:"Publishing application password"`
	PublishStatus     string        `long:"publish-status" env:"PUBLISH_STATUS" default:"draft" description:"Status given to created posts"`
	PublishAuthorID   int64         `long:"publish-author-id" env:"PUBLISH_AUTHOR_ID" description:"Author id attached to created posts (0 = site default)"`
	DefaultCategoryID int64         `long:"default-category-id" env:"DEFAULT_CATEGORY_ID" default:"1" description:"Category id used when no category name matches"`
	PublishRetries    int           `long:"publish-retries" env:"PUBLISH_RETRIES" default:"5" description:"Retry ceiling for transient publish failures"`
	PublishRetryDelay time.Duration `long:"publish-retry-delay" env:"PUBLISH_RETRY_DELAY" default:"2s" description:"Base delay, multiplied by the attempt number"`
	PublishTimeout    time.Duration `long:"publish-timeout" env:"PUBLISH_TIMEOUT" default:"30s" description:"Timeout of a single publish call"`

	// Telemetry backend
	MixpanelURL      string        `long:"mixpanel-url" env:"MIXPANEL_URL" default:"https://api.mixpanel.com" description:"Mixpanel ingestion endpoint"`
	MixpanelToken    string        `long:"mixpanel-token" env:"MIXPANEL_TOKEN" description:"Mixpanel project token (telemetry disabled when empty)"`
	TelemetryTimeout time.Duration `long:"telemetry-timeout" env:"TELEMETRY_TIMEOUT" default:"5s" description:"Timeout of a single telemetry delivery"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"feed-relay/1.0" description:"User agent string for HTTP requests"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load reads an optional .env file, then flags and environment variables.
// It returns nil, nil when help was requested.
func Load(args []string) (*Cfg, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	return build(raw)
}

func build(raw rawCfg) (*Cfg, error) {
	loc, err := time.LoadLocation(raw.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", raw.Timezone, err)
	}

	languages := splitList(raw.Languages)
	if len(languages) == 0 {
		return nil, fmt.Errorf("at least one output language is required")
	}

	if raw.DedupeKeepTrailing < 0 || raw.DedupeMaxEntries < 0 {
		return nil, fmt.Errorf("dedupe limits must be non-negative")
	}
	if raw.DedupeKeepTrailing > raw.DedupeMaxEntries {
		return nil, fmt.Errorf("dedupe trailing window (%d) exceeds ceiling (%d)", raw.DedupeKeepTrailing, raw.DedupeMaxEntries)
	}

	if raw.PublishRetries < 0 {
		return nil, fmt.Errorf("publish retries must be non-negative")
	}

	for name, d := range map[string]time.Duration{
		"poll interval":     raw.PollInterval,
		"transform timeout": raw.TransformTimeout,
		"telemetry timeout": raw.TelemetryTimeout,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	return &Cfg{
		Port:                 raw.Port,
		APIAccessKey:         raw.APIAccessKey,
		CronSchedule:         raw.CronSchedule,
		Timezone:             raw.Timezone,
		Location:             loc,
		TaskTimeout:          raw.TaskTimeout,
		SourcesDir:           raw.SourcesDir,
		DataDir:              raw.DataDir,
		DedupeBackend:        raw.DedupeBackend,
		DBPath:               raw.DBPath,
		DedupeMaxEntries:     raw.DedupeMaxEntries,
		DedupeKeepTrailing:   raw.DedupeKeepTrailing,
		AssistantURL:         strings.TrimRight(raw.AssistantURL, "/"),
		AssistantAPIKey:      raw.AssistantAPIKey,
		AssistantID:          raw.AssistantID,
		PollInterval:         raw.PollInterval,
		TransformTimeout:     raw.TransformTimeout,
		TransformConcurrency: max(raw.TransformConcurrency, 1),
		Languages:            languages,
		PublishURL:           strings.TrimRight(raw.PublishURL, "/"),
		PublishUser:          raw.PublishUser,
		PublishPassword:      raw.PublishPassword,
		PublishStatus:        raw.PublishStatus,
		PublishAuthorID:      raw.PublishAuthorID,
		DefaultCategoryID:    raw.DefaultCategoryID,
		PublishRetries:       raw.PublishRetries,
		PublishRetryDelay:    raw.PublishRetryDelay,
		PublishTimeout:       raw.PublishTimeout,
		MixpanelURL:          strings.TrimRight(raw.MixpanelURL, "/"),
		MixpanelToken:        raw.MixpanelToken,
		TelemetryTimeout:     raw.TelemetryTimeout,
		UserAgent:            raw.UserAgent,
		Debug:                raw.Debug,
		Version:              GetVersion(),
	}, nil
}

func splitList(value string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}
