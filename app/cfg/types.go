package cfg

import (
	"time"
)

type Cfg struct {
	// HTTP control surface
	Port         string
	APIAccessKey string

	// Scheduling
	CronSchedule string
	Timezone     string
	Location     *time.Location
	TaskTimeout  time.Duration

	// Sources and persisted state
	SourcesDir         string
	DataDir            string
	DedupeBackend      string
	DBPath             string
	DedupeMaxEntries   int
	DedupeKeepTrailing int

	// Transform backend
	AssistantURL         string
	AssistantAPIKey      string
	AssistantID          string
	PollInterval         time.Duration
	TransformTimeout     time.Duration
	TransformConcurrency int
	Languages            []string

	// Publish backend
	PublishURL        string
	PublishUser       string
	PublishPassword   string
	PublishStatus     string
	PublishAuthorID   int64
	DefaultCategoryID int64
	PublishRetries    int
	PublishRetryDelay time.Duration
	PublishTimeout    time.Duration

	// Telemetry backend
	MixpanelURL      string
	MixpanelToken    string
	TelemetryTimeout time.Duration

	// Application metadata
	UserAgent string
	Debug     bool
	Version   string
}
