package feed

import (
	"time"
)

// Feed processing types

type Metadata struct {
	Title       string
	Link        string
	Description string
	Language    string
	UpdatedAt   *time.Time
}

// Item is one feed entry after normalization and cleaning. It is not
// modified once ExtractItems returns it.
type Item struct {
	ID          string // guid, falling back to link; the dedupe identifier
	GUID        string
	Title       string
	Link        string
	Description string
	Content     string // cleaned HTML body, "" when nothing could be extracted
	PublishedAt time.Time
	Author      string
	Categories  []string
	OriginImage string

	IsFiltered   bool
	FilterReason string
}

// Configuration types

type Config struct {
	Name     string         // Derived from filename (without .yml extension)
	URL      string         `yaml:"url"`
	Settings ConfigSettings `yaml:"settings"`
	Filters  []ConfigFilter `yaml:"filters"`
}

type ConfigSettings struct {
	Enabled        bool     `yaml:"enabled"`         // start with the process
	MaxItems       int      `yaml:"max_items"`       // per run, after dedupe
	Timeout        int      `yaml:"timeout"`         // seconds
	ExtractContent bool     `yaml:"extract_content"` // fetch the page when an entry has no body
	Boilerplate    []string `yaml:"boilerplate"`     // paragraph patterns stripped from bodies
}

type ConfigFilter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

func (s ConfigSettings) GetTimeout() time.Duration {
	if s.Timeout <= 0 {
		return defaultTimeout * time.Second
	}
	return time.Duration(s.Timeout) * time.Second
}
