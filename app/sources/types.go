package sources

import (
	"time"
)

// Kind selects the adapter used to fetch a source.
type Kind string

const (
	KindFeed Kind = "feed"
	KindPage Kind = "page"
	KindAPI  Kind = "api"
)

func (k Kind) Valid() bool {
	switch k {
	case KindFeed, KindPage, KindAPI:
		return true
	}
	return false
}

// Configuration types

type Config struct {
	ID              string       `yaml:"id"`
	Name            string       `yaml:"name"`
	Kind            Kind         `yaml:"kind"`
	URL             string       `yaml:"url"`
	IntervalSeconds int          `yaml:"interval_seconds"`
	TimeoutSeconds  int          `yaml:"timeout_seconds"`
	Weight          int          `yaml:"weight"`
	Active          bool         `yaml:"active"`
	Category        string       `yaml:"category"`
	Page            PageSettings `yaml:"page"`
	API             APISettings  `yaml:"api"`
}

type PageSettings struct {
	ArticleSelector  string `yaml:"article_selector"`
	TitleSelector    string `yaml:"title_selector"`
	LinkSelector     string `yaml:"link_selector"`
	ContentSelector  string `yaml:"content_selector"`
	SummarySelector  string `yaml:"summary_selector"`
	DateSelector     string `yaml:"date_selector"`
	AuthorSelector   string `yaml:"author_selector"`
	ImageSelector    string `yaml:"image_selector"`
	NextPageSelector string `yaml:"next_page_selector"`
	MaxPages         int    `yaml:"max_pages"`
	FollowLinks      bool   `yaml:"follow_links"`
}

type APISettings struct {
	Auth      APIAuth           `yaml:"auth"`
	ItemsPath string            `yaml:"items_path"`
	Fields    map[string]string `yaml:"fields"`
	PageParam string            `yaml:"page_param"`
	SizeParam string            `yaml:"size_param"`
	PageSize  int               `yaml:"page_size"`
	MaxPages  int               `yaml:"max_pages"`
}

type APIAuth struct {
	Type     string `yaml:"type"` // bearer, basic or api_key
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Key      string `yaml:"key"`
	Param    string `yaml:"param"`
	Header   string `yaml:"header"`
}

// Source combines a configuration entry with its scheduling health.
// Health fields are mutated only by the Registry.
type Source struct {
	Config

	LastSuccessAt       *time.Time
	LastAttemptAt       *time.Time
	NextAttemptAt       *time.Time
	ConsecutiveFailures int
	LastError           string
	Running             bool
}

// Due reports whether the source is eligible for a fetch attempt.
// A source that has never been attempted is due immediately.
func (s *Source) Due(now time.Time) bool {
	if !s.Active || s.Running {
		return false
	}
	return s.NextAttemptAt == nil || !s.NextAttemptAt.After(now)
}

func (s *Source) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}
