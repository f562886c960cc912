package sources

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultIntervalSeconds = 1800
	defaultWeight          = 1
)

type configFile struct {
	Sources []Config `yaml:"sources"`
}

// LoadFile reads and validates the sources configuration file.
func LoadFile(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}

	if len(file.Sources) == 0 {
		return nil, fmt.Errorf("sources file %s defines no sources", path)
	}

	seen := make(map[string]bool, len(file.Sources))

	for i := range file.Sources {
		cfg := &file.Sources[i]
		applyDefaults(cfg)

		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("source %d (%s): %w", i, cfg.ID, err)
		}

		if seen[cfg.ID] {
			return nil, fmt.Errorf("duplicate source id: %s", cfg.ID)
		}
		seen[cfg.ID] = true
	}

	return file.Sources, nil
}

func applyDefaults(cfg *Config) {
	if cfg.IntervalSeconds <= 0 {
		cfg.IntervalSeconds = defaultIntervalSeconds
	}

	if cfg.Weight <= 0 {
		cfg.Weight = defaultWeight
	}

	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
}

func (c *Config) validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}

	if c.URL == "" {
		return fmt.Errorf("url is required")
	}

	if !c.Kind.Valid() {
		return fmt.Errorf("unknown kind: %q", c.Kind)
	}

	switch c.Kind {
	case KindPage:
		if c.Page.ArticleSelector == "" {
			return fmt.Errorf("page.article_selector is required")
		}
		if c.Page.LinkSelector == "" {
			return fmt.Errorf("page.link_selector is required")
		}
	case KindAPI:
		if c.API.Fields["url"] == "" {
			return fmt.Errorf("api.fields.url is required")
		}
	}

	switch c.API.Auth.Type {
	case "", "bearer", "basic", "api_key":
	default:
		return fmt.Errorf("unknown auth type: %q", c.API.Auth.Type)
	}

	return nil
}
