package news

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed config/feeds.yaml
var feedsYAML []byte

// Feed is one syndication source tied to a jurisdiction.
type Feed struct {
	Name  string `yaml:"name" validate:"required"`
	URL   string `yaml:"url" validate:"required,url"`
	State string `yaml:"state" validate:"required,len=2,uppercase"`
	Focus string `yaml:"focus,omitempty"`
}

// Keywords drive relevance, priority and category. All-caps acronyms
// (DOT, IIJA, BIL) match as case-sensitive whole words; every other keyword
// is a case-insensitive substring.
type Keywords struct {
	HighPriority   []string `yaml:"high_priority" validate:"required,min=1"`
	MediumPriority []string `yaml:"medium_priority" validate:"required,min=1"`
	Funding        []string `yaml:"funding" validate:"required,min=1"`
}

type Config struct {
	MaxEntriesPerFeed int      `yaml:"max_entries_per_feed" validate:"min=1,max=200"`
	SummaryMax        int      `yaml:"summary_max" validate:"min=50,max=2000"`
	Concurrency       int      `yaml:"concurrency" validate:"min=1,max=32"`
	Keywords          Keywords `yaml:"keywords"`
	Feeds             []Feed   `yaml:"feeds" validate:"dive"`
}

var validate = validator.New()

// DefaultConfig returns the embedded feed configuration.
func DefaultConfig() *Config {
	cfg, err := ParseConfig(feedsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded feeds.yaml: %v", err))
	}
	return cfg
}

// LoadConfig reads a feed configuration file, or the embedded one when path is empty.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return ParseConfig(feedsYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feed config %s: %w", path, err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	cfg := Config{
		MaxEntriesPerFeed: 20,
		SummaryMax:        300,
		Concurrency:       4,
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode feed config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid feed config: %w", err)
	}
	return &cfg, nil
}
