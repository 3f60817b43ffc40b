package orchestrator

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pastewire/orchestrator/internal/browser"
)

// Config holds all pastewire configuration.
type Config struct {
	DBPath    string         `yaml:"db_path"`
	Listen    string         `yaml:"listen"`
	ConfigURL string         `yaml:"config_url"`
	Browser   browser.Config `yaml:"browser"`
	Menu      MenuConfig     `yaml:"menu"`
	Sync      SyncConfig     `yaml:"sync"`
	Delivery  DeliveryConfig `yaml:"delivery"`
	Watch     WatchConfig    `yaml:"watch"`
	Capture   CaptureConfig  `yaml:"capture"`
}

// MenuConfig controls the menu state machine.
type MenuConfig struct {
	Title  string        `yaml:"title"`
	Settle time.Duration `yaml:"settle"`
}

// SyncConfig controls the state synchronizer.
type SyncConfig struct {
	PullTimeout time.Duration `yaml:"pull_timeout"`
}

// DeliveryConfig controls the delivery engine.
type DeliveryConfig struct {
	AttemptTimeout  time.Duration `yaml:"attempt_timeout"`
	SubmitSelectors []string      `yaml:"submit_selectors"`
}

// WatchConfig controls the persisted-record watcher.
type WatchConfig struct {
	Interval time.Duration `yaml:"interval"`
	Debounce time.Duration `yaml:"debounce"`
}

// CaptureConfig controls the capture flow.
type CaptureConfig struct {
	PromptTimeout time.Duration `yaml:"prompt_timeout"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "pastewire.db"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8791"
	}
	if c.ConfigURL == "" {
		host := c.Listen
		if strings.HasPrefix(host, ":") {
			host = "127.0.0.1" + host
		}
		c.ConfigURL = "http://" + host + "/config"
	}
	if c.Browser.LoadTimeout <= 0 {
		c.Browser.LoadTimeout = 30 * time.Second
	}
	if c.Menu.Title == "" {
		c.Menu.Title = "PasteWire"
	}
	if c.Menu.Settle <= 0 {
		c.Menu.Settle = 150 * time.Millisecond
	}
	if c.Sync.PullTimeout <= 0 {
		c.Sync.PullTimeout = time.Second
	}
	if c.Delivery.AttemptTimeout <= 0 {
		c.Delivery.AttemptTimeout = 2 * time.Second
	}
	if c.Watch.Interval <= 0 {
		c.Watch.Interval = 500 * time.Millisecond
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = 250 * time.Millisecond
	}
	if c.Capture.PromptTimeout <= 0 {
		c.Capture.PromptTimeout = 2 * time.Minute
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
