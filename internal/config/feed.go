package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FeedConfig holds the read-side tunables that ops may want to retune
// without a redeploy.
type FeedConfig struct {
	HighConfidenceThreshold float64 `mapstructure:"highConfidenceThreshold"`
	TimelineDays            int     `mapstructure:"timelineDays"`
	DefaultPageSize         int     `mapstructure:"defaultPageSize"`
	MaxPageSize             int     `mapstructure:"maxPageSize"`
}

func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		HighConfidenceThreshold: 0.8,
		TimelineDays:            30,
		DefaultPageSize:         50,
		MaxPageSize:             500,
	}
}

// FeedConfigHolder serves the current FeedConfig and hot-reloads it when the
// backing file changes.
type FeedConfigHolder struct {
	current atomic.Value // holds FeedConfig
}

func NewFeedConfigHolder() (*FeedConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("feed")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/doomfeed")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DOOMFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultFeedConfig()
	v.SetDefault("feed.highConfidenceThreshold", defaults.HighConfidenceThreshold)
	v.SetDefault("feed.timelineDays", defaults.TimelineDays)
	v.SetDefault("feed.defaultPageSize", defaults.DefaultPageSize)
	v.SetDefault("feed.maxPageSize", defaults.MaxPageSize)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg FeedConfig
	if err := v.UnmarshalKey("feed", &cfg); err != nil {
		return nil, err
	}
	if err := validateFeedConfig(cfg); err != nil {
		return nil, err
	}

	holder := &FeedConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated FeedConfig
		if err := v.UnmarshalKey("feed", &updated); err != nil {
			log.Printf("[feed-config] reload failed: %v", err)
			return
		}
		if err := validateFeedConfig(updated); err != nil {
			log.Printf("[feed-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
	})

	return holder, nil
}

// Current returns the active FeedConfig snapshot.
func (h *FeedConfigHolder) Current() FeedConfig {
	if h == nil {
		return DefaultFeedConfig()
	}
	cfg, ok := h.current.Load().(FeedConfig)
	if !ok {
		return DefaultFeedConfig()
	}
	return cfg
}

func validateFeedConfig(cfg FeedConfig) error {
	if cfg.HighConfidenceThreshold < 0 || cfg.HighConfidenceThreshold > 1 {
		return errors.New("feed: highConfidenceThreshold must be within [0, 1]")
	}
	if cfg.TimelineDays < 1 {
		return errors.New("feed: timelineDays must be positive")
	}
	if cfg.DefaultPageSize < 1 || cfg.MaxPageSize < cfg.DefaultPageSize {
		return errors.New("feed: page sizes must satisfy 1 <= default <= max")
	}
	return nil
}
