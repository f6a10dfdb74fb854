package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultFeedConfig(t *testing.T) {
	cfg := DefaultFeedConfig()

	assert.Equal(t, 0.8, cfg.HighConfidenceThreshold)
	assert.Equal(t, 30, cfg.TimelineDays)
	assert.Equal(t, 50, cfg.DefaultPageSize)
	assert.Equal(t, 500, cfg.MaxPageSize)
	assert.NoError(t, validateFeedConfig(cfg))
}

func TestValidateFeedConfig(t *testing.T) {
	cases := map[string]FeedConfig{
		"threshold above one": {HighConfidenceThreshold: 1.2, TimelineDays: 30, DefaultPageSize: 50, MaxPageSize: 500},
		"negative threshold":  {HighConfidenceThreshold: -0.1, TimelineDays: 30, DefaultPageSize: 50, MaxPageSize: 500},
		"zero timeline":       {HighConfidenceThreshold: 0.8, TimelineDays: 0, DefaultPageSize: 50, MaxPageSize: 500},
		"max below default":   {HighConfidenceThreshold: 0.8, TimelineDays: 30, DefaultPageSize: 50, MaxPageSize: 10},
		"zero page size":      {HighConfidenceThreshold: 0.8, TimelineDays: 30, DefaultPageSize: 0, MaxPageSize: 500},
	}

	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, validateFeedConfig(cfg))
		})
	}
}

func TestFeedConfigHolder_NilSafety(t *testing.T) {
	var holder *FeedConfigHolder
	assert.Equal(t, DefaultFeedConfig(), holder.Current())
}

func TestNewFeedConfigHolder_DefaultsWithoutFile(t *testing.T) {
	holder, err := NewFeedConfigHolder()
	assert.NoError(t, err)
	assert.Equal(t, DefaultFeedConfig(), holder.Current())
}
