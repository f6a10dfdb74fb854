// Package normalize turns raw producer payloads into canonical events.
//
// The pipeline favors availability over strictness: every anomaly except a
// missing company name degrades to a default instead of rejecting the
// payload. Out-of-range confidence scores are deliberately passed through
// untouched so the store boundary can enforce the hard validation contract.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/freightwatch/doomfeed/internal/event/domain"
	"gorm.io/datatypes"
)

// Accepted layouts for best-effort date parsing, in precedence order.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	time.RFC1123,
	time.RFC1123Z,
}

// Normalize resolves heterogeneous field naming into a canonical Event or
// returns domain.ErrMissingCompanyName. The snake_case key wins when a field
// arrives under both naming conventions. fallbackSource is applied when the
// payload names no source.
func Normalize(raw map[string]any, fallbackSource string) (*domain.Event, error) {
	company := strings.TrimSpace(stringField(raw, "company_name", "companyName"))
	if company == "" {
		return nil, domain.ErrMissingCompanyName
	}

	source := strings.TrimSpace(stringField(raw, "source"))
	if source == "" {
		source = fallbackSource
	}

	event := &domain.Event{
		CompanyName: company,
		DotNumber:   strings.TrimSpace(stringField(raw, "dot_number", "dotNumber")),
		McNumber:    strings.TrimSpace(stringField(raw, "mc_number", "mcNumber")),
		Court:       strings.TrimSpace(stringField(raw, "court")),
		Source:      strings.ToLower(source),
		RawData:     datatypes.JSONMap(raw),
	}

	if filed, ok := timeField(raw, "filing_date", "filingDate"); ok {
		event.FilingDate = &filed
	}

	if detected, ok := timeField(raw, "detected_at", "detectedAt"); ok {
		event.DetectedAt = detected
	} else {
		event.DetectedAt = time.Now().UTC()
	}

	if chapter, ok := intField(raw, "chapter"); ok && domain.AllowedChapters[chapter] {
		event.Chapter = &chapter
	}

	if score, ok := floatField(raw, "confidence_score", "confidenceScore"); ok {
		event.ConfidenceScore = score
	}

	return event, nil
}

// resolve returns the first non-nil value among the given keys, so dual-named
// fields list the snake key first and single-named fields pass one key.
func resolve(raw map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := raw[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(raw map[string]any, keys ...string) string {
	v, ok := resolve(raw, keys...)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64, int, int64, bool:
		return fmt.Sprintf("%v", s)
	default:
		return ""
	}
}

func intField(raw map[string]any, keys ...string) (int, bool) {
	v, ok := resolve(raw, keys...)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func floatField(raw map[string]any, keys ...string) (float64, bool) {
	v, ok := resolve(raw, keys...)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func timeField(raw map[string]any, keys ...string) (time.Time, bool) {
	v, ok := resolve(raw, keys...)
	if !ok {
		return time.Time{}, false
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}
