// Package domain contains the canonical bankruptcy event model and the
// contracts of the ingestion pipeline built around it.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Event source tags. The first four match the scanners of the upstream
// detection engine; DoomEngine is the fallback applied to channel messages
// that arrive without a source, Manual to direct pushes without one.
const (
	SourcePacer         = "pacer"
	SourceEdgar         = "edgar"
	SourceFmcsa         = "fmcsa"
	SourceCourtListener = "court_listener"
	SourceManual        = "manual"
	SourceDoomEngine    = "doom_engine"
)

// Event lifecycle statuses. Every event is born StatusNew; the remaining
// transitions belong to a moderation workflow outside this service.
const (
	StatusNew           = "new"
	StatusConfirmed     = "confirmed"
	StatusInvestigating = "investigating"
	StatusResolved      = "resolved"
	StatusFalseAlarm    = "false_alarm"
)

// AllowedChapters is the set of bankruptcy chapters stored as-is. Anything
// else is coerced to absent during normalization and rejected at persist.
var AllowedChapters = map[int]bool{7: true, 11: true, 13: true, 15: true}

// Event is a single detected carrier distress/bankruptcy notification.
type Event struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	CompanyName     string            `gorm:"type:text;not null" json:"company_name"`
	DotNumber       string            `gorm:"type:text" json:"dot_number,omitempty"`
	McNumber        string            `gorm:"type:text" json:"mc_number,omitempty"`
	FilingDate      *time.Time        `json:"filing_date,omitempty"`
	Court           string            `gorm:"type:text" json:"court,omitempty"`
	Chapter         *int              `json:"chapter,omitempty"`
	Source          string            `gorm:"type:text;not null;index" json:"source"`
	ConfidenceScore float64           `gorm:"not null" json:"confidence_score"`
	RawData         datatypes.JSONMap `gorm:"type:jsonb" json:"raw_data,omitempty"`
	DetectedAt      time.Time         `gorm:"not null;index" json:"detected_at"`
	Status          string            `gorm:"type:text;not null;index" json:"status"`
	CreatedAt       time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "bankruptcy_events" }
