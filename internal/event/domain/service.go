package domain

import (
	"context"
	"errors"
	"time"
)

// IngestRequest carries one raw producer payload through the
// normalize -> persist -> broadcast pipeline. FallbackSource is applied when
// the payload does not name a source itself; Path records which ingestion
// route ("channel" or "endpoint") delivered the payload.
type IngestRequest struct {
	Payload        map[string]any
	FallbackSource string
	Path           string
}

// ListRequest are the read-side filters. All set filters are AND-ed.
type ListRequest struct {
	Text          string   `form:"q"`
	Source        string   `form:"source"`
	Chapter       *int     `form:"chapter"`
	Status        string   `form:"status"`
	MinConfidence *float64 `form:"min_confidence"`
	Limit         int      `form:"limit"`
}

type ListResponse struct {
	Count  int     `json:"count"`
	Events []Event `json:"events"`
}

// TimelineBucket is one day of the daily-bucketed series.
type TimelineBucket struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// StatsResponse is the full aggregate bundle plus liveness signals.
type StatsResponse struct {
	TotalEvents     int64            `json:"total_events"`
	EventsToday     int64            `json:"events_today"`
	EventsThisWeek  int64            `json:"events_this_week"`
	EventsThisMonth int64            `json:"events_this_month"`
	BySource        map[string]int64 `json:"by_source"`
	ByChapter       map[string]int64 `json:"by_chapter"`
	ByStatus        map[string]int64 `json:"by_status"`
	AvgConfidence   float64          `json:"avg_confidence"`
	HighConfidence  int64            `json:"high_confidence_events"`
	Timeline        []TimelineBucket `json:"timeline"`

	DatabaseConnected bool       `json:"database_connected"`
	RedisConnected    bool       `json:"redis_connected"`
	LastEventAt       *time.Time `json:"last_event_at,omitempty"`
}

// Service is the ingestion and read-side contract.
type Service interface {
	Ingest(context.Context, IngestRequest) (*Event, error)
	List(context.Context, ListRequest) (ListResponse, error)
	Stats(context.Context) (StatsResponse, error)
}

// QueryFilter mirrors ListRequest at the repository boundary.
type QueryFilter struct {
	Text          string
	Source        string
	Chapter       *int
	Status        string
	MinConfidence *float64
	Limit         int
}

// AggregateOptions tune the aggregate bundle computation.
type AggregateOptions struct {
	HighConfidenceThreshold float64
	TimelineDays            int
}

// Aggregates is the store-level slice of StatsResponse (no liveness).
type Aggregates struct {
	Total          int64
	Today          int64
	ThisWeek       int64
	ThisMonth      int64
	BySource       map[string]int64
	ByChapter      map[string]int64
	ByStatus       map[string]int64
	AvgConfidence  float64
	HighConfidence int64
	Timeline       []TimelineBucket
	LastEventAt    *time.Time
}

// Repository is the persistence boundary. Persist assigns the id and
// bookkeeping timestamps and enforces the hard validation contract.
type Repository interface {
	Persist(context.Context, *Event) (*Event, error)
	Query(context.Context, QueryFilter) ([]Event, error)
	Aggregate(context.Context, AggregateOptions) (Aggregates, error)
	Count(context.Context) (int64, error)
	Ping(context.Context) error
}

// Broadcaster receives persisted events for live fan-out. Implementations
// must never block the ingestion path.
type Broadcaster interface {
	BroadcastNewEvent(Event)
	BroadcastStatsUpdate(total int64)
}

var (
	// ErrMissingCompanyName is the single normalization rejection: a payload
	// with no usable company name carries nothing worth recording.
	ErrMissingCompanyName = errors.New("missing_company_name")
)

// ValidationError is a single violated field constraint.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors aggregates every violation found at the persist boundary.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string { return "validation error" }

// AsValidationErrors unwraps err into a *ValidationErrors if it is one.
func AsValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}
