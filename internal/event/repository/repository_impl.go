// Package repository implements the event store on gorm.
package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/freightwatch/doomfeed/internal/event/domain"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

type Repository struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func New(db *gorm.DB, genID *snowflake.Node) *Repository {
	return &Repository{db: db, genID: genID}
}

// Persist validates the hard contract, assigns the id and bookkeeping
// timestamps, and inserts the record. Violations come back as a structured
// *domain.ValidationErrors enumerating every failed field.
func (r *Repository) Persist(ctx context.Context, event *domain.Event) (*domain.Event, error) {
	if err := validate(event); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := *event
	record.ID = r.genID.Generate()
	record.Status = domain.StatusNew
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.DetectedAt.IsZero() {
		record.DetectedAt = now
	}

	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func validate(event *domain.Event) error {
	var violations []domain.ValidationError

	if event == nil || strings.TrimSpace(event.CompanyName) == "" {
		violations = append(violations, domain.ValidationError{
			Field:   "company_name",
			Code:    "missing_company_name",
			Message: "company_name must not be blank",
		})
	}
	if event != nil {
		if strings.TrimSpace(event.Source) == "" {
			violations = append(violations, domain.ValidationError{
				Field:   "source",
				Code:    "missing_source",
				Message: "source must not be blank",
			})
		}
		if event.ConfidenceScore < 0 || event.ConfidenceScore > 1 {
			violations = append(violations, domain.ValidationError{
				Field:   "confidence_score",
				Code:    "confidence_out_of_range",
				Message: "confidence_score must be between 0.0 and 1.0",
			})
		}
		if event.Chapter != nil && !domain.AllowedChapters[*event.Chapter] {
			violations = append(violations, domain.ValidationError{
				Field:   "chapter",
				Code:    "invalid_chapter",
				Message: "chapter must be one of 7, 11, 13, 15",
			})
		}
	}

	if len(violations) > 0 {
		return &domain.ValidationErrors{Errors: violations}
	}
	return nil
}

// Query returns a page of events, detection time descending with id as the
// tie-break so pagination stays deterministic.
func (r *Repository) Query(ctx context.Context, filter domain.QueryFilter) ([]domain.Event, error) {
	q := r.db.WithContext(ctx).Model(&domain.Event{})

	if text := strings.TrimSpace(filter.Text); text != "" {
		pattern := "%" + strings.ToLower(text) + "%"
		q = q.Where(
			"(LOWER(company_name) LIKE ? OR LOWER(dot_number) LIKE ? OR LOWER(mc_number) LIKE ?)",
			pattern, pattern, pattern,
		)
	}
	if source := strings.TrimSpace(filter.Source); source != "" {
		q = q.Where("source = ?", strings.ToLower(source))
	}
	if filter.Chapter != nil {
		q = q.Where("chapter = ?", *filter.Chapter)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		q = q.Where("status = ?", status)
	}
	if filter.MinConfidence != nil {
		q = q.Where("confidence_score >= ?", *filter.MinConfidence)
	}

	var events []domain.Event
	err := q.Order("detected_at DESC, id DESC").
		Limit(ClampLimit(filter.Limit)).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ClampLimit bounds a requested page size to [1, MaxLimit], defaulting
// unset values.
func ClampLimit(limit int) int {
	if limit == 0 {
		return DefaultLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Event{}).Count(&count).Error
	return count, err
}

func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type groupRow struct {
	Name  string
	Count int64
}

// Aggregate computes the full rollup bundle in one pass over the store.
func (r *Repository) Aggregate(ctx context.Context, opts domain.AggregateOptions) (domain.Aggregates, error) {
	agg := domain.Aggregates{
		BySource:  map[string]int64{},
		ByChapter: map[string]int64{},
		ByStatus:  map[string]int64{},
	}

	model := func() *gorm.DB { return r.db.WithContext(ctx).Model(&domain.Event{}) }

	if err := model().Count(&agg.Total).Error; err != nil {
		return agg, err
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := dayStart.AddDate(0, 0, -mondayOffset(dayStart.Weekday()))
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	for _, window := range []struct {
		since time.Time
		out   *int64
	}{
		{dayStart, &agg.Today},
		{weekStart, &agg.ThisWeek},
		{monthStart, &agg.ThisMonth},
	} {
		if err := model().Where("detected_at >= ?", window.since).Count(window.out).Error; err != nil {
			return agg, err
		}
	}

	for _, group := range []struct {
		column string
		out    map[string]int64
	}{
		{"source", agg.BySource},
		{"chapter", agg.ByChapter},
		{"status", agg.ByStatus},
	} {
		var rows []groupRow
		err := model().
			Select(fmt.Sprintf("%s AS name, COUNT(*) AS count", group.column)).
			Where(fmt.Sprintf("%s IS NOT NULL", group.column)).
			Group(group.column).
			Scan(&rows).Error
		if err != nil {
			return agg, err
		}
		for _, row := range rows {
			if row.Name != "" {
				group.out[row.Name] = row.Count
			}
		}
	}

	var avg float64
	err := model().
		Select("COALESCE(AVG(confidence_score), 0)").
		Scan(&avg).Error
	if err != nil {
		return agg, err
	}
	agg.AvgConfidence = math.Round(avg*100) / 100

	threshold := opts.HighConfidenceThreshold
	if threshold <= 0 {
		threshold = 0.8
	}
	if err := model().Where("confidence_score >= ?", threshold).Count(&agg.HighConfidence).Error; err != nil {
		return agg, err
	}

	timeline, err := r.timeline(ctx, now, opts.TimelineDays)
	if err != nil {
		return agg, err
	}
	agg.Timeline = timeline

	var last domain.Event
	err = model().Order("detected_at DESC, id DESC").First(&last).Error
	switch {
	case err == nil:
		detected := last.DetectedAt
		agg.LastEventAt = &detected
	case errors.Is(err, gorm.ErrRecordNotFound):
		// empty store
	default:
		return agg, err
	}

	return agg, nil
}

// timeline buckets detection timestamps per UTC day in Go rather than SQL so
// the same query works across every supported dialect.
func (r *Repository) timeline(ctx context.Context, now time.Time, days int) ([]domain.TimelineBucket, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -(days - 1))

	var stamps []time.Time
	err := r.db.WithContext(ctx).Model(&domain.Event{}).
		Where("detected_at >= ?", since).
		Pluck("detected_at", &stamps).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, days)
	for _, ts := range stamps {
		counts[ts.UTC().Format("2006-01-02")]++
	}

	buckets := make([]domain.TimelineBucket, 0, days)
	for i := 0; i < days; i++ {
		day := since.AddDate(0, 0, i).Format("2006-01-02")
		buckets = append(buckets, domain.TimelineBucket{Date: day, Count: counts[day]})
	}
	return buckets, nil
}

func mondayOffset(day time.Weekday) int {
	if day == time.Sunday {
		return 6
	}
	return int(day) - 1
}
