// Package service implements the ingestion and read-side pipeline on top of
// the repository, the normalizer, and the live broadcaster.
package service

import (
	"context"
	"errors"

	"github.com/freightwatch/doomfeed/internal/config"
	"github.com/freightwatch/doomfeed/internal/event/domain"
	"github.com/freightwatch/doomfeed/internal/event/normalize"
	"github.com/freightwatch/doomfeed/internal/observability/metrics"
	"go.uber.org/zap"
)

// ChannelPinger reports whether the message channel backend is reachable.
type ChannelPinger interface {
	Ping(ctx context.Context) error
}

type eventService struct {
	repo        domain.Repository
	broadcaster domain.Broadcaster
	feed        *config.FeedConfigHolder
	channel     ChannelPinger
	obs         *metrics.Metrics
	log         *zap.Logger
}

func New(
	repo domain.Repository,
	broadcaster domain.Broadcaster,
	feed *config.FeedConfigHolder,
	channel ChannelPinger,
	obs *metrics.Metrics,
	log *zap.Logger,
) domain.Service {
	return &eventService{
		repo:        repo,
		broadcaster: broadcaster,
		feed:        feed,
		channel:     channel,
		obs:         obs,
		log:         log.Named("event.service"),
	}
}

// Ingest normalizes and persists one raw payload, then fans the stored record
// out to live sessions. Broadcast happens strictly after a successful persist.
func (s *eventService) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.Event, error) {
	event, err := normalize.Normalize(req.Payload, req.FallbackSource)
	if err != nil {
		if errors.Is(err, domain.ErrMissingCompanyName) {
			s.obs.EventsRejected.WithLabelValues(req.Path).Inc()
		}
		return nil, err
	}

	stored, err := s.repo.Persist(ctx, event)
	if err != nil {
		if domain.AsValidationErrors(err) != nil {
			s.obs.EventsRejected.WithLabelValues(req.Path).Inc()
		}
		return nil, err
	}

	s.obs.EventsIngested.WithLabelValues(stored.Source, req.Path).Inc()
	s.log.Info("event ingested",
		zap.Int64("event_id", stored.ID.Int64()),
		zap.String("company_name", stored.CompanyName),
		zap.String("source", stored.Source),
		zap.String("path", req.Path),
	)

	s.broadcaster.BroadcastNewEvent(*stored)
	if total, countErr := s.repo.Count(ctx); countErr == nil {
		s.broadcaster.BroadcastStatsUpdate(total)
	} else {
		s.log.Warn("post-ingest count failed", zap.Error(countErr))
	}

	return stored, nil
}

// List queries stored events with the caller's filters. The page size is
// clamped against the live feed config.
func (s *eventService) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	feed := s.feed.Current()

	limit := req.Limit
	switch {
	case limit == 0:
		limit = feed.DefaultPageSize
	case limit < 1:
		limit = 1
	case limit > feed.MaxPageSize:
		limit = feed.MaxPageSize
	}

	events, err := s.repo.Query(ctx, domain.QueryFilter{
		Text:          req.Text,
		Source:        req.Source,
		Chapter:       req.Chapter,
		Status:        req.Status,
		MinConfidence: req.MinConfidence,
		Limit:         limit,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	return domain.ListResponse{Count: len(events), Events: events}, nil
}

// Stats assembles the aggregate bundle plus backend liveness signals.
func (s *eventService) Stats(ctx context.Context) (domain.StatsResponse, error) {
	feed := s.feed.Current()

	aggr, err := s.repo.Aggregate(ctx, domain.AggregateOptions{
		HighConfidenceThreshold: feed.HighConfidenceThreshold,
		TimelineDays:            feed.TimelineDays,
	})
	if err != nil {
		return domain.StatsResponse{}, err
	}

	resp := domain.StatsResponse{
		TotalEvents:     aggr.Total,
		EventsToday:     aggr.Today,
		EventsThisWeek:  aggr.ThisWeek,
		EventsThisMonth: aggr.ThisMonth,
		BySource:        aggr.BySource,
		ByChapter:       aggr.ByChapter,
		ByStatus:        aggr.ByStatus,
		AvgConfidence:   aggr.AvgConfidence,
		HighConfidence:  aggr.HighConfidence,
		Timeline:        aggr.Timeline,
		LastEventAt:     aggr.LastEventAt,
	}

	resp.DatabaseConnected = s.repo.Ping(ctx) == nil
	if s.channel != nil {
		resp.RedisConnected = s.channel.Ping(ctx) == nil
	}

	return resp, nil
}
