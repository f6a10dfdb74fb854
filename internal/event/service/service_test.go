package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/freightwatch/doomfeed/internal/event/domain"
	"github.com/freightwatch/doomfeed/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

var testMetrics = metrics.New()

// -- Mocks --

type repoMock struct {
	mock.Mock
}

func (m *repoMock) Persist(ctx context.Context, event *domain.Event) (*domain.Event, error) {
	args := m.Called(ctx, event)
	res := args.Get(0)
	if res == nil {
		return nil, args.Error(1)
	}
	return res.(*domain.Event), args.Error(1)
}

func (m *repoMock) Query(ctx context.Context, filter domain.QueryFilter) ([]domain.Event, error) {
	args := m.Called(ctx, filter)
	res := args.Get(0)
	if res == nil {
		return nil, args.Error(1)
	}
	return res.([]domain.Event), args.Error(1)
}

func (m *repoMock) Aggregate(ctx context.Context, opts domain.AggregateOptions) (domain.Aggregates, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).(domain.Aggregates), args.Error(1)
}

func (m *repoMock) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *repoMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type broadcasterMock struct {
	mock.Mock

	calls []string
}

func (m *broadcasterMock) BroadcastNewEvent(event domain.Event) {
	m.calls = append(m.calls, "new_event")
	m.Called(event)
}

func (m *broadcasterMock) BroadcastStatsUpdate(total int64) {
	m.calls = append(m.calls, "stats_update")
	m.Called(total)
}

type pingerMock struct {
	err error
}

func (p pingerMock) Ping(context.Context) error { return p.err }

func newTestService(repo domain.Repository, b domain.Broadcaster, pinger ChannelPinger) domain.Service {
	return New(repo, b, nil, pinger, testMetrics, zap.NewNop())
}

// -- Tests --

func TestIngest_PersistsThenBroadcasts(t *testing.T) {
	repo := new(repoMock)
	b := new(broadcasterMock)
	svc := newTestService(repo, b, pingerMock{})

	stored := &domain.Event{CompanyName: "Acme Freight", Source: domain.SourcePacer, ConfidenceScore: 0.9}
	repo.On("Persist", mock.Anything, mock.Anything).Return(stored, nil)
	repo.On("Count", mock.Anything).Return(int64(3), nil)
	b.On("BroadcastNewEvent", *stored).Return()
	b.On("BroadcastStatsUpdate", int64(3)).Return()

	got, err := svc.Ingest(context.Background(), domain.IngestRequest{
		Payload:        map[string]any{"company_name": "Acme Freight", "source": "pacer", "confidence_score": 0.9},
		FallbackSource: domain.SourceManual,
		Path:           metrics.PathEndpoint,
	})

	assert.NoError(t, err)
	assert.Equal(t, stored, got)
	b.AssertCalled(t, "BroadcastNewEvent", *stored)
	b.AssertCalled(t, "BroadcastStatsUpdate", int64(3))
	assert.Equal(t, []string{"new_event", "stats_update"}, b.calls)
}

func TestIngest_MissingCompanyNameNeverReachesStore(t *testing.T) {
	repo := new(repoMock)
	b := new(broadcasterMock)
	svc := newTestService(repo, b, pingerMock{})

	_, err := svc.Ingest(context.Background(), domain.IngestRequest{
		Payload:        map[string]any{"source": "pacer"},
		FallbackSource: domain.SourceManual,
		Path:           metrics.PathEndpoint,
	})

	assert.ErrorIs(t, err, domain.ErrMissingCompanyName)
	repo.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything)
	b.AssertNotCalled(t, "BroadcastNewEvent", mock.Anything)
}

func TestIngest_ValidationFailureSkipsBroadcast(t *testing.T) {
	repo := new(repoMock)
	b := new(broadcasterMock)
	svc := newTestService(repo, b, pingerMock{})

	vErr := &domain.ValidationErrors{Errors: []domain.ValidationError{
		{Field: "confidence_score", Code: "confidence_out_of_range", Message: "confidence_score must be between 0.0 and 1.0"},
	}}
	repo.On("Persist", mock.Anything, mock.Anything).Return(nil, vErr)

	_, err := svc.Ingest(context.Background(), domain.IngestRequest{
		Payload:        map[string]any{"company_name": "Acme Freight", "confidence_score": 7.5},
		FallbackSource: domain.SourceManual,
		Path:           metrics.PathChannel,
	})

	assert.NotNil(t, domain.AsValidationErrors(err))
	b.AssertNotCalled(t, "BroadcastNewEvent", mock.Anything)
	b.AssertNotCalled(t, "BroadcastStatsUpdate", mock.Anything)
}

func TestIngest_CountFailureDoesNotFailIngest(t *testing.T) {
	repo := new(repoMock)
	b := new(broadcasterMock)
	svc := newTestService(repo, b, pingerMock{})

	stored := &domain.Event{CompanyName: "Acme Freight", Source: domain.SourcePacer}
	repo.On("Persist", mock.Anything, mock.Anything).Return(stored, nil)
	repo.On("Count", mock.Anything).Return(int64(0), errors.New("count unavailable"))
	b.On("BroadcastNewEvent", *stored).Return()

	got, err := svc.Ingest(context.Background(), domain.IngestRequest{
		Payload:        map[string]any{"company_name": "Acme Freight"},
		FallbackSource: domain.SourcePacer,
		Path:           metrics.PathChannel,
	})

	assert.NoError(t, err)
	assert.Equal(t, stored, got)
	b.AssertCalled(t, "BroadcastNewEvent", *stored)
	b.AssertNotCalled(t, "BroadcastStatsUpdate", mock.Anything)
}

func TestList_ClampsLimitAgainstFeedConfig(t *testing.T) {
	cases := []struct {
		name      string
		requested int
		expected  int
	}{
		{"default when unset", 0, 50},
		{"floor at one", -10, 1},
		{"pass-through", 120, 120},
		{"ceiling at max", 10000, 500},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := new(repoMock)
			svc := newTestService(repo, new(broadcasterMock), pingerMock{})

			repo.On("Query", mock.Anything, mock.MatchedBy(func(filter domain.QueryFilter) bool {
				return filter.Limit == tc.expected
			})).Return([]domain.Event{}, nil)

			resp, err := svc.List(context.Background(), domain.ListRequest{Limit: tc.requested})
			assert.NoError(t, err)
			assert.Zero(t, resp.Count)
			repo.AssertExpectations(t)
		})
	}
}

func TestList_CountMatchesEvents(t *testing.T) {
	repo := new(repoMock)
	svc := newTestService(repo, new(broadcasterMock), pingerMock{})

	events := []domain.Event{
		{CompanyName: "Acme Freight"},
		{CompanyName: "Beta Logistics"},
	}
	repo.On("Query", mock.Anything, mock.Anything).Return(events, nil)

	resp, err := svc.List(context.Background(), domain.ListRequest{})
	assert.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, events, resp.Events)
}

func TestStats_IncludesLivenessSignals(t *testing.T) {
	repo := new(repoMock)
	svc := newTestService(repo, new(broadcasterMock), pingerMock{err: errors.New("redis down")})

	last := time.Date(2026, 8, 14, 10, 30, 0, 0, time.UTC)
	repo.On("Aggregate", mock.Anything, domain.AggregateOptions{
		HighConfidenceThreshold: 0.8,
		TimelineDays:            30,
	}).Return(domain.Aggregates{
		Total:          5,
		AvgConfidence:  0.7,
		HighConfidence: 2,
		BySource:       map[string]int64{domain.SourcePacer: 5},
		LastEventAt:    &last,
	}, nil)
	repo.On("Ping", mock.Anything).Return(nil)

	resp, err := svc.Stats(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, int64(5), resp.TotalEvents)
	assert.Equal(t, 0.7, resp.AvgConfidence)
	assert.True(t, resp.DatabaseConnected)
	assert.False(t, resp.RedisConnected)
	assert.Equal(t, &last, resp.LastEventAt)
}

func TestStats_AggregateErrorSurfaces(t *testing.T) {
	repo := new(repoMock)
	svc := newTestService(repo, new(broadcasterMock), pingerMock{})

	repo.On("Aggregate", mock.Anything, mock.Anything).Return(domain.Aggregates{}, errors.New("store offline"))

	_, err := svc.Stats(context.Background())
	assert.Error(t, err)
	repo.AssertNotCalled(t, "Ping", mock.Anything)
}
