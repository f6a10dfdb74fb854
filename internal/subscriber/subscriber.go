// Package subscriber consumes bankruptcy events from the message channel and
// feeds them into the ingestion pipeline. Delivery is at-most-once: there is
// no replay, and messages published while disconnected are lost.
package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/freightwatch/doomfeed/internal/event/domain"
	"github.com/freightwatch/doomfeed/internal/observability/metrics"
	"go.uber.org/zap"
)

// State is the subscriber's connection lifecycle phase.
type State string

const (
	StateConnecting State = "connecting"
	StateSubscribed State = "subscribed"
	StateBackoff    State = "backoff"
)

// Drop reasons recorded on the channel-dropped counter.
const (
	DropDecode     = "decode"
	DropValidation = "validation"
	DropStore      = "store"
)

// Conn is one live subscription. Messages closes when the connection dies.
type Conn interface {
	Messages() <-chan string
	Close() error
}

// Transport dials the channel backend. Injectable so tests can drive the
// reconnect loop without a running broker.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

type Subscriber struct {
	transport Transport
	svc       domain.Service
	obs       *metrics.Metrics
	log       *zap.Logger
	backoff   time.Duration

	mu    sync.RWMutex
	state State
}

func New(transport Transport, svc domain.Service, obs *metrics.Metrics, log *zap.Logger, backoff time.Duration) *Subscriber {
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	return &Subscriber{
		transport: transport,
		svc:       svc,
		obs:       obs,
		log:       log.Named("subscriber"),
		backoff:   backoff,
		state:     StateConnecting,
	}
}

// State returns the current lifecycle phase.
func (s *Subscriber) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Subscriber) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run drives the connect/consume/backoff loop until ctx is cancelled. A lost
// connection always comes back through a full re-dial after the fixed backoff.
func (s *Subscriber) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		s.setState(StateConnecting)
		conn, err := s.transport.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("channel dial failed",
				zap.Error(err),
				zap.Duration("retry_in", s.backoff),
			)
			if !s.waitBackoff(ctx) {
				return
			}
			continue
		}

		s.setState(StateSubscribed)
		s.log.Info("channel subscribed")

		s.consume(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		s.log.Warn("channel connection lost", zap.Duration("retry_in", s.backoff))
		if !s.waitBackoff(ctx) {
			return
		}
	}
}

func (s *Subscriber) waitBackoff(ctx context.Context) bool {
	s.setState(StateBackoff)
	s.obs.SubscriberReconnects.Inc()

	timer := time.NewTimer(s.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Subscriber) consume(ctx context.Context, conn Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-conn.Messages():
			if !ok {
				return
			}
			s.handle(ctx, payload)
		}
	}
}

// handle processes one channel message. A bad message never takes the
// subscription down: it is logged, counted, and skipped.
func (s *Subscriber) handle(ctx context.Context, payload string) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		s.obs.ChannelDropped.WithLabelValues(DropDecode).Inc()
		s.log.Warn("channel message dropped: not a json object", zap.Error(err))
		return
	}

	_, err := s.svc.Ingest(ctx, domain.IngestRequest{
		Payload:        raw,
		FallbackSource: domain.SourceDoomEngine,
		Path:           metrics.PathChannel,
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrMissingCompanyName):
		s.obs.ChannelDropped.WithLabelValues(DropValidation).Inc()
		s.log.Warn("channel message dropped: missing company name")
	case domain.AsValidationErrors(err) != nil:
		s.obs.ChannelDropped.WithLabelValues(DropValidation).Inc()
		s.log.Warn("channel message dropped: failed validation", zap.Error(err))
	default:
		s.obs.ChannelDropped.WithLabelValues(DropStore).Inc()
		s.log.Error("channel message not persisted", zap.Error(err))
	}
}
