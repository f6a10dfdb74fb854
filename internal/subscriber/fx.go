package subscriber

import (
	"context"

	"github.com/freightwatch/doomfeed/internal/config"
	"github.com/freightwatch/doomfeed/internal/event/domain"
	"github.com/freightwatch/doomfeed/internal/event/service"
	"github.com/freightwatch/doomfeed/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("subscriber",
	fx.Provide(NewRedisClient),
	fx.Provide(NewRedisTransport),
	fx.Provide(func(t *RedisTransport) Transport { return t }),
	fx.Provide(func(t *RedisTransport) service.ChannelPinger { return t }),
	fx.Provide(provideSubscriber),
	fx.Invoke(register),
)

func provideSubscriber(
	transport Transport,
	svc domain.Service,
	obs *metrics.Metrics,
	log *zap.Logger,
	cfg config.Config,
) *Subscriber {
	return New(transport, svc, obs, log, cfg.SubscriberBackoff)
}

func register(lc fx.Lifecycle, sub *Subscriber) {
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				sub.Run(runCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
