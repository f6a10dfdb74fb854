package subscriber

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/freightwatch/doomfeed/internal/event/domain"
	"github.com/freightwatch/doomfeed/internal/observability/metrics"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

var testMetrics = metrics.New()

// -- Fakes --

type fakeConn struct {
	msgs chan string
	once sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{msgs: make(chan string, 16)}
}

func (c *fakeConn) Messages() <-chan string { return c.msgs }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.msgs) })
	return nil
}

type fakeTransport struct {
	mu       sync.Mutex
	failures int
	dials    int
	conns    []*fakeConn
}

func (t *fakeTransport) Dial(ctx context.Context) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dials++
	if t.failures > 0 {
		t.failures--
		return nil, errors.New("broker unreachable")
	}
	conn := newFakeConn()
	t.conns = append(t.conns, conn)
	return conn, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) latestConn() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

type svcMock struct {
	mock.Mock

	ingests atomic.Int32
}

func (m *svcMock) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.Event, error) {
	defer m.ingests.Add(1)
	args := m.Called(ctx, req)
	res := args.Get(0)
	if res == nil {
		return nil, args.Error(1)
	}
	return res.(*domain.Event), args.Error(1)
}

func (m *svcMock) List(context.Context, domain.ListRequest) (domain.ListResponse, error) {
	return domain.ListResponse{}, nil
}

func (m *svcMock) Stats(context.Context) (domain.StatsResponse, error) {
	return domain.StatsResponse{}, nil
}

func startSubscriber(t *testing.T, transport Transport, svc domain.Service) (*Subscriber, context.CancelFunc) {
	t.Helper()

	sub := New(transport, svc, testMetrics, zap.NewNop(), 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		sub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("subscriber did not stop")
		}
	})

	return sub, cancel
}

// -- Tests --

func TestRun_RetriesUntilDialSucceeds(t *testing.T) {
	transport := &fakeTransport{failures: 3}
	sub, _ := startSubscriber(t, transport, new(svcMock))

	assert.Eventually(t, func() bool {
		return sub.State() == StateSubscribed
	}, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, transport.dialCount(), 4)
}

func TestRun_ReconnectsAfterConnectionLoss(t *testing.T) {
	transport := &fakeTransport{}
	sub, _ := startSubscriber(t, transport, new(svcMock))

	assert.Eventually(t, func() bool {
		return sub.State() == StateSubscribed
	}, time.Second, time.Millisecond)

	transport.latestConn().Close()

	assert.Eventually(t, func() bool {
		return transport.dialCount() >= 2 && sub.State() == StateSubscribed
	}, time.Second, time.Millisecond)
}

func TestHandle_MalformedMessageThenValid(t *testing.T) {
	transport := &fakeTransport{}
	svc := new(svcMock)
	svc.On("Ingest", mock.Anything, mock.MatchedBy(func(req domain.IngestRequest) bool {
		return req.Payload["company_name"] == "Acme Freight" &&
			req.FallbackSource == domain.SourceDoomEngine &&
			req.Path == metrics.PathChannel
	})).Return(&domain.Event{CompanyName: "Acme Freight"}, nil)

	sub, _ := startSubscriber(t, transport, svc)
	assert.Eventually(t, func() bool {
		return sub.State() == StateSubscribed
	}, time.Second, time.Millisecond)

	conn := transport.latestConn()
	conn.msgs <- `{"company_name": "Acme Freight"`
	conn.msgs <- `not json at all`
	conn.msgs <- `{"company_name": "Acme Freight", "source": "pacer"}`

	assert.Eventually(t, func() bool {
		return svc.ingests.Load() == 1
	}, time.Second, time.Millisecond)

	// Bad payloads never take the subscription down.
	assert.Equal(t, StateSubscribed, sub.State())
	svc.AssertNumberOfCalls(t, "Ingest", 1)
}

func TestHandle_ValidationFailureKeepsConsuming(t *testing.T) {
	transport := &fakeTransport{}
	svc := new(svcMock)
	svc.On("Ingest", mock.Anything, mock.Anything).
		Return(nil, domain.ErrMissingCompanyName).Once()
	svc.On("Ingest", mock.Anything, mock.Anything).
		Return(&domain.Event{CompanyName: "Acme Freight"}, nil).Once()

	sub, _ := startSubscriber(t, transport, svc)
	assert.Eventually(t, func() bool {
		return sub.State() == StateSubscribed
	}, time.Second, time.Millisecond)

	conn := transport.latestConn()
	conn.msgs <- `{"source": "pacer"}`
	conn.msgs <- `{"company_name": "Acme Freight"}`

	assert.Eventually(t, func() bool {
		return svc.ingests.Load() == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, StateSubscribed, sub.State())
}

func TestPump_ReleasedWhenReaderGone(t *testing.T) {
	src := make(chan *redis.Message)
	out := make(chan string)
	done := make(chan struct{})

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		pump(src, out, done)
	}()

	// An in-flight send with no reader must not outlive the connection.
	src <- &redis.Message{Payload: `{"company_name": "Acme Freight"}`}
	close(done)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("pump still blocked after done was signalled")
	}
}

func TestPump_ClosesOutWhenSourceCloses(t *testing.T) {
	src := make(chan *redis.Message, 1)
	out := make(chan string, 1)
	done := make(chan struct{})

	src <- &redis.Message{Payload: "payload"}
	close(src)
	pump(src, out, done)

	assert.Equal(t, "payload", <-out)
	_, open := <-out
	assert.False(t, open)
}

func TestRun_StopsOnCancel(t *testing.T) {
	transport := &fakeTransport{}
	sub, cancel := startSubscriber(t, transport, new(svcMock))

	assert.Eventually(t, func() bool {
		return sub.State() == StateSubscribed
	}, time.Second, time.Millisecond)

	cancel()
	dials := transport.dialCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, dials, transport.dialCount())
}
