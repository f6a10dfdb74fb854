package broadcast

import (
	"testing"
	"time"

	"github.com/freightwatch/doomfeed/internal/event/domain"
	"github.com/freightwatch/doomfeed/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
)

var testMetrics = metrics.New()

func TestHub_FanOutToAllSessions(t *testing.T) {
	hub := NewHub(testMetrics)

	first := hub.Subscribe()
	defer first.Close()
	second := hub.Subscribe()
	defer second.Close()

	assert.Equal(t, 2, hub.SessionCount())

	hub.BroadcastNewEvent(domain.Event{CompanyName: "Acme Freight"})

	for _, session := range []*Session{first, second} {
		select {
		case msg := <-session.Messages():
			assert.Equal(t, TypeNewEvent, msg.Type)
			assert.Equal(t, "Acme Freight", msg.Event.CompanyName)
		case <-time.After(time.Second):
			t.Fatal("session did not receive the broadcast")
		}
	}
}

func TestHub_StatsUpdate(t *testing.T) {
	hub := NewHub(testMetrics)
	session := hub.Subscribe()
	defer session.Close()

	hub.BroadcastStatsUpdate(42)

	select {
	case msg := <-session.Messages():
		assert.Equal(t, TypeStatsUpdate, msg.Type)
		assert.Equal(t, int64(42), msg.TotalEvents)
		assert.Nil(t, msg.Event)
	case <-time.After(time.Second):
		t.Fatal("session did not receive the stats update")
	}
}

func TestHub_SlowSessionNeverBlocksPublish(t *testing.T) {
	hub := NewHub(testMetrics)
	slow := hub.Subscribe()
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Nobody drains the session; publishes past the buffer are dropped.
		for i := 0; i < sessionBuffer*3; i++ {
			hub.BroadcastStatsUpdate(int64(i))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow session")
	}
	assert.Len(t, slow.Messages(), sessionBuffer)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	hub := NewHub(testMetrics)
	session := hub.Subscribe()

	session.Close()
	session.Close()
	assert.Zero(t, hub.SessionCount())

	// A broadcast after close reaches nobody and does not panic.
	hub.BroadcastNewEvent(domain.Event{CompanyName: "Acme Freight"})
}

func TestHub_SessionsAreIndependent(t *testing.T) {
	hub := NewHub(testMetrics)

	first := hub.Subscribe()
	second := hub.Subscribe()
	assert.NotEqual(t, first.ID(), second.ID())

	first.Close()
	assert.Equal(t, 1, hub.SessionCount())

	hub.BroadcastStatsUpdate(7)
	select {
	case msg := <-second.Messages():
		assert.Equal(t, int64(7), msg.TotalEvents)
	case <-time.After(time.Second):
		t.Fatal("surviving session did not receive the broadcast")
	}
	second.Close()
}
