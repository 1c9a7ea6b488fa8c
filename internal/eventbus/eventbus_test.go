package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cappedPayload struct {
	EntityID   string `json:"entity_id"`
	Iterations int    `json:"iterations"`
}

func TestPublishSubscribeWithFilter(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	var mu sync.Mutex
	var got []*Envelope
	received := make(chan struct{}, 4)

	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{StepCapped}}, func(ctx context.Context, ev *Envelope) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
		received <- struct{}{}
	})
	require.NoError(t, err)

	ev, err := NewEnvelope("simulation", StepCapped, PriorityHigh, cappedPayload{EntityID: "e1", Iterations: 8})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))

	other, err := NewEnvelope("api", TileChanged, PriorityNormal, map[string]int{"x": 1})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), other))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("событие не доставлено")
	}
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1, "фильтр должен пропускать только StepCapped")

	var payload cappedPayload
	require.NoError(t, got[0].Decode(&payload))
	assert.Equal(t, cappedPayload{EntityID: "e1", Iterations: 8}, payload)
	assert.NotEmpty(t, got[0].ID)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewMemoryBus(16)

	var mu sync.Mutex
	count := 0
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)
	sub.Unsubscribe()

	ev, err := NewEnvelope("test", EntitySpawned, PriorityNormal, nil)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
}

func TestCloseRejectsPublish(t *testing.T) {
	bus := NewMemoryBus(1)
	bus.Close()
	bus.Close()

	ev, err := NewEnvelope("test", EntitySpawned, PriorityNormal, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, bus.Publish(context.Background(), ev), ErrClosed)

	_, err = bus.Subscribe(context.Background(), Filter{}, func(context.Context, *Envelope) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMatchFilter(t *testing.T) {
	ev := &Envelope{EventType: StepCapped, Source: "simulation"}
	assert.True(t, matchFilter(ev, Filter{}))
	assert.True(t, matchFilter(ev, Filter{Sources: []string{"api", "simulation"}}))
	assert.False(t, matchFilter(ev, Filter{Types: []string{TileChanged}}))
	assert.False(t, matchFilter(ev, Filter{Types: []string{StepCapped}, Sources: []string{"api"}}))
}

// stubBus отдает заранее заданные Stats
type stubBus struct {
	EventBus
	stats Stats
}

func (b *stubBus) Metrics() Stats { return b.stats }

func TestMetricsExporterCollect(t *testing.T) {
	reg := prometheus.NewRegistry()
	bus := &stubBus{stats: Stats{Published: 5, Consumed: 3, Dropped: 1, InFlight: 2}}
	me := NewMetricsExporter(bus, reg)

	me.Collect()
	assert.Equal(t, 5.0, testutil.ToFloat64(me.published))
	assert.Equal(t, 2.0, testutil.ToFloat64(me.inflight))

	bus.stats = Stats{Published: 7, Consumed: 3, Dropped: 1}
	me.Collect()
	assert.Equal(t, 7.0, testutil.ToFloat64(me.published))
	assert.Equal(t, 3.0, testutil.ToFloat64(me.consumed))
	assert.Equal(t, 1.0, testutil.ToFloat64(me.dropped))
	assert.Equal(t, 0.0, testutil.ToFloat64(me.inflight))
}
