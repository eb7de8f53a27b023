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

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(16)

	var mu sync.Mutex
	var got []CharacterDied
	done := make(chan struct{}, 2)
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{TypeCharacterDied}}, func(ctx context.Context, ev *Envelope) {
		var p CharacterDied
		assert.NoError(t, ev.Decode(&p))
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
		done <- struct{}{}
	})
	require.NoError(t, err)

	pub := NewPublisher(bus)
	pub.Emit(TypePlayerJoined, PriorityLow, PlayerJoined{CharacterID: 1, Name: "hero"})
	pub.Emit(TypeCharacterDied, PriorityHigh, CharacterDied{CharacterID: 100, BodyID: 201, Items: []int{4}})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("событие не доставлено")
	}
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1, "фильтр по типу")
	assert.Equal(t, 201, got[0].BodyID)

	st := bus.Metrics()
	assert.Equal(t, uint64(2), st.Published)
	assert.Equal(t, uint64(1), st.Consumed)

	assert.ErrorIs(t, bus.Publish(context.Background(), &Envelope{}), ErrClosed)
}

func TestEnvelope(t *testing.T) {
	ev, err := NewEnvelope(TypeItemTraded, PriorityNormal, ItemTraded{BuyerID: 1, MerchantID: 2, ItemID: 3, Price: 50})
	require.NoError(t, err)
	assert.Len(t, ev.ID, 36)
	assert.Equal(t, Source, ev.Source)
	assert.JSONEq(t, `{"buyer_id":1,"merchant_id":2,"item_id":3,"price":50}`, string(ev.Payload))
}

func TestNilPublisher(t *testing.T) {
	var p *Publisher
	assert.NotPanics(t, func() { p.Emit(TypePlayerLeft, PriorityLow, PlayerLeft{}) })
	assert.NotPanics(t, func() { NewPublisher(nil).Emit(TypePlayerLeft, PriorityLow, PlayerLeft{}) })
}

func TestMetricsExporter_Collect(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()
	reg := prometheus.NewRegistry()
	me := NewMetricsExporter(bus, reg)

	NewPublisher(bus).Emit(TypePlayerJoined, PriorityLow, PlayerJoined{})
	prev := me.collect(Stats{})
	assert.Equal(t, 1.0, testutil.ToFloat64(me.published))

	me.collect(prev)
	assert.Equal(t, 1.0, testutil.ToFloat64(me.published), "прибавляется только дельта")
}
