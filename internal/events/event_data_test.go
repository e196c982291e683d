package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainEventChannelSendRecv(t *testing.T) {
	tx, rx, closer := NewDomainEventChannel(4)
	defer closer()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tx.Send(DomainEvent{Kind: ActivitiesChanged, AccountIDs: []string{"acct-1"}, EmittedAt: now})

	event, ok := rx.Recv()
	require.True(t, ok)
	assert.Equal(t, ActivitiesChanged, event.Kind)
	assert.Equal(t, []string{"acct-1"}, event.AccountIDs)
}

func TestDomainEventTxCloneSharesChannel(t *testing.T) {
	tx, rx, closer := NewDomainEventChannel(4)
	defer closer()

	clone := tx.Clone()
	clone.Send(DomainEvent{Kind: QuotesChanged, AssetIDs: []string{"AAPL"}})

	event, ok := rx.Recv()
	require.True(t, ok)
	assert.Equal(t, QuotesChanged, event.Kind)
}

func TestDomainEventChannelCloseDrainsThenClosed(t *testing.T) {
	tx, rx, closer := NewDomainEventChannel(4)
	tx.Send(DomainEvent{Kind: AssetsCreated, AssetIDs: []string{"a1"}})
	closer()

	event, ok := rx.Recv()
	require.True(t, ok, "pending event must still be drained after close")
	assert.Equal(t, AssetsCreated, event.Kind)

	_, ok = rx.Recv()
	assert.False(t, ok, "receive on a closed, drained channel must report ok=false")
}

func TestServerEventBusLastValueWins(t *testing.T) {
	bus := NewServerEventBus()
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	bus.Publish(ServerEvent{Topic: TopicSyncProgress, Payload: 1})
	bus.Publish(ServerEvent{Topic: TopicSyncProgress, Payload: 2})
	bus.Publish(ServerEvent{Topic: TopicSyncProgress, Payload: 3})

	event, ok := sub.Latest(TopicSyncProgress)
	require.True(t, ok)
	assert.Equal(t, 3, event.Payload, "subscriber that hasn't drained sees only the freshest value")

	_, ok = sub.Latest(TopicSyncProgress)
	assert.False(t, ok, "value is cleared once drained")
}

func TestServerEventBusMultipleSubscribersEachGetLatest(t *testing.T) {
	bus := NewServerEventBus()
	subA := bus.Subscribe()
	subB := bus.Subscribe()
	defer subA.Unsubscribe()
	defer subB.Unsubscribe()

	bus.Publish(ServerEvent{Topic: TopicMarketSyncStart, Payload: "start"})

	_, okA := subA.Latest(TopicMarketSyncStart)
	_, okB := subB.Latest(TopicMarketSyncStart)
	assert.True(t, okA)
	assert.True(t, okB)
}

func TestServerEventBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewServerEventBus()
	sub := bus.Subscribe()
	sub.Unsubscribe()

	bus.Publish(ServerEvent{Topic: TopicBrokerSyncError, Payload: "boom"})

	_, ok := sub.Latest(TopicBrokerSyncError)
	assert.False(t, ok)
}
