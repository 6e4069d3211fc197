package event_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/collection-sdk-go/client"
	"github.com/weisyn/collection-sdk-go/metrics"
	"github.com/weisyn/collection-sdk-go/services/contract"
	"github.com/weisyn/collection-sdk-go/services/event"
	"github.com/weisyn/collection-sdk-go/test/fakechain"
)

func newService(t *testing.T, chain *fakechain.Chain, m *metrics.Metrics) event.Service {
	t.Helper()
	ref, err := contract.NewDefaultRef("")
	require.NoError(t, err)

	svc, err := event.NewService(chain.Client(), ref, &event.Config{Metrics: m})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func receive(t *testing.T, records <-chan *event.Record) *event.Record {
	t.Helper()
	select {
	case rec, ok := <-records:
		require.True(t, ok, "record stream closed")
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for record")
		return nil
	}
}

func TestParseKind(t *testing.T) {
	kind, err := event.ParseKind("token_minted")
	require.NoError(t, err)
	assert.Equal(t, event.KindTokenMinted, kind)
	assert.Equal(t, contract.EventTokenMinted, kind.EventName())

	_, err = event.ParseKind("collection_burned")
	assert.Error(t, err)
}

func TestSubscribeEvents_CollectionCreated(t *testing.T) {
	chain := fakechain.New()
	m := metrics.New()
	svc := newService(t, chain, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	records, err := svc.SubscribeEvents(ctx, event.KindCollectionCreated)
	require.NoError(t, err)

	first := chain.CreateExternal("Foo", "FOO")
	second := chain.CreateExternal("Bar", "BAR")

	rec := receive(t, records)
	assert.Equal(t, uint64(1), rec.Index)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, first.Hex(), rec.Fields["collectionAddress"])
	assert.Equal(t, "Foo", rec.Fields["name"])
	assert.Equal(t, "FOO", rec.Fields["symbol"])

	rec = receive(t, records)
	assert.Equal(t, uint64(2), rec.Index)
	assert.Equal(t, second.Hex(), rec.Fields["collectionAddress"])

	n, err := svc.Quantity(event.KindCollectionCreated)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	stored, err := svc.GetEvent(event.KindCollectionCreated, 1)
	require.NoError(t, err)
	assert.Equal(t, first.Hex(), stored.Fields["collectionAddress"])
	require.NotNil(t, stored.Log)
	assert.Equal(t, chain.ContractAddress(), stored.Log.Address)

	_, err = svc.GetEvent(event.KindCollectionCreated, 3)
	assert.ErrorIs(t, err, event.ErrEventNotFound)
	_, err = svc.GetEvent(event.KindCollectionCreated, 0)
	assert.ErrorIs(t, err, event.ErrEventNotFound)

	n, err = svc.Quantity(event.KindTokenMinted)
	require.NoError(t, err)
	assert.Zero(t, n, "other kinds are counted separately")

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-records
		return !open
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIndex_StopsOnCancel(t *testing.T) {
	chain := fakechain.New()
	svc := newService(t, chain, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Index(ctx) }()

	require.Eventually(t, func() bool {
		chain.CreateExternal("Foo", "FOO")
		n, err := svc.Quantity(event.KindCollectionCreated)
		return err == nil && n > 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Index did not return after cancel")
	}
}

// flakySubscriber 第二次订阅失败，记录第一次订阅的 ctx
type flakySubscriber struct {
	client.Client

	mu    sync.Mutex
	calls int
	first context.Context
}

func (c *flakySubscriber) Subscribe(ctx context.Context, filter *client.EventFilter) (<-chan *client.Event, error) {
	c.mu.Lock()
	c.calls++
	calls := c.calls
	if calls == 1 {
		c.first = ctx
	}
	c.mu.Unlock()

	if calls > 1 {
		return nil, errors.New("subscription limit reached")
	}
	return c.Client.Subscribe(ctx, filter)
}

func TestIndex_SubscribeFailureReleasesEarlierSubscriptions(t *testing.T) {
	cli := &flakySubscriber{Client: fakechain.New().Client()}
	ref, err := contract.NewDefaultRef("")
	require.NoError(t, err)
	svc, err := event.NewService(cli, ref, nil)
	require.NoError(t, err)
	defer svc.Close()

	err = svc.Index(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscription limit reached")

	cli.mu.Lock()
	first := cli.first
	cli.mu.Unlock()
	require.NotNil(t, first)
	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("first subscription still open")
	}
}

func TestStore(t *testing.T) {
	store, err := event.OpenStore("")
	require.NoError(t, err)
	defer store.Close()

	n, err := store.Quantity(event.KindTokenMinted)
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 1; i <= 3; i++ {
		index, err := store.Append(event.KindTokenMinted, &event.Record{
			ID:   "r",
			Kind: event.KindTokenMinted,
			Log:  &types.Log{Address: fakechain.DefaultAccount, Topics: []common.Hash{{0x01}}},
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(i), index)
	}

	n, err = store.Quantity(event.KindTokenMinted)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	rec, err := store.Get(event.KindTokenMinted, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rec.Index)
	assert.Equal(t, fakechain.DefaultAccount, rec.Log.Address)
	assert.Equal(t, common.Hash{0x01}, rec.Log.Topics[0])
}
