package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/collection-sdk-go/services/contract"
	"github.com/weisyn/collection-sdk-go/services/registry"
	"github.com/weisyn/collection-sdk-go/services/session"
	"github.com/weisyn/collection-sdk-go/services/transaction"
	"github.com/weisyn/collection-sdk-go/test/fakechain"
	"github.com/weisyn/collection-sdk-go/types"
)

func newRef(t *testing.T) *contract.Ref {
	t.Helper()
	ref, err := contract.NewDefaultRef("")
	require.NoError(t, err)
	return ref
}

func TestResolveLastCreated_Empty(t *testing.T) {
	chain := fakechain.New()
	svc := registry.NewService(chain, nil)

	_, err := svc.ResolveLastCreated(context.Background(), newRef(t))
	assert.ErrorIs(t, err, types.ErrRegistryEmpty)
	assert.Equal(t, 1, chain.Calls("eth_call"), "only the length is read")
}

func TestResolveLastCreated_ReturnsLastEntry(t *testing.T) {
	chain := fakechain.New()
	chain.CreateExternal("A", "A")
	last := chain.CreateExternal("B", "B")

	addr, err := registry.NewService(chain, nil).ResolveLastCreated(context.Background(), newRef(t))
	require.NoError(t, err)
	assert.Equal(t, last, addr)
}

func TestResolveLastCreated_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		chain *fakechain.Chain
	}{
		{name: "undecodable", chain: fakechain.New().CorruptRegistry()},
		{name: "zero address", chain: fakechain.New().ZeroRegistry()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.chain.CreateExternal("A", "A")
			_, err := registry.NewService(tt.chain, nil).ResolveLastCreated(context.Background(), newRef(t))
			assert.ErrorIs(t, err, types.ErrMalformedAddress)
		})
	}
}

func TestAt(t *testing.T) {
	chain := fakechain.New()
	first := chain.CreateExternal("A", "A")
	chain.CreateExternal("B", "B")
	svc := registry.NewService(chain, nil)
	ref := newRef(t)
	ctx := context.Background()

	addr, err := svc.At(ctx, ref, 0)
	require.NoError(t, err)
	assert.Equal(t, first, addr)

	for _, index := range []int64{-1, 2, 100} {
		addr, err := svc.At(ctx, ref, index)
		assert.ErrorIs(t, err, types.ErrIndexOutOfRange, "index %d", index)
		assert.Equal(t, common.Address{}, addr)
	}
}

func TestList(t *testing.T) {
	chain := fakechain.New()
	var want []common.Address
	for i := 0; i < 7; i++ {
		want = append(want, chain.CreateExternal("C", "C"))
	}

	got, err := registry.NewService(chain, &registry.Config{Concurrency: 3}).List(context.Background(), newRef(t))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	empty, err := registry.NewService(fakechain.New(), nil).List(context.Background(), newRef(t))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLength_CallFailure(t *testing.T) {
	ref, err := contract.NewDefaultRef("0x0000000000000000000000000000000000000001")
	require.NoError(t, err)

	// 非工厂合约地址返回空数据，无法解码长度
	_, err = registry.NewService(fakechain.New(), nil).Length(context.Background(), ref)
	assert.ErrorIs(t, err, types.ErrTransactionFailed)
}

func TestCreatedInReceipt(t *testing.T) {
	chain := fakechain.New().Authorize()
	sess := session.NewService(chain, nil)
	_, ok := sess.QueryExistingAuthorization(context.Background())
	require.True(t, ok)

	cfg := transaction.DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	exec := transaction.NewService(sess, cfg)
	defer exec.Close()
	ref := newRef(t)

	h, err := exec.Submit(context.Background(), ref, contract.MethodCreateCollection, "Foo", "FOO")
	require.NoError(t, err)
	receipt, err := h.Await(context.Background())
	require.NoError(t, err)

	fromEvent, ok := registry.CreatedInReceipt(ref, receipt)
	require.True(t, ok)
	resolved, err := registry.NewService(chain, nil).ResolveLastCreated(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, resolved, fromEvent)

	_, ok = registry.CreatedInReceipt(ref, nil)
	assert.False(t, ok)
}
