package collection_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/collection-sdk-go/logging"
	"github.com/weisyn/collection-sdk-go/metrics"
	"github.com/weisyn/collection-sdk-go/provider"
	"github.com/weisyn/collection-sdk-go/services/collection"
	"github.com/weisyn/collection-sdk-go/services/contract"
	"github.com/weisyn/collection-sdk-go/services/registry"
	"github.com/weisyn/collection-sdk-go/services/session"
	"github.com/weisyn/collection-sdk-go/services/transaction"
	"github.com/weisyn/collection-sdk-go/test/fakechain"
	"github.com/weisyn/collection-sdk-go/types"
)

// syncBuffer 并发安全的日志缓冲
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	chain   *fakechain.Chain
	svc     collection.Service
	metrics *metrics.Metrics
	logs    *syncBuffer

	mu      sync.Mutex
	notices []string
}

func (f *fixture) Notices() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notices...)
}

func newFixture(t *testing.T, p provider.Provider, chain *fakechain.Chain) *fixture {
	t.Helper()
	f := &fixture{chain: chain, metrics: metrics.New(), logs: &syncBuffer{}}
	logger := logging.New(f.logs, "debug")

	sess := session.NewService(p, logger)

	txCfg := transaction.DefaultConfig()
	txCfg.PollInterval = 5 * time.Millisecond
	txCfg.Metrics = f.metrics
	exec := transaction.NewService(sess, txCfg)
	t.Cleanup(exec.Close)

	cfg := collection.DefaultConfig()
	cfg.Logger = logger
	cfg.Metrics = f.metrics
	cfg.Notifier = collection.NotifierFunc(func(message string) {
		f.mu.Lock()
		f.notices = append(f.notices, message)
		f.mu.Unlock()
	})

	svc, err := collection.NewService(sess, exec, registry.NewService(p, nil), cfg)
	require.NoError(t, err)
	f.svc = svc
	return f
}

// connected 已连接账户的编排服务
func connected(t *testing.T, chain *fakechain.Chain) *fixture {
	t.Helper()
	f := newFixture(t, chain, chain)
	_, err := f.svc.Connect(context.Background())
	require.NoError(t, err)
	return f
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func fill(t *testing.T, svc collection.Service, values map[collection.Field]string) {
	t.Helper()
	for field, value := range values {
		require.NoError(t, svc.SetField(field, value))
	}
}

func TestInit(t *testing.T) {
	t.Run("previously authorized", func(t *testing.T) {
		chain := fakechain.New().Authorize()
		f := newFixture(t, chain, chain)

		view := f.svc.Init(context.Background())
		require.True(t, view.Connected())
		assert.Equal(t, chain.Account(), *view.Account)
		assert.Equal(t, 0, chain.Calls("eth_requestAccounts"), "init never prompts")
	})

	t.Run("no provider", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		view := f.svc.Init(context.Background())
		assert.False(t, view.ProviderAvailable)
		assert.False(t, view.Connected())
	})
}

func TestConnect(t *testing.T) {
	t.Run("no provider", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		_, err := f.svc.Connect(context.Background())
		assert.ErrorIs(t, err, types.ErrProviderUnavailable)
		assert.False(t, f.svc.View().Connected())
		assert.Empty(t, f.Notices(), "connect failures are only logged")
		assert.Contains(t, f.logs.String(), "connect wallet failed")
	})

	t.Run("user rejects", func(t *testing.T) {
		chain := fakechain.New().RejectConnect(true)
		f := newFixture(t, chain, chain)

		_, err := f.svc.Connect(context.Background())
		assert.ErrorIs(t, err, types.ErrUserRejected)
		assert.False(t, f.svc.View().Connected())
	})

	t.Run("approved", func(t *testing.T) {
		chain := fakechain.New()
		f := newFixture(t, chain, chain)

		account, err := f.svc.Connect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, chain.Account(), account)
		assert.True(t, f.svc.View().Connected())
	})
}

func TestSetField(t *testing.T) {
	f := newFixture(t, nil, nil)

	fill(t, f.svc, map[collection.Field]string{
		collection.FieldName:              "Foo",
		collection.FieldSymbol:            "FOO",
		collection.FieldCollectionAddress: "0xabc",
		collection.FieldRecipient:         "0xdef",
		collection.FieldTokenURI:          "ipfs://x",
	})
	assert.Equal(t, collection.Form{
		Name:              "Foo",
		Symbol:            "FOO",
		CollectionAddress: "0xabc",
		Recipient:         "0xdef",
		TokenURI:          "ipfs://x",
	}, f.svc.View().Form)

	err := f.svc.SetField(collection.Field("owner"), "x")
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestCreateCollection_Success(t *testing.T) {
	chain := fakechain.New()
	chain.CreateExternal("A", "A")
	chain.CreateExternal("B", "B")
	f := connected(t, chain)
	fill(t, f.svc, map[collection.Field]string{
		collection.FieldName:   "Foo",
		collection.FieldSymbol: "FOO",
	})
	before := len(chain.Registry())

	res, err := f.svc.CreateCollection(testCtx(t))
	require.NoError(t, err)

	registryAfter := chain.Registry()
	require.Len(t, registryAfter, before+1)
	assert.Equal(t, registryAfter[before], res.Collection)
	assert.NotEmpty(t, res.RunID)

	view := f.svc.View()
	assert.Equal(t, res.Collection.Hex(), view.Form.CollectionAddress)
	assert.Empty(t, view.Form.Name)
	assert.Empty(t, view.Form.Symbol)
	assert.Equal(t, collection.PhaseSucceeded, view.CreatePhase)
	assert.Equal(t, types.SuccessMessage, view.LastNotice)
	assert.Equal(t, []string{types.SuccessMessage}, f.Notices())
	assert.Contains(t, f.logs.String(), res.RunID)
}

func TestCreateCollection_SubmitsNameAsTyped(t *testing.T) {
	chain := fakechain.New()
	f := connected(t, chain)
	fill(t, f.svc, map[collection.Field]string{
		collection.FieldName:   " Foo ",
		collection.FieldSymbol: "FOO ",
	})

	res, err := f.svc.CreateCollection(testCtx(t))
	require.NoError(t, err)

	ref, err := contract.NewDefaultRef("")
	require.NoError(t, err)
	logs := chain.Logs()
	require.Len(t, logs, 1)
	fields, ok, err := ref.UnpackLog(contract.EventCollectionCreated, logs[0])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res.Collection, fields["collectionAddress"])
	assert.Equal(t, " Foo ", fields["name"])
	assert.Equal(t, "FOO ", fields["symbol"])
}

func TestCreateCollection_FailuresLeaveFormUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		chain   func() *fakechain.Chain
		connect bool
		form    map[collection.Field]string
		wantErr error
		wantTx  int
	}{
		{
			name:    "missing symbol",
			chain:   fakechain.New,
			connect: true,
			form:    map[collection.Field]string{collection.FieldName: "Foo", collection.FieldSymbol: "  "},
			wantErr: types.ErrInvalidInput,
		},
		{
			name:    "not connected",
			chain:   fakechain.New,
			form:    map[collection.Field]string{collection.FieldName: "Foo", collection.FieldSymbol: "FOO"},
			wantErr: types.ErrNoSigner,
		},
		{
			name:    "user rejects transaction",
			chain:   func() *fakechain.Chain { return fakechain.New().RejectTransactions(true) },
			connect: true,
			form:    map[collection.Field]string{collection.FieldName: "Foo", collection.FieldSymbol: "FOO"},
			wantErr: types.ErrUserRejected,
		},
		{
			name:    "reverted",
			chain:   func() *fakechain.Chain { return fakechain.New().Revert(contract.MethodCreateCollection) },
			connect: true,
			form:    map[collection.Field]string{collection.FieldName: "Foo", collection.FieldSymbol: "FOO"},
			wantErr: types.ErrTransactionReverted,
			wantTx:  1,
		},
		{
			name:    "malformed registry entry",
			chain:   func() *fakechain.Chain { return fakechain.New().ZeroRegistry() },
			connect: true,
			form:    map[collection.Field]string{collection.FieldName: "Foo", collection.FieldSymbol: "FOO"},
			wantErr: types.ErrMalformedAddress,
			wantTx:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := tt.chain()
			var f *fixture
			if tt.connect {
				f = connected(t, chain)
			} else {
				f = newFixture(t, chain, chain)
			}
			fill(t, f.svc, tt.form)
			formBefore := f.svc.View().Form

			res, err := f.svc.CreateCollection(testCtx(t))
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantTx, chain.TransactionCount())

			view := f.svc.View()
			assert.Equal(t, formBefore, view.Form)
			assert.Equal(t, collection.PhaseFailed, view.CreatePhase)
			assert.Equal(t, []string{types.GenericFailureMessage}, f.Notices())
			assert.Contains(t, f.logs.String(), "workflow failed")
		})
	}
}

func TestCreateCollection_RegistryRace(t *testing.T) {
	chain := fakechain.New()
	var external common.Address
	chain.OnConfirm(func(method string) {
		if method == contract.MethodCreateCollection {
			external = chain.CreateExternal("Other", "OTH")
		}
	})
	f := connected(t, chain)
	fill(t, f.svc, map[collection.Field]string{
		collection.FieldName:   "Foo",
		collection.FieldSymbol: "FOO",
	})

	res, err := f.svc.CreateCollection(testCtx(t))
	require.NoError(t, err)

	// 最后一项属于另一笔交易：该前提被接受，仅记录警告
	assert.Equal(t, external, res.Collection)
	require.Len(t, chain.Registry(), 2)
	assert.NotEqual(t, chain.Registry()[0], res.Collection, "own collection sits one slot earlier")
	assert.Contains(t, f.logs.String(), "registry returned a collection created by another transaction")
}

func TestCreateCollection_Busy(t *testing.T) {
	chain := fakechain.New().ConfirmAfterPolls(20)
	f := connected(t, chain)
	fill(t, f.svc, map[collection.Field]string{
		collection.FieldName:   "Foo",
		collection.FieldSymbol: "FOO",
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.CreateCollection(testCtx(t))
		done <- err
	}()

	require.Eventually(t, func() bool {
		return f.svc.View().CreatePhase == collection.PhaseConfirming
	}, 2*time.Second, time.Millisecond)

	_, err := f.svc.CreateCollection(testCtx(t))
	assert.ErrorIs(t, err, types.ErrWorkflowBusy)
	assert.Equal(t, 1, chain.TransactionCount(), "busy workflow generates no transaction")

	require.NoError(t, <-done)
	assert.Equal(t, collection.PhaseSucceeded, f.svc.View().CreatePhase)
}

func TestCreateAndMint_Overlap(t *testing.T) {
	chain := fakechain.New().ConfirmAfterPolls(40)
	target := chain.CreateExternal("Target", "TGT")
	f := connected(t, chain)
	fill(t, f.svc, map[collection.Field]string{
		collection.FieldName:   "Foo",
		collection.FieldSymbol: "FOO",
	})

	created := make(chan *collection.CreateResult, 1)
	go func() {
		res, err := f.svc.CreateCollection(testCtx(t))
		assert.NoError(t, err)
		created <- res
	}()
	require.Eventually(t, func() bool {
		return f.svc.View().CreatePhase == collection.PhaseConfirming
	}, 2*time.Second, time.Millisecond)

	fill(t, f.svc, map[collection.Field]string{
		collection.FieldCollectionAddress: target.Hex(),
		collection.FieldRecipient:         fakechain.DefaultAccount.Hex(),
		collection.FieldTokenURI:          "ipfs://token/1",
	})
	minted := make(chan *collection.MintResult, 1)
	go func() {
		res, err := f.svc.MintToken(testCtx(t))
		assert.NoError(t, err)
		minted <- res
	}()

	// 两个工作流同时处于确认阶段
	require.Eventually(t, func() bool {
		view := f.svc.View()
		return view.CreatePhase == collection.PhaseConfirming && view.MintPhase == collection.PhaseConfirming
	}, 2*time.Second, time.Millisecond)

	createRes := <-created
	mintRes := <-minted
	require.NotNil(t, createRes)
	require.NotNil(t, mintRes)

	assert.Equal(t, target, mintRes.Collection)
	assert.Equal(t, uint64(1), chain.Minted(target))
	registryNow := chain.Registry()
	require.Len(t, registryNow, 2)
	assert.Equal(t, registryNow[1], createRes.Collection)

	view := f.svc.View()
	assert.Equal(t, collection.PhaseSucceeded, view.CreatePhase)
	assert.Equal(t, collection.PhaseSucceeded, view.MintPhase)
	assert.Equal(t, collection.Form{CollectionAddress: createRes.Collection.Hex()}, view.Form)
	assert.Equal(t, []string{types.SuccessMessage, types.SuccessMessage}, f.Notices())
}

func TestMintToken_InvalidAddress(t *testing.T) {
	tests := []struct {
		name       string
		collection string
		recipient  string
	}{
		{name: "recipient not an address", collection: "0xD24894f5b970Fa36BBbaae9402d92DABF1f2aC50", recipient: "not-an-address"},
		{name: "collection not an address", collection: "collection", recipient: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"},
		{name: "bad checksum", collection: "0xd24894f5b970Fa36BBbaae9402d92DABF1f2aC50", recipient: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"},
		{name: "empty recipient", collection: "0xD24894f5b970Fa36BBbaae9402d92DABF1f2aC50", recipient: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := fakechain.New()
			f := connected(t, chain)
			fill(t, f.svc, map[collection.Field]string{
				collection.FieldCollectionAddress: tt.collection,
				collection.FieldRecipient:         tt.recipient,
				collection.FieldTokenURI:          "ipfs://token",
			})

			_, err := f.svc.MintToken(testCtx(t))
			assert.ErrorIs(t, err, types.ErrInvalidAddress)
			assert.Equal(t, 0, chain.Calls("eth_sendTransaction"))
			assert.Equal(t, 0, chain.TransactionCount())
			assert.Equal(t, tt.recipient, f.svc.View().Form.Recipient)
			assert.Equal(t, collection.PhaseFailed, f.svc.View().MintPhase)
		})
	}
}

func TestMintToken_Success(t *testing.T) {
	chain := fakechain.New()
	target := chain.CreateExternal("Foo", "FOO")
	f := connected(t, chain)
	fill(t, f.svc, map[collection.Field]string{
		collection.FieldCollectionAddress: strings.ToLower(target.Hex()),
		collection.FieldRecipient:         fakechain.DefaultAccount.Hex(),
		collection.FieldTokenURI:          "ipfs://token/1",
	})

	res, err := f.svc.MintToken(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, target, res.Collection)
	assert.Equal(t, fakechain.DefaultAccount, res.Recipient)
	require.NotNil(t, res.TokenID)
	assert.Equal(t, int64(1), res.TokenID.Int64())
	assert.Equal(t, uint64(1), chain.Minted(target))

	view := f.svc.View()
	assert.Empty(t, view.Form.Recipient)
	assert.Empty(t, view.Form.TokenURI)
	assert.Equal(t, strings.ToLower(target.Hex()), view.Form.CollectionAddress, "collection address is kept for the next mint")
	assert.Equal(t, collection.PhaseSucceeded, view.MintPhase)
	assert.Equal(t, []string{types.SuccessMessage}, f.Notices())
}

func TestMintToken_Reverted(t *testing.T) {
	chain := fakechain.New().Revert(contract.MethodMint)
	target := chain.CreateExternal("Foo", "FOO")
	f := connected(t, chain)
	fill(t, f.svc, map[collection.Field]string{
		collection.FieldCollectionAddress: target.Hex(),
		collection.FieldRecipient:         fakechain.DefaultAccount.Hex(),
		collection.FieldTokenURI:          "ipfs://token/1",
	})

	_, err := f.svc.MintToken(testCtx(t))
	assert.ErrorIs(t, err, types.ErrTransactionReverted)
	assert.Equal(t, fakechain.DefaultAccount.Hex(), f.svc.View().Form.Recipient)
	assert.Equal(t, []string{types.GenericFailureMessage}, f.Notices())
}

func TestWorkflowMetrics(t *testing.T) {
	chain := fakechain.New()
	f := connected(t, chain)

	fill(t, f.svc, map[collection.Field]string{
		collection.FieldName:   "Foo",
		collection.FieldSymbol: "FOO",
	})
	_, err := f.svc.CreateCollection(testCtx(t))
	require.NoError(t, err)

	require.NoError(t, f.svc.SetField(collection.FieldRecipient, "nope"))
	_, err = f.svc.MintToken(testCtx(t))
	require.Error(t, err)

	expected := `
# HELP collection_workflows_total Total number of create/mint workflow runs
# TYPE collection_workflows_total counter
collection_workflows_total{result="invalid_address",workflow="mint_token"} 1
collection_workflows_total{result="success",workflow="create_collection"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(expected), "collection_workflows_total"))

	count, err := testutil.GatherAndCount(f.metrics.Registry(), "collection_transactions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
