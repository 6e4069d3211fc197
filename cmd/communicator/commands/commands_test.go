package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/collection-sdk-go/client"
	"github.com/weisyn/collection-sdk-go/provider"
	"github.com/weisyn/collection-sdk-go/test/fakechain"
)

// rpcNode 以 JSON-RPC over HTTP 暴露内存链（节点托管账户）
func rpcNode(t *testing.T, chain *fakechain.Chain) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		result, err := chain.Request(r.Context(), provider.RequestArguments{Method: req.Method, Params: req.Params})
		if err != nil {
			code := -32000
			var cerr *client.Error
			if errors.As(err, &cerr) && cerr.RPCCode != 0 {
				code = cerr.RPCCode
			}
			resp["error"] = map[string]interface{}{"code": code, "message": err.Error()}
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, a := newRootCommand()
	defer a.close()

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestCreateCollectionAndMint(t *testing.T) {
	chain := fakechain.New().Authorize()
	node := rpcNode(t, chain)
	base := []string{"--endpoint", node.URL, "--poll-interval", "5ms"}

	out, err := run(t, append(base, "create-collection", "Foo", "FOO")...)
	require.NoError(t, err)
	require.Len(t, chain.Registry(), 1)
	collection := chain.Registry()[0]
	assert.Contains(t, out, "Success")
	assert.Contains(t, out, "Collection: "+collection.Hex())

	out, err = run(t, append(base, "mint", collection.Hex(), chain.Account().Hex(), "ipfs://foo/1")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Token: 1")
	assert.Equal(t, uint64(1), chain.Minted(collection))

	out, err = run(t, append(base, "collections")...)
	require.NoError(t, err)
	assert.Contains(t, out, "0\t"+collection.Hex())
}

func TestMint_InvalidRecipient(t *testing.T) {
	chain := fakechain.New().Authorize()
	node := rpcNode(t, chain)

	out, err := run(t, "--endpoint", node.URL, "mint", "0xD24894f5b970Fa36BBbaae9402d92DABF1f2aC50", "not-an-address", "ipfs://x")
	assert.Error(t, err)
	assert.Contains(t, out, "Error. Check logs.")
	assert.Equal(t, 0, chain.TransactionCount())
}

func TestAccounts(t *testing.T) {
	chain := fakechain.New()
	node := rpcNode(t, chain)

	out, err := run(t, "--endpoint", node.URL, "accounts")
	require.NoError(t, err)
	assert.Contains(t, out, "No authorized account found.")

	out, err = run(t, "--endpoint", node.URL, "connect")
	require.NoError(t, err)
	assert.Contains(t, out, chain.Account().Hex())

	out, err = run(t, "--endpoint", node.URL, "accounts")
	require.NoError(t, err)
	assert.Contains(t, out, chain.Account().Hex())
}

func TestSubscribe_RequiresWebsocket(t *testing.T) {
	node := rpcNode(t, fakechain.New())

	_, err := run(t, "--endpoint", node.URL, "subscribe", "token_minted")
	assert.Error(t, err)

	_, err = run(t, "--endpoint", node.URL, "subscribe", "nonsense")
	assert.Error(t, err)
}

func TestResolveProtocol(t *testing.T) {
	assert.Equal(t, client.ProtocolWebSocket, resolveProtocol("", "ws://localhost:8545"))
	assert.Equal(t, client.ProtocolWebSocket, resolveProtocol("", "wss://node.example"))
	assert.Equal(t, client.ProtocolHTTP, resolveProtocol("", "http://localhost:8545"))
	assert.Equal(t, client.ProtocolWebSocket, resolveProtocol("websocket", "http://localhost:8545"))
}
