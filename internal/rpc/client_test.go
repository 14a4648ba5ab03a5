package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thanhnp/wallet-ledger/internal/models"
)

type rpcHandler func(method string, params []json.RawMessage) (interface{}, *Error)

func newTestServer(t *testing.T, h rpcHandler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     string            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.ID)

		result, rpcErr := h(req.Method, req.Params)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
			"error":   rpcErr,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testOptions() Options {
	return Options{MaxRetries: 2, Timeout: time.Second, Backoff: time.Millisecond}
}

func TestGetTransactionsByAddress(t *testing.T) {
	srv := newTestServer(t, func(method string, params []json.RawMessage) (interface{}, *Error) {
		assert.Equal(t, "getTransactionsByAddress", method)
		require.Len(t, params, 1)

		var q models.TxQuery
		require.NoError(t, json.Unmarshal(params[0], &q))
		assert.Equal(t, "0xaa", q.Address)
		assert.Equal(t, int64(12), q.FromBlock)

		return []models.ChainTx{{Hash: "0x1", From: "0xBB", To: "0xAA", Value: "10", BlockNumber: 15}}, nil
	})

	c := NewClient(srv.URL, testOptions())
	txs, err := c.GetTransactionsByAddress(context.Background(), models.TxQuery{Address: "0xaa", FromBlock: 12})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(15), txs[0].BlockNumber)
}

func TestBlockNumberAndBalance(t *testing.T) {
	srv := newTestServer(t, func(method string, params []json.RawMessage) (interface{}, *Error) {
		switch method {
		case "blockNumber":
			return "0x10", nil
		case "getBalance":
			if len(params) == 2 {
				return 77, nil
			}
			return "1000", nil
		}
		return nil, &Error{Code: -32601, Message: "method not found"}
	})

	c := NewClient(srv.URL, testOptions())
	tip, err := c.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(16), tip)

	bal, err := c.GetBalance(context.Background(), "0xaa", "")
	require.NoError(t, err)
	assert.Equal(t, "1000", bal)

	bal, err = c.GetBalance(context.Background(), "0xaa", "0xcontract")
	require.NoError(t, err)
	assert.Equal(t, "77", bal)
}

func TestRetryable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":"0x2a"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testOptions())
	tip, err := c.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), tip)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetriesExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testOptions())
	_, err := c.BlockNumber(context.Background())
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRPCErrorNotRetried(t *testing.T) {
	var calls int32
	srv := newTestServer(t, func(string, []json.RawMessage) (interface{}, *Error) {
		atomic.AddInt32(&calls, 1)
		return nil, &Error{Code: -32000, Message: "bad address"}
	})

	c := NewClient(srv.URL, testOptions())
	_, err := c.GetBalance(context.Background(), "nope", "")

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCheckVersion(t *testing.T) {
	var version atomic.Value
	version.Store("2.3.0")
	srv := newTestServer(t, func(string, []json.RawMessage) (interface{}, *Error) {
		return version.Load(), nil
	})
	c := NewClient(srv.URL, testOptions())

	ver, err := c.CheckVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ver.Major)

	version.Store("9.0.0")
	_, err = c.CheckVersion(context.Background())
	require.ErrorIs(t, err, ErrIncompatibleAPI)
}
