package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/thanhnp/wallet-ledger/internal/models"
	"github.com/thanhnp/wallet-ledger/pkg/semver"
)

var (
	// MaxNumOfFailingRequests trips the breaker together with FailingRatio
	MaxNumOfFailingRequests = 10
	// FailingRatio of failed requests that trips the breaker
	FailingRatio = 0.6
)

// Indexer API major versions this client understands
var compatibleIndexerMajors = []int{1, 2}

// Options tune the indexer client
type Options struct {
	RequestsPerSecond float64
	MaxRetries        int
	Timeout           time.Duration
	Backoff           time.Duration
}

// Client is a JSON-RPC client of the chain indexer
type Client struct {
	url        string
	http       *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	backoff    time.Duration
}

// NewClient creates an indexer client for url
func NewClient(url string, opts Options) *Client {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}

	return &Client{
		url:        url,
		http:       &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		breaker:    newCircuitBreaker(url),
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
	}
}

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return int(counts.Requests) > MaxNumOfFailingRequests && ratio >= FailingRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("indexer %s circuit breaker %s -> %s", name, from, to)
		},
	})
}

// Retryable runs fn through the rate limiter and the circuit breaker,
// retrying transport failures up to the configured number of times. Indexer
// errors are returned as is.
func (c *Client) Retryable(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		// indexer errors mean the indexer is up, they do not count as
		// breaker failures
		res, err := c.breaker.Execute(func() (interface{}, error) {
			err := fn(ctx)
			var rpcErr *Error
			if errors.As(err, &rpcErr) {
				return rpcErr, nil
			}
			return nil, err
		})
		if err == nil {
			if rpcErr, ok := res.(*Error); ok {
				return rpcErr
			}
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		lastErr = err
		log.Debugf("indexer call attempt %d failed: %v", attempt+1, err)
	}
	return fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// call performs a single JSON-RPC round trip
func (c *Client) call(ctx context.Context, method string, result interface{}, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}

	var res response
	if err := json.Unmarshal(data, &res); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", method, err)
	}
	if res.Error != nil {
		return res.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(res.Result, result); err != nil {
		return fmt.Errorf("%s: failed to decode result: %w", method, err)
	}
	return nil
}

func (c *Client) retryCall(ctx context.Context, method string, result interface{}, params ...interface{}) error {
	return c.Retryable(ctx, func(ctx context.Context) error {
		return c.call(ctx, method, result, params...)
	})
}

// GetTransactionsByAddress returns the transactions touching an address
// from a starting height
func (c *Client) GetTransactionsByAddress(ctx context.Context, q models.TxQuery) ([]models.ChainTx, error) {
	var txs []models.ChainTx
	if err := c.retryCall(ctx, "getTransactionsByAddress", &txs, q); err != nil {
		return nil, err
	}
	return txs, nil
}

// GetBalance returns the raw base unit balance of address. A non-empty token
// selects a token contract balance.
func (c *Client) GetBalance(ctx context.Context, address, token string) (string, error) {
	var raw json.RawMessage
	params := []interface{}{address}
	if token != "" {
		params = append(params, token)
	}
	if err := c.retryCall(ctx, "getBalance", &raw, params...); err != nil {
		return "", err
	}
	return quantityString(raw)
}

// BlockNumber returns the chain tip height
func (c *Client) BlockNumber(ctx context.Context) (int64, error) {
	var raw json.RawMessage
	if err := c.retryCall(ctx, "blockNumber", &raw); err != nil {
		return 0, err
	}
	s, err := quantityString(raw)
	if err != nil {
		return 0, err
	}
	if strings.HasPrefix(s, "0x") {
		return strconv.ParseInt(s[2:], 16, 64)
	}
	return strconv.ParseInt(s, 10, 64)
}

// Version returns the indexer API version
func (c *Client) Version(ctx context.Context) (*semver.Version, error) {
	var v string
	if err := c.retryCall(ctx, "version", &v); err != nil {
		return nil, err
	}
	return semver.Parse(v)
}

// CheckVersion ensures the indexer has a compatible API version
func (c *Client) CheckVersion(ctx context.Context) (*semver.Version, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to get indexer API version: %w", err)
	}
	if !ver.Compatible(compatibleIndexerMajors...) {
		return ver, fmt.Errorf("%w: advertises %s", ErrIncompatibleAPI, ver)
	}
	return ver, nil
}

// quantityString accepts a quoted or bare JSON number
func quantityString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid quantity %s", string(raw))
	}
	return n.String(), nil
}
