package veoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	resty "github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/q4ZAr/boost-market/internal/domain"
	"github.com/q4ZAr/boost-market/pkg/logger"
	"github.com/q4ZAr/boost-market/pkg/metrics"
)

type balanceKey struct {
	account common.Address
	at      uint64
}

// Client reads voting-escrow state from a remote indexer. Balances at a past
// timestamp never change and are kept in an LRU; everything else is fetched
// on every call.
type Client struct {
	baseURL     string
	httpClient  *resty.Client
	logger      *logger.Logger
	rateLimiter *rate.Limiter
	clock       domain.Clock
	history     *lru.Cache[balanceKey, *uint256.Int]
	group       singleflight.Group
	timeout     time.Duration
}

func NewClient(baseURL string, timeout time.Duration, maxRetries int, retryDelay time.Duration, cacheSize int, clock domain.Clock, log *logger.Logger) (*Client, error) {
	httpClient := resty.New().
		SetTimeout(timeout).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(retryDelay).
		SetRetryMaxWaitTime(retryDelay * 3).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500 || r.StatusCode() == http.StatusTooManyRequests
		})

	history, err := lru.New[balanceKey, *uint256.Int](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create balance cache: %w", err)
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}

	return &Client{
		baseURL:     baseURL,
		httpClient:  httpClient,
		logger:      log,
		rateLimiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
		clock:       clock,
		history:     history,
		timeout:     timeout,
	}, nil
}

func (c *Client) BalanceOf(ctx context.Context, account common.Address, at uint64) (*uint256.Int, error) {
	key := balanceKey{account: account, at: at}
	historical := at < c.clock.Now()
	if historical {
		if v, ok := c.history.Get(key); ok {
			metrics.OracleCacheHits.Inc()
			return v.Clone(), nil
		}
	}

	// The shared fetch outlives any single caller; each caller still honours
	// its own context while waiting.
	ch := c.group.DoChan(fmt.Sprintf("balance/%s/%d", account.Hex(), at), func() (interface{}, error) {
		fetchCtx := context.WithoutCancel(ctx)
		if c.timeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(fetchCtx, c.timeout)
			defer cancel()
		}

		var resp BalanceResponse
		path := fmt.Sprintf("/v1/escrow/%s/balance", account.Hex())
		if err := c.get(fetchCtx, path, map[string]string{"ts": strconv.FormatUint(at, 10)}, &resp); err != nil {
			return nil, err
		}
		balance, err := uint256.FromDecimal(resp.Balance)
		if err != nil {
			return nil, fmt.Errorf("invalid balance %q: %w", resp.Balance, err)
		}
		if historical {
			c.history.Add(key, balance)
		}
		return balance, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*uint256.Int).Clone(), nil
	}
}

func (c *Client) LockEnd(ctx context.Context, account common.Address) (uint64, error) {
	var resp LockEndResponse
	if err := c.get(ctx, fmt.Sprintf("/v1/escrow/%s/lock-end", account.Hex()), nil, &resp); err != nil {
		return 0, err
	}
	return resp.LockEnd, nil
}

func (c *Client) LastSlope(ctx context.Context, account common.Address) (*uint256.Int, error) {
	var resp SlopeResponse
	if err := c.get(ctx, fmt.Sprintf("/v1/escrow/%s/slope", account.Hex()), nil, &resp); err != nil {
		return nil, err
	}
	slope, err := uint256.FromDecimal(resp.Slope)
	if err != nil {
		return nil, fmt.Errorf("invalid slope %q: %w", resp.Slope, err)
	}
	return slope, nil
}

func (c *Client) get(ctx context.Context, path string, query map[string]string, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	url := c.baseURL + path
	c.logger.Debugw("Querying escrow oracle", "url", url, "params", query)

	start := time.Now()
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetHeader("Accept", "application/json").
		Get(url)

	success := err == nil && resp.StatusCode() == http.StatusOK
	metrics.RecordOracleRequest(time.Since(start).Seconds(), success)

	if err != nil {
		return fmt.Errorf("failed to query %s: %w", path, err)
	}
	if resp.StatusCode() != http.StatusOK {
		var body ErrorResponse
		if json.Unmarshal(resp.Body(), &body) == nil && body.Error != "" {
			return fmt.Errorf("unexpected status code: %d, error: %s", resp.StatusCode(), body.Error)
		}
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), string(resp.Body()))
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
