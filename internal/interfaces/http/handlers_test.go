package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/q4ZAr/boost-market/internal/application"
	"github.com/q4ZAr/boost-market/internal/domain"
	"github.com/q4ZAr/boost-market/internal/infrastructure/memchain"
	"github.com/q4ZAr/boost-market/internal/testutil"
	"github.com/q4ZAr/boost-market/pkg/config"
	"github.com/q4ZAr/boost-market/pkg/logger"
)

// alignedStart is the first week boundary after testutil.StartTime.
const alignedStart uint64 = 1_700_092_800

var (
	engineAddr  = common.HexToAddress("0x00000000000000000000000000000000000b0057")
	owner       = testutil.Addr(1)
	feeToken    = testutil.Addr(2)
	chest       = testutil.Addr(3)
	seller      = testutil.Addr(10)
	buyer       = testutil.Addr(20)
	receiver    = testutil.Addr(21)
	sponsor     = testutil.Addr(30)
	delegator   = testutil.Addr(31)
	rewardToken = testutil.Addr(40)
	stranger    = testutil.Addr(99)
)

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	engine *application.Engine
	chain  *memchain.Chain
	sink   *testutil.MemorySink
}

func testMarket() *config.Market {
	m := config.DefaultMarket()
	m.Owner = owner.Hex()
	m.FeeToken = feeToken.Hex()
	m.Chest = chest.Hex()
	m.RewardTokens = []config.RewardToken{{Token: rewardToken.Hex(), MinRewardPerVote: "1"}}
	return m
}

func newTestServer(t *testing.T, opts RouterOptions) *testServer {
	t.Helper()
	clock := testutil.NewMockClock(alignedStart)
	chain := memchain.NewChain(clock)
	sink := &testutil.MemorySink{}

	params, err := application.ParamsFromConfig(testMarket())
	require.NoError(t, err)

	engine, err := application.NewEngine(params, application.Dependencies{
		Escrow:  chain.Escrow(),
		Boosts:  chain.Boosts(),
		Tokens:  chain.Tokens(),
		Journal: chain,
		Clock:   clock,
		Events:  sink,
	}, logger.Nop())
	require.NoError(t, err)

	opts.Simulator = chain
	return &testServer{
		t:      t,
		router: NewRouter(engine, opts, logger.Nop()),
		engine: engine,
		chain:  chain,
		sink:   sink,
	}
}

// do sends body as JSON; a zero caller sends no X-Caller header.
func (s *testServer) do(method, path string, caller common.Address, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != (common.Address{}) {
		req.Header.Set(CallerHeader, caller.Hex())
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// expect asserts the status and decodes the body into out when out is non-nil.
func (s *testServer) expect(w *httptest.ResponseRecorder, status int, out interface{}) {
	s.t.Helper()
	require.Equal(s.t, status, w.Code, w.Body.String())
	if out != nil {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), out))
	}
}

func (s *testServer) lock(account common.Address, units, weeks uint64) {
	s.t.Helper()
	w := s.do(http.MethodPost, "/sim/lock", common.Address{}, LockRequest{
		Account: account.Hex(),
		Amount:  testutil.Units(units).Dec(),
		End:     alignedStart + weeks*domain.Week,
	})
	s.expect(w, http.StatusCreated, nil)
	w = s.do(http.MethodPost, "/sim/boost-approve", common.Address{}, BoostApproveRequest{
		Owner:    account.Hex(),
		Operator: engineAddr.Hex(),
	})
	s.expect(w, http.StatusNoContent, nil)
}

func (s *testServer) fund(token, account common.Address, units uint64) {
	s.t.Helper()
	w := s.do(http.MethodPost, "/sim/mint", common.Address{}, MintRequest{
		Token:  token.Hex(),
		To:     account.Hex(),
		Amount: testutil.Units(units).Dec(),
	})
	s.expect(w, http.StatusOK, nil)
	w = s.do(http.MethodPost, "/sim/approve", common.Address{}, ApproveRequest{
		Token:   token.Hex(),
		Owner:   account.Hex(),
		Spender: engineAddr.Hex(),
	})
	s.expect(w, http.StatusNoContent, nil)
}

func (s *testServer) listSeller() {
	s.t.Helper()
	s.lock(seller, 1000, 200)
	w := s.do(http.MethodPost, "/offers", seller, OfferRequest{
		PricePerVote: "82500000000",
		MaxDuration:  10,
		MinPerc:      1000,
		MaxPerc:      10000,
	})
	s.expect(w, http.StatusCreated, nil)
}

func TestHandler_GetHealth(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	var body map[string]interface{}
	s.expect(s.do(http.MethodGet, "/health", common.Address{}, nil), http.StatusOK, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(0), body["offers"])
}

func TestHandler_GetReadiness(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantState  string
	}{
		{name: "journal reachable", wantStatus: http.StatusOK, wantState: "ready"},
		{name: "journal down", pingErr: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable, wantState: "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pinger := new(MockPinger)
			pinger.On("Ping", mock.Anything).Return(tt.pingErr)
			s := newTestServer(t, RouterOptions{Journal: pinger})

			var body map[string]string
			s.expect(s.do(http.MethodGet, "/ready", common.Address{}, nil), tt.wantStatus, &body)
			assert.Equal(t, tt.wantState, body["status"])
			pinger.AssertExpectations(t)
		})
	}
}

func TestHandler_GetStats(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.listSeller()

	var stats application.Stats
	s.expect(s.do(http.MethodGet, "/stats", common.Address{}, nil), http.StatusOK, &stats)
	assert.Equal(t, 1, stats.Offers)
	assert.Equal(t, "0", stats.ReserveAmount)
	assert.Equal(t, uint64(1), stats.LastEventSeq)
}

func TestHandler_GetEvents(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.listSeller()
	s.expect(s.do(http.MethodPost, "/admin/pause", owner, nil), http.StatusOK, nil)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantNames  []string
	}{
		{name: "all", query: "", wantStatus: http.StatusOK, wantNames: []string{domain.EventRegistred, domain.EventPaused}},
		{name: "by name", query: "?name=" + domain.EventPaused, wantStatus: http.StatusOK, wantNames: []string{domain.EventPaused}},
		{name: "after", query: "?after=1", wantStatus: http.StatusOK, wantNames: []string{domain.EventPaused}},
		{name: "limit", query: "?limit=1", wantStatus: http.StatusOK, wantNames: []string{domain.EventRegistred}},
		{name: "nothing newer", query: "?after=2", wantStatus: http.StatusOK, wantNames: []string{}},
		{name: "bad limit", query: "?limit=0", wantStatus: http.StatusBadRequest},
		{name: "bad after", query: "?after=x", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodGet, "/events"+tt.query, common.Address{}, nil)
			if tt.wantStatus != http.StatusOK {
				assert.Equal(t, tt.wantStatus, w.Code)
				return
			}
			var body EventsResponse
			s.expect(w, http.StatusOK, &body)
			names := []string{}
			for _, e := range body.Data {
				names = append(names, e.Name)
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestHandler_EventsWithoutJournal(t *testing.T) {
	chain := memchain.NewChain(testutil.NewMockClock(alignedStart))
	params, err := application.ParamsFromConfig(testMarket())
	require.NoError(t, err)
	engine, err := application.NewEngine(params, application.Dependencies{
		Escrow: chain.Escrow(), Boosts: chain.Boosts(), Tokens: chain.Tokens(), Journal: chain,
	}, logger.Nop())
	require.NoError(t, err)

	router := NewRouter(engine, RouterOptions{}, logger.Nop())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sim/mint", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "simulator routes are off without a chain")
}

func TestHandler_ErrorMapping(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	tests := []struct {
		name       string
		method     string
		path       string
		caller     common.Address
		body       interface{}
		wantStatus int
		wantError  string
	}{
		{name: "missing caller", method: http.MethodDelete, path: "/offers", wantStatus: http.StatusBadRequest},
		{name: "revert", method: http.MethodDelete, path: "/offers", caller: stranger, wantStatus: http.StatusConflict, wantError: "NotRegistered"},
		{name: "bad seller", method: http.MethodGet, path: "/offers/0xnothex", wantStatus: http.StatusBadRequest, wantError: "invalid seller address"},
		{name: "unknown seller", method: http.MethodGet, path: "/offers/" + stranger.Hex(), wantStatus: http.StatusConflict, wantError: "NotRegistered"},
		{name: "bad weeks", method: http.MethodGet, path: "/offers/" + seller.Hex() + "/estimate?amount=1&weeks=x", wantStatus: http.StatusBadRequest, wantError: "invalid weeks"},
		{name: "bad amount", method: http.MethodGet, path: "/offers/" + seller.Hex() + "/can-delegate?amount=-5", wantStatus: http.StatusBadRequest, wantError: "invalid amount"},
		{name: "missing fields", method: http.MethodPost, path: "/boosts", caller: buyer, body: map[string]string{}, wantStatus: http.StatusBadRequest},
		{name: "bad pledge id", method: http.MethodGet, path: "/pledges/abc", wantStatus: http.StatusBadRequest, wantError: "invalid pledge id"},
		{name: "unknown pledge", method: http.MethodGet, path: "/pledges/7", wantStatus: http.StatusConflict, wantError: "InvalidPledgeID"},
		{name: "not owner", method: http.MethodPost, path: "/admin/pause", caller: stranger, wantStatus: http.StatusConflict, wantError: "CallerNotOwner"},
		{name: "overflowing amount", method: http.MethodPost, path: "/reserve/withdraw", caller: owner,
			body: AmountRequest{Amount: "1" + strings.Repeat("0", 80)},
			wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, tt.path, tt.caller, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantError != "" {
				var body map[string]string
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.wantError, body["error"])
			}
		})
	}
}

func TestHandler_RateLimit(t *testing.T) {
	s := newTestServer(t, RouterOptions{RateLimit: 1, RateBurst: 2})

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = s.do(http.MethodGet, "/health", common.Address{}, nil).Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestHandler_CORSPreflight(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	w := s.do(http.MethodOptions, "/offers", common.Address{}, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), CallerHeader)
}
