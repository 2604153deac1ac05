package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/q4ZAr/boost-market/internal/domain"
	"github.com/q4ZAr/boost-market/internal/infrastructure/memchain"
	"github.com/q4ZAr/boost-market/internal/testutil"
	"github.com/q4ZAr/boost-market/pkg/config"
	"github.com/q4ZAr/boost-market/pkg/logger"
)

// alignedStart is the first week boundary after testutil.StartTime.
const alignedStart uint64 = 1_700_092_800

var (
	engineAddr     = common.HexToAddress("0x00000000000000000000000000000000000b0057")
	owner          = testutil.Addr(1)
	feeToken       = testutil.Addr(2)
	chest          = testutil.Addr(3)
	reserveManager = testutil.Addr(4)
	priceManager   = testutil.Addr(5)
	seller         = testutil.Addr(10)
	seller2        = testutil.Addr(11)
	buyer          = testutil.Addr(20)
	receiver       = testutil.Addr(21)
	sponsor        = testutil.Addr(30)
	delegator      = testutil.Addr(31)
	rewardToken    = testutil.Addr(40)
	otherToken     = testutil.Addr(41)
	stranger       = testutil.Addr(99)
)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	clock  *testutil.MockClock
	chain  *memchain.Chain
	sink   *testutil.MemorySink
	engine *Engine
}

func testParams() Params {
	return Params{
		Address:           engineAddr,
		Owner:             owner,
		FeeToken:          feeToken,
		Chest:             chest,
		ReserveManager:    reserveManager,
		Managers:          []common.Address{priceManager},
		FeeReserveRatio:   500,
		MinPercRequired:   1000,
		MinDelegationTime: domain.MinDelegationDuration,
		AdvisedPrice:      uint256.NewInt(82_500_000_000),
		MinVoteDiff:       testutil.Units(1000),
		ProtocolFeeRatio:  500,
		RewardTokens: []domain.RewardToken{
			{Token: rewardToken, MinRewardPerVote: uint256.NewInt(1)},
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.NewMockClock(alignedStart)
	chain := memchain.NewChain(clock)
	sink := &testutil.MemorySink{}

	engine, err := NewEngine(testParams(), Dependencies{
		Escrow:  chain.Escrow(),
		Boosts:  chain.Boosts(),
		Tokens:  chain.Tokens(),
		Journal: chain,
		Clock:   clock,
		Events:  sink,
	}, logger.Nop())
	require.NoError(t, err)

	return &fixture{
		t:      t,
		ctx:    context.Background(),
		clock:  clock,
		chain:  chain,
		sink:   sink,
		engine: engine,
	}
}

// lock gives account a voting-escrow lock of units tokens for weeks weeks.
func (f *fixture) lock(account common.Address, units, weeks uint64) {
	f.t.Helper()
	require.NoError(f.t, f.chain.Escrow().CreateLock(account, testutil.Units(units), f.clock.Now()+weeks*domain.Week))
}

// operator makes the engine an unlimited boost operator of account.
func (f *fixture) operator(account common.Address) {
	f.chain.Boosts().Approve(account, engineAddr, domain.MaxUint256())
}

// fund mints amount of token to account and approves the engine for all of it.
func (f *fixture) fund(token, account common.Address, amount *uint256.Int) {
	f.chain.Tokens().Mint(token, account, amount)
	f.chain.Tokens().Approve(token, account, engineAddr, domain.MaxUint256())
}

func (f *fixture) balance(token, account common.Address) *uint256.Int {
	f.t.Helper()
	b, err := f.chain.Tokens().BalanceOf(f.ctx, token, account)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) veBalance(account common.Address) *uint256.Int {
	f.t.Helper()
	b, err := f.chain.Escrow().BalanceOf(f.ctx, account, f.clock.Now())
	require.NoError(f.t, err)
	return b
}

// listSeller locks, approves and registers seller with a fixed price.
func (f *fixture) listSeller(account common.Address, terms domain.OfferTerms) {
	f.t.Helper()
	f.lock(account, 1000, 200)
	f.operator(account)
	require.NoError(f.t, f.engine.Register(f.ctx, account, terms))
}

func defaultTerms() domain.OfferTerms {
	return domain.OfferTerms{
		PricePerVote: uint256.NewInt(82_500_000_000),
		MaxDuration:  10,
		MinPerc:      1000,
		MaxPerc:      10000,
	}
}

func TestNewEngine_Validation(t *testing.T) {
	chain := memchain.NewChain(testutil.NewMockClock(alignedStart))
	deps := Dependencies{Escrow: chain.Escrow(), Boosts: chain.Boosts(), Tokens: chain.Tokens()}

	tests := []struct {
		name    string
		mutate  func(p *Params)
		deps    Dependencies
		wantErr error
	}{
		{name: "valid", mutate: func(p *Params) {}, deps: deps},
		{name: "zero fee token", mutate: func(p *Params) { p.FeeToken = common.Address{} }, deps: deps, wantErr: domain.ErrZeroAddress},
		{name: "chest is engine", mutate: func(p *Params) { p.Chest = engineAddr }, deps: deps, wantErr: domain.ErrInvalidAddress},
		{name: "reserve ratio too high", mutate: func(p *Params) { p.FeeReserveRatio = 5001 }, deps: deps, wantErr: domain.ErrInvalidValue},
		{name: "platform fee too high", mutate: func(p *Params) { p.ProtocolFeeRatio = 501 }, deps: deps, wantErr: domain.ErrInvalidValue},
		{name: "min vote diff under one token", mutate: func(p *Params) { p.MinVoteDiff = uint256.NewInt(1) }, deps: deps, wantErr: domain.ErrInvalidValue},
		{name: "null advised price", mutate: func(p *Params) { p.AdvisedPrice = nil }, deps: deps, wantErr: domain.ErrNullValue},
		{name: "null reward floor", mutate: func(p *Params) { p.RewardTokens[0].MinRewardPerVote = uint256.NewInt(0) }, deps: deps, wantErr: domain.ErrNullValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testParams()
			tt.mutate(&params)
			engine, err := NewEngine(params, tt.deps, logger.Nop())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, engine)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, engineAddr, engine.Address())
		})
	}

	_, err := NewEngine(testParams(), Dependencies{}, logger.Nop())
	assert.Error(t, err)
}

func TestNewEngine_ResumesEventSequence(t *testing.T) {
	chain := memchain.NewChain(testutil.NewMockClock(alignedStart))
	repo := new(testutil.MockEventRepository)
	repo.On("LastSeq", mock.Anything).Return(uint64(41), nil)
	repo.On("SaveBatch", mock.Anything, mock.MatchedBy(func(events []domain.Event) bool {
		return len(events) == 1 && events[0].Seq == 42 && events[0].ID != ""
	})).Return(nil)

	engine, err := NewEngine(testParams(), Dependencies{
		Escrow: chain.Escrow(), Boosts: chain.Boosts(), Tokens: chain.Tokens(), Journal: chain, Events: repo,
	}, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, engine.Pause(context.Background(), owner))
	assert.Equal(t, uint64(42), engine.Stats().LastEventSeq)
	repo.AssertExpectations(t)
}

func TestNewEngine_JournalUnavailable(t *testing.T) {
	chain := memchain.NewChain(testutil.NewMockClock(alignedStart))
	repo := new(testutil.MockEventRepository)
	repo.On("LastSeq", mock.Anything).Return(uint64(0), errors.New("connection refused"))

	_, err := NewEngine(testParams(), Dependencies{
		Escrow: chain.Escrow(), Boosts: chain.Boosts(), Tokens: chain.Tokens(), Events: repo,
	}, logger.Nop())
	assert.ErrorContains(t, err, "connection refused")
}

func TestEngine_JournalWriteFailureDoesNotRevert(t *testing.T) {
	chain := memchain.NewChain(testutil.NewMockClock(alignedStart))
	repo := new(testutil.MockEventRepository)
	repo.On("LastSeq", mock.Anything).Return(uint64(0), nil)
	repo.On("SaveBatch", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	engine, err := NewEngine(testParams(), Dependencies{
		Escrow: chain.Escrow(), Boosts: chain.Boosts(), Tokens: chain.Tokens(), Journal: chain, Events: repo,
	}, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, engine.BlockClaim(context.Background(), owner))
	assert.True(t, engine.Stats().ClaimBlocked)
}

func TestEngine_RevertRestoresEverything(t *testing.T) {
	f := newFixture(t)

	// A two-week lock cannot back a three-week boost: the primitive refuses
	// after the fee was already pulled and credited.
	f.lock(seller, 1000, 2)
	f.operator(seller)
	require.NoError(t, f.engine.Register(f.ctx, seller, defaultTerms()))
	f.fund(feeToken, buyer, testutil.Units(100))
	eventsBefore := len(f.sink.Names())

	_, err := f.engine.BuyDelegationBoost(f.ctx, buyer, seller, receiver, testutil.Units(5), 3, testutil.Units(100))
	require.ErrorIs(t, err, domain.ErrCannotDelegate)

	assert.Equal(t, testutil.Units(100).Dec(), f.balance(feeToken, buyer).Dec())
	assert.True(t, f.balance(feeToken, engineAddr).IsZero())
	assert.True(t, f.engine.ReserveAmount(f.ctx).IsZero())
	assert.True(t, f.engine.EarnedFees(f.ctx, seller).IsZero())
	assert.Empty(t, f.chain.Boosts().Boosts())
	assert.Equal(t, 0, f.chain.Depth())
	assert.Len(t, f.sink.Names(), eventsBefore)
}

func TestEngine_EventsArePublishedInOrder(t *testing.T) {
	f := newFixture(t)
	f.listSeller(seller, defaultTerms())
	require.NoError(t, f.engine.UpdateOfferPrice(f.ctx, seller, uint256.NewInt(1), false))
	require.NoError(t, f.engine.Quit(f.ctx, seller))

	events, err := f.engine.Events(f.ctx, domain.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []string{domain.EventRegistred, domain.EventUpdateOfferPrice, domain.EventQuit}, f.sink.Names())
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Seq)
		assert.Equal(t, domain.EventTopic(e.Name), e.Topic)
		assert.Equal(t, alignedStart, e.Timestamp)
		assert.Equal(t, seller.Hex(), e.Args["user"])
	}

	filtered, err := f.engine.Events(f.ctx, domain.EventFilter{Name: domain.EventQuit})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, uint64(3), filtered[0].Seq)
}

func TestEngine_EventsWithoutJournal(t *testing.T) {
	chain := memchain.NewChain(testutil.NewMockClock(alignedStart))
	engine, err := NewEngine(testParams(), Dependencies{
		Escrow: chain.Escrow(), Boosts: chain.Boosts(), Tokens: chain.Tokens(),
	}, logger.Nop())
	require.NoError(t, err)

	_, err = engine.Events(context.Background(), domain.EventFilter{})
	assert.ErrorIs(t, err, ErrJournalDisabled)
}

func TestEngine_ConcurrentRegistrationsKeepIndexDense(t *testing.T) {
	f := newFixture(t)
	const sellers = 25

	accounts := make([]common.Address, sellers)
	for i := range accounts {
		accounts[i] = testutil.Addr(uint64(1000 + i))
		f.lock(accounts[i], 1000, 200)
		f.operator(accounts[i])
	}

	var wg sync.WaitGroup
	errs := make(chan error, sellers)
	for _, account := range accounts {
		wg.Add(1)
		go func(a common.Address) {
			defer wg.Done()
			errs <- f.engine.Register(f.ctx, a, defaultTerms())
		}(account)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, sellers+1, f.engine.OffersIndex(f.ctx))
	seen := make(map[int]bool)
	for _, a := range accounts {
		idx := f.engine.UserIndex(f.ctx, a)
		assert.NotZero(t, idx)
		assert.False(t, seen[idx], fmt.Sprintf("index %d assigned twice", idx))
		seen[idx] = true
	}
}

func TestEngine_SequenceSerializes(t *testing.T) {
	f := newFixture(t)
	called := false
	err := f.engine.Sequence(func() error {
		called = true
		f.chain.Tokens().Mint(feeToken, buyer, uint256.NewInt(1))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, uint64(1), f.balance(feeToken, buyer).Uint64())
}

func TestParamsFromConfig(t *testing.T) {
	m := config.DefaultMarket()
	m.Owner = owner.Hex()
	m.FeeToken = feeToken.Hex()
	m.Chest = chest.Hex()
	m.Managers = []string{priceManager.Hex()}
	m.RewardTokens = []config.RewardToken{{Token: rewardToken.Hex(), MinRewardPerVote: "1000"}}

	params, err := ParamsFromConfig(m)
	require.NoError(t, err)
	assert.Equal(t, engineAddr, params.Address)
	assert.Equal(t, owner, params.Owner)
	assert.Equal(t, []common.Address{priceManager}, params.Managers)
	assert.Equal(t, "793650793", params.AdvisedPrice.Dec())
	assert.Equal(t, "1000000000000000000000", params.MinVoteDiff.Dec())
	require.Len(t, params.RewardTokens, 1)
	assert.Equal(t, uint64(1000), params.RewardTokens[0].MinRewardPerVote.Uint64())
	assert.True(t, domain.IsZeroAddress(params.ReserveManager))

	m.FeeToken = "not-an-address"
	_, err = ParamsFromConfig(m)
	assert.ErrorContains(t, err, "fee_token")

	m.FeeToken = feeToken.Hex()
	m.AdvisedPrice = "-5"
	_, err = ParamsFromConfig(m)
	assert.ErrorContains(t, err, "advised_price")
}

func TestEngine_ConservesTokensOverMixedSequence(t *testing.T) {
	f := newFixture(t)
	f.listSeller(seller, defaultTerms())
	f.listSeller(seller2, defaultTerms())
	f.fund(feeToken, buyer, testutil.Units(100))
	f.fund(feeToken, reserveManager, testutil.Units(10))

	conserved := func(step string) {
		t.Helper()
		owed := new(uint256.Int).Set(f.engine.ReserveAmount(f.ctx))
		owed.Add(owed, f.engine.EarnedFees(f.ctx, seller))
		owed.Add(owed, f.engine.EarnedFees(f.ctx, seller2))
		assert.Equal(t, owed.Dec(), f.balance(feeToken, engineAddr).Dec(), "fee token after %s", step)
		assert.Equal(t,
			f.engine.RewardTokenTotalAmount(f.ctx, rewardToken).Dec(),
			f.balance(rewardToken, engineAddr).Dec(),
			"reward token after %s", step,
		)
	}

	_, err := f.engine.BuyDelegationBoost(f.ctx, buyer, seller, receiver, testutil.Units(300), 1, testutil.Units(100))
	require.NoError(t, err)
	_, err = f.engine.BuyDelegationBoost(f.ctx, buyer, seller2, receiver, testutil.Units(200), 2, testutil.Units(100))
	require.NoError(t, err)
	conserved("purchases")

	_, err = f.engine.BuyDelegationBoost(f.ctx, buyer, seller, receiver, testutil.Units(300), 1, uint256.NewInt(1))
	require.ErrorIs(t, err, domain.ErrFeesTooLow)
	conserved("reverted purchase")

	require.NoError(t, f.engine.ClaimAmount(f.ctx, seller, testutil.Units(1)))
	require.NoError(t, f.engine.DepositToReserve(f.ctx, reserveManager, reserveManager, testutil.Units(10)))
	require.NoError(t, f.engine.WithdrawFromReserve(f.ctx, reserveManager, testutil.Units(5)))
	conserved("claim and reserve moves")

	require.NoError(t, f.engine.Quit(f.ctx, seller2))
	assert.True(t, f.engine.EarnedFees(f.ctx, seller2).IsZero())
	conserved("quit")

	id := f.createPledge(sponsor, 6)
	f.joiner(delegator)
	_, err = f.engine.Pledge(f.ctx, delegator, id, testutil.Units(100), 0)
	require.NoError(t, err)
	conserved("pledge")

	_, err = f.engine.ClosePledge(f.ctx, sponsor, id, sponsor)
	require.NoError(t, err)
	conserved("close")
	assert.True(t, f.balance(rewardToken, engineAddr).IsZero())

	paid := new(uint256.Int).Add(f.balance(rewardToken, sponsor), f.balance(rewardToken, delegator))
	paid.Add(paid, f.balance(rewardToken, chest))
	assert.Equal(t, testutil.Units(sponsorBudgetUnits).Dec(), paid.Dec(), "reward supply is fully accounted for")
}
