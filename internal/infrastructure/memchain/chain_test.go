package memchain_test

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/q4ZAr/boost-market/internal/domain"
	"github.com/q4ZAr/boost-market/internal/infrastructure/memchain"
	"github.com/q4ZAr/boost-market/internal/testutil"
)

func setupChain(t *testing.T) (*memchain.Chain, *testutil.MockClock) {
	t.Helper()
	clock := testutil.NewMockClock(testutil.StartTime)
	return memchain.NewChain(clock), clock
}

func weekAligned(t uint64) uint64 {
	return t / domain.Week * domain.Week
}

func TestEscrow_LinearDecay(t *testing.T) {
	chain, clock := setupChain(t)
	ctx := context.Background()
	alice := testutil.Addr(1)

	end := weekAligned(testutil.StartTime + 52*domain.Week)
	require.NoError(t, chain.Escrow().CreateLock(alice, testutil.Units(1000), end))

	slope, err := chain.Escrow().LastSlope(ctx, alice)
	require.NoError(t, err)
	assert.False(t, slope.IsZero())

	lockEnd, err := chain.Escrow().LockEnd(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, end, lockEnd)

	now := clock.Now()
	bal, err := chain.Escrow().BalanceOf(ctx, alice, now)
	require.NoError(t, err)
	expected := new(uint256.Int).Mul(slope, uint256.NewInt(end-now))
	assert.Equal(t, expected.Dec(), bal.Dec())

	later, err := chain.Escrow().BalanceOf(ctx, alice, now+domain.Week)
	require.NoError(t, err)
	assert.Equal(t, -1, later.Cmp(bal))

	after, err := chain.Escrow().BalanceOf(ctx, alice, end)
	require.NoError(t, err)
	assert.True(t, after.IsZero())
}

func TestEscrow_CreateLockValidation(t *testing.T) {
	chain, clock := setupChain(t)
	alice := testutil.Addr(1)
	end := weekAligned(clock.Now() + 10*domain.Week)

	tests := []struct {
		name    string
		amount  *uint256.Int
		end     uint64
		wantErr error
	}{
		{name: "zero amount", amount: uint256.NewInt(0), end: end, wantErr: memchain.ErrEmptyLockAmount},
		{name: "end in the past", amount: testutil.Units(1), end: clock.Now() - 1, wantErr: memchain.ErrInvalidLockEnd},
		{name: "end beyond max lock", amount: testutil.Units(1), end: clock.Now() + domain.MaxLockTime + 2*domain.Week, wantErr: memchain.ErrInvalidLockEnd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := chain.Escrow().CreateLock(alice, tt.amount, tt.end)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	require.NoError(t, chain.Escrow().CreateLock(alice, testutil.Units(1), end))
	assert.ErrorIs(t, chain.Escrow().CreateLock(alice, testutil.Units(1), end), memchain.ErrLockExists)
}

func TestBoostLedger_CreateBoost(t *testing.T) {
	chain, clock := setupChain(t)
	ctx := context.Background()
	alice, bob, operator := testutil.Addr(1), testutil.Addr(2), testutil.Addr(3)

	lockEnd := weekAligned(clock.Now() + 52*domain.Week)
	require.NoError(t, chain.Escrow().CreateLock(alice, testutil.Units(1000), lockEnd))
	balance, err := chain.Escrow().BalanceOf(ctx, alice, clock.Now())
	require.NoError(t, err)

	boostEnd := weekAligned(clock.Now() + 4*domain.Week)
	half := new(uint256.Int).Div(balance, uint256.NewInt(2))

	tests := []struct {
		name    string
		req     domain.BoostRequest
		wantErr error
	}{
		{
			name:    "zero amount",
			req:     domain.BoostRequest{From: alice, To: bob, Amount: uint256.NewInt(0), EndTime: boostEnd, Sponsor: alice},
			wantErr: memchain.ErrBoostZeroAmount,
		},
		{
			name:    "unaligned end",
			req:     domain.BoostRequest{From: alice, To: bob, Amount: half, EndTime: boostEnd + 1, Sponsor: alice},
			wantErr: memchain.ErrBoostInvalidEnd,
		},
		{
			name:    "end after lock",
			req:     domain.BoostRequest{From: alice, To: bob, Amount: half, EndTime: lockEnd + domain.Week, Sponsor: alice},
			wantErr: memchain.ErrBoostOverLockEnd,
		},
		{
			name:    "more than balance",
			req:     domain.BoostRequest{From: alice, To: bob, Amount: new(uint256.Int).AddUint64(balance, 1), EndTime: boostEnd, Sponsor: alice},
			wantErr: memchain.ErrBoostOverDelegable,
		},
		{
			name:    "operator without allowance",
			req:     domain.BoostRequest{From: alice, To: bob, Amount: half, EndTime: boostEnd, Sponsor: operator},
			wantErr: memchain.ErrBoostOverAllowance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := chain.Boosts().CreateBoost(ctx, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, domain.IsRevert(err))
		})
	}

	chain.Boosts().Approve(alice, operator, domain.MaxUint256())
	id, err := chain.Boosts().CreateBoost(ctx, domain.BoostRequest{From: alice, To: bob, Amount: half, EndTime: boostEnd, Sponsor: operator})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	allowance, err := chain.Boosts().Allowance(ctx, alice, operator)
	require.NoError(t, err)
	assert.True(t, allowance.Eq(domain.MaxUint256()), "max allowance is never consumed")

	delegated, err := chain.Boosts().DelegatedBalance(ctx, alice)
	require.NoError(t, err)
	received, err := chain.Boosts().ReceivedBalance(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, delegated.Dec(), received.Dec())
	assert.True(t, delegated.Cmp(half) <= 0)

	adjustedAlice, err := chain.Boosts().AdjustedBalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, new(uint256.Int).Sub(balance, delegated).Dec(), adjustedAlice.Dec())

	adjustedBob, err := chain.Boosts().AdjustedBalanceOf(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, received.Dec(), adjustedBob.Dec())
}

func TestBoostLedger_ExpiryAndRefresh(t *testing.T) {
	chain, clock := setupChain(t)
	ctx := context.Background()
	alice, bob := testutil.Addr(1), testutil.Addr(2)

	require.NoError(t, chain.Escrow().CreateLock(alice, testutil.Units(1000), clock.Now()+52*domain.Week))
	end := weekAligned(clock.Now() + 2*domain.Week)
	_, err := chain.Boosts().CreateBoost(ctx, domain.BoostRequest{From: alice, To: bob, Amount: testutil.Units(1), EndTime: end, Sponsor: alice})
	require.NoError(t, err)
	require.Len(t, chain.Boosts().Boosts(), 1)

	clock.Set(end)
	received, err := chain.Boosts().ReceivedBalance(ctx, bob)
	require.NoError(t, err)
	assert.True(t, received.IsZero())

	require.NoError(t, chain.Boosts().RefreshAccountCheckpoint(ctx, alice))
	assert.Empty(t, chain.Boosts().Boosts())
}

func TestTokenLedger_TransferFrom(t *testing.T) {
	chain, _ := setupChain(t)
	ctx := context.Background()
	token, alice, bob, spender := testutil.Addr(10), testutil.Addr(1), testutil.Addr(2), testutil.Addr(3)
	tokens := chain.Tokens()

	tokens.Mint(token, alice, uint256.NewInt(100))

	err := tokens.TransferFrom(ctx, token, spender, alice, bob, uint256.NewInt(10))
	assert.ErrorIs(t, err, domain.ErrInsufficientAllowance)

	tokens.Approve(token, alice, spender, uint256.NewInt(500))
	err = tokens.TransferFrom(ctx, token, spender, alice, bob, uint256.NewInt(200))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	require.NoError(t, tokens.TransferFrom(ctx, token, spender, alice, bob, uint256.NewInt(60)))

	aliceBal, _ := tokens.BalanceOf(ctx, token, alice)
	bobBal, _ := tokens.BalanceOf(ctx, token, bob)
	allowance, _ := tokens.Allowance(ctx, token, alice, spender)
	assert.Equal(t, uint64(40), aliceBal.Uint64())
	assert.Equal(t, uint64(60), bobBal.Uint64())
	assert.Equal(t, uint64(440), allowance.Uint64())

	require.NoError(t, tokens.TransferFrom(ctx, token, spender, testutil.Addr(99), bob, uint256.NewInt(0)))
}

func TestChain_CheckpointRevert(t *testing.T) {
	chain, clock := setupChain(t)
	ctx := context.Background()
	token, alice, bob := testutil.Addr(10), testutil.Addr(1), testutil.Addr(2)

	chain.Tokens().Mint(token, alice, uint256.NewInt(100))
	require.NoError(t, chain.Escrow().CreateLock(alice, testutil.Units(1000), clock.Now()+52*domain.Week))

	rev := chain.NewCheckpoint()
	assert.Equal(t, 1, chain.Depth())

	require.NoError(t, chain.Tokens().Transfer(ctx, token, alice, bob, uint256.NewInt(70)))
	_, err := chain.Boosts().CreateBoost(ctx, domain.BoostRequest{
		From: alice, To: bob, Amount: testutil.Units(1), EndTime: weekAligned(clock.Now() + 3*domain.Week), Sponsor: alice,
	})
	require.NoError(t, err)

	chain.RevertTo(rev)
	assert.Equal(t, 0, chain.Depth())

	aliceBal, _ := chain.Tokens().BalanceOf(ctx, token, alice)
	assert.Equal(t, uint64(100), aliceBal.Uint64())
	assert.Empty(t, chain.Boosts().Boosts())

	rev = chain.NewCheckpoint()
	require.NoError(t, chain.Tokens().Transfer(ctx, token, alice, bob, uint256.NewInt(30)))
	chain.Release(rev)
	assert.Equal(t, 0, chain.Depth())
	bobBal, _ := chain.Tokens().BalanceOf(ctx, token, bob)
	assert.Equal(t, uint64(30), bobBal.Uint64())
}
