package memchain

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/q4ZAr/boost-market/internal/domain"
)

type tokenState struct {
	balances   map[common.Address]map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]map[common.Address]*uint256.Int
}

func (s tokenState) clone() tokenState {
	out := tokenState{
		balances:   make(map[common.Address]map[common.Address]*uint256.Int, len(s.balances)),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*uint256.Int, len(s.allowances)),
	}
	for token, holders := range s.balances {
		m := make(map[common.Address]*uint256.Int, len(holders))
		for a, v := range holders {
			m[a] = v.Clone()
		}
		out.balances[token] = m
	}
	for token, owners := range s.allowances {
		om := make(map[common.Address]map[common.Address]*uint256.Int, len(owners))
		for owner, spenders := range owners {
			sm := make(map[common.Address]*uint256.Int, len(spenders))
			for sp, v := range spenders {
				sm[sp] = v.Clone()
			}
			om[owner] = sm
		}
		out.allowances[token] = om
	}
	return out
}

// TokenLedger holds balances of any number of fungible tokens keyed by token address.
type TokenLedger struct {
	mu    sync.RWMutex
	state tokenState
}

func newTokenLedger() *TokenLedger {
	return &TokenLedger{
		state: tokenState{
			balances:   make(map[common.Address]map[common.Address]*uint256.Int),
			allowances: make(map[common.Address]map[common.Address]map[common.Address]*uint256.Int),
		},
	}
}

func (t *TokenLedger) Mint(token, to common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bal := t.balanceLocked(token, to)
	t.setBalanceLocked(token, to, bal.Add(bal, amount))
}

func (t *TokenLedger) Approve(token, owner, spender common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.allowances[token] == nil {
		t.state.allowances[token] = make(map[common.Address]map[common.Address]*uint256.Int)
	}
	if t.state.allowances[token][owner] == nil {
		t.state.allowances[token][owner] = make(map[common.Address]*uint256.Int)
	}
	t.state.allowances[token][owner][spender] = domain.Amount(amount)
}

func (t *TokenLedger) BalanceOf(_ context.Context, token, account common.Address) (*uint256.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.balanceLocked(token, account), nil
}

func (t *TokenLedger) Allowance(_ context.Context, token, owner, spender common.Address) (*uint256.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return domain.Amount(t.state.allowances[token][owner][spender]), nil
}

func (t *TokenLedger) Transfer(_ context.Context, token, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.moveLocked(token, from, to, amount)
}

func (t *TokenLedger) TransferFrom(_ context.Context, token, spender, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowance := domain.Amount(t.state.allowances[token][from][spender])
	if allowance.Cmp(amount) < 0 {
		return domain.ErrInsufficientAllowance
	}
	if err := t.moveLocked(token, from, to, amount); err != nil {
		return err
	}
	if !amount.IsZero() && !allowance.Eq(domain.MaxUint256()) {
		t.state.allowances[token][from][spender] = allowance.Sub(allowance, amount)
	}
	return nil
}

func (t *TokenLedger) moveLocked(token, from, to common.Address, amount *uint256.Int) error {
	fromBal := t.balanceLocked(token, from)
	if fromBal.Cmp(amount) < 0 {
		return domain.ErrInsufficientBalance
	}
	t.setBalanceLocked(token, from, fromBal.Sub(fromBal, amount))
	toBal := t.balanceLocked(token, to)
	t.setBalanceLocked(token, to, toBal.Add(toBal, amount))
	return nil
}

func (t *TokenLedger) balanceLocked(token, account common.Address) *uint256.Int {
	return domain.Amount(t.state.balances[token][account])
}

func (t *TokenLedger) setBalanceLocked(token, account common.Address, v *uint256.Int) {
	if t.state.balances[token] == nil {
		t.state.balances[token] = make(map[common.Address]*uint256.Int)
	}
	t.state.balances[token][account] = v
}

func (t *TokenLedger) snapshot() tokenState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.clone()
}

func (t *TokenLedger) restore(s tokenState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}
