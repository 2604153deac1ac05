package memchain

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/q4ZAr/boost-market/internal/domain"
)

// Reasons reported by the primitive when it refuses a boost.
var (
	ErrBoostZeroAmount    = domain.NewRevert("BoostZeroAmount")
	ErrBoostInvalidEnd    = domain.NewRevert("BoostInvalidEnd")
	ErrBoostOverLockEnd   = domain.NewRevert("BoostOverLockEnd")
	ErrBoostOverDelegable = domain.NewRevert("BoostOverDelegable")
	ErrBoostOverAllowance = domain.NewRevert("BoostOverAllowance")
	ErrBoostEmpty         = domain.NewRevert("BoostEmpty")
)

type Boost struct {
	ID    uint64
	From  common.Address
	To    common.Address
	Bias  *uint256.Int
	Slope *uint256.Int
	Start uint64
	End   uint64
}

// ValueAt is the power the boost carries at t.
func (b Boost) ValueAt(t uint64) *uint256.Int {
	if t >= b.End || t < b.Start {
		return new(uint256.Int)
	}
	decayed := new(uint256.Int).Mul(b.Slope, uint256.NewInt(t-b.Start))
	if decayed.Cmp(b.Bias) >= 0 {
		return new(uint256.Int)
	}
	return decayed.Sub(b.Bias, decayed)
}

type boostState struct {
	boosts     map[uint64]Boost
	allowances map[common.Address]map[common.Address]*uint256.Int
	nonce      uint64
}

func (s boostState) clone() boostState {
	out := boostState{
		boosts:     make(map[uint64]Boost, len(s.boosts)),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int, len(s.allowances)),
		nonce:      s.nonce,
	}
	for id, b := range s.boosts {
		b.Bias = b.Bias.Clone()
		b.Slope = b.Slope.Clone()
		out.boosts[id] = b
	}
	for owner, ops := range s.allowances {
		m := make(map[common.Address]*uint256.Int, len(ops))
		for op, v := range ops {
			m[op] = v.Clone()
		}
		out.allowances[owner] = m
	}
	return out
}

// BoostLedger keeps one global capacity ledger per account: the sum of live
// boosts an account granted can never exceed its escrow balance.
type BoostLedger struct {
	mu     sync.RWMutex
	clock  domain.Clock
	escrow domain.VotingEscrow
	state  boostState
}

func newBoostLedger(clock domain.Clock, escrow domain.VotingEscrow) *BoostLedger {
	return &BoostLedger{
		clock:  clock,
		escrow: escrow,
		state: boostState{
			boosts:     make(map[uint64]Boost),
			allowances: make(map[common.Address]map[common.Address]*uint256.Int),
		},
	}
}

// Approve lets operator create boosts out of owner's power, up to amount.
func (l *BoostLedger) Approve(owner, operator common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.allowances[owner] == nil {
		l.state.allowances[owner] = make(map[common.Address]*uint256.Int)
	}
	l.state.allowances[owner][operator] = domain.Amount(amount)
}

func (l *BoostLedger) Allowance(_ context.Context, owner, operator common.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return domain.Amount(l.state.allowances[owner][operator]), nil
}

func (l *BoostLedger) CreateBoost(ctx context.Context, req domain.BoostRequest) (uint64, error) {
	now := l.clock.Now()
	balance, err := l.escrow.BalanceOf(ctx, req.From, now)
	if err != nil {
		return 0, err
	}
	lockEnd, err := l.escrow.LockEnd(ctx, req.From)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if req.Amount == nil || req.Amount.IsZero() {
		return 0, ErrBoostZeroAmount
	}
	if req.EndTime <= now || req.EndTime%domain.Week != 0 {
		return 0, ErrBoostInvalidEnd
	}
	if req.EndTime > lockEnd {
		return 0, ErrBoostOverLockEnd
	}

	delegated := l.sumLocked(now, func(b Boost) bool { return b.From == req.From })
	if delegated.Cmp(balance) >= 0 || new(uint256.Int).Sub(balance, delegated).Cmp(req.Amount) < 0 {
		return 0, ErrBoostOverDelegable
	}

	duration := uint256.NewInt(req.EndTime - now)
	slope := new(uint256.Int).Div(req.Amount, duration)
	bias := new(uint256.Int).Mul(slope, duration)
	if bias.IsZero() {
		return 0, ErrBoostEmpty
	}

	if req.Sponsor != req.From {
		allowance := domain.Amount(l.state.allowances[req.From][req.Sponsor])
		if allowance.Cmp(req.Amount) < 0 {
			return 0, ErrBoostOverAllowance
		}
		if !allowance.Eq(domain.MaxUint256()) {
			l.state.allowances[req.From][req.Sponsor] = allowance.Sub(allowance, req.Amount)
		}
	}

	id := l.state.nonce
	l.state.nonce++
	l.state.boosts[id] = Boost{
		ID:    id,
		From:  req.From,
		To:    req.To,
		Bias:  bias,
		Slope: slope,
		Start: now,
		End:   req.EndTime,
	}
	return id, nil
}

func (l *BoostLedger) DelegatedBalance(_ context.Context, account common.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.sumLocked(l.clock.Now(), func(b Boost) bool { return b.From == account }), nil
}

func (l *BoostLedger) ReceivedBalance(_ context.Context, account common.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.sumLocked(l.clock.Now(), func(b Boost) bool { return b.To == account }), nil
}

// AdjustedBalanceOf is the escrow balance minus what the account delegated
// plus what it received.
func (l *BoostLedger) AdjustedBalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error) {
	now := l.clock.Now()
	balance, err := l.escrow.BalanceOf(ctx, account, now)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	delegated := l.sumLocked(now, func(b Boost) bool { return b.From == account })
	received := l.sumLocked(now, func(b Boost) bool { return b.To == account })

	adjusted := new(uint256.Int).Add(balance, received)
	if adjusted.Cmp(delegated) <= 0 {
		return new(uint256.Int), nil
	}
	return adjusted.Sub(adjusted, delegated), nil
}

// RefreshAccountCheckpoint drops expired boosts granted or received by account.
func (l *BoostLedger) RefreshAccountCheckpoint(_ context.Context, account common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for id, b := range l.state.boosts {
		if (b.From == account || b.To == account) && b.End <= now {
			delete(l.state.boosts, id)
		}
	}
	return nil
}

// Boosts lists live and not yet pruned boosts, ordered by id.
func (l *BoostLedger) Boosts() []Boost {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Boost, 0, len(l.state.boosts))
	for _, b := range l.state.boosts {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *BoostLedger) sumLocked(now uint64, match func(Boost) bool) *uint256.Int {
	total := new(uint256.Int)
	for _, b := range l.state.boosts {
		if match(b) {
			total.Add(total, b.ValueAt(now))
		}
	}
	return total
}

func (l *BoostLedger) snapshot() boostState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.clone()
}

func (l *BoostLedger) restore(s boostState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
}
