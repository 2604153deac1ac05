package memchain

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/q4ZAr/boost-market/internal/domain"
)

var (
	ErrLockExists      = errors.New("lock already exists")
	ErrInvalidLockEnd  = errors.New("lock end must be in the future and within the max lock time")
	ErrEmptyLockAmount = errors.New("lock amount must be positive")
)

var maxLockTime = uint256.NewInt(domain.MaxLockTime)

type veLock struct {
	amount *uint256.Int
	start  uint64
	end    uint64
}

type escrowState struct {
	locks map[common.Address]veLock
}

func (s escrowState) clone() escrowState {
	out := escrowState{locks: make(map[common.Address]veLock, len(s.locks))}
	for k, v := range s.locks {
		v.amount = v.amount.Clone()
		out.locks[k] = v
	}
	return out
}

// Escrow is a voting escrow where a lock of amount until end yields
// amount / MaxLockTime * (end - t) power at time t.
type Escrow struct {
	mu    sync.RWMutex
	clock domain.Clock
	state escrowState
}

func newEscrow(clock domain.Clock) *Escrow {
	return &Escrow{
		clock: clock,
		state: escrowState{locks: make(map[common.Address]veLock)},
	}
}

// CreateLock locks amount for account until end, rounded down to a week.
func (e *Escrow) CreateLock(account common.Address, amount *uint256.Int, end uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	end = end / domain.Week * domain.Week
	if amount == nil || amount.IsZero() {
		return ErrEmptyLockAmount
	}
	if end <= now || end > now+domain.MaxLockTime {
		return errors.Wrapf(ErrInvalidLockEnd, "end %d", end)
	}
	if l, ok := e.state.locks[account]; ok && l.end > now {
		return errors.Wrapf(ErrLockExists, "account %s", account.Hex())
	}

	e.state.locks[account] = veLock{amount: amount.Clone(), start: now, end: end}
	return nil
}

func (e *Escrow) BalanceOf(_ context.Context, account common.Address, at uint64) (*uint256.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	l, ok := e.state.locks[account]
	if !ok || at < l.start || at >= l.end {
		return new(uint256.Int), nil
	}
	slope := new(uint256.Int).Div(l.amount, maxLockTime)
	return slope.Mul(slope, uint256.NewInt(l.end-at)), nil
}

func (e *Escrow) LockEnd(_ context.Context, account common.Address) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.state.locks[account].end, nil
}

func (e *Escrow) LastSlope(_ context.Context, account common.Address) (*uint256.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	l, ok := e.state.locks[account]
	if !ok {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Div(l.amount, maxLockTime), nil
}

func (e *Escrow) snapshot() escrowState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.clone()
}

func (e *Escrow) restore(s escrowState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}
