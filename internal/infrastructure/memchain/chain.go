// Package memchain simulates the external collaborators of the engine: a
// voting escrow, a boost delegation primitive and a set of fungible tokens.
// Checkpoints snapshot all three so an engine operation can be rolled back.
package memchain

import (
	"sync"

	"github.com/q4ZAr/boost-market/internal/domain"
)

type Chain struct {
	clock  domain.Clock
	escrow *Escrow
	boosts *BoostLedger
	tokens *TokenLedger

	mu        sync.Mutex
	snapshots []snapshot
}

type snapshot struct {
	escrow escrowState
	boosts boostState
	tokens tokenState
}

type Option func(*Chain)

// WithVotingEscrow makes the boost primitive read balances from an external
// escrow instead of the simulated one.
func WithVotingEscrow(ve domain.VotingEscrow) Option {
	return func(c *Chain) {
		c.boosts.escrow = ve
	}
}

func NewChain(clock domain.Clock, opts ...Option) *Chain {
	c := &Chain{clock: clock}
	c.escrow = newEscrow(clock)
	c.boosts = newBoostLedger(clock, c.escrow)
	c.tokens = newTokenLedger()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chain) Escrow() *Escrow {
	return c.escrow
}

func (c *Chain) Boosts() *BoostLedger {
	return c.boosts
}

func (c *Chain) Tokens() *TokenLedger {
	return c.tokens
}

func (c *Chain) Now() uint64 {
	return c.clock.Now()
}

func (c *Chain) NewCheckpoint() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshots = append(c.snapshots, snapshot{
		escrow: c.escrow.snapshot(),
		boosts: c.boosts.snapshot(),
		tokens: c.tokens.snapshot(),
	})
	return len(c.snapshots) - 1
}

// RevertTo restores the state captured by rev and drops it and every later checkpoint.
func (c *Chain) RevertTo(rev int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rev < 0 || rev >= len(c.snapshots) {
		return
	}
	s := c.snapshots[rev]
	c.escrow.restore(s.escrow)
	c.boosts.restore(s.boosts)
	c.tokens.restore(s.tokens)
	c.snapshots = c.snapshots[:rev]
}

// Release drops rev and every later checkpoint, keeping the current state.
func (c *Chain) Release(rev int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rev < 0 || rev >= len(c.snapshots) {
		return
	}
	c.snapshots = c.snapshots[:rev]
}

func (c *Chain) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snapshots)
}
