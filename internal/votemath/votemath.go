// Package votemath holds the week rounding, time-weighted vote integrals and
// fee/reward conversions shared by offers and pledges. All functions are pure
// and fail with ErrArithmeticOverflow instead of wrapping.
package votemath

import (
	"github.com/holiman/uint256"

	"github.com/q4ZAr/boost-market/internal/domain"
)

var (
	week   = uint256.NewInt(domain.Week)
	maxBPS = uint256.NewInt(domain.MaxBPS)
	two    = uint256.NewInt(2)
)

func RoundDownToWeek(t uint64) uint64 {
	return t / domain.Week * domain.Week
}

func RoundUpToWeek(t uint64) uint64 {
	return (t + domain.Week - 1) / domain.Week * domain.Week
}

func IsWeekAligned(t uint64) bool {
	return t%domain.Week == 0
}

// Snapshot is an account's voting-escrow state read at one instant.
type Snapshot struct {
	Balance *uint256.Int
	LockEnd uint64
	Slope   *uint256.Int
}

// TotalVotesNeeded returns how much cumulative power (power x seconds) must be
// delegated to the account so that it holds target power over [now, end],
// net of the area under its own decaying balance.
func TotalVotesNeeded(s Snapshot, target *uint256.Int, now, end uint64) (*uint256.Int, error) {
	if end <= now {
		return new(uint256.Int), nil
	}
	c := &calc{}
	duration := uint256.NewInt(end - now)
	needed := c.mul(target, duration)
	if c.err != nil {
		return nil, c.err
	}

	balance := domain.Amount(s.Balance)
	if balance.IsZero() {
		return needed, nil
	}

	var owned *uint256.Int
	if s.LockEnd < end {
		var lockLeft uint64
		if s.LockEnd > now {
			lockLeft = s.LockEnd - now
		}
		owned = c.div(c.add(c.mul(balance, uint256.NewInt(lockLeft)), balance), two)
	} else {
		slope := domain.Amount(s.Slope)
		endBias := SubClamp(balance, c.mul(slope, duration))
		owned = c.div(c.mul(duration, c.add(c.add(balance, endBias), slope)), two)
	}
	if c.err != nil {
		return nil, c.err
	}

	return SubClamp(needed, owned), nil
}

// NewBoostPoint sizes a linear boost of amount lasting duration seconds. The
// bias is rounded down to a multiple of the duration.
func NewBoostPoint(amount *uint256.Int, duration uint64) domain.BoostPoint {
	if duration == 0 {
		return domain.BoostPoint{Bias: new(uint256.Int), Slope: new(uint256.Int)}
	}
	d := uint256.NewInt(duration)
	slope := new(uint256.Int).Div(amount, d)
	bias := new(uint256.Int).Mul(slope, d)
	return domain.BoostPoint{Bias: bias, Slope: slope, Duration: duration}
}

// BoostArea is the cumulative power delivered by a boost decaying from bias
// to zero over duration seconds, counted per whole second.
func BoostArea(bias *uint256.Int, duration uint64) (*uint256.Int, error) {
	c := &calc{}
	area := c.div(c.add(c.mul(bias, uint256.NewInt(duration)), bias), two)
	return area, c.err
}

// RewardFor converts cumulative power into reward tokens at a rate quoted per
// vote per week, scaled by Unit.
func RewardFor(votes, ratePerVotePerWeek *uint256.Int) (*uint256.Int, error) {
	c := &calc{}
	reward := c.div(c.div(c.mul(votes, ratePerVotePerWeek), week), domain.Unit)
	return reward, c.err
}

// FeeFor prices amount of power held for seconds at price per vote per second.
func FeeFor(amount, price *uint256.Int, seconds uint64) (*uint256.Int, error) {
	c := &calc{}
	fee := c.div(c.mul(c.mul(amount, price), uint256.NewInt(seconds)), domain.Unit)
	return fee, c.err
}

// ApplyBPS returns amount * bps / 10000.
func ApplyBPS(amount *uint256.Int, bps uint64) (*uint256.Int, error) {
	c := &calc{}
	out := c.div(c.mul(amount, uint256.NewInt(bps)), maxBPS)
	return out, c.err
}

// PercentOf returns amount as basis points of total. total must be non-zero.
func PercentOf(amount, total *uint256.Int) (*uint256.Int, error) {
	c := &calc{}
	out := c.div(c.mul(amount, maxBPS), total)
	return out, c.err
}

// SubClamp returns a - b, or zero when b exceeds a.
func SubClamp(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) <= 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}
