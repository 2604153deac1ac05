package votemath

import (
	"github.com/holiman/uint256"

	"github.com/q4ZAr/boost-market/internal/domain"
)

// calc chains checked arithmetic; the first overflow sticks and later steps
// become no-ops returning zero.
type calc struct {
	err error
}

func (c *calc) mul(a, b *uint256.Int) *uint256.Int {
	if c.err != nil {
		return new(uint256.Int)
	}
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		c.err = domain.ErrArithmeticOverflow
	}
	return z
}

func (c *calc) add(a, b *uint256.Int) *uint256.Int {
	if c.err != nil {
		return new(uint256.Int)
	}
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		c.err = domain.ErrArithmeticOverflow
	}
	return z
}

func (c *calc) div(a, b *uint256.Int) *uint256.Int {
	if c.err != nil {
		return new(uint256.Int)
	}
	if b.IsZero() {
		c.err = domain.ErrArithmeticOverflow
		return new(uint256.Int)
	}
	return new(uint256.Int).Div(a, b)
}
