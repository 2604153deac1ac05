package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BoostRequest asks the delegation primitive for a linear boost from From to To
// ending at EndTime. Sponsor is the operator whose allowance is consumed.
type BoostRequest struct {
	From    common.Address
	To      common.Address
	Amount  *uint256.Int
	EndTime uint64
	Sponsor common.Address
}

// BoostPoint describes a linear boost: power starts at Bias and falls by Slope
// per second for Duration seconds.
type BoostPoint struct {
	Bias     *uint256.Int
	Slope    *uint256.Int
	Duration uint64
}

type VotingEscrow interface {
	BalanceOf(ctx context.Context, account common.Address, at uint64) (*uint256.Int, error)
	LockEnd(ctx context.Context, account common.Address) (uint64, error)
	LastSlope(ctx context.Context, account common.Address) (*uint256.Int, error)
}

type DelegationBoost interface {
	CreateBoost(ctx context.Context, req BoostRequest) (uint64, error)
	DelegatedBalance(ctx context.Context, account common.Address) (*uint256.Int, error)
	ReceivedBalance(ctx context.Context, account common.Address) (*uint256.Int, error)
	AdjustedBalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error)
	Allowance(ctx context.Context, owner, operator common.Address) (*uint256.Int, error)
	RefreshAccountCheckpoint(ctx context.Context, account common.Address) error
}

type TokenLedger interface {
	BalanceOf(ctx context.Context, token, account common.Address) (*uint256.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*uint256.Int, error)
	Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error
	TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *uint256.Int) error
}

// Journal gives all-or-nothing semantics over the collaborators' state.
type Journal interface {
	NewCheckpoint() int
	RevertTo(rev int)
	Release(rev int)
}
