package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	Week                  uint64 = 7 * 24 * 3600
	MaxBPS                uint64 = 10000
	MinPledgeDuration     uint64 = Week
	MinDelegationDuration uint64 = 2 * 24 * 3600
	MaxFeeReserveRatio    uint64 = 5000
	MaxProtocolFeeRatio   uint64 = 500
	MaxLockTime           uint64 = 4 * 365 * 24 * 3600
)

// Unit is 1e18, the fixed-point scale of prices and reward rates.
// Callers must never use it as a receiver.
var Unit = uint256.NewInt(1_000_000_000_000_000_000)

func MaxUint256() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}

func IsZeroAddress(addr common.Address) bool {
	return addr == (common.Address{})
}

// Amount returns a non-nil copy of v.
func Amount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}

type Clock interface {
	Now() uint64
}

type SystemClock struct{}

func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}
