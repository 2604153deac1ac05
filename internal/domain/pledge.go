package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type Pledge struct {
	ID                   uint64
	Owner                common.Address
	Receiver             common.Address
	RewardToken          common.Address
	TargetVotes          *uint256.Int
	RewardPerVotePerWeek *uint256.Int
	EndTimestamp         uint64
	AvailableRewards     *uint256.Int
	Closed               bool
}

func (p Pledge) Clone() Pledge {
	p.TargetVotes = Amount(p.TargetVotes)
	p.RewardPerVotePerWeek = Amount(p.RewardPerVotePerWeek)
	p.AvailableRewards = Amount(p.AvailableRewards)
	return p
}

type CreatePledgeParams struct {
	Receiver             common.Address
	RewardToken          common.Address
	TargetVotes          *uint256.Int
	RewardPerVotePerWeek *uint256.Int
	EndTimestamp         uint64
	MaxTotalRewardAmount *uint256.Int
}

// JoinRecord is the outcome of one delegator joining a pledge.
type JoinRecord struct {
	PledgeID  uint64
	Delegator common.Address
	BoostID   uint64
	Point     BoostPoint
	EndTime   uint64
	Reward    *uint256.Int
	ChestFee  *uint256.Int
}

type RewardToken struct {
	Token            common.Address
	MinRewardPerVote *uint256.Int
}
