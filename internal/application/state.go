package application

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/q4ZAr/boost-market/internal/domain"
)

// state is everything the engine owns. It is cloned before each operation
// and swapped back in when the operation fails.
type state struct {
	owner          common.Address
	feeToken       common.Address
	chest          common.Address
	reserveManager common.Address
	managers       map[common.Address]bool

	paused       bool
	claimBlocked bool

	feeReserveRatio   uint64
	minPercRequired   uint64
	minDelegationTime uint64
	protocolFeeRatio  uint64
	advisedPrice      *uint256.Int
	minVoteDiff       *uint256.Int

	offers    []domain.BoostOffer
	userIndex map[common.Address]int

	earnedFees    map[common.Address]*uint256.Int
	reserveAmount *uint256.Int

	pledges          []domain.Pledge
	userPledges      map[common.Address][]uint64
	minRewardPerVote map[common.Address]*uint256.Int
	rewardTokenTotal map[common.Address]*uint256.Int
}

func newState(p Params) *state {
	st := &state{
		owner:             p.Owner,
		feeToken:          p.FeeToken,
		chest:             p.Chest,
		reserveManager:    p.ReserveManager,
		managers:          make(map[common.Address]bool, len(p.Managers)),
		feeReserveRatio:   p.FeeReserveRatio,
		minPercRequired:   p.MinPercRequired,
		minDelegationTime: p.MinDelegationTime,
		protocolFeeRatio:  p.ProtocolFeeRatio,
		advisedPrice:      domain.Amount(p.AdvisedPrice),
		minVoteDiff:       domain.Amount(p.MinVoteDiff),
		offers:            []domain.BoostOffer{{}},
		userIndex:         make(map[common.Address]int),
		earnedFees:        make(map[common.Address]*uint256.Int),
		reserveAmount:     new(uint256.Int),
		userPledges:       make(map[common.Address][]uint64),
		minRewardPerVote:  make(map[common.Address]*uint256.Int, len(p.RewardTokens)),
		rewardTokenTotal:  make(map[common.Address]*uint256.Int),
	}
	for _, m := range p.Managers {
		st.managers[m] = true
	}
	for _, rt := range p.RewardTokens {
		st.minRewardPerVote[rt.Token] = domain.Amount(rt.MinRewardPerVote)
	}
	return st
}

func (s *state) clone() *state {
	out := *s

	out.managers = make(map[common.Address]bool, len(s.managers))
	for k, v := range s.managers {
		out.managers[k] = v
	}
	out.advisedPrice = s.advisedPrice.Clone()
	out.minVoteDiff = s.minVoteDiff.Clone()

	out.offers = make([]domain.BoostOffer, len(s.offers))
	for i, o := range s.offers {
		out.offers[i] = o.Clone()
	}
	out.userIndex = make(map[common.Address]int, len(s.userIndex))
	for k, v := range s.userIndex {
		out.userIndex[k] = v
	}

	out.earnedFees = cloneAmounts(s.earnedFees)
	out.reserveAmount = s.reserveAmount.Clone()

	out.pledges = make([]domain.Pledge, len(s.pledges))
	for i, p := range s.pledges {
		out.pledges[i] = p.Clone()
	}
	out.userPledges = make(map[common.Address][]uint64, len(s.userPledges))
	for k, ids := range s.userPledges {
		out.userPledges[k] = append([]uint64(nil), ids...)
	}
	out.minRewardPerVote = cloneAmounts(s.minRewardPerVote)
	out.rewardTokenTotal = cloneAmounts(s.rewardTokenTotal)

	return &out
}

func cloneAmounts(m map[common.Address]*uint256.Int) map[common.Address]*uint256.Int {
	out := make(map[common.Address]*uint256.Int, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

func (s *state) earned(user common.Address) *uint256.Int {
	return domain.Amount(s.earnedFees[user])
}

func (s *state) rewardTotal(token common.Address) *uint256.Int {
	return domain.Amount(s.rewardTokenTotal[token])
}

func (s *state) isAllowed(caller common.Address) bool {
	return caller == s.owner || (caller == s.reserveManager && !domain.IsZeroAddress(caller))
}

func (s *state) isManager(caller common.Address) bool {
	return caller == s.owner || s.managers[caller]
}

func (s *state) openPledges() int {
	n := 0
	for _, p := range s.pledges {
		if !p.Closed {
			n++
		}
	}
	return n
}
