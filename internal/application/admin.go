package application

import (
	"context"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/q4ZAr/boost-market/internal/domain"
)

// admin runs an owner-only operation. Admin operations ignore the pause gate.
func (e *Engine) admin(ctx context.Context, op string, caller common.Address, fn func(t *tx) error) error {
	return e.execute(ctx, op, caller, false, func(t *tx) error {
		if caller != e.st.owner {
			return domain.ErrCallerNotOwner
		}
		return fn(t)
	})
}

func (e *Engine) Pause(ctx context.Context, caller common.Address) error {
	return e.admin(ctx, "pause", caller, func(t *tx) error {
		if e.st.paused {
			return domain.ErrPaused
		}
		e.st.paused = true
		t.emit(domain.EventPaused, "account", caller)
		return nil
	})
}

func (e *Engine) Unpause(ctx context.Context, caller common.Address) error {
	return e.admin(ctx, "unpause", caller, func(t *tx) error {
		if !e.st.paused {
			return domain.ErrNotPaused
		}
		e.st.paused = false
		t.emit(domain.EventUnpaused, "account", caller)
		return nil
	})
}

func (e *Engine) ApproveManager(ctx context.Context, caller, manager common.Address) error {
	return e.setManager(ctx, "approveManager", caller, manager, true)
}

func (e *Engine) RemoveManager(ctx context.Context, caller, manager common.Address) error {
	return e.setManager(ctx, "removeManager", caller, manager, false)
}

func (e *Engine) setManager(ctx context.Context, op string, caller, manager common.Address, approved bool) error {
	return e.admin(ctx, op, caller, func(t *tx) error {
		if domain.IsZeroAddress(manager) {
			return domain.ErrZeroAddress
		}
		if approved {
			e.st.managers[manager] = true
		} else {
			delete(e.st.managers, manager)
		}
		t.emit(domain.EventManagerUpdated, "manager", manager, "approved", approved)
		return nil
	})
}

func (e *Engine) BlockClaim(ctx context.Context, caller common.Address) error {
	return e.setClaimBlocked(ctx, "blockClaim", caller, true)
}

func (e *Engine) UnblockClaim(ctx context.Context, caller common.Address) error {
	return e.setClaimBlocked(ctx, "unblockClaim", caller, false)
}

func (e *Engine) setClaimBlocked(ctx context.Context, op string, caller common.Address, blocked bool) error {
	return e.admin(ctx, op, caller, func(t *tx) error {
		e.st.claimBlocked = blocked
		t.emit(domain.EventClaimBlockToggled, "blocked", blocked)
		return nil
	})
}

func (e *Engine) SetMinPercRequired(ctx context.Context, caller common.Address, minPerc uint64) error {
	return e.admin(ctx, "setMinPercRequired", caller, func(t *tx) error {
		if minPerc == 0 || minPerc > domain.MaxBPS {
			return domain.ErrInvalidValue
		}
		e.st.minPercRequired = minPerc
		t.emit(domain.EventParameterUpdated, "parameter", "minPercRequired", "value", minPerc)
		return nil
	})
}

func (e *Engine) SetMinDelegationTime(ctx context.Context, caller common.Address, seconds uint64) error {
	return e.admin(ctx, "setMinDelegationTime", caller, func(t *tx) error {
		if seconds == 0 {
			return domain.ErrNullValue
		}
		e.st.minDelegationTime = seconds
		t.emit(domain.EventParameterUpdated, "parameter", "minDelegationTime", "value", seconds)
		return nil
	})
}

func (e *Engine) SetFeeReserveRatio(ctx context.Context, caller common.Address, ratio uint64) error {
	return e.admin(ctx, "setFeeReserveRatio", caller, func(t *tx) error {
		if ratio > domain.MaxFeeReserveRatio {
			return domain.ErrInvalidValue
		}
		e.st.feeReserveRatio = ratio
		t.emit(domain.EventParameterUpdated, "parameter", "feeReserveRatio", "value", ratio)
		return nil
	})
}

func (e *Engine) SetReserveManager(ctx context.Context, caller, manager common.Address) error {
	return e.admin(ctx, "setReserveManager", caller, func(t *tx) error {
		e.st.reserveManager = manager
		t.emit(domain.EventParameterUpdated, "parameter", "reserveManager", "value", manager)
		return nil
	})
}

func (e *Engine) UpdateChest(ctx context.Context, caller, chest common.Address) error {
	return e.admin(ctx, "updateChest", caller, func(t *tx) error {
		if domain.IsZeroAddress(chest) || chest == e.address {
			return domain.ErrInvalidAddress
		}
		old := e.st.chest
		e.st.chest = chest
		t.emit(domain.EventChestUpdated, "oldChest", old, "newChest", chest)
		return nil
	})
}

func (e *Engine) UpdateMinVoteDiff(ctx context.Context, caller common.Address, minVoteDiff *uint256.Int) error {
	return e.admin(ctx, "updateMinVoteDiff", caller, func(t *tx) error {
		minVoteDiff = domain.Amount(minVoteDiff)
		if minVoteDiff.Lt(domain.Unit) {
			return domain.ErrInvalidValue
		}
		old := e.st.minVoteDiff
		e.st.minVoteDiff = minVoteDiff
		t.emit(domain.EventMinVoteDiffUpdated, "oldMinTarget", old, "newMinTarget", minVoteDiff)
		return nil
	})
}

func (e *Engine) UpdatePlatformFee(ctx context.Context, caller common.Address, fee uint64) error {
	return e.admin(ctx, "updatePlatformFee", caller, func(t *tx) error {
		if fee == 0 || fee > domain.MaxProtocolFeeRatio {
			return domain.ErrInvalidValue
		}
		old := e.st.protocolFeeRatio
		e.st.protocolFeeRatio = fee
		t.emit(domain.EventPlatformFeeUpdated, "oldFee", old, "newFee", fee)
		return nil
	})
}

func (e *Engine) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	return e.admin(ctx, "transferOwnership", caller, func(t *tx) error {
		if domain.IsZeroAddress(newOwner) {
			return domain.ErrZeroAddress
		}
		old := e.st.owner
		e.st.owner = newOwner
		t.emit(domain.EventOwnershipTransferred, "previousOwner", old, "newOwner", newOwner)
		return nil
	})
}

// SetAdvisedPrice is open to approved managers and the owner.
func (e *Engine) SetAdvisedPrice(ctx context.Context, caller common.Address, price *uint256.Int) error {
	return e.execute(ctx, "setAdvisedPrice", caller, false, func(t *tx) error {
		if !e.st.isManager(caller) {
			return domain.ErrCallerNotManager
		}
		price = domain.Amount(price)
		if price.IsZero() {
			return domain.ErrNullValue
		}
		e.st.advisedPrice = price
		t.emit(domain.EventNewAdvisedPrice, "newPrice", price)
		return nil
	})
}

func (e *Engine) AddRewardToken(ctx context.Context, caller, token common.Address, minRewardPerVote *uint256.Int) error {
	return e.admin(ctx, "addRewardToken", caller, func(t *tx) error {
		return e.addRewardToken(t, token, domain.Amount(minRewardPerVote))
	})
}

func (e *Engine) AddMultipleRewardToken(ctx context.Context, caller common.Address, tokens []common.Address, minRewardsPerVote []*uint256.Int) error {
	return e.admin(ctx, "addMultipleRewardToken", caller, func(t *tx) error {
		if len(tokens) == 0 {
			return domain.ErrEmptyArray
		}
		if len(tokens) != len(minRewardsPerVote) {
			return domain.ErrUnequalArraySizes
		}
		for i, token := range tokens {
			if err := e.addRewardToken(t, token, domain.Amount(minRewardsPerVote[i])); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Engine) addRewardToken(t *tx, token common.Address, minRewardPerVote *uint256.Int) error {
	if domain.IsZeroAddress(token) {
		return domain.ErrZeroAddress
	}
	if minRewardPerVote.IsZero() {
		return domain.ErrNullValue
	}
	if _, ok := e.st.minRewardPerVote[token]; ok {
		return domain.ErrAlreadyAllowedToken
	}
	e.st.minRewardPerVote[token] = minRewardPerVote
	t.emit(domain.EventNewRewardToken, "token", token, "minRewardPerVote", minRewardPerVote)
	return nil
}

func (e *Engine) UpdateRewardToken(ctx context.Context, caller, token common.Address, minRewardPerVote *uint256.Int) error {
	return e.admin(ctx, "updateRewardToken", caller, func(t *tx) error {
		if _, ok := e.st.minRewardPerVote[token]; !ok {
			return domain.ErrNotAllowedToken
		}
		minRewardPerVote = domain.Amount(minRewardPerVote)
		if minRewardPerVote.IsZero() {
			return domain.ErrInvalidValue
		}
		e.st.minRewardPerVote[token] = minRewardPerVote
		t.emit(domain.EventUpdateRewardToken, "token", token, "minRewardPerVote", minRewardPerVote)
		return nil
	})
}

func (e *Engine) RemoveRewardToken(ctx context.Context, caller, token common.Address) error {
	return e.admin(ctx, "removeRewardToken", caller, func(t *tx) error {
		if _, ok := e.st.minRewardPerVote[token]; !ok {
			return domain.ErrNotAllowedToken
		}
		delete(e.st.minRewardPerVote, token)
		t.emit(domain.EventRemoveRewardToken, "token", token)
		return nil
	})
}

// Settings is a read-only copy of the engine parameters.
type Settings struct {
	Owner             common.Address
	FeeToken          common.Address
	Chest             common.Address
	ReserveManager    common.Address
	Managers          []common.Address
	Paused            bool
	ClaimBlocked      bool
	FeeReserveRatio   uint64
	MinPercRequired   uint64
	MinDelegationTime uint64
	ProtocolFeeRatio  uint64
	AdvisedPrice      *uint256.Int
	MinVoteDiff       *uint256.Int
}

func (e *Engine) Settings(ctx context.Context) Settings {
	var s Settings
	_ = e.read(ctx, func(t *tx) error {
		st := e.st
		s = Settings{
			Owner:             st.owner,
			FeeToken:          st.feeToken,
			Chest:             st.chest,
			ReserveManager:    st.reserveManager,
			Paused:            st.paused,
			ClaimBlocked:      st.claimBlocked,
			FeeReserveRatio:   st.feeReserveRatio,
			MinPercRequired:   st.minPercRequired,
			MinDelegationTime: st.minDelegationTime,
			ProtocolFeeRatio:  st.protocolFeeRatio,
			AdvisedPrice:      st.advisedPrice.Clone(),
			MinVoteDiff:       st.minVoteDiff.Clone(),
		}
		for m := range st.managers {
			s.Managers = append(s.Managers, m)
		}
		slices.SortFunc(s.Managers, func(a, b common.Address) int { return a.Cmp(b) })
		return nil
	})
	return s
}
