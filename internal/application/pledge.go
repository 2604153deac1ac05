package application

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/q4ZAr/boost-market/internal/domain"
	"github.com/q4ZAr/boost-market/internal/votemath"
	"github.com/q4ZAr/boost-market/pkg/metrics"
)

// CreatePledge opens a campaign that rewards delegators for bringing the
// receiver up to TargetVotes until EndTimestamp. The whole reward budget is
// escrowed from the caller up front.
func (e *Engine) CreatePledge(ctx context.Context, caller common.Address, params domain.CreatePledgeParams) (uint64, error) {
	var id uint64
	err := e.execute(ctx, "createPledge", caller, true, func(t *tx) error {
		st := e.st
		if domain.IsZeroAddress(params.Receiver) || domain.IsZeroAddress(params.RewardToken) {
			return domain.ErrZeroAddress
		}
		minRate, ok := st.minRewardPerVote[params.RewardToken]
		if !ok {
			return domain.ErrTokenNotWhitelisted
		}
		target := domain.Amount(params.TargetVotes)
		rate := domain.Amount(params.RewardPerVotePerWeek)
		end := params.EndTimestamp
		switch {
		case target.Lt(st.minVoteDiff):
			return domain.ErrTargetVoteUnderMin
		case rate.Lt(minRate):
			return domain.ErrRewardPerVoteTooLow
		case end == 0:
			return domain.ErrNullEndTimestamp
		case end < t.now || !votemath.IsWeekAligned(end):
			return domain.ErrInvalidEndTimestamp
		case end-t.now < domain.MinPledgeDuration:
			return domain.ErrDurationTooShort
		}

		needed, err := e.votesNeeded(t, params.Receiver, target, end)
		if err != nil {
			return err
		}
		reward, err := votemath.RewardFor(needed, rate)
		if err != nil {
			return err
		}
		if reward.IsZero() {
			return domain.ErrNullValue
		}
		if reward.Gt(domain.Amount(params.MaxTotalRewardAmount)) {
			return domain.ErrIncorrectMaxTotalRewards
		}

		if err := e.tokens.TransferFrom(t.ctx, params.RewardToken, e.address, caller, e.address, reward); err != nil {
			return err
		}

		id = uint64(len(st.pledges))
		st.pledges = append(st.pledges, domain.Pledge{
			ID:                   id,
			Owner:                caller,
			Receiver:             params.Receiver,
			RewardToken:          params.RewardToken,
			TargetVotes:          target,
			RewardPerVotePerWeek: rate,
			EndTimestamp:         end,
			AvailableRewards:     reward.Clone(),
		})
		st.userPledges[caller] = append(st.userPledges[caller], id)
		total := st.rewardTotal(params.RewardToken)
		st.rewardTokenTotal[params.RewardToken] = total.Add(total, reward)

		t.emit(domain.EventNewPledge,
			"creator", caller,
			"receiver", params.Receiver,
			"rewardToken", params.RewardToken,
			"id", id,
			"targetVotes", target,
			"rewardPerVote", rate,
			"endTimestamp", end,
		)
		return nil
	})
	return id, err
}

// votesNeeded reads the receiver's escrow state now and integrates the gap to
// target over [now, end].
func (e *Engine) votesNeeded(t *tx, receiver common.Address, target *uint256.Int, end uint64) (*uint256.Int, error) {
	balance, err := e.escrow.BalanceOf(t.ctx, receiver, t.now)
	if err != nil {
		return nil, fmt.Errorf("failed to read receiver balance: %w", err)
	}
	lockEnd, err := e.escrow.LockEnd(t.ctx, receiver)
	if err != nil {
		return nil, fmt.Errorf("failed to read receiver lock end: %w", err)
	}
	slope, err := e.escrow.LastSlope(t.ctx, receiver)
	if err != nil {
		return nil, fmt.Errorf("failed to read receiver slope: %w", err)
	}
	snapshot := votemath.Snapshot{Balance: balance, LockEnd: lockEnd, Slope: slope}
	return votemath.TotalVotesNeeded(snapshot, target, t.now, end)
}

// ownedPledge loads a pledge the caller created and that can still be
// modified, along with the minimum reward rate of its token.
func (e *Engine) ownedPledge(t *tx, id uint64) (*domain.Pledge, *uint256.Int, error) {
	st := e.st
	if id >= uint64(len(st.pledges)) {
		return nil, nil, domain.ErrInvalidPledgeID
	}
	p := &st.pledges[id]
	if p.Owner != t.caller {
		return nil, nil, domain.ErrNotPledgeCreator
	}
	if p.Closed {
		return nil, nil, domain.ErrPledgeClosed
	}
	if p.EndTimestamp <= t.now {
		return nil, nil, domain.ErrExpiredPledge
	}
	minRate, ok := st.minRewardPerVote[p.RewardToken]
	if !ok {
		return nil, nil, domain.ErrTokenNotWhitelisted
	}
	return p, minRate, nil
}

// fund pulls an additional reward budget for p from its creator.
func (e *Engine) fund(t *tx, p *domain.Pledge, added, maxTotal *uint256.Int) error {
	if added.IsZero() {
		return domain.ErrNullValue
	}
	if added.Gt(domain.Amount(maxTotal)) {
		return domain.ErrIncorrectMaxTotalRewards
	}
	if err := e.tokens.TransferFrom(t.ctx, p.RewardToken, e.address, t.caller, e.address, added); err != nil {
		return err
	}
	p.AvailableRewards.Add(p.AvailableRewards, added)
	total := e.st.rewardTotal(p.RewardToken)
	e.st.rewardTokenTotal[p.RewardToken] = total.Add(total, added)
	return nil
}

func (e *Engine) ExtendPledge(ctx context.Context, caller common.Address, id, newEnd uint64, maxTotalRewardAmount *uint256.Int) error {
	return e.execute(ctx, "extendPledge", caller, true, func(t *tx) error {
		p, minRate, err := e.ownedPledge(t, id)
		if err != nil {
			return err
		}
		oldEnd := p.EndTimestamp
		switch {
		case p.RewardPerVotePerWeek.Lt(minRate):
			return domain.ErrRewardPerVoteTooLow
		case newEnd == 0:
			return domain.ErrNullEndTimestamp
		case newEnd < oldEnd || !votemath.IsWeekAligned(newEnd):
			return domain.ErrInvalidEndTimestamp
		case newEnd-oldEnd < domain.MinPledgeDuration:
			return domain.ErrDurationTooShort
		}

		neededNew, err := e.votesNeeded(t, p.Receiver, p.TargetVotes, newEnd)
		if err != nil {
			return err
		}
		neededOld, err := e.votesNeeded(t, p.Receiver, p.TargetVotes, oldEnd)
		if err != nil {
			return err
		}
		added, err := votemath.RewardFor(votemath.SubClamp(neededNew, neededOld), p.RewardPerVotePerWeek)
		if err != nil {
			return err
		}
		if err := e.fund(t, p, added, maxTotalRewardAmount); err != nil {
			return err
		}
		p.EndTimestamp = newEnd

		t.emit(domain.EventExtendPledgeDuration, "pledgeId", id, "oldEndTimestamp", oldEnd, "newEndTimestamp", newEnd)
		return nil
	})
}

func (e *Engine) IncreasePledgeRewardPerVote(ctx context.Context, caller common.Address, id uint64, newRate, maxTotalRewardAmount *uint256.Int) error {
	return e.execute(ctx, "increasePledgeRewardPerVote", caller, true, func(t *tx) error {
		p, minRate, err := e.ownedPledge(t, id)
		if err != nil {
			return err
		}
		oldRate := p.RewardPerVotePerWeek.Clone()
		newRate = domain.Amount(newRate)
		if newRate.Lt(minRate) {
			return domain.ErrRewardPerVoteTooLow
		}
		if newRate.Cmp(oldRate) <= 0 {
			return domain.ErrRewardsPerVotesTooLow
		}

		needed, err := e.votesNeeded(t, p.Receiver, p.TargetVotes, p.EndTimestamp)
		if err != nil {
			return err
		}
		added, err := votemath.RewardFor(needed, new(uint256.Int).Sub(newRate, oldRate))
		if err != nil {
			return err
		}
		if err := e.fund(t, p, added, maxTotalRewardAmount); err != nil {
			return err
		}
		p.RewardPerVotePerWeek = newRate

		t.emit(domain.EventIncreasePledgeRewardPerVote, "pledgeId", id, "oldRewardPerVote", oldRate, "newRewardPerVote", newRate)
		return nil
	})
}

// Pledge delegates amount of the caller's power to the pledge receiver until
// end (0 for the campaign end) and pays the reward for it immediately.
func (e *Engine) Pledge(ctx context.Context, caller common.Address, id uint64, amount *uint256.Int, end uint64) (domain.JoinRecord, error) {
	var rec domain.JoinRecord
	err := e.execute(ctx, "pledge", caller, true, func(t *tx) error {
		p, err := e.livePledge(t, id)
		if err != nil {
			return err
		}
		amount = domain.Amount(amount)
		if amount.IsZero() {
			return domain.ErrNullValue
		}
		rec, err = e.join(t, p, amount, end)
		return err
	})
	return rec, err
}

// PledgePercent is Pledge with amount given in basis points of the caller's
// undelegated balance.
func (e *Engine) PledgePercent(ctx context.Context, caller common.Address, id, percent, end uint64) (domain.JoinRecord, error) {
	var rec domain.JoinRecord
	err := e.execute(ctx, "pledgePercent", caller, true, func(t *tx) error {
		p, err := e.livePledge(t, id)
		if err != nil {
			return err
		}
		if percent > domain.MaxBPS {
			return domain.ErrPercentOverMax
		}
		balance, err := e.escrow.BalanceOf(t.ctx, caller, t.now)
		if err != nil {
			return fmt.Errorf("failed to read delegator balance: %w", err)
		}
		delegated, err := e.boosts.DelegatedBalance(t.ctx, caller)
		if err != nil {
			return fmt.Errorf("failed to read delegated balance: %w", err)
		}
		amount, err := votemath.ApplyBPS(votemath.SubClamp(balance, delegated), percent)
		if err != nil {
			return err
		}
		if amount.IsZero() {
			return domain.ErrNullValue
		}
		rec, err = e.join(t, p, amount, end)
		return err
	})
	return rec, err
}

func (e *Engine) livePledge(t *tx, id uint64) (*domain.Pledge, error) {
	st := e.st
	if id >= uint64(len(st.pledges)) {
		return nil, domain.ErrInvalidPledgeID
	}
	p := &st.pledges[id]
	if p.Closed {
		return nil, domain.ErrPledgeClosed
	}
	if p.EndTimestamp <= t.now {
		return nil, domain.ErrExpiredPledge
	}
	return p, nil
}

func (e *Engine) join(t *tx, p *domain.Pledge, amount *uint256.Int, end uint64) (domain.JoinRecord, error) {
	st := e.st
	if end == 0 {
		end = p.EndTimestamp
	}
	if !votemath.IsWeekAligned(end) || end > p.EndTimestamp || end <= t.now {
		return domain.JoinRecord{}, domain.ErrInvalidEndTimestamp
	}
	duration := end - t.now
	if duration < domain.MinDelegationDuration {
		return domain.JoinRecord{}, domain.ErrDurationTooShort
	}

	allowance, err := e.boosts.Allowance(t.ctx, t.caller, e.address)
	if err != nil {
		return domain.JoinRecord{}, fmt.Errorf("failed to read operator allowance: %w", err)
	}
	if allowance.Lt(amount) {
		return domain.JoinRecord{}, domain.ErrInsufficientAllowance
	}
	balance, err := e.escrow.BalanceOf(t.ctx, t.caller, t.now)
	if err != nil {
		return domain.JoinRecord{}, fmt.Errorf("failed to read delegator balance: %w", err)
	}
	delegated, err := e.boosts.DelegatedBalance(t.ctx, t.caller)
	if err != nil {
		return domain.JoinRecord{}, fmt.Errorf("failed to read delegated balance: %w", err)
	}
	if amount.Gt(votemath.SubClamp(balance, delegated)) {
		return domain.JoinRecord{}, domain.ErrCannotDelegate
	}

	point := votemath.NewBoostPoint(amount, duration)
	if point.Bias.IsZero() {
		return domain.JoinRecord{}, domain.ErrEmptyBoost
	}

	boostID, err := e.boosts.CreateBoost(t.ctx, domain.BoostRequest{
		From:    t.caller,
		To:      p.Receiver,
		Amount:  amount,
		EndTime: end,
		Sponsor: e.address,
	})
	if err != nil {
		return domain.JoinRecord{}, collapse(err, "create boost")
	}

	adjusted, err := e.boosts.AdjustedBalanceOf(t.ctx, p.Receiver)
	if err != nil {
		return domain.JoinRecord{}, fmt.Errorf("failed to read receiver balance: %w", err)
	}
	if adjusted.Gt(p.TargetVotes) {
		return domain.JoinRecord{}, domain.ErrTargetVotesOverflow
	}

	area, err := votemath.BoostArea(point.Bias, point.Duration)
	if err != nil {
		return domain.JoinRecord{}, err
	}
	reward, err := votemath.RewardFor(area, p.RewardPerVotePerWeek)
	if err != nil {
		return domain.JoinRecord{}, err
	}
	if reward.Gt(p.AvailableRewards) {
		return domain.JoinRecord{}, domain.ErrRewardsBalanceTooLow
	}
	chestFee, err := votemath.ApplyBPS(reward, st.protocolFeeRatio)
	if err != nil {
		return domain.JoinRecord{}, err
	}

	p.AvailableRewards.Sub(p.AvailableRewards, reward)
	total := st.rewardTotal(p.RewardToken)
	st.rewardTokenTotal[p.RewardToken] = total.Sub(total, reward)

	if !chestFee.IsZero() {
		if err := e.tokens.Transfer(t.ctx, p.RewardToken, e.address, st.chest, chestFee); err != nil {
			return domain.JoinRecord{}, fmt.Errorf("failed to pay protocol fee: %w", err)
		}
	}
	delegatorReward := new(uint256.Int).Sub(reward, chestFee)
	if !delegatorReward.IsZero() {
		if err := e.tokens.Transfer(t.ctx, p.RewardToken, e.address, t.caller, delegatorReward); err != nil {
			return domain.JoinRecord{}, fmt.Errorf("failed to pay pledge reward: %w", err)
		}
	}

	t.emit(domain.EventPledged, "pledgeId", p.ID, "user", t.caller, "amount", point.Bias, "endTimestamp", end)
	t.afterCommit(metrics.PledgesJoined.Inc)

	return domain.JoinRecord{
		PledgeID:  p.ID,
		Delegator: t.caller,
		BoostID:   boostID,
		Point:     point,
		EndTime:   end,
		Reward:    reward,
		ChestFee:  chestFee,
	}, nil
}

// ClosePledge ends a campaign and returns its unspent rewards to receiver.
func (e *Engine) ClosePledge(ctx context.Context, caller common.Address, id uint64, receiver common.Address) (*uint256.Int, error) {
	var retrieved *uint256.Int
	err := e.execute(ctx, "closePledge", caller, true, func(t *tx) error {
		st := e.st
		if id >= uint64(len(st.pledges)) {
			return domain.ErrInvalidPledgeID
		}
		p := &st.pledges[id]
		if p.Owner != caller {
			return domain.ErrNotPledgeCreator
		}
		if p.Closed {
			return domain.ErrPledgeAlreadyClosed
		}
		if domain.IsZeroAddress(receiver) || receiver == e.address {
			return domain.ErrInvalidValue
		}

		p.Closed = true
		retrieved = p.AvailableRewards.Clone()
		p.AvailableRewards = new(uint256.Int)
		total := st.rewardTotal(p.RewardToken)
		st.rewardTokenTotal[p.RewardToken] = total.Sub(total, retrieved)

		if !retrieved.IsZero() {
			if err := e.tokens.Transfer(t.ctx, p.RewardToken, e.address, receiver, retrieved); err != nil {
				return fmt.Errorf("failed to retrieve pledge rewards: %w", err)
			}
		}

		t.emit(domain.EventClosePledge, "pledgeId", id)
		t.emit(domain.EventRetrievedPledgeRewards, "pledgeId", id, "receiver", receiver, "amount", retrieved)
		return nil
	})
	return retrieved, err
}

func (e *Engine) GetPledge(ctx context.Context, id uint64) (domain.Pledge, error) {
	var p domain.Pledge
	err := e.read(ctx, func(t *tx) error {
		if id >= uint64(len(e.st.pledges)) {
			return domain.ErrInvalidPledgeID
		}
		p = e.st.pledges[id].Clone()
		return nil
	})
	return p, err
}

func (e *Engine) Pledges(ctx context.Context) []domain.Pledge {
	var out []domain.Pledge
	_ = e.read(ctx, func(t *tx) error {
		out = make([]domain.Pledge, len(e.st.pledges))
		for i, p := range e.st.pledges {
			out[i] = p.Clone()
		}
		return nil
	})
	return out
}

func (e *Engine) UserPledges(ctx context.Context, owner common.Address) []uint64 {
	var ids []uint64
	_ = e.read(ctx, func(t *tx) error {
		ids = append([]uint64{}, e.st.userPledges[owner]...)
		return nil
	})
	return ids
}

func (e *Engine) NextPledgeIndex(ctx context.Context) uint64 {
	var n uint64
	_ = e.read(ctx, func(t *tx) error {
		n = uint64(len(e.st.pledges))
		return nil
	})
	return n
}

func (e *Engine) RewardTokenTotalAmount(ctx context.Context, token common.Address) *uint256.Int {
	var total *uint256.Int
	_ = e.read(ctx, func(t *tx) error {
		total = e.st.rewardTotal(token)
		return nil
	})
	return total
}

// MinAmountRewardToken is the minimum reward rate of a whitelisted token, or
// zero when the token is not whitelisted.
func (e *Engine) MinAmountRewardToken(ctx context.Context, token common.Address) *uint256.Int {
	var v *uint256.Int
	_ = e.read(ctx, func(t *tx) error {
		v = domain.Amount(e.st.minRewardPerVote[token])
		return nil
	})
	return v
}
