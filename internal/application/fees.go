package application

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/q4ZAr/boost-market/internal/domain"
)

// Claim pays the caller everything it earned from boost sales.
func (e *Engine) Claim(ctx context.Context, caller common.Address) (*uint256.Int, error) {
	var paid *uint256.Int
	err := e.execute(ctx, "claim", caller, true, func(t *tx) error {
		st := e.st
		if st.claimBlocked {
			return domain.ErrClaimBlocked
		}
		amount := st.earned(caller)
		if amount.IsZero() {
			return domain.ErrNullClaimAmount
		}
		paid = amount
		return e.payFees(t, caller, amount)
	})
	return paid, err
}

// ClaimAmount pays part of the caller's earned fees.
func (e *Engine) ClaimAmount(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	return e.execute(ctx, "claimAmount", caller, true, func(t *tx) error {
		st := e.st
		if st.claimBlocked {
			return domain.ErrClaimBlocked
		}
		amount = domain.Amount(amount)
		if amount.Gt(st.earned(caller)) {
			return domain.ErrAmountTooHigh
		}
		if amount.IsZero() {
			return domain.ErrNullClaimAmount
		}
		return e.payFees(t, caller, amount)
	})
}

func (e *Engine) payFees(t *tx, user common.Address, amount *uint256.Int) error {
	st := e.st
	earned := st.earned(user)
	st.earnedFees[user] = earned.Sub(earned, amount)
	if err := e.tokens.Transfer(t.ctx, st.feeToken, e.address, user, amount); err != nil {
		return fmt.Errorf("failed to pay fees: %w", err)
	}
	t.emit(domain.EventClaim, "user", user, "amount", amount)
	return nil
}

func (e *Engine) EarnedFees(ctx context.Context, seller common.Address) *uint256.Int {
	var fees *uint256.Int
	_ = e.read(ctx, func(t *tx) error {
		fees = e.st.earned(seller)
		return nil
	})
	return fees
}

// DepositToReserve moves amount of fee token from from into the reserve.
func (e *Engine) DepositToReserve(ctx context.Context, caller, from common.Address, amount *uint256.Int) error {
	return e.execute(ctx, "depositToReserve", caller, true, func(t *tx) error {
		st := e.st
		if !st.isAllowed(caller) {
			return domain.ErrCallerNotAllowed
		}
		amount = domain.Amount(amount)
		if amount.IsZero() {
			return domain.ErrNullValue
		}
		if err := e.tokens.TransferFrom(t.ctx, st.feeToken, e.address, from, e.address, amount); err != nil {
			return err
		}
		st.reserveAmount.Add(st.reserveAmount, amount)

		t.emit(domain.EventReserveDeposit, "from", from, "amount", amount)
		return nil
	})
}

// WithdrawFromReserve pays amount out of the reserve to the caller.
func (e *Engine) WithdrawFromReserve(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	return e.execute(ctx, "withdrawFromReserve", caller, true, func(t *tx) error {
		st := e.st
		if !st.isAllowed(caller) {
			return domain.ErrCallerNotAllowed
		}
		amount = domain.Amount(amount)
		if amount.Gt(st.reserveAmount) {
			return domain.ErrReserveTooLow
		}
		st.reserveAmount.Sub(st.reserveAmount, amount)
		if err := e.tokens.Transfer(t.ctx, st.feeToken, e.address, caller, amount); err != nil {
			return fmt.Errorf("failed to pay reserve: %w", err)
		}

		t.emit(domain.EventReserveWithdraw, "to", caller, "amount", amount)
		return nil
	})
}

func (e *Engine) ReserveAmount(ctx context.Context) *uint256.Int {
	var reserve *uint256.Int
	_ = e.read(ctx, func(t *tx) error {
		reserve = e.st.reserveAmount.Clone()
		return nil
	})
	return reserve
}

// WithdrawERC20 sends amount of token held by the engine to the owner.
func (e *Engine) WithdrawERC20(ctx context.Context, caller, token common.Address, amount *uint256.Int) error {
	return e.execute(ctx, "withdrawERC20", caller, false, func(t *tx) error {
		if err := e.checkRecoverable(caller, token); err != nil {
			return err
		}
		return e.recover(t, token, domain.Amount(amount))
	})
}

// RecoverERC20 sends the engine's whole balance of token to the owner.
func (e *Engine) RecoverERC20(ctx context.Context, caller, token common.Address) (*uint256.Int, error) {
	var recovered *uint256.Int
	err := e.execute(ctx, "recoverERC20", caller, false, func(t *tx) error {
		if err := e.checkRecoverable(caller, token); err != nil {
			return err
		}
		balance, err := e.tokens.BalanceOf(t.ctx, token, e.address)
		if err != nil {
			return fmt.Errorf("failed to read engine balance: %w", err)
		}
		if balance.IsZero() {
			return domain.ErrNullValue
		}
		recovered = balance
		return e.recover(t, token, balance)
	})
	return recovered, err
}

func (e *Engine) checkRecoverable(caller, token common.Address) error {
	st := e.st
	if caller != st.owner {
		return domain.ErrCallerNotOwner
	}
	if token == st.feeToken && !st.claimBlocked {
		return domain.ErrCannotWithdrawFeeToken
	}
	if !st.rewardTotal(token).IsZero() {
		return domain.ErrCannotRecoverToken
	}
	return nil
}

func (e *Engine) recover(t *tx, token common.Address, amount *uint256.Int) error {
	if err := e.tokens.Transfer(t.ctx, token, e.address, e.st.owner, amount); err != nil {
		return err
	}
	t.emit(domain.EventTokenRecovered, "token", token, "amount", amount)
	return nil
}
