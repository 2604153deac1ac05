package domain

import "errors"

// Revert is a rejected operation. The reason is the symbolic name reported to callers.
type Revert struct {
	reason string
}

func NewRevert(reason string) *Revert {
	return &Revert{reason: reason}
}

func (e *Revert) Error() string {
	return e.reason
}

func (e *Revert) Reason() string {
	return e.reason
}

func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var r *Revert
	return errors.As(err, &r)
}

// ReasonOf returns the revert reason carried by err, or "" for other errors.
func ReasonOf(err error) string {
	var r *Revert
	if errors.As(err, &r) {
		return r.reason
	}
	return ""
}

var (
	// validation
	ErrZeroAddress              = NewRevert("ZeroAddress")
	ErrNullValue                = NewRevert("NullValue")
	ErrInvalidValue             = NewRevert("InvalidValue")
	ErrInvalidAddress           = NewRevert("InvalidAddress")
	ErrNullPrice                = NewRevert("NullPrice")
	ErrNullMaxDuration          = NewRevert("NullMaxDuration")
	ErrMinPercOverMaxPerc       = NewRevert("MinPercOverMaxPerc")
	ErrMaxPercTooHigh           = NewRevert("MaxPercTooHigh")
	ErrMinPercTooLow            = NewRevert("MinPercTooLow")
	ErrIncorrectExpiry          = NewRevert("IncorrectExpiry")
	ErrPercentUnderMinRequired  = NewRevert("PercentUnderMinRequired")
	ErrPercentOverMax           = NewRevert("PercentOverMax")
	ErrPercentOutOfferBonds     = NewRevert("PercentOutOfferBonds")
	ErrDurationTooShort         = NewRevert("DurationTooShort")
	ErrDurationOverMaxDuration  = NewRevert("DurationOverOfferMaxDuration")
	ErrNullEndTimestamp         = NewRevert("NullEndTimestamp")
	ErrInvalidEndTimestamp      = NewRevert("InvalidEndTimestamp")
	ErrEmptyArray               = NewRevert("EmptyArray")
	ErrUnequalArraySizes        = NewRevert("UnequalArraySizes")
	ErrTargetVoteUnderMin       = NewRevert("TargetVoteUnderMin")
	ErrRewardPerVoteTooLow      = NewRevert("RewardPerVoteTooLow")
	ErrRewardsPerVotesTooLow    = NewRevert("RewardsPerVotesTooLow")
	ErrAlreadyAllowedToken      = NewRevert("AlreadyAllowedToken")
	ErrNotAllowedToken          = NewRevert("NotAllowedToken")
	ErrArithmeticOverflow       = NewRevert("ArithmeticOverflow")
	ErrAmountTooHigh            = NewRevert("AmountTooHigh")
	ErrIncorrectMaxTotalRewards = NewRevert("IncorrectMaxTotalRewardAmount")

	// state
	ErrAlreadyRegistered      = NewRevert("AlreadyRegistered")
	ErrNotRegistered          = NewRevert("NotRegistered")
	ErrWardenNotOperator      = NewRevert("WardenNotOperator")
	ErrOfferExpired           = NewRevert("OfferExpired")
	ErrClaimBlocked           = NewRevert("ClaimBlocked")
	ErrNullClaimAmount        = NewRevert("NullClaimAmount")
	ErrInvalidPledgeID        = NewRevert("InvalidPledgeID")
	ErrNotPledgeCreator       = NewRevert("NotPledgeCreator")
	ErrPledgeClosed           = NewRevert("PledgeClosed")
	ErrPledgeAlreadyClosed    = NewRevert("PledgeAlreadyClosed")
	ErrExpiredPledge          = NewRevert("ExpiredPledge")
	ErrTokenNotWhitelisted    = NewRevert("TokenNotWhitelisted")
	ErrPaused                 = NewRevert("Paused")
	ErrNotPaused              = NewRevert("NotPaused")
	ErrCallerNotOwner         = NewRevert("CallerNotOwner")
	ErrCallerNotManager       = NewRevert("CallerNotManager")
	ErrCallerNotAllowed       = NewRevert("CallerNotAllowed")
	ErrCannotWithdrawFeeToken = NewRevert("CannotWithdrawFeeToken")
	ErrCannotRecoverToken     = NewRevert("CannotRecoverToken")

	// economic
	ErrNullFees              = NewRevert("NullFees")
	ErrFeesTooLow            = NewRevert("FeesTooLow")
	ErrCannotDelegate        = NewRevert("CannotDelegate")
	ErrReserveTooLow         = NewRevert("ReserveTooLow")
	ErrTargetVotesOverflow   = NewRevert("TargetVotesOverflow")
	ErrEmptyBoost            = NewRevert("EmptyBoost")
	ErrRewardsBalanceTooLow  = NewRevert("RewardsBalanceTooLow")
	ErrInsufficientAllowance = NewRevert("InsufficientAllowance")
	ErrInsufficientBalance   = NewRevert("InsufficientBalance")
)
