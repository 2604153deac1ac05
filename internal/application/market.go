package application

import (
	"context"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/q4ZAr/boost-market/internal/domain"
	"github.com/q4ZAr/boost-market/internal/votemath"
	"github.com/q4ZAr/boost-market/pkg/metrics"
)

func bps(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// Register lists the caller's offer. The engine must be an unlimited operator
// of the caller on the delegation primitive.
func (e *Engine) Register(ctx context.Context, caller common.Address, terms domain.OfferTerms) error {
	return e.execute(ctx, "register", caller, true, func(t *tx) error {
		st := e.st
		if st.isRegistered(caller) {
			return domain.ErrAlreadyRegistered
		}
		allowance, err := e.boosts.Allowance(t.ctx, caller, e.address)
		if err != nil {
			return fmt.Errorf("failed to read operator allowance: %w", err)
		}
		if !allowance.Eq(domain.MaxUint256()) {
			return domain.ErrWardenNotOperator
		}

		offer, err := e.buildOffer(t, caller, terms)
		if err != nil {
			return err
		}
		st.addOffer(offer)

		t.emit(domain.EventRegistred, "user", caller, "price", offer.PricePerVote)
		return nil
	})
}

func (e *Engine) UpdateOffer(ctx context.Context, caller common.Address, terms domain.OfferTerms) error {
	return e.execute(ctx, "updateOffer", caller, true, func(t *tx) error {
		st := e.st
		if !st.isRegistered(caller) {
			return domain.ErrNotRegistered
		}

		offer, err := e.buildOffer(t, caller, terms)
		if err != nil {
			return err
		}
		st.setOffer(offer)

		t.emit(domain.EventUpdateOffer, "user", caller, "price", offer.PricePerVote)
		return nil
	})
}

func (e *Engine) UpdateOfferPrice(ctx context.Context, caller common.Address, price *uint256.Int, useAdvisedPrice bool) error {
	return e.execute(ctx, "updateOfferPrice", caller, true, func(t *tx) error {
		st := e.st
		offer, ok := st.offerOf(caller)
		if !ok {
			return domain.ErrNotRegistered
		}
		price = domain.Amount(price)
		if price.IsZero() && !useAdvisedPrice {
			return domain.ErrNullPrice
		}

		offer.PricePerVote = price
		offer.UseAdvisedPrice = useAdvisedPrice
		st.setOffer(offer)

		t.emit(domain.EventUpdateOfferPrice, "user", caller, "price", price)
		return nil
	})
}

// Quit delists the caller, paying out any fees it earned first.
func (e *Engine) Quit(ctx context.Context, caller common.Address) error {
	return e.execute(ctx, "quit", caller, true, func(t *tx) error {
		st := e.st
		if !st.isRegistered(caller) {
			return domain.ErrNotRegistered
		}

		if fees := st.earned(caller); !fees.IsZero() {
			if st.claimBlocked {
				return domain.ErrClaimBlocked
			}
			if err := e.payFees(t, caller, fees); err != nil {
				return err
			}
		}
		st.removeOffer(caller)

		t.emit(domain.EventQuit, "user", caller)
		return nil
	})
}

func (e *Engine) buildOffer(t *tx, user common.Address, terms domain.OfferTerms) (domain.BoostOffer, error) {
	st := e.st
	price := domain.Amount(terms.PricePerVote)
	switch {
	case price.IsZero() && !terms.UseAdvisedPrice:
		return domain.BoostOffer{}, domain.ErrNullPrice
	case terms.MinPerc > terms.MaxPerc:
		return domain.BoostOffer{}, domain.ErrMinPercOverMaxPerc
	case terms.MaxDuration == 0:
		return domain.BoostOffer{}, domain.ErrNullMaxDuration
	case terms.MaxPerc > domain.MaxBPS:
		return domain.BoostOffer{}, domain.ErrMaxPercTooHigh
	case terms.MinPerc < st.minPercRequired:
		return domain.BoostOffer{}, domain.ErrMinPercTooLow
	}

	expiry := terms.ExpiryTime
	if expiry == 0 {
		lockEnd, err := e.escrow.LockEnd(t.ctx, user)
		if err != nil {
			return domain.BoostOffer{}, fmt.Errorf("failed to read lock end: %w", err)
		}
		expiry = lockEnd
	} else if expiry < t.now+domain.Week {
		return domain.BoostOffer{}, domain.ErrIncorrectExpiry
	}

	return domain.BoostOffer{
		User:            user,
		PricePerVote:    price,
		UseAdvisedPrice: terms.UseAdvisedPrice,
		MaxDuration:     terms.MaxDuration,
		ExpiryTime:      expiry,
		MinPerc:         terms.MinPerc,
		MaxPerc:         terms.MaxPerc,
	}, nil
}

func (e *Engine) effectivePrice(o domain.BoostOffer) *uint256.Int {
	if o.UseAdvisedPrice {
		return e.st.advisedPrice.Clone()
	}
	return o.PricePerVote.Clone()
}

// EstimateFees quotes a boost of amount power from seller for weeks weeks,
// ending on the first week boundary after now + weeks.
func (e *Engine) EstimateFees(ctx context.Context, seller common.Address, amount *uint256.Int, weeks uint64) (domain.Quote, error) {
	var q domain.Quote
	err := e.read(ctx, func(t *tx) error {
		var err error
		q, err = e.estimate(t, seller, amount, weeks)
		return err
	})
	return q, err
}

func (e *Engine) EstimateFeesPercent(ctx context.Context, seller common.Address, percent, weeks uint64) (domain.Quote, error) {
	var q domain.Quote
	err := e.read(ctx, func(t *tx) error {
		amount, err := e.amountFromPercent(t, seller, percent)
		if err != nil {
			return err
		}
		q, err = e.estimate(t, seller, amount, weeks)
		return err
	})
	return q, err
}

func (e *Engine) amountFromPercent(t *tx, seller common.Address, percent uint64) (*uint256.Int, error) {
	if percent > domain.MaxBPS {
		return nil, domain.ErrPercentOverMax
	}
	balance, err := e.escrow.BalanceOf(t.ctx, seller, t.now)
	if err != nil {
		return nil, fmt.Errorf("failed to read seller balance: %w", err)
	}
	return votemath.ApplyBPS(balance, percent)
}

func (e *Engine) estimate(t *tx, seller common.Address, amount *uint256.Int, weeks uint64) (domain.Quote, error) {
	st := e.st
	if domain.IsZeroAddress(seller) {
		return domain.Quote{}, domain.ErrZeroAddress
	}
	offer, ok := st.offerOf(seller)
	if !ok {
		return domain.Quote{}, domain.ErrNotRegistered
	}
	amount = domain.Amount(amount)
	if amount.IsZero() {
		return domain.Quote{}, domain.ErrNullValue
	}
	if t.now > offer.ExpiryTime {
		return domain.Quote{}, domain.ErrOfferExpired
	}
	if weeks > offer.MaxDuration {
		return domain.Quote{}, domain.ErrDurationOverMaxDuration
	}
	if weeks > (math.MaxUint64-t.now)/domain.Week {
		return domain.Quote{}, domain.ErrArithmeticOverflow
	}
	if weeks*domain.Week < st.minDelegationTime {
		return domain.Quote{}, domain.ErrDurationTooShort
	}

	balance, err := e.escrow.BalanceOf(t.ctx, seller, t.now)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("failed to read seller balance: %w", err)
	}
	if balance.IsZero() {
		return domain.Quote{}, domain.ErrPercentOverMax
	}
	percent, err := votemath.PercentOf(amount, balance)
	if err != nil {
		return domain.Quote{}, err
	}
	switch {
	case percent.Lt(bps(st.minPercRequired)):
		return domain.Quote{}, domain.ErrPercentUnderMinRequired
	case percent.Gt(bps(domain.MaxBPS)):
		return domain.Quote{}, domain.ErrPercentOverMax
	case percent.Lt(bps(offer.MinPerc)) || percent.Gt(bps(offer.MaxPerc)):
		return domain.Quote{}, domain.ErrPercentOutOfferBonds
	}

	expiry := votemath.RoundUpToWeek(t.now + weeks*domain.Week)
	price := e.effectivePrice(offer)
	fee, err := votemath.FeeFor(amount, price, expiry-t.now)
	if err != nil {
		return domain.Quote{}, err
	}

	return domain.Quote{
		Seller:       seller,
		Amount:       amount,
		PricePerVote: price,
		Fee:          fee,
		Expiry:       expiry,
	}, nil
}

// CanDelegate reports whether seller can currently back a boost of amount
// under its offer. It never fails on business rules, only on collaborator errors.
func (e *Engine) CanDelegate(ctx context.Context, seller common.Address, amount *uint256.Int) (bool, error) {
	var ok bool
	err := e.read(ctx, func(t *tx) error {
		balance, err := e.escrow.BalanceOf(t.ctx, seller, t.now)
		if err != nil {
			return fmt.Errorf("failed to read seller balance: %w", err)
		}
		if balance.IsZero() {
			return nil
		}
		percent, err := votemath.PercentOf(domain.Amount(amount), balance)
		if err != nil {
			return nil
		}
		ok, err = e.canDelegate(t, seller, domain.Amount(amount), percent)
		return err
	})
	return ok, err
}

func (e *Engine) CanDelegatePercent(ctx context.Context, seller common.Address, percent uint64) (bool, error) {
	var ok bool
	err := e.read(ctx, func(t *tx) error {
		if percent > domain.MaxBPS {
			return nil
		}
		amount, err := e.amountFromPercent(t, seller, percent)
		if err != nil {
			return err
		}
		ok, err = e.canDelegate(t, seller, amount, bps(percent))
		return err
	})
	return ok, err
}

func (e *Engine) canDelegate(t *tx, seller common.Address, amount, percent *uint256.Int) (bool, error) {
	offer, ok := e.st.offerOf(seller)
	if !ok {
		return false, nil
	}
	allowance, err := e.boosts.Allowance(t.ctx, seller, e.address)
	if err != nil {
		return false, fmt.Errorf("failed to read operator allowance: %w", err)
	}
	if !allowance.Eq(domain.MaxUint256()) {
		return false, nil
	}
	if percent.Lt(bps(offer.MinPerc)) || percent.Gt(bps(offer.MaxPerc)) {
		return false, nil
	}

	balance, err := e.escrow.BalanceOf(t.ctx, seller, t.now)
	if err != nil {
		return false, fmt.Errorf("failed to read seller balance: %w", err)
	}
	delegated, err := e.boosts.DelegatedBalance(t.ctx, seller)
	if err != nil {
		return false, fmt.Errorf("failed to read delegated balance: %w", err)
	}
	blocked, err := votemath.ApplyBPS(balance, domain.MaxBPS-offer.MaxPerc)
	if err != nil {
		return false, err
	}
	available := votemath.SubClamp(votemath.SubClamp(balance, delegated), blocked)
	return amount.Cmp(available) <= 0, nil
}

// BuyDelegationBoost pays seller's fee out of the caller's fee-token
// allowance and opens a boost from seller to receiver.
func (e *Engine) BuyDelegationBoost(ctx context.Context, caller, seller, receiver common.Address, amount *uint256.Int, weeks uint64, maxFee *uint256.Int) (domain.BoostPurchase, error) {
	var purchase domain.BoostPurchase
	err := e.execute(ctx, "buyDelegationBoost", caller, true, func(t *tx) error {
		var err error
		purchase, err = e.buy(t, seller, receiver, domain.Amount(amount), weeks, domain.Amount(maxFee))
		return err
	})
	return purchase, err
}

func (e *Engine) BuyDelegationBoostPercent(ctx context.Context, caller, seller, receiver common.Address, percent, weeks uint64, maxFee *uint256.Int) (domain.BoostPurchase, error) {
	var purchase domain.BoostPurchase
	err := e.execute(ctx, "buyDelegationBoostPercent", caller, true, func(t *tx) error {
		amount, err := e.amountFromPercent(t, seller, percent)
		if err != nil {
			return err
		}
		purchase, err = e.buy(t, seller, receiver, amount, weeks, domain.Amount(maxFee))
		return err
	})
	return purchase, err
}

func (e *Engine) buy(t *tx, seller, receiver common.Address, amount *uint256.Int, weeks uint64, maxFee *uint256.Int) (domain.BoostPurchase, error) {
	st := e.st
	if domain.IsZeroAddress(seller) || domain.IsZeroAddress(receiver) {
		return domain.BoostPurchase{}, domain.ErrZeroAddress
	}

	quote, err := e.estimate(t, seller, amount, weeks)
	if err != nil {
		return domain.BoostPurchase{}, err
	}
	if maxFee.IsZero() {
		return domain.BoostPurchase{}, domain.ErrNullFees
	}
	if quote.Fee.Gt(maxFee) {
		return domain.BoostPurchase{}, domain.ErrFeesTooLow
	}

	balance, err := e.escrow.BalanceOf(t.ctx, seller, t.now)
	if err != nil {
		return domain.BoostPurchase{}, fmt.Errorf("failed to read seller balance: %w", err)
	}
	percent, err := votemath.PercentOf(amount, balance)
	if err != nil {
		return domain.BoostPurchase{}, err
	}
	ok, err := e.canDelegate(t, seller, amount, percent)
	if err != nil {
		return domain.BoostPurchase{}, err
	}
	if !ok {
		return domain.BoostPurchase{}, domain.ErrCannotDelegate
	}

	if err := e.tokens.TransferFrom(t.ctx, st.feeToken, e.address, t.caller, e.address, quote.Fee); err != nil {
		return domain.BoostPurchase{}, err
	}
	reserveCut, err := votemath.ApplyBPS(quote.Fee, st.feeReserveRatio)
	if err != nil {
		return domain.BoostPurchase{}, err
	}
	st.reserveAmount.Add(st.reserveAmount, reserveCut)
	earned := st.earned(seller)
	st.earnedFees[seller] = earned.Add(earned, new(uint256.Int).Sub(quote.Fee, reserveCut))

	boostID, err := e.boosts.CreateBoost(t.ctx, domain.BoostRequest{
		From:    seller,
		To:      receiver,
		Amount:  amount,
		EndTime: quote.Expiry,
		Sponsor: e.address,
	})
	if err != nil {
		return domain.BoostPurchase{}, collapse(err, "create boost")
	}

	t.emit(domain.EventBoostPurchase,
		"delegator", seller,
		"receiver", receiver,
		"tokenId", boostID,
		"amount", amount,
		"price", quote.PricePerVote,
		"paidFeeAmount", quote.Fee,
		"expiryTime", quote.Expiry,
	)
	fee := tokenFloat(quote.Fee)
	t.afterCommit(func() {
		metrics.BoostsPurchased.Inc()
		metrics.FeesCollected.Add(fee)
	})

	return domain.BoostPurchase{
		Quote:    quote,
		Buyer:    t.caller,
		Receiver: receiver,
		BoostID:  boostID,
	}, nil
}

func (e *Engine) Offer(ctx context.Context, seller common.Address) (domain.BoostOffer, error) {
	var offer domain.BoostOffer
	err := e.read(ctx, func(t *tx) error {
		o, ok := e.st.offerOf(seller)
		if !ok {
			return domain.ErrNotRegistered
		}
		offer = o.Clone()
		return nil
	})
	return offer, err
}

// Offers lists every listed offer in index order, without the sentinel.
func (e *Engine) Offers(ctx context.Context) []domain.BoostOffer {
	var offers []domain.BoostOffer
	_ = e.read(ctx, func(t *tx) error {
		offers = make([]domain.BoostOffer, 0, len(e.st.offers)-1)
		for _, o := range e.st.offers[1:] {
			offers = append(offers, o.Clone())
		}
		return nil
	})
	return offers
}

// OffersIndex is the length of the offer list, sentinel included.
func (e *Engine) OffersIndex(ctx context.Context) int {
	var n int
	_ = e.read(ctx, func(t *tx) error {
		n = len(e.st.offers)
		return nil
	})
	return n
}

func (e *Engine) UserIndex(ctx context.Context, user common.Address) int {
	var idx int
	_ = e.read(ctx, func(t *tx) error {
		idx = e.st.userIndex[user]
		return nil
	})
	return idx
}

func (e *Engine) AdvisedPrice(ctx context.Context) *uint256.Int {
	var price *uint256.Int
	_ = e.read(ctx, func(t *tx) error {
		price = e.st.advisedPrice.Clone()
		return nil
	})
	return price
}
