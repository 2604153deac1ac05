package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BoostOffer is a seller's standing terms. MaxDuration is counted in weeks,
// MinPerc and MaxPerc in basis points of the seller's voting balance.
type BoostOffer struct {
	User            common.Address
	PricePerVote    *uint256.Int
	UseAdvisedPrice bool
	MaxDuration     uint64
	ExpiryTime      uint64
	MinPerc         uint64
	MaxPerc         uint64
}

func (o BoostOffer) Clone() BoostOffer {
	o.PricePerVote = Amount(o.PricePerVote)
	return o
}

// OfferTerms are the caller-supplied fields of register and updateOffer.
type OfferTerms struct {
	PricePerVote    *uint256.Int
	MaxDuration     uint64
	ExpiryTime      uint64
	MinPerc         uint64
	MaxPerc         uint64
	UseAdvisedPrice bool
}

// Quote is the result of a fee estimate; it is also what a purchase settles.
type Quote struct {
	Seller       common.Address
	Amount       *uint256.Int
	PricePerVote *uint256.Int
	Fee          *uint256.Int
	Expiry       uint64
}

type BoostPurchase struct {
	Quote
	Buyer    common.Address
	Receiver common.Address
	BoostID  uint64
}
