package http

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/q4ZAr/boost-market/internal/application"
	"github.com/q4ZAr/boost-market/internal/domain"
)

// Amounts cross the API as base-10 strings; JSON numbers cannot hold 256 bits.

type OfferRequest struct {
	PricePerVote    string `json:"price_per_vote"`
	MaxDuration     uint64 `json:"max_duration"`
	ExpiryTime      uint64 `json:"expiry_time"`
	MinPerc         uint64 `json:"min_perc"`
	MaxPerc         uint64 `json:"max_perc"`
	UseAdvisedPrice bool   `json:"use_advised_price"`
}

type OfferPriceRequest struct {
	PricePerVote    string `json:"price_per_vote"`
	UseAdvisedPrice bool   `json:"use_advised_price"`
}

type BuyBoostRequest struct {
	Seller   string `json:"seller" binding:"required"`
	Receiver string `json:"receiver" binding:"required"`
	Amount   string `json:"amount"`
	Percent  uint64 `json:"percent"`
	Weeks    uint64 `json:"weeks"`
	MaxFee   string `json:"max_fee" binding:"required"`
}

type AmountRequest struct {
	Amount string `json:"amount"`
}

type DepositRequest struct {
	From   string `json:"from" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type CreatePledgeRequest struct {
	Receiver             string `json:"receiver" binding:"required"`
	RewardToken          string `json:"reward_token" binding:"required"`
	TargetVotes          string `json:"target_votes" binding:"required"`
	RewardPerVotePerWeek string `json:"reward_per_vote_per_week" binding:"required"`
	EndTimestamp         uint64 `json:"end_timestamp"`
	MaxTotalRewardAmount string `json:"max_total_reward_amount" binding:"required"`
}

type ExtendPledgeRequest struct {
	NewEndTimestamp      uint64 `json:"new_end_timestamp"`
	MaxTotalRewardAmount string `json:"max_total_reward_amount" binding:"required"`
}

type IncreasePledgeRequest struct {
	NewRewardPerVotePerWeek string `json:"new_reward_per_vote_per_week" binding:"required"`
	MaxTotalRewardAmount    string `json:"max_total_reward_amount" binding:"required"`
}

type JoinPledgeRequest struct {
	Amount       string `json:"amount"`
	Percent      uint64 `json:"percent"`
	EndTimestamp uint64 `json:"end_timestamp"`
}

type ClosePledgeRequest struct {
	Receiver string `json:"receiver" binding:"required"`
}

type OfferResponse struct {
	User            string `json:"user"`
	PricePerVote    string `json:"price_per_vote"`
	UseAdvisedPrice bool   `json:"use_advised_price"`
	MaxDuration     uint64 `json:"max_duration"`
	ExpiryTime      uint64 `json:"expiry_time"`
	MinPerc         uint64 `json:"min_perc"`
	MaxPerc         uint64 `json:"max_perc"`
}

type QuoteResponse struct {
	Seller       string `json:"seller"`
	Amount       string `json:"amount"`
	PricePerVote string `json:"price_per_vote"`
	Fee          string `json:"fee"`
	Expiry       uint64 `json:"expiry"`
}

type PurchaseResponse struct {
	QuoteResponse
	Buyer    string `json:"buyer"`
	Receiver string `json:"receiver"`
	BoostID  uint64 `json:"boost_id"`
}

type PledgeResponse struct {
	ID                   uint64 `json:"id"`
	Owner                string `json:"owner"`
	Receiver             string `json:"receiver"`
	RewardToken          string `json:"reward_token"`
	TargetVotes          string `json:"target_votes"`
	RewardPerVotePerWeek string `json:"reward_per_vote_per_week"`
	EndTimestamp         uint64 `json:"end_timestamp"`
	AvailableRewards     string `json:"available_rewards"`
	Closed               bool   `json:"closed"`
}

type JoinResponse struct {
	PledgeID  uint64 `json:"pledge_id"`
	Delegator string `json:"delegator"`
	BoostID   uint64 `json:"boost_id"`
	Bias      string `json:"bias"`
	Slope     string `json:"slope"`
	EndTime   uint64 `json:"end_time"`
	Reward    string `json:"reward"`
	ChestFee  string `json:"chest_fee"`
}

type SettingsResponse struct {
	Owner             string   `json:"owner"`
	FeeToken          string   `json:"fee_token"`
	Chest             string   `json:"chest"`
	ReserveManager    string   `json:"reserve_manager"`
	Managers          []string `json:"managers"`
	Paused            bool     `json:"paused"`
	ClaimBlocked      bool     `json:"claim_blocked"`
	FeeReserveRatio   uint64   `json:"fee_reserve_ratio"`
	MinPercRequired   uint64   `json:"min_perc_required"`
	MinDelegationTime uint64   `json:"min_delegation_time"`
	ProtocolFeeRatio  uint64   `json:"protocol_fee_ratio"`
	AdvisedPrice      string   `json:"advised_price"`
	MinVoteDiff       string   `json:"min_vote_diff"`
}

type EventsResponse struct {
	Data []domain.Event `json:"data"`
}

func toOfferResponse(o domain.BoostOffer) OfferResponse {
	return OfferResponse{
		User:            o.User.Hex(),
		PricePerVote:    domain.Amount(o.PricePerVote).Dec(),
		UseAdvisedPrice: o.UseAdvisedPrice,
		MaxDuration:     o.MaxDuration,
		ExpiryTime:      o.ExpiryTime,
		MinPerc:         o.MinPerc,
		MaxPerc:         o.MaxPerc,
	}
}

func toQuoteResponse(q domain.Quote) QuoteResponse {
	return QuoteResponse{
		Seller:       q.Seller.Hex(),
		Amount:       domain.Amount(q.Amount).Dec(),
		PricePerVote: domain.Amount(q.PricePerVote).Dec(),
		Fee:          domain.Amount(q.Fee).Dec(),
		Expiry:       q.Expiry,
	}
}

func toPurchaseResponse(p domain.BoostPurchase) PurchaseResponse {
	return PurchaseResponse{
		QuoteResponse: toQuoteResponse(p.Quote),
		Buyer:         p.Buyer.Hex(),
		Receiver:      p.Receiver.Hex(),
		BoostID:       p.BoostID,
	}
}

func toPledgeResponse(p domain.Pledge) PledgeResponse {
	return PledgeResponse{
		ID:                   p.ID,
		Owner:                p.Owner.Hex(),
		Receiver:             p.Receiver.Hex(),
		RewardToken:          p.RewardToken.Hex(),
		TargetVotes:          domain.Amount(p.TargetVotes).Dec(),
		RewardPerVotePerWeek: domain.Amount(p.RewardPerVotePerWeek).Dec(),
		EndTimestamp:         p.EndTimestamp,
		AvailableRewards:     domain.Amount(p.AvailableRewards).Dec(),
		Closed:               p.Closed,
	}
}

func toJoinResponse(r domain.JoinRecord) JoinResponse {
	return JoinResponse{
		PledgeID:  r.PledgeID,
		Delegator: r.Delegator.Hex(),
		BoostID:   r.BoostID,
		Bias:      domain.Amount(r.Point.Bias).Dec(),
		Slope:     domain.Amount(r.Point.Slope).Dec(),
		EndTime:   r.EndTime,
		Reward:    domain.Amount(r.Reward).Dec(),
		ChestFee:  domain.Amount(r.ChestFee).Dec(),
	}
}

func toSettingsResponse(s application.Settings) SettingsResponse {
	managers := make([]string, len(s.Managers))
	for i, m := range s.Managers {
		managers[i] = m.Hex()
	}
	return SettingsResponse{
		Owner:             s.Owner.Hex(),
		FeeToken:          s.FeeToken.Hex(),
		Chest:             s.Chest.Hex(),
		ReserveManager:    s.ReserveManager.Hex(),
		Managers:          managers,
		Paused:            s.Paused,
		ClaimBlocked:      s.ClaimBlocked,
		FeeReserveRatio:   s.FeeReserveRatio,
		MinPercRequired:   s.MinPercRequired,
		MinDelegationTime: s.MinDelegationTime,
		ProtocolFeeRatio:  s.ProtocolFeeRatio,
		AdvisedPrice:      domain.Amount(s.AdvisedPrice).Dec(),
		MinVoteDiff:       domain.Amount(s.MinVoteDiff).Dec(),
	}
}

// badRequest is a malformed request, reported as 400.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string {
	return e.msg
}

func invalid(format string, args ...interface{}) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

func parseAddress(field, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, invalid("invalid %s address", field)
	}
	return common.HexToAddress(raw), nil
}

func parseAmount(field, raw string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(raw))
	if err != nil {
		return nil, invalid("invalid %s", field)
	}
	return v, nil
}

// parseOptionalAmount returns nil for an empty string.
func parseOptionalAmount(field, raw string) (*uint256.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return parseAmount(field, raw)
}

func parseUint(field, raw string) (uint64, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, invalid("invalid %s", field)
	}
	return v, nil
}

func (r OfferRequest) terms() (domain.OfferTerms, error) {
	price, err := parseOptionalAmount("price_per_vote", r.PricePerVote)
	if err != nil {
		return domain.OfferTerms{}, err
	}
	if price == nil {
		price = new(uint256.Int)
	}
	return domain.OfferTerms{
		PricePerVote:    price,
		MaxDuration:     r.MaxDuration,
		ExpiryTime:      r.ExpiryTime,
		MinPerc:         r.MinPerc,
		MaxPerc:         r.MaxPerc,
		UseAdvisedPrice: r.UseAdvisedPrice,
	}, nil
}

func (r CreatePledgeRequest) params() (domain.CreatePledgeParams, error) {
	var (
		p   domain.CreatePledgeParams
		err error
	)
	if p.Receiver, err = parseAddress("receiver", r.Receiver); err != nil {
		return p, err
	}
	if p.RewardToken, err = parseAddress("reward_token", r.RewardToken); err != nil {
		return p, err
	}
	if p.TargetVotes, err = parseAmount("target_votes", r.TargetVotes); err != nil {
		return p, err
	}
	if p.RewardPerVotePerWeek, err = parseAmount("reward_per_vote_per_week", r.RewardPerVotePerWeek); err != nil {
		return p, err
	}
	if p.MaxTotalRewardAmount, err = parseAmount("max_total_reward_amount", r.MaxTotalRewardAmount); err != nil {
		return p, err
	}
	p.EndTimestamp = r.EndTimestamp
	return p, nil
}
