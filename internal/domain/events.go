package domain

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

const (
	EventRegistred                   = "Registred"
	EventUpdateOffer                 = "UpdateOffer"
	EventUpdateOfferPrice            = "UpdateOfferPrice"
	EventQuit                        = "Quit"
	EventBoostPurchase               = "BoostPurchase"
	EventClaim                       = "Claim"
	EventReserveDeposit              = "ReserveDeposit"
	EventReserveWithdraw             = "ReserveWithdraw"
	EventNewAdvisedPrice             = "NewAdvisedPrice"
	EventNewPledge                   = "NewPledge"
	EventExtendPledgeDuration        = "ExtendPledgeDuration"
	EventIncreasePledgeRewardPerVote = "IncreasePledgeRewardPerVote"
	EventPledged                     = "Pledged"
	EventClosePledge                 = "ClosePledge"
	EventRetrievedPledgeRewards      = "RetrievedPledgeRewards"
	EventNewRewardToken              = "NewRewardToken"
	EventUpdateRewardToken           = "UpdateRewardToken"
	EventRemoveRewardToken           = "RemoveRewardToken"
	EventChestUpdated                = "ChestUpdated"
	EventPlatformFeeUpdated          = "PlatformFeeUpdated"
	EventMinVoteDiffUpdated          = "MinVoteDiffUpdated"
	EventParameterUpdated            = "ParameterUpdated"
	EventClaimBlockToggled           = "ClaimBlockToggled"
	EventManagerUpdated              = "ManagerUpdated"
	EventPaused                      = "Paused"
	EventUnpaused                    = "Unpaused"
	EventOwnershipTransferred        = "OwnershipTransferred"
	EventTokenRecovered              = "TokenRecovered"
)

var eventSignatures = map[string]string{
	EventRegistred:                   "Registred(address,uint256)",
	EventUpdateOffer:                 "UpdateOffer(address,uint256)",
	EventUpdateOfferPrice:            "UpdateOfferPrice(address,uint256)",
	EventQuit:                        "Quit(address)",
	EventBoostPurchase:               "BoostPurchase(address,address,uint256,uint256,uint256,uint256,uint256)",
	EventClaim:                       "Claim(address,uint256)",
	EventReserveDeposit:              "ReserveDeposit(address,uint256)",
	EventReserveWithdraw:             "ReserveWithdraw(address,uint256)",
	EventNewAdvisedPrice:             "NewAdvisedPrice(uint256)",
	EventNewPledge:                   "NewPledge(address,address,address,uint256,uint256,uint256,uint256)",
	EventExtendPledgeDuration:        "ExtendPledgeDuration(uint256,uint256,uint256)",
	EventIncreasePledgeRewardPerVote: "IncreasePledgeRewardPerVote(uint256,uint256,uint256)",
	EventPledged:                     "Pledged(uint256,address,uint256,uint256)",
	EventClosePledge:                 "ClosePledge(uint256)",
	EventRetrievedPledgeRewards:      "RetrievedPledgeRewards(uint256,address,uint256)",
	EventNewRewardToken:              "NewRewardToken(address,uint256)",
	EventUpdateRewardToken:           "UpdateRewardToken(address,uint256)",
	EventRemoveRewardToken:           "RemoveRewardToken(address)",
	EventChestUpdated:                "ChestUpdated(address,address)",
	EventPlatformFeeUpdated:          "PlatformFeeUpdated(uint256,uint256)",
	EventMinVoteDiffUpdated:          "MinVoteDiffUpdated(uint256,uint256)",
	EventParameterUpdated:            "ParameterUpdated(string,uint256)",
	EventClaimBlockToggled:           "ClaimBlockToggled(bool)",
	EventManagerUpdated:              "ManagerUpdated(address,bool)",
	EventPaused:                      "Paused(address)",
	EventUnpaused:                    "Unpaused(address)",
	EventOwnershipTransferred:        "OwnershipTransferred(address,address)",
	EventTokenRecovered:              "TokenRecovered(address,uint256)",
}

// Event is a committed state change, published after its operation succeeds.
type Event struct {
	ID        string            `json:"id"`
	Seq       uint64            `json:"seq"`
	Name      string            `json:"name"`
	Topic     common.Hash       `json:"topic"`
	Args      map[string]string `json:"args"`
	Timestamp uint64            `json:"timestamp"`
	CreatedAt time.Time         `json:"created_at"`
}

// EventTopic is the keccak256 hash of the event signature, as emitted on chain.
func EventTopic(name string) common.Hash {
	sig, ok := eventSignatures[name]
	if !ok {
		sig = name + "()"
	}
	return crypto.Keccak256Hash([]byte(sig))
}

// NewEvent builds an event from alternating key/value arguments.
func NewEvent(name string, timestamp uint64, kv ...interface{}) Event {
	args := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		args[key] = formatArg(kv[i+1])
	}
	return Event{
		Name:      name,
		Topic:     EventTopic(name),
		Args:      args,
		Timestamp: timestamp,
	}
}

func formatArg(v interface{}) string {
	switch x := v.(type) {
	case common.Address:
		return x.Hex()
	case *uint256.Int:
		if x == nil {
			return "0"
		}
		return x.Dec()
	case uint64:
		return strconv.FormatUint(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

type EventFilter struct {
	Name     string
	AfterSeq uint64
	Limit    int
}

type EventRepository interface {
	SaveBatch(ctx context.Context, events []Event) error
	FindAll(ctx context.Context, filter EventFilter) ([]Event, error)
	LastSeq(ctx context.Context) (uint64, error)
}
