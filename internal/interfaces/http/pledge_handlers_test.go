package http

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/q4ZAr/boost-market/internal/domain"
	"github.com/q4ZAr/boost-market/internal/testutil"
)

const (
	pledgeRate    = "9072000000000000"
	sixWeekEscrow = "40824000000000000000000"
)

func (s *testServer) createPledge(weeks uint64) PledgeResponse {
	s.t.Helper()
	s.fund(rewardToken, sponsor, 1_000_000)

	var pledge PledgeResponse
	s.expect(s.do(http.MethodPost, "/pledges", sponsor, CreatePledgeRequest{
		Receiver:             receiver.Hex(),
		RewardToken:          rewardToken.Hex(),
		TargetVotes:          testutil.Units(750_000).Dec(),
		RewardPerVotePerWeek: pledgeRate,
		EndTimestamp:         alignedStart + weeks*domain.Week,
		MaxTotalRewardAmount: testutil.Units(1_000_000).Dec(),
	}), http.StatusCreated, &pledge)
	return pledge
}

func TestPledgeFlow(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	pledge := s.createPledge(6)
	assert.Equal(t, uint64(0), pledge.ID)
	assert.Equal(t, sixWeekEscrow, pledge.AvailableRewards)
	assert.Equal(t, sponsor.Hex(), pledge.Owner)

	var token map[string]string
	s.expect(s.do(http.MethodGet, "/reward-tokens/"+rewardToken.Hex(), common.Address{}, nil), http.StatusOK, &token)
	assert.Equal(t, sixWeekEscrow, token["total_amount"])
	assert.Equal(t, "1", token["min_reward_per_vote"])

	s.lock(delegator, 1000, 200)
	var join JoinResponse
	s.expect(s.do(http.MethodPost, "/pledges/0/join", delegator, JoinPledgeRequest{
		Amount: testutil.Units(100).Dec(),
	}), http.StatusCreated, &join)
	assert.Equal(t, delegator.Hex(), join.Delegator)
	assert.Equal(t, alignedStart+6*domain.Week, join.EndTime)
	assert.NotEqual(t, "0", join.Reward)
	assert.NotEqual(t, "0", join.ChestFee)

	var listed struct {
		Data      []PledgeResponse `json:"data"`
		NextIndex uint64           `json:"next_index"`
	}
	s.expect(s.do(http.MethodGet, "/pledges?owner="+sponsor.Hex(), common.Address{}, nil), http.StatusOK, &listed)
	require.Len(t, listed.Data, 1)
	assert.Equal(t, uint64(1), listed.NextIndex)
	remaining := listed.Data[0].AvailableRewards
	assert.NotEqual(t, sixWeekEscrow, remaining, "the join paid out of the escrow")

	s.expect(s.do(http.MethodGet, "/pledges?owner="+stranger.Hex(), common.Address{}, nil), http.StatusOK, &listed)
	assert.Empty(t, listed.Data)

	w := s.do(http.MethodPost, "/pledges/0/close", stranger, ClosePledgeRequest{Receiver: stranger.Hex()})
	assert.Equal(t, http.StatusConflict, w.Code)

	var closed map[string]interface{}
	s.expect(s.do(http.MethodPost, "/pledges/0/close", sponsor, ClosePledgeRequest{Receiver: sponsor.Hex()}), http.StatusOK, &closed)
	assert.Equal(t, remaining, closed["refunded"])

	s.expect(s.do(http.MethodGet, "/pledges/0", common.Address{}, nil), http.StatusOK, &pledge)
	assert.True(t, pledge.Closed)
	assert.Equal(t, "0", pledge.AvailableRewards)
}

func TestPledgeFlow_ExtendAndIncrease(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.createPledge(6)

	var pledge PledgeResponse
	s.expect(s.do(http.MethodPost, "/pledges/0/extend", sponsor, ExtendPledgeRequest{
		NewEndTimestamp:      alignedStart + 8*domain.Week,
		MaxTotalRewardAmount: testutil.Units(1_000_000).Dec(),
	}), http.StatusOK, &pledge)
	assert.Equal(t, alignedStart+8*domain.Week, pledge.EndTimestamp)
	assert.Equal(t, "54432000000000000000000", pledge.AvailableRewards)

	doubled := strconv.FormatUint(2*9_072_000_000_000_000, 10)
	s.expect(s.do(http.MethodPost, "/pledges/0/increase", sponsor, IncreasePledgeRequest{
		NewRewardPerVotePerWeek: doubled,
		MaxTotalRewardAmount:    testutil.Units(1_000_000).Dec(),
	}), http.StatusOK, &pledge)
	assert.Equal(t, doubled, pledge.RewardPerVotePerWeek)

	w := s.do(http.MethodPost, "/pledges/0/extend", stranger, ExtendPledgeRequest{
		NewEndTimestamp:      alignedStart + 10*domain.Week,
		MaxTotalRewardAmount: "1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPledgeFlow_JoinPercent(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.createPledge(6)
	s.lock(delegator, 1000, 200)

	var join JoinResponse
	s.expect(s.do(http.MethodPost, "/pledges/0/join", delegator, JoinPledgeRequest{
		Percent:      1000,
		EndTimestamp: alignedStart + 3*domain.Week,
	}), http.StatusCreated, &join)
	assert.Equal(t, alignedStart+3*domain.Week, join.EndTime)
}
