package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/q4ZAr/boost-market/internal/domain"
)

func (h *Handler) pledgeID(c *gin.Context) (uint64, bool) {
	id, err := parseUint("pledge id", c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return 0, false
	}
	return id, true
}

func (h *Handler) respondPledge(c *gin.Context, status int, id uint64) {
	pledge, err := h.engine.GetPledge(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, toPledgeResponse(pledge))
}

func (h *Handler) CreatePledge(c *gin.Context) {
	var req CreatePledgeRequest
	if !h.bind(c, &req) {
		return
	}
	params, err := req.params()
	if err != nil {
		h.fail(c, err)
		return
	}

	id, err := h.engine.CreatePledge(c.Request.Context(), callerOf(c), params)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondPledge(c, http.StatusCreated, id)
}

// GetPledges lists every pledge, or the ones created by ?owner=.
func (h *Handler) GetPledges(c *gin.Context) {
	ctx := c.Request.Context()

	var pledges []domain.Pledge
	if raw := c.Query("owner"); raw != "" {
		owner, err := parseAddress("owner", raw)
		if err != nil {
			h.fail(c, err)
			return
		}
		for _, id := range h.engine.UserPledges(ctx, owner) {
			p, err := h.engine.GetPledge(ctx, id)
			if err != nil {
				h.fail(c, err)
				return
			}
			pledges = append(pledges, p)
		}
	} else {
		pledges = h.engine.Pledges(ctx)
	}

	data := make([]PledgeResponse, len(pledges))
	for i, p := range pledges {
		data[i] = toPledgeResponse(p)
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       data,
		"next_index": h.engine.NextPledgeIndex(ctx),
	})
}

func (h *Handler) GetPledge(c *gin.Context) {
	id, ok := h.pledgeID(c)
	if !ok {
		return
	}
	h.respondPledge(c, http.StatusOK, id)
}

func (h *Handler) ExtendPledge(c *gin.Context) {
	id, ok := h.pledgeID(c)
	if !ok {
		return
	}
	var req ExtendPledgeRequest
	if !h.bind(c, &req) {
		return
	}
	maxTotal, err := parseAmount("max_total_reward_amount", req.MaxTotalRewardAmount)
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.engine.ExtendPledge(c.Request.Context(), callerOf(c), id, req.NewEndTimestamp, maxTotal); err != nil {
		h.fail(c, err)
		return
	}
	h.respondPledge(c, http.StatusOK, id)
}

func (h *Handler) IncreasePledgeRewardPerVote(c *gin.Context) {
	id, ok := h.pledgeID(c)
	if !ok {
		return
	}
	var req IncreasePledgeRequest
	if !h.bind(c, &req) {
		return
	}
	rate, err := parseAmount("new_reward_per_vote_per_week", req.NewRewardPerVotePerWeek)
	if err != nil {
		h.fail(c, err)
		return
	}
	maxTotal, err := parseAmount("max_total_reward_amount", req.MaxTotalRewardAmount)
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.engine.IncreasePledgeRewardPerVote(c.Request.Context(), callerOf(c), id, rate, maxTotal); err != nil {
		h.fail(c, err)
		return
	}
	h.respondPledge(c, http.StatusOK, id)
}

// JoinPledge delegates an amount, or a percent when percent is set and amount is not.
func (h *Handler) JoinPledge(c *gin.Context) {
	id, ok := h.pledgeID(c)
	if !ok {
		return
	}
	var req JoinPledgeRequest
	if !h.bind(c, &req) {
		return
	}
	amount, err := parseOptionalAmount("amount", req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	caller := callerOf(c)

	var record domain.JoinRecord
	if amount == nil && req.Percent > 0 {
		record, err = h.engine.PledgePercent(ctx, caller, id, req.Percent, req.EndTimestamp)
	} else {
		record, err = h.engine.Pledge(ctx, caller, id, domain.Amount(amount), req.EndTimestamp)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, toJoinResponse(record))
}

func (h *Handler) ClosePledge(c *gin.Context) {
	id, ok := h.pledgeID(c)
	if !ok {
		return
	}
	var req ClosePledgeRequest
	if !h.bind(c, &req) {
		return
	}
	receiver, err := parseAddress("receiver", req.Receiver)
	if err != nil {
		h.fail(c, err)
		return
	}

	refunded, err := h.engine.ClosePledge(c.Request.Context(), callerOf(c), id, receiver)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       id,
		"refunded": domain.Amount(refunded).Dec(),
	})
}

func (h *Handler) GetRewardToken(c *gin.Context) {
	token, err := parseAddress("token", c.Param("token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"token":               token.Hex(),
		"min_reward_per_vote": domain.Amount(h.engine.MinAmountRewardToken(ctx, token)).Dec(),
		"total_amount":        domain.Amount(h.engine.RewardTokenTotalAmount(ctx, token)).Dec(),
	})
}
