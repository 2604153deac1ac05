package http

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
)

type ValueRequest struct {
	Value uint64 `json:"value"`
}

type AddressRequest struct {
	Address string `json:"address" binding:"required"`
}

type ClaimBlockRequest struct {
	Blocked bool `json:"blocked"`
}

type RewardTokenRequest struct {
	Token            string `json:"token" binding:"required"`
	MinRewardPerVote string `json:"min_reward_per_vote" binding:"required"`
}

type RewardTokensRequest struct {
	Tokens []RewardTokenRequest `json:"tokens"`
}

type TokenAmountRequest struct {
	Token  string `json:"token" binding:"required"`
	Amount string `json:"amount"`
}

func (h *Handler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, toSettingsResponse(h.engine.Settings(c.Request.Context())))
}

// adminAction wraps an owner operation that takes no argument.
func (h *Handler) adminAction(op func(ctx context.Context, caller common.Address) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := op(c.Request.Context(), callerOf(c)); err != nil {
			h.fail(c, err)
			return
		}
		h.GetSettings(c)
	}
}

func (h *Handler) adminValue(op func(ctx context.Context, caller common.Address, v uint64) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ValueRequest
		if !h.bind(c, &req) {
			return
		}
		if err := op(c.Request.Context(), callerOf(c), req.Value); err != nil {
			h.fail(c, err)
			return
		}
		h.GetSettings(c)
	}
}

func (h *Handler) adminAddress(op func(ctx context.Context, caller, addr common.Address) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddressRequest
		if !h.bind(c, &req) {
			return
		}
		addr, err := parseAddress("address", req.Address)
		if err != nil {
			h.fail(c, err)
			return
		}
		if err := op(c.Request.Context(), callerOf(c), addr); err != nil {
			h.fail(c, err)
			return
		}
		h.GetSettings(c)
	}
}

func (h *Handler) adminAmount(op func(ctx context.Context, caller common.Address, v *uint256.Int) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AmountRequest
		if !h.bind(c, &req) {
			return
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			h.fail(c, err)
			return
		}
		if err := op(c.Request.Context(), callerOf(c), amount); err != nil {
			h.fail(c, err)
			return
		}
		h.GetSettings(c)
	}
}

func (h *Handler) SetClaimBlock(c *gin.Context) {
	var req ClaimBlockRequest
	if !h.bind(c, &req) {
		return
	}
	op := h.engine.UnblockClaim
	if req.Blocked {
		op = h.engine.BlockClaim
	}
	h.adminAction(op)(c)
}

func (h *Handler) RemoveManager(c *gin.Context) {
	manager, err := parseAddress("manager", c.Param("manager"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.engine.RemoveManager(c.Request.Context(), callerOf(c), manager); err != nil {
		h.fail(c, err)
		return
	}
	h.GetSettings(c)
}

func (h *Handler) AddRewardTokens(c *gin.Context) {
	var req RewardTokensRequest
	if !h.bind(c, &req) {
		return
	}
	tokens := make([]common.Address, len(req.Tokens))
	rates := make([]*uint256.Int, len(req.Tokens))
	for i, rt := range req.Tokens {
		var err error
		if tokens[i], err = parseAddress("token", rt.Token); err != nil {
			h.fail(c, err)
			return
		}
		if rates[i], err = parseAmount("min_reward_per_vote", rt.MinRewardPerVote); err != nil {
			h.fail(c, err)
			return
		}
	}

	ctx := c.Request.Context()
	caller := callerOf(c)
	var err error
	if len(tokens) == 1 {
		err = h.engine.AddRewardToken(ctx, caller, tokens[0], rates[0])
	} else {
		err = h.engine.AddMultipleRewardToken(ctx, caller, tokens, rates)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) UpdateRewardToken(c *gin.Context) {
	token, err := parseAddress("token", c.Param("token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var req AmountRequest
	if !h.bind(c, &req) {
		return
	}
	rate, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.engine.UpdateRewardToken(c.Request.Context(), callerOf(c), token, rate); err != nil {
		h.fail(c, err)
		return
	}
	h.GetRewardToken(c)
}

func (h *Handler) RemoveRewardToken(c *gin.Context) {
	token, err := parseAddress("token", c.Param("token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.engine.RemoveRewardToken(c.Request.Context(), callerOf(c), token); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RecoverERC20 sends the engine's balance of a token to the owner: the whole
// recoverable balance, or amount when one is given.
func (h *Handler) RecoverERC20(c *gin.Context) {
	var req TokenAmountRequest
	if !h.bind(c, &req) {
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		h.fail(c, err)
		return
	}
	amount, err := parseOptionalAmount("amount", req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	caller := callerOf(c)
	if amount != nil {
		if err := h.engine.WithdrawERC20(ctx, caller, token, amount); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token.Hex(), "recovered": amount.Dec()})
		return
	}

	recovered, err := h.engine.RecoverERC20(ctx, caller, token)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token.Hex(), "recovered": recovered.Dec()})
}
