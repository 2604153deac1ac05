package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"

	"github.com/q4ZAr/boost-market/internal/domain"
)

func (h *Handler) Register(c *gin.Context) {
	var req OfferRequest
	if !h.bind(c, &req) {
		return
	}
	terms, err := req.terms()
	if err != nil {
		h.fail(c, err)
		return
	}

	caller := callerOf(c)
	if err := h.engine.Register(c.Request.Context(), caller, terms); err != nil {
		h.fail(c, err)
		return
	}
	h.respondOffer(c, http.StatusCreated, caller.Hex())
}

func (h *Handler) UpdateOffer(c *gin.Context) {
	var req OfferRequest
	if !h.bind(c, &req) {
		return
	}
	terms, err := req.terms()
	if err != nil {
		h.fail(c, err)
		return
	}

	caller := callerOf(c)
	if err := h.engine.UpdateOffer(c.Request.Context(), caller, terms); err != nil {
		h.fail(c, err)
		return
	}
	h.respondOffer(c, http.StatusOK, caller.Hex())
}

func (h *Handler) UpdateOfferPrice(c *gin.Context) {
	var req OfferPriceRequest
	if !h.bind(c, &req) {
		return
	}
	price, err := parseOptionalAmount("price_per_vote", req.PricePerVote)
	if err != nil {
		h.fail(c, err)
		return
	}
	if price == nil {
		price = new(uint256.Int)
	}

	caller := callerOf(c)
	if err := h.engine.UpdateOfferPrice(c.Request.Context(), caller, price, req.UseAdvisedPrice); err != nil {
		h.fail(c, err)
		return
	}
	h.respondOffer(c, http.StatusOK, caller.Hex())
}

func (h *Handler) Quit(c *gin.Context) {
	if err := h.engine.Quit(c.Request.Context(), callerOf(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetOffers(c *gin.Context) {
	offers := h.engine.Offers(c.Request.Context())
	data := make([]OfferResponse, len(offers))
	for i, o := range offers {
		data[i] = toOfferResponse(o)
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (h *Handler) GetOffer(c *gin.Context) {
	h.respondOffer(c, http.StatusOK, c.Param("seller"))
}

func (h *Handler) respondOffer(c *gin.Context, status int, rawSeller string) {
	seller, err := parseAddress("seller", rawSeller)
	if err != nil {
		h.fail(c, err)
		return
	}
	offer, err := h.engine.Offer(c.Request.Context(), seller)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, toOfferResponse(offer))
}

// EstimateFees quotes a purchase of either amount or percent (basis points)
// of the seller's balance for the given number of weeks.
func (h *Handler) EstimateFees(c *gin.Context) {
	seller, err := parseAddress("seller", c.Param("seller"))
	if err != nil {
		h.fail(c, err)
		return
	}
	weeks, err := parseUint("weeks", c.Query("weeks"))
	if err != nil {
		h.fail(c, err)
		return
	}

	var quote domain.Quote
	if raw := c.Query("percent"); raw != "" {
		percent, err := parseUint("percent", raw)
		if err != nil {
			h.fail(c, err)
			return
		}
		quote, err = h.engine.EstimateFeesPercent(c.Request.Context(), seller, percent, weeks)
		if err != nil {
			h.fail(c, err)
			return
		}
	} else {
		amount, err := parseAmount("amount", c.Query("amount"))
		if err != nil {
			h.fail(c, err)
			return
		}
		quote, err = h.engine.EstimateFees(c.Request.Context(), seller, amount, weeks)
		if err != nil {
			h.fail(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, toQuoteResponse(quote))
}

func (h *Handler) CanDelegate(c *gin.Context) {
	seller, err := parseAddress("seller", c.Param("seller"))
	if err != nil {
		h.fail(c, err)
		return
	}

	var ok bool
	if raw := c.Query("percent"); raw != "" {
		percent, perr := parseUint("percent", raw)
		if perr != nil {
			h.fail(c, perr)
			return
		}
		ok, err = h.engine.CanDelegatePercent(c.Request.Context(), seller, percent)
	} else {
		amount, perr := parseAmount("amount", c.Query("amount"))
		if perr != nil {
			h.fail(c, perr)
			return
		}
		ok, err = h.engine.CanDelegate(c.Request.Context(), seller, amount)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"can_delegate": ok})
}

// BuyBoost buys an amount, or a percent when percent is set and amount is not.
func (h *Handler) BuyBoost(c *gin.Context) {
	var req BuyBoostRequest
	if !h.bind(c, &req) {
		return
	}
	seller, err := parseAddress("seller", req.Seller)
	if err != nil {
		h.fail(c, err)
		return
	}
	receiver, err := parseAddress("receiver", req.Receiver)
	if err != nil {
		h.fail(c, err)
		return
	}
	maxFee, err := parseAmount("max_fee", req.MaxFee)
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

	var purchase domain.BoostPurchase
	if amount == nil && req.Percent > 0 {
		purchase, err = h.engine.BuyDelegationBoostPercent(ctx, caller, seller, receiver, req.Percent, req.Weeks, maxFee)
	} else {
		purchase, err = h.engine.BuyDelegationBoost(ctx, caller, seller, receiver, domain.Amount(amount), req.Weeks, maxFee)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, toPurchaseResponse(purchase))
}

// Claim pays out all earned fees, or only amount when one is given.
func (h *Handler) Claim(c *gin.Context) {
	var req AmountRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}
	amount, err := parseOptionalAmount("amount", req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	caller := callerOf(c)
	if amount == nil {
		claimed, err := h.engine.Claim(ctx, caller)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"claimed": claimed.Dec()})
		return
	}

	if err := h.engine.ClaimAmount(ctx, caller, amount); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claimed": amount.Dec()})
}

func (h *Handler) GetEarnedFees(c *gin.Context) {
	seller, err := parseAddress("seller", c.Param("seller"))
	if err != nil {
		h.fail(c, err)
		return
	}
	earned := h.engine.EarnedFees(c.Request.Context(), seller)
	c.JSON(http.StatusOK, gin.H{
		"seller": seller.Hex(),
		"earned": earned.Dec(),
	})
}

func (h *Handler) GetReserve(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reserve_amount": h.engine.ReserveAmount(c.Request.Context()).Dec()})
}

func (h *Handler) DepositToReserve(c *gin.Context) {
	var req DepositRequest
	if !h.bind(c, &req) {
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		h.fail(c, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.engine.DepositToReserve(c.Request.Context(), callerOf(c), from, amount); err != nil {
		h.fail(c, err)
		return
	}
	h.GetReserve(c)
}

func (h *Handler) WithdrawFromReserve(c *gin.Context) {
	var req AmountRequest
	if !h.bind(c, &req) {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.engine.WithdrawFromReserve(c.Request.Context(), callerOf(c), amount); err != nil {
		h.fail(c, err)
		return
	}
	h.GetReserve(c)
}
