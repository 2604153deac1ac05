package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"

	"github.com/q4ZAr/boost-market/internal/application"
	"github.com/q4ZAr/boost-market/internal/infrastructure/memchain"
	"github.com/q4ZAr/boost-market/pkg/logger"
)

type MintRequest struct {
	Token  string `json:"token" binding:"required"`
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type ApproveRequest struct {
	Token   string `json:"token" binding:"required"`
	Owner   string `json:"owner" binding:"required"`
	Spender string `json:"spender" binding:"required"`
	Amount  string `json:"amount"`
}

type BoostApproveRequest struct {
	Owner    string `json:"owner" binding:"required"`
	Operator string `json:"operator" binding:"required"`
	Amount   string `json:"amount"`
}

type LockRequest struct {
	Account string `json:"account" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
	End     uint64 `json:"end" binding:"required"`
}

type BoostResponse struct {
	ID        uint64 `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Bias      string `json:"bias"`
	Slope     string `json:"slope"`
	StartTime uint64 `json:"start_time"`
	EndTime   uint64 `json:"end_time"`
}

// SimulatorHandler drives the in-process chain: token balances, approvals and
// escrow locks that a real deployment would get from the network. Every
// mutation runs serialized with engine operations.
type SimulatorHandler struct {
	Handler
	chain *memchain.Chain
}

func NewSimulatorHandler(engine *application.Engine, chain *memchain.Chain, logger *logger.Logger) *SimulatorHandler {
	return &SimulatorHandler{
		Handler: Handler{engine: engine, logger: logger},
		chain:   chain,
	}
}

// maxOr parses raw, defaulting to the maximum allowance when empty.
func maxOr(field, raw string) (*uint256.Int, error) {
	v, err := parseOptionalAmount(field, raw)
	if err != nil || v != nil {
		return v, err
	}
	return new(uint256.Int).SetAllOne(), nil
}

func (s *SimulatorHandler) Mint(c *gin.Context) {
	var req MintRequest
	if !s.bind(c, &req) {
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		s.fail(c, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.fail(c, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}

	var balance *uint256.Int
	err = s.engine.Sequence(func() error {
		s.chain.Tokens().Mint(token, to, amount)
		balance, err = s.chain.Tokens().BalanceOf(c.Request.Context(), token, to)
		return err
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token.Hex(), "account": to.Hex(), "balance": balance.Dec()})
}

func (s *SimulatorHandler) ApproveToken(c *gin.Context) {
	var req ApproveRequest
	if !s.bind(c, &req) {
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		s.fail(c, err)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		s.fail(c, err)
		return
	}
	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		s.fail(c, err)
		return
	}
	amount, err := maxOr("amount", req.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.engine.Sequence(func() error {
		s.chain.Tokens().Approve(token, owner, spender, amount)
		return nil
	})
	c.Status(http.StatusNoContent)
}

func (s *SimulatorHandler) ApproveBoost(c *gin.Context) {
	var req BoostApproveRequest
	if !s.bind(c, &req) {
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		s.fail(c, err)
		return
	}
	operator, err := parseAddress("operator", req.Operator)
	if err != nil {
		s.fail(c, err)
		return
	}
	amount, err := maxOr("amount", req.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.engine.Sequence(func() error {
		s.chain.Boosts().Approve(owner, operator, amount)
		return nil
	})
	c.Status(http.StatusNoContent)
}

func (s *SimulatorHandler) Lock(c *gin.Context) {
	var req LockRequest
	if !s.bind(c, &req) {
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		s.fail(c, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}

	var balance *uint256.Int
	err = s.engine.Sequence(func() error {
		if err := s.chain.Escrow().CreateLock(account, amount, req.End); err != nil {
			return err
		}
		balance, err = s.chain.Escrow().BalanceOf(c.Request.Context(), account, s.chain.Now())
		return err
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"account": account.Hex(), "balance": balance.Dec()})
}

func (s *SimulatorHandler) GetBoosts(c *gin.Context) {
	var boosts []memchain.Boost
	s.engine.Sequence(func() error {
		boosts = s.chain.Boosts().Boosts()
		return nil
	})

	data := make([]BoostResponse, len(boosts))
	for i, b := range boosts {
		data[i] = BoostResponse{
			ID:        b.ID,
			From:      b.From.Hex(),
			To:        b.To.Hex(),
			Bias:      b.Bias.Dec(),
			Slope:     b.Slope.Dec(),
			StartTime: b.Start,
			EndTime:   b.End,
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}
