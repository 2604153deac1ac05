package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/q4ZAr/boost-market/internal/application"
	"github.com/q4ZAr/boost-market/internal/infrastructure/memchain"
	"github.com/q4ZAr/boost-market/pkg/logger"
)

type RouterOptions struct {
	// Journal backs /ready; nil means always ready.
	Journal Pinger
	// Simulator exposes /sim routes over the in-process chain when set.
	Simulator      *memchain.Chain
	RequestTimeout time.Duration
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int
}

func NewRouter(engine *application.Engine, opts RouterOptions, logger *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst)
	}

	router.Use(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(),
		RateLimitMiddleware(limiter),
		TimeoutMiddleware(opts.RequestTimeout),
	)

	handler := NewHandler(engine, opts.Journal, logger)

	router.GET("/health", handler.GetHealth)
	router.GET("/ready", handler.GetReadiness)
	router.GET("/stats", handler.GetStats)
	router.GET("/events", handler.GetEvents)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	caller := CallerMiddleware()

	offers := router.Group("/offers")
	{
		offers.GET("", handler.GetOffers)
		offers.GET("/:seller", handler.GetOffer)
		offers.GET("/:seller/estimate", handler.EstimateFees)
		offers.GET("/:seller/can-delegate", handler.CanDelegate)
		offers.POST("", caller, handler.Register)
		offers.PUT("", caller, handler.UpdateOffer)
		offers.PUT("/price", caller, handler.UpdateOfferPrice)
		offers.DELETE("", caller, handler.Quit)
	}

	router.POST("/boosts", caller, handler.BuyBoost)

	fees := router.Group("/fees")
	{
		fees.GET("/:seller", handler.GetEarnedFees)
		fees.POST("/claim", caller, handler.Claim)
	}

	reserve := router.Group("/reserve")
	{
		reserve.GET("", handler.GetReserve)
		reserve.POST("/deposit", caller, handler.DepositToReserve)
		reserve.POST("/withdraw", caller, handler.WithdrawFromReserve)
	}

	pledges := router.Group("/pledges")
	{
		pledges.GET("", handler.GetPledges)
		pledges.GET("/:id", handler.GetPledge)
		pledges.POST("", caller, handler.CreatePledge)
		pledges.POST("/:id/extend", caller, handler.ExtendPledge)
		pledges.POST("/:id/increase", caller, handler.IncreasePledgeRewardPerVote)
		pledges.POST("/:id/join", caller, handler.JoinPledge)
		pledges.POST("/:id/close", caller, handler.ClosePledge)
	}

	router.GET("/reward-tokens/:token", handler.GetRewardToken)

	admin := router.Group("/admin")
	{
		admin.GET("/settings", handler.GetSettings)

		owner := admin.Group("", caller)
		owner.POST("/pause", handler.adminAction(engine.Pause))
		owner.POST("/unpause", handler.adminAction(engine.Unpause))
		owner.PUT("/claim-block", handler.SetClaimBlock)
		owner.POST("/managers", handler.adminAddress(engine.ApproveManager))
		owner.DELETE("/managers/:manager", handler.RemoveManager)
		owner.PUT("/reserve-manager", handler.adminAddress(engine.SetReserveManager))
		owner.PUT("/chest", handler.adminAddress(engine.UpdateChest))
		owner.PUT("/owner", handler.adminAddress(engine.TransferOwnership))
		owner.PUT("/min-perc", handler.adminValue(engine.SetMinPercRequired))
		owner.PUT("/min-delegation-time", handler.adminValue(engine.SetMinDelegationTime))
		owner.PUT("/fee-reserve-ratio", handler.adminValue(engine.SetFeeReserveRatio))
		owner.PUT("/platform-fee", handler.adminValue(engine.UpdatePlatformFee))
		owner.PUT("/min-vote-diff", handler.adminAmount(engine.UpdateMinVoteDiff))
		owner.PUT("/advised-price", handler.adminAmount(engine.SetAdvisedPrice))
		owner.POST("/reward-tokens", handler.AddRewardTokens)
		owner.PUT("/reward-tokens/:token", handler.UpdateRewardToken)
		owner.DELETE("/reward-tokens/:token", handler.RemoveRewardToken)
		owner.POST("/recover", handler.RecoverERC20)
	}

	if opts.Simulator != nil {
		sim := NewSimulatorHandler(engine, opts.Simulator, logger)
		group := router.Group("/sim")
		{
			group.POST("/mint", sim.Mint)
			group.POST("/approve", sim.ApproveToken)
			group.POST("/boost-approve", sim.ApproveBoost)
			group.POST("/lock", sim.Lock)
			group.GET("/boosts", sim.GetBoosts)
		}
	}

	return router
}
