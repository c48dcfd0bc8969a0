package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, ginMode string) *gin.Engine {
	if ginMode != "" {
		gin.SetMode(ginMode)
	}

	r := gin.New()
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		accounts := api.Group("/accounts")
		{
			accounts.POST("", h.CreateAccount)
			accounts.GET("", h.FindAccountByEmail)
			accounts.GET("/:id", h.GetAccount)
			accounts.GET("/:id/transactions", h.ListTransactions)
			accounts.GET("/:id/reconcile", h.Reconcile)

			accounts.PUT("/:id/allowance", h.SetAllowance)
			accounts.PUT("/:id/interest-rate", h.SetInterestRate)
			accounts.PUT("/:id/card-frozen", h.SetCardFrozen)

			accounts.POST("/:id/credit", h.Credit)
			accounts.POST("/:id/debit", h.Debit)
			accounts.POST("/:id/internal-transfer", h.InternalTransfer)
			accounts.POST("/:id/peer-transfer", h.PeerTransfer)
			accounts.POST("/:id/policy/evaluate", h.EvaluatePolicies)

			accounts.POST("/:id/goals", h.CreateGoal)
			accounts.GET("/:id/goals", h.ListGoals)
			accounts.GET("/:id/goals/:goalId", h.GetGoal)
			accounts.POST("/:id/goals/:goalId/contribute", h.ContributeToGoal)
			accounts.DELETE("/:id/goals/:goalId", h.DeleteGoal)
		}

		api.GET("/transactions/:transactionNo", h.GetTransaction)

		guardians := api.Group("/guardians")
		{
			guardians.GET("/:id/dependents", h.ListDependents)
			guardians.POST("/:id/dependents", h.LinkDependent)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
