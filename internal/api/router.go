package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vendotrash/internal/api/handler"
	"vendotrash/internal/api/middleware"
	"vendotrash/internal/domain"
	"vendotrash/internal/service"
)

// Services groups what the router wires into handlers.
type Services struct {
	Auth    *service.AuthService
	Users   *service.UserService
	Vendo   *service.VendoService
	Ledger  *service.LedgerService
	Rewards *service.RewardService
	Machine *service.MachineService
}

func SetupRouter(svc Services, authMw *middleware.AuthMiddleware, wsManager *handler.WebSocketManager) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Machine-Key, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	wsHandler := handler.NewWebSocketHandler(wsManager, svc.Auth)
	r.GET("/ws", wsHandler.HandleWebSocket)

	authHandler := handler.NewAuthHandler(svc.Auth)
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}

	vendoH := handler.NewVendoHandler(svc.Vendo, svc.Machine)

	// called by the hardware bridge
	bridgeH := handler.NewBridgeHandler(svc.Vendo)
	bridge := r.Group("/api/vendo")
	bridge.Use(authMw.MachineKey())
	{
		bridge.GET("/test", bridgeH.Test)
		bridge.GET("/session-status", bridgeH.SessionStatus)
		bridge.GET("/active-token", bridgeH.ActiveToken)
		bridge.POST("/capture-and-classify", authMw.Authenticate(), vendoH.ClassifyForMachine)
	}

	v1 := r.Group("/api/v1")
	v1.Use(authMw.Authenticate())
	{
		userH := handler.NewUserHandler(svc.Users)
		userRoutes := v1.Group("/users")
		{
			userRoutes.GET("/me", userH.Me)
			userRoutes.GET("", authMw.AuthorizeRole(domain.RoleAdmin), userH.ListUsers)
			userRoutes.GET("/:id", authMw.AuthorizeRole(domain.RoleAdmin), userH.GetUser)
		}

		vendoRoutes := v1.Group("/vendo")
		{
			vendoRoutes.POST("/prepare-insert", vendoH.PrepareInsert)
			vendoRoutes.POST("/end-insert", vendoH.EndInsert)
			vendoRoutes.GET("/session", vendoH.Session)
			vendoRoutes.POST("/classify", vendoH.Classify)
			vendoRoutes.GET("/history", vendoH.History)
			vendoRoutes.DELETE("/history", vendoH.ClearHistory)
			vendoRoutes.POST("/command", authMw.AuthorizeRole(domain.RoleAdmin), vendoH.SendCommand)
		}

		txH := handler.NewTransactionHandler(svc.Ledger)
		txRoutes := v1.Group("/transactions")
		{
			txRoutes.GET("", txH.ListTransactions)
			txRoutes.POST("", authMw.AuthorizeRole(domain.RoleAdmin), txH.CreateTransaction)
			txRoutes.GET("/:id", txH.GetTransaction)
		}

		rewardH := handler.NewRewardHandler(svc.Rewards)
		rewardRoutes := v1.Group("/rewards")
		{
			rewardRoutes.GET("", rewardH.ListRewards)
			rewardRoutes.GET("/:id", rewardH.GetReward)
			rewardRoutes.POST("", authMw.AuthorizeRole(domain.RoleAdmin), rewardH.CreateReward)
			rewardRoutes.PUT("/:id", authMw.AuthorizeRole(domain.RoleAdmin), rewardH.UpdateReward)
		}

		redemptionRoutes := v1.Group("/redemptions")
		{
			redemptionRoutes.GET("", rewardH.ListRedemptions)
			redemptionRoutes.POST("", rewardH.Redeem)
			redemptionRoutes.GET("/:id", rewardH.GetRedemption)
		}

		machineH := handler.NewMachineHandler(svc.Machine)
		machineRoutes := v1.Group("/machines")
		{
			machineRoutes.GET("", machineH.ListMachines)
			machineRoutes.GET("/:id", machineH.GetMachine)
			machineRoutes.POST("", authMw.AuthorizeRole(domain.RoleAdmin), machineH.CreateMachine)
			machineRoutes.PUT("/:id/status", authMw.AuthorizeRole(domain.RoleAdmin), machineH.UpdateStatus)
		}
	}
	return r
}
