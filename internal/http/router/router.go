package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-engine/internal/config"
	"github.com/ignatzorin/escrow-engine/internal/http/handlers"
	"github.com/ignatzorin/escrow-engine/internal/http/middleware"
	"github.com/ignatzorin/escrow-engine/internal/models"
)

// EvidencePublicPrefix путь, по которому раздаются загруженные доказательства.
const EvidencePublicPrefix = "/files/evidence"

func SetupRouter(
	cfg *config.Config,
	tokens middleware.TokenParser,
	healthHandler *handlers.HealthHandler,
	wsHandler *handlers.WSHandler,
	projectHandler *handlers.ProjectHandler,
	escrowHandler *handlers.EscrowHandler,
	milestoneHandler *handlers.MilestoneHandler,
	contractHandler *handlers.ContractHandler,
	paymentHandler *handlers.PaymentHandler,
	disputeHandler *handlers.DisputeHandler,
	evidenceHandler *handlers.EvidenceHandler,
	notificationHandler *handlers.NotificationHandler,
	userHandler *handlers.UserHandler,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)
	r.StaticFS(EvidencePublicPrefix, http.Dir(cfg.EvidenceStoragePath))

	api := r.Group("/api")
	api.GET("/ws", wsHandler.Handle)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokens))

	// Операции, двигающие деньги, ограничены по частоте для каждого пользователя
	moneyLimit := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)
	arbitration := middleware.RequireRole(models.RoleArbitrator, models.RoleAdmin)
	gateway := middleware.RequireRole(models.RoleAdmin)

	// Пользователи
	protected.GET("/users/me", userHandler.Me)
	protected.PUT("/admin/users/:id", middleware.UUIDValidator("id"), gateway, userHandler.SyncUser)

	// Проекты
	protected.POST("/projects", projectHandler.CreateProject)
	protected.GET("/projects/my", projectHandler.ListMyProjects)
	protected.GET("/projects/:id", middleware.UUIDValidator("id"), projectHandler.GetProject)
	protected.PUT("/projects/:id/status", middleware.UUIDValidator("id"), projectHandler.UpdateStatus)
	protected.GET("/projects/:id/escrows", middleware.UUIDValidator("id"), escrowHandler.ListProjectEscrows)
	protected.GET("/projects/:id/escrows/totals", middleware.UUIDValidator("id"), escrowHandler.ProjectTotals)
	protected.POST("/projects/:id/milestones", middleware.UUIDValidator("id"), milestoneHandler.CreateMilestone)
	protected.GET("/projects/:id/milestones", middleware.UUIDValidator("id"), milestoneHandler.ListProjectMilestones)
	protected.POST("/projects/:id/contract", middleware.UUIDValidator("id"), contractHandler.CreateContract)
	protected.GET("/projects/:id/contract", middleware.UUIDValidator("id"), contractHandler.GetProjectContract)
	protected.GET("/projects/:id/payments", middleware.UUIDValidator("id"), paymentHandler.ListProjectPayments)
	protected.POST("/projects/:id/disputes", middleware.UUIDValidator("id"), moneyLimit, disputeHandler.CreateDispute)
	protected.GET("/projects/:id/disputes", middleware.UUIDValidator("id"), disputeHandler.ListProjectDisputes)

	// Escrow
	protected.POST("/escrows", moneyLimit, escrowHandler.CreateEscrow)
	protected.GET("/escrows/:id", middleware.UUIDValidator("id"), escrowHandler.GetEscrow)
	protected.GET("/escrows/:id/transactions", middleware.UUIDValidator("id"), escrowHandler.ListTransactions)
	protected.POST("/escrows/:id/release", middleware.UUIDValidator("id"), moneyLimit, escrowHandler.Release)
	protected.POST("/escrows/:id/refund", middleware.UUIDValidator("id"), moneyLimit, escrowHandler.Refund)
	protected.POST("/escrows/:id/hold", middleware.UUIDValidator("id"), moneyLimit, escrowHandler.Hold)

	// Этапы
	protected.POST("/milestones/:id/start", middleware.IDValidator("id"), milestoneHandler.StartMilestone)
	protected.POST("/milestones/:id/complete", middleware.IDValidator("id"), milestoneHandler.CompleteMilestone)
	protected.POST("/milestones/:id/approve", middleware.IDValidator("id"), moneyLimit, milestoneHandler.ApproveMilestone)

	// Контракты
	protected.PUT("/contracts/:id", middleware.UUIDValidator("id"), contractHandler.UpdateContract)
	protected.POST("/contracts/:id/send", middleware.UUIDValidator("id"), contractHandler.SendForSignature)
	protected.POST("/contracts/:id/sign", middleware.UUIDValidator("id"), contractHandler.SignContract)
	protected.POST("/contracts/:id/complete", middleware.UUIDValidator("id"), contractHandler.CompleteContract)
	protected.POST("/contracts/:id/terminate", middleware.UUIDValidator("id"), contractHandler.TerminateContract)
	protected.POST("/contracts/:id/cancel", middleware.UUIDValidator("id"), contractHandler.CancelContract)

	// Платежи
	protected.POST("/payments", moneyLimit, paymentHandler.CreatePayment)
	protected.GET("/payments/:id", middleware.UUIDValidator("id"), paymentHandler.GetPayment)
	protected.POST("/payments/:id/process", middleware.UUIDValidator("id"), gateway, paymentHandler.ProcessPayment)
	protected.POST("/payments/:id/complete", middleware.UUIDValidator("id"), gateway, paymentHandler.CompletePayment)
	protected.POST("/payments/:id/refund", middleware.UUIDValidator("id"), gateway, paymentHandler.RefundPayment)
	protected.POST("/payments/:id/fail", middleware.UUIDValidator("id"), gateway, paymentHandler.FailPayment)
	protected.POST("/payments/:id/cancel", middleware.UUIDValidator("id"), gateway, paymentHandler.CancelPayment)

	// Споры
	protected.GET("/disputes", disputeHandler.ListMyDisputes)
	protected.GET("/disputes/:id", middleware.UUIDValidator("id"), disputeHandler.GetDispute)
	protected.POST("/disputes/:id/assign", middleware.UUIDValidator("id"), arbitration, disputeHandler.AssignArbitrator)
	protected.POST("/disputes/:id/request-evidence", middleware.UUIDValidator("id"), arbitration, disputeHandler.RequestEvidence)
	protected.POST("/disputes/:id/evidence", middleware.UUIDValidator("id"), disputeHandler.SubmitEvidence)
	protected.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), arbitration, disputeHandler.ResolveDispute)
	protected.POST("/disputes/:id/close", middleware.UUIDValidator("id"), arbitration, disputeHandler.CloseDispute)

	// Доказательства
	protected.POST("/evidence", evidenceHandler.Upload)

	// Уведомления
	protected.GET("/notifications", notificationHandler.ListNotifications)
	protected.GET("/notifications/unread/count", notificationHandler.CountUnread)
	protected.PUT("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkAsRead)
	protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)

	return r
}
