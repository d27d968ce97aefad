package server

import (
	"github.com/labstack/echo/v4"

	"example.com/receipt-tax-tracker/backend/internal/handlers"
)

type routeHandlers struct {
	auth          *handlers.AuthHandler
	dashboard     *handlers.DashboardHandler
	receipts      *handlers.ReceiptHandler
	receiptAI     *handlers.ReceiptAIHandler
	preferences   *handlers.PreferenceHandler
	notifications *handlers.NotificationHandler
	admin         *handlers.AdminHandler
	health        echo.HandlerFunc
}

type routeMiddleware struct {
	auth        echo.MiddlewareFunc
	admin       echo.MiddlewareFunc
	authLimiter echo.MiddlewareFunc
	aiLimiter   echo.MiddlewareFunc
}

func registerRoutes(e *echo.Echo, h routeHandlers, mw routeMiddleware) {
	e.GET("/health", h.health)

	e.POST("/register", h.auth.Register, mw.authLimiter)
	e.POST("/login", h.auth.Login, mw.authLimiter)
	e.POST("/refresh", h.auth.Refresh, mw.authLimiter)

	api := e.Group("", mw.auth)
	api.POST("/logout", h.auth.Logout)
	api.GET("/user", h.auth.Me)

	api.GET("/user-preference", h.preferences.Show)
	api.POST("/user-preference", h.preferences.Store)

	api.GET("/dashboard", h.dashboard.Overview)
	api.GET("/dashboard/deductibility-summary", h.dashboard.DeductibilitySummary)
	api.GET("/dashboard/monthly-spending", h.dashboard.MonthlySpending)
	api.GET("/dashboard/tax-suggestions", h.dashboard.TaxSuggestions)

	receipts := api.Group("/receipts")
	receipts.GET("", h.receipts.Index)
	receipts.POST("", h.receipts.Store)
	receipts.GET("/create", h.receipts.Create)
	receipts.GET("/export/:format", h.receipts.Export)
	receipts.POST("/images/process-ai", h.receiptAI.ProcessUpload, mw.aiLimiter)
	receipts.GET("/:id", h.receipts.Show)
	receipts.GET("/:id/edit", h.receipts.Edit)
	receipts.PUT("/:id", h.receipts.Update)
	receipts.DELETE("/:id", h.receipts.Destroy)
	receipts.POST("/:id/process-ai", h.receiptAI.ProcessReceipt, mw.aiLimiter)

	api.GET("/notifications/stream", h.notifications.Stream)

	admin := api.Group("/admin", mw.admin)
	admin.GET("/users", h.admin.ListUsers)
	admin.GET("/ai-requests", h.admin.ListAIRequests)
	admin.GET("/usage", h.admin.Usage)
}
