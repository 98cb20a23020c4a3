package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Routes struct {
	Health     *Server
	Audit      *auditServer
	Products   *productServer
	Auth       *authServer
	Websocket  *websocketServer
	Validator  *TokenValidator
	WebOrigins []string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

func RegisterRoutes(e *echo.Echo, r Routes) {
	e.Use(RequestContext(r.WebOrigins))

	e.GET("/health", r.Health.HealthCheck)
	if r.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(r.Metrics))
	}

	authenticated := Authenticate(r.Validator)

	api := e.Group("/api", authenticated)

	auth := api.Group("/auth")
	auth.POST("/login", r.Auth.Login)
	auth.POST("/logout", r.Auth.Logout)

	auditLogs := api.Group("/audit-logs")
	auditLogs.GET("", r.Audit.ListAuditLogs)
	auditLogs.GET("/recent", r.Audit.GetRecentAuditLogs)
	auditLogs.GET("/stats", r.Audit.GetAuditStats)
	auditLogs.GET("/my-logs", r.Audit.GetMyAuditLogs)
	auditLogs.GET("/entity/:entityId", r.Audit.GetEntityAuditLogs)
	auditLogs.GET("/user/:userId", r.Audit.GetUserAuditLogs)
	auditLogs.GET("/correlation/:correlationId", r.Audit.GetCorrelatedAuditLogs)
	auditLogs.GET("/severity/:severity", r.Audit.GetAuditLogsBySeverity)
	auditLogs.GET("/:id", r.Audit.GetAuditLog)
	auditLogs.GET("/:id/changes", r.Audit.GetAuditLogChanges)

	products := api.Group("/products")
	products.GET("", r.Products.ListProducts)
	products.POST("", r.Products.CreateProduct)
	products.GET("/:id", r.Products.GetProductByID)
	products.PUT("/:id", r.Products.UpdateProduct)
	products.DELETE("/:id", r.Products.DeleteProduct)

	e.GET("/ws/audit-logs", r.Websocket.StreamAuditLogs, authenticated)
}
