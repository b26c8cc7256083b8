package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/skillswap-api/internal/middleware"
	"github.com/noah-isme/skillswap-api/internal/models"
)

// Handlers groups every HTTP handler mounted by RegisterRoutes.
type Handlers struct {
	Catalog    *CatalogHandler
	Schedule   *ScheduleHandler
	Booking    *BookingHandler
	Enrollment *EnrollmentHandler
	Payment    *PaymentHandler
	Trade      *TradeHandler
	Metrics    *MetricsHandler
}

// RegisterRoutes mounts the public probes at the root and the API under prefix.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, auth middleware.TokenAuthenticator) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)
	api.POST("/payments/webhook", h.Payment.Webhook)

	secured := api.Group("")
	secured.Use(middleware.JWT(auth))

	catalog := secured.Group("/catalog")
	catalog.GET("", h.Catalog.List)
	catalog.POST("", h.Catalog.Create)
	catalog.GET("/:id", h.Catalog.Get)
	catalog.PUT("/:id", h.Catalog.Update)
	catalog.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), h.Catalog.Delete)
	catalog.GET("/:id/reviews", h.Catalog.Reviews)
	catalog.POST("/:id/reviews", h.Catalog.Review)
	catalog.GET("/:id/slots", h.Schedule.ListAvailable)
	catalog.POST("/:id/slots", h.Schedule.CreateSlot)
	catalog.GET("/:id/schedule", h.Schedule.TeacherSchedule)
	catalog.GET("/:id/schedule/export", h.Schedule.Export)
	catalog.POST("/:id/checkout", h.Payment.Checkout)
	catalog.POST("/:id/payments/reconcile", h.Payment.Reconcile)

	slots := secured.Group("/slots")
	slots.PATCH("/:id", h.Schedule.UpdateSlot)
	slots.DELETE("/:id", h.Schedule.DeleteSlot)
	slots.POST("/:id/bookings", h.Booking.Book)

	bookings := secured.Group("/bookings")
	bookings.GET("/me", h.Booking.Mine)
	bookings.POST("/:id/cancel", h.Booking.Cancel)
	bookings.POST("/:id/teacher-complete", h.Booking.TeacherComplete)
	bookings.POST("/:id/student-confirm", h.Booking.StudentConfirm)
	bookings.POST("/:id/no-show", h.Booking.NoShow)

	secured.GET("/enrollments/me", h.Enrollment.Mine)

	trades := secured.Group("/trades")
	trades.GET("", h.Trade.List)
	trades.POST("", h.Trade.Propose)
	trades.POST("/:id/accept", h.Trade.Accept)
	trades.POST("/:id/decline", h.Trade.Decline)
	trades.POST("/:id/cancel", h.Trade.Cancel)
}
