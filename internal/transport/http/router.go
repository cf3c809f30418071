package httpserver

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/avdeevlv/erp_backend/internal/handlers"
	authmw "github.com/avdeevlv/erp_backend/internal/middleware/auth"
)

type Deps struct {
	DB              *gorm.DB
	AuthHandler     *handlers.AuthHandler
	ProductHandler  *handlers.ProductHandler
	CustomerHandler *handlers.CustomerHandler
	OrderHandler    *handlers.OrderHandler
	PaymentHandler  *handlers.PaymentHandler
	SearchHandler   *handlers.SearchHandler
	ServiceHandler  *authmw.TokenService
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.LogOut)
	v1.GET("/search", d.SearchHandler.Handler)

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/:id", d.ProductHandler.GetProduct)

	authed := v1.Group("", d.ServiceHandler.AutoRefreshMiddleware)

	authed.POST("/orders", d.OrderHandler.CreateOrder)
	authed.GET("/orders", d.OrderHandler.ListOrders)
	authed.GET("/orders/:id", d.OrderHandler.GetOrder)
	authed.PATCH("/orders/:id", d.OrderHandler.UpdateOrder)
	authed.PUT("/orders/:id/cancel", d.OrderHandler.CancelOrder)

	authed.POST("/payments", d.PaymentHandler.CreatePayment)
	authed.GET("/payments/:id", d.PaymentHandler.GetPayment)
	authed.GET("/orders/:id/payments", d.PaymentHandler.ListOrderPayments)

	// Admin-only operations on the shared resource paths. These take the
	// admin middleware directly rather than the authed group's, so the
	// cookie is checked (and possibly rotated) exactly once.
	v1.PUT("/orders/:id/status", d.OrderHandler.UpdateStatus, d.ServiceHandler.AutoRefreshMiddlewareAdmin)
	v1.DELETE("/orders/:id", d.OrderHandler.DeleteOrder, d.ServiceHandler.AutoRefreshMiddlewareAdmin)
	v1.POST("/payments/:id/refund", d.PaymentHandler.RefundPayment, d.ServiceHandler.AutoRefreshMiddlewareAdmin)

	admin := v1.Group("/admin", d.ServiceHandler.AutoRefreshMiddlewareAdmin)

	admin.POST("/products", d.ProductHandler.CreateProduct)
	admin.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	admin.DELETE("/products/:id", d.ProductHandler.DeleteProduct)
	admin.POST("/products/:id/stock", d.ProductHandler.AdjustStock)

	admin.POST("/customers", d.CustomerHandler.CreateCustomer)
	admin.GET("/customers", d.CustomerHandler.GetCustomers)
	admin.GET("/customers/:id", d.CustomerHandler.GetCustomer)
	admin.PATCH("/customers/:id", d.CustomerHandler.PatchCustomer)
	admin.DELETE("/customers/:id", d.CustomerHandler.DeleteCustomer)

}
