package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/avdeevlv/erp_backend/internal/handlers"
	authmw "github.com/avdeevlv/erp_backend/internal/middleware/auth"
)

func TestRegisterPaths(t *testing.T) {
	e := echo.New()
	Register(e, &Deps{
		AuthHandler:     &handlers.AuthHandler{},
		ProductHandler:  &handlers.ProductHandler{},
		CustomerHandler: &handlers.CustomerHandler{},
		OrderHandler:    &handlers.OrderHandler{},
		PaymentHandler:  &handlers.PaymentHandler{},
		SearchHandler:   &handlers.SearchHandler{},
		ServiceHandler:  &authmw.TokenService{},
	})

	registered := map[string]bool{}
	for _, r := range e.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	for _, route := range []string{
		"POST /api/v1/register",
		"POST /api/v1/login",
		"GET /api/v1/search",
		"GET /api/v1/products",
		"GET /api/v1/products/:id",
		"POST /api/v1/orders",
		"GET /api/v1/orders",
		"GET /api/v1/orders/:id",
		"PATCH /api/v1/orders/:id",
		"PUT /api/v1/orders/:id/cancel",
		"PUT /api/v1/orders/:id/status",
		"DELETE /api/v1/orders/:id",
		"POST /api/v1/payments",
		"GET /api/v1/payments/:id",
		"GET /api/v1/orders/:id/payments",
		"POST /api/v1/payments/:id/refund",
		"POST /api/v1/admin/products",
		"POST /api/v1/admin/products/:id/stock",
		"POST /api/v1/admin/customers",
		"GET /health/live",
	} {
		require.True(t, registered[route], "missing route %s", route)
	}

	require.False(t, registered["PUT /api/v1/admin/orders/:id/status"])
	require.False(t, registered["POST /api/v1/admin/payments/:id/refund"])
}

func TestHealthEndpoints(t *testing.T) {
	e := echo.New()
	Register(e, &Deps{
		AuthHandler:     &handlers.AuthHandler{},
		ProductHandler:  &handlers.ProductHandler{},
		CustomerHandler: &handlers.CustomerHandler{},
		OrderHandler:    &handlers.OrderHandler{},
		PaymentHandler:  &handlers.PaymentHandler{},
		SearchHandler:   &handlers.SearchHandler{},
		ServiceHandler:  &authmw.TokenService{},
	})

	for _, path := range []string{"/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}
