package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/avdeevlv/erp_backend/internal/hash"
	"github.com/avdeevlv/erp_backend/internal/inventory"
	"github.com/avdeevlv/erp_backend/internal/models"
	"github.com/avdeevlv/erp_backend/internal/notify"
	"github.com/avdeevlv/erp_backend/internal/orders"
	"github.com/avdeevlv/erp_backend/internal/payments"
)

func InitTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.RefreshToken{},
		&models.Product{}, &models.Customer{},
		&models.Order{}, &models.OrderItem{}, &models.Payment{},
	); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return db
}

func newContext(t *testing.T, method, target string, body any) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	e := echo.New()
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func asCustomer(c echo.Context, userID uint) {
	c.Set("userID", userID)
	c.Set("role", "customer")
}

func asAdmin(c echo.Context) {
	c.Set("userID", uint(1))
	c.Set("role", "admin")
}

func seedCustomerUser(t *testing.T, db *gorm.DB) (models.User, models.Customer) {
	pw, err := hash.HashPassword("password")
	require.NoError(t, err)
	user := models.User{Username: "ann", PasswordHash: pw, Role: "customer"}
	require.NoError(t, db.Create(&user).Error)
	customer := models.Customer{
		UserID: user.ID, FirstName: "Ann", LastName: "Lee",
		Email: "ann@example.com", Active: true,
	}
	require.NoError(t, db.Create(&customer).Error)
	return user, customer
}

func TestRegister(t *testing.T) {
	db := InitTestDB(t)
	h := AuthHandler{DB: db, JWTSecret: []byte("jwt"), RefreshSecret: []byte("refresh"), Sink: notify.NopSink{}}

	c, rec := newContext(t, http.MethodPost, "/register", map[string]string{
		"username":   "test_user",
		"password":   "password",
		"email":      "test@example.com",
		"first_name": "Test",
		"last_name":  "User",
	})
	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "test_user", resp["username"])
	require.Equal(t, "customer", resp["role"])

	var customer models.Customer
	require.NoError(t, db.Where("email = ?", "test@example.com").First(&customer).Error)
	require.True(t, customer.Active)

	// Same username again conflicts.
	c2, _ := newContext(t, http.MethodPost, "/register", map[string]string{
		"username": "test_user", "password": "password", "email": "other@example.com",
	})
	err := h.Register(c2)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusConflict, he.Code)
}

func TestLogin(t *testing.T) {
	db := InitTestDB(t)
	h := AuthHandler{DB: db, JWTSecret: []byte("jwt"), RefreshSecret: []byte("refresh"), Sink: notify.NopSink{}}
	seedCustomerUser(t, db)

	c, rec := newContext(t, http.MethodPost, "/login", map[string]string{
		"username": "ann", "password": "password",
	})
	require.NoError(t, h.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["access_token"])
	require.NotEmpty(t, resp["refresh_token"])
	require.Equal(t, false, resp["is_admin"])

	var stored models.RefreshToken
	require.NoError(t, db.First(&stored).Error)
	require.NotEqual(t, resp["refresh_token"], stored.Token, "refresh token must be stored hashed")

	c2, _ := newContext(t, http.MethodPost, "/login", map[string]string{
		"username": "ann", "password": "wrong",
	})
	err := h.Login(c2)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func newOrderHandler(db *gorm.DB) *OrderHandler {
	ledger := &inventory.Ledger{DB: db}
	svc := &orders.Service{DB: db, Ledger: ledger, Sink: notify.NopSink{}}
	return &OrderHandler{DB: db, Svc: svc}
}

func TestCreateOrderEndpoint(t *testing.T) {
	db := InitTestDB(t)
	h := newOrderHandler(db)
	user, _ := seedCustomerUser(t, db)
	product := models.Product{SKU: "A1", Name: "widget", Price: 20, Stock: 50, Active: true}
	require.NoError(t, db.Create(&product).Error)

	c, rec := newContext(t, http.MethodPost, "/orders", map[string]any{
		"items":            []map[string]any{{"product_id": product.ID, "quantity": 2}},
		"shipping_address": "1 Main St",
		"billing_address":  "1 Main St",
	})
	asCustomer(c, user.ID)

	require.NoError(t, h.CreateOrder(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var order models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	require.Equal(t, models.OrderStatusPending, order.Status)
	require.Equal(t, 54.0, order.Total)
	require.Regexp(t, `^ORD-\d{8}-\d{6}$`, order.Number)

	var got models.Product
	require.NoError(t, db.First(&got, product.ID).Error)
	require.Equal(t, 48, got.Stock)
}

func TestCreateOrderEndpointInsufficientStock(t *testing.T) {
	db := InitTestDB(t)
	h := newOrderHandler(db)
	user, _ := seedCustomerUser(t, db)
	product := models.Product{SKU: "A1", Name: "widget", Price: 20, Stock: 1, Active: true}
	require.NoError(t, db.Create(&product).Error)

	c, _ := newContext(t, http.MethodPost, "/orders", map[string]any{
		"items":            []map[string]any{{"product_id": product.ID, "quantity": 5}},
		"shipping_address": "1 Main St",
		"billing_address":  "1 Main St",
	})
	asCustomer(c, user.ID)

	err := h.CreateOrder(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusConflict, he.Code)
}

func TestGetOrderOwnership(t *testing.T) {
	db := InitTestDB(t)
	h := newOrderHandler(db)
	user, customer := seedCustomerUser(t, db)

	otherUser := models.User{Username: "bob", PasswordHash: "x", Role: "customer"}
	require.NoError(t, db.Create(&otherUser).Error)
	other := models.Customer{UserID: otherUser.ID, FirstName: "Bob", LastName: "Kim", Email: "bob@example.com", Active: true}
	require.NoError(t, db.Create(&other).Error)

	order := models.Order{Number: "ORD-20260830-000002", CustomerID: customer.ID, Status: models.OrderStatusPending, Total: 54}
	require.NoError(t, db.Create(&order).Error)

	c, rec := newContext(t, http.MethodGet, "/orders/1", nil)
	c.SetParamNames("id")
	c.SetParamValues("1")
	asCustomer(c, user.ID)
	require.NoError(t, h.GetOrder(c))
	require.Equal(t, http.StatusOK, rec.Code)

	c2, _ := newContext(t, http.MethodGet, "/orders/1", nil)
	c2.SetParamNames("id")
	c2.SetParamValues("1")
	asCustomer(c2, otherUser.ID)
	err := h.GetOrder(c2)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusForbidden, he.Code)

	c3, rec3 := newContext(t, http.MethodGet, "/orders/1", nil)
	c3.SetParamNames("id")
	c3.SetParamValues("1")
	asAdmin(c3)
	require.NoError(t, h.GetOrder(c3))
	require.Equal(t, http.StatusOK, rec3.Code)
}

func TestCreatePaymentEndpointUnderpayment(t *testing.T) {
	db := InitTestDB(t)
	user, customer := seedCustomerUser(t, db)
	svc := &payments.Service{DB: db, Sink: notify.NopSink{}, Gateways: payments.Gateways{}}
	h := &PaymentHandler{DB: db, Svc: svc}

	order := models.Order{Number: "ORD-20260830-000003", CustomerID: customer.ID, Status: models.OrderStatusPending, Total: 110}
	require.NoError(t, db.Create(&order).Error)

	c, _ := newContext(t, http.MethodPost, "/payments", map[string]any{
		"order_id":       order.ID,
		"amount":         50,
		"payment_method": models.PaymentMethodCash,
	})
	asCustomer(c, user.ID)

	err := h.CreatePayment(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusConflict, he.Code)
}

func TestCreatePaymentEndpointManual(t *testing.T) {
	db := InitTestDB(t)
	user, customer := seedCustomerUser(t, db)
	svc := &payments.Service{DB: db, Sink: notify.NopSink{}, Gateways: payments.Gateways{}}
	h := &PaymentHandler{DB: db, Svc: svc}

	order := models.Order{Number: "ORD-20260830-000004", CustomerID: customer.ID, Status: models.OrderStatusPending, Total: 110}
	require.NoError(t, db.Create(&order).Error)

	c, rec := newContext(t, http.MethodPost, "/payments", map[string]any{
		"order_id":       order.ID,
		"amount":         110,
		"payment_method": models.PaymentMethodCash,
	})
	asCustomer(c, user.ID)

	require.NoError(t, h.CreatePayment(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var payment models.Payment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payment))
	require.Equal(t, models.PaymentStatusPending, payment.Status)
	require.Equal(t, customer.ID, payment.CustomerID)
}

func TestAdjustStockEndpoint(t *testing.T) {
	db := InitTestDB(t)
	h := &ProductHandler{DB: db, Ledger: &inventory.Ledger{DB: db}, Sink: notify.NopSink{}}
	product := models.Product{SKU: "A1", Name: "widget", Price: 20, Stock: 10, Active: true}
	require.NoError(t, db.Create(&product).Error)

	c, rec := newContext(t, http.MethodPost, "/admin/products/1/stock", map[string]any{
		"delta":     5,
		"direction": "ADD",
	})
	c.SetParamNames("id")
	c.SetParamValues("1")
	asAdmin(c)

	require.NoError(t, h.AdjustStock(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Product
	require.NoError(t, db.First(&got, product.ID).Error)
	require.Equal(t, 15, got.Stock)
}

func TestDeleteProductReferencedByOrder(t *testing.T) {
	db := InitTestDB(t)
	h := &ProductHandler{DB: db, Ledger: &inventory.Ledger{DB: db}, Sink: notify.NopSink{}}
	_, customer := seedCustomerUser(t, db)

	product := models.Product{SKU: "A1", Name: "widget", Price: 20, Stock: 10, Active: true}
	require.NoError(t, db.Create(&product).Error)
	order := models.Order{Number: "ORD-20260830-000005", CustomerID: customer.ID, Status: models.OrderStatusPending, Total: 54}
	require.NoError(t, db.Create(&order).Error)
	item := models.OrderItem{OrderID: order.ID, ProductID: product.ID, ProductName: product.Name, Quantity: 2, UnitPrice: 20, LineTotal: 40}
	require.NoError(t, db.Create(&item).Error)

	c, rec := newContext(t, http.MethodDelete, "/admin/products/1", nil)
	c.SetParamNames("id")
	c.SetParamValues("1")
	asAdmin(c)

	require.NoError(t, h.DeleteProduct(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Referenced products are deactivated, not removed.
	var got models.Product
	require.NoError(t, db.First(&got, product.ID).Error)
	require.False(t, got.Active)
}
