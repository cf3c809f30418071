package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/avdeevlv/erp_backend/internal/logging"
	"github.com/avdeevlv/erp_backend/internal/models"
	"github.com/avdeevlv/erp_backend/internal/util"
)

type CustomerHandler struct {
	DB *gorm.DB
}

type customerRequest struct {
	FirstName     *string  `json:"first_name"`
	LastName      *string  `json:"last_name"`
	Email         *string  `json:"email"`
	Phone         *string  `json:"phone"`
	Address       *string  `json:"address"`
	Preferences   *string  `json:"preferences"`
	CreditLimit   *float64 `json:"credit_limit"`
	LoyaltyPoints *uint    `json:"loyalty_points"`
	VIP           *bool    `json:"vip"`
	Active        *bool    `json:"active"`
}

func (h *CustomerHandler) emailTaken(email string, excludeID uint) (bool, error) {
	var existing models.Customer
	err := h.DB.Where("email = ? AND id <> ?", email, excludeID).First(&existing).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

func (h *CustomerHandler) CreateCustomer(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "customer_create")

	var req customerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Email == nil || *req.Email == "" || req.FirstName == nil || req.LastName == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "first_name, last_name and email required")
	}

	taken, err := h.emailTaken(*req.Email, 0)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if taken {
		l.Warn("customer_create_failed", "status", 409, "reason", "duplicate email")
		return echo.NewHTTPError(http.StatusConflict, "email already exists")
	}

	customer := models.Customer{
		FirstName: *req.FirstName,
		LastName:  *req.LastName,
		Email:     *req.Email,
		Active:    true,
	}
	applyCustomerPatch(&customer, req)

	if err := h.DB.Create(&customer).Error; err != nil {
		l.Error("customer_create_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("customer_created", "customer_id", customer.ID)
	return c.JSON(http.StatusCreated, customer)
}

func (h *CustomerHandler) GetCustomers(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.Model(&models.Customer{}).Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	var items []models.Customer
	if err := h.DB.Model(&models.Customer{}).Order("id ASC").
		Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{"page": page, "size": limit, "total": total},
	})
}

func (h *CustomerHandler) GetCustomer(c echo.Context) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	var customer models.Customer
	if err := h.DB.First(&customer, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "customer not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, customer)
}

func (h *CustomerHandler) PatchCustomer(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "customer_patch")

	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	var req customerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var customer models.Customer
	if err := h.DB.First(&customer, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "customer not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if req.Email != nil && *req.Email != customer.Email {
		taken, err := h.emailTaken(*req.Email, customer.ID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
		if taken {
			l.Warn("customer_patch_failed", "status", 409, "reason", "duplicate email")
			return echo.NewHTTPError(http.StatusConflict, "email already exists")
		}
		customer.Email = *req.Email
	}
	if req.FirstName != nil {
		customer.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		customer.LastName = *req.LastName
	}
	applyCustomerPatch(&customer, req)

	if err := h.DB.Save(&customer).Error; err != nil {
		l.Error("customer_patch_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, customer)
}

// DeleteCustomer deactivates the profile; rows referenced by orders and
// payments are never removed.
func (h *CustomerHandler) DeleteCustomer(c echo.Context) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	result := h.DB.Model(&models.Customer{}).Where("id = ?", id).Update("active", false)
	if result.Error != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if result.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "customer not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func applyCustomerPatch(customer *models.Customer, req customerRequest) {
	if req.Phone != nil {
		customer.Phone = *req.Phone
	}
	if req.Address != nil {
		customer.Address = *req.Address
	}
	if req.Preferences != nil {
		customer.Preferences = *req.Preferences
	}
	if req.CreditLimit != nil {
		customer.CreditLimit = *req.CreditLimit
	}
	if req.LoyaltyPoints != nil {
		customer.LoyaltyPoints = *req.LoyaltyPoints
	}
	if req.VIP != nil {
		customer.VIP = *req.VIP
	}
	if req.Active != nil {
		customer.Active = *req.Active
	}
}
