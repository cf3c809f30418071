package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/avdeevlv/erp_backend/internal/apperr"
	"github.com/avdeevlv/erp_backend/internal/models"
)

// GetID reads the user id placed in the context by the auth middleware.
func GetID(c echo.Context) (uint, error) {
	id, ok := c.Get("userID").(uint)
	if !ok || id == 0 {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	return id, nil
}

func GetRole(c echo.Context) string {
	role, _ := c.Get("role").(string)
	return role
}

// serviceError maps a service failure onto an HTTP response, logging
// unknown errors as internal.
func serviceError(l *slog.Logger, op string, err error) error {
	status := apperr.Status(err)
	if status == http.StatusInternalServerError {
		l.Error(op, "status", status, "error", err)
		return echo.NewHTTPError(status, "internal error")
	}
	l.Warn(op, "status", status, "error", err)
	return echo.NewHTTPError(status, err.Error())
}

func parseUintParam(c echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || v == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return uint(v), nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

// customerForUser resolves the customer profile owned by the
// authenticated user.
func customerForUser(db *gorm.DB, userID uint) (*models.Customer, error) {
	var customer models.Customer
	if err := db.Where("user_id = ?", userID).First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, echo.NewHTTPError(http.StatusForbidden, "no customer profile")
		}
		return nil, err
	}
	return &customer, nil
}
