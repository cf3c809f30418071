package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/avdeevlv/erp_backend/internal/logging"
	"github.com/avdeevlv/erp_backend/internal/payments"
)

type PaymentHandler struct {
	DB  *gorm.DB
	Svc *payments.Service
}

func (h *PaymentHandler) resolveCustomer(c echo.Context, requested uint) (uint, error) {
	if GetRole(c) == "admin" {
		return requested, nil
	}
	userID, err := GetID(c)
	if err != nil {
		return 0, err
	}
	customer, err := customerForUser(h.DB, userID)
	if err != nil {
		return 0, err
	}
	if requested != 0 && requested != customer.ID {
		return 0, echo.NewHTTPError(http.StatusForbidden, "cannot act for another customer")
	}
	return customer.ID, nil
}

func (h *PaymentHandler) CreatePayment(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment_create")

	var req payments.CreateRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("payment_create_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	customerID, err := h.resolveCustomer(c, req.CustomerID)
	if err != nil {
		return err
	}
	req.CustomerID = customerID

	payment, err := h.Svc.Create(ctx, req)
	if err != nil {
		// A failed gateway charge still produced a payment row; return
		// it alongside the error status.
		if payment != nil {
			return c.JSON(http.StatusBadGateway, payment)
		}
		return serviceError(l, "payment_create_failed", err)
	}
	return c.JSON(http.StatusCreated, payment)
}

func (h *PaymentHandler) GetPayment(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment_get")

	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	payment, err := h.Svc.Get(ctx, id)
	if err != nil {
		return serviceError(l, "payment_get_failed", err)
	}

	if GetRole(c) != "admin" {
		userID, err := GetID(c)
		if err != nil {
			return err
		}
		customer, err := customerForUser(h.DB, userID)
		if err != nil {
			return err
		}
		if payment.CustomerID != customer.ID {
			return echo.NewHTTPError(http.StatusForbidden, "not your payment")
		}
	}
	return c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) ListOrderPayments(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment_list")

	orderID, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	list, err := h.Svc.ListForOrder(ctx, orderID)
	if err != nil {
		return serviceError(l, "payment_list_failed", err)
	}

	if GetRole(c) != "admin" {
		userID, err := GetID(c)
		if err != nil {
			return err
		}
		customer, err := customerForUser(h.DB, userID)
		if err != nil {
			return err
		}
		for _, p := range list {
			if p.CustomerID != customer.ID {
				return echo.NewHTTPError(http.StatusForbidden, "not your order")
			}
		}
	}
	return c.JSON(http.StatusOK, list)
}

func (h *PaymentHandler) RefundPayment(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment_refund")

	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Amount *float64 `json:"amount"`
		Reason string   `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	payment, err := h.Svc.Refund(ctx, id, req.Amount, req.Reason)
	if err != nil {
		return serviceError(l, "payment_refund_failed", err)
	}
	return c.JSON(http.StatusOK, payment)
}
