package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/avdeevlv/erp_backend/internal/logging"
	"github.com/avdeevlv/erp_backend/internal/models"
	"github.com/avdeevlv/erp_backend/internal/orders"
)

type OrderHandler struct {
	DB  *gorm.DB
	Svc *orders.Service
}

// resolveCustomer returns the customer id the caller may act for. A
// customer-role caller is pinned to their own profile; admins may act for
// any customer.
func (h *OrderHandler) resolveCustomer(c echo.Context, requested uint) (uint, error) {
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

func (h *OrderHandler) checkOwnership(c echo.Context, order *models.Order) error {
	if GetRole(c) == "admin" {
		return nil
	}
	userID, err := GetID(c)
	if err != nil {
		return err
	}
	customer, err := customerForUser(h.DB, userID)
	if err != nil {
		return err
	}
	if order.CustomerID != customer.ID {
		return echo.NewHTTPError(http.StatusForbidden, "not your order")
	}
	return nil
}

func (h *OrderHandler) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order_create")

	var req orders.CreateRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("order_create_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	customerID, err := h.resolveCustomer(c, req.CustomerID)
	if err != nil {
		return err
	}
	req.CustomerID = customerID

	order, err := h.Svc.Create(ctx, req)
	if err != nil {
		return serviceError(l, "order_create_failed", err)
	}
	return c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order_get")

	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	order, err := h.Svc.Get(ctx, id)
	if err != nil {
		return serviceError(l, "order_get_failed", err)
	}
	if err := h.checkOwnership(c, order); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order_list")

	filter := orders.ListFilter{
		Status:     models.OrderStatus(c.QueryParam("status")),
		CustomerID: uint(parseIntDefault(c.QueryParam("customer_id"), 0)),
		Limit:      parseIntDefault(c.QueryParam("limit"), 20),
		Offset:     parseIntDefault(c.QueryParam("offset"), 0),
	}
	if v := c.QueryParam("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid start_date")
		}
		filter.StartDate = &t
	}
	if v := c.QueryParam("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid end_date")
		}
		filter.EndDate = &t
	}

	// Non-admin callers only ever see their own orders.
	customerID, err := h.resolveCustomer(c, filter.CustomerID)
	if err != nil {
		return err
	}
	filter.CustomerID = customerID

	list, total, err := h.Svc.List(ctx, filter)
	if err != nil {
		return serviceError(l, "order_list_failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": list, "total": total})
}

func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order_update_status")

	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	order, err := h.Svc.UpdateStatus(ctx, id, req.Status)
	if err != nil {
		return serviceError(l, "order_update_status_failed", err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) UpdateOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order_update")

	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	order, err := h.Svc.Get(ctx, id)
	if err != nil {
		return serviceError(l, "order_update_failed", err)
	}
	if err := h.checkOwnership(c, order); err != nil {
		return err
	}

	var req orders.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	updated, err := h.Svc.Update(ctx, id, req)
	if err != nil {
		return serviceError(l, "order_update_failed", err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *OrderHandler) CancelOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order_cancel")

	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	order, err := h.Svc.Get(ctx, id)
	if err != nil {
		return serviceError(l, "order_cancel_failed", err)
	}
	if err := h.checkOwnership(c, order); err != nil {
		return err
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	cancelled, err := h.Svc.Cancel(ctx, id, req.Reason)
	if err != nil {
		return serviceError(l, "order_cancel_failed", err)
	}
	return c.JSON(http.StatusOK, cancelled)
}

func (h *OrderHandler) DeleteOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order_delete")

	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.Svc.Remove(ctx, id); err != nil {
		return serviceError(l, "order_delete_failed", err)
	}
	return c.NoContent(http.StatusNoContent)
}
