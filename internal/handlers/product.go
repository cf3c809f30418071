package handlers

import (
	"errors"
	"net/http"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/avdeevlv/erp_backend/internal/inventory"
	"github.com/avdeevlv/erp_backend/internal/logging"
	"github.com/avdeevlv/erp_backend/internal/models"
	"github.com/avdeevlv/erp_backend/internal/notify"
	"github.com/avdeevlv/erp_backend/internal/search"
	"github.com/avdeevlv/erp_backend/internal/util"
)

type ProductHandler struct {
	DB     *gorm.DB
	Ledger *inventory.Ledger
	Sink   notify.Sink
	ES     *elasticsearch.Client
	Index  string
}

func (h *ProductHandler) index(c echo.Context, p models.Product) {
	if h.ES == nil {
		return
	}
	ctx := c.Request().Context()
	if err := search.IndexProduct(ctx, h.ES, h.Index, p); err != nil {
		logging.FromContext(ctx).Warn("product_index_failed", "product_id", p.ID, "error", err)
	}
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	var product models.Product
	if err := h.DB.First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.Model(&models.Product{}).Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	var items []models.Product
	if err := h.DB.Model(&models.Product{}).Order("id ASC").
		Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product_create")

	var req struct {
		SKU         string  `json:"sku"`
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Price       float64 `json:"price"`
		Stock       int     `json:"stock"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.SKU == "" || req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sku and name required")
	}
	if req.Price < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "price cannot be negative")
	}
	if req.Stock < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "stock cannot be negative")
	}

	var dup models.Product
	if err := h.DB.Where("sku = ?", req.SKU).First(&dup).Error; err == nil {
		l.Warn("product_create_failed", "status", 409, "reason", "duplicate sku", "sku", req.SKU)
		return echo.NewHTTPError(http.StatusConflict, "sku already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	product := models.Product{
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Active:      true,
	}
	if err := h.DB.Create(&product).Error; err != nil {
		l.Error("product_create_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.index(c, product)
	h.Sink.Notify(ctx, notify.TopicProductEvents, notify.Event{
		Type:      "product_created",
		Broadcast: true,
		Payload:   map[string]any{"product_id": product.ID, "sku": product.SKU, "name": product.Name},
	})

	l.Info("product_created", "product_id", product.ID, "sku", product.SKU)
	return c.JSON(http.StatusCreated, product)
}

func (h *ProductHandler) PatchProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product_patch")

	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Name        *string  `json:"name"`
		Description *string  `json:"description"`
		Price       *float64 `json:"price"`
		Active      *bool    `json:"active"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Price != nil && *req.Price < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "price cannot be negative")
	}

	var product models.Product
	if err := h.DB.First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.Active != nil {
		product.Active = *req.Active
	}

	if err := h.DB.Save(&product).Error; err != nil {
		l.Error("product_patch_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.index(c, product)
	h.Sink.Notify(ctx, notify.TopicProductEvents, notify.Event{
		Type:      "product_updated",
		Broadcast: true,
		Payload:   map[string]any{"product_id": product.ID, "name": product.Name},
	})

	return c.JSON(http.StatusOK, product)
}

// DeleteProduct hard-deletes an unreferenced product. A product already
// referenced by order items is deactivated instead, preserving order
// history.
func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product_delete")

	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	var product models.Product
	if err := h.DB.First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	var refs int64
	if err := h.DB.Model(&models.OrderItem{}).Where("product_id = ?", id).Count(&refs).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if refs > 0 {
		if err := h.DB.Model(&product).Update("active", false).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
		l.Info("product_deactivated", "product_id", id, "order_refs", refs)
	} else {
		if err := h.DB.Delete(&models.Product{}, id).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
		if h.ES != nil {
			if err := search.DeleteProduct(ctx, h.ES, h.Index, id); err != nil {
				l.Warn("product_index_delete_failed", "product_id", id, "error", err)
			}
		}
		l.Info("product_deleted", "product_id", id)
	}

	h.Sink.Notify(ctx, notify.TopicProductEvents, notify.Event{
		Type:      "product_deleted",
		Broadcast: true,
		Payload:   map[string]any{"product_id": id},
	})

	return c.NoContent(http.StatusNoContent)
}

// AdjustStock applies a manual stock correction through the ledger.
func (h *ProductHandler) AdjustStock(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product_adjust_stock")

	id, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Delta     int                 `json:"delta"`
		Direction inventory.Direction `json:"direction"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	remaining, err := h.Ledger.Adjust(ctx, id, req.Delta, req.Direction)
	if err != nil {
		return serviceError(l, "adjust_stock_failed", err)
	}

	l.Info("stock_adjusted", "product_id", id, "direction", req.Direction, "delta", req.Delta, "stock", remaining)
	return c.JSON(http.StatusOK, echo.Map{"product_id": id, "stock": remaining})
}
