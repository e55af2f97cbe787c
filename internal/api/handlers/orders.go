package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/safar/rain-market/internal/models"
	"github.com/safar/rain-market/internal/service"
	"github.com/safar/rain-market/internal/store"
)

type CreateOrderRequest struct {
	OfferID           int64  `json:"offer_id" binding:"required"`
	Quantity          int    `json:"quantity"`
	ShippingAddressID *int64 `json:"shipping_address_id,omitempty"`
}

// OrderResponse wraps an order with its amount in the requested display
// currency.
type OrderResponse struct {
	*models.Order
	Currency        string           `json:"currency"`
	DisplayCurrency string           `json:"display_currency,omitempty"`
	DisplayTotal    *decimal.Decimal `json:"display_total,omitempty"`
}

type TransitionResponse struct {
	Order  *models.Order            `json:"order"`
	Result service.TransitionResult `json:"result"`
}

// HandleCreateOrder handles POST /v1/orders
func HandleCreateOrder(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := actorOrAbort(c)
		if !ok {
			return
		}

		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		order, err := orders.CreateOrder(c.Request.Context(), service.CreateOrderInput{
			BuyerID:           actorID,
			OfferID:           req.OfferID,
			Quantity:          req.Quantity,
			ShippingAddressID: req.ShippingAddressID,
		})
		if err != nil {
			respondError(c, logger, "create order", err)
			return
		}

		c.JSON(http.StatusCreated, OrderResponse{Order: order, Currency: orders.SettlementCurrency()})
	}
}

// HandleGetOrder handles GET /v1/orders/:id
func HandleGetOrder(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := actorOrAbort(c)
		if !ok {
			return
		}
		orderID, ok := idParam(c, "id")
		if !ok {
			return
		}

		order, err := orders.GetOrder(c.Request.Context(), orderID, actorID)
		if err != nil {
			respondError(c, logger, "get order", err)
			return
		}

		resp := OrderResponse{Order: order, Currency: orders.SettlementCurrency()}
		if display := strings.ToUpper(c.Query("currency")); display != "" && display != resp.Currency {
			total, err := orders.ConvertTotal(order.TotalAmount, display)
			if err != nil {
				respondError(c, logger, "convert order total", err)
				return
			}
			resp.DisplayCurrency = display
			resp.DisplayTotal = &total
		}

		c.JSON(http.StatusOK, resp)
	}
}

// HandleTransitionOrder handles POST /v1/orders/:id/{accept,ship,confirm-delivery,cancel}
func HandleTransitionOrder(orders *service.OrderService, action models.OrderAction, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := actorOrAbort(c)
		if !ok {
			return
		}
		orderID, ok := idParam(c, "id")
		if !ok {
			return
		}

		order, result, err := orders.TransitionOrder(c.Request.Context(), orderID, actorID, action)
		if err != nil {
			respondError(c, logger, string(action)+" order", err)
			return
		}

		c.JSON(http.StatusOK, TransitionResponse{Order: order, Result: result})
	}
}

// HandleListBuyerOrders handles GET /v1/orders
func HandleListBuyerOrders(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return listOrders(logger, orders.ListBuyerOrders)
}

// HandleListSupplierOrders handles GET /v1/supplier/orders
func HandleListSupplierOrders(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return listOrders(logger, orders.ListSupplierOrders)
}

func listOrders(logger *zap.Logger, list func(ctx context.Context, actorID int64, cursor string, limit int) (*store.CursorPage, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := actorOrAbort(c)
		if !ok {
			return
		}

		cursor := c.Query("cursor")
		if _, err := store.DecodeCursor(cursor); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
		limit := queryInt(c, "limit", 20, 1, 100)

		page, err := list(c.Request.Context(), actorID, cursor, limit)
		if err != nil {
			respondError(c, logger, "list orders", err)
			return
		}

		c.JSON(http.StatusOK, page)
	}
}

// HandleQuote handles GET /v1/offers/:id/quote
func HandleQuote(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := actorOrAbort(c)
		if !ok {
			return
		}
		offerID, ok := idParam(c, "id")
		if !ok {
			return
		}
		quantity := 1
		if raw := c.Query("quantity"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity"})
				return
			}
			quantity = n
		}

		line, err := orders.Quote(c.Request.Context(), actorID, offerID, quantity)
		if err != nil {
			respondError(c, logger, "quote offer", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"offer_id": offerID,
			"quantity": quantity,
			"currency": orders.SettlementCurrency(),
			"line":     line,
		})
	}
}
