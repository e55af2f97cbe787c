package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/safar/rain-market/internal/gateway"
	"github.com/safar/rain-market/internal/models"
	"github.com/safar/rain-market/internal/service"
)

const maxWebhookBody = 1 << 20

type CheckoutRequest struct {
	Method models.PaymentMethod `json:"method" binding:"required"`
}

type CheckoutResponse struct {
	Payment     *models.Payment `json:"payment"`
	RedirectURL string          `json:"redirect_url"`
}

// HandleCheckout handles POST /v1/orders/:id/checkout
func HandleCheckout(checkout *service.CheckoutService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := actorOrAbort(c)
		if !ok {
			return
		}
		orderID, ok := idParam(c, "id")
		if !ok {
			return
		}

		var req CheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		res, err := checkout.BeginCheckout(c.Request.Context(), orderID, actorID, req.Method)
		if err != nil {
			if errors.Is(err, service.ErrGatewayUnavailable) {
				logger.Warn("Checkout session not created",
					zap.Int64("order_id", orderID),
					zap.Error(err))
				c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable", "retryable": true})
				return
			}
			respondError(c, logger, "begin checkout", err)
			return
		}

		c.JSON(http.StatusCreated, CheckoutResponse{Payment: res.Payment, RedirectURL: res.RedirectURL})
	}
}

// HandleVerifyPayment handles POST /v1/orders/:id/payment/verify
func HandleVerifyPayment(checkout *service.CheckoutService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := actorOrAbort(c)
		if !ok {
			return
		}
		orderID, ok := idParam(c, "id")
		if !ok {
			return
		}

		payment, err := checkout.VerifyPayment(c.Request.Context(), orderID, actorID)
		if err != nil {
			respondError(c, logger, "verify payment", err)
			return
		}

		c.JSON(http.StatusOK, payment)
	}
}

// HandlePaymentWebhook handles POST /webhooks/payments. Signature and
// parse failures are 400; internal failures are 500 so the gateway
// redelivers.
func HandlePaymentWebhook(reconciler *service.Reconciler, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		signature := c.GetHeader(reconciler.SignatureHeader())
		outcome, err := reconciler.HandleWebhook(c.Request.Context(), payload, signature)
		if err != nil {
			if errors.Is(err, gateway.ErrInvalidSignature) || errors.Is(err, gateway.ErrMalformedEvent) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			logger.Error("Failed to reconcile payment webhook", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"received": true, "outcome": outcome})
	}
}
