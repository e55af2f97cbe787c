package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/safar/rain-market/internal/api/middleware"
	"github.com/safar/rain-market/internal/database"
	"github.com/safar/rain-market/internal/gateway"
	"github.com/safar/rain-market/internal/pricing"
	"github.com/safar/rain-market/internal/service"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{service.ErrForbidden, http.StatusForbidden},
	{service.ErrInvalidAction, http.StatusBadRequest},
	{service.ErrUnsupportedCurrency, http.StatusBadRequest},
	{service.ErrOrderNotPayable, http.StatusConflict},
	{service.ErrAlreadyPaid, http.StatusConflict},
	{service.ErrPaymentCaptured, http.StatusConflict},
	{service.ErrNoPaymentReference, http.StatusConflict},
	{service.ErrGatewayUnavailable, http.StatusBadGateway},

	{pricing.ErrInvalidQuantity, http.StatusUnprocessableEntity},
	{pricing.ErrQuantityBelowMinimum, http.StatusUnprocessableEntity},
	{pricing.ErrOfferInactive, http.StatusUnprocessableEntity},

	{database.ErrUserNotFound, http.StatusNotFound},
	{database.ErrProductNotFound, http.StatusNotFound},
	{database.ErrOfferNotFound, http.StatusNotFound},
	{database.ErrOrderNotFound, http.StatusNotFound},
	{database.ErrPaymentNotFound, http.StatusNotFound},
	{database.ErrApplicationNotFound, http.StatusNotFound},
	{database.ErrInsufficientStock, http.StatusConflict},
	{database.ErrOptimisticLockFailed, http.StatusConflict},
	{database.ErrAlreadyReviewed, http.StatusConflict},
	{database.ErrLockTimeout, http.StatusConflict},

	{gateway.ErrInvalidSignature, http.StatusBadRequest},
	{gateway.ErrMalformedEvent, http.StatusBadRequest},
	{gateway.ErrUnknownReference, http.StatusBadGateway},
}

// statusFor maps a service error onto its HTTP status. Unknown errors are
// internal.
func statusFor(err error) int {
	if service.IsValidationError(err) {
		return http.StatusBadRequest
	}
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// respondError writes err as a JSON error body. Only internal errors are
// logged, and their detail is not sent to the client.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("Failed to "+op,
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}

	var ve *service.ValidationError
	if errors.As(err, &ve) {
		c.JSON(status, gin.H{"error": ve.Message, "field": ve.Field})
		return
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

func actorOrAbort(c *gin.Context) (int64, bool) {
	actorID, ok := middleware.GetActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return actorID, ok
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// queryInt reads an integer query parameter, falling back to def when it
// is missing or outside [lo, hi].
func queryInt(c *gin.Context, name string, def, lo, hi int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < lo || v > hi {
		return def
	}
	return v
}
