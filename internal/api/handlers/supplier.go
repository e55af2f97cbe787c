package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/safar/rain-market/internal/models"
	"github.com/safar/rain-market/internal/service"
)

type CreateOfferRequest struct {
	ProductID     int64           `json:"product_id" binding:"required"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	MinOrderQty   int             `json:"min_order_qty"`
}

type UpdateOfferRequest struct {
	Price         *decimal.Decimal `json:"price,omitempty"`
	StockQuantity *int             `json:"stock_quantity,omitempty"`
	MinOrderQty   *int             `json:"min_order_qty,omitempty"`
	IsActive      *bool            `json:"is_active,omitempty"`
	Version       int              `json:"version" binding:"required"`
}

type SubmitApplicationRequest struct {
	DisplayName string          `json:"display_name" binding:"required"`
	CompanyName string          `json:"company_name"`
	Email       string          `json:"email"`
	Phone       string          `json:"phone"`
	PlanType    models.PlanType `json:"plan_type"`
}

// HandleCreateOffer handles POST /v1/supplier/offers
func HandleCreateOffer(offers *service.OfferService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := actorOrAbort(c)
		if !ok {
			return
		}

		var req CreateOfferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		offer, err := offers.CreateOffer(c.Request.Context(), actorID, service.CreateOfferInput{
			ProductID:     req.ProductID,
			Price:         req.Price,
			StockQuantity: req.StockQuantity,
			MinOrderQty:   req.MinOrderQty,
		})
		if err != nil {
			respondError(c, logger, "create offer", err)
			return
		}

		c.JSON(http.StatusCreated, offer)
	}
}

// HandleUpdateOffer handles PATCH /v1/supplier/offers/:id
func HandleUpdateOffer(offers *service.OfferService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := actorOrAbort(c)
		if !ok {
			return
		}
		offerID, ok := idParam(c, "id")
		if !ok {
			return
		}

		var req UpdateOfferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		offer, err := offers.UpdateOffer(c.Request.Context(), actorID, offerID, service.UpdateOfferInput{
			Price:         req.Price,
			StockQuantity: req.StockQuantity,
			MinOrderQty:   req.MinOrderQty,
			IsActive:      req.IsActive,
			Version:       req.Version,
		})
		if err != nil {
			respondError(c, logger, "update offer", err)
			return
		}

		c.JSON(http.StatusOK, offer)
	}
}

// HandleSubmitApplication handles POST /v1/supplier/applications
func HandleSubmitApplication(applications *service.ApplicationService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := actorOrAbort(c)
		if !ok {
			return
		}

		var req SubmitApplicationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		app, err := applications.Submit(c.Request.Context(), actorID, service.SubmitApplicationInput{
			DisplayName: req.DisplayName,
			CompanyName: req.CompanyName,
			Email:       req.Email,
			Phone:       req.Phone,
			PlanType:    req.PlanType,
		})
		if err != nil {
			respondError(c, logger, "submit application", err)
			return
		}

		c.JSON(http.StatusCreated, app)
	}
}

// HandleEarnings handles GET /v1/supplier/earnings
func HandleEarnings(reports *service.ReportService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, ok := earnings(c, reports, logger)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// HandleEarningsCSV handles GET /v1/supplier/earnings.csv
func HandleEarningsCSV(reports *service.ReportService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, ok := earnings(c, reports, logger)
		if !ok {
			return
		}

		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", `attachment; filename="earnings.csv"`)
		c.Status(http.StatusOK)
		if err := service.WriteEarningsCSV(c.Writer, report); err != nil {
			logger.Error("Failed to write earnings CSV", zap.Error(err))
		}
	}
}

func earnings(c *gin.Context, reports *service.ReportService, logger *zap.Logger) (*service.EarningsReport, bool) {
	actorID, ok := actorOrAbort(c)
	if !ok {
		return nil, false
	}

	from, ok := timeQuery(c, "from")
	if !ok {
		return nil, false
	}
	to, ok := timeQuery(c, "to")
	if !ok {
		return nil, false
	}

	report, err := reports.Earnings(c.Request.Context(), actorID, from, to)
	if err != nil {
		respondError(c, logger, "build earnings report", err)
		return nil, false
	}
	return report, true
}

// timeQuery parses an optional RFC 3339 or YYYY-MM-DD query parameter.
func timeQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}

	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, true
		}
	}

	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name, "field": name})
	return nil, false
}
