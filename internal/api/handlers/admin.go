package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/safar/rain-market/internal/models"
	"github.com/safar/rain-market/internal/service"
)

type ReviewApplicationRequest struct {
	Notes *string `json:"notes,omitempty"`
}

// HandleListApplications handles GET /v1/admin/applications
func HandleListApplications(applications *service.ApplicationService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := actorOrAbort(c)
		if !ok {
			return
		}

		var status *models.ApplicationStatus
		if raw := c.Query("status"); raw != "" {
			s := models.ApplicationStatus(raw)
			status = &s
		}
		page := queryInt(c, "page", 1, 1, 1<<20)
		pageSize := queryInt(c, "page_size", 20, 1, 100)

		result, err := applications.List(c.Request.Context(), actorID, status, page, pageSize)
		if err != nil {
			respondError(c, logger, "list applications", err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// HandleReviewApplication handles POST /v1/admin/applications/:id/{approve,reject}
func HandleReviewApplication(applications *service.ApplicationService, approve bool, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := actorOrAbort(c)
		if !ok {
			return
		}
		appID, ok := idParam(c, "id")
		if !ok {
			return
		}

		var req ReviewApplicationRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
		}

		app, err := applications.Review(c.Request.Context(), appID, actorID, approve, req.Notes)
		if err != nil {
			respondError(c, logger, "review application", err)
			return
		}

		c.JSON(http.StatusOK, app)
	}
}
