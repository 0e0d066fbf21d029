package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// HealthCheck reports service and database health
// @Summary Health check
// @Description Returns service health and database connectivity
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	status := "healthy"
	dbStatus := "up"

	if sqlDB, err := h.db.DB(); err != nil || sqlDB.Ping() != nil {
		status = "degraded"
		dbStatus = "down"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"database":  dbStatus,
		"service":   "returns-service",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
