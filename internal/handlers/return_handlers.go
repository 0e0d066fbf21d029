package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"returns-service/internal/models"
	"returns-service/internal/repository"
	"returns-service/internal/services"
)

type ReturnHandlers struct {
	returnService *services.ReturnService
}

func NewReturnHandlers(returnService *services.ReturnService) *ReturnHandlers {
	return &ReturnHandlers{
		returnService: returnService,
	}
}

// getCustomerID extracts the authenticated customer's ID from context.
// CustomerAuthMiddleware ensures this is set on storefront routes.
func getCustomerID(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get("customer_id")
	if !exists {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw.(string))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// getAdminID extracts the acting admin's user ID from context, if present
func getAdminID(c *gin.Context) *uuid.UUID {
	raw, exists := c.Get("user_id")
	if !exists {
		return nil
	}
	id, err := uuid.Parse(raw.(string))
	if err != nil {
		return nil
	}
	return &id
}

// respondError maps workflow errors onto HTTP status codes
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrReturnNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrDuplicateOpenReturn):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNoItems),
		errors.Is(err, services.ErrProductNotInOrder),
		errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrWindowExpired),
		errors.Is(err, services.ErrNoRatesAvailable):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "details": err.Error()})
	}
}

// CreateReturn creates a new return/exchange request
// @Summary Create return request
// @Description Customer creates a return or exchange request for an order
// @Tags Returns
// @Accept json
// @Produce json
// @Param return body services.CreateReturnInput true "Return request"
// @Success 201 {object} models.ReturnRequest
// @Router /api/v1/storefront/returns [post]
func (h *ReturnHandlers) CreateReturn(c *gin.Context) {
	customerID, ok := getCustomerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Customer authentication required"})
		return
	}

	var input services.CreateReturnInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	input.UserID = customerID

	ret, err := h.returnService.CreateReturnRequest(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ret)
}

// GetMyReturns lists the authenticated customer's return requests
// @Summary List my returns
// @Description List the authenticated customer's return requests, newest first
// @Tags Returns
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/storefront/returns [get]
func (h *ReturnHandlers) GetMyReturns(c *gin.Context) {
	customerID, ok := getCustomerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Customer authentication required"})
		return
	}

	returns, err := h.returnService.GetUserReturnRequests(c.Request.Context(), customerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"returns": returns, "total": len(returns)})
}

// GetMyReturn retrieves one of the customer's return requests
// @Summary Get my return
// @Description Get one of the authenticated customer's return requests
// @Tags Returns
// @Produce json
// @Param id path string true "Return ID"
// @Success 200 {object} models.ReturnRequest
// @Router /api/v1/storefront/returns/{id} [get]
func (h *ReturnHandlers) GetMyReturn(c *gin.Context) {
	customerID, ok := getCustomerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Customer authentication required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid return ID"})
		return
	}

	ret, err := h.returnService.GetReturnRequest(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	// Customers can only see their own requests
	if ret.UserID != customerID {
		c.JSON(http.StatusNotFound, gin.H{"error": services.ErrReturnNotFound.Error()})
		return
	}

	c.JSON(http.StatusOK, ret)
}

// GenerateLabel buys a prepaid return shipping label
// @Summary Generate return label
// @Description Generate a prepaid shipping label for returning the items
// @Tags Returns
// @Produce json
// @Param id path string true "Return ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/storefront/returns/{id}/label [post]
func (h *ReturnHandlers) GenerateLabel(c *gin.Context) {
	customerID, ok := getCustomerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Customer authentication required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid return ID"})
		return
	}

	ret, err := h.returnService.GetReturnRequest(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if ret.UserID != customerID {
		c.JSON(http.StatusNotFound, gin.H{"error": services.ErrReturnNotFound.Error()})
		return
	}

	ret, err = h.returnService.GenerateReturnShippingLabel(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"labelUrl":       ret.ReturnShippingLabelURL,
		"trackingNumber": ret.TrackingNumber,
	})
}

// ListReturns lists return requests with pagination and filters
// @Summary List returns
// @Description Admin lists all return requests with pagination and filters
// @Tags Returns
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(10)
// @Param status query string false "Filter by status"
// @Param type query string false "Filter by type"
// @Param reason query string false "Filter by reason"
// @Param userId query string false "Filter by customer"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/returns [get]
func (h *ReturnHandlers) ListReturns(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	filters := repository.ReturnFilters{Page: page, Limit: limit}
	if status := c.Query("status"); status != "" {
		s := models.ReturnStatus(status)
		filters.Status = &s
	}
	if typ := c.Query("type"); typ != "" {
		t := models.ReturnType(typ)
		filters.Type = &t
	}
	if reason := c.Query("reason"); reason != "" {
		r := models.ReturnReason(reason)
		filters.Reason = &r
	}
	if userID := c.Query("userId"); userID != "" {
		if id, err := uuid.Parse(userID); err == nil {
			filters.UserID = &id
		}
	}

	returns, total, err := h.returnService.ListReturnRequests(c.Request.Context(), filters)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"returns": returns,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

// GetReturn retrieves a return request by ID
// @Summary Get return
// @Description Admin gets return request details by ID
// @Tags Returns
// @Produce json
// @Param id path string true "Return ID"
// @Success 200 {object} models.ReturnRequest
// @Router /api/v1/returns/{id} [get]
func (h *ReturnHandlers) GetReturn(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid return ID"})
		return
	}

	ret, err := h.returnService.GetReturnRequest(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ret)
}

// GetReturnAuditTrail retrieves the audit entries for a return request
// @Summary Get return audit trail
// @Description Admin gets the audit trail for a return request, oldest first
// @Tags Returns
// @Produce json
// @Param id path string true "Return ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/returns/{id}/audit [get]
func (h *ReturnHandlers) GetReturnAuditTrail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid return ID"})
		return
	}

	entries, err := h.returnService.GetReturnAuditTrail(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "total": len(entries)})
}

// UpdateStatus transitions a return request to a new status
// @Summary Update return status
// @Description Admin transitions a return request to a new status
// @Tags Returns
// @Accept json
// @Produce json
// @Param id path string true "Return ID"
// @Param request body services.UpdateReturnStatusInput true "Status update"
// @Success 200 {object} models.ReturnRequest
// @Router /api/v1/returns/{id}/status [patch]
func (h *ReturnHandlers) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid return ID"})
		return
	}

	var input services.UpdateReturnStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	input.ProcessedBy = getAdminID(c)

	ret, err := h.returnService.UpdateReturnStatus(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ret)
}

// CompleteReturn finalizes an inspected return
// @Summary Complete return
// @Description Admin completes an inspected return, issuing the refund for RETURN-type requests
// @Tags Returns
// @Produce json
// @Param id path string true "Return ID"
// @Success 200 {object} models.ReturnRequest
// @Router /api/v1/returns/{id}/complete [post]
func (h *ReturnHandlers) CompleteReturn(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid return ID"})
		return
	}

	adminID := getAdminID(c)
	if adminID == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User ID not found"})
		return
	}

	ret, err := h.returnService.ProcessReturnCompletion(c.Request.Context(), id, *adminID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ret)
}

// GetReturnPolicy retrieves the return policy
// @Summary Get return policy
// @Description Get the store return policy
// @Tags Returns
// @Produce json
// @Success 200 {object} models.ReturnPolicy
// @Router /api/v1/returns/policy [get]
func (h *ReturnHandlers) GetReturnPolicy(c *gin.Context) {
	policy, err := h.returnService.GetReturnPolicy(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, policy)
}

// UpdateReturnPolicy updates the return policy
// @Summary Update return policy
// @Description Admin updates the store return policy. Omitted fields keep their current value.
// @Tags Returns
// @Accept json
// @Produce json
// @Param policy body services.ReturnPolicyUpdate true "Policy update"
// @Success 200 {object} models.ReturnPolicy
// @Router /api/v1/returns/policy [put]
func (h *ReturnHandlers) UpdateReturnPolicy(c *gin.Context) {
	var update services.ReturnPolicyUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	policy, err := h.returnService.UpdateReturnPolicy(c.Request.Context(), &update)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, policy)
}

// GetAnalytics aggregates return activity over a date range
// @Summary Get return analytics
// @Description Admin gets aggregate return statistics for a date range
// @Tags Returns
// @Produce json
// @Param startDate query string false "Range start (RFC3339 or YYYY-MM-DD), defaults to 30 days ago"
// @Param endDate query string false "Range end (RFC3339 or YYYY-MM-DD), defaults to now"
// @Success 200 {object} services.ReturnAnalytics
// @Router /api/v1/returns/analytics [get]
func (h *ReturnHandlers) GetAnalytics(c *gin.Context) {
	end := time.Now()
	start := end.AddDate(0, 0, -30)

	if raw := c.Query("startDate"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid startDate"})
			return
		}
		start = parsed
	}
	if raw := c.Query("endDate"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid endDate"})
			return
		}
		end = parsed
	}

	analytics, err := h.returnService.GetReturnAnalytics(c.Request.Context(), start, end)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, analytics)
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
