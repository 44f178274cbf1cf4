package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	budgetapp "github.com/gryphon/budget-core/internal/application/budget"
)

// BudgetService is the part of the budget application service the handlers use
type BudgetService interface {
	CreateBudget(ctx context.Context, req budgetapp.CreateBudgetRequest) (*budgetapp.BudgetResponse, error)
	GetBudget(ctx context.Context, id string) (*budgetapp.BudgetResponse, error)
	ListBudgets(ctx context.Context, department string) ([]budgetapp.BudgetResponse, error)
	Utilization(ctx context.Context, id string) (*budgetapp.UtilizationResponse, error)
	FiscalYear(at *time.Time) budgetapp.FiscalYearResponse
}

// Activator makes a budget its department's active one
type Activator interface {
	Activate(ctx context.Context, req budgetapp.ActivateBudgetRequest) (*budgetapp.ActivationResponse, error)
}

// BulkPoster posts one expense across many departments
type BulkPoster interface {
	PostBulk(ctx context.Context, req budgetapp.BulkPostRequest) (*budgetapp.BulkPostResponse, error)
}

// BudgetHandler handles budget-related API endpoints
type BudgetHandler struct {
	BaseHandler
	budgets    BudgetService
	activation Activator
	bulk       BulkPoster
}

// NewBudgetHandler creates a new BudgetHandler
func NewBudgetHandler(budgets BudgetService, activation Activator, bulk BulkPoster) *BudgetHandler {
	return &BudgetHandler{
		budgets:    budgets,
		activation: activation,
		bulk:       bulk,
	}
}

// FiscalYear godoc
// @ID           getFiscalYear
// @Summary      Resolve a fiscal year
// @Description  Answers the fiscal year containing ?date= (RFC 3339 or YYYY-MM-DD), or the current one
// @Tags         fiscal-year
// @Produce      json
// @Param        date query string false "RFC 3339 timestamp or YYYY-MM-DD"
// @Success      200 {object} dto.Response{data=budgetapp.FiscalYearResponse}
// @Failure      400 {object} dto.Response
// @Router       /fiscal-year [get]
func (h *BudgetHandler) FiscalYear(c *gin.Context) {
	raw := c.Query("date")
	if raw == "" {
		h.Success(c, h.budgets.FiscalYear(nil))
		return
	}
	at, err := parseDate(raw)
	if err != nil {
		h.BadRequest(c, "date must be RFC 3339 or YYYY-MM-DD")
		return
	}
	h.Success(c, h.budgets.FiscalYear(&at))
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}

// Create godoc
// @ID           createBudget
// @Summary      Create a budget
// @Description  Creates a draft budget
// @Tags         budgets
// @Accept       json
// @Produce      json
// @Param        X-Actor header string false "Acting user when JWT is disabled"
// @Param        request body budgetapp.CreateBudgetRequest true "Budget creation request"
// @Success      201 {object} dto.Response{data=budgetapp.BudgetResponse}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /budgets [post]
func (h *BudgetHandler) Create(c *gin.Context) {
	var req budgetapp.CreateBudgetRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.Actor = getActor(c)

	resp, err := h.budgets.CreateBudget(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// List godoc
// @ID           listBudgets
// @Summary      List budgets of a department
// @Description  Lists the budgets of ?department=
// @Tags         budgets
// @Produce      json
// @Param        X-Actor header string false "Acting user when JWT is disabled"
// @Param        department query string true "Department"
// @Success      200 {object} dto.Response{data=[]budgetapp.BudgetResponse}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /budgets [get]
func (h *BudgetHandler) List(c *gin.Context) {
	department := c.Query("department")
	if department == "" {
		h.BadRequest(c, "department query parameter is required")
		return
	}

	list, err := h.budgets.ListBudgets(c.Request.Context(), department)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, list)
}

// Get godoc
// @ID           getBudgetById
// @Summary      Get budget by ID
// @Description  Returns one budget
// @Tags         budgets
// @Produce      json
// @Param        X-Actor header string false "Acting user when JWT is disabled"
// @Param        id path string true "Budget ID" example(dm_FY-2025-26)
// @Success      200 {object} dto.Response{data=budgetapp.BudgetResponse}
// @Failure      401 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /budgets/{id} [get]
func (h *BudgetHandler) Get(c *gin.Context) {
	resp, err := h.budgets.GetBudget(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Utilization godoc
// @ID           getBudgetUtilization
// @Summary      Get budget utilization
// @Description  Reports allocated, spent and remaining per component
// @Tags         budgets
// @Produce      json
// @Param        X-Actor header string false "Acting user when JWT is disabled"
// @Param        id path string true "Budget ID"
// @Success      200 {object} dto.Response{data=budgetapp.UtilizationResponse}
// @Failure      401 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /budgets/{id}/utilization [get]
func (h *BudgetHandler) Utilization(c *gin.Context) {
	resp, err := h.budgets.Utilization(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Activate godoc
// @ID           activateBudget
// @Summary      Activate a budget
// @Description  Makes the budget active and archives its active siblings
// @Tags         budgets
// @Accept       json
// @Produce      json
// @Param        X-Actor header string false "Acting user when JWT is disabled"
// @Param        id path string true "Budget ID"
// @Param        request body budgetapp.ActivateBudgetRequest true "Department of the budget"
// @Success      200 {object} dto.Response{data=budgetapp.ActivationResponse}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /budgets/{id}/activate [post]
func (h *BudgetHandler) Activate(c *gin.Context) {
	var req budgetapp.ActivateBudgetRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.BudgetID = c.Param("id")
	req.Actor = getActor(c)

	resp, err := h.activation.Activate(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// PostBulk godoc
// @ID           postBulkExpenses
// @Summary      Post expenses in bulk
// @Description  Posts one expense type across many departments' budgets
// @Tags         budgets
// @Accept       json
// @Produce      json
// @Param        X-Actor header string false "Acting user when JWT is disabled"
// @Param        Idempotency-Key header string false "Replays the first response for a repeated key"
// @Param        request body budgetapp.BulkPostRequest true "Bulk expense entries"
// @Success      200 {object} dto.Response{data=budgetapp.BulkPostResponse}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /budgets/expenses/bulk [post]
func (h *BudgetHandler) PostBulk(c *gin.Context) {
	var req budgetapp.BulkPostRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.Actor = getActor(c)

	resp, err := h.bulk.PostBulk(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
