package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	budgetapp "github.com/gryphon/budget-core/internal/application/budget"
)

// IntentService submits and reads purchase intents and orders
type IntentService interface {
	SubmitIntent(ctx context.Context, req budgetapp.SubmitIntentRequest) (*budgetapp.IntentResponse, error)
	GetIntent(ctx context.Context, id string) (*budgetapp.IntentResponse, error)
	GetPurchaseOrder(ctx context.Context, id string) (*budgetapp.PurchaseOrderResponse, error)
	ListPurchaseOrders(ctx context.Context, department, fiscalYear string) ([]budgetapp.PurchaseOrderResponse, error)
}

// Issuer turns purchase intents into purchase orders
type Issuer interface {
	Issue(ctx context.Context, req budgetapp.IssueRequest) (*budgetapp.IssueResponse, error)
}

// PurchaseHandler handles purchase intent and purchase order endpoints
type PurchaseHandler struct {
	BaseHandler
	intents IntentService
	issuer  Issuer
}

// NewPurchaseHandler creates a new PurchaseHandler
func NewPurchaseHandler(intents IntentService, issuer Issuer) *PurchaseHandler {
	return &PurchaseHandler{
		intents: intents,
		issuer:  issuer,
	}
}

// SubmitIntent godoc
// @ID           submitPurchaseIntent
// @Summary      Submit a purchase intent
// @Description  Records a purchase intent for later approval
// @Tags         purchase-intents
// @Accept       json
// @Produce      json
// @Param        X-Actor header string false "Acting user when JWT is disabled"
// @Param        request body budgetapp.SubmitIntentRequest true "Purchase intent"
// @Success      201 {object} dto.Response{data=budgetapp.IntentResponse}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /purchase-intents [post]
func (h *PurchaseHandler) SubmitIntent(c *gin.Context) {
	var req budgetapp.SubmitIntentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.Actor = getActor(c)

	resp, err := h.intents.SubmitIntent(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// GetIntent godoc
// @ID           getPurchaseIntentById
// @Summary      Get purchase intent by ID
// @Description  Returns one purchase intent
// @Tags         purchase-intents
// @Produce      json
// @Param        X-Actor header string false "Acting user when JWT is disabled"
// @Param        id path string true "Purchase intent ID" format(uuid)
// @Success      200 {object} dto.Response{data=budgetapp.IntentResponse}
// @Failure      401 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /purchase-intents/{id} [get]
func (h *PurchaseHandler) GetIntent(c *gin.Context) {
	resp, err := h.intents.GetIntent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Issue godoc
// @ID           issuePurchaseOrder
// @Summary      Issue a purchase order
// @Description  Approves the intent and issues its purchase order. The body is optional: budget_id selects a budget directly, budget_component and amount override the intent's values.
// @Tags         purchase-intents
// @Accept       json
// @Produce      json
// @Param        X-Actor header string false "Acting user when JWT is disabled"
// @Param        Idempotency-Key header string false "Replays the first response for a repeated key"
// @Param        id path string true "Purchase intent ID" format(uuid)
// @Param        request body budgetapp.IssueRequest false "Optional overrides"
// @Success      201 {object} dto.Response{data=budgetapp.IssueResponse}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /purchase-intents/{id}/issue [post]
func (h *PurchaseHandler) Issue(c *gin.Context) {
	var req budgetapp.IssueRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}
	req.IntentID = c.Param("id")
	req.Actor = getActor(c)

	resp, err := h.issuer.Issue(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// ListPurchaseOrders godoc
// @ID           listPurchaseOrders
// @Summary      List purchase orders
// @Description  Lists the orders of ?department= in ?fiscal_year=
// @Tags         purchase-orders
// @Produce      json
// @Param        X-Actor header string false "Acting user when JWT is disabled"
// @Param        department query string true "Department"
// @Param        fiscal_year query string true "Fiscal year" example(25-26)
// @Success      200 {object} dto.Response{data=[]budgetapp.PurchaseOrderResponse}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /purchase-orders [get]
func (h *PurchaseHandler) ListPurchaseOrders(c *gin.Context) {
	department := c.Query("department")
	fiscalYear := c.Query("fiscal_year")
	if department == "" || fiscalYear == "" {
		h.BadRequest(c, "department and fiscal_year query parameters are required")
		return
	}

	list, err := h.intents.ListPurchaseOrders(c.Request.Context(), department, fiscalYear)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, list)
}

// GetPurchaseOrder godoc
// @ID           getPurchaseOrderById
// @Summary      Get purchase order by ID
// @Description  Returns one purchase order
// @Tags         purchase-orders
// @Produce      json
// @Param        X-Actor header string false "Acting user when JWT is disabled"
// @Param        id path string true "Purchase order ID" format(uuid)
// @Success      200 {object} dto.Response{data=budgetapp.PurchaseOrderResponse}
// @Failure      401 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /purchase-orders/{id} [get]
func (h *PurchaseHandler) GetPurchaseOrder(c *gin.Context) {
	resp, err := h.intents.GetPurchaseOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
