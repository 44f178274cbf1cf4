package budget

import (
	"time"

	"github.com/gryphon/budget-core/internal/domain/budget"
	"github.com/shopspring/decimal"
)

// ==================== Budget DTOs ====================

// ComponentInput describes one component of a new budget. Key may be left
// empty for custom components, in which case it is derived from DisplayName.
type ComponentInput struct {
	Key         string          `json:"key"`
	DisplayName string          `json:"display_name"`
	Allocated   decimal.Decimal `json:"allocated"`
}

// CreateBudgetRequest represents a request to create a draft budget
type CreateBudgetRequest struct {
	Department         string           `json:"department" binding:"required,department"`
	FiscalYear         string           `json:"fiscal_year" binding:"required,fiscal_year"`
	OwnerName          string           `json:"owner_name" binding:"required,min=1,max=200"`
	FixedCosts         []ComponentInput `json:"fixed_costs" binding:"dive"`
	DepartmentExpenses []ComponentInput `json:"department_expenses" binding:"dive"`
	CSDDExpenses       []ComponentInput `json:"csdd_expenses" binding:"dive"`
	Actor              string           `json:"-"`
}

// ComponentResponse is one component of a budget section
type ComponentResponse struct {
	Key         string          `json:"key"`
	Label       string          `json:"label"`
	Custom      bool            `json:"custom"`
	Allocated   decimal.Decimal `json:"allocated"`
	Spent       decimal.Decimal `json:"spent"`
	Remaining   decimal.Decimal `json:"remaining"`
	DisplayName string          `json:"display_name,omitempty"`
}

// BudgetResponse represents a budget in API responses
type BudgetResponse struct {
	ID                 string              `json:"id"`
	Department         string              `json:"department"`
	DepartmentCode     string              `json:"department_code"`
	FiscalYear         string              `json:"fiscal_year"`
	OwnerName          string              `json:"owner_name"`
	Status             string              `json:"status"`
	FixedCosts         []ComponentResponse `json:"fixed_costs"`
	DepartmentExpenses []ComponentResponse `json:"department_expenses"`
	CSDDExpenses       []ComponentResponse `json:"csdd_expenses"`
	POCounter          int64               `json:"po_counter"`
	TotalBudget        decimal.Decimal     `json:"total_budget"`
	TotalSpent         decimal.Decimal     `json:"total_spent"`
	CreatedBy          string              `json:"created_by"`
	UpdatedBy          string              `json:"updated_by"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// ToBudgetResponse converts a domain Budget to BudgetResponse
func ToBudgetResponse(b *budget.Budget) BudgetResponse {
	return BudgetResponse{
		ID:                 b.ID,
		Department:         b.Department.String(),
		DepartmentCode:     b.Department.Code(),
		FiscalYear:         b.FiscalYear.String(),
		OwnerName:          b.OwnerName,
		Status:             b.Status.String(),
		FixedCosts:         toComponentResponses(b.Section(budget.SectionFixedCosts)),
		DepartmentExpenses: toComponentResponses(b.Section(budget.SectionDepartmentExpenses)),
		CSDDExpenses:       toComponentResponses(b.Section(budget.SectionCSDDExpenses)),
		POCounter:          b.POCounter,
		TotalBudget:        b.Summary.TotalBudget,
		TotalSpent:         b.Summary.TotalSpent,
		CreatedBy:          b.CreatedBy,
		UpdatedBy:          b.UpdatedBy,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

// ToBudgetResponses converts a slice of domain budgets
func ToBudgetResponses(budgets []*budget.Budget) []BudgetResponse {
	out := make([]BudgetResponse, len(budgets))
	for i, b := range budgets {
		out[i] = ToBudgetResponse(b)
	}
	return out
}

func toComponentResponses(cs budget.ComponentSet) []ComponentResponse {
	out := make([]ComponentResponse, 0, len(cs))
	for _, key := range cs.Keys() {
		c := cs[key]
		out = append(out, ComponentResponse{
			Key:         key.String(),
			Label:       c.Label(key),
			Custom:      c.Custom,
			Allocated:   c.Allocated,
			Spent:       c.Spent,
			Remaining:   c.Remaining(),
			DisplayName: c.DisplayName,
		})
	}
	return out
}

// UtilizationResponse reports spend against allocation for every component of a budget
type UtilizationResponse struct {
	BudgetID      string                        `json:"budget_id"`
	Status        string                        `json:"status"`
	TotalBudget   decimal.Decimal               `json:"total_budget"`
	TotalSpent    decimal.Decimal               `json:"total_spent"`
	Remaining     decimal.Decimal               `json:"remaining"`
	Components    []budget.ComponentUtilization `json:"components"`
	OverAllocated []string                      `json:"over_allocated"`
}

// ActivateBudgetRequest represents a request to make a budget its department's active one
type ActivateBudgetRequest struct {
	BudgetID   string `json:"-"`
	Department string `json:"department" binding:"required,department"`
	Actor      string `json:"-"`
}

// ActivationResponse reports the outcome of an activation
type ActivationResponse struct {
	Budget   BudgetResponse `json:"budget"`
	Archived []string       `json:"archived"`
}

// ==================== Purchase Intent DTOs ====================

// SubmitIntentRequest represents a request to submit a purchase intent.
// An empty FiscalYear means the fiscal year containing the submission time.
type SubmitIntentRequest struct {
	Department      string          `json:"department" binding:"required,department"`
	FiscalYear      string          `json:"fiscal_year" binding:"omitempty,fiscal_year"`
	BudgetComponent string          `json:"budget_component" binding:"required,component_key"`
	Title           string          `json:"title" binding:"required,min=1,max=200"`
	Description     string          `json:"description" binding:"max=2000"`
	VendorName      string          `json:"vendor_name" binding:"max=200"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	Actor           string          `json:"-"`
}

// IntentResponse represents a purchase intent in API responses
type IntentResponse struct {
	ID              string          `json:"id"`
	Department      string          `json:"department"`
	FiscalYear      string          `json:"fiscal_year"`
	BudgetComponent string          `json:"budget_component"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	VendorName      string          `json:"vendor_name,omitempty"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	Status          string          `json:"status"`
	POCreated       bool            `json:"po_created"`
	PONumber        string          `json:"po_number,omitempty"`
	SubmittedBy     string          `json:"submitted_by"`
	ApprovedBy      string          `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ToIntentResponse converts a domain PurchaseIntent to IntentResponse
func ToIntentResponse(i *budget.PurchaseIntent) IntentResponse {
	return IntentResponse{
		ID:              i.ID,
		Department:      i.Department.String(),
		FiscalYear:      i.FiscalYear.String(),
		BudgetComponent: i.BudgetComponent.String(),
		Title:           i.Title,
		Description:     i.Description,
		VendorName:      i.VendorName,
		TotalCost:       i.TotalCost,
		Status:          i.Status.String(),
		POCreated:       i.POCreated,
		PONumber:        i.PONumber.String(),
		SubmittedBy:     i.SubmittedBy,
		ApprovedBy:      i.ApprovedBy,
		ApprovedAt:      i.ApprovedAt,
		CreatedAt:       i.CreatedAt,
		UpdatedAt:       i.UpdatedAt,
	}
}

// ==================== Purchase Order DTOs ====================

// IssueRequest represents a request to turn a purchase intent into a purchase order.
// With BudgetID set the order is issued against that budget, which must be
// active; otherwise the department's unique active budget is used.
type IssueRequest struct {
	IntentID          string           `json:"-"`
	BudgetID          string           `json:"budget_id"`
	ComponentOverride string           `json:"budget_component" binding:"omitempty,component_key"`
	Amount            *decimal.Decimal `json:"amount"`
	Actor             string           `json:"-"`
}

// IssueResponse reports the issued purchase order number
type IssueResponse struct {
	PONumber        string                `json:"po_number"`
	PurchaseOrderID string                `json:"purchase_order_id"`
	BudgetID        string                `json:"budget_id"`
	PurchaseOrder   PurchaseOrderResponse `json:"purchase_order"`
}

// PurchaseOrderResponse represents a purchase order in API responses
type PurchaseOrderResponse struct {
	ID              string          `json:"id"`
	IntentID        string          `json:"intent_id"`
	BudgetID        string          `json:"budget_id"`
	Department      string          `json:"department"`
	FiscalYear      string          `json:"fiscal_year"`
	PONumber        string          `json:"po_number"`
	Sequence        int64           `json:"sequence"`
	Section         string          `json:"section"`
	BudgetComponent string          `json:"budget_component"`
	Title           string          `json:"title"`
	VendorName      string          `json:"vendor_name,omitempty"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	Status          string          `json:"status"`
	ApprovedBy      string          `json:"approved_by"`
	ApprovedAt      time.Time       `json:"approved_at"`
}

// ToPurchaseOrderResponse converts a domain PurchaseOrder to PurchaseOrderResponse
func ToPurchaseOrderResponse(po *budget.PurchaseOrder) PurchaseOrderResponse {
	return PurchaseOrderResponse{
		ID:              po.ID,
		IntentID:        po.IntentID,
		BudgetID:        po.BudgetID,
		Department:      po.Department.String(),
		FiscalYear:      po.FiscalYear.String(),
		PONumber:        po.PONumber.String(),
		Sequence:        po.Sequence,
		Section:         po.Section.String(),
		BudgetComponent: po.BudgetComponent.String(),
		Title:           po.Title,
		VendorName:      po.VendorName,
		TotalCost:       po.TotalCost,
		Status:          string(po.Status),
		ApprovedBy:      po.ApprovedBy,
		ApprovedAt:      po.ApprovedAt,
	}
}

// ToPurchaseOrderResponses converts a slice of domain purchase orders
func ToPurchaseOrderResponses(pos []*budget.PurchaseOrder) []PurchaseOrderResponse {
	out := make([]PurchaseOrderResponse, len(pos))
	for i, po := range pos {
		out[i] = ToPurchaseOrderResponse(po)
	}
	return out
}

// ==================== Bulk Expense DTOs ====================

// BulkEntry is one department's share of a bulk expense
type BulkEntry struct {
	Department string          `json:"department" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
}

// BulkPostRequest represents a request to post one expense across many departments
type BulkPostRequest struct {
	Entries     []BulkEntry `json:"entries" binding:"required,min=1,dive"`
	FiscalYear  string      `json:"fiscal_year" binding:"required,fiscal_year"`
	Section     string      `json:"section" binding:"required,oneof=fixedCosts departmentExpenses csddExpenses"`
	ExpenseType string      `json:"expense_type" binding:"required,component_key"`
	Actor       string      `json:"-"`
}

// SkippedEntry is a bulk entry that was not applied
type SkippedEntry struct {
	Department string          `json:"department"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
}

// BulkPostResponse reports which entries were applied
type BulkPostResponse struct {
	Posted  []string        `json:"posted"`
	Skipped []SkippedEntry  `json:"skipped"`
	Total   decimal.Decimal `json:"total"`
}

// ==================== Fiscal Year DTOs ====================

// FiscalYearResponse describes a fiscal year and its bounds
type FiscalYearResponse struct {
	FiscalYear string    `json:"fiscal_year"`
	StartYear  int       `json:"start_year"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// ToFiscalYearResponse describes fy with bounds in loc
func ToFiscalYearResponse(fy budget.FiscalYear, loc *time.Location) FiscalYearResponse {
	return FiscalYearResponse{
		FiscalYear: fy.String(),
		StartYear:  fy.StartYear(),
		Start:      fy.Start(loc),
		End:        fy.End(loc),
	}
}
