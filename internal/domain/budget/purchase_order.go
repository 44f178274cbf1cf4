package budget

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// POStatus represents the status of a purchase order
type POStatus string

// POStatusApproved is the only status this core assigns
const POStatusApproved POStatus = "approved"

// PurchaseOrder is an approved, numbered commitment of spend against one component
type PurchaseOrder struct {
	ID              string          `json:"-"`
	IntentID        string          `json:"intentId"`
	BudgetID        string          `json:"budgetId"`
	Department      Department      `json:"department"`
	FiscalYear      FiscalYear      `json:"fiscalYear"`
	PONumber        PONumber        `json:"poNumber"`
	Sequence        int64           `json:"sequence"`
	Section         Section         `json:"section"`
	BudgetComponent ComponentKey    `json:"budgetComponent"`
	Title           string          `json:"title"`
	VendorName      string          `json:"vendorName,omitempty"`
	TotalCost       decimal.Decimal `json:"totalCost"`
	Status          POStatus        `json:"status"`
	ApprovedBy      string          `json:"approvedBy"`
	ApprovedAt      time.Time       `json:"approvedAt"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// IssuePlan is what a budget yields for one issuance: the target component,
// the number to print and the counter value it consumes
type IssuePlan struct {
	Target   ComponentRef
	PONumber PONumber
	Sequence int64
	Amount   decimal.Decimal
}

// NewApprovedPurchaseOrder builds the purchase order for intent under plan
func NewApprovedPurchaseOrder(intent *PurchaseIntent, b *Budget, plan IssuePlan, approvedBy string, at time.Time) *PurchaseOrder {
	return &PurchaseOrder{
		ID:              uuid.New().String(),
		IntentID:        intent.ID,
		BudgetID:        b.ID,
		Department:      b.Department,
		FiscalYear:      b.FiscalYear,
		PONumber:        plan.PONumber,
		Sequence:        plan.Sequence,
		Section:         plan.Target.Section,
		BudgetComponent: plan.Target.Key,
		Title:           intent.Title,
		VendorName:      intent.VendorName,
		TotalCost:       plan.Amount,
		Status:          POStatusApproved,
		ApprovedBy:      approvedBy,
		ApprovedAt:      at,
		CreatedAt:       at,
	}
}

// PlanIssue resolves the target component and the next PO number for an
// issuance of amount against key
func (b *Budget) PlanIssue(key ComponentKey, amount decimal.Decimal) (IssuePlan, error) {
	ref, err := b.LocateComponent(key)
	if err != nil {
		return IssuePlan{}, err
	}
	number, seq := b.NextPONumber()
	return IssuePlan{Target: ref, PONumber: number, Sequence: seq, Amount: amount}, nil
}
