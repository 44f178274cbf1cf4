package budget

import (
	"github.com/gryphon/budget-core/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Aggregate type constants
const (
	AggregateTypeBudget        = "Budget"
	AggregateTypePurchaseOrder = "PurchaseOrder"
)

// Event type constants
const (
	EventTypeBudgetCreated       = "BudgetCreated"
	EventTypeBudgetActivated     = "BudgetActivated"
	EventTypeBudgetArchived      = "BudgetArchived"
	EventTypePurchaseOrderIssued = "PurchaseOrderIssued"
	EventTypeBulkExpensesPosted  = "BulkExpensesPosted"
)

// BudgetCreatedEvent is raised when a draft budget is created
type BudgetCreatedEvent struct {
	shared.BaseDomainEvent
	BudgetID    string          `json:"budget_id"`
	Department  Department      `json:"department"`
	FiscalYear  FiscalYear      `json:"fiscal_year"`
	TotalBudget decimal.Decimal `json:"total_budget"`
	CreatedBy   string          `json:"created_by"`
}

// NewBudgetCreatedEvent creates a new BudgetCreatedEvent
func NewBudgetCreatedEvent(b *Budget) *BudgetCreatedEvent {
	return &BudgetCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBudgetCreated, AggregateTypeBudget, b.ID),
		BudgetID:        b.ID,
		Department:      b.Department,
		FiscalYear:      b.FiscalYear,
		TotalBudget:     b.Summary.TotalBudget,
		CreatedBy:       b.CreatedBy,
	}
}

// BudgetActivatedEvent is raised when a budget becomes its department's active budget
type BudgetActivatedEvent struct {
	shared.BaseDomainEvent
	BudgetID    string     `json:"budget_id"`
	Department  Department `json:"department"`
	FiscalYear  FiscalYear `json:"fiscal_year"`
	ActivatedBy string     `json:"activated_by"`
}

// NewBudgetActivatedEvent creates a new BudgetActivatedEvent
func NewBudgetActivatedEvent(b *Budget) *BudgetActivatedEvent {
	return &BudgetActivatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBudgetActivated, AggregateTypeBudget, b.ID),
		BudgetID:        b.ID,
		Department:      b.Department,
		FiscalYear:      b.FiscalYear,
		ActivatedBy:     b.UpdatedBy,
	}
}

// BudgetArchivedEvent is raised when an active budget is demoted by a sibling's activation
type BudgetArchivedEvent struct {
	shared.BaseDomainEvent
	BudgetID   string     `json:"budget_id"`
	Department Department `json:"department"`
	FiscalYear FiscalYear `json:"fiscal_year"`
	ReplacedBy string     `json:"replaced_by"`
	ArchivedBy string     `json:"archived_by"`
}

// NewBudgetArchivedEvent creates a new BudgetArchivedEvent
func NewBudgetArchivedEvent(b *Budget, replacedBy string) *BudgetArchivedEvent {
	return &BudgetArchivedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBudgetArchived, AggregateTypeBudget, b.ID),
		BudgetID:        b.ID,
		Department:      b.Department,
		FiscalYear:      b.FiscalYear,
		ReplacedBy:      replacedBy,
		ArchivedBy:      b.UpdatedBy,
	}
}

// PurchaseOrderIssuedEvent is raised after a purchase order and its spend commit
type PurchaseOrderIssuedEvent struct {
	shared.BaseDomainEvent
	PurchaseOrderID string          `json:"purchase_order_id"`
	PONumber        PONumber        `json:"po_number"`
	IntentID        string          `json:"intent_id"`
	BudgetID        string          `json:"budget_id"`
	Department      Department      `json:"department"`
	FiscalYear      FiscalYear      `json:"fiscal_year"`
	Section         Section         `json:"section"`
	Component       ComponentKey    `json:"component"`
	Amount          decimal.Decimal `json:"amount"`
	ApprovedBy      string          `json:"approved_by"`
}

// NewPurchaseOrderIssuedEvent creates a new PurchaseOrderIssuedEvent
func NewPurchaseOrderIssuedEvent(po *PurchaseOrder) *PurchaseOrderIssuedEvent {
	return &PurchaseOrderIssuedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePurchaseOrderIssued, AggregateTypePurchaseOrder, po.ID),
		PurchaseOrderID: po.ID,
		PONumber:        po.PONumber,
		IntentID:        po.IntentID,
		BudgetID:        po.BudgetID,
		Department:      po.Department,
		FiscalYear:      po.FiscalYear,
		Section:         po.Section,
		Component:       po.BudgetComponent,
		Amount:          po.TotalCost,
		ApprovedBy:      po.ApprovedBy,
	}
}

// BulkExpensesPostedEvent summarizes one bulk posting transaction
type BulkExpensesPostedEvent struct {
	shared.BaseDomainEvent
	FiscalYear  FiscalYear      `json:"fiscal_year"`
	Section     Section         `json:"section"`
	ExpenseType ComponentKey    `json:"expense_type"`
	Posted      []Department    `json:"posted"`
	Skipped     []Department    `json:"skipped"`
	Total       decimal.Decimal `json:"total"`
	PostedBy    string          `json:"posted_by"`
}

// NewBulkExpensesPostedEvent creates a new BulkExpensesPostedEvent
func NewBulkExpensesPostedEvent(fy FiscalYear, section Section, expenseType ComponentKey, posted, skipped []Department, total decimal.Decimal, actor string) *BulkExpensesPostedEvent {
	return &BulkExpensesPostedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBulkExpensesPosted, AggregateTypeBudget, string(fy)),
		FiscalYear:      fy,
		Section:         section,
		ExpenseType:     expenseType,
		Posted:          posted,
		Skipped:         skipped,
		Total:           total,
		PostedBy:        actor,
	}
}
