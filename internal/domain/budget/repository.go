package budget

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store persists budgets, purchase intents and purchase orders.
// Reads outside RunInTransaction are not isolated and are meant for listing.
type Store interface {
	// FindBudget finds a budget by document id
	FindBudget(ctx context.Context, id string) (*Budget, error)

	// FindBudgetsByDepartment lists every budget of a department ordered by fiscal year
	FindBudgetsByDepartment(ctx context.Context, department Department) ([]*Budget, error)

	// FindIntent finds a purchase intent by id
	FindIntent(ctx context.Context, id string) (*PurchaseIntent, error)

	// FindPurchaseOrder finds a purchase order by id
	FindPurchaseOrder(ctx context.Context, id string) (*PurchaseOrder, error)

	// FindPurchaseOrders lists the purchase orders of a department and fiscal year ordered by sequence
	FindPurchaseOrders(ctx context.Context, department Department, fiscalYear FiscalYear) ([]*PurchaseOrder, error)

	// RunInTransaction runs fn atomically. fn may be invoked more than once
	// when the store detects a concurrent modification, so it must not have
	// side effects outside tx.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view of Store. All reads must precede all writes.
type Tx interface {
	// GetBudget reads a budget, failing with BUDGET_NOT_FOUND
	GetBudget(id string) (*Budget, error)

	// LookupBudget reads a budget, reporting absence through the bool
	LookupBudget(id string) (*Budget, bool, error)

	// BudgetsByDepartment reads every budget of a department
	BudgetsByDepartment(department Department) ([]*Budget, error)

	// GetIntent reads a purchase intent, failing with INTENT_NOT_FOUND
	GetIntent(id string) (*PurchaseIntent, error)

	// CreateBudget inserts a new budget, failing with ALREADY_EXISTS
	CreateBudget(b *Budget) error

	// CreateIntent inserts a new purchase intent
	CreateIntent(intent *PurchaseIntent) error

	// CreatePurchaseOrder inserts a new purchase order
	CreatePurchaseOrder(po *PurchaseOrder) error

	// MarkIntentApproved writes the approval fields of intent
	MarkIntentApproved(intent *PurchaseIntent) error

	// SetBudgetStatus writes a budget's status with audit fields
	SetBudgetStatus(id string, status Status, actor string) error

	// PostSpend atomically increments the spend counters of a budget
	PostSpend(budgetID string, posting SpendPosting) error
}

// SpendPosting describes one increment of a budget's spend counters
type SpendPosting struct {
	Section Section
	Key     ComponentKey
	Amount  decimal.Decimal
	// AdvancePOCounter also increments poCounter by one
	AdvancePOCounter bool
	Actor            string
}
