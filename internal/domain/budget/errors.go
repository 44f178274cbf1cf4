package budget

import (
	"fmt"
	"strings"

	"github.com/gryphon/budget-core/internal/domain/shared"
)

// Error codes raised by the budget core
const (
	CodeBudgetNotFound        = "BUDGET_NOT_FOUND"
	CodeIntentNotFound        = "INTENT_NOT_FOUND"
	CodeComponentNotFound     = "COMPONENT_NOT_FOUND"
	CodePurchaseOrderNotFound = "PURCHASE_ORDER_NOT_FOUND"
	CodeNoActiveBudget        = "NO_ACTIVE_BUDGET"
	CodeIntentAlreadyConsumed = "INTENT_ALREADY_CONSUMED"
	CodeMultipleActiveBudgets = "MULTIPLE_ACTIVE_BUDGETS"
)

// Sentinel errors for errors.Is checks. Constructors below attach the
// offending identifier to the message while keeping the same code.
var (
	ErrBudgetNotFound        = shared.NewKindedError(shared.CodeNotFound, CodeBudgetNotFound, "budget not found")
	ErrIntentNotFound        = shared.NewKindedError(shared.CodeNotFound, CodeIntentNotFound, "purchase intent not found")
	ErrComponentNotFound     = shared.NewKindedError(shared.CodeNotFound, CodeComponentNotFound, "budget component not found")
	ErrPurchaseOrderNotFound = shared.NewKindedError(shared.CodeNotFound, CodePurchaseOrderNotFound, "purchase order not found")
	ErrNoActiveBudget        = shared.NewDomainError(CodeNoActiveBudget, "no active budget")
	ErrIntentAlreadyConsumed = shared.NewDomainError(CodeIntentAlreadyConsumed, "purchase intent already has a purchase order")
	ErrMultipleActiveBudgets = shared.NewKindedError(shared.CodeInvariantViolation, CodeMultipleActiveBudgets, "more than one active budget")
)

// BudgetNotFound reports a missing budget document
func BudgetNotFound(budgetID string) error {
	return shared.NewKindedError(shared.CodeNotFound, CodeBudgetNotFound,
		fmt.Sprintf("budget %s not found", budgetID))
}

// IntentNotFound reports a missing purchase intent
func IntentNotFound(intentID string) error {
	return shared.NewKindedError(shared.CodeNotFound, CodeIntentNotFound,
		fmt.Sprintf("purchase intent %s not found", intentID))
}

// ComponentNotFound reports a component key absent from every section of a budget
func ComponentNotFound(key ComponentKey, budgetID string) error {
	return shared.NewKindedError(shared.CodeNotFound, CodeComponentNotFound,
		fmt.Sprintf("budget component %q not found in budget %s", string(key), budgetID))
}

// PurchaseOrderNotFound reports a missing purchase order
func PurchaseOrderNotFound(id string) error {
	return shared.NewKindedError(shared.CodeNotFound, CodePurchaseOrderNotFound,
		fmt.Sprintf("purchase order %s not found", id))
}

// NoActiveBudget reports that the department has no budget in active status
func NoActiveBudget(department Department) error {
	return shared.NewDomainError(CodeNoActiveBudget,
		fmt.Sprintf("no active budget for department %s", department))
}

// BudgetNotActive reports a direct issue against a budget that is not active
func BudgetNotActive(budgetID string, status Status) error {
	return shared.NewDomainError(CodeNoActiveBudget,
		fmt.Sprintf("budget %s is %s, not active", budgetID, status))
}

// IntentAlreadyConsumed reports an intent that has already produced a purchase order
func IntentAlreadyConsumed(intentID string, poNumber PONumber) error {
	return shared.NewDomainError(CodeIntentAlreadyConsumed,
		fmt.Sprintf("purchase intent %s already issued as %s", intentID, poNumber))
}

// MultipleActiveBudgets reports a broken single-active-budget invariant
func MultipleActiveBudgets(department Department, budgetIDs []string) error {
	return shared.NewKindedError(shared.CodeInvariantViolation, CodeMultipleActiveBudgets,
		fmt.Sprintf("department %s has %d active budgets: %s", department, len(budgetIDs), strings.Join(budgetIDs, ", ")))
}
