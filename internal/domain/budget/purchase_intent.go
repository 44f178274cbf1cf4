package budget

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gryphon/budget-core/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// IntentStatus represents the status of a purchase intent
type IntentStatus string

const (
	IntentStatusSubmitted IntentStatus = "submitted"
	IntentStatusApproved  IntentStatus = "approved"
	IntentStatusRejected  IntentStatus = "rejected"
)

// IsValid checks if the status is a valid value
func (s IntentStatus) IsValid() bool {
	switch s {
	case IntentStatusSubmitted, IntentStatusApproved, IntentStatusRejected:
		return true
	}
	return false
}

// String returns the string representation of IntentStatus
func (s IntentStatus) String() string {
	return string(s)
}

// PurchaseIntent is a request to spend against a budget component
type PurchaseIntent struct {
	ID              string          `json:"-"`
	Department      Department      `json:"department"`
	FiscalYear      FiscalYear      `json:"fiscalYear"`
	BudgetComponent ComponentKey    `json:"budgetComponent"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	VendorName      string          `json:"vendorName,omitempty"`
	TotalCost       decimal.Decimal `json:"totalCost"`
	Status          IntentStatus    `json:"status"`
	POCreated       bool            `json:"poCreated"`
	PONumber        PONumber        `json:"poNumber,omitempty"`
	SubmittedBy     string          `json:"submittedBy"`
	ApprovedBy      string          `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time      `json:"approvedAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// NewPurchaseIntentInput carries the fields of a submitted intent
type NewPurchaseIntentInput struct {
	Department      Department
	FiscalYear      FiscalYear
	BudgetComponent ComponentKey
	Title           string
	Description     string
	VendorName      string
	TotalCost       decimal.Decimal
	SubmittedBy     string
}

// NewPurchaseIntent creates a submitted intent with a fresh id
func NewPurchaseIntent(in NewPurchaseIntentInput) (*PurchaseIntent, error) {
	if err := in.Department.Validate(); err != nil {
		return nil, err
	}
	if err := in.FiscalYear.Validate(); err != nil {
		return nil, err
	}
	if err := in.BudgetComponent.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, shared.NewValidationError("intent title is required")
	}
	if !in.TotalCost.IsPositive() {
		return nil, shared.NewValidationError("intent total cost must be positive")
	}
	if strings.TrimSpace(in.SubmittedBy) == "" {
		return nil, shared.NewValidationError("actor is required")
	}
	return &PurchaseIntent{
		ID:              uuid.New().String(),
		Department:      in.Department,
		FiscalYear:      in.FiscalYear,
		BudgetComponent: in.BudgetComponent,
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		VendorName:      in.VendorName,
		TotalCost:       in.TotalCost,
		Status:          IntentStatusSubmitted,
		SubmittedBy:     in.SubmittedBy,
	}, nil
}

// EnsureIssuable rejects intents that already yielded a purchase order or
// are no longer waiting for approval
func (i *PurchaseIntent) EnsureIssuable() error {
	if i.POCreated || i.Status == IntentStatusApproved {
		return IntentAlreadyConsumed(i.ID, i.PONumber)
	}
	if i.Status != IntentStatusSubmitted {
		return shared.NewDomainError(shared.CodeInvalidStateTransition,
			fmt.Sprintf("purchase intent %s is %s and cannot be issued", i.ID, i.Status))
	}
	return nil
}

// Approve records the purchase order created for this intent
func (i *PurchaseIntent) Approve(poNumber PONumber, approvedBy string, at time.Time) error {
	if err := i.EnsureIssuable(); err != nil {
		return err
	}
	i.Status = IntentStatusApproved
	i.POCreated = true
	i.PONumber = poNumber
	i.ApprovedBy = approvedBy
	i.ApprovedAt = &at
	return nil
}
