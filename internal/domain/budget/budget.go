package budget

import (
	"fmt"
	"strings"
	"time"

	"github.com/gryphon/budget-core/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle status of a budget
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// IsValid checks if the status is a valid value
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusArchived:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can transition to the target status.
// Any budget may be (re)activated; only active budgets are archived.
func (s Status) CanTransitionTo(target Status) bool {
	switch target {
	case StatusActive:
		return s.IsValid()
	case StatusArchived:
		return s == StatusActive
	}
	return false
}

// Summary holds the budget-wide totals
type Summary struct {
	TotalBudget decimal.Decimal `json:"totalBudget"`
	TotalSpent  decimal.Decimal `json:"totalSpent"`
}

// Budget is the per-department, per-fiscal-year ledger document
type Budget struct {
	shared.BaseAggregateRoot `json:"-"`

	ID                 string       `json:"-"`
	Department         Department   `json:"department"`
	FiscalYear         FiscalYear   `json:"fiscalYear"`
	OwnerName          string       `json:"ownerName"`
	Status             Status       `json:"status"`
	FixedCosts         ComponentSet `json:"fixedCosts"`
	DepartmentExpenses ComponentSet `json:"departmentExpenses"`
	CSDDExpenses       ComponentSet `json:"csddExpenses"`
	POCounter          int64        `json:"poCounter"`
	Summary            Summary      `json:"summary"`
	CreatedBy          string       `json:"createdBy"`
	UpdatedBy          string       `json:"updatedBy"`
	CreatedAt          time.Time    `json:"createdAt"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

// DocumentID returns the deterministic budget key "{department}_FY-20{fiscalYear}"
func DocumentID(department Department, fiscalYear FiscalYear) string {
	return fmt.Sprintf("%s_FY-20%s", department, fiscalYear)
}

// ParseDocumentID splits a budget key back into department and fiscal year
func ParseDocumentID(id string) (Department, FiscalYear, error) {
	i := strings.LastIndex(id, "_FY-20")
	if i <= 0 {
		return "", "", shared.NewValidationError(fmt.Sprintf("invalid budget id %q", id))
	}
	dept, err := ParseDepartment(id[:i])
	if err != nil {
		return "", "", err
	}
	fy, err := ParseFiscalYear(id[i+len("_FY-20"):])
	if err != nil {
		return "", "", err
	}
	return dept, fy, nil
}

// NewBudgetInput carries the fields needed to create a draft budget
type NewBudgetInput struct {
	Department         Department
	FiscalYear         FiscalYear
	OwnerName          string
	FixedCosts         ComponentSet
	DepartmentExpenses ComponentSet
	CSDDExpenses       ComponentSet
	CreatedBy          string
}

// NewBudget creates a draft budget with zeroed spend and a computed total allocation
func NewBudget(in NewBudgetInput) (*Budget, error) {
	if err := in.Department.Validate(); err != nil {
		return nil, err
	}
	if err := in.FiscalYear.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.OwnerName) == "" {
		return nil, shared.NewValidationError("owner name is required")
	}
	if strings.TrimSpace(in.CreatedBy) == "" {
		return nil, shared.NewValidationError("actor is required")
	}

	b := &Budget{
		ID:                 DocumentID(in.Department, in.FiscalYear),
		Department:         in.Department,
		FiscalYear:         in.FiscalYear,
		OwnerName:          strings.TrimSpace(in.OwnerName),
		Status:             StatusDraft,
		FixedCosts:         zeroSpent(in.FixedCosts),
		DepartmentExpenses: zeroSpent(in.DepartmentExpenses),
		CSDDExpenses:       zeroSpent(in.CSDDExpenses),
		CreatedBy:          in.CreatedBy,
		UpdatedBy:          in.CreatedBy,
	}
	for _, section := range LookupOrder {
		if err := b.Section(section).validateFor(section); err != nil {
			return nil, err
		}
	}
	b.Summary = Summary{
		TotalBudget: b.FixedCosts.TotalAllocated().
			Add(b.DepartmentExpenses.TotalAllocated()).
			Add(b.CSDDExpenses.TotalAllocated()),
		TotalSpent: decimal.Zero,
	}

	b.AddDomainEvent(NewBudgetCreatedEvent(b))
	return b, nil
}

func zeroSpent(in ComponentSet) ComponentSet {
	out := make(ComponentSet, len(in))
	for k, c := range in {
		c.Spent = decimal.Zero
		out[k] = c
	}
	return out
}

// Section returns the component set of section, never nil
func (b *Budget) Section(section Section) ComponentSet {
	var cs ComponentSet
	switch section {
	case SectionFixedCosts:
		cs = b.FixedCosts
	case SectionDepartmentExpenses:
		cs = b.DepartmentExpenses
	case SectionCSDDExpenses:
		cs = b.CSDDExpenses
	}
	if cs == nil {
		return ComponentSet{}
	}
	return cs
}

// Index builds the flat component index for this budget
func (b *Budget) Index() ComponentIndex {
	ix := make(ComponentIndex)
	for _, section := range LookupOrder {
		for key, c := range b.Section(section) {
			if _, taken := ix[key]; taken {
				continue
			}
			ix[key] = ComponentRef{Section: section, Key: key, Component: c}
		}
	}
	return ix
}

// LocateComponent finds key using the section precedence of LookupOrder
func (b *Budget) LocateComponent(key ComponentKey) (ComponentRef, error) {
	if err := key.Validate(); err != nil {
		return ComponentRef{}, err
	}
	ref, ok := b.Index().Lookup(key)
	if !ok {
		return ComponentRef{}, ComponentNotFound(key, b.ID)
	}
	return ref, nil
}

// IsActive reports whether the budget is the department's active budget
func (b *Budget) IsActive() bool {
	return b.Status == StatusActive
}

// NextPONumber returns the number the next issued purchase order will carry
// together with its sequence. The counter itself is advanced by the store.
func (b *Budget) NextPONumber() (PONumber, int64) {
	seq := b.POCounter + 1
	return FormatPONumber(b.Department, b.FiscalYear, seq), seq
}

// Activate marks the budget active
func (b *Budget) Activate(actor string) error {
	if !b.Status.CanTransitionTo(StatusActive) {
		return shared.NewDomainError(shared.CodeInvalidStateTransition,
			fmt.Sprintf("cannot activate budget %s in %s status", b.ID, b.Status))
	}
	b.Status = StatusActive
	b.UpdatedBy = actor
	b.AddDomainEvent(NewBudgetActivatedEvent(b))
	return nil
}

// Archive demotes an active budget, recording the budget that replaced it
func (b *Budget) Archive(actor, replacedBy string) error {
	if !b.Status.CanTransitionTo(StatusArchived) {
		return shared.NewDomainError(shared.CodeInvalidStateTransition,
			fmt.Sprintf("cannot archive budget %s in %s status", b.ID, b.Status))
	}
	b.Status = StatusArchived
	b.UpdatedBy = actor
	b.AddDomainEvent(NewBudgetArchivedEvent(b, replacedBy))
	return nil
}

// ComponentUtilization reports allocation and spend of one component
type ComponentUtilization struct {
	Section       Section         `json:"section"`
	Key           ComponentKey    `json:"key"`
	Label         string          `json:"label"`
	Custom        bool            `json:"custom"`
	Allocated     decimal.Decimal `json:"allocated"`
	Spent         decimal.Decimal `json:"spent"`
	Remaining     decimal.Decimal `json:"remaining"`
	OverAllocated bool            `json:"overAllocated"`
}

// Utilization lists every component in section order then key order.
// Over allocation is reported, never rejected.
func (b *Budget) Utilization() []ComponentUtilization {
	var out []ComponentUtilization
	for _, section := range []Section{SectionFixedCosts, SectionDepartmentExpenses, SectionCSDDExpenses} {
		cs := b.Section(section)
		for _, key := range cs.Keys() {
			c := cs[key]
			out = append(out, ComponentUtilization{
				Section:       section,
				Key:           key,
				Label:         c.Label(key),
				Custom:        c.Custom,
				Allocated:     c.Allocated,
				Spent:         c.Spent,
				Remaining:     c.Remaining(),
				OverAllocated: c.OverAllocated(),
			})
		}
	}
	return out
}

// ComponentSpentTotal sums spent over all sections. It equals
// Summary.TotalSpent for a budget only mutated through this core.
func (b *Budget) ComponentSpentTotal() decimal.Decimal {
	return b.FixedCosts.TotalSpent().
		Add(b.DepartmentExpenses.TotalSpent()).
		Add(b.CSDDExpenses.TotalSpent())
}
