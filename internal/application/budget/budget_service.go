package budget

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gryphon/budget-core/internal/domain/budget"
	"github.com/gryphon/budget-core/internal/domain/shared"
	"github.com/gryphon/budget-core/internal/infrastructure/logger"
	"github.com/gryphon/budget-core/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// BudgetService handles budget creation, purchase intent submission and queries
type BudgetService struct {
	store          budget.Store
	logger         *zap.Logger
	eventPublisher shared.EventPublisher
	budgetMetrics  *telemetry.BudgetMetrics
	clock          func() time.Time
	location       *time.Location
}

// NewBudgetService creates a new BudgetService
func NewBudgetService(store budget.Store, logger *zap.Logger) *BudgetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BudgetService{
		store:    store,
		logger:   logger,
		clock:    time.Now,
		location: time.Local,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *BudgetService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetBudgetMetrics sets the budget metrics collector
func (s *BudgetService) SetBudgetMetrics(bm *telemetry.BudgetMetrics) {
	s.budgetMetrics = bm
}

// SetClock overrides the clock used to derive the current fiscal year
func (s *BudgetService) SetClock(clock func() time.Time, loc *time.Location) {
	s.clock = clock
	if loc != nil {
		s.location = loc
	}
}

// CreateBudget creates a draft budget keyed by department and fiscal year
func (s *BudgetService) CreateBudget(ctx context.Context, req CreateBudgetRequest) (resp *BudgetResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "budget", "create",
		telemetry.SpanAttrDepartment, req.Department,
		telemetry.SpanAttrFiscalYear, req.FiscalYear,
	)
	defer span.End()
	defer func(start time.Time) {
		telemetry.RecordError(span, err)
		s.budgetMetrics.RecordOperation(ctx, "create_budget", start, err)
	}(time.Now())

	in, err := s.budgetInput(req)
	if err != nil {
		return nil, err
	}
	b, err := budget.NewBudget(in)
	if err != nil {
		return nil, err
	}

	if err := s.store.RunInTransaction(ctx, func(tx budget.Tx) error {
		return tx.CreateBudget(b)
	}); err != nil {
		if shared.ErrorCode(err) == shared.CodeAlreadyExists {
			return nil, shared.NewDomainError(shared.CodeAlreadyExists,
				fmt.Sprintf("budget %s already exists", b.ID))
		}
		return nil, err
	}

	logger.L(ctx, s.logger).Info("budget created",
		zap.String("budget_id", b.ID),
		zap.String("total_budget", b.Summary.TotalBudget.String()),
		zap.String("actor", b.CreatedBy),
	)
	publish(ctx, s.eventPublisher, s.logger, b.GetDomainEvents()...)
	b.ClearDomainEvents()

	created, err := s.store.FindBudget(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	response := ToBudgetResponse(created)
	return &response, nil
}

func (s *BudgetService) budgetInput(req CreateBudgetRequest) (budget.NewBudgetInput, error) {
	dept, err := budget.ParseDepartment(req.Department)
	if err != nil {
		return budget.NewBudgetInput{}, err
	}
	fy, err := budget.ParseFiscalYear(req.FiscalYear)
	if err != nil {
		return budget.NewBudgetInput{}, err
	}
	in := budget.NewBudgetInput{
		Department: dept,
		FiscalYear: fy,
		OwnerName:  req.OwnerName,
		CreatedBy:  strings.TrimSpace(req.Actor),
	}
	if in.FixedCosts, err = componentSet(budget.SectionFixedCosts, req.FixedCosts); err != nil {
		return budget.NewBudgetInput{}, err
	}
	if in.DepartmentExpenses, err = componentSet(budget.SectionDepartmentExpenses, req.DepartmentExpenses); err != nil {
		return budget.NewBudgetInput{}, err
	}
	if in.CSDDExpenses, err = componentSet(budget.SectionCSDDExpenses, req.CSDDExpenses); err != nil {
		return budget.NewBudgetInput{}, err
	}
	return in, nil
}

// componentSet builds one section from request components. Unknown keys
// become custom components; the domain rejects them where not allowed.
func componentSet(section budget.Section, inputs []ComponentInput) (budget.ComponentSet, error) {
	cs := make(budget.ComponentSet, len(inputs))
	for _, in := range inputs {
		key := budget.ComponentKey(strings.TrimSpace(in.Key))
		if key == "" {
			key = budget.CustomComponentKey(in.DisplayName)
		}
		if err := key.Validate(); err != nil {
			return nil, err
		}
		if _, dup := cs[key]; dup {
			return nil, shared.NewValidationError(fmt.Sprintf("%s.%s: duplicate component", section, key))
		}
		if section.IsWellKnown(key) {
			cs[key] = budget.NewComponent(in.Allocated)
			continue
		}
		cs[key] = budget.NewCustomComponent(in.DisplayName, in.Allocated)
	}
	return cs, nil
}

// GetBudget retrieves a budget by id
func (s *BudgetService) GetBudget(ctx context.Context, budgetID string) (*BudgetResponse, error) {
	b, err := s.store.FindBudget(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	response := ToBudgetResponse(b)
	return &response, nil
}

// ListBudgets lists the budgets of a department ordered by fiscal year
func (s *BudgetService) ListBudgets(ctx context.Context, department string) ([]BudgetResponse, error) {
	dept, err := budget.ParseDepartment(department)
	if err != nil {
		return nil, err
	}
	budgets, err := s.store.FindBudgetsByDepartment(ctx, dept)
	if err != nil {
		return nil, err
	}
	return ToBudgetResponses(budgets), nil
}

// Utilization reports allocation and spend for every component of a budget.
// Over-allocated components are listed, not rejected.
func (s *BudgetService) Utilization(ctx context.Context, budgetID string) (*UtilizationResponse, error) {
	b, err := s.store.FindBudget(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	components := b.Utilization()
	over := make([]string, 0)
	for _, c := range components {
		if c.OverAllocated {
			over = append(over, c.Section.String()+"."+c.Key.String())
		}
	}
	if len(over) > 0 {
		logger.L(ctx, s.logger).Warn("budget components over allocated",
			zap.String("budget_id", b.ID),
			zap.Strings("components", over),
		)
	}
	return &UtilizationResponse{
		BudgetID:      b.ID,
		Status:        b.Status.String(),
		TotalBudget:   b.Summary.TotalBudget,
		TotalSpent:    b.Summary.TotalSpent,
		Remaining:     b.Summary.TotalBudget.Sub(b.Summary.TotalSpent),
		Components:    components,
		OverAllocated: over,
	}, nil
}

// SubmitIntent records a purchase intent awaiting issuance
func (s *BudgetService) SubmitIntent(ctx context.Context, req SubmitIntentRequest) (resp *IntentResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "purchase_intent", "submit",
		telemetry.SpanAttrDepartment, req.Department,
		telemetry.SpanAttrComponent, req.BudgetComponent,
	)
	defer span.End()
	defer func(start time.Time) {
		telemetry.RecordError(span, err)
		s.budgetMetrics.RecordOperation(ctx, "submit_intent", start, err)
	}(time.Now())

	dept, err := budget.ParseDepartment(req.Department)
	if err != nil {
		return nil, err
	}
	fy := budget.CurrentFiscalYear(s.clock().In(s.location))
	if req.FiscalYear != "" {
		if fy, err = budget.ParseFiscalYear(req.FiscalYear); err != nil {
			return nil, err
		}
	}
	intent, err := budget.NewPurchaseIntent(budget.NewPurchaseIntentInput{
		Department:      dept,
		FiscalYear:      fy,
		BudgetComponent: budget.ComponentKey(strings.TrimSpace(req.BudgetComponent)),
		Title:           req.Title,
		Description:     req.Description,
		VendorName:      req.VendorName,
		TotalCost:       req.TotalCost,
		SubmittedBy:     strings.TrimSpace(req.Actor),
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.RunInTransaction(ctx, func(tx budget.Tx) error {
		return tx.CreateIntent(intent)
	}); err != nil {
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrIntentID, intent.ID)

	logger.L(ctx, s.logger).Info("purchase intent submitted",
		zap.String("intent_id", intent.ID),
		zap.String("department", dept.String()),
		zap.String("fiscal_year", fy.String()),
		zap.String("component", intent.BudgetComponent.String()),
		zap.String("amount", intent.TotalCost.String()),
	)
	return s.GetIntent(ctx, intent.ID)
}

// GetIntent retrieves a purchase intent by id
func (s *BudgetService) GetIntent(ctx context.Context, intentID string) (*IntentResponse, error) {
	intent, err := s.store.FindIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	response := ToIntentResponse(intent)
	return &response, nil
}

// GetPurchaseOrder retrieves a purchase order by id
func (s *BudgetService) GetPurchaseOrder(ctx context.Context, id string) (*PurchaseOrderResponse, error) {
	po, err := s.store.FindPurchaseOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToPurchaseOrderResponse(po)
	return &response, nil
}

// ListPurchaseOrders lists the purchase orders of a department and fiscal year by sequence
func (s *BudgetService) ListPurchaseOrders(ctx context.Context, department, fiscalYear string) ([]PurchaseOrderResponse, error) {
	dept, err := budget.ParseDepartment(department)
	if err != nil {
		return nil, err
	}
	fy, err := budget.ParseFiscalYear(fiscalYear)
	if err != nil {
		return nil, err
	}
	pos, err := s.store.FindPurchaseOrders(ctx, dept, fy)
	if err != nil {
		return nil, err
	}
	return ToPurchaseOrderResponses(pos), nil
}

// FiscalYear returns the fiscal year containing at, or the current one when at is nil
func (s *BudgetService) FiscalYear(at *time.Time) FiscalYearResponse {
	now := s.clock()
	if at != nil {
		now = *at
	}
	now = now.In(s.location)
	return ToFiscalYearResponse(budget.CurrentFiscalYear(now), s.location)
}
