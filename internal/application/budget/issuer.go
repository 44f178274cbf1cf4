package budget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gryphon/budget-core/internal/domain/budget"
	"github.com/gryphon/budget-core/internal/domain/shared"
	"github.com/gryphon/budget-core/internal/infrastructure/logger"
	"github.com/gryphon/budget-core/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// PurchaseOrderIssuer turns purchase intents into numbered purchase orders
// and posts their spend, all in one store transaction
type PurchaseOrderIssuer struct {
	store          budget.Store
	logger         *zap.Logger
	eventPublisher shared.EventPublisher
	budgetMetrics  *telemetry.BudgetMetrics
	clock          func() time.Time
}

// NewPurchaseOrderIssuer creates a new PurchaseOrderIssuer
func NewPurchaseOrderIssuer(store budget.Store, logger *zap.Logger) *PurchaseOrderIssuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PurchaseOrderIssuer{store: store, logger: logger, clock: time.Now}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (i *PurchaseOrderIssuer) SetEventPublisher(publisher shared.EventPublisher) {
	i.eventPublisher = publisher
}

// SetBudgetMetrics sets the budget metrics collector
func (i *PurchaseOrderIssuer) SetBudgetMetrics(bm *telemetry.BudgetMetrics) {
	i.budgetMetrics = bm
}

// SetClock overrides the clock stamped on the returned order. Stored
// timestamps always come from the store.
func (i *PurchaseOrderIssuer) SetClock(clock func() time.Time) {
	i.clock = clock
}

// Issue creates the purchase order for req.IntentID. Inside one transaction
// it reads the intent and the budget, allocates the next PO number, creates
// the order, approves the intent and posts the spend. Business failures abort
// without writes; store conflicts re-run the whole transaction.
func (i *PurchaseOrderIssuer) Issue(ctx context.Context, req IssueRequest) (resp *IssueResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "purchase_order", "issue",
		telemetry.SpanAttrIntentID, req.IntentID,
		telemetry.SpanAttrBudgetID, req.BudgetID,
	)
	defer span.End()
	defer func(start time.Time) {
		telemetry.RecordError(span, err)
		i.budgetMetrics.RecordOperation(ctx, "issue_purchase_order", start, err)
	}(time.Now())

	actor, err := requireActor(req.Actor)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.IntentID) == "" {
		return nil, shared.NewValidationError("intent id is required")
	}
	override := budget.ComponentKey(strings.TrimSpace(req.ComponentOverride))
	if override != "" {
		if err := override.Validate(); err != nil {
			return nil, err
		}
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		return nil, shared.NewValidationError("purchase order amount must be positive")
	}

	var po *budget.PurchaseOrder
	err = i.store.RunInTransaction(ctx, func(tx budget.Tx) error {
		po = nil

		intent, err := tx.GetIntent(req.IntentID)
		if err != nil {
			return err
		}
		if err := intent.EnsureIssuable(); err != nil {
			return err
		}

		b, err := i.resolveBudget(tx, intent, req.BudgetID)
		if err != nil {
			return err
		}

		key := intent.BudgetComponent
		if override != "" {
			key = override
		}
		amount := intent.TotalCost
		if req.Amount != nil {
			amount = *req.Amount
		}
		plan, err := b.PlanIssue(key, amount)
		if err != nil {
			return err
		}

		now := i.clock()
		if err := intent.Approve(plan.PONumber, actor, now); err != nil {
			return err
		}
		po = budget.NewApprovedPurchaseOrder(intent, b, plan, actor, now)

		if err := tx.CreatePurchaseOrder(po); err != nil {
			return err
		}
		if err := tx.MarkIntentApproved(intent); err != nil {
			return err
		}
		return tx.PostSpend(b.ID, budget.SpendPosting{
			Section:          plan.Target.Section,
			Key:              plan.Target.Key,
			Amount:           plan.Amount,
			AdvancePOCounter: true,
			Actor:            actor,
		})
	})
	if err != nil {
		i.reportFailure(ctx, req, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPONumber, po.PONumber.String(),
		telemetry.SpanAttrComponent, po.BudgetComponent.String(),
		telemetry.SpanAttrAmount, po.TotalCost.String(),
	)
	logger.L(ctx, i.logger).Info("purchase order issued",
		zap.String("po_number", po.PONumber.String()),
		zap.String("intent_id", po.IntentID),
		zap.String("budget_id", po.BudgetID),
		zap.String("component", po.Section.String()+"."+po.BudgetComponent.String()),
		zap.String("amount", po.TotalCost.String()),
		zap.String("actor", actor),
	)
	i.budgetMetrics.RecordPOIssued(ctx, po.Department.String(), po.FiscalYear.String(), po.Section.String(), po.TotalCost)
	publish(ctx, i.eventPublisher, i.logger, budget.NewPurchaseOrderIssuedEvent(po))

	return &IssueResponse{
		PONumber:        po.PONumber.String(),
		PurchaseOrderID: po.ID,
		BudgetID:        po.BudgetID,
		PurchaseOrder:   ToPurchaseOrderResponse(po),
	}, nil
}

// resolveBudget picks the budget to issue against. A given budget id must
// name an active budget of the intent's department; otherwise the
// department's unique active budget is used.
func (i *PurchaseOrderIssuer) resolveBudget(tx budget.Tx, intent *budget.PurchaseIntent, budgetID string) (*budget.Budget, error) {
	if budgetID != "" {
		b, err := tx.GetBudget(budgetID)
		if err != nil {
			return nil, err
		}
		if b.Department != intent.Department {
			return nil, shared.NewValidationError(fmt.Sprintf(
				"budget %s belongs to department %s, intent %s to %s", b.ID, b.Department, intent.ID, intent.Department))
		}
		if !b.IsActive() {
			return nil, budget.BudgetNotActive(b.ID, b.Status)
		}
		return b, nil
	}

	siblings, err := tx.BudgetsByDepartment(intent.Department)
	if err != nil {
		return nil, err
	}
	var active []*budget.Budget
	for _, b := range siblings {
		if b.IsActive() {
			active = append(active, b)
		}
	}
	switch len(active) {
	case 0:
		return nil, budget.NoActiveBudget(intent.Department)
	case 1:
		return active[0], nil
	}
	ids := make([]string, len(active))
	for n, b := range active {
		ids[n] = b.ID
	}
	return nil, budget.MultipleActiveBudgets(intent.Department, ids)
}

func (i *PurchaseOrderIssuer) reportFailure(ctx context.Context, req IssueRequest, err error) {
	log := logger.L(ctx, i.logger)
	if errors.Is(err, budget.ErrMultipleActiveBudgets) {
		log.Error("department has more than one active budget",
			zap.String("intent_id", req.IntentID),
			zap.Error(err),
		)
		if intent, findErr := i.store.FindIntent(ctx, req.IntentID); findErr == nil {
			i.budgetMetrics.RecordInvariantViolation(ctx, intent.Department.String(), "multiple_active_budgets")
		}
		return
	}
	log.Debug("purchase order not issued",
		zap.String("intent_id", req.IntentID),
		zap.String("code", shared.ErrorCode(err)),
		zap.Error(err),
	)
}
