package budget

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gryphon/budget-core/internal/domain/budget"
	"github.com/gryphon/budget-core/internal/domain/shared"
	"github.com/gryphon/budget-core/internal/infrastructure/logger"
	"github.com/gryphon/budget-core/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BulkExpensePoster posts one expense type across many department budgets
type BulkExpensePoster struct {
	store          budget.Store
	logger         *zap.Logger
	eventPublisher shared.EventPublisher
	budgetMetrics  *telemetry.BudgetMetrics
}

// NewBulkExpensePoster creates a new BulkExpensePoster
func NewBulkExpensePoster(store budget.Store, logger *zap.Logger) *BulkExpensePoster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkExpensePoster{store: store, logger: logger}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (p *BulkExpensePoster) SetEventPublisher(publisher shared.EventPublisher) {
	p.eventPublisher = publisher
}

// SetBudgetMetrics sets the budget metrics collector
func (p *BulkExpensePoster) SetBudgetMetrics(bm *telemetry.BudgetMetrics) {
	p.budgetMetrics = bm
}

type bulkTarget struct {
	id         string
	department budget.Department
	amount     decimal.Decimal
}

// PostBulk increments {section}.{expenseType}.spent and summary.totalSpent of
// each entry's budget for the fiscal year, in one transaction. Entries with a
// non-positive amount, an invalid department or no budget document are
// skipped, logged and counted; they never fail the request. So is a budget
// lacking a custom expenseType, since only well-known lines are created on
// first spend. Entries of the same department are summed, and budgets are
// read in id order so concurrent posts lock rows in the same order.
func (p *BulkExpensePoster) PostBulk(ctx context.Context, req BulkPostRequest) (resp *BulkPostResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "bulk_expense", "post",
		telemetry.SpanAttrFiscalYear, req.FiscalYear,
		telemetry.SpanAttrComponent, req.Section+"."+req.ExpenseType,
		telemetry.SpanAttrEntries, len(req.Entries),
	)
	defer span.End()
	defer func(start time.Time) {
		telemetry.RecordError(span, err)
		p.budgetMetrics.RecordOperation(ctx, "post_bulk_expenses", start, err)
	}(time.Now())

	fy, err := budget.ParseFiscalYear(req.FiscalYear)
	if err != nil {
		return nil, err
	}
	section, err := budget.ParseSection(req.Section)
	if err != nil {
		return nil, err
	}
	expenseType := budget.ComponentKey(req.ExpenseType)
	if err := expenseType.Validate(); err != nil {
		return nil, err
	}
	if !section.AllowsCustom() && !section.IsWellKnown(expenseType) {
		return nil, shared.NewValidationError(fmt.Sprintf("%s does not accept custom component %q", section, expenseType))
	}
	actor, err := requireActor(req.Actor)
	if err != nil {
		return nil, err
	}

	resp = &BulkPostResponse{Posted: []string{}, Skipped: []SkippedEntry{}, Total: decimal.Zero}
	var targets []bulkTarget
	index := make(map[budget.Department]int)
	for _, e := range req.Entries {
		if !e.Amount.IsPositive() {
			resp.Skipped = append(resp.Skipped, SkippedEntry{Department: e.Department, Amount: e.Amount, Reason: telemetry.SkipReasonNonPositive})
			continue
		}
		dept, err := budget.ParseDepartment(e.Department)
		if err != nil {
			resp.Skipped = append(resp.Skipped, SkippedEntry{Department: e.Department, Amount: e.Amount, Reason: telemetry.SkipReasonInvalidDepartment})
			continue
		}
		if n, seen := index[dept]; seen {
			targets[n].amount = targets[n].amount.Add(e.Amount)
			continue
		}
		index[dept] = len(targets)
		targets = append(targets, bulkTarget{id: budget.DocumentID(dept, fy), department: dept, amount: e.Amount})
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })

	wellKnown := section.IsWellKnown(expenseType)
	var posted, missing, noComponent []bulkTarget
	err = p.store.RunInTransaction(ctx, func(tx budget.Tx) error {
		posted, missing, noComponent = nil, nil, nil
		for _, t := range targets {
			b, found, err := tx.LookupBudget(t.id)
			if err != nil {
				return err
			}
			switch {
			case !found:
				missing = append(missing, t)
			case !wellKnown && !hasComponent(b.Section(section), expenseType):
				noComponent = append(noComponent, t)
			default:
				posted = append(posted, t)
			}
		}
		for _, t := range posted {
			if err := tx.PostSpend(t.id, budget.SpendPosting{
				Section: section,
				Key:     expenseType,
				Amount:  t.amount,
				Actor:   actor,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, t := range missing {
		resp.Skipped = append(resp.Skipped, SkippedEntry{Department: t.department.String(), Amount: t.amount, Reason: telemetry.SkipReasonBudgetMissing})
	}
	for _, t := range noComponent {
		resp.Skipped = append(resp.Skipped, SkippedEntry{Department: t.department.String(), Amount: t.amount, Reason: telemetry.SkipReasonComponentMissing})
	}
	log := logger.L(ctx, p.logger)
	for _, s := range resp.Skipped {
		log.Warn("bulk expense entry skipped",
			zap.String("department", s.Department),
			zap.String("fiscal_year", fy.String()),
			zap.String("amount", s.Amount.String()),
			zap.String("reason", s.Reason),
		)
		p.budgetMetrics.RecordBulkSkip(ctx, s.Reason)
	}

	postedDepts := make([]budget.Department, len(posted))
	for n, t := range posted {
		postedDepts[n] = t.department
		resp.Posted = append(resp.Posted, t.department.String())
		resp.Total = resp.Total.Add(t.amount)
	}
	skippedDepts := make([]budget.Department, len(resp.Skipped))
	for n, s := range resp.Skipped {
		skippedDepts[n] = budget.Department(s.Department)
	}
	p.budgetMetrics.RecordBulkPosting(ctx, len(posted))

	log.Info("bulk expenses posted",
		zap.String("fiscal_year", fy.String()),
		zap.String("component", section.String()+"."+expenseType.String()),
		zap.Int("posted", len(posted)),
		zap.Int("skipped", len(resp.Skipped)),
		zap.String("total", resp.Total.String()),
	)
	if len(posted) > 0 {
		publish(ctx, p.eventPublisher, p.logger, budget.NewBulkExpensesPostedEvent(
			fy, section, expenseType, postedDepts, skippedDepts, resp.Total, actor))
	}
	return resp, nil
}

func hasComponent(cs budget.ComponentSet, key budget.ComponentKey) bool {
	_, ok := cs[key]
	return ok
}
