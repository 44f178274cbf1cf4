package event

import (
	"context"

	"github.com/gryphon/budget-core/internal/domain/budget"
	"github.com/gryphon/budget-core/internal/domain/shared"
	"github.com/gryphon/budget-core/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// AuditLogHandler writes one structured log line per committed budget event
type AuditLogHandler struct {
	logger *zap.Logger
}

// NewAuditLogHandler creates an audit handler logging to logger
func NewAuditLogHandler(logger *zap.Logger) *AuditLogHandler {
	return &AuditLogHandler{logger: logger.Named("audit")}
}

// EventTypes returns the budget event types
func (h *AuditLogHandler) EventTypes() []string {
	return []string{
		budget.EventTypeBudgetCreated,
		budget.EventTypeBudgetActivated,
		budget.EventTypeBudgetArchived,
		budget.EventTypePurchaseOrderIssued,
		budget.EventTypeBulkExpensesPosted,
	}
}

// Handle logs event with the fields an auditor needs to reconstruct it
func (h *AuditLogHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("aggregate_id", event.AggregateID()),
		zap.Time("occurred_at", event.OccurredAt()),
	}
	if rid := logger.GetRequestID(ctx); rid != "" {
		fields = append(fields, zap.String("request_id", rid))
	}

	switch e := event.(type) {
	case *budget.BudgetCreatedEvent:
		fields = append(fields,
			zap.String("department", e.Department.String()),
			zap.String("fiscal_year", e.FiscalYear.String()),
			zap.String("total_budget", e.TotalBudget.String()),
			zap.String("actor", e.CreatedBy),
		)
	case *budget.BudgetActivatedEvent:
		fields = append(fields,
			zap.String("department", e.Department.String()),
			zap.String("fiscal_year", e.FiscalYear.String()),
			zap.String("actor", e.ActivatedBy),
		)
	case *budget.BudgetArchivedEvent:
		fields = append(fields,
			zap.String("department", e.Department.String()),
			zap.String("fiscal_year", e.FiscalYear.String()),
			zap.String("replaced_by", e.ReplacedBy),
			zap.String("actor", e.ArchivedBy),
		)
	case *budget.PurchaseOrderIssuedEvent:
		fields = append(fields,
			zap.String("po_number", e.PONumber.String()),
			zap.String("intent_id", e.IntentID),
			zap.String("budget_id", e.BudgetID),
			zap.String("component", e.Section.String()+"."+e.Component.String()),
			zap.String("amount", e.Amount.String()),
			zap.String("actor", e.ApprovedBy),
		)
	case *budget.BulkExpensesPostedEvent:
		fields = append(fields,
			zap.String("fiscal_year", e.FiscalYear.String()),
			zap.String("component", e.Section.String()+"."+e.ExpenseType.String()),
			zap.Int("posted", len(e.Posted)),
			zap.Int("skipped", len(e.Skipped)),
			zap.String("total", e.Total.String()),
			zap.String("actor", e.PostedBy),
		)
	}

	h.logger.Info("budget event", fields...)
	return nil
}

var _ shared.EventHandler = (*AuditLogHandler)(nil)
