package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gryphon/budget-core/internal/domain/budget"
	"github.com/gryphon/budget-core/internal/domain/shared"
	"github.com/gryphon/budget-core/internal/infrastructure/lock"
	"github.com/gryphon/budget-core/internal/infrastructure/logger"
	"github.com/gryphon/budget-core/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DepartmentLocker serializes work on one key across callers
type DepartmentLocker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// ActivationManager switches a department's active budget
type ActivationManager struct {
	store          budget.Store
	locker         DepartmentLocker
	logger         *zap.Logger
	eventPublisher shared.EventPublisher
	budgetMetrics  *telemetry.BudgetMetrics
}

// NewActivationManager creates a new ActivationManager. locker may be nil,
// in which case the store transaction alone serializes activations.
func NewActivationManager(store budget.Store, locker DepartmentLocker, logger *zap.Logger) *ActivationManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivationManager{store: store, locker: locker, logger: logger}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (m *ActivationManager) SetEventPublisher(publisher shared.EventPublisher) {
	m.eventPublisher = publisher
}

// SetBudgetMetrics sets the budget metrics collector
func (m *ActivationManager) SetBudgetMetrics(bm *telemetry.BudgetMetrics) {
	m.budgetMetrics = bm
}

func departmentLockKey(department budget.Department) string {
	return "department:" + department.String()
}

// Activate makes budgetID the only active budget of department. Every other
// active budget of the department is archived in the same transaction.
func (m *ActivationManager) Activate(ctx context.Context, req ActivateBudgetRequest) (resp *ActivationResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "budget", "activate",
		telemetry.SpanAttrBudgetID, req.BudgetID,
		telemetry.SpanAttrDepartment, req.Department,
	)
	defer span.End()
	defer func(start time.Time) {
		telemetry.RecordError(span, err)
		m.budgetMetrics.RecordOperation(ctx, "activate_budget", start, err)
	}(time.Now())

	dept, err := budget.ParseDepartment(req.Department)
	if err != nil {
		return nil, err
	}
	actor, err := requireActor(req.Actor)
	if err != nil {
		return nil, err
	}

	var (
		target   *budget.Budget
		archived []*budget.Budget
	)
	activate := func(ctx context.Context) error {
		return m.store.RunInTransaction(ctx, func(tx budget.Tx) error {
			target, archived = nil, nil

			siblings, err := tx.BudgetsByDepartment(dept)
			if err != nil {
				return err
			}
			for _, b := range siblings {
				if b.ID == req.BudgetID {
					target = b
				}
			}
			if target == nil {
				return shared.NewKindedError(shared.CodeNotFound, budget.CodeBudgetNotFound,
					fmt.Sprintf("budget %s not found in department %s", req.BudgetID, dept))
			}

			if err := target.Activate(actor); err != nil {
				return err
			}
			for _, b := range siblings {
				if b.ID == target.ID || !b.IsActive() {
					continue
				}
				if err := b.Archive(actor, target.ID); err != nil {
					return err
				}
				archived = append(archived, b)
			}

			if err := tx.SetBudgetStatus(target.ID, budget.StatusActive, actor); err != nil {
				return err
			}
			for _, b := range archived {
				if err := tx.SetBudgetStatus(b.ID, budget.StatusArchived, actor); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if m.locker != nil {
		err = m.locker.WithLock(ctx, departmentLockKey(dept), activate)
	} else {
		err = activate(ctx)
	}
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, shared.NewConflictError(fmt.Sprintf("department %s is being activated by another request", dept))
	}
	if err != nil {
		return nil, err
	}

	archivedIDs := make([]string, len(archived))
	events := target.GetDomainEvents()
	for i, b := range archived {
		archivedIDs[i] = b.ID
		events = append(events, b.GetDomainEvents()...)
	}

	logger.L(ctx, m.logger).Info("budget activated",
		zap.String("budget_id", target.ID),
		zap.String("department", dept.String()),
		zap.Strings("archived", archivedIDs),
		zap.String("actor", actor),
	)
	m.budgetMetrics.RecordActivation(ctx, dept.String())
	publish(ctx, m.eventPublisher, m.logger, events...)

	activated, err := m.store.FindBudget(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	return &ActivationResponse{
		Budget:   ToBudgetResponse(activated),
		Archived: archivedIDs,
	}, nil
}
