package telemetry

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Skip reasons reported by BulkEntriesSkipped
const (
	SkipReasonBudgetMissing     = "budget_missing"
	SkipReasonNonPositive       = "non_positive_amount"
	SkipReasonInvalidDepartment = "invalid_department"
	SkipReasonComponentMissing  = "component_missing"
)

// BudgetMetrics records budget and purchase order activity.
// A nil *BudgetMetrics is valid and records nothing.
type BudgetMetrics struct {
	poIssued            *Counter
	poAmount            *FloatCounter
	activations         *Counter
	bulkPosted          *Counter
	bulkSkipped         *Counter
	invariantViolations *Counter
	operationDuration   *Histogram
}

// NewBudgetMetrics creates the budget metric instruments on meter.
func NewBudgetMetrics(meter metric.Meter) (*BudgetMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	bm := &BudgetMetrics{}
	var err error
	if bm.poIssued, err = NewCounter(meter, "budget_po_issued_total", "Purchase orders issued", "{orders}"); err != nil {
		return nil, err
	}
	if bm.poAmount, err = NewFloatCounter(meter, "budget_po_amount_total", "Amount committed by issued purchase orders", "{currency}"); err != nil {
		return nil, err
	}
	if bm.activations, err = NewCounter(meter, "budget_activations_total", "Budget activations", "{activations}"); err != nil {
		return nil, err
	}
	if bm.bulkPosted, err = NewCounter(meter, "budget_bulk_entries_posted_total", "Bulk expense entries applied", "{entries}"); err != nil {
		return nil, err
	}
	if bm.bulkSkipped, err = NewCounter(meter, "budget_bulk_entries_skipped_total", "Bulk expense entries skipped", "{entries}"); err != nil {
		return nil, err
	}
	if bm.invariantViolations, err = NewCounter(meter, "budget_invariant_violations_total", "Detected data invariant violations", "{violations}"); err != nil {
		return nil, err
	}
	if bm.operationDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "budget_operation_duration_seconds",
		Description: "Duration of budget service operations",
		Unit:        "s",
		Boundaries:  OperationDurationBuckets,
	}); err != nil {
		return nil, err
	}
	return bm, nil
}

// RecordPOIssued counts an issued purchase order and its amount
func (m *BudgetMetrics) RecordPOIssued(ctx context.Context, department, fiscalYear, section string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		AttrDepartment.String(department),
		AttrFiscalYear.String(fiscalYear),
		AttrSection.String(section),
	}
	m.poIssued.Inc(ctx, attrs...)
	m.poAmount.Add(ctx, amount.InexactFloat64(), attrs...)
}

// RecordActivation counts a budget activation
func (m *BudgetMetrics) RecordActivation(ctx context.Context, department string) {
	if m == nil {
		return
	}
	m.activations.Inc(ctx, AttrDepartment.String(department))
}

// RecordBulkPosting counts the entries applied by one bulk run
func (m *BudgetMetrics) RecordBulkPosting(ctx context.Context, applied int) {
	if m == nil {
		return
	}
	m.bulkPosted.Add(ctx, int64(applied))
}

// RecordBulkSkip counts one skipped bulk entry
func (m *BudgetMetrics) RecordBulkSkip(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.bulkSkipped.Inc(ctx, AttrReason.String(reason))
}

// RecordInvariantViolation counts a detected invariant violation
func (m *BudgetMetrics) RecordInvariantViolation(ctx context.Context, department, reason string) {
	if m == nil {
		return
	}
	m.invariantViolations.Inc(ctx, AttrDepartment.String(department), AttrReason.String(reason))
}

// RecordOperation records the duration and outcome of a service operation
func (m *BudgetMetrics) RecordOperation(ctx context.Context, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operationDuration.RecordDuration(ctx, time.Since(start),
		AttrOperation.String(operation),
		AttrOutcome.String(outcome),
	)
}
