package budget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gryphon/budget-core/internal/domain/budget"
	"github.com/gryphon/budget-core/internal/domain/shared"
	"github.com/gryphon/budget-core/internal/infrastructure/docstore"
	"github.com/gryphon/budget-core/internal/infrastructure/event"
	"github.com/gryphon/budget-core/internal/infrastructure/lock"
	"github.com/gryphon/budget-core/internal/infrastructure/persistence"
	"github.com/gryphon/budget-core/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var fixtureNow = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// eventRecorder collects every published event type
type eventRecorder struct {
	mu    sync.Mutex
	types []string
	all   []shared.DomainEvent
}

func (r *eventRecorder) Handle(ctx context.Context, e shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.EventType())
	r.all = append(r.all, e)
	return nil
}

func (r *eventRecorder) EventTypes() []string { return nil }

func (r *eventRecorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}

type fixture struct {
	docs   *docstore.MemoryStore
	store  *persistence.BudgetStore
	events *eventRecorder
	reader *sdkmetric.ManualReader
	logs   *observer.ObservedLogs

	budgets    *BudgetService
	activation *ActivationManager
	issuer     *PurchaseOrderIssuer
	bulk       *BulkExpensePoster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, lock.NewLocalLocker())
}

func newFixtureWith(t *testing.T, locker DepartmentLocker) *fixture {
	t.Helper()

	docs := docstore.NewMemoryStore(
		docstore.WithMemoryClock(func() time.Time { return fixtureNow }),
		docstore.WithMemoryRetry(docstore.RetryConfig{
			MaxAttempts:     200,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		}),
	)
	store := persistence.NewBudgetStore(docs)

	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	metrics, err := telemetry.NewBudgetMetrics(provider.Meter("test"))
	require.NoError(t, err)

	recorder := &eventRecorder{}
	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(recorder)

	f := &fixture{
		docs:       docs,
		store:      store,
		events:     recorder,
		reader:     reader,
		logs:       logs,
		budgets:    NewBudgetService(store, log),
		activation: NewActivationManager(store, locker, log),
		issuer:     NewPurchaseOrderIssuer(store, log),
		bulk:       NewBulkExpensePoster(store, log),
	}
	f.budgets.SetClock(func() time.Time { return fixtureNow }, time.UTC)
	f.issuer.SetClock(func() time.Time { return fixtureNow })
	for _, svc := range []interface {
		SetEventPublisher(shared.EventPublisher)
		SetBudgetMetrics(*telemetry.BudgetMetrics)
	}{f.budgets, f.activation, f.issuer, f.bulk} {
		svc.SetEventPublisher(bus)
		svc.SetBudgetMetrics(metrics)
	}
	return f
}

// createBudget creates a budget for dept and fy with a salary line, rent and a
// CSDD trainer line, returning its id
func (f *fixture) createBudget(t *testing.T, dept, fy string) string {
	t.Helper()
	resp, err := f.budgets.CreateBudget(context.Background(), CreateBudgetRequest{
		Department: dept,
		FiscalYear: fy,
		OwnerName:  "Priya",
		FixedCosts: []ComponentInput{
			{Key: "rent", Allocated: d("12000")},
		},
		DepartmentExpenses: []ComponentInput{
			{Key: "employeeSalary", Allocated: d("100000")},
		},
		CSDDExpenses: []ComponentInput{
			{Key: "trainerFees", Allocated: d("5000")},
		},
		Actor: "admin",
	})
	require.NoError(t, err)
	return resp.ID
}

func (f *fixture) activeBudget(t *testing.T, dept, fy string) string {
	t.Helper()
	id := f.createBudget(t, dept, fy)
	_, err := f.activation.Activate(context.Background(), ActivateBudgetRequest{
		BudgetID: id, Department: dept, Actor: "admin",
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) submit(t *testing.T, dept, fy, component, amount string) string {
	t.Helper()
	resp, err := f.budgets.SubmitIntent(context.Background(), SubmitIntentRequest{
		Department:      dept,
		FiscalYear:      fy,
		BudgetComponent: component,
		Title:           "Request for " + component,
		TotalCost:       d(amount),
		Actor:           "manager",
	})
	require.NoError(t, err)
	return resp.ID
}

func (f *fixture) budget(t *testing.T, id string) *budget.Budget {
	t.Helper()
	b, err := f.store.FindBudget(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *fixture) activeCount(t *testing.T, dept string) int {
	t.Helper()
	list, err := f.store.FindBudgetsByDepartment(context.Background(), budget.Department(dept))
	require.NoError(t, err)
	n := 0
	for _, b := range list {
		if b.IsActive() {
			n++
		}
	}
	return n
}

// counter sums every data point of the int64 sum metric name
func (f *fixture) counter(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, f.reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}
