package budget

import (
	"context"
	"testing"

	"github.com/gryphon/budget-core/internal/domain/budget"
	"github.com/gryphon/budget-core/internal/domain/shared"
	"github.com/gryphon/budget-core/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func TestBulkExpensePoster_SkipsMissingBudgets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	realID := f.createBudget(t, "real", "25-26")

	resp, err := f.bulk.PostBulk(ctx, BulkPostRequest{
		Entries: []BulkEntry{
			{Department: "ghost", Amount: d("100")},
			{Department: "real", Amount: d("50")},
		},
		FiscalYear:  "25-26",
		Section:     "departmentExpenses",
		ExpenseType: "employeeSalary",
		Actor:       "finance",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"real"}, resp.Posted)
	require.Len(t, resp.Skipped, 1)
	assert.Equal(t, "ghost", resp.Skipped[0].Department)
	assert.Equal(t, telemetry.SkipReasonBudgetMissing, resp.Skipped[0].Reason)
	assert.True(t, d("50").Equal(resp.Total))

	b := f.budget(t, realID)
	assert.True(t, d("50").Equal(b.DepartmentExpenses[budget.ComponentEmployeeSalary].Spent))
	assert.True(t, d("50").Equal(b.Summary.TotalSpent))
	assert.Equal(t, int64(0), b.POCounter)
	assert.Equal(t, "finance", b.UpdatedBy)

	warnings := f.logs.FilterMessage("bulk expense entry skipped").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, zapcore.WarnLevel, warnings[0].Level)
	assert.Equal(t, "ghost", warnings[0].ContextMap()["department"])
	assert.Equal(t, int64(1), f.counter(t, "budget_bulk_entries_skipped_total"))
	assert.Equal(t, int64(1), f.counter(t, "budget_bulk_entries_posted_total"))
	assert.Contains(t, f.events.seen(), budget.EventTypeBulkExpensesPosted)
}

func TestBulkExpensePoster_EntryFiltering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dm := f.createBudget(t, "dm", "25-26")
	sales := f.createBudget(t, "sales", "25-26")

	resp, err := f.bulk.PostBulk(ctx, BulkPostRequest{
		Entries: []BulkEntry{
			{Department: "dm", Amount: d("10")},
			{Department: "sales", Amount: d("0")},
			{Department: "sales", Amount: d("-5")},
			{Department: "Not A Dept", Amount: d("7")},
			{Department: "DM", Amount: d("2.5")},
			{Department: "sales", Amount: d("3")},
		},
		FiscalYear:  "25-26",
		Section:     "fixedCosts",
		ExpenseType: "electricity",
		Actor:       "finance",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"dm", "sales"}, resp.Posted)
	assert.True(t, d("15.5").Equal(resp.Total))
	reasons := make([]string, 0, len(resp.Skipped))
	for _, s := range resp.Skipped {
		reasons = append(reasons, s.Reason)
	}
	assert.Equal(t, []string{
		telemetry.SkipReasonNonPositive,
		telemetry.SkipReasonNonPositive,
		telemetry.SkipReasonInvalidDepartment,
	}, reasons)

	// electricity had no allocation line; posting creates its spend counter
	dmBudget := f.budget(t, dm)
	assert.True(t, d("12.5").Equal(dmBudget.FixedCosts[budget.ComponentElectricity].Spent))
	assert.True(t, dmBudget.FixedCosts[budget.ComponentElectricity].Allocated.IsZero())
	assert.True(t, d("12.5").Equal(dmBudget.Summary.TotalSpent))
	assert.True(t, d("3").Equal(f.budget(t, sales).FixedCosts[budget.ComponentElectricity].Spent))

	assert.Equal(t, int64(3), f.counter(t, "budget_bulk_entries_skipped_total"))
}

func TestBulkExpensePoster_NothingPostedPublishesNothing(t *testing.T) {
	f := newFixture(t)

	resp, err := f.bulk.PostBulk(context.Background(), BulkPostRequest{
		Entries:     []BulkEntry{{Department: "ghost", Amount: d("100")}},
		FiscalYear:  "25-26",
		Section:     "csddExpenses",
		ExpenseType: "venueCharges",
		Actor:       "finance",
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Posted)
	assert.True(t, resp.Total.IsZero())
	assert.NotContains(t, f.events.seen(), budget.EventTypeBulkExpensesPosted)
}

func TestBulkExpensePoster_Validation(t *testing.T) {
	valid := func() BulkPostRequest {
		return BulkPostRequest{
			Entries:     []BulkEntry{{Department: "dm", Amount: d("1")}},
			FiscalYear:  "25-26",
			Section:     "fixedCosts",
			ExpenseType: "rent",
			Actor:       "finance",
		}
	}
	tests := []struct {
		name   string
		mutate func(r *BulkPostRequest)
	}{
		{"malformed fiscal year", func(r *BulkPostRequest) { r.FiscalYear = "25/26" }},
		{"unknown section", func(r *BulkPostRequest) { r.Section = "travel" }},
		{"invalid expense type", func(r *BulkPostRequest) { r.ExpenseType = "rent.spent" }},
		{"custom fixed cost", func(r *BulkPostRequest) { r.ExpenseType = "parking" }},
		{"missing actor", func(r *BulkPostRequest) { r.Actor = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := f.createBudget(t, "dm", "25-26")
			req := valid()
			tt.mutate(&req)

			_, err := f.bulk.PostBulk(context.Background(), req)
			assert.True(t, shared.IsValidation(err), "got %v", err)
			assert.True(t, f.budget(t, id).Summary.TotalSpent.IsZero())
		})
	}
}

func TestBulkExpensePoster_CustomComponentMustExist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dm, err := f.budgets.CreateBudget(ctx, CreateBudgetRequest{
		Department: "dm",
		FiscalYear: "25-26",
		OwnerName:  "Priya",
		DepartmentExpenses: []ComponentInput{
			{DisplayName: "Printing & Stationery", Allocated: d("300")},
		},
		Actor: "admin",
	})
	require.NoError(t, err)
	sales := f.createBudget(t, "sales", "25-26")

	resp, err := f.bulk.PostBulk(ctx, BulkPostRequest{
		Entries: []BulkEntry{
			{Department: "sales", Amount: d("50")},
			{Department: "dm", Amount: d("20")},
		},
		FiscalYear:  "25-26",
		Section:     "departmentExpenses",
		ExpenseType: "printingStationery",
		Actor:       "finance",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"dm"}, resp.Posted)
	require.Len(t, resp.Skipped, 1)
	assert.Equal(t, "sales", resp.Skipped[0].Department)
	assert.Equal(t, telemetry.SkipReasonComponentMissing, resp.Skipped[0].Reason)
	assert.True(t, d("20").Equal(resp.Total))

	line := f.budget(t, dm.ID).DepartmentExpenses["printingStationery"]
	assert.True(t, line.Custom)
	assert.Equal(t, "Printing & Stationery", line.DisplayName)
	assert.True(t, d("20").Equal(line.Spent))

	salesBudget := f.budget(t, sales)
	assert.NotContains(t, salesBudget.DepartmentExpenses, budget.ComponentKey("printingStationery"))
	assert.True(t, salesBudget.Summary.TotalSpent.IsZero())

	warnings := f.logs.FilterMessage("bulk expense entry skipped").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, telemetry.SkipReasonComponentMissing, warnings[0].ContextMap()["reason"])
	assert.Equal(t, int64(1), f.counter(t, "budget_bulk_entries_skipped_total"))
}

func TestBulkExpensePoster_OppositeEntryOrdersBothApply(t *testing.T) {
	f := newFixture(t)
	hr := f.createBudget(t, "hr", "25-26")
	dm := f.createBudget(t, "dm", "25-26")

	orders := [][]BulkEntry{
		{{Department: "hr", Amount: d("1")}, {Department: "dm", Amount: d("1")}},
		{{Department: "dm", Amount: d("1")}, {Department: "hr", Amount: d("1")}},
	}
	g, ctx := errgroup.WithContext(context.Background())
	for n := 0; n < 10; n++ {
		entries := orders[n%2]
		g.Go(func() error {
			resp, err := f.bulk.PostBulk(ctx, BulkPostRequest{
				Entries:     entries,
				FiscalYear:  "25-26",
				Section:     "fixedCosts",
				ExpenseType: "rent",
				Actor:       "finance",
			})
			if err == nil {
				assert.Equal(t, []string{"dm", "hr"}, resp.Posted)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.True(t, d("10").Equal(f.budget(t, hr).FixedCosts[budget.ComponentRent].Spent))
	assert.True(t, d("10").Equal(f.budget(t, dm).FixedCosts[budget.ComponentRent].Spent))
}
