package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gryphon/budget-core/internal/domain/budget"
	"github.com/gryphon/budget-core/internal/domain/shared"
	"github.com/gryphon/budget-core/internal/infrastructure/docstore"
)

// Collection names of the budget documents
const (
	CollectionBudgets         = "budgets"
	CollectionPurchaseIntents = "purchaseIntents"
	CollectionPurchaseOrders  = "purchaseOrders"
)

// BudgetStore implements budget.Store on a document store
type BudgetStore struct {
	docs docstore.Store
}

// NewBudgetStore creates a budget store backed by docs
func NewBudgetStore(docs docstore.Store) *BudgetStore {
	return &BudgetStore{docs: docs}
}

// FindBudget finds a budget by document id
func (s *BudgetStore) FindBudget(ctx context.Context, id string) (*budget.Budget, error) {
	snap, err := s.docs.Get(ctx, CollectionBudgets, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, budget.BudgetNotFound(id)
		}
		return nil, fmt.Errorf("find budget %s: %w", id, err)
	}
	return decodeBudget(snap)
}

// FindBudgetsByDepartment lists the budgets of a department ordered by fiscal year
func (s *BudgetStore) FindBudgetsByDepartment(ctx context.Context, department budget.Department) ([]*budget.Budget, error) {
	snaps, err := s.docs.Query(ctx, CollectionBudgets, departmentQuery(department))
	if err != nil {
		return nil, fmt.Errorf("list budgets of %s: %w", department, err)
	}
	return decodeBudgets(snaps)
}

// FindIntent finds a purchase intent by id
func (s *BudgetStore) FindIntent(ctx context.Context, id string) (*budget.PurchaseIntent, error) {
	snap, err := s.docs.Get(ctx, CollectionPurchaseIntents, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, budget.IntentNotFound(id)
		}
		return nil, fmt.Errorf("find purchase intent %s: %w", id, err)
	}
	return decodeIntent(snap)
}

// FindPurchaseOrder finds a purchase order by id
func (s *BudgetStore) FindPurchaseOrder(ctx context.Context, id string) (*budget.PurchaseOrder, error) {
	snap, err := s.docs.Get(ctx, CollectionPurchaseOrders, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, budget.PurchaseOrderNotFound(id)
		}
		return nil, fmt.Errorf("find purchase order %s: %w", id, err)
	}
	return decodePurchaseOrder(snap)
}

// FindPurchaseOrders lists the purchase orders of a department and fiscal year by sequence
func (s *BudgetStore) FindPurchaseOrders(ctx context.Context, department budget.Department, fiscalYear budget.FiscalYear) ([]*budget.PurchaseOrder, error) {
	snaps, err := s.docs.Query(ctx, CollectionPurchaseOrders, docstore.Query{
		Filters: []docstore.Filter{
			docstore.Where("department", docstore.OpEqual, department.String()),
			docstore.Where("fiscalYear", docstore.OpEqual, fiscalYear.String()),
		},
		Orders: []docstore.Order{{Path: "sequence"}},
	})
	if err != nil {
		return nil, fmt.Errorf("list purchase orders of %s FY%s: %w", department, fiscalYear, err)
	}
	out := make([]*budget.PurchaseOrder, 0, len(snaps))
	for _, snap := range snaps {
		po, err := decodePurchaseOrder(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, nil
}

// RunInTransaction runs fn in a document store transaction. Exhausted
// conflict retries surface as CONCURRENCY_CONFLICT.
func (s *BudgetStore) RunInTransaction(ctx context.Context, fn func(tx budget.Tx) error) error {
	err := s.docs.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return fn(&budgetTx{tx: tx})
	})
	return translateStoreError(err)
}

func translateStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrConflict):
		return shared.NewConflictError(err.Error())
	case errors.Is(err, docstore.ErrAlreadyExists):
		return shared.NewDomainError(shared.CodeAlreadyExists, err.Error())
	}
	return err
}

// budgetTx implements budget.Tx
type budgetTx struct {
	tx docstore.Tx
}

func (t *budgetTx) GetBudget(id string) (*budget.Budget, error) {
	b, found, err := t.LookupBudget(id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, budget.BudgetNotFound(id)
	}
	return b, nil
}

func (t *budgetTx) LookupBudget(id string) (*budget.Budget, bool, error) {
	snap, err := t.tx.Get(CollectionBudgets, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	b, err := decodeBudget(snap)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (t *budgetTx) BudgetsByDepartment(department budget.Department) ([]*budget.Budget, error) {
	snaps, err := t.tx.Query(CollectionBudgets, departmentQuery(department))
	if err != nil {
		return nil, err
	}
	return decodeBudgets(snaps)
}

func (t *budgetTx) GetIntent(id string) (*budget.PurchaseIntent, error) {
	snap, err := t.tx.Get(CollectionPurchaseIntents, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, budget.IntentNotFound(id)
		}
		return nil, err
	}
	return decodeIntent(snap)
}

func (t *budgetTx) CreateBudget(b *budget.Budget) error {
	fields, err := toFields(b)
	if err != nil {
		return err
	}
	fields["createdAt"] = docstore.ServerTimestamp
	fields["updatedAt"] = docstore.ServerTimestamp
	return t.tx.Create(CollectionBudgets, b.ID, fields)
}

func (t *budgetTx) CreateIntent(intent *budget.PurchaseIntent) error {
	fields, err := toFields(intent)
	if err != nil {
		return err
	}
	fields["createdAt"] = docstore.ServerTimestamp
	fields["updatedAt"] = docstore.ServerTimestamp
	return t.tx.Create(CollectionPurchaseIntents, intent.ID, fields)
}

func (t *budgetTx) CreatePurchaseOrder(po *budget.PurchaseOrder) error {
	fields, err := toFields(po)
	if err != nil {
		return err
	}
	fields["createdAt"] = docstore.ServerTimestamp
	fields["approvedAt"] = docstore.ServerTimestamp
	return t.tx.Create(CollectionPurchaseOrders, po.ID, fields)
}

func (t *budgetTx) MarkIntentApproved(intent *budget.PurchaseIntent) error {
	return t.tx.Update(CollectionPurchaseIntents, intent.ID,
		docstore.Update{Path: "status", Value: intent.Status.String()},
		docstore.Update{Path: "poCreated", Value: true},
		docstore.Update{Path: "poNumber", Value: intent.PONumber.String()},
		docstore.Update{Path: "approvedBy", Value: intent.ApprovedBy},
		docstore.Update{Path: "approvedAt", Value: docstore.ServerTimestamp},
		docstore.Update{Path: "updatedAt", Value: docstore.ServerTimestamp},
	)
}

func (t *budgetTx) SetBudgetStatus(id string, status budget.Status, actor string) error {
	return t.tx.Update(CollectionBudgets, id,
		docstore.Update{Path: "status", Value: status.String()},
		docstore.Update{Path: "updatedBy", Value: actor},
		docstore.Update{Path: "updatedAt", Value: docstore.ServerTimestamp},
	)
}

func (t *budgetTx) PostSpend(budgetID string, p budget.SpendPosting) error {
	updates := []docstore.Update{
		{Path: budget.SpentPath(p.Section, p.Key), Value: docstore.IncrementDecimal(p.Amount)},
		{Path: "summary.totalSpent", Value: docstore.IncrementDecimal(p.Amount)},
		{Path: "updatedBy", Value: p.Actor},
		{Path: "updatedAt", Value: docstore.ServerTimestamp},
	}
	if p.AdvancePOCounter {
		updates = append(updates, docstore.Update{Path: "poCounter", Value: docstore.Increment(1)})
	}
	return t.tx.Update(CollectionBudgets, budgetID, updates...)
}

func departmentQuery(department budget.Department) docstore.Query {
	return docstore.Query{
		Filters: []docstore.Filter{docstore.Where("department", docstore.OpEqual, department.String())},
		Orders:  []docstore.Order{{Path: "fiscalYear"}},
	}
}

// toFields encodes v as a generic JSON object so store sentinels can be set on it
func toFields(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return fields, nil
}

func decodeBudget(snap *docstore.Snapshot) (*budget.Budget, error) {
	var b budget.Budget
	if err := snap.DataTo(&b); err != nil {
		return nil, fmt.Errorf("decode budget %s: %w", snap.ID, err)
	}
	b.ID = snap.ID
	return &b, nil
}

func decodeBudgets(snaps []*docstore.Snapshot) ([]*budget.Budget, error) {
	out := make([]*budget.Budget, 0, len(snaps))
	for _, snap := range snaps {
		b, err := decodeBudget(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func decodeIntent(snap *docstore.Snapshot) (*budget.PurchaseIntent, error) {
	var intent budget.PurchaseIntent
	if err := snap.DataTo(&intent); err != nil {
		return nil, fmt.Errorf("decode purchase intent %s: %w", snap.ID, err)
	}
	intent.ID = snap.ID
	return &intent, nil
}

func decodePurchaseOrder(snap *docstore.Snapshot) (*budget.PurchaseOrder, error) {
	var po budget.PurchaseOrder
	if err := snap.DataTo(&po); err != nil {
		return nil, fmt.Errorf("decode purchase order %s: %w", snap.ID, err)
	}
	po.ID = snap.ID
	return &po, nil
}
