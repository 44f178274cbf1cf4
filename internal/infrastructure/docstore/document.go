package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type docKey struct {
	collection string
	id         string
}

func (k docKey) String() string {
	return k.collection + "/" + k.id
}

// docState is a transaction's working copy of one document
type docState struct {
	key        docKey
	fields     map[string]any
	version    int64
	exists     bool
	insert     bool
	createTime time.Time
}

type opKind int

const (
	opCreate opKind = iota
	opSet
	opUpdate
)

type writeOp struct {
	kind    opKind
	key     docKey
	data    any
	updates []Update
}

// writeBuffer records the writes of a transaction in call order
type writeBuffer struct {
	ops []writeOp
}

func (w *writeBuffer) add(op writeOp) error {
	if op.key.collection == "" || op.key.id == "" {
		return fmt.Errorf("%w: collection and id are required", ErrInvalidPath)
	}
	if op.kind == opUpdate {
		for _, u := range op.updates {
			if _, err := splitPath(u.Path); err != nil {
				return err
			}
		}
	}
	w.ops = append(w.ops, op)
	return nil
}

func (w *writeBuffer) written() bool {
	return len(w.ops) > 0
}

// stageWrites applies ops in order to working copies supplied by load and
// returns every touched document in first-touch order. load must return a
// copy the caller may mutate, with exists=false for absent documents.
func stageWrites(ops []writeOp, load func(docKey) (*docState, error), now time.Time) ([]*docState, error) {
	staged := make(map[docKey]*docState)
	var order []*docState

	get := func(k docKey) (*docState, error) {
		if st, ok := staged[k]; ok {
			return st, nil
		}
		st, err := load(k)
		if err != nil {
			return nil, err
		}
		staged[k] = st
		order = append(order, st)
		return st, nil
	}

	for _, op := range ops {
		st, err := get(op.key)
		if err != nil {
			return nil, err
		}
		switch op.kind {
		case opCreate:
			if st.exists {
				return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, op.key)
			}
			fields, err := normalizeDocument(op.data, now)
			if err != nil {
				return nil, err
			}
			st.fields, st.exists, st.insert, st.createTime = fields, true, true, now
		case opSet:
			fields, err := normalizeDocument(op.data, now)
			if err != nil {
				return nil, err
			}
			if !st.exists {
				st.exists, st.insert, st.createTime = true, true, now
			}
			st.fields = fields
		case opUpdate:
			if !st.exists {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, op.key)
			}
			if err := applyUpdates(st.fields, op.updates, now); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}

func decodeFields(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("docstore: decode document: %w", err)
	}
	if m == nil {
		m = make(map[string]any)
	}
	return m, nil
}

func encodeFields(fields map[string]any) ([]byte, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode document: %w", err)
	}
	return raw, nil
}

// normalizeDocument turns data into a generic JSON object
func normalizeDocument(data any, now time.Time) (map[string]any, error) {
	if m, ok := data.(map[string]any); ok {
		data = resolveSentinels(m, now)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode document: %w", err)
	}
	return decodeFields(raw)
}

func normalizeValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode value: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("docstore: decode value: %w", err)
	}
	return out, nil
}

func resolveSentinels(v any, now time.Time) any {
	switch x := v.(type) {
	case serverTimestamp:
		return now
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = resolveSentinels(e, now)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = resolveSentinels(e, now)
		}
		return out
	}
	return v
}

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return parts, nil
}

func lookupPath(fields map[string]any, parts []string) (any, bool) {
	var cur any = fields
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// applyUpdates mutates doc in place. Intermediate objects are created as needed.
func applyUpdates(doc map[string]any, updates []Update, now time.Time) error {
	for _, u := range updates {
		parts, err := splitPath(u.Path)
		if err != nil {
			return err
		}
		parent := doc
		for _, p := range parts[:len(parts)-1] {
			next, ok := parent[p]
			if !ok || next == nil {
				m := make(map[string]any)
				parent[p] = m
				parent = m
				continue
			}
			m, ok := next.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: %q crosses a non-object field", ErrInvalidPath, u.Path)
			}
			parent = m
		}
		leaf := parts[len(parts)-1]

		if inc, ok := u.Value.(increment); ok {
			cur, err := numericValue(parent[leaf])
			if err != nil {
				return fmt.Errorf("docstore: increment %q: %w", u.Path, err)
			}
			sum := cur.Add(inc.delta)
			if inc.integral {
				parent[leaf] = json.Number(strconv.FormatInt(sum.IntPart(), 10))
			} else {
				parent[leaf] = sum.String()
			}
			continue
		}

		v, err := normalizeValue(resolveSentinels(u.Value, now))
		if err != nil {
			return err
		}
		parent[leaf] = v
	}
	return nil
}

func numericValue(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case json.Number:
		return decimal.NewFromString(string(x))
	case string:
		if x == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(x)
	case float64:
		return decimal.NewFromFloat(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	}
	return decimal.Zero, fmt.Errorf("field holds non-numeric %T", v)
}

func asNumber(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(string(x))
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(x)
		return d, err == nil
	}
	return decimal.Zero, false
}

func matches(fields map[string]any, filters []Filter) (bool, error) {
	for _, f := range filters {
		parts, err := splitPath(f.Path)
		if err != nil {
			return false, err
		}
		got, _ := lookupPath(fields, parts)
		want, err := normalizeValue(f.Value)
		if err != nil {
			return false, err
		}
		eq := valuesEqual(got, want)
		switch f.Op {
		case OpEqual, "":
			if !eq {
				return false, nil
			}
		case OpNotEqual:
			if eq {
				return false, nil
			}
		default:
			return false, fmt.Errorf("docstore: unsupported operator %q", f.Op)
		}
	}
	return true, nil
}

func valuesEqual(a, b any) bool {
	if an, ok := a.(json.Number); ok {
		if bn, ok := b.(json.Number); ok {
			ad, aerr := decimal.NewFromString(string(an))
			bd, berr := decimal.NewFromString(string(bn))
			if aerr == nil && berr == nil {
				return ad.Equal(bd)
			}
		}
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if ad, ok := asNumber(a); ok {
		if bd, ok := asNumber(b); ok {
			return ad.Cmp(bd)
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs)
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// applyQuery filters, orders and limits snaps in place
func applyQuery(snaps []*Snapshot, q Query) ([]*Snapshot, error) {
	out := snaps[:0]
	for _, s := range snaps {
		fields, err := s.Data()
		if err != nil {
			return nil, err
		}
		ok, err := matches(fields, q.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, s)
		}
	}

	orderParts := make([][]string, len(q.Orders))
	for i, o := range q.Orders {
		parts, err := splitPath(o.Path)
		if err != nil {
			return nil, err
		}
		orderParts[i] = parts
	}
	sort.SliceStable(out, func(i, j int) bool {
		fi, _ := out[i].Data()
		fj, _ := out[j].Data()
		for k, o := range q.Orders {
			vi, _ := lookupPath(fi, orderParts[k])
			vj, _ := lookupPath(fj, orderParts[k])
			c := compareValues(vi, vj)
			if o.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return out[i].ID < out[j].ID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
