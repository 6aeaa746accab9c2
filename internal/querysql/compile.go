// Package querysql compiles event-log filters to parameterised SQLite.
//
// Every compiled query orders by seq ASC, id ASC COLLATE BINARY so reads
// are identical across replays. Values are always bound as parameters;
// column names are checked against a fixed allow-list.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/rigs/internal/ir"
)

// Tables the compiler can target.
const (
	TableEvents   = "events"
	TableReceipts = "receipts"
)

// OrderBy is appended to every compiled query.
const OrderBy = "ORDER BY seq ASC, id ASC COLLATE BINARY"

var columns = map[string]map[string]bool{
	TableEvents: {
		"id": true, "tx_id": true, "seq": true, "time": true, "rig": true, "kind": true,
		"fields": true,
	},
	TableReceipts: {
		"id": true, "seq": true, "time": true, "label": true, "sender": true,
		"status": true, "code": true, "error": true,
	},
}

// Filter selects events from the log. Zero values match everything.
type Filter struct {
	Rig     string   // emitting rig, hex
	Kinds   []string // any of these kinds
	TxID    string
	FromSeq int64 // inclusive; 0 = unbounded
	ToSeq   int64 // inclusive; 0 = unbounded
	Limit   int   // 0 = no limit
}

// Predicate converts f to a predicate tree.
func (f Filter) Predicate() Predicate {
	var preds []Predicate
	if f.Rig != "" {
		preds = append(preds, Equals{Column: "rig", Value: ir.IRString(f.Rig)})
	}
	if len(f.Kinds) == 1 {
		preds = append(preds, Equals{Column: "kind", Value: ir.IRString(f.Kinds[0])})
	} else if len(f.Kinds) > 1 {
		values := make([]ir.IRValue, len(f.Kinds))
		for i, k := range f.Kinds {
			values[i] = ir.IRString(k)
		}
		preds = append(preds, In{Column: "kind", Values: values})
	}
	if f.TxID != "" {
		preds = append(preds, Equals{Column: "tx_id", Value: ir.IRString(f.TxID)})
	}
	if f.FromSeq > 0 {
		preds = append(preds, AtLeast{Column: "seq", Value: ir.IRInt(f.FromSeq)})
	}
	if f.ToSeq > 0 {
		preds = append(preds, AtMost{Column: "seq", Value: ir.IRInt(f.ToSeq)})
	}
	return And{Predicates: preds}
}

// Query is a compiled statement and its parameters.
type Query struct {
	SQL    string
	Params []any
}

// CompileEvents compiles f against the events table, selecting cols.
func CompileEvents(f Filter, cols ...string) (Query, error) {
	return Compile(TableEvents, cols, f.Predicate(), f.Limit)
}

// Compile builds SELECT cols FROM table WHERE p ORDER BY ... LIMIT limit.
func Compile(table string, cols []string, p Predicate, limit int) (Query, error) {
	allowed, ok := columns[table]
	if !ok {
		return Query{}, fmt.Errorf("unknown table %q", table)
	}
	if len(cols) == 0 {
		return Query{}, fmt.Errorf("no columns selected from %s", table)
	}
	if limit < 0 {
		return Query{}, fmt.Errorf("negative limit %d", limit)
	}

	c := compiler{allowed: allowed}
	for _, col := range cols {
		if err := c.column(col); err != nil {
			return Query{}, err
		}
	}
	where, err := c.predicate(p)
	if err != nil {
		return Query{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(cols, ", "), table)
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	b.WriteString(" ")
	b.WriteString(OrderBy)
	if limit > 0 {
		b.WriteString(" LIMIT ?")
		c.params = append(c.params, int64(limit))
	}
	return Query{SQL: b.String(), Params: c.params}, nil
}

type compiler struct {
	allowed map[string]bool
	params  []any
}

// predicate returns "" for an always-true predicate.
func (c *compiler) predicate(p Predicate) (string, error) {
	switch pred := p.(type) {
	case nil:
		return "", nil
	case Equals:
		return c.compare(pred.Column, "=", pred.Value)
	case AtLeast:
		return c.compare(pred.Column, ">=", pred.Value)
	case AtMost:
		return c.compare(pred.Column, "<=", pred.Value)
	case In:
		if err := c.column(pred.Column); err != nil {
			return "", err
		}
		if len(pred.Values) == 0 {
			return "0 = 1", nil
		}
		marks := make([]string, len(pred.Values))
		for i, v := range pred.Values {
			param, err := param(v)
			if err != nil {
				return "", fmt.Errorf("%s: %w", pred.Column, err)
			}
			marks[i] = "?"
			c.params = append(c.params, param)
		}
		return fmt.Sprintf("%s IN (%s)", pred.Column, strings.Join(marks, ", ")), nil
	case And:
		var parts []string
		for _, sub := range pred.Predicates {
			s, err := c.predicate(sub)
			if err != nil {
				return "", err
			}
			if s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " AND "), nil
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *compiler) compare(col, op string, v ir.IRValue) (string, error) {
	if err := c.column(col); err != nil {
		return "", err
	}
	param, err := param(v)
	if err != nil {
		return "", fmt.Errorf("%s: %w", col, err)
	}
	c.params = append(c.params, param)
	return fmt.Sprintf("%s %s ?", col, op), nil
}

func (c *compiler) column(col string) error {
	if !c.allowed[col] {
		return fmt.Errorf("unknown column %q", col)
	}
	return nil
}

// param converts a scalar IR value to a driver parameter.
func param(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		return bool(val), nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %T", v)
	}
}
