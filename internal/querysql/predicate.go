package querysql

import "github.com/roach88/rigs/internal/ir"

// Predicate is a filter condition over one event column.
//
// Sealed: only types in this package implement it, so the compiler can
// switch over every case.
type Predicate interface {
	predicateNode()
}

// Equals is column = value.
type Equals struct {
	Column string
	Value  ir.IRValue
}

func (Equals) predicateNode() {}

// In is column IN (values...). An empty list matches nothing.
type In struct {
	Column string
	Values []ir.IRValue
}

func (In) predicateNode() {}

// AtLeast is column >= value.
type AtLeast struct {
	Column string
	Value  ir.IRValue
}

func (AtLeast) predicateNode() {}

// AtMost is column <= value.
type AtMost struct {
	Column string
	Value  ir.IRValue
}

func (AtMost) predicateNode() {}

// And holds when every predicate holds. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
