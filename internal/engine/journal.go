package engine

import "github.com/ethereum/go-ethereum/common"

// Journal makes rig state part of an all-or-nothing call. A rig entered
// from inside another rig's transfers (a token hook calling back into a
// different rig) commits before the outer call does; if the outer call
// then fails, the inner rig's writes must be undone and its events dropped.
//
// token.Bank implements Journal.
type Journal interface {
	// Journal records how to undo a state write. Undo steps run in
	// reverse order when an enclosing call reverts.
	Journal(undo func())

	// OnCommit runs fn once no enclosing call can revert any more:
	// immediately outside a call, else when the outermost call commits.
	// fn is dropped if an enclosing call reverts.
	OnCommit(fn func())
}

// Restore is an undo step for a map write: it puts back v when ok is true
// and removes k otherwise.
func Restore[K comparable, V any](m map[K]V, k K, v V, ok bool) {
	if ok {
		m[k] = v
		return
	}
	delete(m, k)
}

// Deferred wraps e so records are published through j.OnCommit.
func Deferred(j Journal, e Emitter) Emitter {
	if e == nil {
		e = Discard
	}
	if j == nil {
		return e
	}
	return deferred{j: j, e: e}
}

type deferred struct {
	j Journal
	e Emitter
}

func (d deferred) Emit(tx Tx, rig common.Address, records ...Record) {
	if len(records) == 0 {
		return
	}
	recs := append([]Record(nil), records...)
	d.j.OnCommit(func() { d.e.Emit(tx, rig, recs...) })
}
