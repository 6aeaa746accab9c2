package engine

// Guard is a per-rig non-reentrancy flag.
//
// There is no parallelism inside a rig; the guard exists because token
// transfers to caller-supplied addresses may synchronously call back into
// the rig before the outer call finished.
//
// Usage:
//
//	if err := r.guard.Enter(r.addr.Hex()); err != nil {
//	    return err
//	}
//	defer r.guard.Exit()
type Guard struct {
	entered bool
}

// Enter marks the rig busy. It fails with REENTRANT_CALL if already busy.
func (g *Guard) Enter(rig string) error {
	if g.entered {
		return NewError(ErrCodeReentrantCall, "reentrant call").WithRig(rig)
	}
	g.entered = true
	return nil
}

// Exit releases the guard.
func (g *Guard) Exit() {
	g.entered = false
}

// Entered reports whether a call is in progress.
func (g *Guard) Entered() bool {
	return g.entered
}
