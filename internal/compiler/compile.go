// Package compiler turns CUE rig definitions into validated rig configs.
//
// A definition file holds any of four top-level maps keyed by rig name:
//
//	mine: gold: { address: "0x...", quote: "0x...", ... }
//	spin: wheel: { ... }
//	fund: charity: { ... }
//	auction: treasury: { ... }
//
// Files are unified with an embedded schema, decoded, and every config is
// validated with the same rules the rigs apply at construction.
package compiler

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rigs/internal/engine"
)

const schemaFile = "schema.cue"

//go:embed schema.cue
var schemaCUE string

// CompileError is a definition error with its source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos

	// Code is set when a rig rule rejected the config, either as a schema
	// bound or in the rig's Validate.
	Code engine.ErrorCode
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileString compiles definitions from CUE source.
func CompileString(src string) (*Definitions, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename("<input>"))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compile(ctx, v)
}

// CompileFiles compiles the unification of every .cue file named by paths.
// A directory contributes its .cue files in name order (not recursive).
func CompileFiles(paths ...string) (*Definitions, error) {
	files, err := expand(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &CompileError{Field: "files", Message: "no CUE files found"}
	}

	ctx := cuecontext.New()
	v := ctx.CompileString("{}")
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		fv := ctx.CompileBytes(data, cue.Filename(f))
		if err := fv.Err(); err != nil {
			return nil, formatCUEError(err)
		}
		v = v.Unify(fv)
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compile(ctx, v)
}

// Compile compiles an already built CUE value.
func Compile(v cue.Value) (*Definitions, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compile(v.Context(), v)
}

func compile(ctx *cue.Context, v cue.Value) (*Definitions, error) {
	schema := ctx.CompileString(schemaCUE, cue.Filename(schemaFile))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("embedded schema: %w", err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Rigs")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	d := &Definitions{}
	var err error
	if d.Mines, err = decodeAll(unified, v, "mine", decodeMine); err != nil {
		return nil, err
	}
	if d.Spins, err = decodeAll(unified, v, "spin", decodeSpin); err != nil {
		return nil, err
	}
	if d.Funds, err = decodeAll(unified, v, "fund", decodeFund); err != nil {
		return nil, err
	}
	if d.Auctions, err = decodeAll(unified, v, "auction", decodeAuction); err != nil {
		return nil, err
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// decodeAll decodes every entry under key, in name order. raw is the
// value before schema unification; its positions point at user source.
func decodeAll[T any](unified, raw cue.Value, key string, decode func(name string, v, raw cue.Value) (T, error)) ([]T, error) {
	group := unified.LookupPath(cue.ParsePath(key))
	if !group.Exists() {
		return nil, nil
	}
	iter, err := group.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var names []string
	for iter.Next() {
		names = append(names, iter.Selector().Unquoted())
	}
	slices.Sort(names)

	out := make([]T, 0, len(names))
	for _, name := range names {
		sel := cue.MakePath(cue.Str(key), cue.Str(name))
		def, err := decode(name, unified.LookupPath(sel), raw.LookupPath(sel))
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func expand(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, &CompileError{Field: "files", Message: fmt.Sprintf("cannot read %s: %v", p, err)}
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", p, err)
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".cue") {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
	}
	return files, nil
}

// boundCodes maps a field to the rig error code its schema bound stands
// for, so a bound caught by CUE reports the same code as Validate.
var boundCodes = map[string]engine.ErrorCode{
	"epoch_period":        engine.ErrCodeInvalidEpochPeriod,
	"price_multiplier":    engine.ErrCodeInvalidPriceMultiplier,
	"min_init_price":      engine.ErrCodeInvalidMinInitPrice,
	"initial_ups":         engine.ErrCodeInvalidUps,
	"tail_ups":            engine.ErrCodeInvalidTailUps,
	"halving_amount":      engine.ErrCodeInvalidHalving,
	"halving_period":      engine.ErrCodeInvalidHalving,
	"ups_multipliers":     engine.ErrCodeInvalidMultiplier,
	"multiplier_duration": engine.ErrCodeInvalidMultiplierDuration,
	"capacity":            engine.ErrCodeInvalidCapacity,
	"odds":                engine.ErrCodeInvalidOdds,
	"initial_emission":    engine.ErrCodeInvalidEmission,
	"min_emission":        engine.ErrCodeInvalidEmission,
}

// boundCode returns the code for a bound violation at path. List elements
// take the code of their list.
func boundCode(path []string) engine.ErrorCode {
	for i := len(path) - 1; i >= 0; i-- {
		if c, ok := boundCodes[path[i]]; ok {
			return c
		}
	}
	return ""
}

// formatCUEError returns the first CUE error as a CompileError with its
// position in user source, when it has one. A violated schema bound is
// preferred and carries the matching rig error code.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	var code engine.ErrorCode
	for _, e := range errs {
		if !strings.Contains(e.Error(), "out of bound") {
			continue
		}
		if c := boundCode(e.Path()); c != "" {
			first, code = e, c
			break
		}
	}
	field := "cue"
	if path := first.Path(); len(path) > 0 {
		field = strings.Join(path, ".")
	}
	msg := first.Error()
	if len(errs) > 1 {
		msg = fmt.Sprintf("%s (and %d more errors)", msg, len(errs)-1)
	}
	ce := &CompileError{Field: field, Message: msg, Code: code}
	positions := errors.Positions(first)
	for _, p := range positions {
		if p.Filename() != schemaFile {
			ce.Pos = p
			return ce
		}
	}
	if len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
