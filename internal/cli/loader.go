package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/rigs/internal/compiler"
	"github.com/roach88/rigs/internal/engine"
)

// LoadError is a definition loading error with its CLI error code.
type LoadError struct {
	Code    string
	Message string
	Field   string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants shared by every command.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeBadFlag     = "E008" // Flag value rejected

	ErrCodeTestFailed   = "E_TEST_FAILED"
	ErrCodeVerifyFailed = "E_VERIFY_FAILED"
)

// LoadDefinitions compiles the CUE rig definitions at paths (files or
// directories). Errors are returned as *LoadError.
func LoadDefinitions(paths []string) (*compiler.Definitions, error) {
	if len(paths) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: "no definition files given"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", p)}
		}
	}

	defs, err := compiler.CompileFiles(paths...)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return defs, nil
}

// convertCompileError converts a compiler error to a LoadError. A rig's
// own validation failure keeps its rig error code (INVALID_ODDS, ...).
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		code := ErrCodeBuildFailed
		switch {
		case compileErr.Code != "":
			code = string(compileErr.Code)
		case compileErr.Field == "files" && strings.HasPrefix(compileErr.Message, "no CUE files"):
			code = ErrCodeNoFiles
		}
		return &LoadError{
			Code:    code,
			Message: compileErr.Message,
			Field:   compileErr.Field,
			Pos:     compileErr.Pos,
		}
	}
	if c := engine.CodeOf(err); c != "" {
		return &LoadError{Code: string(c), Message: err.Error()}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}
