package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// RigError is the error type returned by every rig entry point.
//
// Rig errors fall into four categories:
//   - Validation: a construction or admin parameter is out of range
//   - Frontrun: the caller's view is stale (epoch id, deadline, max price)
//   - State: the call does not apply to current state (already claimed, ...)
//   - Arithmetic: a computation would exceed its checked bound
//
// Every entry point is all-or-nothing: a returned RigError means nothing
// changed.
type RigError struct {
	// Code identifies the error.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Rig is the hex address of the rig that rejected the call, if known.
	Rig string

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode names a specific rig error.
type ErrorCode string

// Category groups error codes.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryValidation
	CategoryFrontrun
	CategoryState
	CategoryArithmetic
)

// String implements fmt.Stringer.
func (c Category) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryFrontrun:
		return "frontrun"
	case CategoryState:
		return "state"
	case CategoryArithmetic:
		return "arithmetic"
	default:
		return "unknown"
	}
}

// Validation errors.
const (
	ErrCodeInvalidEpochPeriod        ErrorCode = "INVALID_EPOCH_PERIOD"
	ErrCodeInvalidPriceMultiplier    ErrorCode = "INVALID_PRICE_MULTIPLIER"
	ErrCodeInvalidMinInitPrice       ErrorCode = "INVALID_MIN_INIT_PRICE"
	ErrCodeInvalidInitPrice          ErrorCode = "INVALID_INIT_PRICE"
	ErrCodeInvalidUps                ErrorCode = "INVALID_UPS"
	ErrCodeInvalidTailUps            ErrorCode = "INVALID_TAIL_UPS"
	ErrCodeInvalidHalving            ErrorCode = "INVALID_HALVING"
	ErrCodeInvalidOdds               ErrorCode = "INVALID_ODDS"
	ErrCodeInvalidMultiplier         ErrorCode = "INVALID_MULTIPLIER"
	ErrCodeInvalidMultiplierDuration ErrorCode = "INVALID_MULTIPLIER_DURATION"
	ErrCodeInvalidCapacity           ErrorCode = "INVALID_CAPACITY"
	ErrCodeInvalidEmission           ErrorCode = "INVALID_EMISSION"
	ErrCodeInvalidFee                ErrorCode = "INVALID_FEE"
	ErrCodeZeroAddress               ErrorCode = "ZERO_ADDRESS"
	ErrCodeEmptyName                 ErrorCode = "EMPTY_NAME"
)

// Frontrun and slippage errors.
const (
	ErrCodeEpochMismatch    ErrorCode = "EPOCH_MISMATCH"
	ErrCodeDeadlinePassed   ErrorCode = "DEADLINE_PASSED"
	ErrCodeMaxPriceExceeded ErrorCode = "MAX_PRICE_EXCEEDED"
	ErrCodeZeroMiner        ErrorCode = "ZERO_MINER"
	ErrCodeZeroSpinner      ErrorCode = "ZERO_SPINNER"
)

// State errors.
const (
	ErrCodeDayNotEnded         ErrorCode = "DAY_NOT_ENDED"
	ErrCodeAlreadyClaimed      ErrorCode = "ALREADY_CLAIMED"
	ErrCodeNoDonation          ErrorCode = "NO_DONATION"
	ErrCodeIndexOutOfBounds    ErrorCode = "INDEX_OUT_OF_BOUNDS"
	ErrCodeCapacityDecrease    ErrorCode = "CAPACITY_DECREASE"
	ErrCodeNothingToClaim      ErrorCode = "NOTHING_TO_CLAIM"
	ErrCodeInsufficientFee     ErrorCode = "INSUFFICIENT_FEE"
	ErrCodeBelowMinDonation    ErrorCode = "BELOW_MIN_DONATION"
	ErrCodeEmptyAssets         ErrorCode = "EMPTY_ASSETS"
	ErrCodeUnknownRequest      ErrorCode = "UNKNOWN_REQUEST"
	ErrCodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrCodeReentrantCall       ErrorCode = "REENTRANT_CALL"
	ErrCodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	ErrCodeInsufficientAllow   ErrorCode = "INSUFFICIENT_ALLOWANCE"
	ErrCodeNotApproved         ErrorCode = "NOT_APPROVED"
	ErrCodeAlreadyRegistered   ErrorCode = "ALREADY_REGISTERED"
	ErrCodeUnknownToken        ErrorCode = "UNKNOWN_TOKEN"
)

// Arithmetic errors.
const (
	ErrCodeOverflow ErrorCode = "OVERFLOW"
)

var codeCategories = map[ErrorCode]Category{
	ErrCodeInvalidEpochPeriod:        CategoryValidation,
	ErrCodeInvalidPriceMultiplier:    CategoryValidation,
	ErrCodeInvalidMinInitPrice:       CategoryValidation,
	ErrCodeInvalidInitPrice:          CategoryValidation,
	ErrCodeInvalidUps:                CategoryValidation,
	ErrCodeInvalidTailUps:            CategoryValidation,
	ErrCodeInvalidHalving:            CategoryValidation,
	ErrCodeInvalidOdds:               CategoryValidation,
	ErrCodeInvalidMultiplier:         CategoryValidation,
	ErrCodeInvalidMultiplierDuration: CategoryValidation,
	ErrCodeInvalidCapacity:           CategoryValidation,
	ErrCodeInvalidEmission:           CategoryValidation,
	ErrCodeInvalidFee:                CategoryValidation,
	ErrCodeZeroAddress:               CategoryValidation,
	ErrCodeEmptyName:                 CategoryValidation,

	ErrCodeEpochMismatch:    CategoryFrontrun,
	ErrCodeDeadlinePassed:   CategoryFrontrun,
	ErrCodeMaxPriceExceeded: CategoryFrontrun,
	ErrCodeZeroMiner:        CategoryFrontrun,
	ErrCodeZeroSpinner:      CategoryFrontrun,

	ErrCodeDayNotEnded:         CategoryState,
	ErrCodeAlreadyClaimed:      CategoryState,
	ErrCodeNoDonation:          CategoryState,
	ErrCodeIndexOutOfBounds:    CategoryState,
	ErrCodeCapacityDecrease:    CategoryState,
	ErrCodeNothingToClaim:      CategoryState,
	ErrCodeInsufficientFee:     CategoryState,
	ErrCodeBelowMinDonation:    CategoryState,
	ErrCodeEmptyAssets:         CategoryState,
	ErrCodeUnknownRequest:      CategoryState,
	ErrCodeUnauthorized:        CategoryState,
	ErrCodeReentrantCall:       CategoryState,
	ErrCodeInsufficientBalance: CategoryState,
	ErrCodeInsufficientAllow:   CategoryState,
	ErrCodeNotApproved:         CategoryState,
	ErrCodeAlreadyRegistered:   CategoryState,
	ErrCodeUnknownToken:        CategoryState,

	ErrCodeOverflow: CategoryArithmetic,
}

// Category returns the category of the code.
func (c ErrorCode) Category() Category {
	return codeCategories[c]
}

// Error implements the error interface.
func (e *RigError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Rig != "" || len(e.Details) > 0 {
		parts := make([]string, 0, len(e.Details)+1)
		if e.Rig != "" {
			parts = append(parts, "rig="+e.Rig)
		}
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, k+"="+e.Details[k])
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString(")")
	}
	return b.String()
}

// NewError creates a RigError with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *RigError {
	return &RigError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithRig returns a copy of e attributed to rig.
func (e *RigError) WithRig(rig string) *RigError {
	c := *e
	c.Rig = rig
	return &c
}

// WithDetail returns a copy of e with an extra detail entry.
func (e *RigError) WithDetail(key, value string) *RigError {
	c := *e
	c.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		c.Details[k] = v
	}
	c.Details[key] = value
	return &c
}

// Attribute tags a RigError with rig unless it already names one. Other
// errors are returned unchanged.
func Attribute(err error, rig string) error {
	if re, ok := err.(*RigError); ok && re.Rig == "" {
		return re.WithRig(rig)
	}
	return err
}

// CodeOf returns the code of the first RigError in err's chain, or "".
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var re *RigError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsFrontrun reports whether err means the caller should resubmit with
// fresh parameters.
func IsFrontrun(err error) bool {
	return CodeOf(err).Category() == CategoryFrontrun
}
