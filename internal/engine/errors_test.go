package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRigError_Error(t *testing.T) {
	err := NewError(ErrCodeEpochMismatch, "expected epoch %d, got %d", 4, 3).
		WithRig("0xabc").
		WithDetail("index", "2")

	msg := err.Error()
	assert.Contains(t, msg, "EPOCH_MISMATCH")
	assert.Contains(t, msg, "expected epoch 4, got 3")
	assert.Contains(t, msg, "rig=0xabc")
	assert.Contains(t, msg, "index=2")
}

func TestRigError_WithDetailDoesNotMutate(t *testing.T) {
	base := NewError(ErrCodeOverflow, "overflow")
	withDetail := base.WithDetail("op", "mul")

	assert.Nil(t, base.Details)
	assert.Equal(t, "mul", withDetail.Details["op"])
}

func TestCodeOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("mine: %w", NewError(ErrCodeDeadlinePassed, "deadline passed"))

	assert.Equal(t, ErrCodeDeadlinePassed, CodeOf(err))
	assert.True(t, IsCode(err, ErrCodeDeadlinePassed))
	assert.False(t, IsCode(err, ErrCodeEpochMismatch))
	assert.False(t, IsCode(nil, ErrCodeDeadlinePassed))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}

func TestErrorCode_Category(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want Category
	}{
		{ErrCodeInvalidEpochPeriod, CategoryValidation},
		{ErrCodeZeroAddress, CategoryValidation},
		{ErrCodeInvalidFee, CategoryValidation},
		{ErrCodeEpochMismatch, CategoryFrontrun},
		{ErrCodeMaxPriceExceeded, CategoryFrontrun},
		{ErrCodeAlreadyClaimed, CategoryState},
		{ErrCodeInsufficientFee, CategoryState},
		{ErrCodeOverflow, CategoryArithmetic},
		{ErrorCode("NOPE"), CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.Category())
		})
	}
}

func TestIsFrontrun(t *testing.T) {
	assert.True(t, IsFrontrun(NewError(ErrCodeEpochMismatch, "x")))
	assert.False(t, IsFrontrun(NewError(ErrCodeAlreadyClaimed, "x")))
	assert.False(t, IsFrontrun(nil))
}

func TestCategory_String(t *testing.T) {
	assert.Equal(t, "validation", CategoryValidation.String())
	assert.Equal(t, "frontrun", CategoryFrontrun.String())
	assert.Equal(t, "state", CategoryState.String())
	assert.Equal(t, "arithmetic", CategoryArithmetic.String())
	assert.Equal(t, "unknown", CategoryUnknown.String())
}

func TestAttribute(t *testing.T) {
	err := Attribute(NewError(ErrCodeNothingToClaim, "empty"), "0xabc")
	var re *RigError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "0xabc", re.Rig)

	again := Attribute(err, "0xdef")
	require.True(t, errors.As(again, &re))
	assert.Equal(t, "0xabc", re.Rig, "first attribution wins")

	plain := errors.New("io")
	assert.Same(t, plain, Attribute(plain, "0xabc"))
}
