package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	cause := stderrors.New("boom")

	assert.Equal(t, "[TENANT_NOT_FOUND] no such tenant",
		New(KindTenantNotFound, "no such tenant").Error())
	assert.Equal(t, "[TENANT_NOT_FOUND] no such tenant (acme)",
		New(KindTenantNotFound, "no such tenant").WithResource("acme").Error())
	assert.Equal(t, "[INTERNAL] store call failed: boom",
		New(KindInternal, "store call failed").WithCause(cause).Error())
	assert.Equal(t, "[INTERNAL] store call failed (acme): boom",
		New(KindInternal, "store call failed").WithResource("acme").WithCause(cause).Error())
}

func TestWrapNilIsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, KindInternal, "ignored"))
}

func TestWrapPreservesChain(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(cause, KindConstructorFailed, "utility %q failed", "logger")

	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, KindConstructorFailed, KindOf(err))

	var e *Error
	assert.True(t, As(err, &e))
	assert.Equal(t, `utility "logger" failed`, e.Message)
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(stderrors.New("plain")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestIsWalksChain(t *testing.T) {
	inner := New(KindMissingRequired, "key absent").WithResource("security.signing_key")
	outer := Wrap(inner, KindConstructorFailed, "security utility failed")
	wrapped := fmt.Errorf("bootstrap: %w", outer)

	assert.True(t, Is(wrapped, KindConstructorFailed))
	assert.True(t, IsMissingRequired(wrapped))
	assert.False(t, Is(wrapped, KindCyclicDependency))
}

func TestClassificationHelpers(t *testing.T) {
	cases := []struct {
		kind  Kind
		check func(error) bool
	}{
		{KindMissingRequired, IsMissingRequired},
		{KindTypeMismatch, IsTypeMismatch},
		{KindCyclicDependency, IsCyclicDependency},
		{KindUtilityUnavailable, IsUtilityUnavailable},
		{KindTenantNotFound, IsTenantNotFound},
		{KindDuplicateTenant, IsDuplicateTenant},
		{KindAccessDenied, IsAccessDenied},
		{KindInvalidInput, IsInvalidInput},
	}
	for _, tc := range cases {
		assert.True(t, tc.check(New(tc.kind, "x")), string(tc.kind))
		assert.False(t, tc.check(New(KindInternal, "x")), string(tc.kind))
	}
}
