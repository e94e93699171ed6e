package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesKindSentinel(t *testing.T) {
	err := New(KindInsufficientBalance, "").WithDetails(map[string]interface{}{
		"token":     "token_b",
		"shortfall": uint64(50),
	})
	wrapped := fmt.Errorf("validate: %w", err)

	assert.True(t, errors.Is(wrapped, ErrInsufficientBalance))
	assert.False(t, errors.Is(wrapped, ErrPoolInactive))
	assert.Equal(t, KindInsufficientBalance, KindOf(wrapped))
	assert.Equal(t, "insufficient balance", err.Error())

	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "token_b", got.Details["token"])
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindRPC, cause, "read vault balance")

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrRPC))
	assert.Equal(t, "read vault balance: connection refused", err.Error())
}

func TestRetryClasses(t *testing.T) {
	assert.True(t, IsRetryable(New(KindRPC, "")))
	assert.True(t, IsRetryable(New(KindSessionCreation, "")))

	for _, k := range []Kind{KindPoolInactive, KindInsufficientBalance, KindSlippageOutOfRange, KindAlreadyInProgress, KindConfirmationUnknown} {
		assert.False(t, IsRetryable(New(k, "")), string(k))
	}
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestUserMessage_EveryKindHasOne(t *testing.T) {
	seen := map[string]Kind{}
	for k := range sentinels {
		msg := UserMessage(k)
		require.NotEmpty(t, msg, string(k))
		if prev, dup := seen[msg]; dup {
			t.Fatalf("kinds %s and %s share a message", prev, k)
		}
		seen[msg] = k
	}
	assert.Contains(t, UserMessage(KindConfirmationUnknown), "Check the explorer")
}
