package errclass

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapAndClassOf(t *testing.T) {
	err := Transient(errors.New("boom"))
	require.Equal(t, KindTransient, ClassOf(err))

	err = Permanent(errors.New("rejected"))
	require.Equal(t, KindPermanent, ClassOf(err))

	err = Internal(errors.New("illegal state"))
	require.Equal(t, KindInternal, ClassOf(err))
}

func TestWrapNilReturnsNil(t *testing.T) {
	require.Nil(t, Wrap(KindPermanent, nil))
}

func TestClassOfUnclassifiedLooksRetryable(t *testing.T) {
	require.Equal(t, KindTransient, ClassOf(errors.New("dial tcp: connection refused")))
	require.Equal(t, KindTransient, ClassOf(fmt.Errorf("upstream: status 503 service unavailable")))
	require.Equal(t, KindPermanent, ClassOf(errors.New("invalid argument")))
}

func TestClassOfNilIsTransient(t *testing.T) {
	require.Equal(t, KindTransient, ClassOf(nil))
}

func TestClassOfPreservesWrappedKindThroughFmtErrorf(t *testing.T) {
	inner := Permanent(errors.New("bad request"))
	wrapped := fmt.Errorf("handler: %w", inner)
	require.Equal(t, KindPermanent, ClassOf(wrapped))
}

func TestRetryable(t *testing.T) {
	require.True(t, Retryable(Transient(errors.New("x"))))
	require.True(t, Retryable(Internal(errors.New("x"))))
	require.False(t, Retryable(Permanent(errors.New("x"))))
}

func TestClassOfDeadlineExceededIsTransient(t *testing.T) {
	require.Equal(t, KindTransient, ClassOf(context.DeadlineExceeded))
}
