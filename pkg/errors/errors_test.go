package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsMatchesByCode(t *testing.T) {
	err := Clone(ErrConcurrencyConflict, "stale version")
	wrapped := fmt.Errorf("transition: %w", err)

	require.True(t, Is(wrapped, ErrConcurrencyConflict))
	require.False(t, Is(wrapped, ErrIllegalTransition))
	require.False(t, Is(nil, ErrConcurrencyConflict))
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	require.Equal(t, ErrInternal.Code, appErr.Code)
	require.Equal(t, http.StatusInternalServerError, appErr.Status)

	upstream := Wrap(fmt.Errorf("dial tcp"), ErrUpstreamUnavailable.Code, ErrUpstreamUnavailable.Status, "database unavailable")
	require.Same(t, upstream, FromError(upstream))
	require.Contains(t, upstream.Error(), "dial tcp")
}
