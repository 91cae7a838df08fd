package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNotifier_NoTokenIsNoOp(t *testing.T) {
	n, err := New("", 0, nil)
	require.NoError(t, err)
	require.NotPanics(t, func() {
		n.AuthFailure(errors.New("boom"))
		n.SinkFailure("perfect_order", errors.New("boom"))
	})
}
