package stage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(Fetch, cause)

	require.True(t, Is(err, Fetch))
	require.False(t, Is(err, Persist))
	require.ErrorIs(t, err, cause)
	require.Equal(t, "fetch: connection reset", err.Error())

	// an error that already has a stage keeps it
	rewrapped := Wrap(Persist, fmt.Errorf("run: %w", err))
	require.True(t, Is(rewrapped, Fetch))

	require.Nil(t, Wrap(Fetch, nil))
}

func TestFatal(t *testing.T) {
	require.False(t, Fatal(nil))
	require.True(t, Fatal(errors.New("no stage")))
	require.True(t, Fatal(Errorf(Select, "only %d tables", 1)))
	require.True(t, Fatal(Errorf(Normalize, "bad time")))
	require.True(t, Fatal(Errorf(Persist, "disk full")))
	require.False(t, Fatal(Errorf(Emit, "permission denied")))
}
