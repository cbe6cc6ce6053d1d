package oops

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapKeepsSentinel(t *testing.T) {
	err := Wrapf(fs.ErrNotExist, "open %s", "posts/unknown")
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.Equal(t, "open posts/unknown: file does not exist", err.Error())

	var oopsErr *Error
	require.True(t, errors.As(err, &oopsErr))
	require.NotEmpty(t, oopsErr.Stack())
}

func TestWrapNil(t *testing.T) {
	require.NoError(t, Wrap(nil))
	require.NoError(t, Wrapf(nil, "ignored"))
}

func TestWrapIsIdempotent(t *testing.T) {
	err := New("boom")
	require.Same(t, err, Wrap(err))
}
