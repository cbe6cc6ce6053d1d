// Package oopstest prints oops stack traces when a test hits an unexpected error.
package oopstest

import (
	"errors"
	"fmt"
	"testing"

	"soupbackup/oops"

	"github.com/stretchr/testify/require"
)

func RequireNoError(t *testing.T, err error, msgAndArgs ...any) {
	t.Helper()
	if err == nil {
		return
	}

	var sterr *oops.Error
	if !errors.As(err, &sterr) {
		require.Fail(t, fmt.Sprintf("Received unexpected error:\n%+v", err), msgAndArgs...)
		return
	}
	message := fmt.Sprintf("Received unexpected error:\n%v\n%s", err, sterr.Stack())
	require.Fail(t, message, msgAndArgs...)
}
