package helper_test

import (
	"errors"
	"testing"

	"github.com/on-the-ground/memo_ive_go/shared/helper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTypedValueOf(t *testing.T) {
	got, err := helper.GetTypedValueOf[string](func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	boom := errors.New("boom")
	_, err = helper.GetTypedValueOf[string](func() (any, error) { return nil, boom })
	assert.Same(t, boom, err)

	_, err = helper.GetTypedValueOf[string](func() (any, error) { return 1, nil })
	assert.ErrorIs(t, err, helper.ErrUnexpectedType)
}

func TestTypedValue_NilIsZero(t *testing.T) {
	p, err := helper.TypedValue[*int](nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	n, err := helper.TypedValue[int](nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
