package helper

import (
	"errors"
	"fmt"
)

var ErrUnexpectedType = errors.New("unexpected type")

// GetTypedValueOf asserts the result of a getter function to the expected
// type T. Errors from getFn are returned as they are, so callers can match
// them with errors.Is. A nil result is T's zero value.
func GetTypedValueOf[T any](getFn func() (any, error)) (T, error) {
	var zero T

	res, err := getFn()
	if err != nil {
		return zero, err
	}
	return TypedValue[T](res)
}

// TypedValue asserts raw to T; nil becomes T's zero value.
func TypedValue[T any](raw any) (T, error) {
	var zero T
	if raw == nil {
		return zero, nil
	}
	val, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%w: want %T, got %T", ErrUnexpectedType, zero, raw)
	}
	return val, nil
}
