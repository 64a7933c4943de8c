package generic

import "fmt"

// Unwrap returns value, or panics if err is not nil. For results that can only fail through programmer error.
func Unwrap[T any](value T, err error) T {
	Unwrap_(err)
	return value
}

// Unwrap_ panics if err is not nil.
func Unwrap_(err error) {
	if err != nil {
		panic(fmt.Errorf("tried to Unwrap() an Err: %w", err))
	}
}
