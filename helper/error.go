package helper

import "fmt"

// NewError wraps an error with the operation that failed.
// The wrapped error stays reachable through errors.Is/As.
func NewError(operation string, err error) error {
	return fmt.Errorf("error %v: %w", operation, err)
}
