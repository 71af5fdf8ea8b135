package core

import (
	"errors"
	"fmt"
)

// PartialError aggregates per-element failures from a best-effort sequential
// loop (guest cart replay, desync removals, restore re-adds). The loops keep
// going past individual failures, but the failures stay observable to callers
// and tests instead of being swallowed.
type PartialError struct {
	Op     string
	Total  int
	Failed []error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%s: %d of %d operations failed: %v", e.Op, len(e.Failed), e.Total, errors.Join(e.Failed...))
}

// Unwrap exposes the individual failures to errors.Is/As.
func (e *PartialError) Unwrap() []error {
	return e.Failed
}

// CollectErrors runs fn over items sequentially, never stopping on failure.
// It returns nil when every call succeeded, else a PartialError carrying each
// failure in order. The remote API has no bulk endpoints, so every multi-line
// operation is one call per line; partial success is preferable to blocking
// the whole operation on one bad line.
func CollectErrors[T any](op string, items []T, fn func(T) error) *PartialError {
	var failed []error
	for _, item := range items {
		if err := fn(item); err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &PartialError{Op: op, Total: len(items), Failed: failed}
}
