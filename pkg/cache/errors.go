package cache

import (
	"errors"
	"fmt"
)

// ErrLayer is the sentinel matched by every *Error.
var ErrLayer = errors.New("cache layer failure")

// Error is a failure of a single cache layer. The engine logs and absorbs
// these; they never reach the caller of Lookup or Store.
type Error struct {
	Layer string
	Op    string
	Key   string
	Err   error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("cache %s %s %s: %v", e.Layer, e.Op, shortKey(e.Key), e.Err)
	}
	return fmt.Sprintf("cache %s %s: %v", e.Layer, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrLayer
}

func layerError(layer, op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Layer: layer, Op: op, Key: key, Err: err}
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
