package client

import "context"

// Result is the outcome of an operation run with Async.
type Result[T any] struct {
	Value T
	Err   error
}

// Async runs op in its own goroutine and delivers exactly one Result on
// the returned channel. The channel is buffered; receiving is optional.
func Async[T any](ctx context.Context, op func(context.Context) (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		v, err := op(ctx)
		ch <- Result[T]{Value: v, Err: err}
	}()
	return ch
}
