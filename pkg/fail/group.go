package fail

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Group runs a set of goroutines, cancelling the shared context as soon as one
// of them returns an error, and collects the first error for Wait().
type Group struct {
	inner *errgroup.Group
}

// NewGroup returns a Group and a context derived from ctx that is cancelled the
// moment any goroutine spawned via Go returns a non-nil error.
func NewGroup(ctx context.Context) (*Group, context.Context) {
	inner, groupCtx := errgroup.WithContext(ctx)
	return &Group{inner: inner}, groupCtx
}

// Go runs fn in its own goroutine as part of the group.
func (g *Group) Go(fn func() error) {
	g.inner.Go(fn)
}

// Wait blocks until every goroutine in the group has returned, then returns the
// first non-nil error (if any).
func (g *Group) Wait() error {
	return g.inner.Wait()
}
