// Package task runs named, cooperatively-cancelled goroutines as a Group.
package task

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Group is a set of concurrent tasks which are collectively blocked on
// until all complete. The first task to return a non-nil error cancels
// the Group's Context, and tasks are expected to monitor it and return
// promptly upon its cancellation.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group
}

// NewGroup returns an empty Group descending from |ctx|. Its Context is
// cancelled by the first task error, an explicit Cancel, or a
// cancellation of |ctx|.
func NewGroup(ctx context.Context) *Group {
	ctx, cancel := context.WithCancel(ctx)
	eg, ctx := errgroup.WithContext(ctx)
	return &Group{ctx: ctx, cancel: cancel, eg: eg}
}

// Context of the Group.
func (g *Group) Context() context.Context { return g.ctx }

// Cancel the Group Context.
func (g *Group) Cancel() { g.cancel() }

// Go starts |fn| in its own goroutine. A non-nil return is decorated
// with |desc| and cancels the Group.
func (g *Group) Go(desc string, fn func(context.Context) error) {
	g.eg.Go(func() error {
		return errors.WithMessage(fn(g.ctx), desc)
	})
}

// Wait blocks until all started tasks complete, returning the first
// encountered non-nil error.
func (g *Group) Wait() error { return g.eg.Wait() }
