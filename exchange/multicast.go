package exchange

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BodyCopier is implemented by bodies that cannot be shared between exchanges
// as-is. CopyForExchange registers the copy with ex and returns the new body.
type BodyCopier interface {
	CopyForExchange(ex *Exchange) (any, error)
}

// Multicast sends n copies of ex to p concurrently. Every copy is completed with
// Done once p returns. The first processing error is returned after all copies
// finished; the original exchange is left untouched.
func Multicast(ctx context.Context, ex *Exchange, n int, p Processor) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			c := ex.Copy()
			defer c.Done()

			if bc, ok := ex.Body().(BodyCopier); ok {
				body, err := bc.CopyForExchange(c)
				if err != nil {
					c.SetException(err)
					return err
				}
				c.SetBody(body)
			}

			if err := p.Process(gctx, c); err != nil {
				c.SetException(err)
				return err
			}
			return nil
		})
	}

	return g.Wait()
}
