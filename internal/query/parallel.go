package query

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

const decodeBatchSize = 256

// DecodeRows runs decode for indexes [0, n) on a bounded set of goroutines.
// Each result lands in its own slot, so the output keeps the source order.
func DecodeRows(ctx context.Context, n int, decode func(i int) (*value.Row, error)) ([]*value.Row, error) {
	rows := make([]*value.Row, n)
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.GOMAXPROCS(0))
	for start := 0; start < n; start += decodeBatchSize {
		end := min(start+decodeBatchSize, n)
		group.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				row, err := decode(i)
				if err != nil {
					return err
				}
				rows[i] = row
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}
