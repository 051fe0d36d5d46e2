package llm

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one Generate call inside a batch.
type Result struct {
	Reply string
	Err   error
}

// GenerateAll calls gen once per input with at most limit calls in flight.
// Results keep input order. Per-input failures are reported in Result.Err
// and never cancel the other calls.
func GenerateAll(ctx context.Context, gen TextGenerator, prompt string, inputs []string, limit int) []Result {
	results := make([]Result, len(inputs))
	if len(inputs) == 0 {
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrencyLimit(len(inputs), limit))
	for i, input := range inputs {
		g.Go(func() error {
			reply, err := gen.Generate(gctx, prompt, input)
			results[i] = Result{Reply: reply, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func batchConcurrencyLimit(total, configured int) int {
	if configured < 1 {
		configured = 1
	}
	if total > 0 && configured > total {
		return total
	}
	return configured
}
