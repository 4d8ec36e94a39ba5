package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/synsetran/internal/synset"
)

// Translate runs the synsets one after another. It stops early when ctx is
// cancelled and returns the results produced so far.
func (o *Orchestrator) Translate(ctx context.Context, synsets []synset.Synset) []*Result {
	results := make([]*Result, 0, len(synsets))
	for _, s := range synsets {
		if ctx.Err() != nil {
			break
		}
		results = append(results, o.TranslateSynset(ctx, s))
	}
	return results
}

// Stream translates synsets received on in and sends each result as soon as
// it is ready. The returned channel is closed when in is closed or ctx is
// cancelled.
func (o *Orchestrator) Stream(ctx context.Context, in <-chan synset.Synset) <-chan *Result {
	out := make(chan *Result)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-in:
				if !ok {
					return
				}
				r := o.TranslateSynset(ctx, s)
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// TranslateParallel runs up to workers synsets at a time. Each synset is
// still translated sequentially. Results are in input order; entries for
// synsets not started before ctx was cancelled are nil.
func (o *Orchestrator) TranslateParallel(ctx context.Context, synsets []synset.Synset, workers int) ([]*Result, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]*Result, len(synsets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, s := range synsets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = o.TranslateSynset(gctx, s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		o.logger.Warn("parallel translation interrupted", zap.Error(err))
		return results, err
	}
	return results, ctx.Err()
}
