package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NethermindEth/eternalgov/core"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Aggregator fetches sources concurrently and merges their records
type Aggregator struct {
	timeout     time.Duration
	concurrency int
	logger      *zap.Logger
}

func NewAggregator(timeout time.Duration, concurrency int, logger *zap.Logger) *Aggregator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{timeout: timeout, concurrency: concurrency, logger: logger}
}

// Aggregate returns partial results when some sources fail. The error is
// non-nil only when every source failed.
func (a *Aggregator) Aggregate(ctx context.Context, sources []Source) (*Result, error) {
	var (
		mu     sync.Mutex
		raw    = make(map[string][]RawRecord)
		failed []*core.SourceError
		ok     []string
	)

	g := new(errgroup.Group)
	g.SetLimit(a.concurrency)
	for _, src := range sources {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			start := time.Now()
			records, err := src.Fetch(fetchCtx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.logger.Warn("source fetch failed", zap.String("source", src.Name()), zap.Error(err))
				failed = append(failed, &core.SourceError{Source: src.Name(), Err: err})
				return nil
			}
			a.logger.Debug("source fetched",
				zap.String("source", src.Name()),
				zap.Int("records", len(records)),
				zap.Duration("took", time.Since(start)))
			raw[src.Name()] = append(raw[src.Name()], records...)
			ok = append(ok, src.Name())
			return nil
		})
	}
	_ = g.Wait()

	res := Merge(raw)
	sort.Strings(ok)
	sort.Slice(failed, func(i, j int) bool { return failed[i].Source < failed[j].Source })
	res.Succeeded = ok
	res.Failed = failed

	a.logger.Info("aggregation finished",
		zap.Int("proposals", len(res.Proposals)),
		zap.Int("documents", len(res.Documents)),
		zap.Int("sentiments", len(res.Sentiments)),
		zap.Int("rejected", res.Rejected),
		zap.Int("failed_sources", len(failed)))

	if len(sources) > 0 && len(failed) == len(sources) {
		var merr *multierror.Error
		for _, f := range failed {
			merr = multierror.Append(merr, f)
		}
		return res, fmt.Errorf("all %d sources failed: %w", len(sources), merr.ErrorOrNil())
	}
	return res, nil
}
