package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/NethermindEth/eternalgov/communication"
	"github.com/NethermindEth/eternalgov/core"
	"github.com/NethermindEth/eternalgov/ingest"
	"github.com/NethermindEth/eternalgov/membase"
	"github.com/NethermindEth/eternalgov/memory"
	"go.uber.org/zap"
)

// CollectionDocuments holds forum posts, tweets and articles linked to proposals
const CollectionDocuments = "documents"

var errAllSourcesFailed = errors.New("no source could be fetched")

// IngestReport summarises one ingestion run
type IngestReport struct {
	Proposals     int      `json:"proposals"`
	Updated       int      `json:"updated"`
	Sentiments    int      `json:"sentiments"`
	Documents     int      `json:"documents"`
	Skipped       int      `json:"skipped"`
	Rejected      int      `json:"rejected"`
	Succeeded     []string `json:"succeeded"`
	FailedSources []string `json:"failed_sources"`
}

// Ingest fetches every source and writes the merged records into memory.
// Records already in memory are skipped, so re-running ingestion is safe.
func (o *Orchestrator) Ingest(ctx context.Context, sources []ingest.Source) (IngestReport, error) {
	if _, ok := o.Identity(); !ok {
		return IngestReport{}, ErrIdentityRequired
	}
	if err := o.begin(StateIngesting, StateIdentityRegistered, StateReady, StateDegraded); err != nil {
		return IngestReport{}, err
	}

	rep, err := o.ingest(ctx, sources)
	next := StateReady
	if err != nil {
		next = ""
	}
	o.end(ctx, next, err)

	result := "ok"
	switch {
	case err != nil:
		result = "failed"
	case len(rep.FailedSources) > 0:
		result = "partial"
	}
	o.opts.Metrics.ObserveIngest(result, rep.FailedSources, map[string]int{
		memory.CollectionProposals: rep.Proposals,
		memory.CollectionSentiment: rep.Sentiments,
		CollectionDocuments:        rep.Documents,
	})
	if err != nil {
		return rep, err
	}

	o.logger.Info("ingestion finished",
		zap.Int("proposals", rep.Proposals),
		zap.Int("updated", rep.Updated),
		zap.Int("sentiments", rep.Sentiments),
		zap.Int("documents", rep.Documents),
		zap.Int("skipped", rep.Skipped),
		zap.Int("rejected", rep.Rejected),
		zap.Strings("failed_sources", rep.FailedSources))
	o.emit(core.SubjectIngested, communication.EventIngested, rep)
	return rep, nil
}

func (o *Orchestrator) ingest(ctx context.Context, sources []ingest.Source) (IngestReport, error) {
	var rep IngestReport

	res, aggErr := o.aggregator.Aggregate(ctx, sources)
	if res != nil {
		rep.Succeeded = res.Succeeded
		rep.FailedSources = res.FailedSources()
		rep.Rejected = res.Rejected
	}
	o.mu.Lock()
	o.failedSources = rep.FailedSources
	o.mu.Unlock()
	if aggErr != nil {
		return rep, fmt.Errorf("%w: %w", errAllSourcesFailed, aggErr)
	}

	for _, p := range res.Proposals {
		existing, err := o.layers.Proposals.Get(ctx, p.DAO, p.ID)
		if err == nil {
			if existing.Status == core.StatusActive && p.Status == core.StatusClosed {
				if _, err := o.layers.Proposals.UpdateStatus(ctx, p.DAO, p.ID, core.StatusClosed); err != nil {
					return rep, storeError("update_proposal", err)
				}
				rep.Updated++
			} else {
				rep.Skipped++
			}
			continue
		}
		if !errors.Is(err, core.ErrNotFound) {
			return rep, storeError("get_proposal", err)
		}
		if _, err := o.layers.Proposals.Store(ctx, p); err != nil {
			if core.IsValidation(err) {
				o.logger.Warn("proposal rejected", zap.String("key", p.Key()), zap.Error(err))
				rep.Rejected++
				continue
			}
			return rep, storeError("store_proposal", err)
		}
		rep.Proposals++
	}

	seen, err := o.sentimentIDs(ctx)
	if err != nil {
		return rep, err
	}
	for _, s := range res.Sentiments {
		if seen[s.ID] {
			rep.Skipped++
			continue
		}
		if _, err := o.layers.Sentiment.Store(ctx, s); err != nil {
			if core.IsValidation(err) {
				o.logger.Debug("sentiment rejected", zap.String("id", s.ID), zap.Error(err))
				rep.Rejected++
				continue
			}
			return rep, storeError("store_sentiment", err)
		}
		seen[s.ID] = true
		rep.Sentiments++
	}

	docs, err := o.store.List(ctx, CollectionDocuments)
	if err != nil {
		return rep, storeError("list_documents", err)
	}
	known := make(map[string]bool, len(docs))
	for _, d := range docs {
		known[d.ID] = true
	}
	for _, d := range res.Documents {
		if known[d.ID] {
			rep.Skipped++
			continue
		}
		if err := o.storeDocument(ctx, d); err != nil {
			return rep, storeError("store_document", err)
		}
		known[d.ID] = true
		rep.Documents++
	}

	o.mu.Lock()
	o.lastIngest = o.now()
	o.mu.Unlock()
	return rep, nil
}

func (o *Orchestrator) sentimentIDs(ctx context.Context) (map[string]bool, error) {
	all, err := o.layers.Sentiment.Query(ctx, memory.SentimentFilter{})
	if err != nil {
		return nil, storeError("list_sentiment", err)
	}
	seen := make(map[string]bool)
	for s := range all {
		seen[s.ID] = true
	}
	return seen, nil
}

func (o *Orchestrator) storeDocument(ctx context.Context, d ingest.Document) error {
	rec, err := membase.NewRecord(strings.TrimSpace(d.Title+" "+d.Body), d, map[string]string{
		"dao":      strings.ToLower(d.DAO),
		"proposal": d.ProposalID,
		"kind":     d.Kind,
	})
	if err != nil {
		return err
	}
	rec.ID = d.ID
	_, err = o.store.Write(ctx, CollectionDocuments, rec)
	return err
}

// storeError classifies knowledge-store failures as external service errors
func storeError(op string, err error) error {
	var ext *core.ExternalServiceError
	switch {
	case errors.As(err, &ext),
		core.IsValidation(err),
		errors.Is(err, core.ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return &core.ExternalServiceError{Service: "membase", Op: op, Attempts: 1, Err: err}
}
