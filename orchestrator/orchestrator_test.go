package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/NethermindEth/eternalgov/chain"
	"github.com/NethermindEth/eternalgov/core"
	"github.com/NethermindEth/eternalgov/ingest"
	"github.com/NethermindEth/eternalgov/membase"
	"github.com/NethermindEth/eternalgov/memory"
	"github.com/NethermindEth/eternalgov/metrics"
	"github.com/NethermindEth/eternalgov/reasoning"
	"github.com/NethermindEth/eternalgov/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingChain struct {
	chain.Client
	mu        sync.Mutex
	registers int
	agents    []string
	votes     int
	regErr    error
	lookupErr error
	voteErr   error
}

func (c *countingChain) Register(ctx context.Context, agent core.Agent) (string, error) {
	c.mu.Lock()
	c.registers++
	c.agents = append(c.agents, agent.ID)
	err := c.regErr
	c.mu.Unlock()
	if err != nil {
		return "", err
	}
	return c.Client.Register(ctx, agent)
}

func (c *countingChain) IsRegistered(ctx context.Context, agentID string) (bool, error) {
	c.mu.Lock()
	err := c.lookupErr
	c.mu.Unlock()
	if err != nil {
		return false, err
	}
	return c.Client.IsRegistered(ctx, agentID)
}

func (c *countingChain) fail(register, lookup error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regErr, c.lookupErr = register, lookup
}

func (c *countingChain) CastVote(ctx context.Context, b chain.Ballot) (string, error) {
	c.mu.Lock()
	c.votes++
	err := c.voteErr
	c.mu.Unlock()
	if err != nil {
		return "", err
	}
	return c.Client.CastVote(ctx, b)
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}

type recordingHub struct {
	mu     sync.Mutex
	events []string
	states []State
}

func (h *recordingHub) Broadcast(eventType string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, eventType)
	if change, ok := payload.(StateChange); ok {
		h.states = append(h.states, change.State)
	}
}

func (h *recordingHub) seenStates() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

type fixture struct {
	orch   *Orchestrator
	store  *membase.MemoryStore
	layers *memory.Layers
	ledger *chain.LedgerClient
	chain  *countingChain
	pub    *recordingPublisher
	hub    *recordingHub
}

func newFixture(t *testing.T, voting VotingConfig, receipts ReceiptStore) *fixture {
	t.Helper()
	ledger, err := chain.OpenLedger("file::memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	return newFixtureWithLedger(t, ledger, voting, receipts)
}

func newFixtureWithLedger(t *testing.T, ledger *chain.LedgerClient, voting VotingConfig, receipts ReceiptStore) *fixture {
	t.Helper()
	store := membase.NewMemoryStore()
	layers := memory.New(store, memory.DefaultBlendAlpha)
	f := &fixture{
		store:  store,
		layers: layers,
		ledger: ledger,
		chain:  &countingChain{Client: ledger},
		pub:    &recordingPublisher{},
		hub:    &recordingHub{},
	}
	f.orch = New(store, layers,
		ingest.NewAggregator(time.Second, 4, zap.NewNop()),
		reasoning.NewEngine(reasoning.DefaultConfig(), nil, zap.NewNop()),
		f.chain,
		Options{
			Agent:       core.Agent{ID: "eternalgov-test", Name: "EternalGov"},
			Voting:      voting,
			Publisher:   f.pub,
			Broadcaster: f.hub,
			Receipts:    receipts,
			Metrics:     metrics.New(),
			Logger:      zap.NewNop(),
		})
	return f
}

func sampleSources() []ingest.Source {
	return ingest.SampleSources(ingest.SampleDAOs(), time.Now().UTC())
}

func (f *fixture) ready(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.orch.RegisterIdentity(ctx)
	require.NoError(t, err)
	_, err = f.orch.Ingest(ctx, sampleSources())
	require.NoError(t, err)
	require.Equal(t, StateReady, f.orch.Status().State)
}

func TestRegisterIdentityIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, VotingConfig{}, nil)
	assert.Equal(t, StateUninitialized, f.orch.Status().State)
	assert.Nil(t, f.orch.Status().Identity)

	agent, err := f.orch.RegisterIdentity(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, agent.TxHash)
	assert.NotEmpty(t, agent.PublicKey)
	assert.Len(t, agent.Address, 40)
	assert.Equal(t, core.DefaultCapabilities, agent.Capabilities)

	again, err := f.orch.RegisterIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, agent, again)
	assert.Equal(t, 1, f.chain.registers)

	st := f.orch.Status()
	assert.Equal(t, StateIdentityRegistered, st.State)
	require.NotNil(t, st.Identity)
	assert.Equal(t, agent.ID, st.Identity.ID)

	ok, err := f.ledger.IsRegistered(ctx, agent.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegisterIdentityReturnsAndPublishesIdentity(t *testing.T) {
	f := newFixture(t, VotingConfig{}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.RegisterIdentity(context.Background())
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RegisterIdentity did not return")
	}

	st := f.orch.Status()
	require.NotNil(t, st.Identity)
	assert.Equal(t, "eternalgov-test", st.Identity.ID)
	assert.NotEmpty(t, st.Identity.TxHash)
	assert.Equal(t, []State{StateIdentityRegistered}, f.hub.seenStates())
}

func TestRegistrationFailureDegradesAndRecovers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, VotingConfig{}, nil)
	f.chain.fail(errors.New("rpc unavailable"), nil)

	_, err := f.orch.RegisterIdentity(ctx)
	var ext *core.ExternalServiceError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "chain", ext.Service)

	st := f.orch.Status()
	assert.Equal(t, StateDegraded, st.State)
	assert.Contains(t, st.DegradedReason, "rpc unavailable")
	assert.Nil(t, st.Identity)

	_, err = f.orch.Ingest(ctx, sampleSources())
	assert.ErrorIs(t, err, ErrIdentityRequired)

	f.chain.fail(nil, nil)
	agent, err := f.orch.RegisterIdentity(ctx)
	require.NoError(t, err)
	st = f.orch.Status()
	assert.Equal(t, StateIdentityRegistered, st.State)
	assert.Empty(t, st.DegradedReason)
	assert.Equal(t, agent.ID, st.Identity.ID)
	assert.Equal(t, []State{StateDegraded, StateIdentityRegistered}, f.hub.seenStates())
}

func TestRegistrationRetryKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, VotingConfig{}, nil)
	f.orch.opts.Agent = core.Agent{}
	f.chain.fail(nil, errors.New("indexer lagging"))

	_, err := f.orch.RegisterIdentity(ctx)
	require.Error(t, err)
	assert.Equal(t, StateDegraded, f.orch.Status().State)

	f.chain.fail(nil, nil)
	agent, err := f.orch.RegisterIdentity(ctx)
	require.NoError(t, err)

	require.Len(t, f.chain.agents, 2)
	assert.Equal(t, f.chain.agents[0], f.chain.agents[1])
	assert.Equal(t, agent.ID, f.chain.agents[0])

	stored, err := f.ledger.Delegate(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.PublicKey, stored.PublicKey)
}

func TestIngestRequiresIdentity(t *testing.T) {
	f := newFixture(t, VotingConfig{}, nil)
	_, err := f.orch.Ingest(context.Background(), sampleSources())
	assert.ErrorIs(t, err, ErrIdentityRequired)
	assert.Equal(t, StateUninitialized, f.orch.Status().State)
}

func TestIngestWritesMemoryAndIsRepeatable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, VotingConfig{}, nil)
	_, err := f.orch.RegisterIdentity(ctx)
	require.NoError(t, err)

	rep, err := f.orch.Ingest(ctx, sampleSources())
	require.NoError(t, err)
	assert.Equal(t, 6, rep.Proposals)
	assert.Equal(t, 12, rep.Sentiments)
	assert.Positive(t, rep.Documents)
	assert.Empty(t, rep.FailedSources)

	st := f.orch.Status()
	assert.Equal(t, StateReady, st.State)
	assert.Equal(t, 6, st.Memory.Proposals)
	assert.Equal(t, 12, st.Memory.Sentiment)
	assert.False(t, st.LastIngest.IsZero())

	again, err := f.orch.Ingest(ctx, sampleSources())
	require.NoError(t, err)
	assert.Zero(t, again.Proposals)
	assert.Zero(t, again.Sentiments)
	assert.Zero(t, again.Documents)
	assert.Positive(t, again.Skipped)
	assert.Equal(t, 6, f.orch.Status().Memory.Proposals)

	assert.Contains(t, f.pub.seen(), core.SubjectIngested)
}

func TestIngestClosesProposals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, VotingConfig{}, nil)
	f.ready(t)

	closed := ingest.NewStaticSource("snapshot", ingest.RawRecord{
		Kind: ingest.KindProposal, DAO: "uniswap", ExternalID: "UNI-1",
		Title: "Increase Uniswap V4 Liquidity Incentives", Status: "closed",
		Choices: []string{"For", "Against", "Abstain"}, CollectedAt: time.Now().UTC(),
	})
	rep, err := f.orch.Ingest(ctx, []ingest.Source{closed})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)

	p, err := f.layers.Proposals.Get(ctx, "uniswap", "UNI-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusClosed, p.Status)
}

func TestIngestPartialFailureIsReported(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, VotingConfig{}, nil)
	_, err := f.orch.RegisterIdentity(ctx)
	require.NoError(t, err)

	sources := append(sampleSources(), ingest.NewFailingSource("discourse", errors.New("502 bad gateway")))
	rep, err := f.orch.Ingest(ctx, sources)
	require.NoError(t, err)
	assert.Equal(t, []string{"discourse"}, rep.FailedSources)

	st := f.orch.Status()
	assert.Equal(t, StateReady, st.State)
	assert.Equal(t, []string{"discourse"}, st.FailedSources)
}

func TestAllSourcesFailingDegradesAndRecovers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, VotingConfig{}, nil)
	_, err := f.orch.RegisterIdentity(ctx)
	require.NoError(t, err)

	_, err = f.orch.Ingest(ctx, []ingest.Source{
		ingest.NewFailingSource("snapshot", errors.New("timeout")),
		ingest.NewFailingSource("forum", errors.New("timeout")),
	})
	require.Error(t, err)

	st := f.orch.Status()
	assert.Equal(t, StateDegraded, st.State)
	assert.NotEmpty(t, st.DegradedReason)
	assert.ElementsMatch(t, []string{"snapshot", "forum"}, st.FailedSources)

	_, err = f.orch.Analyze(ctx, "uniswap", "UNI-1")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.orch.Ingest(ctx, sampleSources())
	require.NoError(t, err)
	st = f.orch.Status()
	assert.Equal(t, StateReady, st.State)
	assert.Empty(t, st.DegradedReason)
}

func TestAnalyzeStoresRecommendationAndReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, VotingConfig{}, nil)
	f.ready(t)

	a, err := f.orch.Analyze(ctx, "uniswap", "UNI-1")
	require.NoError(t, err)
	assert.Equal(t, "For", a.Recommendation.RecommendedChoice)
	assert.Equal(t, "For", a.Report.RecommendedChoice)
	assert.NotEmpty(t, a.Report.ReasoningHash)
	assert.Equal(t, 2, a.Consensus.Samples)
	assert.Equal(t, StateReady, f.orch.Status().State)

	n, err := f.store.Count(ctx, CollectionRecommendations)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.orch.Recommendation(ctx, "Uniswap", "UNI-1")
	require.NoError(t, err)
	assert.Equal(t, a.Report.ReasoningHash, got.Report.ReasoningHash)

	assert.Contains(t, f.pub.seen(), core.SubjectRecommendation)
}

func TestRecommendationFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, VotingConfig{}, nil)
	f.ready(t)

	a, err := f.orch.Analyze(ctx, "aave", "AAVE-2")
	require.NoError(t, err)

	f.orch.recMu.Lock()
	f.orch.recommendations = make(map[string]Analysis)
	f.orch.recMu.Unlock()

	got, err := f.orch.Recommendation(ctx, "aave", "AAVE-2")
	require.NoError(t, err)
	assert.Equal(t, a.Recommendation.RecommendedChoice, got.Recommendation.RecommendedChoice)
	assert.Equal(t, a.Report.ReasoningHash, got.Report.ReasoningHash)
}

func TestAnalyzeUnknownProposal(t *testing.T) {
	f := newFixture(t, VotingConfig{}, nil)
	f.ready(t)

	_, err := f.orch.Analyze(context.Background(), "uniswap", "UNI-404")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, StateReady, f.orch.Status().State)
}

func TestAnalyzeBeforeIngestIsRejected(t *testing.T) {
	f := newFixture(t, VotingConfig{}, nil)
	_, err := f.orch.Analyze(context.Background(), "uniswap", "UNI-1")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestConcurrentAnalyses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, VotingConfig{}, nil)
	f.ready(t)

	keys := [][2]string{{"uniswap", "UNI-1"}, {"uniswap", "UNI-2"}, {"aave", "AAVE-1"}, {"aave", "AAVE-2"}}
	var wg sync.WaitGroup
	errs := make([]error, len(keys))
	for i, k := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.orch.Analyze(ctx, k[0], k[1])
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrInvalidState)
		}
	}
	assert.Equal(t, StateReady, f.orch.Status().State)
}

func TestVotingFailsClosed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, VotingConfig{Autonomous: false}, nil)
	f.ready(t)

	_, err := f.orch.Analyze(ctx, "uniswap", "UNI-1")
	require.NoError(t, err)

	_, err = f.orch.CastVote(ctx, "uniswap", "UNI-1")
	assert.ErrorIs(t, err, core.ErrVotingDisabled)
	assert.Zero(t, f.chain.votes)
	assert.Zero(t, f.orch.Status().VotesCast)

	votes, err := f.ledger.Votes(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, votes)
}

func TestCastVoteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, VotingConfig{Autonomous: true}, nil)
	f.ready(t)

	_, err := f.orch.Analyze(ctx, "uniswap", "UNI-1")
	require.NoError(t, err)

	first, err := f.orch.CastVote(ctx, "uniswap", "UNI-1")
	require.NoError(t, err)
	assert.Equal(t, "For", first.Choice)
	assert.NotEmpty(t, first.TxHash)
	assert.NotEmpty(t, first.Proof)

	second, err := f.orch.CastVote(ctx, "uniswap", "UNI-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.chain.votes)
	assert.Equal(t, 1, f.orch.Status().VotesCast)

	votes, err := f.ledger.Votes(ctx, "uniswap")
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, first.TxHash, votes[0].TxHash)

	receipts, err := f.orch.Receipts("Uniswap")
	require.NoError(t, err)
	assert.Equal(t, []core.VoteReceipt{first}, receipts)
	receipts, err = f.orch.Receipts("aave")
	require.NoError(t, err)
	assert.Empty(t, receipts)

	assert.Contains(t, f.pub.seen(), core.SubjectVote)
}

func TestCastVoteRequiresRecommendation(t *testing.T) {
	f := newFixture(t, VotingConfig{Autonomous: true}, nil)
	f.ready(t)

	_, err := f.orch.CastVote(context.Background(), "uniswap", "UNI-2")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Zero(t, f.chain.votes)
}

func TestCastVoteBelowThreshold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, VotingConfig{Autonomous: true, ConfidenceThreshold: 0.99}, nil)
	f.ready(t)

	_, err := f.orch.Analyze(ctx, "uniswap", "UNI-1")
	require.NoError(t, err)

	_, err = f.orch.CastVote(ctx, "uniswap", "UNI-1")
	assert.ErrorIs(t, err, ErrBelowThreshold)
	assert.Zero(t, f.chain.votes)
	assert.Equal(t, StateReady, f.orch.Status().State)
}

func TestChainOutageDegrades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, VotingConfig{Autonomous: true}, nil)
	f.ready(t)
	f.chain.voteErr = errors.New("rpc unavailable")

	_, err := f.orch.Analyze(ctx, "uniswap", "UNI-1")
	require.NoError(t, err)

	_, err = f.orch.CastVote(ctx, "uniswap", "UNI-1")
	var ext *core.ExternalServiceError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "chain", ext.Service)
	assert.Equal(t, StateDegraded, f.orch.Status().State)
	assert.Contains(t, f.hub.seenStates(), StateDegraded)
}

func TestReceiptsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(storage.InMemoryConfig(), "receipts", zap.NewNop())
	require.NoError(t, err)
	defer db.Close()
	receipts := storage.NewVoteRepository(db)

	f := newFixture(t, VotingConfig{Autonomous: true}, receipts)
	f.ready(t)
	_, err = f.orch.Analyze(ctx, "uniswap", "UNI-1")
	require.NoError(t, err)
	first, err := f.orch.CastVote(ctx, "uniswap", "UNI-1")
	require.NoError(t, err)

	restarted := newFixtureWithLedger(t, f.ledger, VotingConfig{Autonomous: true}, receipts)
	got, err := restarted.orch.CastVote(ctx, "uniswap", "UNI-1")
	require.NoError(t, err)
	assert.Equal(t, first.TxHash, got.TxHash)
	assert.Zero(t, restarted.chain.votes)

	listed, err := restarted.orch.Receipts("")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, first.TxHash, listed[0].TxHash)
}

func TestRecordOutcomeLearns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, VotingConfig{}, nil)
	f.ready(t)

	_, err := f.orch.RecordOutcome(ctx, "uniswap", "UNI-1", Outcome{ActualChoice: "For", Passed: true})
	assert.ErrorIs(t, err, core.ErrNotFound)

	a, err := f.orch.Analyze(ctx, "uniswap", "UNI-1")
	require.NoError(t, err)

	out, err := f.orch.RecordOutcome(ctx, "uniswap", "UNI-1", Outcome{ActualChoice: "for", Passed: true, ParticipationRate: 0.4})
	require.NoError(t, err)
	assert.True(t, out.Correct)
	assert.Equal(t, "For", out.ActualChoice)
	assert.Equal(t, a.Recommendation.Confidence, out.PredictedConfidence)
	assert.NotEmpty(t, out.ID)

	p, err := f.layers.Proposals.Get(ctx, "uniswap", "UNI-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusClosed, p.Status)

	rate, err := f.layers.Preferences.CategorySuccessRate(ctx, "uniswap", "tokenomics")
	require.NoError(t, err)
	assert.Greater(t, rate, 0.5)

	acc, err := f.layers.Outcomes.Accuracy(ctx, "uniswap", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, acc.Samples)
	assert.Equal(t, 1, f.orch.Status().Memory.Outcomes)

	_, err = f.orch.RecordOutcome(ctx, "uniswap", "UNI-1", Outcome{ActualChoice: "For", Passed: true})
	assert.True(t, core.IsValidation(err))

	participation, err := f.layers.Outcomes.ParticipationAverage(ctx, "uniswap")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, participation, 1e-9)

	assert.Contains(t, f.pub.seen(), core.SubjectOutcome)
}

func TestInvalidOutcomeLeavesProposalOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, VotingConfig{}, nil)
	f.ready(t)

	_, err := f.orch.Analyze(ctx, "uniswap", "UNI-2")
	require.NoError(t, err)

	for _, result := range []Outcome{
		{ActualChoice: "", Passed: true},
		{ActualChoice: "Maybe", Passed: true},
		{ActualChoice: "For", Passed: true, ParticipationRate: 1.5},
	} {
		_, err := f.orch.RecordOutcome(ctx, "uniswap", "UNI-2", result)
		assert.True(t, core.IsValidation(err), "%+v: %v", result, err)
	}

	p, err := f.layers.Proposals.Get(ctx, "uniswap", "UNI-2")
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, p.Status)

	n, err := f.layers.Outcomes.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, StateReady, f.orch.Status().State)
}

func TestStatusIsASnapshot(t *testing.T) {
	f := newFixture(t, VotingConfig{Autonomous: true, ConfidenceThreshold: 0.6}, nil)
	f.ready(t)

	st := f.orch.Status()
	st.FailedSources = append(st.FailedSources, "mutated")
	st.Identity.ID = "mutated"

	again := f.orch.Status()
	assert.NotContains(t, again.FailedSources, "mutated")
	assert.NotEqual(t, "mutated", again.Identity.ID)
	assert.True(t, again.AutonomousVoting)
	assert.Equal(t, 0.6, again.ConfidenceThreshold)
}
