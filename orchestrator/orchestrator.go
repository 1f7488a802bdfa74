package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NethermindEth/eternalgov/chain"
	"github.com/NethermindEth/eternalgov/communication"
	"github.com/NethermindEth/eternalgov/core"
	"github.com/NethermindEth/eternalgov/crypto"
	"github.com/NethermindEth/eternalgov/ingest"
	"github.com/NethermindEth/eternalgov/membase"
	"github.com/NethermindEth/eternalgov/memory"
	"github.com/NethermindEth/eternalgov/metrics"
	"github.com/NethermindEth/eternalgov/reasoning"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VotingConfig gates autonomous vote casting
type VotingConfig struct {
	Autonomous          bool    `mapstructure:"autonomous" json:"autonomous"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" json:"confidence_threshold"`
}

// ReceiptStore persists vote receipts across restarts
type ReceiptStore interface {
	SaveReceipt(receipt core.VoteReceipt) error
	GetReceipt(dao, proposalID string) (core.VoteReceipt, bool, error)
	GetReceipts(dao string) ([]core.VoteReceipt, error)
}

// Broadcaster pushes events to live subscribers
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

// Options are the optional collaborators of the orchestrator
type Options struct {
	Agent          core.Agent
	PrivateKey     string
	Voting         VotingConfig
	AccuracyWindow int
	Publisher      core.Publisher
	Broadcaster    Broadcaster
	Receipts       ReceiptStore
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
}

// Orchestrator sequences registration, ingestion, analysis, voting and outcome learning
type Orchestrator struct {
	store      membase.Store
	layers     *memory.Layers
	aggregator *ingest.Aggregator
	engine     *reasoning.Engine
	chain      chain.Client
	opts       Options
	logger     *zap.Logger
	now        func() time.Time

	idMu       sync.Mutex
	registered bool

	mu             sync.Mutex
	state          State
	resting        State
	busy           int
	degradedReason string
	failedSources  []string
	votesCast      int
	lastIngest     time.Time

	recMu           sync.RWMutex
	recommendations map[string]Analysis

	voteMu   sync.Mutex
	receipts map[string]core.VoteReceipt

	refreshMu sync.Mutex
	snapshot  atomic.Pointer[Status]
}

func New(store membase.Store, layers *memory.Layers, aggregator *ingest.Aggregator, engine *reasoning.Engine, client chain.Client, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.AccuracyWindow <= 0 {
		opts.AccuracyWindow = 20
	}
	o := &Orchestrator{
		store:           store,
		layers:          layers,
		aggregator:      aggregator,
		engine:          engine,
		chain:           client,
		opts:            opts,
		logger:          opts.Logger,
		now:             func() time.Time { return time.Now().UTC() },
		state:           StateUninitialized,
		recommendations: make(map[string]Analysis),
		receipts:        make(map[string]core.VoteReceipt),
	}
	o.snapshot.Store(&Status{
		State:               StateUninitialized,
		AutonomousVoting:    opts.Voting.Autonomous,
		ConfidenceThreshold: opts.Voting.ConfidenceThreshold,
		UpdatedAt:           o.now(),
	})
	o.opts.Metrics.SetState(string(StateUninitialized), allStates)
	return o
}

// Status returns the last published snapshot without touching the stores
func (o *Orchestrator) Status() Status {
	return o.snapshot.Load().clone()
}

// Identity returns the delegate identity once registered
func (o *Orchestrator) Identity() (core.Agent, bool) {
	o.idMu.Lock()
	defer o.idMu.Unlock()
	return o.opts.Agent, o.registered
}

// RegisterIdentity registers the delegate on chain. Once it succeeded further
// calls return the stored identity without contacting the chain. A chain
// failure degrades the orchestrator; retries reuse the same identity.
func (o *Orchestrator) RegisterIdentity(ctx context.Context) (core.Agent, error) {
	agent, fresh, err := o.register(ctx)
	if err != nil {
		o.fail(ctx, err)
		return core.Agent{}, err
	}
	if !fresh {
		return agent, nil
	}

	o.mu.Lock()
	changed := false
	if o.busy == 0 && (o.state == StateUninitialized || o.state == StateDegraded) {
		o.state = StateIdentityRegistered
		o.degradedReason = ""
		changed = true
	}
	state := o.state
	o.mu.Unlock()

	o.logger.Info("delegate identity registered",
		zap.String("agent", agent.ID), zap.String("address", agent.Address), zap.String("tx", agent.TxHash))
	o.broadcast(communication.EventIdentityRegistered, agent)
	if changed {
		o.publishState(state, "")
	}
	o.refresh(ctx)
	return agent, nil
}

// register runs the chain registration under idMu. fresh is false when the
// identity was already registered.
func (o *Orchestrator) register(ctx context.Context) (agent core.Agent, fresh bool, err error) {
	o.idMu.Lock()
	defer o.idMu.Unlock()

	if o.registered {
		return o.opts.Agent, false, nil
	}

	agent, err = o.prepareIdentity()
	if err != nil {
		return core.Agent{}, false, err
	}
	o.opts.Agent = agent

	txHash, err := o.chain.Register(ctx, agent)
	if err != nil {
		return core.Agent{}, false, chainError("register", err)
	}
	ok, err := o.chain.IsRegistered(ctx, agent.ID)
	if err != nil {
		return core.Agent{}, false, chainError("is_registered", err)
	}
	if !ok {
		return core.Agent{}, false, chainError("register", fmt.Errorf("agent %s not found after registration", agent.ID))
	}

	agent.TxHash = txHash
	agent.RegisteredAt = o.now()
	o.opts.Agent = agent
	o.registered = true
	return agent, true, nil
}

func (o *Orchestrator) prepareIdentity() (core.Agent, error) {
	agent := o.opts.Agent
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if agent.Name == "" {
		agent.Name = "EternalGov"
	}
	if o.opts.PrivateKey == "" {
		pub, priv := crypto.GenerateKeyPair()
		o.opts.PrivateKey = priv
		agent.PublicKey = pub
	}
	if agent.PublicKey == "" {
		pub, err := crypto.PublicKeyFromPrivate(o.opts.PrivateKey)
		if err != nil {
			return core.Agent{}, fmt.Errorf("invalid delegate key: %w", err)
		}
		agent.PublicKey = pub
	}
	if agent.Address == "" {
		addr, err := crypto.AddressFromPublicKey(agent.PublicKey)
		if err != nil {
			return core.Agent{}, fmt.Errorf("invalid delegate key: %w", err)
		}
		agent.Address = addr
	}
	if agent.MembaseID == "" {
		agent.MembaseID = "eternalgov-" + strings.SplitN(agent.ID, "-", 2)[0]
	}
	if len(agent.Capabilities) == 0 {
		agent.Capabilities = slices.Clone(core.DefaultCapabilities)
	}
	return agent, nil
}

// begin moves into a working state. Analyses may overlap; every other step runs alone.
func (o *Orchestrator) begin(during State, allowed ...State) error {
	o.mu.Lock()
	if o.busy > 0 {
		joined := o.state == during && during == StateAnalyzing
		if joined {
			o.busy++
		}
		state := o.state
		o.mu.Unlock()
		if joined {
			return nil
		}
		return fmt.Errorf("%w: %s while %s", ErrInvalidState, during, state)
	}
	if !slices.Contains(allowed, o.state) {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: %s while %s", ErrInvalidState, during, state)
	}
	o.resting = o.state
	o.state = during
	o.busy = 1
	reason := o.degradedReason
	o.mu.Unlock()

	o.publishState(during, reason)
	return nil
}

// end leaves a working state. next overrides the state to return to; a degrade
// error moves the orchestrator into degraded.
func (o *Orchestrator) end(ctx context.Context, next State, err error) {
	o.mu.Lock()
	if degrades(err) {
		o.degradedReason = err.Error()
		o.resting = StateDegraded
		o.logger.Error("orchestrator degraded", zap.Error(err))
	} else if next != "" {
		o.resting = next
		if next == StateReady {
			o.degradedReason = ""
		}
	}
	o.busy--
	changed := false
	if o.busy == 0 {
		changed = o.state != o.resting
		o.state = o.resting
	}
	state, reason := o.state, o.degradedReason
	o.mu.Unlock()

	if changed {
		o.publishState(state, reason)
	}
	o.refresh(ctx)
}

// fail degrades the orchestrator outside a working step
func (o *Orchestrator) fail(ctx context.Context, err error) {
	if !degrades(err) {
		return
	}
	o.mu.Lock()
	o.degradedReason = err.Error()
	o.resting = StateDegraded
	changed := false
	if o.busy == 0 {
		changed = o.state != StateDegraded
		o.state = StateDegraded
	}
	state, reason := o.state, o.degradedReason
	o.mu.Unlock()

	o.logger.Error("orchestrator degraded", zap.Error(err))
	if changed {
		o.publishState(state, reason)
	}
	o.refresh(ctx)
}

// StateChange is broadcast whenever the orchestrator changes state
type StateChange struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

func (o *Orchestrator) publishState(state State, reason string) {
	o.opts.Metrics.SetState(string(state), allStates)
	o.broadcast(communication.EventStateChanged, StateChange{State: state, Reason: reason})
}

// degrades reports whether err is an orchestrator-level failure
func degrades(err error) bool {
	if err == nil {
		return false
	}
	var ext *core.ExternalServiceError
	return errors.As(err, &ext) || errors.Is(err, errAllSourcesFailed)
}

func chainError(op string, err error) error {
	var ext *core.ExternalServiceError
	if errors.As(err, &ext) {
		return err
	}
	return &core.ExternalServiceError{Service: "chain", Op: op, Attempts: 1, Err: err}
}

// refresh recomputes the status snapshot. Count failures keep the previous counts.
func (o *Orchestrator) refresh(ctx context.Context) {
	o.refreshMu.Lock()
	defer o.refreshMu.Unlock()

	prev := o.snapshot.Load()
	counts, err := o.layers.Counts(context.WithoutCancel(ctx))
	if err != nil {
		o.logger.Warn("failed to refresh memory counts", zap.Error(err))
		counts = prev.Memory
	}

	o.idMu.Lock()
	var identity *core.Agent
	if o.registered {
		agent := o.opts.Agent
		identity = &agent
	}
	o.idMu.Unlock()

	o.mu.Lock()
	next := Status{
		State:               o.state,
		DegradedReason:      o.degradedReason,
		Identity:            identity,
		AutonomousVoting:    o.opts.Voting.Autonomous,
		ConfidenceThreshold: o.opts.Voting.ConfidenceThreshold,
		Memory:              counts,
		FailedSources:       slices.Clone(o.failedSources),
		VotesCast:           o.votesCast,
		LastIngest:          o.lastIngest,
		UpdatedAt:           o.now(),
	}
	o.mu.Unlock()

	o.snapshot.Store(&next)
	o.opts.Metrics.SetMemoryRecords(memory.CollectionProposals, counts.Proposals)
	o.opts.Metrics.SetMemoryRecords(memory.CollectionSentiment, counts.Sentiment)
	o.opts.Metrics.SetMemoryRecords(memory.CollectionPreferences, counts.Preferences)
	o.opts.Metrics.SetMemoryRecords(memory.CollectionOutcomes, counts.Outcomes)
}

func (o *Orchestrator) emit(subject, eventType string, payload interface{}) {
	if err := core.PublishJSON(o.opts.Publisher, subject, payload); err != nil {
		o.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
	o.broadcast(eventType, payload)
}

func (o *Orchestrator) broadcast(eventType string, payload interface{}) {
	if o.opts.Broadcaster == nil || eventType == "" {
		return
	}
	o.opts.Broadcaster.Broadcast(eventType, payload)
}
