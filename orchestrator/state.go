package orchestrator

import (
	"errors"
	"time"

	"github.com/NethermindEth/eternalgov/core"
	"github.com/NethermindEth/eternalgov/memory"
)

// State of the delegate workflow
type State string

const (
	StateUninitialized      State = "uninitialized"
	StateIdentityRegistered State = "identity_registered"
	StateIngesting          State = "ingesting"
	StateReady              State = "ready"
	StateAnalyzing          State = "analyzing"
	StateVoting             State = "voting"
	StateDegraded           State = "degraded"
)

var allStates = []string{
	string(StateUninitialized),
	string(StateIdentityRegistered),
	string(StateIngesting),
	string(StateReady),
	string(StateAnalyzing),
	string(StateVoting),
	string(StateDegraded),
}

var (
	// ErrInvalidState is returned when an operation is not allowed in the current state
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrIdentityRequired is returned when ingesting before the identity is registered
	ErrIdentityRequired = errors.New("delegate identity is not registered")
	// ErrBelowThreshold is returned when a recommendation is not confident enough to vote on
	ErrBelowThreshold = errors.New("recommendation confidence is below the voting threshold")
)

// Status is a read-only snapshot of the orchestrator
type Status struct {
	State               State         `json:"state"`
	DegradedReason      string        `json:"degraded_reason,omitempty"`
	Identity            *core.Agent   `json:"identity,omitempty"`
	AutonomousVoting    bool          `json:"autonomous_voting"`
	ConfidenceThreshold float64       `json:"confidence_threshold"`
	Memory              memory.Counts `json:"memory"`
	FailedSources       []string      `json:"failed_sources"`
	VotesCast           int           `json:"votes_cast"`
	LastIngest          time.Time     `json:"last_ingest,omitempty"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

func (s Status) clone() Status {
	out := s
	if s.Identity != nil {
		id := *s.Identity
		out.Identity = &id
	}
	out.FailedSources = append([]string(nil), s.FailedSources...)
	return out
}
