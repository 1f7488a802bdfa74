package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/NethermindEth/eternalgov/core"
)

var (
	// ErrNotRegistered is returned when an unregistered agent tries to vote
	ErrNotRegistered = errors.New("agent is not registered")
	// ErrAlreadyVoted is returned when the agent already voted on the proposal
	ErrAlreadyVoted = errors.New("agent already voted on this proposal")
	// ErrInvalidProof is returned when the vote signature does not verify
	ErrInvalidProof = errors.New("vote proof does not verify")
)

// Ballot is a signed vote submitted on behalf of the delegate
type Ballot struct {
	AgentID    string `json:"agent_id"`
	DAO        string `json:"dao"`
	ProposalID string `json:"proposal_id"`
	Choice     string `json:"choice"`
	Proof      string `json:"proof"`
}

// Client is the capability to register the delegate and cast votes on chain
type Client interface {
	Register(ctx context.Context, agent core.Agent) (string, error)
	IsRegistered(ctx context.Context, agentID string) (bool, error)
	CastVote(ctx context.Context, ballot Ballot) (string, error)
}

// BallotMessage is the byte string the delegate signs to prove a vote
func BallotMessage(dao, proposalID, choice string) []byte {
	return []byte(fmt.Sprintf("eternalgov-vote|%s|%s|%s", strings.ToLower(dao), proposalID, choice))
}
