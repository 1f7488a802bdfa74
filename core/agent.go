package core

import "time"

// Agent is the delegate identity registered on chain and used to sign votes
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MembaseID    string    `json:"membase_id"`
	Address      string    `json:"address,omitempty"`
	PublicKey    string    `json:"public_key,omitempty"`
	Capabilities []string  `json:"capabilities"`
	RegisteredAt time.Time `json:"registered_at,omitempty"`
	TxHash       string    `json:"tx_hash,omitempty"`
}

// DefaultCapabilities advertised when registering the delegate
var DefaultCapabilities = []string{
	"proposal_analysis",
	"sentiment_tracking",
	"autonomous_voting",
	"memory_persistence",
}
